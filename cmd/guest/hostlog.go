//go:build wasip1

package main

import "unsafe"

//go:wasmimport host log_message
func hostLogMessage(level, ptr, length uint32)

// hostLog passes msg to the host by address. msg stays reachable for the
// duration of the call, which is all the host may rely on.
func hostLog(level uint32, msg []byte) {
	if len(msg) == 0 {
		return
	}
	hostLogMessage(level, uint32(uintptr(unsafe.Pointer(unsafe.SliceData(msg)))), uint32(len(msg)))
}
