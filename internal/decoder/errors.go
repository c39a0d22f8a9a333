package decoder

import (
	"errors"
	"fmt"
)

var (
	// ErrDecodeFailed collapses every failure of the decode capability:
	// malformed headers, unsupported subformats, truncated streams.
	ErrDecodeFailed = errors.New("decode failed")

	// ErrInvalidHandle is returned when the input region does not lie inside
	// live guest memory.
	ErrInvalidHandle = errors.New("input handle is not inside live memory")

	// ErrEmptyInput is returned by the JPEG capability for zero-byte input.
	ErrEmptyInput = errors.New("empty input")

	// ErrTooLarge is returned when a decoded image does not fit 16-bit dimensions.
	ErrTooLarge = errors.New("image dimensions exceed 65535")
)

// CapacityExceededError occurs when the decoded image has more pixels than the
// decoder's output buffer was allocated for.
type CapacityExceededError struct {
	Width    uint16
	Height   uint16
	Pixels   uint64
	Capacity uint32 // bytes
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("decoded image %dx%d needs %d bytes, output buffer holds %d",
		e.Width, e.Height, e.Pixels*4, e.Capacity)
}

// LibraryPanicError is returned when the JPEG library panics on a
// corrupted stream.
type LibraryPanicError struct {
	Value any
}

func (e *LibraryPanicError) Error() string {
	return fmt.Sprintf("jpeg library panic: %v", e.Value)
}

// decodeError wraps the capability's cause under ErrDecodeFailed.
type decodeError struct {
	cause error
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("%v: %v", ErrDecodeFailed, e.cause)
}

func (e *decodeError) Unwrap() []error {
	return []error{ErrDecodeFailed, e.cause}
}
