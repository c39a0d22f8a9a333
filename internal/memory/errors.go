package memory

import "fmt"

// AllocationError is the panic value raised when a buffer cannot be allocated.
// Allocation failure is not recoverable at the guest boundary.
type AllocationError struct {
	Size  uint64
	InUse uint64
	Limit uint64
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("cannot allocate %d bytes (in use: %d, limit: %d)", e.Size, e.InUse, e.Limit)
}
