package session

import (
	"errors"
	"fmt"

	"github.com/woxQAQ/wasm-jpeg-decoder/internal/decoder"
)

var (
	// ErrDecodeFailed is returned when the engine could not decode a frame.
	// It matches the decoder package's sentinel so either can be tested with
	// errors.Is.
	ErrDecodeFailed = decoder.ErrDecodeFailed

	// ErrClosed is returned by operations on a closed Controller or Instance.
	ErrClosed = errors.New("session closed")
)

// InputTooLargeError occurs when a frame exceeds the configured input budget.
type InputTooLargeError struct {
	Size  int
	Limit uint32
}

func (e *InputTooLargeError) Error() string {
	return fmt.Sprintf("input of %d bytes exceeds limit of %d bytes", e.Size, e.Limit)
}

// ErrInputTooLarge matches any *InputTooLargeError under errors.Is.
var ErrInputTooLarge = &InputTooLargeError{}

func (e *InputTooLargeError) Is(target error) bool {
	_, ok := target.(*InputTooLargeError)
	return ok
}

// UnknownEngineError occurs when the configuration names no known engine.
type UnknownEngineError struct {
	Engine string
}

func (e *UnknownEngineError) Error() string {
	return fmt.Sprintf("unknown decode engine '%s'", e.Engine)
}
