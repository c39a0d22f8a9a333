package session

import (
	"context"

	"github.com/woxQAQ/wasm-jpeg-decoder/pkg/protocol"
)

// Engine creates frame decoders. One engine backs a Controller.
type Engine interface {
	// NewFrameDecoder returns a decoder whose output holds width x height pixels.
	NewFrameDecoder(ctx context.Context, width, height uint32) (FrameDecoder, error)

	// Close releases engine-wide resources.
	Close(ctx context.Context) error
}

// FrameDecoder decodes one encoded frame at a time into an owned copy of
// the RGBA pixels. Implementations are not safe for concurrent use.
type FrameDecoder interface {
	Decode(ctx context.Context, data []byte) (*protocol.ImageData, error)
	Free(ctx context.Context) error
}
