package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/woxQAQ/wasm-jpeg-decoder/internal/wasm"
	"github.com/woxQAQ/wasm-jpeg-decoder/pkg/protocol"
	"go.uber.org/zap"
)

// Instance decodes frames into a fixed-size output. It is not safe for
// concurrent use.
type Instance struct {
	ctrl   *Controller
	frames FrameDecoder

	Width  uint32
	Height uint32

	maxInput uint32
	timeout  time.Duration

	closeOnce sync.Once
	closed    bool
	closeErr  error
}

// DecodeToImageData decodes one encoded frame and returns a copy of its
// RGBA pixels.
func (i *Instance) DecodeToImageData(ctx context.Context, data []byte) (*protocol.ImageData, error) {
	if i.closed {
		return nil, ErrClosed
	}

	if uint64(len(data)) > uint64(i.maxInput) {
		return nil, &InputTooLargeError{Size: len(data), Limit: i.maxInput}
	}

	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	img, err := i.frames.Decode(ctx, data)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && i.timeout > 0 {
			err = &wasm.TimeoutError{Duration: i.timeout}
		}
		i.ctrl.logger.Debug("Frame decode failed",
			zap.Int("input_len", len(data)),
			zap.Error(err),
		)
		return nil, err
	}

	return img, nil
}

// Close frees the instance's decoder. Safe to call multiple times.
func (i *Instance) Close(ctx context.Context) error {
	i.closeOnce.Do(func() {
		i.closed = true
		i.closeErr = i.frames.Free(ctx)
		i.ctrl.release(i)
	})
	return i.closeErr
}
