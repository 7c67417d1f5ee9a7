package pixel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/myseetara-source/seetara-website-sub001/conversion"
)

// ErrChannelUnavailable means the tracking script is blocked or not loaded.
var ErrChannelUnavailable = errors.New("pixel tracking channel unavailable")

// Tracker is the browser pixel's track(event, params, options) call.
type Tracker interface {
	Track(ctx context.Context, event conversion.EventName, params conversion.PixelParams, opts conversion.PixelOptions) error
}

// WriterTracker writes each track call as one JSON line. The preview CLI uses
// it to show exactly what a confirmation URL would fire.
type WriterTracker struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterTracker(w io.Writer) *WriterTracker {
	return &WriterTracker{w: w}
}

func (t *WriterTracker) Track(_ context.Context, event conversion.EventName, params conversion.PixelParams, opts conversion.PixelOptions) error {
	if t.w == nil {
		return ErrChannelUnavailable
	}
	b, err := json.Marshal(conversion.PixelPayload{Event: event, Params: params, Options: opts})
	if err != nil {
		return fmt.Errorf("encode track call: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := fmt.Fprintln(t.w, string(b)); err != nil {
		return fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}
	return nil
}
