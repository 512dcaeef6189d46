// Package capture acquires frames from a source on its own goroutine and
// hands the newest one to the scheduler through a single-slot buffer.
// Frames are overwritten, never queued.
package capture

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrFrameUnavailable is a transient grab failure; the worker backs off
	// and reads again.
	ErrFrameUnavailable = errors.New("capture: frame unavailable")
	// ErrSourceClosed ends the capture loop.
	ErrSourceClosed = errors.New("capture: source closed")
)

// Frame is one captured image plus any tracker output that travelled with
// it. Replay fixtures carry Labels instead of pixels.
type Frame struct {
	Seq         uint64
	Captured    time.Time
	Width       int
	Height      int
	ContentType string
	Data        []byte
	Labels      []Label
}

// Label is a tracker box recorded alongside a frame.
type Label struct {
	ID         string     `json:"id"`
	BBox       [4]float64 `json:"bbox"` // left, top, right, bottom
	Confirmed  bool       `json:"confirmed"`
	Confidence float64    `json:"confidence,omitempty"`
}

// Source produces frames. Open is called once before the first Read; an
// Open error is fatal to startup. Read blocks until the next frame and
// returns ErrFrameUnavailable for a transient failure, or ErrSourceClosed
// (or io.EOF) when no more frames will arrive.
type Source interface {
	Open(ctx context.Context) error
	Read(ctx context.Context) (Frame, error)
	Close() error
}
