package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/occupancy.report/internal/monitoring"
	"github.com/banshee-data/occupancy.report/internal/timeutil"
)

// DefaultRetryDelay is the pause after a failed grab.
const DefaultRetryDelay = 10 * time.Millisecond

// Worker reads frames from a Source into a Slot until the source closes
// or Stop is called.
type Worker struct {
	src        Source
	slot       *Slot
	clock      timeutil.Clock
	RetryDelay time.Duration

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	failures uint64
	seq      uint64
}

// NewWorker returns a worker feeding slot from src.
func NewWorker(src Source, slot *Slot, clock timeutil.Clock) *Worker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Worker{
		src:        src,
		slot:       slot,
		clock:      clock,
		RetryDelay: DefaultRetryDelay,
		done:       make(chan struct{}),
	}
}

// Start opens the source and launches the capture loop. An Open failure
// is returned and no goroutine is started.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.src.Open(ctx); err != nil {
		w.slot.SetStatus(StatusClosed)
		return fmt.Errorf("open frame source: %w", err)
	}
	ctx, w.cancel = context.WithCancel(ctx)
	go w.run(ctx)
	return nil
}

// Stop ends the capture loop and waits for it to exit.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
			<-w.done
		}
	})
}

// Done is closed when the capture loop has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Failures returns the number of transient grab failures seen.
func (w *Worker) Failures() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failures
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer func() {
		if err := w.src.Close(); err != nil {
			monitoring.Diagf("[capture] close source: %v", err)
		}
	}()

	stalled := false
	for {
		frame, err := w.src.Read(ctx)
		switch {
		case err == nil:
			w.publish(frame)
			if stalled {
				monitoring.Diagf("[capture] frames flowing again")
				stalled = false
			}
		case ctx.Err() != nil:
			w.slot.SetStatus(StatusClosed)
			return
		case errors.Is(err, ErrFrameUnavailable):
			w.mu.Lock()
			w.failures++
			w.mu.Unlock()
			w.slot.SetStatus(StatusStalled)
			if !stalled {
				monitoring.Opsf("[capture] frame grab failed: %v", err)
				stalled = true
			}
			select {
			case <-ctx.Done():
				w.slot.SetStatus(StatusClosed)
				return
			case <-w.clock.After(w.RetryDelay):
			}
		case errors.Is(err, io.EOF), errors.Is(err, ErrSourceClosed):
			monitoring.Diagf("[capture] source finished after %d frames", w.slot.Stats().Published)
			w.slot.SetStatus(StatusClosed)
			return
		default:
			monitoring.Opsf("[capture] source failed: %v", err)
			w.slot.SetStatus(StatusClosed)
			return
		}
	}
}

func (w *Worker) publish(f Frame) {
	w.mu.Lock()
	w.seq++
	if f.Seq == 0 {
		f.Seq = w.seq
	}
	w.mu.Unlock()
	if f.Captured.IsZero() {
		f.Captured = w.clock.Now()
	}
	monitoring.Tracef("[capture] frame seq=%d labels=%d bytes=%d", f.Seq, len(f.Labels), len(f.Data))
	w.slot.Put(f)
}
