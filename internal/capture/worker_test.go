package capture

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/occupancy.report/internal/timeutil"
)

// scriptedSource returns the scripted results in order, then io.EOF.
type scriptedSource struct {
	mu      sync.Mutex
	openErr error
	script  []scripted
	closed  bool
}

type scripted struct {
	frame Frame
	err   error
}

func (s *scriptedSource) Open(context.Context) error { return s.openErr }

func (s *scriptedSource) Read(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.script) == 0 {
		return Frame{}, io.EOF
	}
	next := s.script[0]
	s.script = s.script[1:]
	return next.frame, next.err
}

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestWorker_OpenFailureIsReturned(t *testing.T) {
	t.Parallel()
	slot := NewSlot()
	w := NewWorker(&scriptedSource{openErr: errors.New("no camera at index 0")}, slot, nil)

	err := w.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no camera at index 0")
	assert.Equal(t, StatusClosed, slot.Status())
	w.Stop()
}

func TestWorker_RetriesTransientFailures(t *testing.T) {
	t.Parallel()
	src := &scriptedSource{script: []scripted{
		{err: ErrFrameUnavailable},
		{err: ErrFrameUnavailable},
		{frame: Frame{Labels: []Label{{ID: "1"}}}},
	}}
	slot := NewSlot()
	w := NewWorker(src, slot, timeutil.RealClock{})
	w.RetryDelay = time.Millisecond

	require.NoError(t, w.Start(context.Background()))
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not finish")
	}
	w.Stop()

	f, ok := slot.Take()
	require.True(t, ok)
	assert.Equal(t, uint64(1), f.Seq)
	assert.False(t, f.Captured.IsZero())
	assert.Equal(t, uint64(2), w.Failures())
	assert.Equal(t, StatusClosed, slot.Status())
	assert.True(t, src.closed)
}

func TestWorker_StallReportedWhileWaiting(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	src := &scriptedSource{script: []scripted{{err: ErrFrameUnavailable}}}
	slot := NewSlot()
	w := NewWorker(src, slot, clock)

	require.NoError(t, w.Start(context.Background()))
	require.Eventually(t, func() bool { return slot.Status() == StatusStalled }, 5*time.Second, time.Millisecond)

	w.Stop()
	assert.Equal(t, StatusClosed, slot.Status())
}

func TestWorker_StopCancelsBlockedRead(t *testing.T) {
	t.Parallel()
	slot := NewSlot()
	src := NewReplayRecords([]FixtureRecord{{Seq: 1}}, time.Hour, timeutil.RealClock{})
	w := NewWorker(src, slot, nil)

	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
	_, ok := slot.Take()
	assert.False(t, ok)
}
