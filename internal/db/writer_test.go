package db

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/occupancy.report/internal/occupancy"
)

type fakeRecorder struct {
	mu      sync.Mutex
	events  []occupancy.CrossingEvent
	visits  []occupancy.CompletedVisit
	fail    error
	release chan struct{}
}

func (f *fakeRecorder) wait() {
	if f.release != nil {
		<-f.release
	}
}

func (f *fakeRecorder) InsertEvent(_ context.Context, ev occupancy.CrossingEvent) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeRecorder) InsertVisit(_ context.Context, v occupancy.CompletedVisit) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.visits = append(f.visits, v)
	return nil
}

func TestWriter_WritesInOrder(t *testing.T) {
	rec := &fakeRecorder{}
	w := NewWriter(rec, 8)
	w.Start()

	w.RecordEvent(occupancy.CrossingEvent{TrackID: "7", Kind: occupancy.Entry, Time: t0})
	w.RecordEvent(occupancy.CrossingEvent{TrackID: "7", Kind: occupancy.Exit, Time: t0.Add(12 * time.Second)})
	w.RecordVisit(occupancy.CompletedVisit{TrackID: "7", DwellSeconds: 12})
	w.Close()

	require.Len(t, rec.events, 2)
	assert.Equal(t, occupancy.Entry, rec.events[0].Kind)
	require.Len(t, rec.visits, 1)
	assert.Equal(t, WriterStats{Written: 3}, w.Stats())
}

func TestWriter_FailuresAreCountedNotRetried(t *testing.T) {
	rec := &fakeRecorder{fail: errors.New("disk I/O error")}
	w := NewWriter(rec, 8)
	w.Start()
	w.RecordEvent(occupancy.CrossingEvent{TrackID: "1"})
	w.RecordVisit(occupancy.CompletedVisit{TrackID: "1"})
	w.Close()

	st := w.Stats()
	assert.Equal(t, uint64(2), st.Failed)
	assert.Equal(t, uint64(0), st.Written)
}

func TestWriter_FullQueueDropsWithoutBlocking(t *testing.T) {
	rec := &fakeRecorder{release: make(chan struct{})}
	w := NewWriter(rec, 2)
	w.Start()

	// The first record is taken by the insert goroutine and blocks there;
	// allow it to be picked up before filling the queue.
	require.NoError(t, w.enqueue(writeOp{event: &occupancy.CrossingEvent{TrackID: "0"}}))
	require.Eventually(t, func() bool { return len(w.queue) == 0 }, 5*time.Second, time.Millisecond)

	require.NoError(t, w.enqueue(writeOp{event: &occupancy.CrossingEvent{TrackID: "1"}}))
	require.NoError(t, w.enqueue(writeOp{event: &occupancy.CrossingEvent{TrackID: "2"}}))

	done := make(chan error, 1)
	go func() { done <- w.enqueue(writeOp{event: &occupancy.CrossingEvent{TrackID: "3"}}) }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrQueueFull)
	case <-time.After(5 * time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}

	close(rec.release)
	w.Close()
	st := w.Stats()
	assert.Equal(t, uint64(3), st.Written)
	assert.Equal(t, uint64(1), st.Dropped)
}

func TestWriter_ClosedRejects(t *testing.T) {
	w := NewWriter(&fakeRecorder{}, 0)
	w.Close()
	w.Close()
	assert.ErrorIs(t, w.enqueue(writeOp{visit: &occupancy.CompletedVisit{}}), ErrPersistenceOffline)
	w.RecordEvent(occupancy.CrossingEvent{})
	assert.Equal(t, uint64(2), w.Stats().Dropped)
}

func TestWriter_AgainstSQLite(t *testing.T) {
	db := setupTestDB(t)
	w := NewWriter(db, 16)
	w.Start()

	w.RecordEvent(occupancy.CrossingEvent{TrackID: "7", Kind: occupancy.Entry, Time: t0})
	w.RecordVisit(occupancy.CompletedVisit{TrackID: "7", EntryTime: t0, ExitTime: t0.Add(5 * time.Second), DwellSeconds: 5})
	w.Close()

	s, err := db.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Total)
	events, err := db.RecentEvents(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
