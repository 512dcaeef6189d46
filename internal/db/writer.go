package db

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/occupancy.report/internal/monitoring"
	"github.com/banshee-data/occupancy.report/internal/occupancy"
)

var (
	// ErrQueueFull means the write queue was full and the record was dropped.
	ErrQueueFull = errors.New("db: write queue full")
	// ErrPersistenceOffline means the writer no longer accepts records.
	ErrPersistenceOffline = errors.New("db: persistence offline")
)

// DefaultQueueSize is the writer backlog used when none is configured.
const DefaultQueueSize = 256

// writeTimeout bounds a single insert.
const writeTimeout = 5 * time.Second

// Recorder is the write side of the store.
type Recorder interface {
	InsertEvent(ctx context.Context, ev occupancy.CrossingEvent) error
	InsertVisit(ctx context.Context, v occupancy.CompletedVisit) error
}

// WriterStats counts writer outcomes.
type WriterStats struct {
	Queued  int    `json:"queued"`
	Written uint64 `json:"written"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
}

type writeOp struct {
	event *occupancy.CrossingEvent
	visit *occupancy.CompletedVisit
}

// Writer moves inserts off the analytics goroutine. Records are queued
// without blocking; a full queue drops the record and counts it. Failed
// inserts are logged and counted, never retried.
type Writer struct {
	rec   Recorder
	queue chan writeOp

	mu     sync.RWMutex
	closed bool

	written, failed, dropped atomic.Uint64

	startOnce sync.Once
	done      chan struct{}
}

// NewWriter returns a writer with a backlog of size records.
func NewWriter(rec Recorder, size int) *Writer {
	if size < 1 {
		size = DefaultQueueSize
	}
	return &Writer{
		rec:   rec,
		queue: make(chan writeOp, size),
		done:  make(chan struct{}),
	}
}

// Start launches the insert goroutine.
func (w *Writer) Start() {
	w.startOnce.Do(func() { go w.run() })
}

// Close stops accepting records, drains the queue and waits for the
// insert goroutine to finish.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	w.Start()
	<-w.done
}

// RecordEvent queues ev for insertion.
func (w *Writer) RecordEvent(ev occupancy.CrossingEvent) {
	w.enqueue(writeOp{event: &ev})
}

// RecordVisit queues v for insertion.
func (w *Writer) RecordVisit(v occupancy.CompletedVisit) {
	w.enqueue(writeOp{visit: &v})
}

// Stats returns the writer counters.
func (w *Writer) Stats() WriterStats {
	return WriterStats{
		Queued:  len(w.queue),
		Written: w.written.Load(),
		Failed:  w.failed.Load(),
		Dropped: w.dropped.Load(),
	}
}

func (w *Writer) enqueue(op writeOp) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.dropped.Add(1)
		return ErrPersistenceOffline
	}
	select {
	case w.queue <- op:
		return nil
	default:
		if w.dropped.Add(1)%100 == 1 {
			monitoring.Opsf("[db] write queue full, dropped %d records so far", w.dropped.Load())
		}
		return ErrQueueFull
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for op := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		var err error
		if op.event != nil {
			err = w.rec.InsertEvent(ctx, *op.event)
		} else {
			err = w.rec.InsertVisit(ctx, *op.visit)
		}
		cancel()
		if err != nil {
			w.failed.Add(1)
			monitoring.Opsf("[db] write failed: %v", err)
			continue
		}
		w.written.Add(1)
	}
}
