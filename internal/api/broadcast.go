package api

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/occupancy.report/internal/occupancy"
	"github.com/banshee-data/occupancy.report/internal/timeutil"
)

// SnapshotSource yields consistent copies of the shared metrics.
// *occupancy.State implements it.
type SnapshotSource interface {
	Snapshot() occupancy.Snapshot
}

// BroadcastStats counts fan-out outcomes.
type BroadcastStats struct {
	Subscribers int    `json:"subscribers"`
	Ticks       uint64 `json:"ticks"`
	Delivered   uint64 `json:"delivered"`
	Replaced    uint64 `json:"replaced"`
}

// Broadcaster pushes one snapshot per interval to every subscriber. Each
// subscriber has a one-snapshot buffer; a subscriber that has not taken
// the previous snapshot gets it replaced by the newer one, so a slow
// reader never stalls the loop or the other readers.
type Broadcaster struct {
	src      SnapshotSource
	clock    timeutil.Clock
	interval time.Duration

	mu          sync.Mutex
	subscribers map[string]chan occupancy.Snapshot
	closed      bool

	ticks, delivered, replaced atomic.Uint64

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewBroadcaster returns a stopped broadcaster.
func NewBroadcaster(src SnapshotSource, interval time.Duration, clock timeutil.Clock) *Broadcaster {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Broadcaster{
		src:         src,
		clock:       clock,
		interval:    interval,
		subscribers: make(map[string]chan occupancy.Snapshot),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Subscribe registers a new subscriber. The channel is closed by
// Unsubscribe or Stop.
func (b *Broadcaster) Subscribe() (string, <-chan occupancy.Snapshot) {
	id := uuid.NewString()
	ch := make(chan occupancy.Snapshot, 1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

// Broadcast takes one snapshot and offers it to every subscriber.
func (b *Broadcaster) Broadcast() {
	snap := b.src.Snapshot()
	b.ticks.Add(1)

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- snap:
			b.delivered.Add(1)
			continue
		default:
		}
		// Full: drop the stale snapshot and offer the new one. The reader
		// may have drained it in between, so neither step blocks.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
			b.replaced.Add(1)
		default:
		}
	}
}

// Start launches the tick loop.
func (b *Broadcaster) Start() {
	b.startOnce.Do(func() {
		ticker := b.clock.NewTicker(b.interval)
		go func() {
			defer close(b.done)
			defer ticker.Stop()
			for {
				select {
				case <-b.stop:
					return
				case <-ticker.C():
					b.Broadcast()
				}
			}
		}()
	})
}

// Stop ends the tick loop and closes every subscriber channel.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		close(b.stop)
		b.startOnce.Do(func() { close(b.done) })
		<-b.done

		b.mu.Lock()
		defer b.mu.Unlock()
		b.closed = true
		for id, ch := range b.subscribers {
			close(ch)
			delete(b.subscribers, id)
		}
	})
}

// Stats returns fan-out counters.
func (b *Broadcaster) Stats() BroadcastStats {
	b.mu.Lock()
	n := len(b.subscribers)
	b.mu.Unlock()
	return BroadcastStats{
		Subscribers: n,
		Ticks:       b.ticks.Load(),
		Delivered:   b.delivered.Load(),
		Replaced:    b.replaced.Load(),
	}
}
