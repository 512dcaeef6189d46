package capture

import (
	"sync"
	"time"
)

// Status is the condition of the capture side as last reported by the
// worker.
type Status string

const (
	StatusStarting Status = "starting"
	StatusOnline   Status = "online"
	StatusStalled  Status = "stalled"
	StatusClosed   Status = "closed"
)

// SlotStats counts slot traffic.
type SlotStats struct {
	Published   uint64    `json:"published"`
	Overwritten uint64    `json:"overwritten"`
	Taken       uint64    `json:"taken"`
	LastPut     time.Time `json:"last_put"`
}

// Slot holds at most one frame. Put replaces any frame not yet taken.
type Slot struct {
	mu     sync.Mutex
	frame  Frame
	full   bool
	status Status
	stats  SlotStats
}

// NewSlot returns an empty slot in StatusStarting.
func NewSlot() *Slot {
	return &Slot{status: StatusStarting}
}

// Put stores f as the latest frame.
func (s *Slot) Put(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		s.stats.Overwritten++
	}
	s.frame = f
	s.full = true
	s.status = StatusOnline
	s.stats.Published++
	s.stats.LastPut = f.Captured
}

// Take removes and returns the latest frame, or false if there is none.
func (s *Slot) Take() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.full {
		return Frame{}, false
	}
	f := s.frame
	s.frame = Frame{}
	s.full = false
	s.stats.Taken++
	return f, true
}

// SetStatus records the capture condition.
func (s *Slot) SetStatus(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
}

// Status returns the capture condition.
func (s *Slot) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Stats returns a copy of the slot counters.
func (s *Slot) Stats() SlotStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
