package occupancy

import (
	"sync"
	"time"
)

// Subsystem names a dependency whose health is reported to clients.
type Subsystem string

const (
	SubsystemAI       Subsystem = "ai"
	SubsystemDatabase Subsystem = "database"
	SubsystemCamera   Subsystem = "camera"
)

// Health is the reported condition of a subsystem.
type Health string

const (
	HealthOnline  Health = "online"
	HealthOffline Health = "offline"
	HealthStalled Health = "stalled"
)

// Snapshot is a consistent copy of the shared metrics.
type Snapshot struct {
	Counters
	Alerts       []Alert              `json:"alerts"`
	SystemStatus map[Subsystem]Health `json:"system_status"`
	UpdatedAt    time.Time            `json:"updated_at"`
	Version      uint64               `json:"version"`
}

// State is the process-wide metrics store. The analytics pipeline is its
// only writer; any number of goroutines may call Snapshot concurrently.
// Every mutator takes the write lock for its whole update, so a snapshot
// never sees half of one.
type State struct {
	mu        sync.RWMutex
	counters  Counters
	alerts    *AlertLog
	health    map[Subsystem]Health
	updatedAt time.Time
	version   uint64
}

// NewState returns a store with zero counters, an empty alert log and
// every subsystem reported offline.
func NewState() *State {
	return &State{
		alerts: NewAlertLog(AlertCapacity),
		health: map[Subsystem]Health{
			SubsystemAI:       HealthOffline,
			SubsystemDatabase: HealthOffline,
			SubsystemCamera:   HealthOffline,
		},
	}
}

// Snapshot returns a copy of counters, alerts and health taken under one
// read lock.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	health := make(map[Subsystem]Health, len(s.health))
	for k, v := range s.health {
		health[k] = v
	}
	return Snapshot{
		Counters:     s.counters,
		Alerts:       s.alerts.Entries(),
		SystemStatus: health,
		UpdatedAt:    s.updatedAt,
		Version:      s.version,
	}
}

// SetCounters replaces the published counters.
func (s *State) SetCounters(c Counters, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = c
	s.touch(at)
}

// AppendAlert adds an alert to the bounded log.
func (s *State) AppendAlert(a Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts.Append(a)
	s.touch(a.Time)
}

// SetHealth records the health of one subsystem. It reports whether the
// value changed.
func (s *State) SetHealth(sub Subsystem, h Health) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.health[sub] == h {
		return false
	}
	s.health[sub] = h
	s.version++
	return true
}

// Health returns the recorded health of sub.
func (s *State) Health(sub Subsystem) Health {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health[sub]
}

func (s *State) touch(at time.Time) {
	if at.After(s.updatedAt) {
		s.updatedAt = at
	}
	s.version++
}
