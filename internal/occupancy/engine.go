package occupancy

import (
	"time"

	"github.com/banshee-data/occupancy.report/internal/monitoring"
)

// Config holds the analytics parameters.
type Config struct {
	LinePosition       float64       // Counting line, in image rows
	OvercrowdThreshold int           // Occupancy at or above which a critical alert fires
	HistoryTTL         time.Duration // Forget positions of tracks unseen this long; 0 keeps them forever
	ActivityAlerts     bool          // Also log an info alert for every ENTRY and EXIT
	SessionID          string        // Stamped on every event and visit this engine emits
}

// Sink receives crossing events and completed visits. Implementations must
// not block; the engine calls them on the analytics hot path.
type Sink interface {
	RecordEvent(CrossingEvent)
	RecordVisit(CompletedVisit)
}

// AlertSink is implemented by sinks that also want alerts.
type AlertSink interface {
	RecordAlert(Alert)
}

// Engine wires the crossing detector, dwell tracker, aggregator and alert
// log together and publishes results to a State. It is not safe for
// concurrent use; the frame scheduler is its only caller.
type Engine struct {
	cfg       Config
	crossings *CrossingDetector
	dwell     *DwellTracker
	agg       Aggregator
	state     *State
	sinks     []Sink
}

// NewEngine returns an engine publishing into state.
func NewEngine(cfg Config, state *State, sinks ...Sink) *Engine {
	if state == nil {
		state = NewState()
	}
	return &Engine{
		cfg:       cfg,
		crossings: NewCrossingDetector(cfg.LinePosition),
		dwell:     NewDwellTracker(),
		state:     state,
		sinks:     sinks,
	}
}

// State returns the store this engine writes to.
func (e *Engine) State() *State { return e.state }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// AddSink registers another event sink.
func (e *Engine) AddSink(s Sink) {
	e.sinks = append(e.sinks, s)
}

// Observe feeds one observation through the crossing detector. When the
// observation crosses the line it updates dwell and counters, publishes
// the new counters, runs the overcrowding check and hands the event to
// every sink.
func (e *Engine) Observe(obs Observation) (CrossingEvent, bool) {
	kind, crossed := e.crossings.Update(obs)
	if !crossed {
		return CrossingEvent{}, false
	}

	ev := CrossingEvent{SessionID: e.cfg.SessionID, TrackID: obs.TrackID, Kind: kind, Time: obs.Time}
	for _, s := range e.sinks {
		s.RecordEvent(ev)
	}

	switch kind {
	case Entry:
		e.dwell.Enter(obs.TrackID, obs.Time)
		monitoring.Diagf("[occupancy] ENTRY id=%s y=%.1f", obs.TrackID, obs.CenterY)
		if e.cfg.ActivityAlerts {
			e.appendAlert(entryAlert(obs.TrackID, obs.Time))
		}
	case Exit:
		visit, matched := e.dwell.Exit(obs.TrackID, obs.Time)
		monitoring.Diagf("[occupancy] EXIT id=%s y=%.1f matched=%t dwell=%ds", obs.TrackID, obs.CenterY, matched, visit.DwellSeconds)
		if matched {
			visit.SessionID = e.cfg.SessionID
			for _, s := range e.sinks {
				s.RecordVisit(visit)
			}
		}
		if e.cfg.ActivityAlerts {
			e.appendAlert(exitAlert(obs.TrackID, obs.Time, visit.DwellSeconds, matched))
		}
	}

	e.state.SetCounters(e.agg.Apply(kind), obs.Time)
	e.CheckOvercrowding(obs.Time)
	return ev, true
}

// CheckOvercrowding appends a critical alert if the current occupancy is
// at or over the threshold. Every call that finds the condition true
// appends a new alert.
func (e *Engine) CheckOvercrowding(at time.Time) bool {
	c := e.agg.Counters()
	if !Overcrowded(c, e.cfg.OvercrowdThreshold) {
		return false
	}
	monitoring.Opsf("[occupancy] overcrowding: %d inside, limit %d", c.CurrentInside, e.cfg.OvercrowdThreshold)
	e.appendAlert(overcrowdAlert(c.CurrentInside, e.cfg.OvercrowdThreshold, at))
	return true
}

// EvictStale drops the position history of tracks not seen within the
// configured TTL. Tracks with an open visit are kept so their EXIT can
// still be paired.
func (e *Engine) EvictStale(now time.Time) int {
	if e.cfg.HistoryTTL <= 0 {
		return 0
	}
	n := e.crossings.Evict(now.Add(-e.cfg.HistoryTTL), e.dwell.IsOpen)
	if n > 0 {
		monitoring.Tracef("[occupancy] evicted %d stale tracks, %d remain", n, e.crossings.Len())
	}
	return n
}

// Counters returns the engine's current totals.
func (e *Engine) Counters() Counters {
	return e.agg.Counters()
}

// EngineStats describes the size of the per-track state.
type EngineStats struct {
	Tracks     int `json:"tracks"`
	OpenVisits int `json:"open_visits"`
}

// Stats returns the per-track state sizes. Call it from the writer
// goroutine only.
func (e *Engine) Stats() EngineStats {
	return EngineStats{Tracks: e.crossings.Len(), OpenVisits: e.dwell.Open()}
}

func (e *Engine) appendAlert(a Alert) {
	e.state.AppendAlert(a)
	for _, s := range e.sinks {
		if as, ok := s.(AlertSink); ok {
			as.RecordAlert(a)
		}
	}
}
