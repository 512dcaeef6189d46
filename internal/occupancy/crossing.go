package occupancy

import "time"

// Classify compares two consecutive vertical centres against the line.
// It reports Entry for prev < line < curr, Exit for prev > line > curr,
// and false for anything else, including a centre exactly on the line.
func Classify(prev, curr, line float64) (CrossingKind, bool) {
	switch {
	case prev < line && curr > line:
		return Entry, true
	case prev > line && curr < line:
		return Exit, true
	}
	return "", false
}

type position struct {
	centerY  float64
	lastSeen time.Time
}

// CrossingDetector holds the last known vertical centre of every track and
// emits at most one crossing per observation.
type CrossingDetector struct {
	line    float64
	history map[TrackID]position
}

// NewCrossingDetector returns a detector for a horizontal line at line.
func NewCrossingDetector(line float64) *CrossingDetector {
	return &CrossingDetector{
		line:    line,
		history: make(map[TrackID]position),
	}
}

// Update classifies obs against the previous position of the same track
// and then records obs as the new position. A track's first observation
// never produces a crossing.
func (d *CrossingDetector) Update(obs Observation) (CrossingKind, bool) {
	prev, seen := d.history[obs.TrackID]
	d.history[obs.TrackID] = position{centerY: obs.CenterY, lastSeen: obs.Time}
	if !seen {
		return "", false
	}
	return Classify(prev.centerY, obs.CenterY, d.line)
}

// Position returns the last recorded centre for id.
func (d *CrossingDetector) Position(id TrackID) (float64, bool) {
	p, ok := d.history[id]
	return p.centerY, ok
}

// Evict forgets tracks last seen before cutoff, except those for which
// keep returns true. It returns the number of tracks removed.
func (d *CrossingDetector) Evict(cutoff time.Time, keep func(TrackID) bool) int {
	removed := 0
	for id, p := range d.history {
		if !p.lastSeen.Before(cutoff) {
			continue
		}
		if keep != nil && keep(id) {
			continue
		}
		delete(d.history, id)
		removed++
	}
	return removed
}

// Len returns the number of tracks with a recorded position.
func (d *CrossingDetector) Len() int {
	return len(d.history)
}
