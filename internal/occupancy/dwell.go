package occupancy

import "time"

// DwellSeconds is the whole number of seconds between entry and exit,
// rounded down. A clock that stepped backwards yields zero.
func DwellSeconds(entry, exit time.Time) int64 {
	d := exit.Sub(entry)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// DwellTracker pairs ENTRY events with the next EXIT of the same track.
type DwellTracker struct {
	open map[TrackID]time.Time
}

// NewDwellTracker returns an empty tracker.
func NewDwellTracker() *DwellTracker {
	return &DwellTracker{open: make(map[TrackID]time.Time)}
}

// Enter opens a visit for id. A second ENTRY without an EXIT in between
// overwrites the first (last write wins).
func (t *DwellTracker) Enter(id TrackID, at time.Time) {
	t.open[id] = at
}

// Exit closes the open visit for id, if any. An EXIT with no open visit
// returns false and leaves no trace.
func (t *DwellTracker) Exit(id TrackID, at time.Time) (CompletedVisit, bool) {
	entered, ok := t.open[id]
	if !ok {
		return CompletedVisit{}, false
	}
	delete(t.open, id)
	return CompletedVisit{
		TrackID:      id,
		EntryTime:    entered,
		ExitTime:     at,
		DwellSeconds: DwellSeconds(entered, at),
	}, true
}

// IsOpen reports whether id has an open visit.
func (t *DwellTracker) IsOpen(id TrackID) bool {
	_, ok := t.open[id]
	return ok
}

// Open returns the number of open visits.
func (t *DwellTracker) Open() int {
	return len(t.open)
}
