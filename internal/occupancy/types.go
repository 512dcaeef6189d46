package occupancy

import (
	"fmt"
	"time"
)

// TrackID is the opaque identity a tracker assigns to one person for the
// duration of a track.
type TrackID string

// Observation is one confirmed track's vertical centre at a point in time.
type Observation struct {
	TrackID TrackID
	CenterY float64
	Time    time.Time
}

// CrossingKind says which way a track crossed the counting line.
type CrossingKind string

const (
	Entry CrossingKind = "ENTRY"
	Exit  CrossingKind = "EXIT"
)

// CrossingEvent records a single line crossing.
type CrossingEvent struct {
	SessionID string       `json:"session_id,omitempty"`
	TrackID   TrackID      `json:"track_id"`
	Kind      CrossingKind `json:"event_type"`
	Time      time.Time    `json:"timestamp"`
}

// CompletedVisit is an ENTRY matched to a later EXIT of the same track.
type CompletedVisit struct {
	SessionID    string    `json:"session_id,omitempty"`
	TrackID      TrackID   `json:"track_id"`
	EntryTime    time.Time `json:"entry_time"`
	ExitTime     time.Time `json:"exit_time"`
	DwellSeconds int64     `json:"dwell_time"`
}

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityCritical Severity = "critical"
)

// Alert is a human-readable notice shown on the dashboard.
type Alert struct {
	Type    Severity  `json:"type"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

func entryAlert(id TrackID, at time.Time) Alert {
	return Alert{Type: SeverityInfo, Message: fmt.Sprintf("ID %s entered", id), Time: at}
}

func exitAlert(id TrackID, at time.Time, dwell int64, matched bool) Alert {
	if !matched {
		return Alert{Type: SeverityInfo, Message: fmt.Sprintf("ID %s exited", id), Time: at}
	}
	return Alert{Type: SeverityInfo, Message: fmt.Sprintf("ID %s exited after %ds", id, dwell), Time: at}
}

func overcrowdAlert(inside int64, threshold int, at time.Time) Alert {
	return Alert{
		Type:    SeverityCritical,
		Message: fmt.Sprintf("Overcrowding detected: %d inside (limit %d)", inside, threshold),
		Time:    at,
	}
}
