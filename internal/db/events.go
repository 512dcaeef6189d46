package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/occupancy.report/internal/occupancy"
)

// dbTime normalises timestamps so both backends store the same instant
// at the same precision.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// InsertEvent stores one crossing with the time it happened.
func (db *DB) InsertEvent(ctx context.Context, ev occupancy.CrossingEvent) error {
	_, err := db.ExecContext(ctx, db.rebind(
		`INSERT INTO events (track_id, event_type, timestamp, session_id) VALUES (?, ?, ?, ?)`),
		string(ev.TrackID), string(ev.Kind), dbTime(ev.Time), nullString(ev.SessionID))
	if err != nil {
		return fmt.Errorf("insert event %s %s: %w", ev.Kind, ev.TrackID, err)
	}
	return nil
}

// InsertVisit stores one completed visit.
func (db *DB) InsertVisit(ctx context.Context, v occupancy.CompletedVisit) error {
	_, err := db.ExecContext(ctx, db.rebind(
		`INSERT INTO customers (track_id, entry_time, exit_time, dwell_time, session_id) VALUES (?, ?, ?, ?, ?)`),
		string(v.TrackID), dbTime(v.EntryTime), dbTime(v.ExitTime), v.DwellSeconds, nullString(v.SessionID))
	if err != nil {
		return fmt.Errorf("insert visit %s: %w", v.TrackID, err)
	}
	return nil
}

// RecentEvents returns up to limit events, newest first.
func (db *DB) RecentEvents(ctx context.Context, limit int) ([]occupancy.CrossingEvent, error) {
	rows, err := db.QueryContext(ctx, db.rebind(
		`SELECT track_id, event_type, timestamp, session_id FROM events ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []occupancy.CrossingEvent
	for rows.Next() {
		var (
			ev      occupancy.CrossingEvent
			id      string
			kind    string
			session sql.NullString
		)
		if err := rows.Scan(&id, &kind, &ev.Time, &session); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.TrackID = occupancy.TrackID(id)
		ev.Kind = occupancy.CrossingKind(kind)
		ev.SessionID = session.String
		events = append(events, ev)
	}
	return events, rows.Err()
}
