package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/occupancy.report/internal/occupancy"
)

// VisitSummary aggregates every stored visit.
type VisitSummary struct {
	Total    int64
	AvgDwell float64
	MaxDwell int64
}

// Summary returns the visit count and the mean and maximum dwell.
func (db *DB) Summary(ctx context.Context) (VisitSummary, error) {
	var (
		s        VisitSummary
		avgDwell sql.NullFloat64
		maxDwell sql.NullInt64
	)
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(dwell_time), MAX(dwell_time) FROM customers`).Scan(&s.Total, &avgDwell, &maxDwell)
	if err != nil {
		return VisitSummary{}, fmt.Errorf("summarise visits: %w", err)
	}
	s.AvgDwell = avgDwell.Float64
	s.MaxDwell = maxDwell.Int64
	return s, nil
}

// RecentVisits returns up to limit visits, newest exit first.
func (db *DB) RecentVisits(ctx context.Context, limit int) ([]occupancy.CompletedVisit, error) {
	return db.queryVisits(ctx,
		`SELECT track_id, entry_time, exit_time, dwell_time, session_id FROM customers ORDER BY exit_time DESC, id DESC LIMIT ?`,
		limit)
}

// VisitsSince returns visits that ended at or after since, oldest first.
func (db *DB) VisitsSince(ctx context.Context, since time.Time) ([]occupancy.CompletedVisit, error) {
	return db.queryVisits(ctx,
		`SELECT track_id, entry_time, exit_time, dwell_time, session_id FROM customers WHERE exit_time >= ? ORDER BY exit_time, id`,
		dbTime(since))
}

func (db *DB) queryVisits(ctx context.Context, query string, args ...interface{}) ([]occupancy.CompletedVisit, error) {
	rows, err := db.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query visits: %w", err)
	}
	defer rows.Close()

	var visits []occupancy.CompletedVisit
	for rows.Next() {
		var (
			v       occupancy.CompletedVisit
			id      string
			session sql.NullString
		)
		if err := rows.Scan(&id, &v.EntryTime, &v.ExitTime, &v.DwellSeconds, &session); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		v.TrackID = occupancy.TrackID(id)
		v.SessionID = session.String
		visits = append(visits, v)
	}
	return visits, rows.Err()
}
