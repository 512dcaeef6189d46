package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/occupancy.report/internal/httputil"
	"github.com/banshee-data/occupancy.report/internal/monitoring"
	"github.com/banshee-data/occupancy.report/internal/report"
)

// chartHours is the default window for /charts and the dwell histogram.
const chartHours = 24

// chartWindow reads ?hours=N (1..168).
func chartWindow(r *http.Request) (int, error) {
	v := r.URL.Query().Get("hours")
	if v == "" {
		return chartHours, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 168 {
		return 0, errors.New("hours must be between 1 and 168")
	}
	return n, nil
}

// showCharts renders the live counters and the hourly visit trend.
func (s *Server) showCharts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	hours, err := chartWindow(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	snap := s.state.Snapshot()
	var trend []report.HourBucket
	var summary report.DwellSummary
	if s.history != nil {
		now := s.clock.Now().In(s.loc)
		start := s.hourStart(now.Add(-time.Duration(hours-1) * time.Hour))
		visits, err := s.history.VisitsSince(r.Context(), start)
		if err != nil {
			monitoring.Opsf("[api] charts: %v", err)
		} else {
			trend = report.HourlyTrend(visits, start, now)
			summary = report.Summarize(visits)
		}
	}

	var buf bytes.Buffer
	if err := report.OccupancyPage(&buf, snap.Counters, trend, summary); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// showDwellHistogram renders a PNG histogram of recent dwell times.
func (s *Server) showDwellHistogram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	hours, err := chartWindow(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if s.history == nil {
		s.persistenceOffline(w, "persistence offline")
		return
	}

	since := s.clock.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	visits, err := s.history.VisitsSince(r.Context(), since)
	if err != nil {
		monitoring.Opsf("[api] dwell histogram: %v", err)
		s.persistenceOffline(w, "history unavailable")
		return
	}

	var buf bytes.Buffer
	if err := report.DwellHistogramPNG(&buf, visits, 0); err != nil {
		if errors.Is(err, report.ErrNoVisits) {
			httputil.WriteJSONError(w, http.StatusNotFound, "no visits in window")
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
