// Package api is the HTTP transport: the poll endpoint, WebSocket and SSE
// push, visit history, charts and Prometheus metrics.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/cors"

	"github.com/banshee-data/occupancy.report/internal/capture"
	"github.com/banshee-data/occupancy.report/internal/config"
	"github.com/banshee-data/occupancy.report/internal/db"
	"github.com/banshee-data/occupancy.report/internal/httputil"
	"github.com/banshee-data/occupancy.report/internal/monitoring"
	"github.com/banshee-data/occupancy.report/internal/occupancy"
	"github.com/banshee-data/occupancy.report/internal/pipeline"
	"github.com/banshee-data/occupancy.report/internal/report"
	"github.com/banshee-data/occupancy.report/internal/timeutil"
	"github.com/banshee-data/occupancy.report/internal/version"
)

const (
	// dwellHistoryLen is how many recent dwell times /history returns.
	dwellHistoryLen = 20
	// trendHours is the width of the /history customer trend.
	trendHours = 8
	// percentileWindow bounds the visits the dwell percentiles cover.
	percentileWindow = 500
	// defaultEventLimit and maxEventLimit bound /api/events.
	defaultEventLimit = 50
	maxEventLimit     = 1000
)

// History is the read side of the persistence adapter. *db.DB implements
// it.
type History interface {
	Summary(ctx context.Context) (db.VisitSummary, error)
	RecentVisits(ctx context.Context, limit int) ([]occupancy.CompletedVisit, error)
	VisitsSince(ctx context.Context, since time.Time) ([]occupancy.CompletedVisit, error)
	RecentEvents(ctx context.Context, limit int) ([]occupancy.CrossingEvent, error)
}

// PipelineStats gathers the producer-side counters for /api/status and
// /metrics.
type PipelineStats struct {
	Scheduler pipeline.Stats    `json:"scheduler"`
	Capture   capture.SlotStats `json:"capture"`
	Writer    db.WriterStats    `json:"writer"`
}

// Options configures a Server. State is required; a nil History means
// persistence is offline.
type Options struct {
	State          *occupancy.State
	History        History
	Broadcaster    *Broadcaster
	Clock          timeutil.Clock
	Stats          func() PipelineStats
	Config         interface{}
	AllowedOrigins []string
	Location       *time.Location // hourly trend buckets; nil is UTC
}

// Server serves the HTTP API.
type Server struct {
	state   *occupancy.State
	history History
	bcast   *Broadcaster
	clock   timeutil.Clock
	stats   func() PipelineStats
	config  interface{}
	origins []string
	loc     *time.Location
	started time.Time
}

// NewServer returns a server for opts.
func NewServer(opts Options) *Server {
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	bcast := opts.Broadcaster
	if bcast == nil {
		bcast = NewBroadcaster(opts.State, time.Second, clock)
	}
	stats := opts.Stats
	if stats == nil {
		stats = func() PipelineStats { return PipelineStats{} }
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Server{
		state:   opts.State,
		history: opts.History,
		bcast:   bcast,
		clock:   clock,
		stats:   stats,
		config:  opts.Config,
		origins: origins,
		loc:     loc,
		started: clock.Now(),
	}
}

// ServeMux registers every route on a new mux.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/stats", s.showStats)
	mux.HandleFunc("/history", s.showHistory)
	mux.HandleFunc("/ws", s.serveWebSocket)
	mux.HandleFunc("/api/stream", s.serveStream)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/charts", s.showCharts)
	mux.HandleFunc("/api/charts/dwell.png", s.showDwellHistogram)
	mux.Handle("/metrics", s.metricsHandler())
	return mux
}

// Handler wraps mux with CORS and request logging. Browser dashboards on
// other origins poll /stats and /history.
func (s *Server) Handler(mux http.Handler) http.Handler {
	withCORS := cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})
	return LoggingMiddleware(withCORS(mux))
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.state.Snapshot())
}

type historyResponse struct {
	TotalCustomers int64   `json:"total_customers"`
	AvgDwell       float64 `json:"avg_dwell"`
	MaxDwell       int64   `json:"max_dwell"`
	P50Dwell       float64 `json:"p50_dwell"`
	P85Dwell       float64 `json:"p85_dwell"`
	DwellHistory   []int64 `json:"dwell_history"`
	CustomerTrend  []int   `json:"customer_trend"`
}

func (s *Server) persistenceOffline(w http.ResponseWriter, msg string) {
	httputil.ServiceUnavailable(w, msg, map[string]string{
		string(occupancy.SubsystemDatabase): string(occupancy.HealthOffline),
	})
}

func (s *Server) showHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.history == nil {
		s.persistenceOffline(w, "persistence offline")
		return
	}

	ctx := r.Context()
	summary, err := s.history.Summary(ctx)
	if err != nil {
		monitoring.Opsf("[api] history summary: %v", err)
		s.persistenceOffline(w, "history unavailable")
		return
	}
	recent, err := s.history.RecentVisits(ctx, percentileWindow)
	if err != nil {
		monitoring.Opsf("[api] history recent visits: %v", err)
		s.persistenceOffline(w, "history unavailable")
		return
	}
	now := s.clock.Now().In(s.loc)
	start := s.hourStart(now.Add(-(trendHours - 1) * time.Hour))
	window, err := s.history.VisitsSince(ctx, start)
	if err != nil {
		monitoring.Opsf("[api] history trend: %v", err)
		s.persistenceOffline(w, "history unavailable")
		return
	}

	dwell := report.Summarize(recent)
	resp := historyResponse{
		TotalCustomers: summary.Total,
		AvgDwell:       summary.AvgDwell,
		MaxDwell:       summary.MaxDwell,
		P50Dwell:       dwell.Median,
		P85Dwell:       dwell.P85,
		DwellHistory:   make([]int64, 0, dwellHistoryLen),
		CustomerTrend:  make([]int, 0, trendHours),
	}
	// recent is newest first; the response is oldest first.
	n := len(recent)
	if n > dwellHistoryLen {
		n = dwellHistoryLen
	}
	for i := n - 1; i >= 0; i-- {
		resp.DwellHistory = append(resp.DwellHistory, recent[i].DwellSeconds)
	}
	for _, b := range report.HourlyTrend(window, start, now) {
		resp.CustomerTrend = append(resp.CustomerTrend, b.Visits)
	}
	httputil.WriteJSONOK(w, resp)
}

type statusResponse struct {
	Version       string                                   `json:"version"`
	UptimeSeconds float64                                  `json:"uptime_seconds"`
	SystemStatus  map[occupancy.Subsystem]occupancy.Health `json:"system_status"`
	Broadcast     BroadcastStats                           `json:"broadcast"`
	PipelineStats
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, statusResponse{
		Version:       version.String(),
		UptimeSeconds: s.clock.Since(s.started).Seconds(),
		SystemStatus:  s.state.Snapshot().SystemStatus,
		Broadcast:     s.bcast.Stats(),
		PipelineStats: s.stats(),
	})
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.config == nil {
		httputil.WriteJSONError(w, http.StatusNotFound, "no configuration loaded")
		return
	}
	cfg := s.config
	if c, ok := cfg.(*config.Config); ok && c != nil {
		cfg = c.Redacted()
	}
	httputil.WriteJSONOK(w, cfg)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxEventLimit {
			httputil.BadRequest(w, "limit must be between 1 and "+strconv.Itoa(maxEventLimit))
			return
		}
		limit = n
	}
	if s.history == nil {
		s.persistenceOffline(w, "persistence offline")
		return
	}
	events, err := s.history.RecentEvents(r.Context(), limit)
	if err != nil {
		monitoring.Opsf("[api] list events: %v", err)
		s.persistenceOffline(w, "events unavailable")
		return
	}
	if events == nil {
		events = []occupancy.CrossingEvent{}
	}
	httputil.WriteJSONOK(w, events)
}

// hourStart returns the start of t's wall-clock hour in the server's
// location.
func (s *Server) hourStart(t time.Time) time.Time {
	t = t.In(s.loc)
	return t.Add(-time.Duration(t.Minute())*time.Minute -
		time.Duration(t.Second())*time.Second -
		time.Duration(t.Nanosecond()))
}
