package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/occupancy.report/internal/occupancy"
)

const namespace = "occupancy"

// Collector exposes the shared metrics and pipeline counters. Values are
// read at scrape time, so the analytics path does no extra work.
type Collector struct {
	state *occupancy.State
	bcast *Broadcaster
	stats func() PipelineStats

	countIn, countOut, inside, alerts, health        *prometheus.Desc
	framesSeen, framesProcessed, framesSkipped       *prometheus.Desc
	perceptionErrors, crossings, tracks, openVisits  *prometheus.Desc
	framesOverwritten, written, writeFailed, dropped *prometheus.Desc
	subscribers                                      *prometheus.Desc
}

// NewCollector returns a collector over state, bcast and stats.
func NewCollector(state *occupancy.State, bcast *Broadcaster, stats func() PipelineStats) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		state: state,
		bcast: bcast,
		stats: stats,

		countIn:  desc("entries_total", "Line crossings in the entry direction."),
		countOut: desc("exits_total", "Line crossings in the exit direction."),
		inside:   desc("current_inside", "Entries minus exits."),
		alerts:   desc("alert_log_entries", "Alerts held in the bounded log."),
		health:   desc("subsystem_online", "1 when the subsystem is online.", "subsystem", "state"),

		framesSeen:       desc("frames_seen_total", "Frames taken from the capture slot."),
		framesProcessed:  desc("frames_processed_total", "Frames passed to perception."),
		framesSkipped:    desc("frames_skipped_total", "Frames dropped by decimation."),
		perceptionErrors: desc("perception_errors_total", "Perception failures."),
		crossings:        desc("crossings_total", "Crossing events emitted."),
		tracks:           desc("tracked_identities", "Identities in position history."),
		openVisits:       desc("open_visits", "Entries not yet matched by an exit."),

		framesOverwritten: desc("capture_frames_overwritten_total", "Frames replaced before the scheduler took them."),
		written:           desc("persistence_written_total", "Rows written by the persistence writer."),
		writeFailed:       desc("persistence_failed_total", "Rows whose insert failed."),
		dropped:           desc("persistence_dropped_total", "Rows dropped on a full or closed queue."),
		subscribers:       desc("push_subscribers", "Connected WebSocket and SSE clients."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.countIn, c.countOut, c.inside, c.alerts, c.health,
		c.framesSeen, c.framesProcessed, c.framesSkipped,
		c.perceptionErrors, c.crossings, c.tracks, c.openVisits,
		c.framesOverwritten, c.written, c.writeFailed, c.dropped,
		c.subscribers,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.state.Snapshot()
	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	counter(c.countIn, float64(snap.CountIn))
	counter(c.countOut, float64(snap.CountOut))
	gauge(c.inside, float64(snap.CurrentInside))
	gauge(c.alerts, float64(len(snap.Alerts)))
	for sub, h := range snap.SystemStatus {
		v := 0.0
		if h == occupancy.HealthOnline {
			v = 1
		}
		gauge(c.health, v, string(sub), string(h))
	}

	st := c.stats()
	counter(c.framesSeen, float64(st.Scheduler.FramesSeen))
	counter(c.framesProcessed, float64(st.Scheduler.FramesProcessed))
	counter(c.framesSkipped, float64(st.Scheduler.FramesSkipped))
	counter(c.perceptionErrors, float64(st.Scheduler.PerceptionErrors))
	counter(c.crossings, float64(st.Scheduler.Crossings))
	gauge(c.tracks, float64(st.Scheduler.Tracks))
	gauge(c.openVisits, float64(st.Scheduler.OpenVisits))
	counter(c.framesOverwritten, float64(st.Capture.Overwritten))
	counter(c.written, float64(st.Writer.Written))
	counter(c.writeFailed, float64(st.Writer.Failed))
	counter(c.dropped, float64(st.Writer.Dropped))
	gauge(c.subscribers, float64(c.bcast.Stats().Subscribers))
}

func (s *Server) metricsHandler() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(s.state, s.bcast, s.stats))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
