package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/occupancy.report/internal/api"
	"github.com/banshee-data/occupancy.report/internal/capture"
	"github.com/banshee-data/occupancy.report/internal/config"
	"github.com/banshee-data/occupancy.report/internal/db"
	"github.com/banshee-data/occupancy.report/internal/emitter"
	"github.com/banshee-data/occupancy.report/internal/httputil"
	"github.com/banshee-data/occupancy.report/internal/monitoring"
	"github.com/banshee-data/occupancy.report/internal/occupancy"
	"github.com/banshee-data/occupancy.report/internal/perception"
	"github.com/banshee-data/occupancy.report/internal/pipeline"
	"github.com/banshee-data/occupancy.report/internal/timeutil"
)

// trackerTimeout bounds one call to the remote tracker.
const trackerTimeout = 2 * time.Second

// appOptions selects the frame source and perception stage.
type appOptions struct {
	Config        *config.Config
	DevMode       bool          // replay a fixture instead of camera + tracker
	FixturePath   string        // fixture for DevMode
	FrameInterval time.Duration // replay pacing
	Loop          bool          // restart the fixture when it ends
	Clock         timeutil.Clock
	HTTPClient    httputil.HTTPClient
}

// app holds every long-lived component of the service.
type app struct {
	cfg       *config.Config
	sessionID string
	clock     timeutil.Clock

	state   *occupancy.State
	engine  *occupancy.Engine
	slot    *capture.Slot
	worker  *capture.Worker
	sched   *pipeline.Scheduler
	bcast   *api.Broadcaster
	server  *api.Server
	store   *db.DB // nil when persistence is offline
	writer  *db.Writer
	emitter *emitter.MQTTEmitter

	forwardDone chan struct{}
}

// newApp builds the component graph. Persistence and MQTT failures
// degrade the service; a bad frame source configuration is an error.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	src, perceiver, err := buildFrontEnd(cfg, opts, clock)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		sessionID: uuid.NewString(),
		clock:     clock,
		state:     occupancy.NewState(),
		slot:      capture.NewSlot(),
	}
	a.engine = occupancy.NewEngine(occupancy.Config{
		LinePosition:       cfg.GetLinePosition(),
		OvercrowdThreshold: cfg.GetOvercrowdThreshold(),
		HistoryTTL:         cfg.GetTrackHistoryTTL(),
		ActivityAlerts:     cfg.GetActivityAlerts(),
		SessionID:          a.sessionID,
	}, a.state)

	a.connectPersistence(ctx)
	a.connectMQTT(ctx)

	a.worker = capture.NewWorker(src, a.slot, clock)
	a.sched = pipeline.NewScheduler(pipeline.Config{
		ProcessEveryN:           cfg.GetProcessEveryNFrames(),
		FrameHeight:             cfg.GetFrameHeight(),
		RetryFloor:              cfg.GetFrameRetryFloor(),
		RetryCeil:               cfg.GetFrameRetryCeil(),
		OvercrowdCheckEachFrame: cfg.GetOvercrowdCheckEachFrame(),
	}, a.slot, perceiver, a.engine, clock)
	a.bcast = api.NewBroadcaster(a.state, cfg.GetBroadcastInterval(), clock)

	var history api.History
	if a.store != nil {
		history = a.store
	}
	a.server = api.NewServer(api.Options{
		State:       a.state,
		History:     history,
		Broadcaster: a.bcast,
		Clock:       clock,
		Stats:       a.stats,
		Config:      cfg,
		Location:    cfg.GetLocation(),
	})
	return a, nil
}

func buildFrontEnd(cfg *config.Config, opts appOptions, clock timeutil.Clock) (capture.Source, perception.Pipeline, error) {
	if opts.DevMode {
		if opts.FixturePath == "" {
			return nil, nil, errors.New("-dev requires -fixture")
		}
		src := capture.NewReplaySource(opts.FixturePath, opts.FrameInterval, clock)
		src.Loop = opts.Loop
		src.Width, src.Height = cfg.GetFrameWidth(), cfg.GetFrameHeight()
		return src, perception.Replay{}, nil
	}
	if cfg.GetCameraURL() == "" {
		return nil, nil, errors.New("camera_url is required outside dev mode")
	}
	if cfg.GetTrackerURL() == "" {
		return nil, nil, errors.New("tracker_url is required outside dev mode")
	}
	src := capture.NewSnapshotSource(cfg.GetCameraURL(), cfg.GetSnapshotInterval(), opts.HTTPClient, clock)
	return src, perception.NewRemote(cfg.GetTrackerURL(), trackerTimeout, cfg.GetConfidenceThreshold(), opts.HTTPClient), nil
}

// connectPersistence opens the store. On failure the service runs
// memory-only and the database is reported offline.
func (a *app) connectPersistence(ctx context.Context) {
	store, err := db.Connect(ctx, a.cfg.GetDBURL())
	if err != nil {
		a.state.SetHealth(occupancy.SubsystemDatabase, occupancy.HealthOffline)
		monitoring.Opsf("[main] persistence unavailable, running memory-only: %v", err)
		return
	}
	a.store = store
	a.writer = db.NewWriter(store, a.cfg.GetPersistQueueSize())
	a.engine.AddSink(a.writer)
	a.state.SetHealth(occupancy.SubsystemDatabase, occupancy.HealthOnline)
	monitoring.Opsf("[main] persistence online: %s", store.Label())
}

// connectMQTT attaches the MQTT emitter when a broker is configured.
func (a *app) connectMQTT(ctx context.Context) {
	broker := a.cfg.GetMQTTBroker()
	if broker == "" {
		return
	}
	em := emitter.New(emitter.Options{
		Broker:      broker,
		ClientID:    a.cfg.GetMQTTClientID(),
		TopicPrefix: a.cfg.GetMQTTTopicPrefix(),
	})
	if err := em.Connect(ctx); err != nil {
		monitoring.Opsf("[main] mqtt disabled: %v", err)
		em.Close()
		return
	}
	a.emitter = em
	a.engine.AddSink(em)
}

// start opens the frame source and launches every worker. A frame
// source that cannot be opened is fatal.
func (a *app) start(ctx context.Context) error {
	if err := a.worker.Start(ctx); err != nil {
		return err
	}
	if a.writer != nil {
		a.writer.Start()
	}
	a.sched.Start(ctx)
	a.bcast.Start()

	if a.emitter != nil {
		id, ch := a.bcast.Subscribe()
		a.forwardDone = make(chan struct{})
		go func() {
			defer close(a.forwardDone)
			defer a.bcast.Unsubscribe(id)
			a.emitter.Forward(ctx, ch)
		}()
	}
	monitoring.Opsf("[main] session %s started", a.sessionID)
	return nil
}

// stop shuts the workers down producer first, so every event the
// scheduler emits reaches the writer before it drains.
func (a *app) stop() {
	a.sched.Stop()
	a.worker.Stop()
	if a.writer != nil {
		a.writer.Close()
	}
	a.bcast.Stop()
	if a.forwardDone != nil {
		<-a.forwardDone
	}
	if a.emitter != nil {
		a.emitter.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			monitoring.Opsf("[main] close store: %v", err)
		}
	}
}

// handler returns the HTTP API, plus admin debug routes when the store
// supports them.
func (a *app) handler() http.Handler {
	mux := a.server.ServeMux()
	if a.store != nil {
		if err := a.store.AttachAdminRoutes(mux); err != nil {
			monitoring.Diagf("[main] admin routes: %v", err)
		}
	}
	return a.server.Handler(mux)
}

func (a *app) stats() api.PipelineStats {
	st := api.PipelineStats{
		Scheduler: a.sched.Stats(),
		Capture:   a.slot.Stats(),
	}
	if a.writer != nil {
		st.Writer = a.writer.Stats()
	}
	return st
}

func (a *app) String() string {
	return fmt.Sprintf("occupancy session=%s db=%s", a.sessionID, a.state.Health(occupancy.SubsystemDatabase))
}
