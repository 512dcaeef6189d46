// Package pipeline runs the analytics hot path: it takes the newest frame
// from the capture slot, keeps every Nth, runs perception and feeds the
// confirmed tracks to the occupancy engine. The scheduler goroutine is the
// only writer of engine state.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/retry"

	"github.com/banshee-data/occupancy.report/internal/capture"
	"github.com/banshee-data/occupancy.report/internal/monitoring"
	"github.com/banshee-data/occupancy.report/internal/occupancy"
	"github.com/banshee-data/occupancy.report/internal/perception"
	"github.com/banshee-data/occupancy.report/internal/timeutil"
)

// Config controls frame decimation and idle back-off.
type Config struct {
	ProcessEveryN           int           // Keep one frame in N
	FrameHeight             int           // Height the counting line is expressed in
	RetryFloor              time.Duration // First wait when no frame is ready
	RetryCeil               time.Duration // Longest wait when no frame is ready
	OvercrowdCheckEachFrame bool          // Also run the overcrowding check once per processed frame
}

// DefaultConfig matches the deployment defaults.
func DefaultConfig() Config {
	return Config{
		ProcessEveryN: 3,
		FrameHeight:   480,
		RetryFloor:    10 * time.Millisecond,
		RetryCeil:     250 * time.Millisecond,
	}
}

// Stats are scheduler counters, safe to read from any goroutine.
type Stats struct {
	FramesSeen       uint64 `json:"frames_seen"`
	FramesProcessed  uint64 `json:"frames_processed"`
	FramesSkipped    uint64 `json:"frames_skipped"`
	PerceptionErrors uint64 `json:"perception_errors"`
	Observations     uint64 `json:"observations"`
	Crossings        uint64 `json:"crossings"`
	Tracks           int64  `json:"tracks"`
	OpenVisits       int64  `json:"open_visits"`
}

// Scheduler owns the analytics loop.
type Scheduler struct {
	cfg       Config
	slot      *capture.Slot
	perceiver perception.Pipeline
	engine    *occupancy.Engine
	clock     timeutil.Clock

	seen, processed, skipped, perceptionErrors atomic.Uint64
	observations, crossings                    atomic.Uint64
	tracks, openVisits                         atomic.Int64

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewScheduler wires a scheduler. The engine's State receives camera and
// AI health as well as the analytics results.
func NewScheduler(cfg Config, slot *capture.Slot, perceiver perception.Pipeline, engine *occupancy.Engine, clock timeutil.Clock) *Scheduler {
	if cfg.ProcessEveryN < 1 {
		cfg.ProcessEveryN = 1
	}
	if cfg.RetryFloor <= 0 {
		cfg.RetryFloor = DefaultConfig().RetryFloor
	}
	if cfg.RetryCeil < cfg.RetryFloor {
		cfg.RetryCeil = cfg.RetryFloor
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Scheduler{
		cfg:       cfg,
		slot:      slot,
		perceiver: perceiver,
		engine:    engine,
		clock:     clock,
		done:      make(chan struct{}),
	}
}

// Start launches the analytics loop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.engine.State().SetHealth(occupancy.SubsystemAI, occupancy.HealthOnline)
	monitoring.Diagf("[pipeline] scheduler started every_n=%d frame_height=%d", s.cfg.ProcessEveryN, s.cfg.FrameHeight)
	go s.run(ctx)
}

// Stop ends the loop and waits for it. The frame being processed, if any,
// is finished first.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
			<-s.done
		}
	})
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	idle := retry.New(s.cfg.RetryFloor, s.cfg.RetryCeil)
	for {
		s.syncCameraHealth()
		frame, ok := s.slot.Take()
		if !ok {
			if !idle.Wait(ctx) {
				return
			}
			continue
		}
		idle.Reset()

		if err := s.Offer(ctx, frame); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Diagf("[pipeline] frame seq=%d: %v", frame.Seq, err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Offer counts a frame and processes it if it is the Nth since the last
// one kept. Frames are counted from 1, so with N=3 the 3rd, 6th, ... are
// processed.
func (s *Scheduler) Offer(ctx context.Context, frame capture.Frame) error {
	n := s.seen.Add(1)
	if n%uint64(s.cfg.ProcessEveryN) != 0 {
		s.skipped.Add(1)
		return nil
	}
	return s.ProcessFrame(ctx, frame)
}

// ProcessFrame runs perception on frame and feeds every confirmed track
// to the engine in order.
func (s *Scheduler) ProcessFrame(ctx context.Context, frame capture.Frame) error {
	state := s.engine.State()
	entities, err := s.perceiver.Process(ctx, frame)
	if err != nil {
		s.perceptionErrors.Add(1)
		if state.SetHealth(occupancy.SubsystemAI, occupancy.HealthOffline) {
			monitoring.Opsf("[pipeline] perception failing: %v", err)
		}
		return err
	}
	if state.SetHealth(occupancy.SubsystemAI, occupancy.HealthOnline) {
		monitoring.Diagf("[pipeline] perception recovered")
	}

	at := frame.Captured
	if at.IsZero() {
		at = s.clock.Now()
	}
	confirmed := perception.Confirmed(entities)
	for _, obs := range perception.Observations(confirmed, at, frame.Height, s.cfg.FrameHeight) {
		s.observations.Add(1)
		if _, crossed := s.engine.Observe(obs); crossed {
			s.crossings.Add(1)
		}
	}
	if s.cfg.OvercrowdCheckEachFrame {
		s.engine.CheckOvercrowding(at)
	}
	s.engine.EvictStale(at)

	es := s.engine.Stats()
	s.tracks.Store(int64(es.Tracks))
	s.openVisits.Store(int64(es.OpenVisits))
	s.processed.Add(1)
	monitoring.Tracef("[pipeline] frame seq=%d entities=%d confirmed=%d", frame.Seq, len(entities), len(confirmed))
	return nil
}

// Stats returns a copy of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		FramesSeen:       s.seen.Load(),
		FramesProcessed:  s.processed.Load(),
		FramesSkipped:    s.skipped.Load(),
		PerceptionErrors: s.perceptionErrors.Load(),
		Observations:     s.observations.Load(),
		Crossings:        s.crossings.Load(),
		Tracks:           s.tracks.Load(),
		OpenVisits:       s.openVisits.Load(),
	}
}

func (s *Scheduler) syncCameraHealth() {
	h := cameraHealth(s.slot.Status())
	if s.engine.State().SetHealth(occupancy.SubsystemCamera, h) {
		monitoring.Diagf("[pipeline] camera %s", h)
	}
}

func cameraHealth(st capture.Status) occupancy.Health {
	switch st {
	case capture.StatusOnline:
		return occupancy.HealthOnline
	case capture.StatusStalled:
		return occupancy.HealthStalled
	default:
		return occupancy.HealthOffline
	}
}
