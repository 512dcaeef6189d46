// Command occupancy counts people crossing a line in a camera's view and
// serves live occupancy, dwell history and alerts over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/occupancy.report/internal/config"
	"github.com/banshee-data/occupancy.report/internal/monitoring"
	"github.com/banshee-data/occupancy.report/internal/version"
)

var (
	configPath    = flag.String("config", "", "Path to a .json or .yaml config file")
	listen        = flag.String("listen", "", "Listen address (overrides config)")
	devMode       = flag.Bool("dev", false, "Replay a fixture instead of using a camera and tracker")
	fixturePath   = flag.String("fixture", "", "Fixture file for -dev (JSON lines)")
	frameInterval = flag.Duration("frame-interval", 33*time.Millisecond, "Replay pacing in -dev mode")
	loopFixture   = flag.Bool("loop", true, "Restart the fixture when it ends")
	trace         = flag.Bool("trace", false, "Enable per-frame trace logging")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func loadConfig() (*config.Config, error) {
	cfg := &config.Config{}
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if *listen != "" {
		cfg.Listen = listen
	}
	return cfg, nil
}

func main() {
	flag.Parse()

	if *showVersion {
		log.Printf("occupancy %s", version.String())
		return
	}

	var traceW io.Writer
	if *trace {
		traceW = os.Stderr
	}
	monitoring.SetLogWriters(os.Stderr, os.Stderr, traceW)

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appOptions{
		Config:        cfg,
		DevMode:       *devMode,
		FixturePath:   *fixturePath,
		FrameInterval: *frameInterval,
		Loop:          *loopFixture,
	})
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	if err := a.start(ctx); err != nil {
		a.stop()
		log.Fatalf("startup: %v", err)
	}
	log.Printf("started %s (%s)", a, version.String())

	server := &http.Server{
		Addr:              cfg.GetListen(),
		Handler:           a.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")

	// Workers first so the writer drains, then close push clients and the
	// listener.
	a.stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
