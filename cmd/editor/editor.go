package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/banshee-data/trajectory.editor/internal/api"
	"github.com/banshee-data/trajectory.editor/internal/config"
	"github.com/banshee-data/trajectory.editor/internal/editor"
	"github.com/banshee-data/trajectory.editor/internal/httputil"
	"github.com/banshee-data/trajectory.editor/internal/monitoring"
	"github.com/banshee-data/trajectory.editor/internal/telemetry"
	"github.com/banshee-data/trajectory.editor/internal/timeutil"
	"github.com/banshee-data/trajectory.editor/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to the editor JSON config (defaults and TRAJ_* environment when empty)")
	listen      = flag.String("listen", "", "Listen address (overrides config)")
	backendURL  = flag.String("backend", "", "Trajectory backend base URL (overrides config)")
	assetsHost  = flag.String("assets-host", "", "Where chart pages load echarts from")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// newFeed picks the end-effector telemetry source. A nil feed means reading
// through the backend's key endpoint. The returned close func is never nil.
func newFeed(cfg *config.EditorConfig) (telemetry.Feed, func() error) {
	if cfg.Telemetry.Source != config.TelemetryRedis {
		return nil, func() error { return nil }
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Telemetry.RedisAddr,
		DB:   cfg.Telemetry.RedisDB,
	})
	return telemetry.NewRedisFeed(rdb, cfg.Keys.CurrentPosKey), rdb.Close
}

func applyOverrides(cfg *config.EditorConfig) error {
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *backendURL != "" {
		cfg.BackendURL = *backendURL
	}
	return cfg.Validate()
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("trajectory editor %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg, err := config.LoadEditorConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := applyOverrides(cfg); err != nil {
		log.Fatalf("invalid flags: %v", err)
	}
	if err := monitoring.SetLevel(cfg.LogLevel); err != nil {
		log.Fatalf("%v", err)
	}
	monitoring.Logf("trajectory editor %s (%s) using backend %s", version.Version, version.GitSHA, cfg.BackendURL)

	feed, closeFeed := newFeed(cfg)
	defer closeFeed()

	ed, _ := editor.Build(*cfg, httputil.NewStandardClient(nil), feed, timeutil.RealClock{})
	defer ed.Controller().Close()

	srv := api.NewServer(ed, api.Options{AssetsHost: *assetsHost})
	defer srv.Hub().Close()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// keep id 0 on the live end effector while nothing is running
	wg.Add(1)
	go func() {
		defer wg.Done()
		ed.Run(ctx)
		monitoring.Logf("idle tracker terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    cfg.Listen,
			Handler: api.LoggingMiddleware(srv.ServeMux()),
		}

		go func() {
			monitoring.Logf("editor listening on %s", cfg.Listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				monitoring.Logf("failed to start server: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		monitoring.Logf("shutting down HTTP server...")

		// stop any run in flight before the process goes away
		stopCtx, cancelStop := context.WithTimeout(context.Background(), 2*time.Second)
		if err := ed.Stop(stopCtx); err != nil {
			monitoring.Logf("stopping execution on shutdown: %v", err)
		}
		cancelStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				monitoring.Logf("HTTP server force close error: %v", err)
			}
		}
		monitoring.Logf("HTTP server routine stopped")
	}()

	wg.Wait()
	monitoring.Logf("graceful shutdown complete")
}
