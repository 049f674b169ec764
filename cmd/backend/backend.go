// Command backend is the development trajectory backend: it plans
// trajectories through control points, streams them into a key-value store
// and records every run in sqlite.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/banshee-data/trajectory.editor/internal/api"
	"github.com/banshee-data/trajectory.editor/internal/backend"
	"github.com/banshee-data/trajectory.editor/internal/config"
	"github.com/banshee-data/trajectory.editor/internal/db"
	"github.com/banshee-data/trajectory.editor/internal/monitoring"
	"github.com/banshee-data/trajectory.editor/internal/timeutil"
	"github.com/banshee-data/trajectory.editor/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to the backend JSON config (defaults and TRAJ_* environment when empty)")
	listen      = flag.String("listen", "", "Listen address (overrides config)")
	dbPath      = flag.String("db-path", "", "Run history database (overrides config)")
	memoryStore = flag.Bool("memory", false, "Use an in-process key-value store instead of redis")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [migrate <action>]\n\n", os.Args[0])
	flag.PrintDefaults()
}

func applyOverrides(cfg *config.BackendConfig) error {
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *memoryStore {
		cfg.Store = config.StoreMemory
	}
	return cfg.Validate()
}

// newStore opens the configured key-value store. The returned close func is
// never nil.
func newStore(cfg *config.BackendConfig) (backend.KV, func() error) {
	if cfg.Store == config.StoreMemory {
		return backend.NewMemoryStore(), func() error { return nil }
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	return backend.NewRedisStore(rdb), rdb.Close
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("trajectory backend %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg, err := config.LoadBackendConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := applyOverrides(cfg); err != nil {
		log.Fatalf("invalid flags: %v", err)
	}
	if err := monitoring.SetLevel(cfg.LogLevel); err != nil {
		log.Fatalf("%v", err)
	}

	if flag.NArg() > 0 {
		if flag.Arg(0) != "migrate" {
			usage()
			os.Exit(2)
		}
		if err := db.RunMigrateCommand(flag.Args()[1:], cfg.DBPath, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	runs, err := db.NewDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open run history: %v", err)
	}
	defer runs.Close()
	if n, err := runs.MarkInterrupted(time.Now()); err != nil {
		log.Fatalf("failed to close out stale runs: %v", err)
	} else if n > 0 {
		monitoring.Logf("marked %d unfinished runs as interrupted", n)
	}

	kv, closeStore := newStore(cfg)
	defer closeStore()

	runner := backend.NewRunner(kv, timeutil.RealClock{})
	mux := backend.NewServer(kv, backend.CatmullRom{}, runner, runs, cfg.MaxPoints).ServeMux()
	if err := runs.AttachAdminRoutes(mux); err != nil {
		log.Fatalf("failed to attach admin routes: %v", err)
	}

	monitoring.Logf("trajectory backend %s (%s) store=%s db=%s", version.Version, version.GitSHA, cfg.Store, cfg.DBPath)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    cfg.Listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			monitoring.Logf("backend listening on %s", cfg.Listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				monitoring.Logf("failed to start server: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		monitoring.Logf("shutting down HTTP server...")

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
	// a run still streaming is recorded as stopped before the db closes
	runner.Stop()
	monitoring.Logf("graceful shutdown complete")
}
