package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zsiec/reel/internal/config"
	"github.com/zsiec/reel/internal/health"
	"github.com/zsiec/reel/internal/jobs"
	"github.com/zsiec/reel/internal/logger"
	"github.com/zsiec/reel/internal/server"
)

// jobDrainTimeout bounds how long running jobs get to record their result
// after the server stops.
const jobDrainTimeout = 30 * time.Second

// serve runs the job API until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	st, err := newStack(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer st.Close(log)

	var registry jobs.Registry
	switch cfg.Jobs.Registry {
	case "redis":
		registry = jobs.NewRedisRegistry(st.redis, log, "", cfg.Jobs.TTL)
	case "memory", "":
		registry = jobs.NewMemoryRegistry()
	default:
		return fmt.Errorf("unknown job registry: %s", cfg.Jobs.Registry)
	}
	defer registry.Close()

	manager := jobs.NewManager(registry, st.options(cfg, log), encoderConfig(cfg.Pipeline.Encoder), cfg.Pipeline.Preview, log)

	tempDir := cfg.Server.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	checkers := []health.Checker{
		health.NewFFmpegChecker(st.ffmpeg.Binary()),
		health.NewDirChecker("temp_dir", tempDir),
	}
	if st.redis != nil {
		checkers = append(checkers, health.NewRedisChecker(st.redis))
	}
	if cfg.Upload.Backend == "file" {
		checkers = append(checkers, health.NewDirChecker("upload_dir", cfg.Upload.File.Dir))
	}

	srv := server.New(&cfg.Server, log, manager, checkers...)

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port == 0 || cfg.Metrics.Port == cfg.Server.HTTPPort {
			srv.RegisterRoutes(func(r *mux.Router) {
				r.Handle(cfg.Metrics.Path, promhttp.Handler()).Methods("GET")
			})
		} else {
			go startMetricsServer(ctx, cfg.Metrics, log)
		}
	}

	serveErr := srv.Start(ctx)

	drainCtx, cancel := context.WithTimeout(context.Background(), jobDrainTimeout)
	defer cancel()
	if err := manager.Shutdown(drainCtx); err != nil {
		log.WithError(err).Warn("Jobs did not finish before shutdown timeout")
	}

	log.Info("Server shutdown complete")
	return serveErr
}
