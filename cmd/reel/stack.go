package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/zsiec/reel/internal/codec"
	"github.com/zsiec/reel/internal/config"
	"github.com/zsiec/reel/internal/demux"
	"github.com/zsiec/reel/internal/ffmpeg"
	"github.com/zsiec/reel/internal/logger"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/pipeline"
	"github.com/zsiec/reel/internal/upload"
)

// stack holds the long-lived dependencies shared by every pipeline run.
type stack struct {
	pool     *media.FramePool
	ffmpeg   *ffmpeg.Factory
	uploader upload.Service
	redis    redis.UniversalClient // nil unless a redis backend is configured
}

func needsRedis(cfg *config.Config, serving bool) bool {
	return cfg.Upload.Backend == "redis" || (serving && cfg.Jobs.Registry == "redis")
}

func newStack(ctx context.Context, cfg *config.Config, log logger.Logger, serving bool) (*stack, error) {
	s := &stack{pool: media.NewFramePool(cfg.Pipeline.FramePoolSize)}

	if needsRedis(cfg, serving) {
		client, err := connectRedis(ctx, cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		s.redis = client
	}

	factory, err := ffmpeg.NewFactory(cfg.FFmpeg, s.pool, log)
	if err != nil {
		s.Close(log)
		return nil, err
	}
	s.ffmpeg = factory

	uploader, err := upload.New(ctx, cfg.Upload, s.redis, log)
	if err != nil {
		s.Close(log)
		return nil, err
	}
	s.uploader = uploader

	return s, nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log logger.Logger) (redis.UniversalClient, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        cfg.Addresses,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.WithField("addresses", cfg.Addresses).Info("Connected to Redis successfully")
	return client, nil
}

// options is the pipeline template built from configuration.
func (s *stack) options(cfg *config.Config, log logger.Logger) pipeline.Options {
	return pipeline.Options{
		Demuxer:          demux.NewMP4Demuxer(log),
		Codecs:           s.ffmpeg,
		Containers:       s.ffmpeg,
		Uploader:         s.uploader,
		ResolutionLabel:  cfg.Pipeline.ResolutionLabel,
		Extension:        cfg.Pipeline.Extension,
		SegmentThreshold: cfg.Pipeline.SegmentThreshold,
		RefreshRate:      cfg.Pipeline.Preview.RefreshRate,
		Logger:           log,
	}
}

func (s *stack) Close(log logger.Logger) {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.WithError(err).Error("Failed to close Redis connection")
		}
	}
}

func encoderConfig(cfg config.EncoderConfig) codec.EncoderConfig {
	return codec.EncoderConfig{
		Codec:     cfg.Codec,
		Width:     cfg.Width,
		Height:    cfg.Height,
		Bitrate:   cfg.Bitrate,
		Framerate: cfg.Framerate,
	}
}

// startMetricsServer starts the Prometheus metrics server
func startMetricsServer(ctx context.Context, cfg config.MetricsConfig, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	log.WithField("addr", srv.Addr).Info("Starting metrics server")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("Metrics server error")
	}
}
