// Package upload batches container output into size-bounded files and
// sends them to a storage backend.
package upload

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/zsiec/reel/internal/config"
	"github.com/zsiec/reel/internal/logger"
)

// File is one upload call.
type File struct {
	Name        string
	Payload     []byte
	ContentType string
}

// Service stores files. Implementations must be safe for concurrent use.
type Service interface {
	UploadFile(ctx context.Context, file File) error
}

// ContentTypeFor returns the MIME type for a file extension.
func ContentTypeFor(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "webm":
		return "video/webm"
	case "mp4":
		return "video/mp4"
	case "ivf":
		return "video/x-ivf"
	default:
		return "application/octet-stream"
	}
}

// New builds the configured backend, wrapped with rate limiting and
// instrumentation. rdb is only used by the redis backend.
func New(ctx context.Context, cfg config.UploadConfig, rdb redis.UniversalClient, log logger.Logger) (Service, error) {
	var (
		svc Service
		err error
	)
	switch cfg.Backend {
	case "file":
		svc, err = NewFileService(cfg.File.Dir)
	case "http":
		svc, err = NewHTTPService(cfg.HTTP)
	case "s3":
		svc, err = NewS3Service(ctx, cfg.S3)
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis upload backend needs a redis client")
		}
		svc = NewRedisService(rdb, cfg.Redis.Prefix, cfg.Redis.TTL)
	default:
		return nil, fmt.Errorf("unknown upload backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s upload backend: %w", cfg.Backend, err)
	}

	if cfg.RateLimit > 0 {
		svc = NewRateLimited(svc, cfg.RateLimit)
	}
	return NewInstrumented(svc, cfg.Backend, log), nil
}
