package config

import (
	"fmt"
	"os"
)

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.FFmpeg.Validate(); err != nil {
		return fmt.Errorf("ffmpeg config: %w", err)
	}

	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}

	if err := c.Upload.Validate(); err != nil {
		return fmt.Errorf("upload config: %w", err)
	}

	if err := c.Jobs.Validate(); err != nil {
		return fmt.Errorf("jobs config: %w", err)
	}

	return nil
}

func (s *ServerConfig) Validate() error {
	if s.HTTPPort < 1 || s.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", s.HTTPPort)
	}

	if s.MaxUploadSize <= 0 {
		return fmt.Errorf("max_upload_size must be positive")
	}

	if (s.TLSCertFile == "") != (s.TLSKeyFile == "") {
		return fmt.Errorf("tls_cert_file and tls_key_file must be set together")
	}

	if s.HTTP3Enabled() {
		if s.HTTP3Port < 1 || s.HTTP3Port > 65535 {
			return fmt.Errorf("invalid HTTP3 port: %d", s.HTTP3Port)
		}

		if _, err := os.Stat(s.TLSCertFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS certificate file not found: %s", s.TLSCertFile)
		}

		if _, err := os.Stat(s.TLSKeyFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS key file not found: %s", s.TLSKeyFile)
		}
	}

	return nil
}

func (r *RedisConfig) Validate() error {
	if len(r.Addresses) == 0 {
		return fmt.Errorf("at least one Redis address is required")
	}

	if r.DB < 0 {
		return fmt.Errorf("invalid Redis database number: %d", r.DB)
	}

	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}

	if r.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be positive")
	}

	if r.MinIdleConns < 0 {
		return fmt.Errorf("min_idle_conns cannot be negative")
	}

	if r.MinIdleConns > r.PoolSize {
		return fmt.Errorf("min_idle_conns cannot be greater than pool_size")
	}

	return nil
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"panic": true,
		"fatal": true,
		"error": true,
		"warn":  true,
		"info":  true,
		"debug": true,
		"trace": true,
	}

	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("log format must be 'json' or 'text'")
	}

	if l.Output != "stdout" && l.Output != "stderr" {
		if l.MaxSize <= 0 {
			return fmt.Errorf("max_size must be positive for file output")
		}
		if l.MaxBackups < 0 {
			return fmt.Errorf("max_backups cannot be negative")
		}
		if l.MaxAge < 0 {
			return fmt.Errorf("max_age cannot be negative")
		}
	}

	return nil
}

func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.Port < 1 || m.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", m.Port)
		}

		if m.Path == "" {
			return fmt.Errorf("metrics path cannot be empty")
		}
	}

	return nil
}

func (f *FFmpegConfig) Validate() error {
	if f.BinaryPath == "" {
		return fmt.Errorf("binary_path cannot be empty")
	}

	validLevels := map[string]bool{
		"quiet": true, "panic": true, "fatal": true, "error": true,
		"warning": true, "info": true, "verbose": true, "debug": true,
	}
	if !validLevels[f.LogLevel] {
		return fmt.Errorf("invalid ffmpeg log level: %s", f.LogLevel)
	}

	return nil
}

func (p *PipelineConfig) Validate() error {
	if err := p.Encoder.Validate(); err != nil {
		return fmt.Errorf("encoder: %w", err)
	}

	if p.ResolutionLabel == "" {
		return fmt.Errorf("resolution_label cannot be empty")
	}

	if p.Extension == "" {
		return fmt.Errorf("extension cannot be empty")
	}

	if p.SegmentThreshold <= 0 {
		return fmt.Errorf("segment_threshold must be positive")
	}

	if p.FramePoolSize < 0 {
		return fmt.Errorf("frame_pool_size cannot be negative")
	}

	if p.Preview.RefreshRate <= 0 {
		return fmt.Errorf("preview refresh_rate must be positive")
	}

	if p.Preview.MaxWidth <= 0 || p.Preview.MaxHeight <= 0 {
		return fmt.Errorf("preview max_width and max_height must be positive")
	}

	return nil
}

func (e *EncoderConfig) Validate() error {
	if e.Codec != "vp8" && e.Codec != "vp9" {
		return fmt.Errorf("unsupported codec: %s", e.Codec)
	}

	if e.Height <= 0 {
		return fmt.Errorf("height must be positive")
	}

	if e.Width < 0 {
		return fmt.Errorf("width cannot be negative")
	}

	if e.Width%2 != 0 || e.Height%2 != 0 {
		return fmt.Errorf("width and height must be even, got %dx%d", e.Width, e.Height)
	}

	if e.Bitrate <= 0 {
		return fmt.Errorf("bitrate must be positive")
	}

	if e.Framerate <= 0 {
		return fmt.Errorf("framerate must be positive")
	}

	return nil
}

func (u *UploadConfig) Validate() error {
	if u.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative")
	}

	switch u.Backend {
	case "file":
		if u.File.Dir == "" {
			return fmt.Errorf("file backend requires file.dir")
		}
	case "http":
		if u.HTTP.URL == "" {
			return fmt.Errorf("http backend requires http.url")
		}
		if u.HTTP.Timeout < 0 {
			return fmt.Errorf("http timeout cannot be negative")
		}
	case "s3":
		if u.S3.Bucket == "" {
			return fmt.Errorf("s3 backend requires s3.bucket")
		}
	case "redis":
		if u.Redis.Prefix == "" {
			return fmt.Errorf("redis backend requires redis.prefix")
		}
	default:
		return fmt.Errorf("unknown upload backend: %s", u.Backend)
	}

	return nil
}

func (j *JobsConfig) Validate() error {
	if j.Registry != "memory" && j.Registry != "redis" {
		return fmt.Errorf("registry must be 'memory' or 'redis'")
	}

	if j.TTL <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	return nil
}
