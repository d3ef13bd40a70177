package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	FFmpeg   FFmpegConfig   `mapstructure:"ffmpeg"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
}

type ServerConfig struct {
	// HTTP/1.1 listener, always on when the API is served
	HTTPPort        int           `mapstructure:"http_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadSize   int64         `mapstructure:"max_upload_size"` // bytes accepted per job upload
	TempDir         string        `mapstructure:"temp_dir"`        // where uploaded inputs are staged

	// HTTP/3 listener, enabled when both TLS files are set
	HTTP3Port   int    `mapstructure:"http3_port"`
	TLSCertFile string `mapstructure:"tls_cert_file"`
	TLSKeyFile  string `mapstructure:"tls_key_file"`
}

// HTTP3Enabled reports whether TLS material is configured for the QUIC listener.
func (s *ServerConfig) HTTP3Enabled() bool {
	return s.TLSCertFile != "" && s.TLSKeyFile != ""
}

type RedisConfig struct {
	Addresses    []string      `mapstructure:"addresses"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`   // json or text
	Output     string `mapstructure:"output"`   // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"`
	LogLevel   string `mapstructure:"log_level"` // passed to -loglevel
}

type PipelineConfig struct {
	Encoder          EncoderConfig `mapstructure:"encoder"`
	ResolutionLabel  string        `mapstructure:"resolution_label"`
	Extension        string        `mapstructure:"extension"`
	SegmentThreshold int           `mapstructure:"segment_threshold"` // bytes; flush when exceeded
	FramePoolSize    int           `mapstructure:"frame_pool_size"`   // free buffers kept per frame size
	Preview          PreviewConfig `mapstructure:"preview"`
}

type EncoderConfig struct {
	Codec     string  `mapstructure:"codec"` // vp8 or vp9
	Width     int     `mapstructure:"width"` // 0 keeps the source aspect ratio
	Height    int     `mapstructure:"height"`
	Bitrate   int     `mapstructure:"bitrate"` // bits per second
	Framerate float64 `mapstructure:"framerate"`
}

type PreviewConfig struct {
	RefreshRate  float64 `mapstructure:"refresh_rate"` // presentations per second
	SnapshotPath string  `mapstructure:"snapshot_path"`
	MaxWidth     int     `mapstructure:"max_width"`
	MaxHeight    int     `mapstructure:"max_height"`
}

type UploadConfig struct {
	Backend   string            `mapstructure:"backend"`    // file, http, s3, redis
	RateLimit int               `mapstructure:"rate_limit"` // bytes per second, 0 disables
	File      FileUploadConfig  `mapstructure:"file"`
	HTTP      HTTPUploadConfig  `mapstructure:"http"`
	S3        S3UploadConfig    `mapstructure:"s3"`
	Redis     RedisUploadConfig `mapstructure:"redis"`
}

type FileUploadConfig struct {
	Dir string `mapstructure:"dir"`
}

type HTTPUploadConfig struct {
	URL     string            `mapstructure:"url"`
	HTTP3   bool              `mapstructure:"http3"`
	Timeout time.Duration     `mapstructure:"timeout"` // 0 means no timeout
	Headers map[string]string `mapstructure:"headers"`
}

type S3UploadConfig struct {
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"` // for S3-compatible stores
}

type RedisUploadConfig struct {
	Prefix string        `mapstructure:"prefix"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type JobsConfig struct {
	Registry string        `mapstructure:"registry"` // memory or redis
	TTL      time.Duration `mapstructure:"ttl"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Environment variable override
	v.SetEnvPrefix("REEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_upload_size", 2<<30) // 2GB
	v.SetDefault("server.temp_dir", "")
	v.SetDefault("server.http3_port", 8443)

	// Redis defaults
	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 1)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.port", 9090)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "ffmpeg")
	v.SetDefault("ffmpeg.log_level", "error")

	// Pipeline defaults
	v.SetDefault("pipeline.encoder.codec", "vp9")
	v.SetDefault("pipeline.encoder.width", 0)
	v.SetDefault("pipeline.encoder.height", 144)
	v.SetDefault("pipeline.encoder.bitrate", 10_000_000)
	v.SetDefault("pipeline.encoder.framerate", 30)
	v.SetDefault("pipeline.resolution_label", "144p")
	v.SetDefault("pipeline.extension", "webm")
	v.SetDefault("pipeline.segment_threshold", 10_000_000)
	v.SetDefault("pipeline.frame_pool_size", 4)
	v.SetDefault("pipeline.preview.refresh_rate", 60)
	v.SetDefault("pipeline.preview.snapshot_path", "")
	v.SetDefault("pipeline.preview.max_width", 320)
	v.SetDefault("pipeline.preview.max_height", 180)

	// Upload defaults
	v.SetDefault("upload.backend", "file")
	v.SetDefault("upload.rate_limit", 0)
	v.SetDefault("upload.file.dir", "./uploads")
	v.SetDefault("upload.http.timeout", "0s")
	v.SetDefault("upload.s3.prefix", "")
	v.SetDefault("upload.redis.prefix", "reel:uploads:")
	v.SetDefault("upload.redis.ttl", "24h")

	// Jobs defaults
	v.SetDefault("jobs.registry", "memory")
	v.SetDefault("jobs.ttl", "24h")
}
