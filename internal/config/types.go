package config

import (
	"time"
)

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"local"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	Server     ServerConfig
	Database   Database
	Transactor TransactorConfig
	Storage    StorageConfig
	Redis      RedisConfig
	Thumbnail  ThumbnailConfig
	Sentry     SentryConfig
	Otel       OtelConfig
}

type ServerConfig struct {
	Port            int           `env:"OPS_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"OPS_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"OPS_WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

type Database struct {
	URL string `env:"DATABASE_URL,required"`
	// Name is the Postgres schema that holds the request queue.
	Name     string `env:"CONFIGURATION_DB" envDefault:"thumbnail"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"4"`
}

type TransactorConfig struct {
	URL         string        `env:"TRANSACTOR_URL,required"`
	Secret      string        `env:"SERVER_SECRET,required"`
	ServiceID   string        `env:"SERVICE_ID" envDefault:"thumbnail-service"`
	IdleTimeout time.Duration `env:"WORKSPACE_IDLE_TIMEOUT" envDefault:"10m"`
	DialTimeout time.Duration `env:"TRANSACTOR_DIAL_TIMEOUT" envDefault:"30s"`
}

type StorageConfig struct {
	AccountID   string `env:"R2_ACCOUNT_ID"`
	Endpoint    string `env:"STORAGE_ENDPOINT"`
	Region      string `env:"STORAGE_REGION" envDefault:"auto"`
	BucketName  string `env:"STORAGE_BUCKET,required"`
	AccessKeyID string `env:"STORAGE_ACCESS_KEY,required"`
	SecretKey   string `env:"STORAGE_SECRET_KEY,required"`
}

type RedisConfig struct {
	Addrs               []string      `env:"REDIS_ADDRS" envSeparator:","`
	Password            string        `env:"REDIS_PASSWORD"`
	DatabaseID          int           `env:"REDIS_DB" envDefault:"0"`
	DialTimeout         time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout         time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout        time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
	HealthCheckInterval time.Duration `env:"REDIS_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
	LeaseKey            string        `env:"CONSUMER_LEASE_KEY" envDefault:"thumbnailer:consumer" validate:"required"`
	LeaseTTL            time.Duration `env:"CONSUMER_LEASE_TTL" envDefault:"30s" validate:"gte=3s"`
}

// Enabled reports whether a Redis deployment was configured.
func (r RedisConfig) Enabled() bool { return len(r.Addrs) > 0 }

type ThumbnailConfig struct {
	Width            int           `env:"THUMBNAIL_WIDTH" envDefault:"1024" validate:"gte=1,lte=8192"`
	Height           int           `env:"THUMBNAIL_HEIGHT" envDefault:"1024" validate:"gte=1,lte=8192"`
	Format           string        `env:"THUMBNAIL_FORMAT" envDefault:"png" validate:"oneof=png jpeg webp"`
	PollInterval     time.Duration `env:"POLL_INTERVAL" envDefault:"500ms" validate:"gt=0"`
	VideoFrameOffset time.Duration `env:"VIDEO_FRAME_OFFSET" envDefault:"1s" validate:"gte=0"`
	FFmpegPath       string        `env:"FFMPEG_PATH" envDefault:"ffmpeg" validate:"required"`
}

type SentryConfig struct {
	SentryDSN string `env:"SENTRY_DSN"`
}

type OtelConfig struct {
	ExporterEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName      string  `env:"OTEL_SERVICE_NAME" envDefault:"thumbnail-service"`
	SamplingRate     float64 `env:"OTEL_SAMPLING_RATE" envDefault:"1.0"`
}
