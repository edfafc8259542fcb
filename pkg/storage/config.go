package storage

import "time"

// Config holds connection settings for the gateway's backing stores
type Config struct {
	// PostgreSQL config
	PostgresURL         string        `env:"DATABASE_URL"`
	PostgresMaxConns    int           `env:"GRC_DB_MAX_CONNS" envDefault:"20"`
	PostgresMinConns    int           `env:"GRC_DB_MIN_CONNS" envDefault:"2"`
	PostgresTimeout     time.Duration `env:"GRC_DB_TIMEOUT" envDefault:"10s"`
	PostgresMaxLifetime time.Duration `env:"GRC_DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	// S3 config
	S3Endpoint       string        `env:"GRC_S3_ENDPOINT"`
	S3Region         string        `env:"GRC_S3_REGION" envDefault:"us-east-1"`
	S3Bucket         string        `env:"GRC_S3_BUCKET" envDefault:"grc-files"`
	S3AccessKey      string        `env:"GRC_S3_ACCESS_KEY"`
	S3SecretKey      string        `env:"GRC_S3_SECRET_KEY"`
	S3ForcePathStyle bool          `env:"GRC_S3_FORCE_PATH_STYLE"`
	S3PresignTTL     time.Duration `env:"GRC_S3_PRESIGN_TTL" envDefault:"1h"`

	// Redis config; an empty URL disables Redis-backed features
	RedisURL        string `env:"GRC_REDIS_URL"`
	RedisMaxRetries int    `env:"GRC_REDIS_MAX_RETRIES" envDefault:"3"`
	RedisPoolSize   int    `env:"GRC_REDIS_POOL_SIZE" envDefault:"10"`

	// Plan limits cache
	CacheSize int           `env:"GRC_PLAN_CACHE_SIZE" envDefault:"64"`
	CacheTTL  time.Duration `env:"GRC_PLAN_CACHE_TTL" envDefault:"5m"`
}

// DefaultConfig returns the defaults used when a value is not set
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns:    20,
		PostgresMinConns:    2,
		PostgresTimeout:     10 * time.Second,
		PostgresMaxLifetime: 30 * time.Minute,
		S3Region:            "us-east-1",
		S3Bucket:            "grc-files",
		S3PresignTTL:        time.Hour,
		RedisMaxRetries:     3,
		RedisPoolSize:       10,
		CacheSize:           64,
		CacheTTL:            5 * time.Minute,
	}
}
