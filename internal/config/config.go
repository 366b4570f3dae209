package config

import "time"

type Config struct {
	Env         string       `yaml:"env" env:"APP_ENV"`
	Port        int          `yaml:"port" env:"PORT"`
	DatabaseURL string       `yaml:"database_url" env:"DATABASE_URL"`
	RedisURL    string       `yaml:"redis_url" env:"REDIS_URL"`
	Logger      LoggerConfig `yaml:"logger"`

	Telemetry TelemetryConfig `yaml:"telemetry"`
	Session   SessionConfig   `yaml:"session"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type LoggerConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

// TelemetryConfig covers envelope verification and the ingest audit trail.
// SigningSecret is the shared secret device firmware signs payloads with; it
// may be a literal value or an aws-sm:// / aws-ssm:// reference resolved at
// startup. It is never logged.
type TelemetryConfig struct {
	SigningSecret string           `yaml:"signing_secret" env:"TELEMETRY_SIGNING_SECRET"`
	Audit         KafkaAuditConfig `yaml:"audit"`
}

type KafkaAuditConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	TopicTrack    string        `yaml:"topic_track"`
	TopicSession  string        `yaml:"topic_session"`
	BatchSize     int           `yaml:"batch_size"`
	FlushEvery    time.Duration `yaml:"flush_every"`
	QueueCapacity int           `yaml:"queue_capacity"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	TLS           bool          `yaml:"tls"`
}

// SessionConfig drives bearer token issuance for devices.
type SessionConfig struct {
	SigningKey    string        `yaml:"signing_key" env:"SESSION_SIGNING_KEY"`
	TokenDuration time.Duration `yaml:"token_duration"`
	Issuer        string        `yaml:"issuer"`
	Audience      []string      `yaml:"audience"`
}

type RateLimitConfig struct {
	Enabled         bool          `yaml:"enabled"`
	RatePerInterval int           `yaml:"rate_per_interval"`
	Interval        time.Duration `yaml:"interval"`
	Burst           int           `yaml:"burst"`
	KeyPrefix       string        `yaml:"key_prefix"`
	BucketTTL       time.Duration `yaml:"bucket_ttl"`
}
