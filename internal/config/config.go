package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. QUEUE_DATABASE_HOST.
const EnvPrefix = "QUEUE"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Channel   ChannelConfig   `mapstructure:"channel"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Security  SecurityConfig  `mapstructure:"security"`
	Admin     AdminConfig     `mapstructure:"admin"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" envconfig:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Viewer    ViewerConfig    `mapstructure:"viewer"`
	Cache     CacheConfig     `mapstructure:"cache"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" envconfig:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" envconfig:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" envconfig:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" envconfig:"shutdown_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes" envconfig:"max_header_bytes"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns" envconfig:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" envconfig:"max_idle_conns"`
	// Migrate applies the embedded schema at startup.
	Migrate bool `mapstructure:"migrate"`
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries" envconfig:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" envconfig:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size" envconfig:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns" envconfig:"min_idle_conns"`
	KeyPrefix    string        `mapstructure:"key_prefix" envconfig:"key_prefix"`
}

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type ChannelConfig struct {
	Backend      string        `mapstructure:"backend"`
	StreamMaxLen int64         `mapstructure:"stream_max_len" envconfig:"stream_max_len"`
	BlockTimeout time.Duration `mapstructure:"block_timeout" envconfig:"block_timeout"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	Issuer      string `mapstructure:"issuer"`
	ExpiryHours int    `mapstructure:"expiry_hours" envconfig:"expiry_hours"`
}

func (c JWTConfig) Expiry() time.Duration {
	return time.Duration(c.ExpiryHours) * time.Hour
}

type SecurityConfig struct {
	BcryptCost     int      `mapstructure:"bcrypt_cost" envconfig:"bcrypt_cost"`
	AllowedOrigins []string `mapstructure:"allowed_origins" envconfig:"allowed_origins"`
	MaxBodyBytes   int64    `mapstructure:"max_body_bytes" envconfig:"max_body_bytes"`
}

// AdminConfig holds the single administrator credential. PasswordHash is a
// bcrypt hash, never a plaintext password.
type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash" envconfig:"password_hash"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" envconfig:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	LoginPerMinute    int     `mapstructure:"login_per_minute" envconfig:"login_per_minute"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" envconfig:"otlp_endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	ServiceName  string  `mapstructure:"service_name" envconfig:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio" envconfig:"sample_ratio"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type WorkerConfig struct {
	ArchiveInterval time.Duration `mapstructure:"archive_interval" envconfig:"archive_interval"`
	BatchSize       int           `mapstructure:"batch_size" envconfig:"batch_size"`
	RetentionDays   int           `mapstructure:"retention_days" envconfig:"retention_days"`
	HistoryDays     int           `mapstructure:"history_days" envconfig:"history_days"`
	HealthPort      int           `mapstructure:"health_port" envconfig:"health_port"`
	RetryAttempts   int           `mapstructure:"retry_attempts" envconfig:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" envconfig:"retry_delay"`
}

type ViewerConfig struct {
	Highlight           time.Duration `mapstructure:"highlight"`
	Notice              time.Duration `mapstructure:"notice"`
	EmergencyOverlay    time.Duration `mapstructure:"emergency_overlay" envconfig:"emergency_overlay"`
	TextOverlay         time.Duration `mapstructure:"text_overlay" envconfig:"text_overlay"`
	AudioGap            time.Duration `mapstructure:"audio_gap" envconfig:"audio_gap"`
	DoctorRotation      time.Duration `mapstructure:"doctor_rotation" envconfig:"doctor_rotation"`
	AnnouncementBacklog int           `mapstructure:"announcement_backlog" envconfig:"announcement_backlog"`
	AudioPath           string        `mapstructure:"audio_path" envconfig:"audio_path"`
	MaxNumberAsset      int           `mapstructure:"max_number_asset" envconfig:"max_number_asset"`
	MaxClinicAsset      int           `mapstructure:"max_clinic_asset" envconfig:"max_clinic_asset"`
}

type CacheConfig struct {
	ClinicTTL       time.Duration `mapstructure:"clinic_ttl" envconfig:"clinic_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" envconfig:"cleanup_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_header_bytes", 1<<20)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "clinic_queue")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.migrate", true)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.key_prefix", "queue")

	v.SetDefault("channel.backend", BackendRedis)
	v.SetDefault("channel.stream_max_len", 10000)
	v.SetDefault("channel.block_timeout", 2*time.Second)

	v.SetDefault("jwt.issuer", "clinic-queue")
	v.SetDefault("jwt.expiry_hours", 12)

	v.SetDefault("security.bcrypt_cost", 10)
	v.SetDefault("security.allowed_origins", []string{"*"})
	v.SetDefault("security.max_body_bytes", 4<<20)

	v.SetDefault("admin.username", "admin")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)
	v.SetDefault("rate_limit.login_per_minute", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("telemetry.service_name", "clinic-queue")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("smtp.port", 587)

	v.SetDefault("worker.archive_interval", 30*time.Second)
	v.SetDefault("worker.batch_size", 500)
	v.SetDefault("worker.retention_days", 2)
	v.SetDefault("worker.history_days", 365)
	v.SetDefault("worker.health_port", 8081)
	v.SetDefault("worker.retry_attempts", 3)
	v.SetDefault("worker.retry_delay", time.Second)

	v.SetDefault("viewer.highlight", 3*time.Second)
	v.SetDefault("viewer.notice", 5*time.Second)
	v.SetDefault("viewer.emergency_overlay", 10*time.Second)
	v.SetDefault("viewer.text_overlay", 7*time.Second)
	v.SetDefault("viewer.audio_gap", 500*time.Millisecond)
	v.SetDefault("viewer.doctor_rotation", 20*time.Second)
	v.SetDefault("viewer.announcement_backlog", 5)
	v.SetDefault("viewer.audio_path", "audio")
	v.SetDefault("viewer.max_number_asset", 200)
	v.SetDefault("viewer.max_clinic_asset", 20)

	v.SetDefault("cache.clinic_ttl", time.Minute)
	v.SetDefault("cache.cleanup_interval", 5*time.Minute)
}

// Load reads config.yml from the usual locations (or file, when set), applies
// QUEUE_* environment overrides and validates the result. A missing file is
// fine; a malformed one is not.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app")
		v.AddConfigPath("/app/config")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be positive, got %d", c.Server.Port))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	switch c.Channel.Backend {
	case BackendRedis, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown channel backend %q", c.Channel.Backend))
	}
	if c.Channel.Backend == BackendRedis && c.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url is required for the redis channel"))
	}
	if c.Viewer.AnnouncementBacklog <= 0 {
		errs = append(errs, errors.New("viewer.announcement_backlog must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
