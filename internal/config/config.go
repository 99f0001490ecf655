package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Outbox      OutboxConfig      `mapstructure:"outbox"`
	Refill      RefillConfig      `mapstructure:"refill"`
	Fulfillment FulfillmentConfig `mapstructure:"fulfillment"`
	Storage     StorageConfig     `mapstructure:"storage"`
	SMTP        SMTPConfig        `mapstructure:"smtp"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	CORS        CORSConfig        `mapstructure:"cors"`
	Log         LogConfig         `mapstructure:"log"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

type DatabaseConfig struct {
	// Store selects the repository backend: postgres or memory.
	Store           string        `mapstructure:"store"`
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	ChannelPrefix string        `mapstructure:"channel_prefix"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	PoolSize      int           `mapstructure:"pool_size"`
	MinIdleConns  int           `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type OutboxConfig struct {
	BatchSize       int           `mapstructure:"batch_size"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	StaleAfter      time.Duration `mapstructure:"stale_after"`
	Retention       time.Duration `mapstructure:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type RefillConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type FulfillmentConfig struct {
	AutoAssignOnBooking     bool          `mapstructure:"auto_assign_on_booking"`
	AutoRoutePharmacyOrders bool          `mapstructure:"auto_route_pharmacy_orders"`
	ReassignOnSuspension    bool          `mapstructure:"reassign_on_suspension"`
	IdempotencyTTL          time.Duration `mapstructure:"idempotency_ttl"`
	SlotTimezone            string        `mapstructure:"slot_timezone"`
	MaxReactionDepth        int           `mapstructure:"max_reaction_depth"`
	ParkedRetryInterval     time.Duration `mapstructure:"parked_retry_interval"`
}

// SlotLocation resolves the timezone booked time slots are written in.
func (c FulfillmentConfig) SlotLocation() (*time.Location, error) {
	if c.SlotTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.SlotTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid slot timezone %q: %w", c.SlotTimezone, err)
	}
	return loc, nil
}

type StorageConfig struct {
	// Driver selects the object store: s3 or memory.
	Driver        string        `mapstructure:"driver"`
	Bucket        string        `mapstructure:"bucket"`
	Region        string        `mapstructure:"region"`
	Endpoint      string        `mapstructure:"endpoint"`
	UsePathStyle  bool          `mapstructure:"use_path_style"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

type SMTPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// envOverrides are the settings deployments commonly inject as FULFILLMENT_* variables.
// Unset variables leave the file value alone.
type envOverrides struct {
	Store        *string `envconfig:"STORE"`
	DBDriver     *string `envconfig:"DB_DRIVER"`
	DBHost       *string `envconfig:"DB_HOST"`
	DBPort       *int    `envconfig:"DB_PORT"`
	DBUser       *string `envconfig:"DB_USER"`
	DBPassword   *string `envconfig:"DB_PASSWORD"`
	DBName       *string `envconfig:"DB_NAME"`
	RedisURL     *string `envconfig:"REDIS_URL"`
	JWTSecret    *string `envconfig:"JWT_SECRET"`
	SMTPPassword *string `envconfig:"SMTP_PASSWORD"`
	S3Bucket     *string `envconfig:"S3_BUCKET"`
	LogLevel     *string `envconfig:"LOG_LEVEL"`
	Port         *int    `envconfig:"PORT"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.max_header_bytes", 1<<20)

	v.SetDefault("database.store", "postgres")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "fulfillment")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.channel_prefix", "fulfillment")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "")

	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("outbox.poll_interval", 2*time.Second)
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", 500*time.Millisecond)
	v.SetDefault("outbox.stale_after", time.Minute)
	v.SetDefault("outbox.retention", 7*24*time.Hour)
	v.SetDefault("outbox.cleanup_interval", time.Hour)

	v.SetDefault("refill.interval", time.Hour)

	v.SetDefault("fulfillment.auto_assign_on_booking", true)
	v.SetDefault("fulfillment.auto_route_pharmacy_orders", true)
	v.SetDefault("fulfillment.reassign_on_suspension", false)
	v.SetDefault("fulfillment.idempotency_ttl", 10*time.Minute)
	v.SetDefault("fulfillment.slot_timezone", "Asia/Kolkata")
	v.SetDefault("fulfillment.max_reaction_depth", 3)
	v.SetDefault("fulfillment.parked_retry_interval", 5*time.Minute)

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "ap-south-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.use_path_style", false)
	v.SetDefault("storage.presign_expiry", 15*time.Minute)

	v.SetDefault("smtp.enabled", false)
	v.SetDefault("smtp.host", "localhost")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "care@example.com")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Authorization", "Content-Type", "X-Request-ID", "Idempotency-Key"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads path (or config.yml from the usual locations when path is empty), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	v.SetEnvPrefix("FULFILLMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("fulfillment", &env); err != nil {
		return nil, fmt.Errorf("failed to read environment overrides: %w", err)
	}
	env.apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (e envOverrides) apply(cfg *Config) {
	setString(&cfg.Database.Store, e.Store)
	setString(&cfg.Database.Driver, e.DBDriver)
	setString(&cfg.Database.Host, e.DBHost)
	setString(&cfg.Database.User, e.DBUser)
	setString(&cfg.Database.Password, e.DBPassword)
	setString(&cfg.Database.Name, e.DBName)
	setString(&cfg.Redis.URL, e.RedisURL)
	setString(&cfg.JWT.Secret, e.JWTSecret)
	setString(&cfg.SMTP.Password, e.SMTPPassword)
	setString(&cfg.Storage.Bucket, e.S3Bucket)
	setString(&cfg.Log.Level, e.LogLevel)
	if e.DBPort != nil {
		cfg.Database.Port = *e.DBPort
	}
	if e.Port != nil {
		cfg.Server.Port = *e.Port
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Validate rejects configurations the services cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	switch c.Database.Store {
	case "memory":
	case "postgres":
		if c.Database.Driver != "postgres" && c.Database.Driver != "pgx" {
			errs = append(errs, fmt.Errorf("database.driver must be postgres or pgx, got %q", c.Database.Driver))
		}
		if c.Database.Host == "" || c.Database.Name == "" {
			errs = append(errs, errors.New("database.host and database.name are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.store must be postgres or memory, got %q", c.Database.Store))
	}
	if c.Redis.Enabled && c.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url is required when redis is enabled"))
	}
	if c.Outbox.BatchSize <= 0 || c.Outbox.PollInterval <= 0 || c.Outbox.RetryAttempts <= 0 || c.Outbox.RetryDelay <= 0 {
		errs = append(errs, errors.New("outbox batch_size, poll_interval, retry_attempts and retry_delay must be positive"))
	}
	if c.Outbox.Retention <= 0 || c.Outbox.CleanupInterval <= 0 {
		errs = append(errs, errors.New("outbox retention and cleanup_interval must be positive"))
	}
	if c.Refill.Interval <= 0 {
		errs = append(errs, errors.New("refill.interval must be positive"))
	}
	if c.Fulfillment.ParkedRetryInterval <= 0 {
		errs = append(errs, errors.New("fulfillment.parked_retry_interval must be positive"))
	}
	if _, err := c.Fulfillment.SlotLocation(); err != nil {
		errs = append(errs, err)
	}
	switch c.Storage.Driver {
	case "memory":
	case "s3":
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("storage.bucket is required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be s3 or memory, got %q", c.Storage.Driver))
	}
	if c.SMTP.Enabled && c.SMTP.Host == "" {
		errs = append(errs, errors.New("smtp.host is required when smtp is enabled"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate_limit requests_per_second and burst must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
