package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	Login     LoginSettings     `mapstructure:"login"`
}

type AppSettings struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	MigrateOnStart    bool          `mapstructure:"migrate_on_start"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	DB            int    `mapstructure:"db"`
	Password      string `mapstructure:"password"`
	TLSEnabled    bool   `mapstructure:"tls_enabled"`
	SessionPrefix string `mapstructure:"session_prefix"`
}

// KafkaSettings configures Kafka producer
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// RateLimitSettings configures rate limiting windows and max attempts per endpoint
type RateLimitSettings struct {
	WindowDuration      time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts    int           `mapstructure:"login_max_attempts"`
	LostPasswordMax     int           `mapstructure:"lost_password_max_attempts"`
	RegisterMaxAttempts int           `mapstructure:"register_max_attempts"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// LoginSettings configures the login page flows, cookies and redirects.
type LoginSettings struct {
	SiteURL              string        `mapstructure:"site_url"`
	LoginPath            string        `mapstructure:"login_path"`
	AdminPath            string        `mapstructure:"admin_path"`
	ProfilePath          string        `mapstructure:"profile_path"`
	SecretKey            string        `mapstructure:"secret_key"`
	ForceSSLAdmin        bool          `mapstructure:"force_ssl_admin"`
	UsersCanRegister     bool          `mapstructure:"users_can_register"`
	ResetKeyTTL          time.Duration `mapstructure:"reset_key_ttl"`
	SessionTTL           time.Duration `mapstructure:"session_ttl"`
	RememberTTL          time.Duration `mapstructure:"remember_ttl"`
	PostPassTTL          time.Duration `mapstructure:"postpass_ttl"`
	NonceTTL             time.Duration `mapstructure:"nonce_ttl"`
	AdminEmailLifespan   time.Duration `mapstructure:"admin_email_lifespan"`
	AdminEmailRemindIn   time.Duration `mapstructure:"admin_email_remind_in"`
	AllowedRedirectHosts []string      `mapstructure:"allowed_redirect_hosts"`
	Languages            []string      `mapstructure:"languages"`
	// MinPasswordScore is the zxcvbn score (0-4) below which a new password counts as weak.
	MinPasswordScore     int           `mapstructure:"min_password_score"`
	MinPasswordLength    int           `mapstructure:"min_password_length"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("LOGIN")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.log_level",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"postgres.migrate_on_start",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.session_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"rate_limit.lost_password_max_attempts",
		"rate_limit.register_max_attempts",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"login.site_url",
		"login.login_path",
		"login.admin_path",
		"login.profile_path",
		"login.secret_key",
		"login.force_ssl_admin",
		"login.users_can_register",
		"login.reset_key_ttl",
		"login.session_ttl",
		"login.remember_ttl",
		"login.postpass_ttl",
		"login.nonce_ttl",
		"login.admin_email_lifespan",
		"login.admin_email_remind_in",
		"login.allowed_redirect_hosts",
		"login.languages",
		"login.min_password_score",
		"login.min_password_length",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the login flows cannot run with.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Login.SiteURL) == "" {
		return fmt.Errorf("login.site_url is required")
	}
	if c.App.Env == "production" && len(c.Login.SecretKey) < 32 {
		return fmt.Errorf("login.secret_key must be at least 32 bytes in production")
	}
	if c.Login.ResetKeyTTL <= 0 {
		return fmt.Errorf("login.reset_key_ttl must be positive")
	}
	if c.Login.MinPasswordScore < 0 || c.Login.MinPasswordScore > 4 {
		return fmt.Errorf("login.min_password_score must be between 0 and 4")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "login-gateway")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "login")
	v.SetDefault("postgres.password", "login_password")
	v.SetDefault("postgres.database", "login")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.migrate_on_start", false)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.session_prefix", "login:session")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "login")
	v.SetDefault("kafka.async", true)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "login-gateway")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 10)
	v.SetDefault("rate_limit.lost_password_max_attempts", 3)
	v.SetDefault("rate_limit.register_max_attempts", 3)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("login.site_url", "http://localhost:8080")
	v.SetDefault("login.login_path", "/login")
	v.SetDefault("login.admin_path", "/admin/")
	v.SetDefault("login.profile_path", "/admin/profile")
	v.SetDefault("login.secret_key", "")
	v.SetDefault("login.force_ssl_admin", false)
	v.SetDefault("login.users_can_register", false)
	v.SetDefault("login.reset_key_ttl", "24h")
	v.SetDefault("login.session_ttl", "48h")
	v.SetDefault("login.remember_ttl", "336h")
	v.SetDefault("login.postpass_ttl", "240h")
	v.SetDefault("login.nonce_ttl", "24h")
	v.SetDefault("login.admin_email_lifespan", "4380h") // six months
	v.SetDefault("login.admin_email_remind_in", "72h")
	v.SetDefault("login.allowed_redirect_hosts", []string{})
	v.SetDefault("login.languages", []string{"en_US"})
	v.SetDefault("login.min_password_score", 3)
	v.SetDefault("login.min_password_length", 8)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "LOGIN_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
