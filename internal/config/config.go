package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string        `mapstructure:"PORT"`
	Env         string        `mapstructure:"ENV"`
	LogLevel    string        `mapstructure:"LOG_LEVEL"`
	Timezone    string        `mapstructure:"TIMEZONE"`
	DatabaseURL string        `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string        `mapstructure:"REDIS_URL"`
	CacheTTL    time.Duration `mapstructure:"DIRECTORY_CACHE_TTL"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	JWTIssuer string        `mapstructure:"JWT_ISSUER"`
	TokenTTL  time.Duration `mapstructure:"TOKEN_TTL"`

	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	TLSEnabled     bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile    string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile     string        `mapstructure:"TLS_KEY_FILE"`

	NotifyTransport   string        `mapstructure:"NOTIFY_TRANSPORT"`
	NotifyWorkers     int           `mapstructure:"NOTIFY_WORKERS"`
	NotifyQueueSize   int           `mapstructure:"NOTIFY_QUEUE_SIZE"`
	NotifySendTimeout time.Duration `mapstructure:"NOTIFY_SEND_TIMEOUT"`
	SMTPHost          string        `mapstructure:"SMTP_HOST"`
	SMTPPort          int           `mapstructure:"SMTP_PORT"`
	SMTPUser          string        `mapstructure:"SMTP_USER"`
	SMTPPassword      string        `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom          string        `mapstructure:"SMTP_FROM"`
	AMQPURL           string        `mapstructure:"AMQP_URL"`
	AMQPQueue         string        `mapstructure:"AMQP_QUEUE"`

	AdminName     string `mapstructure:"ADMIN_NAME"`
	AdminEmail    string `mapstructure:"ADMIN_EMAIL"`
	AdminPassword string `mapstructure:"ADMIN_PASSWORD"`
}

// Notification transports.
const (
	TransportLog  = "log"
	TransportSMTP = "smtp"
	TransportAMQP = "amqp"
)

var envKeys = []string{
	"PORT", "ENV", "LOG_LEVEL", "TIMEZONE",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "DIRECTORY_CACHE_TTL",
	"JWT_SECRET", "JWT_ISSUER", "TOKEN_TTL",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT", "REQUEST_TIMEOUT",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
	"NOTIFY_TRANSPORT", "NOTIFY_WORKERS", "NOTIFY_QUEUE_SIZE", "NOTIFY_SEND_TIMEOUT",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASSWORD", "SMTP_FROM",
	"AMQP_URL", "AMQP_QUEUE",
	"ADMIN_NAME", "ADMIN_EMAIL", "ADMIN_PASSWORD",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DIRECTORY_CACHE_TTL", "60s")
	v.SetDefault("JWT_ISSUER", "medibook")
	v.SetDefault("TOKEN_TTL", "168h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("NOTIFY_TRANSPORT", TransportLog)
	v.SetDefault("NOTIFY_WORKERS", 4)
	v.SetDefault("NOTIFY_QUEUE_SIZE", 256)
	v.SetDefault("NOTIFY_SEND_TIMEOUT", "15s")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("AMQP_QUEUE", "notifications")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		v.BindEnv(k) //nolint:errcheck
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}
	cfg.NotifyTransport = strings.ToLower(strings.TrimSpace(cfg.NotifyTransport))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: X-Actor-ID / X-Actor-Role headers are trusted without a token.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves TIMEZONE, the zone appointment dates and times are
// interpreted in.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT signing key is mandatory, and in production it must be at least 32
// bytes.
func (c *Config) Validate() error {
	if c.Env != "development" && c.Env != "production" && c.Env != "staging" {
		return fmt.Errorf("ENV must be \"development\", \"staging\", or \"production\", got %q", c.Env)
	}
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.IsProduction() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes in production, got %d", len(c.JWTSecret))
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.NotifyTransport {
	case TransportLog:
	case TransportSMTP:
		if c.SMTPHost == "" || c.SMTPFrom == "" {
			return fmt.Errorf("SMTP_HOST and SMTP_FROM are required when NOTIFY_TRANSPORT is \"smtp\"")
		}
	case TransportAMQP:
		if c.AMQPURL == "" {
			return fmt.Errorf("AMQP_URL is required when NOTIFY_TRANSPORT is \"amqp\"")
		}
	default:
		return fmt.Errorf("NOTIFY_TRANSPORT must be \"log\", \"smtp\", or \"amqp\", got %q", c.NotifyTransport)
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
