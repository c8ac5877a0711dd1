package utils

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Cookie    CookieConfig
	Presence  PresenceConfig
	RateLimit RateLimitConfig
	Security  SecurityConfig
}

type AppConfig struct {
	Name            string
	Port            string
	Debug           bool
	LogPath         string
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type DatabaseConfig struct {
	Host        string
	Port        string
	Name        string
	User        string
	Password    string
	SSLMode     string
	MaxConns    int32
	AutoMigrate bool
}

type JWTConfig struct {
	Secret      string
	Issuer      string
	ExpiryHours int
}

// TTL is the lifetime of an issued credential.
func (c JWTConfig) TTL() time.Duration {
	return time.Duration(c.ExpiryHours) * time.Hour
}

type CookieConfig struct {
	Name   string
	Domain string
	Secure bool
}

// PresenceConfig holds the server-side presence lease settings and the
// client-side idle threshold. The two are independent.
type PresenceConfig struct {
	HeartbeatInterval time.Duration
	SweepInterval     time.Duration
	IdleTimeout       time.Duration
	QueueSize         int
	Workers           int
	WriteTimeout      time.Duration
	MaxClockSkew      time.Duration
}

// StaleAfter is how long a session may go without renewing its lease before
// it is considered offline.
func (c PresenceConfig) StaleAfter() time.Duration {
	return 2 * c.HeartbeatInterval
}

type RateLimitConfig struct {
	LoginPerMinute int
	LoginBurst     int
}

type SecurityConfig struct {
	BcryptCost int
}

func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")

	v.SetDefault("APP_NAME", "edupersona")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DEBUG", false)
	v.SetDefault("LOG_PATH", "logs/")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("JWT_ISSUER", "edupersona")
	v.SetDefault("JWT_EXPIRY_HOURS", 168)
	v.SetDefault("COOKIE_NAME", "edu_session")
	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("PRESENCE_HEARTBEAT_INTERVAL", "30s")
	v.SetDefault("PRESENCE_SWEEP_INTERVAL", "60s")
	v.SetDefault("PRESENCE_IDLE_TIMEOUT", "10m")
	v.SetDefault("PRESENCE_QUEUE_SIZE", 1024)
	v.SetDefault("PRESENCE_WORKERS", 4)
	v.SetDefault("PRESENCE_WRITE_TIMEOUT", "3s")
	v.SetDefault("PRESENCE_MAX_CLOCK_SKEW", "5s")
	v.SetDefault("LOGIN_RATE_PER_MINUTE", 10)
	v.SetDefault("LOGIN_RATE_BURST", 5)
	v.SetDefault("BCRYPT_COST", 12)

	// .env is optional; real deployments inject the environment directly.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.AutomaticEnv()

	config := &Config{
		App: AppConfig{
			Name:            v.GetString("APP_NAME"),
			Port:            v.GetString("PORT"),
			Debug:           v.GetBool("DEBUG"),
			LogPath:         v.GetString("LOG_PATH"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
			AllowedOrigins:  splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:        v.GetString("DB_HOST"),
			Port:        v.GetString("DB_PORT"),
			Name:        v.GetString("DB_NAME"),
			User:        v.GetString("DB_USER"),
			Password:    v.GetString("DB_PASS"),
			SSLMode:     v.GetString("DB_SSLMODE"),
			MaxConns:    v.GetInt32("DB_MAX_CONNS"),
			AutoMigrate: v.GetBool("DB_AUTO_MIGRATE"),
		},
		JWT: JWTConfig{
			Secret:      v.GetString("JWT_SECRET"),
			Issuer:      v.GetString("JWT_ISSUER"),
			ExpiryHours: v.GetInt("JWT_EXPIRY_HOURS"),
		},
		Cookie: CookieConfig{
			Name:   v.GetString("COOKIE_NAME"),
			Domain: v.GetString("COOKIE_DOMAIN"),
			Secure: v.GetBool("COOKIE_SECURE"),
		},
		Presence: PresenceConfig{
			HeartbeatInterval: v.GetDuration("PRESENCE_HEARTBEAT_INTERVAL"),
			SweepInterval:     v.GetDuration("PRESENCE_SWEEP_INTERVAL"),
			IdleTimeout:       v.GetDuration("PRESENCE_IDLE_TIMEOUT"),
			QueueSize:         v.GetInt("PRESENCE_QUEUE_SIZE"),
			Workers:           v.GetInt("PRESENCE_WORKERS"),
			WriteTimeout:      v.GetDuration("PRESENCE_WRITE_TIMEOUT"),
			MaxClockSkew:      v.GetDuration("PRESENCE_MAX_CLOCK_SKEW"),
		},
		RateLimit: RateLimitConfig{
			LoginPerMinute: v.GetInt("LOGIN_RATE_PER_MINUTE"),
			LoginBurst:     v.GetInt("LOGIN_RATE_BURST"),
		},
		Security: SecurityConfig{
			BcryptCost: v.GetInt("BCRYPT_COST"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects settings the service cannot run safely with.
func (c *Config) Validate() error {
	if len(c.JWT.Secret) < 32 {
		return errors.New("config: JWT_SECRET must be at least 32 bytes")
	}
	if c.JWT.ExpiryHours <= 0 {
		return errors.New("config: JWT_EXPIRY_HOURS must be positive")
	}
	if c.Presence.HeartbeatInterval <= 0 || c.Presence.SweepInterval <= 0 {
		return errors.New("config: presence intervals must be positive")
	}
	if c.Presence.IdleTimeout <= 0 {
		return errors.New("config: PRESENCE_IDLE_TIMEOUT must be positive")
	}
	if c.Presence.Workers <= 0 || c.Presence.QueueSize <= 0 {
		return errors.New("config: presence workers and queue size must be positive")
	}
	if c.Security.BcryptCost < 4 || c.Security.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
