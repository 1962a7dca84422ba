package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	SessionBackendMemory = "memory"
	SessionBackendFile   = "file"
	SessionBackendRedis  = "redis"
)

// Config centraliza la configuración del cliente y del backend de desarrollo.
type Config struct {
	APIBaseURL string        `env:"API_BASE_URL" envDefault:"http://localhost:8080"`
	APITimeout time.Duration `env:"API_TIMEOUT" envDefault:"15s"`

	SessionBackend string `env:"SESSION_BACKEND" envDefault:"file"`
	SessionFile    string `env:"SESSION_FILE" envDefault:".diary/session.json"`
	SessionSlot    string `env:"SESSION_SLOT" envDefault:"auth-storage"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	NotifyDefaultDuration time.Duration `env:"NOTIFY_DEFAULT_DURATION" envDefault:"5s"`
	LogLevel              string        `env:"LOG_LEVEL" envDefault:"info"`

	// Backend de desarrollo (cmd/stubapi).
	HTTPPort            string   `env:"HTTP_PORT" envDefault:"8080"`
	JWTSecret           string   `env:"JWT_SECRET"`
	JWTAccessTTLMinutes int      `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"60"`
	StubUsers           []string `env:"STUB_USERS" envSeparator:";"`

	LoginRateWindow time.Duration `env:"LOGIN_RATE_WINDOW" envDefault:"1m"`
	LoginRateMax    int           `env:"LOGIN_RATE_MAX" envDefault:"5"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.SessionBackend = strings.ToLower(strings.TrimSpace(c.SessionBackend))
	switch c.SessionBackend {
	case SessionBackendMemory, SessionBackendFile:
	case SessionBackendRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return fmt.Errorf("REDIS_ADDR is required when SESSION_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend)
	}
	if c.APITimeout <= 0 {
		return fmt.Errorf("API_TIMEOUT must be positive")
	}
	if c.LoginRateMax <= 0 || c.LoginRateWindow <= 0 {
		return fmt.Errorf("LOGIN_RATE_MAX and LOGIN_RATE_WINDOW must be positive")
	}
	if c.NotifyDefaultDuration < 0 {
		return fmt.Errorf("NOTIFY_DEFAULT_DURATION must not be negative")
	}
	return nil
}

// StubUser es un usuario semilla del backend de desarrollo.
type StubUser struct {
	Email    string
	Password string
	Name     string
	Role     string
}

// ParseStubUsers interpreta entradas "email:password:role:name".
func (c *Config) ParseStubUsers() ([]StubUser, error) {
	users := make([]StubUser, 0, len(c.StubUsers))
	for _, raw := range c.StubUsers {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.SplitN(raw, ":", 4)
		if len(parts) < 3 {
			return nil, fmt.Errorf("invalid STUB_USERS entry %q", raw)
		}
		u := StubUser{
			Email:    strings.TrimSpace(parts[0]),
			Password: parts[1],
			Role:     strings.TrimSpace(parts[2]),
		}
		if len(parts) == 4 {
			u.Name = strings.TrimSpace(parts[3])
		}
		users = append(users, u)
	}
	return users, nil
}
