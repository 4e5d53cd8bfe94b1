// Package config loads the server configuration from an optional YAML file
// overlaid by ORDERS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory    = "memory"
	DriverPostgres  = "postgres"
	DriverSQLite    = "sqlite"
	DriverPostgREST = "postgrest"
)

// Authentication modes.
const (
	AuthStatic = "static"
	AuthGoTrue = "gotrue"
)

// ErrInvalid wraps every validation failure returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Session   SessionConfig   `yaml:"session"`
	Store     StoreConfig     `yaml:"store"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Env   string `yaml:"env"`
}

type SessionConfig struct {
	Secret     string        `yaml:"secret" validate:"required,min=16"`
	CookieName string        `yaml:"cookie_name" validate:"required"`
	TTL        time.Duration `yaml:"ttl" validate:"gt=0"`
	Secure     bool          `yaml:"secure"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" validate:"oneof=memory postgres sqlite postgrest"`
	DSN    string `yaml:"dsn"`
	URL    string `yaml:"url" validate:"required_if=Driver postgrest,omitempty,url"`
	APIKey string `yaml:"api_key" validate:"required_if=Driver postgrest"`
}

type AuthConfig struct {
	Mode   string       `yaml:"mode" validate:"oneof=static gotrue"`
	Users  []UserConfig `yaml:"users" validate:"dive"`
	URL    string       `yaml:"url" validate:"required_if=Mode gotrue,omitempty,url"`
	APIKey string       `yaml:"api_key" validate:"required_if=Mode gotrue"`
}

// UserConfig is a static account. PasswordHash is a bcrypt hash.
type UserConfig struct {
	ID           string `yaml:"id" validate:"required"`
	Email        string `yaml:"email" validate:"required,email"`
	PasswordHash string `yaml:"password_hash" validate:"required"`
}

type RateLimitConfig struct {
	// SignInPerMinute caps sign-in attempts per client address. Zero disables it.
	SignInPerMinute int `yaml:"signin_per_minute" validate:"gte=0"`
}

// Default returns a configuration that runs locally with in-memory storage.
// Session.Secret is left empty and must be supplied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info", Env: "dev"},
		Session: SessionConfig{
			CookieName: "om_session",
			TTL:        12 * time.Hour,
		},
		Store:     StoreConfig{Driver: DriverMemory},
		Auth:      AuthConfig{Mode: AuthStatic},
		RateLimit: RateLimitConfig{SignInPerMinute: 10},
	}
}

// Load starts from Default, applies the YAML file at path when path is not
// empty, then the environment, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks field rules and the cross-field requirements between the
// store driver and its connection settings.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(yamlFieldName)

	var problems []string

	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s: failed %q", trimRoot(fe.Namespace()), fe.Tag()))
		}
	}

	if (c.Store.Driver == DriverPostgres || c.Store.Driver == DriverSQLite) && c.Store.DSN == "" {
		problems = append(problems, fmt.Sprintf("store.dsn: required for driver %q", c.Store.Driver))
	}

	if c.Auth.Mode == AuthStatic && len(c.Auth.Users) == 0 {
		problems = append(problems, "auth.users: at least one user is required in static mode")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}

	return nil
}

func yamlFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
	if name == "-" {
		return ""
	}

	return name
}

func trimRoot(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}

	return namespace
}
