package config

import (
	"fmt"
	"strconv"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ORDERS_"

type lookupFunc func(key string) (string, bool)

// applyEnvOverrides overrides config values with environment variables if set.
// Invalid values fail fast.
func applyEnvOverrides(cfg *Config, lookup lookupFunc) error {
	texts := map[string]*string{
		"ADDR":           &cfg.Server.Addr,
		"LOG_LEVEL":      &cfg.Log.Level,
		"ENV":            &cfg.Log.Env,
		"SESSION_SECRET": &cfg.Session.Secret,
		"SESSION_COOKIE": &cfg.Session.CookieName,
		"STORE_DRIVER":   &cfg.Store.Driver,
		"STORE_DSN":      &cfg.Store.DSN,
		"STORE_URL":      &cfg.Store.URL,
		"STORE_API_KEY":  &cfg.Store.APIKey,
		"AUTH_MODE":      &cfg.Auth.Mode,
		"AUTH_URL":       &cfg.Auth.URL,
		"AUTH_API_KEY":   &cfg.Auth.APIKey,
	}
	for name, dst := range texts {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"READ_TIMEOUT":     &cfg.Server.ReadTimeout,
		"WRITE_TIMEOUT":    &cfg.Server.WriteTimeout,
		"SHUTDOWN_TIMEOUT": &cfg.Server.ShutdownTimeout,
		"SESSION_TTL":      &cfg.Session.TTL,
	}
	for name, dst := range durations {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s %q: %w", EnvPrefix, name, v, err)
		}
		*dst = d
	}

	if v, ok := lookup(EnvPrefix + "SESSION_SECURE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sSESSION_SECURE %q: %w", EnvPrefix, v, err)
		}
		cfg.Session.Secure = b
	}

	if v, ok := lookup(EnvPrefix + "SIGNIN_PER_MINUTE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sSIGNIN_PER_MINUTE %q: %w", EnvPrefix, v, err)
		}
		cfg.RateLimit.SignInPerMinute = n
	}

	return nil
}
