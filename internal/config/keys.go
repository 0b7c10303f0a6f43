package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

// keySpec binds a dotted config key to its environment override and to the
// Config field it fills. set parses the raw string form.
type keySpec struct {
	key    string
	env    string
	secret bool
	set    setter
	get    getter
}

type (
	setter func(cfg *Config, raw string) error
	getter func(cfg Config) string
)

func str(field func(*Config) *string) (setter, getter) {
	set := func(cfg *Config, raw string) error {
		*field(cfg) = raw
		return nil
	}
	get := func(cfg Config) string { return *field(&cfg) }
	return set, get
}

func integer(field func(*Config) *int) (setter, getter) {
	set := func(cfg *Config, raw string) error {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("not an integer: %q", raw)
		}
		*field(cfg) = n
		return nil
	}
	get := func(cfg Config) string { return strconv.Itoa(*field(&cfg)) }
	return set, get
}

func float(field func(*Config) *float64) (setter, getter) {
	set := func(cfg *Config, raw string) error {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", raw)
		}
		*field(cfg) = f
		return nil
	}
	get := func(cfg Config) string { return strconv.FormatFloat(*field(&cfg), 'g', -1, 64) }
	return set, get
}

func spec(key, env string, secret bool, set setter, get getter) keySpec {
	return keySpec{key: key, env: env, secret: secret, set: set, get: get}
}

var specs = func() []keySpec {
	apiSet, apiGet := str(func(c *Config) *string { return &c.Backend.APIURL })
	profSet, profGet := str(func(c *Config) *string { return &c.Backend.ProfileURL })
	srcSet, srcGet := integer(func(c *Config) *int { return &c.Chat.MaxSources })
	tempSet, tempGet := float(func(c *Config) *float64 { return &c.Chat.Temperature })
	portSet, portGet := integer(func(c *Config) *int { return &c.Server.Port })
	tokSet, tokGet := str(func(c *Config) *string { return &c.Server.Token })
	dirSet, dirGet := str(func(c *Config) *string { return &c.Storage.DataDir })
	lvlSet, lvlGet := str(func(c *Config) *string { return &c.Log.Level })

	return []keySpec{
		spec("backend.api_url", "PRIMER_API_URL", false, apiSet, apiGet),
		spec("backend.profile_url", "PRIMER_PROFILE_URL", false, profSet, profGet),
		spec("chat.max_sources", "PRIMER_CHAT_MAX_SOURCES", false, srcSet, srcGet),
		spec("chat.temperature", "PRIMER_CHAT_TEMPERATURE", false, tempSet, tempGet),
		spec("server.port", "PRIMER_SERVER_PORT", false, portSet, portGet),
		spec("server.token", "PRIMER_SERVER_TOKEN", true, tokSet, tokGet),
		spec("storage.data_dir", "PRIMER_STORAGE_DATA_DIR", false, dirSet, dirGet),
		spec("log.level", "PRIMER_LOG_LEVEL", false, lvlSet, lvlGet),
	}
}()

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// applyBackend copies stored values into cfg. A stored value that does not
// parse is an error: it was written by hand or by another version.
func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		raw, ok, err := b.Lookup(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok {
			continue
		}
		if err := s.set(cfg, raw); err != nil {
			return fmt.Errorf("invalid config: %s: %w", s.key, err)
		}
	}
	return nil
}

// applyEnvOverrides applies PRIMER_* variables. Unparseable values are logged
// and skipped.
func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		if err := s.set(cfg, raw); err != nil {
			slog.Warn("ignoring config override from environment", "env", s.env, "error", err)
		}
	}
}
