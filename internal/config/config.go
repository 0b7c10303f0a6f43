package config

import (
	"fmt"
	"net/url"
	"strings"
)

type Config struct {
	Backend BackendConfig
	Chat    ChatConfig
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
}

// BackendConfig locates the textbook backend. ProfileURL is the origin of the
// personalization endpoints; empty means the same origin as APIURL.
type BackendConfig struct {
	APIURL     string
	ProfileURL string
}

type ChatConfig struct {
	MaxSources  int
	Temperature float64
}

// ServerConfig is the local API listener. A non-empty Token requires
// "Authorization: Bearer <token>" on every route except /health.
type ServerConfig struct {
	Port  int
	Token string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Backend: BackendConfig{
			APIURL: "http://localhost:8000",
		},
		Chat: ChatConfig{
			MaxSources:  3,
			Temperature: 0.7,
		},
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ProfileBaseURL returns the origin used for /api/personalization requests.
func (c Config) ProfileBaseURL() string {
	if c.Backend.ProfileURL != "" {
		return strings.TrimRight(c.Backend.ProfileURL, "/")
	}
	return strings.TrimRight(c.Backend.APIURL, "/")
}

// Load reads configuration from the platform-native backend and environment
// variables.
//
// On macOS the backend is UserDefaults (domain: com.primer.app).
// On other platforms it is a JSON file at $XDG_CONFIG_HOME/primer/config.json.
//
// Environment variables (PRIMER_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if err := validateBaseURL("backend.api_url", c.Backend.APIURL); err != nil {
		return err
	}
	if c.Backend.ProfileURL != "" {
		if err := validateBaseURL("backend.profile_url", c.Backend.ProfileURL); err != nil {
			return err
		}
	}
	if c.Chat.MaxSources < 1 || c.Chat.MaxSources > 10 {
		return fmt.Errorf("invalid config: chat.max_sources must be between 1 and 10, got %d", c.Chat.MaxSources)
	}
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		return fmt.Errorf("invalid config: chat.temperature must be between 0 and 2, got %v", c.Chat.Temperature)
	}
	return nil
}

func validateBaseURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid config: %s: %w", key, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid config: %s must be an http(s) URL, got %q", key, raw)
	}
	return nil
}
