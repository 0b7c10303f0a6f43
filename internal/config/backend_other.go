//go:build !darwin

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

func defaultDataDir() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), "primer")
}

func configFilePath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "primer", "config.json")
}

// xdgDir resolves an XDG base directory, falling back to a path under $HOME
// and finally to the working directory.
func xdgDir(env string, homeRel ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(append([]string{home}, homeRel...)...)
}

// jsonFileBackend keeps every key in one flat JSON object. Numbers written by
// hand into the file are accepted and read back as their decimal text.
type jsonFileBackend struct {
	path   string
	values map[string]json.RawMessage
}

func newPlatformBackend() Backend {
	return openJSONFile(configFilePath())
}

func openJSONFile(path string) *jsonFileBackend {
	b := &jsonFileBackend{path: path, values: map[string]json.RawMessage{}}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		slog.Warn("could not read config file, using defaults", "path", path, "error", err)
	default:
		if err := json.Unmarshal(data, &b.values); err != nil {
			slog.Warn("could not parse config file, using defaults", "path", path, "error", err)
		}
	}
	return b
}

func (b *jsonFileBackend) Lookup(key string) (string, bool, error) {
	raw, ok := b.values[key]
	if !ok {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true, nil
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err == nil {
		return strconv.FormatBool(v), true, nil
	}
	return "", true, fmt.Errorf("%s in %s is not a string or number", key, b.path)
}

func (b *jsonFileBackend) Store(key, value string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	b.values[key] = raw
	return b.flush()
}

func (b *jsonFileBackend) Remove(key string) error {
	if _, ok := b.values[key]; !ok {
		return nil
	}
	delete(b.values, key)
	return b.flush()
}

func (b *jsonFileBackend) flush() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(b.values, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(b.path, data, 0o600)
}
