//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// defaultsDomain is the UserDefaults domain holding primer's settings.
const defaultsDomain = "com.primer.app"

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "primer-data"
	}
	return filepath.Join(home, "Library", "Application Support", "primer")
}

// userDefaults reads and writes through the `defaults` CLI. Every value is
// written with -string so reads never depend on the plist type.
type userDefaults struct {
	domain string
}

func newPlatformBackend() Backend {
	return userDefaults{domain: defaultsDomain}
}

func (d userDefaults) Lookup(key string) (string, bool, error) {
	out, err := exec.Command("defaults", "read", d.domain, key).CombinedOutput()
	if err != nil {
		// `defaults read` exits 1 when the key does not exist.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("defaults read %s %s: %w (%s)", d.domain, key, err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), true, nil
}

func (d userDefaults) Store(key, value string) error {
	if out, err := exec.Command("defaults", "write", d.domain, key, "-string", value).CombinedOutput(); err != nil {
		return fmt.Errorf("defaults write %s %s: %w (%s)", d.domain, key, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (d userDefaults) Remove(key string) error {
	if _, ok, err := d.Lookup(key); err != nil || !ok {
		return err
	}
	if out, err := exec.Command("defaults", "delete", d.domain, key).CombinedOutput(); err != nil {
		return fmt.Errorf("defaults delete %s %s: %w (%s)", d.domain, key, err, strings.TrimSpace(string(out)))
	}
	return nil
}
