//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestJSONFileBackend_StoreLookupRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "primer", "config.json")

	b := openJSONFile(path)
	if err := b.Store("server.port", "4200"); err != nil {
		t.Fatalf("Store: %v", err)
	}

	reopened := openJSONFile(path)
	v, ok, err := reopened.Lookup("server.port")
	if err != nil || !ok || v != "4200" {
		t.Errorf("Lookup = %q, %v, %v; want 4200", v, ok, err)
	}

	if err := reopened.Remove("server.port"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := openJSONFile(path).Lookup("server.port"); ok {
		t.Error("key still present after Remove")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config file mode = %o, want 600", perm)
	}
}

func TestJSONFileBackend_HandWrittenNumbers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"chat.max_sources": 5, "chat.temperature": 0.25}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PRIMER_CHAT_MAX_SOURCES", "")
	t.Setenv("PRIMER_CHAT_TEMPERATURE", "")

	cfg, err := loadWith(openJSONFile(path))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Chat.MaxSources != 5 || cfg.Chat.Temperature != 0.25 {
		t.Errorf("chat = %+v", cfg.Chat)
	}
}

func TestJSONFileBackend_MissingFile(t *testing.T) {
	b := openJSONFile(filepath.Join(t.TempDir(), "absent.json"))
	if _, ok, err := b.Lookup("log.level"); ok || err != nil {
		t.Errorf("Lookup on missing file = %v, %v", ok, err)
	}
}
