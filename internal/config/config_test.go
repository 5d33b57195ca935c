package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/LazyMisha/prmptlaba/internal/apperr"
)

// clearEnv unsets every variable the loader reads so the host environment
// cannot leak into a test. t.Setenv records the old value for restore; the
// variable is then removed because godotenv never overrides a set variable,
// even an empty one.
func clearEnv(t *testing.T) {
	t.Helper()
	unset := func(key string) {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	for _, s := range specs {
		unset(s.env)
	}
	unset("OPENAI_API_KEY")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
}

func writeTempConfig(t *testing.T, values map[string]any) string {
	t.Helper()
	data, err := json.Marshal(values)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestDefaults verifies all default values are applied when no file exists.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newFileBackend(filepath.Join(t.TempDir(), "missing.json")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4200 {
		t.Errorf("Server.Port = %d, want 4200", cfg.Server.Port)
	}
	if cfg.Server.Bind != "127.0.0.1" {
		t.Errorf("Server.Bind = %q, want 127.0.0.1", cfg.Server.Bind)
	}
	if cfg.Server.RequestTimeout != 30*time.Second {
		t.Errorf("Server.RequestTimeout = %s, want 30s", cfg.Server.RequestTimeout)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("Cache.TTL = %s, want 1h", cfg.Cache.TTL)
	}
	if cfg.Storage.HistoryLimit != 50 {
		t.Errorf("Storage.HistoryLimit = %d, want 50", cfg.Storage.HistoryLimit)
	}
	if cfg.Retry.Attempts != 3 || cfg.Retry.BaseDelay != 300*time.Millisecond || cfg.Retry.Multiplier != 3 {
		t.Errorf("Retry = %+v, want 3 attempts, 300ms, x3", cfg.Retry)
	}
	if cfg.Provider.Model != "gpt-4o-mini" {
		t.Errorf("Provider.Model = %q, want gpt-4o-mini", cfg.Provider.Model)
	}
	if !strings.HasSuffix(cfg.Storage.DataDir, "prmptlaba") {
		t.Errorf("Storage.DataDir = %q, want a prmptlaba directory", cfg.Storage.DataDir)
	}
}

func TestFileValues(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, map[string]any{
		"server.port":          5100,
		"cache.ttl":            "10m",
		"provider.temperature": 0.2,
		"log.format":           "json",
	})

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5100 {
		t.Errorf("Server.Port = %d, want 5100", cfg.Server.Port)
	}
	if cfg.Cache.TTL != 10*time.Minute {
		t.Errorf("Cache.TTL = %s, want 10m", cfg.Cache.TTL)
	}
	if cfg.Provider.Temperature != 0.2 {
		t.Errorf("Provider.Temperature = %v, want 0.2", cfg.Provider.Temperature)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, map[string]any{"server.port": 5100})

	t.Setenv("PRMPTLABA_SERVER_PORT", "6200")
	t.Setenv("PRMPTLABA_CACHE_TTL", "90s")
	t.Setenv("PRMPTLABA_PROVIDER_API_KEY", "env-key")

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 6200 {
		t.Errorf("Server.Port = %d, want 6200", cfg.Server.Port)
	}
	if cfg.Cache.TTL != 90*time.Second {
		t.Errorf("Cache.TTL = %s, want 90s", cfg.Cache.TTL)
	}
	if cfg.Provider.APIKey != "env-key" {
		t.Errorf("Provider.APIKey = %q, want env-key", cfg.Provider.APIKey)
	}
}

func TestUnparseableEnvKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("PRMPTLABA_SERVER_PORT", "not-a-number")

	cfg, err := loadWith(newFileBackend(filepath.Join(t.TempDir(), "missing.json")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4200 {
		t.Errorf("Server.Port = %d, want default 4200", cfg.Server.Port)
	}
}

func TestAPIKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-fallback")

	cfg, err := loadWith(newFileBackend(filepath.Join(t.TempDir(), "missing.json")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.APIKey != "sk-fallback" {
		t.Errorf("Provider.APIKey = %q, want sk-fallback", cfg.Provider.APIKey)
	}

	t.Setenv("PRMPTLABA_PROVIDER_API_KEY", "sk-primary")
	cfg, err = loadWith(newFileBackend(filepath.Join(t.TempDir(), "missing.json")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.APIKey != "sk-primary" {
		t.Errorf("Provider.APIKey = %q, want sk-primary", cfg.Provider.APIKey)
	}
}

func TestLoad_MissingAPIKey(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	_, err := Load()
	if !apperr.Is(err, apperr.KindConfiguration) {
		t.Fatalf("Load() error = %v, want configuration error", err)
	}
	if !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Errorf("error %q should name the variable to set", err)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PRMPTLABA_STORAGE_HISTORY_LIMIT=7\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadSettings()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Storage.HistoryLimit != 7 {
		t.Errorf("Storage.HistoryLimit = %d, want 7 from .env", cfg.Storage.HistoryLimit)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero ttl", func(c *Config) { c.Cache.TTL = 0 }},
		{"negative ttl", func(c *Config) { c.Cache.TTL = -time.Second }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"history limit", func(c *Config) { c.Storage.HistoryLimit = 0 }},
		{"attempts", func(c *Config) { c.Retry.Attempts = 0 }},
		{"multiplier", func(c *Config) { c.Retry.Multiplier = 0.5 }},
		{"negative rate", func(c *Config) { c.Provider.RateLimit = -1 }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !apperr.Is(err, apperr.KindConfiguration) {
				t.Errorf("Validate() = %v, want configuration error", err)
			}
		})
	}

	if err := defaults().Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestSetKey(t *testing.T) {
	clearEnv(t)

	if err := SetKey("server.port", "4300"); err != nil {
		t.Fatalf("SetKey(server.port): %v", err)
	}
	if err := SetKey("cache.ttl", "15m"); err != nil {
		t.Fatalf("SetKey(cache.ttl): %v", err)
	}

	cfg, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if cfg.Server.Port != 4300 {
		t.Errorf("Server.Port = %d, want 4300", cfg.Server.Port)
	}
	if cfg.Cache.TTL != 15*time.Minute {
		t.Errorf("Cache.TTL = %s, want 15m", cfg.Cache.TTL)
	}

	if _, err := os.Stat(FilePath()); err != nil {
		t.Errorf("config file not written: %v", err)
	}
}

func TestSetKey_Rejects(t *testing.T) {
	clearEnv(t)

	if err := SetKey("provider.api_key", "sk-x"); err == nil {
		t.Error("setting a secret should fail")
	}
	if err := SetKey("nope.key", "1"); err == nil {
		t.Error("unknown key should fail")
	}
	if err := SetKey("cache.ttl", "soon"); err == nil {
		t.Error("unparseable duration should fail")
	}
}

func TestFileBackend_Types(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{"port": 4300, "huge": 1e30, "frac": 1.5, "text": "12", "word": "twelve", "flag": true, "nested": {"a": 1}}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	b := newFileBackend(path)

	intTests := []struct {
		key     string
		want    int
		ok      bool
		wantErr bool
	}{
		{"port", 4300, true, false},
		{"text", 12, true, false},
		{"huge", 0, true, true},
		{"frac", 0, true, true},
		{"word", 0, true, true},
		{"missing", 0, false, false},
	}
	for _, tt := range intTests {
		got, ok, err := b.GetInt(tt.key)
		if got != tt.want || ok != tt.ok || (err != nil) != tt.wantErr {
			t.Errorf("GetInt(%q) = %d, %v, %v; want %d, %v, err=%v", tt.key, got, ok, err, tt.want, tt.ok, tt.wantErr)
		}
	}

	if v, _, _ := b.GetString("frac"); v != "1.5" {
		t.Errorf("GetString(frac) = %q, want 1.5", v)
	}
	if v, _, _ := b.GetString("flag"); v != "true" {
		t.Errorf("GetString(flag) = %q, want true", v)
	}
	if _, _, err := b.GetString("nested"); err == nil {
		t.Error("GetString(nested) should fail for an object")
	}
}

func TestFileBackend_WriteIsAtomic(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "prmptlaba")
	path := filepath.Join(dir, "config.json")
	b := newFileBackend(path)

	if err := b.SetInt("server.port", 4300); err != nil {
		t.Fatalf("SetInt: %v", err)
	}
	if err := b.SetString("log.format", "json"); err != nil {
		t.Fatalf("SetString: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config file mode = %o, want 600", perm)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("leftover files in config dir: %v", entries)
	}

	reread := newFileBackend(path)
	if port, ok, err := reread.GetInt("server.port"); err != nil || !ok || port != 4300 {
		t.Errorf("GetInt after reload = %d, %v, %v", port, ok, err)
	}
	if format, _, _ := reread.GetString("log.format"); format != "json" {
		t.Errorf("GetString after reload = %q", format)
	}
}

func TestShowAll_MasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Provider.APIKey = "sk-1234567890abcdef"

	for _, info := range ShowAll(cfg) {
		if info.Key == "provider.api_key" {
			if info.Value == cfg.Provider.APIKey {
				t.Error("API key shown in clear")
			}
			if info.Value != "sk-...cdef" {
				t.Errorf("masked value = %q, want sk-...cdef", info.Value)
			}
		}
		if info.Key == "server.token" && info.Value != "(unset)" {
			t.Errorf("empty token = %q, want (unset)", info.Value)
		}
	}

	for _, k := range ValidKeys() {
		if k == "provider.api_key" || k == "server.token" {
			t.Errorf("ValidKeys includes secret %q", k)
		}
	}
}
