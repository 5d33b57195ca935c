package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/LazyMisha/prmptlaba/internal/apperr"
)

type Config struct {
	Server   ServerConfig
	Provider ProviderConfig
	Storage  StorageConfig
	Cache    CacheConfig
	Retry    RetryConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port           int
	Bind           string
	Token          string
	RequestTimeout time.Duration
}

type ProviderConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	// RateLimit is the sustained provider calls per second; 0 disables it.
	RateLimit float64
	RateBurst int
}

type StorageConfig struct {
	DataDir      string
	HistoryLimit int
}

type CacheConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

type RetryConfig struct {
	Attempts   int
	BaseDelay  time.Duration
	Multiplier float64
}

type LogConfig struct {
	Level  string
	Format string
}

// DBPath is the database file inside the data directory.
func (c Config) DBPath() string {
	return filepath.Join(c.Storage.DataDir, "prmptlaba.db")
}

// BaseURL is where the local server listens, for CLI clients.
func (c Config) BaseURL() string {
	host := c.Server.Bind
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return "http://" + host + ":" + strconv.Itoa(c.Server.Port)
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           4200,
			Bind:           "127.0.0.1",
			RequestTimeout: 30 * time.Second,
		},
		Provider: ProviderConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			MaxTokens:   1000,
			Temperature: 0.7,
			RateBurst:   1,
		},
		Storage: StorageConfig{
			DataDir:      defaultDataDir(),
			HistoryLimit: 50,
		},
		Cache: CacheConfig{
			TTL:           time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Retry: RetryConfig{
			Attempts:   3,
			BaseDelay:  300 * time.Millisecond,
			Multiplier: 3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration and requires the provider API key.
//
// Sources, lowest precedence first: built-in defaults, the JSON file at
// $XDG_CONFIG_HOME/prmptlaba/config.json, a .env file in the working
// directory, and PRMPTLABA_* environment variables. The API key is read
// from PRMPTLABA_PROVIDER_API_KEY, falling back to OPENAI_API_KEY.
func Load() (Config, error) {
	cfg, err := LoadSettings()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadSettings is Load without the API key requirement. CLI commands that
// only talk to the local server use it.
func LoadSettings() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return loadWith(newFileBackend(configFilePath()))
}

func loadDotEnv(path string) error {
	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperr.NewConfiguration("reading %s: %v", path, err)
	}
	return nil
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, apperr.NewConfiguration("%v", err)
	}
	applyEnvOverrides(&cfg)

	if cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RequireAPIKey fails with a configuration error when no key is set.
func (c Config) RequireAPIKey() error {
	if c.Provider.APIKey == "" {
		return apperr.NewConfiguration(
			"missing required config: provider API key. Set PRMPTLABA_PROVIDER_API_KEY or OPENAI_API_KEY")
	}
	return nil
}

// Validate rejects settings the rest of the program cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Server.Port < 1 || c.Server.Port > 65535:
		return apperr.NewConfiguration("server.port must be between 1 and 65535, got %d", c.Server.Port)
	case c.Server.RequestTimeout <= 0:
		return apperr.NewConfiguration("server.request_timeout must be positive")
	case c.Cache.TTL <= 0:
		return apperr.NewConfiguration("cache.ttl must be positive, got %s", c.Cache.TTL)
	case c.Storage.HistoryLimit < 1:
		return apperr.NewConfiguration("storage.history_limit must be at least 1, got %d", c.Storage.HistoryLimit)
	case c.Retry.Attempts < 1:
		return apperr.NewConfiguration("retry.attempts must be at least 1, got %d", c.Retry.Attempts)
	case c.Retry.Multiplier < 1:
		return apperr.NewConfiguration("retry.multiplier must be at least 1, got %v", c.Retry.Multiplier)
	case c.Provider.RateLimit < 0:
		return apperr.NewConfiguration("provider.rate_limit must not be negative")
	case c.Log.Format != "text" && c.Log.Format != "json":
		return apperr.NewConfiguration("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "prmptlaba-data"
		}
	}
	return filepath.Join(dir, "prmptlaba")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "prmptlaba", "config.json")
}
