package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model. It is loaded once at
// startup and treated as immutable for the process lifetime.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Session  SessionConfig  `yaml:"session"`
	Pacing   PacingConfig   `yaml:"pacing"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Unfollow UnfollowConfig `yaml:"unfollow"`
	Platform PlatformConfig `yaml:"platform"`
	Storage  StorageConfig  `yaml:"storage"`
}

type ServerConfig struct {
	ListenAddr  string `yaml:"listenAddr"`
	MetricsAddr string `yaml:"metricsAddr"`
}

type SessionConfig struct {
	// Inactivity window in seconds; every authorized operation resets it.
	TTLSeconds int `yaml:"ttlSeconds"`
	// One live session at a time. Off permits independent sessions.
	SingleSession bool `yaml:"singleSession"`
	// Background sweep interval in seconds; 0 disables the sweeper.
	SweepSeconds int `yaml:"sweepSeconds"`
}

type PacingConfig struct {
	// Minimum gap between bulk fetch calls during scoring.
	FetchMillis int `yaml:"fetchMillis"`
	// Minimum gap between unfollow actions.
	UnfollowMillis int `yaml:"unfollowMillis"`
}

type AnalysisConfig struct {
	// Recent posts sampled per non-follower.
	PostsPerAccount int `yaml:"postsPerAccount"`
	// Maximum non-followers returned; the full set is still scored.
	MaxResults int `yaml:"maxResults"`
}

type UnfollowConfig struct {
	// Budgets on executed unfollows; 0 disables the cap.
	MaxPerHour int `yaml:"maxPerHour"`
	MaxPerDay  int `yaml:"maxPerDay"`
}

type PlatformConfig struct {
	BaseURL        string `yaml:"baseURL"`
	UserAgent      string `yaml:"userAgent"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

type StorageConfig struct {
	// Action journal path. ":memory:" keeps everything in process RAM,
	// which is the default; a file path is a deliberate operator opt-in.
	JournalPath string `yaml:"journalPath"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Server:   ServerConfig{ListenAddr: ":8000", MetricsAddr: ""},
		Session:  SessionConfig{TTLSeconds: 1800, SingleSession: true, SweepSeconds: 300},
		Pacing:   PacingConfig{FetchMillis: 2000, UnfollowMillis: 15000},
		Analysis: AnalysisConfig{PostsPerAccount: 12, MaxResults: 100},
		Unfollow: UnfollowConfig{MaxPerHour: 30, MaxPerDay: 150},
		Platform: PlatformConfig{
			BaseURL:        "https://i.instagram.com/api/v1",
			UserAgent:      "Mozilla/5.0 (Linux; Android 13) trimgram/1.0",
			TimeoutSeconds: 15,
		},
		Storage: StorageConfig{JournalPath: ":memory:"},
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if v := os.Getenv("TRIMGRAM_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("TRIMGRAM_METRICS_ADDR"); v != "" {
		c.Server.MetricsAddr = v
	}
	if v := os.Getenv("TRIMGRAM_JOURNAL_PATH"); v != "" {
		c.Storage.JournalPath = v
	}
	if v := os.Getenv("TRIMGRAM_SESSION_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Session.TTLSeconds = n
		}
	}
}

func (c SessionConfig) TTL() time.Duration { return time.Duration(c.TTLSeconds) * time.Second }

func (c SessionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepSeconds) * time.Second
}

func (c PacingConfig) FetchInterval() time.Duration {
	return time.Duration(c.FetchMillis) * time.Millisecond
}

func (c PacingConfig) UnfollowInterval() time.Duration {
	return time.Duration(c.UnfollowMillis) * time.Millisecond
}

func (c PlatformConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
