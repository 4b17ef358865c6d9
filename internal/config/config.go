// Package config loads and validates the daemon's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"scrobbled/internal/logging"
)

// Config holds runtime configuration loaded from TOML.
type Config struct {
	Log             string           `toml:"log"`     // log file path; empty logs to stderr
	Verbose         *int             `toml:"verbose"` // 0=warnings, 1=info (default), 2=debug
	Proxy           string           `toml:"proxy"`
	MusicDirectory  string           `toml:"music_directory"`
	JournalInterval int              `toml:"journal_interval"` // seconds between journal saves
	MPD             MPDConfig        `toml:"mpd"`
	History         HistoryConfig    `toml:"history"`
	Scrobblers      []ScrobblerEntry `toml:"scrobblers"`
}

// MPDConfig holds the player connection settings.
type MPDConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Password     string `toml:"password"`
	PollInterval int    `toml:"poll_interval"` // seconds
}

// HistoryConfig holds the delivered-scrobbles archive settings.
type HistoryConfig struct {
	Disabled bool   `toml:"disabled"`
	Path     string `toml:"path"` // default <state dir>/history.db
}

// ScrobblerEntry defines one backend. Either URL (network destination
// with credentials) or File (local sink) must be set, never both.
type ScrobblerEntry struct {
	Name     string `toml:"name"`
	URL      string `toml:"url"`
	File     string `toml:"file"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Journal  string `toml:"journal"` // default <state dir>/<name>.journal

	QueueLimit  int `toml:"queue_limit"`  // default 50
	BatchSize   int `toml:"batch_size"`   // default 32, protocol cap 50
	BackoffBase int `toml:"backoff_base"` // seconds, default 30
	BackoffMax  int `toml:"backoff_max"`  // seconds, default 480
}

// Load reads configuration from disk. If path is empty, a default
// OS-specific location is used.
func Load(path string) (*Config, string, error) {
	cfgPath := path
	if cfgPath == "" {
		var err error
		cfgPath, err = defaultPath()
		if err != nil {
			return nil, "", fmt.Errorf("resolve config path: %w", err)
		}
	}

	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, cfgPath, fmt.Errorf("parse config: %w", err)
	}

	if err := applyDefaults(&cfg); err != nil {
		return nil, cfgPath, err
	}

	if err := Validate(cfg); err != nil {
		return nil, cfgPath, err
	}

	return &cfg, cfgPath, nil
}

func defaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "scrobbled", "config.toml"), nil
}

func applyDefaults(cfg *Config) error {
	if cfg.Verbose == nil {
		v := 1
		cfg.Verbose = &v
	}
	if cfg.JournalInterval == 0 {
		cfg.JournalInterval = 600
	}
	if cfg.MPD.Host == "" {
		cfg.MPD.Host = "localhost"
		if host := os.Getenv("MPD_HOST"); host != "" {
			cfg.MPD.Host = host
		}
	}
	if cfg.MPD.Port == 0 {
		cfg.MPD.Port = 6600
	}
	if cfg.MPD.PollInterval == 0 {
		cfg.MPD.PollInterval = 1
	}
	if cfg.Proxy == "" {
		cfg.Proxy = os.Getenv("http_proxy")
	}

	stateDir, err := logging.StateDir()
	if err != nil {
		return fmt.Errorf("resolve state dir: %w", err)
	}
	if cfg.History.Path == "" {
		cfg.History.Path = filepath.Join(stateDir, "history.db")
	}
	for i := range cfg.Scrobblers {
		s := &cfg.Scrobblers[i]
		if s.Journal == "" && s.Name != "" {
			s.Journal = filepath.Join(stateDir, s.Name+".journal")
		}
		if s.QueueLimit == 0 {
			s.QueueLimit = 50
		}
		if s.BatchSize == 0 {
			s.BatchSize = 32
		}
		if s.BackoffBase == 0 {
			s.BackoffBase = 30
		}
		if s.BackoffMax == 0 {
			s.BackoffMax = 480
		}
	}
	return nil
}

// Validate performs semantic validation. The process must not start
// without at least one well-formed backend.
func Validate(cfg Config) error {
	if len(cfg.Scrobblers) == 0 {
		return errors.New("no scrobblers configured")
	}

	seen := make(map[string]bool)
	for _, s := range cfg.Scrobblers {
		if s.Name == "" {
			return errors.New("scrobbler without a name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate scrobbler name %q", s.Name)
		}
		seen[s.Name] = true

		switch {
		case s.URL != "" && s.File != "":
			return fmt.Errorf("scrobbler %q has both 'url' and 'file'", s.Name)
		case s.URL == "" && s.File == "":
			return fmt.Errorf("scrobbler %q has neither 'url' nor 'file'", s.Name)
		case s.URL != "":
			if s.Username == "" {
				return fmt.Errorf("scrobbler %q has no 'username'", s.Name)
			}
			if s.Password == "" {
				return fmt.Errorf("scrobbler %q has no 'password'", s.Name)
			}
		}

		if s.BatchSize < 0 || s.BatchSize > 50 {
			return fmt.Errorf("scrobbler %q: batch_size must be 1-50", s.Name)
		}
		if s.BackoffBase > s.BackoffMax {
			return fmt.Errorf("scrobbler %q: backoff_base exceeds backoff_max", s.Name)
		}
	}

	if cfg.MPD.Port < 1 || cfg.MPD.Port > 65535 {
		return fmt.Errorf("mpd.port out of range: %d", cfg.MPD.Port)
	}
	return nil
}

// Verbosity returns the configured log level. An explicit 0 selects
// warnings only; leaving the key unset selects the info default.
func (c Config) Verbosity() int {
	if c.Verbose == nil {
		return 1
	}
	return *c.Verbose
}

// JournalSaveInterval returns the journal save interval.
func (c Config) JournalSaveInterval() time.Duration {
	return time.Duration(c.JournalInterval) * time.Second
}

// Interval returns the player poll interval.
func (c MPDConfig) Interval() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}
