package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// PasswordMask is what a sanitized view shows instead of a stored password.
const PasswordMask = "***"

// Kea is the control agent connection section.
type Kea struct {
	ControlAgentURL string `yaml:"control_agent_url"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	DefaultSubnetID int    `yaml:"default_subnet_id"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

// App is the gateway's own runtime section.
type App struct {
	Listen             string `yaml:"listen"`
	LockPath           string `yaml:"lock_path"`
	LockTimeoutSeconds int    `yaml:"lock_timeout_seconds"`
	Database           string `yaml:"database"`
	SecretsPath        string `yaml:"secrets_path"`
	APIToken           string `yaml:"api_token"`
}

// Logging is
type Logging struct {
	Level string `yaml:"level"`
}

// Config is the keagw configuration.
type Config struct {
	Kea     Kea     `yaml:"kea"`
	App     App     `yaml:"app"`
	Logging Logging `yaml:"logging"`
}

// Default returns the built-in configuration used when no file is present;
// a loaded file is overlaid on top of it, key by key.
func Default() *Config {
	return &Config{
		Kea: Kea{
			ControlAgentURL: "http://localhost:8000",
			DefaultSubnetID: 1,
			TimeoutSeconds:  10,
		},
		App: App{
			Listen:             "0.0.0.0:5000",
			LockPath:           filepath.Join(os.TempDir(), "keagw-reservation.lock"),
			LockTimeoutSeconds: 10,
			Database:           "file:keagw.db?cache=shared",
			SecretsPath:        filepath.Join(os.TempDir(), "keagw.token"),
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// Load reads the configuration at path on top of the defaults. A missing
// file is not an error.
func Load(path string) (*Config, error) {
	c := Default()
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config %s: %w", path, err)
	}
	defer f.Close()

	d := yaml.NewDecoder(f)
	if err := d.Decode(c); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	return c, nil
}

// Sanitized returns a copy safe for display, with the password masked.
func (c *Config) Sanitized() *Config {
	out := *c
	if out.Kea.Password != "" {
		out.Kea.Password = PasswordMask
	}
	return &out
}

// Store hands out configuration snapshots, re-reading the file only when
// its modification time changes. Handlers take one snapshot per request;
// nothing in the hot path holds global configuration state.
type Store struct {
	path string

	mu     sync.Mutex
	mtime  time.Time
	size   int64
	cached *Config
}

// NewStore is
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Snapshot returns the current configuration, from cache when the file is
// unchanged since the last read.
func (s *Store) Snapshot() (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		if s.cached == nil {
			s.cached = Default()
		}
		return s.cached, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat config %s: %w", s.path, err)
	}

	if s.cached != nil && st.ModTime().Equal(s.mtime) && st.Size() == s.size {
		return s.cached, nil
	}

	c, err := Load(s.path)
	if err != nil {
		return nil, err
	}
	s.cached = c
	s.mtime = st.ModTime()
	s.size = st.Size()
	return c, nil
}

// Save writes the configuration atomically and drops the cache so the next
// snapshot observes it.
func (s *Store) Save(c *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0600); err != nil {
		return fmt.Errorf("failed to write config %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace config %s: %w", s.path, err)
	}
	s.cached = nil
	return nil
}
