// Package config reads and writes the tracepage YAML configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// File represents the YAML structure. Payload is shown at "/"; Backend is
// the debugging backend's activation URL (an in-process switch when empty);
// Store is a pebble directory (in-memory when empty).
type File struct {
	Listen     string  `yaml:"listen" mapstructure:"listen"`
	Payload    string  `yaml:"payload,omitempty" mapstructure:"payload"`
	Backend    string  `yaml:"backend,omitempty" mapstructure:"backend"`
	Endpoint   string  `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	Store      string  `yaml:"store,omitempty" mapstructure:"store"`
	Layout     string  `yaml:"layout,omitempty" mapstructure:"layout"`
	LayoutPath string  `yaml:"layout_path,omitempty" mapstructure:"layout_path"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst  int     `yaml:"rate_burst" mapstructure:"rate_burst"`
	TLSCert    string  `yaml:"tls_cert,omitempty" mapstructure:"tls_cert"`
	TLSKey     string  `yaml:"tls_key,omitempty" mapstructure:"tls_key"`
}

// Default returns the configuration used when no file exists
func Default() *File {
	return &File{
		Listen:    "127.0.0.1:1984",
		Endpoint:  "/__wdb/on",
		Layout:    "wdb",
		RateLimit: 1,
		RateBurst: 5,
	}
}

// Validate checks fields that cannot be defaulted
func (f *File) Validate() error {
	if f.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if f.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if f.RateBurst < 0 {
		return fmt.Errorf("rate_burst must not be negative")
	}
	if (f.TLSCert == "") != (f.TLSKey == "") {
		return fmt.Errorf("tls_cert and tls_key must be set together")
	}
	if f.Endpoint != "" && f.Endpoint[0] != '/' {
		return fmt.Errorf("endpoint must be an absolute path, got %q", f.Endpoint)
	}
	return nil
}

// Manager handles persisting configuration
type Manager struct {
	mu       sync.Mutex
	filePath string
}

func NewManager(filePath string) *Manager {
	return &Manager{filePath: filePath}
}

// DefaultPath returns the default config file path
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tracepage", "tracepage.yaml")
}

// FilePath returns the config file path
func (m *Manager) FilePath() string {
	return m.filePath
}

// Load reads the config file
func (m *Manager) Load() (*File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the config file atomically
func (m *Manager) Save(cfg *File) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir := filepath.Dir(m.filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpPath := m.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmpPath, m.filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}
