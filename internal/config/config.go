// Package config loads indexq configuration from defaults, the user config
// file, the project .indexq.yaml and INDEXQ_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	ixerrors "github.com/Aman-CERP/indexq/internal/errors"
	"github.com/Aman-CERP/indexq/internal/job"
)

// ProjectConfigName is the per-project configuration file.
const ProjectConfigName = ".indexq.yaml"

// Supported search engine backends.
const (
	BackendSQLite = "sqlite"
	BackendBleve  = "bleve"
)

// Config represents the complete indexq configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Content ContentConfig `yaml:"content" json:"content"`
	Queue   QueueConfig   `yaml:"queue" json:"queue"`
	Index   IndexConfig   `yaml:"index" json:"index"`
	Watch   WatchConfig   `yaml:"watch" json:"watch"`
	Daemon  DaemonConfig  `yaml:"daemon" json:"daemon"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ContentConfig locates the content repository.
type ContentConfig struct {
	// Root is the repository root, relative to the project directory unless absolute.
	Root string `yaml:"root" json:"root"`
	// CacheSize is the number of loaded documents kept in memory.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// Languages are the suffixes read as translations (<doc>.<lang>.md).
	// Empty keeps the repository's built-in list.
	Languages []string `yaml:"languages,omitempty" json:"languages,omitempty"`
}

// QueueConfig sizes the indexing queue.
type QueueConfig struct {
	// Capacity is the number of pending jobs before producers are held back.
	Capacity int `yaml:"capacity" json:"capacity"`
	// MaxWait bounds each blocking attempt on the queue.
	MaxWait time.Duration `yaml:"max_wait" json:"max_wait"`
}

// IndexConfig selects and tunes the search engine.
type IndexConfig struct {
	// Backend is "sqlite" (FTS5, default) or "bleve".
	Backend string `yaml:"backend" json:"backend"`
	// DataDir holds the engine files, index state and runtime files.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// RetryAttempts is how often a failing engine write is retried.
	RetryAttempts int `yaml:"retry_attempts" json:"retry_attempts"`
	// DrainTimeout bounds how long shutdown waits for the queue to empty.
	DrainTimeout time.Duration `yaml:"drain_timeout" json:"drain_timeout"`
}

// WatchConfig configures change notifications.
type WatchConfig struct {
	Enabled      *bool         `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Debounce     time.Duration `yaml:"debounce" json:"debounce"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	// Priority is given to jobs created from file changes.
	Priority string   `yaml:"priority" json:"priority"`
	Exclude  []string `yaml:"exclude" json:"exclude"`
}

// DaemonConfig configures the control socket and metrics endpoint.
type DaemonConfig struct {
	// Socket is the control socket path, relative to the project directory unless absolute.
	Socket string `yaml:"socket" json:"socket"`
	// MetricsAddr serves Prometheus metrics when non-empty, e.g. 127.0.0.1:9464.
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// LoggingConfig configures the service log.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	enabled := true
	return &Config{
		Version: 1,
		Content: ContentConfig{
			Root:      "content",
			CacheSize: 512,
		},
		Queue: QueueConfig{
			Capacity: 1000,
			MaxWait:  10 * time.Second,
		},
		Index: IndexConfig{
			Backend:       BackendSQLite,
			DataDir:       ".indexq",
			RetryAttempts: 3,
			DrainTimeout:  30 * time.Second,
		},
		Watch: WatchConfig{
			Enabled:      &enabled,
			Debounce:     200 * time.Millisecond,
			PollInterval: 5 * time.Second,
			Priority:     job.Default.String(),
			Exclude:      []string{"*.tmp", "*.swp", "*~"},
		},
		Daemon: DaemonConfig{
			Socket: filepath.Join(".indexq", "indexq.sock"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// GetUserConfigPath returns the user configuration file:
// $XDG_CONFIG_HOME/indexq/config.yaml or ~/.config/indexq/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "indexq", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "indexq", "config.yaml")
	}
	return filepath.Join(home, ".config", "indexq", "config.yaml")
}

// Load loads configuration for the project in dir. Precedence, lowest first:
//  1. Built-in defaults
//  2. User config (~/.config/indexq/config.yaml)
//  3. Project config (.indexq.yaml in dir)
//  4. Environment variables (INDEXQ_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, err
		}
	}

	if projectPath := filepath.Join(dir, ProjectConfigName); fileExists(projectPath) {
		if err := cfg.loadYAML(projectPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads defaults overlaid with a single explicit config file, then
// the environment. Used for --config.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return ixerrors.New(ixerrors.ErrCodeConfigNotFound, fmt.Sprintf("failed to read config file %s", path), err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return ixerrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith copies the non-zero values of other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Content.Root != "" {
		c.Content.Root = other.Content.Root
	}
	if other.Content.CacheSize != 0 {
		c.Content.CacheSize = other.Content.CacheSize
	}
	if len(other.Content.Languages) > 0 {
		c.Content.Languages = other.Content.Languages
	}

	if other.Queue.Capacity != 0 {
		c.Queue.Capacity = other.Queue.Capacity
	}
	if other.Queue.MaxWait != 0 {
		c.Queue.MaxWait = other.Queue.MaxWait
	}

	if other.Index.Backend != "" {
		c.Index.Backend = other.Index.Backend
	}
	if other.Index.DataDir != "" {
		c.Index.DataDir = other.Index.DataDir
	}
	if other.Index.RetryAttempts != 0 {
		c.Index.RetryAttempts = other.Index.RetryAttempts
	}
	if other.Index.DrainTimeout != 0 {
		c.Index.DrainTimeout = other.Index.DrainTimeout
	}

	if other.Watch.Enabled != nil {
		enabled := *other.Watch.Enabled
		c.Watch.Enabled = &enabled
	}
	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if other.Watch.PollInterval != 0 {
		c.Watch.PollInterval = other.Watch.PollInterval
	}
	if other.Watch.Priority != "" {
		c.Watch.Priority = other.Watch.Priority
	}
	if len(other.Watch.Exclude) > 0 {
		// Merge with defaults rather than replace
		c.Watch.Exclude = append(c.Watch.Exclude, other.Watch.Exclude...)
	}

	if other.Daemon.Socket != "" {
		c.Daemon.Socket = other.Daemon.Socket
	}
	if other.Daemon.MetricsAddr != "" {
		c.Daemon.MetricsAddr = other.Daemon.MetricsAddr
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
}

// applyEnvOverrides applies INDEXQ_* environment variables. Unlike file
// values, a malformed number or duration here is reported rather than
// ignored.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("INDEXQ_QUEUE_CAPACITY"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return envError("INDEXQ_QUEUE_CAPACITY", v, err)
		}
		c.Queue.Capacity = n
	}
	if v := os.Getenv("INDEXQ_QUEUE_MAX_WAIT"); v != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return envError("INDEXQ_QUEUE_MAX_WAIT", v, err)
		}
		c.Queue.MaxWait = d
	}
	if v := os.Getenv("INDEXQ_INDEX_BACKEND"); v != "" {
		c.Index.Backend = v
	}
	if v := os.Getenv("INDEXQ_DATA_DIR"); v != "" {
		c.Index.DataDir = v
	}
	if v := os.Getenv("INDEXQ_CONTENT_ROOT"); v != "" {
		c.Content.Root = v
	}
	if v := os.Getenv("INDEXQ_WATCH_PRIORITY"); v != "" {
		c.Watch.Priority = v
	}
	if v := os.Getenv("INDEXQ_WATCH_ENABLED"); v != "" {
		enabled := strings.EqualFold(v, "true") || v == "1"
		c.Watch.Enabled = &enabled
	}
	if v := os.Getenv("INDEXQ_METRICS_ADDR"); v != "" {
		c.Daemon.MetricsAddr = v
	}
	if v := os.Getenv("INDEXQ_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

func envError(name, value string, err error) error {
	return ixerrors.ConfigError(fmt.Sprintf("invalid %s=%q", name, value), err)
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Queue.Capacity <= 0 {
		return invalid("queue.capacity", fmt.Sprintf("must be positive, got %d", c.Queue.Capacity))
	}
	if c.Queue.MaxWait <= 0 {
		return invalid("queue.max_wait", fmt.Sprintf("must be positive, got %s", c.Queue.MaxWait))
	}
	if c.Content.CacheSize <= 0 {
		return invalid("content.cache_size", fmt.Sprintf("must be positive, got %d", c.Content.CacheSize))
	}
	if c.Content.Root == "" {
		return invalid("content.root", "must not be empty")
	}

	switch strings.ToLower(c.Index.Backend) {
	case BackendSQLite, BackendBleve:
	default:
		return invalid("index.backend", fmt.Sprintf("must be 'sqlite' or 'bleve', got %q", c.Index.Backend))
	}
	if c.Index.DataDir == "" {
		return invalid("index.data_dir", "must not be empty")
	}
	if c.Index.RetryAttempts < 0 {
		return invalid("index.retry_attempts", fmt.Sprintf("must be non-negative, got %d", c.Index.RetryAttempts))
	}

	if _, err := job.ParsePriority(c.Watch.Priority); err != nil {
		return invalid("watch.priority", err.Error())
	}
	for _, pattern := range c.Watch.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return invalid("watch.exclude", fmt.Sprintf("bad pattern %q: %v", pattern, err))
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return invalid("logging.level", fmt.Sprintf("must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level))
	}
	return nil
}

func invalid(field, reason string) error {
	return ixerrors.ConfigError(fmt.Sprintf("%s %s", field, reason), nil).
		WithDetail("field", field).
		WithSuggestion(fmt.Sprintf("Fix %s in %s or the matching INDEXQ_* variable", field, ProjectConfigName))
}

// WatchEnabled reports whether change notifications are on.
func (c *Config) WatchEnabled() bool {
	return c.Watch.Enabled == nil || *c.Watch.Enabled
}

// WatchPriority returns the parsed priority for change-driven jobs.
func (c *Config) WatchPriority() job.Priority {
	p, _ := job.ParsePriority(c.Watch.Priority)
	return p
}

// Resolve returns path relative to the project root unless it is absolute.
func Resolve(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// FindProjectRoot walks up from startDir looking for .indexq.yaml or .git.
// It falls back to startDir itself.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	current := absDir
	for {
		if fileExists(filepath.Join(current, ProjectConfigName)) || dirExists(filepath.Join(current, ".git")) {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return absDir, nil
		}
		current = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
