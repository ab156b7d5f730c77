// Package config provides the sensorhub configuration loader.
// Config is loaded by merging sensorhub.yaml → ~/.sensorhub/config.yaml → SENSORHUB_* env vars.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/pkg/netutil"
)

// ProjectFile is the per-directory configuration file name.
const ProjectFile = "sensorhub.yaml"

// sensitiveKeyRegex matches config keys that should be redacted in log output.
var sensitiveKeyRegex = regexp.MustCompile(`(?i)(password|token|secret|key|hash)`)

// Defaults contains factory-default values applied before any config file is loaded.
var Defaults = map[string]any{
	"log.level":                   "info",
	"log.format":                  "text",
	"remote.username":             "kootnet",
	"remote.password":             "sensors",
	"remote.verify_tls":           false,
	"remote.timeout":              10 * time.Second,
	"remote.file_timeout":         600 * time.Second,
	"remote.live_timeout":         500 * time.Millisecond,
	"remote.max_concurrency":      32,
	"archive.memory_threshold_mb": 100.0,
	"web.listen":                  "127.0.0.1:10066",
	"agent.listen":                fmt.Sprintf(":%d", netutil.DefaultNodePort),
	"agent.username":              "kootnet",
	"agent.record_interval":       5 * time.Minute,
}

// ─────────────────────────────────────────────────────────────────────────────
// Config types
// ─────────────────────────────────────────────────────────────────────────────

// Config is the fully-decoded configuration.
type Config struct {
	Version string        `mapstructure:"version"`
	Remote  RemoteConfig  `mapstructure:"remote"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Web     WebConfig     `mapstructure:"web"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Log     LogConfig     `mapstructure:"log"`
}

// RemoteConfig controls how the console talks to sensor nodes.
type RemoteConfig struct {
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Nodes          []string      `mapstructure:"nodes"`
	GraphAddress   string        `mapstructure:"graph_address"` // node polled by live graphs
	VerifyTLS      bool          `mapstructure:"verify_tls"`
	Timeout        time.Duration `mapstructure:"timeout"`
	FileTimeout    time.Duration `mapstructure:"file_timeout"`
	LiveTimeout    time.Duration `mapstructure:"live_timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

// ArchiveConfig controls where and how combined archives are materialised.
type ArchiveConfig struct {
	MemoryThresholdMB float64 `mapstructure:"memory_threshold_mb"`
	Dir               string  `mapstructure:"dir"` // defaults to <home>/archives
}

// WebConfig holds the console web layer settings.
type WebConfig struct {
	Listen string `mapstructure:"listen"`
}

// AgentConfig holds settings for the sensor node role.
type AgentConfig struct {
	Listen         string        `mapstructure:"listen"`
	Username       string        `mapstructure:"username"`
	PasswordHash   string        `mapstructure:"password_hash"` // bcrypt
	CertFile       string        `mapstructure:"cert_file"`
	KeyFile        string        `mapstructure:"key_file"`
	DataDir        string        `mapstructure:"data_dir"`
	RecordInterval time.Duration `mapstructure:"record_interval"`
	// Hooks maps a control command name to shell lines run in order.
	Hooks map[string][]string `mapstructure:"hooks"`
}

// LogConfig controls logging behaviour.
type LogConfig struct {
	Level  string `mapstructure:"level"` // debug | info | warn | error
	File   string `mapstructure:"file"`
	Format string `mapstructure:"format"` // json | text
}

// ─────────────────────────────────────────────────────────────────────────────
// Loader
// ─────────────────────────────────────────────────────────────────────────────

// Load discovers and loads the configuration, walking up directories to find
// sensorhub.yaml, then merging it with the global config and environment variables.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()

	for k, val := range Defaults {
		v.SetDefault(k, val)
	}

	// Environment variable binding: SENSORHUB_REMOTE_PASSWORD → remote.password
	v.SetEnvPrefix("SENSORHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	globalCfg := filepath.Join(Home(), "config.yaml")
	if _, err := os.Stat(globalCfg); err == nil {
		v.SetConfigFile(globalCfg)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read global config: %w", err)
		}
	}

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else if path, err := discoverProjectConfig(); err == nil {
		v.SetConfigFile(path)
	}

	if v.ConfigFileUsed() != "" || explicitPath != "" {
		if err := v.MergeInConfig(); err != nil && explicitPath != "" {
			return nil, fmt.Errorf("read config %q: %w", explicitPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	expandEnvInConfig(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// ArchiveDir returns the directory on-disk archives are written to.
func (c *Config) ArchiveDir() string {
	if c.Archive.Dir != "" {
		return c.Archive.Dir
	}
	return filepath.Join(Home(), "archives")
}

// AgentDataDir returns the directory holding the agent's reading database.
func (c *Config) AgentDataDir() string {
	if c.Agent.DataDir != "" {
		return c.Agent.DataDir
	}
	return filepath.Join(Home(), "agent")
}

// IsSensitiveKey returns true if key matches a known sensitive pattern.
func IsSensitiveKey(key string) bool {
	return sensitiveKeyRegex.MatchString(key)
}

// ─────────────────────────────────────────────────────────────────────────────
// Credentials
// ─────────────────────────────────────────────────────────────────────────────

// CredentialStore holds the process-wide remote management credentials.
// It may be updated at runtime; every outbound authenticated call reads the
// current value.
type CredentialStore struct {
	mu    sync.RWMutex
	creds v1.Credentials
}

// NewCredentialStore returns a store seeded from cfg.
func NewCredentialStore(cfg RemoteConfig) *CredentialStore {
	return &CredentialStore{creds: v1.Credentials{Username: cfg.Username, Password: cfg.Password}}
}

// Get returns the current credentials.
func (s *CredentialStore) Get() v1.Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// Set replaces the credentials.
func (s *CredentialStore) Set(c v1.Credentials) {
	s.mu.Lock()
	s.creds = c
	s.mu.Unlock()
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

// discoverProjectConfig walks up from the CWD looking for sensorhub.yaml.
func discoverProjectConfig() (string, error) {
	start, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := start
	for {
		candidate := filepath.Join(dir, ProjectFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("%s not found (searched up from %s)", ProjectFile, start)
}

// expandEnvInConfig resolves ${VAR} placeholders in credential fields.
func expandEnvInConfig(cfg *Config) {
	cfg.Remote.Username = os.ExpandEnv(cfg.Remote.Username)
	cfg.Remote.Password = os.ExpandEnv(cfg.Remote.Password)
	cfg.Agent.PasswordHash = os.ExpandEnv(cfg.Agent.PasswordHash)
}

// validate performs semantic validation on the loaded config.
func validate(cfg *Config) error {
	seen := map[string]bool{}
	for _, raw := range cfg.Remote.Nodes {
		if strings.TrimSpace(raw) == "" {
			return fmt.Errorf("remote.nodes: empty address is not allowed")
		}
		key := netutil.Resolve(raw).String()
		if seen[key] {
			return fmt.Errorf("remote.nodes: duplicate node address %q", raw)
		}
		seen[key] = true
	}
	if cfg.Remote.MaxConcurrency < 0 {
		return fmt.Errorf("remote.max_concurrency must not be negative")
	}
	if cfg.Archive.MemoryThresholdMB < 0 {
		return fmt.Errorf("archive.memory_threshold_mb must not be negative")
	}
	return nil
}

// Home returns the sensorhub home directory (~/.sensorhub).
// SENSORHUB_HOME overrides it.
func Home() string {
	if h := os.Getenv("SENSORHUB_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sensorhub"
	}
	return filepath.Join(home, ".sensorhub")
}
