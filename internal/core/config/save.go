package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// fileRemote and friends mirror Config with durations as strings, so saved
// files stay human-editable ("10s" rather than nanoseconds).
type fileRemote struct {
	Username       string   `yaml:"username,omitempty"`
	Password       string   `yaml:"password,omitempty"`
	Nodes          []string `yaml:"nodes"`
	GraphAddress   string   `yaml:"graph_address,omitempty"`
	VerifyTLS      bool     `yaml:"verify_tls"`
	Timeout        string   `yaml:"timeout,omitempty"`
	FileTimeout    string   `yaml:"file_timeout,omitempty"`
	LiveTimeout    string   `yaml:"live_timeout,omitempty"`
	MaxConcurrency int      `yaml:"max_concurrency,omitempty"`
}

type fileArchive struct {
	MemoryThresholdMB float64 `yaml:"memory_threshold_mb,omitempty"`
	Dir               string  `yaml:"dir,omitempty"`
}

type fileAgent struct {
	Listen         string `yaml:"listen,omitempty"`
	Username       string `yaml:"username,omitempty"`
	PasswordHash   string `yaml:"password_hash,omitempty"`
	CertFile       string `yaml:"cert_file,omitempty"`
	KeyFile        string `yaml:"key_file,omitempty"`
	DataDir        string `yaml:"data_dir,omitempty"`
	RecordInterval string              `yaml:"record_interval,omitempty"`
	Hooks          map[string][]string `yaml:"hooks,omitempty"`
}

type fileConfig struct {
	Version string      `yaml:"version"`
	Remote  fileRemote  `yaml:"remote"`
	Archive fileArchive `yaml:"archive,omitempty"`
	Web     WebConfig   `yaml:"web,omitempty"`
	Agent   fileAgent   `yaml:"agent,omitempty"`
	Log     LogConfig   `yaml:"log,omitempty"`
}

// Save writes cfg to path as YAML, creating parent directories.
// The file is written with 0600 permissions since it carries credentials.
func Save(path string, cfg *Config) error {
	out := fileConfig{
		Version: cfg.Version,
		Remote: fileRemote{
			Username:       cfg.Remote.Username,
			Password:       cfg.Remote.Password,
			Nodes:          cfg.Remote.Nodes,
			GraphAddress:   cfg.Remote.GraphAddress,
			VerifyTLS:      cfg.Remote.VerifyTLS,
			Timeout:        durationString(cfg.Remote.Timeout),
			FileTimeout:    durationString(cfg.Remote.FileTimeout),
			LiveTimeout:    durationString(cfg.Remote.LiveTimeout),
			MaxConcurrency: cfg.Remote.MaxConcurrency,
		},
		Archive: fileArchive(cfg.Archive),
		Web:     cfg.Web,
		Agent: fileAgent{
			Listen:         cfg.Agent.Listen,
			Username:       cfg.Agent.Username,
			PasswordHash:   cfg.Agent.PasswordHash,
			CertFile:       cfg.Agent.CertFile,
			KeyFile:        cfg.Agent.KeyFile,
			DataDir:        cfg.Agent.DataDir,
			RecordInterval: durationString(cfg.Agent.RecordInterval),
			Hooks:          cfg.Agent.Hooks,
		},
		Log: cfg.Log,
	}
	if out.Version == "" {
		out.Version = "1"
	}
	if out.Remote.Nodes == nil {
		out.Remote.Nodes = []string{}
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config %q: %w", path, err)
	}
	return nil
}

// Default returns a Config populated from Defaults, as `sensorhub init` writes it.
func Default() *Config {
	return &Config{
		Version: "1",
		Remote: RemoteConfig{
			Username:       Defaults["remote.username"].(string),
			Password:       Defaults["remote.password"].(string),
			Nodes:          []string{},
			Timeout:        Defaults["remote.timeout"].(time.Duration),
			FileTimeout:    Defaults["remote.file_timeout"].(time.Duration),
			LiveTimeout:    Defaults["remote.live_timeout"].(time.Duration),
			MaxConcurrency: Defaults["remote.max_concurrency"].(int),
		},
		Archive: ArchiveConfig{MemoryThresholdMB: Defaults["archive.memory_threshold_mb"].(float64)},
		Web:     WebConfig{Listen: Defaults["web.listen"].(string)},
		Agent: AgentConfig{
			Listen:         Defaults["agent.listen"].(string),
			Username:       Defaults["agent.username"].(string),
			RecordInterval: Defaults["agent.record_interval"].(time.Duration),
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

func durationString(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}
