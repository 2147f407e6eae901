// Package config loads the YAML configuration files cmd/fleet-server and
// cmd/fleet-agent read at startup. It stays thin deliberately: flags remain
// cobra's job, and neither file format carries validation depth beyond
// filling in defaults, since the admission path is where real rejection of
// a bad desired state happens.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig is cmd/fleet-server's on-disk configuration.
type ServerConfig struct {
	NodeID      string `yaml:"node_id"`
	BindAddr    string `yaml:"bind_addr"`    // Raft transport address
	APIAddr     string `yaml:"api_addr"`     // mTLS gRPC health listener
	HTTPAddr    string `yaml:"http_addr"`    // plain HTTP control plane
	LocalSocket string `yaml:"local_socket"` // read-only Unix socket for local CLI use
	DataDir     string `yaml:"data_dir"`
}

func (c *ServerConfig) setDefaults() {
	if c.BindAddr == "" {
		c.BindAddr = "0.0.0.0:7946"
	}
	if c.APIAddr == "" {
		c.APIAddr = "0.0.0.0:7443"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = "0.0.0.0:7080"
	}
	if c.LocalSocket == "" {
		c.LocalSocket = "/var/run/fleet/server.sock"
	}
	if c.DataDir == "" {
		c.DataDir = "/var/lib/fleet"
	}
}

// AgentConfig is cmd/fleet-agent's on-disk configuration.
type AgentConfig struct {
	AgentName       string        `yaml:"agent_name"`
	ServerAddr      string        `yaml:"server_addr"`
	ContainerdSocket string       `yaml:"containerd_socket"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	StopTimeout     time.Duration `yaml:"stop_timeout"`
}

func (c *AgentConfig) setDefaults() {
	if c.ContainerdSocket == "" {
		c.ContainerdSocket = "/run/containerd/containerd.sock"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 10 * time.Second
	}
}

// LoadServerConfig reads and defaults a ServerConfig from path.
func LoadServerConfig(path string) (*ServerConfig, error) {
	var cfg ServerConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

// LoadAgentConfig reads and defaults an AgentConfig from path.
func LoadAgentConfig(path string) (*AgentConfig, error) {
	var cfg AgentConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
