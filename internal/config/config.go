// Package config holds node-wide configuration: addresses, ports,
// replication/consistency knobs, and the timeouts that drive gossip and the
// open-query deadline.
package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all configuration for a cluster node.
type Config struct {
	NodeID string `json:"node_id"`

	Address       string `json:"address"`
	ClientPort    int    `json:"client_port"`    // Cassandra-wire client listener
	InternodePort int    `json:"internode_port"` // peer link listener

	DataDir string `json:"data_dir"`

	SeedNodes []string `json:"seed_nodes"`
	SeedFile  string   `json:"seed_file"`

	ReplicationFactor int `json:"replication_factor"`

	GossipInterval time.Duration `json:"gossip_interval"`
	SuspectTimeout time.Duration `json:"suspect_timeout"`
	DeadTimeout    time.Duration `json:"dead_timeout"`

	RequestTimeout time.Duration `json:"request_timeout"` // open-query handle deadline

	AdminPort int `json:"admin_port"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	hostname, _ := os.Hostname()
	return &Config{
		NodeID:            hostname,
		Address:           "127.0.0.1",
		ClientPort:        9042,
		InternodePort:     9999,
		DataDir:           "./data",
		SeedNodes:         []string{},
		ReplicationFactor: 3,
		GossipInterval:    time.Second,
		SuspectTimeout:    5 * time.Second,
		DeadTimeout:       30 * time.Second,
		RequestTimeout:    5 * time.Second,
		AdminPort:         8080,
	}
}

// Validate checks the configuration for obviously broken values.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id is required")
	}
	if c.ClientPort <= 0 || c.ClientPort > 65535 {
		return fmt.Errorf("invalid client_port: %d", c.ClientPort)
	}
	if c.InternodePort <= 0 || c.InternodePort > 65535 {
		return fmt.Errorf("invalid internode_port: %d", c.InternodePort)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.ReplicationFactor < 1 {
		return fmt.Errorf("replication_factor must be at least 1")
	}
	return nil
}

// LoadFromFile loads configuration from a JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves the configuration to a JSON file.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ClientAddress returns the address the Cassandra-wire listener binds to.
func (c *Config) ClientAddress() string {
	return fmt.Sprintf("%s:%d", c.Address, c.ClientPort)
}

// InternodeAddress returns the address the peer link listener binds to.
func (c *Config) InternodeAddress() string {
	return fmt.Sprintf("%s:%d", c.Address, c.InternodePort)
}

// AdminAddress returns the address the HTTP admin/debug plane binds to.
func (c *Config) AdminAddress() string {
	return fmt.Sprintf("%s:%d", c.Address, c.AdminPort)
}

// LoadSeedFile reads a plain-text seed list, one IPv4 address (or host:port)
// per line, blank lines and "#"-prefixed comments ignored.
func LoadSeedFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	var seeds []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		seeds = append(seeds, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return seeds, nil
}
