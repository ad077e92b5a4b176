// Package config implements the on-disk configuration store described in
// spec.md §6: node process settings loaded the way the teacher loads
// them, plus the network registry (network name -> Local/Remote contact
// source) and its cached network-contacts files.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// NodeConfig holds a node process's runtime settings.
type NodeConfig struct {
	Node    NodeSection    `koanf:"node"`
	Client  ClientSection  `koanf:"client"`
	Metrics MetricsSection `koanf:"metrics"`
	Admin   AdminSection   `koanf:"admin"`
}

// NodeSection controls the node's own listening and storage behaviour.
type NodeSection struct {
	ListenAddr string `koanf:"listen_addr"`
	DataDir    string `koanf:"data_dir"`
	LogLevel   string `koanf:"log_level"`
}

// ClientSection mirrors the Session tunables from spec.md §4.3/§4.4.
type ClientSection struct {
	CmdAckWaitMS   int `koanf:"cmd_ack_wait_ms"`
	QueryTimeoutMS int `koanf:"query_timeout_ms"`
}

// MetricsSection controls the Prometheus exposition endpoint.
type MetricsSection struct {
	ListenAddr string `koanf:"listen_addr"`
}

// AdminSection controls the nodecontrol gRPC health/admin surface.
type AdminSection struct {
	Port              int  `koanf:"port"`
	ReflectionEnabled bool `koanf:"reflection_enabled"`
}

// envPrefix is the environment variable prefix node config overrides are
// recognised under, e.g. SECTIONNET_NODE__LISTEN_ADDR.
const envPrefix = "SECTIONNET_"

// Load reads path (if non-empty) as a YAML document, overlays environment
// overrides, and fills in defaults for anything still unset.
func Load(path string) (*NodeConfig, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment overrides: %w", err)
	}

	cfg := &NodeConfig{
		Node: NodeSection{
			ListenAddr: "0.0.0.0:12000",
			DataDir:    "./data",
			LogLevel:   "info",
		},
		Client: ClientSection{
			CmdAckWaitMS:   10000,
			QueryTimeoutMS: 10000,
		},
		Metrics: MetricsSection{
			ListenAddr: "0.0.0.0:9090",
		},
		Admin: AdminSection{
			Port:              50070,
			ReflectionEnabled: false,
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants a node cannot safely start without.
func (c *NodeConfig) Validate() error {
	if c.Node.ListenAddr == "" {
		return fmt.Errorf("config: node.listen_addr is required")
	}
	if c.Node.DataDir == "" {
		return fmt.Errorf("config: node.data_dir is required")
	}
	if c.Client.CmdAckWaitMS <= 0 {
		return fmt.Errorf("config: client.cmd_ack_wait_ms must be > 0 (got %d)", c.Client.CmdAckWaitMS)
	}
	if c.Client.QueryTimeoutMS <= 0 {
		return fmt.Errorf("config: client.query_timeout_ms must be > 0 (got %d)", c.Client.QueryTimeoutMS)
	}
	return nil
}
