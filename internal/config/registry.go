package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// homeOverrideEnv is the environment variable recognised as a home
// directory override for the config root, per spec.md §6.
const homeOverrideEnv = "SECTIONNET_CONFIG_HOME"

// registryFileName is the JSON document mapping network name to contact
// source, living at the root of the config store.
const registryFileName = "networks.json"

// contactsDirName is the subdirectory of cached network-contacts files,
// each named by the hex of its network's genesis key.
const contactsDirName = "network_contacts"

// defaultMarker is the network name recognised as the current active
// network when no explicit name is requested.
const defaultMarker = "default"

// NetworkSource is a single registry entry: exactly one of Local or
// Remote is set.
type NetworkSource struct {
	Local  string `json:"local,omitempty"`
	Remote string `json:"remote,omitempty"`
}

// IsRemote reports whether this source names a URL rather than a local
// path.
func (s NetworkSource) IsRemote() bool {
	return s.Remote != ""
}

// Registry is the in-memory form of networks.json: every named network
// plus which one "default" currently points at.
type Registry struct {
	root    string
	Default string                   `json:"default"`
	Entries map[string]NetworkSource `json:"networks"`
}

// Root returns the config store's root directory, honouring
// SECTIONNET_CONFIG_HOME when set, falling back to ~/.sectionnet.
func Root() (string, error) {
	if v := os.Getenv(homeOverrideEnv); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving home directory: %w", err)
	}
	return filepath.Join(home, ".sectionnet"), nil
}

// LoadRegistry reads root's networks.json, returning an empty Registry
// (not an error) if the file does not exist yet.
func LoadRegistry(root string) (*Registry, error) {
	reg := &Registry{root: root, Entries: make(map[string]NetworkSource)}

	data, err := os.ReadFile(filepath.Join(root, registryFileName))
	if os.IsNotExist(err) {
		return reg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", registryFileName, err)
	}
	if err := json.Unmarshal(data, reg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", registryFileName, err)
	}
	reg.root = root
	if reg.Entries == nil {
		reg.Entries = make(map[string]NetworkSource)
	}
	return reg, nil
}

// Save writes the registry back to root/networks.json.
func (r *Registry) Save() error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshaling registry: %w", err)
	}
	if err := os.MkdirAll(r.root, 0o755); err != nil {
		return fmt.Errorf("config: creating config root: %w", err)
	}
	return os.WriteFile(filepath.Join(r.root, registryFileName), data, 0o644)
}

// ActiveOrNamed resolves name if non-empty, else the network currently
// marked default.
func (r *Registry) ActiveOrNamed(name string) (NetworkSource, error) {
	if name == "" {
		name = r.Default
	}
	if name == "" {
		return NetworkSource{}, fmt.Errorf("config: no %s network marker set and no name given", defaultMarker)
	}
	src, ok := r.Entries[name]
	if !ok {
		return NetworkSource{}, fmt.Errorf("config: unknown network %q", name)
	}
	return src, nil
}

// ContactsPath returns the path a network's cached SectionTree
// serialisation lives at, named by the hex of its genesis key.
func ContactsPath(root string, genesisKeyHex string) string {
	return filepath.Join(root, contactsDirName, genesisKeyHex)
}
