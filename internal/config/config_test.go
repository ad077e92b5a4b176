package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFillsDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:12000", cfg.Node.ListenAddr)
	assert.Equal(t, 10000, cfg.Client.CmdAckWaitMS)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte("node:\n  listen_addr: 127.0.0.1:9999\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Node.ListenAddr)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte("node:\n  listen_addr: 127.0.0.1:9999\n"), 0o644))

	t.Setenv("SECTIONNET_NODE__LISTEN_ADDR", "10.0.0.1:1")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:1", cfg.Node.ListenAddr)
}

func TestValidateRejectsZeroAckWait(t *testing.T) {
	cfg := &NodeConfig{Node: NodeSection{ListenAddr: "x", DataDir: "y"}, Client: ClientSection{CmdAckWaitMS: 0, QueryTimeoutMS: 1}}
	assert.Error(t, cfg.Validate())
}

func TestRegistryRoundTrip(t *testing.T) {
	root := t.TempDir()
	reg, err := LoadRegistry(root)
	require.NoError(t, err)
	assert.Empty(t, reg.Entries)

	reg.Default = "testnet"
	reg.Entries["testnet"] = NetworkSource{Remote: "https://example.invalid/contacts.json"}
	require.NoError(t, reg.Save())

	reloaded, err := LoadRegistry(root)
	require.NoError(t, err)
	src, err := reloaded.ActiveOrNamed("")
	require.NoError(t, err)
	assert.True(t, src.IsRemote())
}

func TestActiveOrNamedFailsForUnknownNetwork(t *testing.T) {
	reg, err := LoadRegistry(t.TempDir())
	require.NoError(t, err)
	_, err = reg.ActiveOrNamed("nope")
	assert.Error(t, err)
}

func TestContactsPathIsKeyedByGenesisHex(t *testing.T) {
	path := ContactsPath("/root/store", "deadbeef")
	assert.Equal(t, filepath.Join("/root/store", "network_contacts", "deadbeef"), path)
}
