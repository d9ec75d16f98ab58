package cli

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mixsync/internal/propagate"
)

func parsePeerFlags(t *testing.T, args ...string) (*cobra.Command, *PeerConfig) {
	t.Helper()
	cmd := &cobra.Command{Use: "peer"}
	c := &PeerConfig{}
	addPeerFlags(cmd, c)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, c
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "peer.yaml", `
db: ./a.db
url: ws://localhost:9000/sync
schema: ./schema.cue
sync: false
metrics_addr: 127.0.0.1:9101
dump_size: 64
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "./a.db", cfg.DB)
	assert.Equal(t, "ws://localhost:9000/sync", cfg.URL)
	assert.Equal(t, "./schema.cue", cfg.Schema)
	require.NotNil(t, cfg.Sync)
	assert.False(t, *cfg.Sync)
	assert.Equal(t, "127.0.0.1:9101", cfg.MetricsAddr)
	assert.Equal(t, 64, cfg.DumpSize)
}

func TestLoadConfig_UnknownKey(t *testing.T) {
	path := writeFile(t, t.TempDir(), "peer.yaml", "database: ./a.db\n")
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field database not found")
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig("/nonexistent/peer.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestPeerConfig_FlagsOverrideFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "peer.yaml", `
db: file.db
url: ws://file/sync
sync: false
`)
	cmd, c := parsePeerFlags(t, "--config", path, "--db", "flag.db")
	require.NoError(t, c.resolve(cmd))

	assert.Equal(t, "flag.db", c.DB)
	assert.Equal(t, "ws://file/sync", c.URL)
	assert.False(t, c.Sync)
}

func TestPeerConfig_ExplicitSyncFlagWins(t *testing.T) {
	path := writeFile(t, t.TempDir(), "peer.yaml", "sync: false\n")
	cmd, c := parsePeerFlags(t, "--config", path, "--sync=true")
	require.NoError(t, c.resolve(cmd))
	assert.True(t, c.Sync)
}

func TestPeerConfig_NoConfigKeepsFlags(t *testing.T) {
	cmd, c := parsePeerFlags(t, "--db", "a.db")
	require.NoError(t, c.resolve(cmd))
	assert.Equal(t, "a.db", c.DB)
	assert.True(t, c.Sync)
	assert.Equal(t, propagate.DefaultDumpSize, c.DumpSize)
}

func TestPeerConfig_DumpSize(t *testing.T) {
	path := writeFile(t, t.TempDir(), "peer.yaml", "dump_size: 32\n")

	cmd, c := parsePeerFlags(t, "--config", path)
	require.NoError(t, c.resolve(cmd))
	assert.Equal(t, 32, c.DumpSize)

	cmd, c = parsePeerFlags(t, "--config", path, "--dump-size", "8")
	require.NoError(t, c.resolve(cmd))
	assert.Equal(t, 8, c.DumpSize)
}
