package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"xdao.co/pdavault/storage"
	"xdao.co/pdavault/storage/localfs"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	c, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7650", c.Listen)
	assert.Equal(t, DefaultProgramID, c.ProgramID)
	assert.EqualValues(t, 3480, c.Rent.LamportsPerByteYear)
	assert.Equal(t, 2.0, c.Rent.ExemptionThreshold)
	assert.False(t, c.Faucet)
	assert.False(t, c.ServeBlocks)
	assert.Equal(t, "first", c.Storage.WritePolicy)
	require.Len(t, c.Storage.Backends, 1)
	assert.Equal(t, "localfs", c.Storage.Backends[0].Type)
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	path := writeFile(t, "pdavault.yaml", `
listen: 0.0.0.0:9000
data_dir: /srv/vault
faucet: true
rent:
  lamports_per_byte_year: 1000
storage:
  write_policy: all
  backends:
    - type: localfs
      dir: /srv/blocks
    - type: grpc
      id: remote
      target: blocks:7651
      timeout: 3s
`)
	t.Setenv("PDAVAULT_LOG_LEVEL", "debug")

	cmd := &cobra.Command{}
	cmd.Flags().String("listen", "", "")
	cmd.Flags().Bool("serve-blocks", false, "")
	require.NoError(t, cmd.Flags().Set("listen", "127.0.0.1:1234"))
	require.NoError(t, cmd.Flags().Set("serve-blocks", "true"))

	c, err := Load(cmd, path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1234", c.Listen)
	assert.Equal(t, "/srv/vault", c.DataDir)
	assert.Equal(t, "/srv/vault/HEAD", c.HeadPath())
	assert.True(t, c.Faucet)
	assert.True(t, c.ServeBlocks)
	assert.Equal(t, "debug", c.LogLevel)
	assert.EqualValues(t, 1000, c.Rent.LamportsPerByteYear)
	assert.Equal(t, 2.0, c.Rent.ExemptionThreshold)

	require.Len(t, c.Storage.Backends, 2)
	assert.Equal(t, "/srv/blocks", c.Storage.Backends[0].Dir)
	assert.Equal(t, "remote", c.Storage.Backends[1].ID)
	assert.Equal(t, 3*time.Second, c.Storage.Backends[1].Timeout)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		c := Config{
			ProgramID: DefaultProgramID,
			DataDir:   "/tmp/x",
			LogLevel:  "info",
			Storage:   Storage{Backends: []BackendConfig{{Type: "memory"}}},
		}
		c.Rent.LamportsPerByteYear = 3480
		c.Rent.ExemptionThreshold = 2
		return c
	}
	require.NoError(t, base().Validate())

	for name, mutate := range map[string]func(*Config){
		"bad program":     func(c *Config) { c.ProgramID = "not base58 0OIl" },
		"no data dir":     func(c *Config) { c.DataDir = "" },
		"zero rent":       func(c *Config) { c.Rent.LamportsPerByteYear = 0 },
		"huge rent":       func(c *Config) { c.Rent.LamportsPerByteYear = 1 << 62 },
		"huge threshold":  func(c *Config) { c.Rent.ExemptionThreshold = 1e12 },
		"bad level":       func(c *Config) { c.LogLevel = "loud" },
		"no backends":     func(c *Config) { c.Storage.Backends = nil },
		"unknown backend": func(c *Config) { c.Storage.Backends[0].Type = "s3" },
		"grpc no target":  func(c *Config) { c.Storage.Backends[0].Type = "grpc" },
		"bad policy":      func(c *Config) { c.Storage.WritePolicy = "some" },
		"duplicate id": func(c *Config) {
			c.Storage.Backends = append(c.Storage.Backends, BackendConfig{Type: "memory"})
		},
	} {
		c := base()
		mutate(&c)
		assert.Error(t, c.Validate(), name)
	}
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()
	c := Config{DataDir: dir, Storage: Storage{Backends: []BackendConfig{{Type: "localfs"}}}}

	cas, closeFn, err := c.OpenStore()
	require.NoError(t, err)
	defer closeFn()
	fs, ok := cas.(*localfs.CAS)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "blocks"), fs.Root())

	c.Storage.Backends = []BackendConfig{{Type: "memory", ID: "a"}, {Type: "memory", ID: "b"}}
	cas, _, err = c.OpenStore()
	require.NoError(t, err)
	assert.IsType(t, storage.MultiCAS{}, cas)

	c.Storage.WritePolicy = "all"
	cas, _, err = c.OpenStore()
	require.NoError(t, err)
	assert.IsType(t, storage.ReplicatingCAS{}, cas)

	id, err := cas.Put([]byte("snapshot"))
	require.NoError(t, err)
	assert.True(t, cas.Has(id))
}

func TestLogger(t *testing.T) {
	log, err := Config{LogLevel: "warn"}.Logger()
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
}
