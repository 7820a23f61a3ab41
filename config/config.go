// Package config loads vaultd and vaultctl settings from file, environment and
// flags, and opens the snapshot store they describe.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"xdao.co/pdavault/address"
	"xdao.co/pdavault/rent"
	"xdao.co/pdavault/storage"
	"xdao.co/pdavault/storage/grpccas"
	"xdao.co/pdavault/storage/localfs"
)

const (
	// DefaultProgramID is the program address vaults are derived under unless
	// configured otherwise.
	DefaultProgramID = "GxpAtbXpkbDu5b86TidcmuF5RF9UJm821rqJ5W3S4T12"

	EnvPrefix = "pdavault"
)

// Config is the merged configuration.
//
// WritePolicy values:
//   - "first" (default): write to the first backend; reads fall back in order
//   - "all": write to every backend and require equal CIDs (storage.ReplicatingCAS)
//
// Example:
//
//	listen: 127.0.0.1:7650
//	data_dir: /var/lib/pdavault
//	storage:
//	  write_policy: all
//	  backends:
//	    - type: localfs
//	    - type: grpc
//	      target: blocks.internal:7651
//	      timeout: 5s
type Config struct {
	Listen    string    `mapstructure:"listen"`
	ProgramID string    `mapstructure:"program_id"`
	DataDir   string    `mapstructure:"data_dir"`
	Rent      rent.Rent `mapstructure:"rent"`
	Faucet    bool      `mapstructure:"faucet"`
	LogLevel  string    `mapstructure:"log_level"`
	Storage   Storage   `mapstructure:"storage"`

	// ServeBlocks also exposes the snapshot store as a BlockStore service on
	// the listen address, so another vaultd can use it as a grpc backend.
	ServeBlocks bool `mapstructure:"serve_blocks"`
}

type Storage struct {
	WritePolicy string          `mapstructure:"write_policy"`
	Backends    []BackendConfig `mapstructure:"backends"`
}

type BackendConfig struct {
	// Type is one of "localfs", "grpc" or "memory".
	Type string `mapstructure:"type"`
	// ID is an optional stable alias used in logs and per-backend CID maps.
	// If empty, Type is used.
	ID string `mapstructure:"id"`

	// Dir is the localfs root. Empty means <data_dir>/blocks.
	Dir string `mapstructure:"dir"`

	Target  string        `mapstructure:"target"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func (b BackendConfig) name() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Type
}

func Defaults() map[string]any {
	r := rent.Default()
	return map[string]any{
		"listen":                      "127.0.0.1:7650",
		"program_id":                  DefaultProgramID,
		"data_dir":                    defaultDataDir(),
		"rent.lamports_per_byte_year": r.LamportsPerByteYear,
		"rent.exemption_threshold":    r.ExemptionThreshold,
		"faucet":                      false,
		"serve_blocks":                false,
		"log_level":                   "info",
		"storage.write_policy":        "first",
		"storage.backends":            []map[string]any{{"type": "localfs"}},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pdavault"
	}
	return filepath.Join(home, ".pdavault", "data")
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"listen":       "listen",
	"program-id":   "program_id",
	"data-dir":     "data_dir",
	"faucet":       "faucet",
	"serve-blocks": "serve_blocks",
	"log-level":    "log_level",
}

// Load merges defaults, the config file, PDAVAULT_* environment variables and
// the flags set on cmd, in increasing precedence. configFile may be empty, in
// which case pdavault.yaml is searched in the user config dir and the working
// directory.
func Load(cmd *cobra.Command, configFile string) (Config, error) {
	var c Config
	v := viper.New()

	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("pdavault")
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "pdavault"))
		}
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, errors.Wrap(err, "config: read")
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		for flag, key := range flagKeys {
			if f := cmd.Flags().Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return c, errors.Wrapf(err, "config: bind flag %s", flag)
				}
			}
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, errors.Wrap(err, "config: decode")
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	if _, err := address.Parse(c.ProgramID); err != nil {
		return errors.Wrap(err, "config: program_id")
	}
	if c.DataDir == "" {
		return errors.New("config: data_dir is required")
	}
	if err := c.Rent.Validate(); err != nil {
		return errors.Wrap(err, "config")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "config: log_level")
	}
	return c.Storage.Validate()
}

func (s Storage) Validate() error {
	if len(s.Backends) == 0 {
		return errors.New("config: at least one storage backend is required")
	}
	seen := make(map[string]struct{}, len(s.Backends))
	for _, b := range s.Backends {
		switch b.Type {
		case "localfs", "memory":
		case "grpc":
			if b.Target == "" {
				return fmt.Errorf("config: grpc backend %q needs a target", b.name())
			}
		case "":
			return errors.New("config: backend type is required")
		default:
			return fmt.Errorf("config: unknown backend type %q", b.Type)
		}
		if _, ok := seen[b.name()]; ok {
			return fmt.Errorf("config: duplicate backend id %q", b.name())
		}
		seen[b.name()] = struct{}{}
	}
	switch s.WritePolicy {
	case "", "first", "all":
		return nil
	default:
		return fmt.Errorf("config: invalid write_policy %q", s.WritePolicy)
	}
}

func (c Config) ProgramAddress() (address.Address, error) {
	return address.Parse(c.ProgramID)
}

// HeadPath is the file holding the latest snapshot CID.
func (c Config) HeadPath() string {
	return filepath.Join(c.DataDir, "HEAD")
}

// Logger builds a production zap logger at the configured level.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// OpenStore opens every configured backend and combines them per WritePolicy.
// The returned func closes whatever was opened.
func (c Config) OpenStore() (storage.CAS, func() error, error) {
	if err := c.Storage.Validate(); err != nil {
		return nil, nil, err
	}

	named := make([]storage.NamedCAS, 0, len(c.Storage.Backends))
	closers := make([]func() error, 0, len(c.Storage.Backends))
	closeAll := func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	for _, b := range c.Storage.Backends {
		cas, closeFn, err := c.openBackend(b)
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		named = append(named, storage.NamedCAS{Name: b.name(), CAS: cas})
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
	}

	if len(named) == 1 {
		return named[0].CAS, closeAll, nil
	}
	if c.Storage.WritePolicy == "all" {
		return storage.ReplicatingCAS{Stores: named}, closeAll, nil
	}
	stores := make([]storage.CAS, 0, len(named))
	for _, n := range named {
		stores = append(stores, n.CAS)
	}
	return storage.MultiCAS{Stores: stores}, closeAll, nil
}

func (c Config) openBackend(b BackendConfig) (storage.CAS, func() error, error) {
	switch b.Type {
	case "localfs":
		dir := b.Dir
		if dir == "" {
			dir = filepath.Join(c.DataDir, "blocks")
		}
		cas, err := localfs.New(dir)
		return cas, nil, err
	case "grpc":
		client, err := grpccas.Dial(b.Target, grpccas.DialOptions{Timeout: b.Timeout})
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	case "memory":
		return storage.NewMemoryCAS(), nil, nil
	default:
		return nil, nil, fmt.Errorf("config: unknown backend type %q", b.Type)
	}
}
