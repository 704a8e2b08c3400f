package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/labelworks/pachstore/common"
)

// Config is the engine's own configuration: where mounts live, how to reach
// the control plane and the PFS gateway, and how long lifecycle operations
// may wait.
type Config struct {
	// MountRoot is the directory the mount-server materializes views under.
	MountRoot string `yaml:"mount_root"`
	// MountServerURL is the local control plane address.
	MountServerURL string `yaml:"mount_server_url"`
	// PachdAddress is the default gateway address for direct-API
	// configurations that do not carry their own.
	PachdAddress string `yaml:"pachd_address"`
	// DatabasePath is the sqlite file holding configurations and links.
	DatabasePath string `yaml:"database_path"`

	ReadyTimeoutSec int `yaml:"ready_timeout_sec"`
	MountWaitSec    int `yaml:"mount_wait_sec"`
}

func defaults() *Config {
	return &Config{
		MountRoot:       common.DefaultMountRoot,
		MountServerURL:  common.DefaultMountServerURL,
		DatabasePath:    "pachstore.db",
		ReadyTimeoutSec: 30,
		MountWaitSec:    30,
	}
}

// LoadConfig reads a YAML config file, applying defaults for anything
// unset. An empty path yields the defaults. PACHD_ADDRESS and
// MOUNT_SERVER_URL environment variables override the file.
func LoadConfig(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config %s", path)
		}
	}
	applyDefaults(cfg)
	if v := os.Getenv("PACHD_ADDRESS"); v != "" {
		cfg.PachdAddress = v
	}
	if v := os.Getenv("MOUNT_SERVER_URL"); v != "" {
		cfg.MountServerURL = v
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := defaults()
	if cfg.MountRoot == "" {
		cfg.MountRoot = def.MountRoot
	}
	if cfg.MountServerURL == "" {
		cfg.MountServerURL = def.MountServerURL
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = def.DatabasePath
	}
	if cfg.ReadyTimeoutSec <= 0 {
		cfg.ReadyTimeoutSec = def.ReadyTimeoutSec
	}
	if cfg.MountWaitSec <= 0 {
		cfg.MountWaitSec = def.MountWaitSec
	}
}
