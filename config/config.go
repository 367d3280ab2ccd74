// Package config loads the node's TOML configuration file, falling back to
// documented defaults when the file is absent or incomplete -- mirroring
// the default_config/load_config split used by the reference daemon.
package config

import (
	"os"
	"path/filepath"

	"github.com/naoina/toml"
	"github.com/pbnjay/memory"

	"github.com/cauchynet/cauchy/log"
)

var logger = log.NewModuleLogger(log.ModuleConfig)

// Network holds the listen ports, heartbeat cadences and quorum size that
// drive the dispatcher and its heartbeat tasks.
type Network struct {
	WorkHeartbeatMs      uint64 `toml:"work_heartbeat_ms"`
	ReconcileHeartbeatMs uint64 `toml:"reconcile_heartbeat_ms"`
	ReconcileTimeoutMs   uint64 `toml:"reconcile_timeout_ms"`
	ServerPort           uint16 `toml:"server_port"`
	RPCServerPort        uint16 `toml:"rpc_server_port"`
	QuorumSize           int    `toml:"quorum_size"`
}

// Mining controls the local mining worker pool.
type Mining struct {
	NMiningThreads uint8 `toml:"n_mining_threads"`
}

// Debugging gates verbose, category-scoped logging the way the reference
// daemon's `ego_verbose`/`vm_verbose`/`daemon_verbose` flags do.
type Debugging struct {
	EgoVerbose      bool `toml:"ego_verbose"`
	DaemonVerbose   bool `toml:"daemon_verbose"`
	VMVerbose       bool `toml:"vm_verbose"`
	StageVerbose    bool `toml:"stage_verbose"`
	MiningVerbose   bool `toml:"mining_verbose"`
	EncodingVerbose bool `toml:"encoding_verbose"`
	DecodingVerbose bool `toml:"decoding_verbose"`
}

// Storage controls the on-disk LevelDB-backed stores. It is not named in
// the external configuration table but is carried as ambient plumbing,
// sizing its LevelDB cache off available memory.
type Storage struct {
	DataDir       string `toml:"data_dir"`
	LevelDBCache  int    `toml:"leveldb_cache_mb"`
	LevelDBHandle int    `toml:"leveldb_handles"`
}

// Config is the root of the TOML document.
type Config struct {
	Network   Network
	Mining    Mining
	Debugging Debugging
	Storage   Storage
}

// Default returns the documented defaults of the external interface table.
func Default() *Config {
	cacheMB := int(memory.TotalMemory() / (1024 * 1024) / 64)
	if cacheMB < 16 {
		cacheMB = 16
	}
	if cacheMB > 512 {
		cacheMB = 512
	}
	return &Config{
		Network: Network{
			WorkHeartbeatMs:      1000,
			ReconcileHeartbeatMs: 30000,
			ReconcileTimeoutMs:   5000,
			ServerPort:           8332,
			RPCServerPort:        8333,
			QuorumSize:           3,
		},
		Mining: Mining{
			NMiningThreads: 2,
		},
		Storage: Storage{
			DataDir:       defaultDataDir(),
			LevelDBCache:  cacheMB,
			LevelDBHandle: 64,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./.cauchy"
	}
	return filepath.Join(home, ".cauchy")
}

// Load reads the TOML file at path, overlaying its values onto Default().
// A missing file is not an error: the defaults are returned unchanged, the
// way the reference daemon silently falls back when ~/.cauchy/config.toml
// does not exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		logger.Info("no config file found, using defaults", "path", path)
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := toml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, err
	}
	logger.Info("loaded configuration", "path", path)
	return cfg, nil
}
