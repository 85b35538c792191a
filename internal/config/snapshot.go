package config

import (
	"errors"

	"github.com/andrew-solarstorm/go-packages/common"
)

type SnapshotConfig struct {
	// DBPath is the BoltDB file holding pool and tick array snapshots.
	// Default: "./data/clmm-engine.db"
	DBPath string

	// Enabled controls whether snapshots are persisted to disk.
	// Default: true
	Enabled bool

	// Interval is how often loaded pools are batch-saved to disk (in seconds).
	// Default: 30
	Interval int

	// Offline serves quotes purely from the snapshot store; no RPC calls are made.
	Offline bool
}

func (c *SnapshotConfig) Key() string {
	return SNAPSHOT_CONFIG_KEY
}

func (c *SnapshotConfig) Load() error {
	c.DBPath = common.GetEnvOrDefault("SNAPSHOT_DB_PATH", "./data/clmm-engine.db")
	c.Enabled = common.GetEnvOrDefault("SNAPSHOT_ENABLED", "true") == "true"
	c.Interval = common.GetEnvOrDefaultInt("SNAPSHOT_INTERVAL", 30)
	c.Offline = common.GetEnvOrDefault("OFFLINE", "false") == "true"
	return c.Validate()
}

func (c *SnapshotConfig) Validate() error {
	if c.Interval <= 0 {
		return errors.New("snapshot interval must be positive")
	}
	if c.Offline && !c.Enabled {
		return errors.New("offline mode requires the snapshot store")
	}
	return nil
}
