// Package config loads the engine configuration: world identity, storage
// paths, eviction and generation tuning. Missing fields fall back to
// defaults; a present but invalid config refuses to load.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	WorldID string `yaml:"world_id"`
	Seed    int64  `yaml:"seed"`
	DataDir string `yaml:"data_dir"`

	DefaultBlock BlockSpec    `yaml:"default_block"`
	Eviction     EvictionSpec `yaml:"eviction"`
	Worldgen     WorldgenSpec `yaml:"worldgen"`
	Snapshot     SnapshotSpec `yaml:"snapshot"`
}

type BlockSpec struct {
	Opaque   bool   `yaml:"opaque"`
	ModelID  uint32 `yaml:"model_id"`
	ModelRot uint8  `yaml:"model_rot"`
}

type EvictionSpec struct {
	// MaxAgeSeconds is how long a chunk may wait in purgatory before a
	// sweep frees it. 0 disables the age limit.
	MaxAgeSeconds int `yaml:"max_age_seconds"`
	// MaxCount frees everything once purgatory exceeds this population.
	// 0 disables the size limit.
	MaxCount int `yaml:"max_count"`
	// SweepEverySeconds is the sweep cadence.
	SweepEverySeconds int `yaml:"sweep_every_seconds"`
}

type WorldgenSpec struct {
	Workers    int   `yaml:"workers"`
	BaseHeight int32 `yaml:"base_height"`
	HeightVar  int32 `yaml:"height_var"`
}

type SnapshotSpec struct {
	EverySeconds int `yaml:"every_seconds"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("engine.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("engine.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		WorldID: "overworld",
		Seed:    1337,
		DataDir: "data",
		Eviction: EvictionSpec{
			MaxAgeSeconds:     30,
			MaxCount:          4096,
			SweepEverySeconds: 5,
		},
		Worldgen: WorldgenSpec{
			Workers:    4,
			BaseHeight: 8,
			HeightVar:  12,
		},
		Snapshot: SnapshotSpec{
			EverySeconds: 300,
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	if strings.TrimSpace(c.WorldID) == "" {
		c.WorldID = "overworld"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "data"
	}
	if c.Worldgen.Workers <= 0 {
		c.Worldgen.Workers = 4
	}
	if c.Worldgen.HeightVar <= 0 {
		c.Worldgen.BaseHeight = 8
		c.Worldgen.HeightVar = 12
	}
	if c.Eviction.SweepEverySeconds <= 0 {
		c.Eviction.SweepEverySeconds = 5
	}
	if c.Snapshot.EverySeconds <= 0 {
		c.Snapshot.EverySeconds = 300
	}
}

func (c Config) Validate() error {
	if strings.ContainsAny(c.WorldID, "/\\") {
		return fmt.Errorf("world_id %q must not contain path separators", c.WorldID)
	}
	if c.Eviction.MaxAgeSeconds < 0 {
		return fmt.Errorf("eviction.max_age_seconds must be >= 0")
	}
	if c.Eviction.MaxCount < 0 {
		return fmt.Errorf("eviction.max_count must be >= 0")
	}
	if c.Worldgen.Workers > 256 {
		return fmt.Errorf("worldgen.workers %d is unreasonable", c.Worldgen.Workers)
	}
	return nil
}
