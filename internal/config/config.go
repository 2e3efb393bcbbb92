// Package config loads process settings for the mobsim server from
// mobsim.yaml and MOBSIM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "MOBSIM"

type Config struct {
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	World  WorldConfig  `mapstructure:"world" yaml:"world"`
	Paths  PathsConfig  `mapstructure:"paths" yaml:"paths"`
	Index  IndexConfig  `mapstructure:"index" yaml:"index"`
	Logger LoggerConfig `mapstructure:"logger" yaml:"logger"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`

	// Admin enables loopback-only snapshot and observer endpoints.
	Admin bool `mapstructure:"admin" yaml:"admin"`
	Pprof bool `mapstructure:"pprof" yaml:"pprof"`
}

type WorldConfig struct {
	ID   string `mapstructure:"id" yaml:"id"`
	Seed int64  `mapstructure:"seed" yaml:"seed"`

	// LoadLatest resumes from the newest snapshot in the data dir.
	LoadLatest      bool   `mapstructure:"load_latest" yaml:"load_latest"`
	Snapshot        string `mapstructure:"snapshot" yaml:"snapshot"`
	SnapshotKeep    int    `mapstructure:"snapshot_keep" yaml:"snapshot_keep"`
	CheckpointEvery uint64 `mapstructure:"checkpoint_every" yaml:"checkpoint_every"`
}

type PathsConfig struct {
	DataDir    string `mapstructure:"data_dir" yaml:"data_dir"`
	ConfigsDir string `mapstructure:"configs_dir" yaml:"configs_dir"`

	// Tuning defaults to <configs_dir>/tuning.yaml.
	Tuning string `mapstructure:"tuning" yaml:"tuning"`
}

type IndexConfig struct {
	Disable bool `mapstructure:"disable" yaml:"disable"`
}

type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// SetDefaults registers every key so that env overrides work without a file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.admin", true)
	v.SetDefault("server.pprof", false)

	v.SetDefault("world.id", "world_1")
	v.SetDefault("world.seed", 1337)
	v.SetDefault("world.load_latest", true)
	v.SetDefault("world.snapshot", "")
	v.SetDefault("world.snapshot_keep", 24)
	v.SetDefault("world.checkpoint_every", 72000)

	v.SetDefault("paths.data_dir", "./data")
	v.SetDefault("paths.configs_dir", "./configs")
	v.SetDefault("paths.tuning", "")

	v.SetDefault("index.disable", false)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "mobsim")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
}

// Load reads path (or ./mobsim.yaml when empty) plus the environment into v.
// A missing default file is not an error.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("mobsim")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.World.ID) == "" {
		return errors.New("config: world.id is required")
	}
	if strings.ContainsAny(c.World.ID, `/\`) {
		return fmt.Errorf("config: world.id %q must not contain path separators", c.World.ID)
	}
	if c.World.SnapshotKeep < 0 {
		return fmt.Errorf("config: world.snapshot_keep must be >= 0, got %d", c.World.SnapshotKeep)
	}
	return nil
}

func (c Config) WorldDir() string {
	return filepath.Join(c.Paths.DataDir, "worlds", c.World.ID)
}

func (c Config) TuningPath() string {
	if p := strings.TrimSpace(c.Paths.Tuning); p != "" {
		return p
	}
	return filepath.Join(c.Paths.ConfigsDir, "tuning.yaml")
}
