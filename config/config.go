// Package config loads the server configuration from defaults, an optional config file and WAYPOINT_ environment variables.
package config

import (
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variable overrides, e.g. WAYPOINT_STORAGE_FILE for storage.file.
const EnvPrefix = "WAYPOINT"

type (
	// Config holds the server configuration
	Config struct {
		Storage Storage
		Server  Server
		Engine  Engine
		Metrics Metrics
		Log     Log
	}

	// Storage holds the slot file configuration
	Storage struct {
		File         string        `mapstructure:"file"`
		SlotSize     int           `mapstructure:"slot_size"`
		SyncInterval time.Duration `mapstructure:"sync_interval"`
	}

	// Server holds the tcp server configuration
	Server struct {
		Port            string        `mapstructure:"port"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	}

	// Engine holds the storage engine configuration
	Engine struct {
		Parallelism int `mapstructure:"parallelism"`
	}

	// Metrics holds the metrics endpoint configuration, an empty Addr disables it
	Metrics struct {
		Addr string `mapstructure:"addr"`
	}

	// Log holds the logger configuration
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	}
)

var defaults = map[string]interface{}{
	"storage.file":            "./data",
	"storage.slot_size":       200,
	"storage.sync_interval":   "0s",
	"server.port":             ":8080",
	"server.read_timeout":     "60s",
	"server.shutdown_timeout": "5s",
	"engine.parallelism":      runtime.NumCPU(),
	"metrics.addr":            ":9090",
	"log.level":               "info",
	"log.format":              "text",
}

// Load returns the configuration. If file is not empty it is read first, its type is taken from its extension.
// Environment variables override both the file and the defaults.
func Load(file string) (*Config, error) {
	v := viper.New()

	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		err := v.ReadInConfig()
		if err != nil {
			return nil, errors.Wrapf(err, "could not read config file: %s", file)
		}
	}

	var cfg Config
	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, errors.Wrap(err, "could not decode config")
	}

	err = cfg.validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Storage.File == "" {
		return errors.New("storage.file must be set")
	}

	if c.Storage.SlotSize < 16 {
		return errors.Errorf("storage.slot_size %d is too small", c.Storage.SlotSize)
	}

	if c.Storage.SyncInterval < 0 {
		return errors.Errorf("storage.sync_interval %v is negative", c.Storage.SyncInterval)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.Errorf("unrecognized log.format %+q", c.Log.Format)
	}

	return nil
}
