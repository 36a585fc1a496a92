package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Load reads configuration from configPath (or the default search paths
// below when empty) with environment variable overrides, using viper —
// the only structured-config library the examples corpus actually uses
// (PavolRusnak-OCPP-Power-Manager), in place of the ad hoc env-reader the
// teacher's loader imported without ever adding to its own go.mod.
func Load(configPath string) (*Config, error) {
	v := newViper(configPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Watcher reloads a Config whenever its backing file changes on disk,
// courtesy of viper.WatchConfig's fsnotify-backed file watcher.
type Watcher struct {
	v *viper.Viper
}

// NewWatcher builds a Watcher over configPath and starts watching
// immediately. onChange is invoked with the freshly decoded Config after
// every write to the file; decode and validation errors are passed to
// onChange as its error argument (with a nil Config), not swallowed here.
func NewWatcher(configPath string, onChange func(*Config, error)) (*Watcher, error) {
	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			onChange(nil, fmt.Errorf("failed to decode reloaded config: %w", err))
			return
		}
		if err := validate(&cfg); err != nil {
			onChange(nil, fmt.Errorf("reloaded config invalid: %w", err))
			return
		}
		onChange(&cfg, nil)
	})
	v.WatchConfig()

	return &Watcher{v: v}, nil
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("STATIONSIM")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("csms.connection_timeout", "30s")
	v.SetDefault("csms.heartbeat_interval", "60s")
	v.SetDefault("csms.max_reconnect_attempts", 5)
	v.SetDefault("csms.reconnect_backoff", "5s")
}

// validate performs basic validation on the configuration
func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	if cfg.MongoDB.URI != "" {
		if cfg.MongoDB.Database == "" {
			return fmt.Errorf("mongodb.database is required when mongodb.uri is set")
		}
		if cfg.MongoDB.Collections.Transactions == "" {
			return fmt.Errorf("mongodb.collections.transactions is required when mongodb.uri is set")
		}
	}

	for _, s := range cfg.Fleet.Stations {
		if s.ChargingStationID == "" {
			return fmt.Errorf("fleet.stations: every station requires a charging_station_id")
		}
		if s.ConnectorCount <= 0 {
			return fmt.Errorf("fleet.stations[%s]: connector_count must be > 0", s.ChargingStationID)
		}
	}

	return nil
}
