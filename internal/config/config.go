// Package config loads and validates the rfstick tool configuration.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the rfstick command-line tool.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Logging  LoggingConfig  `yaml:"logging"`
	StateLog StateLogConfig `yaml:"statelog"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
}

// ServiceConfig describes how to reach the rfstickd service.
type ServiceConfig struct {
	// CommandAddress is the request/response socket,
	// e.g. "unix:///tmp/RfstickClient" or "tcp://localhost:50800".
	CommandAddress string `yaml:"command_address"`

	// EventAddress is the asynchronous event socket.
	EventAddress string `yaml:"event_address"`

	// ConnectTimeout, ReadTimeout, and WriteTimeout are in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`
	ReadTimeout    int `yaml:"read_timeout"`
	WriteTimeout   int `yaml:"write_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "json" or "text".
	Format string `yaml:"format"`

	// Output is "stdout" or "stderr".
	Output string `yaml:"output"`
}

// StateLogConfig contains the local command journal settings.
type StateLogConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays is how long journal entries are kept before the
	// periodic prune removes them. 0 disables pruning.
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig contains the optional event forwarder settings.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	QoS         int    `yaml:"qos"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// InfluxDBConfig contains the optional telemetry sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
//
// Loading order: hardcoded defaults, then YAML file values, then
// environment variables of the form RFSTICK_SECTION_KEY
// (e.g. RFSTICK_SERVICE_COMMAND_ADDRESS, RFSTICK_MQTT_BROKER).
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration, used when no config file
// is given.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			CommandAddress: "unix:///tmp/RfstickClient",
			EventAddress:   "unix:///tmp/RfstickEvents",
			ConnectTimeout: 10,
			ReadTimeout:    5,
			WriteTimeout:   5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		StateLog: StateLogConfig{
			Path:          "rfstick.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "rfstick",
			QoS:         1,
			TopicPrefix: "rfstick",
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			BatchSize:     100,
			FlushInterval: 10,
		},
	}
}

// applyEnvOverrides replaces config values set via RFSTICK_* variables.
func applyEnvOverrides(cfg *Config) {
	setString := func(key string, target *string) {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}
	setInt := func(key string, target *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*target = n
			}
		}
	}

	setString("RFSTICK_SERVICE_COMMAND_ADDRESS", &cfg.Service.CommandAddress)
	setString("RFSTICK_SERVICE_EVENT_ADDRESS", &cfg.Service.EventAddress)
	setString("RFSTICK_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("RFSTICK_STATELOG_PATH", &cfg.StateLog.Path)
	setString("RFSTICK_MQTT_BROKER", &cfg.MQTT.Broker)
	setString("RFSTICK_MQTT_USERNAME", &cfg.MQTT.Username)
	setString("RFSTICK_MQTT_PASSWORD", &cfg.MQTT.Password)
	setString("RFSTICK_INFLUXDB_URL", &cfg.InfluxDB.URL)
	setString("RFSTICK_INFLUXDB_TOKEN", &cfg.InfluxDB.Token)
	setInt("RFSTICK_MQTT_QOS", &cfg.MQTT.QoS)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Service.CommandAddress == "" {
		return fmt.Errorf("service.command_address is required")
	}
	if c.Service.EventAddress == "" {
		return fmt.Errorf("service.event_address is required")
	}
	if c.Service.ConnectTimeout <= 0 {
		return fmt.Errorf("service.connect_timeout must be positive")
	}
	if c.Service.ReadTimeout <= 0 {
		return fmt.Errorf("service.read_timeout must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	if c.StateLog.Enabled && c.StateLog.Path == "" {
		return fmt.Errorf("statelog.path is required when statelog is enabled")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1, or 2")
		}
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			return fmt.Errorf("influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			return fmt.Errorf("influxdb.token is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			return fmt.Errorf("influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	return nil
}
