package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultEnvFile is the dotenv file consulted before environment overrides
// are applied. A missing file is not an error.
const DefaultEnvFile = ".env.local"

// Hardware modes.
const (
	HardwareModeMQTT = "mqtt"
	HardwareModeMock = "mock"
)

// Config is the root configuration structure for SWNCREW Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Rig       RigConfig       `yaml:"rig"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Mission   MissionConfig   `yaml:"mission"`
	Hardware  HardwareConfig  `yaml:"hardware"`
}

// RigConfig identifies the test rig this core drives.
type RigConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MissionConfig controls the mission scheduler.
type MissionConfig struct {
	// StartActive sets the initial value of the active flag.
	StartActive bool `yaml:"start_active"`

	// FlowSensorID is the flowmeter that receives trajectory setpoints.
	FlowSensorID int `yaml:"flow_sensor_id"`

	// GapMS is the pause between two consecutive missions, in milliseconds.
	GapMS int `yaml:"mission_gap_ms"`

	// CleanupTimeoutMS bounds the valve-close and setpoint-clear commands
	// issued after a mission ends.
	CleanupTimeoutMS int `yaml:"cleanup_timeout_ms"`

	// DeliveryTimeoutMS bounds a single subscriber delivery.
	DeliveryTimeoutMS int `yaml:"delivery_timeout_ms"`

	// SinkTimeoutMS bounds a single telemetry sink write.
	SinkTimeoutMS int `yaml:"sink_timeout_ms"`

	// HistoryLimit is the default page size for completed-mission history.
	HistoryLimit int `yaml:"history_limit"`
}

// HardwareConfig selects how valve and flowmeter commands reach hardware.
type HardwareConfig struct {
	// Mode is "mqtt" (commands go to a hardware bridge) or "mock" (in-process).
	Mode           string `yaml:"mode"`
	Protocol       string `yaml:"protocol"`
	ValveCount     int    `yaml:"valve_count"`
	FlowmeterCount int    `yaml:"flowmeter_count"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Variables from .env.local, for any not already set in the environment
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: SWNCREW_SECTION_KEY
// For example: SWNCREW_DATABASE_PATH, SWNCREW_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	envFile := os.Getenv("SWNCREW_ENV_FILE")
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := LoadEnvFile(envFile); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadEnvFile loads variables from a dotenv file without overriding
// variables already present in the process environment.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Rig: RigConfig{
			ID:   "rig-001",
			Name: "SWNCREW Rig",
		},
		Database: DatabaseConfig{
			Path:        "./data/swncrew.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "swncrew-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Mission: MissionConfig{
			StartActive:       true,
			CleanupTimeoutMS:  5000,
			DeliveryTimeoutMS: 2000,
			SinkTimeoutMS:     5000,
			HistoryLimit:      50,
		},
		Hardware: HardwareConfig{
			Mode:           HardwareModeMQTT,
			Protocol:       "gpio",
			ValveCount:     4,
			FlowmeterCount: 1,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SWNCREW_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SWNCREW_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("SWNCREW_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SWNCREW_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SWNCREW_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("SWNCREW_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("SWNCREW_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SWNCREW_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}

	if v := os.Getenv("SWNCREW_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("SWNCREW_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("SWNCREW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("SWNCREW_HARDWARE_MODE"); v != "" {
		cfg.Hardware.Mode = v
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Rig.ID == "" {
		errs = append(errs, "rig.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if c.Mission.FlowSensorID < 0 {
		errs = append(errs, "mission.flow_sensor_id must not be negative")
	}
	if c.Mission.GapMS < 0 {
		errs = append(errs, "mission.mission_gap_ms must not be negative")
	}
	if c.Mission.CleanupTimeoutMS <= 0 {
		errs = append(errs, "mission.cleanup_timeout_ms must be positive")
	}

	switch c.Hardware.Mode {
	case HardwareModeMQTT, HardwareModeMock:
	default:
		errs = append(errs, fmt.Sprintf("hardware.mode must be %q or %q", HardwareModeMQTT, HardwareModeMock))
	}
	if c.Hardware.FlowmeterCount > 0 && c.Mission.FlowSensorID >= c.Hardware.FlowmeterCount {
		errs = append(errs, "mission.flow_sensor_id must be below hardware.flowmeter_count")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// MissionGap returns the pause between consecutive missions.
func (m MissionConfig) MissionGap() time.Duration {
	return time.Duration(m.GapMS) * time.Millisecond
}

// CleanupTimeout returns the bound on post-mission cleanup commands.
func (m MissionConfig) CleanupTimeout() time.Duration {
	return time.Duration(m.CleanupTimeoutMS) * time.Millisecond
}

// DeliveryTimeout returns the bound on a single subscriber delivery.
func (m MissionConfig) DeliveryTimeout() time.Duration {
	return time.Duration(m.DeliveryTimeoutMS) * time.Millisecond
}

// SinkTimeout returns the bound on a single telemetry sink write.
func (m MissionConfig) SinkTimeout() time.Duration {
	return time.Duration(m.SinkTimeoutMS) * time.Millisecond
}
