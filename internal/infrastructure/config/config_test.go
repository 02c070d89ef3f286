package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("SWNCREW_ENV_FILE", filepath.Join(tmpDir, ".env.local"))
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
rig:
  id: "test-rig"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
mission:
  start_active: false
  mission_gap_ms: 250
hardware:
  mode: "mock"
  valve_count: 2
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Rig.ID != "test-rig" {
		t.Errorf("Rig.ID = %q, want %q", cfg.Rig.ID, "test-rig")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}
	if cfg.Mission.StartActive {
		t.Error("Mission.StartActive = true, want false from file")
	}
	if got := cfg.Mission.MissionGap(); got != 250*time.Millisecond {
		t.Errorf("MissionGap() = %v, want 250ms", got)
	}
	if cfg.Mission.CleanupTimeoutMS != 5000 {
		t.Errorf("Mission.CleanupTimeoutMS = %d, want default 5000", cfg.Mission.CleanupTimeoutMS)
	}
	if cfg.Hardware.Mode != HardwareModeMock {
		t.Errorf("Hardware.Mode = %q, want %q", cfg.Hardware.Mode, HardwareModeMock)
	}
	if cfg.Hardware.Protocol != "gpio" {
		t.Errorf("Hardware.Protocol = %q, want default gpio", cfg.Hardware.Protocol)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
rig:
  id: ""
database:
  path: "/tmp/test.db"
api:
  port: 8080
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected validation error for empty rig.id, got nil")
	}
}

func TestLoad_EnvFile(t *testing.T) {
	configPath := writeConfig(t, "rig:\n  id: \"env-rig\"\n")
	envPath := filepath.Join(filepath.Dir(configPath), "custom.env")
	if err := os.WriteFile(envPath, []byte("SWNCREW_MQTT_HOST=broker.from.dotenv\n"), 0600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Setenv("SWNCREW_ENV_FILE", envPath)
	// Registered so the variable set by godotenv is restored after the test.
	t.Setenv("SWNCREW_MQTT_HOST", "")
	os.Unsetenv("SWNCREW_MQTT_HOST")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MQTT.Broker.Host != "broker.from.dotenv" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.from.dotenv")
	}
}

func TestLoadEnvFile_Missing(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("LoadEnvFile() error = %v, want nil for missing file", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing rig ID", mutate: func(c *Config) { c.Rig.ID = "" }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{
			name: "influxdb enabled without url",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.Bucket = "flows"
			},
			wantErr: true,
		},
		{name: "negative mission gap", mutate: func(c *Config) { c.Mission.GapMS = -1 }, wantErr: true},
		{name: "zero cleanup timeout", mutate: func(c *Config) { c.Mission.CleanupTimeoutMS = 0 }, wantErr: true},
		{name: "unknown hardware mode", mutate: func(c *Config) { c.Hardware.Mode = "gpio" }, wantErr: true},
		{
			name: "flow sensor outside flowmeter range",
			mutate: func(c *Config) {
				c.Hardware.FlowmeterCount = 1
				c.Mission.FlowSensorID = 1
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("SWNCREW_DATABASE_PATH", "/custom/path.db")
	t.Setenv("SWNCREW_MQTT_HOST", "mqtt.example.com")
	t.Setenv("SWNCREW_MQTT_USERNAME", "testuser")
	t.Setenv("SWNCREW_MQTT_PASSWORD", "testpass")
	t.Setenv("SWNCREW_API_HOST", "192.168.1.1")
	t.Setenv("SWNCREW_API_PORT", "9090")
	t.Setenv("SWNCREW_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("SWNCREW_HARDWARE_MODE", "mock")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Hardware.Mode != "mock" {
		t.Errorf("Hardware.Mode = %q, want mock", cfg.Hardware.Mode)
	}
}

func TestApplyEnvOverrides_BadPort(t *testing.T) {
	t.Setenv("SWNCREW_API_PORT", "not-a-port")
	if err := applyEnvOverrides(defaultConfig()); err == nil {
		t.Error("applyEnvOverrides() expected error for non-numeric port")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Rig.ID == "" {
		t.Error("defaultConfig should have non-empty Rig.ID")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if !cfg.Mission.StartActive {
		t.Error("defaultConfig should start with the scheduler active")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig should validate, got %v", err)
	}
}
