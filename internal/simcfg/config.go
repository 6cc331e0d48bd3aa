// Package simcfg holds the host-side configuration for the simulator and the
// bench bridge. The firmware core itself is configured over the wire; this
// file only covers what lives on the host: serial attachment, the viewer
// server and ride logging.
package simcfg

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config holds all simulator configuration.
type Config struct {
	mu sync.RWMutex

	// Serial attachment for the two firmware ports
	BLE   PortConfig `yaml:"ble" json:"ble"`
	Motor PortConfig `yaml:"motor" json:"motor"`

	// Ride input source when no motor controller is attached
	Ride RideConfig `yaml:"ride" json:"ride"`

	// Viewer
	Server ServerConfig `yaml:"server" json:"server"`

	// Ride logging
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	path string // file path for save/load
}

// PortConfig describes one firmware UART's host attachment.
type PortConfig struct {
	Type     string `yaml:"type" json:"type"`          // "serial" or "disabled"
	PortPath string `yaml:"port_path" json:"portPath"` // e.g. /dev/ttyUSB0
	BaudRate int    `yaml:"baud_rate" json:"baudRate"`
}

type RideConfig struct {
	Producer string `yaml:"producer" json:"producer"` // "demo" or "none"
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"`
	FrameHz    int    `yaml:"frame_hz" json:"frameHz"` // panel snapshot rate
	TelemHz    int    `yaml:"telem_hz" json:"telemHz"` // telemetry broadcast rate
}

type LoggingConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Path     string `yaml:"path" json:"path"`
	Interval int    `yaml:"interval_ms" json:"intervalMs"` // ms between log rows
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BLE: PortConfig{
			Type:     "disabled",
			PortPath: "/dev/ttyUSB0",
			BaudRate: 9600,
		},
		Motor: PortConfig{
			Type:     "disabled",
			PortPath: "/dev/ttyUSB1",
			BaudRate: 9600,
		},
		Ride: RideConfig{
			Producer: "demo",
		},
		Server: ServerConfig{
			ListenAddr: ":8280",
			FrameHz:    10,
			TelemHz:    20,
		},
		Logging: LoggingConfig{
			Enabled:  false,
			Path:     "/var/log/bc280sim",
			Interval: 100,
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if YAML not found.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	// Load .env file from the same directory as the config, or from CWD
	envPaths := []string{
		filepath.Join(filepath.Dir(path), ".env"),
		".env",
	}
	for _, ep := range envPaths {
		loadEnvFile(ep)
	}

	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Printf("[config] loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		val = strings.Trim(val, `"'`)
		// Real env takes precedence over .env entries
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: BLE_TYPE, BLE_PORT, BLE_BAUD, MOTOR_TYPE, MOTOR_PORT,
// MOTOR_BAUD, RIDE_PRODUCER, LISTEN_ADDR, LOG_ENABLED, LOG_PATH,
// LOG_INTERVAL_MS
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BLE_TYPE"); v != "" {
		c.BLE.Type = v
	}
	if v := os.Getenv("BLE_PORT"); v != "" {
		c.BLE.PortPath = v
	}
	if v := os.Getenv("BLE_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BLE.BaudRate = n
		}
	}
	if v := os.Getenv("MOTOR_TYPE"); v != "" {
		c.Motor.Type = v
	}
	if v := os.Getenv("MOTOR_PORT"); v != "" {
		c.Motor.PortPath = v
	}
	if v := os.Getenv("MOTOR_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Motor.BaudRate = n
		}
	}
	if v := os.Getenv("RIDE_PRODUCER"); v != "" {
		c.Ride.Producer = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("LOG_ENABLED"); v != "" {
		c.Logging.Enabled = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("LOG_PATH"); v != "" {
		c.Logging.Path = v
	}
	if v := os.Getenv("LOG_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Logging.Interval = n
		}
	}
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string { return c.path }

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		c.path = "/etc/bc280sim/config.yaml"
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config. Fields not present in the
// incoming JSON are preserved (port paths, baud rates, logging).
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	currentBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("unmarshal current config: %w", err)
	}

	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("unmarshal patch: %w", err)
	}

	deepMerge(base, patch)

	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged config: %w", err)
	}
	return json.Unmarshal(merged, c)
}

// deepMerge recursively merges src into dst. For nested maps, values are
// merged rather than replaced. For all other types, src overwrites dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
