package simcfg

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if cfg.Server.ListenAddr != ":8280" {
		t.Fatalf("listen = %q", cfg.Server.ListenAddr)
	}
	if cfg.BLE.Type != "disabled" || cfg.Motor.BaudRate != 9600 {
		t.Fatalf("port defaults = %+v / %+v", cfg.BLE, cfg.Motor)
	}
	if cfg.Ride.Producer != "demo" {
		t.Fatalf("producer = %q", cfg.Ride.Producer)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
motor:
  type: serial
  port_path: /dev/ttyACM3
server:
  listen_addr: ":9000"
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := LoadConfig(path)
	if cfg.Motor.Type != "serial" || cfg.Motor.PortPath != "/dev/ttyACM3" {
		t.Fatalf("motor = %+v", cfg.Motor)
	}
	if cfg.Server.ListenAddr != ":9000" {
		t.Fatalf("listen = %q", cfg.Server.ListenAddr)
	}
	// untouched sections keep their defaults
	if cfg.Motor.BaudRate != 9600 {
		t.Fatalf("motor baud = %d", cfg.Motor.BaudRate)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	t.Setenv("MOTOR_PORT", "/dev/ttyUSB9")
	t.Setenv("LOG_ENABLED", "true")
	cfg := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if cfg.Motor.PortPath != "/dev/ttyUSB9" {
		t.Fatalf("motor port = %q", cfg.Motor.PortPath)
	}
	if !cfg.Logging.Enabled {
		t.Fatal("logging not enabled")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.path = path
	cfg.BLE.PortPath = "/dev/ttyS7"
	if err := cfg.Save(); err != nil {
		t.Fatal(err)
	}
	got := LoadConfig(path)
	if got.BLE.PortPath != "/dev/ttyS7" {
		t.Fatalf("reloaded ble port = %q", got.BLE.PortPath)
	}
}

func TestUpdateFromJSONDeepMerges(t *testing.T) {
	cfg := DefaultConfig()
	patch := []byte(`{"server":{"listenAddr":":1234"}}`)
	if err := cfg.UpdateFromJSON(patch); err != nil {
		t.Fatal(err)
	}
	if cfg.Server.ListenAddr != ":1234" {
		t.Fatalf("listen = %q", cfg.Server.ListenAddr)
	}
	// sibling fields in the same section survive the patch
	if cfg.Server.FrameHz != 10 || cfg.Server.TelemHz != 20 {
		t.Fatalf("rates = %d/%d", cfg.Server.FrameHz, cfg.Server.TelemHz)
	}
	if cfg.Motor.PortPath != "/dev/ttyUSB1" {
		t.Fatalf("motor port = %q", cfg.Motor.PortPath)
	}
}
