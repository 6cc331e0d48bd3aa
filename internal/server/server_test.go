package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/darvell/open-bc280-firmware-sub002/internal/ridelog"
	"github.com/darvell/open-bc280-firmware-sub002/internal/simcfg"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	cfg := simcfg.LoadConfig(filepath.Join(dir, "config.yaml"))
	cfg.Logging.Path = filepath.Join(dir, "logs")
	sample := func() *ridelog.Sample { return &ridelog.Sample{SpeedDmph: 100} }
	return New(cfg, nil, nil, sample, nil)
}

func TestPackFrameLittleEndian(t *testing.T) {
	got := packFrame([]uint16{0xF800, 0x07E0, 0x001F})
	want := []byte{0x00, 0xF8, 0xE0, 0x07, 0x1F, 0x00}
	if string(got) != string(want) {
		t.Fatalf("packed = % x, want % x", got, want)
	}
}

func TestUpdateOdometerIntegratesSpeed(t *testing.T) {
	s := testServer(t)
	// 100 dmph is 16.09 km/h; one second adds ~4.5 m
	s.updateOdometer(&ridelog.Sample{SpeedDmph: 100}, time.Second)
	if s.odoTotal < 0.004 || s.odoTotal > 0.005 {
		t.Fatalf("odoTotal = %f", s.odoTotal)
	}
	if s.odoTrip != s.odoTotal {
		t.Fatalf("trip %f != total %f", s.odoTrip, s.odoTotal)
	}
}

func TestUpdateOdometerIgnoresStalls(t *testing.T) {
	s := testServer(t)
	s.updateOdometer(&ridelog.Sample{SpeedDmph: 0}, time.Second)
	s.updateOdometer(&ridelog.Sample{SpeedDmph: 100}, 5*time.Second) // gap too long
	if s.odoTotal != 0 {
		t.Fatalf("odoTotal = %f", s.odoTotal)
	}
}

func TestConfigAPIGetAndPatch(t *testing.T) {
	s := testServer(t)

	rr := httptest.NewRecorder()
	s.handleConfig(rr, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	if rr.Code != 200 {
		t.Fatalf("GET status = %d", rr.Code)
	}
	var got simcfg.Config
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Server.ListenAddr != ":8280" {
		t.Fatalf("listen = %q", got.Server.ListenAddr)
	}

	rr = httptest.NewRecorder()
	body := strings.NewReader(`{"server":{"frameHz":25}}`)
	s.handleConfig(rr, httptest.NewRequest(http.MethodPost, "/api/config", body))
	if rr.Code != 200 {
		t.Fatalf("POST status = %d", rr.Code)
	}
	if s.cfg.Server.FrameHz != 25 {
		t.Fatalf("frameHz = %d", s.cfg.Server.FrameHz)
	}
	// untouched fields survive
	if s.cfg.Server.TelemHz != 20 {
		t.Fatalf("telemHz = %d", s.cfg.Server.TelemHz)
	}
}

func TestResetTripPersists(t *testing.T) {
	s := testServer(t)
	s.odoTotal = 120.5
	s.odoTrip = 12.3

	rr := httptest.NewRecorder()
	s.handleResetTrip(rr, httptest.NewRequest(http.MethodPost, "/api/odo/reset-trip", nil))
	if rr.Code != 200 {
		t.Fatalf("status = %d", rr.Code)
	}
	if s.odoTrip != 0 || s.odoTotal != 120.5 {
		t.Fatalf("trip=%f total=%f", s.odoTrip, s.odoTotal)
	}

	data, err := os.ReadFile(s.odoPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "120.5") {
		t.Fatalf("persisted = %q", data)
	}

	rr = httptest.NewRecorder()
	s.handleResetTrip(rr, httptest.NewRequest(http.MethodGet, "/api/odo/reset-trip", nil))
	if rr.Code != 405 {
		t.Fatalf("GET status = %d", rr.Code)
	}
}
