// Package ridelog records timestamped ride telemetry to CSV files with
// automatic rotation. The simulator and the viewer server share the Sample
// type; rows are sampled off the live ride model on the host side.
package ridelog

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Sample is one telemetry snapshot taken from the ride model.
type Sample struct {
	SpeedDmph  uint16 `json:"speedDmph"`
	CadenceRPM uint16 `json:"cadenceRpm"`
	RPM        uint16 `json:"rpm"`
	TorqueRaw  uint16 `json:"torqueRaw"`

	PowerW    uint16 `json:"powerW"`
	CurrentDA uint16 `json:"currentDa"`

	BatteryDV uint16 `json:"batteryDv"`
	BatteryDA uint16 `json:"batteryDa"`
	SOC       uint8  `json:"soc"`
	TempDC    int16  `json:"tempDc"`

	AssistMode uint8 `json:"assistMode"`
	ProfileID  uint8 `json:"profileId"`
	Gear       uint8 `json:"gear"`

	Brake   bool  `json:"brake"`
	Walk    bool  `json:"walk"`
	Cruise  uint8 `json:"cruise"`
	Thermal uint8 `json:"thermal"`
	Err     uint8 `json:"err"`

	TripDistanceMM uint32 `json:"tripDistanceMm"`
	TripEnergyMWh  uint32 `json:"tripEnergyMwh"`
	TripMaxDmph    uint16 `json:"tripMaxDmph"`

	Page string `json:"page"`
}

// Logger writes samples to CSV, one file per session, rotated by row count.
type Logger struct {
	mu       sync.Mutex
	dir      string
	interval time.Duration
	enabled  bool

	file   *os.File
	writer *csv.Writer
	lastTs time.Time
	rows   int
}

// Config holds logger configuration.
type Config struct {
	Enabled    bool
	Path       string
	IntervalMs int
}

const maxRowsPerFile = 100_000 // rotate after 100k rows (~2.7 hrs at 10 Hz)

var csvHeader = []string{
	"timestamp", "speed_dmph", "cadence_rpm", "motor_rpm", "torque_raw",
	"power_w", "current_da", "battery_dv", "battery_da", "soc", "temp_dc",
	"assist", "profile", "gear",
	"brake", "walk", "cruise", "thermal", "err",
	"trip_mm", "trip_mwh", "trip_max_dmph",
}

// New creates a new Logger.
func New(cfg Config) *Logger {
	if cfg.Path == "" {
		cfg.Path = "/var/log/bc280sim"
	}
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	if interval < 50*time.Millisecond {
		interval = 100 * time.Millisecond // default 10 Hz
	}
	return &Logger{
		dir:      cfg.Path,
		interval: interval,
		enabled:  cfg.Enabled,
	}
}

// SetEnabled allows toggling logging at runtime.
func (l *Logger) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = on
	if !on && l.file != nil {
		l.closeFile()
	}
}

// IsEnabled returns whether logging is active.
func (l *Logger) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Record writes a sample if the minimum interval has elapsed.
func (l *Logger) Record(s *Sample) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled || s == nil {
		return
	}

	now := time.Now()
	if now.Sub(l.lastTs) < l.interval {
		return
	}
	l.lastTs = now

	if l.writer == nil || l.rows >= maxRowsPerFile {
		if err := l.rotateFile(now); err != nil {
			log.Printf("[ridelog] rotate failed: %v", err)
			return
		}
	}

	if err := l.writer.Write(buildRow(now, s)); err != nil {
		log.Printf("[ridelog] write failed: %v", err)
		return
	}
	l.writer.Flush()
	l.rows++
}

// Close flushes and closes the current log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeFile()
}

func (l *Logger) rotateFile(now time.Time) error {
	l.closeFile()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", l.dir, err)
	}

	filename := fmt.Sprintf("ride_%s.csv", now.Format("2006-01-02_150405"))
	path := filepath.Join(l.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	l.file = f
	l.writer = csv.NewWriter(f)
	l.rows = 0

	if err := l.writer.Write(csvHeader); err != nil {
		return err
	}
	l.writer.Flush()

	log.Printf("[ridelog] opened %s", path)
	return nil
}

func (l *Logger) closeFile() {
	if l.writer != nil {
		l.writer.Flush()
		l.writer = nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

func buildRow(ts time.Time, s *Sample) []string {
	return []string{
		ts.Format(time.RFC3339Nano),
		fmt.Sprintf("%d", s.SpeedDmph),
		fmt.Sprintf("%d", s.CadenceRPM),
		fmt.Sprintf("%d", s.RPM),
		fmt.Sprintf("%d", s.TorqueRaw),
		fmt.Sprintf("%d", s.PowerW),
		fmt.Sprintf("%d", s.CurrentDA),
		fmt.Sprintf("%d", s.BatteryDV),
		fmt.Sprintf("%d", s.BatteryDA),
		fmt.Sprintf("%d", s.SOC),
		fmt.Sprintf("%d", s.TempDC),
		fmt.Sprintf("%d", s.AssistMode),
		fmt.Sprintf("%d", s.ProfileID),
		fmt.Sprintf("%d", s.Gear),
		boolStr(s.Brake),
		boolStr(s.Walk),
		fmt.Sprintf("%d", s.Cruise),
		fmt.Sprintf("%d", s.Thermal),
		fmt.Sprintf("%d", s.Err),
		fmt.Sprintf("%d", s.TripDistanceMM),
		fmt.Sprintf("%d", s.TripEnergyMWh),
		fmt.Sprintf("%d", s.TripMaxDmph),
	}
}

func boolStr(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
