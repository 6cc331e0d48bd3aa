package ridelog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testSample() *Sample {
	return &Sample{
		SpeedDmph:  123,
		CadenceRPM: 78,
		PowerW:     250,
		BatteryDV:  368,
		SOC:        81,
		Brake:      true,
	}
}

func logFiles(t *testing.T, dir string) []string {
	t.Helper()
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	for _, e := range ents {
		out = append(out, e.Name())
	}
	return out
}

func TestRecordWritesHeaderAndRow(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Enabled: true, Path: dir, IntervalMs: 50})
	defer l.Close()

	l.Record(testSample())
	l.Close()

	files := logFiles(t, dir)
	if len(files) != 1 {
		t.Fatalf("files = %v", files)
	}
	if !strings.HasPrefix(files[0], "ride_") || !strings.HasSuffix(files[0], ".csv") {
		t.Fatalf("file name = %q", files[0])
	}

	f, err := os.Open(filepath.Join(dir, files[0]))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if len(rows[0]) != len(csvHeader) || rows[0][1] != "speed_dmph" {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[1][1] != "123" || rows[1][9] != "81" || rows[1][14] != "1" {
		t.Fatalf("row = %v", rows[1])
	}
}

func TestRecordRateLimited(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Enabled: true, Path: dir, IntervalMs: 10_000})
	defer l.Close()

	l.Record(testSample())
	l.Record(testSample())
	l.Record(testSample())
	l.Close()

	f, err := os.Open(filepath.Join(dir, logFiles(t, dir)[0]))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(rows))
	}
}

func TestDisabledLoggerWritesNothing(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Enabled: false, Path: dir, IntervalMs: 50})
	l.Record(testSample())
	l.Close()
	if files := logFiles(t, dir); len(files) != 0 {
		t.Fatalf("files = %v", files)
	}
}

func TestSetEnabledTogglesAtRuntime(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Enabled: false, Path: dir, IntervalMs: 50})
	defer l.Close()

	if l.IsEnabled() {
		t.Fatal("enabled at construction")
	}
	l.SetEnabled(true)
	l.Record(testSample())
	time.Sleep(60 * time.Millisecond)
	l.Record(testSample())
	l.SetEnabled(false)
	l.Record(testSample())
	l.Close()

	f, err := os.Open(filepath.Join(dir, logFiles(t, dir)[0]))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
}
