package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"backupd/internal/schedule"
)

func TestLoadPresetsMissingFileUsesDefaults(t *testing.T) {
	presets, err := LoadPresets(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := presets["critical"]; !ok {
		t.Fatalf("defaults missing critical: %v", presets)
	}
}

func TestLoadPresetsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	body := `archive:
  type: full
  frequency: "0 4 * * *"
  priority: 2
  retryCount: 1
  timeout: 60000
  conditions:
    minFreeSpace: 1073741824
    windowStart: 1
    windowEnd: 6
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	presets, err := LoadPresets(path)
	if err != nil {
		t.Fatal(err)
	}
	p, ok := presets["archive"]
	if !ok {
		t.Fatalf("presets = %v", presets)
	}
	if p.Frequency != "0 4 * * *" || p.TimeoutMs != 60000 {
		t.Fatalf("preset = %+v", p)
	}
	if p.Conditions == nil || *p.Conditions.WindowStart != 1 {
		t.Fatalf("conditions = %+v", p.Conditions)
	}
}

func TestLoadPresetsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPresets(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestPresetInstantiate(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p := DefaultPresets()["critical"]
	sc, err := p.Instantiate("db-critical", now)
	if err != nil {
		t.Fatal(err)
	}
	if sc.Name != "db-critical" || sc.Type != schedule.TypeFull || !sc.Enabled {
		t.Fatalf("schedule = %+v", sc)
	}
	if sc.Conditions == nil || sc.Conditions.MinFreeSpace != 10<<30 {
		t.Fatalf("conditions = %+v", sc.Conditions)
	}

	bad := Preset{Type: "weird", Frequency: "0 2 * * *"}
	if _, err := bad.Instantiate("x", now); err == nil {
		t.Fatal("expected type error")
	}
	bad = Preset{Type: "full", Frequency: "nope"}
	if _, err := bad.Instantiate("x", now); err == nil {
		t.Fatal("expected frequency error")
	}
}
