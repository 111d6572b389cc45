package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"example.com/bmffgate/internal/rules"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Port != 8080 || cfg.Concurrency != runtime.NumCPU() || cfg.Preset != DefaultPreset || cfg.Lang != "en" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.Logs.MaxSizeMB != 25 || cfg.Logs.MaxAgeDays != 14 || cfg.Logs.MaxBackups != 5 {
		t.Fatalf("log defaults = %+v", cfg.Logs)
	}
	if cfg.Logs.Directory != filepath.Join("data", "logs") {
		t.Fatalf("log dir = %s", cfg.Logs.Directory)
	}
}

func TestLoadYAMLAndTOML(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "store"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	tests := []struct {
		name string
		body string
	}{
		{"bmffgate.yaml", "port: 9000\nstorageDir: store\npreset: structural\nlogs:\n  maxSizeMB: 10\n"},
		{"bmffgate.toml", "port = 9000\nstorageDir = \"store\"\npreset = \"structural\"\n[logs]\nmaxSizeMB = 10\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, dir, tc.name, tc.body))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.Port != 9000 || cfg.Preset != "structural" || cfg.Logs.MaxSizeMB != 10 {
				t.Fatalf("cfg = %+v", cfg)
			}
			if cfg.StorageDir != filepath.Join(dir, "store") {
				t.Fatalf("storage dir = %s", cfg.StorageDir)
			}
			if cfg.Logs.MaxBackups != 5 {
				t.Fatalf("defaults not applied: %+v", cfg.Logs)
			}
		})
	}
}

func TestDecodeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		isTOML bool
	}{
		{"unknown yaml key", "prot: 1\n", false},
		{"unknown toml key", "prot = 1\n", true},
		{"port range", "port: 70000\n", false},
		{"malformed toml", "port = \n", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode(strings.NewReader(tc.body), tc.isTOML); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestEmptyYAMLUsesDefaults(t *testing.T) {
	cfg, err := Decode(strings.NewReader(""), false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("port = %d", cfg.Port)
	}
}

func TestLogOptions(t *testing.T) {
	opts := Default().Logs.LogOptions("bmffd.log")
	if opts.Filename != "bmffd.log" || opts.MaxSizeMB != 25 {
		t.Fatalf("opts = %+v", opts)
	}
}

func TestBuiltinPresets(t *testing.T) {
	tests := []struct {
		preset  string
		ruleID  string
		enabled bool
	}{
		{"default", rules.IDSampleTable, true},
		{"default", rules.IDTopLevelAdvisory, true},
		{"structural", rules.IDBoxSize, true},
		{"structural", rules.IDUnknownBox, true},
		{"structural", rules.IDTopLevelAdvisory, true},
		{"structural", rules.IDEditList, false},
		{"structural", rules.IDCodecConfiguration, false},
		{"structural", rules.IDParse, true},
		{"advisory-off", rules.IDTopLevelAdvisory, false},
		{"advisory-off", rules.IDUnknownBox, false},
		{"advisory-off", rules.IDFragmentRun, true},
	}
	for _, tc := range tests {
		p, err := FindPreset("", tc.preset)
		if err != nil {
			t.Fatalf("FindPreset(%s): %v", tc.preset, err)
		}
		if got := p.Enabled(tc.ruleID); got != tc.enabled {
			t.Fatalf("%s.Enabled(%s) = %v, want %v", tc.preset, tc.ruleID, got, tc.enabled)
		}
	}
}

func TestPresetsFileOverridesAndExtends(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "presets.yaml", `
- id: default
  name: Strict Default
  rules:
    - {ruleId: VR-006, enabled: false}
- id: codec-only
  name: Codec Only
  rules:
    - {ruleId: VR-018, enabled: true}
`)
	all, err := Presets(path)
	if err != nil {
		t.Fatalf("Presets: %v", err)
	}
	if len(all) != len(Builtin())+1 {
		t.Fatalf("presets = %d", len(all))
	}
	p, err := FindPreset(path, "default")
	if err != nil {
		t.Fatalf("FindPreset: %v", err)
	}
	if p.Name != "Strict Default" || p.Enabled(rules.IDUnknownBox) {
		t.Fatalf("default not overridden: %+v", p)
	}
	if _, err := FindPreset(path, "codec-only"); err != nil {
		t.Fatalf("FindPreset codec-only: %v", err)
	}
	if _, err := FindPreset(path, "nope"); !errors.Is(err, ErrUnknownPreset) {
		t.Fatalf("FindPreset nope: %v", err)
	}
}

func TestPresetsFileRejectsUnknownRule(t *testing.T) {
	path := writeFile(t, t.TempDir(), "presets.yaml", "- id: bad\n  rules:\n    - {ruleId: VR-999, enabled: false}\n")
	if _, err := Presets(path); err == nil || !strings.Contains(err.Error(), "VR-999") {
		t.Fatalf("Presets error = %v", err)
	}
}
