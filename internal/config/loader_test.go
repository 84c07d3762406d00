package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `{
		"name": "august-batch",
		"csv_path": "ledger.csv",
		"portal_url": "https://portal.example.com/deposits",
		"pacing": {"delay_short": "2s"}
	}`)

	cfg, err := NewLoader().LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Name != "august-batch" {
		t.Errorf("Name = %q", cfg.Name)
	}
	if got := cfg.Pacing.DelayShort(); got != 2*time.Second {
		t.Errorf("DelayShort = %v, want 2s", got)
	}
	// Unset knobs fall back to defaults.
	if got := cfg.Pacing.DelayCheckbox(); got != DefaultDelayCheckbox {
		t.Errorf("DelayCheckbox = %v, want default", got)
	}
	if got := cfg.GetDashboardPort(); got != DefaultDashboardPort {
		t.Errorf("GetDashboardPort = %d, want default", got)
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := NewLoader().LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFileBadJSON(t *testing.T) {
	path := writeConfig(t, `{"name": "broken",`)
	_, err := NewLoader().LoadFile(path)
	if err == nil || !strings.Contains(err.Error(), "parse config JSON") {
		t.Fatalf("err = %v, want JSON parse failure", err)
	}
}

func TestLoadFileExpandsEnv(t *testing.T) {
	t.Setenv("LOTRUNNER_PORTAL", "https://portal.example.com")
	path := writeConfig(t, `{
		"name": "env-test",
		"csv_path": "${LEDGER_PATH:-ledger.csv}",
		"portal_url": "${LOTRUNNER_PORTAL}"
	}`)

	cfg, err := NewLoader().LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.PortalURL != "https://portal.example.com" {
		t.Errorf("PortalURL = %q", cfg.PortalURL)
	}
	if cfg.CSVPath != "ledger.csv" {
		t.Errorf("CSVPath = %q, want default from :- form", cfg.CSVPath)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("LR_SET", "value")
	t.Setenv("LR_EMPTY", "")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"set variable", "${LR_SET}", "value"},
		{"unset variable", "${LR_DEFINITELY_UNSET}", ""},
		{"unset with default", "${LR_DEFINITELY_UNSET:-fallback}", "fallback"},
		{"set beats default", "${LR_SET:-fallback}", "value"},
		{"empty but set beats default", "${LR_EMPTY:-fallback}", ""},
		{"embedded", "path/${LR_SET}/file.csv", "path/value/file.csv"},
		{"multiple", "${LR_SET}-${LR_UNSET:-x}", "value-x"},
		{"no references", "plain text", "plain text"},
		{"bare dollar untouched", "$LR_SET", "$LR_SET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(expandEnv([]byte(tt.input))); got != tt.want {
				t.Errorf("expandEnv(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadAndValidateRejectsIncomplete(t *testing.T) {
	path := writeConfig(t, `{"name": "no-paths"}`)
	_, err := NewLoader().LoadAndValidate(path)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(err.Error(), "csv_path") || !strings.Contains(err.Error(), "portal_url") {
		t.Errorf("error should name the missing fields: %v", err)
	}
}
