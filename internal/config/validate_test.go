package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Name:      "batch",
		CSVPath:   "ledger.csv",
		PortalURL: "https://portal.example.com",
	}
}

func TestValidateAcceptsMinimalConfig(t *testing.T) {
	if errs := Validate(validConfig()); errs.HasErrors() {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing name", func(c *Config) { c.Name = "" }, "name"},
		{"missing csv path", func(c *Config) { c.CSVPath = "" }, "csv_path"},
		{"missing portal url", func(c *Config) { c.PortalURL = "" }, "portal_url"},
		{"bad wait timeout", func(c *Config) { c.WaitTimeout = "soon" }, "wait_timeout"},
		{"negative global timeout", func(c *Config) { c.GlobalTimeout = "-5m" }, "global_timeout"},
		{"bad pacing delay", func(c *Config) { c.Pacing.Medium = "3 seconds" }, "pacing.delay_medium"},
		{"negative memory limit", func(c *Config) { c.MemoryLimitMB = -1 }, "memory_limit_mb"},
		{"port out of range", func(c *Config) { c.DashboardPort = 70000 }, "dashboard_port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			errs := Validate(cfg)
			if !errs.HasErrors() {
				t.Fatal("expected validation errors")
			}
			if !strings.Contains(errs.Error(), tt.field) {
				t.Errorf("errors %v should mention %q", errs, tt.field)
			}
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	errs := Validate(&Config{})
	if len(errs) != 3 {
		t.Errorf("got %d errors, want 3 (name, csv_path, portal_url): %v", len(errs), errs)
	}
}
