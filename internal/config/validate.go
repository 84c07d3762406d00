package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError holds details about a configuration validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, e := range errs {
		msgs = append(msgs, "  - "+e.Error())
	}
	return fmt.Sprintf("validation failed with %d error(s):\n%s", len(errs), strings.Join(msgs, "\n"))
}

// HasErrors returns true if there are any validation errors.
func (errs ValidationErrors) HasErrors() bool {
	return len(errs) > 0
}

// Validate checks a config for errors and returns detailed validation errors.
func Validate(cfg *Config) ValidationErrors {
	var errs ValidationErrors

	if cfg.Name == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "config name is required"})
	}
	if cfg.CSVPath == "" {
		errs = append(errs, ValidationError{Field: "csv_path", Message: "record store path is required"})
	}
	if cfg.PortalURL == "" {
		errs = append(errs, ValidationError{Field: "portal_url", Message: "portal URL is required"})
	}

	checkDuration := func(field, value string) {
		if value == "" {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("invalid duration %q", value)})
			return
		}
		if d <= 0 {
			errs = append(errs, ValidationError{Field: field, Message: "duration must be positive"})
		}
	}

	checkDuration("wait_timeout", cfg.WaitTimeout)
	checkDuration("global_timeout", cfg.GlobalTimeout)
	checkDuration("pacing.delay_short", cfg.Pacing.Short)
	checkDuration("pacing.delay_medium", cfg.Pacing.Medium)
	checkDuration("pacing.delay_long", cfg.Pacing.Long)
	checkDuration("pacing.delay_checkbox", cfg.Pacing.Checkbox)

	if cfg.MemoryLimitMB < 0 {
		errs = append(errs, ValidationError{Field: "memory_limit_mb", Message: "must be >= 0"})
	}
	if cfg.DashboardPort < 0 || cfg.DashboardPort > 65535 {
		errs = append(errs, ValidationError{Field: "dashboard_port", Message: "must be a valid TCP port"})
	}

	return errs
}
