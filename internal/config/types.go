package config

import "time"

// Config is the run configuration loaded from JSON.
type Config struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Record store paths. The XLSX mirror is optional; empty disables it.
	CSVPath  string `json:"csv_path"`
	XLSXPath string `json:"xlsx_path,omitempty"`

	// Portal session.
	PortalURL    string `json:"portal_url"`
	WebDriverURL string `json:"webdriver_url,omitempty"`
	WaitTimeout  string `json:"wait_timeout,omitempty"` // element wait budget, e.g. "30s"

	// Locator profile mapping logical element names to matchers.
	LocatorsPath string `json:"locators_path,omitempty"`

	// Receipt downloads (phase 2).
	DownloadDir string `json:"download_dir,omitempty"`

	// Pacing between portal actions. All four are live-tunable from the
	// dashboard; the file values are only the starting point.
	Pacing PacingConfig `json:"pacing"`

	// Run budgets.
	GlobalTimeout string `json:"global_timeout,omitempty"` // e.g. "30m"
	MemoryLimitMB int    `json:"memory_limit_mb,omitempty"`

	// Dashboard listen port. The server walks forward a few ports if taken.
	DashboardPort int `json:"dashboard_port,omitempty"`
}

// PacingConfig holds the four delay knobs as duration strings.
type PacingConfig struct {
	Short    string `json:"delay_short,omitempty"`
	Medium   string `json:"delay_medium,omitempty"`
	Long     string `json:"delay_long,omitempty"`
	Checkbox string `json:"delay_checkbox,omitempty"`
}

// Defaults mirrored from the portal pacing we know to be safe.
const (
	DefaultDelayShort    = 1500 * time.Millisecond
	DefaultDelayMedium   = 3 * time.Second
	DefaultDelayLong     = 5 * time.Second
	DefaultDelayCheckbox = 400 * time.Millisecond

	DefaultWaitTimeout   = 30 * time.Second
	DefaultGlobalTimeout = 30 * time.Minute
	DefaultMemoryLimitMB = 3500
	DefaultDashboardPort = 5555
)

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// DelayShort returns the parsed short delay.
func (p PacingConfig) DelayShort() time.Duration {
	return parseDuration(p.Short, DefaultDelayShort)
}

// DelayMedium returns the parsed medium delay.
func (p PacingConfig) DelayMedium() time.Duration {
	return parseDuration(p.Medium, DefaultDelayMedium)
}

// DelayLong returns the parsed long delay.
func (p PacingConfig) DelayLong() time.Duration {
	return parseDuration(p.Long, DefaultDelayLong)
}

// DelayCheckbox returns the parsed per-checkbox delay.
func (p PacingConfig) DelayCheckbox() time.Duration {
	return parseDuration(p.Checkbox, DefaultDelayCheckbox)
}

// GetWaitTimeout parses the element wait budget.
func (c *Config) GetWaitTimeout() time.Duration {
	return parseDuration(c.WaitTimeout, DefaultWaitTimeout)
}

// GetGlobalTimeout parses the whole-run wall-clock budget.
func (c *Config) GetGlobalTimeout() time.Duration {
	return parseDuration(c.GlobalTimeout, DefaultGlobalTimeout)
}

// GetMemoryLimitMB returns the memory ceiling in MB.
func (c *Config) GetMemoryLimitMB() int {
	if c.MemoryLimitMB <= 0 {
		return DefaultMemoryLimitMB
	}
	return c.MemoryLimitMB
}

// GetDashboardPort returns the first port the dashboard tries to bind.
func (c *Config) GetDashboardPort() int {
	if c.DashboardPort <= 0 {
		return DefaultDashboardPort
	}
	return c.DashboardPort
}
