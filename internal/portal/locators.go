package portal

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed locators.yaml
var defaultLocators []byte

// Profile maps logical element names to locators. The engine only ever
// refers to the logical names, so a portal markup change is absorbed by
// editing the profile.
type Profile map[string]Locator

// requiredNames is the set of logical names the run engine depends on.
// A profile missing any of them is rejected at load time rather than
// failing mid-run.
var requiredNames = []string{
	"deposit_heading",
	"cash_radio",
	"any_radio",
	"account_input",
	"clear_button",
	"fetch_button",
	"display_summary",
	"page_info",
	"next_page_rel",
	"prev_page_rel",
	"result_rows",
	"row_checkboxes",
	"save_button",
	"saved_list_heading",
	"pay_button",
	"payment_message",
	"reference_mention",
	"reports_link",
	"report_heading",
	"reference_input",
	"search_button",
	"format_select",
	"pdf_option_rel",
	"ok_button",
}

// DefaultProfile returns the built-in locator profile.
func DefaultProfile() Profile {
	p := Profile{}
	// The embedded profile is validated by tests; a parse failure here
	// is a build defect, not a runtime condition.
	if err := yaml.Unmarshal(defaultLocators, &p); err != nil {
		panic(fmt.Sprintf("portal: embedded locator profile invalid: %v", err))
	}
	return p
}

// LoadProfile reads a YAML locator profile from path and overlays it on
// the built-in defaults. An empty path returns the defaults unchanged.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, p.validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locator profile: %w", err)
	}
	overlay := Profile{}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse locator profile %s: %w", path, err)
	}
	for name, loc := range overlay {
		p[name] = loc
	}
	return p, p.validate()
}

// Get returns the locator for a logical name. Callers should only pass
// names covered by validate, so a miss is a programming error.
func (p Profile) Get(name string) Locator {
	loc, ok := p[name]
	if !ok {
		panic(fmt.Sprintf("portal: no locator named %q", name))
	}
	return loc
}

func (p Profile) validate() error {
	var missing []string
	for _, name := range requiredNames {
		loc, ok := p[name]
		if !ok || loc.Value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("locator profile missing entries: %v", missing)
	}
	return nil
}
