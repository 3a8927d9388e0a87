package validation

import (
	"fmt"
	"net/url"
)

// ValidateServiceURL checks that the optimizer base URL is an absolute
// http(s) URL.
func ValidateServiceURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid service URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("service URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("service URL %q has no host", raw)
	}
	return nil
}

// ValidateLogging checks the logging level and format names. Empty values
// fall back to defaults and are accepted.
func ValidateLogging(level, format string) error {
	switch level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging level %q", level)
	}
	switch format {
	case "", "json", "console":
	default:
		return fmt.Errorf("unknown logging format %q", format)
	}
	return nil
}
