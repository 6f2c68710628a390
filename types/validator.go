package types

import (
	"fmt"
	"net/url"
)

// ValidationError describes why a driver config was rejected
type ValidationError struct {
	Config string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("driver config %q: %s %s", e.Config, e.Field, e.Reason)
}

// ValidateDriverConfig checks that a config carries everything its config type needs
func ValidateDriverConfig(cfg DriverConfig) error {
	invalid := func(field, reason string) error {
		return &ValidationError{Config: cfg.Key(), Field: field, Reason: reason}
	}

	if cfg.ConfigType == "" {
		return invalid("configType", "is required")
	}
	if !cfg.ConfigType.IsValid() {
		return invalid("configType", fmt.Sprintf("has unknown value %q", cfg.ConfigType))
	}

	// A grid decides the platform itself
	if cfg.PlatformName == "" && cfg.ConfigType != ConfigTypeGridService {
		return invalid("platformName", "is required")
	}

	if cfg.HubURL == "" {
		return invalid("hubURL", "is required")
	}
	u, err := url.Parse(cfg.HubURL)
	if err != nil {
		return invalid("hubURL", fmt.Sprintf("is not a valid URL: %v", err))
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("hubURL", "must be an absolute http(s) URL")
	}

	if cfg.ConfigType.IsWeb() && cfg.BrowserName == "" && cfg.Capabilities["browserName"] == "" {
		return invalid("browserName", fmt.Sprintf("is required for %s configs", cfg.ConfigType))
	}
	if cfg.ConfigType.IsRealDevice() && cfg.DeviceID() == "" && cfg.Capabilities["udid"] == "" {
		return invalid("udid", fmt.Sprintf("is required for %s configs", cfg.ConfigType))
	}

	return nil
}
