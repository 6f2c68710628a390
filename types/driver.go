// Package types contains shared types used across the op-stepper framework
package types

import (
	"fmt"
	"maps"
)

// ConfigType represents the kind of remote endpoint a driver config points at
type ConfigType string

// String implements the Stringer interface for ConfigType
func (c ConfigType) String() string {
	return string(c)
}

// ConfigType enum values
const (
	ConfigTypeRealDevice    ConfigType = "real-device"
	ConfigTypeEmulator      ConfigType = "emulator"
	ConfigTypeRealDeviceWeb ConfigType = "real-device-web"
	ConfigTypeEmulatorWeb   ConfigType = "emulator-web"
	ConfigTypeGridService   ConfigType = "grid-service"
)

var validConfigTypes = []ConfigType{
	ConfigTypeRealDevice,
	ConfigTypeEmulator,
	ConfigTypeRealDeviceWeb,
	ConfigTypeEmulatorWeb,
	ConfigTypeGridService,
}

// IsValid reports whether c is one of the known config types
func (c ConfigType) IsValid() bool {
	for _, v := range validConfigTypes {
		if c == v {
			return true
		}
	}
	return false
}

// IsWeb reports whether the config drives a browser
func (c ConfigType) IsWeb() bool {
	return c == ConfigTypeRealDeviceWeb || c == ConfigTypeEmulatorWeb || c == ConfigTypeGridService
}

// IsRealDevice reports whether the config targets physical hardware
func (c ConfigType) IsRealDevice() bool {
	return c == ConfigTypeRealDevice || c == ConfigTypeRealDeviceWeb
}

// DriverConfig describes one exclusively-acquirable remote execution endpoint.
// Availability is tracked by the pool, not on the config itself.
type DriverConfig struct {
	Name            string            `json:"name" yaml:"name"`
	ConfigType      ConfigType        `json:"configType" yaml:"configType"`
	PlatformName    string            `json:"platformName,omitempty" yaml:"platformName,omitempty"`
	PlatformVersion string            `json:"platformVersion,omitempty" yaml:"platformVersion,omitempty"`
	HubURL          string            `json:"hubURL" yaml:"hubURL"`
	BrowserName     string            `json:"browserName,omitempty" yaml:"browserName,omitempty"`
	UDID            string            `json:"udid,omitempty" yaml:"udid,omitempty"`
	RealDeviceUUID  string            `json:"realDeviceUuid,omitempty" yaml:"realDeviceUuid,omitempty"`
	Capabilities    map[string]string `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
}

// Key returns the identity of the config inside a pool. Unnamed configs are
// keyed by platform and hub, plus the device and browser when set, so several
// devices behind one hub stay distinct.
func (d DriverConfig) Key() string {
	if d.Name != "" {
		return d.Name
	}
	key := fmt.Sprintf("%s@%s", d.PlatformName, d.HubURL)
	if id := d.DeviceID(); id != "" {
		key += "/" + id
	} else if id := d.Capabilities["udid"]; id != "" {
		key += "/" + id
	}
	if browser := d.BrowserName; browser != "" {
		key += "/" + browser
	} else if browser := d.Capabilities["browserName"]; browser != "" {
		key += "/" + browser
	}
	return key
}

// DeviceID returns the device identifier, preferring udid over realDeviceUuid
func (d DriverConfig) DeviceID() string {
	if d.UDID != "" {
		return d.UDID
	}
	return d.RealDeviceUUID
}

// DesiredCapabilities merges the declared fields into a copy of the capability map.
// Explicit capability entries win over the derived ones.
func (d DriverConfig) DesiredCapabilities() map[string]string {
	caps := make(map[string]string, len(d.Capabilities)+4)
	if d.PlatformName != "" {
		caps["platformName"] = d.PlatformName
	}
	if d.PlatformVersion != "" {
		caps["platformVersion"] = d.PlatformVersion
	}
	if d.BrowserName != "" {
		caps["browserName"] = d.BrowserName
	}
	if id := d.DeviceID(); id != "" {
		caps["udid"] = id
	}
	maps.Copy(caps, d.Capabilities)
	return caps
}
