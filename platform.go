package fluksohass

import "github.com/nlowe/flukso-hass/discovery"

// Platform is a Home Assistant MQTT platform a Component can be built on, like sensor or binary_sensor.
type Platform interface {
	// MarshalDiscoveryTo writes the platform specific members of a component. Topics are relative to prefix.
	MarshalDiscoveryTo(p *discovery.Payload, prefix string)

	// PlatformName is the value of the "p" discovery field, e.g. "binary_sensor".
	PlatformName() string
}
