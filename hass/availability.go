// Package hass holds the Home Assistant vocabulary flukso-hass publishes: availability, binary states, state classes
// and device classes.
package hass

import "github.com/nlowe/flukso-hass/mqtt"

// Availability is the payload of an availability topic. Home Assistant publishes its own on <prefix>/status.
type Availability string

const (
	Available   Availability = "online"
	Unavailable Availability = "offline"
)

var (
	AvailabilityMarshaler mqtt.ValueMarshaler[Availability] = func(v Availability) ([]byte, error) {
		return []byte(v), nil
	}
	AvailabilityUnmarshaler mqtt.ValueUnmarshaler[Availability] = func(payload []byte) (Availability, error) {
		return Availability(payload), nil
	}
)
