package platform

import (
	"time"

	"github.com/nlowe/flukso-hass/discovery"
	"github.com/nlowe/flukso-hass/hass"
	"github.com/nlowe/flukso-hass/mqtt"
)

// BinarySensor is the binary_sensor platform. Its state is hass.PowerStateOn or hass.PowerStateOff.
//
// See https://www.home-assistant.io/integrations/binary_sensor.mqtt/.
type BinarySensor[TAttributes any] struct {
	Sensor[hass.PowerState, TAttributes]

	// OffDelay lets Home Assistant turn the sensor off by itself when nothing was received for this long. Zero leaves the
	// state as published.
	OffDelay time.Duration
}

// NewBinarySensor returns a BinarySensor publishing state and, if not nil, attrs.
func NewBinarySensor[TAttributes any](state *mqtt.Value[hass.PowerState], attrs *mqtt.Value[TAttributes]) *BinarySensor[TAttributes] {
	return &BinarySensor[TAttributes]{
		Sensor: Sensor[hass.PowerState, TAttributes]{State: state, Attributes: attrs},
	}
}

func (s *BinarySensor[TAttributes]) PlatformName() string {
	return "binary_sensor"
}

func (s *BinarySensor[TAttributes]) MarshalDiscoveryTo(p *discovery.Payload, prefix string) {
	s.Sensor.MarshalDiscoveryTo(p, prefix)
	discovery.Optional(p, discovery.FieldOffDelay, s.OffDelay)
}
