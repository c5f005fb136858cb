package platform

import (
	"time"

	"github.com/nlowe/flukso-hass/discovery"
	"github.com/nlowe/flukso-hass/hass"
	"github.com/nlowe/flukso-hass/mqtt"
)

// Sensor is the sensor platform. TValue is the type of the state, TAttributes the type of the json attributes.
//
// See https://www.home-assistant.io/integrations/sensor.mqtt/.
type Sensor[TValue, TAttributes any] struct {
	// State is required.
	State *mqtt.Value[TValue]

	// Attributes is optional and must encode to a json object.
	Attributes *mqtt.Value[TAttributes]

	DeviceClass       hass.DeviceClass
	StateClass        hass.StateClass
	UnitOfMeasurement string

	// SuggestedDisplayPrecision is the number of decimals Home Assistant shows. Zero leaves it to Home Assistant.
	SuggestedDisplayPrecision uint

	// ForceUpdate records every reading in the history, even when the value did not change.
	ForceUpdate bool

	// ExpireAfter makes the state unavailable when no reading arrived for this long. Zero never expires.
	ExpireAfter time.Duration
}

func (s *Sensor[TValue, TAttributes]) PlatformName() string {
	return "sensor"
}

func (s *Sensor[TValue, TAttributes]) MarshalDiscoveryTo(p *discovery.Payload, prefix string) {
	p.RequiredTopic("state", discovery.FieldStateTopic, s.State.FullyQualifiedTopic(prefix))
	p.Topic(discovery.FieldAttributesTopic, s.Attributes.FullyQualifiedTopic(prefix))

	discovery.Optional(p, discovery.FieldDeviceClass, s.DeviceClass)
	discovery.Optional(p, discovery.FieldStateClass, s.StateClass)
	discovery.Optional(p, discovery.FieldUnitOfMeasurement, s.UnitOfMeasurement)
	discovery.Optional(p, discovery.FieldSuggestedDisplayPrecision, s.SuggestedDisplayPrecision)
	discovery.Optional(p, discovery.FieldForceUpdate, s.ForceUpdate)
	discovery.Optional(p, discovery.FieldExpireAfter, s.ExpireAfter)
}

// NewSensorAttributeValue returns a retained attributes value for topic. A nil marshaler encodes json.
func NewSensorAttributeValue[TAttributes any](topic string, marshaler mqtt.ValueMarshaler[TAttributes]) *mqtt.Value[TAttributes] {
	return mqtt.NewValueWithOptions(topic, orJSON(marshaler), mqtt.WriteOptions{Retain: true})
}

func orJSON[T any](m mqtt.ValueMarshaler[T]) mqtt.ValueMarshaler[T] {
	if m == nil {
		return mqtt.JsonValueMarshaler[T]()
	}

	return m
}
