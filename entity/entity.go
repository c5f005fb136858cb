// Package entity exposes classified Flukso sensors as Home Assistant entities. Each entity reads live values from the
// Flukso bus, renders them and writes the rendered state to the Home Assistant bus.
package entity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-json-experiment/json"

	"github.com/nlowe/flukso-hass/flukso"
	"github.com/nlowe/flukso-hass/hass"
	"github.com/nlowe/flukso-hass/log"
	"github.com/nlowe/flukso-hass/mqtt"
	"github.com/nlowe/flukso-hass/platform"
)

const (
	// DefaultOffDelay is how long a presence entity stays ON after the last message.
	DefaultOffDelay = 10 * time.Second

	// DefaultTopicPrefix is the Home Assistant side topic prefix entity topics are written under.
	DefaultTopicPrefix = "flukso"

	writeTimeout = 5 * time.Second
)

// Entity is a Home Assistant entity backed by one Flukso sensor channel. It implements mqtt.Handler for the sensor's
// Flukso topic and json.MarshalerTo for its discovery component.
type Entity interface {
	mqtt.Handler
	json.MarshalerTo

	// Descriptor returns the classification this entity was built from.
	Descriptor() flukso.Descriptor

	// PlatformName is the Home Assistant platform of the entity.
	PlatformName() string

	// Subscription is the Flukso topic live values are read from.
	Subscription() mqtt.Subscription

	// Announce marks the entity available and writes its attributes.
	Announce(ctx context.Context) error

	// Republish re-sends availability, attributes and the last rendered state, if any.
	Republish(ctx context.Context) error

	// Close stops any pending timers and marks the entity unavailable. Close is idempotent.
	Close(ctx context.Context) error
}

// Attributes are the json attributes written for every entity.
type Attributes struct {
	Device   string `json:"device"`
	Sensor   string `json:"sensor"`
	Type     string `json:"type,omitempty"`
	Subtype  string `json:"subtype,omitempty"`
	Class    string `json:"class,omitempty"`
	DataType string `json:"data_type,omitempty"`
}

// AttributesOf returns the Attributes describing d.
func AttributesOf(d flukso.Descriptor) Attributes {
	return Attributes{
		Device:   d.DeviceID,
		Sensor:   d.SensorID,
		Type:     d.Type,
		Subtype:  d.Subtype,
		Class:    d.Class,
		DataType: d.DataType,
	}
}

// PlatformFor returns the Home Assistant platform a descriptor is exposed as.
func PlatformFor(d flukso.Descriptor) string {
	if d.Kind == flukso.RenderBinary {
		return (&platform.BinarySensor[Attributes]{}).PlatformName()
	}

	return (&platform.Sensor[string, Attributes]{}).PlatformName()
}

// common holds what numeric and binary entities share: their Home Assistant topics and the writer they publish to.
type common struct {
	d      flukso.Descriptor
	sink   mqtt.Writer
	prefix string

	availability *mqtt.Value[hass.Availability]
	attributes   *mqtt.Value[Attributes]

	// ctx carries values for writes made from bus callbacks. It is never cancelled.
	ctx context.Context

	log *slog.Logger
}

func newCommon(ctx context.Context, d flukso.Descriptor, sink mqtt.Writer, topicPrefix string) *common {
	return &common{
		d:      d,
		sink:   sink,
		prefix: mqtt.JoinTopic(topicPrefix, d.SensorID),

		availability: mqtt.NewValueWithOptions[hass.Availability]("available", hass.AvailabilityMarshaler, mqtt.WriteOptions{Retain: true}),
		attributes:   platform.NewSensorAttributeValue[Attributes]("attributes", nil),

		ctx: context.WithoutCancel(ctx),

		log: log.ForComponent("entity").With(log.Device(d.DeviceID), log.Sensor(d.SensorID)),
	}
}

func (c *common) Descriptor() flukso.Descriptor {
	return c.d
}

func (c *common) Subscription() mqtt.Subscription {
	return mqtt.Subscription{Topic: c.d.StateTopic()}
}

func (c *common) Announce(ctx context.Context) error {
	return errors.Join(
		mqtt.Error(c.availability.Write(ctx, c.sink, c.prefix, hass.Available)),
		mqtt.Error(c.attributes.Write(ctx, c.sink, c.prefix, AttributesOf(c.d))),
	)
}

func (c *common) offline(ctx context.Context) error {
	return mqtt.Error(c.availability.Write(ctx, c.sink, c.prefix, hass.Unavailable))
}

// republishState re-sends the last state written to v. A state that was never written is not an error.
func republishState[T any](ctx context.Context, c *common, v *mqtt.Value[T]) error {
	if err := mqtt.Error(v.Republish(ctx, c.sink, c.prefix)); err != nil && !errors.Is(err, mqtt.ErrNeverWritten) {
		return err
	}

	return nil
}

// writeState writes a rendered state from a bus callback.
func writeState[T any](c *common, v *mqtt.Value[T], state T) {
	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()

	if _, err := v.Write(ctx, c.sink, c.prefix, state); err != nil {
		c.log.With(log.Error(err), slog.Any("state", state)).Error("Failed to write state")
		return
	}

	c.log.With(slog.Any("state", state)).Debug("Wrote state")
}
