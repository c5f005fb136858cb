package fluksohass

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/nlowe/flukso-hass/discovery"
	"github.com/nlowe/flukso-hass/mqtt"
)

// ErrInvalidDevice is returned by Device.Valid and Device.Configure for a device without identifiers.
var ErrInvalidDevice = errors.New("device must have at least one identifier")

// Device groups the components Home Assistant shows together, here every channel of one Flukso unit. The "dev" member
// of the discovery payload is the json encoding of Device.
//
// See https://www.home-assistant.io/integrations/mqtt/#device-discovery-payload
type Device struct {
	// DiscoveryID is the device's level in the discovery topic. When empty it is calculated, see ID.
	DiscoveryID string `json:"-"`

	Name         string `json:"name,omitempty"`
	Manufacturer string `json:"mf,omitempty"`
	Model        string `json:"mdl,omitempty"`
	Serial       string `json:"sn,omitempty"`

	FirmwareVersion string `json:"sw,omitempty"`

	// ConfigurationURL links to the unit's web interface.
	ConfigurationURL *url.URL `json:"cu,omitempty"`

	// Identifiers is required. Home Assistant merges devices that share an identifier.
	Identifiers []string `json:"ids,omitempty"`

	// Origin defaults to DefaultOrigin.
	Origin *Origin `json:"-"`
}

// ID returns DiscoveryID, or else the sanitized identifiers joined by discovery.IDSep.
func (d *Device) ID() string {
	if d.DiscoveryID != "" {
		return d.DiscoveryID
	}

	parts := make([]string, len(d.Identifiers))
	for i, ident := range d.Identifiers {
		parts[i] = discovery.IDSanitizer.Replace(ident)
	}

	return strings.Join(parts, discovery.IDSep)
}

// Valid reports ErrInvalidDevice if the device has no identifiers.
func (d *Device) Valid() error {
	if len(d.Identifiers) == 0 {
		return ErrInvalidDevice
	}

	return nil
}

// Payload encodes the discovery payload of the device with components keyed by unique id. A RemoveComponent member
// deletes that component from Home Assistant.
func (d *Device) Payload(components map[string]json.MarshalerTo) ([]byte, error) {
	if err := d.Valid(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	p := discovery.Open(jsontext.NewEncoder(&buf))
	p.Member(discovery.FieldDevice, d)
	p.Member(discovery.FieldOrigin, cmp.Or(d.Origin, &DefaultOrigin))
	p.Objects(discovery.FieldComponents, components)

	if err := p.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Configure publishes the retained discovery payload of the device. To delete a component, send it as a
// RemoveComponent.
func (d *Device) Configure(ctx context.Context, w mqtt.Writer, discoveryPrefix string, components map[string]json.MarshalerTo) error {
	payload, err := d.Payload(components)
	if err != nil {
		return err
	}

	return w.WriteTopic(ctx, d.DiscoveryTopic(discoveryPrefix), mqtt.WriteOptions{Retain: true}, payload)
}

// Remove clears the retained discovery payload, which deletes the device and all of its components.
func (d *Device) Remove(ctx context.Context, w mqtt.Writer, discoveryPrefix string) error {
	return w.WriteTopic(ctx, d.DiscoveryTopic(discoveryPrefix), mqtt.WriteOptions{Retain: true}, nil)
}

// DiscoveryTopic is <discoveryPrefix>/device/<id>/config.
func (d *Device) DiscoveryTopic(discoveryPrefix string) string {
	return mqtt.JoinTopic(discoveryPrefix, "device", d.ID(), "config")
}
