package fluksohass

import (
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/nlowe/flukso-hass/discovery"
	"github.com/nlowe/flukso-hass/hass"
	"github.com/nlowe/flukso-hass/mqtt"
)

// Component is one entity of a Device. It implements json.MarshalerTo by writing its member of the device's "cmps"
// object.
type Component[TPlatform Platform] struct {
	Platform TPlatform

	// TopicPrefix is prepended to the topics of every mqtt.Value of the component, e.g. "flukso/<sensor>".
	TopicPrefix string

	// Name of the entity. When empty Home Assistant uses the device name.
	Name string
	Icon string

	// Availability is required. Home Assistant shows the entity as unavailable until it reads hass.Available.
	Availability *mqtt.Value[hass.Availability]

	// UniqueID is required for device discovery and must never change for the same entity.
	UniqueID string

	// DefaultEntityID suggests the entity id on first discovery, e.g. "sensor.flukso_abc".
	DefaultEntityID string
}

// ForRemoval returns the member that removes this component from its device.
func (c *Component[TPlatform]) ForRemoval() RemoveComponent {
	return RemoveComponent{Platform: c.Platform.PlatformName()}
}

func (c *Component[TPlatform]) MarshalJSONTo(e *jsontext.Encoder) error {
	p := discovery.Open(e)

	discovery.Required(p, "platform", discovery.FieldPlatform, c.Platform.PlatformName())
	if c.Name == "" {
		p.Null(discovery.FieldName)
	} else {
		p.Member(discovery.FieldName, c.Name)
	}

	discovery.Optional(p, discovery.FieldIcon, c.Icon)
	discovery.Required(p, "unique_id", discovery.FieldUniqueID, c.UniqueID)
	discovery.Optional(p, discovery.FieldDefaultEntityID, c.DefaultEntityID)
	p.RequiredTopic("availability", discovery.FieldAvailabilityTopic, c.Availability.FullyQualifiedTopic(c.TopicPrefix))

	c.Platform.MarshalDiscoveryTo(p, c.TopicPrefix)

	return p.Close()
}

// RemoveComponent is the member that tells Home Assistant to delete a component while keeping the rest of the device.
type RemoveComponent struct {
	Platform string `json:"platform"`
}

func (r RemoveComponent) MarshalJSONTo(e *jsontext.Encoder) error {
	// The alias has no MarshalJSONTo, so the encoder does not recurse.
	type plain RemoveComponent
	return json.MarshalEncode(e, plain(r))
}
