package entity

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-json-experiment/json/jsontext"

	fluksohass "github.com/nlowe/flukso-hass"
	"github.com/nlowe/flukso-hass/flukso"
	"github.com/nlowe/flukso-hass/hass"
	"github.com/nlowe/flukso-hass/log"
	"github.com/nlowe/flukso-hass/mqtt"
	"github.com/nlowe/flukso-hass/platform"
)

// Numeric is a sensor entity. Every live value is rendered with the descriptor's rendering and written as the new state.
type Numeric struct {
	*common

	Component fluksohass.Component[*platform.Sensor[string, Attributes]]
}

var _ Entity = &Numeric{}

// NewNumeric builds the sensor entity for d. Its Home Assistant topics live under topicPrefix/<sensor id>.
func NewNumeric(ctx context.Context, d flukso.Descriptor, sink mqtt.Writer, topicPrefix string) *Numeric {
	c := newCommon(ctx, d, sink, topicPrefix)

	sensor := &platform.Sensor[string, Attributes]{
		ForceUpdate:               true,
		Attributes:                c.attributes,
		SuggestedDisplayPrecision: uint(max(d.Precision, 0)),
		StateClass:                hass.StateClassMeasurement,
		DeviceClass:               d.DeviceClass,
		State:                     mqtt.NewValue[string]("state", mqtt.StringMarshaler),
		UnitOfMeasurement:         d.Unit,
	}

	if d.Rendering == flukso.RenderProblem {
		// The state is ON/OFF text, which Home Assistant rejects for measurements and for the problem class on a sensor.
		sensor.StateClass = ""
		sensor.DeviceClass = hass.DeviceClassNone
		sensor.UnitOfMeasurement = ""
		sensor.SuggestedDisplayPrecision = 0
	}

	n := &Numeric{
		common: c,
		Component: fluksohass.Component[*platform.Sensor[string, Attributes]]{
			Platform:    sensor,
			TopicPrefix: c.prefix,

			Name:            d.Name,
			Icon:            d.Icon,
			Availability:    c.availability,
			DefaultEntityID: sensor.PlatformName() + "." + d.UniqueID(),
			UniqueID:        d.UniqueID(),
		},
	}

	return n
}

func (n *Numeric) PlatformName() string {
	return n.Component.Platform.PlatformName()
}

func (n *Numeric) MarshalJSONTo(e *jsontext.Encoder) error {
	return n.Component.MarshalJSONTo(e)
}

// State returns the last rendered state.
func (n *Numeric) State() (string, bool) {
	return n.Component.Platform.State.Get()
}

// ServeMQTT renders a live payload. Payloads that cannot be rendered are logged and dropped, keeping the previous
// state.
func (n *Numeric) ServeMQTT(_ mqtt.Writer, topic string, payload []byte) {
	state, err := n.d.Render(payload)
	if err != nil {
		n.log.With(log.Topic(topic), log.Error(err), slog.String("payload", string(payload))).Warn("Dropping value")
		return
	}

	writeState(n.common, n.Component.Platform.State, state)
}

func (n *Numeric) Republish(ctx context.Context) error {
	return errors.Join(
		n.Announce(ctx),
		republishState(ctx, n.common, n.Component.Platform.State),
	)
}

func (n *Numeric) Close(ctx context.Context) error {
	return n.offline(ctx)
}
