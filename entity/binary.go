package entity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-json-experiment/json/jsontext"

	fluksohass "github.com/nlowe/flukso-hass"
	"github.com/nlowe/flukso-hass/flukso"
	"github.com/nlowe/flukso-hass/hass"
	"github.com/nlowe/flukso-hass/log"
	"github.com/nlowe/flukso-hass/mqtt"
	"github.com/nlowe/flukso-hass/platform"
)

// Binary is a binary sensor entity.
//
// Presence sensors (movement, vibration) turn ON for every message and back OFF once offDelay passes without a new
// one. Every message re-arms the timer; a timer that fires after it was re-armed or after Close is ignored. Problem
// sensors render each message on its own.
type Binary struct {
	*common

	Component fluksohass.Component[*platform.BinarySensor[Attributes]]

	scheduler flukso.Scheduler
	offDelay  time.Duration

	mu         sync.Mutex
	timer      flukso.Timer
	generation uint64
	closed     bool
}

var _ Entity = &Binary{}

// NewBinary builds the binary sensor entity for d. A non-positive offDelay uses DefaultOffDelay.
func NewBinary(ctx context.Context, d flukso.Descriptor, sink mqtt.Writer, topicPrefix string, scheduler flukso.Scheduler, offDelay time.Duration) *Binary {
	if offDelay <= 0 {
		offDelay = DefaultOffDelay
	}

	c := newCommon(ctx, d, sink, topicPrefix)

	sensor := platform.NewBinarySensor(
		mqtt.NewValue[hass.PowerState]("state", hass.PowerStateMarshaler),
		c.attributes,
	)
	sensor.DeviceClass = d.DeviceClass

	return &Binary{
		common: c,
		Component: fluksohass.Component[*platform.BinarySensor[Attributes]]{
			Platform:    sensor,
			TopicPrefix: c.prefix,

			Name:            d.Name,
			Icon:            d.Icon,
			Availability:    c.availability,
			DefaultEntityID: sensor.PlatformName() + "." + d.UniqueID(),
			UniqueID:        d.UniqueID(),
		},

		scheduler: scheduler,
		offDelay:  offDelay,
	}
}

func (b *Binary) PlatformName() string {
	return b.Component.Platform.PlatformName()
}

func (b *Binary) MarshalJSONTo(e *jsontext.Encoder) error {
	return b.Component.MarshalJSONTo(e)
}

// State returns the last written state.
func (b *Binary) State() (hass.PowerState, bool) {
	return b.Component.Platform.State.Get()
}

func (b *Binary) ServeMQTT(_ mqtt.Writer, topic string, payload []byte) {
	rendered, err := b.d.Render(payload)
	if err != nil {
		b.log.With(log.Topic(topic), log.Error(err), slog.String("payload", string(payload))).Warn("Dropping value")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	if b.d.Rendering == flukso.RenderPresence {
		b.arm()
	}

	writeState(b.common, b.Component.Platform.State, hass.PowerState(rendered))
}

// arm replaces any pending off timer. Callers must hold b.mu.
func (b *Binary) arm() {
	b.stopTimer()

	b.generation++
	generation := b.generation
	b.timer = b.scheduler.AfterFunc(b.offDelay, func() {
		b.expire(generation)
	})
}

func (b *Binary) expire(generation uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || generation != b.generation {
		return
	}

	b.timer = nil
	b.log.With(slog.Duration("off_delay", b.offDelay)).Debug("No message within off delay")
	writeState(b.common, b.Component.Platform.State, hass.PowerStateOff)
}

// stopTimer cancels the pending timer, if any. Callers must hold b.mu.
func (b *Binary) stopTimer() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// Announce marks the entity available. Presence sensors that have not seen a message yet start OFF.
func (b *Binary) Announce(ctx context.Context) error {
	err := b.common.Announce(ctx)
	if b.d.Rendering != flukso.RenderPresence {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, written := b.State(); written || b.closed {
		return err
	}

	return errors.Join(err, mqtt.Error(b.Component.Platform.State.Write(ctx, b.sink, b.prefix, hass.PowerStateOff)))
}

func (b *Binary) Republish(ctx context.Context) error {
	return errors.Join(
		b.Announce(ctx),
		republishState(ctx, b.common, b.Component.Platform.State),
	)
}

func (b *Binary) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.generation++
	b.stopTimer()
	b.mu.Unlock()

	return b.offline(ctx)
}
