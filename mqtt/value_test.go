package mqtt_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlowe/flukso-hass/mqtt"
	"github.com/nlowe/flukso-hass/mqtt/mqtttest"
)

func TestValueWrite(t *testing.T) {
	b := mqtttest.NewBroker()
	v := mqtt.NewValueWithOptions("state", mqtt.StringMarshaler, mqtt.WriteOptions{Retain: true})

	_, ok := v.Get()
	require.False(t, ok, "should not have a value before first write")

	_, err := v.Republish(context.Background(), b, "flukso/s1")
	require.ErrorIs(t, err, mqtt.ErrNeverWritten)

	got, err := v.Write(context.Background(), b, "flukso/s1", "42")
	require.NoError(t, err)
	assert.Equal(t, "42", got)

	m, ok := b.RetainedAt("flukso/s1/state")
	require.True(t, ok)
	assert.Equal(t, "42", string(m.Payload))

	_, err = v.Republish(context.Background(), b, "flukso/s1")
	require.NoError(t, err)
	assert.Len(t, b.PublishedTo("flukso/s1/state"), 2)
}

func TestValueWithoutMarshaler(t *testing.T) {
	v := mqtt.NewValue[string]("state", nil)

	_, err := v.Write(context.Background(), mqtttest.NewBroker(), "", "x")
	require.ErrorIs(t, err, mqtt.ErrNoMarshaler)
}

func TestRemoteValue(t *testing.T) {
	b := mqtttest.NewBroker()
	rv := mqtt.NewRemoteValue("homeassistant/status", mqtt.StringUnmarshaler)

	var seen []string
	rv.Watch(func(s string) {
		// Watchers may read the value they were notified about.
		v, ok := rv.Get()
		require.True(t, ok)
		seen = append(seen, v)
	})

	require.NoError(t, b.Subscribe(context.Background(), rv, rv.Subscription("")))

	b.Publish("homeassistant/status", []byte("online"))
	b.Publish("homeassistant/other", []byte("ignored"))
	b.Publish("homeassistant/status", []byte("offline"))

	assert.Equal(t, []string{"online", "offline"}, seen)
}
