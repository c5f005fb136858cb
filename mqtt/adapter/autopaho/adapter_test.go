package autopaho

import (
	"context"
	"testing"

	"github.com/eclipse/paho.golang/paho"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fhlog "github.com/nlowe/flukso-hass/log"
	"github.com/nlowe/flukso-hass/mqtt"
)

func newTestAdapter() *adapter {
	return &adapter{routes: map[string]route{}, log: fhlog.ForComponent("test")}
}

func TestDispatch(t *testing.T) {
	a := newTestAdapter()

	var got []string
	record := func(name string) mqtt.Handler {
		return mqtt.HandlerFunc(func(w mqtt.Writer, topic string, payload []byte) {
			assert.Same(t, a, w)
			got = append(got, name+" "+topic+" "+string(payload))
		})
	}

	a.routes["homeassistant/status"] = route{options: paho.SubscribeOptions{Topic: "homeassistant/status"}, handler: record("status")}
	a.routes["homeassistant/+/+/config"] = route{handler: record("config")}
	a.routes["homeassistant/+/config"] = route{handler: record("shallow")}

	a.dispatch("homeassistant/status", []byte("online"))
	a.dispatch("homeassistant/device/flukso_D1/config", []byte("{}"))
	a.dispatch("flukso/s1/state", []byte("1"))

	assert.Equal(t, []string{
		"status homeassistant/status online",
		"config homeassistant/device/flukso_D1/config {}",
	}, got)
}

func TestDispatchRecoversPanics(t *testing.T) {
	a := newTestAdapter()
	a.routes["#"] = route{handler: mqtt.HandlerFunc(func(mqtt.Writer, string, []byte) {
		panic("boom")
	})}

	require.NotPanics(t, func() {
		a.dispatch("homeassistant/status", []byte("online"))
	})
}

func TestEmptyCallsAreNoops(t *testing.T) {
	a := newTestAdapter()

	require.NoError(t, a.Subscribe(context.Background(), mqtt.HandlerFunc(func(mqtt.Writer, string, []byte) {})))
	require.NoError(t, a.Unsubscribe(context.Background()))
}
