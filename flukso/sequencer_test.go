package flukso_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlowe/flukso-hass/flukso"
	"github.com/nlowe/flukso-hass/flukso/fluksotest"
	"github.com/nlowe/flukso-hass/mqtt/mqtttest"
)

type recorder struct {
	calls   int
	results []flukso.Result
}

func (r *recorder) onComplete(res flukso.Result) {
	r.calls++
	r.results = append(r.results, res)
}

func retainKitchen(b *mqtttest.Broker) {
	b.Retain(flukso.ConfigTopic("D1", flukso.DocumentFlx), []byte(`{"0":{"name":"Kitchen"}}`))
	b.Retain(flukso.ConfigTopic("D1", flukso.DocumentKube), []byte(`{"7":{"name":"Hallway"}}`))
	b.Retain(flukso.ConfigTopic("D1", flukso.DocumentSensor), []byte(`{
		"s1": {"id":"s1","enable":1,"port":[0],"type":"electricity","subtype":"pplus","data_type":"raw"},
		"k1": {"id":"k1","enable":1,"class":"kube","kid":7,"type":"movement","data_type":"state"}
	}`))
}

func TestSequencer(t *testing.T) {
	t.Run("Completes after window", func(t *testing.T) {
		b := mqtttest.NewBroker()
		retainKitchen(b)
		sched := &fluksotest.ManualScheduler{}
		rec := &recorder{}

		s := flukso.NewSequencer(b, sched, flukso.NewClassifier(nil), 5*time.Second, rec.onComplete)
		assert.Equal(t, flukso.StateIdle, s.State())

		require.NoError(t, s.Start(t.Context()))
		assert.Equal(t, flukso.StateListening, s.State())
		assert.True(t, b.Subscribed(flukso.DiscoveryTopic))
		assert.Equal(t, 1, sched.Pending())

		sched.Advance(4 * time.Second)
		assert.Zero(t, rec.calls)
		assert.Equal(t, flukso.StateListening, s.State())

		sched.Advance(time.Second)
		require.Equal(t, 1, rec.calls)
		assert.Equal(t, flukso.StateComplete, s.State())
		assert.Equal(t, []string{flukso.DiscoveryTopic}, b.Unsubscribed)
		assert.False(t, b.Subscribed(flukso.DiscoveryTopic))

		select {
		case <-s.Done():
		default:
			require.Fail(t, "Done not closed after completion")
		}

		res := rec.results[0]
		require.Len(t, res.Numeric, 1)
		require.Len(t, res.Binary, 1)
		assert.Empty(t, res.Ignored)
		assert.Equal(t, "Kitchen electricity pplus", res.Numeric[0].Name)
		assert.Equal(t, "Hallway movement", res.Binary[0].Name)
		assert.Equal(t, 1, res.Store.Len())

		sched.Advance(time.Hour)
		assert.Equal(t, 1, rec.calls, "completion runs exactly once")
	})

	t.Run("Live documents during window", func(t *testing.T) {
		b := mqtttest.NewBroker()
		sched := &fluksotest.ManualScheduler{}
		rec := &recorder{}

		s := flukso.NewSequencer(b, sched, flukso.NewClassifier(nil), 5*time.Second, rec.onComplete)
		require.NoError(t, s.Start(t.Context()))

		b.Publish(flukso.ConfigTopic("D1", flukso.DocumentSensor), []byte(`{"s1":{"id":"s1","enable":1,"port":[0],"type":"water","data_type":"counter"}}`))
		b.Publish(flukso.ConfigTopic("D1", flukso.DocumentFlx), []byte(`{"0":{"name":"Garden"}}`))
		b.Publish(flukso.ConfigTopic("D1", flukso.DocumentFlx), []byte(`{"0":{"name":"Garage"}}`))
		b.Publish(flukso.ConfigTopic("D1", flukso.DocumentKube), []byte(`{}`))

		sched.Advance(5 * time.Second)
		require.Equal(t, 1, rec.calls)
		require.Len(t, rec.results[0].Numeric, 1)
		assert.Equal(t, "Garage water", rec.results[0].Numeric[0].Name, "last write wins")
		assert.Equal(t, "/sensor/s1/counter", rec.results[0].Numeric[0].StateTopic())
	})

	t.Run("Malformed documents are dropped", func(t *testing.T) {
		b := mqtttest.NewBroker()
		retainKitchen(b)
		sched := &fluksotest.ManualScheduler{}
		rec := &recorder{}

		s := flukso.NewSequencer(b, sched, flukso.NewClassifier(nil), 5*time.Second, rec.onComplete)
		require.NoError(t, s.Start(t.Context()))

		b.Publish(flukso.ConfigTopic("D1", flukso.DocumentFlx), []byte(`{"0":`))
		b.Publish(flukso.ConfigTopic("D1", "wifi"), []byte(`{}`))
		b.Publish(flukso.ConfigTopic("D2", flukso.DocumentSensor), []byte(`not json`))

		sched.Advance(5 * time.Second)
		require.Equal(t, 1, rec.calls)
		assert.Equal(t, 1, rec.results[0].Store.Len())
		require.Len(t, rec.results[0].Numeric, 1)
		assert.Equal(t, "Kitchen electricity pplus", rec.results[0].Numeric[0].Name)
	})

	t.Run("Documents after completion are dropped", func(t *testing.T) {
		b := mqtttest.NewBroker()
		retainKitchen(b)
		sched := &fluksotest.ManualScheduler{}
		rec := &recorder{}

		s := flukso.NewSequencer(b, sched, flukso.NewClassifier(nil), 5*time.Second, rec.onComplete)
		require.NoError(t, s.Start(t.Context()))
		sched.Advance(5 * time.Second)

		store := rec.results[0].Store
		s.ServeMQTT(b, flukso.ConfigTopic("D9", flukso.DocumentFlx), []byte(`{}`))
		assert.Equal(t, 1, store.Len())

		_, ok := store.Device("D9")
		assert.False(t, ok)
	})

	t.Run("Already started", func(t *testing.T) {
		b := mqtttest.NewBroker()
		sched := &fluksotest.ManualScheduler{}

		s := flukso.NewSequencer(b, sched, flukso.NewClassifier(nil), 0, nil)
		require.NoError(t, s.Start(t.Context()))
		require.ErrorIs(t, s.Start(t.Context()), flukso.ErrAlreadyStarted)
		assert.Equal(t, 1, sched.Pending())

		sched.Advance(flukso.DefaultWindow)
		assert.Equal(t, flukso.StateComplete, s.State())
		require.ErrorIs(t, s.Start(t.Context()), flukso.ErrAlreadyStarted)
	})

	t.Run("Subscribe failure can be retried", func(t *testing.T) {
		b := mqtttest.NewBroker()
		retainKitchen(b)
		boom := errors.New("boom")
		b.SubscribeErr = boom
		sched := &fluksotest.ManualScheduler{}
		rec := &recorder{}

		s := flukso.NewSequencer(b, sched, flukso.NewClassifier(nil), 5*time.Second, rec.onComplete)
		require.ErrorIs(t, s.Start(t.Context()), boom)
		assert.Equal(t, flukso.StateIdle, s.State())
		assert.Zero(t, sched.Pending())

		require.NoError(t, s.Start(t.Context()))
		sched.Advance(5 * time.Second)
		require.Equal(t, 1, rec.calls)
		assert.Len(t, rec.results[0].Numeric, 1)
	})

	t.Run("Unsubscribe failure still completes", func(t *testing.T) {
		b := mqtttest.NewBroker()
		retainKitchen(b)
		b.UnsubscribeErr = errors.New("boom")
		sched := &fluksotest.ManualScheduler{}
		rec := &recorder{}

		s := flukso.NewSequencer(b, sched, flukso.NewClassifier(nil), 5*time.Second, rec.onComplete)
		require.NoError(t, s.Start(t.Context()))
		sched.Advance(5 * time.Second)

		require.Equal(t, 1, rec.calls)
		assert.Equal(t, flukso.StateComplete, s.State())
	})

	t.Run("Cancelled context does not cancel discovery", func(t *testing.T) {
		b := mqtttest.NewBroker()
		retainKitchen(b)
		sched := &fluksotest.ManualScheduler{}
		rec := &recorder{}

		ctx, cancel := context.WithCancel(t.Context())
		s := flukso.NewSequencer(b, sched, flukso.NewClassifier(nil), 5*time.Second, rec.onComplete)
		require.NoError(t, s.Start(ctx))
		cancel()

		sched.Advance(5 * time.Second)
		assert.Equal(t, 1, rec.calls)
	})

	t.Run("Nothing received", func(t *testing.T) {
		b := mqtttest.NewBroker()
		sched := &fluksotest.ManualScheduler{}
		rec := &recorder{}

		s := flukso.NewSequencer(b, sched, flukso.NewClassifier(nil), 5*time.Second, rec.onComplete)
		require.NoError(t, s.Start(t.Context()))
		sched.Advance(5 * time.Second)

		require.Equal(t, 1, rec.calls)
		assert.Empty(t, rec.results[0].Numeric)
		assert.Empty(t, rec.results[0].Binary)
		assert.Zero(t, rec.results[0].Store.Len())
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", flukso.StateIdle.String())
	assert.Equal(t, "listening", flukso.StateListening.String())
	assert.Equal(t, "complete", flukso.StateComplete.String())
	assert.Equal(t, "State(9)", flukso.State(9).String())
}
