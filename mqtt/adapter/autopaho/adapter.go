// Package autopaho adapts an MQTT v5 autopaho.ConnectionManager to mqtt.Conn. flukso-hass uses it for the Home
// Assistant side of the bridge.
package autopaho

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	fhlog "github.com/nlowe/flukso-hass/log"
	"github.com/nlowe/flukso-hass/mqtt"
)

// ErrConnectionFailed is returned by DialMQTT when the broker cannot be reached within the connect timeout.
var ErrConnectionFailed = errors.New("autopaho: connection failed")

// defaultConnectTimeout matches autopaho's default for ClientConfig.ConnectTimeout.
const defaultConnectTimeout = 10 * time.Second

type route struct {
	options paho.SubscribeOptions
	handler mqtt.Handler
}

type adapter struct {
	mu     sync.Mutex
	conn   *autopaho.ConnectionManager
	stop   context.CancelFunc
	routes map[string]route

	log *slog.Logger
}

var _ mqtt.Conn = &adapter{}

// DialMQTT connects to the broker described by config and blocks until the first connection is established. If that
// takes longer than config.ConnectTimeout, the connection manager is stopped and the last connect error is returned.
// Later drops are retried by autopaho for as long as ctx lives.
//
// Subscriptions made through the returned mqtt.Conn are re-sent every time the connection comes back up. Any
// OnConnectionUp handler already set on config still runs afterwards.
func DialMQTT(ctx context.Context, config autopaho.ClientConfig) (mqtt.Conn, error) {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = defaultConnectTimeout
	}

	connCtx, stop := context.WithCancel(ctx)
	a := &adapter{
		stop:   stop,
		routes: map[string]route{},
		log:    fhlog.ForComponent("autopaho"),
	}

	var (
		connectErrMu sync.Mutex
		connectErr   error
	)
	originalOnConnectError := config.OnConnectError
	config.OnConnectError = func(err error) {
		connectErrMu.Lock()
		connectErr = err
		connectErrMu.Unlock()

		if originalOnConnectError != nil {
			originalOnConnectError(err)
		}
	}

	originalOnConnUp := config.OnConnectionUp
	config.OnConnectionUp = func(manager *autopaho.ConnectionManager, connack *paho.Connack) {
		a.resubscribe(connCtx, manager)

		if originalOnConnUp != nil {
			originalOnConnUp(manager, connack)
		}
	}

	a.log.With(slog.Any("brokers", config.ServerUrls)).Info("Connecting to mqtt broker")
	conn, err := autopaho.NewConnection(connCtx, config)
	if err != nil {
		stop()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	conn.AddOnPublishReceived(func(rx autopaho.PublishReceived) (bool, error) {
		a.dispatch(rx.Packet.Topic, rx.Packet.Payload)
		return true, nil
	})

	awaitCtx, cancel := context.WithTimeout(connCtx, config.ConnectTimeout)
	defer cancel()

	if err = conn.AwaitConnection(awaitCtx); err != nil {
		stop()

		connectErrMu.Lock()
		if connectErr != nil {
			err = connectErr
		}
		connectErrMu.Unlock()

		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	a.log.Debug("Connected to mqtt broker")
	return a, nil
}

// resubscribe restores every subscription after a (re)connect. The session may have expired on the broker.
func (a *adapter) resubscribe(ctx context.Context, manager *autopaho.ConnectionManager) {
	a.mu.Lock()
	options := make([]paho.SubscribeOptions, 0, len(a.routes))
	for _, filter := range slices.Sorted(maps.Keys(a.routes)) {
		options = append(options, a.routes[filter].options)
	}
	a.mu.Unlock()

	if len(options) == 0 {
		return
	}

	a.log.With(slog.Int("count", len(options))).Debug("Connected to MQTT. Restoring subscriptions.")
	// Runs on the connection manager's goroutine, so the subscribe must not wait for it.
	go func() {
		if _, err := manager.Subscribe(ctx, &paho.Subscribe{Subscriptions: options}); err != nil {
			a.log.With(fhlog.Error(err)).Error("Failed to re-subscribe to mqtt topics")
		}
	}()
}

// dispatch hands a received message to the handler of every matching filter. A panicking handler is logged instead of
// taking down the connection manager.
func (a *adapter) dispatch(topic string, payload []byte) {
	a.mu.Lock()
	var handlers []mqtt.Handler
	for filter, r := range a.routes {
		if mqtt.MatchTopic(filter, topic) {
			handlers = append(handlers, r.handler)
		}
	}
	a.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					a.log.With(fhlog.Topic(topic), slog.Any("panic", r)).Error("MQTT handler panic recovered")
				}
			}()

			h.ServeMQTT(a, topic, payload)
		}()
	}
}

func (a *adapter) WriteTopic(ctx context.Context, topic string, options mqtt.WriteOptions, value []byte) error {
	a.log.With(fhlog.Topic(topic), slog.Any("options", options), slog.Int("bytes", len(value))).Debug("Publishing payload")

	_, err := a.conn.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     byte(options.QoS),
		Retain:  options.Retain,
		Payload: value,
	})

	return err
}

func (a *adapter) Subscribe(ctx context.Context, handler mqtt.Handler, subscriptions ...mqtt.Subscription) error {
	if len(subscriptions) == 0 {
		return nil
	}

	options := make([]paho.SubscribeOptions, len(subscriptions))

	// Routes are registered first so retained messages that arrive with the SUBACK are not lost.
	a.mu.Lock()
	for i, s := range subscriptions {
		options[i] = paho.SubscribeOptions{
			Topic:             s.Topic,
			QoS:               byte(s.Options.QoS),
			RetainHandling:    byte(s.Options.RetainHandling),
			NoLocal:           s.Options.NoLocal,
			RetainAsPublished: s.Options.RetainAsPublished,
		}
		a.routes[s.Topic] = route{options: options[i], handler: handler}
	}
	a.mu.Unlock()

	a.log.With(slog.Any("subscriptions", subscriptions)).Debug("Subscribing to MQTT Topic(s)")
	if _, err := a.conn.Subscribe(ctx, &paho.Subscribe{Subscriptions: options}); err != nil {
		a.mu.Lock()
		for _, s := range subscriptions {
			delete(a.routes, s.Topic)
		}
		a.mu.Unlock()

		return fmt.Errorf("subscribe: %w", err)
	}

	return nil
}

func (a *adapter) Unsubscribe(ctx context.Context, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}

	a.mu.Lock()
	for _, t := range topics {
		delete(a.routes, t)
	}
	a.mu.Unlock()

	a.log.With(slog.Any("topics", topics)).Debug("Unsubscribing from MQTT Topic(s)")
	_, err := a.conn.Unsubscribe(ctx, &paho.Unsubscribe{Topics: topics})
	return err
}

func (a *adapter) Disconnect(ctx context.Context) error {
	if a.conn == nil {
		return nil
	}

	defer a.stop()
	return a.conn.Disconnect(ctx)
}
