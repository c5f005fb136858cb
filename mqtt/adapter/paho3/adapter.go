// Package paho3 adapts an MQTT 3.1.1 client from github.com/eclipse/paho.mqtt.golang to mqtt.Conn. The broker running
// on a Flukso base unit only speaks 3.1.1, so flukso-hass uses this adapter for the Flukso side of the bridge.
package paho3

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	fhlog "github.com/nlowe/flukso-hass/log"
	"github.com/nlowe/flukso-hass/mqtt"
)

// disconnectQuiesce is how long, in milliseconds, Disconnect waits for in-flight work.
const disconnectQuiesce = 250

var (
	// ErrConnectionFailed is returned by Dial when the broker refuses the connection or cannot be reached in time.
	ErrConnectionFailed = errors.New("paho3: connection failed")
	// ErrSubscribeFailed wraps errors returned by the broker for SUBSCRIBE.
	ErrSubscribeFailed = errors.New("paho3: subscribe failed")
)

type subscription struct {
	qos     byte
	handler mqtt.Handler
}

type adapter struct {
	client pahomqtt.Client

	mu            sync.Mutex
	subscriptions map[string]subscription

	log *slog.Logger
}

var _ mqtt.Conn = &adapter{}

// Dial connects using opts and waits until the connection is established, opts.ConnectTimeout passes or ctx is done.
// Unless opts.ConnectRetry is set, a broker that refuses the connection fails Dial right away. Any OnConnect handler
// already set on opts still runs after subscriptions have been restored.
func Dial(ctx context.Context, opts *pahomqtt.ClientOptions) (mqtt.Conn, error) {
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	a := &adapter{
		subscriptions: map[string]subscription{},
		log:           fhlog.ForComponent("mqtt.paho3"),
	}

	originalOnConnect := opts.OnConnect
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		a.restoreSubscriptions(c)

		if originalOnConnect != nil {
			originalOnConnect(c)
		}
	})

	a.client = pahomqtt.NewClient(opts)

	a.log.With(slog.Any("brokers", opts.Servers)).Info("Connecting to mqtt broker")
	if err := wait(ctx, a.client.Connect()); err != nil {
		a.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	a.log.Debug("Connected to mqtt broker")
	return a, nil
}

// wait blocks until t completes or ctx is done.
func wait(ctx context.Context, t pahomqtt.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *adapter) restoreSubscriptions(c pahomqtt.Client) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.subscriptions) == 0 {
		return
	}

	a.log.With(slog.Int("count", len(a.subscriptions))).Debug("Connected to MQTT. Restoring subscriptions.")
	for topic, s := range a.subscriptions {
		// Completion is not awaited here: this runs on paho's connect goroutine.
		c.Subscribe(topic, s.qos, a.wrapHandler(s.handler))
	}
}

// wrapHandler adapts handler to a paho callback. A panicking handler is logged instead of taking down paho's router
// goroutine.
func (a *adapter) wrapHandler(handler mqtt.Handler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				a.log.With(fhlog.Topic(msg.Topic()), slog.Any("panic", r)).Error("MQTT handler panic recovered")
			}
		}()

		handler.ServeMQTT(a, msg.Topic(), msg.Payload())
	}
}

func (a *adapter) WriteTopic(ctx context.Context, topic string, options mqtt.WriteOptions, value []byte) error {
	a.log.With(fhlog.Topic(topic), slog.Any("options", options), slog.Int("bytes", len(value))).Debug("Publishing payload")

	return wait(ctx, a.client.Publish(topic, byte(options.QoS), options.Retain, value))
}

func (a *adapter) Subscribe(ctx context.Context, handler mqtt.Handler, subscriptions ...mqtt.Subscription) error {
	if len(subscriptions) == 0 {
		return nil
	}

	filters := make(map[string]byte, len(subscriptions))

	a.mu.Lock()
	for _, s := range subscriptions {
		if s.Options.NoLocal || s.Options.RetainAsPublished || s.Options.RetainHandling != mqtt.RetainHandlingDefault {
			a.log.With(slog.Any("subscription", s)).Debug("MQTT 3.1.1 ignores v5 subscription options")
		}

		filters[s.Topic] = byte(s.Options.QoS)
		a.subscriptions[s.Topic] = subscription{qos: byte(s.Options.QoS), handler: handler}
	}
	a.mu.Unlock()

	a.log.With(slog.Any("subscriptions", subscriptions)).Debug("Subscribing to MQTT Topic(s)")
	if err := wait(ctx, a.client.SubscribeMultiple(filters, a.wrapHandler(handler))); err != nil {
		a.mu.Lock()
		for topic := range filters {
			delete(a.subscriptions, topic)
		}
		a.mu.Unlock()

		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

func (a *adapter) Unsubscribe(ctx context.Context, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}

	a.mu.Lock()
	for _, t := range topics {
		delete(a.subscriptions, t)
	}
	a.mu.Unlock()

	a.log.With(slog.Any("topics", topics)).Debug("Unsubscribing from MQTT Topic(s)")
	return wait(ctx, a.client.Unsubscribe(topics...))
}

func (a *adapter) Disconnect(context.Context) error {
	a.client.Disconnect(disconnectQuiesce)
	return nil
}
