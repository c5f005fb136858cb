// Package mqtttest provides an in-memory broker implementing mqtt.Writer and mqtt.Subscriber for tests.
package mqtttest

import (
	"context"
	"slices"
	"sync"

	"github.com/nlowe/flukso-hass/mqtt"
)

// Message is a publish recorded by the Broker.
type Message struct {
	Topic   string
	Payload []byte
	Options mqtt.WriteOptions
}

type subscription struct {
	filter  string
	handler mqtt.Handler
}

// Broker delivers messages synchronously to every subscription whose filter matches the topic. Retained messages are
// replayed to new subscriptions during Subscribe, like a real broker does.
type Broker struct {
	mu sync.Mutex

	subs      []subscription
	retained  map[string]Message
	published []Message

	// SubscribeErr and UnsubscribeErr, when set, are returned by the next call to Subscribe or Unsubscribe.
	SubscribeErr   error
	UnsubscribeErr error

	Unsubscribed []string
}

var (
	_ mqtt.Writer     = &Broker{}
	_ mqtt.Subscriber = &Broker{}
	_ mqtt.Conn       = &Broker{}
)

// NewBroker returns an empty Broker.
func NewBroker() *Broker {
	return &Broker{retained: map[string]Message{}}
}

// Retain stores a retained message without delivering it to current subscribers.
func (b *Broker) Retain(topic string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.retained[topic] = Message{Topic: topic, Payload: payload, Options: mqtt.WriteOptions{Retain: true}}
}

// Publish delivers payload to all matching subscribers as if a remote client published it.
func (b *Broker) Publish(topic string, payload []byte) {
	b.deliver(topic, payload)
}

func (b *Broker) WriteTopic(_ context.Context, topic string, options mqtt.WriteOptions, value []byte) error {
	msg := Message{Topic: topic, Payload: slices.Clone(value), Options: options}

	b.mu.Lock()
	b.published = append(b.published, msg)
	if options.Retain {
		if len(value) == 0 {
			delete(b.retained, topic)
		} else {
			b.retained[topic] = msg
		}
	}
	b.mu.Unlock()

	b.deliver(topic, value)
	return nil
}

func (b *Broker) deliver(topic string, payload []byte) {
	b.mu.Lock()
	var handlers []mqtt.Handler
	for _, s := range b.subs {
		if mqtt.MatchTopic(s.filter, topic) {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h.ServeMQTT(b, topic, payload)
	}
}

func (b *Broker) Subscribe(_ context.Context, handler mqtt.Handler, subscriptions ...mqtt.Subscription) error {
	b.mu.Lock()
	if err := b.SubscribeErr; err != nil {
		b.SubscribeErr = nil
		b.mu.Unlock()
		return err
	}

	var replay []Message
	for _, s := range subscriptions {
		b.subs = append(b.subs, subscription{filter: s.Topic, handler: handler})
		for _, m := range b.retained {
			if mqtt.MatchTopic(s.Topic, m.Topic) {
				replay = append(replay, m)
			}
		}
	}
	b.mu.Unlock()

	slices.SortFunc(replay, func(a, b Message) int {
		switch {
		case a.Topic < b.Topic:
			return -1
		case a.Topic > b.Topic:
			return 1
		default:
			return 0
		}
	})

	for _, m := range replay {
		handler.ServeMQTT(b, m.Topic, m.Payload)
	}

	return nil
}

func (b *Broker) Unsubscribe(_ context.Context, topics ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.UnsubscribeErr; err != nil {
		b.UnsubscribeErr = nil
		return err
	}

	b.subs = slices.DeleteFunc(b.subs, func(s subscription) bool {
		return slices.Contains(topics, s.filter)
	})
	b.Unsubscribed = append(b.Unsubscribed, topics...)

	return nil
}

func (b *Broker) Disconnect(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs = nil
	return nil
}

// Subscribed reports whether any subscription uses exactly the given filter.
func (b *Broker) Subscribed(filter string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return slices.ContainsFunc(b.subs, func(s subscription) bool { return s.filter == filter })
}

// Published returns a copy of every message written through WriteTopic.
func (b *Broker) Published() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	return slices.Clone(b.published)
}

// PublishedTo returns the payloads written to topic, oldest first.
func (b *Broker) PublishedTo(topic string) [][]byte {
	var result [][]byte
	for _, m := range b.Published() {
		if m.Topic == topic {
			result = append(result, m.Payload)
		}
	}

	return result
}

// Last returns the most recent payload written to topic and whether there was one.
func (b *Broker) Last(topic string) ([]byte, bool) {
	all := b.PublishedTo(topic)
	if len(all) == 0 {
		return nil, false
	}

	return all[len(all)-1], true
}

// RetainedAt returns the retained message for topic, if any.
func (b *Broker) RetainedAt(topic string) (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.retained[topic]
	return m, ok
}
