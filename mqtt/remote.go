package mqtt

import (
	"log/slog"
	"sync"

	"github.com/nlowe/flukso-hass/log"
)

// RemoteValue is state somebody else publishes, like Home Assistant's status topic. It is an mqtt.Handler: subscribe it
// with Subscription and it decodes every message on its topic and notifies its watchers.
type RemoteValue[T any] struct {
	topic       string
	unmarshaler ValueUnmarshaler[T]

	mu       sync.RWMutex
	current  T
	received bool
	watchers []func(T)

	log *slog.Logger
}

// NewRemoteValue returns a RemoteValue for the absolute topic. A nil unmarshaler decodes json.
func NewRemoteValue[T any](topic string, unmarshaler ValueUnmarshaler[T]) *RemoteValue[T] {
	if unmarshaler == nil {
		unmarshaler = JsonValueUnmarshaler[T]()
	}

	return &RemoteValue[T]{
		topic:       topic,
		unmarshaler: unmarshaler,

		log: log.ForComponent("mqtt.remote").With(log.Topic(topic)),
	}
}

// FullyQualifiedTopic joins prefix and the topic of v. A nil RemoteValue has no topic.
func (v *RemoteValue[T]) FullyQualifiedTopic(prefix string) string {
	if v == nil {
		return ""
	}

	return JoinTopic(prefix, v.topic)
}

// Subscription returns the subscription that feeds v.
func (v *RemoteValue[T]) Subscription(prefix string) Subscription {
	return Subscription{Topic: v.FullyQualifiedTopic(prefix)}
}

// ServeMQTT decodes message and runs the watchers with it. Messages for other topics are ignored, and undecodable ones
// are logged and dropped.
func (v *RemoteValue[T]) ServeMQTT(_ Writer, topic string, message []byte) {
	if v == nil || topic != v.topic {
		return
	}

	parsed, err := v.unmarshaler(message)
	if err != nil {
		v.log.With(log.Error(err)).Warn("Failed to unmarshal payload from mqtt")
		return
	}

	v.mu.Lock()
	v.current, v.received = parsed, true
	watchers := append([]func(T){}, v.watchers...)
	v.mu.Unlock()

	v.log.With(slog.Any("v", parsed), slog.Int("watchers", len(watchers))).Debug("Received new value from mqtt")
	for _, w := range watchers {
		w(parsed)
	}
}

// Get returns the last received value, and false if nothing was received yet.
func (v *RemoteValue[T]) Get() (T, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.current, v.received
}

// Watch adds a callback for every received value. Watchers run one after another on the connection's delivery
// goroutine, so they must not block.
func (v *RemoteValue[T]) Watch(callback func(T)) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.watchers = append(v.watchers, callback)
}
