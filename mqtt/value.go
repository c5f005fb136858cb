package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNoMarshaler is returned by Value.Write when the Value has no ValueMarshaler.
	ErrNoMarshaler = errors.New("no marshaler configured")
	// ErrNeverWritten is returned by Value.Republish before the first Write.
	ErrNeverWritten = errors.New("value was never written")
)

// Value is a piece of state we publish under a topic relative to an entity's prefix, e.g. "state" or "available". It
// remembers the last value written so it can be republished when Home Assistant comes back.
type Value[T any] struct {
	topic     string
	marshaler ValueMarshaler[T]
	opts      WriteOptions

	mu      sync.RWMutex
	current T
	written bool
}

// NewValue returns a Value for topic that publishes at QoS 0 without retain.
func NewValue[T any](topic string, marshal ValueMarshaler[T]) *Value[T] {
	return NewValueWithOptions(topic, marshal, WriteOptions{})
}

// NewValueWithOptions returns a Value for topic that publishes with opts.
func NewValueWithOptions[T any](topic string, marshal ValueMarshaler[T], opts WriteOptions) *Value[T] {
	return &Value[T]{topic: topic, marshaler: marshal, opts: opts}
}

// FullyQualifiedTopic joins prefix and the topic of v. A nil Value has no topic.
func (v *Value[T]) FullyQualifiedTopic(prefix string) string {
	if v == nil {
		return ""
	}

	return JoinTopic(prefix, v.topic)
}

// Get returns the last written value, and false if nothing was written yet.
func (v *Value[T]) Get() (T, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.current, v.written
}

// Write publishes next under prefix and remembers it. The value is remembered even if the broker rejects the publish,
// so a later Republish retries it.
func (v *Value[T]) Write(ctx context.Context, w Writer, prefix string, next T) (T, error) {
	if v.marshaler == nil {
		return next, ErrNoMarshaler
	}

	data, err := v.marshaler(next)
	if err != nil {
		return v.current, fmt.Errorf("marshal %+v: %w", next, err)
	}

	// Held across the publish so concurrent writers reach the broker in the order they were remembered.
	v.mu.Lock()
	defer v.mu.Unlock()

	v.current, v.written = next, true
	return next, w.WriteTopic(ctx, v.FullyQualifiedTopic(prefix), v.opts, data)
}

// Republish publishes the remembered value again. It fails with ErrNeverWritten before the first Write.
func (v *Value[T]) Republish(ctx context.Context, w Writer, prefix string) (T, error) {
	current, ok := v.Get()
	if !ok {
		return current, ErrNeverWritten
	}

	return v.Write(ctx, w, prefix, current)
}
