package mqtt

import (
	"context"
	"log/slog"
)

// Subscription is one topic filter to subscribe to. It implements fmt.Stringer and slog.LogValuer.
type Subscription struct {
	// Topic may contain SingleLevelWildcard and MultiLevelWildcard levels.
	Topic   string
	Options ReadOptions
}

func (s Subscription) String() string {
	return s.Topic
}

func (s Subscription) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("topic", s.Topic),
		slog.Any("options", s.Options),
	)
}

// Handler receives the messages of a subscription, like an http.Handler receives requests.
//
// ServeMQTT gets the concrete topic of the message, never the filter, and must not keep message after returning.
// Handlers run on the connection's delivery goroutine: they report errors out of band and must not block for long.
type Handler interface {
	ServeMQTT(w Writer, topic string, message []byte)
}

// HandlerFunc lets an ordinary function be used as a Handler.
type HandlerFunc func(Writer, string, []byte)

func (f HandlerFunc) ServeMQTT(w Writer, topic string, message []byte) {
	f(w, topic, message)
}

// Subscriber manages the subscriptions of a connection.
type Subscriber interface {
	// Subscribe routes messages matching any of subscriptions to handler. Retained messages may be delivered before
	// Subscribe returns.
	Subscribe(ctx context.Context, handler Handler, subscriptions ...Subscription) error

	// Unsubscribe removes the given filters. Removing a filter that is not subscribed is not an error.
	Unsubscribe(ctx context.Context, topics ...string) error
}
