package mqtt

import "context"

// Writer publishes payloads.
type Writer interface {
	WriteTopic(ctx context.Context, topic string, options WriteOptions, value []byte) error
}

// Error drops the value returned by Value.Write or Value.Republish so several writes can be passed to errors.Join.
func Error[T any](_ T, err error) error {
	return err
}

// Conn is a broker connection that publishes and subscribes. The packages under mqtt/adapter return one.
type Conn interface {
	Writer
	Subscriber

	Disconnect(ctx context.Context) error
}
