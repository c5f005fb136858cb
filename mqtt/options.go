package mqtt

import (
	"fmt"
	"log/slog"
)

// QualityOfService is the MQTT delivery guarantee of a publish or subscription.
type QualityOfService uint8

const (
	QOSAtMostOnce QualityOfService = iota
	QOSAtLeastOnce
	QOSExactlyOnce
)

func (q QualityOfService) String() string {
	switch q {
	case QOSAtMostOnce:
		return "at most once (0)"
	case QOSAtLeastOnce:
		return "at least once (1)"
	case QOSExactlyOnce:
		return "exactly once (2)"
	default:
		return fmt.Sprintf("invalid (%d)", uint8(q))
	}
}

func (q QualityOfService) LogValue() slog.Value {
	return slog.StringValue(q.String())
}

// WriteOptions controls how a payload is published. The zero value publishes at QoS 0 without retain.
type WriteOptions struct {
	QoS QualityOfService

	// Retain asks the broker to keep the payload and hand it to every later subscriber. Discovery payloads and
	// availability are retained so Home Assistant sees them after it restarts.
	Retain bool
}

func (w WriteOptions) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("qos", w.QoS),
		slog.Bool("retain", w.Retain),
	)
}

// RetainHandling is the MQTT v5 subscription option controlling delivery of retained messages.
type RetainHandling uint8

const (
	// RetainHandlingDefault sends retained messages on every subscribe, including resubscribes.
	RetainHandlingDefault RetainHandling = iota
	// RetainHandlingNewOnly sends retained messages only when the subscription did not exist yet.
	RetainHandlingNewOnly
	// RetainHandlingNever never sends retained messages.
	RetainHandlingNever
)

func (r RetainHandling) String() string {
	switch r {
	case RetainHandlingDefault:
		return "send on subscribe (0)"
	case RetainHandlingNewOnly:
		return "send on new subscribe (1)"
	case RetainHandlingNever:
		return "ignore retained (2)"
	default:
		return fmt.Sprintf("invalid (%d)", uint8(r))
	}
}

func (r RetainHandling) LogValue() slog.Value {
	return slog.StringValue(r.String())
}

// ReadOptions are the options of one subscription. MQTT 3.1.1 connections only honor QoS.
type ReadOptions struct {
	QoS QualityOfService

	// NoLocal keeps the broker from echoing our own publishes back to us.
	NoLocal bool
	// RetainAsPublished keeps the retain flag on forwarded messages.
	RetainAsPublished bool

	RetainHandling RetainHandling
}

func (r ReadOptions) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("qos", r.QoS),
		slog.Bool("no_local", r.NoLocal),
		slog.Bool("retain_as_published", r.RetainAsPublished),
		slog.Any("retain_handling", r.RetainHandling),
	)
}
