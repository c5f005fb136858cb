// Package log routes the structured logs of every flukso-hass package through a single swappable slog.Handler.
package log

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
)

const (
	ComponentKey = "component"
	ErrorKey     = "error"
	DeviceKey    = "device"
	SensorKey    = "sensor"
	TopicKey     = "topic"
)

// Error returns a slog.Attr for the provided error. The key will be ErrorKey.
func Error(e error) slog.Attr {
	return slog.Any(ErrorKey, e)
}

// Device returns a slog.Attr for a Flukso device id. The key will be DeviceKey.
func Device(id string) slog.Attr {
	return slog.String(DeviceKey, id)
}

// Sensor returns a slog.Attr for a Flukso sensor id. The key will be SensorKey.
func Sensor(id string) slog.Attr {
	return slog.String(SensorKey, id)
}

// Topic returns a slog.Attr for an MQTT topic. The key will be TopicKey.
func Topic(t string) slog.Attr {
	return slog.String(TopicKey, t)
}

// indirectHandler is a small wrapper around a slog.Handler that allows swapping out the underlying handler on demand.
type indirectHandler struct {
	h atomic.Pointer[slog.Handler]
}

func (i *indirectHandler) Enabled(ctx context.Context, level slog.Level) bool {
	h := i.h.Load()
	if h == nil {
		return false
	}

	return (*h).Enabled(ctx, level)
}

func (i *indirectHandler) Handle(ctx context.Context, record slog.Record) error {
	h := i.h.Load()
	if h == nil {
		return nil
	}

	return (*h).Handle(ctx, record)
}

// WithAttrs and WithGroup return a handler that resolves the sink lazily, so loggers created by ForComponent before
// To is called still write to the handler installed later.
func (i *indirectHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &derivedHandler{root: i, attrs: attrs}
}

func (i *indirectHandler) WithGroup(name string) slog.Handler {
	return &derivedHandler{root: i, group: name}
}

// derivedHandler replays attributes and groups onto whatever handler is currently installed in root.
type derivedHandler struct {
	root   *indirectHandler
	parent *derivedHandler

	attrs []slog.Attr
	group string
}

func (d *derivedHandler) resolve() slog.Handler {
	var h slog.Handler
	if d.parent != nil {
		h = d.parent.resolve()
	} else {
		p := d.root.h.Load()
		if p == nil {
			return nil
		}
		h = *p
	}

	if h == nil {
		return nil
	}

	if d.group != "" {
		return h.WithGroup(d.group)
	}

	return h.WithAttrs(d.attrs)
}

func (d *derivedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	h := d.resolve()
	return h != nil && h.Enabled(ctx, level)
}

func (d *derivedHandler) Handle(ctx context.Context, record slog.Record) error {
	h := d.resolve()
	if h == nil {
		return nil
	}

	return h.Handle(ctx, record)
}

func (d *derivedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &derivedHandler{root: d.root, parent: d, attrs: attrs}
}

func (d *derivedHandler) WithGroup(name string) slog.Handler {
	return &derivedHandler{root: d.root, parent: d, group: name}
}

var (
	_ slog.Handler = &indirectHandler{}
	_ slog.Handler = &derivedHandler{}
)

var (
	sink = &indirectHandler{h: atomic.Pointer[slog.Handler]{}}
)

// To updates all slog.Logger objects used internally by flukso-hass to write logs to the provided slog.Handler. By
// default, log values will be discarded unless To is called at least once with a non-discarding slog.Handler.
func To(h slog.Handler) {
	sink.h.Store(&h)
}

// ForComponent constructs a slog.Logger for the specified component (which is stored in an attribute with the key
// ComponentKey).
func ForComponent(component string) *slog.Logger {
	return slog.New(sink).With(slog.String(ComponentKey, component))
}

// ParseLevel maps a configured level name to a slog.Level. Unknown names map to slog.LevelInfo.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewHandler builds the handler for the configured format ("json" or "text") and level.
func NewHandler(w io.Writer, format, level string) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}

	return slog.NewTextHandler(w, opts)
}
