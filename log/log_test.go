package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForComponentBeforeTo(t *testing.T) {
	l := ForComponent("early").With(slog.String("extra", "yes"))

	var b bytes.Buffer
	To(slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelDebug}))
	t.Cleanup(func() { To(slog.DiscardHandler) })

	l.Info("hello")

	out := b.String()
	assert.Contains(t, out, "component=early")
	assert.Contains(t, out, "extra=yes")
	assert.Contains(t, out, "msg=hello")
}

func TestParseLevel(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "DEBUG", want: slog.LevelDebug},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "info", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
		{in: "verbose", want: slog.LevelInfo},
	} {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewHandler(t *testing.T) {
	var b bytes.Buffer

	slog.New(NewHandler(&b, "json", "warn")).Info("dropped")
	require.Empty(t, b.Bytes())

	slog.New(NewHandler(&b, "json", "warn")).Warn("kept")
	assert.Contains(t, b.String(), `"msg":"kept"`)
}
