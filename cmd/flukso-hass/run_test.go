package main

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlowe/flukso-hass/internal/config"
	autopahoadapter "github.com/nlowe/flukso-hass/mqtt/adapter/autopaho"
	"github.com/nlowe/flukso-hass/mqtt/adapter/paho3"
)

// closedPort returns a local port nothing listens on.
func closedPort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	return port
}

func TestDialFluksoRefused(t *testing.T) {
	broker := config.Default().Flukso.Broker
	broker.Host = "127.0.0.1"
	broker.Port = closedPort(t)
	broker.ConnectTimeout = 5 * time.Second

	start := time.Now()
	_, err := paho3.Dial(t.Context(), fluksoClientOptions(broker))
	require.ErrorIs(t, err, paho3.ErrConnectionFailed)
	assert.Less(t, time.Since(start), broker.ConnectTimeout, "a refused connection is reported before the timeout")
}

func TestDialHomeAssistantTimeout(t *testing.T) {
	broker := config.Default().HomeAssistant.Broker
	broker.URL = "mqtt://127.0.0.1:" + strconv.Itoa(closedPort(t))
	broker.ConnectTimeout = 500 * time.Millisecond

	start := time.Now()
	_, err := dialHomeAssistant(t.Context(), broker)
	require.ErrorIs(t, err, autopahoadapter.ErrConnectionFailed)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunFailsWithoutFluksoBroker(t *testing.T) {
	cfg := config.Default()
	cfg.Flukso.Broker.Host = "127.0.0.1"
	cfg.Flukso.Broker.Port = closedPort(t)

	err := run(t.Context(), cfg)
	require.ErrorIs(t, err, paho3.ErrConnectionFailed)
	assert.ErrorContains(t, err, "connect to flukso")
}
