package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"

	"github.com/nlowe/flukso-hass/entity"
	"github.com/nlowe/flukso-hass/internal/bridge"
	"github.com/nlowe/flukso-hass/internal/config"
	"github.com/nlowe/flukso-hass/internal/snapshot"
	"github.com/nlowe/flukso-hass/log"
	"github.com/nlowe/flukso-hass/mqtt"
	autopahoadapter "github.com/nlowe/flukso-hass/mqtt/adapter/autopaho"
	"github.com/nlowe/flukso-hass/mqtt/adapter/paho3"
)

const (
	disconnectTimeout = 10 * time.Second
	fluksoKeepAlive   = 30 * time.Second
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover Flukso sensors and publish them to Home Assistant until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), cfg)
	},
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := log.ForComponent("main")
	logger.Info("Starting Up")

	source, err := paho3.Dial(ctx, fluksoClientOptions(cfg.Flukso.Broker))
	if err != nil {
		return fmt.Errorf("connect to flukso: %w", err)
	}
	defer disconnect(logger.With(slog.String("broker", "flukso")), source)

	ha, err := dialHomeAssistant(ctx, cfg.HomeAssistant.Broker)
	if err != nil {
		return fmt.Errorf("connect to home assistant: %w", err)
	}
	defer disconnect(logger.With(slog.String("broker", "homeassistant")), ha)

	opts := bridge.Options{
		DiscoveryWindow: cfg.Flukso.DiscoveryWindow,
		IgnoreSensors:   cfg.Flukso.IgnoreSensors,
		DiscoveryPrefix: cfg.HomeAssistant.DiscoveryPrefix,
		Entities: entity.Config{
			TopicPrefix: cfg.HomeAssistant.TopicPrefix,
			OffDelay:    cfg.Flukso.OffDelay,
		},
	}

	if cfg.Snapshot.Path != "" {
		store, err := snapshot.Open(cfg.Snapshot.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		opts.Snapshots = store
	}

	err = bridge.New(source, ha, opts).Run(ctx)
	logger.Info("Goodbye!")
	return err
}

func disconnect(logger *slog.Logger, conn mqtt.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()

	logger.Info("Disconnecting from mqtt")
	if err := conn.Disconnect(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.With(log.Error(err)).Error("Failed to disconnect from mqtt")
	}
}

func fluksoClientOptions(broker config.FluksoBrokerConfig) *pahomqtt.ClientOptions {
	logger := log.ForComponent("mqtt.flukso")

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(broker.Address())
	opts.SetClientID(broker.ClientID)

	if broker.Username != "" {
		opts.SetUsername(broker.Username)
		opts.SetPassword(broker.Password)
	}

	// The base unit keeps no session for us; subscriptions are restored by the adapter.
	opts.SetCleanSession(true)

	// A refused initial connection fails setup. Only established connections are retried.
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(broker.ConnectTimeout)
	opts.SetKeepAlive(fluksoKeepAlive)

	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		logger.Info("mqtt connected")
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.With(log.Error(err)).Warn("mqtt connection lost")
	})
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		logger.Info("mqtt reconnecting")
	})

	return opts
}

func dialHomeAssistant(ctx context.Context, broker config.HomeAssistantBrokerConfig) (mqtt.Conn, error) {
	logger := log.ForComponent("mqtt.homeassistant")

	serverURL, err := broker.ServerURL()
	if err != nil {
		return nil, err
	}

	mqttConfig := autopaho.ClientConfig{
		ServerUrls: []*url.URL{serverURL},
		KeepAlive:  20,

		ConnectTimeout: broker.ConnectTimeout,

		// Seconds the broker keeps our session after a disconnect.
		SessionExpiryInterval: 60,

		ConnectUsername: broker.Username,
		ConnectPassword: []byte(broker.Password),

		OnConnectionUp: func(*autopaho.ConnectionManager, *paho.Connack) {
			logger.Info("mqtt connected")
		},
		OnConnectError: func(err error) {
			logger.With(log.Error(err)).Error("mqtt connection error")
		},

		ClientConfig: paho.ClientConfig{
			ClientID: broker.ClientID,
			OnClientError: func(err error) {
				logger.With(log.Error(err)).Error("mqtt client error")
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				logger := logger.With(slog.Int("reason", int(d.ReasonCode)))

				if d.Properties != nil {
					logger = logger.With(
						slog.Group(
							"properties",
							slog.String("reference", d.Properties.ServerReference),
							slog.String("reason", d.Properties.ReasonString),
						),
					)
				}

				logger.Warn("mqtt server requested disconnect")
			},
		},
	}

	return autopahoadapter.DialMQTT(ctx, mqttConfig)
}
