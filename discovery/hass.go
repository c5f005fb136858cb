package discovery

import (
	"github.com/nlowe/flukso-hass/hass"
	"github.com/nlowe/flukso-hass/mqtt"
)

const (
	// DefaultPrefix is the MQTT Topic Prefix that Home Assistant looks for discovery payloads under
	DefaultPrefix = "homeassistant"
	// StatusTopic is the MQTT Topic that Home Assistant publishes hass.Availability state to for itself.
	StatusTopic = "status"
)

// HomeAssistantAvailability constructs a mqtt.RemoteValue that monitors Home Assistant's availability topic. Watch
// this value to be notified when Home Assistant restarts and discovery payloads must be re-sent.
//
// See https://www.home-assistant.io/integrations/mqtt/#birth-and-last-will-messages.
func HomeAssistantAvailability(discoveryPrefix string) *mqtt.RemoteValue[hass.Availability] {
	return mqtt.NewRemoteValue(mqtt.JoinTopic(discoveryPrefix, StatusTopic), hass.AvailabilityUnmarshaler)
}
