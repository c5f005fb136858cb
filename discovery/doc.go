// Package discovery builds Home Assistant MQTT device discovery payloads. Field names are the abbreviated forms Home
// Assistant accepts, which keeps the retained payloads small.
//
// See https://www.home-assistant.io/integrations/mqtt/#supported-abbreviations-in-mqtt-discovery-messages.
package discovery
