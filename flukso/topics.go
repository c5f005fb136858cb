package flukso

import (
	"fmt"
	"strings"

	"github.com/nlowe/flukso-hass/mqtt"
)

// DiscoveryTopic matches every configuration document of every Flukso unit on the bus.
const DiscoveryTopic = "/device/+/config/+"

// GaugeDataType is the data type electricity sensors are read from, regardless of their configured data type.
const GaugeDataType = "gauge"

// ConfigTopic is the retained topic a unit publishes the given document on.
func ConfigTopic(deviceID string, doc DocumentType) string {
	return "/device/" + deviceID + "/config/" + string(doc)
}

// SensorTopic is the topic live values of a sensor are published on. Flukso topics start with a separator, so they
// are built here rather than with mqtt.JoinTopic.
func SensorTopic(sensorID, dataType string) string {
	return "/sensor/" + sensorID + "/" + dataType
}

// ParseConfigTopic splits a concrete configuration topic into the device id and document type.
func ParseConfigTopic(topic string) (string, DocumentType, error) {
	// "", "device", id, "config", doc
	parts := strings.Split(topic, mqtt.TopicSeparator)
	if len(parts) != 5 || parts[0] != "" || parts[1] != "device" || parts[3] != "config" || parts[2] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrUnexpectedTopic, topic)
	}

	doc := DocumentType(parts[4])
	switch doc {
	case DocumentFlx, DocumentKube, DocumentSensor:
		return parts[2], doc, nil
	default:
		return parts[2], doc, fmt.Errorf("%w: %q", ErrUnknownDocument, parts[4])
	}
}
