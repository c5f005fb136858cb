// Package platform implements the Home Assistant MQTT platforms flukso-hass exposes channels as: sensor for numeric
// readings and binary_sensor for movement, vibration and error channels.
package platform
