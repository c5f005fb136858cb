package fluksohass

import "net/url"

// Origin provides information about the software providing devices over MQTT to Home Assistant. See the documentation
// for Device.Origin for details.
type Origin struct {
	// The name of the application that is the origin of the discovered MQTT item.
	Name string `json:"name"`
	// Software version of the application that supplies the discovered MQTT item.
	SoftwareVersion string `json:"sw,omitempty"`
	// Support URL of the application that supplies the discovered MQTT item.
	SupportURL *url.URL `json:"url,omitempty"`
}

var (
	supportURL, _ = url.Parse("https://github.com/nlowe/flukso-hass")

	// Version is reported to Home Assistant in the origin block. It is overridden at build time with -ldflags.
	Version = "dev"

	// DefaultOrigin provides origin information to Home Assistant for devices that do not otherwise specify one.
	DefaultOrigin = Origin{
		Name:            "flukso-hass",
		SoftwareVersion: Version,
		SupportURL:      supportURL,
	}
)
