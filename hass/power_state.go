package hass

import "github.com/nlowe/flukso-hass/mqtt"

// PowerState is the state payload of a binary sensor. ON means motion, vibration or a problem was detected.
type PowerState string

const (
	PowerStateOn  PowerState = "ON"
	PowerStateOff PowerState = "OFF"
)

var PowerStateMarshaler mqtt.ValueMarshaler[PowerState] = func(v PowerState) ([]byte, error) {
	return []byte(v), nil
}

// PowerStateOf maps a boolean to PowerStateOn or PowerStateOff.
func PowerStateOf(on bool) PowerState {
	if on {
		return PowerStateOn
	}

	return PowerStateOff
}
