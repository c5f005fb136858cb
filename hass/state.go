package hass

// StateClass tells Home Assistant how to keep long-term statistics for a sensor.
//
// See https://developers.home-assistant.io/docs/core/entity/sensor/#available-state-classes.
type StateClass string

const (
	// StateClassMeasurement is a reading of the present value, like power or temperature. Home Assistant keeps hourly
	// min, max and mean.
	StateClassMeasurement StateClass = "measurement"

	// StateClassTotal is an accumulated value that may go up and down.
	StateClassTotal StateClass = "total"

	// StateClassTotalIncreasing is an accumulated value that only resets to zero, like a meter.
	StateClassTotalIncreasing StateClass = "total_increasing"
)
