package hass

// DeviceClass changes how Home Assistant displays an entity and which units it accepts. Sensors and binary sensors
// draw from different sets of classes; both are declared here since discovery encodes them identically.
//
// See https://www.home-assistant.io/integrations/sensor/#device-class and
// https://www.home-assistant.io/integrations/binary_sensor/#device-class.
type DeviceClass string

// DeviceClassNone leaves the entity with Home Assistant's generic presentation.
const DeviceClassNone DeviceClass = ""

// Sensor device classes
const (
	DeviceClassBattery     DeviceClass = "battery"
	DeviceClassHumidity    DeviceClass = "humidity"
	DeviceClassIlluminance DeviceClass = "illuminance"
	DeviceClassPressure    DeviceClass = "pressure"
	DeviceClassTemperature DeviceClass = "temperature"
)

// Binary sensor device classes
const (
	DeviceClassMotion    DeviceClass = "motion"
	DeviceClassVibration DeviceClass = "vibration"
	DeviceClassProblem   DeviceClass = "problem"
)
