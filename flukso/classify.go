package flukso

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/nlowe/flukso-hass/hass"
	"github.com/nlowe/flukso-hass/log"
)

const (
	// DefaultName is used for port sensors that do not reference a port.
	DefaultName = "flukso sensor"
	// UnknownName is used when the referenced port or kube has no name.
	UnknownName = "unknown"

	TypeElectricity = "electricity"
	TypeTemperature = "temperature"
	TypeMovement    = "movement"
	TypePressure    = "pressure"
	TypeBattery     = "battery"
	TypeVibration   = "vibration"
	TypeError       = "error"
	TypeWater       = "water"
	TypeLight       = "light"
	TypeProximity   = "proximity"
	TypeHumidity    = "humidity"
	TypeGas         = "gas"
)

// RenderKind is the entity family a sensor is exposed as. It implements fmt.Stringer and slog.LogValuer.
type RenderKind uint8

const (
	RenderNumeric RenderKind = iota
	RenderBinary
	RenderIgnored
)

func (k RenderKind) String() string {
	switch k {
	case RenderNumeric:
		return "numeric"
	case RenderBinary:
		return "binary"
	case RenderIgnored:
		return "ignored"
	default:
		return fmt.Sprintf("RenderKind(%d)", uint8(k))
	}
}

func (k RenderKind) LogValue() slog.Value {
	return slog.StringValue(k.String())
}

// Descriptor is the classification of one sensor channel.
type Descriptor struct {
	DeviceID string
	SensorID string

	// Name is the resolved display name, suffixed with the type (and subtype for electricity).
	Name string

	Type     string
	Subtype  string
	Class    string
	DataType string

	DeviceClass hass.DeviceClass
	Icon        string
	Unit        string

	Kind      RenderKind
	Rendering Rendering
	// Precision is the number of decimals of rendered numeric state.
	Precision int
}

// UniqueID is the stable identifier of the entity exposing this sensor.
func (d Descriptor) UniqueID() string {
	return "flukso_" + d.SensorID
}

// StateTopic is the Flukso topic live values for this sensor are read from. Electricity sensors are always read from
// their gauge.
func (d Descriptor) StateTopic() string {
	if d.Type == TypeElectricity {
		return SensorTopic(d.SensorID, GaugeDataType)
	}

	return SensorTopic(d.SensorID, d.DataType)
}

func (d Descriptor) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("device", d.DeviceID),
		slog.String("sensor", d.SensorID),
		slog.String("name", d.Name),
		slog.Any("kind", d.Kind),
		slog.String("device_class", string(d.DeviceClass)),
		slog.String("unit", d.Unit),
	)
}

type metadata struct {
	deviceClass hass.DeviceClass
	icon        string
	unit        string
}

var typeMetadata = map[string]metadata{
	TypeElectricity: {icon: "mdi:flash"},
	TypeTemperature: {deviceClass: hass.DeviceClassTemperature, unit: "°C"},
	TypeMovement:    {deviceClass: hass.DeviceClassMotion},
	TypePressure:    {deviceClass: hass.DeviceClassPressure, unit: "hPa"},
	TypeBattery:     {deviceClass: hass.DeviceClassBattery, unit: "%"},
	TypeVibration:   {deviceClass: hass.DeviceClassVibration},
	TypeError:       {deviceClass: hass.DeviceClassProblem},
	TypeWater:       {icon: "mdi:water", unit: "L"},
	TypeLight:       {deviceClass: hass.DeviceClassIlluminance, unit: "lx"},
	TypeProximity:   {icon: "mdi:ruler"},
	TypeHumidity:    {deviceClass: hass.DeviceClassHumidity, unit: "%"},
	TypeGas:         {icon: "mdi:gas-station", unit: "L"},
}

// Electricity units by subtype. Power factor and harmonic distortion are dimensionless.
var electricityUnits = map[string]string{
	"q1":     "VAR",
	"q2":     "VAR",
	"q3":     "VAR",
	"q4":     "VAR",
	"pplus":  "W",
	"pminus": "W",
	"vrms":   "V",
	"irms":   "A",
	"pf":     "",
	"vthd":   "",
	"ithd":   "",
}

// Classifier decides how each sensor definition is exposed.
type Classifier struct {
	ignore map[string]struct{}

	log *slog.Logger
}

// NewClassifier returns a Classifier that excludes the given sensor ids unconditionally.
func NewClassifier(ignore []string) *Classifier {
	c := &Classifier{
		ignore: make(map[string]struct{}, len(ignore)),
		log:    log.ForComponent("flukso.classifier"),
	}

	for _, id := range ignore {
		c.ignore[id] = struct{}{}
	}

	return c
}

// Classify maps a sensor definition to a Descriptor using the names from its device's flx and kube documents. The
// second return value is false when the sensor is excluded: it is not enabled, it opted out of tmpo, or it is on the
// ignore list. The returned Descriptor has no DeviceID.
func (c *Classifier) Classify(def SensorDefinition, flx PortNames, kube KubeNames) (Descriptor, bool) {
	if def.Enable != FlagOn || def.Tmpo == FlagOff {
		return Descriptor{}, false
	}

	if _, ignored := c.ignore[def.ID]; ignored {
		return Descriptor{}, false
	}

	d := Descriptor{
		SensorID: def.ID,
		Name:     resolveName(def, flx, kube),
		Type:     def.Type,
		Subtype:  def.Subtype,
		Class:    def.Class,
		DataType: def.DataType,
		Kind:     renderKind(def),
	}

	meta, known := typeMetadata[def.Type]
	if !known && def.Type != "" {
		c.log.With(log.Sensor(def.ID), slog.String("type", def.Type)).Warn("Unknown sensor type")
	}

	d.DeviceClass, d.Icon, d.Unit = meta.deviceClass, meta.icon, meta.unit

	if def.Type != "" {
		d.Name += " " + def.Type
	}

	if def.Type == TypeElectricity && def.Subtype != "" {
		d.Name += " " + def.Subtype

		unit, known := electricityUnits[def.Subtype]
		if !known {
			c.log.With(log.Sensor(def.ID), slog.String("subtype", def.Subtype)).Warn("Unknown electricity subtype")
		}
		d.Unit = unit
	}

	d.Rendering, d.Precision = renderingFor(d)

	return d, true
}

func resolveName(def SensorDefinition, flx PortNames, kube KubeNames) string {
	var name string

	switch {
	case def.IsKube():
		name = kube.Name(def.KubeID)
	case len(def.Ports) > 0:
		name = flx.Name(def.Ports[0])
	default:
		return DefaultName
	}

	if name == "" {
		return UnknownName
	}

	return name
}

func renderKind(def SensorDefinition) RenderKind {
	if !def.IsKube() {
		return RenderNumeric
	}

	switch def.Type {
	case TypeMovement, TypeVibration, TypeError:
		return RenderBinary
	case TypeProximity:
		return RenderIgnored
	default:
		return RenderNumeric
	}
}

// ClassifyDevice classifies every sensor of one device in sensor id order. It fails with ErrIncompleteDeviceConfig if
// any of the device's documents is missing.
func (c *Classifier) ClassifyDevice(deviceID string, cfg DeviceConfig) ([]Descriptor, error) {
	if missing := cfg.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: device %s is missing %v", ErrIncompleteDeviceConfig, deviceID, missing)
	}

	var result []Descriptor
	for _, id := range slices.Sorted(maps.Keys(cfg.Sensors)) {
		d, ok := c.Classify(cfg.Sensors[id], cfg.Flx, cfg.Kube)
		if !ok {
			c.log.With(log.Device(deviceID), log.Sensor(id)).Debug("Sensor excluded")
			continue
		}

		d.DeviceID = deviceID
		result = append(result, d)
	}

	return result, nil
}

// ClassifyAll classifies every device in store in arrival order. Devices with missing documents are logged and
// skipped; they never prevent other devices from being classified.
func (c *Classifier) ClassifyAll(store *ConfigStore) []Descriptor {
	var result []Descriptor
	for deviceID, cfg := range store.All() {
		descriptors, err := c.ClassifyDevice(deviceID, cfg)
		if err != nil {
			c.log.With(log.Device(deviceID), log.Error(err)).Error("Skipping device with incomplete configuration")
			continue
		}

		result = append(result, descriptors...)
	}

	return result
}

// Partition splits descriptors by RenderKind, preserving order.
func Partition(descriptors []Descriptor) (numeric, binary, ignored []Descriptor) {
	for _, d := range descriptors {
		switch d.Kind {
		case RenderBinary:
			binary = append(binary, d)
		case RenderIgnored:
			ignored = append(ignored, d)
		default:
			numeric = append(numeric, d)
		}
	}

	return numeric, binary, ignored
}
