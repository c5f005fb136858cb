package flukso

import (
	"iter"
)

// DeviceConfig holds the configuration documents received for one Flukso unit. A nil document has not been received.
type DeviceConfig struct {
	Flx     PortNames
	Kube    KubeNames
	Sensors SensorTable
}

// Missing lists the documents that have not been received yet, in flx, kube, sensor order.
func (c DeviceConfig) Missing() []DocumentType {
	var missing []DocumentType
	if c.Flx == nil {
		missing = append(missing, DocumentFlx)
	}
	if c.Kube == nil {
		missing = append(missing, DocumentKube)
	}
	if c.Sensors == nil {
		missing = append(missing, DocumentSensor)
	}

	return missing
}

// Complete reports whether all three documents have been received.
func (c DeviceConfig) Complete() bool {
	return len(c.Missing()) == 0
}

// ConfigStore accumulates configuration documents per device. It is not safe for concurrent use; the Sequencer owning
// it serializes access.
type ConfigStore struct {
	order   []string
	devices map[string]*DeviceConfig
}

// NewConfigStore returns an empty ConfigStore.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{devices: map[string]*DeviceConfig{}}
}

// Store records doc for deviceID, replacing any document of the same type received earlier. Devices are created on
// first use. A nil doc is ignored.
func (s *ConfigStore) Store(deviceID string, doc Document) {
	if doc == nil {
		return
	}

	cfg, ok := s.devices[deviceID]
	if !ok {
		cfg = &DeviceConfig{}
		s.devices[deviceID] = cfg
		s.order = append(s.order, deviceID)
	}

	switch d := doc.(type) {
	case PortNames:
		cfg.Flx = d
	case KubeNames:
		cfg.Kube = d
	case SensorTable:
		cfg.Sensors = d
	}
}

// Device returns the configuration received for deviceID.
func (s *ConfigStore) Device(deviceID string) (DeviceConfig, bool) {
	cfg, ok := s.devices[deviceID]
	if !ok {
		return DeviceConfig{}, false
	}

	return *cfg, true
}

// Len returns the number of known devices.
func (s *ConfigStore) Len() int {
	return len(s.order)
}

// All yields every known device in the order it was first seen. The sequence may be iterated any number of times.
func (s *ConfigStore) All() iter.Seq2[string, DeviceConfig] {
	return func(yield func(string, DeviceConfig) bool) {
		for _, id := range s.order {
			if !yield(id, *s.devices[id]) {
				return
			}
		}
	}
}
