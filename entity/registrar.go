package entity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/go-json-experiment/json"

	fluksohass "github.com/nlowe/flukso-hass"
	"github.com/nlowe/flukso-hass/discovery"
	"github.com/nlowe/flukso-hass/flukso"
	"github.com/nlowe/flukso-hass/log"
	"github.com/nlowe/flukso-hass/mqtt"
)

// Registrar makes an entity known to Home Assistant.
type Registrar interface {
	RegisterEntity(ctx context.Context, e Entity) error

	// Unregister withdraws an entity that could not be brought up.
	Unregister(ctx context.Context, e Entity) error
}

// NewDevice returns the Home Assistant device grouping every entity of one Flukso unit.
func NewDevice(deviceID string) *fluksohass.Device {
	id := "flukso_" + discovery.IDSanitizer.Replace(deviceID)

	return &fluksohass.Device{
		DiscoveryID:  id,
		Name:         "Flukso " + deviceID,
		Manufacturer: "Flukso",
		Model:        "FLM",
		Identifiers:  []string{id},
	}
}

type registeredDevice struct {
	device     *fluksohass.Device
	components map[string]json.MarshalerTo
}

// DiscoveryRegistrar registers entities with Home Assistant MQTT device discovery. Entities are grouped by Flukso
// device, and registering an entity re-sends the discovery payload of its device.
type DiscoveryRegistrar struct {
	w               mqtt.Writer
	discoveryPrefix string

	mu      sync.Mutex
	devices map[string]*registeredDevice
	order   []string

	log *slog.Logger
}

var _ Registrar = &DiscoveryRegistrar{}

// NewDiscoveryRegistrar returns a DiscoveryRegistrar writing discovery payloads under discoveryPrefix.
func NewDiscoveryRegistrar(w mqtt.Writer, discoveryPrefix string) *DiscoveryRegistrar {
	if discoveryPrefix == "" {
		discoveryPrefix = discovery.DefaultPrefix
	}

	return &DiscoveryRegistrar{
		w:               w,
		discoveryPrefix: discoveryPrefix,

		devices: map[string]*registeredDevice{},

		log: log.ForComponent("entity.registrar"),
	}
}

// device returns the registration for deviceID, creating it if needed. Callers must hold r.mu.
func (r *DiscoveryRegistrar) device(deviceID string) *registeredDevice {
	if d, ok := r.devices[deviceID]; ok {
		return d
	}

	d := &registeredDevice{device: NewDevice(deviceID), components: map[string]json.MarshalerTo{}}
	r.devices[deviceID] = d
	r.order = append(r.order, deviceID)

	return d
}

func (r *DiscoveryRegistrar) RegisterEntity(ctx context.Context, e Entity) error {
	d := e.Descriptor()

	r.mu.Lock()
	defer r.mu.Unlock()

	dev := r.device(d.DeviceID)
	dev.components[d.UniqueID()] = e

	r.log.With(log.Device(d.DeviceID), log.Sensor(d.SensorID), slog.Int("components", len(dev.components))).Debug("Registering entity")
	if err := dev.device.Configure(ctx, r.w, r.discoveryPrefix, maps.Clone(dev.components)); err != nil {
		return fmt.Errorf("register %s: %w", d.UniqueID(), err)
	}

	return nil
}

// Unregister drops e from its device and removes it from Home Assistant. A device left without entities is removed
// entirely.
func (r *DiscoveryRegistrar) Unregister(ctx context.Context, e Entity) error {
	d := e.Descriptor()
	id := d.UniqueID()

	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[d.DeviceID]
	if !ok {
		return nil
	}

	delete(dev.components, id)
	l := r.log.With(log.Device(d.DeviceID), log.Sensor(d.SensorID), slog.Int("components", len(dev.components)))

	if len(dev.components) == 0 {
		delete(r.devices, d.DeviceID)
		r.order = slices.DeleteFunc(r.order, func(o string) bool { return o == d.DeviceID })

		l.Debug("Unregistering last entity, removing device")
		if err := dev.device.Remove(ctx, r.w, r.discoveryPrefix); err != nil {
			return fmt.Errorf("unregister %s: %w", id, err)
		}

		return nil
	}

	components := maps.Clone(dev.components)
	components[id] = fluksohass.RemoveComponent{Platform: e.PlatformName()}

	l.Debug("Unregistering entity")
	if err := dev.device.Configure(ctx, r.w, r.discoveryPrefix, components); err != nil {
		return fmt.Errorf("unregister %s: %w", id, err)
	}

	return nil
}

// Rediscover re-sends the discovery payload of every registered device.
func (r *DiscoveryRegistrar) Rediscover(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log.With(slog.Int("devices", len(r.order))).Info("Re-sending discovery payloads")

	var errs []error
	for _, id := range r.order {
		dev := r.devices[id]
		if err := dev.device.Configure(ctx, r.w, r.discoveryPrefix, maps.Clone(dev.components)); err != nil {
			errs = append(errs, fmt.Errorf("rediscover %s: %w", id, err))
		}
	}

	return errors.Join(errs...)
}

// Retire removes entities that no longer exist from Home Assistant. Retired entities of a device that still has
// registered entities are removed from its component list; devices with no registered entities are removed entirely.
func (r *DiscoveryRegistrar) Retire(ctx context.Context, stale []flukso.Descriptor) error {
	byDevice := map[string][]flukso.Descriptor{}
	var order []string
	for _, d := range stale {
		if _, seen := byDevice[d.DeviceID]; !seen {
			order = append(order, d.DeviceID)
		}
		byDevice[d.DeviceID] = append(byDevice[d.DeviceID], d)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, deviceID := range order {
		l := r.log.With(log.Device(deviceID), slog.Int("retired", len(byDevice[deviceID])))

		dev, ok := r.devices[deviceID]
		if !ok || len(dev.components) == 0 {
			l.Info("Removing device")
			if err := NewDevice(deviceID).Remove(ctx, r.w, r.discoveryPrefix); err != nil {
				errs = append(errs, fmt.Errorf("remove device %s: %w", deviceID, err))
			}

			continue
		}

		components := maps.Clone(dev.components)
		for _, d := range byDevice[deviceID] {
			if _, live := components[d.UniqueID()]; live {
				continue
			}

			components[d.UniqueID()] = fluksohass.RemoveComponent{Platform: PlatformFor(d)}
		}

		l.Info("Removing entities")
		if err := dev.device.Configure(ctx, r.w, r.discoveryPrefix, components); err != nil {
			errs = append(errs, fmt.Errorf("retire entities of %s: %w", deviceID, err))
		}
	}

	return errors.Join(errs...)
}
