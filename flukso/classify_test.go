package flukso_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlowe/flukso-hass/flukso"
	"github.com/nlowe/flukso-hass/hass"
)

func enabled(def flukso.SensorDefinition) flukso.SensorDefinition {
	def.Enable = flukso.FlagOn
	return def
}

func TestClassifyExclusion(t *testing.T) {
	c := flukso.NewClassifier([]string{"ignored"})

	for _, tt := range []struct {
		name string
		def  flukso.SensorDefinition
		ok   bool
	}{
		{name: "Enable absent", def: flukso.SensorDefinition{ID: "s"}},
		{name: "Enable zero", def: flukso.SensorDefinition{ID: "s", Enable: flukso.FlagOff}},
		{name: "Tmpo zero", def: flukso.SensorDefinition{ID: "s", Enable: flukso.FlagOn, Tmpo: flukso.FlagOff}},
		{name: "Tmpo zero and not enabled", def: flukso.SensorDefinition{ID: "s", Tmpo: flukso.FlagOff}},
		{name: "Ignored", def: flukso.SensorDefinition{ID: "ignored", Enable: flukso.FlagOn, Tmpo: flukso.FlagOn}},
		{name: "Ignored kube", def: flukso.SensorDefinition{ID: "ignored", Enable: flukso.FlagOn, Class: flukso.ClassKube, KubeID: "1", Type: "movement"}},
		{name: "Enabled", def: flukso.SensorDefinition{ID: "s", Enable: flukso.FlagOn}, ok: true},
		{name: "Enabled with tmpo", def: flukso.SensorDefinition{ID: "s", Enable: flukso.FlagOn, Tmpo: flukso.FlagOn}, ok: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := c.Classify(tt.def, flukso.PortNames{}, flukso.KubeNames{})
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestClassifyNames(t *testing.T) {
	c := flukso.NewClassifier(nil)
	flx := flukso.PortNames{"0": "Kitchen", "1": ""}
	kube := flukso.KubeNames{"7": "Hallway", "8": ""}

	for _, tt := range []struct {
		name     string
		def      flukso.SensorDefinition
		expected string
	}{
		{name: "Port", def: flukso.SensorDefinition{Ports: []int{0, 1}, Type: "water"}, expected: "Kitchen water"},
		{name: "Unnamed port", def: flukso.SensorDefinition{Ports: []int{1}, Type: "gas"}, expected: "unknown gas"},
		{name: "Missing port", def: flukso.SensorDefinition{Ports: []int{5}, Type: "gas"}, expected: "unknown gas"},
		{name: "No port", def: flukso.SensorDefinition{Type: "water"}, expected: "flukso sensor water"},
		{name: "No type", def: flukso.SensorDefinition{Ports: []int{0}}, expected: "Kitchen"},
		{name: "Kube", def: flukso.SensorDefinition{Class: flukso.ClassKube, KubeID: "7", Type: "temperature"}, expected: "Hallway temperature"},
		{name: "Unnamed kube", def: flukso.SensorDefinition{Class: flukso.ClassKube, KubeID: "8", Type: "movement"}, expected: "unknown movement"},
		{name: "Missing kube", def: flukso.SensorDefinition{Class: flukso.ClassKube, KubeID: "9", Type: "movement"}, expected: "unknown movement"},
		{name: "Electricity subtype", def: flukso.SensorDefinition{Ports: []int{0}, Type: "electricity", Subtype: "pplus"}, expected: "Kitchen electricity pplus"},
		{name: "Electricity without subtype", def: flukso.SensorDefinition{Ports: []int{0}, Type: "electricity"}, expected: "Kitchen electricity"},
		{name: "Subtype only for electricity", def: flukso.SensorDefinition{Ports: []int{0}, Type: "water", Subtype: "pplus"}, expected: "Kitchen water"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			tt.def.ID = "s"
			d, ok := c.Classify(enabled(tt.def), flx, kube)
			require.True(t, ok)
			assert.Equal(t, tt.expected, d.Name)
		})
	}
}

func TestClassifyMetadata(t *testing.T) {
	c := flukso.NewClassifier(nil)

	for _, tt := range []struct {
		typ, subtype string
		deviceClass  hass.DeviceClass
		icon         string
		unit         string
	}{
		{typ: "electricity", subtype: "q1", icon: "mdi:flash", unit: "VAR"},
		{typ: "electricity", subtype: "q4", icon: "mdi:flash", unit: "VAR"},
		{typ: "electricity", subtype: "pplus", icon: "mdi:flash", unit: "W"},
		{typ: "electricity", subtype: "pminus", icon: "mdi:flash", unit: "W"},
		{typ: "electricity", subtype: "vrms", icon: "mdi:flash", unit: "V"},
		{typ: "electricity", subtype: "irms", icon: "mdi:flash", unit: "A"},
		{typ: "electricity", subtype: "pf", icon: "mdi:flash"},
		{typ: "electricity", subtype: "vthd", icon: "mdi:flash"},
		{typ: "electricity", subtype: "ithd", icon: "mdi:flash"},
		{typ: "electricity", subtype: "alpha", icon: "mdi:flash"},
		{typ: "temperature", deviceClass: hass.DeviceClassTemperature, unit: "°C"},
		{typ: "movement", deviceClass: hass.DeviceClassMotion},
		{typ: "pressure", deviceClass: hass.DeviceClassPressure, unit: "hPa"},
		{typ: "battery", deviceClass: hass.DeviceClassBattery, unit: "%"},
		{typ: "vibration", deviceClass: hass.DeviceClassVibration},
		{typ: "error", deviceClass: hass.DeviceClassProblem},
		{typ: "water", icon: "mdi:water", unit: "L"},
		{typ: "light", deviceClass: hass.DeviceClassIlluminance, unit: "lx"},
		{typ: "proximity", icon: "mdi:ruler"},
		{typ: "humidity", deviceClass: hass.DeviceClassHumidity, unit: "%"},
		{typ: "gas", icon: "mdi:gas-station", unit: "L"},
		{typ: "radiation"},
	} {
		t.Run(tt.typ+"/"+tt.subtype, func(t *testing.T) {
			d, ok := c.Classify(enabled(flukso.SensorDefinition{ID: "s", Ports: []int{0}, Type: tt.typ, Subtype: tt.subtype}), flukso.PortNames{}, flukso.KubeNames{})
			require.True(t, ok, "unknown types and subtypes are still classified")

			assert.Equal(t, tt.deviceClass, d.DeviceClass)
			assert.Equal(t, tt.icon, d.Icon)
			assert.Equal(t, tt.unit, d.Unit)
		})
	}
}

func TestClassifyRenderKind(t *testing.T) {
	c := flukso.NewClassifier(nil)

	for _, tt := range []struct {
		typ   string
		kube  flukso.RenderKind
		ports flukso.RenderKind
	}{
		{typ: "movement", kube: flukso.RenderBinary, ports: flukso.RenderNumeric},
		{typ: "vibration", kube: flukso.RenderBinary, ports: flukso.RenderNumeric},
		{typ: "error", kube: flukso.RenderBinary, ports: flukso.RenderNumeric},
		{typ: "proximity", kube: flukso.RenderIgnored, ports: flukso.RenderNumeric},
		{typ: "temperature", kube: flukso.RenderNumeric, ports: flukso.RenderNumeric},
		{typ: "", kube: flukso.RenderNumeric, ports: flukso.RenderNumeric},
		{typ: "radiation", kube: flukso.RenderNumeric, ports: flukso.RenderNumeric},
	} {
		t.Run(tt.typ, func(t *testing.T) {
			d, ok := c.Classify(enabled(flukso.SensorDefinition{ID: "k", Class: flukso.ClassKube, KubeID: "1", Type: tt.typ}), nil, nil)
			require.True(t, ok)
			assert.Equal(t, tt.kube, d.Kind)

			d, ok = c.Classify(enabled(flukso.SensorDefinition{ID: "p", Class: "analog", Ports: []int{1}, Type: tt.typ}), nil, nil)
			require.True(t, ok)
			assert.Equal(t, tt.ports, d.Kind)
		})
	}
}

func TestClassifyPure(t *testing.T) {
	c := flukso.NewClassifier(nil)
	def := enabled(flukso.SensorDefinition{ID: "s", Ports: []int{0}, Type: "temperature"})
	flx := flukso.PortNames{"0": "Attic"}

	a, _ := c.Classify(def, flx, nil)
	b, _ := c.Classify(def, flx, nil)
	assert.Equal(t, a, b)
	assert.Equal(t, flukso.PortNames{"0": "Attic"}, flx)
	assert.Equal(t, "s", def.ID)
}

func completeDevice() flukso.DeviceConfig {
	return flukso.DeviceConfig{
		Flx:  flukso.PortNames{"0": "Kitchen"},
		Kube: flukso.KubeNames{"7": "Hallway"},
		Sensors: flukso.SensorTable{
			"s1": {ID: "s1", Enable: flukso.FlagOn, Ports: []int{0}, Type: "electricity", Subtype: "pplus", DataType: "raw"},
			"k1": {ID: "k1", Enable: flukso.FlagOn, Class: flukso.ClassKube, KubeID: "7", Type: "movement", DataType: "state"},
			"k2": {ID: "k2", Enable: flukso.FlagOn, Class: flukso.ClassKube, KubeID: "7", Type: "proximity", DataType: "gauge"},
			"off": {ID: "off", Enable: flukso.FlagOff, Ports: []int{0}, Type: "water"},
		},
	}
}

func TestClassifyDevice(t *testing.T) {
	c := flukso.NewClassifier(nil)

	t.Run("Complete", func(t *testing.T) {
		ds, err := c.ClassifyDevice("D1", completeDevice())
		require.NoError(t, err)
		require.Len(t, ds, 3)

		assert.Equal(t, []string{"k1", "k2", "s1"}, []string{ds[0].SensorID, ds[1].SensorID, ds[2].SensorID})
		for _, d := range ds {
			assert.Equal(t, "D1", d.DeviceID)
		}
	})

	t.Run("Incomplete", func(t *testing.T) {
		cfg := completeDevice()
		cfg.Kube = nil

		ds, err := c.ClassifyDevice("D2", cfg)
		require.ErrorIs(t, err, flukso.ErrIncompleteDeviceConfig)
		assert.Empty(t, ds)
	})
}

func TestClassifyAll(t *testing.T) {
	c := flukso.NewClassifier(nil)

	store := flukso.NewConfigStore()
	cfg := completeDevice()
	store.Store("D2", flukso.PortNames{"0": "Shed"})
	store.Store("D2", flukso.SensorTable{"x": {ID: "x", Enable: flukso.FlagOn, Ports: []int{0}, Type: "water"}})
	store.Store("D1", cfg.Flx)
	store.Store("D1", cfg.Kube)
	store.Store("D1", cfg.Sensors)

	ds := c.ClassifyAll(store)
	require.Len(t, ds, 3, "the incomplete sibling is skipped without aborting the others")
	for _, d := range ds {
		assert.Equal(t, "D1", d.DeviceID)
	}

	assert.Equal(t, ds, c.ClassifyAll(store), "classifying the same store twice yields identical descriptors")

	numeric, binary, ignored := flukso.Partition(ds)
	require.Len(t, numeric, 1)
	require.Len(t, binary, 1)
	require.Len(t, ignored, 1)
	assert.Equal(t, "s1", numeric[0].SensorID)
	assert.Equal(t, "k1", binary[0].SensorID)
	assert.Equal(t, "k2", ignored[0].SensorID)
}

func TestKitchenScenario(t *testing.T) {
	store := flukso.NewConfigStore()
	for _, msg := range []struct {
		doc     flukso.DocumentType
		payload string
	}{
		{flukso.DocumentSensor, `{"s1": {"id":"s1","enable":1,"port":[0],"type":"electricity","subtype":"pplus","data_type":"raw"}}`},
		{flukso.DocumentKube, `{}`},
		{flukso.DocumentFlx, `{"0": {"name": "Kitchen"}}`},
	} {
		doc, err := flukso.DecodeDocument(msg.doc, []byte(msg.payload))
		require.NoError(t, err)
		store.Store("D1", doc)
	}

	numeric, binary, _ := flukso.Partition(flukso.NewClassifier(nil).ClassifyAll(store))
	require.Len(t, numeric, 1)
	assert.Empty(t, binary)

	d := numeric[0]
	assert.Equal(t, "Kitchen electricity pplus", d.Name)
	assert.Equal(t, "W", d.Unit)
	assert.Equal(t, "/sensor/s1/gauge", d.StateTopic())
	assert.Equal(t, "flukso_s1", d.UniqueID())
}

func TestTemperatureRoundTrip(t *testing.T) {
	store := flukso.NewConfigStore()
	store.Store("D1", flukso.PortNames{"2": "Attic"})
	store.Store("D1", flukso.KubeNames{})
	store.Store("D1", flukso.SensorTable{"t": {ID: "t", Enable: flukso.FlagOn, Ports: []int{2}, Type: "temperature", DataType: "gauge"}})

	numeric, binary, _ := flukso.Partition(flukso.NewClassifier(nil).ClassifyAll(store))
	require.Len(t, numeric, 1)
	assert.Empty(t, binary)

	d := numeric[0]
	assert.Equal(t, hass.DeviceClassTemperature, d.DeviceClass)
	assert.Equal(t, "°C", d.Unit)
	assert.Equal(t, 1, d.Precision)
	assert.Equal(t, "/sensor/t/gauge", d.StateTopic())

	v, err := d.Render([]byte(`[1700000000,21.46,"°C"]`))
	require.NoError(t, err)
	assert.Equal(t, "21.5", v)
}
