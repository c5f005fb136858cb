package flukso_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlowe/flukso-hass/flukso"
)

func TestDecodeDocument(t *testing.T) {
	t.Run("Flx", func(t *testing.T) {
		doc, err := flukso.DecodeDocument(flukso.DocumentFlx, []byte(`{"0":{"name":"Kitchen"},"1":{},"2":{"name":null},"3":"junk"}`))
		require.NoError(t, err)

		flx, ok := doc.(flukso.PortNames)
		require.True(t, ok)
		assert.Equal(t, flukso.PortNames{"0": "Kitchen", "1": "", "2": "", "3": ""}, flx)
		assert.Equal(t, "Kitchen", flx.Name(0))
		assert.Empty(t, flx.Name(9))
	})

	t.Run("Empty Kube", func(t *testing.T) {
		doc, err := flukso.DecodeDocument(flukso.DocumentKube, []byte(`{}`))
		require.NoError(t, err)

		kube, ok := doc.(flukso.KubeNames)
		require.True(t, ok)
		assert.NotNil(t, kube, "an empty document is still a received document")
		assert.Empty(t, kube)
	})

	t.Run("Sensor", func(t *testing.T) {
		doc, err := flukso.DecodeDocument(flukso.DocumentSensor, []byte(`{
			"s1": {"id": "s1", "enable": 1, "port": [0], "type": "electricity", "subtype": "pplus", "data_type": "raw"},
			"s2": {"id": "s2", "enable": "1", "tmpo": 0, "class": "kube", "kid": 7, "type": "movement", "data_type": "state"},
			"s3": {"enable": true, "class": "kube", "kid": "8"}
		}`))
		require.NoError(t, err)

		sensors, ok := doc.(flukso.SensorTable)
		require.True(t, ok)
		require.Len(t, sensors, 3)

		assert.Equal(t, flukso.SensorDefinition{
			ID:       "s1",
			Enable:   flukso.FlagOn,
			Ports:    []int{0},
			Type:     "electricity",
			Subtype:  "pplus",
			DataType: "raw",
		}, sensors["s1"])

		s2 := sensors["s2"]
		assert.Equal(t, flukso.FlagOn, s2.Enable)
		assert.Equal(t, flukso.FlagOff, s2.Tmpo)
		assert.True(t, s2.IsKube())
		assert.Equal(t, "7", s2.KubeID)

		s3 := sensors["s3"]
		assert.Equal(t, "s3", s3.ID, "id falls back to the document key")
		assert.Equal(t, "8", s3.KubeID)
		assert.Equal(t, flukso.FlagAbsent, s3.Tmpo)
	})

	t.Run("Invalid entries are dropped", func(t *testing.T) {
		doc, err := flukso.DecodeDocument(flukso.DocumentSensor, []byte(`{
			"ok": {"id": "ok", "enable": 1},
			"nokid": {"id": "nokid", "enable": 1, "class": "kube"},
			"badport": {"id": "badport", "enable": 1, "port": ["x"]},
			"fraction": {"id": "fraction", "enable": 1, "port": [1.5]},
			"badtype": {"id": "badtype", "enable": 1, "type": {"a": 1}},
			"notanobject": 3
		}`))
		require.NoError(t, err)

		sensors := doc.(flukso.SensorTable)
		assert.Len(t, sensors, 1)
		assert.Contains(t, sensors, "ok")
	})

	for _, tt := range []struct {
		name    string
		doc     flukso.DocumentType
		payload string
		err     error
	}{
		{name: "Not JSON", doc: flukso.DocumentFlx, payload: `{"0":`, err: flukso.ErrMalformedPayload},
		{name: "Array", doc: flukso.DocumentKube, payload: `[1,2]`, err: flukso.ErrMalformedPayload},
		{name: "Null", doc: flukso.DocumentSensor, payload: `null`, err: flukso.ErrMalformedPayload},
		{name: "Empty", doc: flukso.DocumentSensor, payload: ``, err: flukso.ErrMalformedPayload},
		{name: "Unknown", doc: flukso.DocumentType("port"), payload: `{}`, err: flukso.ErrUnknownDocument},
	} {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := flukso.DecodeDocument(tt.doc, []byte(tt.payload))
			require.ErrorIs(t, err, tt.err)
			assert.Nil(t, doc)
		})
	}
}

func TestParseConfigTopic(t *testing.T) {
	for _, tt := range []struct {
		topic  string
		device string
		doc    flukso.DocumentType
		err    error
	}{
		{topic: "/device/abc/config/flx", device: "abc", doc: flukso.DocumentFlx},
		{topic: "/device/abc/config/kube", device: "abc", doc: flukso.DocumentKube},
		{topic: "/device/abc/config/sensor", device: "abc", doc: flukso.DocumentSensor},
		{topic: "/device/abc/config/wifi", device: "abc", doc: "wifi", err: flukso.ErrUnknownDocument},
		{topic: "device/abc/config/flx", err: flukso.ErrUnexpectedTopic},
		{topic: "/device//config/flx", err: flukso.ErrUnexpectedTopic},
		{topic: "/sensor/abc/gauge", err: flukso.ErrUnexpectedTopic},
		{topic: "/device/abc/config/flx/extra", err: flukso.ErrUnexpectedTopic},
	} {
		t.Run(tt.topic, func(t *testing.T) {
			device, doc, err := flukso.ParseConfigTopic(tt.topic)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tt.device, device)
			assert.Equal(t, tt.doc, doc)
		})
	}
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "/device/abc/config/kube", flukso.ConfigTopic("abc", flukso.DocumentKube))
	assert.Equal(t, "/sensor/s1/gauge", flukso.SensorTopic("s1", flukso.GaugeDataType))
}
