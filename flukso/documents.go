package flukso

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/nlowe/flukso-hass/log"
)

// DocumentType names one of the configuration documents a Flukso unit publishes.
type DocumentType string

const (
	// DocumentFlx maps physical port indices to names.
	DocumentFlx DocumentType = "flx"
	// DocumentKube maps kube peripheral ids to names.
	DocumentKube DocumentType = "kube"
	// DocumentSensor maps sensor ids to their definitions.
	DocumentSensor DocumentType = "sensor"
)

// ClassKube is the sensor class of channels reported by a kube peripheral rather than a physical port.
const ClassKube = "kube"

// Document is a decoded configuration document.
type Document interface {
	DocType() DocumentType
}

// PortNames is the decoded flx document: port index to name. A port without a name maps to the empty string.
type PortNames map[string]string

func (PortNames) DocType() DocumentType { return DocumentFlx }

// Name returns the name of the given port, or the empty string if the port is unknown or unnamed.
func (p PortNames) Name(port int) string {
	return p[strconv.Itoa(port)]
}

// KubeNames is the decoded kube document: peripheral id to name.
type KubeNames map[string]string

func (KubeNames) DocType() DocumentType { return DocumentKube }

// Name returns the name of the given kube, or the empty string if the kube is unknown or unnamed.
func (k KubeNames) Name(kid string) string {
	return k[kid]
}

// SensorTable is the decoded sensor document keyed by sensor id.
type SensorTable map[string]SensorDefinition

func (SensorTable) DocType() DocumentType { return DocumentSensor }

// Flag is a boolean-like field that may be absent. Flukso encodes these as 0/1.
type Flag uint8

const (
	FlagAbsent Flag = iota
	FlagOff
	FlagOn
)

func (f Flag) String() string {
	switch f {
	case FlagOff:
		return "0"
	case FlagOn:
		return "1"
	default:
		return "absent"
	}
}

// SensorDefinition is one entry of the sensor document, validated at ingestion.
type SensorDefinition struct {
	ID     string
	Enable Flag
	Tmpo   Flag

	// Class is "kube" for kube channels. Anything else is attached to a physical port.
	Class string
	// KubeID is set when Class is ClassKube.
	KubeID string
	// Ports lists the physical ports of the channel. Only the first one is used for naming.
	Ports []int

	Type     string
	Subtype  string
	DataType string
}

// IsKube reports whether the sensor belongs to a kube peripheral.
func (d SensorDefinition) IsKube() bool {
	return d.Class == ClassKube
}

func (d SensorDefinition) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", d.ID),
		slog.String("class", d.Class),
		slog.String("type", d.Type),
		slog.String("subtype", d.Subtype),
		slog.String("data_type", d.DataType),
	)
}

type rawName struct {
	Name any `json:"name"`
}

type rawSensor struct {
	ID       any   `json:"id"`
	Enable   any   `json:"enable"`
	Tmpo     any   `json:"tmpo"`
	Class    any   `json:"class"`
	Kid      any   `json:"kid"`
	Port     []any `json:"port"`
	Type     any   `json:"type"`
	Subtype  any   `json:"subtype"`
	DataType any   `json:"data_type"`
}

var documentLog = log.ForComponent("flukso.documents")

// DecodeDocument decodes payload as the given document type. Payloads that are not a JSON object fail with
// ErrMalformedPayload. Individual sensor entries that fail validation are dropped and logged without failing the
// document.
func DecodeDocument(doc DocumentType, payload []byte) (Document, error) {
	var (
		d   Document
		err error
	)

	switch doc {
	case DocumentFlx:
		d, err = DecodePortNames(payload)
	case DocumentKube:
		d, err = DecodeKubeNames(payload)
	case DocumentSensor:
		d, err = DecodeSensorTable(payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDocument, doc)
	}

	if err != nil {
		return nil, err
	}

	return d, nil
}

func decodeObject(payload []byte) (map[string]jsontext.Value, error) {
	var m map[string]jsontext.Value
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	if m == nil {
		return nil, fmt.Errorf("%w: expected a json object", ErrMalformedPayload)
	}

	return m, nil
}

func decodeNames(payload []byte) (map[string]string, error) {
	m, err := decodeObject(payload)
	if err != nil {
		return nil, err
	}

	result := make(map[string]string, len(m))
	for k, v := range m {
		var entry rawName
		if err := json.Unmarshal(v, &entry); err != nil {
			// Entries without a usable name still exist; the name falls back at classification time.
			result[k] = ""
			continue
		}

		name, _ := entry.Name.(string)
		result[k] = name
	}

	return result, nil
}

// DecodePortNames decodes a flx document.
func DecodePortNames(payload []byte) (PortNames, error) {
	names, err := decodeNames(payload)
	return PortNames(names), err
}

// DecodeKubeNames decodes a kube document.
func DecodeKubeNames(payload []byte) (KubeNames, error) {
	names, err := decodeNames(payload)
	return KubeNames(names), err
}

// DecodeSensorTable decodes a sensor document. An entry without an id takes its key as id.
func DecodeSensorTable(payload []byte) (SensorTable, error) {
	m, err := decodeObject(payload)
	if err != nil {
		return nil, err
	}

	result := make(SensorTable, len(m))
	for k, v := range m {
		def, err := decodeSensor(k, v)
		if err != nil {
			documentLog.With(log.Sensor(k), log.Error(err)).Warn("Dropping invalid sensor definition")
			continue
		}

		result[def.ID] = def
	}

	return result, nil
}

func decodeSensor(key string, v jsontext.Value) (SensorDefinition, error) {
	var raw rawSensor
	if err := json.Unmarshal(v, &raw); err != nil {
		return SensorDefinition{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	def := SensorDefinition{
		Enable: parseFlag(raw.Enable),
		Tmpo:   parseFlag(raw.Tmpo),
	}

	var ok bool
	if def.ID, ok = scalar(raw.ID); !ok {
		return def, fmt.Errorf("%w: id must be a string", ErrMalformedPayload)
	}

	if def.ID == "" {
		def.ID = key
	}

	for _, f := range []struct {
		name string
		src  any
		dst  *string
	}{
		{"class", raw.Class, &def.Class},
		{"type", raw.Type, &def.Type},
		{"subtype", raw.Subtype, &def.Subtype},
		{"data_type", raw.DataType, &def.DataType},
	} {
		if *f.dst, ok = scalar(f.src); !ok {
			return def, fmt.Errorf("%w: %s must be a string", ErrMalformedPayload, f.name)
		}
	}

	for _, p := range raw.Port {
		port, ok := parsePort(p)
		if !ok {
			return def, fmt.Errorf("%w: invalid port %v", ErrMalformedPayload, p)
		}

		def.Ports = append(def.Ports, port)
	}

	if def.IsKube() {
		if def.KubeID, ok = scalar(raw.Kid); !ok || def.KubeID == "" {
			return def, fmt.Errorf("%w: kube sensor without kid", ErrMalformedPayload)
		}
	}

	return def, nil
}

// scalar converts an optional string or number to a string. Absent values convert to the empty string.
func scalar(v any) (string, bool) {
	switch v := v.(type) {
	case nil:
		return "", true
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}

func parseFlag(v any) Flag {
	switch v := v.(type) {
	case nil:
		return FlagAbsent
	case bool:
		if v {
			return FlagOn
		}
		return FlagOff
	case float64:
		if v == 0 {
			return FlagOff
		}
		return FlagOn
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "", "0", "false", "off", "no":
			return FlagOff
		default:
			return FlagOn
		}
	default:
		return FlagOn
	}
}

func parsePort(v any) (int, bool) {
	switch v := v.(type) {
	case float64:
		if v != math.Trunc(v) || v < 0 {
			return 0, false
		}
		return int(v), true
	case string:
		p, err := strconv.Atoi(v)
		return p, err == nil && p >= 0
	default:
		return 0, false
	}
}
