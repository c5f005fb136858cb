package flukso

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nlowe/flukso-hass/hass"
)

// Rendering selects how a live payload is turned into entity state.
type Rendering uint8

const (
	// RenderRounded renders the value rounded to Descriptor.Precision decimals.
	RenderRounded Rendering = iota
	// RenderBatteryPercent renders a battery voltage as a percentage of 3.3V.
	RenderBatteryPercent
	// RenderProblem renders ON when the value is an integer greater than zero.
	RenderProblem
	// RenderPresence renders ON for any message. The entity turns itself off after a period of silence.
	RenderPresence
)

func (r Rendering) String() string {
	switch r {
	case RenderRounded:
		return "rounded"
	case RenderBatteryPercent:
		return "battery_percent"
	case RenderProblem:
		return "problem"
	case RenderPresence:
		return "presence"
	default:
		return fmt.Sprintf("Rendering(%d)", uint8(r))
	}
}

// batteryReference is the full-scale battery voltage of a kube.
const batteryReference = 3.3

func renderingFor(d Descriptor) (Rendering, int) {
	if d.Kind == RenderBinary {
		if d.DeviceClass == hass.DeviceClassProblem {
			return RenderProblem, 0
		}

		return RenderPresence, 0
	}

	switch d.Type {
	case TypeError:
		return RenderProblem, 0
	case TypeTemperature:
		return RenderRounded, 1
	case TypeBattery:
		return RenderBatteryPercent, 2
	default:
		return RenderRounded, 0
	}
}

// Field returns the value field of a live payload. Flukso publishes records like `[1450000000,1234,"W"]`; the value is
// the second comma separated field.
func Field(payload []byte) (string, error) {
	fields := strings.Split(string(payload), ",")
	if len(fields) < 2 {
		return "", fmt.Errorf("%w: expected at least two fields in %q", ErrMalformedPayload, payload)
	}

	return strings.Trim(fields[1], " \t\r\n[]\""), nil
}

// Numeric parses the value field of a live payload as a float.
func Numeric(payload []byte) (float64, error) {
	field, err := Field(payload)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	return v, nil
}

// round rounds half to even at the given number of decimals, the way Home Assistant templates round.
func round(v float64, precision int) float64 {
	scale := math.Pow10(precision)
	v = math.RoundToEven(v*scale) / scale
	if v == 0 {
		// Avoid rendering negative zero as "-0".
		return 0
	}

	return v
}

// Render converts a live payload into the state published for this sensor.
func (d Descriptor) Render(payload []byte) (string, error) {
	switch d.Rendering {
	case RenderPresence:
		return string(hass.PowerStateOn), nil
	case RenderProblem:
		// Anything but a positive counter clears the problem, including a payload without a counter.
		field, err := Field(payload)
		if err != nil {
			return string(hass.PowerStateOff), nil
		}

		return string(hass.PowerStateOf(problemCount(field) > 0)), nil
	case RenderBatteryPercent:
		v, err := Numeric(payload)
		if err != nil {
			return "", err
		}

		return strconv.FormatFloat(round(round(v, 1)/batteryReference*100, 2), 'f', 2, 64), nil
	default:
		v, err := Numeric(payload)
		if err != nil {
			return "", err
		}

		return strconv.FormatFloat(round(v, d.Precision), 'f', d.Precision, 64), nil
	}
}

// problemCount parses an error counter. Fractions are truncated; anything unparseable counts as zero.
func problemCount(field string) int64 {
	if n, err := strconv.ParseInt(field, 10, 64); err == nil {
		return n
	}

	if f, err := strconv.ParseFloat(field, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int64(f)
	}

	return 0
}
