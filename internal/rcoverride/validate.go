// Package rcoverride validates and translates RC-override channel values
// (§4.5). This is a safety-critical boundary: values must never be passed
// through from an upstream request without going through Validate first.
package rcoverride

import (
	"math"
	"strconv"
)

// NumChannels is the fixed RC_CHANNELS_OVERRIDE channel count.
const NumChannels = 8

const (
	minPWM = 1000
	maxPWM = 2000
	centerPWM = 1500
	scale     = 1000
	spread    = 500
)

// Validate applies the five-step rule from §4.5 to an arbitrary list of
// raw values (already-parsed numbers; a non-numeric upstream value is the
// caller's responsibility to coerce to 0 before calling, or pass it
// through ValidateAny which accepts interface{} elements).
func Validate(raw []int) [NumChannels]int {
	var out [NumChannels]int
	for i := 0; i < NumChannels; i++ {
		v := 0
		if i < len(raw) {
			v = raw[i]
		}
		out[i] = clamp(v)
	}
	return out
}

// ValidateAny accepts a heterogeneous slice (as would arrive from a JSON
// request body) and applies coercion before clamping: anything that is
// not an int, float64, or numeric string becomes 0.
func ValidateAny(raw []any) [NumChannels]int {
	var out [NumChannels]int
	for i := 0; i < NumChannels; i++ {
		out[i] = clamp(coerce(elementAt(raw, i)))
	}
	return out
}

func elementAt(raw []any, i int) any {
	if i < len(raw) {
		return raw[i]
	}
	return nil
}

func coerce(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float32:
		return int(n)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
		return 0
	default:
		return 0
	}
}

// clamp implements steps 3-4: zero stays zero, everything else clamps to
// [1000, 2000].
func clamp(v int) int {
	if v == 0 {
		return 0
	}
	if v < minPWM {
		return minPWM
	}
	if v > maxPWM {
		return maxPWM
	}
	return v
}

// ManualControlAxes is the PX4 MANUAL_CONTROL translation of eight
// validated RC channels (§4.5).
type ManualControlAxes struct {
	X, Y, Z, R int16
}

// pwmToSigned maps a PWM value centered at 1500 to a signed ±1000 axis.
func pwmToSigned(pwm int) int {
	return int(math.Round(float64(pwm-centerPWM) / spread * scale))
}

// ToManualControl translates eight validated channels into PX4's
// MANUAL_CONTROL axes: roll (y) <- ch[0], pitch (x) <- ch[1], throttle (z)
// <- ch[2] clamped to [0,1000], yaw (r) <- ch[3].
func ToManualControl(channels [NumChannels]int) ManualControlAxes {
	z := channels[2] - 1000
	if z < 0 {
		z = 0
	}
	if z > 1000 {
		z = 1000
	}
	return ManualControlAxes{
		Y: int16(pwmToSigned(channels[0])),
		X: int16(pwmToSigned(channels[1])),
		Z: int16(z),
		R: int16(pwmToSigned(channels[3])),
	}
}
