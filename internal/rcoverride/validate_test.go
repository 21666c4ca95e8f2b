package rcoverride

import (
	"math"
	"testing"
)

func TestClampBoundaries(t *testing.T) {
	cases := []struct {
		name string
		in   int
		want int
	}{
		{"zero passes through", 0, 0},
		{"below floor clamps up", 500, minPWM},
		{"at floor stays", 1000, 1000},
		{"mid range stays", 1500, 1500},
		{"at ceiling stays", 2000, 2000},
		{"above ceiling clamps down", 3000, maxPWM},
		{"negative clamps to floor", -100, minPWM},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := clamp(c.in); got != c.want {
				t.Errorf("clamp(%d) = %d, want %d", c.in, got, c.want)
			}
		})
	}
}

func TestValidatePadsShortInput(t *testing.T) {
	out := Validate([]int{1600, 1400})
	want := [NumChannels]int{1600, 1400, 0, 0, 0, 0, 0, 0}
	if out != want {
		t.Errorf("Validate = %v, want %v", out, want)
	}
}

func TestValidateTruncatesLongInput(t *testing.T) {
	raw := make([]int, NumChannels+5)
	for i := range raw {
		raw[i] = 1500
	}
	out := Validate(raw)
	for i, v := range out {
		if v != 1500 {
			t.Errorf("out[%d] = %d, want 1500", i, v)
		}
	}
}

func TestValidateAnyCoercesTypes(t *testing.T) {
	raw := []any{1600, float64(1400.9), "not a number", nil, math.NaN()}
	out := ValidateAny(raw)
	if out[0] != 1600 {
		t.Errorf("out[0] = %d, want 1600", out[0])
	}
	if out[1] != 1400 {
		t.Errorf("out[1] = %d, want 1400 (truncated)", out[1])
	}
	if out[2] != 0 {
		t.Errorf("out[2] = %d, want 0 for non-numeric string", out[2])
	}
	if out[3] != 0 {
		t.Errorf("out[3] = %d, want 0 for nil", out[3])
	}
	if out[4] != 0 {
		t.Errorf("out[4] = %d, want 0 for NaN", out[4])
	}
}

func TestToManualControlCentersAndScales(t *testing.T) {
	channels := [NumChannels]int{1500, 1500, 1500, 1500, 0, 0, 0, 0}
	axes := ToManualControl(channels)
	if axes.Y != 0 || axes.X != 0 || axes.R != 0 {
		t.Errorf("centered channels should map to zero axes, got %+v", axes)
	}
	if axes.Z != 500 {
		t.Errorf("throttle at 1500 should map to 500, got %d", axes.Z)
	}

	full := [NumChannels]int{2000, 1000, 2000, 1000, 0, 0, 0, 0}
	axesFull := ToManualControl(full)
	if axesFull.Y != 1000 {
		t.Errorf("roll at max should be 1000, got %d", axesFull.Y)
	}
	if axesFull.X != -1000 {
		t.Errorf("pitch at min should be -1000, got %d", axesFull.X)
	}
	if axesFull.Z != 1000 {
		t.Errorf("throttle at max should clamp to 1000, got %d", axesFull.Z)
	}
	if axesFull.R != -1000 {
		t.Errorf("yaw at min should be -1000, got %d", axesFull.R)
	}
}

func TestToManualControlThrottleFloor(t *testing.T) {
	channels := [NumChannels]int{1500, 1500, 900, 1500, 0, 0, 0, 0}
	axes := ToManualControl(channels)
	if axes.Z != 0 {
		t.Errorf("throttle below 1000 should clamp to 0, got %d", axes.Z)
	}
}
