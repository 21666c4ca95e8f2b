package router

import (
	"math"
	"testing"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
)

func TestSanitizeValueReplacesNaNAndInf(t *testing.T) {
	if got := sanitizeValue(math.NaN()); got != nil {
		t.Errorf("sanitizeValue(NaN) = %v, want nil", got)
	}
	if got := sanitizeValue(math.Inf(1)); got != nil {
		t.Errorf("sanitizeValue(+Inf) = %v, want nil", got)
	}
	if got := sanitizeValue(math.Inf(-1)); got != nil {
		t.Errorf("sanitizeValue(-Inf) = %v, want nil", got)
	}
	if got := sanitizeValue(1.5); got != 1.5 {
		t.Errorf("sanitizeValue(1.5) = %v, want 1.5", got)
	}
}

func TestSanitizeValueRecursesIntoNestedStructures(t *testing.T) {
	nested := map[string]any{"x": math.NaN(), "y": 2.0}
	got := sanitizeValue(nested).(map[string]any)
	if got["x"] != nil {
		t.Errorf("nested map should sanitize NaN, got %v", got["x"])
	}
	if got["y"] != 2.0 {
		t.Errorf("nested map should preserve finite value, got %v", got["y"])
	}

	list := []any{math.Inf(1), 3.0}
	gotList := sanitizeValue(list).([]any)
	if gotList[0] != nil {
		t.Errorf("list should sanitize Inf, got %v", gotList[0])
	}
	if gotList[1] != 3.0 {
		t.Errorf("list should preserve finite value, got %v", gotList[1])
	}
}

func TestSanitizeTruncateCapsTopLevelFields(t *testing.T) {
	m := make(map[string]any, 30)
	for i := 0; i < 30; i++ {
		m[string(rune('a'+i))] = float64(i)
	}
	out := sanitizeTruncate(m, inspectorFieldLimit)
	if len(out) != inspectorFieldLimit {
		t.Errorf("sanitizeTruncate len = %d, want %d", len(out), inspectorFieldLimit)
	}
}

func TestSanitizeTruncateNilIsNil(t *testing.T) {
	if got := sanitizeTruncate(nil, inspectorFieldLimit); got != nil {
		t.Errorf("sanitizeTruncate(nil) = %v, want nil", got)
	}
}

func TestTextFromBytesTrimsAtFirstNUL(t *testing.T) {
	raw := make([]byte, 24)
	copy(raw, "PreArm: Gyro cal")
	got := textFromBytes(raw)
	want := "PreArm: Gyro cal"
	if got != want {
		t.Errorf("textFromBytes = %q, want %q", got, want)
	}
}

func TestTextFromBytesEmpty(t *testing.T) {
	raw := make([]byte, 8)
	if got := textFromBytes(raw); got != "" {
		t.Errorf("textFromBytes(all zero) = %q, want empty", got)
	}
}

func TestStructFieldsFlattensMessageByReflection(t *testing.T) {
	msg := &common.MessageAttitude{
		TimeBootMs: 1234,
		Roll:       0.5,
		Pitch:      -0.25,
		Yaw:        1.0,
	}
	fields := structFields(msg)
	if got := fields["Roll"]; got != float64(0.5) {
		t.Errorf("Roll = %v, want 0.5", got)
	}
	if got := fields["Pitch"]; got != float64(-0.25) {
		t.Errorf("Pitch = %v, want -0.25", got)
	}
	if got := fields["TimeBootMs"]; got != uint64(1234) {
		t.Errorf("TimeBootMs = %v, want 1234", got)
	}
}

func TestUpdateInspectorPopulatesLastData(t *testing.T) {
	r := New(nil, nil)
	msg := &common.MessageAttitude{Roll: 0.5, Pitch: -0.25, Yaw: 1.0}

	r.updateInspector(1, 1, msg)

	stats := r.InspectorSnapshot()
	if len(stats) != 1 {
		t.Fatalf("expected one tracked message type, got %d", len(stats))
	}
	last := stats[0].LastData
	if last == nil {
		t.Fatal("LastData is nil, want populated field map")
	}
	if got := last["Roll"]; got != float64(0.5) {
		t.Errorf("LastData[Roll] = %v, want 0.5", got)
	}
}

func TestTrimParamIDStopsAtNUL(t *testing.T) {
	var raw [16]byte
	copy(raw[:], "BATT_LOW_VOLT")
	got := trimParamID(raw)
	if got != "BATT_LOW_VOLT" {
		t.Errorf("trimParamID = %q, want BATT_LOW_VOLT", got)
	}
}
