package modes

import "testing"

func TestFlavorFromAutopilot(t *testing.T) {
	cases := []struct {
		autopilot uint8
		want      Flavor
	}{
		{AutopilotArduPilotMega, FlavorArduPilot},
		{AutopilotPX4, FlavorPX4},
		{AutopilotGeneric, FlavorUnknown},
		{AutopilotInvalid, FlavorUnknown},
	}
	for _, c := range cases {
		if got := FlavorFromAutopilot(c.autopilot); got != c.want {
			t.Errorf("FlavorFromAutopilot(%d) = %v, want %v", c.autopilot, got, c.want)
		}
	}
}

func TestArmedChecksSafetyBit(t *testing.T) {
	if Armed(0) {
		t.Error("base_mode 0 should not be armed")
	}
	if !Armed(modeFlagSafetyArmed) {
		t.Error("base_mode with safety-armed bit should be armed")
	}
	if !Armed(modeFlagSafetyArmed | 1) {
		t.Error("safety-armed bit combined with other flags should still be armed")
	}
}

func TestDecodeArduPilotKnownAndUnknown(t *testing.T) {
	const copterType = 2 // quadrotor
	if got := DecodeArduPilot(copterType, 4); got != "GUIDED" {
		t.Errorf("DecodeArduPilot(copter, 4) = %q, want GUIDED", got)
	}
	if got := DecodeArduPilot(copterType, 9999); got != "MODE_9999" {
		t.Errorf("DecodeArduPilot(copter, 9999) = %q, want MODE_9999", got)
	}
}

func TestEncodeArduPilotRoundTrips(t *testing.T) {
	const copterType = 2
	id, ok := EncodeArduPilot(copterType, "RTL")
	if !ok {
		t.Fatal("expected RTL to encode")
	}
	if got := DecodeArduPilot(copterType, id); got != "RTL" {
		t.Errorf("round trip mismatch: got %q", got)
	}
	if _, ok := EncodeArduPilot(copterType, "NOT_A_MODE"); ok {
		t.Error("expected unknown mode name to fail encoding")
	}
}

func TestDecodePX4PacksMainAndSub(t *testing.T) {
	// main=4 (auto), sub=4 (mission)
	customMode := uint32(4)<<16 | uint32(4)<<24
	if got := DecodePX4(customMode); got != "AUTO_MISSION" {
		t.Errorf("DecodePX4 = %q, want AUTO_MISSION", got)
	}
}

func TestEncodePX4RoundTrips(t *testing.T) {
	custom, ok := EncodePX4("AUTO_RTL")
	if !ok {
		t.Fatal("expected AUTO_RTL to encode")
	}
	if got := DecodePX4(custom); got != "AUTO_RTL" {
		t.Errorf("round trip mismatch: got %q", got)
	}
}

func TestDecodePicksTableByFlavor(t *testing.T) {
	const copterType = 2
	if got := Decode(FlavorArduPilot, copterType, 6); got != "RTL" {
		t.Errorf("Decode(ardupilot) = %q, want RTL", got)
	}
	custom, _ := EncodePX4("POSCTL")
	if got := Decode(FlavorPX4, copterType, custom); got != "POSCTL" {
		t.Errorf("Decode(px4) = %q, want POSCTL", got)
	}
}
