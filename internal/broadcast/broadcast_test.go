package broadcast

import "testing"

func TestSendIntervalBounds(t *testing.T) {
	cases := []struct {
		name       string
		armed      bool
		groundspeed float64
		want       interface{}
	}{
		{"armed and moving", true, 1.5, intervalArmedMoving},
		{"armed and stationary", true, 0.1, intervalArmedIdle},
		{"armed at moving threshold exactly", true, movingThresholdMS, intervalArmedIdle},
		{"disarmed and fast", false, 20, intervalDisarmed},
		{"disarmed and still", false, 0, intervalDisarmed},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := sendInterval(c.armed, c.groundspeed); got != c.want {
				t.Errorf("sendInterval(%v, %v) = %v, want %v", c.armed, c.groundspeed, got, c.want)
			}
		})
	}
}

func TestRoundNPrecision(t *testing.T) {
	if got := roundN(1.23456789, 4); got != 1.2346 {
		t.Errorf("roundN = %v, want 1.2346", got)
	}
	if got := roundN(100.123456, 7); got != 100.123456 {
		t.Errorf("roundN = %v, want 100.123456", got)
	}
}

func TestDiffOnlyIncludesChangedKeys(t *testing.T) {
	prev := map[string]any{"a": 1.0, "b": "idle", "c": true}
	next := map[string]any{"a": 1.0, "b": "armed", "c": true}

	d := diff(prev, next)
	if len(d) != 1 {
		t.Fatalf("diff len = %d, want 1; got %v", len(d), d)
	}
	if d["b"] != "armed" {
		t.Errorf("diff[b] = %v, want armed", d["b"])
	}
}

func TestDiffIncludesNewKeysNotInPrev(t *testing.T) {
	prev := map[string]any{}
	next := map[string]any{"mode": "GUIDED"}

	d := diff(prev, next)
	if d["mode"] != "GUIDED" {
		t.Errorf("diff should include keys absent from prev, got %v", d)
	}
}

func TestDiffEmptyWhenIdentical(t *testing.T) {
	m := map[string]any{"x": 1, "y": "same"}
	d := diff(m, m)
	if len(d) != 0 {
		t.Errorf("diff of identical maps should be empty, got %v", d)
	}
}
