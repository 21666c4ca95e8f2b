package registry

import (
	"testing"

	"github.com/mavgcs/gcs-core/internal/logging"
	"github.com/mavgcs/gcs-core/internal/modes"
)

func newTestRegistry() *Registry {
	return New(logging.New("[test] "), nil)
}

func TestAddVehicleFirstBecomesActive(t *testing.T) {
	r := newTestRegistry()
	v := r.AddVehicle("linkA", 1, modes.FlavorArduPilot, 2)

	if v.ID != "1" {
		t.Errorf("ID = %q, want 1", v.ID)
	}
	active, ok := r.Active()
	if !ok || active.ID != "1" {
		t.Errorf("Active() = %+v, ok=%v, want 1", active, ok)
	}
}

func TestAddVehicleCollisionRenamesBothVehicles(t *testing.T) {
	r := newTestRegistry()
	first := r.AddVehicle("linkA", 1, modes.FlavorArduPilot, 2)
	if first.ID != "1" {
		t.Fatalf("first.ID = %q, want 1", first.ID)
	}

	second := r.AddVehicle("linkB", 1, modes.FlavorArduPilot, 2)

	if first.ID != "linkAs1" {
		t.Errorf("existing vehicle ID after collision = %q, want linkAs1", first.ID)
	}
	if second.ID != "linkBs1" {
		t.Errorf("new vehicle ID after collision = %q, want linkBs1", second.ID)
	}

	if _, ok := r.Vehicle("1"); ok {
		t.Error("bare 1 id should no longer be registered after collision rename")
	}
	if v, ok := r.Vehicle("linkAs1"); !ok || v != first {
		t.Errorf("linkAs1 should resolve to the renamed original vehicle, got %+v ok=%v", v, ok)
	}
	if v, ok := r.Vehicle("linkBs1"); !ok || v != second {
		t.Errorf("linkBs1 should resolve to the new vehicle, got %+v ok=%v", v, ok)
	}
}

func TestAddVehicleCollisionUpdatesActiveReference(t *testing.T) {
	r := newTestRegistry()
	first := r.AddVehicle("linkA", 1, modes.FlavorArduPilot, 2)
	r.AddVehicle("linkB", 1, modes.FlavorArduPilot, 2)

	active, ok := r.Active()
	if !ok {
		t.Fatal("expected an active vehicle")
	}
	if active.ID != "linkAs1" || active != first {
		t.Errorf("Active() after collision rename = %+v, want the renamed original vehicle linkAs1", active)
	}
}

func TestRemoveVehiclePicksNewActive(t *testing.T) {
	r := newTestRegistry()
	r.AddVehicle("linkA", 1, modes.FlavorArduPilot, 2)
	second := r.AddVehicle("linkB", 2, modes.FlavorArduPilot, 2)

	r.RemoveVehicle("1")

	active, ok := r.Active()
	if !ok || active != second {
		t.Errorf("Active() after removing the active vehicle = %+v ok=%v, want %+v", active, ok, second)
	}
}
