// Package registry owns every Link and Vehicle the server currently
// holds, the active-vehicle selection, and the system-ID collision
// renaming rule (§4.6).
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/mavgcs/gcs-core/internal/command"
	"github.com/mavgcs/gcs-core/internal/link"
	"github.com/mavgcs/gcs-core/internal/logging"
	"github.com/mavgcs/gcs-core/internal/metrics"
	"github.com/mavgcs/gcs-core/internal/mission"
	"github.com/mavgcs/gcs-core/internal/modes"
	"github.com/mavgcs/gcs-core/internal/router"
	"github.com/mavgcs/gcs-core/internal/vehicle"
)

// LinkHandle bundles a Link with the per-link router, command queue, and
// executor that serve every Vehicle reachable on it. Mission engines are
// per-Vehicle (each binds one Vehicle's own mission inbox) and are tracked
// separately by the Registry.
type LinkHandle struct {
	ID       string
	Link     *link.Link
	Router   *router.Router
	Queue    *command.Queue
	Executor *command.Executor
}

// Sender builds the func(msg any) error shape both command.Executor and
// mission.Engine use to write outbound MAVLink messages on this link.
func (h *LinkHandle) Sender() func(msg any) error {
	return func(msg any) error {
		mm, ok := msg.(message.Message)
		if !ok {
			return fmt.Errorf("link %s: not a mavlink message: %T", h.ID, msg)
		}
		return h.Link.WriteTo(mm)
	}
}

// MissionEngineFactory builds a mission.Engine bound to one newly-created
// Vehicle; supplied by the caller since it needs the owning Link's send
// function.
type MissionEngineFactory func(v *vehicle.Vehicle) *mission.Engine

// Registry is the single owner of connection state. All mutation goes
// through its methods; callers never hold its lock across a blocking
// call.
type Registry struct {
	log *logging.Logger

	mu       sync.RWMutex
	links    map[string]*LinkHandle
	vehicles map[string]*vehicle.Vehicle      // by registry-scoped id (post-rename)
	missions map[string]*mission.Engine       // by registry-scoped vehicle id
	active   string                           // vehicle id, "" if none
	colorSeq int

	missionFactory MissionEngineFactory
}

func New(log *logging.Logger, missionFactory MissionEngineFactory) *Registry {
	return &Registry{
		log:            log,
		links:          make(map[string]*LinkHandle),
		vehicles:       make(map[string]*vehicle.Vehicle),
		missions:       make(map[string]*mission.Engine),
		missionFactory: missionFactory,
	}
}

// AddLink registers an already-opened link bundle. Callers build the
// bundle (open the link, construct its Router/Queue/Executor) before
// calling this; mission engines are created per Vehicle in AddVehicle.
func (r *Registry) AddLink(h *LinkHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links[h.ID] = h
}

// RemoveLink closes and forgets a link, and every Vehicle that was
// reachable only through it.
func (r *Registry) RemoveLink(linkID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.links[linkID]
	if !ok {
		return
	}
	h.Link.Close()
	delete(r.links, linkID)

	for id, v := range r.vehicles {
		if v.LinkID == linkID {
			delete(r.vehicles, id)
			delete(r.missions, id)
			metrics.Get().VehiclesConnected.Dec()
			if r.active == id {
				r.active = ""
			}
		}
	}
	if r.active == "" {
		r.pickNewActiveLocked()
	}
}

// Link returns a link bundle by id.
func (r *Registry) Link(linkID string) (*LinkHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.links[linkID]
	return h, ok
}

// Links returns every registered link bundle, sorted by ID.
func (r *Registry) Links() []*LinkHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*LinkHandle, 0, len(r.links))
	for _, h := range r.links {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddVehicle registers a newly-discovered vehicle, applying the §4.6
// collision rule: if target_system is already in use by a vehicle on a
// different link, both the existing and the new vehicle are renamed to
// <linkID>s<N> so neither keeps the ambiguous bare <N> id. The first
// vehicle seen becomes active automatically.
func (r *Registry) AddVehicle(linkID string, sysID uint8, flavor modes.Flavor, mavType uint8) *vehicle.Vehicle {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := fmt.Sprintf("%d", sysID)
	if existing, collide := r.vehicles[id]; collide {
		r.renameVehicleLocked(existing, fmt.Sprintf("%ss%d", existing.LinkID, sysID))
		id = fmt.Sprintf("%ss%d", linkID, sysID)
	}

	v := vehicle.New(id, linkID, sysID, flavor, mavType, r.colorSeq)
	r.colorSeq++
	r.vehicles[id] = v

	if h, ok := r.links[linkID]; ok {
		h.Router.BindVehicle(v)
	}
	if r.missionFactory != nil {
		r.missions[id] = r.missionFactory(v)
	}

	if r.active == "" {
		r.active = id
	}
	return v
}

// renameVehicleLocked moves a vehicle already tracked under its old id to
// newID, carrying its mission engine along and updating the active
// selection if it pointed at the old id. Callers must hold r.mu.
func (r *Registry) renameVehicleLocked(v *vehicle.Vehicle, newID string) {
	oldID := v.ID
	if oldID == newID {
		return
	}
	delete(r.vehicles, oldID)
	v.ID = newID
	r.vehicles[newID] = v

	if m, ok := r.missions[oldID]; ok {
		delete(r.missions, oldID)
		r.missions[newID] = m
	}
	if r.active == oldID {
		r.active = newID
	}
}

// RemoveVehicle forgets one vehicle by id.
func (r *Registry) RemoveVehicle(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vehicles[id]
	if !ok {
		return
	}
	if h, ok := r.links[v.LinkID]; ok {
		h.Router.UnbindVehicle(v.TargetSystem)
	}
	delete(r.vehicles, id)
	delete(r.missions, id)
	metrics.Get().VehiclesConnected.Dec()
	if r.active == id {
		r.active = ""
		r.pickNewActiveLocked()
	}
}

// Mission returns the mission engine bound to one vehicle.
func (r *Registry) Mission(vehicleID string) (*mission.Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.missions[vehicleID]
	return m, ok
}

// pickNewActiveLocked assigns any remaining vehicle as active; callers
// must hold r.mu.
func (r *Registry) pickNewActiveLocked() {
	for id := range r.vehicles {
		r.active = id
		return
	}
}

// Vehicle returns one vehicle by id.
func (r *Registry) Vehicle(id string) (*vehicle.Vehicle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vehicles[id]
	return v, ok
}

// Vehicles returns every known vehicle, sorted by id.
func (r *Registry) Vehicles() []*vehicle.Vehicle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*vehicle.Vehicle, 0, len(r.vehicles))
	for _, v := range r.vehicles {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Active returns the currently-selected vehicle, if any.
func (r *Registry) Active() (*vehicle.Vehicle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == "" {
		return nil, false
	}
	v, ok := r.vehicles[r.active]
	return v, ok
}

// SetActive selects a vehicle by id as the active one. Returns false if
// the id is unknown.
func (r *Registry) SetActive(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vehicles[id]; !ok {
		return false
	}
	r.active = id
	return true
}

// AllTelemetry returns every vehicle's current telemetry snapshot keyed
// by id, for the REST "all telemetry" route.
func (r *Registry) AllTelemetry() map[string]vehicle.Telemetry {
	r.mu.RLock()
	vehicles := make([]*vehicle.Vehicle, 0, len(r.vehicles))
	for _, v := range r.vehicles {
		vehicles = append(vehicles, v)
	}
	r.mu.RUnlock()

	out := make(map[string]vehicle.Telemetry, len(vehicles))
	for _, v := range vehicles {
		out[v.ID] = v.Telemetry()
	}
	return out
}
