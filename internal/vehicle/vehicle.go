// Package vehicle holds the per-autopilot state a Router updates and a
// command executor, mission engine, and broadcaster read: telemetry
// snapshot, parameter table, status-text ring, camera/gimbal inventory,
// and the bounded mission-protocol inbox.
package vehicle

import (
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3"

	"github.com/mavgcs/gcs-core/internal/modes"
	"github.com/mavgcs/gcs-core/internal/profile"
)

// missionInboxCapacity bounds the SPSC inbox the Router writes into and the
// Mission Protocol Engine drains; a full inbox drops the oldest frame
// rather than blocking the Router.
const missionInboxCapacity = 64

// statusTextCapacity is the ring size for status-text history.
const statusTextCapacity = 100

// statusTextDedupWindow is the duplicate-suppression window (§4.2).
const statusTextDedupWindow = 1 * time.Second

// Telemetry is the published snapshot of a vehicle's live state. Field
// names match the wire semantics described in §3: angles in radians,
// coordinates in degrees, altitudes in meters.
type Telemetry struct {
	Roll, Pitch, Yaw          float64
	RollSpeed, PitchSpeed, YawSpeed float64
	Latitude, Longitude       float64
	AltitudeRelative          float64
	AltitudeMSL               float64
	Heading                   float64
	Airspeed, Groundspeed     float64
	ClimbRate                 float64
	BatteryVoltage            float64
	BatteryCurrent            float64
	BatteryRemainingPct       float64
	GPSFixType                uint8
	SatelliteCount            uint8
	HDOP                      float64
	Armed                     bool
	Mode                      string
	SystemStatus              uint8
	MissionCurrentSeq         uint16
	LastHeartbeat             time.Time
}

// Param is one entry in the parameter table (§3).
type Param struct {
	Value float64
	Type  uint8
	Index int16
}

// StatusTextEntry is one ring entry.
type StatusTextEntry struct {
	Severity uint8
	Text     string
	Time     time.Time
}

// CameraInfo / GimbalInfo are populated from CAMERA_INFORMATION /
// GIMBAL_DEVICE_INFORMATION, keyed by source component ID on the Vehicle.
type CameraInfo struct {
	ComponentID  uint8
	VendorName   string
	ModelName    string
	FirmwareVer  uint32
	LastUpdate   time.Time
}

type GimbalInfo struct {
	ComponentID uint8
	VendorName  string
	ModelName   string
	LastUpdate  time.Time
}

// colorCycle assigns a display color to each new Vehicle in turn.
var colorCycle = []string{"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231", "#911eb4", "#46f0f0", "#f032e6"}

// Vehicle is one autopilot endpoint on a Link.
type Vehicle struct {
	ID            string // registry-scoped id, may be renamed on collision (§4.6)
	LinkID        string
	TargetSystem  uint8 // immutable
	TargetComponent uint8 // immutable, conventionally 1
	AutopilotFlavor modes.Flavor
	MAVType       uint8
	Profile       profile.Profile
	Color         string
	CreatedAt     time.Time

	telMu     sync.RWMutex
	telemetry Telemetry
	generation uint64 // monotonic, bumped on every telemetry write

	paramMu sync.RWMutex
	params  map[string]*Param
	paramsTotal uint16

	auxMu    sync.Mutex
	statusText []StatusTextEntry
	cameras    map[uint8]*CameraInfo
	gimbals    map[uint8]*GimbalInfo

	MissionInbox chan *gomavlib.EventFrame
}

// New creates a Vehicle in its initial (never-updated) state.
func New(id, linkID string, targetSystem uint8, flavor modes.Flavor, mavType uint8, colorIndex int) *Vehicle {
	return &Vehicle{
		ID:              id,
		LinkID:          linkID,
		TargetSystem:    targetSystem,
		TargetComponent: 1,
		AutopilotFlavor: flavor,
		MAVType:         mavType,
		Profile:         profile.Lookup(mavType),
		Color:           colorCycle[colorIndex%len(colorCycle)],
		CreatedAt:       time.Now(),
		params:          make(map[string]*Param),
		cameras:         make(map[uint8]*CameraInfo),
		gimbals:         make(map[uint8]*GimbalInfo),
		MissionInbox:    make(chan *gomavlib.EventFrame, missionInboxCapacity),
	}
}

// Telemetry returns a consistent copy of the current snapshot.
func (v *Vehicle) Telemetry() Telemetry {
	v.telMu.RLock()
	defer v.telMu.RUnlock()
	return v.telemetry
}

// Generation returns the current telemetry generation counter.
func (v *Vehicle) Generation() uint64 {
	v.telMu.RLock()
	defer v.telMu.RUnlock()
	return v.generation
}

// UpdateTelemetry applies fn to the snapshot under the telemetry lock and
// bumps the generation counter. The Router uses this for every telemetry
// message it decodes.
func (v *Vehicle) UpdateTelemetry(fn func(*Telemetry)) {
	v.telMu.Lock()
	defer v.telMu.Unlock()
	fn(&v.telemetry)
	v.generation++
}

// SetParam inserts or updates a parameter entry.
func (v *Vehicle) SetParam(id string, p Param, total uint16) {
	v.paramMu.Lock()
	defer v.paramMu.Unlock()
	v.params[id] = &p
	v.paramsTotal = total
}

// Param looks up one parameter by id.
func (v *Vehicle) Param(id string) (Param, bool) {
	v.paramMu.RLock()
	defer v.paramMu.RUnlock()
	p, ok := v.params[id]
	if !ok {
		return Param{}, false
	}
	return *p, true
}

// Params returns a snapshot copy of the whole table plus the
// vehicle-announced total parameter count.
func (v *Vehicle) Params() (map[string]Param, uint16) {
	v.paramMu.RLock()
	defer v.paramMu.RUnlock()
	out := make(map[string]Param, len(v.params))
	for k, p := range v.params {
		out[k] = *p
	}
	return out, v.paramsTotal
}

// PushStatusText appends a status-text entry, applying the 1-second
// duplicate-suppression rule (§4.2) and the 100-entry ring cap. Returns
// false if the entry was suppressed as a duplicate.
func (v *Vehicle) PushStatusText(severity uint8, text string) bool {
	v.auxMu.Lock()
	defer v.auxMu.Unlock()

	now := time.Now()
	for i := len(v.statusText) - 1; i >= 0; i-- {
		prev := v.statusText[i]
		if now.Sub(prev.Time) > statusTextDedupWindow {
			break
		}
		if prev.Severity == severity && prev.Text == text {
			return false
		}
	}

	v.statusText = append(v.statusText, StatusTextEntry{Severity: severity, Text: text, Time: now})
	if len(v.statusText) > statusTextCapacity {
		v.statusText = v.statusText[len(v.statusText)-statusTextCapacity:]
	}
	return true
}

// DrainStatusText returns and clears all buffered status-text entries.
func (v *Vehicle) DrainStatusText() []StatusTextEntry {
	v.auxMu.Lock()
	defer v.auxMu.Unlock()
	out := v.statusText
	v.statusText = nil
	return out
}

// PeekStatusText reports whether there is any status-text pending without
// draining it, used by the broadcaster's skip check (§4.7 step 2).
func (v *Vehicle) PeekStatusText() bool {
	v.auxMu.Lock()
	defer v.auxMu.Unlock()
	return len(v.statusText) > 0
}

func (v *Vehicle) SetCamera(info *CameraInfo) {
	v.auxMu.Lock()
	defer v.auxMu.Unlock()
	v.cameras[info.ComponentID] = info
}

func (v *Vehicle) SetGimbal(info *GimbalInfo) {
	v.auxMu.Lock()
	defer v.auxMu.Unlock()
	v.gimbals[info.ComponentID] = info
}

func (v *Vehicle) Cameras() map[uint8]*CameraInfo {
	v.auxMu.Lock()
	defer v.auxMu.Unlock()
	out := make(map[uint8]*CameraInfo, len(v.cameras))
	for k, c := range v.cameras {
		cc := *c
		out[k] = &cc
	}
	return out
}

func (v *Vehicle) Gimbals() map[uint8]*GimbalInfo {
	v.auxMu.Lock()
	defer v.auxMu.Unlock()
	out := make(map[uint8]*GimbalInfo, len(v.gimbals))
	for k, g := range v.gimbals {
		gg := *g
		out[k] = &gg
	}
	return out
}

// OfferMission pushes a mission-protocol frame into the inbox. If the
// inbox is saturated the oldest frame is dropped to make room, since the
// Router must never block on a stalled mission engine.
func (v *Vehicle) OfferMission(frm *gomavlib.EventFrame) {
	select {
	case v.MissionInbox <- frm:
	default:
		select {
		case <-v.MissionInbox:
		default:
		}
		select {
		case v.MissionInbox <- frm:
		default:
		}
	}
}
