// Package router classifies inbound MAVLink frames and updates component
// inventory, inspector statistics, and per-vehicle state (§4.2).
package router

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/mavgcs/gcs-core/internal/logging"
	"github.com/mavgcs/gcs-core/internal/modes"
	"github.com/mavgcs/gcs-core/internal/profile"
	"github.com/mavgcs/gcs-core/internal/vehicle"
)

// missionProtocolIDs are routed to a vehicle's mission inbox and never
// reach the general classification switch.
var missionProtocolIDs = map[uint32]bool{
	common.MAVLINK_MSG_ID_MISSION_REQUEST_INT: true,
	common.MAVLINK_MSG_ID_MISSION_REQUEST:     true,
	common.MAVLINK_MSG_ID_MISSION_ACK:         true,
	common.MAVLINK_MSG_ID_MISSION_COUNT:       true,
	common.MAVLINK_MSG_ID_MISSION_ITEM_INT:    true,
}

// componentKey identifies one addressable unit on a Link.
type componentKey struct {
	sysID, compID uint8
}

// ComponentEntry is one component-inventory record (§3).
type ComponentEntry struct {
	SysID, CompID  uint8
	MAVType        uint8
	TypeName       string
	Category       string // vehicle, peripheral, unknown
	Autopilot      string
	FirstSeen      time.Time
	LastSeen       time.Time
	HeartbeatCount uint64
	IsTarget       bool
}

// inspectorKey identifies one message-type/source tuple tracked by the
// inspector.
type inspectorKey struct {
	msgID         uint32
	sysID, compID uint8
}

const (
	inspectorRateWindow  = 2 * time.Second
	inspectorHistoryCap  = 100
	inspectorFieldLimit  = 20
)

// InspectorStats is one tracked message type's rolling statistics (§4.2).
type InspectorStats struct {
	MsgType  string
	SysID    uint8
	CompID   uint8
	Count    uint64
	LastTime time.Time
	RateHz   float64
	LastData map[string]any
}

type inspectorEntry struct {
	stats   InspectorStats
	history []time.Time
}

// VehicleDiscoveredFunc is invoked the first time a recognized vehicle
// HEARTBEAT arrives on component 1 for a system that has no Vehicle yet.
type VehicleDiscoveredFunc func(sysID uint8, flavor modes.Flavor, mavType uint8)

// Router classifies frames for one Link and dispatches telemetry,
// parameters, status-text, and protocol frames into the owning Vehicles.
type Router struct {
	log *logging.Logger

	vehicles map[uint8]*vehicle.Vehicle // by target_system, supplied by caller

	components map[componentKey]*ComponentEntry
	inspector  map[inspectorKey]*inspectorEntry

	onVehicleDiscovered VehicleDiscoveredFunc

	calibrationResultTexts map[uint8]calResult
}

type calResult struct {
	text     string
	severity uint8
}

// calibrationResults mirrors the original COMMAND_ACK(241) result→text
// synthesis table exactly (§4.2).
var calibrationResults = map[uint8]calResult{
	0: {"Calibration accepted", 6},
	1: {"Calibration temporarily rejected - try again", 4},
	2: {"Calibration denied", 3},
	3: {"Calibration unsupported", 4},
	4: {"Calibration failed", 3},
	5: {"Calibration in progress", 6},
	6: {"Calibration cancelled", 4},
}

func New(log *logging.Logger, onVehicleDiscovered VehicleDiscoveredFunc) *Router {
	return &Router{
		log:                 log,
		vehicles:            make(map[uint8]*vehicle.Vehicle),
		components:          make(map[componentKey]*ComponentEntry),
		inspector:           make(map[inspectorKey]*inspectorEntry),
		onVehicleDiscovered: onVehicleDiscovered,
	}
}

// BindVehicle registers a Vehicle (by target_system) so the router can
// route telemetry and protocol frames to it.
func (r *Router) BindVehicle(v *vehicle.Vehicle) {
	r.vehicles[v.TargetSystem] = v
}

func (r *Router) UnbindVehicle(sysID uint8) {
	delete(r.vehicles, sysID)
}

// Handle processes one inbound frame.
func (r *Router) Handle(frm *gomavlib.EventFrame) {
	sysID, compID := frm.SystemID(), frm.ComponentID()
	msg := frm.Message()

	r.updateInventory(sysID, compID, msg)
	r.updateInspector(sysID, compID, msg)

	if v, ok := r.vehicles[sysID]; ok && missionProtocolIDs[msg.GetID()] {
		v.OfferMission(frm)
		return
	}

	switch m := msg.(type) {
	case *common.MessageParamValue:
		r.handleParamValue(sysID, m)
	case *common.MessageStatustext:
		r.handleStatusText(sysID, m)
	case *common.MessageCommandAck:
		r.handleCommandAck(sysID, m)
	case *common.MessageHeartbeat:
		r.handleHeartbeat(sysID, compID, m)
	case *common.MessageAttitude:
		r.handleAttitude(sysID, m)
	case *common.MessageGlobalPositionInt:
		r.handleGlobalPosition(sysID, m)
	case *common.MessageGpsRawInt:
		r.handleGPSRaw(sysID, m)
	case *common.MessageVfrHud:
		r.handleVfrHud(sysID, m)
	case *common.MessageSysStatus:
		r.handleSysStatus(sysID, m)
	case *common.MessageMissionCurrent:
		r.handleMissionCurrent(sysID, m)
	case *common.MessageCameraInformation:
		r.handleCameraInformation(sysID, compID, m)
	case *common.MessageGimbalDeviceInformation:
		r.handleGimbalInformation(sysID, compID, m)
	}
}

func (r *Router) updateInventory(sysID, compID uint8, msg any) {
	hb, isHeartbeat := msg.(*common.MessageHeartbeat)
	key := componentKey{sysID, compID}
	now := time.Now()

	entry, ok := r.components[key]
	if !ok {
		entry = &ComponentEntry{SysID: sysID, CompID: compID, FirstSeen: now}
		r.components[key] = entry
	}
	entry.LastSeen = now
	if isHeartbeat {
		entry.HeartbeatCount++
		entry.MAVType = uint8(hb.Type)
		entry.TypeName = profile.TypeName(uint8(hb.Type))
		entry.Category = profile.ComponentCategory(uint8(hb.Type))
		entry.Autopilot = modes.FlavorFromAutopilot(uint8(hb.Autopilot)).String()
		entry.IsTarget = compID == 1 && profile.VehicleTypes[uint8(hb.Type)]
	}
}

// Components returns the inventory sorted the way the original does:
// (not is_target, category != vehicle, sys_id, comp_id).
func (r *Router) Components() []ComponentEntry {
	out := make([]ComponentEntry, 0, len(r.components))
	for _, e := range r.components {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.IsTarget != b.IsTarget {
			return a.IsTarget // targets first
		}
		aVehicle := a.Category == "vehicle"
		bVehicle := b.Category == "vehicle"
		if aVehicle != bVehicle {
			return aVehicle
		}
		if a.SysID != b.SysID {
			return a.SysID < b.SysID
		}
		return a.CompID < b.CompID
	})
	return out
}

func (r *Router) updateInspector(sysID, compID uint8, msg any) {
	type hasID interface{ GetID() uint32 }
	m, ok := msg.(hasID)
	if !ok {
		return
	}
	key := inspectorKey{m.GetID(), sysID, compID}
	now := time.Now()

	e, ok := r.inspector[key]
	if !ok {
		e = &inspectorEntry{stats: InspectorStats{SysID: sysID, CompID: compID}}
		r.inspector[key] = e
	}

	e.stats.Count++
	e.stats.LastTime = now
	e.history = append(e.history, now)
	cutoff := now.Add(-inspectorRateWindow)
	trimmed := e.history[:0]
	for _, t := range e.history {
		if t.After(cutoff) {
			trimmed = append(trimmed, t)
		}
	}
	e.history = trimmed
	if len(e.history) > inspectorHistoryCap {
		e.history = e.history[len(e.history)-inspectorHistoryCap:]
	}
	if len(e.history) >= 2 {
		span := e.history[len(e.history)-1].Sub(e.history[0]).Seconds()
		if span > 0 {
			e.stats.RateHz = round1(float64(len(e.history)-1) / span)
		}
	} else {
		e.stats.RateHz = 0
	}

	e.stats.LastData = sanitizeTruncate(structFields(msg), inspectorFieldLimit)
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// structFields flattens a dialect message's exported fields into the
// inspector's last-payload map via reflection, so every message type gets
// a populated InspectorStats.LastData without a per-type registration
// step. Byte arrays (MAVLink's fixed-width char fields, e.g. param IDs and
// vendor names) are trimmed at the first NUL and rendered as strings;
// everything else is copied through its native kind.
func structFields(msg any) map[string]any {
	v := reflect.ValueOf(msg)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return map[string]any{}
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return map[string]any{}
	}

	t := v.Type()
	out := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" { // unexported
			continue
		}
		out[f.Name] = reflectFieldValue(v.Field(i))
	}
	return out
}

func reflectFieldValue(fv reflect.Value) any {
	switch fv.Kind() {
	case reflect.Array:
		if fv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, fv.Len())
			for i := 0; i < fv.Len(); i++ {
				b[i] = byte(fv.Index(i).Uint())
			}
			return textFromBytes(b)
		}
		out := make([]any, fv.Len())
		for i := 0; i < fv.Len(); i++ {
			out[i] = reflectFieldValue(fv.Index(i))
		}
		return out
	case reflect.Slice:
		if fv.IsNil() {
			return nil
		}
		out := make([]any, fv.Len())
		for i := 0; i < fv.Len(); i++ {
			out[i] = reflectFieldValue(fv.Index(i))
		}
		return out
	case reflect.Float32, reflect.Float64:
		return fv.Float()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fv.Uint()
	case reflect.Bool:
		return fv.Bool()
	case reflect.String:
		return fv.String()
	default:
		return fmt.Sprintf("%v", fv.Interface())
	}
}

// sanitizeTruncate replaces NaN/Inf float values with nil, recursively,
// and truncates a top-level map to the first limit entries (insertion
// order is not guaranteed by Go maps, so this mirrors the original intent
// rather than its exact iteration order).
func sanitizeTruncate(m map[string]any, limit int) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, limit)
	i := 0
	for k, v := range m {
		if i >= limit {
			break
		}
		out[k] = sanitizeValue(v)
		i++
	}
	return out
}

func sanitizeValue(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case float32:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return x
	case map[string]any:
		return sanitizeTruncate(x, inspectorFieldLimit)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = sanitizeValue(e)
		}
		return out
	default:
		return v
	}
}

// InspectorSnapshot returns a copy of all tracked message statistics.
func (r *Router) InspectorSnapshot() []InspectorStats {
	out := make([]InspectorStats, 0, len(r.inspector))
	for _, e := range r.inspector {
		out = append(out, e.stats)
	}
	return out
}

func (r *Router) ClearInspector() {
	r.inspector = make(map[inspectorKey]*inspectorEntry)
}

func (r *Router) handleParamValue(sysID uint8, m *common.MessageParamValue) {
	v, ok := r.vehicles[sysID]
	if !ok {
		return
	}
	id := trimParamID(m.ParamId)
	v.SetParam(id, vehicle.Param{Value: float64(m.ParamValue), Type: uint8(m.ParamType), Index: int16(m.ParamIndex)}, m.ParamCount)
}

func trimParamID(raw [16]byte) string {
	n := 0
	for n < len(raw) && raw[n] != 0 {
		n++
	}
	return string(raw[:n])
}

func (r *Router) handleStatusText(sysID uint8, m *common.MessageStatustext) {
	v, ok := r.vehicles[sysID]
	if !ok {
		return
	}
	v.PushStatusText(uint8(m.Severity), textFromBytes(m.Text[:]))
}

func textFromBytes(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func (r *Router) handleCommandAck(sysID uint8, m *common.MessageCommandAck) {
	if uint32(m.Command) != 241 { // MAV_CMD_PREFLIGHT_CALIBRATION
		return
	}
	v, ok := r.vehicles[sysID]
	if !ok {
		return
	}
	res, ok := calibrationResults[uint8(m.Result)]
	if !ok {
		res = calResult{text: "Calibration result: unknown", severity: 4}
	}
	v.PushStatusText(res.severity, res.text)
}

func (r *Router) handleHeartbeat(sysID, compID uint8, m *common.MessageHeartbeat) {
	if compID != 1 {
		return
	}
	mavType := uint8(m.Type)
	if !profile.VehicleTypes[mavType] {
		return
	}

	flavor := modes.FlavorFromAutopilot(uint8(m.Autopilot))

	v, ok := r.vehicles[sysID]
	if !ok {
		if r.onVehicleDiscovered != nil {
			r.onVehicleDiscovered(sysID, flavor, mavType)
		}
		return
	}

	v.UpdateTelemetry(func(t *vehicle.Telemetry) {
		t.Armed = modes.Armed(uint8(m.BaseMode))
		t.Mode = modes.Decode(flavor, mavType, uint32(m.CustomMode))
		t.SystemStatus = uint8(m.SystemStatus)
		t.LastHeartbeat = time.Now()
	})
}

func (r *Router) handleAttitude(sysID uint8, m *common.MessageAttitude) {
	v, ok := r.vehicles[sysID]
	if !ok {
		return
	}
	v.UpdateTelemetry(func(t *vehicle.Telemetry) {
		t.Roll, t.Pitch, t.Yaw = float64(m.Roll), float64(m.Pitch), float64(m.Yaw)
		t.RollSpeed, t.PitchSpeed, t.YawSpeed = float64(m.Rollspeed), float64(m.Pitchspeed), float64(m.Yawspeed)
	})
}

func (r *Router) handleGlobalPosition(sysID uint8, m *common.MessageGlobalPositionInt) {
	v, ok := r.vehicles[sysID]
	if !ok {
		return
	}
	v.UpdateTelemetry(func(t *vehicle.Telemetry) {
		t.Latitude = float64(m.Lat) / 1e7
		t.Longitude = float64(m.Lon) / 1e7
		t.AltitudeMSL = float64(m.Alt) / 1000.0
		t.AltitudeRelative = float64(m.RelativeAlt) / 1000.0
		t.Heading = float64(m.Hdg) / 100.0
	})
}

func (r *Router) handleGPSRaw(sysID uint8, m *common.MessageGpsRawInt) {
	v, ok := r.vehicles[sysID]
	if !ok {
		return
	}
	hdop := 99.99
	if m.Eph != 65535 {
		hdop = float64(m.Eph) / 100.0
	}
	v.UpdateTelemetry(func(t *vehicle.Telemetry) {
		t.GPSFixType = uint8(m.FixType)
		t.SatelliteCount = m.SatellitesVisible
		t.HDOP = hdop
	})
}

func (r *Router) handleVfrHud(sysID uint8, m *common.MessageVfrHud) {
	v, ok := r.vehicles[sysID]
	if !ok {
		return
	}
	v.UpdateTelemetry(func(t *vehicle.Telemetry) {
		t.Airspeed = float64(m.Airspeed)
		t.Groundspeed = float64(m.Groundspeed)
		t.ClimbRate = float64(m.Climb)
		t.Heading = float64(m.Heading)
	})
}

func (r *Router) handleSysStatus(sysID uint8, m *common.MessageSysStatus) {
	v, ok := r.vehicles[sysID]
	if !ok {
		return
	}
	current := 0.0
	if m.CurrentBattery != -1 {
		current = float64(m.CurrentBattery) / 100.0
	}
	v.UpdateTelemetry(func(t *vehicle.Telemetry) {
		t.BatteryVoltage = float64(m.VoltageBattery) / 1000.0
		t.BatteryCurrent = current
		t.BatteryRemainingPct = float64(m.BatteryRemaining)
	})
}

func (r *Router) handleMissionCurrent(sysID uint8, m *common.MessageMissionCurrent) {
	v, ok := r.vehicles[sysID]
	if !ok {
		return
	}
	v.UpdateTelemetry(func(t *vehicle.Telemetry) {
		t.MissionCurrentSeq = m.Seq
	})
}

func (r *Router) handleCameraInformation(sysID, compID uint8, m *common.MessageCameraInformation) {
	v, ok := r.vehicles[sysID]
	if !ok {
		return
	}
	v.SetCamera(&vehicle.CameraInfo{
		ComponentID: compID,
		VendorName:  textFromBytes(m.VendorName[:]),
		ModelName:   textFromBytes(m.ModelName[:]),
		FirmwareVer: m.FirmwareVersion,
		LastUpdate:  time.Now(),
	})
}

func (r *Router) handleGimbalInformation(sysID, compID uint8, m *common.MessageGimbalDeviceInformation) {
	v, ok := r.vehicles[sysID]
	if !ok {
		return
	}
	v.SetGimbal(&vehicle.GimbalInfo{
		ComponentID: compID,
		VendorName:  textFromBytes(m.VendorName[:]),
		ModelName:   textFromBytes(m.ModelName[:]),
		LastUpdate:  time.Now(),
	})
}
