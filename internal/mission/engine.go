// Package mission implements the blocking mission/fence upload, download,
// and clear state machines (§4.4). One Engine is bound to one Vehicle and
// must not be driven by more than one caller concurrently; callers
// serialize externally.
package mission

import (
	"fmt"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/mavgcs/gcs-core/internal/logging"
	"github.com/mavgcs/gcs-core/internal/modes"
)

const (
	uploadOverallTimeout   = 30 * time.Second
	perRequestTimeout      = 5 * time.Second
	downloadPerItemTimeout = 3 * time.Second
	circularFenceTimeout   = 15 * time.Second
	polygonFenceTimeout    = 30 * time.Second
	startSettlePause       = 200 * time.Millisecond
	fenceDisableSettlePause = 100 * time.Millisecond
)

// Status is the engine's published state (§4.4 "Status").
type Status string

const (
	StatusIdle         Status = "idle"
	StatusUploading    Status = "uploading"
	StatusUploaded     Status = "uploaded"
	StatusUploadFailed Status = "upload_failed"
	StatusRunning      Status = "running"
	StatusPaused       Status = "paused"
)

// Waypoint is one mission item (§3).
type Waypoint struct {
	Lat, Lon, Alt float64
	ItemType      string // waypoint, takeoff, loiter_unlim, loiter_turns, loiter_time, roi, land, do_jump, do_set_servo
	Param1, Param2, Param3, Param4 float64
}

// itemTypeCommands maps a Waypoint.ItemType to its MAV_CMD, mirroring the
// original ITEM_TYPE_COMMANDS table exactly.
var itemTypeCommands = map[string]common.MAV_CMD{
	"waypoint":     common.MAV_CMD_NAV_WAYPOINT,
	"takeoff":      common.MAV_CMD_NAV_TAKEOFF,
	"loiter_unlim": common.MAV_CMD_NAV_LOITER_UNLIM,
	"loiter_turns": common.MAV_CMD_NAV_LOITER_TURNS,
	"loiter_time":  common.MAV_CMD_NAV_LOITER_TIME,
	"roi":          common.MAV_CMD_DO_SET_ROI,
	"land":         common.MAV_CMD_NAV_LAND,
	"do_jump":      common.MAV_CMD_DO_JUMP,
	"do_set_servo": common.MAV_CMD_DO_SET_SERVO,
}

var commandItemTypes = func() map[common.MAV_CMD]string {
	m := make(map[common.MAV_CMD]string, len(itemTypeCommands))
	for k, v := range itemTypeCommands {
		m[v] = k
	}
	return m
}()

const (
	cmdFenceCircleInclusion  common.MAV_CMD = 5003
	cmdFencePolygonInclusion common.MAV_CMD = 5001
)

// FenceVertex is one circular or polygon fence point.
type FenceVertex struct {
	Lat, Lon float64
}

// FenceItem is a downloaded fence entry; Command distinguishes circle vs
// polygon vertex since both share the wire encoding.
type FenceItem struct {
	Lat, Lon float64
	Command  common.MAV_CMD
}

// Engine drives the mission microprotocol for one vehicle.
type Engine struct {
	vehicleID       string
	targetSystem    uint8
	targetComponent uint8
	flavor          modes.Flavor
	send            func(msg any) error
	inbox           <-chan *gomavlib.EventFrame
	log             *logging.Logger

	statusMu sync.Mutex
	status   Status
}

// New builds an Engine bound to one vehicle. send transmits one MAVLink
// message on the owning Link; inbox is the vehicle's mission inbox.
func New(vehicleID string, targetSystem, targetComponent uint8, flavor modes.Flavor, send func(msg any) error, inbox <-chan *gomavlib.EventFrame, log *logging.Logger) *Engine {
	return &Engine{
		vehicleID:       vehicleID,
		targetSystem:    targetSystem,
		targetComponent: targetComponent,
		flavor:          flavor,
		send:            send,
		inbox:           inbox,
		log:             log,
		status:          StatusIdle,
	}
}

// Status returns the engine's current state. Safe to call concurrently
// with Upload/Download/Start/Pause/Resume, which run on the caller's
// goroutine while Status is polled by the broadcast engine's own ticker
// goroutine.
func (e *Engine) Status() Status {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	return e.status
}

func (e *Engine) setStatus(s Status) {
	e.statusMu.Lock()
	e.status = s
	e.statusMu.Unlock()
}

// drainInbox discards any stale frames left from a previous operation, so
// every new operation starts against a clean inbox (§4.4).
func (e *Engine) drainInbox() {
	for {
		select {
		case <-e.inbox:
		default:
			return
		}
	}
}

func (e *Engine) recv(timeout time.Duration) (*gomavlib.EventFrame, bool) {
	select {
	case frm := <-e.inbox:
		return frm, true
	case <-time.After(timeout):
		return nil, false
	}
}

// Upload runs the MISSION upload protocol (§4.4). Empty input is rejected
// before any frame is sent.
func (e *Engine) Upload(waypoints []Waypoint) bool {
	if len(waypoints) == 0 {
		return false
	}

	e.setStatus(StatusUploading)
	e.drainInbox()

	total := len(waypoints) + 1
	if err := e.send(&common.MessageMissionCount{
		TargetSystem:    e.targetSystem,
		TargetComponent: e.targetComponent,
		Count:           uint16(total),
	}); err != nil {
		e.setStatus(StatusUploadFailed)
		return false
	}

	deadline := time.Now().Add(uploadOverallTimeout)
	for time.Now().Before(deadline) {
		frm, ok := e.recv(perRequestTimeout)
		if !ok {
			e.setStatus(StatusUploadFailed)
			return false
		}

		switch m := frm.Message().(type) {
		case *common.MessageMissionRequestInt:
			if !e.sendMissionItem(int(m.Seq), waypoints) {
				e.setStatus(StatusUploadFailed)
				return false
			}
		case *common.MessageMissionRequest:
			if !e.sendMissionItem(int(m.Seq), waypoints) {
				e.setStatus(StatusUploadFailed)
				return false
			}
		case *common.MessageMissionAck:
			if m.Type == common.MAV_MISSION_ACCEPTED {
				e.setStatus(StatusUploaded)
				return true
			}
			e.setStatus(StatusUploadFailed)
			return false
		}
	}

	e.setStatus(StatusUploadFailed)
	return false
}

func (e *Engine) sendMissionItem(seq int, waypoints []Waypoint) bool {
	total := len(waypoints) + 1
	if seq < 0 || seq >= total {
		return false
	}

	if seq == 0 {
		home := waypoints[0]
		return e.send(&common.MessageMissionItemInt{
			TargetSystem:    e.targetSystem,
			TargetComponent: e.targetComponent,
			Seq:             0,
			Frame:           common.MAV_FRAME_GLOBAL_INT,
			Command:         common.MAV_CMD_NAV_WAYPOINT,
			Current:         0,
			Autocontinue:    1,
			X:               int32(home.Lat * 1e7),
			Y:               int32(home.Lon * 1e7),
			Z:               0,
		}) == nil
	}

	wp := waypoints[seq-1]
	cmd, ok := itemTypeCommands[wp.ItemType]
	if !ok {
		cmd = common.MAV_CMD_NAV_WAYPOINT
	}
	return e.send(&common.MessageMissionItemInt{
		TargetSystem:    e.targetSystem,
		TargetComponent: e.targetComponent,
		Seq:             uint16(seq),
		Frame:           common.MAV_FRAME_GLOBAL_RELATIVE_ALT_INT,
		Command:         cmd,
		Current:         0,
		Autocontinue:    1,
		Param1:          float32(wp.Param1),
		Param2:          float32(wp.Param2),
		Param3:          float32(wp.Param3),
		Param4:          float32(wp.Param4),
		X:               int32(wp.Lat * 1e7),
		Y:               int32(wp.Lon * 1e7),
		Z:               float32(wp.Alt),
	}) == nil
}

// Download runs the MISSION download protocol.
func (e *Engine) Download() ([]Waypoint, error) {
	e.drainInbox()

	if err := e.send(&common.MessageMissionRequestList{
		TargetSystem:    e.targetSystem,
		TargetComponent: e.targetComponent,
	}); err != nil {
		return nil, fmt.Errorf("mission_request_list: %w", err)
	}

	frm, ok := e.recv(perRequestTimeout)
	if !ok {
		return nil, fmt.Errorf("no MISSION_COUNT within %s", perRequestTimeout)
	}
	count, ok := frm.Message().(*common.MessageMissionCount)
	if !ok {
		return nil, fmt.Errorf("expected MISSION_COUNT")
	}
	if count.Count <= 1 {
		return nil, nil
	}

	out := make([]Waypoint, 0, count.Count-1)
	deadline := time.Now().Add(uploadOverallTimeout)

	for seq := uint16(1); seq < count.Count; seq++ {
		if err := e.send(&common.MessageMissionRequestInt{
			TargetSystem:    e.targetSystem,
			TargetComponent: e.targetComponent,
			Seq:             seq,
		}); err != nil {
			return nil, fmt.Errorf("mission_request_int(%d): %w", seq, err)
		}

		item, ok := e.awaitMissionItem(seq, deadline)
		if !ok {
			return nil, fmt.Errorf("timeout awaiting item %d", seq)
		}

		itemType, ok := commandItemTypes[item.Command]
		if !ok {
			itemType = "waypoint"
		}
		out = append(out, Waypoint{
			Lat: float64(item.X) / 1e7, Lon: float64(item.Y) / 1e7, Alt: float64(item.Z),
			ItemType: itemType,
			Param1:   float64(item.Param1), Param2: float64(item.Param2),
			Param3: float64(item.Param3), Param4: float64(item.Param4),
		})
	}

	_ = e.send(&common.MessageMissionAck{
		TargetSystem:    e.targetSystem,
		TargetComponent: e.targetComponent,
		Type:            common.MAV_MISSION_ACCEPTED,
	})

	return out, nil
}

func (e *Engine) awaitMissionItem(seq uint16, overallDeadline time.Time) (*common.MessageMissionItemInt, bool) {
	for time.Now().Before(overallDeadline) {
		frm, ok := e.recv(downloadPerItemTimeout)
		if !ok {
			return nil, false
		}
		if item, ok := frm.Message().(*common.MessageMissionItemInt); ok && item.Seq == seq {
			return item, true
		}
	}
	return nil, false
}

// Clear fires a fire-and-forget MISSION_CLEAR_ALL. No acknowledgement is
// awaited, and — per the preserved behavior of the original implementation
// (§9 Open Question a) — a failed mid-upload is never followed by an
// automatic clear.
func (e *Engine) Clear() {
	_ = e.send(&common.MessageMissionClearAll{
		TargetSystem:    e.targetSystem,
		TargetComponent: e.targetComponent,
	})
	e.setStatus(StatusIdle)
}

// SetCurrent converts a 0-based UI waypoint index into the MAVLink seq
// convention for the vehicle's autopilot flavor and sends
// MISSION_SET_CURRENT.
func (e *Engine) SetCurrent(index int) error {
	seq := index
	if e.flavor != modes.FlavorPX4 {
		seq = index + 1 // seq 0 is the synthetic home slot
	}
	return e.send(&common.MessageMissionSetCurrent{
		TargetSystem:    e.targetSystem,
		TargetComponent: e.targetComponent,
		Seq:             uint16(seq),
	})
}

// Start begins mission execution: set current item to 1, settle, then
// switch to the autopilot's AUTO/MISSION mode. setMode is supplied by the
// command layer so this package stays independent of the mode-encoding
// tables.
func (e *Engine) Start(setMode func(name string) error) error {
	if err := e.send(&common.MessageMissionSetCurrent{
		TargetSystem:    e.targetSystem,
		TargetComponent: e.targetComponent,
		Seq:             1,
	}); err != nil {
		return err
	}
	time.Sleep(startSettlePause)

	name := "AUTO"
	if e.flavor == modes.FlavorPX4 {
		name = "AUTO_MISSION"
	}
	if err := setMode(name); err != nil {
		return err
	}
	e.setStatus(StatusRunning)
	return nil
}

// Resume re-enters mission execution after Pause. The autopilot has no
// distinct "resume" command: it's the same set_current(1)+set_mode(AUTO/MISSION)
// sequence as Start, so execution restarts from mission item 1 rather than
// from the item that was current when the mission was paused.
func (e *Engine) Resume(setMode func(name string) error) error {
	return e.Start(setMode)
}

// Pause switches to the vehicle's loiter-equivalent mode.
func (e *Engine) Pause(setMode func(name string) error) error {
	name := "LOITER"
	if e.flavor == modes.FlavorPX4 {
		name = "AUTO_LOITER"
	}
	if err := setMode(name); err != nil {
		return err
	}
	e.setStatus(StatusPaused)
	return nil
}

// UploadFenceCircle runs the circular-fence upload protocol.
func (e *Engine) UploadFenceCircle(center FenceVertex, radius float64, enableFence func() error) bool {
	e.drainInbox()

	if err := e.send(&common.MessageMissionCount{
		TargetSystem: e.targetSystem, TargetComponent: e.targetComponent,
		Count: 1, MissionType: common.MAV_MISSION_TYPE_FENCE,
	}); err != nil {
		return false
	}

	deadline := time.Now().Add(circularFenceTimeout)
	for time.Now().Before(deadline) {
		frm, ok := e.recv(perRequestTimeout)
		if !ok {
			return false
		}
		switch m := frm.Message().(type) {
		case *common.MessageMissionRequestInt, *common.MessageMissionRequest:
			_ = m
			err := e.send(&common.MessageMissionItemInt{
				TargetSystem: e.targetSystem, TargetComponent: e.targetComponent,
				Seq: 0, Frame: common.MAV_FRAME_GLOBAL, Command: cmdFenceCircleInclusion,
				Autocontinue: 1, Param1: float32(radius),
				X: int32(center.Lat * 1e7), Y: int32(center.Lon * 1e7), Z: 0,
				MissionType: common.MAV_MISSION_TYPE_FENCE,
			})
			if err != nil {
				return false
			}
		case *common.MessageMissionAck:
			if m.Type != common.MAV_MISSION_ACCEPTED {
				return false
			}
			return enableFence() == nil
		}
	}
	return false
}

// UploadFencePolygon runs the polygon-fence upload protocol. Fewer than 3
// vertices is rejected before any frame is sent (§9 Open Question b).
func (e *Engine) UploadFencePolygon(vertices []FenceVertex, enableFence func() error) bool {
	if len(vertices) < 3 {
		return false
	}
	e.drainInbox()

	count := len(vertices)
	if err := e.send(&common.MessageMissionCount{
		TargetSystem: e.targetSystem, TargetComponent: e.targetComponent,
		Count: uint16(count), MissionType: common.MAV_MISSION_TYPE_FENCE,
	}); err != nil {
		return false
	}

	deadline := time.Now().Add(polygonFenceTimeout)
	for time.Now().Before(deadline) {
		frm, ok := e.recv(perRequestTimeout)
		if !ok {
			return false
		}
		switch m := frm.Message().(type) {
		case *common.MessageMissionRequestInt:
			if !e.sendFencePolygonVertex(int(m.Seq), vertices, count) {
				return false
			}
		case *common.MessageMissionRequest:
			if !e.sendFencePolygonVertex(int(m.Seq), vertices, count) {
				return false
			}
		case *common.MessageMissionAck:
			if m.Type != common.MAV_MISSION_ACCEPTED {
				return false
			}
			return enableFence() == nil
		}
	}
	return false
}

func (e *Engine) sendFencePolygonVertex(seq int, vertices []FenceVertex, count int) bool {
	if seq < 0 || seq >= count {
		return false
	}
	v := vertices[seq]
	return e.send(&common.MessageMissionItemInt{
		TargetSystem: e.targetSystem, TargetComponent: e.targetComponent,
		Seq: uint16(seq), Frame: common.MAV_FRAME_GLOBAL, Command: cmdFencePolygonInclusion,
		Autocontinue: 1, Param1: float32(count),
		X: int32(v.Lat * 1e7), Y: int32(v.Lon * 1e7), Z: 0,
		MissionType: common.MAV_MISSION_TYPE_FENCE,
	}) == nil
}

// DownloadFence downloads the current fence item list, preserving the raw
// command code so the caller can distinguish circle vs polygon vertices.
func (e *Engine) DownloadFence() ([]FenceItem, error) {
	e.drainInbox()

	if err := e.send(&common.MessageMissionRequestList{
		TargetSystem: e.targetSystem, TargetComponent: e.targetComponent,
		MissionType: common.MAV_MISSION_TYPE_FENCE,
	}); err != nil {
		return nil, err
	}

	frm, ok := e.recv(perRequestTimeout)
	if !ok {
		return nil, fmt.Errorf("no MISSION_COUNT within %s", perRequestTimeout)
	}
	count, ok := frm.Message().(*common.MessageMissionCount)
	if !ok {
		return nil, fmt.Errorf("expected MISSION_COUNT")
	}
	if count.Count == 0 {
		return nil, nil
	}

	out := make([]FenceItem, 0, count.Count)
	deadline := time.Now().Add(circularFenceTimeout + polygonFenceTimeout)

	for seq := uint16(0); seq < count.Count; seq++ {
		if err := e.send(&common.MessageMissionRequestInt{
			TargetSystem: e.targetSystem, TargetComponent: e.targetComponent,
			Seq: seq, MissionType: common.MAV_MISSION_TYPE_FENCE,
		}); err != nil {
			return nil, err
		}
		item, ok := e.awaitMissionItem(seq, deadline)
		if !ok {
			return nil, fmt.Errorf("timeout awaiting fence item %d", seq)
		}
		out = append(out, FenceItem{Lat: float64(item.X) / 1e7, Lon: float64(item.Y) / 1e7, Command: item.Command})
	}

	_ = e.send(&common.MessageMissionAck{
		TargetSystem: e.targetSystem, TargetComponent: e.targetComponent,
		Type: common.MAV_MISSION_ACCEPTED, MissionType: common.MAV_MISSION_TYPE_FENCE,
	})
	return out, nil
}

// ClearFence disables the fence, settles briefly, then clears it.
func (e *Engine) ClearFence(disableFence func() error) {
	_ = disableFence()
	time.Sleep(fenceDisableSettlePause)
	_ = e.send(&common.MessageMissionClearAll{
		TargetSystem: e.targetSystem, TargetComponent: e.targetComponent,
		MissionType: common.MAV_MISSION_TYPE_FENCE,
	})
}
