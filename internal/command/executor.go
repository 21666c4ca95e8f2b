package command

import (
	"fmt"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/mavgcs/gcs-core/internal/logging"
	"github.com/mavgcs/gcs-core/internal/modes"
	"github.com/mavgcs/gcs-core/internal/rcoverride"
)

// heartbeatInterval is the GCS's own HEARTBEAT cadence (§4.3).
const heartbeatInterval = 1 * time.Second

// recvTimeout is the short timeout used between drain passes so the
// executor's host loop stays responsive to both outbound and inbound work
// (§4.3 TX scheduling discipline).
const recvTimeout = 50 * time.Millisecond

// Sender transmits one MAVLink message on the owning Link.
type Sender func(msg any) error

// Executor drains one Link's command Queue and translates each Record
// into the MAVLink message(s) described by the dispatch table in §4.3.
type Executor struct {
	send Sender
	log  *logging.Logger
}

func NewExecutor(send Sender, log *logging.Logger) *Executor {
	return &Executor{send: send, log: log}
}

// DrainAll processes every currently queued record without blocking.
func (e *Executor) DrainAll(q *Queue) {
	for {
		r, ok := q.TryNext()
		if !ok {
			return
		}
		e.dispatch(r)
	}
}

// Heartbeat sends one GCS heartbeat frame. Called on a 1Hz ticker by the
// Link worker loop alongside DrainAll.
func (e *Executor) Heartbeat() error {
	return e.send(&common.MessageHeartbeat{
		Type:           common.MAV_TYPE_GCS,
		Autopilot:      common.MAV_AUTOPILOT_INVALID,
		BaseMode:       0,
		CustomMode:     0,
		SystemStatus:   common.MAV_STATE_ACTIVE,
		MavlinkVersion: 3,
	})
}

func (e *Executor) dispatch(r Record) {
	var err error
	switch r.Kind {
	case KindRequestDataStream:
		err = e.requestDataStream(r)
	case KindSetMessageInterval:
		err = e.setMessageInterval(r)
	case KindArm:
		err = e.armDisarm(r, 1)
	case KindDisarm:
		err = e.armDisarm(r, 0)
	case KindTakeoff:
		err = e.takeoff(r)
	case KindLand:
		err = e.land(r)
	case KindRTL:
		err = e.rtl(r)
	case KindSetMode:
		err = e.setMode(r)
	case KindSetStandardMode:
		err = e.setStandardMode(r)
	case KindGoto:
		err = e.goTo(r)
	case KindSetHome:
		err = e.setHome(r)
	case KindSetROI:
		err = e.setROI(r)
	case KindPreflightCalibration:
		err = e.preflightCalibration(r)
	case KindRCOverride:
		err = e.rcOverride(r)
	case KindMotorTest:
		err = e.motorTest(r)
	case KindServoSet:
		err = e.servoSet(r)
	case KindGimbalPitchYaw:
		err = e.gimbalPitchYaw(r)
	case KindRequestCameraInfo:
		err = e.requestCameraInfo(r)
	case KindRequestParamList:
		err = e.requestParamList(r)
	case KindSetParam:
		err = e.setParam(r)
	case KindFenceEnable:
		err = e.fenceEnable(r)
	default:
		e.log.Warnf("command: unknown kind %q dropped", r.Kind)
		return
	}
	if err != nil {
		// Fail-open: transient send errors are logged and dropped (§4.1).
		e.log.Warnf("command %s failed: %v", r.Kind, err)
	}
}

func f32(r Record, key string) float32 {
	switch v := r.Params[key].(type) {
	case float64:
		return float32(v)
	case float32:
		return v
	case int:
		return float32(v)
	default:
		return 0
	}
}

func str(r Record, key string) string {
	s, _ := r.Params[key].(string)
	return s
}

func (e *Executor) requestDataStream(r Record) error {
	return e.send(&common.MessageRequestDataStream{
		TargetSystem: r.TargetSystem, TargetComponent: r.TargetComponent,
		ReqStreamID: uint8(f32(r, "stream_id")), ReqMessageRate: uint16(f32(r, "rate_hz")), StartStop: 1,
	})
}

func (e *Executor) setMessageInterval(r Record) error {
	return e.send(&common.MessageCommandLong{
		TargetSystem: r.TargetSystem, TargetComponent: r.TargetComponent,
		Command: common.MAV_CMD_SET_MESSAGE_INTERVAL,
		Param1:  f32(r, "message_id"), Param2: f32(r, "interval_us"),
	})
}

func (e *Executor) armDisarm(r Record, v float32) error {
	return e.send(&common.MessageCommandLong{
		TargetSystem: r.TargetSystem, TargetComponent: r.TargetComponent,
		Command: common.MAV_CMD_COMPONENT_ARM_DISARM, Param1: v,
	})
}

func (e *Executor) takeoff(r Record) error {
	return e.send(&common.MessageCommandLong{
		TargetSystem: r.TargetSystem, TargetComponent: r.TargetComponent,
		Command: common.MAV_CMD_NAV_TAKEOFF, Param7: f32(r, "altitude"),
	})
}

func (e *Executor) land(r Record) error {
	if r.Flavor == modes.FlavorArduPilot {
		return e.sendSetMode(r, "LAND")
	}
	return e.send(&common.MessageCommandLong{
		TargetSystem: r.TargetSystem, TargetComponent: r.TargetComponent,
		Command: common.MAV_CMD_NAV_LAND,
	})
}

func (e *Executor) rtl(r Record) error {
	if r.Flavor == modes.FlavorArduPilot {
		return e.sendSetMode(r, "RTL")
	}
	return e.send(&common.MessageCommandLong{
		TargetSystem: r.TargetSystem, TargetComponent: r.TargetComponent,
		Command: common.MAV_CMD_NAV_RETURN_TO_LAUNCH,
	})
}

func (e *Executor) setMode(r Record) error {
	return e.sendSetMode(r, str(r, "mode_name"))
}

func (e *Executor) sendSetMode(r Record, name string) error {
	if r.Flavor == modes.FlavorPX4 {
		custom, ok := modes.EncodePX4(name)
		if !ok {
			e.log.Warnf("set_mode: unknown PX4 mode %q dropped", name)
			return nil
		}
		return e.send(&common.MessageCommandLong{
			TargetSystem: r.TargetSystem, TargetComponent: r.TargetComponent,
			Command: common.MAV_CMD_DO_SET_MODE,
			Param1:  float32(common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED), Param2: float32(custom),
		})
	}

	mavType, _ := r.Params["mav_type"].(uint8)
	custom, ok := modes.EncodeArduPilot(mavType, name)
	if !ok {
		e.log.Warnf("set_mode: unknown ArduPilot mode %q dropped", name)
		return nil
	}
	return e.send(&common.MessageSetMode{
		TargetSystem: r.TargetSystem,
		BaseMode:     common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED,
		CustomMode:   custom,
	})
}

func (e *Executor) setStandardMode(r Record) error {
	return e.send(&common.MessageCommandLong{
		TargetSystem: r.TargetSystem, TargetComponent: r.TargetComponent,
		Command: 262, Param1: f32(r, "standard_mode"),
	})
}

func (e *Executor) goTo(r Record) error {
	const typeMask = 0b0000_1111_1111_1000
	return e.send(&common.MessageSetPositionTargetGlobalInt{
		TargetSystem: r.TargetSystem, TargetComponent: r.TargetComponent,
		CoordinateFrame: common.MAV_FRAME_GLOBAL_RELATIVE_ALT_INT,
		TypeMask:        typeMask,
		LatInt:          int32(f64(r, "lat") * 1e7),
		LonInt:          int32(f64(r, "lon") * 1e7),
		Alt:             f32(r, "alt"),
	})
}

func f64(r Record, key string) float64 {
	switch v := r.Params[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

func (e *Executor) setHome(r Record) error {
	useCurrent := float32(0)
	if v, _ := r.Params["use_current"].(bool); v {
		useCurrent = 1
	}
	return e.send(&common.MessageCommandLong{
		TargetSystem: r.TargetSystem, TargetComponent: r.TargetComponent,
		Command: common.MAV_CMD_DO_SET_HOME, Param1: useCurrent,
		Param5: float32(f64(r, "lat")), Param6: float32(f64(r, "lon")), Param7: f32(r, "alt"),
	})
}

func (e *Executor) setROI(r Record) error {
	return e.send(&common.MessageCommandLong{
		TargetSystem: r.TargetSystem, TargetComponent: r.TargetComponent,
		Command: common.MAV_CMD_DO_SET_ROI_LOCATION,
		Param5:  float32(f64(r, "lat")), Param6: float32(f64(r, "lon")), Param7: f32(r, "alt"),
	})
}

// calMap mirrors the original preflight-calibration kind→parameter table
// (§4.3) exactly: unmapped kinds are a no-op, never dispatched.
var calMap = map[string]map[string]float32{
	"gyro":      {"param1": 1},
	"compass":   {"param2": 1},
	"pressure":  {"param3": 1},
	"accel":     {"param5": 1},
	"level":     {"param5": 2},
	"cancel":    {"param1": 0, "param2": 0, "param3": 0, "param4": 0, "param5": 0, "param6": 0},
	"next_step": {"param5": 4},
}

func (e *Executor) preflightCalibration(r Record) error {
	kind := str(r, "kind")
	params, ok := calMap[kind]
	if !ok {
		e.log.Warnf("preflight_calibration: unknown kind %q, no-op", kind)
		return nil
	}
	return e.send(&common.MessageCommandLong{
		TargetSystem: r.TargetSystem, TargetComponent: r.TargetComponent,
		Command: 241, // MAV_CMD_PREFLIGHT_CALIBRATION
		Param1:  params["param1"], Param2: params["param2"], Param3: params["param3"],
		Param4: params["param4"], Param5: params["param5"], Param6: params["param6"],
	})
}

func (e *Executor) rcOverride(r Record) error {
	channels, _ := r.Params["channels"].([rcoverride.NumChannels]int)
	if r.Flavor == modes.FlavorPX4 {
		axes := rcoverride.ToManualControl(channels)
		return e.send(&common.MessageManualControl{
			Target: r.TargetSystem, X: axes.X, Y: axes.Y, Z: axes.Z, R: axes.R,
		})
	}
	return e.send(&common.MessageRcChannelsOverride{
		TargetSystem: r.TargetSystem, TargetComponent: r.TargetComponent,
		Chan1Raw: uint16(channels[0]), Chan2Raw: uint16(channels[1]), Chan3Raw: uint16(channels[2]), Chan4Raw: uint16(channels[3]),
		Chan5Raw: uint16(channels[4]), Chan6Raw: uint16(channels[5]), Chan7Raw: uint16(channels[6]), Chan8Raw: uint16(channels[7]),
	})
}

func (e *Executor) motorTest(r Record) error {
	motor := int(f32(r, "motor"))
	motorCount := int(f32(r, "motor_count"))
	throttlePct := f32(r, "throttle_pct")
	duration := f32(r, "duration_sec")

	if r.Flavor == modes.FlavorPX4 {
		return e.motorTestPX4(r, motor, motorCount, throttlePct)
	}

	return e.send(&common.MessageCommandLong{
		TargetSystem: r.TargetSystem, TargetComponent: r.TargetComponent,
		Command: common.MAV_CMD_DO_MOTOR_TEST,
		Param1:  float32(motor), Param2: 0 /* MOTOR_TEST_THROTTLE_PERCENT */, Param3: throttlePct,
		Param4: duration, Param5: float32(motorCount),
	})
}

func (e *Executor) motorTestPX4(r Record, motor, motorCount int, throttlePct float32) error {
	const actuatorTest = 310
	value := throttlePct / 100.0

	if motorCount == 0 { // "all motors": fan out functions 101..108, 50ms apart
		for m := 1; m <= 8; m++ {
			err := e.send(&common.MessageCommandLong{
				TargetSystem: r.TargetSystem, TargetComponent: r.TargetComponent,
				Command: actuatorTest, Param1: value, Param3: float32(100 + m),
			})
			if err != nil {
				return err
			}
			time.Sleep(50 * time.Millisecond)
		}
		return nil
	}

	return e.send(&common.MessageCommandLong{
		TargetSystem: r.TargetSystem, TargetComponent: r.TargetComponent,
		Command: actuatorTest, Param1: value, Param3: float32(100 + motor),
	})
}

func (e *Executor) servoSet(r Record) error {
	return e.send(&common.MessageCommandLong{
		TargetSystem: r.TargetSystem, TargetComponent: r.TargetComponent,
		Command: common.MAV_CMD_DO_SET_SERVO, Param1: f32(r, "servo"), Param2: f32(r, "pwm"),
	})
}

func (e *Executor) gimbalPitchYaw(r Record) error {
	return e.send(&common.MessageCommandLong{
		TargetSystem: r.TargetSystem, TargetComponent: r.TargetComponent,
		Command: common.MAV_CMD_DO_GIMBAL_MANAGER_PITCHYAW,
		Param1:  f32(r, "pitch_rad"), Param2: f32(r, "yaw_rad"),
	})
}

func (e *Executor) requestCameraInfo(r Record) error {
	return e.send(&common.MessageCommandLong{
		TargetSystem: r.TargetSystem, TargetComponent: 0,
		Command: common.MAV_CMD_REQUEST_MESSAGE, Param1: float32(common.MAVLINK_MSG_ID_CAMERA_INFORMATION),
	})
}

func (e *Executor) requestParamList(r Record) error {
	return e.send(&common.MessageParamRequestList{
		TargetSystem: r.TargetSystem, TargetComponent: r.TargetComponent,
	})
}

// padParamID right-pads a parameter id to the fixed 16-byte wire form
// (§4.3, §8).
func padParamID(id string) [16]byte {
	var out [16]byte
	copy(out[:], id)
	return out
}

func (e *Executor) fenceEnable(r Record) error {
	const cmdDoFenceEnable = 207 // MAV_CMD_DO_FENCE_ENABLE
	enable := float32(0)
	if v, _ := r.Params["enable"].(bool); v {
		enable = 1
	}
	return e.send(&common.MessageCommandLong{
		TargetSystem: r.TargetSystem, TargetComponent: r.TargetComponent,
		Command: cmdDoFenceEnable, Param1: enable,
	})
}

func (e *Executor) setParam(r Record) error {
	id := str(r, "param_id")
	if len(id) > 16 {
		return fmt.Errorf("param id %q exceeds 16 bytes", id)
	}
	paramType := uint8(9) // MAV_PARAM_TYPE_REAL32 default
	if t, ok := r.Params["param_type"].(uint8); ok {
		paramType = t
	}
	return e.send(&common.MessageParamSet{
		TargetSystem: r.TargetSystem, TargetComponent: r.TargetComponent,
		ParamId: padParamID(id), ParamValue: f32(r, "value"), ParamType: paramType,
	})
}
