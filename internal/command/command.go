// Package command implements the outbound command queue and its dispatch
// table (§4.3). One Queue and one Executor are bound to a single Link;
// every Vehicle reachable on that Link shares them.
package command

import "github.com/mavgcs/gcs-core/internal/modes"

// Kind enumerates the command records a caller can submit. Mission and
// fence operations are not here: they are blocking, bidirectional
// protocols driven directly by internal/mission.Engine, not fire-and-forget
// queue entries.
type Kind string

const (
	KindRequestDataStream    Kind = "request_data_stream"
	KindSetMessageInterval   Kind = "set_message_interval"
	KindArm                  Kind = "arm"
	KindDisarm               Kind = "disarm"
	KindTakeoff              Kind = "takeoff"
	KindLand                 Kind = "land"
	KindRTL                  Kind = "rtl"
	KindSetMode              Kind = "set_mode"
	KindSetStandardMode      Kind = "set_standard_mode"
	KindGoto                 Kind = "goto"
	KindSetHome              Kind = "set_home"
	KindSetROI               Kind = "set_roi"
	KindPreflightCalibration Kind = "preflight_calibration"
	KindRCOverride           Kind = "rc_override"
	KindMotorTest            Kind = "motor_test"
	KindServoSet             Kind = "servo_set"
	KindGimbalPitchYaw       Kind = "gimbal_pitch_yaw"
	KindRequestCameraInfo    Kind = "request_camera_info"
	KindRequestParamList     Kind = "request_param_list"
	KindSetParam             Kind = "set_param"
	KindFenceEnable          Kind = "fence_enable"
)

// Record is one outbound command submitted to the queue.
type Record struct {
	Kind            Kind
	TargetSystem    uint8
	TargetComponent uint8
	Flavor          modes.Flavor
	Params          map[string]any
}
