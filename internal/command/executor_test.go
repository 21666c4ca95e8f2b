package command

import (
	"testing"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/mavgcs/gcs-core/internal/logging"
	"github.com/mavgcs/gcs-core/internal/modes"
)

// captureSender records every message handed to it; captureSender.send
// satisfies the Sender type.
type captureSender struct {
	sent []any
}

func (c *captureSender) send(msg any) error {
	c.sent = append(c.sent, msg)
	return nil
}

func newTestExecutor() (*Executor, *captureSender) {
	cap := &captureSender{}
	return NewExecutor(cap.send, logging.New("[test] ")), cap
}

func TestArmDisarmSetsParam1(t *testing.T) {
	e, cap := newTestExecutor()
	e.dispatch(Record{Kind: KindArm, TargetSystem: 1, TargetComponent: 1})

	if len(cap.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(cap.sent))
	}
	cmd, ok := cap.sent[0].(*common.MessageCommandLong)
	if !ok {
		t.Fatalf("expected MessageCommandLong, got %T", cap.sent[0])
	}
	if cmd.Command != common.MAV_CMD_COMPONENT_ARM_DISARM {
		t.Errorf("Command = %v, want MAV_CMD_COMPONENT_ARM_DISARM", cmd.Command)
	}
	if cmd.Param1 != 1 {
		t.Errorf("arm Param1 = %v, want 1", cmd.Param1)
	}

	e.dispatch(Record{Kind: KindDisarm, TargetSystem: 1, TargetComponent: 1})
	cmd2 := cap.sent[1].(*common.MessageCommandLong)
	if cmd2.Param1 != 0 {
		t.Errorf("disarm Param1 = %v, want 0", cmd2.Param1)
	}
}

func TestFenceEnableSendsCommand207(t *testing.T) {
	e, cap := newTestExecutor()
	e.dispatch(Record{Kind: KindFenceEnable, TargetSystem: 1, TargetComponent: 1, Params: map[string]any{"enable": true}})

	cmd := cap.sent[0].(*common.MessageCommandLong)
	if cmd.Command != 207 {
		t.Errorf("fence enable Command = %v, want 207", cmd.Command)
	}
	if cmd.Param1 != 1 {
		t.Errorf("fence enable Param1 = %v, want 1", cmd.Param1)
	}

	e2, cap2 := newTestExecutor()
	e2.dispatch(Record{Kind: KindFenceEnable, TargetSystem: 1, TargetComponent: 1, Params: map[string]any{"enable": false}})
	cmd2 := cap2.sent[0].(*common.MessageCommandLong)
	if cmd2.Param1 != 0 {
		t.Errorf("fence disable Param1 = %v, want 0", cmd2.Param1)
	}
}

func TestPreflightCalibrationUnknownKindIsNoOp(t *testing.T) {
	e, cap := newTestExecutor()
	e.dispatch(Record{Kind: KindPreflightCalibration, Params: map[string]any{"kind": "not_a_real_kind"}})
	if len(cap.sent) != 0 {
		t.Errorf("expected no message sent for unknown calibration kind, got %d", len(cap.sent))
	}
}

func TestPreflightCalibrationGyroSetsParam1(t *testing.T) {
	e, cap := newTestExecutor()
	e.dispatch(Record{Kind: KindPreflightCalibration, Params: map[string]any{"kind": "gyro"}})
	cmd := cap.sent[0].(*common.MessageCommandLong)
	if cmd.Command != 241 {
		t.Errorf("Command = %v, want 241", cmd.Command)
	}
	if cmd.Param1 != 1 {
		t.Errorf("gyro calibration Param1 = %v, want 1", cmd.Param1)
	}
}

func TestSetModeArduPilotUnknownModeDropsWithoutSending(t *testing.T) {
	e, cap := newTestExecutor()
	e.dispatch(Record{
		Kind: KindSetMode, TargetSystem: 1, Flavor: modes.FlavorArduPilot,
		Params: map[string]any{"mode_name": "NOT_A_REAL_MODE"},
	})
	if len(cap.sent) != 0 {
		t.Errorf("expected unknown mode name to be dropped, got %d messages", len(cap.sent))
	}
}

func TestSetModePX4EncodesCustomMode(t *testing.T) {
	e, cap := newTestExecutor()
	e.dispatch(Record{
		Kind: KindSetMode, TargetSystem: 1, TargetComponent: 1, Flavor: modes.FlavorPX4,
		Params: map[string]any{"mode_name": "OFFBOARD"},
	})
	cmd := cap.sent[0].(*common.MessageCommandLong)
	if cmd.Command != common.MAV_CMD_DO_SET_MODE {
		t.Errorf("Command = %v, want MAV_CMD_DO_SET_MODE", cmd.Command)
	}
}

func TestDrainAllProcessesEveryQueuedRecord(t *testing.T) {
	e, cap := newTestExecutor()
	q := NewQueue()
	q.Submit(Record{Kind: KindArm, TargetSystem: 1})
	q.Submit(Record{Kind: KindDisarm, TargetSystem: 1})
	q.Submit(Record{Kind: KindTakeoff, TargetSystem: 1, Params: map[string]any{"altitude": 10.0}})

	e.DrainAll(q)

	if len(cap.sent) != 3 {
		t.Errorf("expected 3 dispatched messages, got %d", len(cap.sent))
	}
	if _, ok := q.TryNext(); ok {
		t.Error("queue should be empty after DrainAll")
	}
}

func TestMotorTestDecodesJSONFloat64Params(t *testing.T) {
	e, cap := newTestExecutor()
	e.dispatch(Record{
		Kind: KindMotorTest, TargetSystem: 1, TargetComponent: 1,
		Params: map[string]any{
			"motor":        float64(3),
			"motor_count":  float64(8),
			"throttle_pct": float64(25),
			"duration_sec": float64(2),
		},
	})

	if len(cap.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(cap.sent))
	}
	cmd, ok := cap.sent[0].(*common.MessageCommandLong)
	if !ok {
		t.Fatalf("expected MessageCommandLong, got %T", cap.sent[0])
	}
	if cmd.Command != common.MAV_CMD_DO_MOTOR_TEST {
		t.Errorf("Command = %v, want MAV_CMD_DO_MOTOR_TEST", cmd.Command)
	}
	if cmd.Param1 != 3 {
		t.Errorf("motor Param1 = %v, want 3 (JSON float64 must decode, not default to 0)", cmd.Param1)
	}
	if cmd.Param5 != 8 {
		t.Errorf("motor_count Param5 = %v, want 8", cmd.Param5)
	}
}

func TestUnknownKindDoesNotPanic(t *testing.T) {
	e, cap := newTestExecutor()
	e.dispatch(Record{Kind: Kind("made_up")})
	if len(cap.sent) != 0 {
		t.Errorf("expected no message for unknown kind, got %d", len(cap.sent))
	}
}
