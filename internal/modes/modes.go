// Package modes decodes the flight-mode portion of a HEARTBEAT message into
// a human-readable name, and encodes a name back into the wire form a
// command needs. ArduPilot and PX4 use entirely different schemes, so the
// Router picks a table by the vehicle's autopilot flavor rather than by
// any shared mode abstraction.
package modes

import "fmt"

// Flavor identifies which autopilot firmware family a vehicle runs.
type Flavor int

const (
	FlavorUnknown Flavor = iota
	FlavorArduPilot
	FlavorPX4
)

func (f Flavor) String() string {
	switch f {
	case FlavorArduPilot:
		return "ardupilot"
	case FlavorPX4:
		return "px4"
	default:
		return "unknown"
	}
}

// MAV_AUTOPILOT values relevant to flavor detection (common dialect).
const (
	AutopilotArduPilotMega = 3
	AutopilotPX4           = 12
	AutopilotGeneric       = 0
	AutopilotInvalid       = 8
)

// FlavorFromAutopilot maps the HEARTBEAT autopilot field to a Flavor.
func FlavorFromAutopilot(autopilot uint8) Flavor {
	switch autopilot {
	case AutopilotArduPilotMega:
		return FlavorArduPilot
	case AutopilotPX4:
		return FlavorPX4
	default:
		return FlavorUnknown
	}
}

// MAV_MODE_FLAG_SAFETY_ARMED.
const modeFlagSafetyArmed = 128

// Armed reports whether base_mode has the safety-armed bit set.
func Armed(baseMode uint8) bool {
	return baseMode&modeFlagSafetyArmed != 0
}

// ArduPilot mode tables are per vehicle category, since custom_mode is a
// plain integer with meaning defined entirely by the vehicle firmware
// variant. Only the copter table is attested directly; plane/rover/sub
// tables below follow the same upstream ArduPilot numbering convention.
var copterModes = map[uint32]string{
	0: "STABILIZE", 1: "ACRO", 2: "ALT_HOLD", 3: "AUTO", 4: "GUIDED",
	5: "LOITER", 6: "RTL", 7: "CIRCLE", 9: "LAND", 11: "DRIFT",
	13: "SPORT", 14: "FLIP", 15: "AUTOTUNE", 16: "POSHOLD", 17: "BRAKE",
	18: "THROW", 19: "AVOID_ADSB", 20: "GUIDED_NOGPS", 21: "SMART_RTL",
}

var planeModes = map[uint32]string{
	0: "MANUAL", 1: "CIRCLE", 2: "STABILIZE", 3: "TRAINING", 4: "ACRO",
	5: "FLY_BY_WIRE_A", 6: "FLY_BY_WIRE_B", 7: "CRUISE", 8: "AUTOTUNE",
	10: "AUTO", 11: "RTL", 12: "LOITER", 14: "AVOID_ADSB", 15: "GUIDED",
	17: "QSTABILIZE", 18: "QHOVER", 19: "QLOITER", 20: "QLAND",
	21: "QRTL", 22: "QAUTOTUNE", 23: "QACRO",
}

var roverModes = map[uint32]string{
	0: "MANUAL", 1: "ACRO", 3: "STEERING", 4: "HOLD", 5: "LOITER",
	6: "FOLLOW", 7: "SIMPLE", 8: "DOCK", 10: "AUTO", 11: "RTL",
	12: "SMART_RTL", 15: "GUIDED", 16: "INITIALISING",
}

var subModes = map[uint32]string{
	0: "STABILIZE", 1: "ACRO", 2: "ALT_HOLD", 3: "AUTO", 4: "GUIDED",
	7: "CIRCLE", 9: "SURFACE", 16: "POSHOLD", 19: "MANUAL", 20: "MOTOR_DETECT",
}

// Vehicle category membership by MAV_TYPE, used to select the ArduPilot
// mode table (§4.2). Multirotor, VTOL/plane, rover, and sub sets.
var multirotorTypes = map[uint8]bool{2: true, 3: true, 4: true, 13: true, 14: true, 15: true, 29: true, 35: true}

func isVTOLType(mavType uint8) bool { return mavType >= 19 && mavType <= 25 }

var roverTypes = map[uint8]bool{10: true, 11: true}
var subTypes = map[uint8]bool{12: true}

func ardupilotTable(mavType uint8) map[uint32]string {
	switch {
	case multirotorTypes[mavType]:
		return copterModes
	case isVTOLType(mavType):
		return planeModes
	case roverTypes[mavType]:
		return roverModes
	case subTypes[mavType]:
		return subModes
	default:
		return copterModes
	}
}

// DecodeArduPilot returns the mode name for a given mav_type/custom_mode
// pair, or "MODE_<n>" if the value is not in the selected table.
func DecodeArduPilot(mavType uint8, customMode uint32) string {
	table := ardupilotTable(mavType)
	if name, ok := table[customMode]; ok {
		return name
	}
	return fmt.Sprintf("MODE_%d", customMode)
}

// EncodeArduPilot is the reverse lookup used by set_mode: given a vehicle
// type and a mode name, return the custom_mode value. ok is false for an
// unrecognized name, in which case the caller must drop the command.
func EncodeArduPilot(mavType uint8, name string) (uint32, bool) {
	table := ardupilotTable(mavType)
	for id, n := range table {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

// px4ModeKey packs (main_mode, sub_mode) for table lookup.
type px4ModeKey struct {
	main, sub uint8
}

var px4Modes = map[px4ModeKey]string{
	{1, 0}: "MANUAL",
	{2, 0}: "ALTCTL",
	{3, 0}: "POSCTL",
	{4, 1}: "AUTO_READY",
	{4, 2}: "AUTO_TAKEOFF",
	{4, 3}: "AUTO_LOITER",
	{4, 4}: "AUTO_MISSION",
	{4, 5}: "AUTO_RTL",
	{4, 6}: "AUTO_LAND",
	{4, 8}: "AUTO_FOLLOW_TARGET",
	{4, 9}: "AUTO_PRECLAND",
	{5, 0}: "ACRO",
	{7, 0}: "OFFBOARD",
	{8, 0}: "STABILIZED",
}

var px4ModesReverse = func() map[string]px4ModeKey {
	m := make(map[string]px4ModeKey, len(px4Modes))
	for k, v := range px4Modes {
		m[v] = k
	}
	return m
}()

// DecodePX4 extracts main/sub mode from custom_mode and looks up the name.
func DecodePX4(customMode uint32) string {
	main := uint8((customMode >> 16) & 0xFF)
	sub := uint8((customMode >> 24) & 0xFF)
	if name, ok := px4Modes[px4ModeKey{main, sub}]; ok {
		return name
	}
	return fmt.Sprintf("PX4_%d_%d", main, sub)
}

// EncodePX4 returns the packed custom_mode for a mode name.
func EncodePX4(name string) (uint32, bool) {
	key, ok := px4ModesReverse[name]
	if !ok {
		return 0, false
	}
	return uint32(key.main)<<16 | uint32(key.sub)<<24, true
}

// Decode picks the correct table based on flavor.
func Decode(flavor Flavor, mavType uint8, customMode uint32) string {
	switch flavor {
	case FlavorPX4:
		return DecodePX4(customMode)
	default:
		return DecodeArduPilot(mavType, customMode)
	}
}
