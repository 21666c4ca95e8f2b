// Package profile classifies MAV_TYPE values into vehicle categories and
// capability profiles, and distinguishes autopilot-bearing vehicles from
// peripheral components (gimbals, cameras, trackers) sharing the bus.
package profile

// Category is the broad locomotion domain of a vehicle.
type Category string

const (
	CategoryAir        Category = "air"
	CategoryGround     Category = "ground"
	CategorySurface    Category = "surface"
	CategoryUnderwater Category = "underwater"
)

// Profile is the static capability descriptor looked up by MAV_TYPE.
type Profile struct {
	Name            string
	Category        Category
	SupportsTakeoff bool
	SupportsVTOL    bool
	HasAltitude     bool
	HasDepth        bool
	DefaultSpeed    float64 // m/s
	AllowedCommands []string
}

// MAVTypeNames is the full MAV_TYPE enumeration (common dialect), used by
// the component inventory to render a human name for any observed
// component regardless of whether it becomes a Vehicle.
var MAVTypeNames = map[uint8]string{
	0: "Generic", 1: "FixedWing", 2: "Quadrotor", 3: "Coaxial", 4: "Helicopter",
	5: "AntennaTracker", 6: "GCS", 7: "Airship", 8: "FreeBalloon", 9: "Rocket",
	10: "GroundRover", 11: "SurfaceBoat", 12: "Submarine", 13: "Hexarotor",
	14: "Octorotor", 15: "Tricopter", 16: "FlappingWing", 17: "Kite",
	18: "OnboardController", 19: "VTOLDuorotor", 20: "VTOLQuadrotor",
	21: "VTOLTiltrotor", 22: "VTOLReserved2", 23: "VTOLReserved3",
	24: "VTOLReserved4", 25: "VTOLReserved5", 26: "Gimbal", 27: "ADSB",
	28: "ParafoilOrAirship", 29: "Dodecarotor", 30: "Camera", 31: "ChargingStation",
	32: "FLARM", 33: "Servo", 34: "ODID", 35: "Decarotor", 36: "Battery",
	37: "Parachute", 38: "Log", 39: "OSD", 40: "IMU", 41: "GPS", 42: "Winch",
}

// VehicleTypes are MAV_TYPE values that the Router will promote to a
// Vehicle when seen from component 1. PeripheralTypes are recorded in the
// component inventory but never promoted.
var VehicleTypes = map[uint8]bool{
	1: true, 2: true, 3: true, 4: true, 7: true, 8: true, 9: true,
	10: true, 11: true, 12: true, 13: true, 14: true, 15: true, 16: true,
	17: true, 19: true, 20: true, 21: true, 22: true, 23: true, 24: true,
	25: true, 28: true, 29: true, 35: true,
}

var PeripheralTypes = map[uint8]bool{
	5: true, 6: true, 18: true, 26: true, 27: true, 30: true, 31: true,
	32: true, 33: true, 34: true, 36: true, 37: true, 38: true, 39: true,
	40: true, 41: true, 42: true,
}

// table is keyed by mav_type for the vehicle-types only.
var table = map[uint8]Profile{
	2:  {Name: "Quadrotor", Category: CategoryAir, SupportsTakeoff: true, HasAltitude: true, DefaultSpeed: 5, AllowedCommands: airCommands},
	3:  {Name: "Coaxial", Category: CategoryAir, SupportsTakeoff: true, HasAltitude: true, DefaultSpeed: 5, AllowedCommands: airCommands},
	4:  {Name: "Helicopter", Category: CategoryAir, SupportsTakeoff: true, HasAltitude: true, DefaultSpeed: 5, AllowedCommands: airCommands},
	13: {Name: "Hexarotor", Category: CategoryAir, SupportsTakeoff: true, HasAltitude: true, DefaultSpeed: 5, AllowedCommands: airCommands},
	14: {Name: "Octorotor", Category: CategoryAir, SupportsTakeoff: true, HasAltitude: true, DefaultSpeed: 5, AllowedCommands: airCommands},
	15: {Name: "Tricopter", Category: CategoryAir, SupportsTakeoff: true, HasAltitude: true, DefaultSpeed: 5, AllowedCommands: airCommands},
	29: {Name: "Dodecarotor", Category: CategoryAir, SupportsTakeoff: true, HasAltitude: true, DefaultSpeed: 5, AllowedCommands: airCommands},
	35: {Name: "Decarotor", Category: CategoryAir, SupportsTakeoff: true, HasAltitude: true, DefaultSpeed: 5, AllowedCommands: airCommands},
	1:  {Name: "FixedWing", Category: CategoryAir, SupportsTakeoff: true, HasAltitude: true, DefaultSpeed: 15, AllowedCommands: airCommands},
	19: {Name: "VTOLDuorotor", Category: CategoryAir, SupportsTakeoff: true, SupportsVTOL: true, HasAltitude: true, DefaultSpeed: 12, AllowedCommands: airCommands},
	20: {Name: "VTOLQuadrotor", Category: CategoryAir, SupportsTakeoff: true, SupportsVTOL: true, HasAltitude: true, DefaultSpeed: 12, AllowedCommands: airCommands},
	21: {Name: "VTOLTiltrotor", Category: CategoryAir, SupportsTakeoff: true, SupportsVTOL: true, HasAltitude: true, DefaultSpeed: 12, AllowedCommands: airCommands},
	10: {Name: "GroundRover", Category: CategoryGround, HasAltitude: false, DefaultSpeed: 3, AllowedCommands: groundCommands},
	11: {Name: "SurfaceBoat", Category: CategorySurface, HasAltitude: false, DefaultSpeed: 3, AllowedCommands: groundCommands},
	12: {Name: "Submarine", Category: CategoryUnderwater, HasDepth: true, DefaultSpeed: 1.5, AllowedCommands: underwaterCommands},
}

var airCommands = []string{
	"arm", "disarm", "takeoff", "land", "rtl", "set_mode", "goto", "set_roi",
	"set_home", "preflight_calibration", "rc_override", "motor_test",
	"servo_set", "gimbal_pitch_yaw", "mission_upload", "mission_download",
	"mission_start", "mission_pause", "mission_clear", "fence_upload_circle",
	"fence_upload_polygon", "fence_download", "fence_clear",
}

var groundCommands = []string{
	"arm", "disarm", "set_mode", "goto", "set_home", "rc_override",
	"mission_upload", "mission_download", "mission_start", "mission_pause",
	"mission_clear",
}

var underwaterCommands = []string{
	"arm", "disarm", "set_mode", "goto", "set_home", "rc_override",
	"mission_upload", "mission_download", "mission_start", "mission_clear",
}

// Lookup returns the capability profile for a MAV_TYPE, falling back to a
// generic air profile for any vehicle type not explicitly tabulated.
func Lookup(mavType uint8) Profile {
	if p, ok := table[mavType]; ok {
		return p
	}
	return Profile{Name: "Generic", Category: CategoryAir, HasAltitude: true, DefaultSpeed: 5, AllowedCommands: airCommands}
}

// TypeName renders any observed MAV_TYPE, vehicle or peripheral.
func TypeName(mavType uint8) string {
	if n, ok := MAVTypeNames[mavType]; ok {
		return n
	}
	return "Unknown"
}

// ComponentCategory classifies a (mav_type) pair for the component
// inventory: vehicle, peripheral, or unknown.
func ComponentCategory(mavType uint8) string {
	switch {
	case VehicleTypes[mavType]:
		return "vehicle"
	case PeripheralTypes[mavType]:
		return "peripheral"
	default:
		return "unknown"
	}
}
