// Package broadcast runs the adaptive telemetry push engine (§4.7): one
// ticker task that computes per-vehicle deltas and fans them out to every
// subscribed sink.
package broadcast

import (
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/mavgcs/gcs-core/internal/logging"
	"github.com/mavgcs/gcs-core/internal/vehicle"
)

const (
	tickInterval   = 100 * time.Millisecond
	fullSyncPeriod = 5 * time.Second

	intervalArmedMoving = 100 * time.Millisecond
	intervalArmedIdle   = 200 * time.Millisecond
	intervalDisarmed    = 1000 * time.Millisecond

	movingThresholdMS = 0.5
)

// Sink is a push subscriber: one outbound frame at a time, never blocking
// the broadcaster. Implementations (WebSocket hub, MQTT publisher) enqueue
// into their own bounded buffer and drop on overflow.
type Sink interface {
	Send(vehicleID string, payload []byte)
}

// Source supplies the live vehicle set the engine iterates every tick.
type Source interface {
	Vehicles() []*vehicle.Vehicle
}

type vehicleState struct {
	lastSnapshot   map[string]any
	lastGeneration uint64
	lastMission    string
	lastFullSync   time.Time
	lastSend       time.Time
	haveSnapshot   bool
}

// MissionStatusFunc looks up a vehicle's current mission-engine status for
// the broadcast envelope.
type MissionStatusFunc func(vehicleID string) string

// Engine is the broadcast task.
type Engine struct {
	log          *logging.Logger
	source       Source
	missionStatus MissionStatusFunc

	mu      sync.Mutex
	sinks   []Sink
	tracked map[string]*vehicleState

	stop chan struct{}
}

func New(source Source, missionStatus MissionStatusFunc, log *logging.Logger) *Engine {
	return &Engine{
		log:           log,
		source:        source,
		missionStatus: missionStatus,
		tracked:       make(map[string]*vehicleState),
		stop:          make(chan struct{}),
	}
}

// AddSink registers a subscriber.
func (e *Engine) AddSink(s Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, s)
}

// Run drives the ticker until the context-free Stop is called. Intended
// to run in its own goroutine for the process lifetime.
func (e *Engine) Run() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.tick()
		case <-e.stop:
			return
		}
	}
}

func (e *Engine) Stop() { close(e.stop) }

func (e *Engine) tick() {
	now := time.Now()
	for _, v := range e.source.Vehicles() {
		e.tickVehicle(v, now)
	}
}

func (e *Engine) tickVehicle(v *vehicle.Vehicle, now time.Time) {
	e.mu.Lock()
	st, ok := e.tracked[v.ID]
	if !ok {
		st = &vehicleState{}
		e.tracked[v.ID] = st
	}
	e.mu.Unlock()

	tel := v.Telemetry()
	minInterval := sendInterval(tel.Armed, tel.Groundspeed)

	if now.Sub(st.lastSend) < minInterval {
		return
	}

	generation := v.Generation()
	missionStatus := ""
	if e.missionStatus != nil {
		missionStatus = e.missionStatus(v.ID)
	}
	hasStatusText := v.PeekStatusText()
	forceFull := !st.haveSnapshot || now.Sub(st.lastFullSync) >= fullSyncPeriod

	if !forceFull && generation == st.lastGeneration && missionStatus == st.lastMission && !hasStatusText {
		return
	}

	snapshot := snapshotFields(tel)
	var fields map[string]any
	if forceFull {
		fields = snapshot
	} else {
		fields = diff(st.lastSnapshot, snapshot)
	}

	statusText := v.DrainStatusText()

	if len(fields) == 0 && len(statusText) == 0 && !forceFull {
		st.lastGeneration = generation
		return
	}

	payload := map[string]any{
		"type":           "telemetry",
		"vehicle_id":     v.ID,
		"drone_name":     v.ID,
		"mission_status": missionStatus,
	}
	for k, val := range fields {
		payload[k] = val
	}
	if forceFull {
		payload["_full"] = true
	}
	if len(statusText) > 0 {
		payload["statustext"] = statusText
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		e.log.Errorf("broadcast: marshal failed for %s: %v", v.ID, err)
		return
	}

	e.broadcast(v.ID, encoded)

	st.lastSnapshot = snapshot
	st.lastGeneration = generation
	st.lastMission = missionStatus
	st.lastSend = now
	st.haveSnapshot = true
	if forceFull {
		st.lastFullSync = now
	}
}

func (e *Engine) broadcast(vehicleID string, payload []byte) {
	e.mu.Lock()
	sinks := make([]Sink, len(e.sinks))
	copy(sinks, e.sinks)
	e.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			s.Send(vehicleID, payload)
		}(s)
	}
	wg.Wait()
}

func sendInterval(armed bool, groundspeed float64) time.Duration {
	switch {
	case armed && groundspeed > movingThresholdMS:
		return intervalArmedMoving
	case armed:
		return intervalArmedIdle
	default:
		return intervalDisarmed
	}
}

// snapshotFields flattens Telemetry into the wire map, rounding floats to
// a stable precision so repeated identical values compare equal in diff.
func snapshotFields(t vehicle.Telemetry) map[string]any {
	return map[string]any{
		"roll":                  round(t.Roll),
		"pitch":                 round(t.Pitch),
		"yaw":                   round(t.Yaw),
		"latitude":              roundN(t.Latitude, 7),
		"longitude":             roundN(t.Longitude, 7),
		"altitude_relative":     round(t.AltitudeRelative),
		"altitude_msl":          round(t.AltitudeMSL),
		"heading":               round(t.Heading),
		"airspeed":              round(t.Airspeed),
		"groundspeed":           round(t.Groundspeed),
		"climb_rate":            round(t.ClimbRate),
		"battery_voltage":       round(t.BatteryVoltage),
		"battery_current":       round(t.BatteryCurrent),
		"battery_remaining_pct": round(t.BatteryRemainingPct),
		"gps_fix_type":          t.GPSFixType,
		"satellite_count":       t.SatelliteCount,
		"hdop":                  round(t.HDOP),
		"armed":                 t.Armed,
		"mode":                  t.Mode,
		"system_status":         t.SystemStatus,
		"mission_current_seq":   t.MissionCurrentSeq,
	}
}

func round(v float64) float64  { return roundN(v, 4) }
func roundN(v float64, n int) float64 {
	p := math.Pow(10, float64(n))
	return math.Round(v*p) / p
}

func diff(prev, next map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range next {
		if pv, ok := prev[k]; !ok || pv != v {
			out[k] = v
		}
	}
	return out
}
