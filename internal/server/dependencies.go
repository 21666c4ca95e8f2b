package server

import (
	"context"
	"fmt"
	"time"

	"github.com/bluenviron/gomavlib/v3"

	"github.com/mavgcs/gcs-core/internal/broadcast"
	"github.com/mavgcs/gcs-core/internal/command"
	"github.com/mavgcs/gcs-core/internal/config"
	"github.com/mavgcs/gcs-core/internal/httpapi"
	"github.com/mavgcs/gcs-core/internal/link"
	"github.com/mavgcs/gcs-core/internal/logging"
	"github.com/mavgcs/gcs-core/internal/metrics"
	"github.com/mavgcs/gcs-core/internal/mission"
	"github.com/mavgcs/gcs-core/internal/modes"
	"github.com/mavgcs/gcs-core/internal/mqttpublish"
	"github.com/mavgcs/gcs-core/internal/registry"
	"github.com/mavgcs/gcs-core/internal/rcoverride"
	"github.com/mavgcs/gcs-core/internal/router"
	"github.com/mavgcs/gcs-core/internal/vehicle"
)

// linkConnectTimeout bounds how long AddConnection waits for the initial
// autopilot handshake (§6) before reporting failure to the caller.
const linkConnectTimeout = 15 * time.Second

// Dependencies holds every shared, long-lived collaborator the façade and
// the link bring-up path need: the connection registry, the websocket hub,
// the adaptive broadcaster, and the optional MQTT republisher.
type Dependencies struct {
	Config *config.Config
	Logger *logging.Logger

	Registry  *registry.Registry
	Hub       *httpapi.Hub
	Broadcast *broadcast.Engine
	MQTT      *mqttpublish.Publisher
}

// NewDependencies wires up everything that does not itself require a
// network connection: the registry (with its per-vehicle mission-engine
// factory), the websocket hub (with its rc_override submission path), and
// the adaptive broadcast engine (with both the hub and the MQTT publisher
// as sinks).
func NewDependencies(cfg *config.Config) *Dependencies {
	log := logging.New("[gcs-core] ")
	log.SetLevelFromString(cfg.Logging.Level)

	d := &Dependencies{Config: cfg, Logger: log}
	d.Registry = registry.New(log, d.missionEngineFactory)
	d.Hub = httpapi.NewHub(d.submitRCOverride, log)
	d.Broadcast = broadcast.New(d.Registry, d.missionStatus, log)
	d.Broadcast.AddSink(d.Hub)

	d.MQTT = mqttpublish.New(cfg.MQTT, log)
	if err := d.MQTT.Start(); err != nil {
		log.Warnf("mqtt publisher did not start: %v", err)
	} else if cfg.MQTT.BrokerURL != "" {
		d.Broadcast.AddSink(d.MQTT)
	}

	return d
}

// missionStatus satisfies broadcast.MissionStatusFunc.
func (d *Dependencies) missionStatus(vehicleID string) string {
	m, ok := d.Registry.Mission(vehicleID)
	if !ok {
		return ""
	}
	return string(m.Status())
}

// missionEngineFactory satisfies registry.MissionEngineFactory: every
// Vehicle gets its own mission.Engine bound to its own MissionInbox and
// sending on its owning Link.
func (d *Dependencies) missionEngineFactory(v *vehicle.Vehicle) *mission.Engine {
	// Registry.AddVehicle calls this while holding its lock, so the owning
	// link is looked up on each send rather than here.
	linkID := v.LinkID
	send := func(msg any) error {
		h, ok := d.Registry.Link(linkID)
		if !ok {
			return fmt.Errorf("link %s is no longer registered", linkID)
		}
		return h.Sender()(msg)
	}
	return mission.New(v.ID, v.TargetSystem, v.TargetComponent, v.AutopilotFlavor, send, v.MissionInbox, d.Logger)
}

// submitRCOverride satisfies httpapi.RCOverrideFunc: it looks up the
// vehicle's owning link queue and enqueues a KindRCOverride record.
func (d *Dependencies) submitRCOverride(vehicleID string, channels [rcoverride.NumChannels]int) bool {
	v, ok := d.Registry.Vehicle(vehicleID)
	if !ok {
		return false
	}
	h, ok := d.Registry.Link(v.LinkID)
	if !ok {
		return false
	}
	return h.Queue.Submit(command.Record{
		Kind:            command.KindRCOverride,
		TargetSystem:    v.TargetSystem,
		TargetComponent: v.TargetComponent,
		Flavor:          v.AutopilotFlavor,
		Params:          map[string]any{"channels": channels},
	})
}

// AddConnection implements httpapi.AddConnectionFunc: it opens the
// transport, processes any frames buffered during the handshake window so
// the caller sees every vehicle discovered before the HTTP response is
// written, and then hands the link off to a background worker loop.
func (d *Dependencies) AddConnection(linkID, transport string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), linkConnectTimeout)
	defer cancel()

	l, err := link.Open(ctx, link.Config{ID: linkID, Transport: transport}, d.Logger)
	if err != nil {
		return nil, fmt.Errorf("open link %s: %w", linkID, err)
	}

	var discovered []string
	rtr := router.New(d.Logger, func(sysID uint8, flavor modes.Flavor, mavType uint8) {
		v := d.Registry.AddVehicle(linkID, sysID, flavor, mavType)
		discovered = append(discovered, v.ID)
		metrics.Get().VehiclesConnected.Inc()
	})

	handle := &registry.LinkHandle{
		ID:     linkID,
		Link:   l,
		Router: rtr,
		Queue:  command.NewQueue(),
	}
	handle.Executor = command.NewExecutor(handle.Sender(), d.Logger)
	d.Registry.AddLink(handle)

	for _, frm := range l.Drain() {
		rtr.Handle(frm)
	}

	go d.runLink(handle)

	metrics.Get().LinksConnected.Inc()
	return discovered, nil
}

// runLink drains inbound frames into the router and services the command
// queue and GCS heartbeat on their own cadences until the link is closed.
func (d *Dependencies) runLink(h *registry.LinkHandle) {
	heartbeat := time.NewTicker(1 * time.Second)
	defer heartbeat.Stop()
	drain := time.NewTicker(50 * time.Millisecond)
	defer drain.Stop()

	for {
		select {
		case evt, ok := <-h.Link.Events():
			if !ok {
				d.Logger.Infof("link %s: event channel closed, worker exiting", h.ID)
				return
			}
			if frm, ok := evt.(*gomavlib.EventFrame); ok {
				h.Router.Handle(frm)
			}
		case <-heartbeat.C:
			if err := h.Executor.Heartbeat(); err != nil {
				d.Logger.Warnf("link %s: heartbeat send failed: %v", h.ID, err)
			}
		case <-drain.C:
			h.Executor.DrainAll(h.Queue)
		}
	}
}

// autoConnectLinks brings up every link in the static registry marked
// auto_connect, logging (rather than failing startup on) any that cannot
// reach handshake.
func (d *Dependencies) autoConnectLinks() {
	if d.Config.Server.LinkRegistryPath == "" {
		return
	}
	reg, err := config.LoadLinkRegistry(d.Config.Server.LinkRegistryPath)
	if err != nil {
		d.Logger.Infof("no link registry loaded from %s: %v", d.Config.Server.LinkRegistryPath, err)
		return
	}
	for _, lc := range reg.Links {
		if !lc.AutoConnect {
			continue
		}
		if _, err := d.AddConnection(lc.ID, lc.Transport); err != nil {
			d.Logger.Warnf("auto-connect %s (%s) failed: %v", lc.ID, lc.Transport, err)
		}
	}
}

