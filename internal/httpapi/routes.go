package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mavgcs/gcs-core/internal/command"
	"github.com/mavgcs/gcs-core/internal/logging"
	"github.com/mavgcs/gcs-core/internal/metrics"
	"github.com/mavgcs/gcs-core/internal/mission"
	"github.com/mavgcs/gcs-core/internal/registry"
	"github.com/mavgcs/gcs-core/internal/rcoverride"
)

func promHandler() http.Handler { return promhttp.Handler() }

// criticalParamPrefixes require an explicit confirm=true before the
// executor is asked to emit PARAM_SET (§6).
var criticalParamPrefixes = []string{"BATT_", "FS_", "ARMING_", "MOT_", "INS_"}

func criticalCategory(paramID string) (string, bool) {
	for _, p := range criticalParamPrefixes {
		if len(paramID) >= len(p) && paramID[:len(p)] == p {
			switch p {
			case "BATT_":
				return "battery", true
			case "FS_":
				return "failsafe", true
			case "ARMING_":
				return "arming", true
			case "MOT_":
				return "motor", true
			case "INS_":
				return "ins", true
			}
		}
	}
	return "", false
}

// AddConnectionFunc brings up a new Link by id and transport string,
// returning the vehicle ids discovered during the handshake window.
type AddConnectionFunc func(linkID, transport string) ([]string, error)

// Server is the chi-based HTTP façade.
type Server struct {
	reg  *registry.Registry
	hub  *Hub
	log  *logging.Logger
	addr string

	onAddConnection AddConnectionFunc

	router chi.Router
}

func NewServer(reg *registry.Registry, hub *Hub, addr string, corsOrigins []string, onAddConnection AddConnectionFunc, log *logging.Logger) *Server {
	s := &Server{reg: reg, hub: hub, addr: addr, onAddConnection: onAddConnection, log: log}
	s.router = s.buildRouter(corsOrigins)
	return s
}

func (s *Server) buildRouter(origins []string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	r.Get("/ws/telemetry", s.hub.ServeWS)
	r.Handle("/metrics", promHandler())

	r.Route("/api/connections", func(r chi.Router) {
		r.Get("/", s.listConnections)
		r.Post("/{linkID}", s.addConnection)
		r.Delete("/{linkID}", s.removeConnection)
	})

	r.Route("/api/vehicles", func(r chi.Router) {
		r.Get("/", s.listVehicles)
		r.Post("/active/{vehicleID}", s.setActiveVehicle)
		r.Get("/telemetry", s.getAllTelemetry)

		r.Route("/{vehicleID}", func(r chi.Router) {
			r.Post("/arm", s.vehicleCommand(command.KindArm))
			r.Post("/disarm", s.vehicleCommand(command.KindDisarm))
			r.Post("/takeoff", s.vehicleCommand(command.KindTakeoff))
			r.Post("/land", s.vehicleCommand(command.KindLand))
			r.Post("/rtl", s.vehicleCommand(command.KindRTL))
			r.Post("/set_mode", s.vehicleCommand(command.KindSetMode))
			r.Post("/set_standard_mode", s.vehicleCommand(command.KindSetStandardMode))
			r.Post("/goto", s.vehicleCommand(command.KindGoto))
			r.Post("/set_roi", s.vehicleCommand(command.KindSetROI))
			r.Post("/set_home", s.vehicleCommand(command.KindSetHome))
			r.Post("/calibrate", s.vehicleCommand(command.KindPreflightCalibration))
			r.Post("/rc_override", s.rcOverride)
			r.Post("/motor_test", s.vehicleCommand(command.KindMotorTest))
			r.Post("/servo_set", s.vehicleCommand(command.KindServoSet))
			r.Post("/gimbal_pitch_yaw", s.vehicleCommand(command.KindGimbalPitchYaw))

			r.Route("/mission", func(r chi.Router) {
				r.Post("/upload", s.missionUpload)
				r.Get("/download", s.missionDownload)
				r.Post("/start", s.missionStart)
				r.Post("/pause", s.missionPause)
				r.Post("/resume", s.missionResume)
				r.Post("/clear", s.missionClear)
				r.Post("/set_current", s.missionSetCurrent)
			})

			r.Route("/fence", func(r chi.Router) {
				r.Post("/upload_circle", s.fenceUploadCircle)
				r.Post("/upload_polygon", s.fenceUploadPolygon)
				r.Get("/download", s.fenceDownload)
				r.Post("/clear", s.fenceClear)
			})

			r.Route("/params", func(r chi.Router) {
				r.Get("/", s.paramsList)
				r.Post("/refresh", s.paramsRefresh)
				r.Post("/set", s.paramSet)
			})
		})
	})

	r.Route("/api/inspector", func(r chi.Router) {
		r.Get("/stats", s.inspectorStats)
		r.Get("/components", s.inspectorComponents)
		r.Post("/clear", s.inspectorClear)
	})

	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func ok(w http.ResponseWriter, extra map[string]any) {
	if extra == nil {
		extra = map[string]any{}
	}
	extra["status"] = "ok"
	writeJSON(w, http.StatusOK, extra)
}

func errResp(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"status": "error", "error": msg})
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

// --- connections ---

func (s *Server) listConnections(w http.ResponseWriter, r *http.Request) {
	links := s.reg.Links()
	out := make([]map[string]any, 0, len(links))
	for _, h := range links {
		out = append(out, map[string]any{"id": h.ID})
	}
	ok(w, map[string]any{"connections": out})
}

func (s *Server) addConnection(w http.ResponseWriter, r *http.Request) {
	// Link bring-up needs the server's wiring closures (mavlink Open,
	// router/executor/mission construction); the façade only validates the
	// request shape and defers to the callback installed at start-up.
	if s.onAddConnection == nil {
		errResp(w, http.StatusNotImplemented, "connection bring-up not wired")
		return
	}
	linkID := chi.URLParam(r, "linkID")
	var body struct{ Transport string `json:"transport"` }
	_ = decodeBody(r, &body)
	vehicleIDs, err := s.onAddConnection(linkID, body.Transport)
	if err != nil {
		errResp(w, http.StatusBadGateway, err.Error())
		return
	}
	ok(w, map[string]any{"conn_id": linkID, "vehicle_ids": vehicleIDs})
}

func (s *Server) removeConnection(w http.ResponseWriter, r *http.Request) {
	linkID := chi.URLParam(r, "linkID")
	if _, exists := s.reg.Link(linkID); !exists {
		errResp(w, http.StatusNotFound, "no such connection")
		return
	}
	s.reg.RemoveLink(linkID)
	metrics.Get().LinksConnected.Dec()
	ok(w, nil)
}

// --- vehicles ---

func (s *Server) listVehicles(w http.ResponseWriter, r *http.Request) {
	vs := s.reg.Vehicles()
	out := make([]map[string]any, 0, len(vs))
	for _, v := range vs {
		out = append(out, map[string]any{
			"id": v.ID, "link_id": v.LinkID, "platform_type": v.Profile.Name,
			"autopilot": v.AutopilotFlavor.String(), "color": v.Color,
		})
	}
	ok(w, map[string]any{"vehicles": out})
}

func (s *Server) setActiveVehicle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "vehicleID")
	if !s.reg.SetActive(id) {
		errResp(w, http.StatusNotFound, "vehicle not found")
		return
	}
	ok(w, nil)
}

func (s *Server) getAllTelemetry(w http.ResponseWriter, r *http.Request) {
	all := s.reg.AllTelemetry()
	ok(w, map[string]any{"telemetry": all})
}

// --- vehicle commands ---

func (s *Server) vehicle(w http.ResponseWriter, r *http.Request) (*registry.LinkHandle, string, bool) {
	id := chi.URLParam(r, "vehicleID")
	v, exists := s.reg.Vehicle(id)
	if !exists {
		errResp(w, http.StatusNotFound, "vehicle not found")
		return nil, "", false
	}
	h, exists := s.reg.Link(v.LinkID)
	if !exists {
		errResp(w, http.StatusInternalServerError, "vehicle has no owning link")
		return nil, "", false
	}
	return h, id, true
}

// vehicleCommand builds a handler that decodes a JSON body into command
// params and submits it to the owning link's queue.
func (s *Server) vehicleCommand(kind command.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, id, okv := s.vehicle(w, r)
		if !okv {
			return
		}
		v, _ := s.reg.Vehicle(id)

		var params map[string]any
		_ = decodeBody(r, &params)
		if params == nil {
			params = map[string]any{}
		}
		params["mav_type"] = v.MAVType

		rec := command.Record{
			Kind: kind, TargetSystem: v.TargetSystem, TargetComponent: v.TargetComponent,
			Flavor: v.AutopilotFlavor, Params: params,
		}
		metrics.Get().CommandsSubmitted.WithLabelValues(string(kind)).Inc()
		if !h.Queue.Submit(rec) {
			metrics.Get().CommandsDropped.WithLabelValues(string(kind)).Inc()
			errResp(w, http.StatusServiceUnavailable, "command queue saturated")
			return
		}
		ok(w, nil)
	}
}

func (s *Server) rcOverride(w http.ResponseWriter, r *http.Request) {
	h, id, okv := s.vehicle(w, r)
	if !okv {
		return
	}
	v, _ := s.reg.Vehicle(id)

	var body struct {
		Channels []any `json:"channels"`
	}
	_ = decodeBody(r, &body)
	channels := rcoverride.ValidateAny(body.Channels)

	rec := command.Record{
		Kind: command.KindRCOverride, TargetSystem: v.TargetSystem, TargetComponent: v.TargetComponent,
		Flavor: v.AutopilotFlavor, Params: map[string]any{"channels": channels},
	}
	if !h.Queue.Submit(rec) {
		metrics.Get().RCOverrideRejections.Inc()
		errResp(w, http.StatusServiceUnavailable, "command queue saturated")
		return
	}
	ok(w, nil)
}

// --- mission / fence ---

func (s *Server) missionEngine(w http.ResponseWriter, r *http.Request) (*mission.Engine, bool) {
	id := chi.URLParam(r, "vehicleID")
	m, exists := s.reg.Mission(id)
	if !exists {
		errResp(w, http.StatusNotFound, "vehicle not found")
		return nil, false
	}
	return m, true
}

func (s *Server) missionUpload(w http.ResponseWriter, r *http.Request) {
	m, okv := s.missionEngine(w, r)
	if !okv {
		return
	}
	var body struct {
		Waypoints []mission.Waypoint `json:"waypoints"`
	}
	if err := decodeBody(r, &body); err != nil {
		errResp(w, http.StatusBadRequest, "invalid body")
		return
	}
	success := m.Upload(body.Waypoints)
	outcome := "failed"
	if success {
		outcome = "ok"
	}
	metrics.Get().MissionOperations.WithLabelValues("upload", outcome).Inc()
	if !success {
		errResp(w, http.StatusConflict, "mission upload failed")
		return
	}
	ok(w, nil)
}

func (s *Server) missionDownload(w http.ResponseWriter, r *http.Request) {
	m, okv := s.missionEngine(w, r)
	if !okv {
		return
	}
	wps, err := m.Download()
	if err != nil {
		metrics.Get().MissionOperations.WithLabelValues("download", "failed").Inc()
		errResp(w, http.StatusGatewayTimeout, err.Error())
		return
	}
	metrics.Get().MissionOperations.WithLabelValues("download", "ok").Inc()
	ok(w, map[string]any{"waypoints": wps})
}

// setModeFunc submits a set_mode command for the given vehicle and returns
// immediately: the mission engine's Start/Pause only need the mode switch
// enqueued, not acknowledged, matching §4.3's fire-and-forget dispatch.
func (s *Server) setModeFunc(vehicleID string) func(name string) error {
	return func(name string) error {
		v, exists := s.reg.Vehicle(vehicleID)
		if !exists {
			return nil
		}
		h, exists := s.reg.Link(v.LinkID)
		if !exists {
			return nil
		}
		h.Queue.Submit(command.Record{
			Kind: command.KindSetMode, TargetSystem: v.TargetSystem, TargetComponent: v.TargetComponent,
			Flavor: v.AutopilotFlavor, Params: map[string]any{"mode_name": name, "mav_type": v.MAVType},
		})
		return nil
	}
}

func (s *Server) enableFenceFunc(vehicleID string) func() error {
	return s.fenceSetFunc(vehicleID, true)
}

func (s *Server) disableFenceFunc(vehicleID string) func() error {
	return s.fenceSetFunc(vehicleID, false)
}

func (s *Server) fenceSetFunc(vehicleID string, enable bool) func() error {
	return func() error {
		v, exists := s.reg.Vehicle(vehicleID)
		if !exists {
			return nil
		}
		h, exists := s.reg.Link(v.LinkID)
		if !exists {
			return nil
		}
		h.Queue.Submit(command.Record{
			Kind: command.KindFenceEnable, TargetSystem: v.TargetSystem, TargetComponent: v.TargetComponent,
			Flavor: v.AutopilotFlavor, Params: map[string]any{"enable": enable},
		})
		return nil
	}
}

func (s *Server) missionStart(w http.ResponseWriter, r *http.Request) {
	m, okv := s.missionEngine(w, r)
	if !okv {
		return
	}
	id := chi.URLParam(r, "vehicleID")
	if err := m.Start(s.setModeFunc(id)); err != nil {
		metrics.Get().MissionOperations.WithLabelValues("start", "failed").Inc()
		errResp(w, http.StatusBadGateway, err.Error())
		return
	}
	metrics.Get().MissionOperations.WithLabelValues("start", "ok").Inc()
	ok(w, nil)
}

func (s *Server) missionPause(w http.ResponseWriter, r *http.Request) {
	m, okv := s.missionEngine(w, r)
	if !okv {
		return
	}
	id := chi.URLParam(r, "vehicleID")
	if err := m.Pause(s.setModeFunc(id)); err != nil {
		metrics.Get().MissionOperations.WithLabelValues("pause", "failed").Inc()
		errResp(w, http.StatusBadGateway, err.Error())
		return
	}
	metrics.Get().MissionOperations.WithLabelValues("pause", "ok").Inc()
	ok(w, nil)
}

func (s *Server) missionResume(w http.ResponseWriter, r *http.Request) {
	m, okv := s.missionEngine(w, r)
	if !okv {
		return
	}
	id := chi.URLParam(r, "vehicleID")
	if err := m.Resume(s.setModeFunc(id)); err != nil {
		metrics.Get().MissionOperations.WithLabelValues("resume", "failed").Inc()
		errResp(w, http.StatusBadGateway, err.Error())
		return
	}
	metrics.Get().MissionOperations.WithLabelValues("resume", "ok").Inc()
	ok(w, nil)
}

func (s *Server) missionClear(w http.ResponseWriter, r *http.Request) {
	m, okv := s.missionEngine(w, r)
	if !okv {
		return
	}
	m.Clear()
	metrics.Get().MissionOperations.WithLabelValues("clear", "ok").Inc()
	ok(w, nil)
}

func (s *Server) missionSetCurrent(w http.ResponseWriter, r *http.Request) {
	m, okv := s.missionEngine(w, r)
	if !okv {
		return
	}
	var body struct {
		Index int `json:"index"`
	}
	_ = decodeBody(r, &body)
	if err := m.SetCurrent(body.Index); err != nil {
		errResp(w, http.StatusBadGateway, err.Error())
		return
	}
	ok(w, nil)
}

func (s *Server) fenceUploadCircle(w http.ResponseWriter, r *http.Request) {
	m, okv := s.missionEngine(w, r)
	if !okv {
		return
	}
	id := chi.URLParam(r, "vehicleID")
	var body struct {
		Lat    float64 `json:"lat"`
		Lon    float64 `json:"lon"`
		Radius float64 `json:"radius"`
	}
	_ = decodeBody(r, &body)
	success := m.UploadFenceCircle(mission.FenceVertex{Lat: body.Lat, Lon: body.Lon}, body.Radius, s.enableFenceFunc(id))
	outcome := "failed"
	if success {
		outcome = "ok"
	}
	metrics.Get().MissionOperations.WithLabelValues("fence_upload_circle", outcome).Inc()
	if !success {
		errResp(w, http.StatusConflict, "fence upload failed")
		return
	}
	ok(w, nil)
}

func (s *Server) fenceUploadPolygon(w http.ResponseWriter, r *http.Request) {
	m, okv := s.missionEngine(w, r)
	if !okv {
		return
	}
	id := chi.URLParam(r, "vehicleID")
	var body struct {
		Vertices []mission.FenceVertex `json:"vertices"`
	}
	_ = decodeBody(r, &body)
	if len(body.Vertices) < 3 {
		errResp(w, http.StatusBadRequest, "polygon fence requires at least 3 vertices")
		return
	}
	success := m.UploadFencePolygon(body.Vertices, s.enableFenceFunc(id))
	outcome := "failed"
	if success {
		outcome = "ok"
	}
	metrics.Get().MissionOperations.WithLabelValues("fence_upload_polygon", outcome).Inc()
	if !success {
		errResp(w, http.StatusConflict, "fence upload failed")
		return
	}
	ok(w, nil)
}

func (s *Server) fenceDownload(w http.ResponseWriter, r *http.Request) {
	m, okv := s.missionEngine(w, r)
	if !okv {
		return
	}
	items, err := m.DownloadFence()
	if err != nil {
		errResp(w, http.StatusGatewayTimeout, err.Error())
		return
	}
	ok(w, map[string]any{"fence": items})
}

func (s *Server) fenceClear(w http.ResponseWriter, r *http.Request) {
	m, okv := s.missionEngine(w, r)
	if !okv {
		return
	}
	id := chi.URLParam(r, "vehicleID")
	m.ClearFence(s.disableFenceFunc(id))
	ok(w, nil)
}

// --- parameters ---

func (s *Server) paramsList(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "vehicleID")
	v, exists := s.reg.Vehicle(id)
	if !exists {
		errResp(w, http.StatusNotFound, "vehicle not found")
		return
	}
	params, total := v.Params()
	ok(w, map[string]any{"params": params, "total": total})
}

func (s *Server) paramsRefresh(w http.ResponseWriter, r *http.Request) {
	h, id, okv := s.vehicle(w, r)
	if !okv {
		return
	}
	v, _ := s.reg.Vehicle(id)
	rec := command.Record{
		Kind: command.KindRequestParamList, TargetSystem: v.TargetSystem, TargetComponent: v.TargetComponent,
		Flavor: v.AutopilotFlavor, Params: map[string]any{},
	}
	h.Queue.Submit(rec)
	ok(w, nil)
}

func (s *Server) paramSet(w http.ResponseWriter, r *http.Request) {
	h, id, okv := s.vehicle(w, r)
	if !okv {
		return
	}
	v, _ := s.reg.Vehicle(id)

	var body struct {
		ParamID string  `json:"param_id"`
		Value   float32 `json:"value"`
		Confirm bool    `json:"confirm"`
	}
	if err := decodeBody(r, &body); err != nil {
		errResp(w, http.StatusBadRequest, "invalid body")
		return
	}

	if category, critical := criticalCategory(body.ParamID); critical && !body.Confirm {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "confirm_required", "category": category,
		})
		return
	}

	rec := command.Record{
		Kind: command.KindSetParam, TargetSystem: v.TargetSystem, TargetComponent: v.TargetComponent,
		Flavor: v.AutopilotFlavor,
		Params: map[string]any{"param_id": body.ParamID, "value": body.Value},
	}
	h.Queue.Submit(rec)
	ok(w, nil)
}

// --- inspector ---

func (s *Server) inspectorStats(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("link_id")
	h, exists := s.reg.Link(id)
	if !exists {
		if links := s.reg.Links(); len(links) > 0 {
			h = links[0]
		} else {
			errResp(w, http.StatusNotFound, "no links")
			return
		}
	}
	ok(w, map[string]any{"stats": h.Router.InspectorSnapshot()})
}

func (s *Server) inspectorComponents(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("link_id")
	h, exists := s.reg.Link(id)
	if !exists {
		if links := s.reg.Links(); len(links) > 0 {
			h = links[0]
		} else {
			errResp(w, http.StatusNotFound, "no links")
			return
		}
	}
	ok(w, map[string]any{"components": h.Router.Components()})
}

func (s *Server) inspectorClear(w http.ResponseWriter, r *http.Request) {
	for _, h := range s.reg.Links() {
		h.Router.ClearInspector()
	}
	ok(w, nil)
}
