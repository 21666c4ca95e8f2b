// Package server wires the connection registry, the adaptive broadcaster,
// and the HTTP façade into one process, and owns its startup and graceful
// shutdown sequence.
package server

import (
	"github.com/mavgcs/gcs-core/internal/config"
	"github.com/mavgcs/gcs-core/internal/httpapi"
)

// Server is the top-level process: it owns the Dependencies bundle and the
// HTTP façade built on top of it.
type Server struct {
	deps *Dependencies
	api  *httpapi.Server
}

// New builds a Server and every collaborator it needs, but does not open
// any network connections or listeners yet.
func New(cfg *config.Config) *Server {
	deps := NewDependencies(cfg)
	api := httpapi.NewServer(deps.Registry, deps.Hub, cfg.ServerAddr(), cfg.Server.CORSOrigins, deps.AddConnection, deps.Logger)
	return &Server{deps: deps, api: api}
}

// Dependencies returns the shared collaborator bundle, used by main to set
// up signal-driven shutdown.
func (s *Server) Dependencies() *Dependencies {
	return s.deps
}

// Start brings up any auto-connect links from the static link registry,
// starts the broadcast engine, and blocks serving HTTP until the listener
// fails or is closed.
func (s *Server) Start() error {
	s.deps.autoConnectLinks()
	go s.deps.Broadcast.Run()

	s.deps.Logger.Infof("gcs-core listening on %s", s.deps.Config.ServerAddr())
	return s.api.ListenAndServe()
}

// Shutdown stops the broadcaster, the MQTT publisher, and every open link.
// The HTTP listener itself is torn down by the process exiting; it does
// not hold any state that needs draining.
func (s *Server) Shutdown() {
	s.deps.Broadcast.Stop()
	s.deps.MQTT.Stop()
	for _, h := range s.deps.Registry.Links() {
		s.deps.Registry.RemoveLink(h.ID)
	}
}
