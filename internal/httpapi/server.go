package httpapi

import (
	"net/http"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// ListenAndServe starts the façade over cleartext HTTP/2, carrying plain
// JSON/chi handlers.
func (s *Server) ListenAndServe() error {
	handler := h2c.NewHandler(s.router, &http2.Server{})
	s.log.Infof("http façade listening on %s", s.addr)
	return http.ListenAndServe(s.addr, handler)
}
