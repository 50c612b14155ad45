package adminapi

import (
	"log/slog"
	"net/http"

	"github.com/protosim/simulatord/pkg/mqttsim"
	"github.com/protosim/simulatord/pkg/simulator"
	"github.com/protosim/simulatord/pkg/template"
)

// Server is the HTTP front door for the simulator manager (spec.md §6.1).
type Server struct {
	sim       *simulator.Manager
	mqtt      *mqttsim.Manager
	templates *template.Catalog
	log       *slog.Logger
	mux       *http.ServeMux
}

// New builds a Server wired to the given managers.
func New(sim *simulator.Manager, mqttMgr *mqttsim.Manager, templates *template.Catalog, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{sim: sim, mqtt: mqttMgr, templates: templates, log: log, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// Handler returns the root http.Handler for http.Server.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
