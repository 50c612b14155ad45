package adminapi

import (
	"net/http"

	"github.com/protosim/simulatord/pkg/simulator"
	"github.com/protosim/simulatord/pkg/simulator/protohandler"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, map[string]string{"status": "ok"})
}

// handleListProtocols reports the closed set of handler kinds the TCP/UDP
// family supports (spec.md §6.1 GET /protocols).
func (s *Server) handleListProtocols(w http.ResponseWriter, r *http.Request) {
	writeData(w, []protohandler.Kind{
		protohandler.KindSceneLoader,
		protohandler.KindModbus,
		protohandler.KindCustom,
	})
}

func (s *Server) handleTCPCreate(w http.ResponseWriter, r *http.Request) {
	var req simulator.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	info, err := s.sim.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, info)
}

func (s *Server) handleTCPList(w http.ResponseWriter, r *http.Request) {
	writeData(w, s.sim.List())
}

func (s *Server) handleTCPGet(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sim.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, snap)
}

func (s *Server) handleTCPDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.sim.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleTCPStart(w http.ResponseWriter, r *http.Request) {
	if err := s.sim.Start(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleTCPStop(w http.ResponseWriter, r *http.Request) {
	if err := s.sim.Stop(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleTCPSetState(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Values map[string]any `json:"values"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.sim.SetState(r.PathValue("id"), body.Values); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleTCPSetFault(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Fault string `json:"fault"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.sim.SetFault(r.PathValue("id"), body.Fault); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleTCPClearFault(w http.ResponseWriter, r *http.Request) {
	if err := s.sim.SetFault(r.PathValue("id"), ""); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleTCPSetOnline(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Online bool `json:"online"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.sim.SetOnline(r.PathValue("id"), body.Online); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}
