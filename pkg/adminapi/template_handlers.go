package adminapi

import (
	"encoding/json"
	"net/http"

	"github.com/protosim/simulatord/pkg/simulator"
)

func (s *Server) handleTemplatesList(w http.ResponseWriter, r *http.Request) {
	writeData(w, s.templates.List())
}

func (s *Server) handleTemplateCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name   string          `json:"name"`
		Config json.RawMessage `json:"config"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.templates.Put(body.Name, body.Config); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleTemplateUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Config json.RawMessage `json:"config"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.templates.Put(r.PathValue("id"), body.Config); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleTemplateDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.templates.Delete(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

// handleCreateFromTemplate builds a TCP/UDP simulator from a stored
// template's config, optionally overriding name/port from the request body.
func (s *Server) handleCreateFromTemplate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TemplateName string `json:"template_name"`
		Name         string `json:"name"`
		Port         int    `json:"port"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	cfg, err := s.templates.Get(body.TemplateName)
	if err != nil {
		writeError(w, err)
		return
	}

	var req simulator.CreateRequest
	if err := json.Unmarshal(cfg, &req); err != nil {
		writeError(w, err)
		return
	}
	if body.Name != "" {
		req.Name = body.Name
	}
	if body.Port != 0 {
		req.Port = body.Port
	}

	info, err := s.sim.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, info)
}

// handleSaveAsTemplate stores the named simulator's current declared config
// as a reusable template.
func (s *Server) handleSaveAsTemplate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	snap, err := s.sim.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	name := body.Name
	if name == "" {
		name = snap.Info.Name
	}

	cfg, err := json.Marshal(simulator.CreateRequest{
		Name:           snap.Info.Name,
		Description:    snap.Info.Description,
		Protocol:       snap.Info.Protocol,
		Transport:      snap.Info.Transport,
		BindAddr:       snap.Info.BindAddr,
		Port:           snap.Info.Port,
		AutoStart:      snap.Info.AutoStart,
		ProtocolConfig: snap.Info.ProtocolConfig,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.templates.Put(name, cfg); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}
