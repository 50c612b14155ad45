package adminapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/protosim/simulatord/pkg/mqttsim"
	"github.com/protosim/simulatord/pkg/mqttsim/rules"
	"github.com/protosim/simulatord/pkg/protocol"
)

func (s *Server) handleMQTTCreate(w http.ResponseWriter, r *http.Request) {
	var req mqttsim.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	info, err := s.mqtt.Create(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, info)
}

func (s *Server) handleMQTTList(w http.ResponseWriter, r *http.Request) {
	writeData(w, s.mqtt.List())
}

func (s *Server) handleMQTTGet(w http.ResponseWriter, r *http.Request) {
	snap, err := s.mqtt.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, snap)
}

func (s *Server) handleMQTTDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.mqtt.Delete(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleMQTTStart(w http.ResponseWriter, r *http.Request) {
	if err := s.mqtt.Start(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleMQTTStop(w http.ResponseWriter, r *http.Request) {
	if err := s.mqtt.Stop(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleMQTTRulesList(w http.ResponseWriter, r *http.Request) {
	snap, err := s.mqtt.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, snap.Info.Rules)
}

func (s *Server) handleMQTTRuleAdd(w http.ResponseWriter, r *http.Request) {
	var rule rules.Rule
	if err := decodeJSON(r, &rule); err != nil {
		writeError(w, err)
		return
	}
	if err := s.mqtt.AddRule(r.PathValue("id"), &rule); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleMQTTRuleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.mqtt.RemoveRule(r.PathValue("id"), r.PathValue("rule_id")); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

// handleMQTTExport returns every MQTT simulator's declared config as an
// importable document (spec.md §6.1 GET /export).
func (s *Server) handleMQTTExport(w http.ResponseWriter, r *http.Request) {
	writeData(w, mqttsim.ExportDocument{Simulators: s.mqtt.List()})
}

// handleMQTTImport recreates simulators from an exported document. Existing
// simulators sharing a bind_addr:port are skipped unless replace_existing
// is set, in which case they are deleted first.
func (s *Server) handleMQTTImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Simulators      []json.RawMessage `json:"simulators"`
		ReplaceExisting bool              `json:"replace_existing"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	imported := 0
	for _, raw := range req.Simulators {
		var info mqttsim.Info
		if err := json.Unmarshal(raw, &info); err != nil {
			s.log.Warn("mqtt import: skipping malformed entry", "error", err)
			continue
		}

		if req.ReplaceExisting {
			for _, existing := range s.mqtt.List() {
				if existing.BindAddr == info.BindAddr && existing.Port == info.Port {
					_ = s.mqtt.Delete(existing.ID)
				}
			}
		}

		_, err := s.mqtt.Create(mqttsim.CreateRequest{
			Name:         info.Name,
			Description:  info.Description,
			Mode:         info.Mode,
			BindAddr:     info.BindAddr,
			Port:         info.Port,
			AutoStart:    info.AutoStart,
			MqttVersions: info.MqttVersions,
			ProxyConfig:  info.ProxyConfig,
			Rules:        info.Rules,
		})
		if err != nil {
			if errors.Is(err, protocol.ErrConflict) {
				s.log.Warn("mqtt import: skipping conflicting simulator", "name", info.Name)
				continue
			}
			writeError(w, err)
			return
		}
		imported++
	}

	writeData(w, map[string]int{"imported": imported})
}
