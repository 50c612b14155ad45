package adminapi

import (
	"net/http"
	"strconv"

	"github.com/protosim/simulatord/pkg/monitor"
)

// afterIDAndLimit parses the ?afterId=&limit= query pair shared by both
// simulator families' packet listing endpoints (spec.md §6.1).
func afterIDAndLimit(r *http.Request) (afterID uint64, limit int) {
	q := r.URL.Query()
	if v := q.Get("afterId"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			afterID = n
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	return afterID, limit
}

func (s *Server) handleTCPPackets(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sim.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	afterID, limit := afterIDAndLimit(r)
	writeData(w, filterPackets(snap.Packets, afterID, limit))
}

func (s *Server) handleTCPClearPackets(w http.ResponseWriter, r *http.Request) {
	if err := s.sim.ClearPackets(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleTCPPacketSettings(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled    *bool `json:"enabled"`
		MaxPackets *int  `json:"maxPackets"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.sim.SetPacketSettings(r.PathValue("id"), body.Enabled, body.MaxPackets); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleMQTTPackets(w http.ResponseWriter, r *http.Request) {
	snap, err := s.mqtt.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	afterID, limit := afterIDAndLimit(r)
	writeData(w, filterPackets(snap.Packets, afterID, limit))
}

func (s *Server) handleMQTTClearPackets(w http.ResponseWriter, r *http.Request) {
	if err := s.mqtt.ClearPackets(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

// filterPackets applies afterId/limit over an already-fetched packet
// snapshot. Manager.Get returns the full retained set (Monitor.All), so
// afterId/limit are applied here rather than adding a second, narrower
// manager accessor.
func filterPackets(packets []monitor.Record, afterID uint64, limit int) []monitor.Record {
	out := make([]monitor.Record, 0, len(packets))
	for _, p := range packets {
		if p.ID > afterID {
			out = append(out, p)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
