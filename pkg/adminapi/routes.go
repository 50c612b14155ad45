// Route registration for the admin API.

package adminapi

import "net/http"

// registerRoutes sets up every route in spec.md §6.1. Go's ServeMux prefers
// the more specific pattern at any given path depth, so literal segments
// like "list" or "templates" are matched before the "{id}" wildcard
// regardless of registration order.
func (s *Server) registerRoutes() {
	mux := s.mux

	// TCP/UDP simulator lifecycle.
	mux.HandleFunc("GET /api/tcp-simulator/protocols", s.handleListProtocols)
	mux.HandleFunc("POST /api/tcp-simulator/create", s.handleTCPCreate)
	mux.HandleFunc("GET /api/tcp-simulator/list", s.handleTCPList)
	mux.HandleFunc("GET /api/tcp-simulator/{id}", s.handleTCPGet)
	mux.HandleFunc("DELETE /api/tcp-simulator/{id}", s.handleTCPDelete)
	mux.HandleFunc("POST /api/tcp-simulator/{id}/start", s.handleTCPStart)
	mux.HandleFunc("POST /api/tcp-simulator/{id}/stop", s.handleTCPStop)
	mux.HandleFunc("POST /api/tcp-simulator/{id}/state", s.handleTCPSetState)
	mux.HandleFunc("POST /api/tcp-simulator/{id}/fault", s.handleTCPSetFault)
	mux.HandleFunc("POST /api/tcp-simulator/{id}/clear-fault", s.handleTCPClearFault)
	mux.HandleFunc("POST /api/tcp-simulator/{id}/online", s.handleTCPSetOnline)

	// Modbus sub-resources.
	mux.HandleFunc("GET /api/tcp-simulator/{id}/modbus/slaves", s.handleModbusSlaves)
	mux.HandleFunc("POST /api/tcp-simulator/{id}/modbus/slave", s.handleModbusAddSlave)
	mux.HandleFunc("DELETE /api/tcp-simulator/{id}/modbus/slave/{slaveId}", s.handleModbusRemoveSlave)
	mux.HandleFunc("POST /api/tcp-simulator/{id}/modbus/register", s.handleModbusSetRegister)
	mux.HandleFunc("POST /api/tcp-simulator/{id}/modbus/register/delete", s.handleModbusDeleteRegister)
	mux.HandleFunc("POST /api/tcp-simulator/{id}/modbus/register/value", s.handleModbusSetRegister)
	mux.HandleFunc("POST /api/tcp-simulator/{id}/modbus/registers/batch", s.handleModbusBatch)

	// Packets.
	mux.HandleFunc("GET /api/tcp-simulator/{id}/packets", s.handleTCPPackets)
	mux.HandleFunc("POST /api/tcp-simulator/{id}/packets/settings", s.handleTCPPacketSettings)

	// DELETE {id}/packets and DELETE templates/{id} would both match
	// "templates/packets" with neither more specific, which ServeMux rejects
	// as a conflict, so one two-segment pattern dispatches both.
	mux.HandleFunc("DELETE /api/tcp-simulator/{first}/{second}", func(w http.ResponseWriter, r *http.Request) {
		switch first, second := r.PathValue("first"), r.PathValue("second"); {
		case first == "templates":
			r.SetPathValue("id", second)
			s.handleTemplateDelete(w, r)
		case second == "packets":
			r.SetPathValue("id", first)
			s.handleTCPClearPackets(w, r)
		default:
			http.NotFound(w, r)
		}
	})

	// Templates.
	mux.HandleFunc("GET /api/tcp-simulator/templates", s.handleTemplatesList)
	mux.HandleFunc("POST /api/tcp-simulator/templates", s.handleTemplateCreate)
	mux.HandleFunc("PUT /api/tcp-simulator/templates/{id}", s.handleTemplateUpdate)
	mux.HandleFunc("POST /api/tcp-simulator/create-from-template", s.handleCreateFromTemplate)
	mux.HandleFunc("POST /api/tcp-simulator/{id}/save-as-template", s.handleSaveAsTemplate)

	// MQTT simulator lifecycle.
	mux.HandleFunc("POST /api/mqtt-simulator/create", s.handleMQTTCreate)
	mux.HandleFunc("GET /api/mqtt-simulator/list", s.handleMQTTList)
	mux.HandleFunc("GET /api/mqtt-simulator/export", s.handleMQTTExport)
	mux.HandleFunc("POST /api/mqtt-simulator/import", s.handleMQTTImport)
	mux.HandleFunc("GET /api/mqtt-simulator/{id}", s.handleMQTTGet)
	mux.HandleFunc("DELETE /api/mqtt-simulator/{id}", s.handleMQTTDelete)
	mux.HandleFunc("POST /api/mqtt-simulator/{id}/start", s.handleMQTTStart)
	mux.HandleFunc("POST /api/mqtt-simulator/{id}/stop", s.handleMQTTStop)
	mux.HandleFunc("GET /api/mqtt-simulator/{id}/packets", s.handleMQTTPackets)
	mux.HandleFunc("DELETE /api/mqtt-simulator/{id}/packets", s.handleMQTTClearPackets)
	mux.HandleFunc("GET /api/mqtt-simulator/{id}/rules", s.handleMQTTRulesList)
	mux.HandleFunc("POST /api/mqtt-simulator/{id}/rules", s.handleMQTTRuleAdd)
	mux.HandleFunc("DELETE /api/mqtt-simulator/{id}/rules/{rule_id}", s.handleMQTTRuleDelete)

	mux.HandleFunc("GET /health", s.handleHealth)
}
