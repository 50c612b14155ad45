// Package adminapi is the REST surface that drives the simulator manager
// (spec.md §6.1). It is a thin shim over pkg/simulator, pkg/mqttsim, and
// pkg/template: every handler decodes a request, calls a manager method, and
// wraps the result in the envelope the admin UI expects. No
// authentication/authorization is applied here by design.
package adminapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/protosim/simulatord/pkg/protocol"
)

// Envelope is the response shape every admin API endpoint returns
// (spec.md §6.1): state=0 on success, otherwise one of the error codes
// below.
type Envelope struct {
	State   int    `json:"state"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Envelope error codes (spec.md §6.1/§7).
const (
	codeOK         = 0
	codeNotFound   = 30001
	codeValidation = 30003
	codeGeneral    = 30006
)

// writeJSON writes v as a JSON response body with the given HTTP status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{State: codeOK, Data: data})
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, Envelope{State: codeOK})
}

// writeError maps the error taxonomy from spec.md §7 onto an envelope and
// HTTP status. Anything not recognized falls back to 30006/500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := codeGeneral

	switch {
	case errors.Is(err, protocol.ErrNotFound):
		status, code = http.StatusNotFound, codeNotFound
	case errors.Is(err, protocol.ErrValidation):
		status, code = http.StatusBadRequest, codeValidation
	case errors.Is(err, protocol.ErrConflict), errors.Is(err, protocol.ErrAlreadyRunning):
		status, code = http.StatusConflict, codeGeneral
	}

	writeJSON(w, status, Envelope{State: code, Message: err.Error()})
}

// decodeJSON decodes the request body into v, reporting malformed JSON as a
// validation error so callers can pass it straight to writeError.
func decodeJSON(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %s", protocol.ErrValidation, err)
	}
	return nil
}
