package adminapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protosim/simulatord/pkg/mqttsim"
	"github.com/protosim/simulatord/pkg/persist"
	"github.com/protosim/simulatord/pkg/simulator"
	"github.com/protosim/simulatord/pkg/template"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := persist.New(t.TempDir(), nil)
	return New(simulator.New(store, nil), mqttsim.New(store, nil), template.New(store), nil)
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestCreateListGetDeleteTCPSimulator(t *testing.T) {
	s := newTestServer(t)

	body := `{"name":"scene-1","protocol":"scene_loader","port":15000}`
	req := httptest.NewRequest(http.MethodPost, "/api/tcp-simulator/create", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, 0, env.State)

	created := env.Data.(map[string]any)
	id := created["id"].(string)

	req = httptest.NewRequest(http.MethodGet, "/api/tcp-simulator/list", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	env = decodeEnvelope(t, rec)
	list := env.Data.([]any)
	assert.Len(t, list, 1)

	req = httptest.NewRequest(http.MethodGet, "/api/tcp-simulator/"+id, nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/tcp-simulator/"+id, nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	env = decodeEnvelope(t, rec)
	assert.Equal(t, 0, env.State)

	req = httptest.NewRequest(http.MethodGet, "/api/tcp-simulator/"+id, nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	env = decodeEnvelope(t, rec)
	assert.Equal(t, 30001, env.State)
}

func TestCreateRejectsMissingName(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/tcp-simulator/create", strings.NewReader(`{"protocol":"scene_loader","port":15001}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, 30003, env.State)
}

func TestModbusSlaveAndRegisterRoundTrip(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/tcp-simulator/create", strings.NewReader(
		`{"name":"modbus-1","protocol":"modbus","port":15002}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	env := decodeEnvelope(t, rec)
	id := env.Data.(map[string]any)["id"].(string)

	req = httptest.NewRequest(http.MethodPost, "/api/tcp-simulator/"+id+"/start", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/tcp-simulator/"+id+"/modbus/slave", strings.NewReader(`{"slave_id":1}`))
	req.SetPathValue("id", id)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/tcp-simulator/"+id+"/modbus/register",
		strings.NewReader(`{"slave_id":1,"register_type":"holding_register","address":0,"value":4660}`))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/tcp-simulator/"+id+"/modbus/slaves", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	env = decodeEnvelope(t, rec)
	slaves := env.Data.([]any)
	require.Len(t, slaves, 1)
}

func TestMQTTCreateAndRules(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/mqtt-simulator/create", strings.NewReader(
		`{"name":"broker-1","port":15883}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	env := decodeEnvelope(t, rec)
	require.Equal(t, 0, env.State)
	id := env.Data.(map[string]any)["id"].(string)

	req = httptest.NewRequest(http.MethodPost, "/api/mqtt-simulator/"+id+"/rules", strings.NewReader(
		`{"id":"r1","enabled":true,"topic_pattern":"a/b","priority":1,"action":{"kind":"log"}}`))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/mqtt-simulator/"+id+"/rules", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	env = decodeEnvelope(t, rec)
	rules := env.Data.([]any)
	assert.Len(t, rules, 1)

	req = httptest.NewRequest(http.MethodDelete, "/api/mqtt-simulator/"+id+"/rules/r1", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestTemplateCreateUseAndDelete(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/tcp-simulator/templates", strings.NewReader(
		`{"name":"scene-template","config":{"name":"from-template","protocol":"scene_loader","port":15010}}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/api/tcp-simulator/create-from-template", strings.NewReader(
		`{"template_name":"scene-template"}`))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env := decodeEnvelope(t, rec)
	created := env.Data.(map[string]any)
	assert.Equal(t, "from-template", created["name"])

	req = httptest.NewRequest(http.MethodDelete, "/api/tcp-simulator/templates/scene-template", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
