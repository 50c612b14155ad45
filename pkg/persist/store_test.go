package persist

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSimulator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestMissingFileLoadsEmpty(t *testing.T) {
	s := New(t.TempDir(), nil)
	doc := s.Load()
	assert.Equal(t, 1, doc.Version)
	assert.Empty(t, doc.TCPSimulators)
	assert.Empty(t, doc.MQTTSimulators)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)

	tcp := []fakeSimulator{{ID: "a", Name: "one"}, {ID: "b", Name: "two"}}
	mqtt := []fakeSimulator{{ID: "c", Name: "broker-1"}}

	require.NoError(t, s.SaveTCP(tcp))
	require.NoError(t, s.SaveMQTT(mqtt))

	doc := s.Load()
	require.Len(t, doc.TCPSimulators, 2)
	require.Len(t, doc.MQTTSimulators, 1)

	var got fakeSimulator
	require.NoError(t, json.Unmarshal(doc.TCPSimulators[0], &got))
	assert.Equal(t, "a", got.ID)

	assert.FileExists(t, filepath.Join(dir, "simulators.json"))
	assert.NoFileExists(t, filepath.Join(dir, "simulators.json.tmp"))
}

func TestMalformedFileLoadsEmpty(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)
	require.NoError(t, s.SaveTCP([]fakeSimulator{{ID: "a"}}))

	path := filepath.Join(dir, "simulators.json")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o644))

	doc := s.Load()
	assert.Empty(t, doc.TCPSimulators)
}

func TestLoadEntriesSkipsMalformed(t *testing.T) {
	raw := []json.RawMessage{
		json.RawMessage(`{"id":"a","name":"ok"}`),
		json.RawMessage(`"not-an-object"`),
		json.RawMessage(`{"id":"b","name":"ok2"}`),
	}
	out := LoadEntries[fakeSimulator](nil, raw)
	require.Len(t, out, 2)
}

func TestTemplatesRoundTrip(t *testing.T) {
	s := New(t.TempDir(), nil)
	templates := map[string]json.RawMessage{
		"scene-basic": json.RawMessage(`{"protocol":"scene_loader"}`),
	}
	require.NoError(t, s.SaveTemplates(templates))

	loaded := s.LoadTemplates()
	require.Contains(t, loaded, "scene-basic")
}
