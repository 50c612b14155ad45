// Package persist is the collaborator that reads and writes the single
// simulators.json document holding every declared simulator's config, and
// the separate templates.json dictionary. It is deliberately thin: it knows
// nothing about engines, only about serializing/deserializing config.
package persist

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const dataVersion = 1

// Document is the root shape of simulators.json.
type Document struct {
	Version        int               `json:"version"`
	TCPSimulators  []json.RawMessage `json:"tcp_simulators,omitempty"`
	MQTTSimulators []json.RawMessage `json:"mqtt_simulators,omitempty"`
}

// Store loads and saves the JSON document at dataDir/simulators.json and
// dataDir/templates.json. Safe for concurrent use; every Save is a full
// write-temp-then-rename overwrite per the design note in spec §9.
type Store struct {
	mu      sync.Mutex
	dataDir string
	log     *slog.Logger
}

// New creates a Store rooted at dataDir. dataDir need not exist yet: every
// save creates it if it is missing.
func New(dataDir string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{dataDir: dataDir, log: log}
}

func (s *Store) simulatorsPath() string {
	return filepath.Join(s.dataDir, "simulators.json")
}

func (s *Store) templatesPath() string {
	return filepath.Join(s.dataDir, "templates.json")
}

// Load reads simulators.json. A missing or malformed file is treated as an
// empty document, per spec §6.3's tolerant-loader requirement.
func (s *Store) Load() Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := Document{Version: dataVersion}
	raw, err := os.ReadFile(s.simulatorsPath())
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("failed to read simulators.json, starting empty", "error", err)
		}
		return doc
	}

	if err := json.Unmarshal(raw, &doc); err != nil {
		s.log.Warn("simulators.json is malformed, starting empty", "error", err)
		return Document{Version: dataVersion}
	}
	return doc
}

// LoadEntries decodes each entry of doc.TCPSimulators/MQTTSimulators as a T
// and returns the decoded entries, skipping (and warning on) any entry that
// fails to decode or carries a field T does not declare.
func LoadEntries[T any](log *slog.Logger, raw []json.RawMessage) []T {
	if log == nil {
		log = slog.Default()
	}
	out := make([]T, 0, len(raw))
	for i, r := range raw {
		var v T
		dec := json.NewDecoder(bytes.NewReader(r))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&v); err != nil {
			log.Warn("skipping malformed persisted simulator entry", "index", i, "error", err)
			continue
		}
		out = append(out, v)
	}
	return out
}

// SaveTCP overwrites just the tcp_simulators slice, read-modify-write
// against whatever mqtt_simulators content is currently on disk. Each
// family's manager persists independently; all writes, of both families
// and of templates.json, are serialized by the Store's single mutex.
func (s *Store) SaveTCP(simulators any) error {
	return s.saveSlice(simulators, true)
}

// SaveMQTT overwrites just the mqtt_simulators slice.
func (s *Store) SaveMQTT(simulators any) error {
	return s.saveSlice(simulators, false)
}

func (s *Store) saveSlice(simulators any, isTCP bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := marshalEach(simulators)
	if err != nil {
		return err
	}

	doc := s.loadLocked()
	doc.Version = dataVersion
	if isTCP {
		doc.TCPSimulators = raw
	} else {
		doc.MQTTSimulators = raw
	}
	return s.writeJSON(s.simulatorsPath(), doc)
}

// loadLocked reads the current document from disk. Caller must hold s.mu.
func (s *Store) loadLocked() Document {
	doc := Document{Version: dataVersion}
	raw, err := os.ReadFile(s.simulatorsPath())
	if err != nil {
		return doc
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{Version: dataVersion}
	}
	return doc
}

// marshalEach re-marshals a slice value (any slice type) element-by-element
// into []json.RawMessage so Document's fields stay opaque at the persist
// layer.
func marshalEach(v any) ([]json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// LoadTemplates reads templates.json, returning an empty map if absent or
// malformed.
func (s *Store) LoadTemplates() map[string]json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[string]json.RawMessage{}
	raw, err := os.ReadFile(s.templatesPath())
	if err != nil {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		s.log.Warn("templates.json is malformed, starting empty", "error", err)
		return map[string]json.RawMessage{}
	}
	return out
}

// SaveTemplates atomically overwrites templates.json.
func (s *Store) SaveTemplates(templates map[string]json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(s.templatesPath(), templates)
}

// writeJSON serializes v and writes it via a temp-file-then-rename, so a
// crash mid-write never corrupts the previous good document (spec §9
// "write-through persistence ... implement as write-temp-then-rename").
// Caller must hold s.mu.
func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil && filepath.Dir(path) != "." {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
