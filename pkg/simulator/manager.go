package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/protosim/simulatord/internal/id"
	"github.com/protosim/simulatord/pkg/persist"
	"github.com/protosim/simulatord/pkg/protocol"
	"github.com/protosim/simulatord/pkg/simulator/protohandler"
)

// Manager is the process-wide registry of TCP/UDP simulators (spec.md §4.1
// SimulatorManager, TCP family).
type Manager struct {
	mu    sync.RWMutex
	items map[string]*Wrapper
	store *persist.Store
	log   *slog.Logger
}

// New creates an empty Manager backed by store for persistence.
func New(store *persist.Store, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{items: map[string]*Wrapper{}, store: store, log: log}
}

// Load restores previously persisted simulators from store. auto_start
// simulators are started once all entries are registered.
func (m *Manager) Load(ctx context.Context) {
	doc := m.store.Load()
	entries := persist.LoadEntries[Info](m.log, doc.TCPSimulators)

	m.mu.Lock()
	for _, info := range entries {
		m.items[info.ID] = newWrapper(info)
	}
	m.mu.Unlock()

	for _, info := range entries {
		if info.AutoStart {
			if err := m.Start(ctx, info.ID); err != nil {
				m.log.Warn("auto_start failed", "id", info.ID, "error", err)
			}
		}
	}
}

// Create validates req, assigns an id, registers the wrapper, optionally
// auto-starts it, and always persists afterward (spec.md §4.1 create).
func (m *Manager) Create(ctx context.Context, req CreateRequest) (Info, error) {
	if req.Name == "" {
		return Info{}, protocol.ErrValidation
	}
	if req.Port <= 0 {
		return Info{}, protocol.ErrValidation
	}
	switch req.Protocol {
	case protohandler.KindSceneLoader, protohandler.KindModbus, protohandler.KindCustom:
	default:
		return Info{}, protocol.ErrValidation
	}

	bindAddr := req.BindAddr
	if bindAddr == "" {
		bindAddr = "0.0.0.0"
	}
	transport := req.Transport
	if transport == "" {
		transport = TransportTCP
	}

	info := Info{
		ID:             id.New(),
		Name:           req.Name,
		Description:    req.Description,
		Protocol:       req.Protocol,
		Transport:      transport,
		BindAddr:       bindAddr,
		Port:           req.Port,
		Status:         protocol.Stopped(),
		AutoStart:      req.AutoStart,
		CreatedAt:      time.Now(),
		ProtocolConfig: req.ProtocolConfig,
	}

	m.mu.Lock()
	for _, w := range m.items {
		if existing := w.Info(); existing.Port == info.Port && existing.BindAddr == info.BindAddr {
			m.mu.Unlock()
			return Info{}, protocol.ErrConflict
		}
	}
	w := newWrapper(info)
	m.items[info.ID] = w
	m.mu.Unlock()

	if req.InitialState != nil {
		var values map[string]any
		if err := json.Unmarshal(req.InitialState, &values); err == nil {
			w.mutateState(func(s *State) { s.Values = values })
		}
	}

	if info.AutoStart {
		// A start failure at create time does not roll back creation
		// (spec.md §4.1): the instance is persisted Stopped or Error.
		if err := m.Start(ctx, info.ID); err != nil {
			m.log.Warn("auto_start failed at create", "id", info.ID, "error", err)
		}
	}

	m.persist()
	return w.Info(), nil
}

// List returns every registered simulator's declared info.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Info, 0, len(m.items))
	for _, w := range m.items {
		out = append(out, w.Info())
	}
	return out
}

// Get returns a point-in-time snapshot of one simulator.
func (m *Manager) Get(id string) (Snapshot, error) {
	w, ok := m.wrapper(id)
	if !ok {
		return Snapshot{}, protocol.ErrNotFound
	}
	return Snapshot{
		Info:    w.Info(),
		State:   w.State(),
		Packets: w.Monitor().All(),
	}, nil
}

func (m *Manager) wrapper(id string) (*Wrapper, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.items[id]
	return w, ok
}

// Start builds and starts the engine for id. Rejects if already running.
func (m *Manager) Start(ctx context.Context, simID string) error {
	w, ok := m.wrapper(simID)
	if !ok {
		return protocol.ErrNotFound
	}

	w.instanceMu.Lock()
	defer w.instanceMu.Unlock()

	if w.engine != nil {
		return protocol.ErrAlreadyRunning
	}

	info := w.Info()
	handler, err := protohandler.Build(info.Protocol, info.ProtocolConfig, m.log)
	if err != nil {
		w.setStatus(protocol.Errored(err.Error()))
		m.persist()
		return err
	}

	var engine Engine
	switch info.Transport {
	case TransportUDP:
		engine = NewUDPEngine(w, handler, m.log)
	default:
		engine = NewTCPEngine(w, handler, m.log)
	}

	if err := engine.Start(ctx); err != nil {
		w.setStatus(protocol.Stopped())
		m.persist()
		return err
	}

	w.engine = engine
	w.handler = handler
	w.setStatus(protocol.Running())
	m.persist()
	return nil
}

// Stop is idempotent: stopping an already-stopped simulator is not an error
// (spec.md §4.1 stop).
func (m *Manager) Stop(ctx context.Context, simID string) error {
	w, ok := m.wrapper(simID)
	if !ok {
		return protocol.ErrNotFound
	}

	w.instanceMu.Lock()
	engine := w.engine
	w.engine = nil
	w.handler = nil
	w.instanceMu.Unlock()

	if engine == nil {
		return nil
	}

	err := engine.Stop(ctx)
	w.setStatus(protocol.Stopped())
	m.persist()
	return err
}

// Delete stops (ignoring stop errors) then removes the simulator.
func (m *Manager) Delete(ctx context.Context, simID string) error {
	if _, ok := m.wrapper(simID); !ok {
		return protocol.ErrNotFound
	}
	_ = m.Stop(ctx, simID)

	m.mu.Lock()
	delete(m.items, simID)
	m.mu.Unlock()

	m.persist()
	return nil
}

// SetOnline toggles the online flag (spec.md §3 state.online).
func (m *Manager) SetOnline(simID string, online bool) error {
	w, ok := m.wrapper(simID)
	if !ok {
		return protocol.ErrNotFound
	}
	w.mutateState(func(s *State) { s.Online = online })
	return nil
}

// SetState merges values into the simulator's runtime values map (admin API
// "set state").
func (m *Manager) SetState(simID string, values map[string]any) error {
	w, ok := m.wrapper(simID)
	if !ok {
		return protocol.ErrNotFound
	}
	w.mutateState(func(s *State) {
		if s.Values == nil {
			s.Values = map[string]any{}
		}
		for k, v := range values {
			s.Values[k] = v
		}
	})
	return nil
}

// SetFault sets or clears the fault tag.
func (m *Manager) SetFault(simID, fault string) error {
	w, ok := m.wrapper(simID)
	if !ok {
		return protocol.ErrNotFound
	}
	w.mutateState(func(s *State) { s.Fault = fault })
	return nil
}

// ClearPackets empties the packet monitor. Safe on an already-empty
// monitor (spec.md §8 idempotence property).
func (m *Manager) ClearPackets(simID string) error {
	w, ok := m.wrapper(simID)
	if !ok {
		return protocol.ErrNotFound
	}
	w.Monitor().Clear()
	return nil
}

// SetPacketSettings adjusts the monitor's capture behavior.
func (m *Manager) SetPacketSettings(simID string, enabled *bool, maxPackets *int) error {
	w, ok := m.wrapper(simID)
	if !ok {
		return protocol.ErrNotFound
	}
	if enabled != nil {
		if *enabled {
			w.Monitor().EnableDebug()
		} else {
			w.Monitor().DisableDebug()
		}
	}
	if maxPackets != nil {
		w.Monitor().SetMaxPackets(*maxPackets)
	}
	return nil
}

// ModbusHandler returns the running Modbus handler for simID, or an error
// if the simulator isn't Modbus or isn't running.
func (m *Manager) ModbusHandler(simID string) (*protohandler.Modbus, error) {
	w, ok := m.wrapper(simID)
	if !ok {
		return nil, protocol.ErrNotFound
	}
	h := w.Handler()
	mb, ok := h.(*protohandler.Modbus)
	if !ok {
		return nil, fmt.Errorf("%w: simulator is not a running modbus handler", protocol.ErrValidation)
	}
	return mb, nil
}

// persist writes the full simulator set to disk, best-effort (spec.md §7
// PersistenceError: logged, in-memory change still stands).
func (m *Manager) persist() {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.items))
	for _, w := range m.items {
		infos = append(infos, w.Info())
	}
	m.mu.RUnlock()

	if err := m.store.SaveTCP(infos); err != nil {
		m.log.Warn("failed to persist tcp simulators", "error", err)
	}
}
