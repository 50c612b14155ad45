package mqttsim

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/protosim/simulatord/internal/id"
	"github.com/protosim/simulatord/pkg/mqttsim/rules"
	"github.com/protosim/simulatord/pkg/persist"
	"github.com/protosim/simulatord/pkg/protocol"
)

// Manager is the process-wide registry of MQTT simulators (spec.md §4.1
// SimulatorManager, MQTT family).
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

// Load restores previously persisted simulators and starts auto_start ones.
func (m *Manager) Load() {
	doc := m.store.Load()
	entries := persist.LoadEntries[Info](m.log, doc.MQTTSimulators)

	m.mu.Lock()
	for _, info := range entries {
		m.items[info.ID] = newWrapper(info)
	}
	m.mu.Unlock()

	for _, info := range entries {
		if info.AutoStart {
			if err := m.Start(info.ID); err != nil {
				m.log.Warn("mqtt auto_start failed", "id", info.ID, "error", err)
			}
		}
	}
}

// Create validates req, assigns an id, registers the wrapper, optionally
// auto-starts it, and always persists (spec.md §4.1).
func (m *Manager) Create(req CreateRequest) (Info, error) {
	if req.Name == "" {
		return Info{}, protocol.ErrValidation
	}
	if req.Port <= 0 {
		return Info{}, protocol.ErrValidation
	}

	mode := req.Mode
	if mode == "" {
		mode = ModeBroker
	}
	if mode != ModeBroker && mode != ModeProxy {
		return Info{}, protocol.ErrValidation
	}
	if mode == ModeProxy && req.ProxyConfig == nil {
		return Info{}, protocol.ErrValidation
	}

	bindAddr := req.BindAddr
	if bindAddr == "" {
		bindAddr = "0.0.0.0"
	}
	versions := req.MqttVersions
	if len(versions) == 0 {
		versions = []Version{VersionV311}
	}

	info := Info{
		ID:           id.New(),
		Name:         req.Name,
		Description:  req.Description,
		Mode:         mode,
		BindAddr:     bindAddr,
		Port:         req.Port,
		Status:       protocol.Stopped(),
		AutoStart:    req.AutoStart,
		CreatedAt:    time.Now(),
		MqttVersions: versions,
		ProxyConfig:  req.ProxyConfig,
		Rules:        req.Rules,
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

	if info.AutoStart {
		if err := m.Start(info.ID); err != nil {
			m.log.Warn("mqtt auto_start failed at create", "id", info.ID, "error", err)
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
func (m *Manager) Get(simID string) (Snapshot, error) {
	w, ok := m.wrapper(simID)
	if !ok {
		return Snapshot{}, protocol.ErrNotFound
	}
	return Snapshot{
		Info:    w.Info(),
		State:   w.State(),
		Packets: w.Monitor().All(),
	}, nil
}

func (m *Manager) wrapper(simID string) (*Wrapper, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.items[simID]
	return w, ok
}

// Start builds and starts the broker or proxy engine for simID.
func (m *Manager) Start(simID string) error {
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
	var engine Engine
	switch info.Mode {
	case ModeProxy:
		engine = NewProxyEngine(w, m.log)
	default:
		engine = NewBrokerEngine(w, m.log)
	}

	if err := engine.Start(); err != nil {
		w.setStatus(protocol.Errored(err.Error()))
		m.persist()
		return err
	}

	w.engine = engine
	w.setStatus(protocol.Running())
	m.persist()
	return nil
}

// Stop is idempotent (spec.md §4.1).
func (m *Manager) Stop(simID string) error {
	w, ok := m.wrapper(simID)
	if !ok {
		return protocol.ErrNotFound
	}

	w.instanceMu.Lock()
	engine := w.engine
	w.engine = nil
	w.instanceMu.Unlock()

	if engine == nil {
		return nil
	}

	engine.Stop()
	w.setStatus(protocol.Stopped())
	m.persist()
	return nil
}

// Delete stops then removes the simulator.
func (m *Manager) Delete(simID string) error {
	if _, ok := m.wrapper(simID); !ok {
		return protocol.ErrNotFound
	}
	_ = m.Stop(simID)

	m.mu.Lock()
	delete(m.items, simID)
	m.mu.Unlock()

	m.persist()
	return nil
}

// AddRule appends a rule to simID's rule engine and persists.
func (m *Manager) AddRule(simID string, r *rules.Rule) error {
	w, ok := m.wrapper(simID)
	if !ok {
		return protocol.ErrNotFound
	}
	if err := w.Rules().Add(r); err != nil {
		return fmt.Errorf("%w: %s", protocol.ErrValidation, err)
	}
	m.persist()
	return nil
}

// RemoveRule deletes ruleID from simID's rule engine and persists.
func (m *Manager) RemoveRule(simID, ruleID string) error {
	w, ok := m.wrapper(simID)
	if !ok {
		return protocol.ErrNotFound
	}
	if !w.Rules().Remove(ruleID) {
		return protocol.ErrNotFound
	}
	m.persist()
	return nil
}

// ClearPackets empties the packet monitor.
func (m *Manager) ClearPackets(simID string) error {
	w, ok := m.wrapper(simID)
	if !ok {
		return protocol.ErrNotFound
	}
	w.Monitor().Clear()
	return nil
}

func (m *Manager) persist() {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.items))
	for _, w := range m.items {
		infos = append(infos, w.Info())
	}
	m.mu.RUnlock()

	if err := m.store.SaveMQTT(infos); err != nil {
		m.log.Warn("failed to persist mqtt simulators", "error", err)
	}
}
