package mqttsim

import (
	"sync"

	"github.com/protosim/simulatord/pkg/monitor"
	"github.com/protosim/simulatord/pkg/mqttsim/rules"
	"github.com/protosim/simulatord/pkg/protocol"
)

// Engine is the running handle for an MQTT simulator: either a BrokerEngine
// or a ProxyEngine (spec.md §4.4/§4.5).
type Engine interface {
	Start() error
	Stop()
}

// Wrapper holds one MQTT simulator's declared info, mutable state, rule
// set, and running engine handle behind independent locks (spec.md §4.1:
// "Each wrapper protects four members under independent locks").
type Wrapper struct {
	infoMu sync.RWMutex
	info   Info

	stateMu sync.RWMutex
	state   *State

	rulesMu sync.RWMutex
	rules   *rules.Engine

	// instanceMu guards engine together with start/stop. It is held for
	// the whole of engine start, including its network setup, so starts
	// and stops of one simulator run one at a time.
	instanceMu sync.Mutex
	engine     Engine

	mon *monitor.Monitor
}

func newWrapper(info Info) *Wrapper {
	re := rules.New()
	_ = re.Load(info.Rules)
	return &Wrapper{
		info:  info,
		state: NewState(),
		rules: re,
		mon:   monitor.New(info.ID, 1000),
	}
}

// Info returns a copy of the declared config, including the current rule
// snapshot so persistence and the admin API see a consistent Info.
func (w *Wrapper) Info() Info {
	w.infoMu.RLock()
	info := w.info
	w.infoMu.RUnlock()
	info.Rules = w.Rules().List()
	return info
}

func (w *Wrapper) setStatus(status protocol.Status) {
	w.infoMu.Lock()
	w.info.Status = status
	w.infoMu.Unlock()
}

func (w *Wrapper) mutateInfo(fn func(*Info)) {
	w.infoMu.Lock()
	defer w.infoMu.Unlock()
	fn(&w.info)
}

// State returns a copy of the runtime state.
func (w *Wrapper) State() State {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return *w.state
}

func (w *Wrapper) mutateState(fn func(*State)) {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	fn(w.state)
}

// Rules returns the wrapper's rule engine, which has its own internal lock.
func (w *Wrapper) Rules() *rules.Engine {
	return w.rules
}

// Monitor returns the wrapper's packet monitor.
func (w *Wrapper) Monitor() *monitor.Monitor {
	return w.mon
}

// IsRunning reports whether a live engine handle is attached.
func (w *Wrapper) IsRunning() bool {
	w.instanceMu.Lock()
	defer w.instanceMu.Unlock()
	return w.engine != nil
}
