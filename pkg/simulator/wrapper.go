package simulator

import (
	"sync"

	"github.com/protosim/simulatord/pkg/monitor"
	"github.com/protosim/simulatord/pkg/protocol"
	"github.com/protosim/simulatord/pkg/simulator/protohandler"
)

// Wrapper holds one simulator's declared info, mutable state, and running
// engine handle behind independent locks, per spec.md §4.1: "Each wrapper
// protects four members under independent locks". TCP/UDP simulators carry
// no rule set (that's an MQTT-only concept), so only three locks are used
// here.
type Wrapper struct {
	infoMu sync.RWMutex
	info   Info

	stateMu sync.RWMutex
	state   *State

	// instanceMu guards engine and handler and serializes starting and
	// stopping. It is held for the whole of Start, including binding the
	// socket. mon is not guarded by it; the Monitor has its own lock.
	instanceMu sync.Mutex
	engine     Engine
	handler    protohandler.Handler
	mon        *monitor.Monitor
}

func newWrapper(info Info) *Wrapper {
	return &Wrapper{
		info:  info,
		state: NewState(),
		mon:   monitor.New(info.ID, 1000),
	}
}

// Info returns a copy of the declared config.
func (w *Wrapper) Info() Info {
	w.infoMu.RLock()
	defer w.infoMu.RUnlock()
	return w.info
}

func (w *Wrapper) setStatus(status protocol.Status) {
	w.infoMu.Lock()
	w.info.Status = status
	w.infoMu.Unlock()
}

// mutateInfo applies fn under the info write lock.
func (w *Wrapper) mutateInfo(fn func(*Info)) {
	w.infoMu.Lock()
	defer w.infoMu.Unlock()
	fn(&w.info)
}

// State returns a shallow copy of the runtime state (maps are shared
// references; callers must not mutate them directly -- use the mutate
// helpers below).
func (w *Wrapper) State() State {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return *w.state
}

// mutateState applies fn under the state write lock.
func (w *Wrapper) mutateState(fn func(*State)) {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	fn(w.state)
}

// Monitor returns the wrapper's packet monitor. The monitor has its own
// internal lock and is safe to use without holding any wrapper lock.
func (w *Wrapper) Monitor() *monitor.Monitor {
	return w.mon
}

// IsRunning reports whether a live engine handle is attached.
func (w *Wrapper) IsRunning() bool {
	w.instanceMu.Lock()
	defer w.instanceMu.Unlock()
	return w.engine != nil
}

// Handler returns the currently attached protocol handler, or nil whenever
// the simulator is not running (never started, or stopped).
func (w *Wrapper) Handler() protohandler.Handler {
	w.instanceMu.Lock()
	defer w.instanceMu.Unlock()
	return w.handler
}
