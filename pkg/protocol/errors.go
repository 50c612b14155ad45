// Package protocol holds the error taxonomy and small shared types used by
// both simulator families (byte-stream and MQTT). It intentionally carries
// no protocol-specific logic — see pkg/simulator and pkg/mqttsim for that.
package protocol

// Error is a sentinel string error, matching the comparable-error pattern
// used throughout this codebase so callers can `errors.Is` against a fixed
// set of well-known failures.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }

// Sentinel errors. See spec §7 for the taxonomy these map to at the admin
// API boundary (ValidationError/NotFound/Conflict/ProtocolError/...).
const (
	// ErrNotFound is returned when a simulator, slave, rule, or template id
	// does not exist. Maps to envelope code 30001.
	ErrNotFound = Error("not found")

	// ErrValidation is returned for malformed admin requests (missing name,
	// bad port, unknown protocol/register type). Maps to envelope code 30003.
	ErrValidation = Error("invalid parameters")

	// ErrConflict is returned when a new simulator's bind_addr:port is
	// already declared by another simulator of the same family, or for a
	// duplicate Modbus slave id. Maps to envelope code 30006.
	ErrConflict = Error("conflict")

	// ErrAlreadyRunning is returned by Manager.Start when the simulator
	// already has a live engine attached. Also maps to envelope code 30006.
	ErrAlreadyRunning = Error("simulator is already running")

	// ErrNotRunning is a soft condition, not surfaced as an API error:
	// Manager.Stop is idempotent per spec §4.1.
	ErrNotRunning = Error("simulator is not running")

	// ErrPortInUse is not returned by any code path: when binding the
	// declared bind_addr:port fails at start, the engines return the wrapped
	// net error instead, which the admin API reports as code 30006.
	ErrPortInUse = Error("port already in use")
)
