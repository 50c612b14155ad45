// Package simulator implements the TCP/UDP family of protocol simulators:
// the manager/wrapper registry, the listener engines, and the declared
// data model they operate on (spec.md §2-§4).
package simulator

import (
	"encoding/json"
	"time"

	"github.com/protosim/simulatord/pkg/monitor"
	"github.com/protosim/simulatord/pkg/protocol"
	"github.com/protosim/simulatord/pkg/simulator/protohandler"
)

// Transport is the byte-stream transport a simulator listens on.
type Transport string

// Transports.
const (
	TransportTCP Transport = "tcp"
	TransportUDP Transport = "udp"
)

// Info is the declared, persisted identity and configuration of a TCP/UDP
// simulator (spec.md §3 SimulatorInfo).
type Info struct {
	ID             string               `json:"id"`
	Name           string               `json:"name"`
	Description    string               `json:"description,omitempty"`
	Protocol       protohandler.Kind    `json:"protocol"`
	Transport      Transport            `json:"transport"`
	BindAddr       string               `json:"bind_addr"`
	Port           int                  `json:"port"`
	Status         protocol.Status      `json:"status"`
	AutoStart      bool                 `json:"auto_start"`
	CreatedAt      time.Time            `json:"created_at"`
	ProtocolConfig json.RawMessage      `json:"protocol_config,omitempty"`
}

// CreateRequest is the admin API payload for creating a TCP/UDP simulator.
type CreateRequest struct {
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	Protocol       protohandler.Kind `json:"protocol"`
	Transport      Transport         `json:"transport,omitempty"`
	BindAddr       string            `json:"bind_addr,omitempty"`
	Port           int               `json:"port"`
	InitialState   json.RawMessage   `json:"initial_state,omitempty"`
	AutoStart      bool              `json:"auto_start,omitempty"`
	ProtocolConfig json.RawMessage   `json:"protocol_config,omitempty"`
}

// ClientConnection tracks one connected (or, for UDP, recently seen peer)
// client (spec.md §3 SimulatorState.clients).
type ClientConnection struct {
	ClientID      string    `json:"client_id"`
	PeerAddr      string    `json:"peer_addr"`
	ConnectedAt   time.Time `json:"connected_at"`
	BytesReceived uint64    `json:"bytes_received"`
	BytesSent     uint64    `json:"bytes_sent"`
	LastActivity  time.Time `json:"last_activity"`
}

// Stats are the running counters in SimulatorState.stats.
type Stats struct {
	TotalConnections   uint64    `json:"total_connections"`
	ActiveConnections  uint64    `json:"active_connections"`
	BytesReceived      uint64    `json:"bytes_received"`
	BytesSent          uint64    `json:"bytes_sent"`
	MessagesReceived   uint64    `json:"messages_received"`
	MessagesSent       uint64    `json:"messages_sent"`
	LastActivity       time.Time `json:"last_activity"`
}

// State is the mutable runtime snapshot (spec.md §3 SimulatorState).
type State struct {
	Online  bool                          `json:"online"`
	Fault   string                        `json:"fault,omitempty"`
	Values  map[string]any                `json:"values,omitempty"`
	Stats   Stats                         `json:"stats"`
	Clients map[string]*ClientConnection  `json:"clients,omitempty"`
}

// NewState returns the default runtime state for a freshly created
// simulator: online, no fault, empty counters.
func NewState() *State {
	return &State{
		Online:  true,
		Values:  map[string]any{},
		Clients: map[string]*ClientConnection{},
	}
}

// Snapshot is the read-only view returned by Manager.Get: info + state +
// a point-in-time packet list, assembled by acquiring each lock in turn
// (spec.md §4.1: "no guarantee of cross-field consistency").
type Snapshot struct {
	Info    Info            `json:"info"`
	State   State           `json:"state"`
	Packets []monitor.Record `json:"packets,omitempty"`
}
