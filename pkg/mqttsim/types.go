// Package mqttsim implements the MQTT family of simulators: a self-hosted
// broker (v3.1.1 and/or v5) or a transparent intercepting proxy, each
// equipped with a topic/payload rule engine (spec.md §3-4.6).
package mqttsim

import (
	"encoding/json"
	"time"

	"github.com/protosim/simulatord/pkg/monitor"
	"github.com/protosim/simulatord/pkg/mqttsim/rules"
	"github.com/protosim/simulatord/pkg/protocol"
)

// Mode selects whether a simulator hosts its own broker or proxies an
// upstream one.
type Mode string

// Modes.
const (
	ModeBroker Mode = "broker"
	ModeProxy  Mode = "proxy"
)

// Version is a supported MQTT protocol version.
type Version string

// Versions.
const (
	VersionV311 Version = "v3.1.1"
	VersionV5   Version = "v5"
)

// ProxyConfig is the upstream connection a Proxy-mode simulator dials
// (spec.md §3 SimulatorInfo.proxy_config, §4.5).
type ProxyConfig struct {
	UpstreamHost    string `json:"upstream_host"`
	UpstreamPort    int    `json:"upstream_port"`
	Username        string `json:"username,omitempty"`
	Password        string `json:"password,omitempty"`
	ClientIDPrefix  string `json:"client_id_prefix,omitempty"`
}

// Info is the declared, persisted identity and configuration of an MQTT
// simulator (spec.md §3 SimulatorInfo).
type Info struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Mode        Mode            `json:"mode"`
	BindAddr    string          `json:"bind_addr"`
	Port        int             `json:"port"`
	Status      protocol.Status `json:"status"`
	AutoStart   bool            `json:"auto_start"`
	CreatedAt   time.Time       `json:"created_at"`
	MqttVersions []Version      `json:"mqtt_versions"`
	ProxyConfig *ProxyConfig    `json:"proxy_config,omitempty"`
	Rules       []*rules.Rule   `json:"rules,omitempty"`
}

// CreateRequest is the admin API payload for creating an MQTT simulator.
type CreateRequest struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Mode         Mode            `json:"mode"`
	BindAddr     string          `json:"bind_addr,omitempty"`
	Port         int             `json:"port"`
	AutoStart    bool            `json:"auto_start,omitempty"`
	MqttVersions []Version       `json:"mqtt_versions,omitempty"`
	ProxyConfig  *ProxyConfig    `json:"proxy_config,omitempty"`
	Rules        []*rules.Rule   `json:"rules,omitempty"`
}

// Stats are the running counters in SimulatorState.stats (spec.md §3).
type Stats struct {
	TotalConnections  uint64    `json:"total_connections"`
	ActiveConnections uint64    `json:"active_connections"`
	BytesReceived     uint64    `json:"bytes_received"`
	BytesSent         uint64    `json:"bytes_sent"`
	MessagesReceived  uint64    `json:"messages_received"`
	MessagesSent      uint64    `json:"messages_sent"`
	LastActivity      time.Time `json:"last_activity"`
}

// State is the mutable runtime snapshot (spec.md §3 SimulatorState).
type State struct {
	Online bool            `json:"online"`
	Fault  string          `json:"fault,omitempty"`
	Stats  Stats           `json:"stats"`
}

// NewState returns the default runtime state for a freshly created
// MQTT simulator.
func NewState() *State {
	return &State{Online: true}
}

// Snapshot is the read-only view returned by Manager.Get.
type Snapshot struct {
	Info    Info            `json:"info"`
	State   State           `json:"state"`
	Packets []monitor.Record `json:"packets,omitempty"`
}

// ExportDocument is the payload shape for GET /api/mqtt-simulator/export.
type ExportDocument struct {
	Simulators []Info `json:"simulators"`
}

// ImportRequest is the payload shape for POST /api/mqtt-simulator/import.
type ImportRequest struct {
	Simulators      []json.RawMessage `json:"simulators"`
	ReplaceExisting bool              `json:"replace_existing,omitempty"`
}
