// Package monitor implements the bounded packet-capture ring used by every
// simulator instance (spec §4.7 PacketMonitor), shared by the byte-stream
// engines (pkg/simulator) and the MQTT engines (pkg/mqttsim).
package monitor

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Direction is the flow direction of a captured PDU.
type Direction string

// Directions.
const (
	DirReceived  Direction = "received"
	DirSent      Direction = "sent"
	DirForwarded Direction = "forwarded"
)

// Record is one captured PDU. HexData always holds the raw bytes; MQTT
// engines additionally populate Topic/Payload/QoS per spec §4.4.
type Record struct {
	ID        uint64    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Direction Direction `json:"direction"`
	PeerAddr  string    `json:"peerAddr"`
	HexData   string    `json:"hexData"`
	Size      int       `json:"size"`
	Parsed    any       `json:"parsed,omitempty"`

	// MQTT-specific fields, left zero for byte-stream protocols.
	Topic   string `json:"topic,omitempty"`
	Payload string `json:"payload,omitempty"`
	QoS     *byte  `json:"qos,omitempty"`
}

// Monitor is a bounded FIFO of Records plus an optional debug-file sink.
// Safe for concurrent use.
type Monitor struct {
	mu         sync.Mutex
	records    []Record
	nextID     uint64
	maxPackets int

	debugEnabled bool
	debugPath    string
	debugFile    *os.File
	simID        string
	logDir       string
}

// New creates a Monitor bounded to maxPackets records. maxPackets <= 0 is
// treated as the default of 1000.
func New(simID string, maxPackets int) *Monitor {
	if maxPackets <= 0 {
		maxPackets = 1000
	}
	return &Monitor{
		simID:      simID,
		maxPackets: maxPackets,
		logDir:     filepath.Join("logs", "simulator"),
	}
}

// MaxPackets returns the current eviction threshold.
func (m *Monitor) MaxPackets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxPackets
}

// SetMaxPackets changes the eviction threshold, evicting immediately if the
// ring is currently over the new limit.
func (m *Monitor) SetMaxPackets(n int) {
	if n <= 0 {
		n = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxPackets = n
	m.evictLocked()
}

// Record appends a new PDU capture and returns the assigned record. The id
// is strictly monotonic even across evictions and Clear() calls, per spec
// §3/§9 (clients polling with after_id must never observe a reused id).
func (m *Monitor) Record(dir Direction, peer string, data []byte, parsed any) Record {
	m.mu.Lock()
	m.nextID++
	rec := Record{
		ID:        m.nextID,
		Timestamp: time.Now(),
		Direction: dir,
		PeerAddr:  peer,
		HexData:   hex.EncodeToString(data),
		Size:      len(data),
		Parsed:    parsed,
	}
	m.records = append(m.records, rec)
	m.evictLocked()
	debugEnabled := m.debugEnabled
	m.mu.Unlock()

	if debugEnabled {
		m.appendDebugLine(rec)
	}
	return rec
}

// RecordMQTT appends an MQTT-flavored capture (topic/payload/qos).
func (m *Monitor) RecordMQTT(dir Direction, peer, topic string, payload []byte, qos byte) Record {
	rec := m.Record(dir, peer, payload, nil)
	m.mu.Lock()
	for i := range m.records {
		if m.records[i].ID == rec.ID {
			m.records[i].Topic = topic
			m.records[i].Payload = string(payload)
			m.records[i].QoS = &qos
			rec = m.records[i]
			break
		}
	}
	m.mu.Unlock()
	return rec
}

// evictLocked drops the oldest records until len(records) <= maxPackets.
// Caller must hold m.mu.
func (m *Monitor) evictLocked() {
	if excess := len(m.records) - m.maxPackets; excess > 0 {
		m.records = m.records[excess:]
	}
}

// GetAfter returns records with id > afterID in ascending id order.
func (m *Monitor) GetAfter(afterID uint64) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		if r.ID > afterID {
			out = append(out, r)
		}
	}
	return out
}

// All returns a snapshot of every retained record.
func (m *Monitor) All() []Record {
	return m.GetAfter(0)
}

// Clear drops all retained records without resetting the id counter, so
// `after_id` polling clients never see an id reused (spec §9).
func (m *Monitor) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
}

// Len returns the number of retained records.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// EnableDebug turns on the append-only debug log sink. The file is created
// lazily on the first subsequent Record call.
func (m *Monitor) EnableDebug() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugEnabled = true
}

// DisableDebug turns off the debug sink and detaches the current log path,
// closing its handle; the file itself stays on disk. Re-enabling starts a
// new file on the next Record call.
func (m *Monitor) DisableDebug() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugEnabled = false
	if m.debugFile != nil {
		_ = m.debugFile.Close()
		m.debugFile = nil
	}
	m.debugPath = ""
}

// IsDebugEnabled reports whether the debug sink is active.
func (m *Monitor) IsDebugEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debugEnabled
}

// appendDebugLine lazily opens logs/simulator/<id>_<yyyymmdd_hhmmss>.log and
// appends one line per spec §4.7's format.
func (m *Monitor) appendDebugLine(rec Record) {
	m.mu.Lock()
	if m.debugFile == nil {
		if err := os.MkdirAll(m.logDir, 0o755); err != nil {
			m.mu.Unlock()
			return
		}
		name := fmt.Sprintf("%s_%s.log", m.simID, rec.Timestamp.Format("20060102_150405"))
		m.debugPath = filepath.Join(m.logDir, name)
		f, err := os.OpenFile(m.debugPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			m.mu.Unlock()
			return
		}
		m.debugFile = f
	}
	f := m.debugFile
	m.mu.Unlock()

	line := fmt.Sprintf("[%s] %s %s %s\n",
		rec.Timestamp.Format(time.RFC3339), rec.Direction, rec.PeerAddr, rec.HexData)
	_, _ = f.WriteString(line)
}

// DebugPath returns the current debug log file path, or "" if none is open.
func (m *Monitor) DebugPath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debugPath
}

// Close releases the debug file handle, if open.
func (m *Monitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.debugFile != nil {
		err := m.debugFile.Close()
		m.debugFile = nil
		return err
	}
	return nil
}
