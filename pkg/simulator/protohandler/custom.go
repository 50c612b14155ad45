package protohandler

import (
	"bytes"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
)

// ChecksumKind selects the checksum algorithm CustomConfig.Checksum appends
// to every response.
type ChecksumKind string

// Checksum kinds.
const (
	ChecksumNone  ChecksumKind = ""
	ChecksumSum8  ChecksumKind = "sum"
	ChecksumXOR   ChecksumKind = "xor"
	ChecksumCRC16 ChecksumKind = "crc16"
)

// CustomRule is one match→respond (or ignore) entry (spec.md §4.3). Exactly
// one of Prefix, HexPattern, or Regex should be set.
type CustomRule struct {
	Name       string `json:"name"`
	Prefix     []byte `json:"prefix,omitempty"`
	HexPattern string `json:"hex_pattern,omitempty"`
	Regex      string `json:"regex,omitempty"`

	Ignore   bool   `json:"ignore,omitempty"`
	Response string `json:"response,omitempty"` // hex template, may reference regex captures as {1}, {2}, ...

	compiled *regexp.Regexp
}

// CustomConfig declares a rule-driven protocol (spec.md §4.3
// CustomProtocolConfig).
type CustomConfig struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	DefaultPort int          `json:"default_port,omitempty"`
	Rules       []CustomRule `json:"rules"`
	Checksum    ChecksumKind `json:"checksum,omitempty"`
}

// Custom implements the rule-driven byte-stream protocol: first matching
// rule wins, no match yields NoResponse (spec.md §4.3).
type Custom struct {
	cfg CustomConfig
}

// NewCustom compiles cfg's regex rules and returns a handler.
func NewCustom(cfg CustomConfig) *Custom {
	for i := range cfg.Rules {
		if cfg.Rules[i].Regex != "" {
			if re, err := regexp.Compile(cfg.Rules[i].Regex); err == nil {
				cfg.Rules[i].compiled = re
			}
		}
	}
	return &Custom{cfg: cfg}
}

func (h *Custom) Kind() Kind { return KindCustom }

func (h *Custom) OnConnect(state *State) []byte { return nil }

func (h *Custom) OnDisconnect(state *State) {}

func (h *Custom) Handle(buf []byte, state *State) Result {
	hexBuf := hex.EncodeToString(buf)

	for _, rule := range h.cfg.Rules {
		captures, matched := matchCustomRule(rule, buf, hexBuf)
		if !matched {
			continue
		}

		// Frame-complete protocols are expected to consume the whole
		// buffer on any non-NeedMoreData result (spec.md §9 fallback (a)),
		// since a custom protocol carries no declared frame length.
		if rule.Ignore {
			return NoResponse(len(buf))
		}

		resp := renderCustomResponse(rule.Response, captures)
		if h.cfg.Checksum != ChecksumNone {
			resp = append(resp, checksumBytes(h.cfg.Checksum, resp)...)
		}
		return Respond(len(buf), resp)
	}

	return NoResponse(len(buf))
}

func matchCustomRule(rule CustomRule, buf []byte, hexBuf string) (captures []string, matched bool) {
	switch {
	case len(rule.Prefix) > 0:
		return nil, bytes.HasPrefix(buf, rule.Prefix)
	case rule.HexPattern != "":
		return nil, strings.HasPrefix(hexBuf, strings.ToLower(rule.HexPattern))
	case rule.compiled != nil:
		m := rule.compiled.FindStringSubmatch(hexBuf)
		if m == nil {
			return nil, false
		}
		return m[1:], true
	default:
		return nil, false
	}
}

// renderCustomResponse decodes a hex template, substituting {N} with the
// hex-decoded bytes of the Nth capture group.
func renderCustomResponse(template string, captures []string) []byte {
	rendered := template
	for i, c := range captures {
		placeholder := "{" + strconv.Itoa(i+1) + "}"
		rendered = strings.ReplaceAll(rendered, placeholder, c)
	}
	b, err := hex.DecodeString(rendered)
	if err != nil {
		return nil
	}
	return b
}

func checksumBytes(kind ChecksumKind, data []byte) []byte {
	switch kind {
	case ChecksumSum8:
		var sum byte
		for _, b := range data {
			sum += b
		}
		return []byte{sum}
	case ChecksumXOR:
		var x byte
		for _, b := range data {
			x ^= b
		}
		return []byte{x}
	case ChecksumCRC16:
		c := crc16Modbus(data)
		return []byte{byte(c), byte(c >> 8)}
	default:
		return nil
	}
}

// crc16Modbus computes the CRC-16/MODBUS checksum (poly 0xA001, init 0xFFFF).
func crc16Modbus(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
