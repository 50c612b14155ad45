// Package rules implements the MQTT topic/payload rule engine (spec.md
// §4.6 RuleEngine): ordered topic+payload matchers bound to actions.
package rules

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/ohler55/ojg/jp"
)

// MatcherKind selects the payload matcher variant.
type MatcherKind string

// Matcher kinds.
const (
	MatchExact     MatcherKind = "exact"
	MatchPrefix    MatcherKind = "prefix"
	MatchContains  MatcherKind = "contains"
	MatchRegex     MatcherKind = "regex"
	MatchJsonField MatcherKind = "json_field"
	MatchHex       MatcherKind = "hex"
)

// PayloadMatcher is one payload_match clause on a Rule.
type PayloadMatcher struct {
	Kind     MatcherKind `json:"kind"`
	Value    string      `json:"value,omitempty"`
	Path     string      `json:"path,omitempty"`     // JsonField dotted path
	Expected string      `json:"expected,omitempty"` // JsonField expected string form

	compiled *regexp.Regexp
}

// ActionKind selects the rule action variant.
type ActionKind string

// Action kinds.
const (
	ActionLog       ActionKind = "log"
	ActionRespond   ActionKind = "respond"
	ActionForward   ActionKind = "forward"
	ActionSilence   ActionKind = "silence"
	ActionTransform ActionKind = "transform"
)

// Action is one MqttRuleAction variant (spec.md §3). Only the fields
// relevant to Kind are populated.
type Action struct {
	Kind ActionKind `json:"kind"`

	// Log
	Message string `json:"message,omitempty"`

	// Respond
	Topic        string `json:"topic,omitempty"`
	Payload      string `json:"payload,omitempty"`
	UseTopicVars bool   `json:"use_topic_vars,omitempty"`

	// Forward
	TargetTopic string `json:"target_topic,omitempty"`

	// Transform
	OutputTopic   string `json:"output_topic,omitempty"`
	OutputPayload string `json:"output_payload,omitempty"`
}

// Rule is one MqttRule (spec.md §3): a topic pattern + optional payload
// matcher bound to an action, ordered by Priority (lower first).
type Rule struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Enabled      bool             `json:"enabled"`
	TopicPattern string           `json:"topic_pattern"`
	PayloadMatch *PayloadMatcher  `json:"payload_match,omitempty"`
	Action       Action           `json:"action"`
	Priority     int              `json:"priority"`
}

// Engine holds an insertion-sorted (by priority) rule list for one MQTT
// simulator. Safe for concurrent use.
type Engine struct {
	mu    sync.RWMutex
	rules []*Rule
}

// New returns an empty Engine.
func New() *Engine {
	return &Engine{}
}

// Load replaces the rule set wholesale (used on simulator create/import),
// sorting by priority ascending and compiling any regex matchers.
func (e *Engine) Load(rules []*Rule) error {
	sorted := append([]*Rule(nil), rules...)
	for _, r := range sorted {
		if err := compileMatcher(r.PayloadMatch); err != nil {
			return err
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	e.mu.Lock()
	e.rules = sorted
	e.mu.Unlock()
	return nil
}

// Add inserts r in priority order.
func (e *Engine) Add(r *Rule) error {
	if err := compileMatcher(r.PayloadMatch); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := sort.Search(len(e.rules), func(i int) bool { return e.rules[i].Priority >= r.Priority })
	e.rules = append(e.rules, nil)
	copy(e.rules[idx+1:], e.rules[idx:])
	e.rules[idx] = r
	return nil
}

// Remove deletes the rule with the given id. Reports whether anything was
// removed.
func (e *Engine) Remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, r := range e.rules {
		if r.ID == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			return true
		}
	}
	return false
}

// List returns a snapshot of the current rule set in priority order.
func (e *Engine) List() []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*Rule(nil), e.rules...)
}

// FindMatching returns every enabled rule whose topic pattern and payload
// matcher both match, preserving priority order. Every match fires (not
// first-match-wins), per spec.md §3/§4.6.
func (e *Engine) FindMatching(topic string, payload []byte) []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []*Rule
	for _, r := range e.rules {
		if !r.Enabled {
			continue
		}
		if !TopicMatches(r.TopicPattern, topic) {
			continue
		}
		if !payloadMatches(r.PayloadMatch, payload) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// TopicMatches reports whether topic satisfies pattern under MQTT wildcard
// rules: "#" matches the remainder (legal anywhere, though the spec only
// requires it as a final segment), "+" matches exactly one segment,
// literal segments must be equal, and both must exhaust together unless
// "#" ends the match early (spec.md §4.6).
func TopicMatches(pattern, topic string) bool {
	patternParts := strings.Split(pattern, "/")
	topicParts := strings.Split(topic, "/")

	for i, part := range patternParts {
		if part == "#" {
			return true
		}
		if i >= len(topicParts) {
			return false
		}
		if part == "+" {
			continue
		}
		if part != topicParts[i] {
			return false
		}
	}
	return len(patternParts) == len(topicParts)
}

func compileMatcher(m *PayloadMatcher) error {
	if m == nil || m.Kind != MatchRegex {
		return nil
	}
	re, err := regexp.Compile(m.Value)
	if err != nil {
		return err
	}
	m.compiled = re
	return nil
}

func payloadMatches(m *PayloadMatcher, payload []byte) bool {
	if m == nil {
		return true
	}
	switch m.Kind {
	case MatchExact:
		return string(payload) == m.Value
	case MatchPrefix:
		return bytes.HasPrefix(payload, []byte(m.Value))
	case MatchContains:
		return bytes.Contains(payload, []byte(m.Value))
	case MatchRegex:
		re := m.compiled
		if re == nil {
			var err error
			re, err = regexp.Compile(m.Value)
			if err != nil {
				return false
			}
		}
		return re.Match(payload)
	case MatchHex:
		want, err := hex.DecodeString(m.Value)
		if err != nil {
			return false
		}
		return bytes.Equal(payload, want)
	case MatchJsonField:
		return jsonFieldMatches(m.Path, m.Expected, payload)
	default:
		return false
	}
}

// jsonFieldMatches parses payload as JSON, walks the dotted path, and
// compares the resulting scalar's unquoted string form against expected
// (spec.md §4.6: "string comparisons are un-quoted").
func jsonFieldMatches(path, expected string, payload []byte) bool {
	var data any
	if err := json.Unmarshal(payload, &data); err != nil {
		return false
	}
	expr, err := jp.ParseString(path)
	if err != nil {
		return false
	}
	results := expr.Get(data)
	if len(results) == 0 {
		return false
	}
	return scalarString(results[0]) == expected
}

// scalarString renders a JSON-decoded scalar in unquoted string form
// (spec.md §4.6: "string comparisons are un-quoted").
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case bool:
		return fmt.Sprintf("%t", t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
