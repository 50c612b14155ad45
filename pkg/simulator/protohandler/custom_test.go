package protohandler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomPrefixMatchRespondsWithFixedTemplate(t *testing.T) {
	h := NewCustom(CustomConfig{
		Name: "echo",
		Rules: []CustomRule{
			{Name: "ping", Prefix: []byte{0x50, 0x49}, Response: "504f4e47"}, // "PONG"
		},
	})
	state := NewState()

	result := h.Handle([]byte{0x50, 0x49, 0x4e, 0x47}, state) // "PING"
	require.Equal(t, OutcomeResponse, result.Outcome)
	assert.Equal(t, []byte("PONG"), result.Response)
	assert.Equal(t, 4, result.Consumed)
}

func TestCustomRegexCaptureSubstitution(t *testing.T) {
	h := NewCustom(CustomConfig{
		Name: "echo-id",
		Rules: []CustomRule{
			{Name: "id-query", Regex: `^01([0-9a-f]{2})$`, Response: "02{1}"},
		},
	})
	state := NewState()

	result := h.Handle([]byte{0x01, 0x2a}, state)
	require.Equal(t, OutcomeResponse, result.Outcome)
	assert.Equal(t, []byte{0x02, 0x2a}, result.Response)
}

func TestCustomNoMatchYieldsNoResponse(t *testing.T) {
	h := NewCustom(CustomConfig{
		Rules: []CustomRule{{Prefix: []byte{0xFF}, Response: "00"}},
	})
	state := NewState()

	result := h.Handle([]byte{0x01, 0x02}, state)
	assert.Equal(t, OutcomeNoResponse, result.Outcome)
}

func TestCustomIgnoreRuleSuppressesResponse(t *testing.T) {
	h := NewCustom(CustomConfig{
		Rules: []CustomRule{{Prefix: []byte{0x01}, Ignore: true}},
	})
	state := NewState()

	result := h.Handle([]byte{0x01, 0x02}, state)
	assert.Equal(t, OutcomeNoResponse, result.Outcome)
}

func TestCustomChecksumAppended(t *testing.T) {
	h := NewCustom(CustomConfig{
		Checksum: ChecksumXOR,
		Rules:    []CustomRule{{Prefix: []byte{0x01}, Response: "0102"}},
	})
	state := NewState()

	result := h.Handle([]byte{0x01}, state)
	require.Equal(t, OutcomeResponse, result.Outcome)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, result.Response)
}
