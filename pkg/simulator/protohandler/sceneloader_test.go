package protohandler

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestSceneLoaderHappyPath(t *testing.T) {
	h := NewSceneLoader(nil)
	state := NewState()

	req := []byte{
		0x55, 0xAA, 0x00, 0x00, 0xFE, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x01, 0x51, 0x13, 0x01, 0x00, 0x00, 0xBA, 0x56,
	}

	result := h.Handle(req, state)
	require.Equal(t, OutcomeResponse, result.Outcome)
	assert.Equal(t, 21, result.Consumed)

	expected := []byte{
		0xAA, 0x55, 0x00, 0x00, 0x00, 0xFE, 0x00, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x01, 0x51, 0x13, 0x00, 0x00, 0xB9, 0x56,
	}
	assert.Equal(t, expected, result.Response)
	assert.Equal(t, 1, state.Values["current_scene"])
}

func TestSceneLoaderNeedsMoreData(t *testing.T) {
	h := NewSceneLoader(nil)
	state := NewState()
	result := h.Handle([]byte{0x55, 0xAA, 0x00}, state)
	assert.Equal(t, OutcomeNeedMore, result.Outcome)
}

func TestSceneLoaderBadHeaderErrors(t *testing.T) {
	h := NewSceneLoader(nil)
	state := NewState()
	buf := make([]byte, 21)
	buf[0], buf[1] = 0x00, 0x00
	result := h.Handle(buf, state)
	assert.Equal(t, OutcomeError, result.Outcome)
	assert.Error(t, result.Err)
}

func TestSceneLoaderChecksumMismatchStillResponds(t *testing.T) {
	h := NewSceneLoader(nil)
	state := NewState()
	req := []byte{
		0x55, 0xAA, 0x00, 0x00, 0xFE, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x01, 0x51, 0x13, 0x01, 0x00, 0x00, 0xFF, 0xFF,
	}
	result := h.Handle(req, state)
	assert.Equal(t, OutcomeResponse, result.Outcome, "checksum mismatch must not suppress the response")
}
