package protohandler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModbus() *Modbus {
	return NewModbus([]SlaveConfig{
		{
			SlaveID: 1,
			Registers: []RegisterConfig{
				{RegisterType: RegHoldingRegister, Address: 0x0000, Value: 0x1234},
			},
		},
	})
}

func TestModbusReadHoldingRegister(t *testing.T) {
	h := newTestModbus()
	state := NewState()

	req := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x06, 0x01, 0x03, 0x00, 0x00, 0x00, 0x01}
	result := h.Handle(req, state)

	require.Equal(t, OutcomeResponse, result.Outcome)
	assert.Equal(t, len(req), result.Consumed)
	expected := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x05, 0x01, 0x03, 0x02, 0x12, 0x34}
	assert.Equal(t, expected, result.Response)
}

func TestModbusUnknownUnitReturnsGatewayException(t *testing.T) {
	h := newTestModbus()
	state := NewState()

	req := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x06, 0x63, 0x03, 0x00, 0x00, 0x00, 0x01}
	result := h.Handle(req, state)

	require.Equal(t, OutcomeResponse, result.Outcome)
	expected := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x03, 0x63, 0x83, 0x0B}
	assert.Equal(t, expected, result.Response)
}

func TestModbusUnknownAddressReturnsIllegalDataAddress(t *testing.T) {
	h := newTestModbus()
	state := NewState()

	req := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x06, 0x01, 0x03, 0x00, 0x05, 0x00, 0x01}
	result := h.Handle(req, state)

	require.Equal(t, OutcomeResponse, result.Outcome)
	expected := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x03, 0x01, 0x83, 0x02}
	assert.Equal(t, expected, result.Response)
}

func TestModbusWriteSingleRegisterThenReadBack(t *testing.T) {
	h := newTestModbus()
	state := NewState()

	write := []byte{0x00, 0x02, 0x00, 0x00, 0x00, 0x06, 0x01, 0x06, 0x00, 0x01, 0x00, 0x2A}
	result := h.Handle(write, state)
	require.Equal(t, OutcomeResponse, result.Outcome)
	assert.Equal(t, write, result.Response)

	read := []byte{0x00, 0x03, 0x00, 0x00, 0x00, 0x06, 0x01, 0x03, 0x00, 0x01, 0x00, 0x01}
	result = h.Handle(read, state)
	require.Equal(t, OutcomeResponse, result.Outcome)
	expected := []byte{0x00, 0x03, 0x00, 0x00, 0x00, 0x05, 0x01, 0x03, 0x02, 0x00, 0x2A}
	assert.Equal(t, expected, result.Response)
}

func TestModbusNeedsMoreDataOnShortFrame(t *testing.T) {
	h := newTestModbus()
	state := NewState()

	req := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x06, 0x01, 0x03}
	result := h.Handle(req, state)
	assert.Equal(t, OutcomeNeedMore, result.Outcome)
}

func TestModbusCoilRoundTrip(t *testing.T) {
	h := NewModbus(nil)
	h.AddSlave(1)
	state := NewState()

	write := []byte{
		0x00, 0x01, 0x00, 0x00, 0x00, 0x08, 0x01, 0x0F,
		0x00, 0x00, 0x00, 0x03, 0x01, 0x05, // coils 0,2 set (0b101), 1 unset
	}
	result := h.Handle(write, state)
	require.Equal(t, OutcomeResponse, result.Outcome)

	read := []byte{0x00, 0x02, 0x00, 0x00, 0x00, 0x06, 0x01, 0x01, 0x00, 0x00, 0x00, 0x03}
	result = h.Handle(read, state)
	require.Equal(t, OutcomeResponse, result.Outcome)
	expected := []byte{0x00, 0x02, 0x00, 0x00, 0x00, 0x04, 0x01, 0x01, 0x01, 0x05}
	assert.Equal(t, expected, result.Response)
}
