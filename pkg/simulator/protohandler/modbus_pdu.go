package protohandler

import (
	"encoding/binary"
	"errors"
)

// Function codes supported by the Modbus handler (spec.md §4.3).
const (
	fcReadCoils             = 0x01
	fcReadDiscreteInputs    = 0x02
	fcReadHoldingRegisters  = 0x03
	fcReadInputRegisters    = 0x04
	fcWriteSingleCoil       = 0x05
	fcWriteSingleRegister   = 0x06
	fcWriteMultipleCoils    = 0x0F
	fcWriteMultipleRegister = 0x10
)

// Exception codes (spec.md §4.3).
const (
	excIllegalFunction     = 0x01
	excIllegalDataAddress  = 0x02
	excGatewayTargetFailed = 0x0B
)

// RegisterType is the Modbus table a register lives in.
type RegisterType string

// Register types.
const (
	RegCoil            RegisterType = "coil"
	RegDiscreteInput   RegisterType = "discrete_input"
	RegHoldingRegister RegisterType = "holding_register"
	RegInputRegister   RegisterType = "input_register"
)

// registerKey is the (type, address) identity a SlaveBank indexes on, per
// spec.md §3's uniqueness invariant.
type registerKey struct {
	kind RegisterType
	addr uint16
}

// SlaveBank is one slave's in-memory register tables.
type SlaveBank struct {
	SlaveID   byte
	registers map[registerKey]uint16
	coils     map[uint16]bool
	discretes map[uint16]bool
}

// NewSlaveBank creates an empty bank for slaveID.
func NewSlaveBank(slaveID byte) *SlaveBank {
	return &SlaveBank{
		SlaveID:   slaveID,
		registers: map[registerKey]uint16{},
		coils:     map[uint16]bool{},
		discretes: map[uint16]bool{},
	}
}

// SetHoldingRegister sets a holding register's stored value. Input
// registers are seeded separately, with SetInputRegister.
func (b *SlaveBank) SetHoldingRegister(addr uint16, value uint16) {
	b.registers[registerKey{RegHoldingRegister, addr}] = value
}

func (b *SlaveBank) SetInputRegister(addr uint16, value uint16) {
	b.registers[registerKey{RegInputRegister, addr}] = value
}

func (b *SlaveBank) SetCoil(addr uint16, value bool) {
	b.coils[addr] = value
}

func (b *SlaveBank) SetDiscreteInput(addr uint16, value bool) {
	b.discretes[addr] = value
}

var errIllegalAddress = errors.New("illegal data address")

func (b *SlaveBank) readHoldingRegister(addr uint16) (uint16, error) {
	v, ok := b.registers[registerKey{RegHoldingRegister, addr}]
	if !ok {
		return 0, errIllegalAddress
	}
	return v, nil
}

func (b *SlaveBank) readInputRegister(addr uint16) (uint16, error) {
	v, ok := b.registers[registerKey{RegInputRegister, addr}]
	if !ok {
		return 0, errIllegalAddress
	}
	return v, nil
}

func (b *SlaveBank) readCoil(addr uint16) (bool, error) {
	v, ok := b.coils[addr]
	if !ok {
		return false, errIllegalAddress
	}
	return v, nil
}

func (b *SlaveBank) readDiscreteInput(addr uint16) (bool, error) {
	v, ok := b.discretes[addr]
	if !ok {
		return false, errIllegalAddress
	}
	return v, nil
}

// DeleteRegister removes one address from the given table, if present
// (admin API "delete register").
func (b *SlaveBank) DeleteRegister(kind RegisterType, addr uint16) {
	switch kind {
	case RegHoldingRegister, RegInputRegister:
		delete(b.registers, registerKey{kind, addr})
	case RegCoil:
		delete(b.coils, addr)
	case RegDiscreteInput:
		delete(b.discretes, addr)
	}
}

// SetRegister writes one address in the given table, accepting the same
// uint16-encoded value the seed config uses (non-zero is true for
// coils/discretes).
func (b *SlaveBank) SetRegister(kind RegisterType, addr uint16, value uint16) {
	switch kind {
	case RegHoldingRegister:
		b.SetHoldingRegister(addr, value)
	case RegInputRegister:
		b.SetInputRegister(addr, value)
	case RegCoil:
		b.SetCoil(addr, value != 0)
	case RegDiscreteInput:
		b.SetDiscreteInput(addr, value != 0)
	}
}

// List returns every configured register as a flat, address-independent
// snapshot for the admin API's "list registers" view.
func (b *SlaveBank) List() []RegisterConfig {
	out := make([]RegisterConfig, 0, len(b.registers)+len(b.coils)+len(b.discretes))
	for k, v := range b.registers {
		out = append(out, RegisterConfig{RegisterType: k.kind, Address: k.addr, Value: v})
	}
	for addr, v := range b.coils {
		value := uint16(0)
		if v {
			value = 1
		}
		out = append(out, RegisterConfig{RegisterType: RegCoil, Address: addr, Value: value})
	}
	for addr, v := range b.discretes {
		value := uint16(0)
		if v {
			value = 1
		}
		out = append(out, RegisterConfig{RegisterType: RegDiscreteInput, Address: addr, Value: value})
	}
	return out
}

// mbapHeader is the 7-byte Modbus TCP Application Protocol header.
type mbapHeader struct {
	TransactionID uint16
	ProtocolID    uint16
	Length        uint16 // bytes following, i.e. unit id + PDU
	UnitID        byte
}

const mbapHeaderLen = 7

func parseMBAP(buf []byte) (mbapHeader, error) {
	if len(buf) < mbapHeaderLen {
		return mbapHeader{}, errors.New("short MBAP header")
	}
	h := mbapHeader{
		TransactionID: binary.BigEndian.Uint16(buf[0:2]),
		ProtocolID:    binary.BigEndian.Uint16(buf[2:4]),
		Length:        binary.BigEndian.Uint16(buf[4:6]),
		UnitID:        buf[6],
	}
	return h, nil
}

// encodeMBAP writes a response frame: header + PDU, with Length computed
// from len(unitID)+len(pdu).
func encodeMBAP(transactionID uint16, unitID byte, pdu []byte) []byte {
	out := make([]byte, mbapHeaderLen+len(pdu))
	binary.BigEndian.PutUint16(out[0:2], transactionID)
	binary.BigEndian.PutUint16(out[2:4], 0)
	binary.BigEndian.PutUint16(out[4:6], uint16(1+len(pdu)))
	out[6] = unitID
	copy(out[7:], pdu)
	return out
}

// exceptionPDU builds a Modbus exception response PDU: (function|0x80), code.
func exceptionPDU(function byte, code byte) []byte {
	return []byte{function | 0x80, code}
}

// packCoils packs bool values LSB-first per Modbus coil-packing convention.
func packCoils(values []bool) []byte {
	out := make([]byte, (len(values)+7)/8)
	for i, v := range values {
		if v {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// unpackCoils unpacks count bools LSB-first from data.
func unpackCoils(data []byte, count int) []bool {
	out := make([]bool, count)
	for i := 0; i < count; i++ {
		out[i] = data[i/8]&(1<<uint(i%8)) != 0
	}
	return out
}
