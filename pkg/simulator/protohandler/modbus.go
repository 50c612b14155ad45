package protohandler

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// SlaveConfig declares one Modbus slave's registers at simulator creation
// time (spec.md §3 ModbusValues.SlaveConfig).
type SlaveConfig struct {
	SlaveID   byte             `json:"slave_id"`
	Registers []RegisterConfig `json:"registers"`
}

// RegisterConfig is one seeded register value.
type RegisterConfig struct {
	RegisterType RegisterType `json:"register_type"`
	Address      uint16       `json:"address"`
	Value        uint16       `json:"value"`
}

// Modbus implements the TCP MBAP-framed Modbus slave bank (spec.md §4.3).
type Modbus struct {
	banks map[byte]*SlaveBank
}

// NewModbus builds a Modbus handler from the declared slave configs.
func NewModbus(slaves []SlaveConfig) *Modbus {
	banks := make(map[byte]*SlaveBank, len(slaves))
	for _, s := range slaves {
		bank := NewSlaveBank(s.SlaveID)
		for _, r := range s.Registers {
			switch r.RegisterType {
			case RegHoldingRegister:
				bank.SetHoldingRegister(r.Address, r.Value)
			case RegInputRegister:
				bank.SetInputRegister(r.Address, r.Value)
			case RegCoil:
				bank.SetCoil(r.Address, r.Value != 0)
			case RegDiscreteInput:
				bank.SetDiscreteInput(r.Address, r.Value != 0)
			}
		}
		banks[s.SlaveID] = bank
	}
	return &Modbus{banks: banks}
}

func (h *Modbus) Kind() Kind { return KindModbus }

func (h *Modbus) OnConnect(state *State) []byte { return nil }

func (h *Modbus) OnDisconnect(state *State) {}

// AddSlave registers a new bank at runtime (admin API "add slave").
func (h *Modbus) AddSlave(slaveID byte) *SlaveBank {
	bank := NewSlaveBank(slaveID)
	h.banks[slaveID] = bank
	return bank
}

// RemoveSlave deletes a configured bank.
func (h *Modbus) RemoveSlave(slaveID byte) {
	delete(h.banks, slaveID)
}

// Bank returns the bank for slaveID, or nil.
func (h *Modbus) Bank(slaveID byte) *SlaveBank {
	return h.banks[slaveID]
}

// SlaveIDs returns every configured slave id, ascending.
func (h *Modbus) SlaveIDs() []byte {
	ids := make([]byte, 0, len(h.banks))
	for id := range h.banks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (h *Modbus) Handle(buf []byte, state *State) Result {
	if len(buf) < mbapHeaderLen {
		return NeedMore()
	}
	header, err := parseMBAP(buf)
	if err != nil {
		return NeedMore()
	}

	total := 6 + int(header.Length)
	if len(buf) < total {
		return NeedMore()
	}
	if total <= mbapHeaderLen {
		return Failed(total, fmt.Errorf("modbus: empty PDU"))
	}

	pdu := buf[mbapHeaderLen:total]
	function := pdu[0]

	bank, ok := h.banks[header.UnitID]
	if !ok {
		resp := encodeMBAP(header.TransactionID, header.UnitID, exceptionPDU(function, excGatewayTargetFailed))
		return Respond(total, resp)
	}

	respPDU, excCode := dispatchModbusFunction(bank, pdu)
	if excCode != 0 {
		resp := encodeMBAP(header.TransactionID, header.UnitID, exceptionPDU(function, excCode))
		return Respond(total, resp)
	}

	resp := encodeMBAP(header.TransactionID, header.UnitID, respPDU)
	return Respond(total, resp)
}

// dispatchModbusFunction executes one PDU against bank, returning either a
// success response PDU (excCode == 0) or an exception code.
func dispatchModbusFunction(bank *SlaveBank, pdu []byte) (respPDU []byte, excCode byte) {
	if len(pdu) < 1 {
		return nil, excIllegalFunction
	}
	function := pdu[0]

	switch function {
	case fcReadCoils, fcReadDiscreteInputs:
		if len(pdu) < 5 {
			return nil, excIllegalDataAddress
		}
		addr := binary.BigEndian.Uint16(pdu[1:3])
		qty := binary.BigEndian.Uint16(pdu[3:5])
		values := make([]bool, qty)
		for i := uint16(0); i < qty; i++ {
			var v bool
			var err error
			if function == fcReadCoils {
				v, err = bank.readCoil(addr + i)
			} else {
				v, err = bank.readDiscreteInput(addr + i)
			}
			if err != nil {
				return nil, excIllegalDataAddress
			}
			values[i] = v
		}
		packed := packCoils(values)
		return append([]byte{function, byte(len(packed))}, packed...), 0

	case fcReadHoldingRegisters, fcReadInputRegisters:
		if len(pdu) < 5 {
			return nil, excIllegalDataAddress
		}
		addr := binary.BigEndian.Uint16(pdu[1:3])
		qty := binary.BigEndian.Uint16(pdu[3:5])
		out := make([]byte, 2+2*int(qty))
		out[0] = function
		out[1] = byte(2 * qty)
		for i := uint16(0); i < qty; i++ {
			var v uint16
			var err error
			if function == fcReadHoldingRegisters {
				v, err = bank.readHoldingRegister(addr + i)
			} else {
				v, err = bank.readInputRegister(addr + i)
			}
			if err != nil {
				return nil, excIllegalDataAddress
			}
			binary.BigEndian.PutUint16(out[2+2*i:4+2*i], v)
		}
		return out, 0

	case fcWriteSingleCoil:
		if len(pdu) < 5 {
			return nil, excIllegalDataAddress
		}
		addr := binary.BigEndian.Uint16(pdu[1:3])
		raw := binary.BigEndian.Uint16(pdu[3:5])
		bank.SetCoil(addr, raw == 0xFF00)
		return append([]byte{}, pdu[:5]...), 0

	case fcWriteSingleRegister:
		if len(pdu) < 5 {
			return nil, excIllegalDataAddress
		}
		addr := binary.BigEndian.Uint16(pdu[1:3])
		value := binary.BigEndian.Uint16(pdu[3:5])
		bank.SetHoldingRegister(addr, value)
		return append([]byte{}, pdu[:5]...), 0

	case fcWriteMultipleCoils:
		if len(pdu) < 6 {
			return nil, excIllegalDataAddress
		}
		addr := binary.BigEndian.Uint16(pdu[1:3])
		qty := binary.BigEndian.Uint16(pdu[3:5])
		byteCount := pdu[5]
		if len(pdu) < 6+int(byteCount) {
			return nil, excIllegalDataAddress
		}
		values := unpackCoils(pdu[6:6+int(byteCount)], int(qty))
		for i, v := range values {
			bank.SetCoil(addr+uint16(i), v)
		}
		resp := make([]byte, 5)
		resp[0] = function
		binary.BigEndian.PutUint16(resp[1:3], addr)
		binary.BigEndian.PutUint16(resp[3:5], qty)
		return resp, 0

	case fcWriteMultipleRegister:
		if len(pdu) < 6 {
			return nil, excIllegalDataAddress
		}
		addr := binary.BigEndian.Uint16(pdu[1:3])
		qty := binary.BigEndian.Uint16(pdu[3:5])
		byteCount := pdu[5]
		if len(pdu) < 6+int(byteCount) || int(byteCount) < 2*int(qty) {
			return nil, excIllegalDataAddress
		}
		for i := uint16(0); i < qty; i++ {
			v := binary.BigEndian.Uint16(pdu[6+2*i : 8+2*i])
			bank.SetHoldingRegister(addr+i, v)
		}
		resp := make([]byte, 5)
		resp[0] = function
		binary.BigEndian.PutUint16(resp[1:3], addr)
		binary.BigEndian.PutUint16(resp[3:5], qty)
		return resp, 0

	default:
		return nil, excIllegalFunction
	}
}
