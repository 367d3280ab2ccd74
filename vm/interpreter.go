package vm

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// Op is an interpreter-level instruction, distinct from the ecall codes
// below: it is the tiny stack-machine encoding a transaction's Binary
// holds, whose sole purpose is to drive the syscall table deterministically.
type Op byte

const (
	// OpLoad sets a register to an immediate value.
	OpLoad Op = iota
	// OpWrite copies literal bytes into memory at a fixed address.
	OpWrite
	// OpEcall invokes the syscall named by register A7 with arguments
	// already staged in A0/A3-A6.
	OpEcall
)

// Instruction is one step of a program.
type Instruction struct {
	Op   Op
	Reg  Reg
	Imm  uint64
	Addr uint64
	Data []byte
}

// LoadInstr loads imm into reg.
func LoadInstr(reg Reg, imm uint64) Instruction { return Instruction{Op: OpLoad, Reg: reg, Imm: imm} }

// WriteInstr writes data into memory at addr.
func WriteInstr(addr uint64, data []byte) Instruction {
	return Instruction{Op: OpWrite, Addr: addr, Data: data}
}

// EcallInstr invokes whatever syscall A7 currently names.
func EcallInstr() Instruction { return Instruction{Op: OpEcall} }

// Syscall codes, numerically as spec'd.
const (
	SyscallSend        = 0xCBFF
	SyscallRecv        = 0xCBFE
	SyscallStore       = 0xCBFD
	SyscallLookup      = 0xCBFC
	SyscallAuxData     = 0xCBFB
	SyscallSendFromAux = 0xCBFA
	SyscallRand        = 0xCBF9
	SyscallExit        = 93
)

// defaultMemorySize is the initial scratch memory given to a fresh
// Machine; writes past it simply grow it.
const defaultMemorySize = 4096

// Interpreter runs a Program against a Session's syscalls.
type Interpreter struct{}

// Run executes program against session using a fresh Machine, returning
// the session's exit code. A program that runs off the end without an
// explicit exit halts with code 0, matching a normal return.
func (i Interpreter) Run(session *Session, program []Instruction) (exitCode uint64, err error) {
	return i.RunOn(session, NewMachine(defaultMemorySize), program)
}

// RunOn executes program against session using the given Machine,
// exposing it to the caller afterward -- primarily useful for tests that
// want to inspect memory a program wrote.
func (Interpreter) RunOn(session *Session, m *Machine, program []Instruction) (exitCode uint64, err error) {
	for _, instr := range program {
		session.perf.AddOperation(session.id)
		switch instr.Op {
		case OpLoad:
			m.SetReg(instr.Reg, instr.Imm)
		case OpWrite:
			m.Write(instr.Addr, instr.Data)
		case OpEcall:
			halted, code, err := dispatch(m, session)
			if err != nil {
				return 0, err
			}
			if halted {
				return code, nil
			}
		default:
			return 0, fmt.Errorf("vm: unknown instruction opcode %d", instr.Op)
		}
	}
	return 0, nil
}

// dispatch performs the syscall named by A7 against session, using
// arguments staged in A0/A3-A6, and reports whether the session halted
// (exit) and with what code.
func dispatch(m *Machine, s *Session) (halted bool, code uint64, err error) {
	switch m.Reg(A7) {
	case SyscallSend:
		txid := m.Read(m.Reg(A3), m.Reg(A4))
		data := m.Read(m.Reg(A5), m.Reg(A6))
		s.Send(txid, data)

	case SyscallRecv:
		msg, ok := s.Recv()
		if !ok {
			m.SetReg(S1, 0)
			m.SetReg(S2, 0)
			break
		}
		txidLen := clampLen(uint64(len(msg.Sender)), m.Reg(A4))
		dataLen := clampLen(uint64(len(msg.Payload)), m.Reg(A6))
		m.Write(m.Reg(A3), msg.Sender[:txidLen])
		m.Write(m.Reg(A5), msg.Payload[:dataLen])
		m.SetReg(S1, txidLen)
		m.SetReg(S2, dataLen)

	case SyscallStore:
		key := m.Read(m.Reg(A3), m.Reg(A4))
		value := m.Read(m.Reg(A5), m.Reg(A6))
		if err = s.Store(key, value); err != nil {
			return false, 0, err
		}

	case SyscallLookup:
		key := m.Read(m.Reg(A3), m.Reg(A4))
		value, ok, lookupErr := s.Lookup(key)
		if lookupErr != nil {
			return false, 0, lookupErr
		}
		n := clampLen(uint64(len(value)), m.Reg(A6))
		if ok {
			m.Write(m.Reg(A5), value[:n])
		}
		m.SetReg(S1, boolToReg(ok))
		m.SetReg(S2, n)

	case SyscallAuxData:
		index := m.Reg(A4)
		length := m.Reg(A5)
		end := index + length
		if end > uint64(len(s.aux)) {
			end = uint64(len(s.aux))
		}
		if index > end {
			index = end
		}
		m.Write(m.Reg(A3), s.aux[index:end])
		m.SetReg(S2, uint64(len(s.aux)))

	case SyscallSendFromAux:
		txidLen := m.Reg(A3)
		dataLen := m.Reg(A4)
		if txidLen+dataLen > uint64(len(s.aux)) {
			return false, 0, fmt.Errorf("vm: send_from_aux slice out of range")
		}
		txid := s.aux[:txidLen]
		data := s.aux[txidLen : txidLen+dataLen]
		s.Send(txid, data)

	case SyscallRand:
		buf := make([]byte, m.Reg(A4))
		if _, err = rand.Read(buf); err != nil {
			return false, 0, err
		}
		m.Write(m.Reg(A3), buf)

	case SyscallExit:
		return true, m.Reg(A0), nil

	default:
		return false, 0, fmt.Errorf("vm: unknown ecall 0x%x", m.Reg(A7))
	}
	return false, 0, nil
}

func clampLen(have, max uint64) uint64 {
	if have > max {
		return max
	}
	return have
}

func boolToReg(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// EncodeProgram serializes a program to the bytes a Transaction's Binary
// field carries.
func EncodeProgram(program []Instruction) []byte {
	var out []byte
	for _, instr := range program {
		out = append(out, byte(instr.Op))
		switch instr.Op {
		case OpLoad:
			out = append(out, byte(instr.Reg))
			out = appendUint64(out, instr.Imm)
		case OpWrite:
			out = appendUint64(out, instr.Addr)
			out = appendUint64(out, uint64(len(instr.Data)))
			out = append(out, instr.Data...)
		case OpEcall:
		}
	}
	return out
}

func appendUint64(out []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(out, b[:]...)
}

// DecodeProgram parses bytes produced by EncodeProgram.
func DecodeProgram(data []byte) ([]Instruction, error) {
	var program []Instruction
	for len(data) > 0 {
		op := Op(data[0])
		data = data[1:]
		switch op {
		case OpLoad:
			if len(data) < 9 {
				return nil, fmt.Errorf("vm: truncated load instruction")
			}
			reg := Reg(data[0])
			imm := binary.BigEndian.Uint64(data[1:9])
			data = data[9:]
			program = append(program, Instruction{Op: OpLoad, Reg: reg, Imm: imm})
		case OpWrite:
			if len(data) < 16 {
				return nil, fmt.Errorf("vm: truncated write instruction")
			}
			addr := binary.BigEndian.Uint64(data[0:8])
			n := binary.BigEndian.Uint64(data[8:16])
			data = data[16:]
			if uint64(len(data)) < n {
				return nil, fmt.Errorf("vm: truncated write payload")
			}
			payload := append([]byte(nil), data[:n]...)
			data = data[n:]
			program = append(program, Instruction{Op: OpWrite, Addr: addr, Data: payload})
		case OpEcall:
			program = append(program, Instruction{Op: OpEcall})
		default:
			return nil, fmt.Errorf("vm: unknown opcode %d in encoded program", op)
		}
	}
	return program, nil
}
