package vm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cauchynet/cauchy/storage/database"
)

func newTestSession(t *testing.T, aux []byte) (*Session, *Performance) {
	t.Helper()
	outbox := make(chan outboxEntry, 4)
	mailbox, _ := NewMailbox(outbox)
	var wg sync.WaitGroup
	perf := NewPerformance()
	return NewSession(mailbox, []byte("actor"), aux, database.NewMemoryStore(), perf, &wg), perf
}

func TestInterpreterStoreLookupExit(t *testing.T) {
	session, perf := newTestSession(t, nil)

	const (
		keyAddr = 0
		valAddr = 64
		bufAddr = 128
	)
	key := []byte("k")
	value := []byte("hello")

	program := []Instruction{
		WriteInstr(keyAddr, key),
		WriteInstr(valAddr, value),
		LoadInstr(A3, keyAddr),
		LoadInstr(A4, uint64(len(key))),
		LoadInstr(A5, valAddr),
		LoadInstr(A6, uint64(len(value))),
		LoadInstr(A7, SyscallStore),
		EcallInstr(),

		LoadInstr(A3, keyAddr),
		LoadInstr(A4, uint64(len(key))),
		LoadInstr(A5, bufAddr),
		LoadInstr(A6, 16),
		LoadInstr(A7, SyscallLookup),
		EcallInstr(),

		LoadInstr(A0, 7),
		LoadInstr(A7, SyscallExit),
		EcallInstr(),
	}

	var interp Interpreter
	m := NewMachine(defaultMemorySize)
	code, err := interp.RunOn(session, m, program)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), code)
	assert.Equal(t, value, m.Read(bufAddr, uint64(len(value))))
	assert.Equal(t, uint64(1), m.Reg(S1))
	assert.Equal(t, uint64(len(value)), m.Reg(S2))

	act := perf.Acts()["actor"]
	assert.Equal(t, value, act.AccessPattern.Delta["k"])
	_, read := act.AccessPattern.Reads["k"]
	assert.True(t, read)
}

func TestInterpreterLookupMissingKey(t *testing.T) {
	session, _ := newTestSession(t, nil)

	program := []Instruction{
		LoadInstr(A3, 0),
		LoadInstr(A4, 1),
		LoadInstr(A5, 64),
		LoadInstr(A6, 16),
		LoadInstr(A7, SyscallLookup),
		EcallInstr(),
	}

	var interp Interpreter
	m := NewMachine(defaultMemorySize)
	_, err := interp.RunOn(session, m, program)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), m.Reg(S1))
}

func TestInterpreterAuxData(t *testing.T) {
	aux := []byte("abcdefgh")
	session, _ := newTestSession(t, aux)

	const bufAddr = 0
	program := []Instruction{
		LoadInstr(A3, bufAddr),
		LoadInstr(A4, 2),
		LoadInstr(A5, 4),
		LoadInstr(A7, SyscallAuxData),
		EcallInstr(),
	}

	var interp Interpreter
	m := NewMachine(defaultMemorySize)
	_, err := interp.RunOn(session, m, program)
	require.NoError(t, err)
	assert.Equal(t, []byte("cdef"), m.Read(bufAddr, 4))
	assert.Equal(t, uint64(len(aux)), m.Reg(S2))
}

func TestInterpreterRecvEmptyZeroesResultRegisters(t *testing.T) {
	session, _ := newTestSession(t, nil)

	program := []Instruction{
		LoadInstr(A3, 0),
		LoadInstr(A4, 32),
		LoadInstr(A5, 64),
		LoadInstr(A6, 32),
		LoadInstr(A7, SyscallRecv),
		EcallInstr(),
	}

	var interp Interpreter
	m := NewMachine(defaultMemorySize)
	_, err := interp.RunOn(session, m, program)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), m.Reg(S1))
	assert.Equal(t, uint64(0), m.Reg(S2))
}

func TestUnknownEcallErrors(t *testing.T) {
	session, _ := newTestSession(t, nil)

	program := []Instruction{
		LoadInstr(A7, 0x1234),
		EcallInstr(),
	}

	var interp Interpreter
	_, err := interp.Run(session, program)
	assert.Error(t, err)
}

func TestEncodeDecodeProgramRoundTrip(t *testing.T) {
	program := []Instruction{
		LoadInstr(A7, SyscallExit),
		WriteInstr(10, []byte("payload")),
		LoadInstr(A0, 42),
		EcallInstr(),
	}

	decoded, err := DecodeProgram(EncodeProgram(program))
	require.NoError(t, err)
	assert.Equal(t, program, decoded)
}
