package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvn-dco/stripvm/host"
	"github.com/dvn-dco/stripvm/isa"
)

// assemble is a tiny test-local assembler: it encodes a slice of instructions
// and wraps them in a valid header with no data segment, so vm tests
// don't depend on package asm.
func assemble(t *testing.T, instrs ...isa.Instruction) []byte {
	t.Helper()
	img := []byte{magicByte0, magicByte1, 0x00, 0x00}
	for _, inst := range instrs {
		w := isa.Encode(inst)
		img = append(img, w[:]...)
	}
	return img
}

func newTestVM() *VM {
	return New(host.NewRAM(64))
}

func TestLoadRejectsBadMagic(t *testing.T) {
	v := newTestVM()
	err := v.Load([]byte{0x00, 0x00, 0x00, 0x00})
	require.ErrorIs(t, err, ErrInvalidProg)
}

func TestLoadRejectsTruncatedHeader(t *testing.T) {
	v := newTestVM()
	err := v.Load([]byte{0xAF, 0xAF})
	require.ErrorIs(t, err, ErrInvalidProg)
}

func TestLoadRejectsInconsistentLength(t *testing.T) {
	v := newTestVM()
	// claims a 10-byte data segment but the image is shorter.
	err := v.Load([]byte{0xAF, 0xAF, 0x00, 0x0A, 0x01, 0x02})
	require.ErrorIs(t, err, ErrInvalidProg)
}

func TestLoadInstallsDataSegment(t *testing.T) {
	v := newTestVM()
	img := []byte{0xAF, 0xAF, 0x00, 0x04, 0x11, 0x22, 0x33, 0x44}
	require.NoError(t, v.Load(img))
	ram := v.Host().(*host.RAM)
	assert.Equal(t, byte(0x11), ram.Bytes()[0])
	assert.Equal(t, byte(0x44), ram.Bytes()[3])
}

func TestSpinEmptyProgramHaltsImmediately(t *testing.T) {
	v := newTestVM()
	require.NoError(t, v.Load(assemble(t)))
	require.NoError(t, v.Spin())
	assert.Equal(t, uint32(0), v.PC())
}

func TestHaltOpcodeStopsWithoutAdvancing(t *testing.T) {
	v := newTestVM()
	require.NoError(t, v.Load(assemble(t, isa.Instruction{Opcode: isa.Halt})))
	halted, err := v.Step()
	require.NoError(t, err)
	assert.True(t, halted)
	assert.Equal(t, uint32(0), v.PC())
}

func TestDecodeInvalidOpcodeIsFatal(t *testing.T) {
	v := newTestVM()
	img := []byte{0xAF, 0xAF, 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF}
	require.NoError(t, v.Load(img))
	_, err := v.Step()
	require.ErrorIs(t, err, ErrInvalidProg)
}

func TestArithmeticScenario(t *testing.T) {
	// li s0, 1  -->  addi s0, zero, 1
	// add s1, s0, s0
	// addi s2, s1, 1
	v := newTestVM()
	prog := assemble(t,
		isa.Instruction{Opcode: isa.Addi, R1: isa.RegS0, R2: isa.RegZero, Imm: 1},
		isa.Instruction{Opcode: isa.Add, R1: isa.RegS1, R2: isa.RegS0, R3: isa.RegS0},
		isa.Instruction{Opcode: isa.Addi, R1: isa.RegS2, R2: isa.RegS1, Imm: 1},
	)
	require.NoError(t, v.Load(prog))
	require.NoError(t, v.Spin())

	assert.Equal(t, int32(1), v.Reg(isa.RegS0))
	assert.Equal(t, int32(2), v.Reg(isa.RegS1))
	assert.Equal(t, int32(3), v.Reg(isa.RegS2))
}

func TestMulMultipliesRegisters(t *testing.T) {
	// li s0, 100  -->  addi s0, zero, 100
	// li s1, 500  -->  addi s1, zero, 500
	// mul s0, s0, s1
	v := newTestVM()
	prog := assemble(t,
		isa.Instruction{Opcode: isa.Addi, R1: isa.RegS0, R2: isa.RegZero, Imm: 100},
		isa.Instruction{Opcode: isa.Addi, R1: isa.RegS1, R2: isa.RegZero, Imm: 500},
		isa.Instruction{Opcode: isa.Mul, R1: isa.RegS0, R2: isa.RegS0, R3: isa.RegS1},
	)
	require.NoError(t, v.Load(prog))
	require.NoError(t, v.Spin())
	assert.Equal(t, int32(50000), v.Reg(isa.RegS0))
}

func TestSrliIsSignedShift(t *testing.T) {
	// addi s0, zero, -32
	// srli s1, s0, 3   -> arithmetic shift: -32 >> 3 == -4
	v := newTestVM()
	prog := assemble(t,
		isa.Instruction{Opcode: isa.Addi, R1: isa.RegS0, R2: isa.RegZero, Imm: -32},
		isa.Instruction{Opcode: isa.Srli, R1: isa.RegS1, R2: isa.RegS0, Imm: 3},
	)
	require.NoError(t, v.Load(prog))
	require.NoError(t, v.Spin())
	assert.Equal(t, int32(-4), v.Reg(isa.RegS1))
}

func TestWritesToZeroRegisterAreDiscarded(t *testing.T) {
	v := newTestVM()
	prog := assemble(t,
		isa.Instruction{Opcode: isa.Addi, R1: isa.RegZero, R2: isa.RegZero, Imm: 5},
	)
	require.NoError(t, v.Load(prog))
	require.NoError(t, v.Spin())
	assert.Equal(t, int32(0), v.Reg(isa.RegZero))
}

func TestJalLinksRAAndJumps(t *testing.T) {
	// jal ra, zero, 3   (target = instruction index 3)
	// addi s0, zero, 99 (skipped)
	// addi s0, zero, 99 (skipped)
	// addi s1, zero, 7  (landed on)
	v := newTestVM()
	prog := assemble(t,
		isa.Instruction{Opcode: isa.Jal, R3: isa.RegZero, Imm: 3},
		isa.Instruction{Opcode: isa.Addi, R1: isa.RegS0, R2: isa.RegZero, Imm: 99},
		isa.Instruction{Opcode: isa.Addi, R1: isa.RegS0, R2: isa.RegZero, Imm: 99},
		isa.Instruction{Opcode: isa.Addi, R1: isa.RegS1, R2: isa.RegZero, Imm: 7},
	)
	require.NoError(t, v.Load(prog))
	require.NoError(t, v.Spin())
	assert.Equal(t, int32(0), v.Reg(isa.RegS0))
	assert.Equal(t, int32(7), v.Reg(isa.RegS1))
	assert.Equal(t, int32(1), v.Reg(isa.RegRA))
}

func TestConditionalBranchDoesNotLinkRA(t *testing.T) {
	// beq zero, zero, zero, 2  -> taken, jumps to index 2, ra untouched
	v := newTestVM()
	prog := assemble(t,
		isa.Instruction{Opcode: isa.Beq, R1: isa.RegZero, R2: isa.RegZero, R3: isa.RegZero, Imm: 2},
		isa.Instruction{Opcode: isa.Addi, R1: isa.RegS0, R2: isa.RegZero, Imm: 99},
		isa.Instruction{Opcode: isa.Addi, R1: isa.RegS1, R2: isa.RegZero, Imm: 5},
	)
	require.NoError(t, v.Load(prog))
	require.NoError(t, v.Spin())
	assert.Equal(t, int32(0), v.Reg(isa.RegS0))
	assert.Equal(t, int32(5), v.Reg(isa.RegS1))
	assert.Equal(t, int32(0), v.Reg(isa.RegRA))
}

func TestStoreLoadWordRoundTrip(t *testing.T) {
	// addi s0, zero, 1234
	// sw s0, 0(zero)
	// lw s1, 0(zero)
	v := newTestVM()
	prog := assemble(t,
		isa.Instruction{Opcode: isa.Addi, R1: isa.RegS0, R2: isa.RegZero, Imm: 1234},
		isa.Instruction{Opcode: isa.Sw, R1: isa.RegS0, R3: isa.RegZero, Imm: 0},
		isa.Instruction{Opcode: isa.Lw, R1: isa.RegS1, R3: isa.RegZero, Imm: 0},
	)
	require.NoError(t, v.Load(prog))
	require.NoError(t, v.Spin())
	assert.Equal(t, int32(1234), v.Reg(isa.RegS1))
}

func TestLoadByteSignExtends(t *testing.T) {
	v := newTestVM()
	prog := assemble(t,
		isa.Instruction{Opcode: isa.Addi, R1: isa.RegS0, R2: isa.RegZero, Imm: -1},
		isa.Instruction{Opcode: isa.Sb, R1: isa.RegS0, R3: isa.RegZero, Imm: 0},
		isa.Instruction{Opcode: isa.Lb, R1: isa.RegS1, R3: isa.RegZero, Imm: 0},
		isa.Instruction{Opcode: isa.Lbu, R1: isa.RegS2, R3: isa.RegZero, Imm: 0},
	)
	require.NoError(t, v.Load(prog))
	require.NoError(t, v.Spin())
	assert.Equal(t, int32(-1), v.Reg(isa.RegS1))
	assert.Equal(t, int32(255), v.Reg(isa.RegS2))
}

func TestEcallRoundTripsThroughHost(t *testing.T) {
	v := newTestVM()
	prog := assemble(t,
		isa.Instruction{Opcode: isa.Addi, R1: isa.RegS0, R2: isa.RegZero, Imm: 65},
		isa.Instruction{Opcode: isa.Ecall, R1: isa.RegS1, R3: isa.RegS0, Imm: int32(host.EcallWriteChar)},
	)
	require.NoError(t, v.Load(prog))
	require.NoError(t, v.Spin())
}

func TestHostFaultIsWrapped(t *testing.T) {
	v := New(host.NewRAM(4))
	prog := assemble(t,
		isa.Instruction{Opcode: isa.Lw, R1: isa.RegS0, R3: isa.RegZero, Imm: 100},
	)
	require.NoError(t, v.Load(prog))
	err := v.Spin()
	require.ErrorIs(t, err, ErrHostFault)
}

func TestRespinRewindsAndReruns(t *testing.T) {
	v := newTestVM()
	prog := assemble(t,
		isa.Instruction{Opcode: isa.Addi, R1: isa.RegS0, R2: isa.RegS0, Imm: 1},
	)
	require.NoError(t, v.Load(prog))
	require.NoError(t, v.Spin())
	assert.Equal(t, int32(1), v.Reg(isa.RegS0))

	require.NoError(t, v.Respin())
	assert.Equal(t, int32(2), v.Reg(isa.RegS0), "respin reruns from a clean PC but registers are not cleared")
}

func TestResetClearsEverything(t *testing.T) {
	v := newTestVM()
	prog := assemble(t,
		isa.Instruction{Opcode: isa.Addi, R1: isa.RegS0, R2: isa.RegZero, Imm: 9},
	)
	require.NoError(t, v.Load(prog))
	require.NoError(t, v.Spin())
	v.Reset()
	assert.Equal(t, int32(0), v.Reg(isa.RegS0))
	assert.Equal(t, uint32(0), v.PC())
	halted, err := v.Step()
	require.NoError(t, err)
	assert.True(t, halted, "no image loaded after Reset, so PC is immediately past end")
}
