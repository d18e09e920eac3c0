// Package vm is the StripVM execution core: register file, program
// counter, image loader, and the step/run loops that interpret a loaded
// image one instruction at a time against a host.Host.
package vm

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dvn-dco/stripvm/host"
	"github.com/dvn-dco/stripvm/isa"
)

// ErrInvalidProg is returned when an image fails its magic/length checks,
// or when the core decodes an opcode value outside the closed opcode set.
// It is fatal: the VM refuses to execute further.
var ErrInvalidProg = errors.New("vm: invalid program image")

// ErrHostFault wraps any error a host.Host returns from Fetch, Store, or
// Ecall. The core never inspects the host's own error payload beyond
// wrapping it.
var ErrHostFault = errors.New("vm: host fault")

const (
	magicByte0 = 0xAF
	magicByte1 = 0xAF
	// headerSize is the magic (2 bytes) plus the big-endian data-length
	// field (2 bytes).
	headerSize = 4
	wordSize   = 4
)

// VM is one StripVM instance: a register file, program counter, a record
// of the currently loaded instruction stream, and the host it was built
// against. A VM is owned by exactly one caller at a time.
type VM struct {
	host host.Host

	regs [isa.NumRegs]int32
	pc   uint32

	// instructions holds the raw 4-byte words copied out of the image at
	// Load time; data bytes flow to the host instead and are not
	// retained here.
	instructions [][wordSize]byte
	loaded       bool
}

// New constructs a VM with cleared registers, PC at 0, and no image
// loaded. h is borrowed for the lifetime of the VM.
func New(h host.Host) *VM {
	return &VM{host: h}
}

// Host returns the VM's host, e.g. so a caller can read a console
// debug string between steps.
func (v *VM) Host() host.Host {
	return v.host
}

// PC returns the current instruction index.
func (v *VM) PC() uint32 {
	return v.pc
}

// Reg returns the current value of register r (0..7).
func (v *VM) Reg(r isa.Reg) int32 {
	return v.regs[r]
}

// Registers returns a snapshot of the register file, in index order.
func (v *VM) Registers() [isa.NumRegs]int32 {
	return v.regs
}

// CurrentInstruction decodes the instruction at PC without executing it,
// for tracer display. ok is false once PC is past the loaded program.
func (v *VM) CurrentInstruction() (inst isa.Instruction, ok bool) {
	if v.pc >= uint32(len(v.instructions)) {
		return isa.Instruction{}, false
	}
	word := v.instructions[v.pc]
	inst, err := isa.Decode(word[:])
	if err != nil {
		return isa.Instruction{}, false
	}
	return inst, true
}

// Load validates image's header, installs its data segment into the host,
// and records its instruction stream. Loading always starts from a
// clean slate: registers cleared, PC at 0, host reset.
func (v *VM) Load(image []byte) error {
	if len(image) < headerSize || image[0] != magicByte0 || image[1] != magicByte1 {
		return fmt.Errorf("%w: bad magic or image shorter than %d bytes", ErrInvalidProg, headerSize)
	}

	dataLen := int(binary.BigEndian.Uint16(image[2:4]))
	remaining := len(image) - headerSize - dataLen
	if remaining < 0 || remaining%wordSize != 0 {
		return fmt.Errorf("%w: image length %d inconsistent with data length %d", ErrInvalidProg, len(image), dataLen)
	}

	v.regs = [isa.NumRegs]int32{}
	v.pc = 0
	v.host.Reset()

	data := image[headerSize : headerSize+dataLen]
	if len(data) > 0 {
		if err := v.host.Store(0, data); err != nil {
			return fmt.Errorf("%w: installing data segment: %v", ErrHostFault, err)
		}
	}

	instrBytes := image[headerSize+dataLen:]
	count := len(instrBytes) / wordSize
	instructions := make([][wordSize]byte, count)
	for i := 0; i < count; i++ {
		copy(instructions[i][:], instrBytes[i*wordSize:i*wordSize+wordSize])
	}
	v.instructions = instructions
	v.loaded = true

	return nil
}

// Rewind sets PC back to 0. Registers and host state are untouched.
func (v *VM) Rewind() {
	v.pc = 0
}

// Reset rewinds, clears the register file, forgets the loaded image, and
// resets the host. After Reset the VM is back in its pre-Load state.
func (v *VM) Reset() {
	v.Rewind()
	v.regs = [isa.NumRegs]int32{}
	v.instructions = nil
	v.loaded = false
	v.host.Reset()
}
