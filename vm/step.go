package vm

import (
	"fmt"

	"github.com/dvn-dco/stripvm/isa"
)

// Halted is the value of Step's bool result once the VM has reached a
// stopping point: an explicit halt opcode, or PC advancing past the last
// loaded instruction. It is not an error. Spin and Respin return only an
// error and return nil when Step reports Halted.
const Halted = true

// Step decodes and executes the instruction at PC, then either advances
// PC by one word or, for a taken branch/jal, sets PC to the target. It
// reports (Halted, nil) without side effects if PC is already past the
// end of the loaded program or the program executes a halt opcode.
func (v *VM) Step() (bool, error) {
	if v.pc >= uint32(len(v.instructions)) {
		return Halted, nil
	}

	word := v.instructions[v.pc]
	inst, err := isa.Decode(word[:])
	if err != nil {
		return false, fmt.Errorf("%w: at pc=%d: %v", ErrInvalidProg, v.pc, err)
	}

	if inst.Opcode == isa.Halt {
		return Halted, nil
	}

	nextPC := v.pc + 1

	switch isa.FormatOf(inst.Opcode) {
	case isa.FormatRM:
		result, err := v.execRM(inst)
		if err != nil {
			return false, err
		}
		v.writeReg(inst.R1, result)

	case isa.FormatRI:
		result, err := v.execRI(inst)
		if err != nil {
			return false, err
		}
		v.writeReg(inst.R1, result)

	case isa.FormatRA:
		result, branched, target, err := v.execRA(inst)
		if err != nil {
			return false, err
		}
		if branched {
			nextPC = target
		} else {
			v.writeReg(inst.R1, result)
		}

	case isa.FormatRO:
		target, taken, link := v.execRO(inst)
		if link {
			v.writeReg(isa.RegRA, int32(nextPC))
		}
		if taken {
			nextPC = target
		}
	}

	v.pc = nextPC
	return false, nil
}

// Spin steps the VM until it halts or faults.
func (v *VM) Spin() error {
	for {
		halted, err := v.Step()
		if err != nil {
			return err
		}
		if halted {
			return nil
		}
	}
}

// Respin rewinds to PC 0 (registers and host state untouched) and spins
// again: the canonical way to run a fresh iteration over the same
// loaded image.
func (v *VM) Respin() error {
	v.Rewind()
	return v.Spin()
}

// writeReg applies the register-0-write-is-discarded rule: register 0
// ("zero") is architecturally writable by decode but every write to it is
// dropped on commit.
func (v *VM) writeReg(r isa.Reg, value int32) {
	if r == isa.RegZero {
		return
	}
	v.regs[r] = value
}

func (v *VM) execRM(inst isa.Instruction) (int32, error) {
	a, b := v.regs[inst.R2], v.regs[inst.R3]
	switch inst.Opcode {
	case isa.Add:
		return a + b, nil
	case isa.Sub:
		return a - b, nil
	case isa.Mul:
		return a * b, nil
	case isa.And:
		return a & b, nil
	case isa.Or:
		return a | b, nil
	case isa.Xor:
		return a ^ b, nil
	case isa.Sll:
		return a << (uint32(b) & 0x1f), nil
	case isa.Srl:
		return int32(uint32(a) >> (uint32(b) & 0x1f)), nil
	case isa.Sra:
		return a >> (uint32(b) & 0x1f), nil
	case isa.Slt:
		if a < b {
			return 1, nil
		}
		return 0, nil
	case isa.Sltu:
		if uint32(a) < uint32(b) {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: opcode %s misclassified as RM", ErrInvalidProg, inst.Opcode)
	}
}

func (v *VM) execRI(inst isa.Instruction) (int32, error) {
	a, imm := v.regs[inst.R2], inst.Imm
	switch inst.Opcode {
	case isa.Addi:
		return a + imm, nil
	case isa.Muli:
		return a * imm, nil
	case isa.Andi:
		return a & imm, nil
	case isa.Ori:
		return a | imm, nil
	case isa.Xori:
		return a ^ imm, nil
	case isa.Slli:
		return a << (uint32(imm) & 0x1f), nil
	case isa.Srli:
		// Signed (arithmetic) shift despite the "logical" name: it shifts
		// the signed accumulator directly, and Go's >> on a signed
		// operand already sign-extends.
		return a >> (uint32(imm) & 0x1f), nil
	case isa.Sltiu:
		if uint32(a) < uint32(imm) {
			return 1, nil
		}
		return 0, nil
	case isa.Lui:
		return imm << 16, nil
	default:
		return 0, fmt.Errorf("%w: opcode %s misclassified as RI", ErrInvalidProg, inst.Opcode)
	}
}

// execRA executes the memory/ecall/address-compute format. It returns
// (result, branched, target, err): branched is true only for jumps
// encoded in this format (none currently are — StripVM's RA format never
// redirects control flow, so branched is always false and target unused);
// the signature matches execRO's shape for symmetry in Step.
func (v *VM) execRA(inst isa.Instruction) (int32, bool, uint32, error) {
	switch inst.Opcode {
	case isa.Ecall:
		result, err := v.host.Ecall(uint16(inst.Imm), v.regs[inst.R3])
		if err != nil {
			return 0, false, 0, fmt.Errorf("%w: ecall: %v", ErrHostFault, err)
		}
		return result, false, 0, nil

	case isa.La:
		return v.regs[inst.R3] + inst.Imm, false, 0, nil

	case isa.Lb, isa.Lbu, isa.Lh, isa.Lhu, isa.Lw:
		addr := uint16(v.regs[inst.R3] + inst.Imm)
		result, err := v.execLoad(inst.Opcode, addr)
		if err != nil {
			return 0, false, 0, err
		}
		return result, false, 0, nil

	case isa.Sb, isa.Sh, isa.Sw:
		addr := uint16(v.regs[inst.R3] + inst.Imm)
		if err := v.execStore(inst.Opcode, addr, v.regs[inst.R1]); err != nil {
			return 0, false, 0, err
		}
		return 0, false, 0, nil

	default:
		return 0, false, 0, fmt.Errorf("%w: opcode %s misclassified as RA", ErrInvalidProg, inst.Opcode)
	}
}

func (v *VM) execLoad(op isa.Opcode, addr uint16) (int32, error) {
	switch op {
	case isa.Lb:
		buf := make([]byte, 1)
		if err := v.host.Fetch(addr, buf); err != nil {
			return 0, fmt.Errorf("%w: lb: %v", ErrHostFault, err)
		}
		return int32(int8(buf[0])), nil

	case isa.Lbu:
		buf := make([]byte, 1)
		if err := v.host.Fetch(addr, buf); err != nil {
			return 0, fmt.Errorf("%w: lbu: %v", ErrHostFault, err)
		}
		return int32(buf[0]), nil

	case isa.Lh:
		buf := make([]byte, 2)
		if err := v.host.Fetch(addr, buf); err != nil {
			return 0, fmt.Errorf("%w: lh: %v", ErrHostFault, err)
		}
		return int32(int16(uint16(buf[0])<<8 | uint16(buf[1]))), nil

	case isa.Lhu:
		buf := make([]byte, 2)
		if err := v.host.Fetch(addr, buf); err != nil {
			return 0, fmt.Errorf("%w: lhu: %v", ErrHostFault, err)
		}
		return int32(uint16(buf[0])<<8 | uint16(buf[1])), nil

	case isa.Lw:
		buf := make([]byte, 4)
		if err := v.host.Fetch(addr, buf); err != nil {
			return 0, fmt.Errorf("%w: lw: %v", ErrHostFault, err)
		}
		return int32(uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])), nil

	default:
		return 0, fmt.Errorf("%w: opcode %s is not a load", ErrInvalidProg, op)
	}
}

func (v *VM) execStore(op isa.Opcode, addr uint16, value int32) error {
	switch op {
	case isa.Sb:
		if err := v.host.Store(addr, []byte{byte(value)}); err != nil {
			return fmt.Errorf("%w: sb: %v", ErrHostFault, err)
		}
		return nil

	case isa.Sh:
		u := uint16(value)
		if err := v.host.Store(addr, []byte{byte(u >> 8), byte(u)}); err != nil {
			return fmt.Errorf("%w: sh: %v", ErrHostFault, err)
		}
		return nil

	case isa.Sw:
		u := uint32(value)
		if err := v.host.Store(addr, []byte{byte(u >> 24), byte(u >> 16), byte(u >> 8), byte(u)}); err != nil {
			return fmt.Errorf("%w: sw: %v", ErrHostFault, err)
		}
		return nil

	default:
		return fmt.Errorf("%w: opcode %s is not a store", ErrInvalidProg, op)
	}
}

// execRO executes the branch/jump format. It returns (target, taken,
// link): link is true only for jal, which always redirects control flow
// and always links ra, independent of taken (taken is forced true for
// jal). Per the redesigned linking rule, conditional branches never
// write ra even when taken.
func (v *VM) execRO(inst isa.Instruction) (uint32, bool, bool) {
	target := uint32(v.regs[inst.R3] + inst.Imm)

	if inst.Opcode == isa.Jal {
		return target, true, true
	}

	a, b := v.regs[inst.R1], v.regs[inst.R2]
	var taken bool
	switch inst.Opcode {
	case isa.Beq:
		taken = a == b
	case isa.Bne:
		taken = a != b
	case isa.Bge:
		taken = a >= b
	case isa.Bgeu:
		taken = uint32(a) >= uint32(b)
	case isa.Blt:
		taken = a < b
	case isa.Bltu:
		taken = uint32(a) < uint32(b)
	}
	return target, taken, false
}
