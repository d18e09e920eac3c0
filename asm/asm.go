// Package asm is the two-pass assembler: it walks an ast.Program and
// produces a StripVM image, the same byte layout vm.VM.Load consumes.
package asm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/dvn-dco/stripvm/ast"
	"github.com/dvn-dco/stripvm/isa"
)

// ErrAliasNotFound is returned when a register alias, address identifier,
// or constant/label name could not be resolved during assembly.
var ErrAliasNotFound = errors.New("asm: identifier not found")

// ErrFileReadFailed is returned when an .incbin directive's file could
// not be opened or read.
var ErrFileReadFailed = errors.New("asm: file read failed")

const (
	magicByte0 = 0xAF
	magicByte1 = 0xAF
)

// codeRecord is one instruction word accumulated in pass 1, still
// carrying unresolved register/address references.
type codeRecord struct {
	word ast.InstructionWord
}

// Compile runs the two-pass translation — accumulate labels/constants/
// aliases and the raw data/code streams, then resolve and emit — and
// returns the resulting image bytes. An empty instruction stream
// produces an empty image (no header at all).
func Compile(prog *ast.Program) ([]byte, error) {
	constants := make(map[string]int16)
	aliases := make(map[string]isa.Reg)
	labels := make(map[string]int)

	var data []byte
	var code []codeRecord
	codeStarted := false

	// Pass 1: accumulation.
	for _, expr := range prog.Exprs {
		switch {
		case expr.Comment != nil:
			// ignored

		case expr.Directive != nil:
			d := expr.Directive
			switch d.Kind {
			case ast.DirConstant:
				constants[d.ConstName] = d.ConstValue
			case ast.DirAlias:
				aliases[d.AliasName] = d.AliasReg
			case ast.DirByte:
				data = append(data, d.Bytes...)
			case ast.DirHalf:
				for _, h := range d.Halfs {
					var buf [2]byte
					binary.BigEndian.PutUint16(buf[:], h)
					data = append(data, buf[:]...)
				}
			case ast.DirWord:
				for _, w := range d.Words {
					var buf [4]byte
					binary.BigEndian.PutUint32(buf[:], w)
					data = append(data, buf[:]...)
				}
			case ast.DirZero:
				data = append(data, make([]byte, d.Size)...)
			case ast.DirIncBin:
				contents, err := os.ReadFile(d.Path)
				if err != nil {
					return nil, fmt.Errorf("%w: %s: %v", ErrFileReadFailed, d.Path, err)
				}
				data = append(data, contents...)
			}

		case expr.Label != nil:
			offset := len(data)
			if codeStarted {
				offset = len(code)
			}
			labels[expr.Label.Name] = offset

		case expr.Instruction != nil:
			code = append(code, codeRecord{word: *expr.Instruction})
			codeStarted = true
		}
	}

	if len(code) == 0 {
		return nil, nil
	}

	// Pass 2: emission.
	out := make([]byte, 4, 4+len(data)+len(code)*4)
	out[0], out[1] = magicByte0, magicByte1
	binary.BigEndian.PutUint16(out[2:4], uint16(len(data)))
	out = append(out, data...)

	for pc, rec := range code {
		inst, err := resolveInstruction(rec.word, pc, constants, aliases, labels)
		if err != nil {
			return nil, err
		}
		word := isa.Encode(inst)
		out = append(out, word[:]...)
	}

	return out, nil
}

func resolveInstruction(w ast.InstructionWord, pc int, constants map[string]int16, aliases map[string]isa.Reg, labels map[string]int) (isa.Instruction, error) {
	r1, err := resolveReg(w.R1, aliases)
	if err != nil {
		return isa.Instruction{}, err
	}
	r2, err := resolveReg(w.R2, aliases)
	if err != nil {
		return isa.Instruction{}, err
	}

	var r3 isa.Reg
	var imm int16

	if w.Addr != nil {
		r3, err = resolveReg(w.Addr.Base, aliases)
		if err != nil {
			return isa.Instruction{}, err
		}
		imm, err = resolveAddress(*w.Addr, pc, constants, labels)
		if err != nil {
			return isa.Instruction{}, err
		}
	} else {
		r3, err = resolveReg(w.R3, aliases)
		if err != nil {
			return isa.Instruction{}, err
		}
		imm = w.Imm
	}

	return isa.Instruction{
		Opcode: w.Opcode,
		R1:     r1,
		R2:     r2,
		R3:     r3,
		Imm:    int32(imm),
	}, nil
}

func resolveReg(ref ast.RegRef, aliases map[string]isa.Reg) (isa.Reg, error) {
	if !ref.IsAlias() {
		return ref.Reg, nil
	}
	reg, ok := aliases[ref.Alias]
	if !ok {
		return 0, fmt.Errorf("%w: register alias %q", ErrAliasNotFound, ref.Alias)
	}
	return reg, nil
}

// resolveAddress computes the final 16-bit signed immediate for an
// address operand: offset plus whatever "pc" / a constant / a label
// resolves to, in that order, with arithmetic wrapping modulo 2^16.
func resolveAddress(addr ast.Address, pc int, constants map[string]int16, labels map[string]int) (int16, error) {
	sum := addr.Offset
	if !addr.HasIdent() {
		return sum, nil
	}

	if addr.Ident == "pc" {
		sum += int16(pc)
		return sum, nil
	}
	if v, ok := constants[addr.Ident]; ok {
		sum += v
		return sum, nil
	}
	if v, ok := labels[addr.Ident]; ok {
		sum += int16(v)
		return sum, nil
	}
	return 0, fmt.Errorf("%w: address identifier %q", ErrAliasNotFound, addr.Ident)
}
