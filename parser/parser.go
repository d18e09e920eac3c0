// Package parser lexes and parses StripVM assembly text into the syntax
// tree package asm compiles: labels, directives, and instruction words.
// Neither the VM nor the assembler depends on this particular surface
// syntax.
package parser

import (
	"errors"
	"fmt"

	"github.com/dvn-dco/stripvm/ast"
	"github.com/dvn-dco/stripvm/isa"
)

// ErrSyntax is the sentinel wrapped by every SyntaxError returned from
// Parse, so callers can test with errors.Is(err, parser.ErrSyntax).
var ErrSyntax = errors.New("parser: syntax error")

// SyntaxError carries the source position of a parse failure.
type SyntaxError struct {
	Line int
	Col  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("parser: %d:%d: %s", e.Line, e.Col, e.Msg)
}

func (e *SyntaxError) Unwrap() error {
	return ErrSyntax
}

var registerNames = map[string]isa.Reg{
	"zero": isa.RegZero,
	"ra":   isa.RegRA,
	"s0":   isa.RegS0,
	"s1":   isa.RegS1,
	"s2":   isa.RegS2,
	"s3":   isa.RegS3,
	"s4":   isa.RegS4,
	"s5":   isa.RegS5,
}

type parser struct {
	lx   *lexer
	tok  token
	peek token
}

// Parse lexes and parses src into a syntax tree.
func Parse(src string) (*ast.Program, error) {
	p := &parser{lx: newLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	prog := &ast.Program{}
	for p.tok.kind != tokEOF {
		if p.tok.kind == tokNewline {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		expr, err := p.parseLine()
		if err != nil {
			return nil, err
		}
		if expr != nil {
			prog.Exprs = append(prog.Exprs, *expr)
		}
		if p.tok.kind != tokEOF && p.tok.kind != tokNewline {
			return nil, p.errorf("expected end of line, found %s", p.describe(p.tok))
		}
	}
	return prog, nil
}

func (p *parser) advance() error {
	p.tok = p.peek
	next, err := p.lx.next()
	if err != nil {
		return err
	}
	p.peek = next
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Line: p.tok.line, Col: p.tok.col, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) describe(t token) string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokNewline:
		return "end of line"
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

// parseLine dispatches on the first token of a non-blank line: "name:"
// is a label, ".word" (etc.) is a directive, anything else is an
// instruction mnemonic.
func (p *parser) parseLine() (*ast.Expr, error) {
	if p.tok.kind != tokIdent {
		return nil, p.errorf("expected a label, directive, or instruction, found %s", p.describe(p.tok))
	}

	if len(p.tok.text) > 0 && p.tok.text[0] == '.' {
		return p.parseDirective()
	}

	if p.peek.kind == tokColon {
		name := p.tok.text
		if err := p.advance(); err != nil { // consume ident
			return nil, err
		}
		if err := p.advance(); err != nil { // consume colon
			return nil, err
		}
		return &ast.Expr{Label: &ast.Label{Name: name}}, nil
	}

	return p.parseInstruction()
}

func (p *parser) parseDirective() (*ast.Expr, error) {
	kind := p.tok.text
	if err := p.advance(); err != nil {
		return nil, err
	}

	switch kind {
	case ".equ":
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectComma(); err != nil {
			return nil, err
		}
		value, err := p.expectNumber()
		if err != nil {
			return nil, err
		}
		return &ast.Expr{Directive: &ast.Directive{Kind: ast.DirConstant, ConstName: name, ConstValue: int16(value)}}, nil

	case ".alias":
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectComma(); err != nil {
			return nil, err
		}
		reg, err := p.expectRegisterLiteral()
		if err != nil {
			return nil, err
		}
		return &ast.Expr{Directive: &ast.Directive{Kind: ast.DirAlias, AliasName: name, AliasReg: reg}}, nil

	case ".byte":
		values, err := p.parseNumberList()
		if err != nil {
			return nil, err
		}
		bytes := make([]byte, len(values))
		for i, v := range values {
			bytes[i] = byte(v)
		}
		return &ast.Expr{Directive: &ast.Directive{Kind: ast.DirByte, Bytes: bytes}}, nil

	case ".half":
		values, err := p.parseNumberList()
		if err != nil {
			return nil, err
		}
		halfs := make([]uint16, len(values))
		for i, v := range values {
			halfs[i] = uint16(v)
		}
		return &ast.Expr{Directive: &ast.Directive{Kind: ast.DirHalf, Halfs: halfs}}, nil

	case ".word":
		values, err := p.parseNumberList()
		if err != nil {
			return nil, err
		}
		words := make([]uint32, len(values))
		for i, v := range values {
			words[i] = uint32(v)
		}
		return &ast.Expr{Directive: &ast.Directive{Kind: ast.DirWord, Words: words}}, nil

	case ".zero":
		size, err := p.expectNumber()
		if err != nil {
			return nil, err
		}
		return &ast.Expr{Directive: &ast.Directive{Kind: ast.DirZero, Size: int(size)}}, nil

	case ".incbin":
		if p.tok.kind != tokString {
			return nil, p.errorf("expected a quoted file path, found %s", p.describe(p.tok))
		}
		path := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.Expr{Directive: &ast.Directive{Kind: ast.DirIncBin, Path: path}}, nil

	default:
		return nil, p.errorf("unknown directive %q", kind)
	}
}

func (p *parser) parseNumberList() ([]int64, error) {
	var values []int64
	for {
		v, err := p.expectNumber()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if p.tok.kind != tokComma {
			return values, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
}

// parseInstruction parses "mnemonic operand, operand, ...". The operand
// shape (registers only, registers plus immediate, or registers plus an
// address) is chosen by a switch over the opcode itself, one case per
// group of opcodes that share a shape.
func (p *parser) parseInstruction() (*ast.Expr, error) {
	mnemonic := p.tok.text

	if mnemonic == "li" {
		return p.parseLoadImmediate()
	}

	op, ok := isa.LookupOpcode(mnemonic)
	if !ok {
		return nil, p.errorf("unknown mnemonic %q", mnemonic)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	word := &ast.InstructionWord{Opcode: op}

	switch op {
	case isa.Halt:
		// no operands

	case isa.Jal:
		addr, err := p.parseAddressOperand()
		if err != nil {
			return nil, err
		}
		word.Addr = addr

	case isa.Beq, isa.Bne, isa.Bge, isa.Bgeu, isa.Blt, isa.Bltu:
		r1, err := p.parseRegOperand()
		if err != nil {
			return nil, err
		}
		if err := p.expectComma(); err != nil {
			return nil, err
		}
		r2, err := p.parseRegOperand()
		if err != nil {
			return nil, err
		}
		if err := p.expectComma(); err != nil {
			return nil, err
		}
		addr, err := p.parseAddressOperand()
		if err != nil {
			return nil, err
		}
		word.R1, word.R2, word.Addr = r1, r2, addr

	case isa.Ecall:
		r1, err := p.parseRegOperand()
		if err != nil {
			return nil, err
		}
		if err := p.expectComma(); err != nil {
			return nil, err
		}
		r3, err := p.parseRegOperand()
		if err != nil {
			return nil, err
		}
		if err := p.expectComma(); err != nil {
			return nil, err
		}
		imm, err := p.expectNumber()
		if err != nil {
			return nil, err
		}
		word.R1, word.R3, word.Imm = r1, r3, int16(imm)

	case isa.La, isa.Lb, isa.Lbu, isa.Lh, isa.Lhu, isa.Lw:
		r1, err := p.parseRegOperand()
		if err != nil {
			return nil, err
		}
		if err := p.expectComma(); err != nil {
			return nil, err
		}
		addr, err := p.parseAddressOperand()
		if err != nil {
			return nil, err
		}
		word.R1, word.Addr = r1, addr

	case isa.Sb, isa.Sh, isa.Sw:
		r1, err := p.parseRegOperand()
		if err != nil {
			return nil, err
		}
		if err := p.expectComma(); err != nil {
			return nil, err
		}
		addr, err := p.parseAddressOperand()
		if err != nil {
			return nil, err
		}
		word.R1, word.Addr = r1, addr

	case isa.Addi, isa.Muli, isa.Andi, isa.Ori, isa.Xori, isa.Slli, isa.Srli, isa.Sltiu, isa.Lui:
		r1, err := p.parseRegOperand()
		if err != nil {
			return nil, err
		}
		if err := p.expectComma(); err != nil {
			return nil, err
		}
		r2, err := p.parseRegOperand()
		if err != nil {
			return nil, err
		}
		if err := p.expectComma(); err != nil {
			return nil, err
		}
		imm, err := p.expectNumber()
		if err != nil {
			return nil, err
		}
		word.R1, word.R2, word.Imm = r1, r2, int16(imm)

	default: // RM: add, sub, mul, and, or, xor, sll, srl, sra, slt, sltu
		r1, err := p.parseRegOperand()
		if err != nil {
			return nil, err
		}
		if err := p.expectComma(); err != nil {
			return nil, err
		}
		r2, err := p.parseRegOperand()
		if err != nil {
			return nil, err
		}
		if err := p.expectComma(); err != nil {
			return nil, err
		}
		r3, err := p.parseRegOperand()
		if err != nil {
			return nil, err
		}
		word.R1, word.R2, word.R3 = r1, r2, r3
	}

	return &ast.Expr{Instruction: word}, nil
}

// parseLoadImmediate parses the "li rd, imm" pseudo-instruction, a
// convenience the grammar layers on top of the closed opcode set: it
// desugars to "addi rd, zero, imm". Besides a literal number it accepts
// a constant or label identifier, carried as an ident(zero) address
// operand for the assembler to resolve; a plain addi line accepts only a
// literal number.
func (p *parser) parseLoadImmediate() (*ast.Expr, error) {
	if err := p.advance(); err != nil { // consume "li"
		return nil, err
	}
	r1, err := p.parseRegOperand()
	if err != nil {
		return nil, err
	}
	if err := p.expectComma(); err != nil {
		return nil, err
	}

	word := &ast.InstructionWord{Opcode: isa.Addi, R1: r1, R2: ast.RegRef{Reg: isa.RegZero}}

	if p.tok.kind == tokIdent {
		ident := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		word.Addr = &ast.Address{Base: ast.RegRef{Reg: isa.RegZero}, Ident: ident}
		return &ast.Expr{Instruction: word}, nil
	}

	imm, err := p.expectNumber()
	if err != nil {
		return nil, err
	}
	word.Imm = int16(imm)
	return &ast.Expr{Instruction: word}, nil
}

// parseAddressOperand parses "offset(base)", "ident+offset(base)", or
// "ident(base)".
func (p *parser) parseAddressOperand() (*ast.Address, error) {
	addr := &ast.Address{}

	if p.tok.kind == tokIdent {
		addr.Ident = p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokPlus {
			if err := p.advance(); err != nil {
				return nil, err
			}
			n, err := p.expectNumber()
			if err != nil {
				return nil, err
			}
			addr.Offset = int16(n)
		}
	} else {
		n, err := p.expectNumber()
		if err != nil {
			return nil, err
		}
		addr.Offset = int16(n)
	}

	if p.tok.kind != tokLParen {
		return nil, p.errorf("expected '(' to start an address base, found %s", p.describe(p.tok))
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	base, err := p.parseRegOperand()
	if err != nil {
		return nil, err
	}
	addr.Base = base
	if p.tok.kind != tokRParen {
		return nil, p.errorf("expected ')' to close an address base, found %s", p.describe(p.tok))
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return addr, nil
}

func (p *parser) parseRegOperand() (ast.RegRef, error) {
	name, err := p.expectIdent()
	if err != nil {
		return ast.RegRef{}, err
	}
	if reg, ok := registerNames[name]; ok {
		return ast.RegRef{Reg: reg}, nil
	}
	return ast.RegRef{Alias: name}, nil
}

func (p *parser) expectRegisterLiteral() (isa.Reg, error) {
	name, err := p.expectIdent()
	if err != nil {
		return 0, err
	}
	reg, ok := registerNames[name]
	if !ok {
		return 0, &SyntaxError{Line: p.tok.line, Col: p.tok.col, Msg: fmt.Sprintf("%q is not a concrete register", name)}
	}
	return reg, nil
}

func (p *parser) expectIdent() (string, error) {
	if p.tok.kind != tokIdent {
		return "", p.errorf("expected an identifier, found %s", p.describe(p.tok))
	}
	text := p.tok.text
	return text, p.advance()
}

func (p *parser) expectNumber() (int64, error) {
	if p.tok.kind != tokNumber {
		return 0, p.errorf("expected a number, found %s", p.describe(p.tok))
	}
	n := p.tok.num
	return n, p.advance()
}

func (p *parser) expectComma() error {
	if p.tok.kind != tokComma {
		return p.errorf("expected ',', found %s", p.describe(p.tok))
	}
	return p.advance()
}
