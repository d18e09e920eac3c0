// Package ast is the shape of the parsed assembly syntax tree that
// package asm compiles into a program image. It is the sole boundary
// between the front end that parses source text and the assembler that
// resolves and emits it.
package ast

import "github.com/dvn-dco/stripvm/isa"

// RegRef is a register reference that may be a concrete register or a
// name that must be resolved through the aliases table at emission time.
type RegRef struct {
	Reg   isa.Reg
	Alias string // non-empty if this reference is an alias name, not a literal register
}

// IsAlias reports whether this reference must be resolved via the
// aliases table rather than used directly.
func (r RegRef) IsAlias() bool { return r.Alias != "" }

// Address is the optional address operand an instruction word may carry:
// a base register, a signed offset, and an optional symbolic identifier
// ("pc", a constant name, or a label name) added to the offset at
// emission time.
type Address struct {
	Base   RegRef
	Offset int16
	Ident  string // empty if the address is a bare offset(base) with no identifier
}

// HasIdent reports whether this address carries a symbolic identifier.
func (a Address) HasIdent() bool { return a.Ident != "" }

// InstructionWord is one parsed instruction line: an opcode plus three
// register references, and either a plain immediate or an address
// operand (the two are mutually exclusive).
type InstructionWord struct {
	Opcode isa.Opcode
	R1     RegRef
	R2     RegRef
	R3     RegRef
	Imm    int16    // used when Addr is nil
	Addr   *Address // used instead of Imm when the instruction has an address operand
}

// Label marks the next address in data or code space; which space
// depends on whether any instruction word has already been seen
// (resolved by the assembler, not here).
type Label struct {
	Name string
}

// DirectiveKind identifies one of the directive forms a line can take.
type DirectiveKind int

const (
	DirConstant DirectiveKind = iota
	DirAlias
	DirByte
	DirHalf
	DirWord
	DirIncBin
	DirZero
)

// Directive is one parsed directive line.
type Directive struct {
	Kind DirectiveKind

	// DirConstant
	ConstName  string
	ConstValue int16

	// DirAlias
	AliasName string
	AliasReg  isa.Reg

	// DirByte
	Bytes []byte

	// DirHalf
	Halfs []uint16

	// DirWord
	Words []uint32

	// DirIncBin
	Path string

	// DirZero
	Size int
}

// Comment is a parsed, ignored comment line. It is retained in the tree
// only so a front end that wants to echo source (e.g. a future debug
// symbol table) has somewhere to hang it; the assembler discards it.
type Comment struct {
	Text string
}

// Expr is one parsed top-level expression: exactly one of Label,
// Directive, InstructionWord, or Comment is non-nil.
type Expr struct {
	Label       *Label
	Directive   *Directive
	Instruction *InstructionWord
	Comment     *Comment
}

// Program is the full parsed syntax tree: an ordered sequence of
// expressions, consumed in order by package asm's two-pass compile.
type Program struct {
	Exprs []Expr
}
