package host

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Ecall ids understood by RAM's environment-call table. The id is the
// 16-bit immediate carried by the ecall instruction.
const (
	// EcallWriteChar writes the low byte of param as a single character.
	EcallWriteChar uint16 = 0
	// EcallWriteInt writes param formatted as a decimal integer.
	EcallWriteInt uint16 = 1
	// EcallReadChar reads one UTF-8 character from the input (os.Stdin
	// unless redirected with WithIO), returning -1 at EOF.
	EcallReadChar uint16 = 2
)

// consoleBase is the first address of RAM's memory-mapped output window:
// addresses at or above this boundary are not backed by storage. Writes
// there are silently discarded; reads return zero bytes. Neither is an
// error.
const consoleBase = 0x1000

// RAM is a flat-memory Host: a backing byte slice below consoleBase, a
// discard/zero region at and above it, and a small ecall table for
// console I/O. It is the reference host used by the CLI's trace command
// and by tests.
type RAM struct {
	mem         []byte
	TraceMemory bool // if set, print a line for every Fetch/Store

	out *bufio.Writer
	in  *bufio.Reader
}

// NewRAM allocates a RAM host with size bytes of backing storage below
// consoleBase. Output is written to os.Stdout and input read from
// os.Stdin; use WithIO to redirect both.
func NewRAM(size int) *RAM {
	return &RAM{
		mem: make([]byte, size),
		out: bufio.NewWriter(os.Stdout),
		in:  bufio.NewReader(os.Stdin),
	}
}

// WithIO redirects RAM's console ecalls to w/r instead of os.Stdout/Stdin.
func (r *RAM) WithIO(w io.Writer, rd io.Reader) *RAM {
	r.out = bufio.NewWriter(w)
	r.in = bufio.NewReader(rd)
	return r
}

// Flush flushes any buffered console output. Callers that redirect output
// with WithIO should call this after a spin completes.
func (r *RAM) Flush() error {
	return r.out.Flush()
}

func (r *RAM) Reset() {
	for i := range r.mem {
		r.mem[i] = 0
	}
}

func (r *RAM) Fetch(addr uint16, buf []byte) error {
	if r.TraceMemory {
		fmt.Fprintf(r.out, "MEM   FETCH 0x%04x (%d bytes)\n", addr, len(buf))
		r.out.Flush() //nolint:errcheck // best-effort trace line
	}
	offset := int(addr)
	if offset >= consoleBase {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	end := offset + len(buf)
	if end > len(r.mem) {
		return fmt.Errorf("host: fetch at 0x%04x (%d bytes) exceeds %d-byte RAM", addr, len(buf), len(r.mem))
	}
	copy(buf, r.mem[offset:end])
	return nil
}

func (r *RAM) Store(addr uint16, bytes []byte) error {
	if r.TraceMemory {
		fmt.Fprintf(r.out, "MEM   STORE 0x%04x %v\n", addr, bytes)
		r.out.Flush() //nolint:errcheck // best-effort trace line
	}
	offset := int(addr)
	if offset >= consoleBase {
		return nil
	}
	end := offset + len(bytes)
	if end > len(r.mem) {
		return fmt.Errorf("host: store at 0x%04x (%d bytes) exceeds %d-byte RAM", addr, len(bytes), len(r.mem))
	}
	copy(r.mem[offset:end], bytes)
	return nil
}

func (r *RAM) Ecall(id uint16, param int32) (int32, error) {
	switch id {
	case EcallWriteChar:
		if _, err := r.out.WriteRune(rune(byte(param))); err != nil {
			return 0, err
		}
		return 0, r.out.Flush()
	case EcallWriteInt:
		if _, err := fmt.Fprintf(r.out, "%d", param); err != nil {
			return 0, err
		}
		return 0, r.out.Flush()
	case EcallReadChar:
		ch, _, err := r.in.ReadRune()
		if err == io.EOF {
			return -1, nil
		}
		if err != nil {
			return 0, err
		}
		return int32(ch), nil
	default:
		return 0, fmt.Errorf("host: unknown ecall id %d", id)
	}
}

// DebugString renders the backing RAM content, used by the tracer to
// show host state between steps.
func (r *RAM) DebugString() string {
	return fmt.Sprintf("%v", r.mem)
}

// Bytes exposes the backing RAM for callers and tests that want to
// inspect memory directly.
func (r *RAM) Bytes() []byte {
	return r.mem
}
