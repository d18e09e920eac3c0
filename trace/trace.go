// Package trace is the tracer/debug harness: a stepping loop that drives
// a vm.VM, formatting a state snapshot between steps, with text and
// (optionally) live-TUI rendering.
package trace

import (
	"fmt"
	"io"

	"github.com/dvn-dco/stripvm/config"
	"github.com/dvn-dco/stripvm/isa"
	"github.com/dvn-dco/stripvm/vm"
)

// debugStringer is implemented by hosts (host.RAM in particular) that can
// render their own state for a trace snapshot. A Host without it simply
// contributes an empty debug string.
type debugStringer interface {
	DebugString() string
}

// flusher is implemented by hosts that buffer console output (host.RAM)
// and need an explicit flush between trace lines.
type flusher interface {
	Flush() error
}

// Tracer drives a vm.VM one step at a time, governed by its config's
// spins/max_ops knobs (ram_size and trace_memory configure the host the
// VM was built with, not the Tracer).
type Tracer struct {
	VM  *vm.VM
	Cfg config.Config

	// lines accumulates every formatted snapshot, in order, so a TUI
	// view can present the whole run as scrollback without re-driving
	// the VM (the stepping loop itself is always plain synchronous Go,
	// never re-entered from the UI event loop).
	lines []string
	ops   int
}

// New constructs a Tracer for v under cfg.
func New(v *vm.VM, cfg config.Config) *Tracer {
	return &Tracer{VM: v, Cfg: cfg}
}

// Run executes the configured number of spins, then writes to w a
// formatted snapshot for every executed instruction (its PC and decoded
// form, with the registers as they stand after it ran) and a halt banner
// after each respin.
// It returns the first VM error encountered, if any.
func (t *Tracer) Run(w io.Writer) error {
	err := t.drive()
	for _, line := range t.lines {
		fmt.Fprintln(w, line)
	}
	return err
}

// Lines exposes the accumulated snapshot lines, e.g. for the TUI view to
// render after a silent drive.
func (t *Tracer) Lines() []string {
	return t.lines
}

// drive runs the stepping loop and records lines without writing them,
// so Run and the TUI's static scrollback view share one code path.
func (t *Tracer) drive() error {
	spinsRemaining := t.Cfg.Spins
	if spinsRemaining <= 0 {
		spinsRemaining = 1
	}

	for spinsRemaining > 0 {
		for {
			if t.Cfg.MaxOps > 0 && t.ops >= t.Cfg.MaxOps {
				t.emit("quota reached: stopping after %d ops", t.ops)
				return nil
			}

			inst, ok := t.VM.CurrentInstruction()
			pc := t.VM.PC()

			halted, err := t.VM.Step()
			t.ops++
			if err != nil {
				return err
			}

			if ok {
				t.emit("%s", t.snapshot(pc, inst))
			}
			if f, ok := t.VM.Host().(flusher); ok {
				if flushErr := f.Flush(); flushErr != nil {
					return flushErr
				}
			}

			if halted {
				t.emit("--- halted ---")
				spinsRemaining--
				t.VM.Rewind()
				break
			}
		}
	}
	return nil
}

func (t *Tracer) snapshot(pc uint32, inst isa.Instruction) string {
	regs := t.VM.Registers()
	hostDebug := ""
	if ds, ok := t.VM.Host().(debugStringer); ok {
		hostDebug = ds.DebugString()
	}
	return fmt.Sprintf("pc=%-4d %-24s regs=%v host=%s", pc, inst, regs, hostDebug)
}

func (t *Tracer) emit(format string, args ...any) {
	t.lines = append(t.lines, fmt.Sprintf(format, args...))
}
