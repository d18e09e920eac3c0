package trace

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// RunTUI drives the VM to completion exactly as Run does, then presents
// the captured snapshot lines in a single scrolling tview panel, unlike
// a multi-panel debugger with breakpoints and watchpoints — this tracer
// has no such concept, just the step-by-step state history. Press q,
// Esc, or Ctrl-C to exit.
func (t *Tracer) RunTUI() error {
	if err := t.drive(); err != nil {
		return err
	}

	view := tview.NewTextView().
		SetDynamicColors(false).
		SetScrollable(true).
		SetWrap(false)
	view.SetBorder(true).SetTitle(fmt.Sprintf(" stripvm trace (%d ops) ", t.ops))
	fmt.Fprint(view, strings.Join(t.lines, "\n"))
	view.ScrollToBeginning()

	app := tview.NewApplication()
	view.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch {
		case event.Key() == tcell.KeyEscape || event.Key() == tcell.KeyCtrlC:
			app.Stop()
			return nil
		case event.Rune() == 'q':
			app.Stop()
			return nil
		}
		return event
	})

	return app.SetRoot(view, true).SetFocus(view).Run()
}
