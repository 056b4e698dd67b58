package cmd

import (
	"context"
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/spf13/cobra"

	"omni/internal/syncop"
	"omni/internal/workdir"
)

// newMonitorCmd implements a live attach dashboard: it reads the work
// directory's SYNCOP lock file the same way an `up` attacher would, but
// purely as an observer (it never checks Init compatibility and never
// offers to kill anything), rendering the replayed progress stream in a
// scrolling tview.TextView until the holder exits or the user quits.
func newMonitorCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "monitor [path]",
		Short: "Watch another process's in-progress `up`",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			id, err := workdir.Resolve(dir)
			if err != nil {
				return err
			}
			lockPath := svc.Config().LockPath(string(id))

			attacher, err := syncop.Attach(lockPath, svc.Config().LockPollInterval, 0)
			if err != nil {
				return err
			}
			defer attacher.Close()

			return runMonitorApp(cmd.Context(), attacher, string(id))
		},
	}
	return c
}

func runMonitorApp(ctx context.Context, attacher *syncop.Attacher, workdirID string) error {
	app := tview.NewApplication()
	view := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() { app.Draw() })
	view.SetBorder(true).SetTitle(fmt.Sprintf(" omni monitor: %s ", workdirID))

	sink := &monitorSink{app: app, view: view}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		exitCode, err := attacher.Wait(runCtx, sink, nil)
		app.QueueUpdateDraw(func() {
			if err != nil {
				fmt.Fprintf(view, "[red]monitor: %v[-]\n", err)
				return
			}
			fmt.Fprintf(view, "[green]holder exited with code %d[-]\n", exitCode)
		})
	}()

	view.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape || event.Rune() == 'q' {
			cancel()
			app.Stop()
			return nil
		}
		return event
	})

	return app.SetRoot(view, true).Run()
}

// monitorSink adapts syncop's replay callbacks to tview's
// QueueUpdateDraw-guarded redraw model: the attacher calls these from its
// own goroutine, never the UI goroutine.
type monitorSink struct {
	app  *tview.Application
	view *tview.TextView
}

func (m *monitorSink) Progress(p syncop.ProgressPayload) {
	m.app.QueueUpdateDraw(func() {
		fmt.Fprintf(m.view, "[%s] %s (%d/%d, %.0f%%)\n", p.HandlerID, p.Label, p.StepIndex, p.StepTotal, p.Fraction*100)
	})
}

func (m *monitorSink) Info(msg string) {
	m.app.QueueUpdateDraw(func() { fmt.Fprintf(m.view, "%s\n", msg) })
}

func (m *monitorSink) Warning(msg string) {
	m.app.QueueUpdateDraw(func() { fmt.Fprintf(m.view, "[yellow]warning: %s[-]\n", msg) })
}

func (m *monitorSink) Error(msg string) {
	m.app.QueueUpdateDraw(func() { fmt.Fprintf(m.view, "[red]error: %s[-]\n", msg) })
}
