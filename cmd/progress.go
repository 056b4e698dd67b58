package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// cliProgress renders an up.Progress stream to the terminal: one
// overwritten line per backend step, with Info/Warning/Error breaking onto
// their own line so they aren't lost under the next step's carriage return.
type cliProgress struct {
	labelSt lipgloss.Style
	warnSt  lipgloss.Style
	errSt   lipgloss.Style
	lastLen int
}

func newCLIProgress() *cliProgress {
	return &cliProgress{
		labelSt: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		warnSt:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		errSt:   lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
	}
}

func (p *cliProgress) clear() {
	if p.lastLen > 0 {
		fmt.Fprintf(os.Stderr, "\r%*s\r", p.lastLen, "")
	}
}

func (p *cliProgress) Progress(handlerID string, stepIndex, stepTotal int, label string, fraction float64) {
	p.clear()
	line := fmt.Sprintf("[%s] %s (%d/%d, %.0f%%)", handlerID, label, stepIndex, stepTotal, fraction*100)
	fmt.Fprint(os.Stderr, "\r"+p.labelSt.Render(line))
	p.lastLen = len(line)
}

func (p *cliProgress) Info(msg string) {
	p.clear()
	p.lastLen = 0
	fmt.Fprintln(os.Stderr, msg)
}

func (p *cliProgress) Warning(msg string) {
	p.clear()
	p.lastLen = 0
	fmt.Fprintln(os.Stderr, p.warnSt.Render("warning: "+msg))
}

func (p *cliProgress) Error(msg string) {
	p.clear()
	p.lastLen = 0
	fmt.Fprintln(os.Stderr, p.errSt.Render("error: "+msg))
}

// finish ends the current overwritten line, if any, so subsequent output
// doesn't collide with a half-drawn progress bar.
func (p *cliProgress) finish() {
	if p.lastLen > 0 {
		fmt.Fprintln(os.Stderr)
		p.lastLen = 0
	}
}
