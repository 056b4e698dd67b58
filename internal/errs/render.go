package errs

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Renderer prints taxonomy errors as "file:lineno:code:message", colored
// when attached to a terminal. JSON output is always available for
// machine consumption regardless of TTY state.
type Renderer struct {
	w      io.Writer
	color  bool
	codeSt lipgloss.Style
	msgSt  lipgloss.Style
}

// NewRenderer builds a Renderer. Pass color=false for non-terminal output
// (piped, redirected, or color turned off by --no-color or omni.ini's
// no_color) to keep the stream plain text.
func NewRenderer(w io.Writer, color bool) *Renderer {
	return &Renderer{
		w:     w,
		color: color,
		codeSt: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		msgSt:  lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
	}
}

// Render writes one line for err. file/line are the manifest location when
// known; pass "" / 0 when the error has no file position (e.g. a cache or
// arbiter error).
func (r *Renderer) Render(file string, line int, err error) {
	code := Code(err)
	if code == "" {
		code = "U000"
	}
	loc := file
	if loc == "" {
		loc = "-"
	}
	prefix := fmt.Sprintf("%s:%d:%s", loc, line, code)
	msg := err.Error()
	if r.color {
		fmt.Fprintf(r.w, "%s: %s\n", r.codeSt.Render(prefix), r.msgSt.Render(msg))
		return
	}
	fmt.Fprintf(r.w, "%s: %s\n", prefix, msg)
}

// jsonRecord is the machine-consumable shape for RenderJSON.
type jsonRecord struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RenderJSON writes err as a single JSON line, for `--json` callers.
func (r *Renderer) RenderJSON(file string, line int, err error) error {
	code := Code(err)
	if code == "" {
		code = "U000"
	}
	rec := jsonRecord{File: file, Line: line, Code: code, Message: err.Error()}
	enc := json.NewEncoder(r.w)
	return enc.Encode(rec)
}
