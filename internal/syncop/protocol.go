// Package syncop arbitrates concurrent `up`/`down` invocations against the
// same work directory: at most one holds the lock and runs the operation,
// any others attach and replay its progress from the same lock file. It
// corresponds to spec.md §4.4.
package syncop

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// RecordKind discriminates the JSON-line records written to a lock file.
type RecordKind string

const (
	KindInit     RecordKind = "init"
	KindProgress RecordKind = "progress"
	KindInfo     RecordKind = "info"
	KindWarning  RecordKind = "warning"
	KindError    RecordKind = "error"
	KindExit     RecordKind = "exit"
)

// Record is one JSON line in a lock file. Exactly one of the typed payload
// fields is populated, selected by Kind.
type Record struct {
	Kind     RecordKind     `json:"kind"`
	Init     *InitPayload     `json:"init,omitempty"`
	Progress *ProgressPayload `json:"progress,omitempty"`
	Message  string           `json:"message,omitempty"`
	Exit     *ExitPayload     `json:"exit,omitempty"`
}

// InitPayload is the first record a holder writes.
type InitPayload struct {
	Op      string   `json:"op"`
	Commit  string   `json:"commit,omitempty"`
	Options []string `json:"options,omitempty"`
	PID     int      `json:"pid"`
	Cache   bool     `json:"cache"`
}

// InvariantEquals reports whether two InitPayloads describe the same
// operation in the sense spec.md §4.4 calls "invariant": op, commit, and
// the cache flag must match for an attacher to share a holder's run.
// Options are deliberately excluded — those are compared softly elsewhere.
func (a InitPayload) InvariantEquals(b InitPayload) bool {
	return a.Op == b.Op && a.Commit == b.Commit && a.Cache == b.Cache
}

// MissingOptions returns the options in want that are absent from a.Options.
func (a InitPayload) MissingOptions(want []string) []string {
	have := make(map[string]bool, len(a.Options))
	for _, o := range a.Options {
		have[o] = true
	}
	var missing []string
	for _, o := range want {
		if !have[o] {
			missing = append(missing, o)
		}
	}
	return missing
}

// ProgressPayload identifies one step within a handler hierarchy (see
// internal/up's ProgressHandler tree) so an attacher can replay it against
// its own renderer using the same handler ids and step counts.
type ProgressPayload struct {
	HandlerID string  `json:"handler_id"`
	StepIndex int     `json:"step_index"`
	StepTotal int     `json:"step_total"`
	Label     string  `json:"label"`
	Fraction  float64 `json:"fraction"`
}

// ExitPayload is the final record a holder writes before releasing the lock.
type ExitPayload struct {
	Code int `json:"code"`
}

// writeRecord appends one JSON line with a single Write call; it does not
// fsync. An attacher reading concurrently holds back a trailing partial
// line until its newline arrives, so it only ever parses whole records.
func writeRecord(w io.Writer, r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("syncop: marshal record: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// recordScanner decodes JSON-line records from a lock file that may still
// be growing (a holder appending while an attacher tails it). Unlike
// bufio.Scanner, it tolerates a trailing partial line at EOF: that data is
// held back and retried on the next Next() call once the writer completes
// the line, which is what makes polling a live lock file safe.
type recordScanner struct {
	r       *bufio.Reader
	pending []byte
}

func newRecordScanner(r io.Reader) *recordScanner {
	return &recordScanner{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next fully-written line's decoded Record, or
// (nil, false, nil) if no complete line is available yet (callers should
// poll and retry).
func (s *recordScanner) Next() (*Record, bool, error) {
	line, err := s.r.ReadBytes('\n')
	if len(line) > 0 && line[len(line)-1] == '\n' {
		full := append(s.pending, line[:len(line)-1]...)
		s.pending = nil
		if len(full) == 0 {
			return nil, false, nil
		}
		var rec Record
		if jerr := json.Unmarshal(full, &rec); jerr != nil {
			return nil, false, fmt.Errorf("syncop: unmarshal record: %w", jerr)
		}
		return &rec, true, nil
	}
	// No newline yet: hold the partial bytes for the next poll.
	if err == io.EOF {
		s.pending = append(s.pending, line...)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return nil, false, nil
}
