package up

import "omni/internal/syncop"

// ProgressHandler is one node in the nested progress-reporting tree
// SPEC_FULL's supplemented "up-progress handler hierarchy" describes: one
// handler per backend, with children for sub-steps (e.g. "download",
// "extract", "verify checksum"). Each handler has a stable (handler_id,
// step_index) pair so a SYNCOP attacher replays the exact same increments
// the holder rendered locally.
type ProgressHandler struct {
	id    string
	sink  Progress
	total int
	index int
}

// NewProgressHandler returns the root handler for one backend instance. id
// is typically "<kind>:<target>" (e.g. "python", "go-install:stringer") so
// two backends running concurrently in different work directories don't
// collide in a shared attach stream.
func NewProgressHandler(id string, sink Progress) *ProgressHandler {
	return &ProgressHandler{id: id, sink: sink}
}

// Child returns a handler for one sub-step under h, sharing h's sink but
// reporting under its own id so an attacher can distinguish "downloading"
// from "extracting" within the same backend run.
func (h *ProgressHandler) Child(subID string) *ProgressHandler {
	return &ProgressHandler{id: h.id + "/" + subID, sink: h.sink}
}

// SetTotal declares how many Step calls this handler expects, so Fraction
// can be computed before the final step arrives.
func (h *ProgressHandler) SetTotal(n int) { h.total = n }

// Step reports one increment complete, with a human-readable label for
// the currently-running action.
func (h *ProgressHandler) Step(label string) {
	h.index++
	if h.sink == nil {
		return
	}
	fraction := 1.0
	if h.total > 0 {
		fraction = float64(h.index) / float64(h.total)
	}
	h.sink.Progress(h.id, h.index, h.total, label, fraction)
}

func (h *ProgressHandler) Info(msg string) {
	if h.sink != nil {
		h.sink.Info(msg)
	}
}

func (h *ProgressHandler) Warning(msg string) {
	if h.sink != nil {
		h.sink.Warning(msg)
	}
}

func (h *ProgressHandler) Error(msg string) {
	if h.sink != nil {
		h.sink.Error(msg)
	}
}

// HolderSink adapts a *syncop.Holder (which writes one JSON-line record per
// call) to the Backend-facing Progress interface, so a holder process can
// be handed directly to an Executor run as its progress sink. Write errors
// are swallowed per spec.md §4.4: "any error during progress I/O is logged
// and ignored; it does not fail the operation."
type HolderSink struct {
	Holder *syncop.Holder
	Logger Logger
}

func (s *HolderSink) Progress(handlerID string, stepIndex, stepTotal int, label string, fraction float64) {
	if err := s.Holder.Progress(syncop.ProgressPayload{
		HandlerID: handlerID, StepIndex: stepIndex, StepTotal: stepTotal, Label: label, Fraction: fraction,
	}); err != nil && s.Logger != nil {
		s.Logger.Debug("syncop: progress write failed: %v", err)
	}
}

func (s *HolderSink) Info(msg string) {
	if err := s.Holder.Info(msg); err != nil && s.Logger != nil {
		s.Logger.Debug("syncop: info write failed: %v", err)
	}
}

func (s *HolderSink) Warning(msg string) {
	if err := s.Holder.Warning(msg); err != nil && s.Logger != nil {
		s.Logger.Debug("syncop: warning write failed: %v", err)
	}
}

func (s *HolderSink) Error(msg string) {
	if err := s.Holder.Error(msg); err != nil && s.Logger != nil {
		s.Logger.Debug("syncop: error write failed: %v", err)
	}
}
