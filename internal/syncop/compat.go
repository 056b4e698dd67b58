package syncop

import "omni/internal/errs"

// CheckCompatibility implements spec.md §4.4's Init compatibility rule: the
// invariant subset (op, commit, cache) must match exactly, or the attacher
// errors out immediately. The options subset is compared softly — that
// check only finalizes after the holder exits 0, via MissingOptionsAfterExit.
func CheckCompatibility(holderInit, attacherInit InitPayload) error {
	if !holderInit.InvariantEquals(attacherInit) {
		return &errs.ArbiterError{Code: "U203", WorkDir: "", Op: "attach", Err: errs.ErrMismatchedInit}
	}
	return nil
}

// MissingOptionsAfterExit is called once the holder exits 0: if the
// attacher wanted options the holder never ran, it must fail with
// MissingInitOptions so the caller can retry as its own holder.
func MissingOptionsAfterExit(holderInit, attacherInit InitPayload, exitCode int) error {
	if exitCode != 0 {
		return nil
	}
	missing := holderInit.MissingOptions(attacherInit.Options)
	if len(missing) == 0 {
		return nil
	}
	return &errs.ArbiterError{Code: "U204", WorkDir: "", Op: "attach", Err: errs.ErrMissingOptions}
}
