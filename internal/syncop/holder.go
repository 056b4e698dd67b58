package syncop

import (
	"os"

	"github.com/gofrs/flock"

	"omni/internal/errs"
)

// Holder is the process that won the exclusive lock for a work directory
// and is actively running an `up`/`down` operation. It owns the lock file
// for its lifetime: truncated at start, appended to as the operation
// progresses, released on Close.
type Holder struct {
	path string
	fl   *flock.Flock
	file *os.File
}

// Acquire attempts to become the holder for path. ok is false (err nil)
// when another process already holds the lock; the caller should become an
// Attacher instead.
func Acquire(path string) (h *Holder, ok bool, err error) {
	fl, ok, err := tryAcquire(path)
	if err != nil || !ok {
		return nil, ok, err
	}

	// The lock is ours; any bytes already in the file are leftovers from a
	// crashed holder (spec.md §4.4 failure semantics) and are discarded.
	f, oerr := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if oerr != nil {
		fl.Unlock()
		return nil, false, &errs.IOError{Code: "U102", Path: path, Op: "truncate", Err: oerr}
	}

	return &Holder{path: path, fl: fl, file: f}, true, nil
}

// WriteInit writes the first record of the run.
func (h *Holder) WriteInit(init InitPayload) error {
	return writeRecord(h.file, Record{Kind: KindInit, Init: &init})
}

// Progress appends one progress record. Errors are logged by the caller and
// never fail the in-flight operation (spec.md §4.4: "progress I/O errors
// ... logged and ignored").
func (h *Holder) Progress(p ProgressPayload) error {
	return writeRecord(h.file, Record{Kind: KindProgress, Progress: &p})
}

func (h *Holder) Info(message string) error {
	return writeRecord(h.file, Record{Kind: KindInfo, Message: message})
}

func (h *Holder) Warning(message string) error {
	return writeRecord(h.file, Record{Kind: KindWarning, Message: message})
}

func (h *Holder) Error(message string) error {
	return writeRecord(h.file, Record{Kind: KindError, Message: message})
}

// Exit writes the terminal record and releases the lock. It closes the
// file, so it is called once; Close is the path that releases the lock
// without an Exit record (the "crashed holder" case attachers handle).
func (h *Holder) Exit(code int) error {
	werr := writeRecord(h.file, Record{Kind: KindExit, Exit: &ExitPayload{Code: code}})
	cerr := h.Close()
	if werr != nil {
		return werr
	}
	return cerr
}

// Close releases the lock and closes the file without writing an Exit
// record — used on the crash/panic path so the process can unwind through
// a defer without masking the original error.
func (h *Holder) Close() error {
	ferr := h.file.Close()
	lerr := h.fl.Unlock()
	if ferr != nil {
		return ferr
	}
	return lerr
}
