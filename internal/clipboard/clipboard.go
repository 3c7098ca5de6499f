package clipboard

import (
	"errors"

	sysclip "github.com/atotto/clipboard"
)

// ErrUnsupported is returned when no clipboard mechanism (xclip, xsel, wl-copy, pbcopy,
// clip.exe) is available on the host.
var ErrUnsupported = errors.New("no clipboard mechanism available (install xclip, xsel or wl-clipboard)")

// ErrDisabled is returned by the writer used when clipboard.enabled is false.
var ErrDisabled = errors.New("clipboard disabled by configuration")

// Writer replaces the host clipboard contents.
type Writer interface {
	Write(text string) error
}

type systemWriter struct{}

// System writes to the host clipboard.
func System() Writer { return systemWriter{} }

func (systemWriter) Write(text string) error {
	if sysclip.Unsupported {
		return ErrUnsupported
	}
	return sysclip.WriteAll(text)
}

type disabledWriter struct{}

func Disabled() Writer { return disabledWriter{} }

func (disabledWriter) Write(string) error { return ErrDisabled }

// New returns the system writer, or the disabled one when enabled is false.
func New(enabled bool) Writer {
	if !enabled {
		return Disabled()
	}
	return System()
}

// Outcome is the result of a best-effort copy.
type Outcome struct {
	OK  bool
	Err error
}

// Copy writes text with w and reports what happened. It never fails the caller; a nil
// writer counts as disabled.
func Copy(w Writer, text string) Outcome {
	if w == nil {
		w = Disabled()
	}
	if err := w.Write(text); err != nil {
		return Outcome{Err: err}
	}
	return Outcome{OK: true}
}

// Suffix is appended to the success message when the copy failed.
func (o Outcome) Suffix() string {
	if o.OK || o.Err == nil {
		return ""
	}
	return " (Clipboard copy failed: " + o.Err.Error() + ")"
}
