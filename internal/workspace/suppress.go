package workspace

import "time"

// SuppressionPolicy decides whether an incoming remote snapshot should be
// discarded relative to this client's own recent optimistic writes. The
// default is a wall-clock window; the interface exists so a logical-clock
// comparison can be swapped in without touching the gate.
type SuppressionPolicy interface {
	// NoteLocalWrite records a successful local optimistic write.
	NoteLocalWrite(at time.Time)
	// Suppress reports whether a snapshot arriving at the given time must
	// be discarded.
	Suppress(at time.Time) bool
	// Reset clears carried state; a fresh subscription always starts clean.
	Reset()
}

// WindowPolicy suppresses every snapshot arriving strictly within a fixed
// interval of the last local write. A snapshot arriving exactly at the
// window boundary is accepted. Known tradeoff carried over deliberately: a
// genuinely concurrent edit by another collaborator inside the window is
// dropped without notice.
type WindowPolicy struct {
	Window time.Duration
	last   time.Time
}

func NewWindowPolicy(window time.Duration) *WindowPolicy {
	return &WindowPolicy{Window: window}
}

func (p *WindowPolicy) NoteLocalWrite(at time.Time) {
	if at.After(p.last) {
		p.last = at
	}
}

func (p *WindowPolicy) Suppress(at time.Time) bool {
	if p.last.IsZero() {
		return false
	}
	return at.Sub(p.last) < p.Window
}

func (p *WindowPolicy) Reset() {
	p.last = time.Time{}
}
