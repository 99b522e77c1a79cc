package ambient

// ActiveContext is the context attached to the next question: normalized
// clipboard text, optionally paired with screenshot bytes. It is replaced
// wholesale; the Screenshot slice is never written after capture.
type ActiveContext struct {
	Text       ContextString
	Screenshot []byte
}

// IsEmpty reports whether neither half is set.
func (a ActiveContext) IsEmpty() bool {
	return a.Text == "" && len(a.Screenshot) == 0
}

// HasScreenshot reports whether screenshot bytes are attached.
func (a ActiveContext) HasScreenshot() bool {
	return len(a.Screenshot) > 0
}

// RejectReason explains why Evaluate did not accept ambient text.
type RejectReason int

const (
	NotRejected RejectReason = iota
	RejectEmpty
	RejectDismissed
	RejectUnchanged
)

func (r RejectReason) String() string {
	switch r {
	case NotRejected:
		return "accepted"
	case RejectEmpty:
		return "empty"
	case RejectDismissed:
		return "dismissed"
	case RejectUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Decision is the result of evaluating freshly read ambient text.
type Decision struct {
	Accepted bool
	Context  ContextString
	Reason   RejectReason
}

// Evaluate decides whether raw should replace the active context.
// Rejections are checked in order: empty, equal to the dismissed context,
// equal to the active context.
func Evaluate(raw string, active ActiveContext, dismissed ContextString) Decision {
	c := Normalize(raw)
	switch {
	case c == "":
		return Decision{Reason: RejectEmpty}
	case c == dismissed:
		return Decision{Context: c, Reason: RejectDismissed}
	case c == active.Text:
		return Decision{Context: c, Reason: RejectUnchanged}
	}
	return Decision{Accepted: true, Context: c}
}

// Tracker owns the active and dismissed contexts. It is not safe for
// concurrent use; the orchestrator mutates it from a single goroutine.
type Tracker struct {
	active    ActiveContext
	dismissed ContextString
}

// Active returns the current active context.
func (t *Tracker) Active() ActiveContext {
	return t.active
}

// Dismissed returns the most recently dismissed context.
func (t *Tracker) Dismissed() ContextString {
	return t.dismissed
}

// Acquire evaluates raw against the tracked state and applies the decision.
func (t *Tracker) Acquire(raw string) Decision {
	d := Evaluate(raw, t.active, t.dismissed)
	t.Apply(d)
	return d
}

// Apply commits an accepted decision: the text half of the active context is
// replaced and dismissal suppression is cleared. Rejections change nothing.
func (t *Tracker) Apply(d Decision) bool {
	if !d.Accepted {
		return false
	}
	t.active = ActiveContext{Text: d.Context, Screenshot: t.active.Screenshot}
	t.dismissed = ""
	return true
}

// AttachScreenshot pairs png with the current text half.
func (t *Tracker) AttachScreenshot(png []byte) {
	t.active = ActiveContext{Text: t.active.Text, Screenshot: png}
}

// DiscardScreenshot drops the screenshot half, keeping the text.
func (t *Tracker) DiscardScreenshot() {
	if t.active.Screenshot == nil {
		return
	}
	t.active = ActiveContext{Text: t.active.Text}
}

// Dismiss remembers the active text as dismissed and clears the active
// context. It is the only writer of the dismissed context and does nothing
// when no context is active. A screenshot-only context is cleared without
// touching the dismissed text, so an earlier suppression stays in force.
func (t *Tracker) Dismiss() bool {
	if t.active.IsEmpty() {
		return false
	}
	if t.active.Text != "" {
		t.dismissed = t.active.Text
	}
	t.active = ActiveContext{}
	return true
}
