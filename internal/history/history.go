// Package history keeps the bounded, append-only conversation that is
// replayed to the text model on every turn.
package history

// DefaultMaxTurns bounds a history created with a non-positive limit.
const DefaultMaxTurns = 100

// Role is the internal speaker vocabulary.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// WireRole returns the role token used on the model wire.
func (r Role) WireRole() string {
	if r == RoleAssistant {
		return "model"
	}
	return string(r)
}

// Turn is one submitted question or one received reply.
type Turn struct {
	Role    Role
	Content string
}

// WireTurn is a turn rendered for transmission.
type WireTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History is an ordered list of turns. When MaxTurns is exceeded the oldest
// turns are dropped. It is not safe for concurrent use.
type History struct {
	maxTurns int
	turns    []Turn
}

// New creates an empty history holding at most maxTurns turns.
func New(maxTurns int) *History {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &History{maxTurns: maxTurns}
}

// MaxTurns returns the eviction bound.
func (h *History) MaxTurns() int {
	return h.maxTurns
}

// SetMaxTurns changes the bound, evicting immediately if the history is
// already longer.
func (h *History) SetMaxTurns(n int) {
	if n <= 0 {
		n = DefaultMaxTurns
	}
	h.maxTurns = n
	h.prune()
}

// AppendUser records a submitted question.
func (h *History) AppendUser(text string) {
	h.append(RoleUser, text)
}

// AppendAssistant records a model reply.
func (h *History) AppendAssistant(text string) {
	h.append(RoleAssistant, text)
}

func (h *History) append(role Role, text string) {
	h.turns = append(h.turns, Turn{Role: role, Content: text})
	h.prune()
}

func (h *History) prune() {
	if over := len(h.turns) - h.maxTurns; over > 0 {
		h.turns = append(h.turns[:0:0], h.turns[over:]...)
	}
}

// Len returns the number of retained turns.
func (h *History) Len() int {
	return len(h.turns)
}

// Turns returns a copy of the retained turns, oldest first.
func (h *History) Turns() []Turn {
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Render maps the retained turns to the wire vocabulary.
func (h *History) Render() []WireTurn {
	out := make([]WireTurn, len(h.turns))
	for i, t := range h.turns {
		out[i] = WireTurn{Role: t.Role.WireRole(), Content: t.Content}
	}
	return out
}

// Reset drops every turn.
func (h *History) Reset() {
	h.turns = nil
}
