// Package hotkey maps key combos to the three overlay actions.
package hotkey

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hpungsan/tars/internal/errors"
)

// Action is something a combo can trigger.
type Action string

const (
	ActionToggleClipboard  Action = "clipboard"
	ActionToggleScreenshot Action = "screenshot"
	ActionCopyResponse     Action = "copy"
)

// Actions lists every bindable action.
var Actions = []Action{ActionToggleClipboard, ActionToggleScreenshot, ActionCopyResponse}

// ParseAction resolves an action by name.
func ParseAction(s string) (Action, bool) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Actions {
		if a == known {
			return a, true
		}
	}
	return "", false
}

// Handler runs when a bound combo fires. It must not block.
type Handler func()

// Binding is a registered combo.
type Binding struct {
	Combo  string `json:"combo"`
	Action Action `json:"action"`
}

type entry struct {
	action  Action
	handler Handler
}

// Registry holds combo bindings. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string]entry)}
}

// NormalizeCombo lowercases a combo, drops spaces and maps the
// platform-neutral modifiers to their terminal names.
func NormalizeCombo(combo string) string {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(combo)), "+")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		switch p {
		case "":
			continue
		case "cmdorctrl", "commandorcontrol", "cmd", "command", "control":
			p = "ctrl"
		case "option":
			p = "alt"
		}
		out = append(out, p)
	}
	return strings.Join(out, "+")
}

// reservedKeys are the overlay's own keys. A hotkey fires before them, so
// binding one would silently take the key over.
var reservedKeys = map[string]string{
	"enter":     "submit",
	"esc":       "clipboard toggle",
	"tab":       "model cycling",
	"ctrl+x":    "dismiss",
	"ctrl+r":    "reset",
	"pgup":      "scrolling",
	"pgdown":    "scrolling",
	"ctrl+c":    "quit",
	"space":     "typing",
	"backspace": "editing",
}

// Reserved reports whether combo collides with an overlay key, and what the
// key does there. Unmodified single characters are reserved for typing.
func Reserved(combo string) (string, bool) {
	key := NormalizeCombo(combo)
	if use, ok := reservedKeys[key]; ok {
		return use, true
	}
	if utf8.RuneCountInString(key) == 1 {
		return "typing", true
	}
	return "", false
}

// Register binds combo to action. An empty, reserved or already bound combo
// fails with HOTKEY_REGISTRATION_ERROR.
func (r *Registry) Register(combo string, action Action, h Handler) error {
	key := NormalizeCombo(combo)
	if key == "" {
		return errors.NewHotkeyRegistration(combo, "combo is empty")
	}
	if use, ok := Reserved(key); ok {
		return errors.NewHotkeyRegistration(combo, "reserved by the overlay for "+use)
	}
	if h == nil {
		return errors.NewHotkeyRegistration(combo, "handler is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.bindings[key]; ok {
		return errors.NewHotkeyRegistration(combo, "already bound to "+string(existing.action))
	}
	r.bindings[key] = entry{action: action, handler: h}
	return nil
}

// Unregister removes a binding.
func (r *Registry) Unregister(combo string) error {
	key := NormalizeCombo(combo)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bindings[key]; !ok {
		return errors.NewHotkeyRegistration(combo, "not registered")
	}
	delete(r.bindings, key)
	return nil
}

// Fire runs the handler bound to combo and reports whether one existed.
func (r *Registry) Fire(combo string) bool {
	r.mu.RLock()
	e, ok := r.bindings[NormalizeCombo(combo)]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	e.handler()
	return true
}

// Bindings returns the registered combos sorted by combo.
func (r *Registry) Bindings() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Binding, 0, len(r.bindings))
	for combo, e := range r.bindings {
		out = append(out, Binding{Combo: combo, Action: e.action})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Combo < out[j].Combo })
	return out
}

// RegisterAll binds every action that has both a combo and a handler.
// Failures are logged and skipped; the affected shortcut simply never fires.
func RegisterAll(r *Registry, combos map[Action]string, handlers map[Action]Handler, logger *zap.Logger) int {
	n := 0
	for _, action := range Actions {
		h, ok := handlers[action]
		if !ok {
			continue
		}
		combo := combos[action]
		if err := r.Register(combo, action, h); err != nil {
			logger.Warn("hotkey registration failed",
				zap.String("action", string(action)),
				zap.String("combo", combo),
				zap.Error(err))
			continue
		}
		n++
	}
	return n
}
