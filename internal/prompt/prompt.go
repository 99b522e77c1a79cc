// Package prompt builds the text sent to the model: the system instruction
// for the history path, the combined prompt for the screenshot path and the
// routing of prefixed input to one-shot vision analysis.
package prompt

import (
	"regexp"
	"strings"
)

// DefaultPersona is the fixed style directive placed before the context.
const DefaultPersona = `your name is tars and you are a helpful and efficient assistant. keep responses short, clear and to the point, with no filler. simplify things when needed, but never overexplain unless asked. write like a human: natural, direct and precise. be friendly, not overly casual, and never robotic.

when the user asks for code, return only the essential snippet. no extra comments or explanations unless requested.

if asked to rewrite content (like tweets or emails), write the improved version directly, without quotes or disclaimers. keep it smooth and grammatically correct.

never mention your training or the company behind the model. focus only on being useful, sharp and easy to work with.

always try to respond using the context, or in a way relevant to it, if there is any.`

const contextLead = "here is some context that might be useful: "

// Template renders system instructions for one persona.
type Template struct {
	Persona string
}

// Build returns the persona followed by the literal context. The output
// depends on nothing else.
func (t Template) Build(context string) string {
	persona := t.Persona
	if strings.TrimSpace(persona) == "" {
		persona = DefaultPersona
	}
	return persona + "\n\n" + contextLead + context
}

// BuildSystemInstruction renders the default persona with context.
func BuildSystemInstruction(context string) string {
	return Template{}.Build(context)
}

// CombinedPrompt is the single prompt sent on the screenshot path.
func CombinedPrompt(context, input string) string {
	return "Context from clipboard: " + context + "\n\nUser question: " + input
}

var visionPrefix = regexp.MustCompile(`(?i)^(analyze:|screenshot:)\s*`)

// Route says how a submitted line is dispatched.
type Route int

const (
	RouteConversation Route = iota
	RouteVision
)

// ParseInput trims input and detects the analyze:/screenshot: prefix. For a
// vision route the returned text has the prefix stripped.
func ParseInput(input string) (Route, string) {
	trimmed := strings.TrimSpace(input)
	if loc := visionPrefix.FindStringIndex(trimmed); loc != nil {
		return RouteVision, trimmed[loc[1]:]
	}
	return RouteConversation, trimmed
}
