// Package mock provides the degraded pseudo-provider that terminates every
// fallback chain. It is pure and synchronous: the reply is derived from the
// prompt alone and it has no failure modes.
package mock

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/upb/nimbus-copilot/services/providers"
)

const (
	// Model is reported as the model name of every mock completion
	Model = "mock"

	// UnavailableMessage opens every degraded reply
	UnavailableMessage = "I apologize, but I'm unable to connect to the LLM providers at the moment. Please check your API credentials and try again."

	excerptLimit = 80
)

// Adapter is the Mock pseudo-adapter
type Adapter struct{}

// NewAdapter creates the mock adapter
func NewAdapter() *Adapter {
	return &Adapter{}
}

// ID returns the provider identifier
func (a *Adapter) ID() providers.ID {
	return providers.Mock
}

// Configured is always true
func (a *Adapter) Configured() bool {
	return true
}

// Attempt returns the placeholder reply for the request's question. It
// ignores ctx and never fails.
func (a *Adapter) Attempt(_ context.Context, req *providers.Request) (*providers.Completion, error) {
	return a.Complete(req.Question()), nil
}

// Complete builds the placeholder reply for prompt
func (a *Adapter) Complete(prompt string) *providers.Completion {
	return &providers.Completion{
		Text:  Reply(prompt),
		Model: Model,
	}
}

// Reply deterministically derives the degraded reply for prompt
func Reply(prompt string) string {
	excerpt := Excerpt(prompt)
	if excerpt == "" {
		return UnavailableMessage
	}
	return UnavailableMessage + "\n\nYour question was: \"" + excerpt + "\""
}

// Excerpt collapses whitespace and truncates prompt on a rune boundary
func Excerpt(prompt string) string {
	collapsed := strings.Join(strings.Fields(prompt), " ")
	if utf8.RuneCountInString(collapsed) <= excerptLimit {
		return collapsed
	}
	runes := []rune(collapsed)
	return string(runes[:excerptLimit]) + "..."
}
