package providers

import (
	"context"
	"fmt"
)

// ID identifies a backend text-generation provider
type ID string

const (
	// Friendli is the primary provider (fast, cheap inference)
	Friendli ID = "friendli"

	// Bedrock is the secondary provider (AWS Bedrock, most reliable)
	Bedrock ID = "bedrock"

	// Mock is the degraded pseudo-provider that never fails
	Mock ID = "mock"

	// None means no provider preference
	None ID = ""
)

// ParseID converts a provider name to an ID. Unknown names yield an error.
func ParseID(name string) (ID, error) {
	switch ID(name) {
	case Friendli, Bedrock, Mock:
		return ID(name), nil
	case None:
		return None, nil
	default:
		return None, fmt.Errorf("unknown provider %q", name)
	}
}

// Adapter wraps one backend text-generation service.
//
// Implementations are read-only after construction and safe for concurrent
// use. Attempt issues exactly one outbound call and must abort it when ctx
// is done; the caller bounds each attempt with a context deadline.
type Adapter interface {
	// ID returns the provider identifier
	ID() ID

	// Configured reports whether the adapter has the credentials and
	// settings it needs. It never touches the network.
	Configured() bool

	// Attempt performs a single completion call
	Attempt(ctx context.Context, req *Request) (*Completion, error)
}

// Request is the adapter-level completion request
type Request struct {
	// Prompt is the newest user turn. It may be empty when Messages ends
	// with a user turn.
	Prompt string

	// SystemPrompt is prepended as a system instruction when set
	SystemPrompt string

	// Messages is prior conversation history, oldest first
	Messages []Message

	// Model overrides the adapter's default model when set
	Model string

	// MaxTokens limits the response length
	MaxTokens int

	// Temperature controls randomness, 0 is deterministic
	Temperature float64
}

// Completion is the adapter-level completion response
type Completion struct {
	// Text is the generated text
	Text string

	// Model actually used for the completion
	Model string

	// Usage statistics, zero when the backend does not report them
	Usage Usage
}

// Usage represents token usage statistics
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Config holds the connection configuration shared by HTTP-style adapters
type Config struct {
	// Enabled allows the adapter to be switched off without removing credentials
	Enabled bool

	// APIKey for authentication
	APIKey string

	// BaseURL for the API (optional override)
	BaseURL string

	// Model is the default model identifier
	Model string

	// Headers are added to every outbound request
	Headers map[string]string
}
