package completion

import (
	"time"

	"github.com/google/uuid"

	"github.com/upb/nimbus-copilot/services/providers"
)

const (
	// DefaultMaxTokens is used when a request leaves MaxTokens at zero
	DefaultMaxTokens = 1000
	// DefaultTemperature is used when a request leaves Temperature unset
	DefaultTemperature = 0.7
)

// Request is one prompt to complete. The router never mutates it.
type Request struct {
	// Prompt is the newest user turn. It may be empty when Messages ends with
	// a user turn.
	Prompt       string
	SystemPrompt string
	// Messages is prior conversation history, oldest first
	Messages  []providers.Message
	ModelHint string
	MaxTokens int
	// Temperature overrides DefaultTemperature when set; 0 is honoured
	Temperature *float64
	// Preference moves a configured provider to the front of the trial order
	Preference providers.ID
	// Timeout overrides the per-attempt timeout when positive
	Timeout time.Duration
}

// Result is the single outcome of a Complete call. A result served by the
// Mock provider is degraded: callers must treat it as "answer unavailable".
type Result struct {
	ID       uuid.UUID
	Text     string
	Provider providers.ID
	Model    string
	// Latency is the router-measured duration of the attempt that produced Text
	Latency time.Duration
	Success bool
	// Error is a short reason for degraded results
	Error string
}

// Degraded reports whether the result came from the Mock fallback
func (r Result) Degraded() bool {
	return r.Provider == providers.Mock
}

// ProviderStats are the counters kept for one provider
type ProviderStats struct {
	Attempts       int64                         `json:"attempts"`
	Successes      int64                         `json:"successes"`
	Failures       int64                         `json:"failures"`
	MeanLatency    time.Duration                 `json:"-"`
	MeanLatencyMs  float64                       `json:"mean_latency_ms"`
	FailuresByKind map[providers.ErrorKind]int64 `json:"failures_by_kind,omitempty"`
}

// RouterStats is a consistent snapshot of every counter
type RouterStats struct {
	TotalCalls     int64                          `json:"total_calls"`
	DegradedCalls  int64                          `json:"degraded_calls"`
	RejectedCalls  int64                          `json:"rejected_calls"`
	CancelledCalls int64                          `json:"cancelled_calls"`
	Providers      map[providers.ID]ProviderStats `json:"providers"`
}

// Provider returns the counters for id, zero valued when id has no entry
func (s RouterStats) Provider(id providers.ID) ProviderStats {
	return s.Providers[id]
}

// TotalAttempts sums attempts across providers
func (s RouterStats) TotalAttempts() int64 {
	var total int64
	for _, p := range s.Providers {
		total += p.Attempts
	}
	return total
}

// Outcome classifies a Complete call
type Outcome string

const (
	OutcomeServed    Outcome = "served"
	OutcomeDegraded  Outcome = "degraded"
	OutcomeRejected  Outcome = "rejected"
	OutcomeCancelled Outcome = "cancelled"
)
