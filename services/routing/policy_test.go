package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/upb/nimbus-copilot/services/providers"
	"github.com/upb/nimbus-copilot/services/providers/mock"
)

type stubAdapter struct {
	id         providers.ID
	configured bool
}

func (s *stubAdapter) ID() providers.ID { return s.id }
func (s *stubAdapter) Configured() bool { return s.configured }
func (s *stubAdapter) Attempt(context.Context, *providers.Request) (*providers.Completion, error) {
	return &providers.Completion{Text: string(s.id)}, nil
}

func ids(adapters []providers.Adapter) []providers.ID {
	out := make([]providers.ID, len(adapters))
	for i, a := range adapters {
		out[i] = a.ID()
	}
	return out
}

func TestNewPolicy(t *testing.T) {
	tests := []struct {
		name        string
		adapters    []providers.Adapter
		wantChain   []providers.ID
		wantSkipped []providers.ID
	}{
		{
			name: "both configured",
			adapters: []providers.Adapter{
				&stubAdapter{id: providers.Friendli, configured: true},
				&stubAdapter{id: providers.Bedrock, configured: true},
			},
			wantChain: []providers.ID{providers.Friendli, providers.Bedrock},
		},
		{
			name: "primary unconfigured",
			adapters: []providers.Adapter{
				&stubAdapter{id: providers.Friendli, configured: false},
				&stubAdapter{id: providers.Bedrock, configured: true},
			},
			wantChain:   []providers.ID{providers.Bedrock},
			wantSkipped: []providers.ID{providers.Friendli},
		},
		{
			name:      "nothing configured",
			adapters:  []providers.Adapter{&stubAdapter{id: providers.Friendli}, &stubAdapter{id: providers.Bedrock}},
			wantChain: []providers.ID{},
			wantSkipped: []providers.ID{
				providers.Friendli, providers.Bedrock,
			},
		},
		{
			name: "duplicates, nil and mock are ignored",
			adapters: []providers.Adapter{
				&stubAdapter{id: providers.Friendli, configured: true},
				nil,
				&stubAdapter{id: providers.Mock, configured: true},
				&stubAdapter{id: providers.Friendli, configured: true},
			},
			wantChain: []providers.ID{providers.Friendli},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := NewPolicy(zap.NewNop(), mock.NewAdapter(), tt.adapters...)

			assert.Equal(t, tt.wantChain, policy.Providers())
			assert.Equal(t, tt.wantSkipped, policy.Skipped())
			assert.Equal(t, providers.Mock, policy.Fallback().ID())
		})
	}
}

func TestPolicy_Order(t *testing.T) {
	policy := NewPolicy(nil, mock.NewAdapter(),
		&stubAdapter{id: providers.Friendli, configured: true},
		&stubAdapter{id: providers.Bedrock, configured: true},
	)

	tests := []struct {
		name       string
		preference providers.ID
		want       []providers.ID
	}{
		{name: "default order", preference: providers.None, want: []providers.ID{providers.Friendli, providers.Bedrock, providers.Mock}},
		{name: "prefer primary", preference: providers.Friendli, want: []providers.ID{providers.Friendli, providers.Bedrock, providers.Mock}},
		{name: "prefer secondary", preference: providers.Bedrock, want: []providers.ID{providers.Bedrock, providers.Friendli, providers.Mock}},
		{name: "prefer mock keeps mock last", preference: providers.Mock, want: []providers.ID{providers.Friendli, providers.Bedrock, providers.Mock}},
		{name: "unknown preference ignored", preference: providers.ID("openai"), want: []providers.ID{providers.Friendli, providers.Bedrock, providers.Mock}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(policy.Order(tt.preference)))
		})
	}
}

func TestPolicy_OrderDoesNotMutatePolicy(t *testing.T) {
	policy := NewPolicy(zap.NewNop(), mock.NewAdapter(),
		&stubAdapter{id: providers.Friendli, configured: true},
		&stubAdapter{id: providers.Bedrock, configured: true},
	)

	order := policy.Order(providers.Bedrock)
	order[0] = nil

	assert.Equal(t, []providers.ID{providers.Friendli, providers.Bedrock}, policy.Providers())
	assert.Equal(t, []providers.ID{providers.Friendli, providers.Bedrock, providers.Mock}, ids(policy.Order(providers.None)))
}

func TestPolicy_PreferenceForUnconfiguredProvider(t *testing.T) {
	policy := NewPolicy(zap.NewNop(), mock.NewAdapter(),
		&stubAdapter{id: providers.Friendli, configured: true},
		&stubAdapter{id: providers.Bedrock, configured: false},
	)

	assert.False(t, policy.Has(providers.Bedrock))
	assert.True(t, policy.Has(providers.Friendli))
	assert.Equal(t, []providers.ID{providers.Friendli, providers.Mock}, ids(policy.Order(providers.Bedrock)))
}
