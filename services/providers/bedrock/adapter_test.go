package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/nimbus-copilot/services/providers"
)

// fakeInvoker records the last request and replays a canned response
type fakeInvoker struct {
	lastInput *bedrockruntime.InvokeModelInput
	body      []byte
	err       error
	block     bool
}

func (f *fakeInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.lastInput = params
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: f.body}, nil
}

func newTestAdapter(t *testing.T, inv *fakeInvoker) *Adapter {
	t.Helper()
	adapter, err := NewAdapter(context.Background(), Config{
		Enabled:   true,
		AccessKey: "AKIATEST",
		SecretKey: "secret",
	}, WithInvoker(inv))
	require.NoError(t, err)
	return adapter
}

func TestNewAdapter_Defaults(t *testing.T) {
	adapter, err := NewAdapter(context.Background(), Config{})
	require.NoError(t, err)

	assert.Equal(t, providers.Bedrock, adapter.ID())
	assert.Equal(t, defaultRegion, adapter.Region())
	assert.Equal(t, defaultModel, adapter.config.Model)
	assert.False(t, adapter.Configured())
}

func TestAdapter_Configured(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   bool
	}{
		{name: "static keys", config: Config{Enabled: true, AccessKey: "a", SecretKey: "s"}, want: true},
		{name: "default chain", config: Config{Enabled: true, UseDefaultChain: true}, want: true},
		{name: "access key without secret", config: Config{Enabled: true, AccessKey: "a"}, want: false},
		{name: "no credentials", config: Config{Enabled: true}, want: false},
		{name: "disabled", config: Config{Enabled: false, AccessKey: "a", SecretKey: "s"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := NewAdapter(context.Background(), tt.config, WithInvoker(&fakeInvoker{}))
			require.NoError(t, err)
			assert.Equal(t, tt.want, adapter.Configured())
		})
	}
}

func TestAdapter_Attempt(t *testing.T) {
	inv := &fakeInvoker{
		body: []byte(`{"content":[{"type":"text","text":"Enable Cost Explorer."}],"usage":{"input_tokens":12,"output_tokens":4}}`),
	}
	adapter := newTestAdapter(t, inv)

	completion, err := adapter.Attempt(context.Background(), &providers.Request{
		Prompt:       "How do I see my spend?",
		SystemPrompt: "You explain AWS bills.",
		MaxTokens:    512,
		Temperature:  0.5,
	})
	require.NoError(t, err)

	assert.Equal(t, "Enable Cost Explorer.", completion.Text)
	assert.Equal(t, defaultModel, completion.Model)
	assert.Equal(t, 16, completion.Usage.TotalTokens)

	require.NotNil(t, inv.lastInput)
	assert.Equal(t, defaultModel, aws.ToString(inv.lastInput.ModelId))

	var sent anthropicRequest
	require.NoError(t, json.Unmarshal(inv.lastInput.Body, &sent))
	assert.Equal(t, anthropicVersion, sent.AnthropicVersion)
	assert.Equal(t, 512, sent.MaxTokens)
	require.Len(t, sent.Messages, 1)
	assert.Equal(t, "You explain AWS bills.\n\nHow do I see my spend?", sent.Messages[0].Content)
}

func TestAdapter_Attempt_ModelHint(t *testing.T) {
	inv := &fakeInvoker{body: []byte(`{"content":[{"text":"ok"}]}`)}
	adapter := newTestAdapter(t, inv)

	completion, err := adapter.Attempt(context.Background(), &providers.Request{
		Prompt: "hi",
		Model:  "anthropic.claude-3-haiku-20240307-v1:0",
	})
	require.NoError(t, err)
	assert.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", completion.Model)
	assert.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", aws.ToString(inv.lastInput.ModelId))
}

func TestBuildRequestBody_Conversation(t *testing.T) {
	history := []providers.Message{
		{Role: providers.RoleUser, Content: "List my buckets"},
		{Role: providers.RoleAssistant, Content: "logs, assets"},
	}

	tests := []struct {
		name string
		req  *providers.Request
		want []anthropicMessage
	}{
		{
			name: "history then prompt",
			req:  &providers.Request{Messages: history, Prompt: "Which is largest?"},
			want: []anthropicMessage{
				{Role: "user", Content: "List my buckets"},
				{Role: "assistant", Content: "logs, assets"},
				{Role: "user", Content: "Which is largest?"},
			},
		},
		{
			name: "system turns fold into first user turn",
			req: &providers.Request{
				SystemPrompt: "Be brief.",
				Messages:     append([]providers.Message{{Role: providers.RoleSystem, Content: "Use USD."}}, history...),
			},
			want: []anthropicMessage{
				{Role: "user", Content: "Be brief.\n\nUse USD.\n\nList my buckets"},
				{Role: "assistant", Content: "logs, assets"},
			},
		},
		{
			name: "system turn before assistant turn gets its own user turn",
			req: &providers.Request{
				SystemPrompt: "Be brief.",
				Messages:     []providers.Message{{Role: providers.RoleAssistant, Content: "Hello"}},
				Prompt:       "hi",
			},
			want: []anthropicMessage{
				{Role: "user", Content: "Be brief."},
				{Role: "assistant", Content: "Hello"},
				{Role: "user", Content: "hi"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildRequestBody(tt.req).Messages)
		})
	}
}

func TestBuildRequestBody_DoesNotMutateHistory(t *testing.T) {
	history := []providers.Message{{Role: providers.RoleUser, Content: "List my buckets"}}
	buildRequestBody(&providers.Request{SystemPrompt: "Be brief.", Messages: history})
	assert.Equal(t, "List my buckets", history[0].Content)
}

func TestAdapter_Attempt_ZeroTemperature(t *testing.T) {
	inv := &fakeInvoker{body: []byte(`{"content":[{"text":"ok"}]}`)}
	_, err := newTestAdapter(t, inv).Attempt(context.Background(), &providers.Request{Prompt: "hi", MaxTokens: 10})
	require.NoError(t, err)

	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal(inv.lastInput.Body, &sent))
	assert.Contains(t, sent, "temperature")
	assert.EqualValues(t, 0, sent["temperature"])
}

func TestAdapter_Attempt_Errors(t *testing.T) {
	tests := []struct {
		name     string
		inv      *fakeInvoker
		wantKind providers.ErrorKind
	}{
		{
			name:     "access denied",
			inv:      &fakeInvoker{err: &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "denied"}},
			wantKind: providers.KindAuth,
		},
		{
			name:     "throttled",
			inv:      &fakeInvoker{err: &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}},
			wantKind: providers.KindTransport,
		},
		{
			name:     "network failure",
			inv:      &fakeInvoker{err: errors.New("dial tcp: connection refused")},
			wantKind: providers.KindTransport,
		},
		{
			name:     "malformed body",
			inv:      &fakeInvoker{body: []byte(`not json`)},
			wantKind: providers.KindInvalidResponse,
		},
		{
			name:     "empty content",
			inv:      &fakeInvoker{body: []byte(`{"content":[]}`)},
			wantKind: providers.KindInvalidResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestAdapter(t, tt.inv).Attempt(context.Background(), &providers.Request{Prompt: "hi", MaxTokens: 10})
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, providers.KindOf(err))
		})
	}
}

func TestAdapter_Attempt_Timeout(t *testing.T) {
	adapter := newTestAdapter(t, &fakeInvoker{block: true})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := adapter.Attempt(ctx, &providers.Request{Prompt: "hi", MaxTokens: 10})
	require.Error(t, err)
	assert.Equal(t, providers.KindTimeout, providers.KindOf(err))
}

func TestAdapter_Attempt_Unconfigured(t *testing.T) {
	inv := &fakeInvoker{}
	adapter, err := NewAdapter(context.Background(), Config{Enabled: true}, WithInvoker(inv))
	require.NoError(t, err)

	_, err = adapter.Attempt(context.Background(), &providers.Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, providers.KindUnconfigured, providers.KindOf(err))
	assert.Nil(t, inv.lastInput, "unconfigured adapter must not call Bedrock")
}
