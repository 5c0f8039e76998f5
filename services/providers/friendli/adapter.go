package friendli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/upb/nimbus-copilot/services/providers"
)

const (
	defaultBaseURL = "https://api.friendli.ai/v1"
	defaultModel   = "meta-llama-3.1-70b-instruct"

	// TeamHeader selects the Friendli team billed for a request
	TeamHeader = "X-Friendli-Team"

	// maxErrorBody bounds how much of an error payload ends up in logs
	maxErrorBody = 512
)

// Adapter implements providers.Adapter for the Friendli.ai
// OpenAI-compatible chat completions API
type Adapter struct {
	config     providers.Config
	httpClient *http.Client
}

// Option configures an Adapter
type Option func(*Adapter)

// WithHTTPClient overrides the HTTP client used for outbound calls
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) {
		a.httpClient = client
	}
}

// NewAdapter creates a new Friendli adapter
func NewAdapter(config providers.Config, opts ...Option) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.Model == "" {
		config.Model = defaultModel
	}

	adapter := &Adapter{
		config: config,
		// No client-level timeout: every call is bounded by the caller's context
		httpClient: &http.Client{},
	}

	for _, opt := range opts {
		opt(adapter)
	}

	return adapter
}

// ID returns the provider identifier
func (a *Adapter) ID() providers.ID {
	return providers.Friendli
}

// Configured reports whether the adapter is enabled and has a token
func (a *Adapter) Configured() bool {
	return a.config.Enabled && a.config.APIKey != ""
}

// Attempt performs one chat completion call
func (a *Adapter) Attempt(ctx context.Context, req *providers.Request) (*providers.Completion, error) {
	if !a.Configured() {
		return nil, providers.ErrUnconfigured(a.ID(), "FRIENDLI_TOKEN")
	}

	model := req.Model
	if model == "" {
		model = a.config.Model
	}

	reqBody, err := json.Marshal(a.buildChatRequest(req, model))
	if err != nil {
		return nil, providers.NewAdapterError(a.ID(), providers.KindTransport, "failed to marshal request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewAdapterError(a.ID(), providers.KindTransport, "failed to create request", 0, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := providers.FromContext(ctx, a.ID(), err); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, providers.NewAdapterError(a.ID(), providers.KindTransport, "HTTP request failed", 0, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if ctxErr := providers.FromContext(ctx, a.ID(), err); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, providers.NewAdapterError(a.ID(), providers.KindTransport, "failed to read response", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, providers.NewAdapterError(a.ID(), providers.KindInvalidResponse, "failed to unmarshal response", httpResp.StatusCode, err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, providers.NewAdapterError(a.ID(), providers.KindInvalidResponse, "response has no choices", httpResp.StatusCode, nil)
	}

	text := chatResp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return nil, providers.NewAdapterError(a.ID(), providers.KindInvalidResponse, "response content is empty", httpResp.StatusCode, nil)
	}

	if chatResp.Model != "" {
		model = chatResp.Model
	}

	return &providers.Completion{
		Text:  text,
		Model: model,
		Usage: chatResp.Usage,
	}, nil
}

// buildChatRequest converts the adapter request to the wire format. The
// conversation is sent as-is: system prompt, history, then the prompt.
func (a *Adapter) buildChatRequest(req *providers.Request, model string) *chatRequest {
	turns := req.Conversation()
	messages := make([]chatMessage, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, chatMessage{Role: turn.Role, Content: turn.Content})
	}

	chatReq := &chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: &req.Temperature,
	}

	if req.MaxTokens > 0 {
		chatReq.MaxTokens = &req.MaxTokens
	}

	return chatReq
}

// handleErrorResponse maps non-200 responses to adapter errors
func (a *Adapter) handleErrorResponse(statusCode int, body []byte) error {
	kind := providers.KindTransport
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		kind = providers.KindAuth
	}

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewAdapterError(a.ID(), kind, fmt.Sprintf("unexpected status %d: %s", statusCode, truncate(string(body), maxErrorBody)), statusCode, nil)
	}

	return providers.NewAdapterError(a.ID(), kind, errResp.Error.Message, statusCode, nil)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Friendli wire types (OpenAI-compatible)

// chatRequest is the body of POST /chat/completions
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

// chatMessage is one conversation turn
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is a non-streaming chat completion
type chatResponse struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"`
	Created int64           `json:"created"`
	Model   string          `json:"model"`
	Choices []chatChoice    `json:"choices"`
	Usage   providers.Usage `json:"usage"`
}

// chatChoice is one generated alternative
type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// errorResponse is the error envelope returned with non-200 statuses
type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}
