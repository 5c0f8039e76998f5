package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"

	"github.com/upb/nimbus-copilot/services/providers"
)

const (
	defaultRegion    = "us-east-1"
	defaultModel     = "anthropic.claude-3-sonnet-20240229-v1:0"
	anthropicVersion = "bedrock-2023-05-31"
)

// authErrorCodes are the Bedrock API error codes that mean the credentials were rejected
var authErrorCodes = map[string]bool{
	"AccessDeniedException":       true,
	"UnrecognizedClientException": true,
	"ExpiredTokenException":       true,
	"InvalidSignatureException":   true,
}

// Config holds AWS Bedrock adapter configuration
type Config struct {
	Enabled bool
	Region  string
	Model   string

	// AccessKey and SecretKey select static credentials when both are set
	AccessKey string
	SecretKey string

	// UseDefaultChain allows the standard AWS credential chain (env, profile,
	// instance role) when no static keys are given
	UseDefaultChain bool
}

// invoker is the subset of the bedrockruntime client used by the adapter
type invoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Adapter implements providers.Adapter for AWS Bedrock using AWS SDK v2
type Adapter struct {
	config Config
	client invoker
}

// Option configures an Adapter
type Option func(*Adapter)

// WithInvoker replaces the Bedrock runtime client
func WithInvoker(client invoker) Option {
	return func(a *Adapter) {
		a.client = client
	}
}

// NewAdapter creates a new Bedrock adapter. The AWS SDK client is only built
// when the adapter is configured; loading the SDK config does not touch the
// network.
func NewAdapter(ctx context.Context, cfg Config, opts ...Option) (*Adapter, error) {
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	adapter := &Adapter{config: cfg}
	for _, opt := range opts {
		opt(adapter)
	}

	if adapter.client != nil || !adapter.credentialsPresent() || !cfg.Enabled {
		return adapter, nil
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		// Fallback across providers is the router's job
		awsconfig.WithRetryMaxAttempts(1),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for Bedrock (region: %s): %w", cfg.Region, err)
	}

	adapter.client = bedrockruntime.NewFromConfig(awsCfg)
	return adapter, nil
}

// ID returns the provider identifier
func (a *Adapter) ID() providers.ID {
	return providers.Bedrock
}

// Configured reports whether the adapter is enabled and has credentials
func (a *Adapter) Configured() bool {
	return a.config.Enabled && a.credentialsPresent() && a.client != nil
}

func (a *Adapter) credentialsPresent() bool {
	if a.config.AccessKey != "" && a.config.SecretKey != "" {
		return true
	}
	return a.config.UseDefaultChain
}

// Region returns the AWS region the adapter talks to
func (a *Adapter) Region() string {
	return a.config.Region
}

// Attempt performs one InvokeModel call with the Anthropic messages body
func (a *Adapter) Attempt(ctx context.Context, req *providers.Request) (*providers.Completion, error) {
	if !a.Configured() {
		return nil, providers.ErrUnconfigured(a.ID(), "AWS credentials")
	}

	model := req.Model
	if model == "" {
		model = a.config.Model
	}

	body, err := json.Marshal(buildRequestBody(req))
	if err != nil {
		return nil, providers.NewAdapterError(a.ID(), providers.KindTransport, "failed to marshal request", 0, err)
	}

	output, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, a.classifyError(ctx, err)
	}

	text, usage, err := parseResponseBody(output.Body)
	if err != nil {
		return nil, providers.NewAdapterError(a.ID(), providers.KindInvalidResponse, "failed to parse response", 0, err)
	}

	return &providers.Completion{
		Text:  text,
		Model: model,
		Usage: usage,
	}, nil
}

// classifyError maps SDK errors onto the adapter error taxonomy
func (a *Adapter) classifyError(ctx context.Context, err error) error {
	if ctxErr := providers.FromContext(ctx, a.ID(), err); ctxErr != nil {
		return ctxErr
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		kind := providers.KindTransport
		if authErrorCodes[apiErr.ErrorCode()] {
			kind = providers.KindAuth
		}
		return providers.NewAdapterError(a.ID(), kind, apiErr.ErrorCode(), 0, err)
	}

	return providers.NewAdapterError(a.ID(), providers.KindTransport, "bedrock API error", 0, err)
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float64            `json:"temperature"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// buildRequestBody builds the Claude messages body. System turns are joined
// and folded into the first user turn.
func buildRequestBody(req *providers.Request) *anthropicRequest {
	var system []string
	messages := make([]anthropicMessage, 0, len(req.Messages)+1)
	for _, turn := range req.Conversation() {
		if turn.Role == providers.RoleSystem {
			system = append(system, turn.Content)
			continue
		}
		messages = append(messages, anthropicMessage{Role: turn.Role, Content: turn.Content})
	}

	if len(system) > 0 {
		instruction := strings.Join(system, "\n\n")
		if len(messages) > 0 && messages[0].Role == providers.RoleUser {
			messages[0].Content = instruction + "\n\n" + messages[0].Content
		} else {
			messages = append([]anthropicMessage{{Role: providers.RoleUser, Content: instruction}}, messages...)
		}
	}

	return &anthropicRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		Messages:         messages,
	}
}

// parseResponseBody extracts the generated text and usage from a Claude response
func parseResponseBody(body []byte) (string, providers.Usage, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", providers.Usage{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "" || block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", providers.Usage{}, errors.New("response content is empty")
	}

	return text, providers.Usage{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}
