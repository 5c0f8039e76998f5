package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/nimbus-copilot/middleware"
	"github.com/upb/nimbus-copilot/services/completion"
	"github.com/upb/nimbus-copilot/services/providers"
	"github.com/upb/nimbus-copilot/utils"
)

// maxRequestBody bounds the JSON body of a completion request
const maxRequestBody = 1 << 20

// CompletionRequest is the JSON body of POST /api/v1/completions. Either
// prompt or messages must be given; prompt follows the history as the newest
// user turn.
type CompletionRequest struct {
	Prompt       string        `json:"prompt,omitempty" validate:"required_without=Messages,omitempty,notblank"`
	Messages     []ChatMessage `json:"messages,omitempty" validate:"omitempty,min=1,max=100,dive"`
	SystemPrompt string        `json:"system_prompt,omitempty"`
	Model        string        `json:"model,omitempty"`
	MaxTokens    *int          `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	Temperature  *float64      `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	Provider     string        `json:"provider,omitempty" validate:"omitempty,oneof=friendli bedrock"`
	TimeoutMs    *int          `json:"timeout_ms,omitempty" validate:"omitempty,gt=0,lte=600000"`
}

// ChatMessage is one turn of conversation history
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required,notblank"`
}

// CompletionResponse is the JSON form of a router result
type CompletionResponse struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	Provider  string  `json:"provider"`
	Model     string  `json:"model"`
	LatencyMs float64 `json:"latency_ms"`
	Success   bool    `json:"success"`
	Degraded  bool    `json:"degraded"`
	Error     string  `json:"error,omitempty"`
}

// CompletionRouter is the part of the completion router the HTTP layer uses
type CompletionRouter interface {
	Complete(ctx context.Context, req completion.Request) completion.Result
	Stats() completion.RouterStats
	ResetStats()
}

// CompletionHandler handles completion and router statistics requests
type CompletionHandler struct {
	router CompletionRouter
	logger *zap.Logger
}

// NewCompletionHandler creates a new CompletionHandler
func NewCompletionHandler(router CompletionRouter, logger *zap.Logger) *CompletionHandler {
	return &CompletionHandler{
		router: router,
		logger: logger,
	}
}

// HandleCompletion handles POST /api/v1/completions. Degraded answers are
// still 200: the body's provider and success fields carry the outcome.
func (h *CompletionHandler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	// Parse request body
	var req CompletionRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))

		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			_ = utils.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large", nil)
			return
		}
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	// Validate request
	if err := utils.ValidateStruct(&req); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	routerReq, err := toRouterRequest(req)
	if err != nil {
		h.logger.Warn("invalid provider preference",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Validation failed", map[string]interface{}{"provider": err.Error()})
		return
	}

	result := h.router.Complete(ctx, routerReq)

	h.logger.Info("completion finished",
		zap.String("request_id", requestID),
		zap.String("completion_id", result.ID.String()),
		zap.String("provider", string(result.Provider)),
		zap.Bool("success", result.Success),
		zap.Duration("latency", result.Latency))

	if err := utils.WriteJSON(w, http.StatusOK, toCompletionResponse(result)); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// HandleStats handles GET /api/v1/router/stats
func (h *CompletionHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if err := utils.WriteOK(w, h.router.Stats()); err != nil {
		h.logger.Error("failed to write stats response", zap.Error(err))
	}
}

// HandleResetStats handles POST /api/v1/router/stats/reset
func (h *CompletionHandler) HandleResetStats(w http.ResponseWriter, r *http.Request) {
	h.router.ResetStats()

	h.logger.Info("router statistics reset via API",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())))

	if err := utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse{Message: "router statistics reset"}); err != nil {
		h.logger.Error("failed to write reset response", zap.Error(err))
	}
}

func toRouterRequest(req CompletionRequest) (completion.Request, error) {
	preference, err := providers.ParseID(req.Provider)
	if err != nil {
		return completion.Request{}, err
	}

	out := completion.Request{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		ModelHint:    req.Model,
		Temperature:  req.Temperature,
		Preference:   preference,
	}
	if len(req.Messages) > 0 {
		out.Messages = make([]providers.Message, len(req.Messages))
		for i, msg := range req.Messages {
			out.Messages[i] = providers.Message{Role: msg.Role, Content: msg.Content}
		}
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	if req.TimeoutMs != nil {
		out.Timeout = time.Duration(*req.TimeoutMs) * time.Millisecond
	}
	return out, nil
}

func toCompletionResponse(result completion.Result) CompletionResponse {
	return CompletionResponse{
		ID:        result.ID.String(),
		Text:      result.Text,
		Provider:  string(result.Provider),
		Model:     result.Model,
		LatencyMs: float64(result.Latency) / float64(time.Millisecond),
		Success:   result.Success,
		Degraded:  result.Degraded(),
		Error:     result.Error,
	}
}
