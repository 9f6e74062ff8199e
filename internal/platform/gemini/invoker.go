package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/phrazzld/insight-api/internal/config"
	"github.com/phrazzld/insight-api/internal/invoker"
	"github.com/phrazzld/insight-api/internal/redact"
)

// ContentGenerator is the part of the genai client the invoker depends on.
// *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Invoker implements invoker.Invoker using Google's Gemini API.
type Invoker struct {
	// logger is used for structured logging
	logger *slog.Logger

	// client makes the model calls
	client ContentGenerator

	// model is the name of the Gemini model to use
	model string

	// prompts holds one template per supported request type
	prompts *template.Template

	// limiter spaces out calls to stay within the API quota
	limiter *rate.Limiter
}

// NewInvoker creates a Gemini-backed invoker from configuration.
func NewInvoker(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Invoker, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", invoker.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", invoker.ErrInvalidConfig, err)
	}

	return NewInvokerWithClient(client.Models, logger, cfg)
}

// NewInvokerWithClient creates an invoker around an existing client.
func NewInvokerWithClient(client ContentGenerator, logger *slog.Logger, cfg config.LLMConfig) (*Invoker, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if client == nil {
		return nil, fmt.Errorf("%w: client cannot be nil", invoker.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", invoker.ErrInvalidConfig)
	}
	if cfg.RequestsPerMinute <= 0 || cfg.Burst <= 0 {
		return nil, fmt.Errorf("%w: requests per minute and burst must be positive", invoker.ErrInvalidConfig)
	}

	prompts, err := loadPrompts()
	if err != nil {
		return nil, err
	}

	inv := &Invoker{
		logger:  logger.With("component", "gemini_invoker"),
		client:  client,
		model:   cfg.ModelName,
		prompts: prompts,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.Burst),
	}

	inv.logger.Info("gemini invoker ready",
		"model", cfg.ModelName,
		"requests_per_minute", cfg.RequestsPerMinute,
		"request_types", supportedTypes(prompts))
	return inv, nil
}

// Invoke renders the prompt for the request type, calls the model and
// returns its JSON output.
func (i *Invoker) Invoke(ctx context.Context, inv invoker.Invocation) (*invoker.InvocationResult, error) {
	prompt, err := renderPrompt(i.prompts, inv)
	if err != nil {
		return nil, err
	}

	if err := i.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", invoker.ErrTransientFailure, err)
	}

	start := time.Now()
	resp, err := i.client.GenerateContent(ctx, i.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	elapsed := time.Since(start)
	if err != nil {
		msg := redact.Error(err)
		i.logger.WarnContext(ctx, "gemini API call error",
			"error", msg,
			"request_type", inv.RequestType,
			"duration_ms", elapsed.Milliseconds())
		return nil, fmt.Errorf("%w: gemini API call failed: %s", invoker.ErrTransientFailure, msg)
	}

	result, err := extractJSON(resp)
	if err != nil {
		i.logger.WarnContext(ctx, "unusable gemini response",
			"error", err,
			"request_type", inv.RequestType)
		return nil, err
	}

	i.logger.DebugContext(ctx, "gemini API call successful",
		"request_type", inv.RequestType,
		"prompt_length", len(prompt),
		"response_length", len(result),
		"duration_ms", elapsed.Milliseconds())

	return &invoker.InvocationResult{
		Result:           result,
		ProcessingTimeMs: elapsed.Milliseconds(),
	}, nil
}

// extractJSON validates a model response and returns its text as JSON.
func extractJSON(resp *genai.GenerateContentResponse) (json.RawMessage, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", invoker.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: prompt blocked: %s", invoker.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no content generated", invoker.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, invoker.ErrContentBlocked
	}
	if candidate.Content == nil {
		return nil, fmt.Errorf("%w: empty content in response", invoker.ErrInvalidResponse)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}

	text := stripCodeFence(sb.String())
	if text == "" {
		return nil, fmt.Errorf("%w: empty text in response", invoker.ErrInvalidResponse)
	}
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("%w: response is not valid JSON", invoker.ErrInvalidResponse)
	}
	return json.RawMessage(text), nil
}

// stripCodeFence removes a surrounding ```json fence some models add even in
// JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

var _ invoker.Invoker = (*Invoker)(nil)
