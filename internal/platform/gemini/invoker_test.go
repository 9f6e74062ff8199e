package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/phrazzld/insight-api/internal/config"
	"github.com/phrazzld/insight-api/internal/invoker"
)

// mockGenerator implements ContentGenerator for testing
type mockGenerator struct {
	GenerateContentFn func(ctx context.Context, model string, contents []*genai.Content,
		cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

	calls      int
	lastModel  string
	lastPrompt string
	lastConfig *genai.GenerateContentConfig
}

func (m *mockGenerator) GenerateContent(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	cfg *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	m.calls++
	m.lastModel = model
	m.lastConfig = cfg
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		m.lastPrompt = contents[0].Parts[0].Text
	}
	return m.GenerateContentFn(ctx, model, contents, cfg)
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []*genai.Part{{Text: text}}},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func respondWith(resp *genai.GenerateContentResponse, err error) *mockGenerator {
	return &mockGenerator{
		GenerateContentFn: func(context.Context, string, []*genai.Content,
			*genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return resp, err
		},
	}
}

func testConfig() config.LLMConfig {
	return config.LLMConfig{
		GeminiAPIKey:      "test-key",
		ModelName:         "gemini-test",
		RequestsPerMinute: 6000,
		Burst:             10,
	}
}

func newTestInvoker(t *testing.T, client ContentGenerator) *Invoker {
	t.Helper()
	inv, err := NewInvokerWithClient(client, slog.New(slog.NewTextHandler(io.Discard, nil)), testConfig())
	require.NoError(t, err)
	return inv
}

func TestNewInvokerWithClient_Validation(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := respondWith(textResponse(`{}`), nil)

	_, err := NewInvokerWithClient(client, nil, testConfig())
	assert.Error(t, err)

	_, err = NewInvokerWithClient(nil, logger, testConfig())
	assert.ErrorIs(t, err, invoker.ErrInvalidConfig)

	cfg := testConfig()
	cfg.ModelName = ""
	_, err = NewInvokerWithClient(client, logger, cfg)
	assert.ErrorIs(t, err, invoker.ErrInvalidConfig)

	cfg = testConfig()
	cfg.Burst = 0
	_, err = NewInvokerWithClient(client, logger, cfg)
	assert.ErrorIs(t, err, invoker.ErrInvalidConfig)
}

func TestNewInvoker_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.GeminiAPIKey = ""
	_, err := NewInvoker(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
	assert.ErrorIs(t, err, invoker.ErrInvalidConfig)
}

func TestInvoke_Success(t *testing.T) {
	t.Parallel()

	client := respondWith(textResponse(`{"priority":"high","confidence":0.8,"reasoning":"due today"}`), nil)
	inv := newTestInvoker(t, client)

	res, err := inv.Invoke(context.Background(), invoker.Invocation{
		RequestType: "priority_prediction",
		OwnerID:     "owner-1",
		Payload:     json.RawMessage(`{"title":"File taxes"}`),
		Metadata:    map[string]string{"timezone": "Europe/Berlin"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"priority":"high","confidence":0.8,"reasoning":"due today"}`, string(res.Result))
	assert.GreaterOrEqual(t, res.ProcessingTimeMs, int64(0))

	assert.Equal(t, 1, client.calls)
	assert.Equal(t, "gemini-test", client.lastModel)
	assert.Equal(t, "application/json", client.lastConfig.ResponseMIMEType)
	assert.Contains(t, client.lastPrompt, `{"title":"File taxes"}`)
	assert.Contains(t, client.lastPrompt, "timezone: Europe/Berlin")
}

func TestInvoke_EveryRequestTypeHasAPrompt(t *testing.T) {
	t.Parallel()

	client := respondWith(textResponse(`{"ok":true}`), nil)
	inv := newTestInvoker(t, client)

	for _, requestType := range []string{
		"pattern_analysis",
		"priority_prediction",
		"completion_forecast",
		"notification_context",
		"recommendation_generation",
	} {
		t.Run(requestType, func(t *testing.T) {
			_, err := inv.Invoke(context.Background(), invoker.Invocation{RequestType: requestType, OwnerID: "o"})
			assert.NoError(t, err)
		})
	}
}

func TestInvoke_UnknownRequestType(t *testing.T) {
	t.Parallel()

	client := respondWith(textResponse(`{}`), nil)
	inv := newTestInvoker(t, client)

	_, err := inv.Invoke(context.Background(), invoker.Invocation{RequestType: "horoscope", OwnerID: "o"})
	assert.ErrorIs(t, err, invoker.ErrUnknownRequestType)
	assert.True(t, invoker.IsPermanent(err))
	assert.Equal(t, 0, client.calls)
}

func TestInvoke_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		resp      *genai.GenerateContentResponse
		apiErr    error
		wantErr   error
		permanent bool
	}{
		{
			name:      "api error is transient",
			apiErr:    errors.New("429 resource exhausted"),
			wantErr:   invoker.ErrTransientFailure,
			permanent: false,
		},
		{
			name:      "nil response",
			wantErr:   invoker.ErrInvalidResponse,
			permanent: true,
		},
		{
			name:      "no candidates",
			resp:      &genai.GenerateContentResponse{},
			wantErr:   invoker.ErrInvalidResponse,
			permanent: true,
		},
		{
			name: "safety block",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				FinishReason: genai.FinishReasonSafety,
			}}},
			wantErr:   invoker.ErrContentBlocked,
			permanent: true,
		},
		{
			name: "prompt blocked",
			resp: &genai.GenerateContentResponse{
				PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: "SAFETY"},
			},
			wantErr:   invoker.ErrContentBlocked,
			permanent: true,
		},
		{
			name:      "not json",
			resp:      textResponse("Sure! Here are some patterns."),
			wantErr:   invoker.ErrInvalidResponse,
			permanent: true,
		},
		{
			name:      "empty text",
			resp:      textResponse("   "),
			wantErr:   invoker.ErrInvalidResponse,
			permanent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := newTestInvoker(t, respondWith(tt.resp, tt.apiErr))
			_, err := inv.Invoke(context.Background(), invoker.Invocation{RequestType: "pattern_analysis", OwnerID: "o"})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.permanent, invoker.IsPermanent(err))
		})
	}
}

func TestInvoke_RedactsAPIError(t *testing.T) {
	t.Parallel()

	apiErr := errors.New("400 bad request: https://generativelanguage.googleapis.com/v1?key=AIzaSyA1234567890abcdefghijklmnopqrstu")
	inv := newTestInvoker(t, respondWith(nil, apiErr))

	_, err := inv.Invoke(context.Background(), invoker.Invocation{RequestType: "pattern_analysis", OwnerID: "o"})
	require.Error(t, err)
	assert.ErrorIs(t, err, invoker.ErrTransientFailure)
	assert.NotContains(t, err.Error(), "AIzaSyA1234567890")
}

func TestInvoke_CancelledWhileRateLimited(t *testing.T) {
	t.Parallel()

	client := respondWith(textResponse(`{}`), nil)
	inv := newTestInvoker(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := inv.Invoke(ctx, invoker.Invocation{RequestType: "pattern_analysis", OwnerID: "o"})
	assert.ErrorIs(t, err, invoker.ErrTransientFailure)
	assert.Equal(t, 0, client.calls)
}

func TestStripCodeFence(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`  {"a":1} `))
}

func TestRenderPrompt_EmptyPayload(t *testing.T) {
	t.Parallel()

	tmpl, err := loadPrompts()
	require.NoError(t, err)

	prompt, err := renderPrompt(tmpl, invoker.Invocation{RequestType: "completion_forecast"})
	require.NoError(t, err)
	assert.Contains(t, prompt, "{}")
	assert.False(t, strings.Contains(prompt, "<no value>"))
}
