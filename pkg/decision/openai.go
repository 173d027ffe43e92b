package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-stuffbot/internal/httpc"
)

const providerOpenAI = "openai"

// GeminiOpenAIBaseURL is Gemini's OpenAI-compatible endpoint.
const GeminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

// OpenAI talks to any OpenAI-compatible chat completions API with vision
// support (OpenAI, Gemini's compatibility endpoint, vLLM, Ollama).
type OpenAI struct {
	baseURL string
	config  *Config
	http    *http.Client
	system  string
	logger  *slog.Logger
}

// NewOpenAI creates an OpenAI-compatible oracle.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = "https://api.openai.com/v1"
	cfg.Model = "gpt-4o-mini"
	cfg.Apply(opts...)

	return &OpenAI{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		config:  cfg,
		http:    httpc.NewClient(cfg.Timeout),
		system:  SystemPrompt(cfg.MaxLinear, cfg.MaxAngular),
		logger:  cfg.Logger.With("component", "decision.openai"),
	}, nil
}

// Name implements Oracle.
func (c *OpenAI) Name() string { return providerOpenAI }

// Decide sends the image and perception summary and parses the reply.
func (c *OpenAI) Decide(ctx context.Context, req *Request) (*MovementCommand, error) {
	if len(req.Image) == 0 {
		return nil, WrapError(providerOpenAI, ErrNoImage)
	}
	start := time.Now()

	body, err := json.Marshal(c.buildPayload(req))
	if err != nil {
		return nil, WrapError(providerOpenAI, err)
	}

	headers := map[string]string{"Content-Type": "application/json"}
	if c.config.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.config.APIKey
	}

	data, err := httpc.Send(ctx, c.http, http.MethodPost, c.baseURL+"/chat/completions", headers, body)
	if err != nil {
		return nil, c.parseError(err)
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("decode response: %w", err))
	}
	if len(result.Choices) == 0 {
		return nil, WrapError(providerOpenAI, fmt.Errorf("%w: no choices returned", ErrInvalidResponse))
	}

	cmd, err := ParseCommand(result.Choices[0].Message.Content)
	if err != nil {
		return nil, WrapError(providerOpenAI, err)
	}

	c.logger.Debug("decision",
		"tick", req.Tick,
		"next_mode", cmd.NextMode.String(),
		"tokens", result.Usage.TotalTokens,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return cmd, nil
}

func (c *OpenAI) buildPayload(req *Request) map[string]any {
	messages := make([]map[string]any, 0, 2*len(req.History)+2)
	messages = append(messages, map[string]any{"role": "system", "content": c.system})

	for _, ex := range req.History {
		reply, _ := json.Marshal(ex.Command)
		messages = append(messages,
			map[string]any{"role": "user", "content": ex.Prompt},
			map[string]any{"role": "assistant", "content": string(reply)},
		)
	}

	messages = append(messages, map[string]any{
		"role": "user",
		"content": []map[string]any{
			{"type": "text", "text": UserPrompt(req)},
			{"type": "image_url", "image_url": map[string]string{
				"url": "data:image/jpeg;base64," + encodeBase64(req.Image),
			}},
		},
	})

	return map[string]any{
		"model":       c.config.Model,
		"messages":    messages,
		"max_tokens":  c.config.MaxTokens,
		"temperature": c.config.Temperature,
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "movement_command",
				"strict": true,
				"schema": jsonSchema(),
			},
		},
	}
}

// Close releases resources.
func (c *OpenAI) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// parseError turns an httpc.StatusError into an APIError.
func (c *OpenAI) parseError(err error) error {
	var se *httpc.StatusError
	if !errors.As(err, &se) {
		return WrapError(providerOpenAI, err)
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := se.Body
	code := ""
	if json.Unmarshal([]byte(se.Body), &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = errResp.Error.Code
	}

	return &APIError{
		StatusCode: se.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   providerOpenAI,
	}
}

// chatCompletionResponse is the OpenAI chat completion response format.
type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Verify OpenAI implements Oracle at compile time.
var _ Oracle = (*OpenAI)(nil)
