package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teslashibe/go-stuffbot/internal/httpc"
)

const providerGemini = "gemini"

// Gemini asks Google's Gemini generateContent API for a structured command.
type Gemini struct {
	config *Config
	http   *http.Client
	system string
	logger *slog.Logger
}

// NewGemini creates a Gemini oracle.
func NewGemini(opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	cfg.Model = "gemini-2.0-flash"
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, WrapError(providerGemini, ErrNoAPIKey)
	}

	return &Gemini{
		config: cfg,
		http:   httpc.NewClient(cfg.Timeout),
		system: SystemPrompt(cfg.MaxLinear, cfg.MaxAngular),
		logger: cfg.Logger.With("component", "decision.gemini"),
	}, nil
}

// Name implements Oracle.
func (g *Gemini) Name() string { return providerGemini }

// Decide sends the image and perception summary and parses the reply.
func (g *Gemini) Decide(ctx context.Context, req *Request) (*MovementCommand, error) {
	if len(req.Image) == 0 {
		return nil, WrapError(providerGemini, ErrNoImage)
	}
	start := time.Now()

	body, err := json.Marshal(g.buildPayload(req))
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimSuffix(g.config.BaseURL, "/"), g.config.Model, url.QueryEscape(g.config.APIKey))

	data, err := httpc.Send(ctx, g.http, http.MethodPost, endpoint,
		map[string]string{"Content-Type": "application/json"}, body)
	if err != nil {
		return nil, g.parseError(err)
	}

	var result geminiResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, WrapError(providerGemini, fmt.Errorf("decode response: %w", err))
	}
	if result.Error.Message != "" {
		return nil, &APIError{
			StatusCode: result.Error.Code,
			Message:    result.Error.Message,
			Provider:   providerGemini,
		}
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, WrapError(providerGemini, fmt.Errorf("%w: no response content", ErrInvalidResponse))
	}

	cmd, err := ParseCommand(result.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}

	g.logger.Debug("decision",
		"tick", req.Tick,
		"next_mode", cmd.NextMode.String(),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return cmd, nil
}

func (g *Gemini) buildPayload(req *Request) map[string]any {
	contents := make([]map[string]any, 0, 2*len(req.History)+1)

	for _, ex := range req.History {
		reply, _ := json.Marshal(ex.Command)
		contents = append(contents,
			map[string]any{"role": "user", "parts": []map[string]any{{"text": ex.Prompt}}},
			map[string]any{"role": "model", "parts": []map[string]any{{"text": string(reply)}}},
		)
	}

	contents = append(contents, map[string]any{
		"role": "user",
		"parts": []map[string]any{
			{"text": UserPrompt(req)},
			{"inline_data": map[string]string{
				"mime_type": "image/jpeg",
				"data":      encodeBase64(req.Image),
			}},
		},
	})

	return map[string]any{
		"systemInstruction": map[string]any{
			"parts": []map[string]any{{"text": g.system}},
		},
		"contents": contents,
		"generationConfig": map[string]any{
			"temperature":      g.config.Temperature,
			"maxOutputTokens":  g.config.MaxTokens,
			"responseMimeType": "application/json",
			"responseSchema":   geminiSchema(),
		},
	}
}

// Close releases resources.
func (g *Gemini) Close() error {
	g.http.CloseIdleConnections()
	return nil
}

// parseError turns an httpc.StatusError into an APIError.
func (g *Gemini) parseError(err error) error {
	var se *httpc.StatusError
	if !errors.As(err, &se) {
		return WrapError(providerGemini, err)
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}

	message := se.Body
	code := ""
	if json.Unmarshal([]byte(se.Body), &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = errResp.Error.Status
	}

	return &APIError{
		StatusCode: se.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   providerGemini,
	}
}

// geminiResponse is the Gemini API response format.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Verify Gemini implements Oracle at compile time.
var _ Oracle = (*Gemini)(nil)
