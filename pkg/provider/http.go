package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sony/gobreaker"
)

// HTTPProvider is a CompletionProvider backed by an OpenAI-compatible chat
// completion endpoint. Retries (rate limit / transient network) are
// handled by retryablehttp's exponential backoff; a gobreaker circuit
// breaker sits in front of the retrying client so a provider outage trips
// open after repeated failures instead of each caller paying the full
// retry budget against a dead endpoint.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *retryablehttp.Client
	breaker    *gobreaker.CircuitBreaker
}

// HTTPProviderConfig configures an HTTPProvider.
type HTTPProviderConfig struct {
	BaseURL    string
	APIKey     string
	MaxRetries int
	Timeout    time.Duration
}

// NewHTTPProvider builds an HTTPProvider. MaxRetries and Timeout fall back
// to sensible defaults (4 retries, 60s) when zero.
func NewHTTPProvider(cfg HTTPProviderConfig) *HTTPProvider {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.MaxRetries
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = nil

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "completion-provider",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &HTTPProvider{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: client,
		breaker:    breaker,
	}
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete implements CompletionProvider.
func (p *HTTPProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	result, err := p.breaker.Execute(func() (any, error) {
		return p.doComplete(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, NewError(ErrorProvider, "circuit open, provider unavailable", err)
		}
		return nil, err
	}
	return result.(*Response), nil
}

func (p *HTTPProvider) doComplete(ctx context.Context, req Request) (*Response, error) {
	body := chatRequest{Model: req.Model, MaxTokens: req.MaxTokens}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	if req.ResponseSchema != nil {
		body.ResponseFormat = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "structured_response",
				"schema": req.ResponseSchema,
				"strict": true,
			},
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, NewError(ErrorProvider, "encode request", err)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, NewError(ErrorNetwork, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewError(ErrorTimeout, "request timed out", err)
		}
		return nil, NewError(ErrorNetwork, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError(ErrorNetwork, "read response", err)
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return nil, NewError(ErrorRateLimited, "rate limited", fmt.Errorf("status %d", resp.StatusCode))
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, NewError(ErrorAuth, "authentication rejected", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 500 {
		return nil, NewError(ErrorProvider, "provider server error", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, NewError(ErrorProvider, "provider rejected request", fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, NewError(ErrorProvider, "decode response", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, NewError(ErrorProvider, "empty completion", nil)
	}

	return &Response{
		Content:   parsed.Choices[0].Message.Content,
		TokensIn:  parsed.Usage.PromptTokens,
		TokensOut: parsed.Usage.CompletionTokens,
	}, nil
}

// Cancel has no server-side effect for this transport; callers rely on ctx
// cancellation to stop the underlying HTTP request.
func (p *HTTPProvider) Cancel(ctx context.Context, handle Handle) error {
	return ErrUnsupported
}
