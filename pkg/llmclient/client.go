// Package llmclient implements the LLM call contract of spec §6.6: an
// OpenAI-chat-completions-shaped HTTP request with exponential backoff,
// a raised rate-limit floor on 429, and truncated 4xx bodies surfaced in
// the error. It is the only component in this module that talks to the
// model; the guidance initializer and proposer are its only callers.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/asashepard/contexttune/pkg/version"
)

// Message is one entry in a chat-completions request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the wire shape of a chat-completions call (spec §6.6).
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
}

type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Usage reports token accounting for a single completion call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Result is a completed chat-completions call: the text of
// choices[0].message.content plus token usage.
type Result struct {
	Text  string
	Usage Usage
}

// StatusError carries an HTTP status code and a truncated response body,
// per spec §6.6 ("4xx status codes surface the response body truncated to
// ~1 KiB").
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm endpoint returned HTTP %d: %s", e.StatusCode, e.Body)
}

const maxErrorBodyBytes = 1024

// rateLimitFloor is the minimum wait enforced after a 429, per spec §6.6
// ("rate-limit (429) extends the minimum wait to 10 s").
const rateLimitFloor = 10 * time.Second

// Client calls a single OpenAI-compatible chat-completions endpoint.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client

	// MinAttempts is the minimum number of attempts made before giving up
	// (spec §6.6: "≥4 attempts").
	MinAttempts int
	// MaxBackoff caps the exponential backoff between attempts.
	MaxBackoff time.Duration
}

// NewClient builds a Client with sane defaults.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		HTTPClient:  &http.Client{},
		MinAttempts: 4,
		MaxBackoff:  30 * time.Second,
	}
}

// ChatCompletion issues req against the endpoint, retrying transient
// failures with exponential backoff. A 429 response waits at least
// rateLimitFloor before the next attempt, and a non-429 4xx is treated as
// permanent once MinAttempts have been made.
func (c *Client) ChatCompletion(ctx context.Context, req Request, timeout time.Duration) (Result, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = c.MaxBackoff
	bo.Reset()

	var lastErr error
	for attempt := 1; ; attempt++ {
		result, err := c.doOnce(callCtx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var statusErr *StatusError
		rateLimited := errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests
		clientErr := errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 && !rateLimited

		if clientErr && attempt >= c.MinAttempts {
			return Result{}, fmt.Errorf("llm call failed permanently after %d attempts: %w", attempt, err)
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			wait = bo.MaxInterval
		}
		if rateLimited && wait < rateLimitFloor {
			wait = rateLimitFloor
		}

		select {
		case <-callCtx.Done():
			return Result{}, fmt.Errorf("llm call cancelled after %d attempts: %w", attempt, callCtx.Err())
		case <-time.After(wait):
		}

		if attempt+1 > c.MinAttempts*3 {
			// Backstop against a pathological endpoint that always 5xx's:
			// never retry forever.
			return Result{}, fmt.Errorf("llm call giving up after %d attempts: %w", attempt, lastErr)
		}
	}
}

func (c *Client) doOnce(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.Full())
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("http call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		limited := io.LimitReader(resp.Body, maxErrorBodyBytes)
		b, _ := io.ReadAll(limited)
		return Result{}, &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	var parsed response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Result{}, fmt.Errorf("llm response had no choices")
	}

	return Result{
		Text: parsed.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}, nil
}
