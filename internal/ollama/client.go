package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/gaspardpetit/llmgate/internal/logx"
)

// ErrUnavailable marks failures talking to Ollama: transport errors, timeouts
// and non-2xx replies. Any other error returned by Generate is internal.
var ErrUnavailable = errors.New("ollama unavailable")

const maxReplyBytes = 64 << 20

// GenerateRequest is the body sent to /api/generate.
type GenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// Client is a tiny HTTP client for talking to local Ollama.
type Client struct {
	URL        string
	Timeout    time.Duration
	httpClient *http.Client
}

// New returns a client posting to the generate endpoint at url. Every call is
// bounded by timeout.
func New(url string, timeout time.Duration) *Client {
	return &Client{URL: url, Timeout: timeout, httpClient: &http.Client{Timeout: timeout}}
}

// Generate runs one non-streaming generation and returns the reply's
// "response" field, or "" when the field is absent. Cancellation of ctx is not
// propagated: the call runs until it completes or the client timeout expires.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.Timeout)
	defer cancel()

	b, err := json.Marshal(GenerateRequest{Model: model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("encode generate request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(b))
	if err != nil {
		return "", unavailable(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if id := chiMiddleware.GetReqID(ctx); id != "" {
		httpReq.Header.Set(chiMiddleware.RequestIDHeader, id)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", unavailable(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return "", unavailable(fmt.Errorf("read reply: %w", err))
	}
	logx.Log.Debug().Str("model", model).Int("status", resp.StatusCode).Dur("duration", time.Since(start)).Int("bytes", len(body)).Msg("ollama reply")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", unavailable(&StatusError{Code: resp.StatusCode, URL: c.URL, Body: snippet(body)})
	}
	return extractResponse(body)
}

func extractResponse(body []byte) (string, error) {
	var reply map[string]json.RawMessage
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", fmt.Errorf("decode ollama reply: %w", err)
	}
	if reply == nil {
		return "", errors.New("decode ollama reply: not a JSON object")
	}
	raw, ok := reply["response"]
	if !ok || string(raw) == "null" {
		return "", nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", fmt.Errorf("decode ollama reply field response: %w", err)
	}
	return text, nil
}

// StatusError reports a non-2xx reply from Ollama.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%d %s for url: %s", e.Code, http.StatusText(e.Code), e.URL)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

type unavailableError struct{ err error }

func unavailable(err error) error { return &unavailableError{err: err} }

func (e *unavailableError) Error() string { return e.err.Error() }

func (e *unavailableError) Unwrap() []error { return []error{ErrUnavailable, e.err} }

func snippet(b []byte) string {
	const limit = 256
	b = bytes.TrimSpace(b)
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
