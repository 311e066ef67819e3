// Package llm talks to an OpenAI-compatible chat-completion endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Protocol-Lattice/lattice-pymaker/src/convo"
)

const (
	DefaultEndpoint    = "https://router.huggingface.co/v1/chat/completions"
	DefaultModel       = "Qwen/Qwen2.5-Coder-7B-Instruct"
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 2048
	DefaultTimeout     = 60 * time.Second
)

// ErrNoToken is returned by New when no credential was supplied.
var ErrNoToken = errors.New("llm: empty API token")

// Options configures a Client. Zero fields take the package defaults,
// except Temperature, which is sent as given.
type Options struct {
	Endpoint    string
	Model       string
	Token       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Client sends a conversation and returns the model's reply text.
type Client struct {
	endpoint    string
	model       string
	token       string
	temperature float64
	maxTokens   int
	http        *http.Client
	logger      *slog.Logger
}

// New builds a Client. It fails with ErrNoToken when opts.Token is empty.
func New(opts Options) (*Client, error) {
	if opts.Token == "" {
		return nil, ErrNoToken
	}
	c := &Client{
		endpoint:    opts.Endpoint,
		model:       opts.Model,
		token:       opts.Token,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		http:        opts.HTTPClient,
		logger:      opts.Logger,
	}
	if c.endpoint == "" {
		c.endpoint = DefaultEndpoint
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c, nil
}

// Model returns the model name sent with each request.
// Model is the model identifier sent with every request.
func (c *Client) Model() string { return c.model }

type chatRequest struct {
	Model       string       `json:"model"`
	Messages    []convo.Turn `json:"messages"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float64      `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate posts history and returns the content of the first choice.
// history is sent as given; callers include the system turn.
func (c *Client) Generate(ctx context.Context, history []convo.Turn) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    history,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", &TransportError{Endpoint: c.endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	c.logger.Info("api request", "model", c.model, "turns", len(history))
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("api request failed", "err", err)
		return "", &TransportError{Endpoint: c.endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("api response read failed", "err", err)
		return "", &TransportError{Endpoint: c.endpoint, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("api error", "status", resp.StatusCode, "body_bytes", len(body))
		return "", &HTTPError{Status: resp.Status, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", &ParseError{Cause: err}
	}
	if len(decoded.Choices) == 0 {
		return "", &ParseError{Cause: ErrNoChoices}
	}
	content := decoded.Choices[0].Message.Content
	c.logger.Info("api response", "bytes", len(content), "elapsed", time.Since(start))
	return content, nil
}
