// Package openai implements llm.Client using the OpenAI Chat Completions API.
//
// The same wire format is served by local runtimes such as llama.cpp's
// llama-server and the GPT4All API server, so the client also talks to
// those when given their base URL and an empty key.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jxucoder/anna/llm"
)

const (
	// DefaultModel is used when New is called with an empty model.
	DefaultModel = "gpt-4o"

	defaultBaseURL   = "https://api.openai.com"
	defaultMaxTokens = 4000
)

// Client implements llm.Client using the OpenAI Chat Completions API.
type Client struct {
	apiKey      string
	model       string
	baseURL     string
	maxTokens   int
	temperature float64
	topP        float64
	client      *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the client at another server, e.g. a local llama-server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithMaxTokens overrides the response token limit.
func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithSampling sets temperature and top_p. Zero values are not sent.
func WithSampling(temperature, topP float64) Option {
	return func(c *Client) {
		c.temperature = temperature
		c.topP = topP
	}
}

// WithTimeout overrides the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// New creates a client for the OpenAI API.
// Model defaults to DefaultModel if empty.
func New(apiKey, model string, opts ...Option) *Client {
	if model == "" {
		model = DefaultModel
	}
	c := &Client{
		apiKey:    apiKey,
		model:     model,
		baseURL:   defaultBaseURL,
		maxTokens: defaultMaxTokens,
		client:    &http.Client{Timeout: 2 * time.Minute},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Model returns the model name sent with every request.
func (c *Client) Model() string { return c.model }

func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	messages := make([]map[string]string, 0, 2)
	if system != "" {
		messages = append(messages, map[string]string{"role": "system", "content": system})
	}
	messages = append(messages, map[string]string{"role": "user", "content": user})

	reqBody := map[string]any{
		"model":      c.model,
		"max_tokens": c.maxTokens,
		"messages":   messages,
	}
	if c.temperature > 0 {
		reqBody["temperature"] = c.temperature
	}
	if c.topP > 0 {
		reqBody["top_p"] = c.topP
	}

	headers := map[string]string{"Content-Type": "application/json"}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	err := llm.DoJSON(ctx, c.client, http.MethodPost, c.baseURL+"/v1/chat/completions",
		headers, reqBody, &result)
	if err != nil {
		return "", fmt.Errorf("openai API: %w", err)
	}

	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai API: %w", llm.ErrEmptyResponse)
	}
	return result.Choices[0].Message.Content, nil
}

// Ping reports whether the server answers its model listing endpoint.
func (c *Client) Ping(ctx context.Context) error {
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}
	return llm.DoJSON(ctx, c.client, http.MethodGet, c.baseURL+"/v1/models", headers, nil, nil)
}
