// Package ollama implements llm.Client on top of Ollama's native HTTP API.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jxucoder/anna/llm"
)

const (
	// DefaultURL is where a stock Ollama install listens.
	DefaultURL = "http://localhost:11434"

	defaultTimeout = 120 * time.Second
	pullTimeout    = 10 * time.Minute
)

// Options are the sampling parameters forwarded to Ollama.
type Options struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// Client talks to one Ollama server. Model is the default chat model.
type Client struct {
	baseURL string
	model   string
	opts    Options
	client  *http.Client
}

// New creates a client for the Ollama server at baseURL (DefaultURL if empty).
func New(baseURL, model string, opts Options) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		opts:    opts,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if c.model == "" {
		return "", fmt.Errorf("ollama: no model selected")
	}
	msgs := make([]chatMessage, 0, 2)
	if system != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: system})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: user})

	req := chatRequest{Model: c.model, Messages: msgs, Options: c.options()}
	var resp chatResponse
	err := llm.DoJSON(ctx, c.client, http.MethodPost, c.baseURL+"/api/chat",
		map[string]string{"Content-Type": "application/json"}, req, &resp)
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		return "", fmt.Errorf("ollama chat: %w", llm.ErrEmptyResponse)
	}
	return resp.Message.Content, nil
}

func (c *Client) options() map[string]any {
	o := map[string]any{}
	if c.opts.Temperature > 0 {
		o["temperature"] = c.opts.Temperature
	}
	if c.opts.TopP > 0 {
		o["top_p"] = c.opts.TopP
	}
	if c.opts.MaxTokens > 0 {
		o["num_predict"] = c.opts.MaxTokens
	}
	if len(o) == 0 {
		return nil
	}
	return o
}

// Models lists the names of locally installed models.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	var resp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := llm.DoJSON(ctx, c.client, http.MethodGet, c.baseURL+"/api/tags", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("ollama tags: %w", err)
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// IsAvailable checks if the Ollama server is reachable.
func (c *Client) IsAvailable(ctx context.Context) bool {
	_, err := c.Models(ctx)
	return err == nil
}

// HasModel reports whether name is installed. A bare name such as
// "mistral" matches any tag of that model.
func (c *Client) HasModel(ctx context.Context, name string) (bool, error) {
	models, err := c.Models(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range models {
		if MatchName(m, name) {
			return true, nil
		}
	}
	return false, nil
}

// Pull downloads a model and blocks until Ollama reports completion.
func (c *Client) Pull(ctx context.Context, name string) error {
	client := &http.Client{Timeout: pullTimeout}
	var resp struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	err := llm.DoJSON(ctx, client, http.MethodPost, c.baseURL+"/api/pull",
		map[string]string{"Content-Type": "application/json"},
		map[string]any{"model": name, "stream": false}, &resp)
	if err != nil {
		return fmt.Errorf("ollama pull %s: %w", name, err)
	}
	if resp.Error != "" {
		return fmt.Errorf("ollama pull %s: %s", name, resp.Error)
	}
	if resp.Status != "success" {
		return fmt.Errorf("ollama pull %s: unexpected status %q", name, resp.Status)
	}
	return nil
}

// MatchName compares an installed model name ("mistral:latest") with a
// requested one ("mistral" or "mistral:7b").
func MatchName(installed, want string) bool {
	if installed == want {
		return true
	}
	if strings.Contains(want, ":") {
		return false
	}
	base, _, _ := strings.Cut(installed, ":")
	return base == want
}
