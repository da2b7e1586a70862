// Package azureopenai is a minimal Azure OpenAI chat-completions client.
//
// It issues exactly one HTTP request per Complete call; retries belong to the caller.
package azureopenai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/core"
)

const (
	DefaultAPIVersion = "2024-12-01-preview"
	DefaultTimeout    = 10 * time.Minute
)

// Config holds endpoint credentials and transport settings.
type Config struct {
	APIKey     string
	Endpoint   string
	APIVersion string

	// Timeout bounds one HTTP exchange. Zero selects DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the transport entirely (tests).
	HTTPClient *http.Client
}

// Client calls the chat-completions route of one Azure OpenAI resource.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	apiVersion string
	http       *http.Client
}

var _ core.Completer = (*Client)(nil)

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("azure openai api key is required")
	}
	base, err := parseBaseURL(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	version := strings.TrimSpace(cfg.APIVersion)
	if version == "" {
		version = DefaultAPIVersion
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
			Timeout:   timeout,
		}
	}

	return &Client{
		baseURL:    base,
		apiKey:     apiKey,
		apiVersion: version,
		http:       hc,
	}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("azure openai endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse azure openai endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("azure openai endpoint must include a host (got %q)", raw)
	}
	// Ensure the base path ends with a slash so ResolveReference treats it as a directory.
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the chat-completions request body.
type ChatRequest struct {
	Model           string    `json:"model,omitempty"`
	Messages        []Message `json:"messages"`
	ReasoningEffort string    `json:"reasoning_effort,omitempty"`
}

// ChatResponse is the subset of the chat-completions response this client reads.
type ChatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Text returns the first choice's content, or "" when there is none.
func (r ChatResponse) Text() string {
	if len(r.Choices) == 0 || r.Choices[0].Message.Content == nil {
		return ""
	}
	return *r.Choices[0].Message.Content
}

// Complete sends the instruction as a developer message and the user text as a user
// message. A response without content yields "" and a nil error.
func (c *Client) Complete(ctx context.Context, req core.Request) (string, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return "", fmt.Errorf("model deployment is required")
	}

	body, err := json.Marshal(ChatRequest{
		Model: model,
		Messages: []Message{
			{Role: "developer", Content: req.Instruction},
			{Role: "user", Content: req.User},
		},
		ReasoningEffort: strings.TrimSpace(req.Effort),
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	u := c.resolve("openai/deployments/" + model + "/chat/completions")
	q := url.Values{}
	q.Set("api-version", c.apiVersion)
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("api-key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode/100 != 2 {
		return "", newHTTPError("chatCompletions", resp, b)
	}

	var out ChatResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return "", fmt.Errorf("parse chat completions response: %w", err)
	}
	return out.Text(), nil
}

func (c *Client) resolve(rel string) *url.URL {
	return c.baseURL.ResolveReference(&url.URL{Path: rel})
}
