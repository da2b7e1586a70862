// Package gemini is the alternate reasoning backend, serving core.Request over the
// Google Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/core"
	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/schema"
)

type Config struct {
	APIKey string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

type Completer struct {
	client *genai.Client
}

func New(ctx context.Context, cfg Config) (*Completer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Completer{client: client}, nil
}

// Complete sends one GenerateContent call. An answer with no candidates or no text
// parts comes back as "" with a nil error, which the retry budget treats as empty.
func (c *Completer) Complete(ctx context.Context, req core.Request) (string, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return "", errors.New("gemini: model is required")
	}

	resp, err := c.client.Models.GenerateContent(
		ctx,
		model,
		genai.Text(req.User),
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: req.Instruction}}},
			CandidateCount:    1,
			ThinkingConfig: &genai.ThinkingConfig{
				ThinkingBudget: genai.Ptr(ThinkingBudget(req.Effort)),
			},
		},
	)
	if err != nil {
		return "", wrapErr(err)
	}
	if resp == nil {
		return "", nil
	}
	return resp.Text(), nil
}

// ThinkingBudget maps a reasoning effort onto a Gemini thinking token budget.
func ThinkingBudget(effort string) int32 {
	e, err := schema.ParseEffort(effort)
	if err != nil {
		e = schema.EffortMedium
	}
	switch e {
	case schema.EffortLow:
		return 1024
	case schema.EffortHigh:
		return 24576
	default:
		return 8192
	}
}

// wrapErr puts the HTTP status in the message so rate limits classify by text the
// same way Azure failures do.
func wrapErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("gemini error: status=%d %s: %w", apiErr.Code, apiErr.Status, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return fmt.Errorf("gemini error: status=%d %s: %w", apiErrPtr.Code, apiErrPtr.Status, err)
	}
	return fmt.Errorf("gemini error: %w", err)
}
