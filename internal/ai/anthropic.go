package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
)

const anthropicVersion = "2023-06-01"

// anthropicProvider speaks the Anthropic messages API with image blocks.
type anthropicProvider struct {
	settings Settings
	client   *http.Client
}

func (p *anthropicProvider) Name() string               { return p.settings.Name }
func (p *anthropicProvider) Supports(m Mode) bool       { return p.settings.supports(m) }
func (p *anthropicProvider) CostPerCall(m Mode) float64 { return p.settings.costPerCall(m) }

func (p *anthropicProvider) Describe(ctx context.Context, req *Request) (*Result, error) {
	var content []map[string]any
	for _, frame := range framesForMode(req) {
		content = append(content, map[string]any{
			"type": "image",
			"source": map[string]any{
				"type":       "base64",
				"media_type": "image/jpeg",
				"data":       base64.StdEncoding.EncodeToString(frame),
			},
		})
	}
	content = append(content, map[string]any{"type": "text", "text": req.Prompt})

	body := map[string]any{
		"model":      p.settings.Model,
		"max_tokens": 300,
		"messages": []map[string]any{
			{"role": "user", "content": content},
		},
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.settings.BaseURL+"/v1/messages", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.settings.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := doJSON(p.client, httpReq, &resp); err != nil {
		return nil, err
	}
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			return &Result{Text: block.Text}, nil
		}
	}
	return nil, errEmptyResponse
}
