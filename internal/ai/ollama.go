package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
)

// ollamaProvider speaks a local Ollama /api/generate endpoint with a
// multimodal model. Usually the zero-cost tail of the fallback chain.
type ollamaProvider struct {
	settings Settings
	client   *http.Client
}

func (p *ollamaProvider) Name() string               { return p.settings.Name }
func (p *ollamaProvider) Supports(m Mode) bool       { return p.settings.supports(m) }
func (p *ollamaProvider) CostPerCall(m Mode) float64 { return p.settings.costPerCall(m) }

func (p *ollamaProvider) Describe(ctx context.Context, req *Request) (*Result, error) {
	images := make([]string, 0, len(req.Frames))
	for _, frame := range framesForMode(req) {
		images = append(images, base64.StdEncoding.EncodeToString(frame))
	}

	body := map[string]any{
		"model":  p.settings.Model,
		"prompt": req.Prompt,
		"images": images,
		"stream": false,
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.settings.BaseURL+"/api/generate", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var resp struct {
		Response string `json:"response"`
	}
	if err := doJSON(p.client, httpReq, &resp); err != nil {
		return nil, err
	}
	if resp.Response == "" {
		return nil, errEmptyResponse
	}
	return &Result{Text: resp.Response}, nil
}
