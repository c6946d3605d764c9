package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
)

// geminiProvider speaks the Gemini generateContent API. The only built-in
// adapter that can take a full clip (video_native) as inline data.
type geminiProvider struct {
	settings Settings
	client   *http.Client
}

func (p *geminiProvider) Name() string               { return p.settings.Name }
func (p *geminiProvider) Supports(m Mode) bool       { return p.settings.supports(m) }
func (p *geminiProvider) CostPerCall(m Mode) float64 { return p.settings.costPerCall(m) }

func (p *geminiProvider) Describe(ctx context.Context, req *Request) (*Result, error) {
	parts := []map[string]any{
		{"text": req.Prompt},
	}
	if req.Mode == ModeVideoNative && len(req.Clip) > 0 {
		parts = append(parts, map[string]any{
			"inline_data": map[string]any{
				"mime_type": "video/mp4",
				"data":      base64.StdEncoding.EncodeToString(req.Clip),
			},
		})
	} else {
		for _, frame := range framesForMode(req) {
			parts = append(parts, map[string]any{
				"inline_data": map[string]any{
					"mime_type": "image/jpeg",
					"data":      base64.StdEncoding.EncodeToString(frame),
				},
			})
		}
	}

	body := map[string]any{
		"contents": []map[string]any{
			{"parts": parts},
		},
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", p.settings.BaseURL, p.settings.Model, p.settings.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := doJSON(p.client, httpReq, &resp); err != nil {
		return nil, err
	}
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				return &Result{Text: part.Text}, nil
			}
		}
	}
	return nil, errEmptyResponse
}
