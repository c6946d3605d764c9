package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// openAIProvider speaks the OpenAI chat/completions vision API. Also covers
// any OpenAI-compatible gateway via BaseURL.
type openAIProvider struct {
	settings Settings
	client   *http.Client
}

func (p *openAIProvider) Name() string               { return p.settings.Name }
func (p *openAIProvider) Supports(m Mode) bool       { return p.settings.supports(m) }
func (p *openAIProvider) CostPerCall(m Mode) float64 { return p.settings.costPerCall(m) }

func (p *openAIProvider) Describe(ctx context.Context, req *Request) (*Result, error) {
	content := []map[string]any{
		{"type": "text", "text": req.Prompt},
	}
	for _, frame := range framesForMode(req) {
		content = append(content, map[string]any{
			"type": "image_url",
			"image_url": map[string]any{
				"url": "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(frame),
			},
		})
	}

	body := map[string]any{
		"model":      p.settings.Model,
		"max_tokens": 300,
		"messages": []map[string]any{
			{"role": "user", "content": content},
		},
	}

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	err := p.post(ctx, p.settings.BaseURL+"/v1/chat/completions", body, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, errEmptyResponse
	}
	return &Result{Text: resp.Choices[0].Message.Content}, nil
}

func (p *openAIProvider) post(ctx context.Context, url string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.settings.APIKey)

	return doJSON(p.client, httpReq, out)
}

// framesForMode trims the request payload to what the effective mode sends.
func framesForMode(req *Request) [][]byte {
	if len(req.Frames) == 0 {
		return nil
	}
	if req.Mode == ModeSingleFrame {
		return req.Frames[:1]
	}
	return req.Frames
}

// doJSON executes the request and decodes a JSON response, mapping non-2xx
// statuses to errors.
func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("status %d: %s", resp.StatusCode, snippet)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
