package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Mode is the amount of visual material sent to a provider.
type Mode string

const (
	ModeSingleFrame Mode = "single_frame"
	ModeMultiFrame  Mode = "multi_frame"
	ModeVideoNative Mode = "video_native"
)

// downgradeOrder lists modes from richest to cheapest. Automatic downgrade
// walks this list from the requested mode.
var downgradeOrder = []Mode{ModeVideoNative, ModeMultiFrame, ModeSingleFrame}

// Request is one describe call's payload.
type Request struct {
	Prompt string
	Frames [][]byte // JPEG frames; first frame used for single_frame
	Clip   []byte   // raw clip, video_native only
	Mode   Mode
}

// Result is a provider's structured description.
type Result struct {
	Text       string
	Confidence float64 // 0 when the provider reports none
}

// Provider is the single capability every vision backend implements. The
// orchestrator holds an ordered list of these and needs nothing else.
type Provider interface {
	Name() string
	Supports(m Mode) bool
	CostPerCall(m Mode) float64
	Describe(ctx context.Context, req *Request) (*Result, error)
}

// Settings configures one provider adapter.
type Settings struct {
	Name        string
	Kind        string // openai | anthropic | gemini | ollama
	BaseURL     string
	APIKey      string
	Model       string
	Modes       []Mode
	CostPerCall map[Mode]float64
}

// NewProvider builds the adapter for a configured provider kind.
func NewProvider(s Settings, client *http.Client) (Provider, error) {
	if client == nil {
		client = http.DefaultClient
	}
	switch s.Kind {
	case "openai":
		return &openAIProvider{settings: s, client: client}, nil
	case "anthropic":
		return &anthropicProvider{settings: s, client: client}, nil
	case "gemini":
		return &geminiProvider{settings: s, client: client}, nil
	case "ollama":
		return &ollamaProvider{settings: s, client: client}, nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", s.Kind)
	}
}

func (s Settings) supports(m Mode) bool {
	for _, sm := range s.Modes {
		if sm == m {
			return true
		}
	}
	return false
}

func (s Settings) costPerCall(m Mode) float64 { return s.CostPerCall[m] }

// EffectiveMode downgrades the requested mode to the richest one the
// provider supports at or below it. The second return is false when the
// provider supports nothing at or below the request.
func EffectiveMode(p Provider, requested Mode) (Mode, bool) {
	seen := false
	for _, m := range downgradeOrder {
		if m == requested {
			seen = true
		}
		if seen && p.Supports(m) {
			return m, true
		}
	}
	return "", false
}

var errEmptyResponse = errors.New("provider returned an empty description")
