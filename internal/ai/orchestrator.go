package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sentryview/sentryview/internal/data"
	"github.com/sentryview/sentryview/internal/metrics"
)

const defaultPrompt = "Describe what is happening in this security camera footage in one or two sentences. " +
	"Mention people, vehicles, packages, and animals if present."

// ErrRetriesExhausted is returned by Reanalyze when the per-event retry
// budget is spent.
var ErrRetriesExhausted = errors.New("re-analysis retries exhausted")

// Analysis is what the orchestrator hands back for every detection. Never
// an error: provider exhaustion yields Failed=true so no detection is lost.
type Analysis struct {
	Description    *string
	Confidence     *float64
	Provider       *string
	Mode           Mode
	FallbackReason *string
	CostUSD        float64
	Failed         bool
}

// eventStore is the slice of the persistence collaborator Reanalyze needs.
type eventStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*data.Event, error)
	ClaimRetry(ctx context.Context, eventID uuid.UUID, max int) (bool, error)
	UpdateAnalysis(ctx context.Context, e *data.Event) error
}

// Orchestrator tries configured providers in priority order with timeout,
// cost-cap, and circuit logic. First success wins.
type Orchestrator struct {
	providers   []Provider
	circuit     *CircuitBreaker
	ledger      *CostLedger
	events      eventStore
	prompt      string
	callTimeout time.Duration
	maxRetries  int
}

type OrchestratorConfig struct {
	Prompt      string
	CallTimeout time.Duration
	MaxRetries  int // per-event manual re-analysis budget
}

func NewOrchestrator(providers []Provider, circuit *CircuitBreaker, ledger *CostLedger, events eventStore, cfg OrchestratorConfig) *Orchestrator {
	if cfg.Prompt == "" {
		cfg.Prompt = defaultPrompt
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 20 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Orchestrator{
		providers:   providers,
		circuit:     circuit,
		ledger:      ledger,
		events:      events,
		prompt:      cfg.Prompt,
		callTimeout: cfg.CallTimeout,
		maxRetries:  cfg.MaxRetries,
	}
}

// Describe runs the provider fallback chain for one detection's payload.
func (o *Orchestrator) Describe(ctx context.Context, det *data.RawDetection) *Analysis {
	requested := Mode(det.AnalysisMode)
	if requested == "" {
		requested = ModeSingleFrame
	}

	var reasons []string

	for _, p := range o.providers {
		name := p.Name()

		if !o.circuit.Allow(name) {
			reasons = append(reasons, name+": circuit open")
			metrics.ProviderCallsTotal.WithLabelValues(name, "skipped_circuit").Inc()
			continue
		}

		mode, ok := EffectiveMode(p, requested)
		if !ok {
			reasons = append(reasons, fmt.Sprintf("%s: mode %s unsupported", name, requested))
			metrics.ProviderCallsTotal.WithLabelValues(name, "skipped_mode").Inc()
			continue
		}
		if mode != requested {
			reasons = append(reasons, fmt.Sprintf("%s: mode downgraded %s->%s", name, requested, mode))
		}

		if !o.ledger.Allowed(ctx, name) {
			reasons = append(reasons, name+": cost cap exceeded")
			metrics.ProviderCallsTotal.WithLabelValues(name, "skipped_cost").Inc()
			continue
		}

		result, cost, err := o.invoke(ctx, p, det, mode)
		if err != nil {
			o.circuit.RecordFailure(name)
			outcome := "error"
			if errors.Is(err, context.DeadlineExceeded) {
				outcome = "timeout"
			}
			metrics.ProviderCallsTotal.WithLabelValues(name, outcome).Inc()
			reasons = append(reasons, fmt.Sprintf("%s: %s", name, outcome))
			log.Printf("[AI] provider %s failed: %v", name, err)
			continue
		}

		o.circuit.RecordSuccess(name)
		metrics.ProviderCallsTotal.WithLabelValues(name, "ok").Inc()

		a := &Analysis{
			Description: &result.Text,
			Provider:    &name,
			Mode:        mode,
			CostUSD:     cost,
		}
		if result.Confidence > 0 {
			a.Confidence = &result.Confidence
		}
		if len(reasons) > 0 {
			r := strings.Join(reasons, "; ")
			a.FallbackReason = &r
		}
		return a
	}

	// All providers exhausted. The event is still created, flagged failed,
	// and stays eligible for manual re-analysis.
	a := &Analysis{Mode: requested, Failed: true}
	if len(reasons) > 0 {
		r := strings.Join(reasons, "; ")
		a.FallbackReason = &r
	}
	return a
}

// Reanalyze re-runs the fallback chain for an existing event using payload
// supplied by the caller (frames come from the external media store; the
// original payload was ephemeral). Bounded by the per-event retry counter.
func (o *Orchestrator) Reanalyze(ctx context.Context, eventID uuid.UUID, frames [][]byte, clip []byte) (*data.Event, error) {
	evt, err := o.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	// The retry slot is claimed up front with a conditional update so two
	// concurrent requests cannot both spend the last one.
	claimed, err := o.events.ClaimRetry(ctx, eventID, o.maxRetries)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrRetriesExhausted
	}
	evt.RetryCount++

	det := &data.RawDetection{
		ID:           evt.DetectionID,
		CameraID:     evt.CameraID,
		Kind:         evt.Kind,
		OccurredAt:   evt.OccurredAt,
		AnalysisMode: evt.AnalysisMode,
		Frames:       frames,
		Clip:         clip,
	}

	analysis := o.Describe(ctx, det)

	evt.Description = analysis.Description
	evt.Confidence = analysis.Confidence
	evt.Provider = analysis.Provider
	evt.FallbackReason = analysis.FallbackReason
	evt.CostUSD = analysis.CostUSD
	evt.AnalysisFailed = analysis.Failed

	if err := o.events.UpdateAnalysis(ctx, evt); err != nil {
		return nil, err
	}
	return evt, nil
}

func (o *Orchestrator) invoke(ctx context.Context, p Provider, det *data.RawDetection, mode Mode) (*Result, float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	req := &Request{
		Prompt: o.prompt,
		Frames: det.Frames,
		Clip:   det.Clip,
		Mode:   mode,
	}

	cost := p.CostPerCall(mode)
	result, err := p.Describe(callCtx, req)

	// Cost is recorded per call regardless of success.
	chargeCtx, chargeCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer chargeCancel()
	if chargeErr := o.ledger.Charge(chargeCtx, p.Name(), cost); chargeErr != nil {
		log.Printf("[AI] cost charge failed for %s: %v", p.Name(), chargeErr)
	}

	if err != nil {
		return nil, cost, err
	}
	return result, cost, nil
}
