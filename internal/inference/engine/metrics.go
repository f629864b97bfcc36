package engine

import (
	"context"
	"errors"
	"time"

	"github.com/yungbote/medgraph/internal/observability"
)

type measured struct {
	next    Engine
	metrics *observability.Metrics
	model   string
}

// WithMetrics records latency, outcome and token usage of every call. A nil
// registry returns e unchanged.
func WithMetrics(e Engine, m *observability.Metrics, model string) Engine {
	if m == nil || IsDisabled(e) {
		return e
	}
	return &measured{next: e, metrics: m, model: model}
}

func (m *measured) Complete(ctx context.Context, messages []Message, opts Options) (*Completion, error) {
	start := time.Now()
	out, err := m.next.Complete(ctx, messages, opts)
	m.observe(opts, out, err, time.Since(start))
	return out, err
}

func (m *measured) Stream(ctx context.Context, messages []Message, opts Options, onDelta func(string)) (*Completion, error) {
	start := time.Now()
	out, err := m.next.Stream(ctx, messages, opts, onDelta)
	m.observe(opts, out, err, time.Since(start))
	return out, err
}

func (m *measured) observe(opts Options, out *Completion, err error, dur time.Duration) {
	model := m.model
	if opts.Model != "" {
		model = opts.Model
	}
	status := "ok"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = "canceled"
	case err != nil:
		status = "error"
	}
	var prompt, completion int
	if out != nil {
		if out.Model != "" {
			model = out.Model
		}
		prompt, completion = out.Usage.PromptTokens, out.Usage.CompletionTokens
	}
	m.metrics.ObserveLLMRequest(model, status, dur, prompt, completion)
}
