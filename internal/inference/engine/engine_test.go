package engine

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/medgraph/internal/observability"
)

type counting struct{ calls int }

func (c *counting) Complete(context.Context, []Message, Options) (*Completion, error) {
	c.calls++
	return &Completion{Text: "ok"}, nil
}

func (c *counting) Stream(ctx context.Context, m []Message, o Options, onDelta func(string)) (*Completion, error) {
	onDelta("ok")
	return c.Complete(ctx, m, o)
}

func TestDisabled(t *testing.T) {
	var e Engine = Disabled{}
	_, err := e.Complete(context.Background(), []Message{User("hi")}, Options{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = e.Stream(context.Background(), nil, Options{}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.True(t, IsDisabled(e))
	assert.True(t, IsDisabled(nil))
	assert.False(t, IsDisabled(&counting{}))
}

func TestWithRateLimitPassesThroughAndHonorsContext(t *testing.T) {
	inner := &counting{}
	e := WithRateLimit(inner, 0.001, 1)

	_, err := e.Complete(context.Background(), nil, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = e.Complete(ctx, nil, Options{})
	assert.Error(t, err, "second call must wait far beyond the deadline")
	assert.Equal(t, 1, inner.calls)
}

func TestWithRateLimitDisabledIsIdentity(t *testing.T) {
	inner := &counting{}
	assert.Same(t, inner, WithRateLimit(inner, 0, 1))
	assert.Equal(t, Disabled{}, WithRateLimit(Disabled{}, 5, 1))
}

func TestWithMetricsRecordsUsage(t *testing.T) {
	inner := &counting{}
	assert.Same(t, inner, WithMetrics(inner, nil, "m"))

	m := observability.NewMetrics()
	e := WithMetrics(inner, m, "kimi")
	_, err := e.Stream(context.Background(), nil, Options{}, func(string) {})
	require.NoError(t, err)
	_, err = e.Complete(context.Background(), nil, Options{Model: "other"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.WritePrometheus(&buf))
	assert.Contains(t, buf.String(), `medgraph_llm_requests_total{model="kimi",status="ok"} 1`)
	assert.Contains(t, buf.String(), `medgraph_llm_requests_total{model="other",status="ok"} 1`)
}
