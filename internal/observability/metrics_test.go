package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/healthz", "200", time.Millisecond)
	m.ObserveLLMRequest("kimi", "ok", time.Second, 10, 5)
	m.ObserveGraphQuery("bolt", "ok", time.Millisecond)
	m.ObserveIngestBatch("nodes", "Disease", true, 3)
	m.ObserveTurn("turn", true)
	m.APIInflightInc()

	rec := httptest.NewRecorder()
	m.WriteHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWritePrometheus(t *testing.T) {
	m := NewMetrics()
	m.ObserveAPI("POST", "/v1/chat", "200", 300*time.Millisecond)
	m.ObserveLLMRequest("", "error", 0, 0, 0)
	m.ObserveLLMRequest("kimi-k2-turbo-preview", "ok", 2*time.Second, 120, 30)
	m.ObserveIngestBatch("nodes", "Disease", true, 500)
	m.ObserveIngestBatch("nodes", "Disease", false, 500)
	m.ObserveTurn("turn", false)

	var buf bytes.Buffer
	require.NoError(t, m.WritePrometheus(&buf))
	out := buf.String()

	assert.Contains(t, out, "# TYPE medgraph_api_requests_total counter\n")
	assert.Contains(t, out, `medgraph_api_requests_total{method="POST",route="/v1/chat",status="200"} 1`)
	assert.Contains(t, out, `medgraph_api_request_duration_seconds_bucket{method="POST",route="/v1/chat",le="0.25"} 0`)
	assert.Contains(t, out, `medgraph_api_request_duration_seconds_bucket{method="POST",route="/v1/chat",le="0.5"} 1`)
	assert.Contains(t, out, `medgraph_api_request_duration_seconds_bucket{method="POST",route="/v1/chat",le="+Inf"} 1`)
	assert.Contains(t, out, `medgraph_llm_requests_total{model="unknown",status="error"} 1`)
	assert.Contains(t, out, `medgraph_llm_tokens_total{model="kimi-k2-turbo-preview",kind="prompt"} 120`)
	assert.Contains(t, out, `medgraph_ingest_batches_total{phase="nodes",target="Disease",status="failed"} 1`)
	assert.Contains(t, out, `medgraph_ingest_rows_total{phase="nodes",target="Disease"} 500`)
	assert.Contains(t, out, `medgraph_chat_turns_total{kind="turn",grounded="false"} 1`)
}

func TestCounterVecEscapesLabels(t *testing.T) {
	c := NewCounterVec("x_total", "x", []string{"q"})
	c.Inc(`say "hi"` + "\n")
	assert.Equal(t, 1.0, c.Value(`say "hi"`+"\n"))

	var buf bytes.Buffer
	require.NoError(t, c.WritePrometheus(&buf))
	assert.Contains(t, buf.String(), `x_total{q="say \"hi\"\n"} 1`)
}

func TestInitDisabled(t *testing.T) {
	t.Setenv("METRICS_ENABLED", "")
	assert.Nil(t, Init(false))
}
