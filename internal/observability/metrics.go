package observability

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/medgraph/internal/platform/envutil"
)

// Metrics is a small Prometheus text-format registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	llmRequests *CounterVec
	llmLatency  *HistogramVec
	llmTokens   *CounterVec

	graphQueries *CounterVec
	graphLatency *HistogramVec

	ingestBatches *CounterVec
	ingestRows    *CounterVec

	turns *CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Init installs the process-wide registry when enabled (METRICS_ENABLED
// overrides the config flag). It returns nil when metrics are off.
func Init(enabled bool) *Metrics {
	if !envutil.Bool("METRICS_ENABLED", enabled) {
		return nil
	}
	initOnce.Do(func() { instance = NewMetrics() })
	return instance
}

func Current() *Metrics {
	return instance
}

func NewMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("medgraph_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"medgraph_api_request_duration_seconds",
			"API request latency in seconds by method/route.",
			[]string{"method", "route"},
			[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		),
		apiInflight: NewGauge("medgraph_api_inflight_requests", "In-flight API requests."),

		llmRequests: NewCounterVec("medgraph_llm_requests_total", "Completion requests by model/status.", []string{"model", "status"}),
		llmLatency: NewHistogramVec(
			"medgraph_llm_request_duration_seconds",
			"Completion latency in seconds by model.",
			[]string{"model"},
			[]float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		),
		llmTokens: NewCounterVec("medgraph_llm_tokens_total", "Completion tokens by model/kind.", []string{"model", "kind"}),

		graphQueries: NewCounterVec("medgraph_graph_queries_total", "Graph statements by backend/status.", []string{"backend", "status"}),
		graphLatency: NewHistogramVec(
			"medgraph_graph_query_duration_seconds",
			"Graph statement latency in seconds by backend.",
			[]string{"backend"},
			[]float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		),

		ingestBatches: NewCounterVec("medgraph_ingest_batches_total", "Upsert batches by phase/target/status.", []string{"phase", "target", "status"}),
		ingestRows:    NewCounterVec("medgraph_ingest_rows_total", "Rows written by phase/target.", []string{"phase", "target"}),

		turns: NewCounterVec("medgraph_chat_turns_total", "Chat turns by kind and whether the answer was grounded.", []string{"kind", "grounded"}),
	}
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type collector interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []collector{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.graphQueries, m.graphLatency,
		m.ingestBatches, m.ingestRows,
		m.turns,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) APIInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) APIInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveLLMRequest(model, status string, dur time.Duration, promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = "unknown"
	}
	m.llmRequests.Inc(model, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), model)
	}
	if promptTokens > 0 {
		m.llmTokens.Add(float64(promptTokens), model, "prompt")
	}
	if completionTokens > 0 {
		m.llmTokens.Add(float64(completionTokens), model, "completion")
	}
}

func (m *Metrics) ObserveGraphQuery(backend, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.graphQueries.Inc(backend, status)
	m.graphLatency.Observe(dur.Seconds(), backend)
}

// ObserveIngestBatch counts one upsert batch; rows only count on success.
func (m *Metrics) ObserveIngestBatch(phase, target string, ok bool, rows int) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.ingestBatches.Inc(phase, target, status)
	if ok && rows > 0 {
		m.ingestRows.Add(float64(rows), phase, target)
	}
}

func (m *Metrics) ObserveTurn(kind string, grounded bool) {
	if m == nil {
		return
	}
	g := "false"
	if grounded {
		g = "true"
	}
	m.turns.Inc(kind, g)
}

// ---- metric primitives (Prometheus exposition) ----

type CounterVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (c *CounterVec) Inc(values ...string) {
	c.Add(1, values...)
}

func (c *CounterVec) Add(v float64, values ...string) {
	if c == nil {
		return
	}
	lbl := labelString(c.labelNames, values)
	c.mu.Lock()
	c.values[lbl] += v
	c.mu.Unlock()
}

// Value returns the current count for one label set.
func (c *CounterVec) Value(values ...string) float64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[labelString(c.labelNames, values)]
}

func (c *CounterVec) WritePrometheus(w io.Writer) error {
	if err := writeHeader(w, c.name, c.help, "counter"); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, k := range sortedKeys(c.values) {
		if _, err := fmt.Fprintf(w, "%s%s %g\n", c.name, k, c.values[k]); err != nil {
			return err
		}
	}
	return nil
}

type Gauge struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Inc() { g.add(1) }
func (g *Gauge) Dec() { g.add(-1) }

func (g *Gauge) add(v float64) {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val += v
	g.mu.Unlock()
}

func (g *Gauge) WritePrometheus(w io.Writer) error {
	if err := writeHeader(w, g.name, g.help, "gauge"); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, err := fmt.Fprintf(w, "%s %g\n", g.name, g.val)
	return err
}

type HistogramVec struct {
	name       string
	help       string
	labelNames []string
	buckets    []float64
	mu         sync.RWMutex
	values     map[string]*histogram
}

type histogram struct {
	counts []uint64
	sum    float64
	total  uint64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	if len(buckets) == 0 {
		buckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}
	}
	return &HistogramVec{name: name, help: help, labelNames: labels, buckets: buckets, values: map[string]*histogram{}}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	lbl := labelString(h.labelNames, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	hist, ok := h.values[lbl]
	if !ok {
		hist = &histogram{counts: make([]uint64, len(h.buckets))}
		h.values[lbl] = hist
	}
	hist.sum += v
	hist.total++
	for i, b := range h.buckets {
		if v <= b {
			hist.counts[i]++
		}
	}
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if err := writeHeader(w, h.name, h.help, "histogram"); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, k := range sortedKeys(h.values) {
		v := h.values[k]
		for i, b := range h.buckets {
			if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, fmt.Sprintf("%g", b)), v.counts[i]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, "+Inf"), v.total); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_sum%s %g\n%s_count%s %d\n", h.name, k, v.sum, h.name, k, v.total); err != nil {
			return err
		}
	}
	return nil
}

func writeHeader(w io.Writer, name, help, kind string) error {
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func labelString(names []string, values []string) string {
	if len(names) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("{")
	for i, name := range names {
		if i > 0 {
			b.WriteString(",")
		}
		val := "unknown"
		if i < len(values) {
			val = values[i]
		}
		b.WriteString(name)
		b.WriteString("=\"")
		b.WriteString(escapeLabel(val))
		b.WriteString("\"")
	}
	b.WriteString("}")
	return b.String()
}

func escapeLabel(v string) string {
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	return strings.ReplaceAll(v, "\n", "\\n")
}

func withLe(labels string, le string) string {
	if labels == "" {
		return "{le=\"" + le + "\"}"
	}
	return strings.TrimSuffix(labels, "}") + ",le=\"" + le + "\"}"
}
