package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	medhttp "github.com/yungbote/medgraph/internal/http"
	"github.com/yungbote/medgraph/internal/http/handlers"
	"github.com/yungbote/medgraph/internal/inference/engine/mock"
	"github.com/yungbote/medgraph/internal/observability"
	"github.com/yungbote/medgraph/internal/platform/graphstore"
	"github.com/yungbote/medgraph/internal/platform/graphstore/memgraph"
	"github.com/yungbote/medgraph/internal/rag"
)

func router(t *testing.T, store *graphstore.Client, maxBytes int64) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	eng := mock.New(mock.Text(`{"symptoms":["头痛"]}`), mock.Text("建议就医。"))
	session := rag.NewSession(store, eng, nil, rag.DefaultSettings())
	return medhttp.NewRouter(medhttp.RouterConfig{
		CORSOrigins:     []string{"*"},
		MaxRequestBytes: maxBytes,
		HealthHandler:   handlers.NewHealthHandler(store, true),
		ChatHandler:     handlers.NewChatHandler(session),
	})
}

func connected(t *testing.T) *graphstore.Client {
	t.Helper()
	c := graphstore.NewClient(nil, graphstore.Static("mem", graphstore.DialectNeo4j, memgraph.New()))
	require.NoError(t, c.Connect(context.Background()))
	return c
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReady(t *testing.T) {
	h := router(t, connected(t), 0)

	rec := do(h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","graph":{"connected":true,"backend":"mem"},"completion":"configured"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = do(h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyWithoutGraph(t *testing.T) {
	h := router(t, graphstore.NewClient(nil), 0)

	rec := do(h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"graph_unavailable"`)

	rec = do(h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"connected":false`)
}

func TestChatThroughRouter(t *testing.T) {
	h := router(t, connected(t), 0)
	rec := do(h, http.MethodPost, "/v1/chat", `{"message":"我头疼"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"answer":"建议就医。"`)
	assert.Contains(t, rec.Body.String(), `"grounded":false`)
}

func TestChatTurnIDMatchesHeader(t *testing.T) {
	h := router(t, connected(t), 0)

	rec := do(h, http.MethodPost, "/v1/chat", `{"message":"我头疼"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	turn := rec.Header().Get("X-Turn-Id")
	require.NotEmpty(t, turn)
	assert.Contains(t, rec.Body.String(), `"turn_id":"`+turn+`"`)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"我头疼"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Turn-Id", "turn-from-caller")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"turn_id":"turn-from-caller"`)
}

func TestBodyLimit(t *testing.T) {
	h := router(t, connected(t), 16)
	rec := do(h, http.MethodPost, "/v1/chat", `{"message":"`+strings.Repeat("痛", 64)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "request_too_large")
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := observability.NewMetrics()
	h := medhttp.NewRouter(medhttp.RouterConfig{
		Metrics:       m,
		HealthHandler: handlers.NewHealthHandler(connected(t), false),
	})

	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz", "").Code)
	do(h, http.MethodGet, "/wp-admin", "")

	rec := do(h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `medgraph_api_requests_total{method="GET",route="/healthz",status="200"} 1`)
	assert.Contains(t, body, `medgraph_api_requests_total{method="GET",route="unmatched",status="404"} 1`)
}
