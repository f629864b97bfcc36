package middleware

import (
	"net/http"
	"strings"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/medgraph/internal/platform/ctxutil"
)

func TestAttachTraceContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var seen *ctxutil.TraceData
	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/x", func(c *gin.Context) {
		seen = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if seen == nil {
		t.Fatal("trace data not attached")
	}
	if seen.RequestID != "req-42" {
		t.Fatalf("request id: got=%q want=req-42", seen.RequestID)
	}
	if seen.TraceID == "" || rec.Header().Get("X-Trace-Id") != seen.TraceID {
		t.Fatalf("trace id not echoed: ctx=%q header=%q", seen.TraceID, rec.Header().Get("X-Trace-Id"))
	}
}

func TestAttachTraceContextTurnID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var seen *ctxutil.TraceData
	r := gin.New()
	r.Use(AttachTraceContext())
	r.POST("/x", func(c *gin.Context) {
		seen = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set("X-Turn-Id", strings.Repeat("a", 65))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if seen == nil || seen.TurnID == "" {
		t.Fatal("turn id not attached")
	}
	if len(seen.TurnID) > 64 {
		t.Fatalf("oversized caller id kept: %q", seen.TurnID)
	}
	if rec.Header().Get("X-Turn-Id") != seen.TurnID {
		t.Fatalf("turn id not echoed: ctx=%q header=%q", seen.TurnID, rec.Header().Get("X-Turn-Id"))
	}
}
