package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/medgraph/internal/platform/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
	headerTurnID    = "X-Turn-Id"

	maxIDLen = 64
)

// AttachTraceContext stamps request, trace and turn ids on the request
// context and echoes them as headers. The chat session reuses the turn id,
// so the X-Turn-Id header, the turn_id in the body and the log lines agree.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		td := &ctxutil.TraceData{
			RequestID: callerID(c, headerRequestID),
			TraceID:   callerID(c, headerTraceID),
			TurnID:    callerID(c, headerTurnID),
		}
		if td.RequestID == "" {
			td.RequestID = uuid.NewString()
		}
		if td.TraceID == "" {
			if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
				td.TraceID = sc.TraceID().String()
			} else {
				td.TraceID = strings.ReplaceAll(uuid.NewString(), "-", "")
			}
		}
		if td.TurnID == "" {
			td.TurnID = uuid.NewString()
		}

		c.Request = c.Request.WithContext(ctxutil.WithTraceData(c.Request.Context(), td))
		c.Set("request_id", td.RequestID)
		c.Set("trace_id", td.TraceID)
		h := c.Writer.Header()
		h.Set(headerRequestID, td.RequestID)
		h.Set(headerTraceID, td.TraceID)
		h.Set(headerTurnID, td.TurnID)
		c.Next()
	}
}

// callerID returns a caller-sent id, or "" when it is missing or oversized.
func callerID(c *gin.Context, header string) string {
	id := strings.TrimSpace(c.GetHeader(header))
	if len(id) > maxIDLen {
		return ""
	}
	return id
}
