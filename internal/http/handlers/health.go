package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/medgraph/internal/http/response"
	"github.com/yungbote/medgraph/internal/platform/apierr"
)

// GraphStatus is what health checks need from the graph client.
type GraphStatus interface {
	Connected() bool
	Backend() string
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	graph        GraphStatus
	completionOK bool
}

func NewHealthHandler(graph GraphStatus, completionConfigured bool) *HealthHandler {
	return &HealthHandler{graph: graph, completionOK: completionConfigured}
}

type healthResp struct {
	Status     string      `json:"status"`
	Graph      graphHealth `json:"graph"`
	Completion string      `json:"completion"`
}

type graphHealth struct {
	Connected bool   `json:"connected"`
	Backend   string `json:"backend,omitempty"`
}

// GET /healthz
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	response.RespondOK(c, h.snapshot())
}

// GET /readyz answers 503 until the graph store answers a ping.
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.graph == nil || !h.graph.Connected() {
		response.RespondAPIError(c, apierr.Unavailable("graph_unavailable", errors.New("graph store not connected")))
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.graph.Ping(ctx); err != nil {
		response.RespondAPIError(c, apierr.Unavailable("graph_unavailable", err))
		return
	}
	c.JSON(http.StatusOK, h.snapshot())
}

func (h *HealthHandler) snapshot() healthResp {
	out := healthResp{Status: "ok", Completion: "disabled"}
	if h.completionOK {
		out.Completion = "configured"
	}
	if h.graph != nil && h.graph.Connected() {
		out.Graph = graphHealth{Connected: true, Backend: h.graph.Backend()}
	}
	return out
}
