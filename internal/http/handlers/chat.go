package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/medgraph/internal/http/response"
	"github.com/yungbote/medgraph/internal/kg"
	"github.com/yungbote/medgraph/internal/platform/apierr"
	"github.com/yungbote/medgraph/internal/rag"
)

// ChatService is the part of rag.Session the API drives.
type ChatService interface {
	Settings() rag.Settings
	TurnWith(ctx context.Context, text string, settings rag.Settings, onDelta func(string)) rag.TurnResult
	Ask(ctx context.Context, question string) rag.AskResult
}

// ChatHandler runs one turn at a time.
type ChatHandler struct {
	chat ChatService
	mu   sync.Mutex
}

func NewChatHandler(chat ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type chatReq struct {
	Message     string   `json:"message"`
	Temperature *float64 `json:"temperature"`
	Stream      bool     `json:"stream"`
}

type chatResp struct {
	TurnID     string        `json:"turn_id"`
	Answer     string        `json:"answer"`
	Grounded   bool          `json:"grounded"`
	Diseases   []string      `json:"diseases"`
	Extraction kg.Extraction `json:"extraction"`
	ElapsedMS  int64         `json:"elapsed_ms"`
}

// POST /v1/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, bindError(err))
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		response.RespondAPIError(c, apierr.BadRequest("invalid_request", errors.New("message is required")))
		return
	}
	settings := h.chat.Settings()
	if req.Temperature != nil {
		settings.Temperature = rag.ClampTemperature(*req.Temperature)
	}

	if req.Stream {
		h.stream(c, msg, settings)
		return
	}

	response.RespondOK(c, turnResponse(h.turn(c.Request.Context(), msg, settings)))
}

func (h *ChatHandler) turn(ctx context.Context, msg string, settings rag.Settings) rag.TurnResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.chat.TurnWith(ctx, msg, settings, nil)
}

// stream sends answer deltas as SSE "delta" events and finishes with a
// "done" event carrying the full turn.
func (h *ChatHandler) stream(c *gin.Context, msg string, settings rag.Settings) {
	settings.Stream = true
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	h.mu.Lock()
	defer h.mu.Unlock()
	res := h.chat.TurnWith(c.Request.Context(), msg, settings, func(delta string) {
		c.SSEvent("delta", gin.H{"text": delta})
		c.Writer.Flush()
	})
	c.SSEvent("done", turnResponse(res))
	c.Writer.Flush()
}

func turnResponse(res rag.TurnResult) chatResp {
	diseases := res.Diseases
	if diseases == nil {
		diseases = []string{}
	}
	return chatResp{
		TurnID:     res.TurnID,
		Answer:     res.Answer,
		Grounded:   res.Grounded,
		Diseases:   diseases,
		Extraction: res.Extraction,
		ElapsedMS:  res.Elapsed.Milliseconds(),
	}
}

type askReq struct {
	Question string `json:"question"`
}

// POST /v1/ask
func (h *ChatHandler) Ask(c *gin.Context) {
	var req askReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, bindError(err))
		return
	}
	q := strings.TrimSpace(req.Question)
	if q == "" {
		response.RespondAPIError(c, apierr.BadRequest("invalid_request", errors.New("question is required")))
		return
	}

	response.RespondOK(c, h.ask(c.Request.Context(), q))
}

func (h *ChatHandler) ask(ctx context.Context, q string) rag.AskResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.chat.Ask(ctx, q)
}

func bindError(err error) *apierr.Error {
	if errors.Is(err, io.EOF) {
		return apierr.BadRequest("invalid_request", errors.New("request body is empty"))
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apierr.New(http.StatusRequestEntityTooLarge, "request_too_large", err)
	}
	return apierr.BadRequest("invalid_request", err)
}
