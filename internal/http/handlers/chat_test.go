package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/medgraph/internal/kg"
	"github.com/yungbote/medgraph/internal/rag"
)

type fakeChat struct {
	settings rag.Settings
	gotText  string
	gotSet   rag.Settings
	deltas   []string
	asked    string
	panicOn  string
}

func (f *fakeChat) Settings() rag.Settings { return f.settings }

func (f *fakeChat) TurnWith(_ context.Context, text string, s rag.Settings, onDelta func(string)) rag.TurnResult {
	if f.panicOn != "" && text == f.panicOn {
		panic("turn blew up")
	}
	f.gotText, f.gotSet = text, s
	answer := strings.Join(f.deltas, "")
	if onDelta != nil && s.Stream {
		for _, d := range f.deltas {
			onDelta(d)
		}
	}
	return rag.TurnResult{
		TurnID:     "t-1",
		Answer:     answer,
		Grounded:   true,
		Diseases:   []string{"偏头痛"},
		Extraction: kg.Extraction{Symptoms: []string{"头痛"}},
	}
}

func (f *fakeChat) Ask(_ context.Context, q string) rag.AskResult {
	if f.panicOn != "" && q == f.panicOn {
		panic("ask blew up")
	}
	f.asked = q
	return rag.AskResult{TurnID: "a-1", Query: "RETURN 1 AS ok", Result: "ok：1。", Answer: "一切正常。"}
}

func newRouter(h *ChatHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/v1/chat", h.Chat)
	r.POST("/v1/ask", h.Ask)
	return r
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestChatReturnsTurn(t *testing.T) {
	fc := &fakeChat{settings: rag.DefaultSettings(), deltas: []string{"【数据来源：医疗知识图谱】", "偏头痛"}}
	rec := post(newRouter(NewChatHandler(fc)), "/v1/chat", `{"message":"  我头疼三天了 ","temperature":1.7}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body chatResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "t-1", body.TurnID)
	assert.Equal(t, "【数据来源：医疗知识图谱】偏头痛", body.Answer)
	assert.Equal(t, []string{"偏头痛"}, body.Diseases)
	assert.True(t, body.Grounded)
	assert.Equal(t, "我头疼三天了", fc.gotText)
	assert.Equal(t, 1.0, fc.gotSet.Temperature)
	assert.False(t, fc.gotSet.Stream)
}

func TestChatValidation(t *testing.T) {
	r := newRouter(NewChatHandler(&fakeChat{}))
	for _, body := range []string{``, `{"message":"   "}`, `{"message":`} {
		rec := post(r, "/v1/chat", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Contains(t, rec.Body.String(), `"code":"invalid_request"`, body)
	}
}

func TestChatStreamsSSE(t *testing.T) {
	fc := &fakeChat{settings: rag.DefaultSettings(), deltas: []string{"多喝水", "，注意休息"}}
	rec := post(newRouter(NewChatHandler(fc)), "/v1/chat", `{"message":"口渴","stream":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	out := rec.Body.String()
	assert.Equal(t, 2, strings.Count(out, "event:delta"))
	assert.Contains(t, out, "event:done")
	assert.Less(t, strings.Index(out, "多喝水"), strings.Index(out, "event:done"))
	assert.True(t, fc.gotSet.Stream)
	assert.Equal(t, rag.DefaultTemperature, fc.gotSet.Temperature)
}

func TestAsk(t *testing.T) {
	fc := &fakeChat{}
	r := newRouter(NewChatHandler(fc))

	rec := post(r, "/v1/ask", `{"question":"系统正常吗"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body rag.AskResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "一切正常。", body.Answer)
	assert.Equal(t, "RETURN 1 AS ok", body.Query)
	assert.Equal(t, "系统正常吗", fc.asked)

	rec = post(r, "/v1/ask", `{"question":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPanickingTurnReleasesLock(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fc := &fakeChat{settings: rag.DefaultSettings(), panicOn: "boom", deltas: []string{"好"}}
	h := NewChatHandler(fc)
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/v1/chat", h.Chat)
	r.POST("/v1/ask", h.Ask)

	assert.Equal(t, http.StatusInternalServerError, post(r, "/v1/chat", `{"message":"boom"}`).Code)
	assert.Equal(t, http.StatusInternalServerError, post(r, "/v1/ask", `{"question":"boom"}`).Code)

	done := make(chan int, 2)
	go func() {
		done <- post(r, "/v1/chat", `{"message":"头疼"}`).Code
		done <- post(r, "/v1/ask", `{"question":"正常吗"}`).Code
	}()
	for i := 0; i < 2; i++ {
		select {
		case code := <-done:
			assert.Equal(t, http.StatusOK, code)
		case <-time.After(2 * time.Second):
			t.Fatal("handler still locked after a panicking turn")
		}
	}
}
