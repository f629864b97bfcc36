package oaihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/medgraph/internal/inference/engine"
)

const (
	DefaultBaseURL   = "https://api.moonshot.cn"
	DefaultModel     = "kimi-k2-turbo-preview"
	DefaultMaxTokens = 4000
)

type Config struct {
	BaseURL             string
	APIKey              string
	Model               string
	ChatCompletionsPath string
	MaxTokens           int
	Timeout             time.Duration
	// StreamTimeout bounds a whole streamed answer; zero means Timeout.
	StreamTimeout time.Duration
}

type Engine struct {
	baseURL  string
	apiKey   string
	model    string
	chatPath string

	maxTokens     int
	timeout       time.Duration
	streamTimeout time.Duration

	httpClient *http.Client
}

func New(cfg Config) (*Engine, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, engine.ErrNotConfigured
	}
	chatPath := strings.TrimSpace(cfg.ChatCompletionsPath)
	if chatPath == "" {
		chatPath = "/v1/chat/completions"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	streamTimeout := cfg.StreamTimeout
	if streamTimeout <= 0 {
		streamTimeout = timeout
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Engine{
		baseURL:       baseURL,
		apiKey:        strings.TrimSpace(cfg.APIKey),
		model:         model,
		chatPath:      chatPath,
		maxTokens:     maxTokens,
		timeout:       timeout,
		streamTimeout: streamTimeout,
		httpClient:    &http.Client{Transport: tr},
	}, nil
}

// NewWithHTTPClient is intended for tests; it avoids network access by using a custom RoundTripper.
func NewWithHTTPClient(cfg Config, httpClient *http.Client) (*Engine, error) {
	e, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		e.httpClient = httpClient
	}
	return e, nil
}

// Model is the default model name sent upstream.
func (e *Engine) Model() string { return e.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatCompletionRequest struct {
	Model         string         `json:"model"`
	Messages      []chatMessage  `json:"messages"`
	Temperature   *float64       `json:"temperature,omitempty"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content,omitempty"`
		} `json:"message,omitempty"`
		Text string `json:"text,omitempty"`
	} `json:"choices"`
	Usage *engine.Usage `json:"usage,omitempty"`
}

type chatCompletionStreamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content,omitempty"`
		} `json:"delta,omitempty"`
		Text  string        `json:"text,omitempty"`
		Usage *engine.Usage `json:"usage,omitempty"`
	} `json:"choices"`
	Usage *engine.Usage `json:"usage,omitempty"`
	Error any           `json:"error,omitempty"`
}

func (e *Engine) Complete(ctx context.Context, messages []engine.Message, opts engine.Options) (*engine.Completion, error) {
	chatMsgs := toChatMessages(messages)
	if len(chatMsgs) == 0 {
		return nil, errors.New("oaihttp: no messages")
	}

	var resp chatCompletionResponse
	if err := e.doJSON(ctx, e.timeout, http.MethodPost, e.chatPath, e.buildChatRequest(chatMsgs, opts, false), &resp); err != nil {
		return nil, err
	}
	text := extractChatText(resp)
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("oaihttp: empty upstream completion")
	}
	out := &engine.Completion{Text: text, Model: firstNonEmpty(resp.Model, e.modelFor(opts))}
	if resp.Usage != nil {
		out.Usage = *resp.Usage
	}
	return out, nil
}

func (e *Engine) Stream(ctx context.Context, messages []engine.Message, opts engine.Options, onDelta func(delta string)) (*engine.Completion, error) {
	chatMsgs := toChatMessages(messages)
	if len(chatMsgs) == 0 {
		return nil, errors.New("oaihttp: no messages")
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(e.buildChatRequest(chatMsgs, opts, true)); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.streamTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+e.chatPath, &buf)
	if err != nil {
		return nil, err
	}
	e.setHeaders(req, "application/json", "text/event-stream")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, readHTTPError(resp)
	}

	out := &engine.Completion{Model: e.modelFor(opts)}
	var full strings.Builder
	err = streamSSE(resp.Body, func(_ string, data string) error {
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			return nil
		}

		var chunk chatCompletionStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil
		}
		if chunk.Error != nil {
			b, _ := json.Marshal(chunk.Error)
			return fmt.Errorf("oaihttp: upstream stream error: %s", string(b))
		}
		if chunk.Model != "" {
			out.Model = chunk.Model
		}
		if chunk.Usage != nil {
			out.Usage = *chunk.Usage
		}
		for _, c := range chunk.Choices {
			if c.Usage != nil {
				out.Usage = *c.Usage
			}
			delta := c.Delta.Content
			if delta == "" {
				delta = c.Text
			}
			if delta == "" {
				continue
			}
			full.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Text = full.String()
	return out, nil
}

func (e *Engine) modelFor(opts engine.Options) string {
	if m := strings.TrimSpace(opts.Model); m != "" {
		return m
	}
	return e.model
}

func (e *Engine) buildChatRequest(messages []chatMessage, opts engine.Options, stream bool) chatCompletionRequest {
	temp := opts.Temperature
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = e.maxTokens
	}
	req := chatCompletionRequest{
		Model:       e.modelFor(opts),
		Messages:    messages,
		Temperature: &temp,
		MaxTokens:   maxTokens,
		Stream:      stream,
	}
	if stream {
		req.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return req
}

func toChatMessages(messages []engine.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		role := strings.TrimSpace(m.Role)
		content := strings.TrimSpace(m.Content)
		if role == "" || content == "" {
			continue
		}
		out = append(out, chatMessage{Role: role, Content: content})
	}
	return out
}

func extractChatText(resp chatCompletionResponse) string {
	for _, c := range resp.Choices {
		if strings.TrimSpace(c.Message.Content) != "" {
			return c.Message.Content
		}
		if strings.TrimSpace(c.Text) != "" {
			return c.Text
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func (e *Engine) setHeaders(req *http.Request, contentType string, accept string) {
	if strings.TrimSpace(contentType) != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if strings.TrimSpace(accept) != "" {
		req.Header.Set("Accept", accept)
	}
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
}

func (e *Engine) doJSON(ctx context.Context, timeout time.Duration, method string, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, &buf)
	if err != nil {
		return err
	}
	e.setHeaders(req, "application/json", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readHTTPError(resp)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
