// Package mock is a scripted engine for tests.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/yungbote/medgraph/internal/inference/engine"
)

// Reply decides the answer for one call. Returning an error fails the call.
type Reply func(messages []engine.Message, opts engine.Options) (string, error)

type Engine struct {
	mu      sync.Mutex
	replies []Reply
	calls   [][]engine.Message
	opts    []engine.Options
}

// New answers calls in order with the given replies; once they run out it
// echoes the last user message.
func New(replies ...Reply) *Engine {
	return &Engine{replies: replies}
}

// Text is a Reply that always returns s.
func Text(s string) Reply {
	return func([]engine.Message, engine.Options) (string, error) { return s, nil }
}

func Fail(err error) Reply {
	return func([]engine.Message, engine.Options) (string, error) { return "", err }
}

func (e *Engine) Complete(ctx context.Context, messages []engine.Message, opts engine.Options) (*engine.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	n := len(e.calls)
	e.calls = append(e.calls, append([]engine.Message(nil), messages...))
	e.opts = append(e.opts, opts)
	var reply Reply
	if n < len(e.replies) {
		reply = e.replies[n]
	}
	e.mu.Unlock()

	text := ""
	if reply != nil {
		var err error
		if text, err = reply(messages, opts); err != nil {
			return nil, err
		}
	} else {
		text = fmt.Sprintf("mock: %s", lastUser(messages))
	}
	words := len(strings.Fields(text))
	return &engine.Completion{
		Text:  text,
		Model: "mock",
		Usage: engine.Usage{CompletionTokens: words, TotalTokens: words},
	}, nil
}

func (e *Engine) Stream(ctx context.Context, messages []engine.Message, opts engine.Options, onDelta func(string)) (*engine.Completion, error) {
	c, err := e.Complete(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	if onDelta == nil {
		return c, nil
	}
	runes := []rune(c.Text)
	const chunk = 8
	for i := 0; i < len(runes); i += chunk {
		end := min(i+chunk, len(runes))
		onDelta(string(runes[i:end]))
	}
	return c, nil
}

// Calls returns the messages of every call so far.
func (e *Engine) Calls() [][]engine.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]engine.Message(nil), e.calls...)
}

// Options returns the options of every call so far.
func (e *Engine) Options() []engine.Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.Options(nil), e.opts...)
}

func lastUser(messages []engine.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if strings.EqualFold(messages[i].Role, "user") {
			return messages[i].Content
		}
	}
	return "ok"
}
