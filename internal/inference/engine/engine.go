package engine

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by every call on an engine without credentials.
var ErrNotConfigured = errors.New("engine: completion model not configured")

type Message struct {
	Role    string
	Content string
}

func System(content string) Message { return Message{Role: "system", Content: content} }
func User(content string) Message   { return Message{Role: "user", Content: content} }

type Options struct {
	Temperature float64
	// MaxTokens <= 0 uses the engine default.
	MaxTokens int
	// Model overrides the engine default when set.
	Model string
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Completion struct {
	Text  string
	Model string
	Usage Usage
}

type Engine interface {
	Complete(ctx context.Context, messages []Message, opts Options) (*Completion, error)
	// Stream calls onDelta for each text fragment and returns the assembled completion.
	Stream(ctx context.Context, messages []Message, opts Options, onDelta func(delta string)) (*Completion, error)
}

// Disabled stands in when no API key is configured.
type Disabled struct{}

func (Disabled) Complete(context.Context, []Message, Options) (*Completion, error) {
	return nil, ErrNotConfigured
}

func (Disabled) Stream(context.Context, []Message, Options, func(string)) (*Completion, error) {
	return nil, ErrNotConfigured
}

// IsDisabled reports whether e is the Disabled engine.
func IsDisabled(e Engine) bool {
	switch e.(type) {
	case nil, Disabled, *Disabled:
		return true
	}
	return false
}
