package rag

import (
	"context"

	"github.com/yungbote/medgraph/internal/inference/engine"
	"github.com/yungbote/medgraph/internal/platform/ctxutil"
	"github.com/yungbote/medgraph/internal/platform/logger"
)

// Synthesizer turns retrieved context into the user-facing answer. It never
// returns an error: failures become apology text.
type Synthesizer struct {
	engine engine.Engine
	log    *logger.Logger
}

func NewSynthesizer(e engine.Engine, log *logger.Logger) *Synthesizer {
	if log == nil {
		log = logger.Nop()
	}
	return &Synthesizer{engine: e, log: log.With("component", "AnswerSynthesizer")}
}

func answerMessages(text, kgContext string) []engine.Message {
	system := fallbackSystemPrompt
	if kgContext != "" {
		system = groundedSystemPrompt
	}
	return []engine.Message{
		engine.System(system),
		engine.User("用户描述：" + text + "\n\n" + kgContext),
	}
}

func (s *Synthesizer) Answer(ctx context.Context, text, kgContext string, temperature float64) string {
	out, err := s.engine.Complete(ctx, answerMessages(text, kgContext), engine.Options{Temperature: temperature})
	if err != nil {
		s.log.Warn("answer synthesis failed", append(ctxutil.LogFields(ctx), "error", err)...)
		return answerApology + err.Error()
	}
	return out.Text
}

// Stream forwards deltas as they arrive and returns the full answer. On
// failure the apology is forwarded too, after whatever was already sent.
func (s *Synthesizer) Stream(ctx context.Context, text, kgContext string, temperature float64, onDelta func(string)) string {
	sent := false
	out, err := s.engine.Stream(ctx, answerMessages(text, kgContext), engine.Options{Temperature: temperature}, func(d string) {
		sent = true
		if onDelta != nil {
			onDelta(d)
		}
	})
	if err != nil {
		s.log.Warn("answer stream failed", append(ctxutil.LogFields(ctx), "error", err)...)
		apology := answerApology + err.Error()
		if onDelta != nil {
			if sent {
				onDelta("\n")
			}
			onDelta(apology)
		}
		return apology
	}
	return out.Text
}

// Phrase answers a generated-query question in one sentence from the
// rendered result.
func (s *Synthesizer) Phrase(ctx context.Context, question, result string) string {
	out, err := s.engine.Complete(ctx, []engine.Message{
		engine.System(phraseSystemPrompt),
		engine.User("用户问题：" + question + "\n查询结果：" + result),
	}, engine.Options{Temperature: 0})
	if err != nil {
		s.log.Warn("phrasing failed", append(ctxutil.LogFields(ctx), "error", err)...)
		return askApology + err.Error()
	}
	return out.Text
}
