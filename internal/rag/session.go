package rag

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/medgraph/internal/inference/engine"
	"github.com/yungbote/medgraph/internal/kg"
	"github.com/yungbote/medgraph/internal/observability"
	"github.com/yungbote/medgraph/internal/platform/ctxutil"
	"github.com/yungbote/medgraph/internal/platform/logger"
)

const DefaultTemperature = 0.5

type Settings struct {
	Temperature float64 `json:"temperature"`
	Verbose     bool    `json:"verbose"`
	Stream      bool    `json:"stream"`
}

func DefaultSettings() Settings {
	return Settings{Temperature: DefaultTemperature}
}

// ClampTemperature keeps t within [0, 1].
func ClampTemperature(t float64) float64 {
	switch {
	case t < 0:
		return 0
	case t > 1:
		return 1
	}
	return t
}

type TurnResult struct {
	TurnID     string        `json:"turn_id"`
	Extraction kg.Extraction `json:"extraction"`
	Diseases   []string      `json:"diseases"`
	Context    string        `json:"context,omitempty"`
	Answer     string        `json:"answer"`
	Grounded   bool          `json:"grounded"`
	Elapsed    time.Duration `json:"-"`
}

type AskResult struct {
	TurnID string `json:"turn_id"`
	Query  string `json:"query,omitempty"`
	Result string `json:"result,omitempty"`
	Answer string `json:"answer"`
}

type Session struct {
	extractor *StructuredExtractor
	generator *QueryGenerator
	retriever *Retriever
	synth     *Synthesizer
	log       *logger.Logger

	mu       sync.Mutex
	settings Settings
}

// NewSession wires the pipeline around one store and one engine. store may be
// nil, in which case every turn answers from the fallback template.
func NewSession(store GraphStore, eng engine.Engine, log *logger.Logger, settings Settings) *Session {
	if log == nil {
		log = logger.Nop()
	}
	var schema SchemaSource
	if s, ok := store.(SchemaSource); ok {
		schema = s
	}
	settings.Temperature = ClampTemperature(settings.Temperature)
	return &Session{
		extractor: NewStructuredExtractor(eng, log),
		generator: NewQueryGenerator(eng, schema, log),
		retriever: NewRetriever(store, log),
		synth:     NewSynthesizer(eng, log),
		log:       log.With("component", "ChatSession"),
		settings:  settings,
	}
}

func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Session) SetTemperature(t float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.Temperature = ClampTemperature(t)
	return s.settings.Temperature
}

func (s *Session) SetVerbose(v bool) {
	s.mu.Lock()
	s.settings.Verbose = v
	s.mu.Unlock()
}

func (s *Session) SetStream(v bool) {
	s.mu.Lock()
	s.settings.Stream = v
	s.mu.Unlock()
}

func (s *Session) Turn(ctx context.Context, text string) TurnResult {
	return s.TurnWith(ctx, text, s.Settings(), nil)
}

// TurnStream runs extract, retrieve and synthesize in order. When streaming
// is enabled and onDelta is set, answer deltas are forwarded as they arrive.
func (s *Session) TurnStream(ctx context.Context, text string, onDelta func(string)) TurnResult {
	return s.TurnWith(ctx, text, s.Settings(), onDelta)
}

// TurnWith uses per-call settings and leaves the session's own untouched.
func (s *Session) TurnWith(ctx context.Context, text string, settings Settings, onDelta func(string)) TurnResult {
	settings.Temperature = ClampTemperature(settings.Temperature)
	return s.turn(ctx, text, settings, onDelta)
}

func (s *Session) turn(ctx context.Context, text string, settings Settings, onDelta func(string)) TurnResult {
	start := time.Now()
	res := TurnResult{TurnID: turnID(ctx)}
	ctx = ctxutil.WithTurnID(ctx, res.TurnID)
	ctx, span := observability.StartSpan(ctx, "rag.turn", attribute.String("turn.id", res.TurnID))
	defer span.End()

	log := s.log.With(ctxutil.LogFields(ctx)...)

	ex, err := s.extract(ctx, text, settings.Temperature)
	if err != nil {
		log.Warn("entity extraction failed", "error", err)
	}
	res.Extraction = ex
	if settings.Verbose {
		log.Info("extracted", "symptoms", ex.Symptoms, "disease_name", ex.DiseaseName, "severity", ex.Severity, "duration", ex.Duration)
	}

	retrieved, err := s.retrieve(ctx, ex)
	if err != nil {
		log.Warn("graph retrieval failed", "error", err)
	}
	if retrieved != nil {
		res.Diseases = retrieved.Names()
		res.Context = retrieved.Context
	}
	res.Grounded = res.Context != ""

	sctx, sspan := observability.StartSpan(ctx, "rag.synthesize", attribute.Bool("rag.grounded", res.Grounded))
	if settings.Stream && onDelta != nil {
		res.Answer = s.synth.Stream(sctx, text, res.Context, settings.Temperature, onDelta)
	} else {
		res.Answer = s.synth.Answer(sctx, text, res.Context, settings.Temperature)
	}
	sspan.End()

	res.Elapsed = time.Since(start)
	observability.Current().ObserveTurn("turn", res.Grounded)
	log.Info("turn complete", "diseases", len(res.Diseases), "grounded", res.Grounded, "elapsed", res.Elapsed)
	return res
}

// turnID reuses an id already stamped on ctx, such as the one the HTTP
// API assigns per request.
func turnID(ctx context.Context) string {
	if id := ctxutil.TurnID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

func (s *Session) extract(ctx context.Context, text string, temperature float64) (ex kg.Extraction, err error) {
	ctx, span := observability.StartSpan(ctx, "rag.extract")
	defer func() { observability.EndSpan(span, err) }()
	return s.extractor.Extract(ctx, text, temperature)
}

func (s *Session) retrieve(ctx context.Context, ex kg.Extraction) (r *Retrieved, err error) {
	ctx, span := observability.StartSpan(ctx, "rag.retrieve", attribute.Int("rag.symptoms", len(ex.Symptoms)))
	defer func() {
		if r != nil {
			span.SetAttributes(attribute.Int("rag.diseases", len(r.Diseases)))
		}
		observability.EndSpan(span, err)
	}()
	return s.retriever.Retrieve(ctx, ex)
}

// Ask answers through a generated read-only query. Errors end up in the
// answer text.
func (s *Session) Ask(ctx context.Context, question string) AskResult {
	res := AskResult{TurnID: turnID(ctx)}
	ctx = ctxutil.WithTurnID(ctx, res.TurnID)
	ctx, span := observability.StartSpan(ctx, "rag.ask", attribute.String("turn.id", res.TurnID))
	defer span.End()
	log := s.log.With(ctxutil.LogFields(ctx)...)

	q, err := s.generator.Generate(ctx, question)
	if err != nil {
		log.Warn("query generation failed", "error", err)
		res.Answer = askApology + err.Error()
		return res
	}
	res.Query = q
	if s.Settings().Verbose {
		log.Info("generated query", "query", q)
	}

	out, err := s.retriever.RunGenerated(ctx, q)
	observability.Current().ObserveTurn("ask", err == nil)
	if err != nil {
		log.Warn("generated query not executed", "error", err)
		out = GeneratedResultText(err)
		if errors.Is(err, context.Canceled) {
			res.Result = out
			res.Answer = askApology + err.Error()
			return res
		}
	}
	res.Result = out
	res.Answer = s.synth.Phrase(ctx, question, out)
	return res
}
