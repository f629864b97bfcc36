package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/medgraph/internal/config"
	"github.com/yungbote/medgraph/internal/inference/engine"
	"github.com/yungbote/medgraph/internal/ingest"
	"github.com/yungbote/medgraph/internal/observability"
	"github.com/yungbote/medgraph/internal/platform/graphstore"
	"github.com/yungbote/medgraph/internal/platform/logger"
	"github.com/yungbote/medgraph/internal/rag"
)

type App struct {
	Log    *logger.Logger
	Config *config.Config
	Graph  *graphstore.Client
	Engine engine.Engine
	// Metrics is nil unless metrics.enabled or METRICS_ENABLED is set.
	Metrics *observability.Metrics

	completionConfigured bool
	shutdownOtel         func(context.Context) error
}

// Options override pieces of the wiring, mostly for tests.
type Options struct {
	Log        *logger.Logger
	Engine     engine.Engine
	Strategies []graphstore.Strategy
	// SkipGraph leaves the graph client disconnected without dialing.
	SkipGraph bool
}

// New builds the logger, tracing, completion engine and graph client. A graph
// that cannot be reached is logged and left disconnected; commands decide
// whether that is fatal.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	log := opts.Log
	if log == nil {
		l, err := logger.NewWithConfig(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		log = l
	}

	a := &App{Log: log, Config: cfg}
	a.shutdownOtel = observability.InitOTel(ctx, log, cfg.Otel)
	a.Metrics = observability.Init(cfg.Metrics.Enabled)

	eng, configured := wireEngine(log, cfg.Completion, opts.Engine, a.Metrics)
	a.Engine, a.completionConfigured = eng, configured

	strategies := opts.Strategies
	if strategies == nil {
		strategies = Strategies(cfg.Graph, log)
	}
	a.Graph = graphstore.NewClient(log, strategies...)
	if !opts.SkipGraph {
		if err := a.Graph.Connect(ctx); err != nil {
			log.Warn("graph store unavailable, continuing without it", "error", err)
		}
	}
	return a, nil
}

// CompletionConfigured is false when no API key was supplied.
func (a *App) CompletionConfigured() bool { return a.completionConfigured }

// store hides a disconnected client so callers see a nil store.
func (a *App) store() rag.GraphStore {
	if a.Graph == nil || !a.Graph.Connected() {
		return nil
	}
	return a.Graph
}

// Session starts a chat session using the configured defaults.
func (a *App) Session() *rag.Session {
	return rag.NewSession(a.store(), a.Engine, a.Log, rag.Settings{
		Temperature: a.Config.Chat.Temperature,
		Verbose:     a.Config.Chat.Verbose,
		Stream:      a.Config.Chat.Stream,
	})
}

// Importer returns an importer bound to the graph, or to no store when the
// graph is down. A non-dry run without a store fails in Run.
func (a *App) Importer(opts ingest.Options) *ingest.Importer {
	var store ingest.Store
	if a.Graph != nil && a.Graph.Connected() {
		store = a.Graph
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = a.Config.Ingest.BatchSize
	}
	if opts.NodeWorkers <= 0 {
		opts.NodeWorkers = a.Config.Ingest.NodeWorkers
	}
	return ingest.NewImporter(store, a.Log, opts)
}

func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.Graph != nil {
		if err := a.Graph.Close(ctx); err != nil {
			a.Log.Warn("graph close failed", "error", err)
		}
	}
	if a.shutdownOtel != nil {
		if err := a.shutdownOtel(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}
