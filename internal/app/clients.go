package app

import (
	"errors"

	"github.com/yungbote/medgraph/internal/config"
	"github.com/yungbote/medgraph/internal/inference/engine"
	"github.com/yungbote/medgraph/internal/inference/engine/oaihttp"
	"github.com/yungbote/medgraph/internal/observability"
	"github.com/yungbote/medgraph/internal/platform/graphstore"
	"github.com/yungbote/medgraph/internal/platform/logger"
	"github.com/yungbote/medgraph/internal/platform/neo4jdb"
	"github.com/yungbote/medgraph/internal/platform/neo4jhttp"
	"github.com/yungbote/medgraph/internal/platform/tugraph"
)

// Strategies turns graph.backends into connection strategies, in order.
func Strategies(cfg config.GraphConfig, log *logger.Logger) []graphstore.Strategy {
	out := make([]graphstore.Strategy, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		switch b {
		case config.BackendBolt:
			out = append(out, neo4jdb.Strategy(log, neo4jdb.Config{
				URI:         cfg.Neo4j.BoltURI(),
				User:        cfg.Neo4j.User,
				Password:    cfg.Neo4j.Password,
				Database:    cfg.Neo4j.Database,
				Timeout:     cfg.Neo4j.Timeout,
				MaxPoolSize: cfg.Neo4j.MaxPoolSize,
			}))
		case config.BackendHTTP:
			out = append(out, neo4jhttp.Strategy(log, neo4jhttp.Config{
				BaseURL:  cfg.Neo4j.HTTPURL(),
				User:     cfg.Neo4j.User,
				Password: cfg.Neo4j.Password,
				Database: cfg.Neo4j.Database,
				Timeout:  cfg.Neo4j.Timeout,
			}))
		case config.BackendTuGraph:
			out = append(out, tugraph.Strategy(log, tugraph.Config{
				BaseURL:      cfg.TuGraph.URL(),
				User:         cfg.TuGraph.User,
				Password:     cfg.TuGraph.Password,
				Graph:        cfg.TuGraph.Graph,
				LoginTimeout: cfg.TuGraph.LoginTimeout,
				QueryTimeout: cfg.TuGraph.QueryTimeout,
			}))
		default:
			log.Warn("unknown graph backend ignored", "backend", b)
		}
	}
	return out
}

// wireEngine builds the completion engine. Without an API key every call
// answers with engine.ErrNotConfigured so the pipeline still runs.
func wireEngine(log *logger.Logger, cfg config.CompletionConfig, override engine.Engine, m *observability.Metrics) (engine.Engine, bool) {
	eng := override
	if eng == nil {
		oe, err := oaihttp.New(oaihttp.Config{
			BaseURL:             cfg.BaseURL,
			APIKey:              cfg.APIKey,
			Model:               cfg.Model,
			ChatCompletionsPath: cfg.ChatCompletionsPath,
			MaxTokens:           cfg.MaxTokens,
			Timeout:             cfg.Timeout,
			StreamTimeout:       cfg.StreamTimeout,
		})
		switch {
		case errors.Is(err, engine.ErrNotConfigured):
			log.Warn("completion API key not set; answers will be apologies")
			eng = engine.Disabled{}
		case err != nil:
			log.Warn("completion engine init failed", "error", err)
			eng = engine.Disabled{}
		default:
			log.Info("completion engine ready", "model", oe.Model())
			eng = oe
		}
	}
	configured := !engine.IsDisabled(eng)
	eng = engine.WithMetrics(eng, m, cfg.Model)
	return engine.WithRateLimit(eng, cfg.RateLimit, cfg.Burst), configured
}
