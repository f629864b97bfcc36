package neo4jdb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/yungbote/medgraph/internal/platform/graphstore"
	"github.com/yungbote/medgraph/internal/platform/logger"
)

type Config struct {
	URI         string
	User        string
	Password    string
	Database    string
	Timeout     time.Duration
	MaxPoolSize int
}

type Client struct {
	Driver   neo4j.DriverWithContext
	Database string
	timeout  time.Duration
	log      *logger.Logger
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("neo4jdb: logger required")
	}
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, fmt.Errorf("neo4jdb: uri required")
	}
	user := strings.TrimSpace(cfg.User)
	if user == "" {
		user = "neo4j"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxPool := cfg.MaxPoolSize
	if maxPool <= 0 {
		maxPool = 50
	}

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, cfg.Password, ""), func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = maxPool
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: init driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4jdb: verify connectivity: %w", err)
	}

	return &Client{
		Driver:   driver,
		Database: strings.TrimSpace(cfg.Database),
		timeout:  3 * timeout,
		log:      log.With("client", "Neo4jDB"),
	}, nil
}

// Strategy dials Bolt as a graphstore connection strategy.
func Strategy(log *logger.Logger, cfg Config) graphstore.Strategy {
	return graphstore.Strategy{
		Name:    "bolt",
		Dialect: graphstore.DialectNeo4j,
		Dial: func(ctx context.Context) (graphstore.Transport, error) {
			return New(ctx, log, cfg)
		},
	}
}

// Execute runs query in a write transaction.
func (c *Client) Execute(ctx context.Context, query string, params map[string]any) (*graphstore.Result, error) {
	return c.run(ctx, false, query, params)
}

// ExecuteRead runs query in a read-mode session, so the server refuses writes.
func (c *Client) ExecuteRead(ctx context.Context, query string, params map[string]any) (*graphstore.Result, error) {
	return c.run(ctx, true, query, params)
}

func (c *Client) sessionConfig(readOnly bool) neo4j.SessionConfig {
	mode := neo4j.AccessModeWrite
	if readOnly {
		mode = neo4j.AccessModeRead
	}
	return neo4j.SessionConfig{AccessMode: mode, DatabaseName: c.Database}
}

func (c *Client) run(ctx context.Context, readOnly bool, query string, params map[string]any) (*graphstore.Result, error) {
	if c == nil || c.Driver == nil {
		return nil, graphstore.ErrNotConnected
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	session := c.Driver.NewSession(ctx, c.sessionConfig(readOnly))
	defer session.Close(ctx)

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		keys, err := res.Keys()
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		result := &graphstore.Result{Keys: keys, Rows: make([]graphstore.Row, 0, len(records))}
		for _, rec := range records {
			values := make([]any, len(rec.Values))
			for i, v := range rec.Values {
				values[i] = fromDriver(v)
			}
			result.Rows = append(result.Rows, graphstore.NewRow(rec.Keys, values))
		}
		return result, nil
	}

	var out any
	var err error
	if readOnly {
		out, err = session.ExecuteRead(ctx, work)
	} else {
		out, err = session.ExecuteWrite(ctx, work)
	}
	if err != nil {
		var neoErr *neo4j.Neo4jError
		if errors.As(err, &neoErr) {
			return nil, &graphstore.QueryError{Backend: "bolt", Message: neoErr.Msg, Err: err}
		}
		return nil, fmt.Errorf("neo4jdb: execute: %w", err)
	}
	return out.(*graphstore.Result), nil
}

func fromDriver(v any) any {
	switch t := v.(type) {
	case dbtype.Node:
		out := make(map[string]any, len(t.Props)+1)
		for k, p := range t.Props {
			out[k] = fromDriver(p)
		}
		out[graphstore.LabelsKey] = t.Labels
		return out
	case dbtype.Relationship:
		out := make(map[string]any, len(t.Props)+1)
		for k, p := range t.Props {
			out[k] = fromDriver(p)
		}
		out[graphstore.TypeKey] = t.Type
		return out
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = fromDriver(t[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, p := range t {
			out[k] = fromDriver(p)
		}
		return out
	default:
		return v
	}
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := c.Driver.Close(ctx)
	c.Driver = nil
	return err
}
