package graphstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/medgraph/internal/observability"
	"github.com/yungbote/medgraph/internal/platform/logger"
)

type Executor interface {
	Execute(ctx context.Context, query string, params map[string]any) (*Result, error)
}

// ReadExecutor is implemented by transports that can run a statement in a
// session the database itself holds to read-only.
type ReadExecutor interface {
	ExecuteRead(ctx context.Context, query string, params map[string]any) (*Result, error)
}

// Transport is one connected backend.
type Transport interface {
	Executor
	Close(ctx context.Context) error
}

type Dialect int

const (
	DialectNeo4j Dialect = iota
	// DialectTuGraph names labels through db.vertexLabels/db.edgeLabels.
	DialectTuGraph
)

// Strategy is one way of reaching a backend. Dial must verify the connection.
type Strategy struct {
	Name    string
	Dialect Dialect
	Dial    func(ctx context.Context) (Transport, error)
}

// Static wraps an already-open transport, mostly for tests.
func Static(name string, d Dialect, t Transport) Strategy {
	return Strategy{Name: name, Dialect: d, Dial: func(context.Context) (Transport, error) { return t, nil }}
}

type Client struct {
	log        *logger.Logger
	strategies []Strategy

	mu      sync.RWMutex
	active  Transport
	backend string
	dialect Dialect
}

func NewClient(log *logger.Logger, strategies ...Strategy) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{log: log.With("client", "GraphStore"), strategies: strategies}
}

// Connect tries each strategy in order and keeps the first that answers.
// On failure the client stays usable but every call returns ErrNotConnected.
func (c *Client) Connect(ctx context.Context) error {
	var errs []error
	for _, s := range c.strategies {
		t, err := s.Dial(ctx)
		if err != nil {
			c.log.Warn("graph backend unavailable", "backend", s.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		c.mu.Lock()
		old := c.active
		c.active, c.backend, c.dialect = t, s.Name, s.Dialect
		c.mu.Unlock()
		if old != nil {
			_ = old.Close(ctx)
		}
		c.log.Info("graph backend connected", "backend", s.Name)
		return nil
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no strategies configured"))
	}
	return &ConnectionError{Err: errors.Join(errs...)}
}

func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active != nil
}

// Backend names the strategy in use, "" when disconnected.
func (c *Client) Backend() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backend
}

func (c *Client) transport() (Transport, Dialect, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.active == nil {
		return nil, c.dialect, ErrNotConnected
	}
	return c.active, c.dialect, nil
}

func (c *Client) Execute(ctx context.Context, query string, params map[string]any) (*Result, error) {
	t, _, err := c.transport()
	if err != nil {
		return nil, err
	}
	return c.observe(ctx, t.Execute, query, params)
}

// ExecuteReadOnly gates the statement before it reaches the store, then runs
// it in a read session when the transport has one.
func (c *Client) ExecuteReadOnly(ctx context.Context, query string, params map[string]any) (*Result, error) {
	if err := CheckReadOnly(query); err != nil {
		return nil, err
	}
	t, _, err := c.transport()
	if err != nil {
		return nil, err
	}
	if r, ok := t.(ReadExecutor); ok {
		return c.observe(ctx, r.ExecuteRead, query, params)
	}
	return c.observe(ctx, t.Execute, query, params)
}

type execFunc func(ctx context.Context, query string, params map[string]any) (*Result, error)

func (c *Client) observe(ctx context.Context, run execFunc, query string, params map[string]any) (*Result, error) {
	if params == nil {
		params = map[string]any{}
	}
	start := time.Now()
	res, err := run(ctx, query, params)
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.Current().ObserveGraphQuery(c.Backend(), status, time.Since(start))
	return res, err
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Execute(ctx, "RETURN 1 AS ok", nil)
	return err
}

func (c *Client) CountNodes(ctx context.Context) (int64, error) {
	res, err := c.Execute(ctx, "MATCH (n) RETURN count(n) AS count", nil)
	if err != nil {
		return 0, err
	}
	return firstCount(res)
}

// CountLabel counts nodes of one label.
func (c *Client) CountLabel(ctx context.Context, label string) (int64, error) {
	res, err := c.Execute(ctx, fmt.Sprintf("MATCH (n:%s) RETURN count(n) AS count", label), nil)
	if err != nil {
		return 0, err
	}
	return firstCount(res)
}

// CountRelationships counts edges of one type.
func (c *Client) CountRelationships(ctx context.Context, relType string) (int64, error) {
	res, err := c.Execute(ctx, fmt.Sprintf("MATCH ()-[r:%s]->() RETURN count(r) AS count", relType), nil)
	if err != nil {
		return 0, err
	}
	return firstCount(res)
}

func firstCount(res *Result) (int64, error) {
	if res.Len() == 0 || len(res.Rows[0]) == 0 {
		return 0, &QueryError{Message: "count returned no rows"}
	}
	n, ok := Int64(res.Rows[0][0].Value)
	if !ok {
		return 0, &QueryError{Message: fmt.Sprintf("count returned %T", res.Rows[0][0].Value)}
	}
	return n, nil
}

type SchemaInfo struct {
	Labels            []string `json:"labels" yaml:"labels"`
	RelationshipTypes []string `json:"relationship_types" yaml:"relationship_types"`
}

func (c *Client) Schema(ctx context.Context) (*SchemaInfo, error) {
	_, dialect, err := c.transport()
	if err != nil {
		return nil, err
	}
	labelsQ, relsQ := "CALL db.labels()", "CALL db.relationshipTypes()"
	if dialect == DialectTuGraph {
		labelsQ, relsQ = "CALL db.vertexLabels()", "CALL db.edgeLabels()"
	}
	labels, err := c.column(ctx, labelsQ)
	if err != nil {
		return nil, fmt.Errorf("graphstore: labels: %w", err)
	}
	rels, err := c.column(ctx, relsQ)
	if err != nil {
		return nil, fmt.Errorf("graphstore: relationship types: %w", err)
	}
	return &SchemaInfo{Labels: labels, RelationshipTypes: rels}, nil
}

func (c *Client) column(ctx context.Context, q string) ([]string, error) {
	res, err := c.Execute(ctx, q, nil)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, res.Len())
	for _, row := range res.Rows {
		if len(row) > 0 {
			out = append(out, Stringify(row[0].Value))
		}
	}
	return out, nil
}

func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	t := c.active
	c.active, c.backend = nil, ""
	c.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.Close(ctx)
}
