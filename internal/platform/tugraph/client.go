// Package tugraph is the HTTP + token transport for a TuGraph server.
package tugraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/medgraph/internal/platform/graphstore"
	"github.com/yungbote/medgraph/internal/platform/logger"
)

type Config struct {
	BaseURL      string
	User         string
	Password     string
	Graph        string
	LoginTimeout time.Duration
	QueryTimeout time.Duration
}

type Client struct {
	baseURL      string
	user         string
	password     string
	graph        string
	loginTimeout time.Duration
	queryTimeout time.Duration

	httpClient *http.Client
	log        *logger.Logger
	now        func() time.Time

	mu         sync.Mutex
	token      string
	expires    time.Time
	generation uint64
}

func New(log *logger.Logger, cfg Config) (*Client, error) {
	return NewWithHTTPClient(log, cfg, nil)
}

func NewWithHTTPClient(log *logger.Logger, cfg Config, httpClient *http.Client) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("tugraph: base url required")
	}
	graph := strings.TrimSpace(cfg.Graph)
	if graph == "" {
		graph = "default"
	}
	if cfg.LoginTimeout <= 0 {
		cfg.LoginTimeout = 10 * time.Second
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		baseURL:      base,
		user:         cfg.User,
		password:     cfg.Password,
		graph:        graph,
		loginTimeout: cfg.LoginTimeout,
		queryTimeout: cfg.QueryTimeout,
		httpClient:   httpClient,
		log:          log.With("client", "TuGraph", "graph", graph),
		now:          time.Now,
	}, nil
}

// Strategy logs in and runs a count to prove the graph is reachable.
func Strategy(log *logger.Logger, cfg Config) graphstore.Strategy {
	return graphstore.Strategy{
		Name:    "tugraph",
		Dialect: graphstore.DialectTuGraph,
		Dial: func(ctx context.Context) (graphstore.Transport, error) {
			c, err := New(log, cfg)
			if err != nil {
				return nil, err
			}
			if _, err := c.Execute(ctx, "MATCH (n) RETURN count(n) AS count LIMIT 1", nil); err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}

// Login fetches a fresh token unconditionally.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginLocked(ctx)
}

func (c *Client) loginLocked(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{"user": c.user, "password": c.password})

	ctx, cancel := context.WithTimeout(ctx, c.loginTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tugraph: login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return fmt.Errorf("tugraph: login: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out struct {
		JWT string `json:"jwt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("tugraph: login: decode: %w", err)
	}
	if out.JWT == "" {
		return errors.New("tugraph: login: response has no jwt")
	}
	c.token = out.JWT
	c.expires = tokenExpiry(out.JWT)
	c.generation++
	c.log.Debug("tugraph login ok", "generation", c.generation)
	return nil
}

// tokenExpiry reads exp without verifying the signature. Zero means unknown.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// currentToken returns a usable token and its generation, logging in when
// there is none or it has expired.
func (c *Client) currentToken(ctx context.Context) (string, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || (!c.expires.IsZero() && !c.now().Before(c.expires)) {
		if err := c.loginLocked(ctx); err != nil {
			return "", 0, err
		}
	}
	return c.token, c.generation, nil
}

// refresh logs in again unless another caller already did since seen.
func (c *Client) refresh(ctx context.Context, seen uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != seen {
		return nil
	}
	return c.loginLocked(ctx)
}

type cypherRequest struct {
	Graph      string         `json:"graph"`
	Script     string         `json:"script"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type cypherResponse struct {
	Header []any   `json:"header"`
	Result [][]any `json:"result"`
}

func (c *Client) Execute(ctx context.Context, query string, params map[string]any) (*graphstore.Result, error) {
	token, gen, err := c.currentToken(ctx)
	if err != nil {
		return nil, err
	}
	res, err := c.cypher(ctx, token, query, params)
	if !errors.Is(err, graphstore.ErrAuthExpired) {
		return res, err
	}

	c.log.Info("tugraph token rejected, logging in again")
	if err := c.refresh(ctx, gen); err != nil {
		return nil, err
	}
	token, _, err = c.currentToken(ctx)
	if err != nil {
		return nil, err
	}
	return c.cypher(ctx, token, query, params)
}

func (c *Client) cypher(ctx context.Context, token, query string, params map[string]any) (*graphstore.Result, error) {
	body, err := json.Marshal(cypherRequest{Graph: c.graph, Script: query, Parameters: params})
	if err != nil {
		return nil, fmt.Errorf("tugraph: encode: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/cypher", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tugraph: request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("tugraph: %w", graphstore.ErrAuthExpired)
	case resp.StatusCode != http.StatusOK:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return nil, &graphstore.QueryError{Backend: "tugraph", Message: msg}
	}

	var out cypherResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("tugraph: decode: %w", err)
	}
	keys := headerNames(out.Header)
	result := &graphstore.Result{Keys: keys, Rows: make([]graphstore.Row, 0, len(out.Result))}
	for _, values := range out.Result {
		result.Rows = append(result.Rows, graphstore.NewRow(keys, values))
	}
	return result, nil
}

func headerNames(header []any) []string {
	out := make([]string, 0, len(header))
	for _, h := range header {
		switch t := h.(type) {
		case string:
			out = append(out, t)
		case map[string]any:
			out = append(out, graphstore.Stringify(t["name"]))
		default:
			out = append(out, "")
		}
	}
	return out
}

func (c *Client) Close(context.Context) error {
	c.httpClient.CloseIdleConnections()
	return nil
}
