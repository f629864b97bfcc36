// Package neo4jhttp talks to Neo4j through the transactional HTTP endpoint.
// It is the fallback when Bolt is blocked.
package neo4jhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/medgraph/internal/platform/graphstore"
	"github.com/yungbote/medgraph/internal/platform/logger"
)

type Config struct {
	BaseURL  string
	User     string
	Password string
	Database string
	Timeout  time.Duration
}

type Client struct {
	commitURL string
	user      string
	password  string
	timeout   time.Duration

	httpClient *http.Client
	log        *logger.Logger
}

func New(log *logger.Logger, cfg Config) (*Client, error) {
	return NewWithHTTPClient(log, cfg, nil)
}

// NewWithHTTPClient lets tests substitute the transport.
func NewWithHTTPClient(log *logger.Logger, cfg Config, httpClient *http.Client) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("neo4jhttp: base url required")
	}
	db := strings.TrimSpace(cfg.Database)
	if db == "" {
		db = "neo4j"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
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
		commitURL:  base + "/db/" + url.PathEscape(db) + "/tx/commit",
		user:       cfg.User,
		password:   cfg.Password,
		timeout:    timeout,
		httpClient: httpClient,
		log:        log.With("client", "Neo4jHTTP"),
	}, nil
}

// Strategy dials the HTTP endpoint and verifies it with a trivial statement.
func Strategy(log *logger.Logger, cfg Config) graphstore.Strategy {
	return graphstore.Strategy{
		Name:    "http",
		Dialect: graphstore.DialectNeo4j,
		Dial: func(ctx context.Context) (graphstore.Transport, error) {
			c, err := New(log, cfg)
			if err != nil {
				return nil, err
			}
			if _, err := c.Execute(ctx, "RETURN 1 AS ok", nil); err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}

type statement struct {
	Statement          string         `json:"statement"`
	Parameters         map[string]any `json:"parameters,omitempty"`
	ResultDataContents []string       `json:"resultDataContents"`
}

type commitRequest struct {
	Statements []statement `json:"statements"`
}

type commitResponse struct {
	Results []struct {
		Columns []string `json:"columns"`
		Data    []struct {
			Row []any `json:"row"`
		} `json:"data"`
	} `json:"results"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) Execute(ctx context.Context, query string, params map[string]any) (*graphstore.Result, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(commitRequest{Statements: []statement{{
		Statement:          query,
		Parameters:         params,
		ResultDataContents: []string{"row"},
	}}}); err != nil {
		return nil, fmt.Errorf("neo4jhttp: encode: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.commitURL, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.user, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("neo4jhttp: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("neo4jhttp: %w", graphstore.ErrAuthExpired)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return nil, &graphstore.QueryError{Backend: "http", Message: fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))}
	}

	var out commitResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("neo4jhttp: decode: %w", err)
	}
	if len(out.Errors) > 0 {
		e := out.Errors[0]
		return nil, &graphstore.QueryError{Backend: "http", Message: e.Code + ": " + e.Message}
	}

	result := &graphstore.Result{}
	if len(out.Results) == 0 {
		return result, nil
	}
	result.Keys = out.Results[0].Columns
	for _, d := range out.Results[0].Data {
		result.Rows = append(result.Rows, graphstore.NewRow(result.Keys, d.Row))
	}
	return result, nil
}

func (c *Client) Close(context.Context) error {
	c.httpClient.CloseIdleConnections()
	return nil
}
