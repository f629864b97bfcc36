package neo4jhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/medgraph/internal/platform/graphstore"
	"github.com/yungbote/medgraph/internal/platform/logger"
)

func TestExecuteDecodesRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/db/neo4j/tx/commit", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "neo4j", user)
		assert.Equal(t, "password", pass)

		var req commitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Statements, 1)
		assert.Equal(t, "头痛", req.Statements[0].Parameters["symptom"])

		_, _ = w.Write([]byte(`{"results":[{"columns":["d","n"],"data":[{"row":[{"name":"偏头痛","desc":"x"},3]}]}],"errors":[]}`))
	}))
	defer srv.Close()

	c, err := New(logger.Nop(), Config{BaseURL: srv.URL, User: "neo4j", Password: "password"})
	require.NoError(t, err)

	res, err := c.Execute(context.Background(), "MATCH (d) RETURN d, 3 AS n", map[string]any{"symptom": "头痛"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Len())
	assert.Equal(t, "偏头痛", res.Rows[0].String("d"))
	n, ok := graphstore.Int64(res.Rows[0][1].Value)
	assert.True(t, ok)
	assert.Equal(t, int64(3), n)
}

func TestExecuteSurfacesStatementErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[],"errors":[{"code":"Neo.ClientError.Statement.SyntaxError","message":"Invalid input"}]}`))
	}))
	defer srv.Close()

	c, err := New(nil, Config{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Execute(context.Background(), "MATCH", nil)
	var qe *graphstore.QueryError
	require.True(t, errors.As(err, &qe))
	assert.Contains(t, qe.Message, "SyntaxError")
}

func TestUnauthorizedMapsToAuthExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := New(nil, Config{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Execute(context.Background(), "RETURN 1", nil)
	assert.ErrorIs(t, err, graphstore.ErrAuthExpired)
}

func TestStrategyFailsWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := Strategy(nil, Config{BaseURL: srv.URL}).Dial(context.Background())
	assert.Error(t, err)
}
