package neo4jdb

import (
	"context"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/medgraph/internal/platform/graphstore"
	"github.com/yungbote/medgraph/internal/platform/logger"
)

func TestFromDriverNormalizesNodes(t *testing.T) {
	node := dbtype.Node{Labels: []string{"Disease"}, Props: map[string]any{"name": "偏头痛", "cure_way": []any{"药物治疗"}}}
	got := fromDriver([]any{node, dbtype.Relationship{Type: "has_symptom", Props: map[string]any{"name": "症状"}}})

	list := got.([]any)
	require.Len(t, list, 2)
	n := list[0].(map[string]any)
	assert.Equal(t, "偏头痛", n["name"])
	assert.Equal(t, []string{"Disease"}, n[graphstore.LabelsKey])
	r := list[1].(map[string]any)
	assert.Equal(t, "has_symptom", r[graphstore.TypeKey])
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(context.Background(), nil, Config{URI: "bolt://127.0.0.1:7687"})
	assert.Error(t, err)
	_, err = New(context.Background(), logger.Nop(), Config{})
	assert.Error(t, err)
}

func TestExecuteOnClosedClient(t *testing.T) {
	var c *Client
	_, err := c.Execute(context.Background(), "RETURN 1", nil)
	assert.ErrorIs(t, err, graphstore.ErrNotConnected)
	_, err = c.ExecuteRead(context.Background(), "RETURN 1", nil)
	assert.ErrorIs(t, err, graphstore.ErrNotConnected)
	assert.NoError(t, c.Close(context.Background()))
}

func TestSessionConfigAccessMode(t *testing.T) {
	c := &Client{Database: "neo4j"}
	assert.Equal(t, neo4j.AccessModeRead, c.sessionConfig(true).AccessMode)
	assert.Equal(t, neo4j.AccessModeWrite, c.sessionConfig(false).AccessMode)
	assert.Equal(t, "neo4j", c.sessionConfig(true).DatabaseName)

	var _ graphstore.ReadExecutor = c
}
