package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/medgraph/internal/inference/engine"
	"github.com/yungbote/medgraph/internal/inference/engine/mock"
	"github.com/yungbote/medgraph/internal/kg"
	"github.com/yungbote/medgraph/internal/platform/graphstore"
)

func TestExtractParsesFencedJSON(t *testing.T) {
	eng := mock.New(mock.Text("```json\n{\"symptoms\": [\"头痛\"], \"disease_name\": \"\", \"severity\": \"中等\", \"duration\": \"三天\"}\n```"))
	ex, err := NewStructuredExtractor(eng, nil).Extract(context.Background(), "我头疼三天了", 0.3)
	require.NoError(t, err)
	assert.Equal(t, kg.Extraction{Symptoms: []string{"头痛"}, Severity: "中等", Duration: "三天"}, ex)

	calls := eng.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, extractionSystemPrompt, calls[0][0].Content)
	assert.True(t, strings.HasSuffix(calls[0][1].Content, "\n\n我头疼三天了"))
	assert.InDelta(t, 0.3, eng.Options()[0].Temperature, 1e-9)
}

func TestExtractRepairsSingleQuotes(t *testing.T) {
	eng := mock.New(mock.Text("{'symptoms': ['咳嗽', '发热'], 'disease_name': '感冒'}"))
	ex, err := NewStructuredExtractor(eng, nil).Extract(context.Background(), "咳嗽发热", 0.5)
	require.NoError(t, err)
	assert.Equal(t, []string{"咳嗽", "发热"}, ex.Symptoms)
	assert.Equal(t, "感冒", ex.DiseaseName)
}

func TestExtractFailuresYieldEmptyExtraction(t *testing.T) {
	ex, err := NewStructuredExtractor(mock.New(mock.Text("我不知道")), nil).Extract(context.Background(), "x", 0.5)
	var pe *ExtractionParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "我不知道", pe.Raw)
	assert.True(t, ex.Empty())

	ex, err = NewStructuredExtractor(engine.Disabled{}, nil).Extract(context.Background(), "x", 0.5)
	assert.ErrorIs(t, err, engine.ErrNotConfigured)
	assert.True(t, ex.Empty())
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"{\"a\":1}":                 "{\"a\":1}",
		"```json\n{\"a\":1}\n```":   "{\"a\":1}",
		"```\n{\"a\":1}\n```":       "{\"a\":1}",
		"```json {\"a\":1}```":      "{\"a\":1}",
		"  ```cypher\nRETURN 1\n``` ": "RETURN 1",
	}
	for in, want := range cases {
		assert.Equal(t, want, stripFences(in), in)
	}
}

func TestCleanStatementKeepsFirstStatement(t *testing.T) {
	cases := map[string]string{
		"MATCH (n) RETURN n LIMIT 5;":                              "MATCH (n) RETURN n LIMIT 5",
		"```cypher\nMATCH (n) RETURN n;\nMATCH (m) RETURN m;\n```": "MATCH (n) RETURN n",
		"`MATCH (n) RETURN n`":                                     "MATCH (n) RETURN n",
		"  ;  ":                                                    "",
		"MATCH (d:Disease) WHERE d.name CONTAINS 'a;b' RETURN d;":  "MATCH (d:Disease) WHERE d.name CONTAINS 'a;b' RETURN d",
		`RETURN "x;y" AS s; MATCH (n) DELETE n`:                    `RETURN "x;y" AS s`,
		`RETURN 'it\'s;ok' AS s;`:                                  `RETURN 'it\'s;ok' AS s`,
	}
	for in, want := range cases {
		assert.Equal(t, want, CleanStatement(in), in)
	}
}

type staticSchema struct {
	info *graphstore.SchemaInfo
	err  error
}

func (s staticSchema) Schema(context.Context) (*graphstore.SchemaInfo, error) { return s.info, s.err }

func TestGenerateAddsLiveSchema(t *testing.T) {
	eng := mock.New(mock.Text("```\nMATCH (d:Disease) WHERE d.name CONTAINS '感冒' RETURN d.cause;\n```"))
	schema := staticSchema{info: &graphstore.SchemaInfo{Labels: []string{"Disease", "Symptom"}, RelationshipTypes: []string{"has_symptom"}}}

	q, err := NewQueryGenerator(eng, schema, nil).Generate(context.Background(), "感冒的病因是什么")
	require.NoError(t, err)
	assert.Equal(t, "MATCH (d:Disease) WHERE d.name CONTAINS '感冒' RETURN d.cause", q)

	msgs := eng.Calls()[0]
	assert.Contains(t, msgs[0].Content, "补充Schema信息：\n- 现有节点标签：Disease, Symptom")
	assert.Equal(t, queryUserPrefix+"感冒的病因是什么", msgs[1].Content)
	assert.Zero(t, eng.Options()[0].Temperature)
}

func TestGenerateWithoutSchemaAndEmptyAnswer(t *testing.T) {
	eng := mock.New(mock.Text("``` ```"))
	_, err := NewQueryGenerator(eng, staticSchema{err: errors.New("down")}, nil).Generate(context.Background(), "q")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Equal(t, querySystemPrompt, eng.Calls()[0][0].Content)
}
