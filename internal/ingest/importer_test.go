package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yungbote/medgraph/internal/kg"
	"github.com/yungbote/medgraph/internal/platform/graphstore"
	"github.com/yungbote/medgraph/internal/platform/graphstore/memgraph"
	"github.com/yungbote/medgraph/internal/platform/logger"
)

func TestReadCorpusSkipsMalformedLine(t *testing.T) {
	var buf bytes.Buffer
	for i := 1; i <= 100; i++ {
		if i == 50 {
			buf.WriteString("{not json\n")
			continue
		}
		fmt.Fprintf(&buf, "{\"name\":\"疾病%d\",\"symptom\":[\"症状%d\"]}\n", i, i%7)
	}
	buf.WriteString("\n   \n")

	core, logs := observer.New(zap.WarnLevel)
	var got int
	st, err := ReadCorpus(context.Background(), logger.FromZap(zap.New(core)), &buf, func(*Contribution) { got++ })
	require.NoError(t, err)

	assert.Equal(t, 99, st.Records)
	assert.Equal(t, 1, st.Malformed)
	assert.Equal(t, 99, got)
	assert.Equal(t, 102, st.Lines)

	warn := logs.FilterMessage("skipping malformed record").All()
	require.Len(t, warn, 1)
	assert.EqualValues(t, 50, warn[0].ContextMap()["line"])
}

func writeCorpus(t *testing.T, recs []map[string]any) string {
	t.Helper()
	var b strings.Builder
	for _, r := range recs {
		b.Write(line(t, r))
		b.WriteByte('\n')
	}
	path := filepath.Join(t.TempDir(), "medical.json")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func connected(t *testing.T, g *memgraph.Graph) *graphstore.Client {
	t.Helper()
	c := graphstore.NewClient(nil, graphstore.Static("mem", graphstore.DialectNeo4j, g))
	require.NoError(t, c.Connect(context.Background()))
	return c
}

func TestImporterRunWithVerify(t *testing.T) {
	g := memgraph.New()
	path := writeCorpus(t, sampleCorpus())

	rep, err := NewImporter(connected(t, g), nil, Options{Verify: true}).Run(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, len(kg.Labels), rep.Constraints)
	assert.True(t, g.HasConstraint("Disease"))
	assert.Equal(t, 2, rep.Read.Records)
	assert.Equal(t, 3, rep.Planned.Nodes[kg.LabelSymptom])
	require.NotNil(t, rep.Verified)
	assert.Equal(t, int64(2), rep.Verified.Nodes[kg.LabelDisease])
	assert.Equal(t, int64(4), rep.Verified.Relationships["has_symptom"])
	assert.Equal(t, int64(3), rep.Verified.Relationships["belongs_to"])
}

func TestConstraintsFallBackToLegacySyntax(t *testing.T) {
	g := memgraph.New()
	g.LegacyConstraintsOnly = true
	im := NewImporter(connected(t, g), nil, Options{})

	assert.Equal(t, len(kg.Labels), im.EnsureConstraints(context.Background()))
	assert.True(t, g.HasConstraint("Producer"))
	// A second run hits "already exists" on the legacy form, which counts as success.
	assert.Equal(t, len(kg.Labels), im.EnsureConstraints(context.Background()))
}

func TestDryRunDoesNotTouchStore(t *testing.T) {
	g := memgraph.New()
	path := writeCorpus(t, sampleCorpus())

	rep, err := NewImporter(connected(t, g), nil, Options{DryRun: true}).Run(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, rep.DryRun)
	assert.Nil(t, rep.Upsert)
	assert.Equal(t, 2, rep.Planned.Pairs[kg.RelAcompany])
	assert.Empty(t, g.Queries())
}

func TestImporterWithoutStore(t *testing.T) {
	_, err := NewImporter(nil, nil, Options{}).Run(context.Background(), "unused.json")
	assert.ErrorIs(t, err, graphstore.ErrNotConnected)
}

func TestImporterMissingCorpus(t *testing.T) {
	_, err := NewImporter(nil, nil, Options{DryRun: true}).Run(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExportWritesNodeAndRelationshipFiles(t *testing.T) {
	dir := t.TempDir()
	files, err := Export(accumulate(t, sampleCorpus()...), dir)
	require.NoError(t, err)
	assert.Len(t, files, len(kg.Labels)+len(kg.RelationshipTypes()))

	raw, err := os.ReadFile(filepath.Join(dir, "rel_belongs_to.csv"))
	require.NoError(t, err)
	text := strings.TrimPrefix(string(raw), utf8BOM)
	lines := strings.Split(strings.TrimSpace(text), "\n")
	assert.Equal(t, "start,start_label,end,end_label,name", lines[0])
	assert.Len(t, lines, 4)
	assert.Contains(t, text, "神经内科,Department,内科,Department,属于")

	raw, err = os.ReadFile(filepath.Join(dir, "node_disease.csv"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), utf8BOM+"name,desc,"))
}
