package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/medgraph/internal/kg"
	"github.com/yungbote/medgraph/internal/platform/graphstore"
	"github.com/yungbote/medgraph/internal/platform/graphstore/memgraph"
)

func accumulate(t *testing.T, recs ...map[string]any) *Accumulator {
	t.Helper()
	acc := NewAccumulator()
	for _, r := range recs {
		c, err := Normalize(line(t, r))
		require.NoError(t, err)
		acc.Add(c)
	}
	return acc
}

func sampleCorpus() []map[string]any {
	return []map[string]any{
		{
			"name": "偏头痛", "desc": "反复发作的头痛", "cause": "遗传", "prevent": "规律作息",
			"cure_way": []string{"药物治疗"}, "cure_department": []string{"内科", "神经内科"},
			"symptom": []string{"头痛", "恶心"}, "common_drug": []string{"布洛芬"},
			"acompany": []string{"焦虑症"}, "drug_detail": []string{"某药厂(布洛芬)"},
		},
		{
			"name": "焦虑症", "symptom": []string{"心悸", "头痛"}, "cure_department": []string{"精神科"},
			"acompany": []string{"偏头痛"},
		},
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	g := memgraph.New()
	acc := accumulate(t, sampleCorpus()...)
	up := NewUpserter(g, nil, UpsertOptions{BatchSize: 2})

	first, err := up.Run(context.Background(), acc)
	require.NoError(t, err)
	counts := func() []int {
		return []int{
			g.NodeCount("Disease"), g.NodeCount("Symptom"), g.NodeCount("Department"),
			g.EdgeCount("has_symptom"), g.EdgeCount("belongs_to"), g.EdgeCount("acompany_with"), g.EdgeCount("drugs_of"),
		}
	}
	before := counts()
	assert.Equal(t, []int{2, 3, 3, 4, 3, 2, 1}, before)

	second, err := up.Run(context.Background(), acc)
	require.NoError(t, err)
	assert.Equal(t, before, counts())
	assert.Equal(t, first.Nodes, second.Nodes)
	assert.Zero(t, second.FailedBatches)

	name, ok := g.Edge("belongs_to", "Department", "神经内科", "Department", "内科")
	require.True(t, ok)
	assert.Equal(t, "属于", name)
	name, ok = g.Edge("belongs_to", "Disease", "偏头痛", "Department", "神经内科")
	require.True(t, ok)
	assert.Equal(t, "所属科室", name)
}

func TestRelationshipPairsAreDeduped(t *testing.T) {
	g := memgraph.New()
	acc := NewAccumulator()
	acc.Add(&Contribution{
		Disease: kg.Disease{Name: "A"},
		Nodes:   map[kg.Label][]string{kg.LabelDisease: {"A"}},
		Pairs:   map[kg.RelKind][]kg.Pair{kg.RelAcompany: {{Start: "A", End: "B"}, {Start: "A", End: "B"}}},
	})
	acc.Add(&Contribution{
		Disease: kg.Disease{Name: "B"},
		Nodes:   map[kg.Label][]string{kg.LabelDisease: {"B"}},
		Pairs:   map[kg.RelKind][]kg.Pair{kg.RelAcompany: {{Start: "B", End: "A"}}},
	})
	assert.Len(t, acc.Pairs(kg.RelAcompany), 3)
	assert.Equal(t, []kg.Pair{{Start: "A", End: "B"}, {Start: "B", End: "A"}}, acc.UniquePairs(kg.RelAcompany))

	stats, err := NewUpserter(g, nil, UpsertOptions{}).Run(context.Background(), acc)
	require.NoError(t, err)
	assert.Equal(t, 2, g.EdgeCount("acompany_with"))
	assert.Equal(t, 2, stats.Pairs[kg.RelAcompany])
}

func TestMissingEndpointWritesNoEdge(t *testing.T) {
	g := memgraph.New()
	// Producer->Drug edges need the drug from a drug list; drug_detail alone is not enough.
	acc := accumulate(t, map[string]any{"name": "感冒", "drug_detail": []string{"某药厂(感冒灵)"}})

	_, err := NewUpserter(g, nil, UpsertOptions{}).Run(context.Background(), acc)
	require.NoError(t, err)
	assert.Equal(t, 1, g.NodeCount("Producer"))
	assert.Equal(t, 0, g.EdgeCount("drugs_of"))
}

func TestDiseaseAttributesLastRecordWins(t *testing.T) {
	g := memgraph.New()
	acc := accumulate(t,
		map[string]any{"name": "感冒", "desc": "旧描述"},
		map[string]any{"name": "感冒", "desc": "新描述", "cure_way": []string{"休息"}},
	)
	_, err := NewUpserter(g, nil, UpsertOptions{}).Run(context.Background(), acc)
	require.NoError(t, err)

	n := g.Node("Disease", "感冒")
	assert.Equal(t, "新描述", n["desc"])
	assert.Equal(t, []string{"休息"}, n["cure_way"])
	assert.Equal(t, 1, g.NodeCount("Disease"))
}

func TestFailedBatchIsCountedAndRunContinues(t *testing.T) {
	g := memgraph.New()
	failed := false
	g.FailWhen = func(q string, params map[string]any) error {
		if strings.Contains(q, "(n:Symptom") && !failed {
			failed = true
			return &graphstore.QueryError{Message: "deadlock"}
		}
		return nil
	}
	acc := accumulate(t, map[string]any{"name": "感冒", "symptom": []string{"a", "b", "c", "d", "e"}})

	stats, err := NewUpserter(g, nil, UpsertOptions{BatchSize: 2}).Run(context.Background(), acc)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FailedBatches)
	assert.Equal(t, 3, stats.Nodes[kg.LabelSymptom])
	assert.Equal(t, 3, g.NodeCount("Symptom"))
	assert.Equal(t, 3, g.EdgeCount("has_symptom"), "edges to the two lost symptoms are skipped")
}

func TestCancellationStopsRun(t *testing.T) {
	g := memgraph.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewUpserter(g, nil, UpsertOptions{}).Run(ctx, accumulate(t, sampleCorpus()...))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNodePhaseWithWorkersWritesEveryLabel(t *testing.T) {
	g := memgraph.New()
	_, err := NewUpserter(g, nil, UpsertOptions{NodeWorkers: 4, BatchSize: 1}).Run(context.Background(), accumulate(t, sampleCorpus()...))
	require.NoError(t, err)
	assert.Equal(t, 2, g.NodeCount("Disease"))
	assert.Equal(t, 1, g.NodeCount("Drug"))
	assert.Equal(t, 1, g.EdgeCount("drugs_of"))
}

func TestRelationshipQueryShape(t *testing.T) {
	spec, _ := kg.SpecFor(kg.RelDrugProducer)
	assert.Equal(t,
		"UNWIND $batch AS row MATCH (a:Producer {name: row.start}) MATCH (b:Drug {name: row.end}) MERGE (a)-[r:drugs_of]->(b) SET r.name = $display",
		RelationshipUpsertQuery(spec))
	assert.True(t, strings.HasPrefix(DiseaseUpsertQuery(), "UNWIND $batch AS row MERGE (d:Disease {name: row.name}) SET d.desc = row.desc"))
}
