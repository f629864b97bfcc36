package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yungbote/medgraph/internal/app"
	"github.com/yungbote/medgraph/internal/inference/engine/mock"
	"github.com/yungbote/medgraph/internal/platform/graphstore"
	"github.com/yungbote/medgraph/internal/platform/graphstore/memgraph"
	"github.com/yungbote/medgraph/internal/platform/logger"
)

const corpus = `{"name":"偏头痛","desc":"反复发作的头痛","symptom":["头痛","恶心"]}
{"name":"感冒","desc":"上呼吸道感染","symptom":["发热","咳嗽"]}
`

func writeCorpus(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "medical.json")
	require.NoError(t, os.WriteFile(path, []byte(corpus), 0o644))
	return path
}

func run(t *testing.T, opts app.Options, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("KIMI_API_KEY", "")
	t.Setenv("MEDGRAPH_COMPLETION_API_KEY", "")
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	cmd := NewRootCmd(opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func withGraph(g *memgraph.Graph, replies ...mock.Reply) app.Options {
	return app.Options{
		Engine:     mock.New(replies...),
		Strategies: []graphstore.Strategy{graphstore.Static("mem", graphstore.DialectNeo4j, g)},
	}
}

func noGraph() app.Options {
	return app.Options{Strategies: []graphstore.Strategy{{Name: "bolt", Dial: func(context.Context) (graphstore.Transport, error) {
		return nil, errors.New("connection refused")
	}}}}
}

func TestIngestThenStatus(t *testing.T) {
	g := memgraph.New()
	path := writeCorpus(t)

	out, err := run(t, withGraph(g), "", "ingest", "--file", path, "--verify", "--batch-size", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "records: 2")
	assert.Contains(t, out, "verified:")
	assert.Equal(t, 2, g.NodeCount("Disease"))
	assert.Equal(t, 4, g.NodeCount("Symptom"))

	out, err = run(t, withGraph(g), "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: mem")
	assert.Contains(t, out, "nodes: 6")
	assert.Contains(t, out, "schema:")
}

func TestIngestNeedsGraphUnlessDryRun(t *testing.T) {
	path := writeCorpus(t)

	_, err := run(t, noGraph(), "", "ingest", "--file", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")

	out, err := run(t, noGraph(), "", "ingest", "--file", path, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "dry_run: true")
	assert.Contains(t, out, "records: 2")
}

func TestStatusWithoutGraph(t *testing.T) {
	_, err := run(t, noGraph(), "", "status")
	assert.EqualError(t, err, "graph store not connected")
}

func TestExportWritesCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "csv")
	out, err := run(t, noGraph(), "", "export", "--file", writeCorpus(t), "--out", dir)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "node_disease.csv"))

	b, err := os.ReadFile(filepath.Join(dir, "node_symptom.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "头痛")
}

func TestChatConfigThenGroundedTurn(t *testing.T) {
	g := memgraph.New()
	_, err := run(t, withGraph(g), "", "ingest", "--file", writeCorpus(t))
	require.NoError(t, err)

	opts := withGraph(g, mock.Text(`{"symptoms":["头痛"]}`), mock.Text("多休息，必要时就医。"))
	out, err := run(t, opts, "\nconfig\n0.9\ny\n我头疼三天了\nquit\n", "chat")
	require.NoError(t, err)

	assert.Contains(t, out, "知识图谱已连接 (mem)")
	assert.Contains(t, out, "配置已更新: temperature=0.9, 详细信息=true")
	assert.Contains(t, out, "找到相关疾病: 偏头痛")
	assert.Contains(t, out, "多休息，必要时就医。")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "感谢使用，祝您身体健康！"))
}

func TestChatBadConfigKeepsSettings(t *testing.T) {
	out, err := run(t, withGraph(memgraph.New()), "config\nwarm\n退出\n", "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "配置格式错误，保持原设置")
	assert.NotContains(t, out, "配置已更新")
}

func TestChatDegradedStartupEndsAtEOF(t *testing.T) {
	out, err := run(t, noGraph(), "", "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "知识图谱不可用")
	assert.Contains(t, out, "AI 服务未配置")
	assert.Contains(t, out, "感谢使用")
}

func TestAskShowsGeneratedQuery(t *testing.T) {
	g := memgraph.New()
	_, err := run(t, withGraph(g), "", "ingest", "--file", writeCorpus(t))
	require.NoError(t, err)

	opts := withGraph(g, mock.Text("```cypher\nMATCH (n) RETURN count(n) AS count;\n```"), mock.Text("图谱中共有6个节点。"))
	out, err := run(t, opts, "", "ask", "--show-query", "图谱里有多少节点")
	require.NoError(t, err)
	assert.Contains(t, out, "查询: MATCH (n) RETURN count(n) AS count\n")
	assert.Contains(t, out, "结果: count：6。")
	assert.Contains(t, out, "图谱中共有6个节点。")
}

func TestConfigCommand(t *testing.T) {
	t.Run("masks secrets", func(t *testing.T) {
		out, err := run(t, app.Options{}, "", "config")
		require.NoError(t, err)
		assert.Contains(t, out, "backends:")

		t.Setenv("MEDGRAPH_GRAPH_NEO4J_PASSWORD", "hunter2")
		out, err = run(t, app.Options{}, "", "config")
		require.NoError(t, err)
		assert.NotContains(t, out, "hunter2")
		assert.Contains(t, out, "******")
	})

	t.Run("backend flag overrides", func(t *testing.T) {
		out, err := run(t, app.Options{}, "", "config", "--backend", "tugraph")
		require.NoError(t, err)
		assert.Contains(t, out, "- tugraph")
		assert.NotContains(t, out, "- bolt")
	})

	t.Run("unknown backend rejected", func(t *testing.T) {
		_, err := run(t, app.Options{}, "", "config", "--backend", "redis")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown backend "redis"`)
	})
}

func TestReadLinesStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	lines := readLines(ctx, strings.NewReader("quit\n还有一行\n再一行\n"))
	assert.Equal(t, "quit", <-lines)
	cancel()
}
