// Package memgraph is an in-memory graphstore.Transport that understands the
// fixed statement shapes issued by ingestion, retrieval and status checks.
// Anything else is answered with a QueryError.
package memgraph

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/yungbote/medgraph/internal/platform/graphstore"
)

type edgeKey struct {
	startLabel, start, endLabel, end string
}

type Graph struct {
	mu sync.Mutex

	nodes     map[string]map[string]map[string]any
	nodeOrder map[string][]string
	edges     map[string]map[edgeKey]map[string]any
	edgeOrder map[string][]edgeKey

	constraints map[string]bool
	queries     []string
	closed      bool

	// LegacyConstraintsOnly makes the IF NOT EXISTS constraint form fail.
	LegacyConstraintsOnly bool
	// FailWhen, when it returns non-nil, fails the statement before it runs.
	FailWhen func(query string, params map[string]any) error
}

func New() *Graph {
	return &Graph{
		nodes:       map[string]map[string]map[string]any{},
		nodeOrder:   map[string][]string{},
		edges:       map[string]map[edgeKey]map[string]any{},
		edgeOrder:   map[string][]edgeKey{},
		constraints: map[string]bool{},
	}
}

var (
	reReturnOne     = regexp.MustCompile(`^RETURN 1 AS (\w+)$`)
	reCountAll      = regexp.MustCompile(`^MATCH \(n\) RETURN count\(n\) AS (\w+)$`)
	reCountLabel    = regexp.MustCompile(`^MATCH \(n:(\w+)\) RETURN count\(n\) AS (\w+)$`)
	reCountRel      = regexp.MustCompile(`^MATCH \(\)-\[r:(\w+)\]->\(\) RETURN count\(r\) AS (\w+)$`)
	reConstraintNew = regexp.MustCompile(`^CREATE CONSTRAINT IF NOT EXISTS FOR \(n:(\w+)\) REQUIRE n\.name IS UNIQUE$`)
	reConstraintOld = regexp.MustCompile(`^CREATE CONSTRAINT ON \(n:(\w+)\) ASSERT n\.name IS UNIQUE$`)
	reMergeNames    = regexp.MustCompile(`^UNWIND \$batch AS name MERGE \(n:(\w+) \{name: name\}\)$`)
	reMergeRows     = regexp.MustCompile(`^UNWIND \$batch AS row MERGE \((\w+):(\w+) \{name: row\.name\}\) SET (.+)$`)
	reSetAssign     = regexp.MustCompile(`^(\w+)\.(\w+) = row\.(\w+)$`)
	reMergeRel      = regexp.MustCompile(`^UNWIND \$batch AS row MATCH \(a:(\w+) \{name: row\.start\}\) MATCH \(b:(\w+) \{name: row\.end\}\) MERGE \(a\)-\[r:(\w+)\]->\(b\) SET r\.name = \$display$`)
	reBySymptom     = regexp.MustCompile(`^MATCH \(d:Disease\)-\[:(\w+)\]->\(s:Symptom\) WHERE s\.name CONTAINS \$(\w+) RETURN d LIMIT (\d+)$`)
	reByName        = regexp.MustCompile(`^MATCH \(d:(\w+)\) WHERE d\.name CONTAINS \$(\w+) RETURN d LIMIT (\d+)$`)
)

func (g *Graph) Execute(ctx context.Context, query string, params map[string]any) (*graphstore.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := strings.Join(strings.Fields(query), " ")

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, fmt.Errorf("memgraph: closed")
	}
	g.queries = append(g.queries, q)
	if g.FailWhen != nil {
		if err := g.FailWhen(q, params); err != nil {
			return nil, err
		}
	}

	switch {
	case reReturnOne.MatchString(q):
		m := reReturnOne.FindStringSubmatch(q)
		return scalar(m[1], int64(1)), nil
	case reCountAll.MatchString(q):
		m := reCountAll.FindStringSubmatch(q)
		var n int64
		for _, byName := range g.nodes {
			n += int64(len(byName))
		}
		return scalar(m[1], n), nil
	case reCountLabel.MatchString(q):
		m := reCountLabel.FindStringSubmatch(q)
		return scalar(m[2], int64(len(g.nodes[m[1]]))), nil
	case reCountRel.MatchString(q):
		m := reCountRel.FindStringSubmatch(q)
		return scalar(m[2], int64(len(g.edges[m[1]]))), nil
	case q == "CALL db.labels()" || q == "CALL db.vertexLabels()":
		return g.column("label", sortedKeys(g.nodes)), nil
	case q == "CALL db.relationshipTypes()" || q == "CALL db.edgeLabels()":
		return g.column("relationshipType", sortedKeys(g.edges)), nil
	case reConstraintNew.MatchString(q):
		if g.LegacyConstraintsOnly {
			return nil, &graphstore.QueryError{Backend: "memgraph", Message: "Invalid input 'IF'"}
		}
		g.constraints[reConstraintNew.FindStringSubmatch(q)[1]] = true
		return &graphstore.Result{}, nil
	case reConstraintOld.MatchString(q):
		label := reConstraintOld.FindStringSubmatch(q)[1]
		if g.constraints[label] {
			return nil, &graphstore.QueryError{Backend: "memgraph", Message: "An equivalent constraint already exists"}
		}
		g.constraints[label] = true
		return &graphstore.Result{}, nil
	case reMergeNames.MatchString(q):
		label := reMergeNames.FindStringSubmatch(q)[1]
		for _, name := range stringsOf(params["batch"]) {
			g.mergeNode(label, name)
		}
		return &graphstore.Result{}, nil
	case reMergeRows.MatchString(q):
		return g.mergeRows(q, params)
	case reMergeRel.MatchString(q):
		m := reMergeRel.FindStringSubmatch(q)
		display := graphstore.Stringify(params["display"])
		for _, row := range rowsOf(params["batch"]) {
			start, end := graphstore.Stringify(row["start"]), graphstore.Stringify(row["end"])
			if g.nodes[m[1]][start] == nil || g.nodes[m[2]][end] == nil {
				continue
			}
			g.mergeEdge(m[3], edgeKey{m[1], start, m[2], end}, display)
		}
		return &graphstore.Result{}, nil
	case reBySymptom.MatchString(q):
		m := reBySymptom.FindStringSubmatch(q)
		return g.bySymptom(m[1], graphstore.Stringify(params[m[2]]), atoi(m[3])), nil
	case reByName.MatchString(q):
		m := reByName.FindStringSubmatch(q)
		return g.byName(m[1], graphstore.Stringify(params[m[2]]), atoi(m[3])), nil
	}
	return nil, &graphstore.QueryError{Backend: "memgraph", Message: "unsupported statement: " + q}
}

func (g *Graph) Close(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

func (g *Graph) mergeNode(label, name string) map[string]any {
	byName := g.nodes[label]
	if byName == nil {
		byName = map[string]map[string]any{}
		g.nodes[label] = byName
	}
	n := byName[name]
	if n == nil {
		n = map[string]any{"name": name}
		byName[name] = n
		g.nodeOrder[label] = append(g.nodeOrder[label], name)
	}
	return n
}

func (g *Graph) mergeRows(q string, params map[string]any) (*graphstore.Result, error) {
	m := reMergeRows.FindStringSubmatch(q)
	alias, label := m[1], m[2]
	type assign struct{ prop, field string }
	var sets []assign
	for _, part := range strings.Split(m[3], ",") {
		a := reSetAssign.FindStringSubmatch(strings.TrimSpace(part))
		if a == nil || a[1] != alias {
			return nil, &graphstore.QueryError{Backend: "memgraph", Message: "unsupported SET clause: " + part}
		}
		sets = append(sets, assign{a[2], a[3]})
	}
	for _, row := range rowsOf(params["batch"]) {
		n := g.mergeNode(label, graphstore.Stringify(row["name"]))
		for _, s := range sets {
			n[s.prop] = row[s.field]
		}
	}
	return &graphstore.Result{}, nil
}

func (g *Graph) mergeEdge(relType string, k edgeKey, display string) {
	byKey := g.edges[relType]
	if byKey == nil {
		byKey = map[edgeKey]map[string]any{}
		g.edges[relType] = byKey
	}
	if byKey[k] == nil {
		byKey[k] = map[string]any{}
		g.edgeOrder[relType] = append(g.edgeOrder[relType], k)
	}
	byKey[k]["name"] = display
}

func (g *Graph) bySymptom(relType, needle string, limit int) *graphstore.Result {
	res := &graphstore.Result{Keys: []string{"d"}}
	for _, k := range g.edgeOrder[relType] {
		if len(res.Rows) >= limit {
			break
		}
		if k.startLabel != "Disease" || k.endLabel != "Symptom" || !strings.Contains(k.end, needle) {
			continue
		}
		res.Rows = append(res.Rows, graphstore.Row{{Key: "d", Value: g.nodeValue("Disease", k.start)}})
	}
	return res
}

func (g *Graph) byName(label, needle string, limit int) *graphstore.Result {
	res := &graphstore.Result{Keys: []string{"d"}}
	for _, name := range g.nodeOrder[label] {
		if len(res.Rows) >= limit {
			break
		}
		if strings.Contains(name, needle) {
			res.Rows = append(res.Rows, graphstore.Row{{Key: "d", Value: g.nodeValue(label, name)}})
		}
	}
	return res
}

func (g *Graph) nodeValue(label, name string) map[string]any {
	props := g.nodes[label][name]
	out := make(map[string]any, len(props)+1)
	for k, v := range props {
		out[k] = v
	}
	out[graphstore.LabelsKey] = []string{label}
	return out
}

func (g *Graph) column(key string, values []string) *graphstore.Result {
	res := &graphstore.Result{Keys: []string{key}}
	for _, v := range values {
		res.Rows = append(res.Rows, graphstore.Row{{Key: key, Value: v}})
	}
	return res
}

func scalar(key string, v any) *graphstore.Result {
	return &graphstore.Result{Keys: []string{key}, Rows: []graphstore.Row{{{Key: key, Value: v}}}}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func stringsOf(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			out = append(out, graphstore.Stringify(x))
		}
		return out
	}
	return nil
}

func rowsOf(v any) []map[string]any {
	switch t := v.(type) {
	case []map[string]any:
		return t
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, x := range t {
			if m, ok := x.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
