package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/medgraph/internal/kg"
	"github.com/yungbote/medgraph/internal/observability"
	"github.com/yungbote/medgraph/internal/platform/ctxutil"
	"github.com/yungbote/medgraph/internal/platform/graphstore"
	"github.com/yungbote/medgraph/internal/platform/logger"
)

const (
	bySymptomQuery = "MATCH (d:Disease)-[:has_symptom]->(s:Symptom) WHERE s.name CONTAINS $symptom RETURN d LIMIT 3"
	byNameQuery    = "MATCH (d:Disease) WHERE d.name CONTAINS $name RETURN d LIMIT 1"

	contextDiseaseLimit = 3
)

// GraphStore is the part of graphstore.Client the retriever needs.
type GraphStore interface {
	Connected() bool
	Execute(ctx context.Context, query string, params map[string]any) (*graphstore.Result, error)
	ExecuteReadOnly(ctx context.Context, query string, params map[string]any) (*graphstore.Result, error)
}

type Retrieved struct {
	Diseases []kg.Disease
	Context  string
}

func (r *Retrieved) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Diseases))
	for _, d := range r.Diseases {
		out = append(out, d.Name)
	}
	return out
}

type Retriever struct {
	store GraphStore
	log   *logger.Logger
}

func NewRetriever(store GraphStore, log *logger.Logger) *Retriever {
	if log == nil {
		log = logger.Nop()
	}
	return &Retriever{store: store, log: log.With("component", "GraphRetriever")}
}

// Retrieve looks diseases up by symptom and by name. A name hit goes first.
// Failed lookups are logged and skipped; a disconnected store yields an
// empty result.
func (r *Retriever) Retrieve(ctx context.Context, ex kg.Extraction) (*Retrieved, error) {
	out := &Retrieved{}
	if r.store == nil || !r.store.Connected() {
		return out, nil
	}
	seen := map[string]bool{}

	for _, symptom := range ex.Symptoms {
		symptom = strings.TrimSpace(symptom)
		if symptom == "" {
			continue
		}
		for _, d := range r.lookup(ctx, bySymptomQuery, map[string]any{"symptom": symptom}) {
			if seen[d.Name] {
				continue
			}
			seen[d.Name] = true
			out.Diseases = append(out.Diseases, d)
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
	}

	if name := strings.TrimSpace(ex.DiseaseName); name != "" {
		hits := r.lookup(ctx, byNameQuery, map[string]any{"name": name})
		if len(hits) > 0 {
			out.Diseases = prepend(out.Diseases, hits[0])
		}
	}

	out.Context = RenderContext(out.Diseases)
	return out, ctx.Err()
}

// prepend moves d to the front, dropping any earlier entry with its name.
func prepend(diseases []kg.Disease, d kg.Disease) []kg.Disease {
	out := make([]kg.Disease, 0, len(diseases)+1)
	out = append(out, d)
	for _, x := range diseases {
		if x.Name != d.Name {
			out = append(out, x)
		}
	}
	return out
}

func (r *Retriever) lookup(ctx context.Context, query string, params map[string]any) []kg.Disease {
	res, err := r.store.Execute(ctx, query, params)
	if err != nil {
		r.log.Warn("graph lookup failed", append(ctxutil.LogFields(ctx), "error", err)...)
		return nil
	}
	var out []kg.Disease
	for _, row := range res.Rows {
		v, ok := row.Get("d")
		if !ok && len(row) > 0 {
			v = row[0].Value
		}
		props, ok := v.(map[string]any)
		if !ok {
			continue
		}
		d, err := kg.DecodeDisease(props)
		if err != nil {
			r.log.Debug("skipping undecodable disease", "error", err)
			continue
		}
		out = append(out, d)
	}
	return out
}

// RenderContext formats up to three diseases for the grounded prompt. No
// diseases means no context.
func RenderContext(diseases []kg.Disease) string {
	if len(diseases) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(contextHeader)
	for i, d := range diseases {
		if i == contextDiseaseLimit {
			break
		}
		fmt.Fprintf(&b, "\n【疾病%d】%s\n", i+1, d.Name)
		if d.Desc != "" {
			b.WriteString("描述：" + d.Desc + "\n")
		}
		if d.Cause != "" {
			b.WriteString("病因：" + d.Cause + "\n")
		}
		if d.Prevent != "" {
			b.WriteString("预防：" + d.Prevent + "\n")
		}
		if len(d.CureWay) > 0 {
			b.WriteString("治疗方式：" + strings.Join(d.CureWay, "、") + "\n")
		}
	}
	b.WriteString(contextFooter)
	return b.String()
}

// RunGenerated gates and executes a generated statement and renders its rows
// as text for the phrasing step.
func (r *Retriever) RunGenerated(ctx context.Context, query string) (text string, err error) {
	ctx, span := observability.StartSpan(ctx, "rag.run_generated", attribute.String("db.statement", query))
	defer func() { observability.EndSpan(span, err) }()

	if err := graphstore.CheckReadOnly(query); err != nil {
		return "", err
	}
	if r.store == nil {
		return "", graphstore.ErrNotConnected
	}
	res, err := r.store.ExecuteReadOnly(ctx, query, nil)
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.Int("db.rows", res.Len()))
	return RenderRows(res), nil
}

// RenderRows joins columns with ； and rows with 。. Positional columns
// without a header render as bare values.
func RenderRows(res *graphstore.Result) string {
	if res.Len() == 0 {
		return noEntriesText
	}
	rows := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		parts := make([]string, 0, len(row))
		for _, f := range row {
			v := graphstore.Stringify(f.Value)
			if isPositional(f.Key) {
				parts = append(parts, v)
				continue
			}
			parts = append(parts, f.Key+"："+v)
		}
		rows = append(rows, strings.Join(parts, "；"))
	}
	return strings.Join(rows, "。") + "。"
}

func isPositional(key string) bool {
	if !strings.HasPrefix(key, "col") || len(key) == 3 {
		return false
	}
	for _, c := range key[3:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// GeneratedResultText maps a RunGenerated failure to the text the phrasing
// step sees.
func GeneratedResultText(err error) string {
	var rej *graphstore.SafetyRejection
	if errors.As(err, &rej) {
		return rejectedText
	}
	return queryFailedText + err.Error()
}
