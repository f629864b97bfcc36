package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/medgraph/internal/kg"
	"github.com/yungbote/medgraph/internal/observability"
	"github.com/yungbote/medgraph/internal/platform/graphstore"
	"github.com/yungbote/medgraph/internal/platform/logger"
)

const DefaultBatchSize = 500

// Stats counts what one upsert run wrote. Nodes and Pairs hold the number of
// items sent in successful batches.
type Stats struct {
	Nodes         map[kg.Label]int   `json:"nodes" yaml:"nodes"`
	Pairs         map[kg.RelKind]int `json:"pairs" yaml:"pairs"`
	Batches       int                `json:"batches" yaml:"batches"`
	FailedBatches int                `json:"failed_batches" yaml:"failed_batches"`
	Elapsed       time.Duration      `json:"elapsed" yaml:"elapsed"`
}

type UpsertOptions struct {
	BatchSize int
	// NodeWorkers bounds how many labels are written at once in the node phase.
	NodeWorkers int
}

type Upserter struct {
	store graphstore.Executor
	log   *logger.Logger
	opts  UpsertOptions

	mu    sync.Mutex
	stats Stats
}

func NewUpserter(store graphstore.Executor, log *logger.Logger, opts UpsertOptions) *Upserter {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.NodeWorkers <= 0 {
		opts.NodeWorkers = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Upserter{store: store, log: log.With("component", "Upserter"), opts: opts}
}

// Run writes every node, then every relationship. A failed batch is logged
// and counted; the run carries on with the next one.
func (u *Upserter) Run(ctx context.Context, acc *Accumulator) (Stats, error) {
	start := time.Now()
	u.stats = Stats{Nodes: map[kg.Label]int{}, Pairs: map[kg.RelKind]int{}}

	ctx, span := observability.StartSpan(ctx, "ingest.nodes")
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.opts.NodeWorkers)
	for _, label := range kg.Labels {
		g.Go(func() error {
			if label == kg.LabelDisease {
				return u.upsertDiseases(gctx, acc.Diseases())
			}
			return u.upsertNames(gctx, label, acc.Names(label))
		})
	}
	err := g.Wait()
	observability.EndSpan(span, err)
	if err != nil {
		return u.finish(start), err
	}

	ctx, span = observability.StartSpan(ctx, "ingest.relationships")
	for _, spec := range kg.Relationships {
		if err = u.upsertPairs(ctx, spec, acc.UniquePairs(spec.Kind)); err != nil {
			break
		}
	}
	observability.EndSpan(span, err)
	return u.finish(start), err
}

func (u *Upserter) finish(start time.Time) Stats {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.stats.Elapsed = time.Since(start)
	return u.stats
}

func (u *Upserter) upsertNames(ctx context.Context, label kg.Label, names []string) error {
	if len(names) == 0 {
		return nil
	}
	u.log.Info("creating nodes", "label", label, "count", len(names))
	q := fmt.Sprintf("UNWIND $batch AS name MERGE (n:%s {name: name})", label)
	return forBatches(len(names), u.opts.BatchSize, func(i, lo, hi int) error {
		ok, err := u.exec(ctx, q, map[string]any{"batch": names[lo:hi]}, "label", label, i, hi-lo)
		if ok {
			u.count(func(s *Stats) { s.Nodes[label] += hi - lo })
		}
		return err
	})
}

func (u *Upserter) upsertDiseases(ctx context.Context, diseases []kg.Disease) error {
	if len(diseases) == 0 {
		return nil
	}
	u.log.Info("creating nodes", "label", kg.LabelDisease, "count", len(diseases))
	q := DiseaseUpsertQuery()
	return forBatches(len(diseases), u.opts.BatchSize, func(i, lo, hi int) error {
		rows := make([]map[string]any, 0, hi-lo)
		for _, d := range diseases[lo:hi] {
			rows = append(rows, d.Row())
		}
		ok, err := u.exec(ctx, q, map[string]any{"batch": rows}, "label", kg.LabelDisease, i, len(rows))
		if ok {
			u.count(func(s *Stats) { s.Nodes[kg.LabelDisease] += hi - lo })
		}
		return err
	})
}

// DiseaseUpsertQuery overwrites every Disease attribute on each run.
func DiseaseUpsertQuery() string {
	sets := make([]string, 0, len(kg.DiseaseProperties))
	for _, p := range kg.DiseaseProperties {
		sets = append(sets, fmt.Sprintf("d.%s = row.%s", p, p))
	}
	return "UNWIND $batch AS row MERGE (d:Disease {name: row.name}) SET " + strings.Join(sets, ", ")
}

// RelationshipUpsertQuery matches both endpoints, so a missing node means no edge.
func RelationshipUpsertQuery(spec kg.RelSpec) string {
	return fmt.Sprintf("UNWIND $batch AS row MATCH (a:%s {name: row.start}) MATCH (b:%s {name: row.end}) MERGE (a)-[r:%s]->(b) SET r.name = $display",
		spec.Start, spec.End, spec.Type)
}

func (u *Upserter) upsertPairs(ctx context.Context, spec kg.RelSpec, pairs []kg.Pair) error {
	if len(pairs) == 0 {
		return nil
	}
	u.log.Info("creating relationships", "type", spec.Type, "display", spec.Display, "count", len(pairs))
	q := RelationshipUpsertQuery(spec)
	return forBatches(len(pairs), u.opts.BatchSize, func(i, lo, hi int) error {
		rows := make([]map[string]any, 0, hi-lo)
		for _, p := range pairs[lo:hi] {
			rows = append(rows, map[string]any{"start": p.Start, "end": p.End})
		}
		ok, err := u.exec(ctx, q, map[string]any{"batch": rows, "display": spec.Display}, "type", spec.Type, i, len(rows))
		if ok {
			u.count(func(s *Stats) { s.Pairs[spec.Kind] += hi - lo })
		}
		return err
	})
}

// exec runs one batch. Store errors are absorbed; only cancellation stops the run.
func (u *Upserter) exec(ctx context.Context, q string, params map[string]any, kind string, name any, batch, rows int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := u.store.Execute(ctx, q, params)
	u.count(func(s *Stats) { s.Batches++ })
	phase := "relationships"
	if kind == "label" {
		phase = "nodes"
	}
	if err == nil {
		observability.Current().ObserveIngestBatch(phase, fmt.Sprint(name), true, rows)
		return true, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	observability.Current().ObserveIngestBatch(phase, fmt.Sprint(name), false, rows)
	u.count(func(s *Stats) { s.FailedBatches++ })
	u.log.Error("batch upsert failed", kind, name, "batch", batch, "error", err)
	return false, nil
}

func (u *Upserter) count(fn func(*Stats)) {
	u.mu.Lock()
	fn(&u.stats)
	u.mu.Unlock()
}

func forBatches(n, size int, fn func(i, lo, hi int) error) error {
	for i, lo := 0, 0; lo < n; i, lo = i+1, lo+size {
		hi := min(lo+size, n)
		if err := fn(i, lo, hi); err != nil {
			return err
		}
	}
	return nil
}

// attrs is shared by span helpers in this package.
func attrs(kv ...string) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, attribute.String(kv[i], kv[i+1]))
	}
	return out
}
