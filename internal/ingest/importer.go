package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/yungbote/medgraph/internal/kg"
	"github.com/yungbote/medgraph/internal/observability"
	"github.com/yungbote/medgraph/internal/platform/graphstore"
	"github.com/yungbote/medgraph/internal/platform/logger"
)

// Store is the slice of the graph client ingestion needs.
type Store interface {
	graphstore.Executor
	CountLabel(ctx context.Context, label string) (int64, error)
	CountRelationships(ctx context.Context, relType string) (int64, error)
}

type Options struct {
	BatchSize   int
	NodeWorkers int
	DryRun      bool
	Verify      bool
}

type Report struct {
	Corpus      string        `json:"corpus" yaml:"corpus"`
	DryRun      bool          `json:"dry_run" yaml:"dry_run"`
	Read        ReadStats     `json:"read" yaml:"read"`
	Planned     Plan          `json:"planned" yaml:"planned"`
	Upsert      *Stats        `json:"upsert,omitempty" yaml:"upsert,omitempty"`
	Verified    *Verification `json:"verified,omitempty" yaml:"verified,omitempty"`
	Constraints int           `json:"constraints" yaml:"constraints"`
	Elapsed     time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Plan is what the accumulator would write: distinct nodes per label and
// deduped pairs per relationship kind.
type Plan struct {
	Nodes map[kg.Label]int   `json:"nodes" yaml:"nodes"`
	Pairs map[kg.RelKind]int `json:"pairs" yaml:"pairs"`
}

type Verification struct {
	Nodes         map[kg.Label]int64 `json:"nodes" yaml:"nodes"`
	Relationships map[string]int64   `json:"relationships" yaml:"relationships"`
}

type Importer struct {
	store Store
	log   *logger.Logger
	opts  Options
}

func NewImporter(store Store, log *logger.Logger, opts Options) *Importer {
	if log == nil {
		log = logger.Nop()
	}
	return &Importer{store: store, log: log.With("component", "Importer"), opts: opts}
}

// Load reads the corpus at path into a fresh accumulator.
func (im *Importer) Load(ctx context.Context, path string) (*Accumulator, ReadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ReadStats{}, fmt.Errorf("ingest: open corpus: %w", err)
	}
	defer f.Close()

	acc := NewAccumulator()
	st, err := ReadCorpus(ctx, im.log, f, acc.Add)
	if err != nil {
		return nil, st, err
	}
	im.log.Info("corpus read", "path", path, "lines", st.Lines, "records", st.Records, "malformed", st.Malformed)
	return acc, st, nil
}

func (im *Importer) Run(ctx context.Context, path string) (*Report, error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "ingest.run", attrs("corpus", path)...)
	var err error
	defer func() { observability.EndSpan(span, err) }()

	rep := &Report{Corpus: path, DryRun: im.opts.DryRun}
	if !im.opts.DryRun {
		if im.store == nil {
			err = graphstore.ErrNotConnected
			return nil, err
		}
		rep.Constraints = im.EnsureConstraints(ctx)
	}

	acc, st, err := im.Load(ctx, path)
	rep.Read = st
	if err != nil {
		return rep, err
	}
	rep.Planned = PlanFor(acc)

	if im.opts.DryRun {
		rep.Elapsed = time.Since(start)
		im.log.Info("dry run complete", "records", st.Records, "elapsed", rep.Elapsed)
		return rep, nil
	}

	up := NewUpserter(im.store, im.log, UpsertOptions{BatchSize: im.opts.BatchSize, NodeWorkers: im.opts.NodeWorkers})
	stats, err := up.Run(ctx, acc)
	rep.Upsert = &stats
	if err != nil {
		return rep, err
	}

	if im.opts.Verify {
		rep.Verified = im.Verify(ctx)
	}
	rep.Elapsed = time.Since(start)
	im.log.Info("ingestion complete",
		"records", st.Records,
		"malformed", st.Malformed,
		"batches", stats.Batches,
		"failed_batches", stats.FailedBatches,
		"elapsed", rep.Elapsed,
	)
	return rep, nil
}

func PlanFor(acc *Accumulator) Plan {
	p := Plan{Nodes: map[kg.Label]int{}, Pairs: map[kg.RelKind]int{}}
	p.Nodes[kg.LabelDisease] = len(acc.Diseases())
	for _, l := range kg.Labels {
		if l != kg.LabelDisease {
			p.Nodes[l] = len(acc.Names(l))
		}
	}
	for _, s := range kg.Relationships {
		p.Pairs[s.Kind] = len(acc.UniquePairs(s.Kind))
	}
	return p
}

// EnsureConstraints creates the name uniqueness constraint per label, trying
// the current syntax first and the pre-4.4 one second. Failures only warn.
// It returns how many labels ended up constrained.
func (im *Importer) EnsureConstraints(ctx context.Context) int {
	ok := 0
	for _, label := range kg.Labels {
		modern := fmt.Sprintf("CREATE CONSTRAINT IF NOT EXISTS FOR (n:%s) REQUIRE n.name IS UNIQUE", label)
		legacy := fmt.Sprintf("CREATE CONSTRAINT ON (n:%s) ASSERT n.name IS UNIQUE", label)

		err := im.constraint(ctx, modern)
		if err != nil {
			err = im.constraint(ctx, legacy)
		}
		if err != nil {
			im.log.Warn("neo4j schema init failed (continuing)", "label", label, "error", err)
			continue
		}
		ok++
	}
	return ok
}

func (im *Importer) constraint(ctx context.Context, q string) error {
	_, err := im.store.Execute(ctx, q, nil)
	if err == nil || alreadyExists(err) {
		return nil
	}
	return err
}

func alreadyExists(err error) bool {
	var qe *graphstore.QueryError
	msg := err.Error()
	if errors.As(err, &qe) {
		msg = qe.Message
	}
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "equivalent")
}

// Verify counts nodes per label and edges per relationship type.
func (im *Importer) Verify(ctx context.Context) *Verification {
	v := &Verification{Nodes: map[kg.Label]int64{}, Relationships: map[string]int64{}}
	for _, l := range kg.Labels {
		n, err := im.store.CountLabel(ctx, string(l))
		if err != nil {
			im.log.Warn("count failed", "label", l, "error", err)
			continue
		}
		v.Nodes[l] = n
	}
	for _, t := range kg.RelationshipTypes() {
		n, err := im.store.CountRelationships(ctx, t)
		if err != nil {
			im.log.Warn("count failed", "type", t, "error", err)
			continue
		}
		v.Relationships[t] = n
	}
	im.log.Info("verification counts", "nodes", v.Nodes, "relationships", v.Relationships)
	return v
}
