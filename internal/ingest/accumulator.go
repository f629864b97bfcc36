package ingest

import (
	"github.com/yungbote/medgraph/internal/kg"
)

type nameSet struct {
	seen  map[string]struct{}
	order []string
}

func (s *nameSet) add(name string) {
	if name == "" {
		return
	}
	if s.seen == nil {
		s.seen = map[string]struct{}{}
	}
	if _, ok := s.seen[name]; ok {
		return
	}
	s.seen[name] = struct{}{}
	s.order = append(s.order, name)
}

// Accumulator gathers contributions for one ingestion run. Node names are
// distinct per label in first-seen order; pair lists keep duplicates until
// the relationship phase dedupes them.
type Accumulator struct {
	nodes    map[kg.Label]*nameSet
	diseases map[string]kg.Disease
	disOrder []string
	pairs    map[kg.RelKind][]kg.Pair
	records  int
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		nodes:    map[kg.Label]*nameSet{},
		diseases: map[string]kg.Disease{},
		pairs:    map[kg.RelKind][]kg.Pair{},
	}
}

func (a *Accumulator) Add(c *Contribution) {
	if c == nil {
		return
	}
	a.records++
	for label, names := range c.Nodes {
		set := a.nodes[label]
		if set == nil {
			set = &nameSet{}
			a.nodes[label] = set
		}
		for _, n := range names {
			set.add(n)
		}
	}
	if _, ok := a.diseases[c.Disease.Name]; !ok {
		a.disOrder = append(a.disOrder, c.Disease.Name)
	}
	// A later record for the same disease replaces the attributes.
	a.diseases[c.Disease.Name] = c.Disease
	for kind, ps := range c.Pairs {
		a.pairs[kind] = append(a.pairs[kind], ps...)
	}
}

func (a *Accumulator) Records() int { return a.records }

// Names returns the distinct names of label in first-seen order.
func (a *Accumulator) Names(label kg.Label) []string {
	if s := a.nodes[label]; s != nil {
		return s.order
	}
	return nil
}

// Diseases returns one entry per disease name, last record winning.
func (a *Accumulator) Diseases() []kg.Disease {
	out := make([]kg.Disease, 0, len(a.disOrder))
	for _, name := range a.disOrder {
		out = append(out, a.diseases[name])
	}
	return out
}

// Pairs returns the raw pair list for kind, duplicates included.
func (a *Accumulator) Pairs(kind kg.RelKind) []kg.Pair {
	return a.pairs[kind]
}

// UniquePairs dedupes by (start, end) keeping first-seen order. (A,B) and
// (B,A) are different pairs.
func (a *Accumulator) UniquePairs(kind kg.RelKind) []kg.Pair {
	return dedupe(a.pairs[kind])
}

func dedupe(pairs []kg.Pair) []kg.Pair {
	seen := make(map[kg.Pair]struct{}, len(pairs))
	out := make([]kg.Pair, 0, len(pairs))
	for _, p := range pairs {
		if p.Start == "" || p.End == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
