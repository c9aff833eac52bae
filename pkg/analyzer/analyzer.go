// Package analyzer holds the deterministic analysis strategies, one per
// task kind, and the registry the workflow dispatches through.
package analyzer

import (
	"fmt"

	"github.com/opsinsight/reportcore/pkg/result"
	"github.com/opsinsight/reportcore/pkg/retrieval"
	"github.com/opsinsight/reportcore/pkg/source"
	"github.com/opsinsight/reportcore/pkg/spider"
)

// Biz is the business line every strategy reports under.
const Biz = "amazon"

// Rows are the source row sets loaded for one run.
type Rows struct {
	Snapshots []source.Snapshot
	Reviews   []source.Review
	Keywords  []source.KeywordMetric
}

// Input is everything a strategy may read. Strategies never mutate it.
type Input struct {
	Request *Request
	Locator spider.Locator
	Rows    Rows
	Hits    []retrieval.Hit
}

// Analyzer turns an Input into a validated draft result. Implementations are
// pure: the same Input always yields the same draft.
type Analyzer interface {
	Kind() TaskKind
	Analyze(in Input) (*result.Draft, error)
}

// Registry maps every task kind to exactly one Analyzer.
type Registry struct {
	analyzers map[TaskKind]Analyzer
}

// NewRegistry fails when two analyzers claim the same kind or when any kind
// is left without an analyzer.
func NewRegistry(analyzers ...Analyzer) (*Registry, error) {
	r := &Registry{analyzers: make(map[TaskKind]Analyzer, len(analyzers))}
	for _, a := range analyzers {
		k := a.Kind()
		if !k.Valid() {
			return nil, fmt.Errorf("analyzer for unknown task kind %q", k)
		}
		if _, dup := r.analyzers[k]; dup {
			return nil, fmt.Errorf("duplicate analyzer for %s", k)
		}
		r.analyzers[k] = a
	}
	for _, k := range Kinds() {
		if _, ok := r.analyzers[k]; !ok {
			return nil, fmt.Errorf("no analyzer registered for %s", k)
		}
	}
	return r, nil
}

// DefaultRegistry wires the built-in strategies.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		Opportunity{},
		Market{},
		Competitor{},
		Listing{},
		VOC{},
		Improvement{},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the analyzer for kind.
func (r *Registry) Lookup(kind TaskKind) (Analyzer, bool) {
	a, ok := r.analyzers[kind]
	return a, ok
}
