package workflow

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/opsinsight/reportcore/pkg/analyzer"
	"github.com/opsinsight/reportcore/pkg/source"
)

// Row caps per load.
const (
	targetSnapshotLimit     = 50
	competitorTargetLimit   = 5
	competitorReviewLimit   = 500
	keywordMetricLimit      = 800
	largeReviewLimit        = 2000
	smallReviewLimit        = 1000
	largeReviewMinTopN      = 50
	minSnapshotPool         = 80
	maxSnapshotPool         = 500
	competitorPoolFloor     = 200
	competitorPoolTopNScale = 2
)

// CompetitorPoolLimit is the candidate pool size for a competitor matrix.
func CompetitorPoolLimit(topN int) int {
	return max(minSnapshotPool, min(maxSnapshotPool, max(competitorPoolTopNScale*topN, competitorPoolFloor)))
}

// SnapshotLimit is the snapshot cap for kinds that scan the whole batch.
func SnapshotLimit(topN int) int {
	return max(minSnapshotPool, min(maxSnapshotPool, max(topN, minSnapshotPool)))
}

// ReviewLimit returns how many reviews kind reads, or 0 when it reads none.
func ReviewLimit(kind analyzer.TaskKind, topN int) int {
	switch {
	case kind.NeedsReviews() && topN >= largeReviewMinTopN:
		return largeReviewLimit
	case kind.NeedsReviews():
		return smallReviewLimit
	case kind == analyzer.KindCompetitor:
		return competitorReviewLimit
	}
	return 0
}

func (w *Workflow) loadData(r *run) (string, error) {
	ctx, req := r.ctx, r.req
	base := source.Query{BatchNo: r.loc.BatchNo, Site: r.loc.Site}
	asin := req.Query.ASIN
	var target []string
	if asin != "" {
		target = []string{asin}
	}
	filtered := func(limit int) source.Query {
		q := base
		q.Limit = limit
		q.CategoryContains = req.Query.Category
		q.PriceMin = req.Filters.PriceMin
		q.PriceMax = req.Filters.PriceMax
		return q
	}

	var (
		snaps []source.Snapshot
		err   error
	)
	switch {
	case r.kind.TargetOnly():
		q := base
		q.Limit = targetSnapshotLimit
		q.ASINs = target
		snaps, err = w.rows.ListSnapshots(ctx, q)
	case r.kind == analyzer.KindCompetitor:
		snaps, err = w.loadCompetitorSnapshots(r, base, target, filtered(CompetitorPoolLimit(req.Filters.TopN)))
	default:
		snaps, err = w.rows.ListSnapshots(ctx, filtered(SnapshotLimit(req.Filters.TopN)))
	}
	if err != nil {
		return "", fmt.Errorf("load snapshots: %w", err)
	}

	var reviews []source.Review
	if n := ReviewLimit(r.kind, req.Filters.TopN); n > 0 {
		q := base
		q.Limit = n
		q.ASINs = target
		if reviews, err = w.rows.ListReviews(ctx, q); err != nil {
			return "", fmt.Errorf("load reviews: %w", err)
		}
	}

	q := base
	q.Limit = keywordMetricLimit
	keywords, err := w.rows.ListKeywordMetrics(ctx, q)
	if err != nil {
		return "", fmt.Errorf("load keyword metrics: %w", err)
	}

	r.rows = analyzer.Rows{Snapshots: snaps, Reviews: reviews, Keywords: keywords}
	return fmt.Sprintf("snapshots=%d reviews=%d keywords=%d", len(snaps), len(reviews), len(keywords)), nil
}

// loadCompetitorSnapshots reads the target rows and the candidate pool and
// merges them by asin. The first row seen for an asin wins and rows without
// an asin are dropped.
func (w *Workflow) loadCompetitorSnapshots(r *run, base source.Query, target []string, pool source.Query) ([]source.Snapshot, error) {
	var rows []source.Snapshot
	if len(target) > 0 {
		q := base
		q.Limit = competitorTargetLimit
		q.ASINs = target
		t, err := w.rows.ListSnapshots(r.ctx, q)
		if err != nil {
			return nil, err
		}
		rows = append(rows, t...)
	}
	candidates, err := w.rows.ListSnapshots(r.ctx, pool)
	if err != nil {
		return nil, err
	}
	rows = append(rows, candidates...)

	seen := mapset.NewThreadUnsafeSet[string]()
	merged := make([]source.Snapshot, 0, len(rows))
	for _, s := range rows {
		if s.ASIN == "" || !seen.Add(s.ASIN) {
			continue
		}
		merged = append(merged, s)
	}
	return merged, nil
}
