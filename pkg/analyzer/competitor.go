package analyzer

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/opsinsight/reportcore/pkg/result"
	"github.com/opsinsight/reportcore/pkg/source"
)

const maxCompetitors = 8

// Competitor builds a target-versus-competitors matrix.
type Competitor struct{}

func (Competitor) Kind() TaskKind { return KindCompetitor }

var competitorFields = []string{"asin", "title", "brand", "category", "price", "rating", "review_count", "bullet_points", "description"}

func (Competitor) Analyze(in Input) (*result.Draft, error) {
	r := newReport(in)
	req := in.Request
	snaps := in.Rows.Snapshots
	targetASIN := req.Query.ASIN

	byASIN := map[string]*source.Snapshot{}
	for i := range snaps {
		if s := &snaps[i]; s.ASIN != "" {
			if _, seen := byASIN[s.ASIN]; !seen {
				byASIN[s.ASIN] = s
			}
		}
	}
	target := byASIN[targetASIN]

	var competitors []*source.Snapshot
	if req.AutoPick() {
		for i := range snaps {
			if s := &snaps[i]; s.ASIN != "" && s.ASIN != targetASIN {
				competitors = append(competitors, s)
			}
		}
		slices.SortStableFunc(competitors, func(a, b *source.Snapshot) int {
			if c := cmp.Compare(valueOr(b.ReviewCount, 0), valueOr(a.ReviewCount, 0)); c != 0 {
				return c
			}
			if c := cmp.Compare(valueOr(b.Rating, 0), valueOr(a.Rating, 0)); c != 0 {
				return c
			}
			return cmp.Compare(b.ASIN, a.ASIN)
		})
	} else {
		for _, a := range req.Query.CompetitorASINs {
			if s, ok := byASIN[a]; ok {
				competitors = append(competitors, s)
			}
		}
	}
	if len(competitors) > maxCompetitors {
		competitors = competitors[:maxCompetitors]
	}

	excerpt := func(s *source.Snapshot) string {
		return fmt.Sprintf("%s price=%s rating=%s rc=%s", s.ASIN, optFloat(s.Price), optFloat(s.Rating), optInt(s.ReviewCount))
	}
	type matrixEntry struct {
		kind string
		snap *source.Snapshot
	}
	var matrix []matrixEntry
	targetIdx := -1
	if target == nil {
		r.Warn("target asin snapshot not found in this crawl_batch_no")
	} else {
		targetIdx = r.snapshot(target, competitorFields, excerpt(target))
		matrix = append(matrix, matrixEntry{"target", target})
	}
	for _, c := range competitors {
		r.snapshot(c, competitorFields, excerpt(c))
		matrix = append(matrix, matrixEntry{"competitor", c})
	}
	for _, m := range matrix {
		r.AddComparison(map[string]any{"type": m.kind, "data": matrixRow(m.snap)})
	}

	if target != nil && len(competitors) > 0 {
		best := slices.MaxFunc(competitors, func(a, b *source.Snapshot) int {
			if c := cmp.Compare(valueOr(a.Rating, 0), valueOr(b.Rating, 0)); c != 0 {
				return c
			}
			if c := cmp.Compare(valueOr(a.ReviewCount, 0), valueOr(b.ReviewCount, 0)); c != 0 {
				return c
			}
			return cmp.Compare(a.ASIN, b.ASIN)
		})
		r.AddRecommendation(result.Recommendation{
			Title:    "Benchmark the best-rated competitor and close the gaps in positioning",
			Category: "competitor",
			Priority: result.PriorityP0,
			Actions: []string{
				fmt.Sprintf("Map the selling-point structure of %s and extract its frequent feature and scenario terms", best.ASIN),
				"Fill in the features and scenarios the target listing is missing, using review feedback",
				"Define differentiators such as material, accessories, warranty or ease of use",
			},
			ExpectedImpact:  "Better listing conversion and clearer positioning",
			EvidenceIndexes: []int{targetIdx},
		})
	}

	r.ragHits(in.Hits, 1)

	r.Overview(map[string]any{
		"site":                req.Site,
		"target_asin":         targetASIN,
		"competitor_count":    len(competitors),
		"snapshot_count":      len(snaps),
		"review_sample_count": len(in.Rows.Reviews),
	})
	pick := "explicit competitor_asins"
	if req.AutoPick() {
		pick = "batch snapshots ordered by review count then rating"
	}
	r.Insights(map[string]any{
		"matrix_fields":    []string{"price", "rating", "review_count", "title_len"},
		"competitor_basis": pick,
	})

	var md strings.Builder
	fmt.Fprintf(&md, "# Amazon competitor matrix (%s)\n\n", strings.ToUpper(req.Site))
	fmt.Fprintf(&md, "## Target ASIN: %s\n\n", targetASIN)
	md.WriteString("## Matrix (price / rating / review_count / title_len)\n")
	for _, m := range matrix {
		s := m.snap
		fmt.Fprintf(&md, "- [%s] %s price=%s rating=%s rc=%s title_len=%d\n",
			m.kind, s.ASIN, optFloat(s.Price), optFloat(s.Rating), optInt(s.ReviewCount), len([]rune(s.Title)))
	}
	r.Article(result.Article{
		Title:    "Amazon competitor matrix and differentiation",
		Summary:  "Core metrics of the target ASIN against its competitors with differentiation advice",
		Markdown: md.String(),
	})
	return r.build()
}

func matrixRow(s *source.Snapshot) map[string]any {
	return map[string]any{
		"asin":         s.ASIN,
		"brand":        s.Brand,
		"price":        nullableFloat(s.Price),
		"rating":       nullableFloat(s.Rating),
		"review_count": nullableInt(s.ReviewCount),
		"title_len":    len([]rune(s.Title)),
	}
}
