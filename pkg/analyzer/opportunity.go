package analyzer

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/opsinsight/reportcore/pkg/result"
	"github.com/opsinsight/reportcore/pkg/source"
)

const (
	opportunityPool    = 80
	opportunityRanked  = 30
	opportunityPicks   = 3
	opportunityRAGHits = 3
)

// Opportunity scores keywords by search volume discounted by competition
// and cost per click.
type Opportunity struct{}

func (Opportunity) Kind() TaskKind { return KindOpportunity }

type keywordScore struct {
	row   *source.KeywordMetric
	score float64
}

// OpportunityScore is sv × (1 − competition) − 0.2 × cpc rounded to 4 places.
func OpportunityScore(searchVolume, competition, cpc float64) float64 {
	return round(searchVolume*(1-competition)-0.2*cpc, 4)
}

// rankKeywords keeps the highest-volume keywords and orders them by score,
// ties broken by keyword ascending.
func rankKeywords(rows []source.KeywordMetric) []keywordScore {
	pool := make([]*source.KeywordMetric, 0, len(rows))
	for i := range rows {
		pool = append(pool, &rows[i])
	}
	slices.SortStableFunc(pool, func(a, b *source.KeywordMetric) int {
		if c := cmp.Compare(b.SearchVolume, a.SearchVolume); c != 0 {
			return c
		}
		return cmp.Compare(b.Keyword, a.Keyword)
	})
	if len(pool) > opportunityPool {
		pool = pool[:opportunityPool]
	}

	scored := make([]keywordScore, 0, len(pool))
	for _, k := range pool {
		scored = append(scored, keywordScore{row: k, score: OpportunityScore(k.SearchVolume, k.Competition, k.CPC)})
	}
	slices.SortStableFunc(scored, func(a, b keywordScore) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.row.Keyword, b.row.Keyword)
	})
	return scored
}

func (Opportunity) Analyze(in Input) (*result.Draft, error) {
	r := newReport(in)
	req := in.Request

	var scored []keywordScore
	if len(in.Rows.Keywords) == 0 {
		r.Warn("keyword_metrics is empty for this crawl_batch_no")
	} else {
		scored = rankKeywords(in.Rows.Keywords)
	}

	top := scored
	if len(top) > opportunityRanked {
		top = top[:opportunityRanked]
	}
	topKeywords := []string{}
	for i, s := range top {
		r.AddRanking(map[string]any{
			"keyword":           s.row.Keyword,
			"search_volume":     s.row.SearchVolume,
			"competition":       s.row.Competition,
			"cpc":               s.row.CPC,
			"opportunity_score": s.score,
		})
		if i < 10 {
			topKeywords = append(topKeywords, s.row.Keyword)
		}
	}

	for i, s := range scored {
		if i == opportunityPicks {
			break
		}
		idx := r.keyword(s.row)
		r.AddRecommendation(result.Recommendation{
			Title:    fmt.Sprintf("Investigate the niche demand and differentiators behind %q", s.row.Keyword),
			Category: "opportunity",
			Priority: result.PriorityP0,
			Actions: []string{
				"Pull price bands, ratings and selling points of the top 50 listings for this keyword",
				"Extract target audience scenarios and pain points into 3 testable product directions",
				"Confirm compliance risks and material or certification constraints",
			},
			ExpectedImpact:  "Higher hit rate for product selection and a shorter research cycle",
			EvidenceIndexes: []int{idx},
		})
	}

	r.ragHits(in.Hits, opportunityRAGHits)

	r.Overview(map[string]any{
		"site":                 req.Site,
		"query":                queryMap(req.Query),
		"snapshot_count":       len(in.Rows.Snapshots),
		"keyword_metric_count": len(in.Rows.Keywords),
		"top_n":                req.Filters.TopN,
	})
	r.Insights(map[string]any{
		"opportunity_method": "score = search_volume*(1-competition) - 0.2*cpc",
		"top_keywords":       topKeywords,
	})

	var md strings.Builder
	fmt.Fprintf(&md, "# Amazon opportunity scan (%s)\n\n", strings.ToUpper(req.Site))
	md.WriteString("## Input\n")
	fmt.Fprintf(&md, "- Keyword: %s\n", orDash(req.Query.Keyword))
	fmt.Fprintf(&md, "- Category: %s\n", orDash(req.Query.Category))
	fmt.Fprintf(&md, "- Top N: %d\n\n", req.Filters.TopN)
	md.WriteString("## Top 10 keyword opportunities\n")
	for i, s := range top {
		if i == 10 {
			break
		}
		fmt.Fprintf(&md, "%d. **%s** score=%.2f (sv=%.0f, comp=%.2f, cpc=%.2f)\n",
			i+1, s.row.Keyword, s.score, s.row.SearchVolume, s.row.Competition, s.row.CPC)
	}
	r.Article(result.Article{
		Title:    "Amazon opportunity scan",
		Summary:  "Keyword opportunities ranked from batch metrics with research priorities",
		Markdown: md.String(),
	})
	return r.build()
}

func queryMap(q Query) map[string]any {
	return map[string]any{
		"keyword":          q.Keyword,
		"category":         q.Category,
		"asin":             q.ASIN,
		"competitor_asins": append([]string{}, q.CompetitorASINs...),
	}
}
