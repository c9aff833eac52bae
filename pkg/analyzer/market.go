package analyzer

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/opsinsight/reportcore/pkg/result"
	"github.com/opsinsight/reportcore/pkg/source"
)

// PriceBuckets are the price band labels in ascending order.
var PriceBuckets = []string{"<10", "10-20", "20-30", "30-50", "50-80", "80-120", ">=120"}

var priceBounds = []float64{10, 20, 30, 50, 80, 120}

// PriceBucket returns the band for p. Lower bounds are inclusive.
func PriceBucket(p float64) string {
	for i, bound := range priceBounds {
		if p < bound {
			return PriceBuckets[i]
		}
	}
	return PriceBuckets[len(PriceBuckets)-1]
}

const (
	marketTopBrands = 10
	marketSamples   = 3
)

// Market summarizes price bands, brand concentration and rating levels.
type Market struct{}

func (Market) Kind() TaskKind { return KindMarket }

type brandCount struct {
	brand string
	count int
}

func (Market) Analyze(in Input) (*result.Draft, error) {
	r := newReport(in)
	req := in.Request
	snaps := in.Rows.Snapshots

	if len(snaps) == 0 {
		r.Warn("snapshots is empty for this crawl_batch_no")
	}

	var prices, ratings, reviewCounts []float64
	brands := map[string]int{}
	buckets := map[string]int{}
	for i := range snaps {
		s := &snaps[i]
		if s.Brand != "" {
			brands[s.Brand]++
		}
		if s.Price != nil {
			prices = append(prices, *s.Price)
			buckets[PriceBucket(*s.Price)]++
		}
		if s.Rating != nil {
			ratings = append(ratings, *s.Rating)
		}
		if s.ReviewCount != nil {
			reviewCounts = append(reviewCounts, float64(*s.ReviewCount))
		}
	}

	topBrands := make([]brandCount, 0, len(brands))
	for b, c := range brands {
		topBrands = append(topBrands, brandCount{brand: b, count: c})
	}
	slices.SortFunc(topBrands, func(a, b brandCount) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return cmp.Compare(a.brand, b.brand)
	})
	if len(topBrands) > marketTopBrands {
		topBrands = topBrands[:marketTopBrands]
	}

	samples := make([]*source.Snapshot, 0, len(snaps))
	for i := range snaps {
		samples = append(samples, &snaps[i])
	}
	slices.SortStableFunc(samples, func(a, b *source.Snapshot) int {
		if c := cmp.Compare(valueOr(b.ReviewCount, 0), valueOr(a.ReviewCount, 0)); c != 0 {
			return c
		}
		return cmp.Compare(b.ASIN, a.ASIN)
	})
	for i, s := range samples {
		if i == marketSamples {
			break
		}
		r.snapshot(s,
			[]string{"asin", "title", "brand", "category", "price", "rating", "review_count"},
			fmt.Sprintf("%s %s price=%s rating=%s rc=%s", s.ASIN, orDash(s.Brand), optFloat(s.Price), optFloat(s.Rating), optInt(s.ReviewCount)))
	}

	if len(topBrands) > 0 {
		idx := []int{}
		if r.EvidenceCount() > 0 {
			idx = append(idx, 0)
		}
		r.AddRecommendation(result.Recommendation{
			Title:    "Study the selling points and pricing of the leading brands to find a differentiated entry",
			Category: "market",
			Priority: result.PriorityP0,
			Actions: []string{
				"Break down title, bullet and image strategy of the top 3 brands",
				"Compare price bands against rating and review volume to find an open tier",
			},
			ExpectedImpact:  "Faster market research and sharper positioning",
			EvidenceIndexes: idx,
		})
	}

	r.ragHits(in.Hits, 1)

	bucketRows := []map[string]any{}
	for _, b := range PriceBuckets {
		if n := buckets[b]; n > 0 {
			bucketRows = append(bucketRows, map[string]any{"bucket": b, "count": n})
		}
	}
	brandRows := []map[string]any{}
	for _, b := range topBrands {
		brandRows = append(brandRows, map[string]any{"brand": b.brand, "count": b.count})
	}

	overview := map[string]any{
		"site":             req.Site,
		"query":            queryMap(req.Query),
		"snapshot_count":   len(snaps),
		"avg_price":        round(mean(prices), 2),
		"avg_rating":       round(mean(ratings), 2),
		"avg_review_count": round(mean(reviewCounts), 2),
	}
	r.Overview(overview)
	r.Insights(map[string]any{
		"price_buckets":        bucketRows,
		"top_brands":           brandRows,
		"keyword_metric_count": len(in.Rows.Keywords),
	})

	var md strings.Builder
	fmt.Fprintf(&md, "# Amazon market research brief (%s)\n\n", strings.ToUpper(req.Site))
	md.WriteString("## Overview\n")
	fmt.Fprintf(&md, "- Snapshots: %d\n", len(snaps))
	fmt.Fprintf(&md, "- Average price: %v\n", overview["avg_price"])
	fmt.Fprintf(&md, "- Average rating: %v\n", overview["avg_rating"])
	fmt.Fprintf(&md, "- Average review count: %v\n\n", overview["avg_review_count"])
	md.WriteString("## Price bands\n")
	for _, b := range bucketRows {
		fmt.Fprintf(&md, "- %s: %d\n", b["bucket"], b["count"])
	}
	md.WriteString("\n## Top 10 brands\n")
	for _, b := range topBrands {
		fmt.Fprintf(&md, "- %s: %d\n", b.brand, b.count)
	}
	r.Article(result.Article{
		Title:    "Amazon market research brief",
		Summary:  "Price bands, brand concentration and rating levels from the batch snapshots",
		Markdown: md.String(),
	})
	return r.build()
}
