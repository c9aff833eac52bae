package analyzer

import (
	"fmt"
	"strings"

	"github.com/opsinsight/reportcore/pkg/result"
	"github.com/opsinsight/reportcore/pkg/source"
)

const (
	vocTopTerms      = 15
	vocThemes        = 6
	vocThemeSamples  = 2
	vocExampleLimit  = 3
	vocBoundThemes   = 3
	negativeMaxStars = 2.0
	positiveMinStars = 4.0
)

// Sentiment buckets a review by its star rating.
type Sentiment string

const (
	Negative Sentiment = "negative"
	Neutral  Sentiment = "neutral"
	Positive Sentiment = "positive"
)

// SentimentOf returns negative for ratings ≤ 2, positive for ≥ 4 and
// neutral otherwise.
func SentimentOf(rating float64) Sentiment {
	switch {
	case rating <= negativeMaxStars:
		return Negative
	case rating >= positiveMinStars:
		return Positive
	}
	return Neutral
}

// VOC extracts positive and negative themes from reviews.
type VOC struct{}

func (VOC) Kind() TaskKind { return KindVOC }

func (VOC) Analyze(in Input) (*result.Draft, error) {
	r := newReport(in)
	req := in.Request
	reviews := in.Rows.Reviews

	if len(reviews) == 0 {
		r.Warn("reviews is empty for this crawl_batch_no")
	}

	neg := newTermCounter[*source.Review](vocExampleLimit)
	pos := newTermCounter[*source.Review](vocExampleLimit)
	counts := map[Sentiment]int{}
	for i := range reviews {
		rv := &reviews[i]
		s := SentimentOf(rv.Rating)
		counts[s]++
		terms := Tokenize(rv.Title + " " + rv.Content)
		switch s {
		case Negative:
			neg.add(terms, rv)
		case Positive:
			pos.add(terms, rv)
		}
	}

	topNeg := neg.top(vocTopTerms)
	topPos := pos.top(vocTopTerms)

	themes := []map[string]any{}
	var bind []int
	for i, tc := range topNeg {
		if i == vocThemes {
			break
		}
		samples := neg.examples[tc.Term]
		if len(samples) > vocThemeSamples {
			samples = samples[:vocThemeSamples]
		}
		idxs := []int{}
		for _, rv := range samples {
			idxs = append(idxs, r.review(rv))
		}
		if i < vocBoundThemes && len(idxs) > 0 {
			bind = append(bind, idxs[0])
		}
		themes = append(themes, map[string]any{"theme": tc.Term, "count": tc.Count, "evidence_indexes": idxs})
	}

	if len(themes) > 0 {
		r.AddRecommendation(result.Recommendation{
			Title:    "Turn the most frequent complaint themes into fixes and clearer expectations",
			Category: "voc",
			Priority: result.PriorityP0,
			Actions: []string{
				"Move the top complaint themes into the improvement backlog, weighted by frequency and helpful votes",
				"Add images, video and FAQ for the most common misunderstandings",
				"Where the product cannot change, set expectations on scenarios, limits and precautions",
			},
			ExpectedImpact:  "Fewer returns and negative reviews, more consistent conversion",
			EvidenceIndexes: bind,
		})
	}

	r.ragHits(in.Hits, 1)

	var asin any
	if req.Query.ASIN != "" {
		asin = req.Query.ASIN
	}
	r.Overview(map[string]any{
		"site":         req.Site,
		"asin":         asin,
		"review_total": len(reviews),
		"positive":     counts[Positive],
		"neutral":      counts[Neutral],
		"negative":     counts[Negative],
	})
	r.Insights(map[string]any{
		"top_negative_terms": termRows(topNeg),
		"top_positive_terms": termRows(topPos),
		"negative_themes":    themes,
	})

	var md strings.Builder
	fmt.Fprintf(&md, "# Review / VOC insights (%s)\n\n", strings.ToUpper(req.Site))
	md.WriteString("## Overview\n")
	fmt.Fprintf(&md, "- Reviews: %d\n", len(reviews))
	fmt.Fprintf(&md, "- Positive: %d / Neutral: %d / Negative: %d\n\n", counts[Positive], counts[Neutral], counts[Negative])
	md.WriteString("## Frequent complaint themes\n")
	for _, t := range themes {
		fmt.Fprintf(&md, "- %s: %d\n", t["theme"], t["count"])
	}
	md.WriteString("\n## Top 10 praise terms\n")
	for i, tc := range topPos {
		if i == 10 {
			break
		}
		fmt.Fprintf(&md, "- %s: %d\n", tc.Term, tc.Count)
	}
	r.Article(result.Article{
		Title:    "Amazon review / VOC insights",
		Summary:  "Positive and negative themes from the review sample with actions bound to evidence",
		Markdown: md.String(),
	})
	return r.build()
}

func termRows(terms []TermCount) []map[string]any {
	out := make([]map[string]any, 0, len(terms))
	for _, t := range terms {
		out = append(out, map[string]any{"term": t.Term, "count": t.Count})
	}
	return out
}
