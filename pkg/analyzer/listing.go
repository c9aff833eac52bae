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
	listingTopKeywords  = 20
	minTitleChars       = 80
	maxTitleChars       = 200
	minBulletChars      = 60
	minDescriptionChars = 120
)

// Listing audits a target listing's copy and its coverage of high-volume
// keywords.
type Listing struct{}

func (Listing) Kind() TaskKind { return KindListing }

// Finding is one rule check outcome.
type Finding struct {
	Rule    string `json:"rule"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

func (f Finding) row() map[string]any {
	return map[string]any{"rule": f.Rule, "level": f.Level, "message": f.Message}
}

// AuditListing applies the length rules to a listing's copy.
func AuditListing(title, bullets, description string) []Finding {
	var out []Finding
	switch n := len([]rune(title)); {
	case n < minTitleChars:
		out = append(out, Finding{"title_length", "high", "Title is too short; add core attributes, scenarios and specs"})
	case n > maxTitleChars:
		out = append(out, Finding{"title_length", "medium", "Title is long; drop filler and keep core keywords and selling points"})
	default:
		out = append(out, Finding{"title_length", "ok", "Title length is reasonable"})
	}
	if len([]rune(bullets)) < minBulletChars {
		out = append(out, Finding{"bullet_points", "high", "Bullet points lack detail; cover features, parameters, scenarios and differentiators"})
	} else {
		out = append(out, Finding{"bullet_points", "ok", "Bullet points meet the basic information density"})
	}
	if len([]rune(description)) < minDescriptionChars {
		out = append(out, Finding{"description", "medium", "Description is short; add usage scenarios, materials, comparisons and FAQ"})
	} else {
		out = append(out, Finding{"description", "ok", "Description meets the basic information density"})
	}
	return out
}

func normText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func (Listing) Analyze(in Input) (*result.Draft, error) {
	r := newReport(in)
	req := in.Request
	asin := req.Query.ASIN

	var snap *source.Snapshot
	for i := range in.Rows.Snapshots {
		if in.Rows.Snapshots[i].ASIN == asin {
			snap = &in.Rows.Snapshots[i]
			break
		}
	}
	if snap == nil {
		r.Warn("target asin snapshot not found in this crawl_batch_no")
		r.Overview(map[string]any{"site": req.Site, "asin": asin, "found_snapshot": false})
		r.Insights(map[string]any{})
		r.Article(result.Article{
			Title:    "Amazon listing audit",
			Summary:  "Target ASIN snapshot not found",
			Markdown: "# Target ASIN snapshot not found\n",
		})
		return r.build()
	}

	snapIdx := r.snapshot(snap,
		[]string{"asin", "title", "bullet_points", "description", "brand", "category", "price", "rating", "review_count"},
		fmt.Sprintf("%s title_len=%d bullets_len=%d", snap.ASIN, len([]rune(snap.Title)), len([]rune(snap.BulletPoints))))

	findings := AuditListing(snap.Title, snap.BulletPoints, snap.Description)
	fullText := normText(strings.Join([]string{snap.Title, snap.BulletPoints, snap.Description}, "\n"))

	kws := make([]*source.KeywordMetric, 0, len(in.Rows.Keywords))
	for i := range in.Rows.Keywords {
		kws = append(kws, &in.Rows.Keywords[i])
	}
	slices.SortStableFunc(kws, func(a, b *source.KeywordMetric) int {
		if c := cmp.Compare(b.SearchVolume, a.SearchVolume); c != 0 {
			return c
		}
		return cmp.Compare(b.Keyword, a.Keyword)
	})
	if len(kws) > listingTopKeywords {
		kws = kws[:listingTopKeywords]
	}

	used, missing, checked := []string{}, []string{}, []string{}
	var kwIdx []int
	for _, k := range kws {
		checked = append(checked, k.Keyword)
		kw := normText(k.Keyword)
		if kw == "" {
			continue
		}
		if strings.Contains(fullText, kw) {
			used = append(used, k.Keyword)
		} else {
			missing = append(missing, k.Keyword)
		}
		kwIdx = append(kwIdx, r.keyword(k))
	}

	if len(missing) > 0 {
		bind := append([]int{snapIdx}, kwIdx[:min(5, len(kwIdx))]...)
		r.AddRecommendation(result.Recommendation{
			Title:    "Cover the missing high-volume keywords across title, bullets and description",
			Category: "listing",
			Priority: result.PriorityP0,
			Actions: []string{
				fmt.Sprintf("Add the missing keywords first, for example: %s", strings.Join(missing[:min(8, len(missing))], ", ")),
				"Put category and key attribute terms in the title, scenarios in bullets and FAQ detail in the description",
				"Spread synonyms across bullets and description instead of stuffing the title",
			},
			ExpectedImpact:  "Wider organic traffic coverage and more consistent conversion",
			EvidenceIndexes: bind,
		})
	}

	r.ragHits(in.Hits, 1)

	findingRows := make([]map[string]any, 0, len(findings))
	for _, f := range findings {
		findingRows = append(findingRows, f.row())
	}
	r.Overview(map[string]any{
		"site":            req.Site,
		"asin":            asin,
		"found_snapshot":  true,
		"title_len":       len([]rune(snap.Title)),
		"bullet_len":      len([]rune(snap.BulletPoints)),
		"description_len": len([]rune(snap.Description)),
		"rating":          nullableFloat(snap.Rating),
		"review_count":    nullableInt(snap.ReviewCount),
	})
	insights := map[string]any{
		"rules": findingRows,
		"keyword_coverage": map[string]any{
			"used":                 used,
			"missing":              missing,
			"checked_top_keywords": checked,
		},
	}
	if req.BrandTone != "" {
		insights["brand_tone"] = req.BrandTone
	}
	r.Insights(insights)

	var md strings.Builder
	fmt.Fprintf(&md, "# Listing audit (%s)\n\n", strings.ToUpper(req.Site))
	fmt.Fprintf(&md, "## ASIN: %s\n\n", asin)
	md.WriteString("## Rule checks\n")
	for _, f := range findings {
		fmt.Fprintf(&md, "- [%s] %s (rule=%s)\n", f.Level, f.Message, f.Rule)
	}
	md.WriteString("\n## Keyword coverage (top 20)\n")
	fmt.Fprintf(&md, "- Covered: %s\n", orDash(strings.Join(used[:min(12, len(used))], ", ")))
	fmt.Fprintf(&md, "- Missing: %s\n", orDash(strings.Join(missing[:min(12, len(missing))], ", ")))
	if req.BrandTone != "" {
		fmt.Fprintf(&md, "\n## Brand tone\n- %s\n", req.BrandTone)
	}
	r.Article(result.Article{
		Title:    "Amazon listing audit",
		Summary:  "Rule checks and keyword coverage with actionable fixes bound to evidence",
		Markdown: md.String(),
	})
	return r.build()
}
