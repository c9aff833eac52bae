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
	backlogSize         = 8
	backlogBound        = 3
	problemChars        = 260
	maxListedConstraint = 6
)

// ImpactScore weighs a negative review: helpful + max(0, 3 − rating) × 2.
func ImpactScore(rv *source.Review) float64 {
	return float64(rv.HelpfulCount) + max(0, 3-rv.Rating)*2
}

// rankNegativeReviews orders negative reviews by impact, then review time,
// then id, all descending.
func rankNegativeReviews(reviews []source.Review) []*source.Review {
	var neg []*source.Review
	for i := range reviews {
		if SentimentOf(reviews[i].Rating) == Negative {
			neg = append(neg, &reviews[i])
		}
	}
	slices.SortStableFunc(neg, func(a, b *source.Review) int {
		if c := cmp.Compare(ImpactScore(b), ImpactScore(a)); c != 0 {
			return c
		}
		if c := cmp.Compare(b.ReviewTime, a.ReviewTime); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return neg
}

// ProposalActions lists the change proposals the constraints allow.
func ProposalActions(c ImprovementConstraints) []string {
	var actions []string
	if c.CostSensitivity == CostHigh {
		if c.AllowPackagingChange {
			actions = append(actions, "Start with low-cost fixes: accessories, protective packaging and unboxing to cut damage and confusion")
		}
		actions = append(actions, "Improve the manual, FAQ and images to lower the barrier to correct use")
	} else {
		actions = append(actions, "Start with guidance and experience fixes: FAQ, illustrated instructions and usage limits")
	}

	if c.AllowStructuralChange {
		actions = append(actions, "For structural issues, reinforce load points, add limiters or tighten assembly tolerances")
	} else {
		actions = append(actions, "No structural change: mitigate through accessories, usage guidance and expectation setting")
	}

	if c.AllowMaterialChange {
		if len(c.ForbiddenMaterials) > 0 {
			actions = append(actions, fmt.Sprintf("Material changes must avoid: %s", joinFirst(c.ForbiddenMaterials, maxListedConstraint)))
		}
		actions = append(actions, "For feel or durability issues, choose more wear, heat or drop resistant materials")
	} else {
		actions = append(actions, "No material change: improve durability through surface finish, accessories or protective design")
	}

	if len(c.MustHaveCertifications) > 0 {
		actions = append(actions, fmt.Sprintf("Keep required certifications: %s, as both design constraints and listing copy", joinFirst(c.MustHaveCertifications, maxListedConstraint)))
	}
	return actions
}

func joinFirst(items []string, n int) string {
	return strings.Join(items[:min(n, len(items))], ", ")
}

// Improvement turns high-impact negative reviews into a constraint-aware
// backlog.
type Improvement struct{}

func (Improvement) Kind() TaskKind { return KindImprovement }

func (Improvement) Analyze(in Input) (*result.Draft, error) {
	r := newReport(in)
	req := in.Request
	asin := req.Query.ASIN
	constraints := req.Improvement()

	var snap *source.Snapshot
	for i := range in.Rows.Snapshots {
		if in.Rows.Snapshots[i].ASIN == asin {
			snap = &in.Rows.Snapshots[i]
			break
		}
	}
	snapIdx := -1
	if snap == nil {
		r.Warn("target asin snapshot not found in this crawl_batch_no")
	} else {
		snapIdx = r.snapshot(snap,
			[]string{"asin", "title", "brand", "category", "price", "rating", "review_count", "attributes"},
			fmt.Sprintf("%s rating=%s rc=%s", snap.ASIN, optFloat(snap.Rating), optInt(snap.ReviewCount)))
	}

	neg := rankNegativeReviews(in.Rows.Reviews)
	if len(neg) > backlogSize {
		neg = neg[:backlogSize]
	}

	actions := ProposalActions(constraints)
	backlog := make([]map[string]any, 0, len(neg))
	var bound []int
	for i, rv := range neg {
		idx := r.review(rv)
		if i < backlogBound {
			bound = append(bound, idx)
		}
		backlog = append(backlog, map[string]any{
			"item":                fmt.Sprintf("improvement-%d", i+1),
			"impact_score":        round(ImpactScore(rv), 2),
			"problem":             clip(strings.TrimSpace(rv.Title+" "+rv.Content), problemChars),
			"constraints_applied": constraints.Map(),
			"proposal_actions":    append([]string{}, actions...),
			"evidence_index":      idx,
		})
	}

	if len(backlog) > 0 {
		bind := []int{}
		if snapIdx >= 0 {
			bind = append(bind, snapIdx)
		}
		bind = append(bind, bound...)
		r.AddRecommendation(result.Recommendation{
			Title:    "Build an iteration backlog from complaint impact and constraints, and work it by priority",
			Category: "improvement",
			Priority: result.PriorityP0,
			Actions: []string{
				"Iteration 1 (1-2 weeks): low-cost, high-impact fixes in packaging, accessories, manual, FAQ and images",
				"Iteration 2 (2-6 weeks): engineering fixes for frequent root causes where structure or material may change",
				"Update the listing to show resolved issues with new selling points and visual proof",
			},
			ExpectedImpact:  "Fewer negative reviews and returns, more consistent conversion and reputation",
			EvidenceIndexes: bind,
		})
	} else {
		r.Warn("no negative reviews found for backlog")
		bind := []int{}
		if snapIdx >= 0 {
			bind = append(bind, snapIdx)
		}
		r.AddRecommendation(result.Recommendation{
			Title:    "Not enough negative reviews in this batch; widen the review sample or use another batch",
			Category: "improvement",
			Priority: result.PriorityP1,
			Actions: []string{
				"Raise the review limit or re-run on a more recent crawl batch",
				"Check that the crawler collects reviews for this ASIN",
			},
			ExpectedImpact:  "Avoid decisions made on insufficient data",
			EvidenceIndexes: bind,
		})
	}

	r.ragHits(in.Hits, 1)

	r.Overview(map[string]any{
		"site":             req.Site,
		"asin":             asin,
		"snapshot_found":   snap != nil,
		"review_total":     len(in.Rows.Reviews),
		"negative_sampled": len(neg),
		"constraints":      constraints.Map(),
	})
	r.Insights(map[string]any{"backlog": backlog})

	var md strings.Builder
	fmt.Fprintf(&md, "# Product improvement plan (%s)\n\n", strings.ToUpper(req.Site))
	fmt.Fprintf(&md, "## ASIN: %s\n\n", asin)
	md.WriteString("## Constraints\n")
	fmt.Fprintf(&md, "- allow_structural_change: %t\n", constraints.AllowStructuralChange)
	fmt.Fprintf(&md, "- allow_material_change: %t\n", constraints.AllowMaterialChange)
	fmt.Fprintf(&md, "- allow_packaging_change: %t\n", constraints.AllowPackagingChange)
	fmt.Fprintf(&md, "- must_have_certifications: %s\n", orDash(strings.Join(constraints.MustHaveCertifications, ", ")))
	fmt.Fprintf(&md, "- forbidden_materials: %s\n", orDash(strings.Join(constraints.ForbiddenMaterials, ", ")))
	fmt.Fprintf(&md, "- cost_sensitivity: %s\n\n", orDash(string(constraints.CostSensitivity)))
	md.WriteString("## Backlog\n")
	for _, b := range backlog {
		fmt.Fprintf(&md, "- %s (impact=%v): %s\n", b["item"], b["impact_score"], b["problem"])
	}
	r.Article(result.Article{
		Title:    "Product improvement plan",
		Summary:  "An iteration backlog from complaint impact within the given constraints, bound to evidence",
		Markdown: md.String(),
	})
	return r.build()
}
