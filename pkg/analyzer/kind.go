package analyzer

import (
	"fmt"
	"strings"
)

// TaskKind selects the analysis strategy for a job.
type TaskKind string

const (
	KindOpportunity TaskKind = "AOA-01"
	KindMarket      TaskKind = "AOA-02"
	KindCompetitor  TaskKind = "AOA-03"
	KindListing     TaskKind = "AOA-04"
	KindVOC         TaskKind = "AOA-05"
	KindImprovement TaskKind = "AOA-06"
)

var kindSlugs = map[TaskKind]string{
	KindOpportunity: "opportunity-scan",
	KindMarket:      "market-research",
	KindCompetitor:  "competitor-matrix",
	KindListing:     "listing-audit",
	KindVOC:         "review-voc",
	KindImprovement: "product-improvement",
}

// Kinds returns every task kind in code order.
func Kinds() []TaskKind {
	return []TaskKind{KindOpportunity, KindMarket, KindCompetitor, KindListing, KindVOC, KindImprovement}
}

// ParseTaskKind accepts a code such as "AOA-01" (case-insensitive) or a
// slug such as "listing-audit".
func ParseTaskKind(s string) (TaskKind, error) {
	s = strings.TrimSpace(s)
	for _, k := range Kinds() {
		if strings.EqualFold(s, string(k)) || s == kindSlugs[k] {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown task kind %q", s)
}

// Slug is the URL path segment used to submit this kind.
func (k TaskKind) Slug() string { return kindSlugs[k] }

// Valid reports whether k is one of Kinds.
func (k TaskKind) Valid() bool {
	_, ok := kindSlugs[k]
	return ok
}

// TargetOnly reports whether snapshots are loaded for the target ASIN only.
func (k TaskKind) TargetOnly() bool {
	return k == KindListing || k == KindImprovement
}

// NeedsReviews reports whether the strategy reads the full review sample.
func (k TaskKind) NeedsReviews() bool {
	return k == KindVOC || k == KindImprovement
}
