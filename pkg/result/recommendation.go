package result

import (
	"fmt"
	"strings"
)

const (
	PriorityP0 = "P0"
	PriorityP1 = "P1"
	PriorityP2 = "P2"
)

// Recommendation is an actionable suggestion bound to entries of the sibling
// evidences list.
type Recommendation struct {
	Title           string   `json:"title"`
	Category        string   `json:"category"`
	Priority        string   `json:"priority"`
	Actions         []string `json:"actions"`
	ExpectedImpact  string   `json:"expected_impact,omitempty"`
	EvidenceIndexes []int    `json:"evidence_indexes"`
}

// Validate checks the invariants that need no sibling context.
func (r Recommendation) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return &ValidationError{Field: "recommendations.title", Message: "title is required"}
	}
	if strings.TrimSpace(r.Priority) == "" {
		return &ValidationError{Field: "recommendations.priority", Message: "priority is required"}
	}
	for _, idx := range r.EvidenceIndexes {
		if idx < 0 {
			return &ValidationError{
				Field:   "recommendations.evidence_indexes",
				Message: fmt.Sprintf("evidence_indexes must be >= 0, got %d", idx),
			}
		}
	}
	return nil
}

// IsHighPriority reports whether the priority is P0 or high.
func (r Recommendation) IsHighPriority() bool {
	p := strings.TrimSpace(r.Priority)
	return strings.EqualFold(p, PriorityP0) || strings.EqualFold(p, "high")
}

func (r Recommendation) clone() Recommendation {
	out := r
	out.Actions = append([]string{}, r.Actions...)
	out.EvidenceIndexes = append([]int{}, r.EvidenceIndexes...)
	return out
}

// Article is the human-readable narrative of a report.
type Article struct {
	Title    string `json:"title"`
	Summary  string `json:"summary"`
	Markdown string `json:"markdown"`
}
