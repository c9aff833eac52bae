// Package evaluate lints analyzer drafts. Findings are warnings; nothing here
// fails a run or touches non-warning fields.
package evaluate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/opsinsight/reportcore/pkg/result"
)

// MinArticleChars is the shortest narrative that does not draw a warning.
const MinArticleChars = 120

// View is the read-only part of a draft the linter looks at.
type View interface {
	Recommendations() []result.Recommendation
	Insights() map[string]any
	Article() result.Article
}

// Evaluate returns warnings for unbound high-priority recommendations, empty
// insights and a too-short narrative.
func Evaluate(v View) []string {
	var warnings []string

	for i, rec := range v.Recommendations() {
		if rec.IsHighPriority() && len(rec.EvidenceIndexes) == 0 {
			warnings = append(warnings, fmt.Sprintf("recommendations[%d] priority=%s missing evidence_indexes", i, rec.Priority))
		}
	}

	if len(v.Insights()) == 0 {
		warnings = append(warnings, "insights is empty")
	}

	md := strings.TrimSpace(v.Article().Markdown)
	if md != "" && utf8.RuneCountInString(md) < MinArticleChars {
		warnings = append(warnings, fmt.Sprintf("article.markdown is too short (<%d chars)", MinArticleChars))
	}

	return warnings
}
