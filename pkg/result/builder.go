package result

import "strings"

// body holds the analyzer-owned sections shared by Draft and Result.
type body struct {
	biz             string
	taskKind        string
	input           map[string]any
	crawl           map[string]any
	overview        map[string]any
	insights        map[string]any
	rankings        []map[string]any
	comparisons     []map[string]any
	recommendations []Recommendation
	evidences       []Evidence
	warnings        []string
	article         Article
}

func (b body) Biz() string                   { return b.biz }
func (b body) TaskKind() string              { return b.taskKind }
func (b body) Input() map[string]any         { return cloneMap(b.input) }
func (b body) Crawl() map[string]any         { return cloneMap(b.crawl) }
func (b body) Overview() map[string]any      { return cloneMap(b.overview) }
func (b body) Insights() map[string]any      { return cloneMap(b.insights) }
func (b body) Rankings() []map[string]any    { return cloneRows(b.rankings) }
func (b body) Comparisons() []map[string]any { return cloneRows(b.comparisons) }
func (b body) Evidences() []Evidence         { return append([]Evidence{}, b.evidences...) }
func (b body) Warnings() []string            { return append([]string{}, b.warnings...) }
func (b body) Article() Article              { return b.article }

func (b body) Recommendations() []Recommendation {
	out := make([]Recommendation, len(b.recommendations))
	for i, r := range b.recommendations {
		out[i] = r.clone()
	}
	return out
}

func (b body) clone() body {
	out := b
	out.input = cloneMap(b.input)
	out.crawl = cloneMap(b.crawl)
	out.overview = cloneMap(b.overview)
	out.insights = cloneMap(b.insights)
	out.rankings = cloneRows(b.rankings)
	out.comparisons = cloneRows(b.comparisons)
	out.recommendations = b.Recommendations()
	out.evidences = b.Evidences()
	out.warnings = b.Warnings()
	return out
}

// checkBindings is the cross-structure pass: every evidence index of every
// recommendation must resolve into the evidences list.
func (b body) checkBindings() error {
	n := len(b.evidences)
	for _, rec := range b.recommendations {
		for _, idx := range rec.EvidenceIndexes {
			if idx < 0 || idx >= n {
				return &ValidationError{
					Field:   "recommendations.evidence_indexes",
					Message: "recommendations.evidence_indexes out of range",
				}
			}
		}
	}
	return nil
}

// Builder assembles a Draft. Local checks run as fields are added and the
// first failure is kept; Build runs the cross-structure pass.
type Builder struct {
	b   body
	err error
}

// NewBuilder starts a draft for the given business id and task kind.
func NewBuilder(biz, taskKind string) *Builder {
	return &Builder{b: body{biz: biz, taskKind: taskKind}}
}

func (bl *Builder) Input(m map[string]any) *Builder    { bl.b.input = m; return bl }
func (bl *Builder) Crawl(m map[string]any) *Builder    { bl.b.crawl = m; return bl }
func (bl *Builder) Overview(m map[string]any) *Builder { bl.b.overview = m; return bl }
func (bl *Builder) Insights(m map[string]any) *Builder { bl.b.insights = m; return bl }
func (bl *Builder) Article(a Article) *Builder         { bl.b.article = a; return bl }

// AddRanking appends a ranking row.
func (bl *Builder) AddRanking(row map[string]any) *Builder {
	bl.b.rankings = append(bl.b.rankings, row)
	return bl
}

// AddComparison appends a comparison row.
func (bl *Builder) AddComparison(row map[string]any) *Builder {
	bl.b.comparisons = append(bl.b.comparisons, row)
	return bl
}

// AddEvidence appends ev and returns its index.
func (bl *Builder) AddEvidence(ev Evidence) int {
	if ev.ref == nil && bl.err == nil {
		bl.err = &ValidationError{Field: "evidences", Message: "evidence has no reference"}
	}
	bl.b.evidences = append(bl.b.evidences, ev)
	return len(bl.b.evidences) - 1
}

// AddRecommendation appends rec after its local validation.
func (bl *Builder) AddRecommendation(rec Recommendation) *Builder {
	if err := rec.Validate(); err != nil && bl.err == nil {
		bl.err = err
	}
	bl.b.recommendations = append(bl.b.recommendations, rec.clone())
	return bl
}

// Warn appends a non-fatal data-quality warning.
func (bl *Builder) Warn(msg string) *Builder {
	bl.b.warnings = append(bl.b.warnings, msg)
	return bl
}

// EvidenceCount is the number of evidences added so far.
func (bl *Builder) EvidenceCount() int { return len(bl.b.evidences) }

// Build returns the validated draft, or the first local or cross-structure
// violation.
func (bl *Builder) Build() (*Draft, error) {
	if bl.err != nil {
		return nil, bl.err
	}
	if strings.TrimSpace(bl.b.biz) == "" {
		return nil, &ValidationError{Field: "biz", Message: "biz is required"}
	}
	if strings.TrimSpace(bl.b.taskKind) == "" {
		return nil, &ValidationError{Field: "task_kind", Message: "task_kind is required"}
	}
	if err := bl.b.checkBindings(); err != nil {
		return nil, err
	}
	return &Draft{body: bl.b.clone()}, nil
}

// Draft is a validated analyzer result whose trace and meta are not yet
// filled. Only warnings may be added before Finalize.
type Draft struct {
	body
	finalized bool
}

// AddWarnings appends data-quality warnings.
func (d *Draft) AddWarnings(ws ...string) {
	d.warnings = append(d.warnings, ws...)
}
