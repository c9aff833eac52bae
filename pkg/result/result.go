package result

import (
	"encoding/json"
	"fmt"
	"time"
)

// Result is a finalized report. It is produced by Draft.Finalize or Decode
// and is never mutated afterwards; accessors return copies.
type Result struct {
	body
	meta      Meta
	trace     Trace
	createdAt int64
	updatedAt int64
}

// Finalize fills trace, meta and timestamps and returns the immutable result.
// It may be called once per draft.
func (d *Draft) Finalize(trace Trace, meta Meta, now time.Time) (*Result, error) {
	if d.finalized {
		return nil, ErrAlreadyFinalized
	}
	if err := d.checkBindings(); err != nil {
		return nil, err
	}
	d.finalized = true

	if meta.SchemaVersion == "" {
		meta.SchemaVersion = SchemaVersion
	}
	if meta.RulesetVersion == "" {
		meta.RulesetVersion = RulesetVersion
	}
	if meta.GeneratedAt == 0 {
		meta.GeneratedAt = now.Unix()
	}
	ts := now.Unix()
	return &Result{
		body:      d.body.clone(),
		meta:      meta,
		trace:     trace.clone(),
		createdAt: ts,
		updatedAt: ts,
	}, nil
}

func (r *Result) Meta() Meta       { return r.meta }
func (r *Result) Trace() Trace     { return r.trace.clone() }
func (r *Result) CreatedAt() int64 { return r.createdAt }
func (r *Result) UpdatedAt() int64 { return r.updatedAt }

type resultJSON struct {
	Biz             string           `json:"biz"`
	TaskKind        string           `json:"task_kind"`
	Input           map[string]any   `json:"input"`
	Crawl           map[string]any   `json:"crawl"`
	Overview        map[string]any   `json:"overview"`
	Insights        map[string]any   `json:"insights"`
	Rankings        []map[string]any `json:"rankings"`
	Comparisons     []map[string]any `json:"comparisons"`
	Recommendations []Recommendation `json:"recommendations"`
	Evidences       []Evidence       `json:"evidences"`
	Warnings        []string         `json:"warnings"`
	Article         Article          `json:"article"`
	Meta            Meta             `json:"meta"`
	Trace           Trace            `json:"trace"`
	ResultCreatedAt int64            `json:"result_created_at"`
	ResultUpdatedAt int64            `json:"result_updated_at"`
}

// MarshalJSON writes the report document. Empty sections are written as {}
// or [] rather than null.
func (r *Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		Biz:             r.biz,
		TaskKind:        r.taskKind,
		Input:           nonNilMap(r.input),
		Crawl:           nonNilMap(r.crawl),
		Overview:        nonNilMap(r.overview),
		Insights:        nonNilMap(r.insights),
		Rankings:        nonNilRows(r.rankings),
		Comparisons:     nonNilRows(r.comparisons),
		Recommendations: make([]Recommendation, 0, len(r.recommendations)),
		Evidences:       append([]Evidence{}, r.evidences...),
		Warnings:        append([]string{}, r.warnings...),
		Article:         r.article,
		Meta:            r.meta,
		Trace:           r.trace.clone(),
		ResultCreatedAt: r.createdAt,
		ResultUpdatedAt: r.updatedAt,
	}
	for _, rec := range r.recommendations {
		out.Recommendations = append(out.Recommendations, rec.clone())
	}
	return json.Marshal(out)
}

// Decode parses a persisted report, re-running local and cross-structure
// validation.
func Decode(data []byte) (*Result, error) {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	bl := NewBuilder(in.Biz, in.TaskKind).
		Input(in.Input).
		Crawl(in.Crawl).
		Overview(in.Overview).
		Insights(in.Insights).
		Article(in.Article)
	for _, row := range in.Rankings {
		bl.AddRanking(row)
	}
	for _, row := range in.Comparisons {
		bl.AddComparison(row)
	}
	for _, ev := range in.Evidences {
		bl.AddEvidence(ev)
	}
	for _, rec := range in.Recommendations {
		bl.AddRecommendation(rec)
	}
	for _, w := range in.Warnings {
		bl.Warn(w)
	}
	draft, err := bl.Build()
	if err != nil {
		return nil, err
	}
	if in.Meta.SchemaVersion == "" {
		return nil, &ValidationError{Field: "meta.schema_version", Message: "meta.schema_version is required"}
	}
	return &Result{
		body:      draft.body,
		meta:      in.Meta,
		trace:     in.Trace,
		createdAt: in.ResultCreatedAt,
		updatedAt: in.ResultUpdatedAt,
	}, nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nonNilRows(rows []map[string]any) []map[string]any {
	if rows == nil {
		return []map[string]any{}
	}
	return rows
}
