package analyzer

import (
	"fmt"
	"maps"
	"math"
	"strconv"

	"github.com/opsinsight/reportcore/pkg/result"
	"github.com/opsinsight/reportcore/pkg/retrieval"
	"github.com/opsinsight/reportcore/pkg/source"
)

const (
	ragExcerptChars    = 240
	reviewExcerptChars = 220
)

// report wraps a result.Builder with evidence helpers bound to one locator.
type report struct {
	*result.Builder
	locator map[string]any
	err     error
}

func newReport(in Input) *report {
	b := result.NewBuilder(Biz, string(in.Request.TaskKind)).
		Input(in.Request.Map()).
		Crawl(in.Locator.Map())
	return &report{Builder: b, locator: in.Locator.Map()}
}

func (r *report) add(ev result.Evidence, err error) int {
	if err != nil && r.err == nil {
		r.err = err
	}
	return r.AddEvidence(ev)
}

func (r *report) mysql(table string, id int64, fields []string, excerpt string) int {
	return r.add(result.NewMysqlEvidence(result.MysqlRef{
		Table:   table,
		PK:      map[string]any{"id": id},
		Fields:  fields,
		Locator: maps.Clone(r.locator),
	}, excerpt, ""))
}

func (r *report) snapshot(s *source.Snapshot, fields []string, excerpt string) int {
	return r.mysql(source.SnapshotTable, s.ID, fields, excerpt)
}

func (r *report) keyword(k *source.KeywordMetric) int {
	return r.mysql(source.KeywordMetricTable, k.ID,
		[]string{"keyword", "search_volume", "cpc", "competition"},
		fmt.Sprintf("%s sv=%s cpc=%s comp=%s", k.Keyword, num(k.SearchVolume), num(k.CPC), num(k.Competition)))
}

func (r *report) review(rv *source.Review) int {
	excerpt := clip(rv.Content, reviewExcerptChars)
	if excerpt == "" {
		excerpt = clip(rv.Title, reviewExcerptChars)
	}
	return r.mysql(source.ReviewTable, rv.ID,
		[]string{"asin", "rating", "title", "content", "verified", "helpful_count", "review_time"},
		excerpt)
}

func (r *report) rag(h retrieval.Hit) int {
	return r.add(result.NewRagEvidence(result.RagRef{
		KBSpace:    h.KBSpace,
		DocumentID: h.DocumentID,
		ChunkID:    h.ChunkID,
		Score:      h.Score,
	}, clip(h.Content, ragExcerptChars), ""))
}

// ragHits adds up to n retrieval hits as evidence.
func (r *report) ragHits(hits []retrieval.Hit, n int) {
	for i, h := range hits {
		if i == n {
			break
		}
		r.rag(h)
	}
}

func (r *report) build() (*result.Draft, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.Build()
}

// clip returns at most n runes of s.
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func optFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return num(*v)
}

func optInt(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}

// nullable renders an optional number as a JSON-friendly value.
func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func valueOr[T any](v *T, def T) T {
	if v == nil {
		return def
	}
	return *v
}

// round rounds half away from zero to the given decimals.
func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
