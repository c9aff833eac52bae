package result

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBuilder(t *testing.T) *Builder {
	t.Helper()
	ev, err := NewMysqlEvidence(testMysqlRef(), "B000TEST title_len=120", "")
	require.NoError(t, err)

	bl := NewBuilder("amazon", "AOA-04").
		Input(map[string]any{"site": "us"}).
		Crawl(map[string]any{"crawl_batch_no": 1, "site": "us"}).
		Overview(map[string]any{"asin": "B000TEST"}).
		Insights(map[string]any{"rules": []any{map[string]any{"rule": "title_length", "level": "ok"}}}).
		Article(Article{Title: "t", Summary: "s", Markdown: strings.Repeat("# hi\n\ncontent...\n", 10)})
	idx := bl.AddEvidence(ev)
	bl.AddRecommendation(Recommendation{
		Title:           "improve title keyword coverage",
		Category:        "listing",
		Priority:        PriorityP0,
		Actions:         []string{"add core keywords"},
		EvidenceIndexes: []int{idx},
	})
	return bl
}

func TestBuildValidDraft(t *testing.T) {
	draft, err := validBuilder(t).Build()
	require.NoError(t, err)
	assert.Equal(t, "amazon", draft.Biz())
	assert.Equal(t, []int{0}, draft.Recommendations()[0].EvidenceIndexes)
}

func TestBuildRejectsIndexWithoutEvidences(t *testing.T) {
	_, err := NewBuilder("amazon", "AOA-01").
		AddRecommendation(Recommendation{Title: "bad", Category: "x", Priority: "P0", EvidenceIndexes: []int{0}}).
		Build()
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "recommendations.evidence_indexes out of range", verr.Message)
}

func TestBuildRejectsIndexOutOfRange(t *testing.T) {
	bl := validBuilder(t)
	bl.AddRecommendation(Recommendation{Title: "bad", Category: "x", Priority: "P1", EvidenceIndexes: []int{1}})
	_, err := bl.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestBuildRejectsNegativeIndex(t *testing.T) {
	bl := validBuilder(t)
	bl.AddRecommendation(Recommendation{Title: "bad", Category: "x", Priority: "P1", EvidenceIndexes: []int{-1}})
	_, err := bl.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evidence_indexes must be >= 0")
}

func TestBuildRejectsZeroEvidence(t *testing.T) {
	bl := NewBuilder("amazon", "AOA-02")
	bl.AddEvidence(Evidence{})
	_, err := bl.Build()
	require.Error(t, err)
}

func TestBuildRequiresBizAndKind(t *testing.T) {
	_, err := NewBuilder("", "AOA-01").Build()
	require.Error(t, err)
	_, err = NewBuilder("amazon", " ").Build()
	require.Error(t, err)
}

func TestLowPriorityUnboundRecommendationAllowed(t *testing.T) {
	bl := validBuilder(t)
	bl.AddRecommendation(Recommendation{Title: "later", Category: "x", Priority: PriorityP2})
	_, err := bl.Build()
	require.NoError(t, err)
}

func TestDraftIsDetachedFromBuilder(t *testing.T) {
	bl := validBuilder(t)
	draft, err := bl.Build()
	require.NoError(t, err)

	bl.Warn("late warning")
	assert.Empty(t, draft.Warnings())

	recs := draft.Recommendations()
	recs[0].EvidenceIndexes[0] = 42
	assert.Equal(t, []int{0}, draft.Recommendations()[0].EvidenceIndexes)
}

func TestFinalizeOnce(t *testing.T) {
	draft, err := validBuilder(t).Build()
	require.NoError(t, err)
	draft.AddWarnings("insights is empty")

	now := time.Unix(1700000000, 0)
	trace := Trace{JobID: 7, Biz: "amazon", Steps: []StepTrace{{Step: "locator"}}}
	res, err := draft.Finalize(trace, Meta{OperatorUserID: 3}, now)
	require.NoError(t, err)

	assert.Equal(t, SchemaVersion, res.Meta().SchemaVersion)
	assert.Equal(t, RulesetVersion, res.Meta().RulesetVersion)
	assert.Equal(t, now.Unix(), res.Meta().GeneratedAt)
	assert.Equal(t, int64(3), res.Meta().OperatorUserID)
	assert.Equal(t, now.Unix(), res.CreatedAt())
	assert.Equal(t, now.Unix(), res.UpdatedAt())
	assert.Equal(t, []string{"insights is empty"}, res.Warnings())

	_, err = draft.Finalize(trace, Meta{}, now)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)

	// Changes to the draft after finalize do not reach the result.
	draft.AddWarnings("after")
	assert.Len(t, res.Warnings(), 1)
}

func TestResultJSONRoundTrip(t *testing.T) {
	draft, err := validBuilder(t).Build()
	require.NoError(t, err)
	res, err := draft.Finalize(Trace{JobID: 1}, Meta{}, time.Unix(1700000000, 0))
	require.NoError(t, err)

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, []any{}, raw["rankings"])
	assert.Equal(t, []any{}, raw["warnings"])
	assert.Equal(t, map[string]any{}, raw["trace"].(map[string]any)["model"])

	decoded, err := Decode(data)
	require.NoError(t, err)
	again, err := json.Marshal(decoded)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestDecodeRejectsBrokenBinding(t *testing.T) {
	doc := `{"biz":"amazon","task_kind":"AOA-01","evidences":[],
		"recommendations":[{"title":"bad","category":"x","priority":"P0","actions":[],"evidence_indexes":[0]}]}`
	_, err := Decode([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestDecodeRequiresSchemaVersion(t *testing.T) {
	doc := `{"biz":"amazon","task_kind":"AOA-01","evidences":[],"recommendations":[],"meta":{"ruleset_version":"r1"}}`
	_, err := Decode([]byte(doc))
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "meta.schema_version", verr.Field)

	res, err := Decode([]byte(`{"biz":"amazon","task_kind":"AOA-01","meta":{"schema_version":"1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "1", res.Meta().SchemaVersion)
}

func TestResultIsDetachedFromCallersAndReaders(t *testing.T) {
	ref := testMysqlRef()
	ev, err := NewMysqlEvidence(ref, "B000TEST", "")
	require.NoError(t, err)
	// The caller keeps using its ref after building evidence.
	ref.PK["id"] = 99
	ref.Locator["site"] = "de"
	ref.Fields[0] = "brand"

	insights := map[string]any{
		"top":   []string{"a", "b"},
		"rules": []any{map[string]any{"level": "ok"}},
		"score": map[string]float64{"title": 0.5},
	}
	bl := NewBuilder("amazon", "AOA-04").
		Insights(insights).
		AddRanking(map[string]any{"asin": "B001", "tags": []string{"x"}})
	bl.AddEvidence(ev)
	draft, err := bl.Build()
	require.NoError(t, err)
	res, err := draft.Finalize(Trace{JobID: 1, CrawlLocator: map[string]any{"crawl_batch_no": 1}}, Meta{}, time.Unix(1700000000, 0))
	require.NoError(t, err)

	insights["top"].([]string)[0] = "changed"

	got, ok := res.Evidences()[0].Mysql()
	require.True(t, ok)
	got.PK["id"] = 7
	got.Locator["crawl_batch_no"] = 2
	got.Fields[1] = "price"
	res.Evidences()[0].Ref().(MysqlRef).Locator["site"] = "fr"

	res.Insights()["top"].([]string)[1] = "changed"
	res.Insights()["rules"].([]any)[0].(map[string]any)["level"] = "bad"
	res.Insights()["score"].(map[string]float64)["title"] = 1
	res.Rankings()[0]["tags"].([]string)[0] = "y"
	res.Trace().CrawlLocator["crawl_batch_no"] = 5

	again, ok := res.Evidences()[0].Mysql()
	require.True(t, ok)
	assert.Equal(t, testMysqlRef(), again)
	assert.Equal(t, []string{"a", "b"}, res.Insights()["top"])
	assert.Equal(t, "ok", res.Insights()["rules"].([]any)[0].(map[string]any)["level"])
	assert.Equal(t, 0.5, res.Insights()["score"].(map[string]float64)["title"])
	assert.Equal(t, []string{"x"}, res.Rankings()[0]["tags"])
	assert.Equal(t, 1, res.Trace().CrawlLocator["crawl_batch_no"])
}

func TestStepTimer(t *testing.T) {
	start := time.Unix(100, 0)
	calls := 0
	clock := func() time.Time {
		calls++
		if calls == 1 {
			return start
		}
		return start.Add(1500 * time.Millisecond)
	}
	st := StartStep("load_data", clock).Finish("snapshots=1")
	assert.Equal(t, "load_data", st.Step)
	assert.Equal(t, int64(100), st.StartedAt)
	assert.Equal(t, int64(101), st.FinishedAt)
	assert.Equal(t, int64(1500), st.DurationMS)
	assert.Equal(t, "snapshots=1", st.Note)
}
