package evaluate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsinsight/reportcore/pkg/result"
)

func TestEvaluateUnboundP0(t *testing.T) {
	draft, err := result.NewBuilder("amazon", "AOA-01").
		Insights(map[string]any{"top": 1}).
		AddRecommendation(result.Recommendation{Title: "do it", Category: "keyword", Priority: "P0"}).
		AddRecommendation(result.Recommendation{Title: "maybe", Category: "keyword", Priority: "high"}).
		AddRecommendation(result.Recommendation{Title: "later", Category: "keyword", Priority: "P2"}).
		Build()
	require.NoError(t, err)

	var warnings []string
	assert.NotPanics(t, func() { warnings = Evaluate(draft) })
	assert.Equal(t, []string{
		"recommendations[0] priority=P0 missing evidence_indexes",
		"recommendations[1] priority=high missing evidence_indexes",
	}, warnings)
}

func TestEvaluatePriorityIsCaseInsensitive(t *testing.T) {
	draft, err := result.NewBuilder("amazon", "AOA-01").
		Insights(map[string]any{"x": 1}).
		AddRecommendation(result.Recommendation{Title: "t", Category: "c", Priority: "p0"}).
		Build()
	require.NoError(t, err)
	assert.Len(t, Evaluate(draft), 1)
}

func TestEvaluateEmptyInsights(t *testing.T) {
	draft, err := result.NewBuilder("amazon", "AOA-02").Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"insights is empty"}, Evaluate(draft))
}

func TestEvaluateShortArticle(t *testing.T) {
	draft, err := result.NewBuilder("amazon", "AOA-02").
		Insights(map[string]any{"x": 1}).
		Article(result.Article{Markdown: "  short  "}).
		Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"article.markdown is too short (<120 chars)"}, Evaluate(draft))
}

func TestEvaluateCleanDraft(t *testing.T) {
	draft, err := result.NewBuilder("amazon", "AOA-02").
		Insights(map[string]any{"x": 1}).
		Article(result.Article{Markdown: strings.Repeat("a", MinArticleChars)}).
		Build()
	require.NoError(t, err)
	assert.Empty(t, Evaluate(draft))
}

func TestEvaluateDoesNotMutate(t *testing.T) {
	draft, err := result.NewBuilder("amazon", "AOA-02").Build()
	require.NoError(t, err)
	Evaluate(draft)
	assert.Empty(t, draft.Warnings())
}
