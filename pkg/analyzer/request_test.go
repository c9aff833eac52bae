package analyzer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTaskKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseTaskKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)

		got, err = ParseTaskKind(k.Slug())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	got, err := ParseTaskKind("aoa-05")
	require.NoError(t, err)
	assert.Equal(t, KindVOC, got)

	_, err = ParseTaskKind("AOA-99")
	assert.Error(t, err)
}

func TestParseRequestDefaults(t *testing.T) {
	req, err := ParseRequest(KindMarket, []byte(`{
		"time_window": {"as_of": 20251224},
		"query": {"keyword": " desk lamp "},
		"unknown_field": true
	}`))
	require.NoError(t, err)
	assert.Equal(t, "us", req.Site)
	assert.Equal(t, 90, req.TimeWindow.LookbackDays)
	assert.Equal(t, 50, req.Filters.TopN)
	assert.Equal(t, "desk lamp", req.Query.Keyword)
	assert.Equal(t, []string{}, req.Query.CompetitorASINs)
	assert.Nil(t, req.AutoPickCompetitors)
	assert.Nil(t, req.Constraints)

	m := req.Map()
	assert.Equal(t, "AOA-02", m["task_kind"])
	assert.NotContains(t, m, "constraints")
	assert.Contains(t, m, "query")
}

func TestParseRequestRejects(t *testing.T) {
	cases := []struct {
		name string
		kind TaskKind
		body string
	}{
		{"empty body", KindMarket, ``},
		{"missing as_of", KindMarket, `{"query":{"keyword":"x"}}`},
		{"bad site", KindMarket, `{"site":"br","time_window":{"as_of":20250101},"query":{"keyword":"x"}}`},
		{"lookback too long", KindMarket, `{"time_window":{"as_of":20250101,"lookback_days":400},"query":{"keyword":"x"}}`},
		{"as_of not a date", KindMarket, `{"time_window":{"as_of":2025},"query":{"keyword":"x"}}`},
		{"top_n too large", KindMarket, `{"time_window":{"as_of":20250101},"filters":{"top_n":201},"query":{"keyword":"x"}}`},
		{"price order", KindMarket, `{"time_window":{"as_of":20250101},"filters":{"price_min":20,"price_max":10},"query":{"keyword":"x"}}`},
		{"rag without space", KindMarket, `{"time_window":{"as_of":20250101},"use_rag":true,"query":{"keyword":"x"}}`},
		{"space without rag", KindMarket, `{"time_window":{"as_of":20250101},"kb_space":"ops","query":{"keyword":"x"}}`},
		{"missing query", KindMarket, `{"time_window":{"as_of":20250101}}`},
		{"kind mismatch", KindMarket, `{"task_kind":"AOA-01","time_window":{"as_of":20250101},"query":{"keyword":"x"}}`},
		{"opportunity with asin", KindOpportunity, `{"time_window":{"as_of":20250101},"query":{"keyword":"x","asin":"B0"}}`},
		{"market without topic", KindMarket, `{"time_window":{"as_of":20250101},"query":{"asin":"B0"}}`},
		{"competitor without asin", KindCompetitor, `{"time_window":{"as_of":20250101},"query":{"keyword":"x"}}`},
		{"explicit competitors missing", KindCompetitor, `{"time_window":{"as_of":20250101},"auto_pick_competitors":false,"query":{"asin":"B0"}}`},
		{"listing without asin", KindListing, `{"time_window":{"as_of":20250101},"query":{"keyword":"x"}}`},
		{"voc without anything", KindVOC, `{"time_window":{"as_of":20250101},"query":{}}`},
		{"improvement bad constraint", KindImprovement, `{"time_window":{"as_of":20250101},"query":{"asin":"B0"},"constraints":{"allow_material_change":"maybe"}}`},
		{"fractional top_n", KindMarket, `{"time_window":{"as_of":20250101},"filters":{"top_n":1.5},"query":{"keyword":"x"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRequest(tc.kind, []byte(tc.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRequest), "got %v", err)
		})
	}
}

func TestParseRequestKindSpecificFields(t *testing.T) {
	req, err := ParseRequest(KindCompetitor, []byte(`{"time_window":{"as_of":20250101},"query":{"asin":"B0"}}`))
	require.NoError(t, err)
	require.NotNil(t, req.AutoPickCompetitors)
	assert.True(t, req.AutoPick())

	req, err = ParseRequest(KindListing, []byte(`{"time_window":{"as_of":20250101},"brand_tone":" playful ","query":{"asin":"B0"}}`))
	require.NoError(t, err)
	assert.Equal(t, "playful", req.BrandTone)

	req, err = ParseRequest(KindImprovement, []byte(`{"time_window":{"as_of":20250101},"query":{"asin":"B0"},"constraints":{"cost_sensitivity":"HIGH"}}`))
	require.NoError(t, err)
	require.NotNil(t, req.Constraints)
	assert.Equal(t, CostHigh, req.Improvement().CostSensitivity)
	assert.True(t, req.Improvement().AllowPackagingChange)

	req, err = ParseRequest(KindVOC, []byte(`{"time_window":{"as_of":20250101},"use_rag":true,"kb_space":"ops","query":{"category":"Kitchen"}}`))
	require.NoError(t, err)
	assert.True(t, req.UseRAG)
	assert.Equal(t, "ops", req.KBSpace)
}

func TestRequestMapRoundTripsThroughParse(t *testing.T) {
	body := []byte(`{"time_window":{"as_of":20250101},"query":{"asin":"B0"},"constraints":{"forbidden_materials":"pvc, lead","allow_structural_change":"no"}}`)
	req, err := ParseRequest(KindImprovement, body)
	require.NoError(t, err)

	again, err := ParseRequest(KindImprovement, mustJSON(t, req.Map()))
	require.NoError(t, err)
	assert.Equal(t, req, again)
}
