package analyzer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalidRequest wraps every request validation failure.
var ErrInvalidRequest = errors.New("invalid request")

// Sites lists the marketplaces a request may target.
var Sites = []string{"ca", "de", "es", "fr", "it", "jp", "uk", "us"}

const (
	DefaultSite         = "us"
	DefaultLookbackDays = 90
	DefaultTopN         = 50
	MaxTopN             = 200
)

// TimeWindow is the analysis reference date and lookback.
type TimeWindow struct {
	AsOf         int64 `json:"as_of"`
	LookbackDays int   `json:"lookback_days"`
}

// Filters narrows the rows an analysis considers.
type Filters struct {
	TopN     int      `json:"top_n"`
	PriceMin *float64 `json:"price_min"`
	PriceMax *float64 `json:"price_max"`
}

// Query names what to collect and analyze.
type Query struct {
	Keyword         string   `json:"keyword"`
	Category        string   `json:"category"`
	ASIN            string   `json:"asin"`
	CompetitorASINs []string `json:"competitor_asins"`
}

// Request is a validated analysis request. Kind-specific fields are set only
// for the kind that reads them.
type Request struct {
	TaskKind   TaskKind   `json:"task_kind"`
	RequestID  string     `json:"request_id,omitempty"`
	Site       string     `json:"site"`
	TimeWindow TimeWindow `json:"time_window"`
	Filters    Filters    `json:"filters"`
	UseRAG     bool       `json:"use_rag"`
	KBSpace    string     `json:"kb_space,omitempty"`
	ExtraNotes string     `json:"extra_notes,omitempty"`
	Query      Query      `json:"query"`

	AutoPickCompetitors *bool                   `json:"auto_pick_competitors,omitempty"`
	BrandTone           string                  `json:"brand_tone,omitempty"`
	Constraints         *ImprovementConstraints `json:"constraints,omitempty"`
}

type requestWire struct {
	TaskKind   string  `json:"task_kind"`
	RequestID  *string `json:"request_id"`
	Site       *string `json:"site"`
	TimeWindow *struct {
		AsOf         *int64 `json:"as_of"`
		LookbackDays *int   `json:"lookback_days"`
	} `json:"time_window"`
	Filters *struct {
		TopN     *int     `json:"top_n"`
		PriceMin *float64 `json:"price_min"`
		PriceMax *float64 `json:"price_max"`
	} `json:"filters"`
	UseRAG     bool    `json:"use_rag"`
	KBSpace    *string `json:"kb_space"`
	ExtraNotes *string `json:"extra_notes"`
	Query      *Query  `json:"query"`

	AutoPickCompetitors *bool           `json:"auto_pick_competitors"`
	BrandTone           *string         `json:"brand_tone"`
	Constraints         json.RawMessage `json:"constraints"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// ParseRequest decodes and validates a request body for kind. Unknown fields
// are ignored. Every failure wraps ErrInvalidRequest.
func ParseRequest(kind TaskKind, raw []byte) (*Request, error) {
	if !kind.Valid() {
		return nil, invalid("unknown task kind %q", kind)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, invalid("request body is empty")
	}
	var w requestWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if w.TaskKind != "" && !strings.EqualFold(w.TaskKind, string(kind)) {
		return nil, invalid("task_kind %q does not match %s", w.TaskKind, kind)
	}

	req := &Request{
		TaskKind:   kind,
		RequestID:  strings.TrimSpace(deref(w.RequestID)),
		Site:       strings.ToLower(strings.TrimSpace(deref(w.Site))),
		UseRAG:     w.UseRAG,
		KBSpace:    strings.TrimSpace(deref(w.KBSpace)),
		ExtraNotes: strings.TrimSpace(deref(w.ExtraNotes)),
	}
	if req.Site == "" {
		req.Site = DefaultSite
	}
	if !slices.Contains(Sites, req.Site) {
		return nil, invalid("site must be one of %v", Sites)
	}

	if w.TimeWindow == nil || w.TimeWindow.AsOf == nil {
		return nil, invalid("time_window.as_of is required")
	}
	req.TimeWindow = TimeWindow{AsOf: *w.TimeWindow.AsOf, LookbackDays: DefaultLookbackDays}
	if w.TimeWindow.LookbackDays != nil {
		req.TimeWindow.LookbackDays = *w.TimeWindow.LookbackDays
	}
	if req.TimeWindow.LookbackDays < 1 || req.TimeWindow.LookbackDays > 365 {
		return nil, invalid("lookback_days must be in [1, 365]")
	}
	if req.TimeWindow.AsOf < 10000101 || req.TimeWindow.AsOf > 99991231 {
		return nil, invalid("as_of must be a YYYYMMDD integer")
	}

	req.Filters = Filters{TopN: DefaultTopN}
	if f := w.Filters; f != nil {
		if f.TopN != nil {
			req.Filters.TopN = *f.TopN
		}
		req.Filters.PriceMin = f.PriceMin
		req.Filters.PriceMax = f.PriceMax
	}
	if err := req.Filters.validate(); err != nil {
		return nil, err
	}

	if req.UseRAG && req.KBSpace == "" {
		return nil, invalid("kb_space is required when use_rag=true")
	}
	if !req.UseRAG && w.KBSpace != nil {
		return nil, invalid("kb_space must be absent when use_rag=false")
	}

	if w.Query == nil {
		return nil, invalid("query is required")
	}
	req.Query = w.Query.normalized()

	if err := req.applyKind(&w); err != nil {
		return nil, err
	}
	return req, nil
}

func (f Filters) validate() error {
	switch {
	case f.TopN < 1 || f.TopN > MaxTopN:
		return invalid("top_n must be in [1, %d]", MaxTopN)
	case f.PriceMin != nil && *f.PriceMin < 0:
		return invalid("price_min must be >= 0")
	case f.PriceMax != nil && *f.PriceMax < 0:
		return invalid("price_max must be >= 0")
	case f.PriceMin != nil && f.PriceMax != nil && *f.PriceMax < *f.PriceMin:
		return invalid("price_max must be >= price_min")
	}
	return nil
}

func (q Query) normalized() Query {
	out := Query{
		Keyword:         strings.TrimSpace(q.Keyword),
		Category:        strings.TrimSpace(q.Category),
		ASIN:            strings.TrimSpace(q.ASIN),
		CompetitorASINs: []string{},
	}
	for _, a := range q.CompetitorASINs {
		if a = strings.TrimSpace(a); a != "" {
			out.CompetitorASINs = append(out.CompetitorASINs, a)
		}
	}
	return out
}

func (r *Request) applyKind(w *requestWire) error {
	q := r.Query
	hasTopic := q.Keyword != "" || q.Category != ""
	switch r.TaskKind {
	case KindOpportunity:
		if !hasTopic {
			return invalid("keyword or category is required")
		}
		if q.ASIN != "" {
			return invalid("asin must be absent for opportunity scan")
		}
	case KindMarket:
		if !hasTopic {
			return invalid("keyword or category is required")
		}
	case KindCompetitor:
		if q.ASIN == "" {
			return invalid("asin is required")
		}
		auto := true
		if w.AutoPickCompetitors != nil {
			auto = *w.AutoPickCompetitors
		}
		if !auto && len(q.CompetitorASINs) == 0 {
			return invalid("competitor_asins is required when auto_pick_competitors=false")
		}
		r.AutoPickCompetitors = &auto
	case KindListing:
		if q.ASIN == "" {
			return invalid("asin is required")
		}
		r.BrandTone = strings.TrimSpace(deref(w.BrandTone))
	case KindVOC:
		if q.ASIN == "" && !hasTopic {
			return invalid("asin or (keyword/category) is required")
		}
	case KindImprovement:
		if q.ASIN == "" {
			return invalid("asin is required")
		}
		c := DefaultImprovementConstraints()
		if len(w.Constraints) > 0 && string(bytes.TrimSpace(w.Constraints)) != "null" {
			if err := json.Unmarshal(w.Constraints, &c); err != nil {
				if errors.Is(err, ErrInvalidRequest) {
					return err
				}
				return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
			}
		}
		r.Constraints = &c
	}
	return nil
}

// AutoPick reports whether competitors are picked from the batch.
func (r *Request) AutoPick() bool {
	return r.AutoPickCompetitors == nil || *r.AutoPickCompetitors
}

// Improvement returns the improvement constraints, or the defaults.
func (r *Request) Improvement() ImprovementConstraints {
	if r.Constraints == nil {
		return DefaultImprovementConstraints()
	}
	return *r.Constraints
}

// Map renders the request as a generic JSON object for the result input
// section and job payloads.
func (r *Request) Map() map[string]any {
	raw, err := json.Marshal(r)
	if err != nil {
		return map[string]any{"task_kind": string(r.TaskKind)}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{"task_kind": string(r.TaskKind)}
	}
	return m
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
