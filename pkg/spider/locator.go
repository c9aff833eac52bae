package spider

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidLocator is returned when a locator lacks its batch number or site.
var ErrInvalidLocator = errors.New("invalid locator")

// Locator identifies one crawl batch on one site.
type Locator struct {
	BatchNo int64
	Site    string
	Extra   map[string]any
}

// ParseLocator reads crawl_batch_no and site from a task's result locator.
// Any other keys are kept in Extra.
func ParseLocator(m map[string]any) (Locator, error) {
	var loc Locator
	if len(m) == 0 {
		return loc, fmt.Errorf("%w: locator is empty", ErrInvalidLocator)
	}

	batch, ok := toInt64(m["crawl_batch_no"])
	if !ok {
		return loc, fmt.Errorf("%w: crawl_batch_no missing or not an integer", ErrInvalidLocator)
	}
	site, _ := m["site"].(string)
	site = strings.TrimSpace(site)
	if site == "" {
		return loc, fmt.Errorf("%w: site missing", ErrInvalidLocator)
	}

	loc.BatchNo = batch
	loc.Site = site
	for k, v := range m {
		if k == "crawl_batch_no" || k == "site" {
			continue
		}
		if loc.Extra == nil {
			loc.Extra = map[string]any{}
		}
		loc.Extra[k] = v
	}
	return loc, nil
}

// Map renders the locator for evidence refs and result echo.
func (l Locator) Map() map[string]any {
	out := make(map[string]any, len(l.Extra)+2)
	for k, v := range l.Extra {
		out[k] = v
	}
	out["crawl_batch_no"] = l.BatchNo
	out["site"] = l.Site
	return out
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}

// TaskKey derives the idempotency key of a collection request. Map keys are
// serialised in sorted order so equal payloads give equal keys.
func TaskKey(taskKind string, payload map[string]any) (string, error) {
	raw, err := json.Marshal(map[string]any{"task_kind": taskKind, "payload": payload})
	if err != nil {
		return "", fmt.Errorf("encode task key: %w", err)
	}
	sum := sha1.Sum(raw)
	return "amazon:" + taskKind + ":" + hex.EncodeToString(sum[:]), nil
}
