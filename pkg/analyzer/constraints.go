package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CostSensitivity is how strongly improvement proposals should favour cheap
// changes.
type CostSensitivity string

const (
	CostLow    CostSensitivity = "low"
	CostMedium CostSensitivity = "medium"
	CostHigh   CostSensitivity = "high"
)

// ImprovementConstraints limits which proposals the improvement strategy may
// make.
//
// Values are coerced when decoded:
//   - booleans accept true/false, the strings "true"/"1"/"yes"/"y" and
//     "false"/"0"/"no"/"n" (case-insensitive), and the numbers 0 and 1;
//   - lists accept a JSON array of strings or one comma-separated string;
//   - cost_sensitivity accepts low, medium or high (case-insensitive).
//
// Any other value shape for a known key is an error. Unknown keys are ignored.
type ImprovementConstraints struct {
	AllowStructuralChange  bool            `json:"allow_structural_change"`
	AllowMaterialChange    bool            `json:"allow_material_change"`
	AllowPackagingChange   bool            `json:"allow_packaging_change"`
	MustHaveCertifications []string        `json:"must_have_certifications"`
	ForbiddenMaterials     []string        `json:"forbidden_materials"`
	CostSensitivity        CostSensitivity `json:"cost_sensitivity,omitempty"`
}

// DefaultImprovementConstraints allows every kind of change.
func DefaultImprovementConstraints() ImprovementConstraints {
	return ImprovementConstraints{
		AllowStructuralChange:  true,
		AllowMaterialChange:    true,
		AllowPackagingChange:   true,
		MustHaveCertifications: []string{},
		ForbiddenMaterials:     []string{},
	}
}

// ParseImprovementConstraints coerces a loosely typed map.
func ParseImprovementConstraints(m map[string]any) (ImprovementConstraints, error) {
	c := DefaultImprovementConstraints()
	var err error

	bools := []struct {
		key string
		dst *bool
	}{
		{"allow_structural_change", &c.AllowStructuralChange},
		{"allow_material_change", &c.AllowMaterialChange},
		{"allow_packaging_change", &c.AllowPackagingChange},
	}
	for _, b := range bools {
		if *b.dst, err = coerceBool(m, b.key, *b.dst); err != nil {
			return c, err
		}
	}
	if c.MustHaveCertifications, err = coerceList(m, "must_have_certifications"); err != nil {
		return c, err
	}
	if c.ForbiddenMaterials, err = coerceList(m, "forbidden_materials"); err != nil {
		return c, err
	}

	switch v := m["cost_sensitivity"].(type) {
	case nil:
	case string:
		s := CostSensitivity(strings.ToLower(strings.TrimSpace(v)))
		switch s {
		case "", CostLow, CostMedium, CostHigh:
			c.CostSensitivity = s
		default:
			return c, constraintError("cost_sensitivity", "must be low, medium or high", v)
		}
	default:
		return c, constraintError("cost_sensitivity", "must be a string", v)
	}
	return c, nil
}

// UnmarshalJSON decodes with coercion.
func (c *ImprovementConstraints) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("constraints: %w", err)
	}
	parsed, err := ParseImprovementConstraints(m)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Map renders the applied constraints for result sections.
func (c ImprovementConstraints) Map() map[string]any {
	var cost any
	if c.CostSensitivity != "" {
		cost = string(c.CostSensitivity)
	}
	return map[string]any{
		"allow_structural_change":  c.AllowStructuralChange,
		"allow_material_change":    c.AllowMaterialChange,
		"allow_packaging_change":   c.AllowPackagingChange,
		"must_have_certifications": append([]string{}, c.MustHaveCertifications...),
		"forbidden_materials":      append([]string{}, c.ForbiddenMaterials...),
		"cost_sensitivity":         cost,
	}
}

func coerceBool(m map[string]any, key string, def bool) (bool, error) {
	switch v := m[key].(type) {
	case nil:
		return def, nil
	case bool:
		return v, nil
	case float64:
		switch v {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
	case int:
		switch v {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "y":
			return true, nil
		case "false", "0", "no", "n":
			return false, nil
		}
	}
	return def, constraintError(key, "must be a boolean", m[key])
}

func coerceList(m map[string]any, key string) ([]string, error) {
	out := []string{}
	switch v := m[key].(type) {
	case nil:
		return out, nil
	case string:
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	case []string:
		for _, s := range v {
			if p := strings.TrimSpace(s); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, constraintError(key, "must contain only strings", v)
			}
			if p := strings.TrimSpace(s); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	}
	return nil, constraintError(key, "must be a list or a comma-separated string", m[key])
}

func constraintError(key, msg string, v any) error {
	return fmt.Errorf("%w: constraints.%s %s, got %T", ErrInvalidRequest, key, msg, v)
}
