package tools

import "github.com/Pelmog/zigi-amazon-mcp/internal/operations"

// Package-private parameter extraction helpers. The transport hands every
// tool a plain map[string]interface{} decoded from JSON, so numbers arrive
// as float64 and arrays as []interface{} regardless of the Go type the
// adapter method ultimately wants.

func strParam(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}

func boolParam(m map[string]interface{}, key string) bool {
	v, _ := m[key].(bool)
	return v
}

func intParam(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func strSliceParam(m map[string]interface{}, key string) []string {
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func strPtrParam(m map[string]interface{}, key string) *string {
	v, ok := m[key].(string)
	if !ok {
		return nil
	}
	return &v
}

func mapParam(m map[string]interface{}, key string) map[string]interface{} {
	v, _ := m[key].(map[string]interface{})
	return v
}

// filterParams extracts the filter-family parameter group shared by every
// list/projection tool (spec.md §6).
func filterParams(m map[string]interface{}) operations.FilterParams {
	return operations.FilterParams{
		FilterID:       strParam(m, "filterId"),
		FilterChain:    strParam(m, "filterChain"),
		CustomFilter:   strParam(m, "customFilter"),
		FilterParams:   mapParam(m, "filterParams"),
		ReduceResponse: boolParam(m, "reduceResponse"),
	}
}
