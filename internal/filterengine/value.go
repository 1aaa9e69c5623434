package filterengine

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

// Value is any JSON-shaped Go value: nil, bool, float64, string,
// []interface{}, or map[string]interface{}.
type Value = interface{}

func truthy(v Value) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	default:
		return true
	}
}

// typeClass orders by spec.md §4.7: "booleans < numbers < strings < others".
func typeClass(v Value) int {
	switch v.(type) {
	case bool:
		return 0
	case float64:
		return 1
	case string:
		return 2
	default:
		return 3
	}
}

// lessThan implements the ordering spec.md §4.7 requires: strings compare
// lexicographically and case-sensitively; type mismatch in order
// comparisons yields false.
func lessThan(a, b Value) bool {
	ca, cb := typeClass(a), typeClass(b)
	if ca != cb {
		return false
	}
	switch ca {
	case 0:
		return !a.(bool) && b.(bool)
	case 1:
		return a.(float64) < b.(float64)
	case 2:
		return a.(string) < b.(string)
	default:
		return false
	}
}

// sortLess orders values for sort() per spec.md §4.7: "booleans <
// numbers < strings < others", falling back to lessThan's within-class
// comparison when both values share a type class. Unlike lessThan (used by
// the comparison operators, where a type mismatch must yield false), sort
// needs a total order across classes so mixed-class arrays land in class
// order rather than staying in input order.
func sortLess(a, b Value) bool {
	ca, cb := typeClass(a), typeClass(b)
	if ca != cb {
		return ca < cb
	}
	return lessThan(a, b)
}

// deepEqual implements the spec's "equality is deep structural" rule for
// numbers/strings/bools/null/arrays/objects.
func deepEqual(a, b Value) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}

func toNumber(v Value) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to number", t)
		}
		return f, nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to number", v)
	}
}

func toStringValue(v Value) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func asArray(v Value) ([]interface{}, bool) {
	a, ok := v.([]interface{})
	return a, ok
}

func asObject(v Value) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

// getPath navigates a dotted path (already split) against v, returning
// (nil, false) on any missing segment — get() is lenient, matching the
// spec's accessor semantics rather than erroring on a missing key.
func getPath(v Value, path []string) (Value, bool) {
	cur := v
	for _, seg := range path {
		m, ok := asObject(cur)
		if !ok {
			return nil, false
		}
		next, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// sortValues sorts a copy of items by an optional dotted path, in the given
// direction ("asc"/"desc", default "asc").
func sortValues(items []interface{}, path string, dir string) []interface{} {
	out := make([]interface{}, len(items))
	copy(out, items)

	keyOf := func(v Value) Value {
		if path == "" {
			return v
		}
		k, ok := getPath(v, splitPath(path))
		if !ok {
			return nil
		}
		return k
	}

	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := keyOf(out[i]), keyOf(out[j])
		if dir == "desc" {
			return sortLess(kj, ki)
		}
		return sortLess(ki, kj)
	})
	return out
}

func splitPath(path string) []string {
	var parts []string
	cur := ""
	for _, r := range path {
		if r == '.' {
			parts = append(parts, cur)
			cur = ""
			continue
		}
		cur += string(r)
	}
	parts = append(parts, cur)
	return parts
}
