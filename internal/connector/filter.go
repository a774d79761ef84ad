package connector

import (
	"fmt"
	"strconv"
)

// applyFilter projects the portion of tree matching a structured filter.
//
// Filter semantics: a nil or empty filter node selects everything beneath it;
// a nested map constrains children recursively; a scalar leaf must equal the
// device value. The empty string is an explicit sentinel that matches only
// the empty string, which is distinct from "no constraint" (nil/empty map).
//
// The second return is false when the filter matched nothing.
func applyFilter(node any, filter map[string]any) (any, bool) {
	if len(filter) == 0 {
		return node, true
	}

	switch n := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(filter))
		for key, constraint := range filter {
			child, ok := n[key]
			if !ok {
				return nil, false
			}
			projected, ok := matchConstraint(child, constraint)
			if !ok {
				return nil, false
			}
			out[key] = projected
		}
		return out, true
	case []any:
		// A filter against a list selects the matching instances.
		var out []any
		for _, elem := range n {
			if projected, ok := applyFilter(elem, filter); ok {
				out = append(out, projected)
			}
		}
		if len(out) == 0 {
			return nil, false
		}
		return out, true
	default:
		return nil, false
	}
}

func matchConstraint(child any, constraint any) (any, bool) {
	switch c := constraint.(type) {
	case nil:
		return child, true
	case map[string]any:
		if len(c) == 0 {
			return child, true
		}
		return applyFilter(child, c)
	default:
		if scalarEqual(child, c) {
			return child, true
		}
		return nil, false
	}
}

// scalarEqual compares leaf values, tolerating the numeric type drift JSON
// decoding introduces (65000 vs 65000.0 vs "65000").
func scalarEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
