package audit

import (
	"fmt"
	"strconv"
	"strings"
)

// structuralEqual compares two decoded configuration values: scalar equality
// for leaves, set equality for unordered collections, recursive equality for
// nested structures. Numeric leaves compare by value to absorb JSON type
// drift (65000 vs 65000.0 vs "65000").
func structuralEqual(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bchild, ok := bv[k]
			if !ok || !structuralEqual(v, bchild) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		// Device collections are unordered: match each element to a distinct
		// counterpart.
		used := make([]bool, len(bv))
	outer:
		for _, elem := range av {
			for i, cand := range bv {
				if !used[i] && structuralEqual(elem, cand) {
					used[i] = true
					continue outer
				}
			}
			return false
		}
		return true
	default:
		return leafEqual(a, b)
	}
}

func leafEqual(a, b any) bool {
	if af, aok := leafFloat(a); aok {
		if bf, bok := leafFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func leafFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
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

// normalizeDoc collapses inter-tag whitespace so subtree documents compare by
// content rather than formatting.
func normalizeDoc(doc string) string {
	lines := strings.Split(doc, "\n")
	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(strings.TrimSpace(line))
	}
	return strings.ReplaceAll(sb.String(), "> <", "><")
}
