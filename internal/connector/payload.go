package connector

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var trailingSeparator = regexp.MustCompile(`,(\s*[}\]])`)

// LenientParse parses a textual payload as JSON, auto-correcting trailing
// separators (`{"a": 1,}` style). Payloads that remain unparsable after
// correction fail with a ConfigParseError citing the offending line and a
// bounded excerpt.
func LenientParse(text string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v, nil
	}

	corrected := trailingSeparator.ReplaceAllString(text, "$1")
	corrected = strings.TrimRight(strings.TrimSpace(corrected), ",;")

	var out any
	err := json.Unmarshal([]byte(corrected), &out)
	if err == nil {
		return out, nil
	}

	line, excerpt := locate(corrected, err)
	return nil, &ConfigParseError{Line: line, Excerpt: excerpt, Err: err}
}

// locate maps a json error offset back to a line number and a bounded
// excerpt of that line.
func locate(text string, err error) (int, string) {
	offset := int64(len(text))
	if syn, ok := err.(*json.SyntaxError); ok {
		offset = syn.Offset
	} else if ute, ok := err.(*json.UnmarshalTypeError); ok {
		offset = ute.Offset
	}
	if offset > int64(len(text)) {
		offset = int64(len(text))
	}

	line := 1 + strings.Count(text[:offset], "\n")
	lines := strings.Split(text, "\n")
	excerpt := ""
	if line-1 < len(lines) {
		excerpt = strings.TrimSpace(lines[line-1])
	}
	const maxExcerpt = 80
	if len(excerpt) > maxExcerpt {
		excerpt = excerpt[:maxExcerpt]
	}
	return line, excerpt
}

// coercePayload normalizes a remediation payload into a structured value.
// Structured objects pass through; scalars are wrapped as-is; text is parsed
// leniently when it looks structured.
func coercePayload(payload any) (any, error) {
	switch p := payload.(type) {
	case nil:
		return nil, &QueryError{Detail: "empty payload"}
	case map[string]any, []any:
		return p, nil
	case string:
		trimmed := strings.TrimSpace(p)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			return LenientParse(trimmed)
		}
		if strings.HasPrefix(trimmed, "<") {
			// Raw XML passes through for subtree devices.
			return trimmed, nil
		}
		return trimmed, nil
	case bool, int, int64, float64:
		return p, nil
	default:
		return nil, &QueryError{Detail: fmt.Sprintf("unsupported payload type %T", payload)}
	}
}

// jsonBody renders a coerced payload as a JSON request body.
func jsonBody(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, &QueryError{Detail: fmt.Sprintf("encode payload: %v", err)}
	}
	return b, nil
}

// xmlBody renders a coerced payload as an XML config fragment for
// edit-config. Raw XML strings pass through; trees render with sorted keys
// so repeated applications produce identical documents.
func xmlBody(v any) (string, error) {
	switch p := v.(type) {
	case string:
		if strings.HasPrefix(strings.TrimSpace(p), "<") {
			return p, nil
		}
		return xmlEscape(p), nil
	case map[string]any:
		var sb strings.Builder
		writeXML(&sb, p)
		return sb.String(), nil
	case bool, int, int64, float64:
		return fmt.Sprint(p), nil
	default:
		return "", &QueryError{Detail: fmt.Sprintf("cannot render %T as config XML", v)}
	}
}

func writeXML(sb *strings.Builder, tree map[string]any) {
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch child := tree[k].(type) {
		case map[string]any:
			fmt.Fprintf(sb, "<%s>", k)
			writeXML(sb, child)
			fmt.Fprintf(sb, "</%s>", k)
		case []any:
			for _, elem := range child {
				fmt.Fprintf(sb, "<%s>", k)
				if m, ok := elem.(map[string]any); ok {
					writeXML(sb, m)
				} else {
					sb.WriteString(xmlEscape(fmt.Sprint(elem)))
				}
				fmt.Fprintf(sb, "</%s>", k)
			}
		case nil:
			fmt.Fprintf(sb, "<%s/>", k)
		default:
			fmt.Fprintf(sb, "<%s>%s</%s>", k, xmlEscape(fmt.Sprint(child)), k)
		}
	}
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
