package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/netwarden/netwarden/internal/connector"
	"github.com/netwarden/netwarden/internal/models"
)

// ReasonUnsupportedQuery marks a rule-authoring defect: the check's query
// style cannot run against the device's connector variant. Surfaced as an
// error result, never silently skipped.
const ReasonUnsupportedQuery = "UnsupportedQueryForVendor"

// Evaluator runs one check against one device session and produces a
// CheckResult.
type Evaluator struct{}

// Evaluate retrieves the configuration a check targets and compares it to
// the expected value. The returned error is non-nil only for retryable
// transport failures; every other condition is encoded in the result.
// Distinction maintained throughout: "device lacks this configuration" is a
// fail, "query could not be executed" is an error.
func (Evaluator) Evaluate(ctx context.Context, conn connector.Connector, dev models.Device, chk models.Check) (models.CheckResult, error) {
	res := models.CheckResult{
		DeviceID: dev.ID,
		RuleID:   chk.RuleID,
		CheckID:  chk.ID,
	}

	capability, ok := dev.Vendor.Capability()
	if !ok {
		res.Status = models.ResultError
		res.Detail = fmt.Sprintf("unknown vendor %q", dev.Vendor)
		return res, nil
	}
	if string(capability) != chk.Query {
		res.Status = models.ResultError
		res.Detail = fmt.Sprintf("%s: %s check %q against %s device", ReasonUnsupportedQuery, chk.Query, chk.Name, dev.Vendor)
		return res, nil
	}

	q, err := buildQuery(chk)
	if err != nil {
		res.Status = models.ResultError
		res.Detail = err.Error()
		return res, nil
	}

	value, err := conn.GetConfig(ctx, q)
	if err != nil {
		if errors.Is(err, connector.ErrNotFound) {
			// Absent path is a compliance failure, not an evaluation error.
			res.Status = models.ResultFail
			res.Detail = fmt.Sprintf("path %q not present on device", chk.Path)
			return res, nil
		}
		if connector.IsRetryable(err) {
			return res, err
		}
		res.Status = models.ResultError
		res.Detail = err.Error()
		return res, nil
	}

	rendered := value.Render()
	res.Actual = &rendered

	pass, cmpErr := compare(chk, value)
	if cmpErr != nil {
		res.Status = models.ResultError
		res.Detail = cmpErr.Error()
		return res, nil
	}
	if pass {
		res.Status = models.ResultPass
	} else {
		res.Status = models.ResultFail
		res.Detail = fmt.Sprintf("check %q did not match", chk.Name)
	}
	return res, nil
}

func buildQuery(chk models.Check) (connector.Query, error) {
	switch chk.Query {
	case models.QueryStructured:
		if chk.Path == "" {
			return connector.Query{}, fmt.Errorf("check %q has no path", chk.Name)
		}
		var filter map[string]any
		if strings.TrimSpace(chk.Filter) != "" {
			if err := json.Unmarshal([]byte(chk.Filter), &filter); err != nil {
				return connector.Query{}, fmt.Errorf("check %q filter is not a valid tree: %w", chk.Name, err)
			}
		}
		return connector.Query{Kind: models.QueryStructured, Path: chk.Path, Filter: filter}, nil
	case models.QuerySubtree:
		return connector.Query{Kind: models.QuerySubtree, Subtree: chk.Subtree}, nil
	default:
		return connector.Query{}, fmt.Errorf("check %q has unknown query style %q", chk.Name, chk.Query)
	}
}

func compare(chk models.Check, value *connector.Value) (bool, error) {
	switch chk.Match {
	case models.MatchExists:
		return !value.Empty(), nil

	case models.MatchEquals:
		if value.Tree != nil {
			expected, err := parseExpected(chk.Expected)
			if err != nil {
				return false, fmt.Errorf("check %q expected value unparsable: %w", chk.Name, err)
			}
			if structuralEqual(value.Tree, expected) {
				return true, nil
			}
			// A scalar expectation may target the sole leaf of the subtree.
			if len(value.Tree) == 1 {
				for _, leaf := range value.Tree {
					if structuralEqual(leaf, expected) {
						return true, nil
					}
				}
			}
			return false, nil
		}
		// Subtree documents compare by content: the expected fragment must
		// appear in the retrieved document.
		return strings.Contains(normalizeDoc(value.Raw), normalizeDoc(chk.Expected)), nil

	case models.MatchPattern:
		re, err := regexp.Compile(chk.Expected)
		if err != nil {
			return false, fmt.Errorf("check %q pattern invalid: %w", chk.Name, err)
		}
		return re.MatchString(value.Render()), nil

	default:
		return false, fmt.Errorf("check %q has unknown match type %q", chk.Name, chk.Match)
	}
}

// parseExpected decodes the declared expected value, falling back to a plain
// string scalar when it is not JSON.
func parseExpected(raw string) (any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return v, nil
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		// Looks structured but is not valid JSON: rule-authoring defect.
		return connector.LenientParse(trimmed)
	}
	return trimmed, nil
}
