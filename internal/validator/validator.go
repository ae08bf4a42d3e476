// Package validator performs structural and semantic validation of
// candidate rules and infers each rule's category. Hard errors block
// persistence; warnings are informational only.
package validator

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/Border-Link/immigration-ai-sub000/internal/model"
)

// maxCodeLength bounds requirement and visa codes.
const maxCodeLength = 100

// minDescriptionLength is the shortest acceptable description.
const minDescriptionLength = 10

// maxExpressionDepth is the nesting depth beyond which a warning is raised.
const maxExpressionDepth = 10

var upperSnakeRe = regexp.MustCompile(`^[A-Z0-9]+(?:_[A-Z0-9]+)*$`)

// Result is the outcome of validating one candidate rule. A rule fails only
// on Errors; Warnings never block persistence.
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
	Category model.RuleCategory
}

// ValidateRule checks a candidate in order, short-circuiting on the first
// hard failure. Warnings accumulated before the failure are preserved.
func ValidateRule(c model.CandidateRule) Result {
	res := Result{Category: InferCategory(c.RequirementCode, c.Description)}

	fail := func(msg string) Result {
		res.Errors = append(res.Errors, msg)
		return res
	}

	// Requirement code.
	code := strings.TrimSpace(c.RequirementCode)
	if code == "" {
		return fail("requirement_code is required")
	}
	if len(code) > maxCodeLength {
		return fail("requirement_code exceeds 100 characters")
	}
	if !upperSnakeRe.MatchString(code) {
		res.Warnings = append(res.Warnings, "requirement_code does not follow UPPER_SNAKE_CASE convention")
	}

	// Description.
	desc := strings.TrimSpace(c.Description)
	if desc == "" {
		return fail("description is required")
	}
	if len(desc) < minDescriptionLength {
		return fail("description must be at least 10 characters")
	}

	// Condition expression: present, a structured mapping, serializable.
	if len(c.Conditions) == 0 {
		return fail("conditions expression is required")
	}
	if _, err := json.Marshal(c.Conditions); err != nil {
		return fail("conditions expression is not serializable")
	}

	// Visa code.
	if len(c.VisaCode) > maxCodeLength {
		return fail("visa_code exceeds 100 characters")
	}
	if c.VisaCode == "UNKNOWN" || c.VisaCode == "" {
		res.Warnings = append(res.Warnings, "visa_code is unknown")
	}

	// Source excerpt: soft only, its absence reduces traceability.
	if strings.TrimSpace(c.SourceExcerpt) == "" {
		res.Warnings = append(res.Warnings, "source_excerpt missing; rule cannot be traced to source text")
	}

	res.Valid = true
	return res
}

// allowedOperators is the json-logic operator set the evaluation engine
// supports.
var allowedOperators = map[string]bool{
	"==": true, "===": true, "!=": true, "!==": true,
	">": true, ">=": true, "<": true, "<=": true,
	"and": true, "or": true, "!": true, "!!": true,
	"in": true, "var": true, "if": true,
	"missing": true, "missing_some": true,
	"+": true, "-": true, "*": true, "/": true, "%": true,
	"min": true, "max": true, "cat": true, "substr": true,
}

var varNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.\[\]]*$`)

// ValidateExpression checks a condition expression for json-logic
// well-formedness: operators from the allowed set, valid variable names,
// and a soft nesting-depth cap.
func ValidateExpression(expr map[string]any) (errs, warnings []string) {
	if len(expr) == 0 {
		return []string{"expression is empty"}, nil
	}

	depth := walkExpr(expr, 1, &errs)
	if depth > maxExpressionDepth {
		warnings = append(warnings, "expression nesting depth exceeds 10")
	}
	return errs, warnings
}

// walkExpr recursively validates operator keys and var references,
// returning the maximum depth observed.
func walkExpr(node any, depth int, errs *[]string) int {
	maxDepth := depth

	switch v := node.(type) {
	case map[string]any:
		for op, arg := range v {
			if !allowedOperators[op] {
				*errs = append(*errs, "unknown operator: "+op)
				continue
			}
			if op == "var" {
				checkVarName(arg, errs)
				continue
			}
			if d := walkExpr(arg, depth+1, errs); d > maxDepth {
				maxDepth = d
			}
		}
	case []any:
		for _, item := range v {
			if d := walkExpr(item, depth, errs); d > maxDepth {
				maxDepth = d
			}
		}
	}
	return maxDepth
}

func checkVarName(arg any, errs *[]string) {
	switch v := arg.(type) {
	case string:
		if !varNameRe.MatchString(v) {
			*errs = append(*errs, "malformed variable name: "+v)
		}
	case []any:
		// var with default: ["name", default].
		if len(v) == 0 {
			*errs = append(*errs, "var requires a name")
			return
		}
		if name, ok := v[0].(string); !ok || !varNameRe.MatchString(name) {
			*errs = append(*errs, "malformed variable name in var list")
		}
	case float64, int:
		// Positional var references are allowed by json-logic.
	default:
		*errs = append(*errs, "var argument must be a string or list")
	}
}

// codeCategories maps requirement-code fragments to rule categories.
// Checked before description keywords.
var codeCategories = []struct {
	fragment string
	category model.RuleCategory
}{
	{"FEE", model.CategoryFee},
	{"COST", model.CategoryFee},
	{"PAYMENT", model.CategoryFee},
	{"SURCHARGE", model.CategoryFee},
	{"DOC", model.CategoryDocument},
	{"PASSPORT", model.CategoryDocument},
	{"CERTIFICATE", model.CategoryDocument},
	{"EVIDENCE", model.CategoryDocument},
	{"PROCESSING", model.CategoryProcessingTime},
	{"TIMELINE", model.CategoryProcessingTime},
	{"DECISION_TIME", model.CategoryProcessingTime},
	{"SALARY", model.CategoryEligibility},
	{"AGE", model.CategoryEligibility},
	{"ENGLISH", model.CategoryEligibility},
	{"QUALIFICATION", model.CategoryEligibility},
	{"SPONSOR", model.CategoryEligibility},
	{"MAINTENANCE", model.CategoryEligibility},
	{"RESIDENCE", model.CategoryEligibility},
}

// descKeywords maps description keywords to rule categories, used when the
// code lookup is inconclusive.
var descKeywords = []struct {
	keyword  string
	category model.RuleCategory
}{
	{"fee", model.CategoryFee},
	{"pay a charge", model.CategoryFee},
	{"surcharge", model.CategoryFee},
	{"document", model.CategoryDocument},
	{"passport", model.CategoryDocument},
	{"certificate", model.CategoryDocument},
	{"provide evidence", model.CategoryDocument},
	{"processing time", model.CategoryProcessingTime},
	{"working days", model.CategoryProcessingTime},
	{"weeks to process", model.CategoryProcessingTime},
	{"must be", model.CategoryEligibility},
	{"eligible", model.CategoryEligibility},
	{"at least", model.CategoryEligibility},
	{"salary", model.CategoryEligibility},
}

// InferCategory derives a rule category from the requirement code first,
// then description keywords, defaulting to "other".
func InferCategory(code, description string) model.RuleCategory {
	upper := strings.ToUpper(code)
	for _, cc := range codeCategories {
		if strings.Contains(upper, cc.fragment) {
			return cc.category
		}
	}

	lower := strings.ToLower(description)
	for _, dk := range descKeywords {
		if strings.Contains(lower, dk.keyword) {
			return dk.category
		}
	}

	return model.CategoryOther
}
