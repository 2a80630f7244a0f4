// Package policy evaluates versioned rule definitions against a decision
// context. Definitions are JSON documents of the shape
//
//	{rules: [{priority, when: {all?, any?}, then: {action, reason_code, severity}}]}
//
// evaluated in ascending priority; the first matching rule wins.
package policy

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"

	"github.com/tracehub-ai/tracehub/internal/model"
)

// Result is the outcome of evaluating a definition against a context.
type Result struct {
	Matched    bool
	Action     model.Action
	ReasonCode string
	Severity   string
}

// Defaults applied when a matched rule omits a field, and the no-match
// fallback.
const (
	defaultSeverity   = "medium"
	defaultReasonCode = "POLICY_MATCH"
)

type rule struct {
	priority int
	all      []condition
	any      []condition
	then     map[string]any
}

type condition struct {
	field string
	op    string
	value any
}

// Evaluate runs the definition's rules against ctx in ascending priority.
// A rule matches iff every condition in when.all holds and at least one in
// when.any holds (a missing or empty any list is vacuously satisfied).
// If no rule matches, the default-allow result is returned.
func Evaluate(definition model.JSONMap, ctx map[string]any) Result {
	for _, r := range parseRules(definition) {
		if !matchAll(r.all, ctx) {
			continue
		}
		if !matchAny(r.any, ctx) {
			continue
		}
		return Result{
			Matched:    true,
			Action:     model.Action(strField(r.then, "action", string(model.ActionAllowAnswer))),
			ReasonCode: strField(r.then, "reason_code", defaultReasonCode),
			Severity:   strField(r.then, "severity", defaultSeverity),
		}
	}
	return Result{
		Matched:    false,
		Action:     model.ActionAllowAnswer,
		ReasonCode: "DEFAULT_ALLOW",
		Severity:   "low",
	}
}

func parseRules(definition model.JSONMap) []rule {
	raw, _ := definition["rules"].([]any)
	rules := make([]rule, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		r := rule{priority: intField(m, "priority")}
		if when, ok := m["when"].(map[string]any); ok {
			r.all = parseConditions(when["all"])
			r.any = parseConditions(when["any"])
		}
		r.then, _ = m["then"].(map[string]any)
		rules = append(rules, r)
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].priority < rules[j].priority })
	return rules
}

func parseConditions(v any) []condition {
	raw, _ := v.([]any)
	conds := make([]condition, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		conds = append(conds, condition{
			field: strField(m, "field", ""),
			op:    strField(m, "op", ""),
			value: m["value"],
		})
	}
	return conds
}

func matchAll(conds []condition, ctx map[string]any) bool {
	for _, c := range conds {
		if !evalCondition(c, ctx) {
			return false
		}
	}
	return true
}

func matchAny(conds []condition, ctx map[string]any) bool {
	if len(conds) == 0 {
		return true
	}
	for _, c := range conds {
		if evalCondition(c, ctx) {
			return true
		}
	}
	return false
}

// evalCondition applies one operator. Unknown operators and missing
// actuals on ordered comparisons evaluate to false, never to an error.
func evalCondition(c condition, ctx map[string]any) bool {
	actual, present := lookup(ctx, c.field)

	switch c.op {
	case "eq":
		return present && looseEqual(actual, c.value)
	case "ne":
		return !present || !looseEqual(actual, c.value)
	case "lt", "lte", "gt", "gte":
		if !present {
			return false
		}
		a, okA := toFloat(actual)
		b, okB := toFloat(c.value)
		if !okA || !okB {
			return false
		}
		switch c.op {
		case "lt":
			return a < b
		case "lte":
			return a <= b
		case "gt":
			return a > b
		default:
			return a >= b
		}
	case "contains":
		s, ok := actual.(string)
		if !ok {
			return false
		}
		needle, ok := c.value.(string)
		if !ok {
			return false
		}
		return strings.Contains(strings.ToLower(s), strings.ToLower(needle))
	case "in":
		seq, ok := c.value.([]any)
		if !ok || !present {
			return false
		}
		for _, v := range seq {
			if looseEqual(actual, v) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// looseEqual compares across JSON number representations so 1 == 1.0.
// Non-numeric operands compare structurally: definitions are user-authored,
// so map- and slice-valued conditions must never panic.
func looseEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
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
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func strField(m map[string]any, key, def string) string {
	if m == nil {
		return def
	}
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return def
}

func intField(m map[string]any, key string) int {
	if f, ok := toFloat(m[key]); ok {
		return int(f)
	}
	return 0
}
