package policy

import "strings"

// lookup resolves a dotted path like "signals.financial_risk" against a
// nested JSON value. It fails closed: any missing key or non-object hop
// returns (nil, false) instead of an error.
func lookup(doc map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
