package filter

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"
)

// Matches evaluates a filter against a chunk's metadata. A nil filter
// matches everything. The fileID is only used to contextualize evaluation
// errors; those errors mean the filter itself is malformed and the caller
// must abort the search rather than return unfiltered results.
func Matches(f Filter, metadata map[string]interface{}, fileID string) (bool, error) {
	if f == nil {
		return true, nil
	}
	switch node := f.(type) {
	case Comparison:
		return matchComparison(node, metadata)
	case Compound:
		return matchCompound(node, metadata, fileID)
	default:
		return false, fmt.Errorf("unknown filter node %T (file %s)", f, fileID)
	}
}

func matchCompound(node Compound, metadata map[string]interface{}, fileID string) (bool, error) {
	switch node.Op {
	case OpAnd:
		if len(node.Filters) == 0 {
			return false, fmt.Errorf("and filter has no children (file %s)", fileID)
		}
		for _, child := range node.Filters {
			if child == nil {
				return false, fmt.Errorf("and filter has a nil child (file %s)", fileID)
			}
			ok, err := Matches(child, metadata, fileID)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case OpOr:
		if len(node.Filters) == 0 {
			return false, fmt.Errorf("or filter has no children (file %s)", fileID)
		}
		for _, child := range node.Filters {
			if child == nil {
				return false, fmt.Errorf("or filter has a nil child (file %s)", fileID)
			}
			ok, err := Matches(child, metadata, fileID)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case OpNot:
		if len(node.Filters) != 1 || node.Filters[0] == nil {
			return false, fmt.Errorf("not filter requires exactly one child (file %s)", fileID)
		}
		ok, err := Matches(node.Filters[0], metadata, fileID)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return false, fmt.Errorf("unknown compound op %q (file %s)", node.Op, fileID)
	}
}

func matchComparison(node Comparison, metadata map[string]interface{}) (bool, error) {
	candidate, found := lookupPath(metadata, node.Key)
	if !found {
		// Missing keys never match, for any operator.
		return false, nil
	}
	switch node.Op {
	case OpEq:
		return equalValues(candidate, node.Value), nil
	case OpNe:
		return !equalValues(candidate, node.Value), nil
	case OpGt, OpGte, OpLt, OpLte:
		cmp, ok := compareValues(candidate, node.Value)
		if !ok {
			// Not comparable: fail closed.
			return false, nil
		}
		switch node.Op {
		case OpGt:
			return cmp > 0, nil
		case OpGte:
			return cmp >= 0, nil
		case OpLt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case OpIn:
		list, ok := node.Value.([]interface{})
		if !ok {
			return false, fmt.Errorf("in filter on %q requires a list value, got %T", node.Key, node.Value)
		}
		for _, e := range list {
			if equalValues(candidate, e) {
				return true, nil
			}
		}
		return false, nil
	case OpLike, OpILike:
		pattern, ok := node.Value.(string)
		if !ok {
			return false, fmt.Errorf("%s filter on %q requires a string pattern, got %T", node.Op, node.Key, node.Value)
		}
		s, ok := candidate.(string)
		if !ok {
			return false, nil
		}
		re, err := compileWildcard(pattern, node.Op == OpILike)
		if err != nil {
			return false, fmt.Errorf("%s filter on %q: %w", node.Op, node.Key, err)
		}
		return re.MatchString(s), nil
	default:
		return false, fmt.Errorf("unknown comparison op %q on key %q", node.Op, node.Key)
	}
}

// lookupPath resolves a dotted key path through nested maps.
func lookupPath(metadata map[string]interface{}, key string) (interface{}, bool) {
	if metadata == nil {
		return nil, false
	}
	parts := strings.Split(key, ".")
	var current interface{} = metadata
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// equalValues is deep equality with numeric widening: ints and floats of
// any width compare equal when their values do.
func equalValues(a, b interface{}) bool {
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two values when both sides admit an ordering:
// numerics as float64, strings lexically (RFC 3339 timestamps by instant).
func compareValues(a, b interface{}) (int, bool) {
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		if ta, err := time.Parse(time.RFC3339, sa); err == nil {
			if tb, err := time.Parse(time.RFC3339, sb); err == nil {
				return ta.Compare(tb), true
			}
		}
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// compileWildcard translates a SQL-ish pattern (% any run, _ one rune) into
// an anchored regexp.
func compileWildcard(pattern string, foldCase bool) (*regexp.Regexp, error) {
	var sb strings.Builder
	if foldCase {
		sb.WriteString("(?is)")
	} else {
		sb.WriteString("(?s)")
	}
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}
