package lexical

import (
	"errors"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/openresponses/openresponses/pkg/filter"
)

// errNotNative marks a filter node bleve cannot express exactly. The caller
// falls back to oversampling plus the shared evaluator, never to dropping
// the filter.
var errNotNative = errors.New("filter not natively expressible")

// compileQuery translates a filter AST to a native bleve query. A nil
// filter compiles to nil. Nodes bleve cannot express exactly (ne, not,
// ilike, non-scalar comparisons) return errNotNative.
func compileQuery(f filter.Filter) (query.Query, error) {
	if f == nil {
		return nil, nil
	}
	switch node := f.(type) {
	case filter.Comparison:
		return compileComparison(node)
	case filter.Compound:
		switch node.Op {
		case filter.OpAnd:
			conj := bleve.NewConjunctionQuery()
			for _, child := range node.Filters {
				q, err := compileQuery(child)
				if err != nil {
					return nil, err
				}
				conj.AddQuery(q)
			}
			return conj, nil
		case filter.OpOr:
			disj := bleve.NewDisjunctionQuery()
			for _, child := range node.Filters {
				q, err := compileQuery(child)
				if err != nil {
					return nil, err
				}
				disj.AddQuery(q)
			}
			return disj, nil
		default:
			// not would need a match-all base to subtract from, which does
			// not compose under nesting.
			return nil, errNotNative
		}
	default:
		return nil, fmt.Errorf("unknown filter node %T", f)
	}
}

func compileComparison(c filter.Comparison) (query.Query, error) {
	switch c.Op {
	case filter.OpEq:
		return compileEq(c.Key, c.Value)
	case filter.OpGt, filter.OpGte, filter.OpLt, filter.OpLte:
		num, ok := asFloat(c.Value)
		if !ok {
			// Ordering over strings and timestamps stays with the evaluator.
			return nil, errNotNative
		}
		var min, max *float64
		var incMin, incMax bool
		switch c.Op {
		case filter.OpGt:
			min = &num
		case filter.OpGte:
			min, incMin = &num, true
		case filter.OpLt:
			max = &num
		case filter.OpLte:
			max, incMax = &num, true
		}
		q := bleve.NewNumericRangeInclusiveQuery(min, max, &incMin, &incMax)
		q.SetField(c.Key)
		return q, nil
	case filter.OpIn:
		list, ok := c.Value.([]interface{})
		if !ok || len(list) == 0 {
			return nil, errNotNative
		}
		disj := bleve.NewDisjunctionQuery()
		for _, item := range list {
			q, err := compileEq(c.Key, item)
			if err != nil {
				return nil, err
			}
			disj.AddQuery(q)
		}
		return disj, nil
	case filter.OpLike:
		pattern, ok := c.Value.(string)
		if !ok {
			return nil, errNotNative
		}
		q := bleve.NewWildcardQuery(translateWildcard(pattern))
		q.SetField(c.Key)
		return q, nil
	default:
		return nil, errNotNative
	}
}

func compileEq(key string, value interface{}) (query.Query, error) {
	switch v := value.(type) {
	case string:
		q := bleve.NewTermQuery(v)
		q.SetField(key)
		return q, nil
	case bool:
		q := bleve.NewBoolFieldQuery(v)
		q.SetField(key)
		return q, nil
	default:
		if num, ok := asFloat(value); ok {
			inclusive := true
			q := bleve.NewNumericRangeInclusiveQuery(&num, &num, &inclusive, &inclusive)
			q.SetField(key)
			return q, nil
		}
		return nil, errNotNative
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// translateWildcard maps SQL LIKE wildcards to bleve's (* and ?), escaping
// any literal occurrences of bleve's own wildcards.
func translateWildcard(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteByte('*')
		case '_':
			b.WriteByte('?')
		case '*', '?':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
