// Package filter provides the structured attribute-filter model shared by
// vector and lexical search: an AST of comparisons and boolean compounds,
// an evaluator against metadata maps, and JSON (de)serialization in the
// {"type": ..., "key": ..., "value": ...} shape the search endpoints accept.
//
// Filter application is fail-closed throughout: a comparison that cannot be
// decided does not match, and malformed filters abort the search instead of
// being dropped, because a dropped filter would leak results across tenants.
package filter

import (
	"encoding/json"
	"fmt"
)

type Op string

const (
	OpEq    Op = "eq"
	OpNe    Op = "ne"
	OpGt    Op = "gt"
	OpGte   Op = "gte"
	OpLt    Op = "lt"
	OpLte   Op = "lte"
	OpIn    Op = "in"
	OpLike  Op = "like"
	OpILike Op = "ilike"

	OpAnd Op = "and"
	OpOr  Op = "or"
	OpNot Op = "not"
)

// Filter is a sealed filter node: either a Comparison or a Compound.
type Filter interface {
	filterNode()
}

// Comparison matches a dotted metadata path against a literal value.
type Comparison struct {
	Key   string      `json:"key"`
	Op    Op          `json:"type"`
	Value interface{} `json:"value"`
}

// Compound combines child filters with and/or/not. A not node carries
// exactly one child.
type Compound struct {
	Op      Op       `json:"type"`
	Filters []Filter `json:"filters"`
}

func (Comparison) filterNode() {}
func (Compound) filterNode()   {}

// Eq is shorthand for an equality comparison.
func Eq(key string, value interface{}) Comparison {
	return Comparison{Key: key, Op: OpEq, Value: value}
}

// And conjoins the given filters, flattening nils. Returns nil when nothing
// remains and the single child when only one does.
func And(filters ...Filter) Filter {
	kept := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			kept = append(kept, f)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return Compound{Op: OpAnd, Filters: kept}
	}
}

// Or disjoins the given filters, flattening nils.
func Or(filters ...Filter) Filter {
	kept := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			kept = append(kept, f)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return Compound{Op: OpOr, Filters: kept}
	}
}

// FromAttributes builds a conjunction of equality comparisons from a flat
// attribute map, the shape the agentic controller accepts from the model.
func FromAttributes(attrs map[string]interface{}) Filter {
	if len(attrs) == 0 {
		return nil
	}
	filters := make([]Filter, 0, len(attrs))
	for k, v := range attrs {
		filters = append(filters, Eq(k, v))
	}
	return And(filters...)
}

// ParseJSON decodes a filter document.
func ParseJSON(data []byte) (Filter, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding filter: %w", err)
	}
	return Parse(raw)
}

// Parse builds a filter from an already-decoded JSON tree. nil input yields
// a nil filter.
func Parse(v interface{}) (Filter, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("filter must be an object, got %T", v)
	}
	if len(m) == 0 {
		return nil, nil
	}
	rawType, ok := m["type"].(string)
	if !ok {
		return nil, fmt.Errorf("filter missing \"type\"")
	}
	op := normalizeOp(rawType)
	switch op {
	case OpAnd, OpOr, OpNot:
		rawChildren, ok := m["filters"].([]interface{})
		if !ok {
			return nil, fmt.Errorf("%s filter missing \"filters\" array", op)
		}
		children := make([]Filter, 0, len(rawChildren))
		for _, rc := range rawChildren {
			child, err := Parse(rc)
			if err != nil {
				return nil, err
			}
			if child == nil {
				return nil, fmt.Errorf("%s filter has an empty child", op)
			}
			children = append(children, child)
		}
		if op == OpNot && len(children) != 1 {
			return nil, fmt.Errorf("not filter requires exactly one child, got %d", len(children))
		}
		if len(children) == 0 {
			return nil, fmt.Errorf("%s filter requires at least one child", op)
		}
		return Compound{Op: op, Filters: children}, nil
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpLike, OpILike:
		key, ok := m["key"].(string)
		if !ok || key == "" {
			return nil, fmt.Errorf("%s filter missing \"key\"", op)
		}
		return Comparison{Key: key, Op: op, Value: m["value"]}, nil
	default:
		return nil, fmt.Errorf("unknown filter type %q", rawType)
	}
}

// normalizeOp folds the ge/le spellings onto gte/lte.
func normalizeOp(s string) Op {
	switch s {
	case "ge":
		return OpGte
	case "le":
		return OpLte
	default:
		return Op(s)
	}
}

func (c Comparison) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"type":  string(c.Op),
		"key":   c.Key,
		"value": c.Value,
	})
}

func (c Compound) MarshalJSON() ([]byte, error) {
	children := make([]json.RawMessage, 0, len(c.Filters))
	for _, f := range c.Filters {
		b, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		children = append(children, b)
	}
	return json.Marshal(map[string]interface{}{
		"type":    string(c.Op),
		"filters": children,
	})
}
