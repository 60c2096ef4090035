package filter

import (
	"testing"
)

func mustMatch(t *testing.T, f Filter, md map[string]interface{}) bool {
	t.Helper()
	ok, err := Matches(f, md, "file-1")
	if err != nil {
		t.Fatalf("Matches returned error: %v", err)
	}
	return ok
}

func TestEqNumericWidening(t *testing.T) {
	md := map[string]interface{}{"count": 3}
	if !mustMatch(t, Eq("count", 3.0), md) {
		t.Errorf("int 3 should equal float 3.0")
	}
	if !mustMatch(t, Eq("count", int64(3)), md) {
		t.Errorf("int 3 should equal int64 3")
	}
	if mustMatch(t, Eq("count", 4), md) {
		t.Errorf("3 should not equal 4")
	}
}

func TestNeOnMissingKeyDoesNotMatch(t *testing.T) {
	md := map[string]interface{}{"author": "ada"}
	if mustMatch(t, Comparison{Key: "editor", Op: OpNe, Value: "bob"}, md) {
		t.Errorf("missing key must not match, even for ne")
	}
}

func TestDottedPathLookup(t *testing.T) {
	md := map[string]interface{}{
		"doc": map[string]interface{}{
			"meta": map[string]interface{}{"lang": "en"},
		},
	}
	if !mustMatch(t, Eq("doc.meta.lang", "en"), md) {
		t.Errorf("dotted path should resolve nested maps")
	}
	if mustMatch(t, Eq("doc.meta.missing", "en"), md) {
		t.Errorf("missing nested key must not match")
	}
	if mustMatch(t, Eq("doc.meta.lang.deeper", "en"), md) {
		t.Errorf("descending through a leaf must not match")
	}
}

func TestOrderingComparisons(t *testing.T) {
	md := map[string]interface{}{"pages": 120, "title": "beta"}

	if !mustMatch(t, Comparison{Key: "pages", Op: OpGt, Value: 100}, md) {
		t.Errorf("120 > 100 expected")
	}
	if !mustMatch(t, Comparison{Key: "pages", Op: OpLte, Value: 120.0}, md) {
		t.Errorf("120 <= 120.0 expected")
	}
	if !mustMatch(t, Comparison{Key: "title", Op: OpGte, Value: "alpha"}, md) {
		t.Errorf("string ordering expected")
	}
}

func TestOrderingFailsClosedOnIncomparable(t *testing.T) {
	md := map[string]interface{}{"pages": 120}
	ok, err := Matches(Comparison{Key: "pages", Op: OpGt, Value: "not a number"}, md, "file-1")
	if err != nil {
		t.Fatalf("incomparable operands must fail closed, not error: %v", err)
	}
	if ok {
		t.Errorf("incomparable operands must not match")
	}
}

func TestTimestampOrdering(t *testing.T) {
	md := map[string]interface{}{"created_at": "2024-03-01T10:00:00Z"}
	f := Comparison{Key: "created_at", Op: OpLt, Value: "2024-03-01T11:00:00+01:00"}
	// 11:00+01:00 is 10:00Z, so the comparison is equal, not less.
	if mustMatch(t, f, md) {
		t.Errorf("instants should compare by absolute time")
	}
}

func TestInOperator(t *testing.T) {
	md := map[string]interface{}{"lang": "de"}
	f := Comparison{Key: "lang", Op: OpIn, Value: []interface{}{"en", "de"}}
	if !mustMatch(t, f, md) {
		t.Errorf("de should be in [en de]")
	}

	bad := Comparison{Key: "lang", Op: OpIn, Value: "de"}
	if _, err := Matches(bad, md, "file-1"); err == nil {
		t.Errorf("in with a non-list value must be an evaluation error")
	}
}

func TestLikeAndILike(t *testing.T) {
	md := map[string]interface{}{"name": "Quarterly Report.pdf"}

	if !mustMatch(t, Comparison{Key: "name", Op: OpLike, Value: "Quarterly%"}, md) {
		t.Errorf("prefix wildcard should match")
	}
	if mustMatch(t, Comparison{Key: "name", Op: OpLike, Value: "quarterly%"}, md) {
		t.Errorf("like is case-sensitive")
	}
	if !mustMatch(t, Comparison{Key: "name", Op: OpILike, Value: "quarterly%"}, md) {
		t.Errorf("ilike folds case")
	}
	if !mustMatch(t, Comparison{Key: "name", Op: OpLike, Value: "Quarterly Report.pd_"}, md) {
		t.Errorf("underscore should match one rune")
	}
	if mustMatch(t, Comparison{Key: "name", Op: OpLike, Value: "Report"}, md) {
		t.Errorf("pattern without wildcards must match the whole value")
	}
}

func TestCompoundShortCircuit(t *testing.T) {
	md := map[string]interface{}{"a": 1, "b": 2}

	and := Compound{Op: OpAnd, Filters: []Filter{Eq("a", 1), Eq("b", 2)}}
	if !mustMatch(t, and, md) {
		t.Errorf("and of two true comparisons should match")
	}

	or := Compound{Op: OpOr, Filters: []Filter{Eq("a", 9), Eq("b", 2)}}
	if !mustMatch(t, or, md) {
		t.Errorf("or with one true branch should match")
	}

	not := Compound{Op: OpNot, Filters: []Filter{Eq("a", 9)}}
	if !mustMatch(t, not, md) {
		t.Errorf("not(false) should match")
	}
}

func TestNotArityError(t *testing.T) {
	md := map[string]interface{}{"a": 1}
	bad := Compound{Op: OpNot, Filters: []Filter{Eq("a", 1), Eq("a", 2)}}
	if _, err := Matches(bad, md, "file-1"); err == nil {
		t.Errorf("not with two children must be an evaluation error")
	}
}

func TestUnknownOpError(t *testing.T) {
	md := map[string]interface{}{"a": 1}
	if _, err := Matches(Comparison{Key: "a", Op: Op("between"), Value: 1}, md, "file-1"); err == nil {
		t.Errorf("unknown comparison op must be an evaluation error")
	}
	if _, err := Matches(Compound{Op: Op("xor"), Filters: []Filter{Eq("a", 1)}}, md, "file-1"); err == nil {
		t.Errorf("unknown compound op must be an evaluation error")
	}
}

func TestNilFilterMatchesEverything(t *testing.T) {
	if !mustMatch(t, nil, map[string]interface{}{"a": 1}) {
		t.Errorf("nil filter should match")
	}
	if !mustMatch(t, nil, nil) {
		t.Errorf("nil filter should match nil metadata")
	}
}

func TestParseRoundTrip(t *testing.T) {
	doc := []byte(`{
		"type": "and",
		"filters": [
			{"type": "eq", "key": "author", "value": "ada"},
			{"type": "not", "filters": [{"type": "gte", "key": "pages", "value": 100}]}
		]
	}`)
	f, err := ParseJSON(doc)
	if err != nil {
		t.Fatalf("ParseJSON failed: %v", err)
	}

	match := map[string]interface{}{"author": "ada", "pages": 50}
	if !mustMatch(t, f, match) {
		t.Errorf("parsed filter should match %v", match)
	}
	noMatch := map[string]interface{}{"author": "ada", "pages": 200}
	if mustMatch(t, f, noMatch) {
		t.Errorf("parsed filter should reject %v", noMatch)
	}
}

func TestParseAcceptsGeLeSpellings(t *testing.T) {
	f, err := ParseJSON([]byte(`{"type": "ge", "key": "pages", "value": 10}`))
	if err != nil {
		t.Fatalf("ParseJSON failed: %v", err)
	}
	cmp, ok := f.(Comparison)
	if !ok {
		t.Fatalf("expected a comparison, got %T", f)
	}
	if cmp.Op != OpGte {
		t.Errorf("ge should normalize to gte, got %q", cmp.Op)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		`{"key": "a", "value": 1}`,
		`{"type": "eq", "value": 1}`,
		`{"type": "and"}`,
		`{"type": "not", "filters": []}`,
		`{"type": "between", "key": "a", "value": 1}`,
		`[1, 2]`,
	}
	for _, c := range cases {
		if _, err := ParseJSON([]byte(c)); err == nil {
			t.Errorf("expected parse error for %s", c)
		}
	}
}

func TestFromAttributes(t *testing.T) {
	f := FromAttributes(map[string]interface{}{"author": "ada", "lang": "en"})
	if !mustMatch(t, f, map[string]interface{}{"author": "ada", "lang": "en", "extra": 1}) {
		t.Errorf("conjunction should match a superset")
	}
	if mustMatch(t, f, map[string]interface{}{"author": "ada"}) {
		t.Errorf("conjunction should require every attribute")
	}
	if FromAttributes(nil) != nil {
		t.Errorf("empty attribute map should yield nil filter")
	}
}

// Any filter referencing a key absent from the metadata excludes the chunk,
// regardless of operator.
func TestMissingKeyIsolation(t *testing.T) {
	md := map[string]interface{}{"present": 1}
	ops := []Op{OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpLike, OpILike}
	for _, op := range ops {
		value := interface{}("x")
		if op == OpGt || op == OpGte || op == OpLt || op == OpLte {
			value = 1
		}
		f := Comparison{Key: "tenant", Op: op, Value: value}
		ok, err := Matches(f, md, "file-1")
		if err != nil {
			t.Fatalf("op %s: unexpected error: %v", op, err)
		}
		if ok {
			t.Errorf("op %s on missing key must not match", op)
		}
	}
	in := Comparison{Key: "tenant", Op: OpIn, Value: []interface{}{"x"}}
	if mustMatch(t, in, md) {
		t.Errorf("in on missing key must not match")
	}
}
