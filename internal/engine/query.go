package engine

import (
	"regexp"
	"strings"
)

// Query operator keys, in the priority order used when an operator object
// carries more than one of them.
const (
	OpRegex   = "$regex"
	OpOptions = "$options"
	OpIn      = "$in"
	OpGte     = "$gte"
	OpLte     = "$lte"
	OpGt      = "$gt"
	OpLt      = "$lt"
	OpNe      = "$ne"
	OpOr      = "$or"
	OpAnd     = "$and"
)

var operatorPriority = []string{OpRegex, OpIn, OpGte, OpLte, OpGt, OpLt, OpNe}

// Query is a conjunction of clauses. The zero value matches every document.
type Query []Clause

// Clause is one top-level condition of a query.
type Clause interface {
	matches(doc Document) bool
}

// FieldClause applies an operator to a single document field.
type FieldClause struct {
	Field string
	Op    Operator
}

// OrClause matches when any sub-query matches.
type OrClause struct{ Subs []Query }

// AndClause matches when every sub-query matches.
type AndClause struct{ Subs []Query }

// Never matches nothing. ParseQuery emits it for malformed combinators.
type Never struct{}

func (c FieldClause) matches(doc Document) bool {
	v, ok := doc[c.Field]
	return c.Op.test(v, ok)
}

func (c OrClause) matches(doc Document) bool {
	for _, q := range c.Subs {
		if q.Matches(doc) {
			return true
		}
	}
	return false
}

func (c AndClause) matches(doc Document) bool {
	for _, q := range c.Subs {
		if !q.Matches(doc) {
			return false
		}
	}
	return true
}

func (Never) matches(Document) bool { return false }

// Matches reports whether doc satisfies every clause.
func (q Query) Matches(doc Document) bool {
	for _, c := range q {
		if !c.matches(doc) {
			return false
		}
	}
	return true
}

// Match is the functional form of Query.Matches.
func Match(doc Document, q Query) bool { return q.Matches(doc) }

// Where is a shorthand for a single-field clause.
func Where(field string, op Operator) FieldClause { return FieldClause{Field: field, Op: op} }

// Operator tests a field value. present is false when the field is absent.
// An absent field satisfies only Ne against a non-null value and Eq(nil).
type Operator interface {
	test(v any, present bool) bool
}

type (
	// Eq is strict equality with numbers compared by value.
	Eq struct{ Value any }
	// DeepEq compares objects and lists structurally.
	DeepEq struct{ Value any }
	// In matches when the field equals any of Values.
	In struct{ Values []any }
	// Gte is the inclusive lower bound.
	Gte struct{ Value any }
	// Lte is the inclusive upper bound.
	Lte struct{ Value any }
	// Gt is the exclusive lower bound.
	Gt struct{ Value any }
	// Lt is the exclusive upper bound.
	Lt struct{ Value any }
	// Ne matches when the field does not equal Value.
	Ne struct{ Value any }
)

// Regex matches the string form of a field value. A nil Pattern (invalid
// expression) never matches.
type Regex struct {
	Pattern *regexp.Regexp
}

// NewRegex compiles pattern with JS-style option flags. Only i, m and s have
// an effect.
func NewRegex(pattern, options string) Regex {
	var flags strings.Builder
	for _, f := range options {
		switch f {
		case 'i', 'm', 's':
			if !strings.ContainsRune(flags.String(), f) {
				flags.WriteRune(f)
			}
		}
	}
	if flags.Len() > 0 {
		pattern = "(?" + flags.String() + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Regex{}
	}
	return Regex{Pattern: re}
}

func (o Eq) test(v any, present bool) bool {
	if !present {
		return o.Value == nil
	}
	return equalValues(v, o.Value)
}

func (o DeepEq) test(v any, present bool) bool {
	return present && deepEqual(v, o.Value)
}

func (o Regex) test(v any, present bool) bool {
	if !present || o.Pattern == nil {
		return false
	}
	return o.Pattern.MatchString(formatValue(v))
}

func (o In) test(v any, present bool) bool {
	if !present {
		return false
	}
	for _, e := range o.Values {
		if equalValues(v, e) {
			return true
		}
	}
	return false
}

func (o Gte) test(v any, present bool) bool { return bound(v, present, o.Value, func(c int) bool { return c >= 0 }) }
func (o Lte) test(v any, present bool) bool { return bound(v, present, o.Value, func(c int) bool { return c <= 0 }) }
func (o Gt) test(v any, present bool) bool  { return bound(v, present, o.Value, func(c int) bool { return c > 0 }) }
func (o Lt) test(v any, present bool) bool  { return bound(v, present, o.Value, func(c int) bool { return c < 0 }) }

func (o Ne) test(v any, present bool) bool {
	if !present {
		return o.Value != nil
	}
	return !equalValues(v, o.Value)
}

func bound(v any, present bool, limit any, ok func(int) bool) bool {
	if !present {
		return false
	}
	c, comparable := compareBound(v, limit)
	return comparable && ok(c)
}

// ParseQuery converts the object form of a query into a typed Query. It
// never fails: malformed combinators and operators turn into clauses that
// do not match.
func ParseQuery(q map[string]any) Query {
	if len(q) == 0 {
		return nil
	}
	keys := sortedKeys(q)
	out := make(Query, 0, len(keys))
	for _, k := range keys {
		v := q[k]
		switch k {
		case OpOr, OpAnd:
			subs, ok := parseSubQueries(v)
			if !ok {
				out = append(out, Never{})
				continue
			}
			if k == OpOr {
				out = append(out, OrClause{Subs: subs})
			} else {
				out = append(out, AndClause{Subs: subs})
			}
		default:
			out = append(out, FieldClause{Field: k, Op: parseOperator(v)})
		}
	}
	return out
}

func parseSubQueries(v any) ([]Query, bool) {
	list, ok := asList(v)
	if !ok {
		return nil, false
	}
	subs := make([]Query, 0, len(list))
	for _, item := range list {
		m, ok := asMap(item)
		if !ok {
			return nil, false
		}
		subs = append(subs, ParseQuery(m))
	}
	return subs, true
}

func parseOperator(v any) Operator {
	if m, ok := asMap(v); ok {
		for _, key := range operatorPriority {
			arg, ok := m[key]
			if !ok {
				continue
			}
			switch key {
			case OpRegex:
				pattern, ok := arg.(string)
				if !ok {
					return Regex{}
				}
				opts, _ := m[OpOptions].(string)
				return NewRegex(pattern, opts)
			case OpIn:
				list, _ := asList(arg)
				return In{Values: list}
			case OpGte:
				return Gte{Value: arg}
			case OpLte:
				return Lte{Value: arg}
			case OpGt:
				return Gt{Value: arg}
			case OpLt:
				return Lt{Value: arg}
			case OpNe:
				return Ne{Value: arg}
			}
		}
		return DeepEq{Value: m}
	}
	if _, ok := asList(v); ok {
		return DeepEq{Value: v}
	}
	return Eq{Value: v}
}
