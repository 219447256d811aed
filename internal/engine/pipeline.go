package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Stage keys.
const (
	StageMatch = "$match"
	StageSort  = "$sort"
	StageSkip  = "$skip"
	StageLimit = "$limit"
	StageGroup = "$group"
)

var stagePriority = []string{StageMatch, StageSort, StageSkip, StageLimit, StageGroup}

// Pipeline is an ordered list of stages. Stages run strictly in order.
type Pipeline []Stage

// Stage transforms the working set of an aggregation.
type Stage interface {
	apply(docs []Document) []Document
}

// MatchStage keeps documents matching Query.
type MatchStage struct{ Query Query }

// SortStage reorders the working set.
type SortStage struct{ Spec SortSpec }

// SkipStage drops the first N documents.
type SkipStage struct{ N int }

// LimitStage keeps at most N documents; N <= 0 empties the working set.
type LimitStage struct{ N int }

// GroupStage replaces the working set with one document per distinct key.
type GroupStage struct {
	Key    GroupKey
	Fields []Accumulator
}

func (s MatchStage) apply(docs []Document) []Document {
	out := docs[:0:0]
	for _, d := range docs {
		if s.Query.Matches(d) {
			out = append(out, d)
		}
	}
	return out
}

func (s SortStage) apply(docs []Document) []Document {
	sortDocuments(docs, s.Spec)
	return docs
}

func (s SkipStage) apply(docs []Document) []Document { return paginate(docs, s.N, 0) }

func (s LimitStage) apply(docs []Document) []Document {
	if s.N <= 0 {
		return docs[:0]
	}
	return paginate(docs, 0, s.N)
}

func (s GroupStage) apply(docs []Document) []Document {
	type bucket struct {
		id   any
		docs []Document
	}
	var order []string
	buckets := map[string]*bucket{}
	for _, d := range docs {
		canon, id := s.Key.groupKey(d)
		b, ok := buckets[canon]
		if !ok {
			b = &bucket{id: id}
			buckets[canon] = b
			order = append(order, canon)
		}
		b.docs = append(b.docs, d)
	}
	out := make([]Document, 0, len(order))
	for _, canon := range order {
		b := buckets[canon]
		res := Document{"_id": b.id}
		for _, acc := range s.Fields {
			res[acc.Name] = acc.compute(b.docs)
		}
		out = append(out, res)
	}
	return out
}

// Run executes pipeline over docs. The input slice is not reordered and
// documents are never modified.
func Run(docs []Document, pipeline Pipeline) []Document {
	working := slices.Clone(docs)
	for _, st := range pipeline {
		if st == nil {
			continue
		}
		working = st.apply(working)
	}
	if working == nil {
		working = []Document{}
	}
	return working
}

// FieldRef names a document field inside $group; its source form is
// "$field". It is a separate grammar from query operators.
type FieldRef string

// ParseFieldRef accepts "$name" and returns name.
func ParseFieldRef(v any) (FieldRef, bool) {
	s, ok := v.(string)
	if !ok || len(s) < 2 || s[0] != '$' {
		return "", false
	}
	return FieldRef(s[1:]), true
}

func (f FieldRef) value(d Document) (any, bool) {
	v, ok := d[string(f)]
	return v, ok
}

// GroupKey derives the grouping key of a document. canon identifies the
// group; id becomes the output _id.
type GroupKey interface {
	groupKey(d Document) (canon string, id any)
}

// GroupByField groups by a single field; absent or null values group under
// the string "null".
type GroupByField struct{ Field FieldRef }

// KeyPart is one output-key/field pair of a composite key.
type KeyPart struct {
	Name  string
	Field FieldRef
}

// GroupByFields builds a composite key "name:value|name:value".
type GroupByFields struct{ Parts []KeyPart }

// GroupAll puts every document into one group with _id = Value.
type GroupAll struct{ Value any }

func (g GroupByField) groupKey(d Document) (string, any) {
	v, ok := g.Field.value(d)
	if !ok || v == nil {
		v = "null"
	}
	return strconv.Itoa(int(kindOf(v))) + ":" + formatValue(v), v
}

func (g GroupByFields) groupKey(d Document) (string, any) {
	parts := make([]string, len(g.Parts))
	for i, p := range g.Parts {
		v, ok := p.Field.value(d)
		s := "null"
		if ok && v != nil {
			s = formatValue(v)
		}
		parts[i] = p.Name + ":" + s
	}
	key := strings.Join(parts, "|")
	return key, key
}

func (g GroupAll) groupKey(Document) (string, any) { return "", g.Value }

// AccKind is a $group accumulator.
type AccKind int

const (
	AccSum AccKind = iota
	AccAvg
	AccMax
	AccMin
	AccCount
)

var accumulatorKeys = []struct {
	key  string
	kind AccKind
}{
	{"$sum", AccSum}, {"$avg", AccAvg}, {"$max", AccMax}, {"$min", AccMin}, {"$count", AccCount},
}

// Accumulator computes output field Name over a group. With an empty Field
// the Literal operand is used instead ($sum: 1 counts documents).
type Accumulator struct {
	Name    string
	Kind    AccKind
	Field   FieldRef
	Literal float64
}

func (a Accumulator) operand(d Document) float64 {
	if a.Field == "" {
		return a.Literal
	}
	v, _ := a.Field.value(d)
	n, _ := toNumber(v)
	return n
}

func (a Accumulator) compute(docs []Document) any {
	if a.Kind == AccCount {
		return len(docs)
	}
	if len(docs) == 0 {
		return 0.0
	}
	var sum float64
	acc := a.operand(docs[0])
	for _, d := range docs {
		v := a.operand(d)
		sum += v
		switch {
		case a.Kind == AccMax && v > acc:
			acc = v
		case a.Kind == AccMin && v < acc:
			acc = v
		}
	}
	switch a.Kind {
	case AccAvg:
		return sum / float64(len(docs))
	case AccMax, AccMin:
		return acc
	}
	return sum
}

// ParsePipeline builds a pipeline from its object form. Unknown or malformed
// stages are dropped. Key order inside Go maps is not defined, so $sort keys
// and composite $group keys are taken alphabetically; decode JSON with
// Pipeline.UnmarshalJSON to keep document order.
func ParsePipeline(stages []map[string]any) Pipeline {
	out := make(Pipeline, 0, len(stages))
	for _, m := range stages {
		if st := parseStage(m, nil); st != nil {
			out = append(out, st)
		}
	}
	return out
}

// UnmarshalJSON decodes a JSON array of stage objects.
func (p *Pipeline) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	out := make(Pipeline, 0, len(raws))
	for i, raw := range raws {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("pipeline stage %d: %w", i, err)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return fmt.Errorf("pipeline stage %d: %w", i, err)
		}
		if st := parseStage(m, fields); st != nil {
			out = append(out, st)
		}
	}
	*p = out
	return nil
}

// parseStage uses raw, when present, to recover key order.
func parseStage(m map[string]any, raw map[string]json.RawMessage) Stage {
	for _, key := range stagePriority {
		v, ok := m[key]
		if !ok {
			continue
		}
		switch key {
		case StageMatch:
			q, ok := asMap(v)
			if !ok {
				return nil
			}
			return MatchStage{Query: ParseQuery(q)}
		case StageSort:
			if r, ok := raw[key]; ok {
				var spec SortSpec
				if err := spec.UnmarshalJSON(r); err != nil {
					return nil
				}
				return SortStage{Spec: spec}
			}
			sm, ok := asMap(v)
			if !ok {
				return nil
			}
			return SortStage{Spec: sortSpecFromMap(sm)}
		case StageSkip, StageLimit:
			n, ok := toNumber(v)
			if !ok {
				return nil
			}
			if key == StageSkip {
				return SkipStage{N: toCount(n)}
			}
			return LimitStage{N: toCount(n)}
		case StageGroup:
			gm, ok := asMap(v)
			if !ok {
				return nil
			}
			return parseGroup(gm, raw[key])
		}
	}
	return nil
}

// toCount converts a $skip/$limit operand, saturating at math.MaxInt.
// Negative and NaN operands become 0.
func toCount(n float64) int {
	switch {
	case math.IsNaN(n) || n <= 0:
		return 0
	case n >= math.MaxInt:
		return math.MaxInt
	}
	return int(n)
}

func parseGroup(m map[string]any, raw json.RawMessage) Stage {
	fieldOrder := sortedKeys(m)
	var idOrder []string
	if raw != nil {
		if keys, err := orderedKeys(raw); err == nil {
			fieldOrder = keys
		}
		var parts map[string]json.RawMessage
		if json.Unmarshal(raw, &parts) == nil {
			if idRaw, ok := parts["_id"]; ok {
				idOrder, _ = orderedKeys(idRaw)
			}
		}
	}

	g := GroupStage{Key: parseGroupKey(m["_id"], idOrder)}
	for _, name := range fieldOrder {
		if name == "_id" {
			continue
		}
		spec, ok := asMap(m[name])
		if !ok {
			continue
		}
		if acc, ok := parseAccumulator(name, spec); ok {
			g.Fields = append(g.Fields, acc)
		}
	}
	return g
}

func parseGroupKey(v any, order []string) GroupKey {
	if ref, ok := ParseFieldRef(v); ok {
		return GroupByField{Field: ref}
	}
	if m, ok := asMap(v); ok {
		if len(order) == 0 {
			order = sortedKeys(m)
		}
		var parts []KeyPart
		for _, name := range order {
			if ref, ok := ParseFieldRef(m[name]); ok {
				parts = append(parts, KeyPart{Name: name, Field: ref})
			}
		}
		return GroupByFields{Parts: parts}
	}
	return GroupAll{Value: v}
}

func parseAccumulator(name string, spec map[string]any) (Accumulator, bool) {
	for _, ak := range accumulatorKeys {
		arg, ok := spec[ak.key]
		if !ok {
			continue
		}
		acc := Accumulator{Name: name, Kind: ak.kind}
		if ref, ok := ParseFieldRef(arg); ok {
			acc.Field = ref
		} else if n, ok := toNumber(arg); ok {
			acc.Literal = n
		}
		return acc, true
	}
	return Accumulator{}, false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
