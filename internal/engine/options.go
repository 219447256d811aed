package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Sort directions.
const (
	Asc  = 1
	Desc = -1
)

// SortField is one key of a composite sort.
type SortField struct {
	Field string
	Dir   int
}

// SortSpec is an ordered list of sort keys; the first key has the highest
// precedence and ties keep their original relative order.
type SortSpec []SortField

// ParseSortString accepts "price,-name" or "price:1,name:-1".
func ParseSortString(s string) (SortSpec, error) {
	var spec SortSpec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		dir := Asc
		if field, d, ok := strings.Cut(part, ":"); ok {
			n, err := strconv.Atoi(strings.TrimSpace(d))
			if err != nil || (n != Asc && n != Desc) {
				return nil, fmt.Errorf("sort %q: direction must be 1 or -1", part)
			}
			part, dir = strings.TrimSpace(field), n
		} else if strings.HasPrefix(part, "-") {
			part, dir = part[1:], Desc
		} else {
			part = strings.TrimPrefix(part, "+")
		}
		if part == "" {
			return nil, fmt.Errorf("sort: empty field name")
		}
		spec = append(spec, SortField{Field: part, Dir: dir})
	}
	return spec, nil
}

// UnmarshalJSON decodes {"field": 1, "other": -1} keeping key order.
func (s *SortSpec) UnmarshalJSON(data []byte) error {
	var dirs map[string]float64
	if err := json.Unmarshal(data, &dirs); err != nil {
		return fmt.Errorf("sort spec: %w", err)
	}
	keys, err := orderedKeys(data)
	if err != nil {
		return err
	}
	spec := make(SortSpec, 0, len(keys))
	for _, k := range keys {
		spec = append(spec, SortField{Field: k, Dir: direction(dirs[k])})
	}
	*s = spec
	return nil
}

// sortSpecFromMap is used for pipelines built from Go maps, whose key order
// is lost; keys are taken alphabetically.
func sortSpecFromMap(m map[string]any) SortSpec {
	keys := sortedKeys(m)
	spec := make(SortSpec, 0, len(keys))
	for _, k := range keys {
		n, _ := toNumber(m[k])
		spec = append(spec, SortField{Field: k, Dir: direction(n)})
	}
	return spec
}

func direction(n float64) int {
	if n < 0 {
		return Desc
	}
	return Asc
}

// Compare orders two documents by the sort fields in order.
func (s SortSpec) Compare(a, b Document) int {
	for _, f := range s {
		if c := compareValues(a[f.Field], b[f.Field]); c != 0 {
			if f.Dir == Desc {
				return -c
			}
			return c
		}
	}
	return 0
}

func sortDocuments(docs []Document, spec SortSpec) {
	if len(spec) == 0 {
		return
	}
	slices.SortStableFunc(docs, spec.Compare)
}

func paginate(docs []Document, skip, limit int) []Document {
	if skip > 0 {
		if skip >= len(docs) {
			return docs[:0]
		}
		docs = docs[skip:]
	}
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}

// Projection maps field names to 1 (include) or 0 (exclude). If any field is
// included the projection is include-only and exclusions other than id are
// ignored. id is always kept unless explicitly excluded.
type Projection map[string]int

// ParseFieldList accepts "name,price" (include) or "-stock,-cost" (exclude).
func ParseFieldList(s string) Projection {
	p := Projection{}
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		switch {
		case f == "" || f == "-":
		case strings.HasPrefix(f, "-"):
			p[f[1:]] = 0
		default:
			p[f] = 1
		}
	}
	if len(p) == 0 {
		return nil
	}
	return p
}

// ProjectionFrom converts the object form ({"name": 1, "price": 0} or
// booleans) into a Projection.
func ProjectionFrom(m map[string]any) Projection {
	if len(m) == 0 {
		return nil
	}
	p := make(Projection, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case bool:
			if t {
				p[k] = 1
			} else {
				p[k] = 0
			}
		default:
			if n, _ := toNumber(v); n != 0 {
				p[k] = 1
			} else {
				p[k] = 0
			}
		}
	}
	return p
}

func (p Projection) includeMode() bool {
	for _, v := range p {
		if v != 0 {
			return true
		}
	}
	return false
}

func (p Projection) idExcluded() bool {
	v, ok := p[FieldID]
	return ok && v == 0
}

// Normalize resolves mixed projections into a pure include or pure exclude
// form, keeping an explicit id exclusion.
func (p Projection) Normalize() Projection {
	if len(p) == 0 {
		return nil
	}
	out := Projection{}
	include := p.includeMode()
	for k, v := range p {
		if include && v != 0 {
			out[k] = 1
		}
		if !include {
			out[k] = 0
		}
	}
	if include && p.idExcluded() {
		out[FieldID] = 0
	}
	return out
}

// Apply returns the projected shape of doc. doc itself is not modified.
func (p Projection) Apply(doc Document) Document {
	if len(p) == 0 {
		return doc.Clone()
	}
	if p.includeMode() {
		out := make(Document, len(p)+1)
		for k, v := range p {
			if val, ok := doc[k]; ok && v != 0 {
				out[k] = cloneValue(val)
			}
		}
		if val, ok := doc[FieldID]; ok && !p.idExcluded() {
			out[FieldID] = val
		}
		return out
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		if _, excluded := p[k]; !excluded {
			out[k] = cloneValue(v)
		}
	}
	return out
}

// FindOptions post-process a filtered result: sort, skip, limit, projection,
// in that order. Limit 0 means no limit.
type FindOptions struct {
	Sort       SortSpec
	Skip       int
	Limit      int
	Projection Projection
}

// Apply runs the options over docs, which it may reorder in place.
func (o FindOptions) Apply(docs []Document) []Document {
	sortDocuments(docs, o.Sort)
	docs = paginate(docs, o.Skip, o.Limit)
	if len(o.Projection) == 0 {
		return docs
	}
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = o.Projection.Apply(d)
	}
	return out
}

// orderedKeys lists the top-level keys of a JSON object in document order.
func orderedKeys(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected JSON object")
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key")
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
