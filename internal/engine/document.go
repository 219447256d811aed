package engine

import (
	"errors"
	"reflect"
	"time"
)

// Reserved document fields managed by the store.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

var (
	// ErrNotFound is returned by Update and Delete for an unknown id.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicateID is returned by Create when the id is already taken.
	ErrDuplicateID = errors.New("duplicate document id")
	// ErrMalformedQuery is reserved for operator misuse. The matcher never
	// returns it: malformed operators simply fail to match.
	ErrMalformedQuery = errors.New("malformed query")
)

// Document is a schemaless record. Values are plain Go values: nil, bool,
// numbers, string, time.Time, nested maps and []any lists.
type Document map[string]any

// ID returns the document id, or "" when it is missing or not a string.
func (d Document) ID() string {
	s, _ := d[FieldID].(string)
	return s
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Document:
		return t.Clone()
	case map[string]any:
		return map[string]any(Document(t).Clone())
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case time.Time:
		return t
	default:
		return cloneReflect(v)
	}
}

// cloneReflect copies typed slices, arrays and maps such as []Document or
// map[string]string, cloning their elements.
func cloneReflect(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(cloneElem(rv.Index(i)))
		}
		return out.Interface()
	case reflect.Array:
		out := reflect.New(rv.Type()).Elem()
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(cloneElem(rv.Index(i)))
		}
		return out.Interface()
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneElem(iter.Value()))
		}
		return out.Interface()
	}
	return v
}

func cloneElem(e reflect.Value) reflect.Value {
	switch e.Kind() {
	case reflect.Interface, reflect.Map, reflect.Slice:
		if e.IsNil() {
			return e
		}
	}
	c := reflect.ValueOf(cloneValue(e.Interface()))
	if !c.IsValid() || !c.Type().AssignableTo(e.Type()) {
		return e
	}
	return c
}

func cloneAll(docs []Document) []Document {
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = d.Clone()
	}
	return out
}
