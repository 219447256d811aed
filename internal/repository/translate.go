package repository

import (
	"github.com/buildcore/erp-core/internal/engine"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// neverFilter matches nothing: every stored document carries an _id.
var neverFilter = bson.M{"_id": bson.M{"$exists": false}}

// filterToBSON renders a typed query as a MongoDB filter. Queries are built
// by engine.ParseQuery, so the operator chosen there is the only one sent.
func filterToBSON(q engine.Query) bson.M {
	out := bson.M{}
	var and bson.A
	for _, c := range q {
		switch c := c.(type) {
		case engine.FieldClause:
			cond, ok := operatorToBSON(c.Op)
			if !ok {
				return neverFilter
			}
			if _, dup := out[c.Field]; dup {
				and = append(and, bson.M{c.Field: cond})
				continue
			}
			out[c.Field] = cond
		case engine.OrClause:
			if len(c.Subs) == 0 {
				return neverFilter
			}
			subs := make(bson.A, 0, len(c.Subs))
			for _, s := range c.Subs {
				subs = append(subs, filterToBSON(s))
			}
			and = append(and, bson.M{"$or": subs})
		case engine.AndClause:
			for _, s := range c.Subs {
				and = append(and, filterToBSON(s))
			}
		default:
			return neverFilter
		}
	}
	if len(and) > 0 {
		out["$and"] = and
	}
	return out
}

func operatorToBSON(op engine.Operator) (any, bool) {
	switch o := op.(type) {
	case engine.Eq:
		return o.Value, true
	case engine.DeepEq:
		return bson.M{"$eq": o.Value}, true
	case engine.Regex:
		if o.Pattern == nil {
			return nil, false
		}
		return primitive.Regex{Pattern: o.Pattern.String()}, true
	case engine.In:
		vals := bson.A{}
		for _, v := range o.Values {
			vals = append(vals, v)
		}
		return bson.M{"$in": vals}, true
	case engine.Gte:
		return bson.M{"$gte": o.Value}, true
	case engine.Lte:
		return bson.M{"$lte": o.Value}, true
	case engine.Gt:
		return bson.M{"$gt": o.Value}, true
	case engine.Lt:
		return bson.M{"$lt": o.Value}, true
	case engine.Ne:
		return bson.M{"$ne": o.Value}, true
	}
	return nil, false
}

func sortToBSON(spec engine.SortSpec) bson.D {
	out := make(bson.D, 0, len(spec))
	for _, f := range spec {
		out = append(out, bson.E{Key: f.Field, Value: f.Dir})
	}
	return out
}

// projectionToBSON always hides Mongo's own _id and keeps the application id
// unless it is excluded.
func projectionToBSON(p engine.Projection) bson.M {
	out := bson.M{"_id": 0}
	n := p.Normalize()
	include := false
	for _, v := range n {
		if v != 0 {
			include = true
		}
	}
	for k, v := range n {
		if include && k == engine.FieldID && v == 0 {
			continue
		}
		out[k] = v
	}
	if _, set := n[engine.FieldID]; include && !set {
		out[engine.FieldID] = 1
	}
	return out
}

func pipelineToBSON(p engine.Pipeline) mongo.Pipeline {
	out := mongo.Pipeline{}
	for _, st := range p {
		switch s := st.(type) {
		case engine.MatchStage:
			out = append(out, bson.D{{Key: "$match", Value: filterToBSON(s.Query)}})
		case engine.SortStage:
			if len(s.Spec) > 0 {
				out = append(out, bson.D{{Key: "$sort", Value: sortToBSON(s.Spec)}})
			}
		case engine.SkipStage:
			if s.N > 0 {
				out = append(out, bson.D{{Key: "$skip", Value: int64(s.N)}})
			}
		case engine.LimitStage:
			if s.N <= 0 {
				out = append(out, bson.D{{Key: "$match", Value: neverFilter}})
				continue
			}
			out = append(out, bson.D{{Key: "$limit", Value: int64(s.N)}})
		case engine.GroupStage:
			out = append(out, bson.D{{Key: "$group", Value: groupToBSON(s)}})
		}
	}
	return out
}

func groupToBSON(g engine.GroupStage) bson.D {
	out := bson.D{{Key: "_id", Value: groupIDToBSON(g.Key)}}
	for _, acc := range g.Fields {
		out = append(out, bson.E{Key: acc.Name, Value: accumulatorToBSON(acc)})
	}
	return out
}

// groupIDToBSON mirrors the in-memory key rules: missing values group under
// "null" and composite keys are rendered as "name:value|name:value".
func groupIDToBSON(k engine.GroupKey) any {
	switch key := k.(type) {
	case engine.GroupByField:
		return bson.M{"$ifNull": bson.A{"$" + string(key.Field), "null"}}
	case engine.GroupByFields:
		parts := bson.A{}
		for i, p := range key.Parts {
			prefix := p.Name + ":"
			if i > 0 {
				prefix = "|" + prefix
			}
			parts = append(parts, prefix, bson.M{"$ifNull": bson.A{bson.M{"$toString": "$" + string(p.Field)}, "null"}})
		}
		return bson.M{"$concat": parts}
	case engine.GroupAll:
		return key.Value
	}
	return nil
}

func accumulatorToBSON(acc engine.Accumulator) bson.M {
	if acc.Kind == engine.AccCount {
		return bson.M{"$sum": 1}
	}
	op := map[engine.AccKind]string{
		engine.AccSum: "$sum",
		engine.AccAvg: "$avg",
		engine.AccMax: "$max",
		engine.AccMin: "$min",
	}[acc.Kind]
	if acc.Field == "" {
		return bson.M{op: acc.Literal}
	}
	return bson.M{op: bson.M{"$convert": bson.M{
		"input":   "$" + string(acc.Field),
		"to":      "double",
		"onError": 0.0,
		"onNull":  0.0,
	}}}
}

// toDocument converts a decoded BSON document into engine values. Mongo's
// ObjectID _id is dropped; a group _id is kept.
func toDocument(m bson.M) engine.Document {
	out := make(engine.Document, len(m))
	for k, v := range m {
		if _, oid := v.(primitive.ObjectID); oid && k == "_id" {
			continue
		}
		out[k] = fromBSON(v)
	}
	return out
}

func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		return map[string]any(toDocument(t))
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromBSON(e)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.ObjectID:
		return t.Hex()
	case primitive.Decimal128:
		return t.String()
	case int32:
		return int(t)
	case int64:
		return int(t)
	}
	return v
}

func toDocuments(ms []bson.M) []engine.Document {
	out := make([]engine.Document, len(ms))
	for i, m := range ms {
		out[i] = toDocument(m)
	}
	return out
}
