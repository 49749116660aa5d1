package core

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"bloodlink/internal/types"
)

// BuildSnapshot copies the fields named by spec out of entity into an
// immutable snapshot, recursing into the relations the spec names. It never
// fails: a field the entity does not have, a missing relation, or a nil
// entity are all captured as explicit absence.
//
// Values are normalized so that the same entity always yields the same
// snapshot: integers become int64, floats become float64, pointers are
// dereferenced, named string types become plain strings and times are UTC.
func BuildSnapshot(entity types.Entity, spec types.FieldSpec) types.Snapshot {
	fields := make(map[string]any, len(spec.Fields)+len(spec.Relations))

	for _, name := range spec.Fields {
		if isNilEntity(entity) {
			fields[name] = nil
			continue
		}
		v, ok := entity.Field(name)
		if !ok {
			fields[name] = nil
			continue
		}
		fields[name] = normalizeValue(v)
	}

	for name, sub := range spec.Relations {
		if isNilEntity(entity) {
			fields[name] = nil
			continue
		}
		rel, ok := entity.Related(name)
		if !ok || isNilEntity(rel) {
			fields[name] = nil
			continue
		}
		fields[name] = BuildSnapshot(rel, sub)
	}

	return types.NewSnapshot(fields)
}

func isNilEntity(e types.Entity) bool {
	if e == nil {
		return true
	}
	rv := reflect.ValueOf(e)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// normalizeValue maps an arbitrary column value onto the snapshot scalar set.
func normalizeValue(v any) any {
	switch tv := v.(type) {
	case nil:
		return nil
	case string, bool, int64, float64:
		return tv
	case time.Time:
		return tv.UTC()
	case *time.Time:
		if tv == nil {
			return nil
		}
		return tv.UTC()
	case []byte:
		return string(tv)
	case json.Number:
		if i, err := tv.Int64(); err == nil {
			return i
		}
		if f, err := tv.Float64(); err == nil {
			return f
		}
		return tv.String()
	case types.Snapshot:
		return tv
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, inner := range tv {
			out[k] = normalizeValue(inner)
		}
		return out
	case fmt.Stringer:
		if rv := reflect.ValueOf(tv); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil
		}
		return tv.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return normalizeValue(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	}
	return fmt.Sprint(v)
}
