package types

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SnapshotVersion is the schema version stamped on every serialized snapshot.
const SnapshotVersion = 1

// Snapshot is an immutable, point-in-time copy of an entity. Values are one
// of string, bool, int64, float64, time.Time, a nested Snapshot, or nil for an
// explicitly absent field or relation. There are no mutators; nested
// snapshots are shared freely.
type Snapshot struct {
	fields map[string]any
}

// NewSnapshot copies fields into a new Snapshot. Nested map[string]any values
// become nested snapshots. Callers are expected to pass normalized scalars.
func NewSnapshot(fields map[string]any) Snapshot {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch tv := v.(type) {
		case map[string]any:
			out[k] = NewSnapshot(tv)
		case time.Time:
			out[k] = tv.UTC()
		default:
			out[k] = v
		}
	}
	return Snapshot{fields: out}
}

// Version returns the snapshot schema version.
func (s Snapshot) Version() int { return SnapshotVersion }

// Len returns the number of top-level fields, absent ones included.
func (s Snapshot) Len() int { return len(s.fields) }

// Has reports whether name was captured, even as an explicit absence.
func (s Snapshot) Has(name string) bool {
	_, ok := s.fields[name]
	return ok
}

// Get returns the value captured for name. The boolean is false when the field
// was never captured; a captured absence returns (nil, true).
func (s Snapshot) Get(name string) (any, bool) {
	v, ok := s.fields[name]
	return v, ok
}

// IsAbsent reports whether name is missing or explicitly absent.
func (s Snapshot) IsAbsent(name string) bool {
	return s.fields[name] == nil
}

// Nested returns the related snapshot captured under name.
func (s Snapshot) Nested(name string) (Snapshot, bool) {
	n, ok := s.fields[name].(Snapshot)
	return n, ok
}

// Lookup resolves a dotted path such as "organization.owner.email". It
// returns false when any segment is missing or absent.
func (s Snapshot) Lookup(path string) (any, bool) {
	cur := s
	parts := strings.Split(path, ".")
	for i, p := range parts {
		v, ok := cur.fields[p]
		if !ok || v == nil {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, ok := v.(Snapshot)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

// Text resolves path and formats the scalar found there. Nested snapshots and
// absent values yield ("", false).
func (s Snapshot) Text(path string) (string, bool) {
	v, ok := s.Lookup(path)
	if !ok {
		return "", false
	}
	return FormatScalar(v)
}

// Keys returns the top-level field names in sorted order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.fields))
	for k := range s.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a deep copy as plain maps. Nested snapshots become nested maps.
func (s Snapshot) Map() map[string]any {
	out := make(map[string]any, len(s.fields))
	for k, v := range s.fields {
		if n, ok := v.(Snapshot); ok {
			out[k] = n.Map()
			continue
		}
		out[k] = v
	}
	return out
}

// JSONMap is like Map but renders timestamps as RFC 3339 strings, which is
// the form the value takes once it is persisted or sent over the wire.
func (s Snapshot) JSONMap() map[string]any {
	out := make(map[string]any, len(s.fields))
	for k, v := range s.fields {
		switch tv := v.(type) {
		case Snapshot:
			out[k] = tv.JSONMap()
		case time.Time:
			out[k] = tv.UTC().Format(time.RFC3339Nano)
		default:
			out[k] = v
		}
	}
	return out
}

type snapshotEnvelope struct {
	Version int            `json:"version"`
	Fields  map[string]any `json:"fields"`
}

// MarshalJSON encodes the snapshot with its version. Map keys are sorted by
// encoding/json, so equal snapshots encode to identical bytes.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotEnvelope{Version: SnapshotVersion, Fields: s.JSONMap()})
}

// Equal compares two snapshots field by field using ValuesEqual.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s.fields) != len(other.fields) {
		return false
	}
	for k, v := range s.fields {
		ov, ok := other.fields[k]
		if !ok || !ValuesEqual(v, ov) {
			return false
		}
	}
	return true
}

// FormatScalar renders a snapshot scalar as display text.
func FormatScalar(v any) (string, bool) {
	switch tv := v.(type) {
	case string:
		return tv, true
	case int64:
		return strconv.FormatInt(tv, 10), true
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(tv), true
	case time.Time:
		return tv.UTC().Format(time.RFC3339), true
	default:
		return "", false
	}
}

// ValuesEqual compares snapshot values the way they survive a JSON round
// trip: numbers by numeric value, timestamps against their RFC 3339 text,
// nested snapshots against plain maps.
func ValuesEqual(a, b any) bool {
	if af, ok := asFloat(a); ok {
		bf, ok := asFloat(b)
		return ok && af == bf
	}
	switch av := a.(type) {
	case nil:
		return b == nil
	case time.Time:
		switch bv := b.(type) {
		case time.Time:
			return av.Equal(bv)
		case string:
			t, err := time.Parse(time.RFC3339Nano, bv)
			return err == nil && av.Equal(t)
		}
		return false
	case string:
		if bt, ok := b.(time.Time); ok {
			return ValuesEqual(bt, av)
		}
		bs, ok := b.(string)
		return ok && av == bs
	case bool:
		bb, ok := b.(bool)
		return ok && av == bb
	case Snapshot:
		return ValuesEqual(av.Map(), b)
	case map[string]any:
		var bm map[string]any
		switch bv := b.(type) {
		case Snapshot:
			bm = bv.Map()
		case map[string]any:
			bm = bv
		default:
			return false
		}
		if len(av) != len(bm) {
			return false
		}
		for k, v := range av {
			ov, ok := bm[k]
			if !ok || !ValuesEqual(v, ov) {
				return false
			}
		}
		return true
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
