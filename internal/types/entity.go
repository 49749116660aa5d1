package types

// Entity is the read surface the snapshot builder needs from a loaded domain
// object.
type Entity interface {
	Kind() EntityKind
	Field(name string) (any, bool)
	Related(name string) (Entity, bool)
}

// FieldSpec names the fields to copy from an entity and, per relation, the
// spec to apply to the related entity.
type FieldSpec struct {
	Fields    []string
	Relations map[string]FieldSpec
}

// Record is a map-backed Entity, the shape the entity store produces from a
// database row.
type Record struct {
	kind      EntityKind
	fields    map[string]any
	relations map[string]*Record
}

var _ Entity = (*Record)(nil)

// NewRecord copies fields into a new Record of the given kind.
func NewRecord(kind EntityKind, fields map[string]any) *Record {
	f := make(map[string]any, len(fields))
	for k, v := range fields {
		f[k] = v
	}
	return &Record{kind: kind, fields: f, relations: map[string]*Record{}}
}

// Kind returns the entity kind.
func (r *Record) Kind() EntityKind { return r.kind }

// Field returns a column value.
func (r *Record) Field(name string) (any, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// Related returns a loaded relation. A relation attached as nil reads as
// missing.
func (r *Record) Related(name string) (Entity, bool) {
	rel, ok := r.relations[name]
	if !ok || rel == nil {
		return nil, false
	}
	return rel, true
}

// Attach sets a relation and returns the receiver for chaining. Attaching nil
// records that the relation was looked up and is absent.
func (r *Record) Attach(name string, rel *Record) *Record {
	r.relations[name] = rel
	return r
}
