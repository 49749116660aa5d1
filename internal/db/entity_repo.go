package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"bloodlink/internal/types"
)

// defaultRelationDepth bounds how far Load follows foreign keys. The deepest
// path the routing table reads is delivery -> organization -> owner.
const defaultRelationDepth = 3

// relation is a foreign key followed when loading an entity.
type relation struct {
	name   string
	kind   types.EntityKind
	column string
}

// entityTable is the query that loads one row of a kind plus the relations
// hanging off it. Queries take the id as text and cast numerics to float8 so
// rows decode into the scalar types snapshots accept.
type entityTable struct {
	query     string
	relations []relation
}

var entityTables = map[types.EntityKind]entityTable{
	types.EntityDelivery: {
		query: `SELECT id, tracking_code, status, organization_id, rider_id,
		               estimated_arrival, updated_at
		        FROM deliveries WHERE id = $1::text::bigint`,
		relations: []relation{
			{name: "rider", kind: types.EntityRider, column: "rider_id"},
			{name: "organization", kind: types.EntityOrganization, column: "organization_id"},
		},
	},
	types.EntityRider: {
		query: `SELECT id, name, current_latitude::float8 AS current_latitude,
		               current_longitude::float8 AS current_longitude
		        FROM riders WHERE id = $1::text::bigint`,
	},
	types.EntityOrganization: {
		query: `SELECT id, name, owner_id FROM organizations WHERE id = $1::text::bigint`,
		relations: []relation{
			{name: "owner", kind: types.EntityUser, column: "owner_id"},
		},
	},
	types.EntityUser: {
		query: `SELECT id, name, email FROM users WHERE id = $1::text::bigint`,
	},
	types.EntityMessage: {
		query: `SELECT id, body, sender_id, recipient_id, created_at
		        FROM messages WHERE id = $1::text::bigint`,
		relations: []relation{
			{name: "sender", kind: types.EntityUser, column: "sender_id"},
			{name: "recipient", kind: types.EntityUser, column: "recipient_id"},
		},
	},
	types.EntityComplianceReview: {
		query: `SELECT id, organization_id, status, notes, decided_at
		        FROM compliance_reviews WHERE id = $1::text::bigint`,
		relations: []relation{
			{name: "organization", kind: types.EntityOrganization, column: "organization_id"},
		},
	},
	types.EntityAppointment: {
		query: `SELECT id, donor_id, scheduled_at, location, status
		        FROM appointments WHERE id = $1::text::bigint`,
		relations: []relation{
			{name: "donor", kind: types.EntityUser, column: "donor_id"},
		},
	},
}

// EntityRepository loads domain entities with their relations attached, as
// the snapshot builder expects them.
type EntityRepository struct {
	db       DBTX
	maxDepth int
}

var _ types.EntityStore = (*EntityRepository)(nil)

// EntityOption configures an EntityRepository.
type EntityOption func(*EntityRepository)

// WithRelationDepth overrides how many foreign-key hops Load follows.
func WithRelationDepth(depth int) EntityOption {
	return func(r *EntityRepository) {
		r.maxDepth = depth
	}
}

// NewEntityRepository creates an EntityRepository.
func NewEntityRepository(db DBTX, opts ...EntityOption) *EntityRepository {
	r := &EntityRepository{db: db, maxDepth: defaultRelationDepth}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load returns the entity of kind with the given id. A missing row is an
// AppError with ErrCodeNotFoundEntity; a missing related row is attached as
// an absent relation.
func (r *EntityRepository) Load(ctx context.Context, kind types.EntityKind, id string) (types.Entity, error) {
	rec, err := r.load(ctx, kind, id, 0)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundEntity, fmt.Sprintf("%s %s not found", kind, id), nil)
	}
	return rec, nil
}

func (r *EntityRepository) load(ctx context.Context, kind types.EntityKind, id string, depth int) (*types.Record, error) {
	table, ok := entityTables[kind]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeInternalConfiguration, fmt.Sprintf("no table registered for entity kind %q", kind), nil)
	}

	rows, err := r.db.Query(ctx, table.query, id)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, fmt.Sprintf("failed to load %s", kind), err)
	}
	fields, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, fmt.Sprintf("failed to load %s", kind), err)
	}

	rec := types.NewRecord(kind, fields)
	if depth >= r.maxDepth {
		return rec, nil
	}

	for _, rel := range table.relations {
		fk := fields[rel.column]
		if fk == nil {
			rec.Attach(rel.name, nil)
			continue
		}
		child, err := r.load(ctx, rel.kind, fmt.Sprint(fk), depth+1)
		if err != nil {
			return nil, err
		}
		rec.Attach(rel.name, child)
	}
	return rec, nil
}
