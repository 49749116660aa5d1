package db

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"bloodlink/internal/types"
)

// DefaultListLimit caps ListForUser when the caller passes no limit.
const DefaultListLimit = 50

// NotificationRepository persists in-app notification records in the
// notifications table. Rows are keyed by a deterministic ID, so saving the
// same record twice is a no-op.
type NotificationRepository struct {
	db DBTX
}

var _ types.RecordStore = (*NotificationRepository)(nil)

// NewNotificationRepository creates a NotificationRepository backed by the
// given database connection (pool or transaction).
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Save inserts rec. An existing row with the same ID is left untouched.
func (r *NotificationRepository) Save(ctx context.Context, rec *types.NotificationRecord) error {
	data, err := json.Marshal(dataOrEmpty(rec.Data))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode notification data", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO notifications (id, user_id, kind, event_id, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID,
		rec.UserID,
		rec.Kind,
		rec.EventID,
		data,
		nilIfZeroTime(rec.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save notification", err)
	}
	return nil
}

// Get returns the notification with the given ID, or an AppError with
// ErrCodeNotFoundNotification.
func (r *NotificationRepository) Get(ctx context.Context, id string) (*types.NotificationRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, user_id, kind, event_id, data, read_at, created_at
		 FROM notifications
		 WHERE id = $1`,
		id,
	)

	rec, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get notification", err)
	}
	return rec, nil
}

// ListForUser returns the newest notifications for userID, newest first.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*types.NotificationRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, kind, event_id, data, read_at, created_at
		 FROM notifications
		 WHERE user_id = $1 AND ($2::bool = false OR read_at IS NULL)
		 ORDER BY created_at DESC, id
		 LIMIT $3`,
		userID, unreadOnly, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list notifications", err)
	}
	defer rows.Close()

	var out []*types.NotificationRecord
	for rows.Next() {
		rec, err := scanNotification(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notification", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list notifications", err)
	}
	return out, nil
}

// MarkRead sets read_at on the notification. Marking an already-read
// notification keeps the first timestamp.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET read_at = COALESCE(read_at, $2) WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark notification read", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
	}
	return nil
}

func scanNotification(row pgx.Row) (*types.NotificationRecord, error) {
	var rec types.NotificationRecord
	var data []byte
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Kind, &rec.EventID, &data, &rec.ReadAt, &rec.CreatedAt); err != nil {
		return nil, err
	}
	decoded, err := decodeData(data)
	if err != nil {
		return nil, err
	}
	rec.Data = decoded
	return &rec, nil
}

// decodeData keeps JSON numbers as json.Number so integer ids survive the
// round trip without becoming float64.
func decodeData(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func dataOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
