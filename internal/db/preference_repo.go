package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"bloodlink/internal/types"
)

// PreferenceRepository reads recipient notification preferences. The table
// belongs to the user-profile subsystem; this repository never writes it.
type PreferenceRepository struct {
	db DBTX
}

var _ types.PreferenceStore = (*PreferenceRepository)(nil)

// NewPreferenceRepository creates a PreferenceRepository.
func NewPreferenceRepository(db DBTX) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// GetPreference returns the stored preference, or (nil, nil) when the user
// never set one for kind.
func (r *PreferenceRepository) GetPreference(ctx context.Context, userID string, kind types.ChannelKind) (*types.RecipientPreference, error) {
	pref := types.RecipientPreference{UserID: userID, ChannelKind: kind}
	err := r.db.QueryRow(ctx,
		`SELECT enabled
		 FROM notification_preferences
		 WHERE user_id = $1 AND channel_kind = $2`,
		userID, string(kind),
	).Scan(&pref.Enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get notification preference", err)
	}
	return &pref, nil
}
