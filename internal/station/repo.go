package station

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"hallpass/internal/store"
)

// ErrTokenInvalid means the refresh token is unknown, revoked or expired.
var ErrTokenInvalid = errors.New("refresh token invalid")

// Repository persists classroom workstation registrations and their
// refresh tokens.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Upsert ensures a station record exists.
func (r *Repository) Upsert(ctx context.Context, stationID string) error {
	if stationID == "" {
		return errors.New("station id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stations (station_id)
		VALUES ($1)
		ON CONFLICT (station_id) DO NOTHING
	`, stationID)
	return store.Wrap("upsert station", err)
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, stationID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token, station_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, stationID, expiresAt)
	return store.Wrap("save refresh token", err)
}

// RevokeRefreshToken marks a token revoked.
func (r *Repository) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`, token)
	return store.Wrap("revoke refresh token", err)
}

// ValidateRefreshToken returns the owning station id for a live token.
func (r *Repository) ValidateRefreshToken(ctx context.Context, token string) (string, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT station_id FROM refresh_tokens
		WHERE token = $1 AND revoked = FALSE AND expires_at > NOW()
	`, token)
	var stationID string
	if err := row.Scan(&stationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrTokenInvalid
		}
		return "", store.Wrap("validate refresh token", err)
	}
	return stationID, nil
}
