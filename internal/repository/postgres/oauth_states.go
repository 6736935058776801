package postgres

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/pkg/errors"
)

type oauthStateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOAuthStateRepository creates a new OAuth state repository
func NewOAuthStateRepository(db *sql.DB, logger *zap.Logger) *oauthStateRepository {
	return &oauthStateRepository{
		db:     db,
		logger: logger,
	}
}

func (r *oauthStateRepository) Save(ctx context.Context, state *domain.OAuthState) error {
	query := `
		INSERT INTO oauth_states (state, tenant_id, platform, redirect_path, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		state.State,
		state.TenantID,
		string(state.Platform),
		state.RedirectPath,
		state.CreatedAt,
		state.ExpiresAt,
	)
	if err != nil {
		r.logger.Error("Failed to save oauth state", zap.String("platform", string(state.Platform)), zap.Error(err))
		return err
	}
	return nil
}

// Consume deletes the row and returns it in one statement, so a state can
// only be redeemed once even with concurrent callbacks
func (r *oauthStateRepository) Consume(ctx context.Context, state string, now time.Time) (*domain.OAuthState, error) {
	query := `
		DELETE FROM oauth_states
		WHERE state = $1
		RETURNING state, tenant_id, platform, redirect_path, created_at, expires_at
	`
	var s domain.OAuthState
	var platform string
	err := r.db.QueryRowContext(ctx, query, state).Scan(
		&s.State,
		&s.TenantID,
		&platform,
		&s.RedirectPath,
		&s.CreatedAt,
		&s.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrInvalidState{Reason: "unknown or already used"}
	}
	if err != nil {
		r.logger.Error("Failed to consume oauth state", zap.Error(err))
		return nil, err
	}
	s.Platform = domain.Platform(platform)

	if s.Expired(now) {
		return nil, &errors.ErrInvalidState{Reason: "expired"}
	}
	return &s, nil
}

func (r *oauthStateRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM oauth_states WHERE expires_at <= $1`, now)
	if err != nil {
		r.logger.Error("Failed to purge oauth states", zap.Error(err))
		return 0, err
	}
	return res.RowsAffected()
}
