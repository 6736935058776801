package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/domain"
)

type idempotencyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIdempotencyRepository creates a new idempotency key repository
func NewIdempotencyRepository(db *sql.DB, logger *zap.Logger) *idempotencyRepository {
	return &idempotencyRepository{
		db:     db,
		logger: logger,
	}
}

func (r *idempotencyRepository) Get(ctx context.Context, tenantID uuid.UUID, key string) (*domain.IdempotencyRecord, error) {
	query := `
		SELECT key, tenant_id, request_hash, status_code, response, created_at
		FROM idempotency_keys
		WHERE tenant_id = $1 AND key = $2
	`

	var rec domain.IdempotencyRecord
	err := r.db.QueryRowContext(ctx, query, tenantID, key).Scan(
		&rec.Key,
		&rec.TenantID,
		&rec.RequestHash,
		&rec.StatusCode,
		&rec.Response,
		&rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get idempotency key", zap.Error(err))
		return nil, err
	}
	return &rec, nil
}

func (r *idempotencyRepository) Create(ctx context.Context, rec *domain.IdempotencyRecord) error {
	query := `
		INSERT INTO idempotency_keys (key, tenant_id, request_hash, status_code, response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, key) DO NOTHING
	`

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		rec.Key,
		rec.TenantID,
		rec.RequestHash,
		rec.StatusCode,
		rec.Response,
		rec.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create idempotency key", zap.Error(err))
		return err
	}
	return nil
}

func (r *idempotencyRepository) PurgeOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, before)
	if err != nil {
		r.logger.Error("Failed to purge idempotency keys", zap.Error(err))
		return 0, err
	}
	return res.RowsAffected()
}
