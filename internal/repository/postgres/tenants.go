package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/internal/repository"
	"github.com/jafarshop/sellerhub/pkg/errors"
)

type tenantRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *sql.DB, logger *zap.Logger) *tenantRepository {
	return &tenantRepository{
		db:     db,
		logger: logger,
	}
}

func (r *tenantRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Tenant, error) {
	// Lookup by SHA256, then verify with bcrypt
	query := `
		SELECT id, name, api_key_hash, is_active, created_at, updated_at
		FROM tenants
		WHERE is_active = true AND api_key_lookup = $1
	`
	var tenant domain.Tenant
	err := r.db.QueryRowContext(ctx, query, repository.APIKeyLookupHash(apiKey)).Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.APIKeyHash,
		&tenant.IsActive,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrUnauthorized{Message: "invalid API key"}
	}
	if err != nil {
		r.logger.Error("Failed to look up tenant by API key", zap.Error(err))
		return nil, err
	}

	if !repository.VerifyAPIKey(apiKey, tenant.APIKeyHash) {
		r.logger.Debug("API key lookup found tenant but bcrypt verification failed", zap.String("tenant_id", tenant.ID.String()))
		return nil, &errors.ErrUnauthorized{Message: "invalid API key"}
	}
	return &tenant, nil
}

func (r *tenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	query := `
		SELECT id, name, api_key_hash, is_active, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`

	var tenant domain.Tenant
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.APIKeyHash,
		&tenant.IsActive,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "tenant", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get tenant by ID", zap.Error(err))
		return nil, err
	}

	return &tenant, nil
}

func (r *tenantRepository) List(ctx context.Context) ([]*domain.Tenant, error) {
	query := `
		SELECT id, name, is_active, created_at, updated_at
		FROM tenants
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list tenants", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var tenants []*domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			r.logger.Error("Failed to scan tenant", zap.Error(err))
			return nil, err
		}
		tenants = append(tenants, &t)
	}
	return tenants, rows.Err()
}

func (r *tenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	query := `
		INSERT INTO tenants (id, name, api_key_hash, api_key_lookup, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	now := time.Now()
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = now
	}
	if tenant.UpdatedAt.IsZero() {
		tenant.UpdatedAt = now
	}

	var apiKeyLookup interface{}
	if tenant.APIKeyLookup != "" {
		apiKeyLookup = tenant.APIKeyLookup
	}
	_, err := r.db.ExecContext(ctx, query,
		tenant.ID,
		tenant.Name,
		tenant.APIKeyHash,
		apiKeyLookup,
		tenant.IsActive,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to create tenant", zap.Error(err))
		return err
	}

	return nil
}

func (r *tenantRepository) Update(ctx context.Context, tenant *domain.Tenant) error {
	query := `
		UPDATE tenants
		SET name = $2, api_key_hash = $3, is_active = $4, updated_at = $5
		WHERE id = $1
	`

	tenant.UpdatedAt = time.Now()

	res, err := r.db.ExecContext(ctx, query,
		tenant.ID,
		tenant.Name,
		tenant.APIKeyHash,
		tenant.IsActive,
		tenant.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to update tenant", zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errors.ErrNotFound{Resource: "tenant", ID: tenant.ID.String()}
	}

	return nil
}
