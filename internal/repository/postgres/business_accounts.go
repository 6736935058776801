package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/crypto"
	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/pkg/errors"
)

const businessAccountColumns = `
	id, tenant_id, platform, shop_id, partner_id, shop_name, region,
	access_token, refresh_token, token_expires_at, status, last_synced_at,
	created_at, updated_at
`

type businessAccountRepository struct {
	db     *sql.DB
	cipher *crypto.TokenCipher
	logger *zap.Logger
}

// NewBusinessAccountRepository creates a new business account repository.
// A nil cipher stores tokens unencrypted.
func NewBusinessAccountRepository(db *sql.DB, cipher *crypto.TokenCipher, logger *zap.Logger) *businessAccountRepository {
	return &businessAccountRepository{
		db:     db,
		cipher: cipher,
		logger: logger,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *businessAccountRepository) scan(row rowScanner) (*domain.BusinessAccount, error) {
	var a domain.BusinessAccount
	var platform, status string
	var region sql.NullString
	var expiresAt, lastSynced sql.NullTime
	var accessToken, refreshToken string

	if err := row.Scan(
		&a.ID,
		&a.TenantID,
		&platform,
		&a.ShopID,
		&a.PartnerID,
		&a.ShopName,
		&region,
		&accessToken,
		&refreshToken,
		&expiresAt,
		&status,
		&lastSynced,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}

	a.Platform = domain.Platform(platform)
	a.Status = domain.ConnectionStatus(status)
	if region.Valid {
		a.Region = &region.String
	}
	if expiresAt.Valid {
		a.TokenExpiresAt = &expiresAt.Time
	}
	if lastSynced.Valid {
		a.LastSyncedAt = &lastSynced.Time
	}

	var err error
	if a.AccessToken, err = r.cipher.DecryptString(accessToken); err != nil {
		return nil, fmt.Errorf("access token of %s/%s: %w", a.Platform, a.ShopID, err)
	}
	if a.RefreshToken, err = r.cipher.DecryptString(refreshToken); err != nil {
		return nil, fmt.Errorf("refresh token of %s/%s: %w", a.Platform, a.ShopID, err)
	}
	return &a, nil
}

func (r *businessAccountRepository) sealTokens(accessToken, refreshToken string) (string, string, error) {
	access, err := r.cipher.EncryptString(accessToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refresh, err := r.cipher.EncryptString(refreshToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	return access, refresh, nil
}

func (r *businessAccountRepository) GetByShopID(ctx context.Context, platform domain.Platform, shopID string) (*domain.BusinessAccount, error) {
	query := `SELECT ` + businessAccountColumns + `
		FROM business_accounts
		WHERE platform = $1 AND shop_id = $2
	`
	account, err := r.scan(r.db.QueryRowContext(ctx, query, string(platform), shopID))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "business account", ID: shopID}
	}
	if err != nil {
		r.logger.Error("Failed to get business account",
			zap.String("platform", string(platform)),
			zap.String("shop_id", shopID),
			zap.Error(err),
		)
		return nil, err
	}
	return account, nil
}

func (r *businessAccountRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.BusinessAccount, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list business accounts", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var accounts []*domain.BusinessAccount
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			r.logger.Error("Failed to scan business account", zap.Error(err))
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *businessAccountRepository) ListByTenantID(ctx context.Context, tenantID uuid.UUID, platform domain.Platform) ([]*domain.BusinessAccount, error) {
	query := `SELECT ` + businessAccountColumns + `
		FROM business_accounts
		WHERE tenant_id = $1 AND platform = $2
		ORDER BY created_at ASC
	`
	return r.list(ctx, query, tenantID, string(platform))
}

func (r *businessAccountRepository) ListExpiring(ctx context.Context, platform domain.Platform, before time.Time) ([]*domain.BusinessAccount, error) {
	query := `SELECT ` + businessAccountColumns + `
		FROM business_accounts
		WHERE platform = $1
		  AND status = 'connected'
		  AND token_expires_at IS NOT NULL
		  AND token_expires_at <= $2
		ORDER BY token_expires_at ASC
	`
	return r.list(ctx, query, string(platform), before)
}

func (r *businessAccountRepository) Upsert(ctx context.Context, account *domain.BusinessAccount) error {
	query := `
		INSERT INTO business_accounts (
			id, tenant_id, platform, shop_id, partner_id, shop_name, region,
			access_token, refresh_token, token_expires_at, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (platform, shop_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		RETURNING id, tenant_id, partner_id, shop_name, created_at
	`

	now := time.Now()
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.Status == "" {
		account.Status = domain.ConnectionStatusConnected
	}
	account.CreatedAt = now
	account.UpdatedAt = now

	access, refresh, err := r.sealTokens(account.AccessToken, account.RefreshToken)
	if err != nil {
		return err
	}

	err = r.db.QueryRowContext(ctx, query,
		account.ID,
		account.TenantID,
		string(account.Platform),
		account.ShopID,
		account.PartnerID,
		account.ShopName,
		account.Region,
		access,
		refresh,
		account.TokenExpiresAt,
		string(account.Status),
		account.CreatedAt,
		account.UpdatedAt,
	).Scan(&account.ID, &account.TenantID, &account.PartnerID, &account.ShopName, &account.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to upsert business account",
			zap.String("platform", string(account.Platform)),
			zap.String("shop_id", account.ShopID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (r *businessAccountRepository) UpdateTokens(ctx context.Context, platform domain.Platform, shopID, accessToken, refreshToken string, expiresAt *time.Time) error {
	query := `
		UPDATE business_accounts
		SET access_token = $3, refresh_token = $4, token_expires_at = $5, status = 'connected', updated_at = $6
		WHERE platform = $1 AND shop_id = $2
	`
	access, refresh, err := r.sealTokens(accessToken, refreshToken)
	if err != nil {
		return err
	}
	return r.exec(ctx, "update tokens", platform, shopID, query, string(platform), shopID, access, refresh, expiresAt, time.Now())
}

func (r *businessAccountRepository) UpdateProfile(ctx context.Context, platform domain.Platform, shopID string, profile *domain.ShopProfile, syncedAt time.Time) error {
	query := `
		UPDATE business_accounts
		SET shop_name = COALESCE(NULLIF($3, ''), shop_name),
		    region = COALESCE(NULLIF($4, ''), region),
		    last_synced_at = $5,
		    updated_at = $5
		WHERE platform = $1 AND shop_id = $2
	`
	var name, region string
	if profile != nil {
		name, region = profile.Name, profile.Region
	}
	return r.exec(ctx, "update profile", platform, shopID, query, string(platform), shopID, name, region, syncedAt)
}

func (r *businessAccountRepository) MarkDisconnected(ctx context.Context, platform domain.Platform, shopID string) error {
	query := `
		UPDATE business_accounts
		SET access_token = '', refresh_token = '', token_expires_at = NULL, status = 'disconnected', updated_at = $3
		WHERE platform = $1 AND shop_id = $2
	`
	return r.exec(ctx, "mark disconnected", platform, shopID, query, string(platform), shopID, time.Now())
}

func (r *businessAccountRepository) exec(ctx context.Context, op string, platform domain.Platform, shopID, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+op,
			zap.String("platform", string(platform)),
			zap.String("shop_id", shopID),
			zap.Error(err),
		)
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errors.ErrNotFound{Resource: "business account", ID: shopID}
	}
	return nil
}
