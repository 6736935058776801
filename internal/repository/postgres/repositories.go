package postgres

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/crypto"
	"github.com/jafarshop/sellerhub/internal/repository"
)

// NewRepositories creates a new set of repositories
func NewRepositories(db *sql.DB, cipher *crypto.TokenCipher, logger *zap.Logger) *repository.Repositories {
	return &repository.Repositories{
		Tenant:          NewTenantRepository(db, logger),
		Customer:        NewCustomerRepository(db, logger),
		BusinessAccount: NewBusinessAccountRepository(db, cipher, logger),
		OAuthState:      NewOAuthStateRepository(db, logger),
		Idempotency:     NewIdempotencyRepository(db, logger),
	}
}
