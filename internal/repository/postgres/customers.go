package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/pkg/errors"
)

type customerRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *sql.DB, logger *zap.Logger) *customerRepository {
	return &customerRepository{
		db:     db,
		logger: logger,
	}
}

func (r *customerRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	query := `
		SELECT id, tenant_id, name, email, total_spent, created_at, updated_at
		FROM customers
		WHERE id = $1
	`

	var c domain.Customer
	var email sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID,
		&c.TenantID,
		&c.Name,
		&email,
		&c.TotalSpent,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "customer", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get customer by ID", zap.Error(err))
		return nil, err
	}
	if email.Valid {
		c.Email = &email.String
	}
	return &c, nil
}

func (r *customerRepository) ListByTenantID(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*domain.Customer, error) {
	query := `
		SELECT id, tenant_id, name, email, total_spent, created_at, updated_at
		FROM customers
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list customers", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var customers []*domain.Customer
	for rows.Next() {
		var c domain.Customer
		var email sql.NullString
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &email, &c.TotalSpent, &c.CreatedAt, &c.UpdatedAt); err != nil {
			r.logger.Error("Failed to scan customer", zap.Error(err))
			return nil, err
		}
		if email.Valid {
			c.Email = &email.String
		}
		customers = append(customers, &c)
	}
	return customers, rows.Err()
}

func (r *customerRepository) Create(ctx context.Context, customer *domain.Customer) error {
	query := `
		INSERT INTO customers (id, tenant_id, name, email, total_spent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	now := time.Now()
	if customer.ID == uuid.Nil {
		customer.ID = uuid.New()
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = now
	}
	customer.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		customer.ID,
		customer.TenantID,
		customer.Name,
		customer.Email,
		customer.TotalSpent,
		customer.CreatedAt,
		customer.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create customer", zap.Error(err))
		return err
	}
	return nil
}

// AddSpend increments the customer's cumulative spend; negative amounts record refunds
func (r *customerRepository) AddSpend(ctx context.Context, id uuid.UUID, amount int64) error {
	query := `
		UPDATE customers
		SET total_spent = GREATEST(total_spent + $2, 0), updated_at = $3
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, amount, time.Now())
	if err != nil {
		r.logger.Error("Failed to add customer spend", zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errors.ErrNotFound{Resource: "customer", ID: id.String()}
	}
	return nil
}
