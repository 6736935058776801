package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/internal/repository"
	"github.com/jafarshop/sellerhub/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// ValidateTiers checks that a tier table is usable by ComputeProgress:
// non-empty, first threshold 0, thresholds strictly increasing.
func ValidateTiers(tiers []domain.VipTier) error {
	if len(tiers) == 0 {
		return &errors.ErrInvalidArgument{Argument: "tiers", Message: "tier table is empty"}
	}
	if tiers[0].Threshold != 0 {
		return &errors.ErrInvalidArgument{Argument: "tiers", Message: "first tier threshold must be 0"}
	}
	for i := 1; i < len(tiers); i++ {
		if tiers[i].Threshold <= tiers[i-1].Threshold {
			return &errors.ErrInvalidArgument{
				Argument: "tiers",
				Message:  fmt.Sprintf("threshold of %s must be greater than %s", tiers[i].ID, tiers[i-1].ID),
			}
		}
	}
	return nil
}

// ComputeProgress maps cumulative spend to the current tier, the next tier and
// how far the spend has come between the two. Thresholds are inclusive.
func ComputeProgress(totalSpent int64, tiers []domain.VipTier) (domain.VipProgress, error) {
	if totalSpent < 0 {
		return domain.VipProgress{}, &errors.ErrInvalidArgument{Argument: "total_spent", Message: "must not be negative"}
	}
	if err := ValidateTiers(tiers); err != nil {
		return domain.VipProgress{}, err
	}

	current := 0
	for i, t := range tiers {
		if t.Threshold <= totalSpent {
			current = i
		}
	}

	progress := domain.VipProgress{
		CurrentTier: tiers[current].Clone(),
		TotalSpent:  totalSpent,
	}

	if current == len(tiers)-1 {
		progress.ProgressToNext = 100
		return progress, nil
	}

	next := tiers[current+1].Clone()
	progress.NextTier = &next
	progress.AmountToNext = next.Threshold - totalSpent
	if progress.AmountToNext < 0 {
		progress.AmountToNext = 0
	}

	covered := decimal.NewFromInt(totalSpent - tiers[current].Threshold)
	gap := decimal.NewFromInt(next.Threshold - tiers[current].Threshold)
	pct := covered.Div(gap).Mul(hundred).Round(2)
	if pct.IsNegative() {
		pct = decimal.Zero
	}
	if pct.GreaterThan(hundred) {
		pct = hundred
	}
	progress.ProgressToNext = pct.InexactFloat64()

	return progress, nil
}

// DiscountFor returns the tier discount on amount, rounded half up
func DiscountFor(amount int64, tier domain.VipTier) int64 {
	if amount <= 0 || tier.DiscountPercent <= 0 {
		return 0
	}
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(int64(tier.DiscountPercent))).
		Div(hundred).
		Round(0).
		IntPart()
}

// VipService serves the loyalty tier table and per-customer progress
type VipService interface {
	Tiers() []domain.VipTier
	Progress(totalSpent int64) (domain.VipProgress, error)
	CustomerProgress(ctx context.Context, tenantID, customerID uuid.UUID) (*domain.Customer, domain.VipProgress, error)
}

type vipService struct {
	tiers  []domain.VipTier
	repos  *repository.Repositories
	logger *zap.Logger
}

// NewVipService creates a VIP service over a validated tier table
func NewVipService(tiers []domain.VipTier, repos *repository.Repositories, logger *zap.Logger) (VipService, error) {
	if err := ValidateTiers(tiers); err != nil {
		return nil, err
	}
	return &vipService{
		tiers:  domain.CloneVipTiers(tiers),
		repos:  repos,
		logger: logger,
	}, nil
}

func (s *vipService) Tiers() []domain.VipTier {
	return domain.CloneVipTiers(s.tiers)
}

func (s *vipService) Progress(totalSpent int64) (domain.VipProgress, error) {
	return ComputeProgress(totalSpent, s.tiers)
}

func (s *vipService) CustomerProgress(ctx context.Context, tenantID, customerID uuid.UUID) (*domain.Customer, domain.VipProgress, error) {
	customer, err := s.repos.Customer.GetByID(ctx, customerID)
	if err != nil {
		return nil, domain.VipProgress{}, err
	}
	// Other tenants' customers are reported as missing
	if customer.TenantID != tenantID {
		return nil, domain.VipProgress{}, &errors.ErrNotFound{Resource: "customer", ID: customerID.String()}
	}

	progress, err := ComputeProgress(customer.TotalSpent, s.tiers)
	if err != nil {
		s.logger.Warn("Customer has invalid spend total",
			zap.String("customer_id", customerID.String()),
			zap.Int64("total_spent", customer.TotalSpent),
		)
		return nil, domain.VipProgress{}, err
	}
	return customer, progress, nil
}
