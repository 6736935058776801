package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/internal/repository"
	"github.com/jafarshop/sellerhub/pkg/errors"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	defaultOrderLookback = 7 * 24 * time.Hour
)

// OrderQuery selects orders of one shop
type OrderQuery struct {
	ShopID   string
	Since    time.Time
	PageSize int
}

// Dashboard summarises one connected shop
type Dashboard struct {
	Account      *domain.BusinessAccount
	Profile      *domain.ShopProfile
	RecentOrders []domain.MarketplaceOrder
	OrderCounts  map[domain.OrderStatus]int
	NeedsReauth  bool
}

// SellerService runs seller operations against connected shops of a tenant
type SellerService struct {
	brokers  Brokers
	accounts repository.BusinessAccountRepository
	logger   *zap.Logger
	now      func() time.Time
}

// NewSellerService creates the seller operations service
func NewSellerService(brokers Brokers, repos *repository.Repositories, logger *zap.Logger) *SellerService {
	return &SellerService{
		brokers:  brokers,
		accounts: repos.BusinessAccount,
		logger:   logger,
		now:      time.Now,
	}
}

// owned resolves the broker and account, hiding other tenants' shops
func (s *SellerService) owned(ctx context.Context, tenantID uuid.UUID, platform domain.Platform, shopID string) (*TokenBroker, *domain.BusinessAccount, error) {
	broker, err := s.brokers.Get(platform)
	if err != nil {
		return nil, nil, err
	}
	if shopID == "" {
		return nil, nil, &errors.ErrValidation{
			Message: "shop_id is required",
			Fields:  map[string]string{"shop_id": "required"},
		}
	}
	account, err := s.accounts.GetByShopID(ctx, platform, shopID)
	if err != nil {
		return nil, nil, err
	}
	if account.TenantID != tenantID {
		s.logger.Warn("Tenant requested a shop it does not own",
			zap.String("tenant_id", tenantID.String()),
			zap.String("platform", string(platform)),
			zap.String("shop_id", shopID),
		)
		return nil, nil, &errors.ErrNotFound{Resource: "business account", ID: shopID}
	}
	return broker, account, nil
}

// ListAccounts returns the tenant's shops on platform
func (s *SellerService) ListAccounts(ctx context.Context, tenantID uuid.UUID, platform domain.Platform) ([]*domain.BusinessAccount, error) {
	if _, err := s.brokers.Get(platform); err != nil {
		return nil, err
	}
	return s.accounts.ListByTenantID(ctx, tenantID, platform)
}

// ListOrders reads recent orders of a shop from the platform
func (s *SellerService) ListOrders(ctx context.Context, tenantID uuid.UUID, platform domain.Platform, q OrderQuery) ([]domain.MarketplaceOrder, error) {
	broker, _, err := s.owned(ctx, tenantID, platform, q.ShopID)
	if err != nil {
		return nil, err
	}

	if q.PageSize <= 0 {
		q.PageSize = defaultOrderPageSize
	}
	if q.PageSize > maxOrderPageSize {
		q.PageSize = maxOrderPageSize
	}
	if q.Since.IsZero() {
		q.Since = s.now().Add(-defaultOrderLookback)
	}

	provider := broker.Provider()
	body, err := broker.MakeAuthenticatedRequest(ctx, q.ShopID, provider.ListOrdersCall(q.ShopID, q.Since, q.PageSize))
	if err != nil {
		return nil, err
	}
	orders, err := provider.ParseOrders(body)
	if err != nil {
		return nil, &errors.ErrProvider{Platform: platform, Op: "list orders", Message: "malformed order list"}
	}
	return orders, nil
}

// UpdateOrderStatus moves an order to target on the platform. When current is
// known the transition is checked before any call is made.
func (s *SellerService) UpdateOrderStatus(ctx context.Context, tenantID uuid.UUID, platform domain.Platform, shopID, orderID string, current, target domain.OrderStatus) error {
	if orderID == "" {
		return &errors.ErrValidation{Message: "order id is required", Fields: map[string]string{"id": "required"}}
	}
	target = target.Normalize()
	if !target.IsValid() || target == domain.OrderStatusUnknown {
		return &errors.ErrValidation{
			Message: fmt.Sprintf("unknown order status %q", target),
			Fields:  map[string]string{"status": "invalid"},
		}
	}
	if current != "" {
		current = current.Normalize()
		if current.IsValid() && !current.CanTransitionTo(target) {
			return &errors.ErrInvalidStateTransition{From: current, To: target}
		}
	}

	broker, _, err := s.owned(ctx, tenantID, platform, shopID)
	if err != nil {
		return err
	}
	call, err := broker.Provider().UpdateOrderStatusCall(shopID, orderID, target)
	if err != nil {
		return err
	}
	if _, err := broker.MakeAuthenticatedRequest(ctx, shopID, call); err != nil {
		return err
	}

	s.logger.Info("Order status updated",
		zap.String("platform", string(platform)),
		zap.String("shop_id", shopID),
		zap.String("order_id", orderID),
		zap.String("status", string(target)),
	)
	return nil
}

// Sync refreshes the stored shop profile from the platform and stamps the
// last sync time
func (s *SellerService) Sync(ctx context.Context, tenantID uuid.UUID, platform domain.Platform, shopID string) (*domain.BusinessAccount, error) {
	broker, _, err := s.owned(ctx, tenantID, platform, shopID)
	if err != nil {
		return nil, err
	}
	profile, err := s.fetchProfile(ctx, broker, shopID)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.UpdateProfile(ctx, platform, shopID, profile, s.now().UTC()); err != nil {
		return nil, err
	}
	return s.accounts.GetByShopID(ctx, platform, shopID)
}

// SyncAfterConnect refreshes the profile of a just-connected shop. Failures are
// logged only.
func (s *SellerService) SyncAfterConnect(ctx context.Context, account *domain.BusinessAccount) {
	if account == nil {
		return
	}
	if _, err := s.Sync(ctx, account.TenantID, account.Platform, account.ShopID); err != nil {
		s.logger.Warn("Initial shop sync failed",
			zap.String("platform", string(account.Platform)),
			zap.String("shop_id", account.ShopID),
			zap.Error(err),
		)
	}
}

func (s *SellerService) fetchProfile(ctx context.Context, broker *TokenBroker, shopID string) (*domain.ShopProfile, error) {
	provider := broker.Provider()
	body, err := broker.MakeAuthenticatedRequest(ctx, shopID, provider.ShopInfoCall(shopID))
	if err != nil {
		return nil, err
	}
	profile, err := provider.ParseShopInfo(shopID, body)
	if err != nil {
		return nil, &errors.ErrProvider{Platform: provider.Platform(), Op: "shop info", Message: "malformed shop profile"}
	}
	return profile, nil
}

// Dashboard gathers account status, shop profile and recent orders. A shop
// that needs reauthorization still gets its stored account back.
func (s *SellerService) Dashboard(ctx context.Context, tenantID uuid.UUID, platform domain.Platform, shopID string) (*Dashboard, error) {
	broker, account, err := s.owned(ctx, tenantID, platform, shopID)
	if err != nil {
		return nil, err
	}
	dash := &Dashboard{Account: account, OrderCounts: map[domain.OrderStatus]int{}}

	profile, err := s.fetchProfile(ctx, broker, shopID)
	var reauth *errors.ErrReauthorizationRequired
	if stderrors.As(err, &reauth) {
		dash.NeedsReauth = true
		return dash, nil
	}
	if err != nil {
		return nil, err
	}
	dash.Profile = profile

	orders, err := s.ListOrders(ctx, tenantID, platform, OrderQuery{ShopID: shopID})
	if err != nil {
		return nil, err
	}
	dash.RecentOrders = orders
	for _, o := range orders {
		dash.OrderCounts[o.Status]++
	}

	// the account may have been refreshed by the calls above
	if fresh, err := s.accounts.GetByShopID(ctx, platform, shopID); err == nil {
		dash.Account = fresh
	}
	return dash, nil
}

// Disconnect clears the shop's tokens
func (s *SellerService) Disconnect(ctx context.Context, tenantID uuid.UUID, platform domain.Platform, shopID string) error {
	broker, _, err := s.owned(ctx, tenantID, platform, shopID)
	if err != nil {
		return err
	}
	return broker.DisconnectShop(ctx, shopID)
}
