package repositories

import (
	"context"
	"time"

	domain "github.com/anh26092005/web-thu-c-sub000/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CouponRepository stores coupons keyed by their uppercase code.
type CouponRepository interface {
	Insert(ctx context.Context, coupon domain.Coupon) error
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	SetActive(ctx context.Context, code string, active bool, at time.Time) (domain.Coupon, error)
}

// CouponUsageRepository exposes per-user coupon counters.
type CouponUsageRepository interface {
	// CountByUser returns zero when the user never redeemed the coupon.
	CountByUser(ctx context.Context, couponID, userID string) (int, error)
}

// CouponRedemption asks OrderRepository.Create to consume one coupon use in
// the same transaction as the order insert.
type CouponRedemption struct {
	CouponID string
	UserID   string
	At       time.Time
}

// OrderMutation edits an order read inside a transaction. It may run more than
// once when the store retries, so it must be free of side effects.
type OrderMutation func(order *domain.Order) error

// OrderRepository persists orders.
type OrderRepository interface {
	// Create inserts the order. When redemption is set the coupon and per-user
	// counters are checked and incremented atomically with the insert; a limit
	// reached at write time fails with *CouponRedemptionError.
	Create(ctx context.Context, order domain.Order, redemption *CouponRedemption) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	// Update re-reads the order in a transaction, applies mutate and writes the result.
	// Errors returned by mutate abort the write and are returned unchanged.
	Update(ctx context.Context, orderID string, mutate OrderMutation) (domain.Order, error)
}

// ProductRepository reads catalog products.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
}

// RegionRepository resolves administrative region codes to display names.
type RegionRepository interface {
	FindProvince(ctx context.Context, code string) (domain.Region, error)
	FindWard(ctx context.Context, code string) (domain.Region, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
