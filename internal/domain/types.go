package domain

import (
	"math"
	"time"
)

// DiscountType enumerates the discount formulas a coupon can carry.
type DiscountType string

const (
	// DiscountTypePercentage discounts a percentage of the applicable subtotal, optionally capped.
	DiscountTypePercentage DiscountType = "percentage"
	// DiscountTypeFixedAmount discounts a fixed amount, never more than the applicable subtotal.
	DiscountTypeFixedAmount DiscountType = "fixed_amount"
	// DiscountTypeFreeShipping waives the flat shipping fee.
	DiscountTypeFreeShipping DiscountType = "free_shipping"
)

// Valid reports whether the discount type is one of the supported formulas.
func (t DiscountType) Valid() bool {
	switch t {
	case DiscountTypePercentage, DiscountTypeFixedAmount, DiscountTypeFreeShipping:
		return true
	default:
		return false
	}
}

// Coupon is a discount-granting code with eligibility rules. Monetary fields
// are whole VND.
type Coupon struct {
	ID                   string
	Code                 string
	Name                 string
	Description          string
	DiscountType         DiscountType
	DiscountValue        float64
	MaxDiscountAmount    *int64
	MinOrderAmount       *int64
	UsageLimit           *int
	UsageCount           int
	UserLimit            *int
	StartDate            time.Time
	EndDate              *time.Time
	IsActive             bool
	ApplicableCategories []string
	ApplicableProducts   []string
	ExcludedProducts     []string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// CouponUsage counts how many orders one user placed with one coupon.
type CouponUsage struct {
	CouponID    string
	UserID      string
	Count       int
	LastOrderID string
	LastUsedAt  time.Time
}

// CartItem is the client-held cart line submitted for coupon checks and checkout.
type CartItem struct {
	ID         string
	Name       string
	Price      int64
	Quantity   int
	Categories []string
	Variant    string
}

// CheckedSubtotal returns price multiplied by quantity. It reports false for
// negative inputs or a product outside int64.
func (i CartItem) CheckedSubtotal() (int64, bool) {
	if i.Price < 0 || i.Quantity < 0 {
		return 0, false
	}
	if i.Price == 0 || i.Quantity == 0 {
		return 0, true
	}
	if i.Price > math.MaxInt64/int64(i.Quantity) {
		return 0, false
	}
	return i.Price * int64(i.Quantity), true
}

// CartSubtotal sums line subtotals and reports false when any line or the
// running total leaves int64.
func CartSubtotal(items []CartItem) (int64, bool) {
	var total int64
	for _, item := range items {
		line, ok := item.CheckedSubtotal()
		if !ok || total > math.MaxInt64-line {
			return 0, false
		}
		total += line
	}
	return total, true
}

// PaymentMethod enumerates supported checkout payment paths.
type PaymentMethod string

const (
	// PaymentMethodCOD collects payment on delivery.
	PaymentMethodCOD PaymentMethod = "cod"
	// PaymentMethodVNPay pays online through the VNPay gateway.
	PaymentMethodVNPay PaymentMethod = "vnpay"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits confirmation or payment.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing indicates the order is confirmed and being prepared.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has been handed to the carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusOutForDelivery indicates the carrier is delivering the parcel.
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	// OrderStatusDelivered indicates the customer received the order.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no actor may move the order out of this status.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// StatusActor identifies who drives a status transition.
type StatusActor string

const (
	// StatusActorAdmin is a back-office user updating the order by hand.
	StatusActorAdmin StatusActor = "admin"
	// StatusActorPaymentWebhook is the payment gateway callback.
	StatusActorPaymentWebhook StatusActor = "payment_webhook"
	// StatusActorCheckout is the storefront placing the order.
	StatusActorCheckout StatusActor = "checkout"
)

// Order is a persisted checkout. Monetary fields are whole VND.
type Order struct {
	ID                    string
	OrderNumber           string
	CustomerName          string
	Email                 string
	Phone                 string
	UserID                string
	ShippingAddress       ShippingAddress
	Products              []OrderProduct
	TotalPrice            int64
	OriginalPrice         int64
	AmountDiscount        int64
	ShippingFee           int64
	Currency              string
	AppliedCoupon         string
	CouponCode            string
	PaymentMethod         PaymentMethod
	IsPaid                bool
	Status                OrderStatus
	OrderNotes            string
	Notes                 string
	PaymentResult         *PaymentResult
	StatusHistory         []StatusChange
	OrderDate             time.Time
	EstimatedDeliveryDate time.Time
	ShippedAt             *time.Time
	DeliveredAt           *time.Time
	CancelledAt           *time.Time
	UpdatedAt             time.Time
}

// ShippingAddress stores the street line and administrative region references.
// Names are resolved for notifications only.
type ShippingAddress struct {
	Street       string
	ProvinceCode string
	WardCode     string
	ProvinceName string
	WardName     string
}

// OrderProduct snapshots a purchased product at checkout time.
type OrderProduct struct {
	ProductRef string
	Name       string
	UnitPrice  int64
	Quantity   int
}

// PaymentResult records the raw gateway callback plus normalised fields.
type PaymentResult struct {
	Provider      string
	ResponseCode  string
	TransactionNo string
	BankCode      string
	Amount        int64
	Raw           map[string]string
	ReceivedAt    time.Time
	PaidAt        *time.Time
}

// StatusChange is one entry of the append-only status audit trail.
type StatusChange struct {
	From  OrderStatus
	To    OrderStatus
	Actor StatusActor
	Note  string
	At    time.Time
}

// Product is the catalog view needed to render order confirmations.
type Product struct {
	ID    string
	Name  string
	Price int64
}

// Region is a province or ward of the Vietnamese administrative hierarchy.
type Region struct {
	Code string
	Name string
	Kind string
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
