package services

import (
	"context"
	"net/url"
	"time"

	domain "github.com/anh26092005/web-thu-c-sub000/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Coupon          = domain.Coupon
	CartItem        = domain.CartItem
	Order           = domain.Order
	OrderProduct    = domain.OrderProduct
	ShippingAddress = domain.ShippingAddress
)

// CouponService validates coupon codes against a cart and administers coupons.
type CouponService interface {
	Validate(ctx context.Context, cmd ValidateCouponCommand) (CouponValidation, error)
	CreateCoupon(ctx context.Context, cmd CreateCouponCommand) (Coupon, error)
	DeactivateCoupon(ctx context.Context, code string) (Coupon, error)
}

// OrderService places orders and drives the order status workflow.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
}

// PaymentReconciler handles VNPay instant payment notifications and checkout redirects.
type PaymentReconciler interface {
	Reconcile(ctx context.Context, params url.Values) ReconcileResult
	CreatePaymentURL(ctx context.Context, cmd CreatePaymentURLCommand) (string, error)
}

// NotificationService delivers order confirmations.
type NotificationService interface {
	SendOrderConfirmation(ctx context.Context, orderID string) error
}

// NotificationQueue enqueues confirmation jobs after an order commits.
type NotificationQueue interface {
	PublishOrderConfirmation(ctx context.Context, job OrderConfirmationJob) error
}

// SystemService reports dependency health.
type SystemService interface {
	HealthReport(ctx context.Context) (domain.SystemHealthReport, error)
}

type ValidateCouponCommand struct {
	Code     string
	Items    []CartItem
	Subtotal int64
	UserID   string
}

// CouponValidation is the outcome of a coupon check. Business rule failures
// are reported through IsValid and ErrorMessage, never as errors.
type CouponValidation struct {
	IsValid          bool
	DiscountAmount   int64
	ShippingDiscount int64
	ErrorMessage     string
	Coupon           *Coupon
}

type CreateCouponCommand struct {
	Code                 string
	Name                 string
	Description          string
	DiscountType         domain.DiscountType
	DiscountValue        float64
	MaxDiscountAmount    *int64
	MinOrderAmount       *int64
	UsageLimit           *int
	UserLimit            *int
	StartDate            *time.Time
	EndDate              *time.Time
	ApplicableCategories []string
	ApplicableProducts   []string
	ExcludedProducts     []string
}

type CustomerInfo struct {
	Name   string
	Email  string
	Phone  string
	UserID string
}

type ShippingAddressInput struct {
	Street       string
	ProvinceCode string
	WardCode     string
}

// PlaceOrderCommand carries a checkout. Pointer fields distinguish "missing"
// from zero values.
type PlaceOrderCommand struct {
	Items            []CartItem
	TotalPrice       *int64
	OriginalPrice    *int64
	DiscountAmount   int64
	ShippingDiscount int64
	CouponCode       string
	Customer         *CustomerInfo
	ShippingAddress  *ShippingAddressInput
	PaymentMethod    domain.PaymentMethod
	OrderNotes       string
}

type UpdateOrderStatusCommand struct {
	OrderID string
	Status  domain.OrderStatus
	Notes   *string
	Actor   domain.StatusActor
}

// ReconcileResult is the acknowledgement returned to the payment gateway.
type ReconcileResult struct {
	Code    string
	Message string
}

type CreatePaymentURLCommand struct {
	OrderID  string
	ClientIP string
	BankCode string
	Locale   string
}

// OrderConfirmationJob is the queued request to send a confirmation email.
type OrderConfirmationJob struct {
	OrderID     string
	OrderNumber string
	Email       string
	QueuedAt    time.Time
}
