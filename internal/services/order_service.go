package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	domain "github.com/anh26092005/web-thu-c-sub000/internal/domain"
	"github.com/anh26092005/web-thu-c-sub000/internal/repositories"
)

const orderIDPrefix = "ord_"

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidTransition indicates the requested status change is not allowed.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderCouponUnavailable indicates the applied coupon can no longer be redeemed.
	ErrOrderCouponUnavailable = errors.New("order: coupon unavailable")
	// ErrOrderUnavailable indicates the order store failed.
	ErrOrderUnavailable = errors.New("order: repository unavailable")

	// The following refine ErrOrderInvalidInput; errors carrying them match both.

	// ErrOrderTotalMismatch means the client total differs from the computed one.
	ErrOrderTotalMismatch = errors.New("order: total price mismatch")
	// ErrOrderPaymentMethod means the payment method is not offered.
	ErrOrderPaymentMethod = errors.New("order: unsupported payment method")
	// ErrOrderAmountOutOfRange means a line or cart amount does not fit the money type.
	ErrOrderAmountOutOfRange = errors.New("order: amount out of range")
	// ErrOrderPriceChanged means a cart price no longer matches the catalog.
	ErrOrderPriceChanged = errors.New("order: product price changed")
	// ErrOrderProductUnavailable means a cart product is missing from the catalog.
	ErrOrderProductUnavailable = errors.New("order: product unavailable")
)

// CouponRejectedError carries the customer-facing reason a coupon was refused at checkout.
type CouponRejectedError struct {
	Code   string
	Reason string
}

func (e *CouponRejectedError) Error() string {
	return fmt.Sprintf("order: coupon %s rejected: %s", e.Code, e.Reason)
}

func (e *CouponRejectedError) Unwrap() error {
	return ErrOrderCouponUnavailable
}

// OrderConfig holds checkout constants.
type OrderConfig struct {
	FlatShippingFee    int64
	CODDeliveryDays    int
	OnlineDeliveryDays int
	Currency           string
}

// OrderMetrics records placed orders.
type OrderMetrics interface {
	OrderPlaced(ctx context.Context, paymentMethod string, withCoupon bool)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
// Products is optional; when set it is the source of truth for unit prices.
type OrderServiceDeps struct {
	Orders               repositories.OrderRepository
	Coupons              CouponService
	Products             repositories.ProductRepository
	Queue                NotificationQueue
	Config               OrderConfig
	Clock                func() time.Time
	IDGenerator          func() string
	OrderNumberGenerator func() string
	Metrics              OrderMetrics
	Logger               func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders         repositories.OrderRepository
	coupons        CouponService
	queue          NotificationQueue
	products       repositories.ProductRepository
	cfg            OrderConfig
	clock          func() time.Time
	newID          func() string
	newOrderNumber func() string
	metrics        OrderMetrics
	logger         func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Coupons == nil {
		return nil, errors.New("order service: coupon service is required")
	}
	cfg := deps.Config
	if cfg.FlatShippingFee < 0 {
		return nil, errors.New("order service: flat shipping fee must not be negative")
	}
	if cfg.CODDeliveryDays <= 0 || cfg.OnlineDeliveryDays <= 0 {
		return nil, errors.New("order service: delivery day offsets must be positive")
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		cfg.Currency = "VND"
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	numberGen := deps.OrderNumberGenerator
	if numberGen == nil {
		numberGen = func() string {
			return uuid.New().String()
		}
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopOrderMetrics{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:   deps.Orders,
		coupons:  deps.Coupons,
		queue:    deps.Queue,
		products: deps.Products,
		cfg:      cfg,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:          idGen,
		newOrderNumber: numberGen,
		metrics:        metrics,
		logger:         logger,
	}, nil
}

// PlaceOrder validates the checkout, prices it, persists it together with the
// coupon redemption and queues the confirmation email.
func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	if err := validatePlaceOrder(cmd); err != nil {
		return Order{}, err
	}
	method, err := normalisePaymentMethod(cmd.PaymentMethod)
	if err != nil {
		return Order{}, err
	}

	now := s.clock()
	items := normaliseCartItems(cmd.Items)
	customer := *cmd.Customer

	if err := s.checkCatalogPrices(ctx, items); err != nil {
		return Order{}, err
	}
	original, ok := domain.CartSubtotal(items)
	if !ok || original > math.MaxInt64-s.cfg.FlatShippingFee {
		return Order{}, fmt.Errorf("%w: %w: cart subtotal", ErrOrderInvalidInput, ErrOrderAmountOutOfRange)
	}

	order := Order{
		ID:           orderIDPrefix + s.newID(),
		OrderNumber:  s.newOrderNumber(),
		CustomerName: strings.TrimSpace(customer.Name),
		Email:        strings.TrimSpace(customer.Email),
		Phone:        strings.TrimSpace(customer.Phone),
		UserID:       strings.TrimSpace(customer.UserID),
		ShippingAddress: ShippingAddress{
			Street:       sanitizePlainText(cmd.ShippingAddress.Street, 300),
			ProvinceCode: strings.TrimSpace(cmd.ShippingAddress.ProvinceCode),
			WardCode:     strings.TrimSpace(cmd.ShippingAddress.WardCode),
		},
		Products:      buildOrderProducts(items),
		OriginalPrice: original,
		ShippingFee:   s.cfg.FlatShippingFee,
		Currency:      s.cfg.Currency,
		PaymentMethod: method,
		OrderNotes:    sanitizePlainText(cmd.OrderNotes, maxNoteRunes),
		OrderDate:     now,
		UpdatedAt:     now,
	}

	var redemption *repositories.CouponRedemption
	if code := strings.TrimSpace(cmd.CouponCode); code != "" {
		validation, err := s.coupons.Validate(ctx, ValidateCouponCommand{
			Code:     code,
			Items:    items,
			Subtotal: original,
			UserID:   order.UserID,
		})
		if err != nil {
			return Order{}, err
		}
		if !validation.IsValid || validation.Coupon == nil {
			return Order{}, &CouponRejectedError{Code: strings.ToUpper(code), Reason: validation.ErrorMessage}
		}
		order.AmountDiscount = validation.DiscountAmount
		if validation.Coupon.DiscountType == domain.DiscountTypeFreeShipping {
			order.ShippingFee = 0
		}
		order.AppliedCoupon = validation.Coupon.ID
		order.CouponCode = validation.Coupon.Code
		redemption = &repositories.CouponRedemption{
			CouponID: validation.Coupon.ID,
			UserID:   order.UserID,
			At:       now,
		}
	}

	order.TotalPrice = order.OriginalPrice - order.AmountDiscount + order.ShippingFee
	if *cmd.TotalPrice != order.TotalPrice {
		return Order{}, fmt.Errorf("%w: %w: client %d, computed %d", ErrOrderInvalidInput, ErrOrderTotalMismatch, *cmd.TotalPrice, order.TotalPrice)
	}

	switch method {
	case domain.PaymentMethodVNPay:
		order.IsPaid = true
		order.Status = domain.OrderStatusProcessing
		order.EstimatedDeliveryDate = now.AddDate(0, 0, s.cfg.OnlineDeliveryDays)
	default:
		order.IsPaid = false
		order.Status = domain.OrderStatusPending
		order.EstimatedDeliveryDate = now.AddDate(0, 0, s.cfg.CODDeliveryDays)
	}
	order.StatusHistory = []domain.StatusChange{{
		To:    order.Status,
		Actor: domain.StatusActorCheckout,
		At:    now,
	}}

	if err := s.orders.Create(ctx, order, redemption); err != nil {
		return Order{}, mapOrderCreateError(err)
	}

	s.metrics.OrderPlaced(ctx, string(method), redemption != nil)
	s.logger(ctx, "order.placed", map[string]any{
		"orderId":       order.ID,
		"orderNumber":   order.OrderNumber,
		"paymentMethod": string(method),
		"coupon":        order.CouponCode,
		"total":         order.TotalPrice,
	})
	s.enqueueConfirmation(ctx, order)

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}
	return order, nil
}

// UpdateStatus applies an admin status change. Repeating the current status
// with notes only updates the notes.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(string(cmd.Status))))
	if !domain.ValidOrderStatus(target) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}
	actor := cmd.Actor
	if actor == "" {
		actor = domain.StatusActorAdmin
	}

	var notes *string
	if cmd.Notes != nil {
		notes = valuePtr(sanitizePlainText(*cmd.Notes, maxNoteRunes))
	}

	now := s.clock()
	var previous domain.OrderStatus
	updated, err := s.orders.Update(ctx, orderID, func(order *domain.Order) error {
		previous = order.Status
		if target == order.Status && notes != nil {
			order.Notes = *notes
			order.UpdatedAt = now
			return nil
		}
		if !domain.CanTransition(actor, order.Status, target) {
			return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, order.Status, target)
		}
		note := ""
		if notes != nil {
			order.Notes = *notes
			note = *notes
		}
		applyStatusTransition(order, target, actor, note, now)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderInvalidTransition) {
			return Order{}, err
		}
		return Order{}, mapOrderRepositoryError(err)
	}

	s.logger(ctx, "order.status.changed", map[string]any{
		"orderId": orderID,
		"from":    string(previous),
		"to":      string(updated.Status),
		"actor":   string(actor),
	})
	return updated, nil
}

func (s *orderService) enqueueConfirmation(ctx context.Context, order Order) {
	if s.queue == nil {
		return
	}
	job := OrderConfirmationJob{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Email:       order.Email,
		QueuedAt:    s.clock(),
	}
	if err := s.queue.PublishOrderConfirmation(ctx, job); err != nil {
		s.logger(ctx, "order.notification.enqueue.failed", map[string]any{
			"orderId": order.ID,
			"error":   err,
		})
	}
}

// applyStatusTransition moves the order to target, stamps the matching
// timestamp and appends the audit entry. Callers check CanTransition first.
func applyStatusTransition(order *domain.Order, target domain.OrderStatus, actor domain.StatusActor, note string, now time.Time) {
	from := order.Status
	order.Status = target
	order.UpdatedAt = now
	switch target {
	case domain.OrderStatusShipped:
		if order.ShippedAt == nil {
			order.ShippedAt = valuePtr(now)
		}
	case domain.OrderStatusDelivered:
		order.DeliveredAt = valuePtr(now)
		if order.PaymentMethod == domain.PaymentMethodCOD {
			order.IsPaid = true
		}
	case domain.OrderStatusCancelled:
		if order.CancelledAt == nil {
			order.CancelledAt = valuePtr(now)
		}
	}
	order.StatusHistory = append(order.StatusHistory, domain.StatusChange{
		From:  from,
		To:    target,
		Actor: actor,
		Note:  note,
		At:    now,
	})
}

func validatePlaceOrder(cmd PlaceOrderCommand) error {
	var missing []string
	if len(cmd.Items) == 0 {
		missing = append(missing, "cart")
	}
	if cmd.TotalPrice == nil {
		missing = append(missing, "totalPrice")
	}
	if c := cmd.Customer; c == nil || strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Email) == "" || strings.TrimSpace(c.Phone) == "" {
		missing = append(missing, "customerInfo")
	}
	if a := cmd.ShippingAddress; a == nil || strings.TrimSpace(a.Street) == "" || strings.TrimSpace(a.ProvinceCode) == "" || strings.TrimSpace(a.WardCode) == "" {
		missing = append(missing, "shippingAddress")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrOrderInvalidInput, strings.Join(missing, ", "))
	}
	for i, item := range cmd.Items {
		if strings.TrimSpace(item.ID) == "" {
			return fmt.Errorf("%w: cart item %d has no id", ErrOrderInvalidInput, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: cart item %s has quantity %d", ErrOrderInvalidInput, item.ID, item.Quantity)
		}
		if item.Price < 0 {
			return fmt.Errorf("%w: cart item %s has negative price", ErrOrderInvalidInput, item.ID)
		}
		if _, ok := item.CheckedSubtotal(); !ok {
			return fmt.Errorf("%w: %w: cart item %s", ErrOrderInvalidInput, ErrOrderAmountOutOfRange, item.ID)
		}
	}
	if *cmd.TotalPrice < 0 {
		return fmt.Errorf("%w: total price must not be negative", ErrOrderInvalidInput)
	}
	return nil
}

func normalisePaymentMethod(method domain.PaymentMethod) (domain.PaymentMethod, error) {
	switch m := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(method)))); m {
	case "":
		return domain.PaymentMethodCOD, nil
	case domain.PaymentMethodCOD, domain.PaymentMethodVNPay:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %w: %q", ErrOrderInvalidInput, ErrOrderPaymentMethod, method)
	}
}

// checkCatalogPrices requires every cart line to carry the catalog unit price,
// so the frozen snapshot and the gateway amount never come from the client
// alone. Catalog names replace the cart's display names.
func (s *orderService) checkCatalogPrices(ctx context.Context, items []CartItem) error {
	if s.products == nil {
		return nil
	}
	cache := make(map[string]domain.Product, len(items))
	for i := range items {
		product, ok := cache[items[i].ID]
		if !ok {
			found, err := s.products.FindByID(ctx, items[i].ID)
			if err != nil {
				if isRepositoryNotFound(err) {
					return fmt.Errorf("%w: %w: %s", ErrOrderInvalidInput, ErrOrderProductUnavailable, items[i].ID)
				}
				return fmt.Errorf("%w: product %s: %v", ErrOrderUnavailable, items[i].ID, err)
			}
			product = found
			cache[items[i].ID] = product
		}
		if product.Price != items[i].Price {
			s.logger(ctx, "order.price.mismatch", map[string]any{
				"productId": items[i].ID,
				"cart":      items[i].Price,
				"catalog":   product.Price,
			})
			return fmt.Errorf("%w: %w: %s", ErrOrderInvalidInput, ErrOrderPriceChanged, items[i].ID)
		}
		if name := strings.TrimSpace(product.Name); name != "" {
			items[i].Name = name
		}
	}
	return nil
}

func normaliseCartItems(items []CartItem) []CartItem {
	out := make([]CartItem, len(items))
	for i, item := range items {
		out[i] = CartItem{
			ID:         strings.TrimSpace(item.ID),
			Name:       strings.TrimSpace(item.Name),
			Price:      item.Price,
			Quantity:   item.Quantity,
			Categories: item.Categories,
			Variant:    strings.TrimSpace(item.Variant),
		}
	}
	return out
}

func buildOrderProducts(items []CartItem) []OrderProduct {
	products := make([]OrderProduct, 0, len(items))
	for _, item := range items {
		products = append(products, OrderProduct{
			ProductRef: item.ID,
			Name:       item.Name,
			UnitPrice:  item.Price,
			Quantity:   item.Quantity,
		})
	}
	return products
}

func mapOrderCreateError(err error) error {
	var redemptionErr *repositories.CouponRedemptionError
	if errors.As(err, &redemptionErr) {
		reason := msgCouponNotFound
		switch redemptionErr.Code {
		case repositories.CouponRedemptionExhausted:
			reason = msgCouponExhausted
		case repositories.CouponRedemptionUserExhausted:
			reason = msgCouponUserExhausted
		}
		return &CouponRejectedError{Code: redemptionErr.CouponID, Reason: reason}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
}

func mapOrderRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict(), repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return err
}

type noopOrderMetrics struct{}

func (noopOrderMetrics) OrderPlaced(context.Context, string, bool) {}

func valuePtr[T any](v T) *T {
	return &v
}
