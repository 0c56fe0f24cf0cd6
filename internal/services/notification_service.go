package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/anh26092005/web-thu-c-sub000/internal/domain"
	"github.com/anh26092005/web-thu-c-sub000/internal/repositories"
)

// Notification delivery outcomes reported to metrics.
const (
	NotificationOutcomeSent     = "sent"
	NotificationOutcomeRejected = "rejected"
	NotificationOutcomeFailed   = "failed"
	NotificationOutcomeDropped  = "dropped"
)

var (
	// ErrNotificationInvalidInput indicates the job referenced no order.
	ErrNotificationInvalidInput = errors.New("notification: invalid input")
	// ErrNotificationUndelivered indicates the mailer did not accept the message.
	ErrNotificationUndelivered = errors.New("notification: not delivered")
)

// OrderConfirmation is the structured payload handed to the mailer.
type OrderConfirmation struct {
	OrderID           string                  `json:"orderId"`
	OrderNumber       string                  `json:"orderNumber"`
	CustomerName      string                  `json:"customerName"`
	Email             string                  `json:"email"`
	Phone             string                  `json:"phone"`
	Items             []OrderConfirmationItem `json:"items"`
	ShippingAddress   string                  `json:"shippingAddress"`
	PaymentMethod     string                  `json:"paymentMethod"`
	IsPaid            bool                    `json:"isPaid"`
	OriginalPrice     string                  `json:"originalPrice"`
	Discount          string                  `json:"discount"`
	ShippingFee       string                  `json:"shippingFee"`
	TotalPrice        string                  `json:"totalPrice"`
	CouponCode        string                  `json:"couponCode,omitempty"`
	OrderNotes        string                  `json:"orderNotes,omitempty"`
	OrderDate         time.Time               `json:"orderDate"`
	EstimatedDelivery time.Time               `json:"estimatedDelivery"`
}

// OrderConfirmationItem is one rendered line of the confirmation.
type OrderConfirmationItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	Subtotal  string `json:"subtotal"`
}

// MailerResult mirrors the relay's acknowledgement.
type MailerResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Mailer delivers order confirmations.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, payload OrderConfirmation) (MailerResult, error)
}

// NotificationMetrics records delivery outcomes.
type NotificationMetrics interface {
	NotificationDelivered(ctx context.Context, outcome string)
}

// NotificationServiceDeps bundles collaborators for the confirmation sender.
type NotificationServiceDeps struct {
	Orders   repositories.OrderRepository
	Products repositories.ProductRepository
	Regions  repositories.RegionRepository
	Mailer   Mailer
	Metrics  NotificationMetrics
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type notificationService struct {
	orders   repositories.OrderRepository
	products repositories.ProductRepository
	regions  repositories.RegionRepository
	mailer   Mailer
	metrics  NotificationMetrics
	logger   func(context.Context, string, map[string]any)
}

var _ NotificationService = (*notificationService)(nil)

// NewNotificationService constructs the confirmation sender. Product and
// region lookups are optional; without them the order snapshot is used as is.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Orders == nil {
		return nil, errors.New("notification service: order repository is required")
	}
	if deps.Mailer == nil {
		return nil, errors.New("notification service: mailer is required")
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopNotificationMetrics{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &notificationService{
		orders:   deps.Orders,
		products: deps.Products,
		regions:  deps.Regions,
		mailer:   deps.Mailer,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// SendOrderConfirmation loads the order, resolves display names and hands the
// payload to the mailer. A returned error means the job should be retried.
func (s *notificationService) SendOrderConfirmation(ctx context.Context, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrNotificationInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		s.metrics.NotificationDelivered(ctx, NotificationOutcomeFailed)
		return mapOrderRepositoryError(err)
	}

	payload := s.buildConfirmation(ctx, order)
	result, err := s.mailer.SendOrderConfirmation(ctx, payload)
	if err != nil {
		s.metrics.NotificationDelivered(ctx, NotificationOutcomeFailed)
		s.logger(ctx, "notification.order_confirmation.failed", map[string]any{
			"orderId": order.ID,
			"error":   err,
		})
		return fmt.Errorf("%w: %v", ErrNotificationUndelivered, err)
	}
	if !result.Success {
		s.metrics.NotificationDelivered(ctx, NotificationOutcomeRejected)
		s.logger(ctx, "notification.order_confirmation.rejected", map[string]any{
			"orderId": order.ID,
			"message": result.Message,
		})
		return fmt.Errorf("%w: %s", ErrNotificationUndelivered, result.Message)
	}

	s.metrics.NotificationDelivered(ctx, NotificationOutcomeSent)
	s.logger(ctx, "notification.order_confirmation.sent", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
	})
	return nil
}

func (s *notificationService) buildConfirmation(ctx context.Context, order Order) OrderConfirmation {
	items := s.resolveItems(ctx, order.Products)
	address := s.resolveAddress(ctx, order.ShippingAddress)

	return OrderConfirmation{
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber,
		CustomerName:      order.CustomerName,
		Email:             order.Email,
		Phone:             order.Phone,
		Items:             items,
		ShippingAddress:   formatAddress(address),
		PaymentMethod:     paymentMethodLabel(order.PaymentMethod),
		IsPaid:            order.IsPaid,
		OriginalPrice:     formatVND(order.OriginalPrice),
		Discount:          formatVND(order.AmountDiscount),
		ShippingFee:       formatVND(order.ShippingFee),
		TotalPrice:        formatVND(order.TotalPrice),
		CouponCode:        order.CouponCode,
		OrderNotes:        order.OrderNotes,
		OrderDate:         order.OrderDate,
		EstimatedDelivery: order.EstimatedDeliveryDate,
	}
}

// resolveItems looks up current product names concurrently. A failed lookup
// keeps the name and price frozen on the order.
func (s *notificationService) resolveItems(ctx context.Context, products []OrderProduct) []OrderConfirmationItem {
	resolved := make([]OrderProduct, len(products))
	copy(resolved, products)

	if s.products != nil {
		var wg sync.WaitGroup
		for i := range resolved {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				product, err := s.products.FindByID(ctx, resolved[i].ProductRef)
				if err != nil {
					s.logger(ctx, "notification.product.lookup_failed", map[string]any{
						"productId": resolved[i].ProductRef,
						"error":     err,
					})
					return
				}
				if name := strings.TrimSpace(product.Name); name != "" {
					resolved[i].Name = name
				}
				if resolved[i].UnitPrice == 0 {
					resolved[i].UnitPrice = product.Price
				}
			}(i)
		}
		wg.Wait()
	}

	items := make([]OrderConfirmationItem, 0, len(resolved))
	for _, p := range resolved {
		name := p.Name
		if name == "" {
			name = p.ProductRef
		}
		items = append(items, OrderConfirmationItem{
			ProductID: p.ProductRef,
			Name:      name,
			Quantity:  p.Quantity,
			UnitPrice: formatVND(p.UnitPrice),
			Subtotal:  formatVND(p.UnitPrice * int64(p.Quantity)),
		})
	}
	return items
}

func (s *notificationService) resolveAddress(ctx context.Context, address ShippingAddress) ShippingAddress {
	if s.regions == nil {
		return address
	}
	if address.ProvinceName == "" && address.ProvinceCode != "" {
		if region, err := s.regions.FindProvince(ctx, address.ProvinceCode); err == nil {
			address.ProvinceName = region.Name
		} else {
			s.logger(ctx, "notification.region.lookup_failed", map[string]any{
				"provinceCode": address.ProvinceCode,
				"error":        err,
			})
		}
	}
	if address.WardName == "" && address.WardCode != "" {
		if region, err := s.regions.FindWard(ctx, address.WardCode); err == nil {
			address.WardName = region.Name
		} else {
			s.logger(ctx, "notification.region.lookup_failed", map[string]any{
				"wardCode": address.WardCode,
				"error":    err,
			})
		}
	}
	return address
}

func formatAddress(address ShippingAddress) string {
	ward := address.WardName
	if ward == "" {
		ward = address.WardCode
	}
	province := address.ProvinceName
	if province == "" {
		province = address.ProvinceCode
	}
	parts := make([]string, 0, 3)
	for _, part := range []string{address.Street, ward, province} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}

func paymentMethodLabel(method domain.PaymentMethod) string {
	switch method {
	case domain.PaymentMethodVNPay:
		return "Thanh toán qua VNPay"
	case domain.PaymentMethodCOD:
		return "Thanh toán khi nhận hàng (COD)"
	default:
		return string(method)
	}
}

type noopNotificationMetrics struct{}

func (noopNotificationMetrics) NotificationDelivered(context.Context, string) {}
