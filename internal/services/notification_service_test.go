package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/anh26092005/web-thu-c-sub000/internal/domain"
)

type stubProductRepo struct {
	mu     sync.Mutex
	findFn func(context.Context, string) (domain.Product, error)
	calls  []string
}

func (s *stubProductRepo) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	s.mu.Lock()
	s.calls = append(s.calls, productID)
	s.mu.Unlock()
	if s.findFn != nil {
		return s.findFn(ctx, productID)
	}
	return domain.Product{}, &stubRepoErr{notFound: true}
}

type stubRegionRepo struct {
	provinceFn func(context.Context, string) (domain.Region, error)
	wardFn     func(context.Context, string) (domain.Region, error)
}

func (s *stubRegionRepo) FindProvince(ctx context.Context, code string) (domain.Region, error) {
	if s.provinceFn != nil {
		return s.provinceFn(ctx, code)
	}
	return domain.Region{}, &stubRepoErr{notFound: true}
}

func (s *stubRegionRepo) FindWard(ctx context.Context, code string) (domain.Region, error) {
	if s.wardFn != nil {
		return s.wardFn(ctx, code)
	}
	return domain.Region{}, &stubRepoErr{notFound: true}
}

type stubMailer struct {
	sendFn   func(context.Context, OrderConfirmation) (MailerResult, error)
	payloads []OrderConfirmation
}

func (s *stubMailer) SendOrderConfirmation(ctx context.Context, payload OrderConfirmation) (MailerResult, error) {
	s.payloads = append(s.payloads, payload)
	if s.sendFn != nil {
		return s.sendFn(ctx, payload)
	}
	return MailerResult{Success: true}, nil
}

type captureNotificationMetrics struct {
	outcomes []string
}

func (c *captureNotificationMetrics) NotificationDelivered(_ context.Context, outcome string) {
	c.outcomes = append(c.outcomes, outcome)
}

func confirmationOrder() domain.Order {
	return domain.Order{
		ID:           "ord_1",
		OrderNumber:  "num-1",
		CustomerName: "Nguyễn Văn A",
		Email:        "a@example.com",
		ShippingAddress: domain.ShippingAddress{
			Street:       "12 Lê Lợi",
			ProvinceCode: "79",
			WardCode:     "26734",
		},
		Products: []domain.OrderProduct{
			{ProductRef: "prod_1", Name: "Panadol", UnitPrice: 120000, Quantity: 2},
			{ProductRef: "prod_2", Name: "Vitamin C", UnitPrice: 60000, Quantity: 1},
		},
		OriginalPrice: 300000,
		ShippingFee:   30000,
		TotalPrice:    330000,
		PaymentMethod: domain.PaymentMethodCOD,
		OrderDate:     time.Date(2025, 3, 10, 2, 30, 0, 0, time.UTC),
	}
}

func TestNotificationServiceSendsResolvedConfirmation(t *testing.T) {
	products := &stubProductRepo{findFn: func(_ context.Context, id string) (domain.Product, error) {
		if id == "prod_1" {
			return domain.Product{ID: id, Name: "Panadol Extra 500mg", Price: 125000}, nil
		}
		return domain.Product{}, errors.New("timeout")
	}}
	regions := &stubRegionRepo{
		provinceFn: func(context.Context, string) (domain.Region, error) {
			return domain.Region{Code: "79", Name: "Thành phố Hồ Chí Minh"}, nil
		},
		wardFn: func(context.Context, string) (domain.Region, error) {
			return domain.Region{Code: "26734", Name: "Phường Bến Thành"}, nil
		},
	}
	mailer := &stubMailer{}
	metrics := &captureNotificationMetrics{}
	svc, err := NewNotificationService(NotificationServiceDeps{
		Orders: &stubOrderRepo{findFn: func(context.Context, string) (domain.Order, error) {
			return confirmationOrder(), nil
		}},
		Products: products,
		Regions:  regions,
		Mailer:   mailer,
		Metrics:  metrics,
	})
	if err != nil {
		t.Fatalf("NewNotificationService: %v", err)
	}

	if err := svc.SendOrderConfirmation(context.Background(), "ord_1"); err != nil {
		t.Fatalf("SendOrderConfirmation: %v", err)
	}
	if len(products.calls) != 2 {
		t.Fatalf("expected a lookup per product, got %v", products.calls)
	}
	if len(mailer.payloads) != 1 {
		t.Fatalf("expected one mail, got %d", len(mailer.payloads))
	}
	payload := mailer.payloads[0]
	if payload.Items[0].Name != "Panadol Extra 500mg" || payload.Items[0].UnitPrice != "120.000₫" || payload.Items[0].Subtotal != "240.000₫" {
		t.Fatalf("expected resolved name with frozen price, got %+v", payload.Items[0])
	}
	if payload.Items[1].Name != "Vitamin C" {
		t.Fatalf("expected snapshot fallback for failed lookup, got %+v", payload.Items[1])
	}
	if payload.ShippingAddress != "12 Lê Lợi, Phường Bến Thành, Thành phố Hồ Chí Minh" {
		t.Fatalf("unexpected address %q", payload.ShippingAddress)
	}
	if payload.TotalPrice != "330.000₫" || payload.ShippingFee != "30.000₫" {
		t.Fatalf("unexpected totals %+v", payload)
	}
	if payload.PaymentMethod != "Thanh toán khi nhận hàng (COD)" {
		t.Fatalf("unexpected payment label %q", payload.PaymentMethod)
	}
	if len(metrics.outcomes) != 1 || metrics.outcomes[0] != NotificationOutcomeSent {
		t.Fatalf("unexpected outcomes %v", metrics.outcomes)
	}
}

func TestNotificationServiceFallsBackToCodes(t *testing.T) {
	mailer := &stubMailer{}
	svc, err := NewNotificationService(NotificationServiceDeps{
		Orders: &stubOrderRepo{findFn: func(context.Context, string) (domain.Order, error) {
			return confirmationOrder(), nil
		}},
		Regions: &stubRegionRepo{},
		Mailer:  mailer,
	})
	if err != nil {
		t.Fatalf("NewNotificationService: %v", err)
	}
	if err := svc.SendOrderConfirmation(context.Background(), "ord_1"); err != nil {
		t.Fatalf("SendOrderConfirmation: %v", err)
	}
	if got := mailer.payloads[0].ShippingAddress; got != "12 Lê Lợi, 26734, 79" {
		t.Fatalf("expected region codes as fallback, got %q", got)
	}
}

func TestNotificationServiceReportsUndelivered(t *testing.T) {
	tests := []struct {
		name    string
		sendFn  func(context.Context, OrderConfirmation) (MailerResult, error)
		outcome string
	}{
		{
			name: "transport error",
			sendFn: func(context.Context, OrderConfirmation) (MailerResult, error) {
				return MailerResult{}, errors.New("connection refused")
			},
			outcome: NotificationOutcomeFailed,
		},
		{
			name: "relay rejected",
			sendFn: func(context.Context, OrderConfirmation) (MailerResult, error) {
				return MailerResult{Success: false, Message: "mailbox full"}, nil
			},
			outcome: NotificationOutcomeRejected,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			metrics := &captureNotificationMetrics{}
			svc, err := NewNotificationService(NotificationServiceDeps{
				Orders: &stubOrderRepo{findFn: func(context.Context, string) (domain.Order, error) {
					return confirmationOrder(), nil
				}},
				Mailer:  &stubMailer{sendFn: tc.sendFn},
				Metrics: metrics,
			})
			if err != nil {
				t.Fatalf("NewNotificationService: %v", err)
			}
			err = svc.SendOrderConfirmation(context.Background(), "ord_1")
			if !errors.Is(err, ErrNotificationUndelivered) {
				t.Fatalf("expected ErrNotificationUndelivered, got %v", err)
			}
			if len(metrics.outcomes) != 1 || metrics.outcomes[0] != tc.outcome {
				t.Fatalf("expected outcome %s, got %v", tc.outcome, metrics.outcomes)
			}
		})
	}
}

func TestNotificationServiceMissingOrder(t *testing.T) {
	mailer := &stubMailer{}
	svc, err := NewNotificationService(NotificationServiceDeps{
		Orders: &stubOrderRepo{},
		Mailer: mailer,
	})
	if err != nil {
		t.Fatalf("NewNotificationService: %v", err)
	}
	if err := svc.SendOrderConfirmation(context.Background(), "ord_404"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if err := svc.SendOrderConfirmation(context.Background(), " "); !errors.Is(err, ErrNotificationInvalidInput) {
		t.Fatalf("expected ErrNotificationInvalidInput, got %v", err)
	}
	if len(mailer.payloads) != 0 {
		t.Fatalf("expected no mail")
	}
}
