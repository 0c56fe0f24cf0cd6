package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const meterName = "github.com/anh26092005/web-thu-c-sub000/internal/platform/observability"

// Metrics records commerce counters through the global OpenTelemetry meter provider.
// A zero Metrics value is safe to use and records nothing.
type Metrics struct {
	couponValidations metric.Int64Counter
	ordersPlaced      metric.Int64Counter
	paymentCallbacks  metric.Int64Counter
	notifications     metric.Int64Counter
}

// MetricsOption customises metric registration.
type MetricsOption func(*metricsConfig)

type metricsConfig struct {
	meter  metric.Meter
	logger *zap.Logger
}

// WithMeter injects a custom meter, primarily for tests.
func WithMeter(m metric.Meter) MetricsOption {
	return func(cfg *metricsConfig) {
		cfg.meter = m
	}
}

// WithMetricsLogger sets the logger used to report registration failures.
func WithMetricsLogger(logger *zap.Logger) MetricsOption {
	return func(cfg *metricsConfig) {
		cfg.logger = logger
	}
}

// NewMetrics registers the counters. Instruments that fail to register are
// skipped and reported through the logger.
func NewMetrics(opts ...MetricsOption) *Metrics {
	cfg := metricsConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.meter == nil {
		cfg.meter = otel.GetMeterProvider().Meter(meterName)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	counter := func(name, description string) metric.Int64Counter {
		c, err := cfg.meter.Int64Counter(name, metric.WithDescription(description))
		if err != nil {
			cfg.logger.Warn("metrics: unable to register counter", zap.String("name", name), zap.Error(err))
			return nil
		}
		return c
	}

	return &Metrics{
		couponValidations: counter("coupons.validations", "Coupon validation attempts by outcome"),
		ordersPlaced:      counter("orders.placed", "Orders persisted by payment method"),
		paymentCallbacks:  counter("payments.vnpay.ipn", "VNPay IPN callbacks by response code"),
		notifications:     counter("notifications.order_confirmation", "Order confirmation deliveries by outcome"),
	}
}

// CouponValidated counts a validation attempt. reason is empty for valid coupons.
func (m *Metrics) CouponValidated(ctx context.Context, valid bool, reason string) {
	if m == nil || m.couponValidations == nil {
		return
	}
	m.couponValidations.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("valid", valid),
		attribute.String("reason", reason),
	))
}

// OrderPlaced counts a persisted order.
func (m *Metrics) OrderPlaced(ctx context.Context, paymentMethod string, withCoupon bool) {
	if m == nil || m.ordersPlaced == nil {
		return
	}
	m.ordersPlaced.Add(ctx, 1, metric.WithAttributes(
		attribute.String("payment_method", paymentMethod),
		attribute.Bool("coupon", withCoupon),
	))
}

// PaymentCallback counts an IPN response code.
func (m *Metrics) PaymentCallback(ctx context.Context, rspCode string) {
	if m == nil || m.paymentCallbacks == nil {
		return
	}
	m.paymentCallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("rsp_code", rspCode)))
}

// NotificationDelivered counts a confirmation attempt outcome (sent, retry, dropped).
func (m *Metrics) NotificationDelivered(ctx context.Context, outcome string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
