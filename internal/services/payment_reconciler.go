package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	domain "github.com/anh26092005/web-thu-c-sub000/internal/domain"
	"github.com/anh26092005/web-thu-c-sub000/internal/payments/vnpay"
	"github.com/anh26092005/web-thu-c-sub000/internal/repositories"
)

// IPN acknowledgement codes understood by VNPay.
const (
	RspCodeSuccess          = "00"
	RspCodeOrderNotFound    = "01"
	RspCodeAlreadyConfirmed = "02"
	RspCodeInvalidAmount    = "04"
	RspCodeInvalidChecksum  = "97"
	RspCodeUnknownError     = "99"
)

var rspMessages = map[string]string{
	RspCodeSuccess:          "Xác nhận thành công",
	RspCodeOrderNotFound:    "Không tìm thấy đơn hàng",
	RspCodeAlreadyConfirmed: "Đơn hàng đã được xác nhận thanh toán",
	RspCodeInvalidAmount:    "Số tiền thanh toán không khớp",
	RspCodeInvalidChecksum:  "Chữ ký không hợp lệ",
	RspCodeUnknownError:     "Lỗi không xác định, vui lòng gửi lại",
}

// RspMessage returns the message paired with an IPN response code.
func RspMessage(code string) string {
	if msg, ok := rspMessages[code]; ok {
		return msg
	}
	return rspMessages[RspCodeUnknownError]
}

const paymentProviderVNPay = "vnpay"

var (
	// ErrPaymentInvalidInput signals a malformed payment request.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentNotApplicable indicates the order cannot be paid online.
	ErrPaymentNotApplicable = errors.New("payment: order not payable online")

	errAlreadyReconciled = errors.New("payment: order already reconciled")
)

// PaymentGateway signs checkout redirects and verifies gateway callbacks.
type PaymentGateway interface {
	Verify(params url.Values) bool
	PaymentURL(req vnpay.PaymentRequest) (string, error)
}

// PaymentMetrics records IPN outcomes.
type PaymentMetrics interface {
	PaymentCallback(ctx context.Context, rspCode string)
}

// PaymentReconcilerDeps bundles collaborators for the reconciler.
type PaymentReconcilerDeps struct {
	Orders  repositories.OrderRepository
	Gateway PaymentGateway
	Clock   func() time.Time
	Metrics PaymentMetrics
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type paymentReconciler struct {
	orders  repositories.OrderRepository
	gateway PaymentGateway
	clock   func() time.Time
	metrics PaymentMetrics
	logger  func(context.Context, string, map[string]any)
}

var _ PaymentReconciler = (*paymentReconciler)(nil)

// NewPaymentReconciler constructs the VNPay reconciler.
func NewPaymentReconciler(deps PaymentReconcilerDeps) (PaymentReconciler, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment reconciler: order repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment reconciler: gateway is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopPaymentMetrics{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &paymentReconciler{
		orders:  deps.Orders,
		gateway: deps.Gateway,
		clock: func() time.Time {
			return clock().UTC()
		},
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Reconcile verifies an IPN callback and settles the referenced order. The
// signature is checked before the order is read so a forged callback never
// reaches the store.
func (r *paymentReconciler) Reconcile(ctx context.Context, params url.Values) ReconcileResult {
	code := r.reconcile(ctx, params)
	r.metrics.PaymentCallback(ctx, code)
	return ReconcileResult{Code: code, Message: RspMessage(code)}
}

func (r *paymentReconciler) reconcile(ctx context.Context, params url.Values) string {
	if !r.gateway.Verify(params) {
		r.logger(ctx, "payment.ipn.checksum_failed", map[string]any{
			"txnRef": params.Get("vnp_TxnRef"),
		})
		return RspCodeInvalidChecksum
	}

	txnRef := strings.TrimSpace(params.Get("vnp_TxnRef"))
	if txnRef == "" {
		return RspCodeOrderNotFound
	}
	order, err := r.orders.FindByOrderNumber(ctx, txnRef)
	if err != nil {
		if isRepositoryNotFound(err) {
			return RspCodeOrderNotFound
		}
		r.logger(ctx, "payment.ipn.lookup_failed", map[string]any{
			"txnRef": txnRef,
			"error":  err,
		})
		return RspCodeUnknownError
	}

	amount, err := vnpay.ParseAmount(params.Get("vnp_Amount"))
	if err != nil || amount != order.TotalPrice {
		r.logger(ctx, "payment.ipn.amount_mismatch", map[string]any{
			"orderId":  order.ID,
			"expected": order.TotalPrice,
			"received": params.Get("vnp_Amount"),
		})
		return RspCodeInvalidAmount
	}

	now := r.clock()
	result := buildPaymentResult(params, amount, now)
	succeeded := result.ResponseCode == vnpay.ResponseCodeSuccess &&
		(params.Get("vnp_TransactionStatus") == "" || params.Get("vnp_TransactionStatus") == vnpay.ResponseCodeSuccess)

	updated, err := r.orders.Update(ctx, order.ID, func(current *domain.Order) error {
		if current.PaymentResult != nil {
			return errAlreadyReconciled
		}
		target, paid, ok := settlementFor(current.Status, succeeded)
		if !ok {
			return errAlreadyReconciled
		}
		if target != current.Status {
			if !domain.CanTransition(domain.StatusActorPaymentWebhook, current.Status, target) {
				return errAlreadyReconciled
			}
			applyStatusTransition(current, target, domain.StatusActorPaymentWebhook, "vnp_ResponseCode="+result.ResponseCode, now)
		}
		current.IsPaid = paid
		if !paid {
			result.PaidAt = nil
		}
		current.PaymentResult = &result
		current.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, errAlreadyReconciled) {
			return RspCodeAlreadyConfirmed
		}
		if isRepositoryNotFound(err) {
			return RspCodeOrderNotFound
		}
		r.logger(ctx, "payment.ipn.persist_failed", map[string]any{
			"orderId": order.ID,
			"error":   err,
		})
		return RspCodeUnknownError
	}

	r.logger(ctx, "payment.ipn.reconciled", map[string]any{
		"orderId":       updated.ID,
		"status":        string(updated.Status),
		"isPaid":        updated.IsPaid,
		"responseCode":  result.ResponseCode,
		"transactionNo": result.TransactionNo,
	})
	return RspCodeSuccess
}

// CreatePaymentURL returns the signed checkout redirect for a VNPay order.
func (r *paymentReconciler) CreatePaymentURL(ctx context.Context, cmd CreatePaymentURLCommand) (string, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return "", fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	order, err := r.orders.FindByID(ctx, orderID)
	if err != nil {
		return "", mapOrderRepositoryError(err)
	}
	if order.PaymentMethod != domain.PaymentMethodVNPay {
		return "", fmt.Errorf("%w: payment method is %s", ErrPaymentNotApplicable, order.PaymentMethod)
	}
	if order.PaymentResult != nil || order.Status.Terminal() {
		return "", fmt.Errorf("%w: order %s already settled", ErrPaymentNotApplicable, order.ID)
	}

	paymentURL, err := r.gateway.PaymentURL(vnpay.PaymentRequest{
		TxnRef:   order.OrderNumber,
		Amount:   order.TotalPrice,
		ClientIP: cmd.ClientIP,
		BankCode: cmd.BankCode,
		Locale:   cmd.Locale,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPaymentInvalidInput, err)
	}
	return paymentURL, nil
}

// settlementFor returns the status and paid flag an IPN outcome leads to.
// Only orders still awaiting settlement are eligible.
func settlementFor(current domain.OrderStatus, succeeded bool) (domain.OrderStatus, bool, bool) {
	switch current {
	case domain.OrderStatusPending:
		if succeeded {
			return domain.OrderStatusProcessing, true, true
		}
		return domain.OrderStatusCancelled, false, true
	case domain.OrderStatusProcessing:
		if succeeded {
			return domain.OrderStatusProcessing, true, true
		}
		return domain.OrderStatusPending, false, true
	default:
		return current, false, false
	}
}

func buildPaymentResult(params url.Values, amount int64, now time.Time) domain.PaymentResult {
	raw := make(map[string]string, len(params))
	for key := range params {
		raw[key] = params.Get(key)
	}
	result := domain.PaymentResult{
		Provider:      paymentProviderVNPay,
		ResponseCode:  strings.TrimSpace(params.Get("vnp_ResponseCode")),
		TransactionNo: strings.TrimSpace(params.Get("vnp_TransactionNo")),
		BankCode:      strings.TrimSpace(params.Get("vnp_BankCode")),
		Amount:        amount,
		Raw:           raw,
		ReceivedAt:    now,
	}
	if payDate := params.Get("vnp_PayDate"); payDate != "" {
		if paidAt, err := vnpay.ParseDate(payDate); err == nil {
			result.PaidAt = &paidAt
		}
	}
	if result.PaidAt == nil {
		result.PaidAt = valuePtr(now)
	}
	return result
}

type noopPaymentMetrics struct{}

func (noopPaymentMetrics) PaymentCallback(context.Context, string) {}
