package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/anh26092005/web-thu-c-sub000/internal/platform/requestctx"
	"github.com/anh26092005/web-thu-c-sub000/internal/services"
)

type stubPaymentReconciler struct {
	reconcileFn func(context.Context, url.Values) services.ReconcileResult
	urlFn       func(context.Context, services.CreatePaymentURLCommand) (string, error)
}

func (s *stubPaymentReconciler) Reconcile(ctx context.Context, params url.Values) services.ReconcileResult {
	if s.reconcileFn != nil {
		return s.reconcileFn(ctx, params)
	}
	return services.ReconcileResult{Code: services.RspCodeUnknownError, Message: "Lỗi không xác định, vui lòng gửi lại"}
}

func (s *stubPaymentReconciler) CreatePaymentURL(ctx context.Context, cmd services.CreatePaymentURLCommand) (string, error) {
	if s.urlFn != nil {
		return s.urlFn(ctx, cmd)
	}
	return "", errors.New("not implemented")
}

func newPaymentRouter(svc services.PaymentReconciler) http.Handler {
	h := NewPaymentHandlers(svc)
	return NewRouter(
		WithPaymentRoutes(h.Routes),
		WithWebhookRoutes(h.WebhookRoutes),
	)
}

func TestPaymentHandlersIPNAlwaysOK(t *testing.T) {
	codes := []services.ReconcileResult{
		{Code: services.RspCodeSuccess, Message: "Xác nhận thành công"},
		{Code: services.RspCodeInvalidChecksum, Message: "Chữ ký không hợp lệ"},
		{Code: services.RspCodeUnknownError, Message: "Lỗi không xác định, vui lòng gửi lại"},
	}
	for _, want := range codes {
		var gotParams url.Values
		svc := &stubPaymentReconciler{
			reconcileFn: func(_ context.Context, params url.Values) services.ReconcileResult {
				gotParams = params
				return want
			},
		}
		target := "/api/v1/webhooks/vnpay/ipn?vnp_TxnRef=abc&vnp_Amount=33000000&vnp_OrderInfo=Thanh+toan+don+hang&vnp_SecureHash=ff"
		rr := httptest.NewRecorder()
		newPaymentRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if gotParams.Get("vnp_OrderInfo") != "Thanh toan don hang" || gotParams.Get("vnp_SecureHash") != "ff" {
			t.Fatalf("unexpected params %v", gotParams)
		}
		var body map[string]string
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if body["RspCode"] != want.Code || body["Message"] != want.Message {
			t.Fatalf("expected %+v, got %v", want, body)
		}
	}
}

func TestPaymentHandlersIPNWithoutService(t *testing.T) {
	router := NewRouter(WithWebhookRoutes(NewPaymentHandlers(nil).WebhookRoutes))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/webhooks/vnpay/ipn", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"RspCode":"99"`) {
		t.Fatalf("expected RspCode 99, got %s", rr.Body.String())
	}
}

func TestPaymentHandlersCreatePaymentURL(t *testing.T) {
	var captured services.CreatePaymentURLCommand
	svc := &stubPaymentReconciler{
		urlFn: func(_ context.Context, cmd services.CreatePaymentURLCommand) (string, error) {
			captured = cmd
			return "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html?vnp_TxnRef=abc", nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/vnpay/url", strings.NewReader(`{"orderId":"ord_1","bankCode":" NCB "}`))
	req = req.WithContext(requestctx.WithClientIP(req.Context(), "203.0.113.9"))
	rr := httptest.NewRecorder()
	newPaymentRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.BankCode != "NCB" || captured.ClientIP != "203.0.113.9" {
		t.Fatalf("unexpected command %+v", captured)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !strings.HasPrefix(body["paymentUrl"], "https://sandbox.vnpayment.vn/") {
		t.Fatalf("unexpected payment url %q", body["paymentUrl"])
	}
}

func TestPaymentHandlersCreatePaymentURLErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{err: fmt.Errorf("%w: order id is required", services.ErrPaymentInvalidInput), status: http.StatusBadRequest},
		{err: fmt.Errorf("%w: missing", services.ErrOrderNotFound), status: http.StatusNotFound},
		{err: fmt.Errorf("%w: payment method is cod", services.ErrPaymentNotApplicable), status: http.StatusConflict},
		{err: services.ErrOrderUnavailable, status: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		svc := &stubPaymentReconciler{
			urlFn: func(context.Context, services.CreatePaymentURLCommand) (string, error) {
				return "", tc.err
			},
		}
		rr := httptest.NewRecorder()
		newPaymentRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/payments/vnpay/url", strings.NewReader(`{"orderId":"ord_1"}`)))
		if rr.Code != tc.status {
			t.Fatalf("%v: expected status %d, got %d", tc.err, tc.status, rr.Code)
		}
	}
}
