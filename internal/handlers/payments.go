package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/anh26092005/web-thu-c-sub000/internal/platform/httpx"
	"github.com/anh26092005/web-thu-c-sub000/internal/platform/requestctx"
	"github.com/anh26092005/web-thu-c-sub000/internal/services"
)

// PaymentHandlers exposes the VNPay checkout redirect and the gateway callback.
type PaymentHandlers struct {
	payments services.PaymentReconciler
}

// NewPaymentHandlers constructs payment handlers.
func NewPaymentHandlers(payments services.PaymentReconciler) *PaymentHandlers {
	return &PaymentHandlers{payments: payments}
}

// Routes registers payment endpoints under the /payments group.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/vnpay/url", h.createPaymentURL)
}

// WebhookRoutes registers the gateway callback under the /webhooks group.
func (h *PaymentHandlers) WebhookRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/vnpay/ipn", h.vnpayIPN)
}

type paymentURLRequest struct {
	OrderID  string `json:"orderId"`
	BankCode string `json:"bankCode,omitempty"`
	Locale   string `json:"locale,omitempty"`
}

type paymentURLResponse struct {
	PaymentURL string `json:"paymentUrl"`
}

// ipnResponse field names follow the VNPay merchant integration contract.
type ipnResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

func (h *PaymentHandlers) createPaymentURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req paymentURLRequest
	if err := decodeJSONBody(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), bodyErrorStatus(err)))
		return
	}

	paymentURL, err := h.payments.CreatePaymentURL(ctx, services.CreatePaymentURLCommand{
		OrderID:  req.OrderID,
		ClientIP: requestctx.ClientIP(ctx),
		BankCode: strings.TrimSpace(req.BankCode),
		Locale:   strings.TrimSpace(req.Locale),
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPaymentInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		case errors.Is(err, services.ErrOrderNotFound):
			httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		case errors.Is(err, services.ErrPaymentNotApplicable):
			httpx.WriteError(ctx, w, httpx.NewError("payment_not_applicable", err.Error(), http.StatusConflict))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to create payment url", http.StatusInternalServerError))
		}
		return
	}
	httpx.WriteJSON(w, http.StatusOK, paymentURLResponse{PaymentURL: paymentURL})
}

// vnpayIPN always answers 200; the outcome travels in RspCode.
func (h *PaymentHandlers) vnpayIPN(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		httpx.WriteJSON(w, http.StatusOK, ipnResponse{RspCode: services.RspCodeUnknownError, Message: services.RspMessage(services.RspCodeUnknownError)})
		return
	}
	result := h.payments.Reconcile(r.Context(), r.URL.Query())
	httpx.WriteJSON(w, http.StatusOK, ipnResponse{RspCode: result.Code, Message: result.Message})
}
