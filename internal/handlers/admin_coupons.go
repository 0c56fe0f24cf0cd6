package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/anh26092005/web-thu-c-sub000/internal/domain"
	"github.com/anh26092005/web-thu-c-sub000/internal/platform/httpx"
	"github.com/anh26092005/web-thu-c-sub000/internal/services"
)

const deactivateCouponSuffix = ":deactivate"

// AdminCouponHandlers exposes coupon administration.
type AdminCouponHandlers struct {
	coupons services.CouponService
}

// NewAdminCouponHandlers constructs admin coupon handlers.
func NewAdminCouponHandlers(coupons services.CouponService) *AdminCouponHandlers {
	return &AdminCouponHandlers{coupons: coupons}
}

// Routes registers admin coupon endpoints under the provided router.
func (h *AdminCouponHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/coupons", h.createCoupon)
	r.Post("/coupons/{couponAction}", h.couponAction)
}

type createCouponRequest struct {
	Code                 string     `json:"code"`
	Name                 string     `json:"name"`
	Description          string     `json:"description"`
	DiscountType         string     `json:"discountType"`
	DiscountValue        float64    `json:"discountValue"`
	MaxDiscountAmount    *int64     `json:"maxDiscountAmount"`
	MinOrderAmount       *int64     `json:"minOrderAmount"`
	UsageLimit           *int       `json:"usageLimit"`
	UserLimit            *int       `json:"userLimit"`
	StartDate            *time.Time `json:"startDate"`
	EndDate              *time.Time `json:"endDate"`
	ApplicableCategories []string   `json:"applicableCategories"`
	ApplicableProducts   []string   `json:"applicableProducts"`
	ExcludedProducts     []string   `json:"excludedProducts"`
}

func (h *AdminCouponHandlers) createCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_unavailable", "coupon service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createCouponRequest
	if err := decodeJSONBody(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), bodyErrorStatus(err)))
		return
	}

	coupon, err := h.coupons.CreateCoupon(ctx, services.CreateCouponCommand{
		Code:                 req.Code,
		Name:                 req.Name,
		Description:          req.Description,
		DiscountType:         domain.DiscountType(strings.ToLower(strings.TrimSpace(req.DiscountType))),
		DiscountValue:        req.DiscountValue,
		MaxDiscountAmount:    req.MaxDiscountAmount,
		MinOrderAmount:       req.MinOrderAmount,
		UsageLimit:           req.UsageLimit,
		UserLimit:            req.UserLimit,
		StartDate:            req.StartDate,
		EndDate:              req.EndDate,
		ApplicableCategories: req.ApplicableCategories,
		ApplicableProducts:   req.ApplicableProducts,
		ExcludedProducts:     req.ExcludedProducts,
	})
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildCouponPayload(coupon))
}

// couponAction dispatches "{code}:deactivate"; chi cannot split a segment on ':'.
func (h *AdminCouponHandlers) couponAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	segment := chi.URLParam(r, "couponAction")
	code, ok := strings.CutSuffix(segment, deactivateCouponSuffix)
	if !ok || strings.TrimSpace(code) == "" {
		httpx.WriteError(ctx, w, httpx.NewError(errorNotFoundCode, "unknown coupon action", http.StatusNotFound))
		return
	}
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_unavailable", "coupon service unavailable", http.StatusServiceUnavailable))
		return
	}

	coupon, err := h.coupons.DeactivateCoupon(ctx, code)
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildCouponPayload(coupon))
}

func writeCouponError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCouponInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCouponNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_not_found", "coupon not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCouponConflict):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_conflict", "coupon code already exists", http.StatusConflict))
	case errors.Is(err, services.ErrCouponUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_unavailable", "coupon store unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("coupon_error", "failed to process coupon request", http.StatusInternalServerError))
	}
}
