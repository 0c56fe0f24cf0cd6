package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/anh26092005/web-thu-c-sub000/internal/domain"
	"github.com/anh26092005/web-thu-c-sub000/internal/platform/httpx"
	"github.com/anh26092005/web-thu-c-sub000/internal/platform/requestctx"
	"github.com/anh26092005/web-thu-c-sub000/internal/services"
)

const msgTooManyCouponAttempts = "Bạn đã thử quá nhiều mã giảm giá, vui lòng thử lại sau"

// CouponHandlers exposes the storefront coupon check.
type CouponHandlers struct {
	coupons services.CouponService
	limiter *couponAttemptLimiter
}

// CouponHandlerOption customises CouponHandlers.
type CouponHandlerOption func(*CouponHandlers)

// WithCouponRateLimit caps validation attempts per client address within window.
func WithCouponRateLimit(limit int, window time.Duration, clock func() time.Time) CouponHandlerOption {
	return func(h *CouponHandlers) {
		h.limiter = newCouponAttemptLimiter(limit, window, clock)
	}
}

// NewCouponHandlers constructs coupon handlers.
func NewCouponHandlers(coupons services.CouponService, opts ...CouponHandlerOption) *CouponHandlers {
	h := &CouponHandlers{coupons: coupons}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers coupon endpoints under the provided router.
func (h *CouponHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/validate", h.validateCoupon)
}

type cartItemRequest struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Price      int64    `json:"price"`
	Quantity   int      `json:"quantity"`
	Categories []string `json:"categories,omitempty"`
	Variant    string   `json:"variant,omitempty"`
}

type validateCouponRequest struct {
	Code      string            `json:"code"`
	CartItems []cartItemRequest `json:"cartItems"`
	Subtotal  *int64            `json:"subtotal"`
	UserID    string            `json:"userId,omitempty"`
}

type couponValidationResponse struct {
	IsValid          bool           `json:"isValid"`
	DiscountAmount   int64          `json:"discountAmount"`
	ShippingDiscount int64          `json:"shippingDiscount"`
	ErrorMessage     string         `json:"errorMessage,omitempty"`
	Coupon           *couponPayload `json:"coupon,omitempty"`
}

type couponPayload struct {
	ID                   string   `json:"id"`
	Code                 string   `json:"code"`
	Name                 string   `json:"name"`
	Description          string   `json:"description,omitempty"`
	DiscountType         string   `json:"discountType"`
	DiscountValue        float64  `json:"discountValue"`
	MaxDiscountAmount    *int64   `json:"maxDiscountAmount,omitempty"`
	MinOrderAmount       *int64   `json:"minOrderAmount,omitempty"`
	UsageLimit           *int     `json:"usageLimit,omitempty"`
	UsageCount           int      `json:"usageCount"`
	UserLimit            *int     `json:"userLimit,omitempty"`
	StartDate            string   `json:"startDate"`
	EndDate              string   `json:"endDate,omitempty"`
	IsActive             bool     `json:"isActive"`
	ApplicableCategories []string `json:"applicableCategories,omitempty"`
	ApplicableProducts   []string `json:"applicableProducts,omitempty"`
	ExcludedProducts     []string `json:"excludedProducts,omitempty"`
}

func (h *CouponHandlers) validateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_unavailable", "coupon service unavailable", http.StatusServiceUnavailable))
		return
	}
	if ok, retryAfter := h.limiter.Allow(requestctx.ClientIP(ctx)); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", msgTooManyCouponAttempts, http.StatusTooManyRequests))
		return
	}

	var req validateCouponRequest
	if err := decodeJSONBody(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), bodyErrorStatus(err)))
		return
	}

	items := toCartItems(req.CartItems)
	subtotal, ok := domain.CartSubtotal(items)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "cart amount out of range", http.StatusBadRequest))
		return
	}
	if req.Subtotal != nil {
		subtotal = *req.Subtotal
	}

	result, err := h.coupons.Validate(ctx, services.ValidateCouponCommand{
		Code:     req.Code,
		Items:    items,
		Subtotal: subtotal,
		UserID:   strings.TrimSpace(req.UserID),
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_error", "failed to validate coupon", http.StatusInternalServerError))
		return
	}

	resp := couponValidationResponse{
		IsValid:          result.IsValid,
		DiscountAmount:   result.DiscountAmount,
		ShippingDiscount: result.ShippingDiscount,
		ErrorMessage:     result.ErrorMessage,
	}
	if result.IsValid && result.Coupon != nil {
		payload := buildCouponPayload(*result.Coupon)
		resp.Coupon = &payload
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func toCartItems(items []cartItemRequest) []services.CartItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]services.CartItem, 0, len(items))
	for _, item := range items {
		out = append(out, services.CartItem{
			ID:         strings.TrimSpace(item.ID),
			Name:       strings.TrimSpace(item.Name),
			Price:      item.Price,
			Quantity:   item.Quantity,
			Categories: item.Categories,
			Variant:    strings.TrimSpace(item.Variant),
		})
	}
	return out
}


func buildCouponPayload(coupon domain.Coupon) couponPayload {
	payload := couponPayload{
		ID:                   coupon.ID,
		Code:                 coupon.Code,
		Name:                 coupon.Name,
		Description:          coupon.Description,
		DiscountType:         string(coupon.DiscountType),
		DiscountValue:        coupon.DiscountValue,
		MaxDiscountAmount:    coupon.MaxDiscountAmount,
		MinOrderAmount:       coupon.MinOrderAmount,
		UsageLimit:           coupon.UsageLimit,
		UsageCount:           coupon.UsageCount,
		UserLimit:            coupon.UserLimit,
		StartDate:            formatTime(coupon.StartDate),
		EndDate:              formatTimePtr(coupon.EndDate),
		IsActive:             coupon.IsActive,
		ApplicableCategories: coupon.ApplicableCategories,
		ApplicableProducts:   coupon.ApplicableProducts,
		ExcludedProducts:     coupon.ExcludedProducts,
	}
	return payload
}
