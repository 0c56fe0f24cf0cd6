package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/anh26092005/web-thu-c-sub000/internal/domain"
	"github.com/anh26092005/web-thu-c-sub000/internal/platform/requestctx"
	"github.com/anh26092005/web-thu-c-sub000/internal/services"
)

type stubCouponService struct {
	validateFn   func(context.Context, services.ValidateCouponCommand) (services.CouponValidation, error)
	createFn     func(context.Context, services.CreateCouponCommand) (services.Coupon, error)
	deactivateFn func(context.Context, string) (services.Coupon, error)
}

func (s *stubCouponService) Validate(ctx context.Context, cmd services.ValidateCouponCommand) (services.CouponValidation, error) {
	if s.validateFn != nil {
		return s.validateFn(ctx, cmd)
	}
	return services.CouponValidation{}, errors.New("not implemented")
}

func (s *stubCouponService) CreateCoupon(ctx context.Context, cmd services.CreateCouponCommand) (services.Coupon, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Coupon{}, errors.New("not implemented")
}

func (s *stubCouponService) DeactivateCoupon(ctx context.Context, code string) (services.Coupon, error) {
	if s.deactivateFn != nil {
		return s.deactivateFn(ctx, code)
	}
	return services.Coupon{}, errors.New("not implemented")
}

func newCouponRouter(h *CouponHandlers, admin *AdminCouponHandlers) chi.Router {
	return NewRouter(
		WithCouponRoutes(h.Routes),
		WithAdminRoutes(admin.Routes),
	)
}

func TestCouponHandlersValidateSuccess(t *testing.T) {
	var captured services.ValidateCouponCommand
	maxDiscount := int64(50000)
	svc := &stubCouponService{
		validateFn: func(_ context.Context, cmd services.ValidateCouponCommand) (services.CouponValidation, error) {
			captured = cmd
			return services.CouponValidation{
				IsValid:        true,
				DiscountAmount: 50000,
				Coupon: &services.Coupon{
					ID:                "SALE10",
					Code:              "SALE10",
					Name:              "Giảm 10%",
					DiscountType:      domain.DiscountTypePercentage,
					DiscountValue:     10,
					MaxDiscountAmount: &maxDiscount,
					IsActive:          true,
					StartDate:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
				},
			}, nil
		},
	}
	router := newCouponRouter(NewCouponHandlers(svc), NewAdminCouponHandlers(svc))

	body := `{"code":"sale10","cartItems":[{"id":"p1","name":"Vitamin C","price":500000,"quantity":2,"categories":["Vitamin"]}],"userId":" u1 "}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/coupons/validate", strings.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Subtotal != 1000000 {
		t.Fatalf("expected subtotal computed from cart 1000000, got %d", captured.Subtotal)
	}
	if captured.UserID != "u1" || len(captured.Items) != 1 || captured.Items[0].Categories[0] != "Vitamin" {
		t.Fatalf("unexpected command %+v", captured)
	}

	var resp struct {
		IsValid        bool  `json:"isValid"`
		DiscountAmount int64 `json:"discountAmount"`
		Coupon         struct {
			Code              string `json:"code"`
			MaxDiscountAmount int64  `json:"maxDiscountAmount"`
			StartDate         string `json:"startDate"`
		} `json:"coupon"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.IsValid || resp.DiscountAmount != 50000 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Coupon.Code != "SALE10" || resp.Coupon.MaxDiscountAmount != 50000 || resp.Coupon.StartDate != "2025-01-01T00:00:00Z" {
		t.Fatalf("unexpected coupon payload %+v", resp.Coupon)
	}
}

func TestCouponHandlersValidateRejectionIsOK(t *testing.T) {
	svc := &stubCouponService{
		validateFn: func(_ context.Context, cmd services.ValidateCouponCommand) (services.CouponValidation, error) {
			if cmd.Subtotal != 20000 {
				t.Fatalf("expected explicit subtotal 20000, got %d", cmd.Subtotal)
			}
			return services.CouponValidation{ErrorMessage: "Mã giảm giá đã hết hạn"}, nil
		},
	}
	router := newCouponRouter(NewCouponHandlers(svc), NewAdminCouponHandlers(svc))

	body := `{"code":"OLD","cartItems":[],"subtotal":20000}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/coupons/validate", strings.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["isValid"] != false || resp["errorMessage"] != "Mã giảm giá đã hết hạn" {
		t.Fatalf("unexpected response %v", resp)
	}
	if _, ok := resp["coupon"]; ok {
		t.Fatalf("coupon must be omitted for rejected codes")
	}
}

func TestCouponHandlersValidateMalformedBody(t *testing.T) {
	svc := &stubCouponService{}
	router := newCouponRouter(NewCouponHandlers(svc), NewAdminCouponHandlers(svc))

	bodies := []string{
		"",
		"{",
		`{"code":"A","unknown":true}`,
		`{"code":"A"}{"code":"B"}`,
		`{"code":"A","cartItems":[{"id":"p1","price":4611686018427387904,"quantity":4}]}`,
		`{"code":"` + strings.Repeat("a", maxRequestBodySize) + `"}`,
	}
	for i, body := range bodies {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/coupons/validate", strings.NewReader(body)))
		want := http.StatusBadRequest
		if i == len(bodies)-1 {
			want = http.StatusRequestEntityTooLarge
		}
		if rr.Code != want {
			t.Fatalf("body %d: expected status %d, got %d", i, want, rr.Code)
		}
	}
}

func TestCouponHandlersValidateRateLimited(t *testing.T) {
	calls := 0
	svc := &stubCouponService{
		validateFn: func(context.Context, services.ValidateCouponCommand) (services.CouponValidation, error) {
			calls++
			return services.CouponValidation{}, nil
		},
	}
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	handlers := NewCouponHandlers(svc, WithCouponRateLimit(2, time.Minute, func() time.Time { return now }))
	router := chi.NewRouter()
	handlers.Routes(router)

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/validate", strings.NewReader(`{"code":"X"}`))
		req = req.WithContext(requestctx.WithClientIP(req.Context(), ip))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("203.0.113.7"); code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", i, code)
		}
	}
	if code := send("203.0.113.7"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", code)
	}
	if code := send("198.51.100.1"); code != http.StatusOK {
		t.Fatalf("expected other client to pass, got %d", code)
	}
	now = now.Add(2 * time.Minute)
	if code := send("203.0.113.7"); code != http.StatusOK {
		t.Fatalf("expected window reset, got %d", code)
	}
	if calls != 4 {
		t.Fatalf("expected 4 service calls, got %d", calls)
	}
}

func TestAdminCouponHandlersCreate(t *testing.T) {
	var captured services.CreateCouponCommand
	svc := &stubCouponService{
		createFn: func(_ context.Context, cmd services.CreateCouponCommand) (services.Coupon, error) {
			captured = cmd
			return services.Coupon{ID: "FREESHIP", Code: "FREESHIP", Name: cmd.Name, DiscountType: cmd.DiscountType, IsActive: true}, nil
		},
	}
	router := newCouponRouter(NewCouponHandlers(svc), NewAdminCouponHandlers(svc))

	body := `{"code":"freeship","name":"Miễn phí vận chuyển","discountType":" FREE_SHIPPING ","usageLimit":100,"endDate":"2025-12-31T23:59:59Z"}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/admin/coupons", strings.NewReader(body)))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.DiscountType != domain.DiscountTypeFreeShipping {
		t.Fatalf("expected normalised discount type, got %q", captured.DiscountType)
	}
	if captured.UsageLimit == nil || *captured.UsageLimit != 100 {
		t.Fatalf("expected usage limit 100, got %v", captured.UsageLimit)
	}
	if captured.EndDate == nil || captured.EndDate.Year() != 2025 {
		t.Fatalf("expected end date, got %v", captured.EndDate)
	}
}

func TestAdminCouponHandlersCreateErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{err: fmt.Errorf("%w: bad value", services.ErrCouponInvalidInput), status: http.StatusBadRequest},
		{err: services.ErrCouponConflict, status: http.StatusConflict},
		{err: services.ErrCouponUnavailable, status: http.StatusServiceUnavailable},
		{err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		svc := &stubCouponService{
			createFn: func(context.Context, services.CreateCouponCommand) (services.Coupon, error) {
				return services.Coupon{}, tc.err
			},
		}
		router := newCouponRouter(NewCouponHandlers(svc), NewAdminCouponHandlers(svc))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/admin/coupons", strings.NewReader(`{"code":"X"}`)))
		if rr.Code != tc.status {
			t.Fatalf("%v: expected status %d, got %d", tc.err, tc.status, rr.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("expected JSON error envelope: %v", err)
		}
		if body["error"] == "" {
			t.Fatalf("expected error code in %v", body)
		}
	}
}

func TestAdminCouponHandlersDeactivate(t *testing.T) {
	var gotCode string
	svc := &stubCouponService{
		deactivateFn: func(_ context.Context, code string) (services.Coupon, error) {
			gotCode = code
			if code == "MISSING" {
				return services.Coupon{}, services.ErrCouponNotFound
			}
			return services.Coupon{ID: code, Code: code, IsActive: false}, nil
		},
	}
	router := newCouponRouter(NewCouponHandlers(svc), NewAdminCouponHandlers(svc))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/admin/coupons/SALE10:deactivate", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if gotCode != "SALE10" {
		t.Fatalf("expected code SALE10, got %q", gotCode)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["isActive"] != false {
		t.Fatalf("expected inactive coupon, got %v", resp)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/admin/coupons/MISSING:deactivate", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/admin/coupons/SALE10:archive", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for unknown action, got %d", rr.Code)
	}
}
