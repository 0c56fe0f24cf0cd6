package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	domain "github.com/anh26092005/web-thu-c-sub000/internal/domain"
	"github.com/anh26092005/web-thu-c-sub000/internal/repositories"
)

var (
	// ErrCouponInvalidInput signals the admin supplied an invalid coupon definition.
	ErrCouponInvalidInput = errors.New("coupon: invalid input")
	// ErrCouponNotFound indicates no coupon exists for the code.
	ErrCouponNotFound = errors.New("coupon: not found")
	// ErrCouponConflict indicates the code is already taken.
	ErrCouponConflict = errors.New("coupon: code already exists")
	// ErrCouponUnavailable indicates the coupon store could not be reached.
	ErrCouponUnavailable = errors.New("coupon: repository unavailable")
)

// User-facing validation messages.
const (
	msgCouponCodeRequired  = "Vui lòng nhập mã giảm giá"
	msgCouponNotFound      = "Mã giảm giá không tồn tại hoặc đã hết hạn"
	msgCouponNotStarted    = "Mã giảm giá chưa đến thời gian áp dụng"
	msgCouponExpired       = "Mã giảm giá đã hết hạn"
	msgCouponExhausted     = "Mã giảm giá đã hết lượt sử dụng"
	msgCouponUserExhausted = "Bạn đã sử dụng hết số lần cho phép của mã giảm giá này"
	msgCouponMinOrder      = "Đơn hàng cần mua thêm %s để áp dụng mã giảm giá này"
	msgCouponNoEligible    = "Không có sản phẩm nào trong giỏ hàng được áp dụng mã giảm giá này"
	msgCouponCheckFailed   = "Đã xảy ra lỗi khi kiểm tra mã giảm giá"
	msgCouponInvalidCart   = "Giỏ hàng có số lượng hoặc giá không hợp lệ"
)

// Reasons recorded on the validation metric.
const (
	reasonApplied       = "applied"
	reasonCodeRequired  = "code_required"
	reasonNotFound      = "not_found"
	reasonNotStarted    = "not_started"
	reasonExpired       = "expired"
	reasonExhausted     = "exhausted"
	reasonUserExhausted = "user_exhausted"
	reasonMinOrder      = "min_order"
	reasonNoEligible    = "no_eligible_items"
	reasonLookupFailed  = "lookup_failed"
	reasonInvalidCart   = "invalid_cart"
)

// CouponMetrics records validation outcomes.
type CouponMetrics interface {
	CouponValidated(ctx context.Context, valid bool, reason string)
}

// CouponServiceDeps bundles collaborators required to construct the coupon service.
type CouponServiceDeps struct {
	Coupons repositories.CouponRepository
	Usages  repositories.CouponUsageRepository
	Clock   func() time.Time
	// FlatShippingFee is granted as the shipping discount of free-shipping coupons.
	FlatShippingFee int64
	// VariantCategories maps a cart item's variant tag to a category title.
	VariantCategories map[string]string
	Metrics           CouponMetrics
	Logger            func(ctx context.Context, event string, fields map[string]any)
}

type couponService struct {
	coupons         repositories.CouponRepository
	usages          repositories.CouponUsageRepository
	clock           func() time.Time
	flatShippingFee int64
	variants        map[string]string
	metrics         CouponMetrics
	logger          func(context.Context, string, map[string]any)
}

var _ CouponService = (*couponService)(nil)

// NewCouponService wires dependencies into a concrete CouponService implementation.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil {
		return nil, errors.New("coupon service: coupon repository is required")
	}
	if deps.Usages == nil {
		return nil, errors.New("coupon service: usage repository is required")
	}
	if deps.FlatShippingFee < 0 {
		return nil, errors.New("coupon service: flat shipping fee must not be negative")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopCouponMetrics{}
	}

	variants := make(map[string]string, len(deps.VariantCategories))
	for variant, title := range deps.VariantCategories {
		variants[strings.ToLower(strings.TrimSpace(variant))] = title
	}

	return &couponService{
		coupons: deps.Coupons,
		usages:  deps.Usages,
		clock: func() time.Time {
			return clock().UTC()
		},
		flatShippingFee: deps.FlatShippingFee,
		variants:        variants,
		metrics:         metrics,
		logger:          logger,
	}, nil
}

// Validate runs the ordered eligibility checks. The first failing check decides
// the message. It never writes to the store.
func (s *couponService) Validate(ctx context.Context, cmd ValidateCouponCommand) (CouponValidation, error) {
	if s == nil || s.coupons == nil {
		return CouponValidation{}, errors.New("coupon service: not initialised")
	}
	result, reason := s.evaluate(ctx, cmd)
	s.metrics.CouponValidated(ctx, result.IsValid, reason)
	return result, nil
}

func (s *couponService) evaluate(ctx context.Context, cmd ValidateCouponCommand) (CouponValidation, string) {
	code := strings.ToUpper(strings.TrimSpace(cmd.Code))
	if code == "" {
		return rejectCoupon(msgCouponCodeRequired), reasonCodeRequired
	}

	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		if isRepositoryNotFound(err) {
			return rejectCoupon(msgCouponNotFound), reasonNotFound
		}
		s.logger(ctx, "coupon.lookup.failed", map[string]any{
			"code":  code,
			"error": err,
		})
		return rejectCoupon(msgCouponCheckFailed), reasonLookupFailed
	}
	if !coupon.IsActive {
		return rejectCoupon(msgCouponNotFound), reasonNotFound
	}

	now := s.clock()
	if now.Before(coupon.StartDate) {
		return rejectCoupon(msgCouponNotStarted), reasonNotStarted
	}
	if coupon.EndDate != nil && !now.Before(*coupon.EndDate) {
		return rejectCoupon(msgCouponExpired), reasonExpired
	}

	if coupon.UsageLimit != nil && coupon.UsageCount >= *coupon.UsageLimit {
		return rejectCoupon(msgCouponExhausted), reasonExhausted
	}

	if userID := strings.TrimSpace(cmd.UserID); coupon.UserLimit != nil && userID != "" {
		used, err := s.usages.CountByUser(ctx, coupon.ID, userID)
		if err != nil {
			s.logger(ctx, "coupon.usage.lookup.failed", map[string]any{
				"code":  code,
				"user":  userID,
				"error": err,
			})
			return rejectCoupon(msgCouponCheckFailed), reasonLookupFailed
		}
		if used >= *coupon.UserLimit {
			return rejectCoupon(msgCouponUserExhausted), reasonUserExhausted
		}
	}

	if coupon.MinOrderAmount != nil && cmd.Subtotal < *coupon.MinOrderAmount {
		shortfall := *coupon.MinOrderAmount - cmd.Subtotal
		return rejectCoupon(fmt.Sprintf(msgCouponMinOrder, formatVND(shortfall))), reasonMinOrder
	}

	applicable := s.applicableItems(coupon, cmd.Items)
	if len(applicable) == 0 {
		return rejectCoupon(msgCouponNoEligible), reasonNoEligible
	}

	applicableSubtotal, ok := domain.CartSubtotal(applicable)
	if !ok {
		return rejectCoupon(msgCouponInvalidCart), reasonInvalidCart
	}

	discount, shipping := s.computeDiscount(coupon, applicableSubtotal)
	return CouponValidation{
		IsValid:          true,
		DiscountAmount:   discount,
		ShippingDiscount: shipping,
		Coupon:           &coupon,
	}, reasonApplied
}

// applicableItems keeps the cart items the coupon may discount. Exclusions win;
// a product allow-list ignores categories entirely; otherwise categories match
// by title, falling back to the item's variant tag.
func (s *couponService) applicableItems(coupon Coupon, items []CartItem) []CartItem {
	excluded := toSet(coupon.ExcludedProducts, strings.TrimSpace)
	products := toSet(coupon.ApplicableProducts, strings.TrimSpace)
	categories := toSet(coupon.ApplicableCategories, foldTitle)

	applicable := make([]CartItem, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ID)
		switch {
		case excluded[id]:
			continue
		case len(products) > 0:
			if products[id] {
				applicable = append(applicable, item)
			}
		case len(categories) > 0:
			if s.matchesCategory(item, categories) {
				applicable = append(applicable, item)
			}
		default:
			applicable = append(applicable, item)
		}
	}
	return applicable
}

func (s *couponService) matchesCategory(item CartItem, categories map[string]bool) bool {
	if slices.ContainsFunc(item.Categories, func(title string) bool {
		return categories[foldTitle(title)]
	}) {
		return true
	}
	if len(item.Categories) > 0 {
		return false
	}
	title, ok := s.variants[strings.ToLower(strings.TrimSpace(item.Variant))]
	return ok && categories[foldTitle(title)]
}

func (s *couponService) computeDiscount(coupon Coupon, applicableSubtotal int64) (discount int64, shipping int64) {
	switch coupon.DiscountType {
	case domain.DiscountTypePercentage:
		discount = int64(math.Round(float64(applicableSubtotal) * coupon.DiscountValue / 100))
		if coupon.MaxDiscountAmount != nil && discount > *coupon.MaxDiscountAmount {
			discount = *coupon.MaxDiscountAmount
		}
	case domain.DiscountTypeFixedAmount:
		discount = min(int64(math.Round(coupon.DiscountValue)), applicableSubtotal)
	case domain.DiscountTypeFreeShipping:
		shipping = s.flatShippingFee
	}
	return max(discount, 0), shipping
}

func (s *couponService) CreateCoupon(ctx context.Context, cmd CreateCouponCommand) (Coupon, error) {
	now := s.clock()
	coupon, err := buildCoupon(cmd, now)
	if err != nil {
		return Coupon{}, err
	}
	if err := s.coupons.Insert(ctx, coupon); err != nil {
		return Coupon{}, mapCouponRepositoryError(err)
	}
	s.logger(ctx, "coupon.created", map[string]any{
		"code": coupon.Code,
		"type": string(coupon.DiscountType),
	})
	return coupon, nil
}

func (s *couponService) DeactivateCoupon(ctx context.Context, code string) (Coupon, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Coupon{}, fmt.Errorf("%w: code is required", ErrCouponInvalidInput)
	}
	coupon, err := s.coupons.SetActive(ctx, code, false, s.clock())
	if err != nil {
		return Coupon{}, mapCouponRepositoryError(err)
	}
	s.logger(ctx, "coupon.deactivated", map[string]any{"code": code})
	return coupon, nil
}

func buildCoupon(cmd CreateCouponCommand, now time.Time) (Coupon, error) {
	code := strings.ToUpper(strings.TrimSpace(cmd.Code))
	if code == "" || strings.ContainsFunc(code, func(r rune) bool { return r == ' ' || r == '\t' || r == '/' }) {
		return Coupon{}, fmt.Errorf("%w: code must be a single token", ErrCouponInvalidInput)
	}
	name := sanitizePlainText(cmd.Name, 200)
	if name == "" {
		return Coupon{}, fmt.Errorf("%w: name is required", ErrCouponInvalidInput)
	}
	if !cmd.DiscountType.Valid() {
		return Coupon{}, fmt.Errorf("%w: unsupported discount type %q", ErrCouponInvalidInput, cmd.DiscountType)
	}

	coupon := Coupon{
		ID:                   code,
		Code:                 code,
		Name:                 name,
		Description:          sanitizePlainText(cmd.Description, maxNoteRunes),
		DiscountType:         cmd.DiscountType,
		DiscountValue:        cmd.DiscountValue,
		MinOrderAmount:       cmd.MinOrderAmount,
		UsageLimit:           cmd.UsageLimit,
		UserLimit:            cmd.UserLimit,
		StartDate:            now,
		EndDate:              cmd.EndDate,
		IsActive:             true,
		ApplicableCategories: compactStrings(cmd.ApplicableCategories),
		ApplicableProducts:   compactStrings(cmd.ApplicableProducts),
		ExcludedProducts:     compactStrings(cmd.ExcludedProducts),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if cmd.StartDate != nil {
		coupon.StartDate = cmd.StartDate.UTC()
	}

	switch cmd.DiscountType {
	case domain.DiscountTypePercentage:
		if cmd.DiscountValue <= 0 || cmd.DiscountValue > 100 {
			return Coupon{}, fmt.Errorf("%w: percentage must be in (0,100]", ErrCouponInvalidInput)
		}
		coupon.MaxDiscountAmount = cmd.MaxDiscountAmount
	case domain.DiscountTypeFixedAmount:
		if cmd.DiscountValue <= 0 {
			return Coupon{}, fmt.Errorf("%w: fixed amount must be positive", ErrCouponInvalidInput)
		}
	case domain.DiscountTypeFreeShipping:
		coupon.DiscountValue = 0
	}

	switch {
	case coupon.MaxDiscountAmount != nil && *coupon.MaxDiscountAmount <= 0:
		return Coupon{}, fmt.Errorf("%w: max discount amount must be positive", ErrCouponInvalidInput)
	case coupon.MinOrderAmount != nil && *coupon.MinOrderAmount < 0:
		return Coupon{}, fmt.Errorf("%w: min order amount must not be negative", ErrCouponInvalidInput)
	case coupon.UsageLimit != nil && *coupon.UsageLimit <= 0:
		return Coupon{}, fmt.Errorf("%w: usage limit must be positive", ErrCouponInvalidInput)
	case coupon.UserLimit != nil && *coupon.UserLimit <= 0:
		return Coupon{}, fmt.Errorf("%w: user limit must be positive", ErrCouponInvalidInput)
	case coupon.EndDate != nil && !coupon.EndDate.After(coupon.StartDate):
		return Coupon{}, fmt.Errorf("%w: end date must be after start date", ErrCouponInvalidInput)
	}
	if coupon.EndDate != nil {
		coupon.EndDate = valuePtr(coupon.EndDate.UTC())
	}
	return coupon, nil
}

func mapCouponRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCouponNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCouponConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCouponUnavailable, err)
		}
	}
	return err
}

func rejectCoupon(message string) CouponValidation {
	return CouponValidation{IsValid: false, ErrorMessage: message}
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func toSet(values []string, normalise func(string) string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, value := range values {
		if key := normalise(value); key != "" {
			set[key] = true
		}
	}
	return set
}

func compactStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

type noopCouponMetrics struct{}

func (noopCouponMetrics) CouponValidated(context.Context, bool, string) {}
