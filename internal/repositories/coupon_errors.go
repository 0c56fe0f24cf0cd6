package repositories

import "fmt"

// CouponRedemptionErrorCode enumerates why a coupon use could not be recorded.
type CouponRedemptionErrorCode string

const (
	// CouponRedemptionNotFound indicates the coupon document is missing.
	CouponRedemptionNotFound CouponRedemptionErrorCode = "coupon_not_found"
	// CouponRedemptionInactive indicates the coupon was deactivated.
	CouponRedemptionInactive CouponRedemptionErrorCode = "coupon_inactive"
	// CouponRedemptionExhausted indicates usageCount already reached usageLimit.
	CouponRedemptionExhausted CouponRedemptionErrorCode = "coupon_exhausted"
	// CouponRedemptionUserExhausted indicates the user already reached userLimit.
	CouponRedemptionUserExhausted CouponRedemptionErrorCode = "coupon_user_exhausted"
)

// CouponRedemptionError reports a coupon limit that failed at write time.
type CouponRedemptionError struct {
	Op       string
	Code     CouponRedemptionErrorCode
	CouponID string
	Message  string
}

// Error implements the error interface.
func (e *CouponRedemptionError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s (coupon %s)", e.Op, msg, e.CouponID)
	}
	return fmt.Sprintf("%s (coupon %s)", msg, e.CouponID)
}

// NewCouponRedemptionError constructs a typed redemption error.
func NewCouponRedemptionError(op string, code CouponRedemptionErrorCode, couponID string) *CouponRedemptionError {
	return &CouponRedemptionError{
		Op:       op,
		Code:     code,
		CouponID: couponID,
		Message:  string(code),
	}
}
