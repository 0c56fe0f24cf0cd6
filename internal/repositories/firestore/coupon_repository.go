package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/anh26092005/web-thu-c-sub000/internal/domain"
	pfirestore "github.com/anh26092005/web-thu-c-sub000/internal/platform/firestore"
	"github.com/anh26092005/web-thu-c-sub000/internal/repositories"
)

const (
	couponsCollection      = "coupons"
	couponUsagesCollection = "couponUsages"
)

type couponDocument struct {
	Code                 string     `firestore:"code"`
	Name                 string     `firestore:"name"`
	Description          string     `firestore:"description,omitempty"`
	DiscountType         string     `firestore:"discountType"`
	DiscountValue        float64    `firestore:"discountValue"`
	MaxDiscountAmount    *int64     `firestore:"maxDiscountAmount,omitempty"`
	MinOrderAmount       *int64     `firestore:"minOrderAmount,omitempty"`
	UsageLimit           *int64     `firestore:"usageLimit,omitempty"`
	UsageCount           int64      `firestore:"usageCount"`
	UserLimit            *int64     `firestore:"userLimit,omitempty"`
	StartDate            time.Time  `firestore:"startDate"`
	EndDate              *time.Time `firestore:"endDate,omitempty"`
	IsActive             bool       `firestore:"isActive"`
	ApplicableCategories []string   `firestore:"applicableCategories,omitempty"`
	ApplicableProducts   []string   `firestore:"applicableProducts,omitempty"`
	ExcludedProducts     []string   `firestore:"excludedProducts,omitempty"`
	CreatedAt            time.Time  `firestore:"createdAt"`
	UpdatedAt            time.Time  `firestore:"updatedAt"`
}

type couponUsageDocument struct {
	CouponID    string    `firestore:"couponId"`
	UserID      string    `firestore:"userId"`
	Count       int64     `firestore:"count"`
	LastOrderID string    `firestore:"lastOrderId,omitempty"`
	LastUsedAt  time.Time `firestore:"lastUsedAt"`
}

// CouponRepository stores coupons under their uppercase code so Create
// enforces code uniqueness.
type CouponRepository struct {
	coupons *pfirestore.BaseRepository[couponDocument]
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	return &CouponRepository{
		coupons: pfirestore.NewBaseRepository[couponDocument](provider, couponsCollection),
	}, nil
}

// Insert creates the coupon. A taken code yields a conflict error.
func (r *CouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	code := normaliseCode(coupon.Code)
	coupon.Code = code
	_, err := r.coupons.Create(ctx, code, encodeCoupon(coupon))
	return err
}

// FindByCode loads a coupon by code, case-insensitively.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	doc, err := r.coupons.Get(ctx, normaliseCode(code))
	if err != nil {
		return domain.Coupon{}, err
	}
	return decodeCoupon(doc.ID, doc.Data), nil
}

// SetActive flips the kill switch and returns the stored coupon.
func (r *CouponRepository) SetActive(ctx context.Context, code string, active bool, at time.Time) (domain.Coupon, error) {
	id := normaliseCode(code)
	if _, err := r.coupons.Update(ctx, id, []firestore.Update{
		{Path: "isActive", Value: active},
		{Path: "updatedAt", Value: at.UTC()},
	}); err != nil {
		return domain.Coupon{}, err
	}
	return r.FindByCode(ctx, id)
}

// CouponUsageRepository reads per-user counters written by OrderRepository.Create.
type CouponUsageRepository struct {
	usages *pfirestore.BaseRepository[couponUsageDocument]
}

var _ repositories.CouponUsageRepository = (*CouponUsageRepository)(nil)

// NewCouponUsageRepository constructs a Firestore-backed usage repository.
func NewCouponUsageRepository(provider *pfirestore.Provider) (*CouponUsageRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon usage repository requires firestore provider")
	}
	return &CouponUsageRepository{
		usages: pfirestore.NewBaseRepository[couponUsageDocument](provider, couponUsagesCollection),
	}, nil
}

// CountByUser returns how many orders userID placed with couponID.
func (r *CouponUsageRepository) CountByUser(ctx context.Context, couponID, userID string) (int, error) {
	doc, err := r.usages.Get(ctx, usageDocumentID(couponID, userID))
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return 0, nil
		}
		return 0, err
	}
	return int(doc.Data.Count), nil
}

func usageDocumentID(couponID, userID string) string {
	return fmt.Sprintf("%s_%s", strings.TrimSpace(couponID), strings.TrimSpace(userID))
}

func normaliseCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func encodeCoupon(c domain.Coupon) couponDocument {
	return couponDocument{
		Code:                 c.Code,
		Name:                 c.Name,
		Description:          c.Description,
		DiscountType:         string(c.DiscountType),
		DiscountValue:        c.DiscountValue,
		MaxDiscountAmount:    c.MaxDiscountAmount,
		MinOrderAmount:       c.MinOrderAmount,
		UsageLimit:           widenInt(c.UsageLimit),
		UsageCount:           int64(c.UsageCount),
		UserLimit:            widenInt(c.UserLimit),
		StartDate:            c.StartDate.UTC(),
		EndDate:              utcPtr(c.EndDate),
		IsActive:             c.IsActive,
		ApplicableCategories: c.ApplicableCategories,
		ApplicableProducts:   c.ApplicableProducts,
		ExcludedProducts:     c.ExcludedProducts,
		CreatedAt:            c.CreatedAt.UTC(),
		UpdatedAt:            c.UpdatedAt.UTC(),
	}
}

func decodeCoupon(id string, doc couponDocument) domain.Coupon {
	return domain.Coupon{
		ID:                   id,
		Code:                 doc.Code,
		Name:                 doc.Name,
		Description:          doc.Description,
		DiscountType:         domain.DiscountType(doc.DiscountType),
		DiscountValue:        doc.DiscountValue,
		MaxDiscountAmount:    doc.MaxDiscountAmount,
		MinOrderAmount:       doc.MinOrderAmount,
		UsageLimit:           narrowInt(doc.UsageLimit),
		UsageCount:           int(doc.UsageCount),
		UserLimit:            narrowInt(doc.UserLimit),
		StartDate:            doc.StartDate.UTC(),
		EndDate:              utcPtr(doc.EndDate),
		IsActive:             doc.IsActive,
		ApplicableCategories: doc.ApplicableCategories,
		ApplicableProducts:   doc.ApplicableProducts,
		ExcludedProducts:     doc.ExcludedProducts,
		CreatedAt:            doc.CreatedAt.UTC(),
		UpdatedAt:            doc.UpdatedAt.UTC(),
	}
}

func widenInt(v *int) *int64 {
	if v == nil {
		return nil
	}
	w := int64(*v)
	return &w
}

func narrowInt(v *int64) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
