package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/anh26092005/web-thu-c-sub000/internal/domain"
	pfirestore "github.com/anh26092005/web-thu-c-sub000/internal/platform/firestore"
	"github.com/anh26092005/web-thu-c-sub000/internal/repositories"
)

const ordersCollection = "orders"

type orderDocument struct {
	OrderNumber           string                  `firestore:"orderNumber"`
	CustomerName          string                  `firestore:"customerName"`
	Email                 string                  `firestore:"email"`
	Phone                 string                  `firestore:"phone"`
	UserID                string                  `firestore:"userId,omitempty"`
	ShippingAddress       shippingAddressDocument `firestore:"shippingAddress"`
	Products              []orderProductDocument  `firestore:"products"`
	TotalPrice            int64                   `firestore:"totalPrice"`
	OriginalPrice         int64                   `firestore:"originalPrice"`
	AmountDiscount        int64                   `firestore:"amountDiscount"`
	ShippingFee           int64                   `firestore:"shippingFee"`
	Currency              string                  `firestore:"currency"`
	AppliedCoupon         string                  `firestore:"appliedCoupon,omitempty"`
	CouponCode            string                  `firestore:"couponCode,omitempty"`
	PaymentMethod         string                  `firestore:"paymentMethod"`
	IsPaid                bool                    `firestore:"isPaid"`
	Status                string                  `firestore:"status"`
	OrderNotes            string                  `firestore:"orderNotes,omitempty"`
	Notes                 string                  `firestore:"notes,omitempty"`
	PaymentResult         *paymentResultDocument  `firestore:"paymentResult,omitempty"`
	StatusHistory         []statusChangeDocument  `firestore:"statusHistory"`
	OrderDate             time.Time               `firestore:"orderDate"`
	EstimatedDeliveryDate time.Time               `firestore:"estimatedDeliveryDate"`
	ShippedAt             *time.Time              `firestore:"shippedAt,omitempty"`
	DeliveredAt           *time.Time              `firestore:"deliveredAt,omitempty"`
	CancelledAt           *time.Time              `firestore:"cancelledAt,omitempty"`
	UpdatedAt             time.Time               `firestore:"updatedAt"`
}

type shippingAddressDocument struct {
	Street       string `firestore:"street"`
	ProvinceCode string `firestore:"provinceCode"`
	WardCode     string `firestore:"wardCode"`
}

type orderProductDocument struct {
	ProductRef string `firestore:"productRef"`
	Name       string `firestore:"name"`
	UnitPrice  int64  `firestore:"unitPrice"`
	Quantity   int64  `firestore:"quantity"`
}

type paymentResultDocument struct {
	Provider      string            `firestore:"provider"`
	ResponseCode  string            `firestore:"responseCode"`
	TransactionNo string            `firestore:"transactionNo,omitempty"`
	BankCode      string            `firestore:"bankCode,omitempty"`
	Amount        int64             `firestore:"amount"`
	Raw           map[string]string `firestore:"raw"`
	ReceivedAt    time.Time         `firestore:"receivedAt"`
	PaidAt        *time.Time        `firestore:"paidAt,omitempty"`
}

type statusChangeDocument struct {
	From  string    `firestore:"from"`
	To    string    `firestore:"to"`
	Actor string    `firestore:"actor"`
	Note  string    `firestore:"note,omitempty"`
	At    time.Time `firestore:"at"`
}

// OrderRepository persists orders and performs the coupon redemption that
// goes with them.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	coupons  *pfirestore.BaseRepository[couponDocument]
	usages   *pfirestore.BaseRepository[couponUsageDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection),
		coupons:  pfirestore.NewBaseRepository[couponDocument](provider, couponsCollection),
		usages:   pfirestore.NewBaseRepository[couponUsageDocument](provider, couponUsagesCollection),
	}, nil
}

// Create inserts the order, redeeming the coupon in the same transaction when requested.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order, redemption *repositories.CouponRedemption) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	doc := encodeOrder(order)
	if redemption == nil {
		_, err := r.orders.Create(ctx, order.ID, doc)
		return err
	}

	couponID := normaliseCode(redemption.CouponID)
	userID := strings.TrimSpace(redemption.UserID)
	at := redemption.At.UTC()

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		coupon, err := r.coupons.TxGet(ctx, tx, couponID)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return repositories.NewCouponRedemptionError("orders.create", repositories.CouponRedemptionNotFound, couponID)
			}
			return err
		}

		var (
			usageRef *firestore.DocumentRef
			usage    couponUsageDocument
		)
		if userID != "" {
			usageRef, err = r.usages.DocumentRef(ctx, usageDocumentID(couponID, userID))
			if err != nil {
				return err
			}
			snapshot, err := tx.Get(usageRef)
			switch status.Code(err) {
			case codes.OK:
				if err := snapshot.DataTo(&usage); err != nil {
					return fmt.Errorf("firestore couponUsages decode %s: %w", usageRef.ID, err)
				}
			case codes.NotFound:
			default:
				return pfirestore.WrapError("couponUsages.tx.get", err)
			}
		}

		switch {
		case !coupon.Data.IsActive:
			return repositories.NewCouponRedemptionError("orders.create", repositories.CouponRedemptionInactive, couponID)
		case coupon.Data.UsageLimit != nil && coupon.Data.UsageCount >= *coupon.Data.UsageLimit:
			return repositories.NewCouponRedemptionError("orders.create", repositories.CouponRedemptionExhausted, couponID)
		case usageRef != nil && coupon.Data.UserLimit != nil && usage.Count >= *coupon.Data.UserLimit:
			return repositories.NewCouponRedemptionError("orders.create", repositories.CouponRedemptionUserExhausted, couponID)
		}

		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		couponRef, err := r.coupons.DocumentRef(ctx, couponID)
		if err != nil {
			return err
		}
		if err := tx.Create(orderRef, doc); err != nil {
			return err
		}
		if err := tx.Update(couponRef, []firestore.Update{
			{Path: "usageCount", Value: firestore.Increment(1)},
			{Path: "updatedAt", Value: at},
		}); err != nil {
			return err
		}
		if usageRef != nil {
			return tx.Set(usageRef, couponUsageDocument{
				CouponID:    couponID,
				UserID:      userID,
				Count:       usage.Count + 1,
				LastOrderID: order.ID,
				LastUsedAt:  at,
			})
		}
		return nil
	})
}

// FindByID loads an order by document id.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// FindByOrderNumber loads an order by its public order number.
func (r *OrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	doc, err := r.orders.FindOne(ctx, "orderNumber", strings.TrimSpace(orderNumber))
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// Update applies mutate to a freshly read copy of the order inside a transaction.
func (r *OrderRepository) Update(ctx context.Context, orderID string, mutate repositories.OrderMutation) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if mutate == nil {
		return domain.Order{}, errors.New("order repository: mutation is required")
	}
	id := strings.TrimSpace(orderID)

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := r.orders.TxGet(ctx, tx, id)
		if err != nil {
			return err
		}
		order := decodeOrder(doc.ID, doc.Data)
		if err := mutate(&order); err != nil {
			return err
		}
		ref, err := r.orders.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Set(ref, encodeOrder(order)); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

func encodeOrder(o domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:  o.OrderNumber,
		CustomerName: o.CustomerName,
		Email:        o.Email,
		Phone:        o.Phone,
		UserID:       o.UserID,
		ShippingAddress: shippingAddressDocument{
			Street:       o.ShippingAddress.Street,
			ProvinceCode: o.ShippingAddress.ProvinceCode,
			WardCode:     o.ShippingAddress.WardCode,
		},
		Products:              make([]orderProductDocument, 0, len(o.Products)),
		TotalPrice:            o.TotalPrice,
		OriginalPrice:         o.OriginalPrice,
		AmountDiscount:        o.AmountDiscount,
		ShippingFee:           o.ShippingFee,
		Currency:              o.Currency,
		AppliedCoupon:         o.AppliedCoupon,
		CouponCode:            o.CouponCode,
		PaymentMethod:         string(o.PaymentMethod),
		IsPaid:                o.IsPaid,
		Status:                string(o.Status),
		OrderNotes:            o.OrderNotes,
		Notes:                 o.Notes,
		StatusHistory:         make([]statusChangeDocument, 0, len(o.StatusHistory)),
		OrderDate:             o.OrderDate.UTC(),
		EstimatedDeliveryDate: o.EstimatedDeliveryDate.UTC(),
		ShippedAt:             utcPtr(o.ShippedAt),
		DeliveredAt:           utcPtr(o.DeliveredAt),
		CancelledAt:           utcPtr(o.CancelledAt),
		UpdatedAt:             o.UpdatedAt.UTC(),
	}
	for _, p := range o.Products {
		doc.Products = append(doc.Products, orderProductDocument{
			ProductRef: p.ProductRef,
			Name:       p.Name,
			UnitPrice:  p.UnitPrice,
			Quantity:   int64(p.Quantity),
		})
	}
	for _, change := range o.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, statusChangeDocument{
			From:  string(change.From),
			To:    string(change.To),
			Actor: string(change.Actor),
			Note:  change.Note,
			At:    change.At.UTC(),
		})
	}
	if pr := o.PaymentResult; pr != nil {
		doc.PaymentResult = &paymentResultDocument{
			Provider:      pr.Provider,
			ResponseCode:  pr.ResponseCode,
			TransactionNo: pr.TransactionNo,
			BankCode:      pr.BankCode,
			Amount:        pr.Amount,
			Raw:           pr.Raw,
			ReceivedAt:    pr.ReceivedAt.UTC(),
			PaidAt:        utcPtr(pr.PaidAt),
		}
	}
	return doc
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:           id,
		OrderNumber:  doc.OrderNumber,
		CustomerName: doc.CustomerName,
		Email:        doc.Email,
		Phone:        doc.Phone,
		UserID:       doc.UserID,
		ShippingAddress: domain.ShippingAddress{
			Street:       doc.ShippingAddress.Street,
			ProvinceCode: doc.ShippingAddress.ProvinceCode,
			WardCode:     doc.ShippingAddress.WardCode,
		},
		Products:              make([]domain.OrderProduct, 0, len(doc.Products)),
		TotalPrice:            doc.TotalPrice,
		OriginalPrice:         doc.OriginalPrice,
		AmountDiscount:        doc.AmountDiscount,
		ShippingFee:           doc.ShippingFee,
		Currency:              doc.Currency,
		AppliedCoupon:         doc.AppliedCoupon,
		CouponCode:            doc.CouponCode,
		PaymentMethod:         domain.PaymentMethod(doc.PaymentMethod),
		IsPaid:                doc.IsPaid,
		Status:                domain.OrderStatus(doc.Status),
		OrderNotes:            doc.OrderNotes,
		Notes:                 doc.Notes,
		StatusHistory:         make([]domain.StatusChange, 0, len(doc.StatusHistory)),
		OrderDate:             doc.OrderDate.UTC(),
		EstimatedDeliveryDate: doc.EstimatedDeliveryDate.UTC(),
		ShippedAt:             utcPtr(doc.ShippedAt),
		DeliveredAt:           utcPtr(doc.DeliveredAt),
		CancelledAt:           utcPtr(doc.CancelledAt),
		UpdatedAt:             doc.UpdatedAt.UTC(),
	}
	for _, p := range doc.Products {
		order.Products = append(order.Products, domain.OrderProduct{
			ProductRef: p.ProductRef,
			Name:       p.Name,
			UnitPrice:  p.UnitPrice,
			Quantity:   int(p.Quantity),
		})
	}
	for _, change := range doc.StatusHistory {
		order.StatusHistory = append(order.StatusHistory, domain.StatusChange{
			From:  domain.OrderStatus(change.From),
			To:    domain.OrderStatus(change.To),
			Actor: domain.StatusActor(change.Actor),
			Note:  change.Note,
			At:    change.At.UTC(),
		})
	}
	if pr := doc.PaymentResult; pr != nil {
		order.PaymentResult = &domain.PaymentResult{
			Provider:      pr.Provider,
			ResponseCode:  pr.ResponseCode,
			TransactionNo: pr.TransactionNo,
			BankCode:      pr.BankCode,
			Amount:        pr.Amount,
			Raw:           pr.Raw,
			ReceivedAt:    pr.ReceivedAt.UTC(),
			PaidAt:        utcPtr(pr.PaidAt),
		}
	}
	return order
}
