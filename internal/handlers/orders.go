package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/anh26092005/web-thu-c-sub000/internal/domain"
	"github.com/anh26092005/web-thu-c-sub000/internal/platform/httpx"
	"github.com/anh26092005/web-thu-c-sub000/internal/services"
)

// Plain-text bodies consumed verbatim by the storefront checkout.
const (
	msgMissingRequiredFields = "Thiếu thông tin bắt buộc"
	msgInvalidOrderBody      = "Dữ liệu đơn hàng không hợp lệ"
	msgTotalMismatch         = "Tổng tiền đơn hàng không khớp, vui lòng tải lại giỏ hàng"
	msgUnsupportedPayment    = "Phương thức thanh toán không được hỗ trợ"
	msgAmountOutOfRange      = "Số lượng hoặc giá sản phẩm không hợp lệ"
	msgPriceChanged          = "Giá sản phẩm đã thay đổi, vui lòng tải lại giỏ hàng"
	msgProductUnavailable    = "Sản phẩm trong giỏ hàng không còn được bán"
	msgOrderFailed           = "Không thể tạo đơn hàng, vui lòng thử lại sau"
	msgCouponUnavailable     = "Mã giảm giá không còn khả dụng"
)

// OrderHandlers exposes storefront order placement.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs order handlers.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers order endpoints under the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createOrder)
}

type customerInfoRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	UserID      string `json:"userId,omitempty"`
	ClerkUserID string `json:"clerkUserId,omitempty"`
}

type shippingAddressRequest struct {
	Street       string `json:"street"`
	ProvinceCode string `json:"provinceCode"`
	WardCode     string `json:"wardCode"`
}

// appliedCouponRequest is the coupon object echoed back from
// /coupons/validate. Only the code is read; the coupon is re-validated.
type appliedCouponRequest = couponPayload

type createOrderRequest struct {
	Cart             []cartItemRequest       `json:"cart"`
	TotalPrice       *int64                  `json:"totalPrice"`
	OriginalPrice    *int64                  `json:"originalPrice,omitempty"`
	DiscountAmount   int64                   `json:"discountAmount,omitempty"`
	ShippingDiscount int64                   `json:"shippingDiscount,omitempty"`
	AppliedCoupon    *appliedCouponRequest   `json:"appliedCoupon,omitempty"`
	CustomerInfo     *customerInfoRequest    `json:"customerInfo"`
	ShippingAddress  *shippingAddressRequest `json:"shippingAddress"`
	PaymentMethod    string                  `json:"paymentMethod,omitempty"`
	OrderNotes       string                  `json:"orderNotes,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID                    string                 `json:"id"`
	OrderNumber           string                 `json:"orderNumber"`
	CustomerName          string                 `json:"customerName"`
	Email                 string                 `json:"email"`
	Phone                 string                 `json:"phone"`
	UserID                string                 `json:"userId,omitempty"`
	ShippingAddress       shippingAddressPayload `json:"shippingAddress"`
	Products              []orderProductPayload  `json:"products"`
	TotalPrice            int64                  `json:"totalPrice"`
	OriginalPrice         int64                  `json:"originalPrice"`
	AmountDiscount        int64                  `json:"amountDiscount"`
	ShippingFee           int64                  `json:"shippingFee"`
	Currency              string                 `json:"currency"`
	AppliedCoupon         string                 `json:"appliedCoupon,omitempty"`
	CouponCode            string                 `json:"couponCode,omitempty"`
	PaymentMethod         string                 `json:"paymentMethod"`
	IsPaid                bool                   `json:"isPaid"`
	Status                string                 `json:"status"`
	OrderNotes            string                 `json:"orderNotes,omitempty"`
	Notes                 string                 `json:"notes,omitempty"`
	PaymentResult         *paymentResultPayload  `json:"paymentResult,omitempty"`
	StatusHistory         []statusChangePayload  `json:"statusHistory,omitempty"`
	OrderDate             string                 `json:"orderDate"`
	EstimatedDeliveryDate string                 `json:"estimatedDeliveryDate"`
	ShippedAt             string                 `json:"shippedAt,omitempty"`
	DeliveredAt           string                 `json:"deliveredAt,omitempty"`
	CancelledAt           string                 `json:"cancelledAt,omitempty"`
	UpdatedAt             string                 `json:"updatedAt,omitempty"`
}

type shippingAddressPayload struct {
	Street       string `json:"street"`
	ProvinceCode string `json:"provinceCode"`
	WardCode     string `json:"wardCode"`
}

type orderProductPayload struct {
	ProductRef string `json:"productRef"`
	Name       string `json:"name"`
	UnitPrice  int64  `json:"unitPrice"`
	Quantity   int    `json:"quantity"`
}

type paymentResultPayload struct {
	Provider      string `json:"provider"`
	ResponseCode  string `json:"responseCode"`
	TransactionNo string `json:"transactionNo,omitempty"`
	BankCode      string `json:"bankCode,omitempty"`
	Amount        int64  `json:"amount"`
	ReceivedAt    string `json:"receivedAt"`
	PaidAt        string `json:"paidAt,omitempty"`
}

type statusChangePayload struct {
	From  string `json:"from,omitempty"`
	To    string `json:"to"`
	Actor string `json:"actor"`
	Note  string `json:"note,omitempty"`
	At    string `json:"at"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		httpx.WritePlainText(w, http.StatusServiceUnavailable, msgOrderFailed)
		return
	}

	var req createOrderRequest
	if err := decodeJSONBody(r, &req); err != nil {
		status := bodyErrorStatus(err)
		message := msgInvalidOrderBody
		switch {
		case status == http.StatusRequestEntityTooLarge:
			message = err.Error()
		case errors.Is(err, errEmptyBody):
			message = msgMissingRequiredFields
		}
		httpx.WritePlainText(w, status, message)
		return
	}

	order, err := h.orders.PlaceOrder(r.Context(), buildPlaceOrderCommand(req))
	if err != nil {
		var rejected *services.CouponRejectedError
		switch {
		case errors.Is(err, services.ErrOrderTotalMismatch):
			httpx.WritePlainText(w, http.StatusBadRequest, msgTotalMismatch)
		case errors.Is(err, services.ErrOrderPaymentMethod):
			httpx.WritePlainText(w, http.StatusBadRequest, msgUnsupportedPayment)
		case errors.Is(err, services.ErrOrderAmountOutOfRange):
			httpx.WritePlainText(w, http.StatusBadRequest, msgAmountOutOfRange)
		case errors.Is(err, services.ErrOrderPriceChanged):
			httpx.WritePlainText(w, http.StatusConflict, msgPriceChanged)
		case errors.Is(err, services.ErrOrderProductUnavailable):
			httpx.WritePlainText(w, http.StatusConflict, msgProductUnavailable)
		case errors.Is(err, services.ErrOrderInvalidInput):
			httpx.WritePlainText(w, http.StatusBadRequest, msgMissingRequiredFields)
		case errors.As(err, &rejected) && strings.TrimSpace(rejected.Reason) != "":
			httpx.WritePlainText(w, http.StatusConflict, rejected.Reason)
		case errors.Is(err, services.ErrOrderCouponUnavailable):
			httpx.WritePlainText(w, http.StatusConflict, msgCouponUnavailable)
		default:
			httpx.WritePlainText(w, http.StatusInternalServerError, msgOrderFailed)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func buildPlaceOrderCommand(req createOrderRequest) services.PlaceOrderCommand {
	cmd := services.PlaceOrderCommand{
		Items:            toCartItems(req.Cart),
		TotalPrice:       req.TotalPrice,
		OriginalPrice:    req.OriginalPrice,
		DiscountAmount:   req.DiscountAmount,
		ShippingDiscount: req.ShippingDiscount,
		PaymentMethod:    domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		OrderNotes:       req.OrderNotes,
	}
	if req.AppliedCoupon != nil {
		cmd.CouponCode = strings.TrimSpace(req.AppliedCoupon.Code)
	}
	if info := req.CustomerInfo; info != nil {
		userID := strings.TrimSpace(info.UserID)
		if userID == "" {
			userID = strings.TrimSpace(info.ClerkUserID)
		}
		cmd.Customer = &services.CustomerInfo{
			Name:   info.Name,
			Email:  info.Email,
			Phone:  info.Phone,
			UserID: userID,
		}
	}
	if addr := req.ShippingAddress; addr != nil {
		cmd.ShippingAddress = &services.ShippingAddressInput{
			Street:       addr.Street,
			ProvinceCode: addr.ProvinceCode,
			WardCode:     addr.WardCode,
		}
	}
	return cmd
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:           order.ID,
		OrderNumber:  order.OrderNumber,
		CustomerName: order.CustomerName,
		Email:        order.Email,
		Phone:        order.Phone,
		UserID:       order.UserID,
		ShippingAddress: shippingAddressPayload{
			Street:       order.ShippingAddress.Street,
			ProvinceCode: order.ShippingAddress.ProvinceCode,
			WardCode:     order.ShippingAddress.WardCode,
		},
		Products:              make([]orderProductPayload, 0, len(order.Products)),
		TotalPrice:            order.TotalPrice,
		OriginalPrice:         order.OriginalPrice,
		AmountDiscount:        order.AmountDiscount,
		ShippingFee:           order.ShippingFee,
		Currency:              order.Currency,
		AppliedCoupon:         order.AppliedCoupon,
		CouponCode:            order.CouponCode,
		PaymentMethod:         string(order.PaymentMethod),
		IsPaid:                order.IsPaid,
		Status:                string(order.Status),
		OrderNotes:            order.OrderNotes,
		Notes:                 order.Notes,
		OrderDate:             formatTime(order.OrderDate),
		EstimatedDeliveryDate: formatTime(order.EstimatedDeliveryDate),
		ShippedAt:             formatTimePtr(order.ShippedAt),
		DeliveredAt:           formatTimePtr(order.DeliveredAt),
		CancelledAt:           formatTimePtr(order.CancelledAt),
		UpdatedAt:             formatTime(order.UpdatedAt),
	}
	for _, product := range order.Products {
		payload.Products = append(payload.Products, orderProductPayload{
			ProductRef: product.ProductRef,
			Name:       product.Name,
			UnitPrice:  product.UnitPrice,
			Quantity:   product.Quantity,
		})
	}
	if result := order.PaymentResult; result != nil {
		payload.PaymentResult = &paymentResultPayload{
			Provider:      result.Provider,
			ResponseCode:  result.ResponseCode,
			TransactionNo: result.TransactionNo,
			BankCode:      result.BankCode,
			Amount:        result.Amount,
			ReceivedAt:    formatTime(result.ReceivedAt),
			PaidAt:        formatTimePtr(result.PaidAt),
		}
	}
	for _, change := range order.StatusHistory {
		payload.StatusHistory = append(payload.StatusHistory, statusChangePayload{
			From:  string(change.From),
			To:    string(change.To),
			Actor: string(change.Actor),
			Note:  change.Note,
			At:    formatTime(change.At),
		})
	}
	return payload
}
