package vnpay

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	apiVersion   = "2.1.0"
	commandPay   = "pay"
	currencyVND  = "VND"
	orderTypeAll = "other"
	dateLayout   = "20060102150405"

	// ResponseCodeSuccess is the vnp_ResponseCode of a successful payment.
	ResponseCodeSuccess = "00"
)

// Gateway timestamps are expressed in Vietnam time.
var gatewayZone = time.FixedZone("GMT+7", 7*60*60)

// Config describes the merchant terminal.
type Config struct {
	TmnCode     string
	PayURL      string
	ReturnURL   string
	Locale      string
	ExpireAfter time.Duration
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithClock injects a clock, primarily for tests.
func WithClock(clock func() time.Time) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// Client builds signed checkout URLs and verifies gateway callbacks.
type Client struct {
	cfg    Config
	signer *Signer
	clock  func() time.Time
}

// PaymentRequest describes one checkout redirect.
type PaymentRequest struct {
	TxnRef    string
	Amount    int64
	OrderInfo string
	ClientIP  string
	BankCode  string
	Locale    string
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config, signer *Signer, opts ...ClientOption) (*Client, error) {
	if signer == nil {
		return nil, ErrSecretMissing
	}
	if strings.TrimSpace(cfg.TmnCode) == "" {
		return nil, errors.New("vnpay: tmn code is required")
	}
	if strings.TrimSpace(cfg.PayURL) == "" {
		return nil, errors.New("vnpay: pay url is required")
	}
	if cfg.Locale == "" {
		cfg.Locale = "vn"
	}
	if cfg.ExpireAfter <= 0 {
		cfg.ExpireAfter = 15 * time.Minute
	}
	client := &Client{cfg: cfg, signer: signer, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// PaymentURL returns the signed gateway URL the customer is redirected to.
func (c *Client) PaymentURL(req PaymentRequest) (string, error) {
	if strings.TrimSpace(req.TxnRef) == "" {
		return "", errors.New("vnpay: txn ref is required")
	}
	if req.Amount <= 0 {
		return "", fmt.Errorf("vnpay: amount must be positive, got %d", req.Amount)
	}

	now := c.clock().In(gatewayZone)
	locale := req.Locale
	if locale == "" {
		locale = c.cfg.Locale
	}
	orderInfo := strings.TrimSpace(req.OrderInfo)
	if orderInfo == "" {
		orderInfo = "Thanh toan don hang " + req.TxnRef
	}
	clientIP := strings.TrimSpace(req.ClientIP)
	if clientIP == "" {
		clientIP = "127.0.0.1"
	}

	params := url.Values{}
	params.Set("vnp_Version", apiVersion)
	params.Set("vnp_Command", commandPay)
	params.Set("vnp_TmnCode", c.cfg.TmnCode)
	params.Set("vnp_Amount", strconv.FormatInt(req.Amount*100, 10))
	params.Set("vnp_CurrCode", currencyVND)
	params.Set("vnp_TxnRef", req.TxnRef)
	params.Set("vnp_OrderInfo", orderInfo)
	params.Set("vnp_OrderType", orderTypeAll)
	params.Set("vnp_Locale", locale)
	params.Set("vnp_IpAddr", clientIP)
	params.Set("vnp_CreateDate", now.Format(dateLayout))
	params.Set("vnp_ExpireDate", now.Add(c.cfg.ExpireAfter).Format(dateLayout))
	if c.cfg.ReturnURL != "" {
		params.Set("vnp_ReturnUrl", c.cfg.ReturnURL)
	}
	if bank := strings.TrimSpace(req.BankCode); bank != "" {
		params.Set("vnp_BankCode", bank)
	}

	query := Canonicalize(params)
	return c.cfg.PayURL + "?" + query + "&" + ParamSecureHash + "=" + c.signer.Sign(params), nil
}

// Verify reports whether callback params carry a valid signature.
func (c *Client) Verify(params url.Values) bool {
	return c.signer.Verify(params)
}

// ParseAmount converts vnp_Amount (hundredths of a đồng) to whole đồng.
func ParseAmount(raw string) (int64, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("vnpay: invalid amount %q: %w", raw, err)
	}
	if value < 0 || value%100 != 0 {
		return 0, fmt.Errorf("vnpay: invalid amount %q", raw)
	}
	return value / 100, nil
}

// ParseDate parses a gateway timestamp such as vnp_PayDate.
func ParseDate(raw string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(raw), gatewayZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("vnpay: invalid date %q: %w", raw, err)
	}
	return t.UTC(), nil
}
