package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/anh26092005/web-thu-c-sub000/internal/platform/observability"
	"github.com/anh26092005/web-thu-c-sub000/internal/services"
)

const (
	defaultTimeout            = 10 * time.Second
	maxResponseBody           = 16 * 1024
	templateOrderConfirmation = "order_confirmation"
)

// ErrRelayUnavailable indicates the relay could not accept the message; callers should retry.
var ErrRelayUnavailable = errors.New("mailer: relay unavailable")

// HTTPMailer posts order confirmations to a JSON mail relay.
type HTTPMailer struct {
	endpoint string
	token    string
	sender   string
	client   *http.Client
}

var _ services.Mailer = (*HTTPMailer)(nil)

// Option customises an HTTPMailer.
type Option func(*HTTPMailer)

// WithToken sets the bearer token sent to the relay.
func WithToken(token string) Option {
	return func(m *HTTPMailer) {
		m.token = strings.TrimSpace(token)
	}
}

// WithSender sets the From address.
func WithSender(address string) Option {
	return func(m *HTTPMailer) {
		m.sender = strings.TrimSpace(address)
	}
}

// WithTimeout bounds each relay call.
func WithTimeout(d time.Duration) Option {
	return func(m *HTTPMailer) {
		if d > 0 {
			m.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(m *HTTPMailer) {
		if client != nil {
			m.client = client
		}
	}
}

// NewHTTPMailer constructs a relay-backed mailer.
func NewHTTPMailer(endpoint string, opts ...Option) (*HTTPMailer, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("mailer: endpoint is required")
	}
	m := &HTTPMailer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

type relayRequest struct {
	Template string                     `json:"template"`
	From     string                     `json:"from,omitempty"`
	To       string                     `json:"to"`
	Data     services.OrderConfirmation `json:"data"`
}

type relayResponse struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// SendOrderConfirmation posts the payload. 5xx responses and transport errors
// are returned as errors so the job is retried; 4xx responses are reported as
// an unsuccessful result.
func (m *HTTPMailer) SendOrderConfirmation(ctx context.Context, payload services.OrderConfirmation) (services.MailerResult, error) {
	if strings.TrimSpace(payload.Email) == "" {
		return services.MailerResult{Success: false, Message: "recipient email is required"}, nil
	}

	body, err := json.Marshal(relayRequest{
		Template: templateOrderConfirmation,
		From:     m.sender,
		To:       payload.Email,
		Data:     payload,
	})
	if err != nil {
		return services.MailerResult{}, fmt.Errorf("mailer: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return services.MailerResult{}, fmt.Errorf("mailer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}
	if payload.OrderNumber != "" {
		req.Header.Set("Idempotency-Key", payload.OrderNumber)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return services.MailerResult{}, fmt.Errorf("%w: %v", ErrRelayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return services.MailerResult{}, fmt.Errorf("%w: read response: %v", ErrRelayUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return services.MailerResult{}, fmt.Errorf("%w: status %d", ErrRelayUnavailable, resp.StatusCode)
	}

	var ack relayResponse
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &ack); err != nil {
			ack = relayResponse{Message: strings.TrimSpace(string(raw))}
		}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		message := ack.Message
		if message == "" {
			message = fmt.Sprintf("relay rejected message with status %d", resp.StatusCode)
		}
		return services.MailerResult{Success: false, Message: message}, nil
	}
	// A 2xx without an explicit verdict counts as accepted.
	success := ack.Success == nil || *ack.Success
	return services.MailerResult{Success: success, Message: ack.Message}, nil
}

// LogMailer records confirmations in the log instead of sending them.
// Used when no relay endpoint is configured.
type LogMailer struct {
	logger *zap.Logger
}

var _ services.Mailer = (*LogMailer)(nil)

// NewLogMailer constructs a log-only mailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendOrderConfirmation(_ context.Context, payload services.OrderConfirmation) (services.MailerResult, error) {
	m.logger.Info("order confirmation (log mailer)",
		zap.String("orderId", payload.OrderID),
		zap.String("orderNumber", payload.OrderNumber),
		zap.String("email", observability.MaskEmail(payload.Email)),
		zap.Int("items", len(payload.Items)),
		zap.String("totalPrice", payload.TotalPrice),
	)
	return services.MailerResult{Success: true, Message: "logged"}, nil
}
