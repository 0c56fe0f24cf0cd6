package idempotency

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/anh26092005/web-thu-c-sub000/internal/platform/httpx"
	"github.com/anh26092005/web-thu-c-sub000/internal/platform/requestctx"
)

const (
	defaultHeaderName   = "Idempotency-Key"
	replayHeaderName    = "X-Idempotent-Replay"
	defaultMaxBodyBytes = 64 * 1024
	maxKeyLength        = 255
)

// Messages are shown verbatim by the storefront checkout form, which expects
// plain text on the order endpoint.
const (
	msgKeyRequired  = "Thiếu mã chống gửi trùng đơn hàng"
	msgKeyInvalid   = "Mã chống gửi trùng đơn hàng không hợp lệ"
	msgKeyConflict  = "Mã chống gửi trùng đã được dùng cho một đơn hàng khác"
	msgInProgress   = "Đơn hàng đang được xử lý, vui lòng chờ trong giây lát"
	msgStoreFailed  = "Không thể tạo đơn hàng, vui lòng thử lại sau"
	msgBodyTooLarge = "request body too large"
)

type middlewareConfig struct {
	headerName   string
	ttl          time.Duration
	requireKey   bool
	maxBodyBytes int64
	scope        func(*http.Request) string
	clock        func() time.Time
	logger       *zap.Logger
}

// MiddlewareOption customises the middleware.
type MiddlewareOption func(*middlewareConfig)

// WithHeader overrides the header carrying the submission key.
func WithHeader(name string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if name = strings.TrimSpace(name); name != "" {
			cfg.headerName = name
		}
	}
}

// WithTTL configures how long completed submissions are replayed.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithRequiredKey rejects guarded requests that carry no key. By default such
// requests pass straight through so older storefront builds keep working.
func WithRequiredKey() MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.requireKey = true
	}
}

// WithMaxBodyBytes bounds the body buffered for fingerprinting.
func WithMaxBodyBytes(limit int64) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if limit > 0 {
			cfg.maxBodyBytes = limit
		}
	}
}

// WithScope partitions keys, e.g. by signed-in customer. Requests with the
// same key in different scopes never collide.
func WithScope(scope func(*http.Request) string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.scope = scope
	}
}

// WithLogger sets the fallback logger used when the request carries none.
func WithLogger(logger *zap.Logger) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Middleware makes POST submissions replay-safe: a retried checkout with the
// same key returns the stored response instead of placing a second order.
// Server errors are not stored, so the key is released for another attempt.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	cfg := middlewareConfig{
		headerName:   defaultHeaderName,
		ttl:          DefaultTTL,
		maxBodyBytes: defaultMaxBodyBytes,
		clock:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			key := strings.TrimSpace(r.Header.Get(cfg.headerName))
			if key == "" {
				if cfg.requireKey {
					httpx.WritePlainText(w, http.StatusBadRequest, msgKeyRequired)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeyLength {
				httpx.WritePlainText(w, http.StatusBadRequest, msgKeyInvalid)
				return
			}

			logger := cfg.loggerFor(r)

			body, err := bufferBody(r, cfg.maxBodyBytes)
			if err != nil {
				if errors.Is(err, errBodyTooLarge) {
					httpx.WritePlainText(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
					return
				}
				logger.Warn("idempotency: read body failed", zap.Error(err))
				httpx.WritePlainText(w, http.StatusBadRequest, msgStoreFailed)
				return
			}

			scope := ""
			if cfg.scope != nil {
				scope = strings.TrimSpace(cfg.scope(r))
			}
			storeKey := scopedKey(key, scope)
			fingerprint := requestFingerprint(r, body, scope)

			reservation, err := store.Reserve(r.Context(), storeKey, fingerprint, cfg.clock().UTC(), cfg.ttl)
			if err != nil {
				if errors.Is(err, ErrFingerprintMismatch) {
					httpx.WritePlainText(w, http.StatusConflict, msgKeyConflict)
					return
				}
				logger.Error("idempotency: reserve failed", zap.Error(err))
				httpx.WritePlainText(w, http.StatusInternalServerError, msgStoreFailed)
				return
			}

			switch reservation.State {
			case ReservationStateCompleted:
				writeStoredResponse(w, reservation.Record)
				return
			case ReservationStatePending:
				httpx.WritePlainText(w, http.StatusConflict, msgInProgress)
				return
			}

			recorder := newResponseRecorder()
			next.ServeHTTP(recorder, r)

			if recorder.Status() >= http.StatusInternalServerError {
				if err := store.Release(r.Context(), storeKey, fingerprint); err != nil {
					logger.Warn("idempotency: release after server error failed", zap.Error(err))
				}
				recorder.flushTo(w)
				return
			}

			resp := Response{Status: recorder.Status(), Headers: recorder.header, Body: recorder.body.Bytes()}
			if err := store.SaveResponse(r.Context(), storeKey, fingerprint, resp, cfg.clock().UTC(), cfg.ttl); err != nil {
				// The order exists at this point; returning the handler output is
				// better than an error that invites a duplicate submission.
				logger.Error("idempotency: save response failed", zap.Error(err))
				if releaseErr := store.Release(r.Context(), storeKey, fingerprint); releaseErr != nil {
					logger.Warn("idempotency: release after save failure failed", zap.Error(releaseErr))
				}
			}
			recorder.flushTo(w)
		})
	}
}

func (cfg middlewareConfig) loggerFor(r *http.Request) *zap.Logger {
	if logger := requestctx.Logger(r.Context()); logger != nil && logger != requestctx.NoopLogger() {
		return logger
	}
	if cfg.logger != nil {
		return cfg.logger
	}
	return zap.NewNop()
}

var errBodyTooLarge = errors.New("idempotency: body too large")

func bufferBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func requestFingerprint(r *http.Request, body []byte, scope string) string {
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte('|')
	b.WriteString(r.URL.Path)
	b.WriteByte('|')
	b.WriteString(r.URL.RawQuery)
	b.WriteByte('|')
	b.WriteString(scope)
	b.WriteByte('|')
	if len(body) > 0 {
		b.WriteString(sha256Hex(body))
	}
	return sha256Hex([]byte(b.String()))
}

func scopedKey(key, scope string) string {
	if scope == "" {
		return key
	}
	return scope + "|" + key
}

func writeStoredResponse(w http.ResponseWriter, record Record) {
	header := w.Header()
	for name, values := range headersFromRecord(record.ResponseHeaders) {
		header[name] = values
	}
	header.Set(replayHeaderName, "true")

	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(record.ResponseBody) > 0 {
		_, _ = w.Write(record.ResponseBody)
	}
}

// responseRecorder buffers the handler output until the outcome is persisted.
type responseRecorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{header: make(http.Header)}
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) WriteHeader(status int) {
	if r.status == 0 && status > 0 {
		r.status = status
	}
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(data)
}

func (r *responseRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseRecorder) flushTo(w http.ResponseWriter) {
	dst := w.Header()
	for name, values := range r.header {
		dst[name] = values
	}
	w.WriteHeader(r.Status())
	if r.body.Len() > 0 {
		_, _ = w.Write(r.body.Bytes())
	}
}
