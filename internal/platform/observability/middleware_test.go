package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/anh26092005/web-thu-c-sub000/internal/platform/requestctx"
)

func TestClientIPMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		forwarded string
		remote    string
		want      string
	}{
		{name: "first forwarded hop", forwarded: "203.0.113.9, 10.0.0.1", remote: "10.0.0.2:4431", want: "203.0.113.9"},
		{name: "remote addr with port", remote: "198.51.100.7:52100", want: "198.51.100.7"},
		{name: "garbage forwarded falls back", forwarded: "unknown", remote: "198.51.100.7:52100", want: "198.51.100.7"},
		{name: "unparseable remote", remote: "pipe", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got string
			handler := ClientIPMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				got = requestctx.ClientIP(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestRecoveryMiddlewareWritesError(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged through fallback logger")
	}
}

func TestEventLoggerPrefersContextLogger(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zap.DebugLevel)
	ctxCore, ctxLogs := observer.New(zap.DebugLevel)

	log := EventLogger(zap.New(fallbackCore))
	log(context.Background(), "order.placed", map[string]any{"orderId": "ord_1"})
	log(WithLogger(context.Background(), zap.New(ctxCore)), "order.placed", map[string]any{"orderId": "ord_2"})

	if fallbackLogs.Len() != 1 || ctxLogs.Len() != 1 {
		t.Fatalf("expected one entry per logger, got fallback=%d ctx=%d", fallbackLogs.Len(), ctxLogs.Len())
	}
	if got := ctxLogs.All()[0].ContextMap()["orderId"]; got != "ord_2" {
		t.Fatalf("expected context logger to receive ord_2, got %v", got)
	}
}

func TestMaskEmail(t *testing.T) {
	tests := map[string]string{
		"nguyen.an@example.com": "n***@example.com",
		"  ánh@example.vn ":     "á***@example.vn",
		"no-at-sign":            "",
		"@example.com":          "",
	}
	for input, want := range tests {
		if got := MaskEmail(input); got != want {
			t.Fatalf("MaskEmail(%q) = %q, want %q", input, got, want)
		}
	}
}
