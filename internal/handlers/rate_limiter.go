package handlers

import (
	"net/netip"
	"strings"
	"sync"
	"time"
)

// couponAttemptLimiter throttles coupon validation per client so codes cannot
// be enumerated from one source. IPv6 clients share a budget per /64, since a
// single subscriber usually controls the whole prefix.
type couponAttemptLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu        sync.Mutex
	clients   map[string]attemptWindow
	nextSweep time.Time
}

type attemptWindow struct {
	attempts int
	closes   time.Time
}

func newCouponAttemptLimiter(limit int, window time.Duration, clock func() time.Time) *couponAttemptLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &couponAttemptLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		clients: make(map[string]attemptWindow),
	}
}

// Allow records one attempt for clientIP. When the budget is spent it reports
// false and how long until the client's window closes.
func (l *couponAttemptLimiter) Allow(clientIP string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	key := attemptKey(clientIP)
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(now)

	current, ok := l.clients[key]
	if !ok || !now.Before(current.closes) {
		l.clients[key] = attemptWindow{attempts: 1, closes: now.Add(l.window)}
		return true, 0
	}
	if current.attempts >= l.limit {
		return false, current.closes.Sub(now)
	}
	current.attempts++
	l.clients[key] = current
	return true, 0
}

// sweepLocked drops closed windows at most once per window length.
func (l *couponAttemptLimiter) sweepLocked(now time.Time) {
	if now.Before(l.nextSweep) {
		return
	}
	for key, w := range l.clients {
		if !now.Before(w.closes) {
			delete(l.clients, key)
		}
	}
	l.nextSweep = now.Add(l.window)
}

func attemptKey(clientIP string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(clientIP))
	if err != nil {
		return "unknown"
	}
	addr = addr.Unmap().WithZone("")
	if addr.Is6() {
		if prefix, err := addr.Prefix(64); err == nil {
			return prefix.String()
		}
	}
	return addr.String()
}
