// Package middleware provides HTTP middleware for the application.
package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RateLimiter implements a token bucket rate limiter per IP address.
type RateLimiter struct {
	mu       sync.RWMutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
	logger   *zap.Logger
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(rate int, window time.Duration, logger *zap.Logger) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		logger:   logger,
	}

	// Start cleanup goroutine
	go rl.cleanup()

	return rl
}

// cleanup removes stale visitors periodically.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for ip, v := range rl.visitors {
			if now.Sub(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// allow checks if a request from the given IP is allowed.
func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{
			tokens:    rl.rate - 1,
			lastReset: now,
		}
		return true
	}

	// Reset tokens if window has passed
	if now.Sub(v.lastReset) >= rl.window {
		v.tokens = rl.rate - 1
		v.lastReset = now
		return true
	}

	// Check if tokens available
	if v.tokens > 0 {
		v.tokens--
		return true
	}

	return false
}

// remaining returns the number of remaining requests for an IP.
func (rl *RateLimiter) remaining(ip string) int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	v, exists := rl.visitors[ip]
	if !exists {
		return rl.rate
	}

	now := time.Now()
	if now.Sub(v.lastReset) >= rl.window {
		return rl.rate
	}

	return v.tokens
}

// RateLimit returns HTTP middleware that rate limits requests.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getClientIP(r)

			if !rl.allow(ip) {
				rl.logger.Warn("rate limit exceeded",
					zap.String("ip", ip),
					zap.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", "60")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			// Set rate limit headers
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.remaining(ip)))

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts the client IP address from a request.
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (set by proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP in the list
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return strings.TrimSpace(xff[:i])
			}
		}
		return strings.TrimSpace(xff)
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr - use net.SplitHostPort for proper IPv4/IPv6 handling
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// If SplitHostPort fails, return RemoteAddr as-is (may not have port)
		return r.RemoteAddr
	}
	return host
}

// PhoneRateLimiter throttles inbound messages per sender phone number. A
// number that floods the webhook gets blocked for a cool-down period so a
// runaway sender cannot burn the AI budget.
type PhoneRateLimiter struct {
	mu      sync.RWMutex
	senders map[string]*senderActivity
	logger  *zap.Logger
}

type senderActivity struct {
	count     int
	firstSeen time.Time
	blockedAt time.Time
}

const (
	maxMessagesPerWindow = 20
	messageWindow        = time.Minute
	senderBlockDuration  = 10 * time.Minute
)

// NewPhoneRateLimiter creates a new per-phone message rate limiter.
func NewPhoneRateLimiter(logger *zap.Logger) *PhoneRateLimiter {
	prl := &PhoneRateLimiter{
		senders: make(map[string]*senderActivity),
		logger:  logger,
	}

	// Start cleanup goroutine
	go prl.cleanup()

	return prl
}

// cleanup removes stale entries periodically.
func (prl *PhoneRateLimiter) cleanup() {
	ticker := time.NewTicker(senderBlockDuration)
	defer ticker.Stop()

	for range ticker.C {
		prl.mu.Lock()
		now := time.Now()
		for key, a := range prl.senders {
			// Remove if blocked and block expired, or if window expired
			if (!a.blockedAt.IsZero() && now.Sub(a.blockedAt) > senderBlockDuration) ||
				(a.blockedAt.IsZero() && now.Sub(a.firstSeen) > messageWindow) {
				delete(prl.senders, key)
			}
		}
		prl.mu.Unlock()
	}
}

// Check records an inbound message from the given phone and reports whether
// it should be processed.
func (prl *PhoneRateLimiter) Check(phone string) bool {
	prl.mu.Lock()
	defer prl.mu.Unlock()

	now := time.Now()

	a, exists := prl.senders[phone]
	if !exists {
		prl.senders[phone] = &senderActivity{
			count:     1,
			firstSeen: now,
		}
		return true
	}

	// Check if currently blocked
	if !a.blockedAt.IsZero() {
		if now.Sub(a.blockedAt) < senderBlockDuration {
			return false
		}
		// Block expired, reset
		a.count = 1
		a.firstSeen = now
		a.blockedAt = time.Time{}
		return true
	}

	// Check if window expired
	if now.Sub(a.firstSeen) > messageWindow {
		a.count = 1
		a.firstSeen = now
		return true
	}

	a.count++

	if a.count > maxMessagesPerWindow {
		a.blockedAt = now
		prl.logger.Warn("sender rate limit exceeded, blocking",
			zap.String("phone", phone),
			zap.Int("messages", a.count),
		)
		return false
	}

	return true
}

// RemainingMessages returns how many more messages the phone may send in
// the current window.
func (prl *PhoneRateLimiter) RemainingMessages(phone string) int {
	prl.mu.RLock()
	defer prl.mu.RUnlock()

	a, exists := prl.senders[phone]
	if !exists {
		return maxMessagesPerWindow
	}

	if !a.blockedAt.IsZero() {
		return 0
	}

	now := time.Now()
	if now.Sub(a.firstSeen) > messageWindow {
		return maxMessagesPerWindow
	}

	remaining := maxMessagesPerWindow - a.count
	if remaining < 0 {
		return 0
	}
	return remaining
}
