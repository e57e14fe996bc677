package authservice

import (
	"sync"
	"time"

	"github.com/spaceflow-dev/spaceflow/internal/models"

	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters
type RateLimitConfig struct {
	// RequestsPerWindow is the number of attempts allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// LoginLimit throttles login attempts per client IP and email
var LoginLimit = RateLimitConfig{
	RequestsPerWindow: 5,
	Window:            time.Minute,
	Burst:             5,
}

// LoginLimiter keeps one token bucket per key
type LoginLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int

	mu          sync.Mutex
	lastCleanup time.Time
}

func NewLoginLimiter(cfg RateLimitConfig) *LoginLimiter {
	return &LoginLimiter{
		rate:        rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()),
		burst:       cfg.Burst,
		lastCleanup: time.Now(),
	}
}

// LoginKey is the bucket for one client address trying one account
func LoginKey(clientIP, email string) string {
	return clientIP + "|" + models.NormalizeEmail(email)
}

// Allow consumes a token for key. When refused it returns how long to wait.
func (l *LoginLimiter) Allow(key string) (bool, time.Duration) {
	limiter := l.get(key)
	if limiter.Allow() {
		return true, 0
	}

	reservation := limiter.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()
	return false, delay
}

func (l *LoginLimiter) get(key string) *rate.Limiter {
	if limiter, ok := l.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}

	actual, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.rate, l.burst))
	l.maybeCleanup()
	return actual.(*rate.Limiter)
}

// maybeCleanup drops idle limiters (full buckets) at most every 5 minutes
func (l *LoginLimiter) maybeCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCleanup) < 5*time.Minute {
		return
	}
	l.lastCleanup = time.Now()

	l.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(l.burst) {
			l.limiters.Delete(key)
		}
		return true
	})
}
