package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/aqforecast/aqforecast/internal/api/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	RequestLimit int
	WindowLength time.Duration
}

var (
	// RefreshRateLimit applies to refresh requests, each of which fans out
	// to every enabled source (6 req/min).
	RefreshRateLimit = RateLimitConfig{
		RequestLimit: 6,
		WindowLength: time.Minute,
	}

	// StandardRateLimit applies to read endpoints (300 req/min).
	StandardRateLimit = RateLimitConfig{
		RequestLimit: 300,
		WindowLength: time.Minute,
	}
)

// RateLimitByIP limits requests per client IP. Behind a proxy, chi's RealIP
// middleware must run first.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(cfg.WindowLength.Seconds()))

	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			problem := models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.")
			problem.Instance = r.URL.Path
			w.Header().Set("Retry-After", retryAfter)
			problem.Write(w)
		}),
	)
}
