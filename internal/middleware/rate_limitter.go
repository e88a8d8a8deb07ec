package middleware

import (
	"FaceBridge/internal/api/facedetector"
	"FaceBridge/pkg/handlerUtil"
	"FaceBridge/pkg/response"
	"net/http"
	"sync"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

var (
	ErrTooManyRequests = response.NewKindError(http.StatusTooManyRequests, facedetector.ErrorKind, "too many detection requests")
)

// rateLimiter keeps one token bucket per caller. Authenticated callers are
// keyed by token subject, anonymous ones by address.
type rateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*rate.Limiter
	rate      rate.Limit
	burstSize int
}

func newRateLimiter(reqRate rate.Limit, burstSize int) *rateLimiter {
	return &rateLimiter{
		buckets:   make(map[string]*rate.Limiter),
		rate:      reqRate,
		burstSize: burstSize,
	}
}

func (r *rateLimiter) allow(key string) bool {
	r.mu.Lock()
	limiter, ok := r.buckets[key]
	if !ok {
		limiter = rate.NewLimiter(r.rate, r.burstSize)
		r.buckets[key] = limiter
	}
	r.mu.Unlock()

	return limiter.Allow()
}

func callerKey(ctx *fiber.Ctx) string {
	if caller, ok := ctx.Locals(CallerKey).(string); ok && caller != "" {
		return "caller:" + caller
	}
	return "ip:" + ctx.IP()
}

func (m *middleware) NewRateLimiter(ctx *fiber.Ctx) error {
	key := callerKey(ctx)
	if m.rateLimitter.allow(key) {
		return ctx.Next()
	}

	return handlerUtil.New(m.log).Handle(ctx, m.GetRequestID(ctx), ErrTooManyRequests, ctx.Path(), "rate_limit:"+key)
}
