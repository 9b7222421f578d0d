package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	limiter "github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimit allows limit requests per period per client IP, answering 429
// beyond that. State is in-process; each call gets its own store, so mount
// one instance per scope.
func RateLimit(limit int64, period time.Duration) gin.HandlerFunc {
	l := limiter.New(memory.NewStore(), limiter.Rate{Period: period, Limit: limit})
	return mgin.NewMiddleware(l)
}
