package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/music-school-api/pkg/errors"
	"github.com/noah-isme/music-school-api/pkg/response"
)

type windowCounter interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

type throttleRecorder interface {
	RecordLogin(result string)
}

// LoginRateLimit allows at most limit login attempts per client IP within a
// fixed window. A failing counter lets requests through.
func LoginRateLimit(counter windowCounter, limit int, window time.Duration, metrics throttleRecorder, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if counter == nil || limit <= 0 {
			c.Next()
			return
		}

		key := fmt.Sprintf("school:ratelimit:login:%s", c.ClientIP())
		count, err := counter.Increment(c.Request.Context(), key, window)
		if err != nil {
			logger.Warn("login rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		if count > int64(limit) {
			if metrics != nil {
				metrics.RecordLogin("throttled")
			}
			limited := appErrors.Clone(appErrors.ErrTooManyRequests, "too many login attempts, try again later").
				WithDetails(map[string]interface{}{"retry_after_seconds": int(window.Seconds())})
			response.Error(c, limited)
			c.Abort()
			return
		}
		c.Next()
	}
}
