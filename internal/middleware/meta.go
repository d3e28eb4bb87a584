package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey   = "response_meta"
	requestStartKey   = "request_start"
	cacheHitKey       = "cache_hit"
	warningKey        = "warning"
	processingTimeKey = "processing_time_ms"
)

// WithResponseMeta stamps the request start so ExtractMeta can report the
// processing time of the handler.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(requestStartKey, time.Now())
		c.Next()
	}
}

// SetMeta stores one response meta entry for the current request.
func SetMeta(c *gin.Context, key string, value interface{}) {
	if c == nil {
		return
	}
	meta, _ := c.Get(responseMetaKey)
	typed, ok := meta.(map[string]interface{})
	if !ok {
		typed = make(map[string]interface{})
		c.Set(responseMetaKey, typed)
	}
	typed[key] = value
}

// SetCacheHit records whether the payload was served from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	SetMeta(c, cacheHitKey, hit)
}

// Warn attaches a non-fatal warning, e.g. an over-capacity enrollment.
func Warn(c *gin.Context, message string) {
	SetMeta(c, warningKey, message)
}

// ExtractMeta returns a copy of the stored meta, adding processing_time_ms
// when the request was stamped. It returns nil when there is nothing to report.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	out := make(map[string]interface{})
	if meta, ok := c.Get(responseMetaKey); ok {
		if typed, ok := meta.(map[string]interface{}); ok {
			for k, v := range typed {
				out[k] = v
			}
		}
	}
	if start, ok := c.Get(requestStartKey); ok {
		if ts, ok := start.(time.Time); ok {
			if _, set := out[processingTimeKey]; !set {
				out[processingTimeKey] = time.Since(ts).Milliseconds()
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
