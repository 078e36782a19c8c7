package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// counterWindow 是单个客户端 IP 在当前时间窗内的请求计数。
type counterWindow struct {
	count   int
	resetAt time.Time
}

// ipLimiter 基于固定时间窗对每个客户端 IP 计数。
// 单进程内存实现；窗口过期时惰性重置，长期不活跃的条目由周期清理移除。
type ipLimiter struct {
	mu      sync.Mutex
	windows map[string]*counterWindow
	max     int
	window  time.Duration
}

func (l *ipLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		l.windows[key] = &counterWindow{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	w.count++
	return w.count <= l.max
}

func (l *ipLimiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, key)
		}
	}
}

// RateLimit 返回一个 Gin 中间件，基于客户端 IP 做速率限制。
// maxRequests: 时间窗内允许的最大请求数；window: 时间窗长度。
// 注意：如果服务部署在反向代理后面，需要保证 ClientIP 能取到真实 IP。
func RateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	if maxRequests <= 0 {
		panic("maxRequests must be positive for RateLimit middleware")
	}
	if window <= 0 {
		panic("window duration must be positive for RateLimit middleware")
	}

	limiter := &ipLimiter{
		windows: make(map[string]*counterWindow),
		max:     maxRequests,
		window:  window,
	}

	// 周期性清理过期窗口，防止 IP 条目无限增长
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			limiter.cleanup(time.Now())
		}
	}()

	return func(c *gin.Context) {
		if !limiter.allow(c.ClientIP(), time.Now()) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}
