// Package apiserver implements the operator-surface *contract* named in
// spec.md §6: route shapes, a bearer-token middleware, and a fixed-window
// rate limiter, grounded on the teacher's gateway.Middleware
// (internal/gateway/middleware.go) and HFT JWT middleware
// (internal/hft/middleware/auth.go). Persistence and business logic behind
// these routes (dashboard data, settings) are out of scope per spec.md §1;
// this package exists so the orchestrator has somewhere to report into and
// an emergency-stop endpoint that reaches Loop.EmergencyStop.
package apiserver

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

// Claims is the bearer-token payload the operator surface expects.
type Claims struct {
	Subject string `json:"sub"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// authMiddleware validates a Bearer JWT signed with secret, exempting the
// paths spec.md §6 names (/health and /).
func authMiddleware(secret string) gin.HandlerFunc {
	exempt := map[string]bool{"/health": true, "/": true}
	return func(c *gin.Context) {
		if exempt[c.Request.URL.Path] {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		var claims Claims
		token, err := jwt.ParseWithClaims(header[len("Bearer "):], &claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("subject", claims.Subject)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// rateLimiter is a fixed-window-like limiter keyed by source address, per
// spec.md §6 (100 req/60s per source address, /health and / exempt).
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

func newRateLimiter(requestsPerWindow int, window time.Duration) *rateLimiter {
	rps := float64(requestsPerWindow) / window.Seconds()
	return &rateLimiter{limiters: make(map[string]*rate.Limiter), rps: rps, burst: requestsPerWindow}
}

func (r *rateLimiter) middleware() gin.HandlerFunc {
	exempt := map[string]bool{"/health": true, "/": true}
	return func(c *gin.Context) {
		if exempt[c.Request.URL.Path] {
			c.Next()
			return
		}

		ip := c.ClientIP()
		r.mu.Lock()
		limiter, ok := r.limiters[ip]
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(r.rps), r.burst)
			r.limiters[ip] = limiter
		}
		r.mu.Unlock()

		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
