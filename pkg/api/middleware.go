package api

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/utils"
)

// GatewayOptions configures the outer request gateway.
type GatewayOptions struct {
	// AllowedOrigins for CORS. Empty disables CORS headers; "*" allows any.
	AllowedOrigins []string
	// RPS and Burst gate per-client request rates. RPS <= 0 disables
	// limiting.
	RPS   float64
	Burst int
}

type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

func (p *limiterPool) allow(key string) bool {
	p.mu.Lock()
	l, ok := p.m[key]
	if !ok {
		burst := p.burst
		if burst <= 0 {
			burst = 10
		}
		l = rate.NewLimiter(rate.Limit(p.rps), burst)
		p.m[key] = l
	}
	p.mu.Unlock()
	return l.Allow()
}

// Gateway wraps the router with request logging, CORS, and per-client rate
// limiting. It is the outermost handler on the server.
func Gateway(opts GatewayOptions) func(http.Handler) http.Handler {
	var pool *limiterPool
	if opts.RPS > 0 {
		pool = &limiterPool{m: make(map[string]*rate.Limiter), rps: opts.RPS, burst: opts.Burst}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.LogRequest(r)

			if origin := r.Header.Get("Origin"); origin != "" && len(opts.AllowedOrigins) > 0 {
				if allowed := matchOrigin(opts.AllowedOrigins, origin); allowed != "" {
					h := w.Header()
					h.Set("Access-Control-Allow-Origin", allowed)
					h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
					h.Set("Vary", "Origin")
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if pool != nil && !pool.allow(clientIP(r)) {
				utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func matchOrigin(allowed []string, origin string) string {
	for _, a := range allowed {
		if a == "*" {
			return "*"
		}
		if a == origin {
			return origin
		}
	}
	return ""
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
