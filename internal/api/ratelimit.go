package api

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/wonny/regimelab/backend/pkg/logger"
	"github.com/wonny/regimelab/backend/pkg/redis"
)

// maxLocalClients bounds the in-process limiter map
const maxLocalClients = 10000

// RateLimiter per-client request limiter: Redis sliding window when Redis is
// enabled, an in-process token bucket otherwise (or when Redis errors)
type RateLimiter struct {
	shared    *redis.RateLimiter
	perSecond float64
	burst     int

	mu    sync.Mutex
	local map[string]*rate.Limiter

	proxies TrustedProxies
	logger  *logger.Logger
}

// NewRateLimiter creates a limiter; client may be redis.Disabled()
func NewRateLimiter(client *redis.Client, perSecond float64, burst int, log *logger.Logger) *RateLimiter {
	return &RateLimiter{
		shared:    redis.NewRateLimiter(client, "ratelimit"),
		perSecond: perSecond,
		burst:     burst,
		local:     make(map[string]*rate.Limiter),
		logger:    log.WithComponent("api.ratelimit"),
	}
}

// WithTrustedProxies honours X-Forwarded-For only from these peers
func (l *RateLimiter) WithTrustedProxies(p TrustedProxies) *RateLimiter {
	l.proxies = p
	return l
}

// Allow reports whether clientID may make one more request now
func (l *RateLimiter) Allow(r *http.Request, clientID string) bool {
	if l.shared.Enabled() {
		ok, _, err := l.shared.Allow(r.Context(), redis.APIRateLimit(clientID, l.perSecond, l.burst))
		if err == nil {
			return ok
		}
		l.logger.WithError(err).Warn("Redis rate limit failed, using local limiter")
	}
	return l.localLimiter(clientID).Allow()
}

func (l *RateLimiter) localLimiter(clientID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.local[clientID]
	if !ok {
		if len(l.local) >= maxLocalClients {
			l.local = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(rate.Limit(l.perSecond), l.burst)
		l.local[clientID] = lim
	}
	return lim
}

// Middleware rejects over-limit requests with 429
func (l *RateLimiter) Middleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(r, l.proxies.ClientIP(r)) {
				w.Header().Set("Retry-After", strconv.Itoa(1))
				writeJSON(w, http.StatusTooManyRequests, map[string]string{
					"error": "rate limit exceeded",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TrustedProxies reverse proxies allowed to set X-Forwarded-For
type TrustedProxies []netip.Prefix

// ParseTrustedProxies parses IPs and CIDRs ("10.0.0.1", "10.0.0.0/8")
func ParseTrustedProxies(list []string) (TrustedProxies, error) {
	out := make(TrustedProxies, 0, len(list))
	for _, s := range list {
		if prefix, err := netip.ParsePrefix(s); err == nil {
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", s, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func (t TrustedProxies) contains(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range t {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP remote host, unless it is a trusted proxy: then the nearest
// X-Forwarded-For hop that is not itself a trusted proxy
func (t TrustedProxies) ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !t.contains(host) {
		return host
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if _, err := netip.ParseAddr(hop); err != nil {
			break
		}
		if !t.contains(hop) {
			return hop
		}
	}
	return host
}
