package httpapi

import (
	"errors"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// AdminGuard checks bearer tokens on the back-office routes. Only a bcrypt
// hash of the configured token is kept in memory.
type AdminGuard struct {
	hash    []byte
	limiter *attemptLimiter
}

// NewAdminGuard hashes token. An empty token disables every admin route.
func NewAdminGuard(token string) (*AdminGuard, error) {
	guard := &AdminGuard{limiter: newAttemptLimiter(10, time.Minute)}
	token = strings.TrimSpace(token)
	if token == "" {
		return guard, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	guard.hash = hash
	return guard, nil
}

// Enabled reports whether an admin token was configured.
func (g *AdminGuard) Enabled() bool {
	return g != nil && len(g.hash) > 0
}

func (g *AdminGuard) Verify(token string) bool {
	token = strings.TrimSpace(token)
	if !g.Enabled() || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(g.hash, []byte(token)) == nil
}

func (a *API) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.admin.Enabled() {
			writeError(w, http.StatusForbidden, errors.New("admin api disabled"))
			return
		}

		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		if !a.admin.limiter.Allow(clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, errors.New("too many admin attempts"))
			return
		}
		if !a.admin.Verify(authorization[len("Bearer "):]) {
			writeError(w, http.StatusUnauthorized, errors.New("invalid admin token"))
			return
		}
		a.admin.limiter.Reset(clientKey(r))

		next.ServeHTTP(w, r)
	})
}

// attemptLimiter allows at most max attempts per key inside a sliding window.
type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

// Reset forgets the attempts of key after a successful authentication.
func (l *attemptLimiter) Reset(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}
