package httpx

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/splax/deskpulse/pkg/clock"
)

const rateLimiterSweepInterval = 5 * time.Minute

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, rule rateRule) rateDecision
	Close()
}

// rateRule allows limit requests per window. A non-positive limit disables it.
type rateRule struct {
	limit  int
	window time.Duration
}

func (r rateRule) normalized() rateRule {
	if r.window <= 0 {
		r.window = time.Minute
	}
	return r
}

type rateDecision struct {
	allowed   bool
	count     int
	windowEnd time.Time
}

func (d rateDecision) remaining(rule rateRule) int {
	return max(rule.limit-d.count, 0)
}

// rateScope decides which bucket a request is counted in. name labels the
// rate limit metric.
type rateScope struct {
	name string
	key  func(*http.Request) string
}

var (
	// scopeUser counts a caller across every workspace.
	scopeUser = rateScope{name: "user", key: func(req *http.Request) string {
		if userID := authUserID(req); userID != "" {
			return "user:" + userID
		}
		return ""
	}}
	// scopeWorkspace counts a caller within the workspace in the path, so a
	// busy workspace does not exhaust the caller's budget elsewhere.
	scopeWorkspace = rateScope{name: "workspace", key: func(req *http.Request) string {
		return workspaceUserKey("ws", req.PathValue("id"), authUserID(req))
	}}
	// scopePresence counts presence upgrades per workspace and user.
	scopePresence = rateScope{name: "presence", key: func(req *http.Request) string {
		return workspaceUserKey("presence", strings.TrimSpace(req.URL.Query().Get("workspace_id")), authUserID(req))
	}}
)

func authUserID(req *http.Request) string {
	info, _ := authInfoFromContext(req.Context())
	return info.UserID
}

func workspaceUserKey(prefix, workspaceID, userID string) string {
	if workspaceID == "" || userID == "" {
		return ""
	}
	return prefix + ":" + workspaceID + ":user:" + userID
}

// guard authenticates the request and applies rule in scope.
func (r *Router) guard(route string, scope rateScope, rule rateRule, next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.withRateLimit(route, scope, rule, next))
}

func (r *Router) withRateLimit(route string, scope rateScope, rule rateRule, next http.HandlerFunc) http.HandlerFunc {
	rule = rule.normalized()
	return func(w http.ResponseWriter, req *http.Request) {
		if rule.limit <= 0 || r.limiter == nil {
			next(w, req)
			return
		}
		key, label := scope.key(req), scope.name
		if key == "" {
			key, label = "ip:"+clientIP(req), "ip"
		}
		decision := r.limiter.Allow(req.Context(), key, rule)
		setRateHeaders(w.Header(), rule, decision)
		if !decision.allowed {
			r.recordRateLimitHit(route, label)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, req)
	}
}

func setRateHeaders(h http.Header, rule rateRule, decision rateDecision) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(rule.limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(decision.remaining(rule)))
	if !decision.windowEnd.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
	if !decision.allowed && !decision.windowEnd.IsZero() {
		wait := time.Until(decision.windowEnd)
		h.Set("Retry-After", strconv.Itoa(max(int(wait.Round(time.Second)/time.Second), 1)))
	}
}

// memoryRateLimiter keeps fixed-window buckets in process. Expired buckets
// are swept on a clock ticker.
type memoryRateLimiter struct {
	clock   clock.Clock
	mu      sync.Mutex
	buckets map[string]rateDecision
	ticker  *clock.Ticker
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryRateLimiter returns an in-process limiter. A nil clk uses the
// wall clock.
func NewMemoryRateLimiter(clk clock.Clock) RateLimiter {
	if clk == nil {
		clk = clock.Real()
	}
	rl := &memoryRateLimiter{
		clock:   clk,
		buckets: make(map[string]rateDecision),
		ticker:  clk.NewTicker(rateLimiterSweepInterval),
		stop:    make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

func (rl *memoryRateLimiter) Allow(_ context.Context, key string, rule rateRule) rateDecision {
	if rule.limit <= 0 {
		return rateDecision{allowed: true}
	}
	rule = rule.normalized()
	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[key]
	if !ok || !now.Before(b.windowEnd) {
		b = rateDecision{windowEnd: now.Add(rule.window)}
	}
	if b.count >= rule.limit {
		b.allowed = false
		return b
	}
	b.count++
	b.allowed = true
	rl.buckets[key] = b
	return b
}

func (rl *memoryRateLimiter) sweepLoop() {
	defer rl.ticker.Stop()
	for {
		select {
		case now := <-rl.ticker.C:
			rl.sweep(now)
		case <-rl.stop:
			return
		}
	}
}

func (rl *memoryRateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, b := range rl.buckets {
		if !now.Before(b.windowEnd) {
			delete(rl.buckets, key)
		}
	}
}

func (rl *memoryRateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

func (rl *memoryRateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}
