package httpx

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/deskpulse/internal/broadcast"
	"github.com/splax/deskpulse/internal/service/records"
	"github.com/splax/deskpulse/internal/service/workspace"
	"github.com/splax/deskpulse/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	jwtSecret  string
	workspaces workspace.Service
	records    records.Service
	bus        broadcast.Bus
	upgrader   websocket.Upgrader
	bridge     ws.BridgeOptions
	limiter    RateLimiter
	writeRule  rateRule
	dbHealth   func(context.Context) error
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	ctx    context.Context
	cancel context.CancelFunc

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
	presenceDropped    *prometheus.CounterVec
}

// Options configures a Router. Workspaces and Records are required.
type Options struct {
	Logger      *slog.Logger
	JWTSecret   string
	Workspaces  workspace.Service
	Records     records.Service
	Bus         broadcast.Bus
	Limiter     RateLimiter
	WriteLimit  int
	WriteWindow time.Duration
	Bridge      ws.BridgeOptions
	DBHealth    func(context.Context) error
	// Registerer and Gatherer default to the prometheus globals.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

var (
	readRule     = rateRule{limit: 600, window: time.Minute}
	presenceRule = rateRule{limit: 30, window: time.Minute}
)

const (
	healthCheckTimeout = 2 * time.Second
	maxRecordBodyBytes = 1 << 20
)

// NewRouter assembles routes with dependencies.
func NewRouter(opts Options) *Router {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		mux:        http.NewServeMux(),
		logger:     opts.Logger,
		jwtSecret:  opts.JWTSecret,
		workspaces: opts.Workspaces,
		records:    opts.Records,
		bus:        opts.Bus,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		bridge:     opts.Bridge,
		limiter:    opts.Limiter,
		writeRule:  rateRule{limit: opts.WriteLimit, window: opts.WriteWindow},
		dbHealth:   opts.DBHealth,
		registerer: opts.Registerer,
		gatherer:   opts.Gatherer,
		ctx:        ctx,
		cancel:     cancel,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter(nil)
	}
	if r.registerer == nil {
		r.registerer = prometheus.DefaultRegisterer
	}
	if r.gatherer == nil {
		r.gatherer = prometheus.DefaultGatherer
	}
	r.initMetrics()
	r.bridge.Dropped = r.recordPresenceDrop
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources and ends bridged websockets.
func (r *Router) Close() {
	r.cancel()
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	read := func(route string, scope rateScope, h http.HandlerFunc) http.HandlerFunc {
		return r.audit(r.guard(route, scope, readRule, h))
	}
	write := func(route string, scope rateScope, h http.HandlerFunc) http.HandlerFunc {
		return r.audit(r.guard(route, scope, r.writeRule, h))
	}

	r.mux.HandleFunc("GET /healthz", r.audit(r.handleHealthz))
	r.mux.Handle("GET /metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))

	r.mux.HandleFunc("GET /workspaces", read("workspaces", scopeUser, r.handleListWorkspaces))
	r.mux.HandleFunc("POST /workspaces", write("workspaces", scopeUser, r.handleCreateWorkspace))
	r.mux.HandleFunc("DELETE /workspaces/{id}", write("workspace", scopeWorkspace, r.handleDeleteWorkspace))
	r.mux.HandleFunc("GET /workspaces/{id}/members", read("members", scopeWorkspace, r.handleMembers))
	r.mux.HandleFunc("PUT /workspaces/{id}/members/{userID}", write("member", scopeWorkspace, r.handleUpsertMember))
	r.mux.HandleFunc("GET /workspaces/{id}/invites", read("invites", scopeWorkspace, r.handleInvites))
	r.mux.HandleFunc("POST /workspaces/{id}/invites", write("invites", scopeWorkspace, r.handleCreateInvite))
	r.mux.HandleFunc("POST /workspaces/{id}/invites/accept", write("invite_accept", scopeWorkspace, r.handleAcceptInvite))

	r.mux.HandleFunc("GET /workspaces/{id}/records/{table}", read("records", scopeWorkspace, r.handleFetchRecords))
	r.mux.HandleFunc("PUT /workspaces/{id}/records/{table}/{entityID}", write("record", scopeWorkspace, r.handlePutRecord))
	r.mux.HandleFunc("DELETE /workspaces/{id}/records/{table}/{entityID}", write("record", scopeWorkspace, r.handleDeleteRecord))

	r.mux.HandleFunc("GET "+ws.PresencePath, r.audit(r.guard("presence", scopePresence, presenceRule, r.handlePresenceWS)))
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["store"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["store"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		route := req.Pattern
		if route == "" {
			route = req.URL.Path
		}
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets the websocket upgrader take over the connection.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		sr.status = http.StatusSwitchingProtocols
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}
