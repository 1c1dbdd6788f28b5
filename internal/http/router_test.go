package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/deskpulse/internal/broadcast"
	"github.com/splax/deskpulse/internal/domain"
	"github.com/splax/deskpulse/internal/repository/memory"
	"github.com/splax/deskpulse/internal/service/records"
	"github.com/splax/deskpulse/internal/service/workspace"
	"github.com/splax/deskpulse/internal/ws"
	jwtpkg "github.com/splax/deskpulse/pkg/jwt"
)

const testSecret = "test-secret"

type rateLimiterStub struct {
	mu      sync.Mutex
	calls   []rateLimitCall
	allowFn func(key string, rule rateRule) rateDecision
}

type rateLimitCall struct {
	key  string
	rule rateRule
}

func newRateLimiterStub() *rateLimiterStub {
	return &rateLimiterStub{}
}

func (rl *rateLimiterStub) Allow(_ context.Context, key string, rule rateRule) rateDecision {
	rl.mu.Lock()
	rl.calls = append(rl.calls, rateLimitCall{key: key, rule: rule})
	fn := rl.allowFn
	rl.mu.Unlock()
	if fn != nil {
		return fn(key, rule)
	}
	return rateDecision{allowed: true, count: 1, windowEnd: time.Now().Add(rule.window)}
}

func (rl *rateLimiterStub) lastCall(t *testing.T) rateLimitCall {
	t.Helper()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.calls) == 0 {
		t.Fatalf("limiter was not consulted")
	}
	return rl.calls[len(rl.calls)-1]
}

func (rl *rateLimiterStub) Close() {}

type routerFixture struct {
	router  *Router
	repo    *memory.WorkspaceRepository
	limiter *rateLimiterStub
	hub     *broadcast.Hub
}

func setupRouter(t *testing.T, dbHealth func(context.Context) error) *routerFixture {
	t.Helper()
	stub := newRateLimiterStub()
	f := newRouterFixture(t, dbHealth, stub, 120)
	f.limiter = stub
	return f
}

func newRouterFixture(t *testing.T, dbHealth func(context.Context) error, limiter RateLimiter, writeLimit int) *routerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.NewWorkspaceRepository()
	hub := broadcast.NewHub(16)
	router := NewRouter(Options{
		Logger:     logger,
		JWTSecret:  testSecret,
		Workspaces: workspace.New(repo, logger),
		Records:    records.New(memory.NewRecordStore(), logger),
		Bus:        hub,
		Limiter:    limiter,
		WriteLimit: writeLimit,
		DBHealth:   dbHealth,
		Registerer: prometheus.NewRegistry(),
	})
	t.Cleanup(func() {
		router.Close()
		hub.Stop()
	})
	return &routerFixture{router: router, repo: repo, hub: hub}
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwtpkg.GenerateToken(userID, "User "+userID, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func (f *routerFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *routerFixture) defaultWorkspace(t *testing.T, token string) string {
	t.Helper()
	rr := f.do(t, http.MethodGet, "/workspaces", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list workspaces: status %d body %s", rr.Code, rr.Body.String())
	}
	var out struct {
		Workspaces []domain.Workspace `json:"workspaces"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode workspaces: %v", err)
	}
	if len(out.Workspaces) != 1 {
		t.Fatalf("expected the default workspace, got %+v", out.Workspaces)
	}
	return out.Workspaces[0].ID
}

func fetchRecords(t *testing.T, f *routerFixture, token, path string) []domain.Record {
	t.Helper()
	rr := f.do(t, http.MethodGet, path, token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("fetch records: status %d body %s", rr.Code, rr.Body.String())
	}
	var out struct {
		Records []domain.Record `json:"records"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	return out.Records
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	f := setupRouter(t, nil)

	rr := f.do(t, http.MethodGet, "/workspaces", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	rr = f.do(t, http.MethodGet, "/workspaces", "not-a-jwt", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %d", rr.Code)
	}
}

func TestRecordLifecycle(t *testing.T) {
	f := setupRouter(t, nil)
	token := tokenFor(t, "u1")
	wsID := f.defaultWorkspace(t, token)
	base := "/workspaces/" + wsID + "/records/clients"

	rr := f.do(t, http.MethodPut, base+"/c1", token, map[string]any{
		"payload": map[string]any{"name": "Acme", "status": "active"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("put: status %d body %s", rr.Code, rr.Body.String())
	}
	var stored domain.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &stored); err != nil {
		t.Fatalf("decode stored: %v", err)
	}
	if stored.UpdatedBy != "u1" || stored.CreatedBy != "u1" || stored.UpdatedAt.IsZero() {
		t.Fatalf("server did not stamp the record: %+v", stored)
	}

	got := fetchRecords(t, f, token, base)
	if len(got) != 1 || got[0].ID != "c1" || got[0].WorkspaceID != wsID {
		t.Fatalf("unexpected records %+v", got)
	}

	rr = f.do(t, http.MethodDelete, base+"/c1", token, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rr.Code)
	}
	if got := fetchRecords(t, f, token, base); len(got) != 0 {
		t.Fatalf("deleted record still listed: %+v", got)
	}
}

func TestPutRecordValidation(t *testing.T) {
	f := setupRouter(t, nil)
	token := tokenFor(t, "u1")
	wsID := f.defaultWorkspace(t, token)

	cases := []struct {
		name string
		path string
		body any
		want int
	}{
		{"unknown table", "/workspaces/" + wsID + "/records/invoices/x1", map[string]any{"payload": map[string]any{}}, http.StatusBadRequest},
		{"invalid payload", "/workspaces/" + wsID + "/records/tasks/t1", map[string]any{"payload": map[string]any{"title": ""}}, http.StatusBadRequest},
		{"id mismatch", "/workspaces/" + wsID + "/records/tasks/t1", map[string]any{"id": "t2", "payload": map[string]any{"title": "x"}}, http.StatusBadRequest},
		{"foreign workspace", "/workspaces/other/records/tasks/t1", map[string]any{"payload": map[string]any{"title": "x"}}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := f.do(t, http.MethodPut, tc.path, token, tc.body)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d body %s", tc.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestNonMembersCannotReadRecords(t *testing.T) {
	f := setupRouter(t, nil)
	owner := tokenFor(t, "owner")
	wsID := f.defaultWorkspace(t, owner)

	rr := f.do(t, http.MethodGet, "/workspaces/"+wsID+"/records/notes", tokenFor(t, "stranger"), nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestViewersCannotWrite(t *testing.T) {
	f := setupRouter(t, nil)
	owner := tokenFor(t, "owner")
	wsID := f.defaultWorkspace(t, owner)

	rr := f.do(t, http.MethodPut, "/workspaces/"+wsID+"/members/viewer", owner, map[string]any{"role": "viewer"})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("add member: status %d body %s", rr.Code, rr.Body.String())
	}

	viewer := tokenFor(t, "viewer")
	rr = f.do(t, http.MethodPut, "/workspaces/"+wsID+"/records/notes/n1", viewer, map[string]any{
		"payload": map[string]any{"body": "hi"},
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer write, got %d", rr.Code)
	}
	fetchRecords(t, f, viewer, "/workspaces/"+wsID+"/records/notes")
}

func TestWritesAreRateLimited(t *testing.T) {
	f := setupRouter(t, nil)
	token := tokenFor(t, "u1")
	wsID := f.defaultWorkspace(t, token)

	reset := time.Unix(1_950_000_000, 0)
	f.limiter.allowFn = func(_ string, rule rateRule) rateDecision {
		return rateDecision{allowed: false, count: rule.limit, windowEnd: reset}
	}

	rr := f.do(t, http.MethodDelete, "/workspaces/"+wsID+"/records/tasks/t1", token, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("X-RateLimit-Limit"); got != "120" {
		t.Fatalf("unexpected rate limit header %q", got)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("unexpected remaining header %q", got)
	}
	if got := rr.Header().Get("X-RateLimit-Reset"); got != "1950000000" {
		t.Fatalf("unexpected reset header %q", got)
	}

	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After on a limited response")
	}

	last := f.limiter.lastCall(t)
	if last.key != "ws:"+wsID+":user:u1" || last.rule.window != time.Minute || last.rule.limit != 120 {
		t.Fatalf("unexpected limiter call %+v", last)
	}
}

func TestRateLimitScopes(t *testing.T) {
	f := setupRouter(t, nil)
	token := tokenFor(t, "u1")
	wsID := f.defaultWorkspace(t, token)

	cases := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, "/workspaces", "user:u1"},
		{http.MethodGet, "/workspaces/" + wsID + "/records/tasks", "ws:" + wsID + ":user:u1"},
		{http.MethodGet, "/workspaces/" + wsID + "/members", "ws:" + wsID + ":user:u1"},
		{http.MethodGet, ws.PresencePath + "?workspace_id=" + wsID, "presence:" + wsID + ":user:u1"},
	}
	for _, tc := range cases {
		f.do(t, tc.method, tc.path, token, nil)
		if got := f.limiter.lastCall(t).key; got != tc.want {
			t.Fatalf("%s %s: key %q, want %q", tc.method, tc.path, got, tc.want)
		}
	}
}

func TestWriteBudgetIsPerWorkspace(t *testing.T) {
	f := newRouterFixture(t, nil, NewMemoryRateLimiter(nil), 2)
	token := tokenFor(t, "u1")
	first := f.defaultWorkspace(t, token)

	rr := f.do(t, http.MethodPost, "/workspaces", token, map[string]string{"name": "Second"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create workspace: status %d body %s", rr.Code, rr.Body.String())
	}
	var second domain.Workspace
	if err := json.Unmarshal(rr.Body.Bytes(), &second); err != nil {
		t.Fatalf("decode workspace: %v", err)
	}

	note := map[string]any{"payload": map[string]any{"title": "n"}}
	for i := range 2 {
		path := "/workspaces/" + first + "/records/notes/n" + strconv.Itoa(i)
		if rr := f.do(t, http.MethodPut, path, token, note); rr.Code != http.StatusOK {
			t.Fatalf("write %d: status %d body %s", i, rr.Code, rr.Body.String())
		}
	}
	if rr := f.do(t, http.MethodPut, "/workspaces/"+first+"/records/notes/n9", token, note); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("third write in the same workspace: expected 429, got %d", rr.Code)
	}
	if rr := f.do(t, http.MethodPut, "/workspaces/"+second.ID+"/records/notes/n0", token, note); rr.Code != http.StatusOK {
		t.Fatalf("write in another workspace: status %d body %s", rr.Code, rr.Body.String())
	}
}

func TestHealthzReportsStoreFailure(t *testing.T) {
	f := setupRouter(t, func(context.Context) error { return errors.New("connection refused") })

	rr := f.do(t, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "degraded" {
		t.Fatalf("unexpected status %v", body["status"])
	}
}

func TestPresenceWebsocketRelaysWithinWorkspace(t *testing.T) {
	f := setupRouter(t, nil)
	token := tokenFor(t, "u1")
	wsID := f.defaultWorkspace(t, token)

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	dialer, err := ws.NewDialer(srv.URL, token, 8, nil)
	if err != nil {
		t.Fatalf("new dialer: %v", err)
	}
	ctx := context.Background()
	a, err := dialer.Join(ctx, broadcast.PresenceTopic(wsID))
	if err != nil {
		t.Fatalf("join a: %v", err)
	}
	defer a.Close()
	b, err := dialer.Join(ctx, broadcast.PresenceTopic(wsID))
	if err != nil {
		t.Fatalf("join b: %v", err)
	}
	defer b.Close()

	payload, _ := json.Marshal(domain.PresenceMessage{PeerID: "peer-a", X: 1, Y: 2})
	if err := a.Publish(ctx, payload); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case got := <-b.Messages():
		var msg domain.PresenceMessage
		if err := json.Unmarshal(got, &msg); err != nil || msg.PeerID != "peer-a" {
			t.Fatalf("unexpected relay %s (%v)", got, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for relayed presence")
	}

	stranger, err := ws.NewDialer(srv.URL, tokenFor(t, "stranger"), 8, nil)
	if err != nil {
		t.Fatalf("new dialer: %v", err)
	}
	if _, err := stranger.Join(ctx, broadcast.PresenceTopic(wsID)); err == nil {
		t.Fatalf("non-members must not join presence")
	}
}

func TestInviteAcceptFlow(t *testing.T) {
	f := setupRouter(t, nil)
	owner := tokenFor(t, "owner")
	guest := tokenFor(t, "guest")
	wsID := f.defaultWorkspace(t, owner)

	rr := f.do(t, http.MethodPost, "/workspaces/"+wsID+"/invites", guest, map[string]any{"role": "editor"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("guest invite: expected 403, got %d", rr.Code)
	}

	rr = f.do(t, http.MethodPost, "/workspaces/"+wsID+"/invites", owner, map[string]any{"role": "editor", "ttlSeconds": 3600})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create invite: status %d body %s", rr.Code, rr.Body.String())
	}
	var created struct {
		Invite domain.Invite `json:"invite"`
		Token  string        `json:"token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode invite: %v", err)
	}
	if created.Token == "" || strings.Contains(rr.Body.String(), "tokenHash") {
		t.Fatalf("unexpected invite body %s", rr.Body.String())
	}

	rr = f.do(t, http.MethodPost, "/workspaces/"+wsID+"/invites/accept", guest, map[string]string{"token": "nope"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("bad token: expected 403, got %d", rr.Code)
	}
	rr = f.do(t, http.MethodPost, "/workspaces/"+wsID+"/invites/accept", guest, map[string]string{"token": created.Token})
	if rr.Code != http.StatusOK {
		t.Fatalf("accept: status %d body %s", rr.Code, rr.Body.String())
	}
	var member domain.Member
	if err := json.Unmarshal(rr.Body.Bytes(), &member); err != nil {
		t.Fatalf("decode member: %v", err)
	}
	if member.Role != domain.RoleEditor || member.UserID != "guest" {
		t.Fatalf("unexpected member %+v", member)
	}
	if rr := f.do(t, http.MethodGet, "/workspaces/"+wsID+"/members", guest, nil); rr.Code != http.StatusOK {
		t.Fatalf("guest should now be a member, got %d", rr.Code)
	}
}
