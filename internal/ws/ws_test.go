package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/splax/deskpulse/internal/broadcast"
	"github.com/splax/deskpulse/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type presenceServer struct {
	hub     *broadcast.Hub
	opts    BridgeOptions
	dropped atomic.Int64
	auth    string
}

func (p *presenceServer) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if p.auth != "" && req.Header.Get("Authorization") != "Bearer "+p.auth {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	workspaceID := req.URL.Query().Get("workspace_id")
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	sub, err := p.hub.Join(req.Context(), broadcast.PresenceTopic(workspaceID))
	if err != nil {
		_ = conn.Close()
		return
	}
	opts := p.opts
	opts.Dropped = func(string) { p.dropped.Add(1) }
	go Bridge(context.Background(), NewClient(conn, discard()), sub, opts)
}

func startServer(t *testing.T, opts BridgeOptions, token string) (*presenceServer, *Dialer) {
	t.Helper()
	hub := broadcast.NewHub(16)
	t.Cleanup(hub.Stop)
	ps := &presenceServer{hub: hub, opts: opts, auth: token}
	mux := http.NewServeMux()
	mux.Handle(PresencePath, ps)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	d, err := NewDialer(srv.URL, token, 16, discard())
	if err != nil {
		t.Fatalf("new dialer: %v", err)
	}
	return ps, d
}

func presence(t *testing.T, peerID string, x float64) []byte {
	t.Helper()
	b, err := json.Marshal(domain.PresenceMessage{PeerID: peerID, X: x})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func receive(t *testing.T, conn broadcast.Conn) domain.PresenceMessage {
	t.Helper()
	select {
	case payload, ok := <-conn.Messages():
		if !ok {
			t.Fatalf("connection closed")
		}
		var msg domain.PresenceMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message")
	}
	return domain.PresenceMessage{}
}

func TestDialerRelaysPresenceBetweenPeers(t *testing.T) {
	_, d := startServer(t, BridgeOptions{}, "secret")
	ctx := context.Background()

	a, err := d.Join(ctx, broadcast.PresenceTopic("w1"))
	if err != nil {
		t.Fatalf("join a: %v", err)
	}
	defer a.Close()
	b, err := d.Join(ctx, broadcast.PresenceTopic("w1"))
	if err != nil {
		t.Fatalf("join b: %v", err)
	}
	defer b.Close()

	// the server joins the hub after the upgrade completes
	time.Sleep(20 * time.Millisecond)

	if err := a.Publish(ctx, presence(t, "a", 7)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := receive(t, b); got.PeerID != "a" || got.X != 7 {
		t.Fatalf("unexpected message %+v", got)
	}
	if got := receive(t, a); got.PeerID != "a" {
		t.Fatalf("publisher should receive its own message, got %+v", got)
	}
}

func TestBridgeDropsInvalidAndExcessFrames(t *testing.T) {
	ps, d := startServer(t, BridgeOptions{InboundInterval: time.Hour, Burst: 2}, "")
	ctx := context.Background()

	conn, err := d.Join(ctx, broadcast.PresenceTopic("w1"))
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	defer conn.Close()
	time.Sleep(20 * time.Millisecond)

	if err := conn.Publish(ctx, []byte(`{"x":1}`)); err != nil {
		t.Fatalf("publish invalid: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := conn.Publish(ctx, presence(t, "a", float64(i))); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	// the invalid frame spends one token of the burst
	if got := receive(t, conn); got.X != 0 {
		t.Fatalf("expected the first valid frame, got %+v", got)
	}
	select {
	case payload := <-conn.Messages():
		t.Fatalf("burst exhausted, unexpected frame %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
	if n := ps.dropped.Load(); n != 4 {
		t.Fatalf("expected 4 dropped frames, got %d", n)
	}
}

func TestDialerRejectsForeignTopics(t *testing.T) {
	d, err := NewDialer("http://localhost:1", "", 0, nil)
	if err != nil {
		t.Fatalf("new dialer: %v", err)
	}
	if _, err := d.Join(context.Background(), "deployments:1"); err == nil {
		t.Fatalf("expected an error for a non-presence topic")
	}
}

func TestDialerReportsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()
	d, err := NewDialer(srv.URL, "bad", 0, nil)
	if err != nil {
		t.Fatalf("new dialer: %v", err)
	}
	if _, err := d.Join(context.Background(), broadcast.PresenceTopic("w1")); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestNewDialerRejectsUnknownScheme(t *testing.T) {
	if _, err := NewDialer("ftp://example.com", "", 0, nil); err == nil {
		t.Fatalf("expected scheme error")
	}
}
