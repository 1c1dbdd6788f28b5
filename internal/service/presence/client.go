// Package presence shares live pointer positions between members of a
// workspace over a broadcast.Bus.
package presence

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/splax/deskpulse/internal/broadcast"
	"github.com/splax/deskpulse/internal/domain"
	"github.com/splax/deskpulse/pkg/clock"
)

// Loop cadences and the peer time-to-live.
const (
	DefaultFrameInterval   = 16 * time.Millisecond
	DefaultPublishInterval = 50 * time.Millisecond
	DefaultSweepInterval   = time.Second
	DefaultPeerTTL         = 5 * time.Second
)

// Identity describes the local peer. An empty PeerID is replaced with a
// random one.
type Identity struct {
	PeerID      string
	DisplayName string
	Color       string
}

// Options tune the client. Zero values pick the defaults above.
type Options struct {
	Clock           clock.Clock
	Logger          *slog.Logger
	Metrics         *Metrics
	FrameInterval   time.Duration
	PublishInterval time.Duration
	SweepInterval   time.Duration
	PeerTTL         time.Duration
	// OnChange is called from the loop goroutine with a sorted copy of the
	// peer set whenever it changes. It must not block. It may call Leave or
	// Join; the loop stops once the callback returns.
	OnChange func([]domain.PeerPresence)
}

// Client is the presence channel for one local peer. It is joined to at most
// one workspace at a time.
type Client struct {
	bus     broadcast.Bus
	self    Identity
	clock   clock.Clock
	log     *slog.Logger
	metrics *Metrics
	opts    Options

	mu          sync.RWMutex
	x, y        float64
	peers       map[string]domain.PeerPresence
	workspaceID string
	conn        broadcast.Conn
	cancel      context.CancelFunc
	done        chan struct{}
	// done channel of the loop currently handling an event
	handling chan struct{}

	// touched only by the loop goroutine
	lastPublish time.Time
}

// New builds a Client that is not joined to any workspace.
func New(bus broadcast.Bus, self Identity, opts Options) *Client {
	if self.PeerID == "" {
		self.PeerID = uuid.NewString()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}
	if opts.PublishInterval <= 0 {
		opts.PublishInterval = DefaultPublishInterval
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.PeerTTL <= 0 {
		opts.PeerTTL = DefaultPeerTTL
	}
	return &Client{
		bus:     bus,
		self:    self,
		clock:   opts.Clock,
		log:     opts.Logger.With("peer_id", self.PeerID),
		metrics: opts.Metrics,
		opts:    opts,
		peers:   make(map[string]domain.PeerPresence),
	}
}

// PeerID returns the local peer id.
func (c *Client) PeerID() string { return c.self.PeerID }

// Join leaves any current workspace and subscribes to workspaceID's presence
// topic. A failed join is logged and leaves the client disconnected with an
// empty peer set.
func (c *Client) Join(ctx context.Context, workspaceID string) {
	c.Leave()
	if workspaceID == "" || c.bus == nil {
		return
	}
	conn, err := c.bus.Join(ctx, broadcast.PresenceTopic(workspaceID))
	if err != nil {
		c.log.Debug("presence join failed", "workspace_id", workspaceID, "error", err)
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	frame := c.clock.NewTicker(c.opts.FrameInterval)
	sweep := c.clock.NewTicker(c.opts.SweepInterval)
	done := make(chan struct{})

	c.mu.Lock()
	c.workspaceID = workspaceID
	c.conn = conn
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.lastPublish = time.Time{}
	go c.run(runCtx, conn, frame, sweep, done)
	c.log.Debug("presence joined", "workspace_id", workspaceID)
}

// Leave stops the loop, unsubscribes and clears the peer set. No goodbye is
// sent; peers evict this client after their TTL.
func (c *Client) Leave() {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.cancel, c.done, c.conn = nil, nil, nil
	c.workspaceID = ""
	fromLoop := done != nil && c.handling == done
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if !fromLoop {
		<-done
	}
	if err := conn.Close(); err != nil {
		c.log.Debug("presence close failed", "error", err)
	}

	c.mu.Lock()
	changed := len(c.peers) > 0
	c.peers = make(map[string]domain.PeerPresence)
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

// Connected reports whether the client is joined to a workspace.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// WorkspaceID returns the joined workspace, or "".
func (c *Client) WorkspaceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.workspaceID
}

// Move sets the local pointer position in logical coordinates. It is
// published on the next eligible frame.
func (c *Client) Move(x, y float64) {
	c.mu.Lock()
	c.x, c.y = x, y
	c.mu.Unlock()
}

// Peers returns the visible remote peers ordered by peer id.
func (c *Client) Peers() []domain.PeerPresence {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sortedLocked()
}

func (c *Client) sortedLocked() []domain.PeerPresence {
	out := make([]domain.PeerPresence, 0, len(c.peers))
	for _, p := range c.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeerID < out[j].PeerID })
	return out
}

func (c *Client) run(ctx context.Context, conn broadcast.Conn, frame, sweep *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer frame.Stop()
	defer sweep.Stop()

	msgs := conn.Messages()
	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
			return
		case <-frame.C:
			c.tick(ctx, conn, c.clock.Now())
		case <-sweep.C:
			c.handle(done, func() { c.sweep(c.clock.Now()) })
		case payload, ok := <-msgs:
			if !ok {
				c.log.Debug("presence channel closed")
				msgs = nil
				continue
			}
			c.handle(done, func() { c.ingest(payload, c.clock.Now()) })
		}
	}
}

// handle runs fn with the loop marked as busy so a Leave issued from
// OnChange does not wait on its own goroutine.
func (c *Client) handle(done chan struct{}, fn func()) {
	c.mu.Lock()
	c.handling = done
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.handling == done {
			c.handling = nil
		}
		c.mu.Unlock()
	}()
	fn()
}

// tick publishes the local position when at least PublishInterval has
// passed since the previous publish.
func (c *Client) tick(ctx context.Context, conn broadcast.Conn, now time.Time) {
	if !c.lastPublish.IsZero() && now.Sub(c.lastPublish) < c.opts.PublishInterval {
		return
	}
	c.lastPublish = now
	c.publish(ctx, conn)
}

func (c *Client) publish(ctx context.Context, conn broadcast.Conn) {
	c.mu.RLock()
	msg := domain.PresenceMessage{
		PeerID:      c.self.PeerID,
		DisplayName: c.self.DisplayName,
		Color:       c.self.Color,
		X:           c.x,
		Y:           c.y,
	}
	c.mu.RUnlock()

	payload, err := json.Marshal(msg)
	if err != nil {
		c.log.Debug("presence encode failed", "error", err)
		return
	}
	if err := conn.Publish(ctx, payload); err != nil {
		c.metrics.incDropped("publish")
		c.log.Debug("presence publish failed", "error", err)
		return
	}
	c.metrics.incPublished()
}

func (c *Client) ingest(payload []byte, now time.Time) {
	var msg domain.PresenceMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Validate() != nil {
		c.metrics.incDropped("invalid")
		return
	}
	if msg.PeerID == c.self.PeerID {
		return
	}
	c.mu.Lock()
	c.peers[msg.PeerID] = domain.PeerPresence{
		PeerID:      msg.PeerID,
		DisplayName: msg.DisplayName,
		Color:       msg.Color,
		X:           msg.X,
		Y:           msg.Y,
		LastSeenAt:  now,
	}
	c.mu.Unlock()
	c.notify()
}

// sweep evicts peers not heard from for longer than PeerTTL.
func (c *Client) sweep(now time.Time) {
	c.mu.Lock()
	removed := 0
	for id, p := range c.peers {
		if now.Sub(p.LastSeenAt) > c.opts.PeerTTL {
			delete(c.peers, id)
			removed++
		}
	}
	c.mu.Unlock()
	if removed > 0 {
		c.log.Debug("presence peers evicted", "count", removed)
		c.notify()
	}
}

func (c *Client) notify() {
	c.mu.RLock()
	peers := c.sortedLocked()
	c.mu.RUnlock()
	c.metrics.setPeers(len(peers))
	if c.opts.OnChange != nil {
		c.opts.OnChange(peers)
	}
}
