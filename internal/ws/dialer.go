package ws

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/splax/deskpulse/internal/broadcast"
)

// PresencePath is the API route serving presence websockets.
const PresencePath = "/ws/presence"

// Dialer is a broadcast.Bus that reaches the API's presence endpoint.
// Only presence topics can be joined.
type Dialer struct {
	baseURL *url.URL
	token   string
	buffer  int
	dialer  *websocket.Dialer
	log     *slog.Logger
}

var _ broadcast.Bus = (*Dialer)(nil)

// NewDialer builds a Dialer for the API at baseURL (http or https).
func NewDialer(baseURL, token string, buffer int, logger *slog.Logger) (*Dialer, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported api url scheme %q", u.Scheme)
	}
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dialer{baseURL: u, token: token, buffer: buffer, dialer: websocket.DefaultDialer, log: logger}, nil
}

// Join dials the presence endpoint for the workspace encoded in topic.
func (d *Dialer) Join(ctx context.Context, topic string) (broadcast.Conn, error) {
	workspaceID, ok := broadcast.WorkspaceFromPresenceTopic(topic)
	if !ok {
		return nil, fmt.Errorf("ws: unsupported topic %q", topic)
	}
	target := *d.baseURL
	target.Path += PresencePath
	target.RawQuery = url.Values{"workspace_id": {workspaceID}}.Encode()

	header := http.Header{}
	if d.token != "" {
		header.Set("Authorization", "Bearer "+d.token)
	}
	conn, resp, err := d.dialer.DialContext(ctx, target.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial presence: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("dial presence: %w", err)
	}

	dc := &dialConn{
		client:   NewClient(conn, d.log),
		messages: make(chan []byte, d.buffer),
		done:     make(chan struct{}),
	}
	go dc.pump()
	return dc, nil
}

type dialConn struct {
	client    *Client
	messages  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *dialConn) pump() {
	defer close(c.done)
	defer close(c.messages)
	for {
		_, payload, err := c.client.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case c.messages <- payload:
		default:
		}
	}
}

func (c *dialConn) Publish(ctx context.Context, payload []byte) error {
	select {
	case <-c.done:
		return broadcast.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return c.client.Send(payload)
}

func (c *dialConn) Messages() <-chan []byte { return c.messages }

func (c *dialConn) Close() error {
	c.closeOnce.Do(func() {
		c.client.Close()
		<-c.done
	})
	return nil
}
