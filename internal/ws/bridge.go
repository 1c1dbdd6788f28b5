package ws

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/time/rate"

	"github.com/splax/deskpulse/internal/broadcast"
	"github.com/splax/deskpulse/internal/domain"
)

// BridgeOptions bound a bridged connection. Zero values pick defaults.
type BridgeOptions struct {
	// InboundInterval is the sustained minimum spacing between accepted
	// frames from the socket; Burst frames may arrive back to back.
	InboundInterval time.Duration
	Burst           int
	PingInterval    time.Duration
	PongWait        time.Duration
	MaxMessageSize  int64
	// Dropped is called for every inbound frame that was discarded.
	Dropped func(reason string)
}

func (o BridgeOptions) withDefaults() BridgeOptions {
	if o.InboundInterval <= 0 {
		o.InboundInterval = 40 * time.Millisecond
	}
	if o.Burst <= 0 {
		o.Burst = 5
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 4096
	}
	if o.Dropped == nil {
		o.Dropped = func(string) {}
	}
	return o
}

// Bridge relays presence frames between the websocket client and sub until
// either side ends or ctx is cancelled. Inbound frames that are not valid
// presence messages, or that exceed the inbound rate, are dropped. Bridge
// closes both the client and sub before returning.
func Bridge(ctx context.Context, client *Client, sub broadcast.Conn, opts BridgeOptions) {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer client.Close()
	defer sub.Close()

	conn := client.conn
	conn.SetReadLimit(opts.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		limiter := rate.NewLimiter(rate.Every(opts.InboundInterval), opts.Burst)
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				client.log.Debug("websocket read ended", "error", err)
				return
			}
			if !limiter.Allow() {
				opts.Dropped("rate")
				continue
			}
			var msg domain.PresenceMessage
			if err := json.Unmarshal(payload, &msg); err != nil || msg.Validate() != nil {
				opts.Dropped("invalid")
				continue
			}
			if err := sub.Publish(ctx, payload); err != nil {
				client.log.Debug("bridge publish failed", "error", err)
				return
			}
		}
	}()

	ping := time.NewTicker(opts.PingInterval)
	defer ping.Stop()
	msgs := sub.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case <-readDone:
			return
		case <-ping.C:
			if err := client.Ping(); err != nil {
				return
			}
		case payload, ok := <-msgs:
			if !ok {
				return
			}
			if err := client.Send(payload); err != nil {
				return
			}
		}
	}
}
