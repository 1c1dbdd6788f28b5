package broadcast

import (
	"context"
	"sync"
)

// subscriber receives fan-out from the hub. deliver reports false once the
// subscriber is gone so the hub can drop it.
type subscriber interface {
	deliver([]byte) bool
}

// Hub is an in-process Bus. A single goroutine owns the subscription table.
type Hub struct {
	clients   map[string]map[subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	buffer    int
	done      chan struct{}
	stopOnce  sync.Once
}

// message couples payload with topic.
type message struct {
	topic   string
	payload []byte
}

// subscription defines register/unregister requests.
type subscription struct {
	topic  string
	client subscriber
}

var _ Bus = (*Hub)(nil)

// NewHub creates a running Hub. buffer bounds each subscriber's queue;
// messages beyond it are dropped for that subscriber.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	h := &Hub{
		clients:   make(map[string]map[subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
		buffer:    buffer,
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return
		case sub := <-h.register:
			if _, ok := h.clients[sub.topic]; !ok {
				h.clients[sub.topic] = make(map[subscriber]struct{})
			}
			h.clients[sub.topic][sub.client] = struct{}{}
		case sub := <-h.unreg:
			h.remove(sub.topic, sub.client)
		case msg := <-h.broadcast:
			for c := range h.clients[msg.topic] {
				if !c.deliver(msg.payload) {
					h.remove(msg.topic, c)
				}
			}
		}
	}
}

func (h *Hub) remove(topic string, c subscriber) {
	if clients, ok := h.clients[topic]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.clients, topic)
		}
	}
}

// Join subscribes to topic.
func (h *Hub) Join(ctx context.Context, topic string) (Conn, error) {
	select {
	case <-h.done:
		return nil, ErrClosed
	default:
	}
	c := &hubConn{hub: h, topic: topic, messages: make(chan []byte, h.buffer)}
	select {
	case h.register <- subscription{topic: topic, client: c}:
		return c, nil
	case <-h.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Broadcast sends payload to every subscriber of topic.
func (h *Hub) Broadcast(ctx context.Context, topic string, payload []byte) error {
	select {
	case h.broadcast <- message{topic: topic, payload: payload}:
		return nil
	case <-h.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop terminates the hub loop. Open connections stop receiving.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

type hubConn struct {
	hub      *Hub
	topic    string
	mu       sync.Mutex
	closed   bool
	messages chan []byte
}

func (c *hubConn) deliver(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.messages <- payload:
	default:
	}
	return true
}

func (c *hubConn) Publish(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return c.hub.Broadcast(ctx, c.topic, payload)
}

func (c *hubConn) Messages() <-chan []byte { return c.messages }

func (c *hubConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.messages)
	c.mu.Unlock()

	select {
	case c.hub.unreg <- subscription{topic: c.topic, client: c}:
	case <-c.hub.done:
	}
	return nil
}
