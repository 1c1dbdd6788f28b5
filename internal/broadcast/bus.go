// Package broadcast provides many-to-many, best-effort message delivery
// keyed by topic. Delivery is unordered across publishers, unacknowledged,
// and publishers receive their own messages.
package broadcast

import (
	"context"
	"errors"
	"strings"
)

// ErrClosed is returned when publishing on a closed connection or bus.
var ErrClosed = errors.New("broadcast: closed")

// Bus joins topics.
type Bus interface {
	Join(ctx context.Context, topic string) (Conn, error)
}

// Conn is a subscription to one topic that can also publish to it.
// Messages is closed when the connection ends.
type Conn interface {
	Publish(ctx context.Context, payload []byte) error
	Messages() <-chan []byte
	Close() error
}

const presencePrefix = "presence:"

// PresenceTopic namespaces a workspace's presence channel.
func PresenceTopic(workspaceID string) string {
	return presencePrefix + workspaceID
}

// WorkspaceFromPresenceTopic is the inverse of PresenceTopic.
func WorkspaceFromPresenceTopic(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, presencePrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
