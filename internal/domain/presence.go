package domain

import (
	"errors"
	"math"
	"strings"
	"time"
)

// PresenceMessage is the broadcast payload describing one peer's pointer.
// Coordinates are logical dashboard coordinates, not screen pixels.
type PresenceMessage struct {
	PeerID      string  `json:"peerId"`
	DisplayName string  `json:"displayName"`
	Color       string  `json:"color"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
}

// PeerPresence is a remote peer as seen locally. LastSeenAt is the local
// receipt time of its latest message and is never transmitted.
type PeerPresence struct {
	PeerID      string
	DisplayName string
	Color       string
	X           float64
	Y           float64
	LastSeenAt  time.Time
}

// ErrInvalidPresence is returned for presence messages without a peer id or
// with coordinates that are not finite.
var ErrInvalidPresence = errors.New("invalid presence message")

// Validate checks the fields receivers rely on.
func (m PresenceMessage) Validate() error {
	if strings.TrimSpace(m.PeerID) == "" {
		return ErrInvalidPresence
	}
	for _, v := range []float64{m.X, m.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidPresence
		}
	}
	return nil
}
