// Package realtime contains souk's WebSocket gateway and the per-user room
// registry that delivers server-pushed messaging events.
package realtime

import (
	"crypto/rand"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Server-pushed event types (wire-stable, shared with the web client).
const (
	// EventReceiveMessage carries a viewer-formatted message (the recipient
	// variant in the recipient's room, the sender variant in the sender's).
	EventReceiveMessage = "receiveMessage"

	// EventUnreadCountUpdate carries the room owner's new unread total.
	EventUnreadCountUpdate = "unreadCountUpdate"
)

// Envelope is the canonical wire wrapper for pushed events.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

// UnreadCountPayload is the payload of EventUnreadCountUpdate.
type UnreadCountPayload struct {
	UnreadCount int64 `json:"unreadCount"`
}

// NewEnvelope wraps a payload with a fresh envelope id and timestamp.
func NewEnvelope(typ string, payload json.RawMessage, ts time.Time) Envelope {
	return Envelope{
		Type:    typ,
		ID:      newULID(ts),
		TS:      ts,
		Payload: payload,
	}
}

// newULID returns a ULID string. ULIDs are preferable to random hex for
// tracing and ordering in logs.
func newULID(now time.Time) string {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return ""
	}
	return id.String()
}
