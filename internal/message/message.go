// Package message implements souk's direct-messaging core: message
// persistence, conversation/inbox aggregation, read-state tracking, and the
// delivery gateway that bridges durable storage and realtime push.
package message

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Max message text length (runes). Longer bodies fail validation.
const MaxTextChars = 4000

// Message is the sole persistent entity of the messaging core.
//
// Lifecycle:
//   - created exactly once by Store.Create with Read=false
//   - Read flips false -> true via the mark-read operations, never back
//   - sender/recipient/text/postID are immutable after creation
//   - never deleted by any exposed operation
type Message struct {
	ID          string
	SenderID    string
	RecipientID string
	PostID      string // empty when the message is not scoped to a post
	Text        string
	Read        bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewMessageID returns a new ULID (26-char string).
// ULIDs sort lexicographically by creation time, which keeps id order and
// createdAt order in agreement.
func NewMessageID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
