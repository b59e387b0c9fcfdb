package message

import (
	"context"
	"time"
)

// Store persists and queries messages.
//
// Requirements:
//   - Create assigns id/timestamps and stores Read=false
//   - ListBetween is ordered oldest-first (chat-log display order)
//   - ListForUser is ordered newest-first (inbox aggregation order)
//   - mark-read operations are idempotent and only ever flip false -> true
type Store interface {
	Create(ctx context.Context, in CreateInput) (Message, error)
	GetByID(ctx context.Context, id string) (Message, error)
	ListBetween(ctx context.Context, in ListBetweenInput) ([]Message, error)
	ListForUser(ctx context.Context, userID string) ([]Message, error)
	MarkRead(ctx context.Context, messageID string) (Message, error)
	MarkAllFromSender(ctx context.Context, senderID, recipientID string) (int64, error)
	MarkAllInbox(ctx context.Context, userID string) (int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	Close() error
}

// CreateInput describes a message create request.
type CreateInput struct {
	SenderID    string
	RecipientID string
	PostID      string // optional
	Text        string
	Now         time.Time
}

// ListBetweenInput selects the messages exchanged between exactly two users,
// optionally scoped to one post. Limit <= 0 means the full history; a
// positive limit keeps only the newest Limit messages (still returned
// oldest-first).
type ListBetweenInput struct {
	UserA  string
	UserB  string
	PostID string
	Limit  int
}
