package message

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is a dev/test fallback when DB is not configured.
// It implements the full Store contract, including ordering guarantees.
type InMemoryStore struct {
	mu   sync.Mutex
	byID map[string]*Message
	msgs []*Message // insertion order == creation order
}

// NewInMemoryStore constructs an in-memory Store implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID: make(map[string]*Message),
		msgs: make([]*Message, 0, 256),
	}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// Create persists a new message with a generated id and Read=false.
func (s *InMemoryStore) Create(ctx context.Context, in CreateInput) (Message, error) {
	if in.SenderID == "" || in.RecipientID == "" || in.Text == "" {
		return Message{}, OpError{Op: "message.Create", Kind: ErrValidation, Msg: "missing sender, recipient or text"}
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := NewMessageID(now)
	if err != nil {
		return Message{}, err
	}

	m := &Message{
		ID:          id,
		SenderID:    in.SenderID,
		RecipientID: in.RecipientID,
		PostID:      in.PostID,
		Text:        in.Text,
		Read:        false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[m.ID] = m
	s.msgs = append(s.msgs, m)
	return *m, nil
}

// GetByID returns a message by id.
func (s *InMemoryStore) GetByID(ctx context.Context, id string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return Message{}, NotFoundError{Op: "message.GetByID", Resource: "message"}
	}
	return *m, nil
}

// ListBetween returns the conversation between two users, oldest-first.
func (s *InMemoryStore) ListBetween(ctx context.Context, in ListBetweenInput) ([]Message, error) {
	if in.UserA == "" || in.UserB == "" {
		return nil, OpError{Op: "message.ListBetween", Kind: ErrValidation, Msg: "missing participant"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, 0, 64)
	for _, m := range s.msgs {
		if !betweenPair(m, in.UserA, in.UserB) {
			continue
		}
		if in.PostID != "" && m.PostID != in.PostID {
			continue
		}
		out = append(out, *m)
	}

	// Insertion order is creation order; sort defensively anyway.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	if in.Limit > 0 && len(out) > in.Limit {
		out = out[len(out)-in.Limit:]
	}
	return out, nil
}

// ListForUser returns every message the user sent or received, newest-first.
func (s *InMemoryStore) ListForUser(ctx context.Context, userID string) ([]Message, error) {
	if userID == "" {
		return nil, OpError{Op: "message.ListForUser", Kind: ErrValidation, Msg: "missing user"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, 0, 64)
	for _, m := range s.msgs {
		if m.SenderID == userID || m.RecipientID == userID {
			out = append(out, *m)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// MarkRead flips the read flag to true (idempotent).
func (s *InMemoryStore) MarkRead(ctx context.Context, messageID string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[messageID]
	if !ok {
		return Message{}, NotFoundError{Op: "message.MarkRead", Resource: "message"}
	}
	if !m.Read {
		m.Read = true
		m.UpdatedAt = time.Now().UTC()
	}
	return *m, nil
}

// MarkAllFromSender marks every unread message from sender to recipient as
// read and returns the number of rows mutated.
func (s *InMemoryStore) MarkAllFromSender(ctx context.Context, senderID, recipientID string) (int64, error) {
	if senderID == "" || recipientID == "" {
		return 0, OpError{Op: "message.MarkAllFromSender", Kind: ErrValidation, Msg: "missing participant"}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	now := time.Now().UTC()
	for _, m := range s.msgs {
		if m.SenderID == senderID && m.RecipientID == recipientID && !m.Read {
			m.Read = true
			m.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// MarkAllInbox marks every unread message addressed to the user as read.
func (s *InMemoryStore) MarkAllInbox(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, OpError{Op: "message.MarkAllInbox", Kind: ErrValidation, Msg: "missing user"}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	now := time.Now().UTC()
	for _, m := range s.msgs {
		if m.RecipientID == userID && !m.Read {
			m.Read = true
			m.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// CountUnread returns the number of unread messages addressed to the user.
func (s *InMemoryStore) CountUnread(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, OpError{Op: "message.CountUnread", Kind: ErrValidation, Msg: "missing user"}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, m := range s.msgs {
		if m.RecipientID == userID && !m.Read {
			n++
		}
	}
	return n, nil
}

func betweenPair(m *Message, a, b string) bool {
	return (m.SenderID == a && m.RecipientID == b) || (m.SenderID == b && m.RecipientID == a)
}
