package message

import (
	"context"
	"log/slog"
	"strings"
)

// Service is the delivery gateway: it validates requests, persists through
// the Store, and fans results out to the realtime channel.
//
// Guarantee: persistence happens-before any push. If persistence fails, no
// push occurs. Pushes are best-effort and at-most-once; durability is the
// Store's job, never the channel's.
type Service struct {
	log   *slog.Logger
	store Store
	users UserDirectory
	posts PostFinder
	push  Pusher
	cache UnreadCache

	convLimit int
}

// ServiceOption configures optional Service dependencies.
type ServiceOption func(*Service)

// WithPusher wires a realtime push channel (default: drop everything).
func WithPusher(p Pusher) ServiceOption {
	return func(s *Service) {
		if s == nil || p == nil {
			return
		}
		s.push = p
	}
}

// WithUnreadCache wires an unread-total cache (default: none).
func WithUnreadCache(c UnreadCache) ServiceOption {
	return func(s *Service) {
		if s == nil || c == nil {
			return
		}
		s.cache = c
	}
}

// WithConversationLimit caps chat-log fetches to the newest n messages.
// n <= 0 keeps the full history (the original behavior).
func WithConversationLimit(n int) ServiceOption {
	return func(s *Service) {
		if s == nil {
			return
		}
		s.convLimit = n
	}
}

// NewService constructs a fully wired delivery gateway.
func NewService(log *slog.Logger, store Store, users UserDirectory, posts PostFinder, opts ...ServiceOption) *Service {
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		log:   log,
		store: store,
		users: users,
		posts: posts,
		push:  NopPusher{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

// Send validates, persists, and delivers one message.
//
// Flow: validate -> post existence check -> persist -> push recipient
// variant to the recipient's room and sender variant to the sender's room
// (so the sender's other devices update too) -> push the recipient's new
// unread total -> return the sender variant as the HTTP response body.
func (s *Service) Send(ctx context.Context, senderID, recipientID, text, postID string) (MessageView, error) {
	if senderID == "" {
		return MessageView{}, OpError{Op: "message.Send", Kind: ErrUnauthenticated}
	}

	recipientID = strings.TrimSpace(recipientID)
	text = strings.TrimSpace(text)
	if recipientID == "" || text == "" {
		return MessageView{}, OpError{Op: "message.Send", Kind: ErrValidation, Msg: "text and recipient are required"}
	}
	if len([]rune(text)) > MaxTextChars {
		return MessageView{}, OpError{Op: "message.Send", Kind: ErrValidation, Msg: "message too long"}
	}

	postID = strings.TrimSpace(postID)
	if postID != "" && s.posts != nil {
		ok, err := s.posts.PostExists(ctx, postID)
		if err != nil {
			return MessageView{}, err
		}
		if !ok {
			return MessageView{}, OpError{Op: "message.Send", Kind: ErrValidation, Msg: "post not found"}
		}
	}

	m, err := s.store.Create(ctx, CreateInput{
		SenderID:    senderID,
		RecipientID: recipientID,
		PostID:      postID,
		Text:        text,
	})
	if err != nil {
		return MessageView{}, err
	}

	senderName := s.displayName(ctx, m.SenderID)
	recipientName := s.displayName(ctx, m.RecipientID)

	recipientView := FormatForViewer(m, m.RecipientID, senderName, recipientName)
	senderView := FormatForViewer(m, m.SenderID, senderName, recipientName)

	s.push.PushMessage(m.RecipientID, recipientView)
	s.push.PushMessage(m.SenderID, senderView)
	s.pushUnread(ctx, m.RecipientID)

	s.log.Info("msg.send", "id", m.ID, "sender", m.SenderID, "recipient", m.RecipientID, "post", m.PostID != "")
	return senderView, nil
}

// Conversation returns the chat log between the actor and one counterpart,
// oldest-first, formatted from the actor's point of view.
func (s *Service) Conversation(ctx context.Context, actorID, otherID, postID string) ([]MessageView, error) {
	if actorID == "" {
		return nil, OpError{Op: "message.Conversation", Kind: ErrUnauthenticated}
	}
	otherID = strings.TrimSpace(otherID)
	if otherID == "" {
		return nil, OpError{Op: "message.Conversation", Kind: ErrValidation, Msg: "missing counterpart"}
	}

	msgs, err := s.store.ListBetween(ctx, ListBetweenInput{
		UserA:  actorID,
		UserB:  otherID,
		PostID: strings.TrimSpace(postID),
		Limit:  s.convLimit,
	})
	if err != nil {
		return nil, err
	}

	names := map[string]string{
		actorID: s.displayName(ctx, actorID),
	}
	if otherID != actorID {
		names[otherID] = s.displayName(ctx, otherID)
	}

	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, FormatForViewer(m, actorID, names[m.SenderID], names[m.RecipientID]))
	}
	return out, nil
}

// Inbox returns one conversation summary per distinct counterpart, ordered
// by the recency of each conversation's latest message.
func (s *Service) Inbox(ctx context.Context, actorID string) ([]ConversationSummary, error) {
	if actorID == "" {
		return nil, OpError{Op: "message.Inbox", Kind: ErrUnauthenticated}
	}

	msgs, err := s.store.ListForUser(ctx, actorID)
	if err != nil {
		return nil, err
	}

	summaries := BuildInbox(actorID, msgs)
	for i := range summaries {
		summaries[i].CounterpartUsername = s.displayName(ctx, summaries[i].CounterpartID)
	}
	return summaries, nil
}

// UnreadCount returns the actor's total unread count, cache-first.
func (s *Service) UnreadCount(ctx context.Context, actorID string) (int64, error) {
	if actorID == "" {
		return 0, OpError{Op: "message.UnreadCount", Kind: ErrUnauthenticated}
	}

	if s.cache != nil {
		if n, ok, err := s.cache.GetUnread(ctx, actorID); err != nil {
			s.log.Warn("msg.unread.cache_get.fail", "err", err)
		} else if ok {
			return n, nil
		}
	}

	n, err := s.store.CountUnread(ctx, actorID)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		if err := s.cache.SetUnread(ctx, actorID, n); err != nil {
			s.log.Warn("msg.unread.cache_set.fail", "err", err)
		}
	}
	return n, nil
}

// MarkRead marks a single message read on behalf of its recipient.
// Idempotent: marking an already-read message succeeds without error.
func (s *Service) MarkRead(ctx context.Context, actorID, messageID string) (MessageView, error) {
	if actorID == "" {
		return MessageView{}, OpError{Op: "message.MarkRead", Kind: ErrUnauthenticated}
	}

	m, err := s.store.GetByID(ctx, messageID)
	if err != nil {
		return MessageView{}, err
	}
	if m.RecipientID != actorID {
		return MessageView{}, OpError{Op: "message.MarkRead", Kind: ErrUnauthorized, Msg: "only the recipient may mark a message read"}
	}

	updated, err := s.store.MarkRead(ctx, messageID)
	if err != nil {
		return MessageView{}, err
	}

	s.pushUnread(ctx, actorID)

	senderName := s.displayName(ctx, updated.SenderID)
	recipientName := s.displayName(ctx, updated.RecipientID)
	return FormatForViewer(updated, actorID, senderName, recipientName), nil
}

// MarkAllFromSender marks every pending message from one sender to the
// actor as read and returns the mutated count.
func (s *Service) MarkAllFromSender(ctx context.Context, actorID, senderID string) (int64, error) {
	if actorID == "" {
		return 0, OpError{Op: "message.MarkAllFromSender", Kind: ErrUnauthenticated}
	}
	senderID = strings.TrimSpace(senderID)
	if senderID == "" {
		return 0, OpError{Op: "message.MarkAllFromSender", Kind: ErrValidation, Msg: "missing sender"}
	}

	n, err := s.store.MarkAllFromSender(ctx, senderID, actorID)
	if err != nil {
		return 0, err
	}

	s.pushUnread(ctx, actorID)
	return n, nil
}

// MarkAllInbox marks the actor's entire inbox as read.
func (s *Service) MarkAllInbox(ctx context.Context, actorID string) (int64, error) {
	if actorID == "" {
		return 0, OpError{Op: "message.MarkAllInbox", Kind: ErrUnauthenticated}
	}

	n, err := s.store.MarkAllInbox(ctx, actorID)
	if err != nil {
		return 0, err
	}

	s.pushUnread(ctx, actorID)
	return n, nil
}

// pushUnread recomputes a user's unread total, refreshes the cache, and
// pushes an unread-count update to that user's room. Failures here never
// propagate: the originating request already succeeded.
func (s *Service) pushUnread(ctx context.Context, userID string) {
	if s.cache != nil {
		if err := s.cache.InvalidateUnread(ctx, userID); err != nil {
			s.log.Warn("msg.unread.cache_del.fail", "err", err)
		}
	}

	n, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		s.log.Warn("msg.unread.count.fail", "user", userID, "err", err)
		return
	}

	if s.cache != nil {
		if err := s.cache.SetUnread(ctx, userID, n); err != nil {
			s.log.Warn("msg.unread.cache_set.fail", "err", err)
		}
	}

	s.push.PushUnreadCount(userID, n)
}

// displayName resolves a username with the raw id as fallback, so delivery
// never fails on a missing directory row.
func (s *Service) displayName(ctx context.Context, userID string) string {
	if s.users == nil {
		return userID
	}
	name, err := s.users.Username(ctx, userID)
	if err != nil {
		if !IsNotFound(err) {
			s.log.Warn("msg.directory.fail", "user", userID, "err", err)
		}
		return userID
	}
	return name
}
