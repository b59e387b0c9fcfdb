package message

import "context"

// UserDirectory resolves display fields for user ids. It is the read-only
// boundary to the accounts collaborator; the messaging core never writes
// user data.
type UserDirectory interface {
	// Username returns the display name for a user id.
	// Returns an error satisfying IsNotFound when the user is unknown.
	Username(ctx context.Context, userID string) (string, error)
}

// PostFinder is the boundary to the feed collaborator. The core only ever
// asks whether a referenced post exists.
type PostFinder interface {
	PostExists(ctx context.Context, postID string) (bool, error)
}

// AllowAllPosts accepts any post reference. Dev fallback when no feed
// database is wired; production deployments use PostgresPostFinder.
type AllowAllPosts struct{}

func (AllowAllPosts) PostExists(context.Context, string) (bool, error) { return true, nil }

// Pusher delivers realtime events to every live connection of one user's
// room. Implementations must be non-blocking and must never return delivery
// failures to the caller: the durable copy already exists in the Store, so a
// missed push is a no-op, not an error.
type Pusher interface {
	PushMessage(userID string, view MessageView)
	PushUnreadCount(userID string, unread int64)
}

// NopPusher drops every push. Used when no realtime gateway is wired.
type NopPusher struct{}

func (NopPusher) PushMessage(string, MessageView) {}
func (NopPusher) PushUnreadCount(string, int64)   {}
