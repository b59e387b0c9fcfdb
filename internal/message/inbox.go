package message

import "time"

// ConversationSummary is one inbox entry: the latest exchange with a single
// counterpart plus the unread tally for that counterpart.
type ConversationSummary struct {
	CounterpartID       string    `json:"counterpartId"`
	CounterpartUsername string    `json:"counterpartUsername"`
	LastMessage         string    `json:"lastMessage"`
	LastMessageTime     time.Time `json:"lastMessageTime"`
	LastMessagePostID   string    `json:"lastMessagePostId,omitempty"`
	UnreadCount         int64     `json:"unreadCount"`
}

// BuildInbox derives the inbox view from the user's full message history.
//
// msgs must be sorted newest-first (Store.ListForUser order). The scan does
// two jobs at once:
//   - the first message seen per counterpart fixes that conversation's
//     last-message fields (it is the newest by construction)
//   - the unread tally accumulates across the entire history, because the
//     newest message may already be read while older ones are still pending
//
// Output order is first-encounter order, i.e. conversations sorted by the
// recency of their latest message, descending.
func BuildInbox(userID string, msgs []Message) []ConversationSummary {
	summaries := make([]ConversationSummary, 0, 8)
	index := make(map[string]int, 8)

	for _, m := range msgs {
		counterpart := m.SenderID
		if m.SenderID == userID {
			counterpart = m.RecipientID
		}

		i, seen := index[counterpart]
		if !seen {
			i = len(summaries)
			index[counterpart] = i
			summaries = append(summaries, ConversationSummary{
				CounterpartID:     counterpart,
				LastMessage:       m.Text,
				LastMessageTime:   m.CreatedAt,
				LastMessagePostID: m.PostID,
			})
		}

		if m.RecipientID == userID && !m.Read {
			summaries[i].UnreadCount++
		}
	}

	return summaries
}
