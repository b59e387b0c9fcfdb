package message

import "time"

// SelfMarker is the literal shown as sender when the viewer is the sender.
const SelfMarker = "me"

// MessageView is the viewer-specific presentation of a stored message.
// Field names follow the wire contract consumed by the web client.
type MessageView struct {
	ID                string    `json:"id"`
	Sender            string    `json:"sender"` // SelfMarker or the sender's username
	SenderID          string    `json:"senderId"`
	RecipientID       string    `json:"recipientId"`
	RecipientUsername string    `json:"recipientUsername"`
	PostID            string    `json:"postId,omitempty"`
	Text              string    `json:"text"`
	Read              bool      `json:"read"`
	CreatedAt         time.Time `json:"createdAt"`
}

// FormatForViewer renders one stored message for one viewer.
//
// The sender's own copy always shows Sender=SelfMarker and Read=true: the
// stored read flag tracks the recipient's state only, and a sender never
// sees their own message as unread. Any other viewer sees the sender's
// username and the stored read state.
func FormatForViewer(m Message, viewerID, senderName, recipientName string) MessageView {
	v := MessageView{
		ID:                m.ID,
		Sender:            senderName,
		SenderID:          m.SenderID,
		RecipientID:       m.RecipientID,
		RecipientUsername: recipientName,
		PostID:            m.PostID,
		Text:              m.Text,
		Read:              m.Read,
		CreatedAt:         m.CreatedAt,
	}
	if viewerID == m.SenderID {
		v.Sender = SelfMarker
		v.Read = true
	}
	return v
}
