package models

import "time"

// LastMessage is the denormalized snapshot stored on a conversation summary.
type LastMessage struct {
	Content   string    `json:"content"`
	SenderID  string    `json:"sender_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationSummary is one participant's view of a conversation. Every
// pair has two rows, one per owner, sharing the conversation id.
type ConversationSummary struct {
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	OwnerID        string    `db:"owner_id" json:"owner_id"`
	PeerID         string    `db:"peer_id" json:"peer_id"`
	LastContent    string    `db:"last_content" json:"-"`
	LastSenderID   string    `db:"last_sender_id" json:"-"`
	LastSentAt     time.Time `db:"last_sent_at" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Last returns the snapshot in its wire form.
func (s ConversationSummary) Last() LastMessage {
	return LastMessage{Content: s.LastContent, SenderID: s.LastSenderID, Timestamp: s.LastSentAt}
}
