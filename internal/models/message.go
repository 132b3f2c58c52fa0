package models

import (
	"sort"
	"strings"
	"time"
)

// Delivery states of a message. Transitions are monotonic: a message is
// created as sent and may move once to recalled or deleted, both terminal.
const (
	StateSent     = "sent"
	StateRecalled = "recalled"
	StateDeleted  = "deleted"
)

// Message kinds.
const (
	KindText      = "text"
	KindFile      = "file"
	KindForwarded = "forwarded"
)

// RecalledPlaceholder replaces the content of a recalled message.
const RecalledPlaceholder = "This message has been recalled"

// Message represents a direct message between two participants.
type Message struct {
	MessageID         string    `db:"message_id" json:"message_id"`
	ConversationID    string    `db:"conversation_id" json:"conversation_id"`
	SenderID          string    `db:"sender_id" json:"sender_id"`
	ReceiverID        string    `db:"receiver_id" json:"receiver_id"`
	Content           string    `db:"content" json:"content"`
	Kind              string    `db:"kind" json:"kind"`
	OriginalMessageID *string   `db:"original_message_id" json:"original_message_id,omitempty"`
	DeliveryState     string    `db:"delivery_state" json:"delivery_state"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// Terminal reports whether the delivery state accepts no further transitions.
func (m Message) Terminal() bool {
	return m.DeliveryState == StateRecalled || m.DeliveryState == StateDeleted
}

// ConversationID derives the direction-independent conversation key for a
// pair of participants. Both orderings yield the same id.
func ConversationID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "_")
}
