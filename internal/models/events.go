package models

// Push event types carried over the websocket channel.
const (
	EventNewMessage         = "new-message"
	EventMessageSent        = "message-sent"
	EventMessageRecalled    = "message-recalled"
	EventMessageDeleted     = "message-deleted"
	EventTyping             = "typing"
	EventStopTyping         = "stop-typing"
	EventParticipantOnline  = "participant-online"
	EventParticipantOffline = "participant-offline"
	EventError              = "error"
)

// PushEvent is the envelope written to a push connection.
type PushEvent struct {
	Type           string   `json:"type"`
	Message        *Message `json:"message,omitempty"`
	MessageID      string   `json:"message_id,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Content        string   `json:"content,omitempty"`
	SenderID       string   `json:"sender_id,omitempty"`
	ParticipantID  string   `json:"participant_id,omitempty"`
	ClientToken    string   `json:"client_token,omitempty"`
	Reason         string   `json:"reason,omitempty"`
}

// ClientFrame is a frame read from a push connection. The client token is
// echoed back on the message-sent ack so an optimistic sender can correlate.
type ClientFrame struct {
	Type        string `json:"type"`
	ReceiverID  string `json:"receiver_id"`
	Content     string `json:"content"`
	Kind        string `json:"kind"`
	ClientToken string `json:"client_token"`
}
