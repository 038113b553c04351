package models

import "time"

// MessageRole indicates the author of a Message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// MessageType distinguishes the media carried by a Message.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageAudio MessageType = "audio"
	MessageVideo MessageType = "video"
)

// Message is one turn in a Conversation. Messages are append-only; deletion
// is soft via Deleted, which specification treats as absent from history.
//
// Assistant and system Messages are created with Read=true; user Messages
// are created with Read=false until an operator or the dashboard marks them
// read.
type Message struct {
	ID              string      `json:"id"`
	ConversationID  string      `json:"conversation_id"`
	Role            MessageRole `json:"role"`
	Content         string      `json:"content"`
	MessageType     MessageType `json:"message_type"`
	MediaURL        string      `json:"media_url,omitempty"`
	ExternalID      string      `json:"external_id,omitempty"`
	Read            bool        `json:"read"`
	Deleted         bool        `json:"deleted"`
	DeliveryFailed  bool        `json:"delivery_failed,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}
