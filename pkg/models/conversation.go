package models

import "time"

// Platform identifies the messaging surface a Conversation arrived on.
type Platform string

const (
	PlatformWhatsApp Platform = "whatsapp"
	PlatformWeb      Platform = "web"
)

// ConversationStatus is the lifecycle state of a Conversation.
type ConversationStatus string

const (
	ConversationActive ConversationStatus = "active"
	ConversationClosed ConversationStatus = "closed"
)

// Conversation is a single thread of Messages with a party on one Platform.
// At most one Conversation may be ConversationActive per (Platform,
// ExternalID) at any time.
type Conversation struct {
	ID           string             `json:"id"`
	UserID       string             `json:"user_id"`
	Platform     Platform           `json:"platform"`
	ExternalID   string             `json:"external_id"`
	Status       ConversationStatus `json:"status"`
	AgentEnabled bool               `json:"agent_enabled"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}
