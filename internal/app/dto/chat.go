package dto

import "time"

// ListingSummary is the read-time join of listing display fields.
type ListingSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	City         string `json:"city,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// UserSummary is the read-time join of client display fields.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Conversation describes a support thread with its per-role unread counters.
type Conversation struct {
	ID                string          `json:"id"`
	ClientID          string          `json:"client_id"`
	ListingID         string          `json:"listing_id,omitempty"`
	Status            string          `json:"status"`
	ClientUnreadCount int64           `json:"client_unread_count"`
	AdminUnreadCount  int64           `json:"admin_unread_count"`
	LastMessageAt     time.Time       `json:"last_message_at"`
	CreatedAt         time.Time       `json:"created_at"`
	Listing           *ListingSummary `json:"listing,omitempty"`
	Client            *UserSummary    `json:"client,omitempty"`
}

// ConversationList is a role-scoped collection.
type ConversationList struct {
	Items []Conversation `json:"items"`
}

// CreateConversationResponse reports whether the thread already existed.
type CreateConversationResponse struct {
	Conversation Conversation `json:"conversation"`
	Existing     bool         `json:"existing"`
}

// ReadReceipt is pushed to a conversation room after a read pass so peers
// can update local read-state without re-fetching.
type ReadReceipt struct {
	ConversationID string   `json:"conversation_id"`
	MessageIDs     []string `json:"message_ids"`
	ReaderRole     string   `json:"reader_role"`
}

// ChatMessage contains a single message payload.
type ChatMessage struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	SenderRole     string     `json:"sender_role"`
	Content        string     `json:"content"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ChatMessageList is the full ordered message sequence.
type ChatMessageList struct {
	Items []ChatMessage `json:"items"`
}
