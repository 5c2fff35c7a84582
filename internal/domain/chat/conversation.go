package chat

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrConversationNotFound is returned when a conversation does not exist.
	ErrConversationNotFound = errors.New("chat: conversation not found")
	// ErrMessageNotFound is returned when a message does not exist.
	ErrMessageNotFound = errors.New("chat: message not found")
	// ErrListingNotFound is returned when a listing-scoped conversation names an unknown listing.
	ErrListingNotFound = errors.New("chat: listing not found")
	// ErrEmptyContent rejects empty or whitespace-only message bodies.
	ErrEmptyContent = errors.New("chat: message content is empty")
)

// Role identifies which side of a support thread a user is on.
type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// Valid reports whether the role is one of the two known sides.
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleAdmin
}

// Opposite returns the other side of the thread.
func (r Role) Opposite() Role {
	if r == RoleClient {
		return RoleAdmin
	}
	return RoleClient
}

// ConversationStatus tracks thread lifecycle. Conversations are never hard-deleted.
type ConversationStatus string

const (
	StatusActive   ConversationStatus = "active"
	StatusArchived ConversationStatus = "archived"
)

// Conversation is a support thread between one client and the admin,
// optionally scoped to a listing. An empty ListingID denotes the client's
// single direct thread.
//
// The unread counters are owned exclusively by the conversation store and
// must always equal the count of persisted, unread messages sent by the
// opposite role.
type Conversation struct {
	ID            string
	ClientID      string
	ListingID     string
	Status        ConversationStatus
	ClientUnread  int64
	AdminUnread   int64
	LastMessageAt time.Time
	CreatedAt     time.Time
}

// NewConversation builds an active thread with zeroed counters.
func NewConversation(clientID, listingID string, now time.Time) *Conversation {
	return &Conversation{
		ID:            uuid.NewString(),
		ClientID:      clientID,
		ListingID:     listingID,
		Status:        StatusActive,
		LastMessageAt: now,
		CreatedAt:     now,
	}
}

// IsDirect reports whether this is the client's listing-less thread.
func (c *Conversation) IsDirect() bool {
	return c.ListingID == ""
}

// UnreadFor returns the counter for the viewing role.
func (c *Conversation) UnreadFor(role Role) int64 {
	if role == RoleAdmin {
		return c.AdminUnread
	}
	return c.ClientUnread
}

// Message is one entry of a conversation's ordered log. SenderRole is
// captured at send time so later role changes do not rewrite history.
// ReadAt is zero until the message transitions to read, and is set exactly
// once by the read reconciler.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	SenderRole     Role
	Content        string
	IsRead         bool
	ReadAt         time.Time
	CreatedAt      time.Time
}

// NewMessage validates and builds an unread message. Content is trimmed;
// empty or whitespace-only content yields ErrEmptyContent.
func NewMessage(conversationID, senderID string, role Role, content string, now time.Time) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	return &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderRole:     role,
		Content:        content,
		CreatedAt:      now,
	}, nil
}
