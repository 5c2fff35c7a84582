package chat

import (
	"context"
	"time"

	"homedesk/internal/domain/chat"
)

// Principal is the resolved caller of a service operation.
type Principal struct {
	ID   string
	Name string
	Role chat.Role
}

// ConversationRepository owns thread records and their unread counters.
// Touch, ResetUnread, SetUnread and ResetThread must each be applied as a
// single atomic update: no read-modify-write window is visible to other
// callers.
type ConversationRepository interface {
	// GetOrCreate returns the unique thread for (clientID, listingID),
	// inserting it when absent. The second result reports whether an
	// insert happened. Implementations must tolerate concurrent calls
	// for the same pair: a uniqueness violation is recovered by
	// re-fetching, never surfaced.
	GetOrCreate(ctx context.Context, clientID, listingID string, now time.Time) (*chat.Conversation, bool, error)
	ByID(ctx context.Context, id string) (*chat.Conversation, error)
	// ListActive returns all active threads, newest activity first.
	ListActive(ctx context.Context) ([]*chat.Conversation, error)
	// ListByClient returns one client's threads, newest activity first.
	ListByClient(ctx context.Context, clientID string) ([]*chat.Conversation, error)
	// Touch records message activity: last_message_at moves forward and
	// the recipient role's unread counter is incremented by one.
	Touch(ctx context.Context, id string, at time.Time, recipient chat.Role) error
	// ResetUnread zeroes one role's counter. Always a reset, never a
	// decrement, so concurrent read passes cannot push it negative.
	ResetUnread(ctx context.Context, id string, role chat.Role) error
	// SetUnread overwrites one role's counter with a recomputed value.
	SetUnread(ctx context.Context, id string, role chat.Role, count int64) error
	SetLastMessageAt(ctx context.Context, id string, at time.Time) error
	// ResetThread zeroes both counters and rewinds last_message_at, used
	// after a bulk purge.
	ResetThread(ctx context.Context, id string, lastMessageAt time.Time) error
}

// MessageRepository owns the ordered message log.
type MessageRepository interface {
	Append(ctx context.Context, msg *chat.Message) error
	ByID(ctx context.Context, id string) (*chat.Message, error)
	// ListByConversation returns the full sequence ascending by creation
	// time; every call is a fresh query.
	ListByConversation(ctx context.Context, conversationID string) ([]*chat.Message, error)
	// MarkRead flips every unread message sent by senderRole in the
	// conversation and stamps read_at. It returns the affected IDs; an
	// empty result means the pass was a no-op.
	MarkRead(ctx context.Context, conversationID string, senderRole chat.Role, at time.Time) ([]string, error)
	CountUnread(ctx context.Context, conversationID string, senderRole chat.Role) (int64, error)
	DeleteByConversation(ctx context.Context, conversationID string) (int64, error)
	Delete(ctx context.Context, id string) error
	// NewestCreatedAt reports the creation time of the most recent
	// remaining message, with ok=false for an empty log.
	NewestCreatedAt(ctx context.Context, conversationID string) (time.Time, bool, error)
}

// ListingSummary carries listing display fields joined at read time.
type ListingSummary struct {
	ID           string
	Title        string
	City         string
	ThumbnailURL string
}

// UserSummary carries client display fields joined at read time.
type UserSummary struct {
	ID    string
	Name  string
	Email string
}

// ListingDirectory is a read-only view of the platform's listings.
type ListingDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
	Summary(ctx context.Context, id string) (ListingSummary, bool, error)
}

// UserDirectory is a read-only view of the platform's users.
type UserDirectory interface {
	Summary(ctx context.Context, id string) (UserSummary, bool, error)
}

// RoomRegistry fans an event out to every socket currently subscribed to a
// conversation. Delivery is at-most-once and may reach zero sockets; that
// is not an error. The interface exists so a distributed fan-out could be
// substituted for the in-process hub without touching store logic.
type RoomRegistry interface {
	Broadcast(conversationID, event string, payload any)
}

// EventPublisher hands domain events to the platform's broker.
type EventPublisher interface {
	Publish(ctx context.Context, event chat.DomainEvent) error
}
