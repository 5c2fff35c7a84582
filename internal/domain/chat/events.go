package chat

import "time"

// DomainEvent is emitted after a store write so the rest of the platform
// (notifications, analytics) can react. Delivery is best-effort.
type DomainEvent interface {
	EventName() string
	AggregateID() string
	OccurredAt() time.Time
}

type BaseEvent struct {
	Name      string    `json:"-"`
	Aggregate string    `json:"conversation_id"`
	Time      time.Time `json:"occurred_at"`
}

func (e BaseEvent) EventName() string    { return e.Name }
func (e BaseEvent) AggregateID() string  { return e.Aggregate }
func (e BaseEvent) OccurredAt() time.Time { return e.Time }

// ConversationCreated fires when GetOrCreate actually inserted a thread.
type ConversationCreated struct {
	BaseEvent
	ClientID  string `json:"client_id"`
	ListingID string `json:"listing_id,omitempty"`
}

// MessageSent fires for every persisted message.
type MessageSent struct {
	BaseEvent
	MessageID  string `json:"message_id"`
	SenderID   string `json:"sender_id"`
	SenderRole Role   `json:"sender_role"`
}

// ConversationRead fires when a read pass flipped at least one message.
type ConversationRead struct {
	BaseEvent
	ReaderRole Role     `json:"reader_role"`
	MessageIDs []string `json:"message_ids"`
}

// MessageDeleted fires when a single message is removed.
type MessageDeleted struct {
	BaseEvent
	MessageID string `json:"message_id"`
}

// ConversationCleared fires when an admin purges a thread's history.
type ConversationCleared struct {
	BaseEvent
	Removed int64 `json:"removed"`
}

func newBase(name, conversationID string, at time.Time) BaseEvent {
	return BaseEvent{Name: name, Aggregate: conversationID, Time: at}
}

func NewConversationCreated(c *Conversation, at time.Time) ConversationCreated {
	return ConversationCreated{
		BaseEvent: newBase("chat.conversation.created", c.ID, at),
		ClientID:  c.ClientID,
		ListingID: c.ListingID,
	}
}

func NewMessageSent(m *Message, at time.Time) MessageSent {
	return MessageSent{
		BaseEvent:  newBase("chat.message.sent", m.ConversationID, at),
		MessageID:  m.ID,
		SenderID:   m.SenderID,
		SenderRole: m.SenderRole,
	}
}

func NewConversationRead(conversationID string, reader Role, ids []string, at time.Time) ConversationRead {
	return ConversationRead{
		BaseEvent:  newBase("chat.conversation.read", conversationID, at),
		ReaderRole: reader,
		MessageIDs: ids,
	}
}

func NewMessageDeleted(conversationID, messageID string, at time.Time) MessageDeleted {
	return MessageDeleted{
		BaseEvent: newBase("chat.message.deleted", conversationID, at),
		MessageID: messageID,
	}
}

func NewConversationCleared(conversationID string, removed int64, at time.Time) ConversationCleared {
	return ConversationCleared{
		BaseEvent: newBase("chat.conversation.cleared", conversationID, at),
		Removed:   removed,
	}
}
