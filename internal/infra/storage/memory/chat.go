package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"homedesk/internal/domain/chat"
)

type threadKey struct {
	clientID  string
	listingID string
}

// ConversationRepository is a mutex-guarded in-memory store used by tests
// and as the runtime fallback when Mongo is not configured. The map keyed
// by (client, listing) gives the same uniqueness guarantee the Mongo
// compound index provides.
type ConversationRepository struct {
	mu      sync.RWMutex
	byID    map[string]*chat.Conversation
	byOwner map[threadKey]string
}

// NewConversationRepository builds an empty repository.
func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		byID:    make(map[string]*chat.Conversation),
		byOwner: make(map[threadKey]string),
	}
}

// GetOrCreate returns the unique thread for the pair, inserting when absent.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, clientID, listingID string, now time.Time) (*chat.Conversation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := threadKey{clientID: clientID, listingID: listingID}
	if id, ok := r.byOwner[key]; ok {
		return copyConversation(r.byID[id]), false, nil
	}
	conv := chat.NewConversation(clientID, listingID, now)
	r.byID[conv.ID] = conv
	r.byOwner[key] = conv.ID
	return copyConversation(conv), true, nil
}

// ByID returns a conversation or chat.ErrConversationNotFound.
func (r *ConversationRepository) ByID(ctx context.Context, id string) (*chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.byID[id]
	if !ok {
		return nil, chat.ErrConversationNotFound
	}
	return copyConversation(conv), nil
}

// ListActive returns all active threads, newest activity first.
func (r *ConversationRepository) ListActive(ctx context.Context) ([]*chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*chat.Conversation, 0, len(r.byID))
	for _, conv := range r.byID {
		if conv.Status != chat.StatusActive {
			continue
		}
		out = append(out, copyConversation(conv))
	}
	sortByActivity(out)
	return out, nil
}

// ListByClient returns one client's threads, newest activity first.
func (r *ConversationRepository) ListByClient(ctx context.Context, clientID string) ([]*chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*chat.Conversation, 0, 2)
	for _, conv := range r.byID {
		if conv.ClientID != clientID {
			continue
		}
		out = append(out, copyConversation(conv))
	}
	sortByActivity(out)
	return out, nil
}

// Touch moves last_message_at forward and bumps the recipient's counter.
func (r *ConversationRepository) Touch(ctx context.Context, id string, at time.Time, recipient chat.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[id]
	if !ok {
		return chat.ErrConversationNotFound
	}
	conv.LastMessageAt = at
	if recipient == chat.RoleAdmin {
		conv.AdminUnread++
	} else {
		conv.ClientUnread++
	}
	return nil
}

// ResetUnread zeroes one role's counter.
func (r *ConversationRepository) ResetUnread(ctx context.Context, id string, role chat.Role) error {
	return r.setUnread(id, role, 0)
}

// SetUnread overwrites one role's counter.
func (r *ConversationRepository) SetUnread(ctx context.Context, id string, role chat.Role, count int64) error {
	return r.setUnread(id, role, count)
}

func (r *ConversationRepository) setUnread(id string, role chat.Role, count int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[id]
	if !ok {
		return chat.ErrConversationNotFound
	}
	if role == chat.RoleAdmin {
		conv.AdminUnread = count
	} else {
		conv.ClientUnread = count
	}
	return nil
}

// SetLastMessageAt overwrites the activity timestamp.
func (r *ConversationRepository) SetLastMessageAt(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[id]
	if !ok {
		return chat.ErrConversationNotFound
	}
	conv.LastMessageAt = at
	return nil
}

// ResetThread zeroes both counters and rewinds last_message_at.
func (r *ConversationRepository) ResetThread(ctx context.Context, id string, lastMessageAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[id]
	if !ok {
		return chat.ErrConversationNotFound
	}
	conv.ClientUnread = 0
	conv.AdminUnread = 0
	conv.LastMessageAt = lastMessageAt
	return nil
}

// MessageRepository keeps the ordered message log in memory.
type MessageRepository struct {
	mu             sync.RWMutex
	byID           map[string]*chat.Message
	byConversation map[string][]string
}

// NewMessageRepository builds an empty repository.
func NewMessageRepository() *MessageRepository {
	return &MessageRepository{
		byID:           make(map[string]*chat.Message),
		byConversation: make(map[string][]string),
	}
}

// Append persists a message at the end of its conversation's log.
func (r *MessageRepository) Append(ctx context.Context, msg *chat.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := copyMessage(msg)
	r.byID[stored.ID] = stored
	r.byConversation[stored.ConversationID] = append(r.byConversation[stored.ConversationID], stored.ID)
	return nil
}

// ByID returns a message or chat.ErrMessageNotFound.
func (r *MessageRepository) ByID(ctx context.Context, id string) (*chat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msg, ok := r.byID[id]
	if !ok {
		return nil, chat.ErrMessageNotFound
	}
	return copyMessage(msg), nil
}

// ListByConversation returns the full sequence ascending by creation time.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]*chat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byConversation[conversationID]
	out := make([]*chat.Message, 0, len(ids))
	for _, id := range ids {
		if msg, ok := r.byID[id]; ok {
			out = append(out, copyMessage(msg))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MarkRead flips every unread message sent by senderRole and returns the
// affected IDs.
func (r *MessageRepository) MarkRead(ctx context.Context, conversationID string, senderRole chat.Role, at time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var flipped []string
	for _, id := range r.byConversation[conversationID] {
		msg, ok := r.byID[id]
		if !ok || msg.SenderRole != senderRole || msg.IsRead {
			continue
		}
		msg.IsRead = true
		msg.ReadAt = at
		flipped = append(flipped, msg.ID)
	}
	return flipped, nil
}

// CountUnread counts unread messages sent by senderRole.
func (r *MessageRepository) CountUnread(ctx context.Context, conversationID string, senderRole chat.Role) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, id := range r.byConversation[conversationID] {
		if msg, ok := r.byID[id]; ok && msg.SenderRole == senderRole && !msg.IsRead {
			count++
		}
	}
	return count, nil
}

// DeleteByConversation removes the whole log and reports how many went.
func (r *MessageRepository) DeleteByConversation(ctx context.Context, conversationID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.byConversation[conversationID]
	for _, id := range ids {
		delete(r.byID, id)
	}
	delete(r.byConversation, conversationID)
	return int64(len(ids)), nil
}

// Delete removes a single message or returns chat.ErrMessageNotFound.
func (r *MessageRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.byID[id]
	if !ok {
		return chat.ErrMessageNotFound
	}
	delete(r.byID, id)
	ids := r.byConversation[msg.ConversationID]
	for i, candidate := range ids {
		if candidate == id {
			r.byConversation[msg.ConversationID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// NewestCreatedAt reports the creation time of the newest remaining message.
func (r *MessageRepository) NewestCreatedAt(ctx context.Context, conversationID string) (time.Time, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		newest time.Time
		found  bool
	)
	for _, id := range r.byConversation[conversationID] {
		if msg, ok := r.byID[id]; ok {
			if !found || msg.CreatedAt.After(newest) {
				newest = msg.CreatedAt
				found = true
			}
		}
	}
	return newest, found, nil
}

func sortByActivity(items []*chat.Conversation) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].LastMessageAt.After(items[j].LastMessageAt)
	})
}

func copyConversation(c *chat.Conversation) *chat.Conversation {
	dup := *c
	return &dup
}

func copyMessage(m *chat.Message) *chat.Message {
	dup := *m
	return &dup
}
