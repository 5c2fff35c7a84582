package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"homedesk/internal/app/dto"
	"homedesk/internal/domain/chat"
)

// Service orchestrates the conversation and message stores, the read
// reconciler, the room registry and the event publisher. Every mutating
// path (REST or socket) funnels through it, so a store write is always
// followed by the matching room broadcast and platform event.
//
// Errors are gRPC status errors; the HTTP boundary maps codes to statuses.
type Service struct {
	Conversations ConversationRepository
	Messages      MessageRepository
	Listings      ListingDirectory
	Users         UserDirectory
	Rooms         RoomRegistry
	Events        EventPublisher
	Logger        *slog.Logger
	Now           func() time.Time
}

// ConversationView pairs a thread with display fields joined at read time.
type ConversationView struct {
	Conversation *chat.Conversation
	Listing      *ListingSummary
	Client       *UserSummary
}

// GetOrCreateConversation resolves the unique thread for the target client
// and optional listing, creating it when absent. Clients may only open
// their own threads; an admin opens a thread with any client by supplying
// clientID. The bool result reports whether a new thread was created.
func (s *Service) GetOrCreateConversation(ctx context.Context, p Principal, clientID, listingID string) (*chat.Conversation, bool, error) {
	target := clientID
	switch p.Role {
	case chat.RoleClient:
		if target != "" && target != p.ID {
			return nil, false, status.Error(codes.PermissionDenied, "cannot open a thread for another client")
		}
		target = p.ID
	case chat.RoleAdmin:
		if target == "" {
			return nil, false, status.Error(codes.InvalidArgument, "client_id is required")
		}
	default:
		return nil, false, status.Error(codes.PermissionDenied, "unknown role")
	}

	if listingID != "" {
		ok, err := s.Listings.Exists(ctx, listingID)
		if err != nil {
			return nil, false, s.internal("listing lookup failed", err)
		}
		if !ok {
			return nil, false, status.Error(codes.NotFound, "listing not found")
		}
	}

	now := s.now()
	conv, created, err := s.Conversations.GetOrCreate(ctx, target, listingID, now)
	if err != nil {
		return nil, false, s.internal("get-or-create conversation failed", err)
	}
	if created {
		s.publish(ctx, chat.NewConversationCreated(conv, now))
	}
	return conv, created, nil
}

// ListConversations returns the viewer-scoped thread list: all active
// threads for the admin, the client's own threads otherwise. Listing and
// client summaries are joined per item; a missing summary is left nil.
func (s *Service) ListConversations(ctx context.Context, p Principal) ([]ConversationView, error) {
	var (
		conversations []*chat.Conversation
		err           error
	)
	if p.Role == chat.RoleAdmin {
		conversations, err = s.Conversations.ListActive(ctx)
	} else {
		conversations, err = s.Conversations.ListByClient(ctx, p.ID)
	}
	if err != nil {
		return nil, s.internal("list conversations failed", err)
	}

	views := make([]ConversationView, 0, len(conversations))
	for _, conv := range conversations {
		view := ConversationView{Conversation: conv}
		if conv.ListingID != "" && s.Listings != nil {
			if summary, ok, err := s.Listings.Summary(ctx, conv.ListingID); err == nil && ok {
				listing := summary
				view.Listing = &listing
			}
		}
		if p.Role == chat.RoleAdmin && s.Users != nil {
			if summary, ok, err := s.Users.Summary(ctx, conv.ClientID); err == nil && ok {
				client := summary
				view.Client = &client
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// ListMessages returns a conversation's full ordered log. Fetching is not
// side-effect-free: messages sent by the other role are marked read for
// the caller first, so the returned log already reflects the new state.
func (s *Service) ListMessages(ctx context.Context, p Principal, conversationID string) ([]*chat.Message, error) {
	conv, err := s.conversationForViewer(ctx, p, conversationID)
	if err != nil {
		return nil, err
	}
	if _, err := s.reconcileRead(ctx, conv, p.Role); err != nil {
		return nil, err
	}
	messages, err := s.Messages.ListByConversation(ctx, conv.ID)
	if err != nil {
		return nil, s.internal("list messages failed", err)
	}
	return messages, nil
}

// SendMessage validates and appends a message, bumps the recipient's
// unread counter and pushes the persisted message to the room.
func (s *Service) SendMessage(ctx context.Context, p Principal, conversationID, content string) (*chat.Message, error) {
	conv, err := s.conversationForViewer(ctx, p, conversationID)
	if err != nil {
		return nil, err
	}
	msg, err := chat.NewMessage(conv.ID, p.ID, p.Role, content, s.now())
	if err != nil {
		if errors.Is(err, chat.ErrEmptyContent) {
			return nil, status.Error(codes.InvalidArgument, "content is required")
		}
		return nil, s.internal("build message failed", err)
	}
	if err := s.Messages.Append(ctx, msg); err != nil {
		return nil, s.internal("append message failed", err)
	}
	if err := s.Conversations.Touch(ctx, conv.ID, msg.CreatedAt, p.Role.Opposite()); err != nil {
		return nil, s.internal("touch conversation failed", err)
	}
	s.broadcast(conv.ID, "new-message", wireMessage(msg))
	s.publish(ctx, chat.NewMessageSent(msg, msg.CreatedAt))
	return msg, nil
}

// MarkConversationRead explicitly runs the read pass for the caller's
// role, returning the IDs of the messages it flipped.
func (s *Service) MarkConversationRead(ctx context.Context, p Principal, conversationID string) ([]string, error) {
	conv, err := s.conversationForViewer(ctx, p, conversationID)
	if err != nil {
		return nil, err
	}
	return s.reconcileRead(ctx, conv, p.Role)
}

// DeleteAllMessages purges a thread's history. Admin only. The thread
// record survives with zeroed counters and last_message_at rewound to its
// creation time.
func (s *Service) DeleteAllMessages(ctx context.Context, p Principal, conversationID string) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	conv, err := s.conversationByID(ctx, conversationID)
	if err != nil {
		return err
	}
	removed, err := s.Messages.DeleteByConversation(ctx, conv.ID)
	if err != nil {
		return s.internal("purge messages failed", err)
	}
	if err := s.Conversations.ResetThread(ctx, conv.ID, conv.CreatedAt); err != nil {
		return s.internal("reset thread failed", err)
	}
	s.publish(ctx, chat.NewConversationCleared(conv.ID, removed, s.now()))
	return nil
}

// DeleteMessage removes a single message. Admin only. When the newest
// message goes away, last_message_at is recomputed from the remaining log
// (or the thread's creation time for an emptied log), and an unread
// deletion recomputes the recipient's counter from the store.
func (s *Service) DeleteMessage(ctx context.Context, p Principal, messageID string) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	msg, err := s.Messages.ByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, chat.ErrMessageNotFound) {
			return status.Error(codes.NotFound, "message not found")
		}
		return s.internal("load message failed", err)
	}
	conv, err := s.conversationByID(ctx, msg.ConversationID)
	if err != nil {
		return err
	}
	if err := s.Messages.Delete(ctx, msg.ID); err != nil {
		return s.internal("delete message failed", err)
	}
	if !msg.IsRead {
		count, err := s.Messages.CountUnread(ctx, conv.ID, msg.SenderRole)
		if err != nil {
			return s.internal("count unread failed", err)
		}
		if err := s.Conversations.SetUnread(ctx, conv.ID, msg.SenderRole.Opposite(), count); err != nil {
			return s.internal("set unread failed", err)
		}
	}
	newest, ok, err := s.Messages.NewestCreatedAt(ctx, conv.ID)
	if err != nil {
		return s.internal("find newest message failed", err)
	}
	if !ok {
		newest = conv.CreatedAt
	}
	if err := s.Conversations.SetLastMessageAt(ctx, conv.ID, newest); err != nil {
		return s.internal("set last message time failed", err)
	}
	s.publish(ctx, chat.NewMessageDeleted(conv.ID, msg.ID, s.now()))
	return nil
}

// CanAccess reports whether the caller may subscribe to a conversation's
// room: admins always, clients only for their own thread.
func (s *Service) CanAccess(ctx context.Context, p Principal, conversationID string) error {
	_, err := s.conversationForViewer(ctx, p, conversationID)
	return err
}

// reconcileRead is the sole writer of message read-state and the sole
// trigger of the counter reset. Flipping nothing is a valid outcome: the
// counter is still reset to zero (never decremented), and no broadcast or
// event goes out.
func (s *Service) reconcileRead(ctx context.Context, conv *chat.Conversation, viewer chat.Role) ([]string, error) {
	now := s.now()
	ids, err := s.Messages.MarkRead(ctx, conv.ID, viewer.Opposite(), now)
	if err != nil {
		return nil, s.internal("mark read failed", err)
	}
	if err := s.Conversations.ResetUnread(ctx, conv.ID, viewer); err != nil {
		return nil, s.internal("reset unread failed", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	s.broadcast(conv.ID, "message-read", dto.ReadReceipt{
		ConversationID: conv.ID,
		MessageIDs:     ids,
		ReaderRole:     string(viewer),
	})
	s.publish(ctx, chat.NewConversationRead(conv.ID, viewer, ids, now))
	return ids, nil
}

func (s *Service) conversationForViewer(ctx context.Context, p Principal, id string) (*chat.Conversation, error) {
	conv, err := s.conversationByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Role != chat.RoleAdmin && conv.ClientID != p.ID {
		return nil, status.Error(codes.PermissionDenied, "not a participant")
	}
	return conv, nil
}

func (s *Service) conversationByID(ctx context.Context, id string) (*chat.Conversation, error) {
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "conversation id is required")
	}
	conv, err := s.Conversations.ByID(ctx, id)
	if err != nil {
		if errors.Is(err, chat.ErrConversationNotFound) {
			return nil, status.Error(codes.NotFound, "conversation not found")
		}
		return nil, s.internal("load conversation failed", err)
	}
	return conv, nil
}

func requireAdmin(p Principal) error {
	if p.Role != chat.RoleAdmin {
		return status.Error(codes.PermissionDenied, "admin only")
	}
	return nil
}

// broadcast pushes an event into the room registry. Reaching zero sockets
// is expected; a client that missed a push re-fetches over REST.
func (s *Service) broadcast(conversationID, event string, payload any) {
	if s.Rooms == nil {
		return
	}
	s.Rooms.Broadcast(conversationID, event, payload)
}

// publish hands an event to the broker. Failures are logged and swallowed:
// the stores remain the source of truth.
func (s *Service) publish(ctx context.Context, event chat.DomainEvent) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, event); err != nil && s.Logger != nil {
		s.Logger.Error("event publish failed", "event", event.EventName(), "conversation_id", event.AggregateID(), "error", err)
	}
}

func (s *Service) internal(msg string, err error) error {
	if s.Logger != nil {
		s.Logger.Error(msg, "error", err)
	}
	return status.Error(codes.Internal, msg)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func wireMessage(m *chat.Message) dto.ChatMessage {
	out := dto.ChatMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderRole:     string(m.SenderRole),
		Content:        m.Content,
		IsRead:         m.IsRead,
		CreatedAt:      m.CreatedAt,
	}
	if !m.ReadAt.IsZero() {
		readAt := m.ReadAt
		out.ReadAt = &readAt
	}
	return out
}
