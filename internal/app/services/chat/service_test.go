package chat_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	chatsvc "homedesk/internal/app/services/chat"
	"homedesk/internal/domain/chat"
	"homedesk/internal/infra/storage/memory"
)

type broadcastEvent struct {
	conversationID string
	event          string
	payload        any
}

type broadcastRecorder struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (r *broadcastRecorder) Broadcast(conversationID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, broadcastEvent{conversationID: conversationID, event: event, payload: payload})
}

func (r *broadcastRecorder) byEvent(event string) []broadcastEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []broadcastEvent
	for _, e := range r.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type testStack struct {
	svc           *chatsvc.Service
	conversations *memory.ConversationRepository
	messages      *memory.MessageRepository
	listings      *memory.ListingDirectory
	users         *memory.UserDirectory
	rooms         *broadcastRecorder
	events        *memory.EventRecorder
}

func newStack(t *testing.T) *testStack {
	t.Helper()
	stack := &testStack{
		conversations: memory.NewConversationRepository(),
		messages:      memory.NewMessageRepository(),
		listings:      memory.NewListingDirectory(),
		users:         memory.NewUserDirectory(),
		rooms:         &broadcastRecorder{},
		events:        memory.NewEventRecorder(),
	}
	var (
		mu  sync.Mutex
		now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	)
	stack.svc = &chatsvc.Service{
		Conversations: stack.conversations,
		Messages:      stack.messages,
		Listings:      stack.listings,
		Users:         stack.users,
		Rooms:         stack.rooms,
		Events:        stack.events,
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(time.Second)
			return now
		},
	}
	stack.listings.Add(chatsvc.ListingSummary{ID: "lst-1", Title: "Canal View Loft", City: "Amsterdam"})
	stack.users.Add(chatsvc.UserSummary{ID: "client-1", Name: "Nora", Email: "nora@example.com"})
	stack.users.Add(chatsvc.UserSummary{ID: "client-2", Name: "Milo"})
	return stack
}

func client1() chatsvc.Principal {
	return chatsvc.Principal{ID: "client-1", Name: "Nora", Role: chat.RoleClient}
}

func client2() chatsvc.Principal {
	return chatsvc.Principal{ID: "client-2", Name: "Milo", Role: chat.RoleClient}
}

func admin() chatsvc.Principal {
	return chatsvc.Principal{ID: "admin-1", Name: "Support", Role: chat.RoleAdmin}
}

func TestGetOrCreateConversationIsUniquePerClient(t *testing.T) {
	stack := newStack(t)
	ctx := context.Background()

	const attempts = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]struct{}{}
		created int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conv, fresh, err := stack.svc.GetOrCreateConversation(ctx, client1(), "", "")
			require.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			ids[conv.ID] = struct{}{}
			if fresh {
				created++
			}
		}()
	}
	wg.Wait()

	require.Len(t, ids, 1, "all callers must resolve to the same direct thread")
	require.Equal(t, 1, created, "exactly one creation must happen")

	// A listing-scoped thread for the same client is a separate record.
	scoped, fresh, err := stack.svc.GetOrCreateConversation(ctx, client1(), "", "lst-1")
	require.NoError(t, err)
	require.True(t, fresh)
	for id := range ids {
		require.NotEqual(t, id, scoped.ID)
	}
}

func TestGetOrCreateConversationUnknownListing(t *testing.T) {
	stack := newStack(t)
	_, _, err := stack.svc.GetOrCreateConversation(context.Background(), client1(), "", "lst-missing")
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestGetOrCreateConversationAdminNeedsClientID(t *testing.T) {
	stack := newStack(t)
	ctx := context.Background()

	_, _, err := stack.svc.GetOrCreateConversation(ctx, admin(), "", "")
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	conv, fresh, err := stack.svc.GetOrCreateConversation(ctx, admin(), "client-1", "")
	require.NoError(t, err)
	require.True(t, fresh)
	require.Equal(t, "client-1", conv.ClientID)

	// The client's own getOrCreate resolves to the admin-opened thread.
	same, fresh, err := stack.svc.GetOrCreateConversation(ctx, client1(), "", "")
	require.NoError(t, err)
	require.False(t, fresh)
	require.Equal(t, conv.ID, same.ID)
}

func TestGetOrCreateConversationClientCannotImpersonate(t *testing.T) {
	stack := newStack(t)
	_, _, err := stack.svc.GetOrCreateConversation(context.Background(), client1(), "client-2", "")
	require.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestSendMessageRejectsEmptyContent(t *testing.T) {
	stack := newStack(t)
	ctx := context.Background()
	conv, _, err := stack.svc.GetOrCreateConversation(ctx, client1(), "", "")
	require.NoError(t, err)

	for _, content := range []string{"", "   ", "\n\t"} {
		_, err := stack.svc.SendMessage(ctx, client1(), conv.ID, content)
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	}
}

func TestUnreadCountersFollowMessageFlow(t *testing.T) {
	stack := newStack(t)
	ctx := context.Background()
	conv, _, err := stack.svc.GetOrCreateConversation(ctx, client1(), "", "")
	require.NoError(t, err)

	for _, content := range []string{"hello", "anyone there?", "still waiting"} {
		_, err := stack.svc.SendMessage(ctx, client1(), conv.ID, content)
		require.NoError(t, err)
	}

	current, err := stack.conversations.ByID(ctx, conv.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, current.AdminUnread)
	require.EqualValues(t, 0, current.ClientUnread)

	// Fetching as admin marks the client's messages read.
	messages, err := stack.svc.ListMessages(ctx, admin(), conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	for _, msg := range messages {
		require.True(t, msg.IsRead)
		require.False(t, msg.ReadAt.IsZero())
	}

	current, err = stack.conversations.ByID(ctx, conv.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, current.AdminUnread)
	require.EqualValues(t, 0, current.ClientUnread)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	stack := newStack(t)
	ctx := context.Background()
	conv, _, err := stack.svc.GetOrCreateConversation(ctx, client1(), "", "")
	require.NoError(t, err)
	_, err = stack.svc.SendMessage(ctx, client1(), conv.ID, "ping")
	require.NoError(t, err)

	first, err := stack.svc.MarkConversationRead(ctx, admin(), conv.ID)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := stack.svc.MarkConversationRead(ctx, admin(), conv.ID)
	require.NoError(t, err)
	require.Empty(t, second)

	current, err := stack.conversations.ByID(ctx, conv.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, current.AdminUnread)

	// Only the first pass broadcasts a receipt.
	require.Len(t, stack.rooms.byEvent("message-read"), 1)
}

func TestDeleteAllMessagesResetsThread(t *testing.T) {
	stack := newStack(t)
	ctx := context.Background()
	conv, _, err := stack.svc.GetOrCreateConversation(ctx, client1(), "", "")
	require.NoError(t, err)

	_, err = stack.svc.SendMessage(ctx, client1(), conv.ID, "one")
	require.NoError(t, err)
	_, err = stack.svc.SendMessage(ctx, admin(), conv.ID, "two")
	require.NoError(t, err)

	require.Equal(t, codes.PermissionDenied, status.Code(stack.svc.DeleteAllMessages(ctx, client1(), conv.ID)))
	require.NoError(t, stack.svc.DeleteAllMessages(ctx, admin(), conv.ID))

	current, err := stack.conversations.ByID(ctx, conv.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, current.AdminUnread)
	require.EqualValues(t, 0, current.ClientUnread)
	require.True(t, current.LastMessageAt.Equal(current.CreatedAt))

	messages, err := stack.svc.ListMessages(ctx, admin(), conv.ID)
	require.NoError(t, err)
	require.Empty(t, messages)
}

func TestDeleteMessageRecomputesThreadState(t *testing.T) {
	stack := newStack(t)
	ctx := context.Background()
	conv, _, err := stack.svc.GetOrCreateConversation(ctx, client1(), "", "")
	require.NoError(t, err)

	first, err := stack.svc.SendMessage(ctx, client1(), conv.ID, "first")
	require.NoError(t, err)
	second, err := stack.svc.SendMessage(ctx, client1(), conv.ID, "second")
	require.NoError(t, err)

	require.Equal(t, codes.PermissionDenied, status.Code(stack.svc.DeleteMessage(ctx, client1(), second.ID)))
	require.NoError(t, stack.svc.DeleteMessage(ctx, admin(), second.ID))

	current, err := stack.conversations.ByID(ctx, conv.ID)
	require.NoError(t, err)
	require.True(t, current.LastMessageAt.Equal(first.CreatedAt), "last_message_at must fall back to the newest remaining message")
	require.EqualValues(t, 1, current.AdminUnread, "deleting an unread message recomputes the counter")

	require.NoError(t, stack.svc.DeleteMessage(ctx, admin(), first.ID))
	current, err = stack.conversations.ByID(ctx, conv.ID)
	require.NoError(t, err)
	require.True(t, current.LastMessageAt.Equal(current.CreatedAt))
	require.EqualValues(t, 0, current.AdminUnread)

	require.Equal(t, codes.NotFound, status.Code(stack.svc.DeleteMessage(ctx, admin(), first.ID)))
}

func TestClientCannotTouchForeignThread(t *testing.T) {
	stack := newStack(t)
	ctx := context.Background()
	conv, _, err := stack.svc.GetOrCreateConversation(ctx, client1(), "", "")
	require.NoError(t, err)

	_, err = stack.svc.SendMessage(ctx, client2(), conv.ID, "hi")
	require.Equal(t, codes.PermissionDenied, status.Code(err))
	_, err = stack.svc.ListMessages(ctx, client2(), conv.ID)
	require.Equal(t, codes.PermissionDenied, status.Code(err))
	require.Equal(t, codes.PermissionDenied, status.Code(stack.svc.CanAccess(ctx, client2(), conv.ID)))
	require.NoError(t, stack.svc.CanAccess(ctx, client1(), conv.ID))
	require.NoError(t, stack.svc.CanAccess(ctx, admin(), conv.ID))
}

func TestListConversationsIsRoleScoped(t *testing.T) {
	stack := newStack(t)
	ctx := context.Background()

	direct, _, err := stack.svc.GetOrCreateConversation(ctx, client1(), "", "")
	require.NoError(t, err)
	scoped, _, err := stack.svc.GetOrCreateConversation(ctx, client1(), "", "lst-1")
	require.NoError(t, err)
	other, _, err := stack.svc.GetOrCreateConversation(ctx, client2(), "", "")
	require.NoError(t, err)

	// Activity on the listing thread moves it to the top.
	_, err = stack.svc.SendMessage(ctx, client1(), scoped.ID, "about the loft")
	require.NoError(t, err)

	adminViews, err := stack.svc.ListConversations(ctx, admin())
	require.NoError(t, err)
	require.Len(t, adminViews, 3)
	require.Equal(t, scoped.ID, adminViews[0].Conversation.ID)
	require.NotNil(t, adminViews[0].Listing)
	require.Equal(t, "Canal View Loft", adminViews[0].Listing.Title)
	require.NotNil(t, adminViews[0].Client)
	require.Equal(t, "Nora", adminViews[0].Client.Name)

	clientViews, err := stack.svc.ListConversations(ctx, client1())
	require.NoError(t, err)
	require.Len(t, clientViews, 2)
	for _, view := range clientViews {
		require.Equal(t, "client-1", view.Conversation.ClientID)
		require.Nil(t, view.Client, "clients do not get their own summary joined")
	}

	var adminIDs []string
	for _, view := range adminViews {
		adminIDs = append(adminIDs, view.Conversation.ID)
	}
	require.ElementsMatch(t, []string{direct.ID, scoped.ID, other.ID}, adminIDs)
}

func TestSendMessageBroadcastsAndPublishes(t *testing.T) {
	stack := newStack(t)
	ctx := context.Background()
	conv, _, err := stack.svc.GetOrCreateConversation(ctx, client1(), "", "")
	require.NoError(t, err)

	msg, err := stack.svc.SendMessage(ctx, client1(), conv.ID, "hello")
	require.NoError(t, err)

	sent := stack.rooms.byEvent("new-message")
	require.Len(t, sent, 1)
	require.Equal(t, conv.ID, sent[0].conversationID)

	var names []string
	for _, event := range stack.events.Events() {
		names = append(names, event.EventName())
	}
	require.Contains(t, names, "chat.conversation.created")
	require.Contains(t, names, "chat.message.sent")

	read, err := stack.svc.MarkConversationRead(ctx, admin(), conv.ID)
	require.NoError(t, err)
	require.Equal(t, []string{msg.ID}, read)

	receipts := stack.rooms.byEvent("message-read")
	require.Len(t, receipts, 1)
}
