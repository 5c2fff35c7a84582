package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	chatsvc "homedesk/internal/app/services/chat"
	"homedesk/internal/domain/chat"
	"homedesk/internal/infra/storage/memory"
)

type socketFixture struct {
	hub    *Hub
	svc    *chatsvc.Service
	server *httptest.Server
}

// newSocketFixture wires a memory-backed chat service behind the gateway.
// Principals are picked by the "as" query parameter.
func newSocketFixture(t *testing.T) *socketFixture {
	t.Helper()
	svc := &chatsvc.Service{
		Conversations: memory.NewConversationRepository(),
		Messages:      memory.NewMessageRepository(),
		Listings:      memory.NewListingDirectory(),
		Users:         memory.NewUserDirectory(),
	}
	hub := NewHub(nil)
	svc.Rooms = hub
	gateway := NewGateway(hub, svc, nil, 8)

	principals := map[string]chatsvc.Principal{
		"client-1": {ID: "client-1", Name: "Nora", Role: chat.RoleClient},
		"client-2": {ID: "client-2", Name: "Milo", Role: chat.RoleClient},
		"admin-1":  {ID: "admin-1", Name: "Support", Role: chat.RoleAdmin},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := principals[r.URL.Query().Get("as")]
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		gateway.Serve(w, r, p)
	}))
	t.Cleanup(server.Close)
	return &socketFixture{hub: hub, svc: svc, server: server}
}

func (f *socketFixture) dial(t *testing.T, as string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?as=" + as
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(clientEnvelope{Event: event, Data: payload}))
}

func readEvent(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env clientEnvelope
	require.NoError(t, conn.ReadJSON(&env))
	return env.Event, env.Data
}

func TestGatewayConversationRoundTrip(t *testing.T) {
	f := newSocketFixture(t)
	ctx := context.Background()

	conv, _, err := f.svc.GetOrCreateConversation(ctx, chatsvc.Principal{ID: "client-1", Role: chat.RoleClient}, "", "")
	require.NoError(t, err)

	client := f.dial(t, "client-1")
	admin := f.dial(t, "admin-1")

	sendEvent(t, client, "join-conversation", roomPayload{ConversationID: conv.ID})
	sendEvent(t, admin, "join-conversation", roomPayload{ConversationID: conv.ID})
	require.Eventually(t, func() bool { return f.hub.roomSize(conv.ID) == 2 }, 2*time.Second, 10*time.Millisecond)

	sendEvent(t, client, "send-message", sendPayload{ConversationID: conv.ID, Content: "is the loft still available?"})

	for _, conn := range []*websocket.Conn{client, admin} {
		event, data := readEvent(t, conn)
		require.Equal(t, "new-message", event)
		var msg struct {
			ConversationID string `json:"conversation_id"`
			SenderRole     string `json:"sender_role"`
			Content        string `json:"content"`
			IsRead         bool   `json:"is_read"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))
		require.Equal(t, conv.ID, msg.ConversationID)
		require.Equal(t, "client", msg.SenderRole)
		require.Equal(t, "is the loft still available?", msg.Content)
		require.False(t, msg.IsRead)
	}

	// The admin acknowledges; both sockets get the receipt.
	sendEvent(t, admin, "message-read", roomPayload{ConversationID: conv.ID})
	for _, conn := range []*websocket.Conn{client, admin} {
		event, data := readEvent(t, conn)
		require.Equal(t, "message-read", event)
		var receipt struct {
			ConversationID string   `json:"conversation_id"`
			MessageIDs     []string `json:"message_ids"`
			ReaderRole     string   `json:"reader_role"`
		}
		require.NoError(t, json.Unmarshal(data, &receipt))
		require.Equal(t, conv.ID, receipt.ConversationID)
		require.Len(t, receipt.MessageIDs, 1)
		require.Equal(t, "admin", receipt.ReaderRole)
	}

	current, err := f.svc.Conversations.ByID(ctx, conv.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, current.AdminUnread)
}

func TestGatewayTypingSkipsSender(t *testing.T) {
	f := newSocketFixture(t)
	ctx := context.Background()

	conv, _, err := f.svc.GetOrCreateConversation(ctx, chatsvc.Principal{ID: "client-1", Role: chat.RoleClient}, "", "")
	require.NoError(t, err)

	client := f.dial(t, "client-1")
	admin := f.dial(t, "admin-1")
	sendEvent(t, client, "join-conversation", roomPayload{ConversationID: conv.ID})
	sendEvent(t, admin, "join-conversation", roomPayload{ConversationID: conv.ID})
	require.Eventually(t, func() bool { return f.hub.roomSize(conv.ID) == 2 }, 2*time.Second, 10*time.Millisecond)

	sendEvent(t, client, "typing-start", typingPayload{ConversationID: conv.ID})
	event, data := readEvent(t, admin)
	require.Equal(t, "user-typing", event)
	var typing typingPayload
	require.NoError(t, json.Unmarshal(data, &typing))
	require.Equal(t, "Nora", typing.UserName, "the principal's name fills an empty payload")

	sendEvent(t, client, "typing-stop", typingPayload{ConversationID: conv.ID})
	event, _ = readEvent(t, admin)
	require.Equal(t, "user-stopped-typing", event)

	// The typist hears nothing back; the next thing it reads is the
	// room-wide push triggered below.
	sendEvent(t, admin, "send-message", sendPayload{ConversationID: conv.ID, Content: "yes it is"})
	event, _ = readEvent(t, client)
	require.Equal(t, "new-message", event)
}

func TestGatewayRejectsForeignJoin(t *testing.T) {
	f := newSocketFixture(t)
	ctx := context.Background()

	conv, _, err := f.svc.GetOrCreateConversation(ctx, chatsvc.Principal{ID: "client-1", Role: chat.RoleClient}, "", "")
	require.NoError(t, err)

	intruder := f.dial(t, "client-2")
	sendEvent(t, intruder, "join-conversation", roomPayload{ConversationID: conv.ID})

	event, data := readEvent(t, intruder)
	require.Equal(t, "error", event)
	var perr errorPayload
	require.NoError(t, json.Unmarshal(data, &perr))
	require.Equal(t, "cannot join conversation", perr.Message)
	require.Equal(t, 0, f.hub.roomSize(conv.ID))
}

func TestGatewayUnknownEvent(t *testing.T) {
	f := newSocketFixture(t)
	conn := f.dial(t, "client-1")

	sendEvent(t, conn, "subscribe", roomPayload{ConversationID: "conv-1"})
	event, data := readEvent(t, conn)
	require.Equal(t, "error", event)
	var perr errorPayload
	require.NoError(t, json.Unmarshal(data, &perr))
	require.Equal(t, "unknown event", perr.Message)
}

func TestGatewayDisconnectReleasesRooms(t *testing.T) {
	f := newSocketFixture(t)
	ctx := context.Background()

	conv, _, err := f.svc.GetOrCreateConversation(ctx, chatsvc.Principal{ID: "client-1", Role: chat.RoleClient}, "", "")
	require.NoError(t, err)

	client := f.dial(t, "client-1")
	sendEvent(t, client, "join-conversation", roomPayload{ConversationID: conv.ID})
	require.Eventually(t, func() bool { return f.hub.roomSize(conv.ID) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Close())
	require.Eventually(t, func() bool { return f.hub.roomSize(conv.ID) == 0 }, 2*time.Second, 10*time.Millisecond)
}
