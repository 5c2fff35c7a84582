package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	chatsvc "homedesk/internal/app/services/chat"
)

// Gateway upgrades authenticated HTTP requests to sockets and speaks the
// conversation-room protocol.
//
// client to server: join-conversation, leave-conversation, send-message,
// typing-start, typing-stop, message-read.
// server to room: new-message, user-typing, user-stopped-typing,
// message-read (emitted by the chat service after store writes).
type Gateway struct {
	hub      *Hub
	chat     *chatsvc.Service
	logger   *slog.Logger
	buffer   int
	upgrader websocket.Upgrader
}

func NewGateway(hub *Hub, chat *chatsvc.Service, logger *slog.Logger, sendBuffer int) *Gateway {
	return &Gateway{
		hub:    hub,
		chat:   chat,
		logger: logger,
		buffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Serve runs the socket until the peer goes away. Room membership cleanup
// is deferred, so a disconnect at any point releases every joined room.
func (g *Gateway) Serve(w http.ResponseWriter, r *http.Request, p chatsvc.Principal) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if g.logger != nil {
			g.logger.Debug("websocket upgrade failed", "error", err)
		}
		return
	}
	s := newSession(p, g.buffer)
	go writePump(conn, s)
	g.readLoop(r.Context(), conn, s)
}

func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, s *session) {
	defer func() {
		g.hub.disconnect(s)
		_ = conn.Close()
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env clientEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			g.reply(s, "error", errorPayload{Message: "malformed event"})
			continue
		}
		g.dispatch(ctx, s, env)
	}
}

type clientEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type roomPayload struct {
	ConversationID string `json:"conversation_id"`
}

type sendPayload struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

type typingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserName       string `json:"user_name,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func (g *Gateway) dispatch(ctx context.Context, s *session, env clientEnvelope) {
	switch env.Event {
	case "join-conversation":
		var p roomPayload
		if !g.decode(s, env.Data, &p) {
			return
		}
		if err := g.chat.CanAccess(ctx, s.principal, p.ConversationID); err != nil {
			g.reply(s, "error", errorPayload{Message: "cannot join conversation"})
			return
		}
		g.hub.join(s, p.ConversationID)
	case "leave-conversation":
		var p roomPayload
		if g.decode(s, env.Data, &p) {
			g.hub.leave(s, p.ConversationID)
		}
	case "send-message":
		var p sendPayload
		if !g.decode(s, env.Data, &p) {
			return
		}
		// The service persists, bumps counters and pushes new-message
		// to the room; nothing else to do here.
		if _, err := g.chat.SendMessage(ctx, s.principal, p.ConversationID, p.Content); err != nil {
			g.reply(s, "error", errorPayload{Message: "message rejected"})
		}
	case "typing-start":
		var p typingPayload
		if !g.decode(s, env.Data, &p) {
			return
		}
		if !g.hub.isMember(s, p.ConversationID) {
			return
		}
		if p.UserName == "" {
			p.UserName = s.principal.Name
		}
		g.hub.broadcastExcept(p.ConversationID, "user-typing", p, s)
	case "typing-stop":
		var p typingPayload
		if !g.decode(s, env.Data, &p) {
			return
		}
		if !g.hub.isMember(s, p.ConversationID) {
			return
		}
		g.hub.broadcastExcept(p.ConversationID, "user-stopped-typing", roomPayload{ConversationID: p.ConversationID}, s)
	case "message-read":
		var p roomPayload
		if !g.decode(s, env.Data, &p) {
			return
		}
		// The service broadcasts the read receipt with the flipped IDs.
		if _, err := g.chat.MarkConversationRead(ctx, s.principal, p.ConversationID); err != nil {
			g.reply(s, "error", errorPayload{Message: "read update rejected"})
		}
	default:
		g.reply(s, "error", errorPayload{Message: "unknown event"})
	}
}

func (g *Gateway) decode(s *session, raw json.RawMessage, out any) bool {
	if err := json.Unmarshal(raw, out); err != nil {
		g.reply(s, "error", errorPayload{Message: "malformed payload"})
		return false
	}
	return true
}

// reply addresses one socket, not a room.
func (g *Gateway) reply(s *session, event string, payload any) {
	data, err := json.Marshal(envelope{Event: event, Data: payload})
	if err != nil {
		return
	}
	s.deliver(data)
}

func writePump(conn *websocket.Conn, s *session) {
	for data := range s.send {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
