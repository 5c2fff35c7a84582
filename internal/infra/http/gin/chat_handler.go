package ginserver

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"homedesk/internal/app/dto"
	chatsvc "homedesk/internal/app/services/chat"
	domainchat "homedesk/internal/domain/chat"
)

// ChatHTTP exposes the support-messaging endpoints.
type ChatHTTP interface {
	ListConversations(c *gin.Context)
	CreateConversation(c *gin.Context)
	ListMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkRead(c *gin.Context)
	DeleteAllMessages(c *gin.Context)
	DeleteMessage(c *gin.Context)
}

// ChatHandler bridges HTTP with the chat service.
type ChatHandler struct {
	Chat   *chatsvc.Service
	Logger *slog.Logger
}

// ListConversations returns the viewer-scoped thread list.
func (h ChatHandler) ListConversations(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	views, err := h.Chat.ListConversations(c.Request.Context(), p)
	if err != nil {
		h.respondServiceError(c, err, "list conversations", "user_id", p.ID)
		return
	}
	collection := dto.ConversationList{Items: make([]dto.Conversation, 0, len(views))}
	for _, view := range views {
		collection.Items = append(collection.Items, toConversationDTO(view))
	}
	c.JSON(http.StatusOK, collection)
}

// CreateConversation gets or creates the unique thread for the target
// client and optional listing. Responds 201 when a thread was created,
// 200 when it already existed.
func (h ChatHandler) CreateConversation(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req struct {
		ListingID string `json:"listing_id"`
		ClientID  string `json:"client_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	conv, created, err := h.Chat.GetOrCreateConversation(c.Request.Context(), p, strings.TrimSpace(req.ClientID), strings.TrimSpace(req.ListingID))
	if err != nil {
		h.respondServiceError(c, err, "create conversation", "user_id", p.ID, "listing_id", req.ListingID)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	c.JSON(code, dto.CreateConversationResponse{
		Conversation: toConversationDTO(chatsvc.ConversationView{Conversation: conv}),
		Existing:     !created,
	})
}

// ListMessages returns a conversation's full ordered log. Fetching is not
// side-effect-free: it marks the other role's messages read for the
// requester before returning.
func (h ChatHandler) ListMessages(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	conversationID := c.Param("id")
	messages, err := h.Chat.ListMessages(c.Request.Context(), p, conversationID)
	if err != nil {
		h.respondServiceError(c, err, "list messages", "conversation_id", conversationID, "user_id", p.ID)
		return
	}
	collection := dto.ChatMessageList{Items: make([]dto.ChatMessage, 0, len(messages))}
	for _, msg := range messages {
		collection.Items = append(collection.Items, toMessageDTO(msg))
	}
	c.JSON(http.StatusOK, collection)
}

// SendMessage posts a message to a conversation.
func (h ChatHandler) SendMessage(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	conversationID := c.Param("id")
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	msg, err := h.Chat.SendMessage(c.Request.Context(), p, conversationID, req.Content)
	if err != nil {
		h.respondServiceError(c, err, "send message", "conversation_id", conversationID, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusCreated, toMessageDTO(msg))
}

// MarkRead explicitly acknowledges the other role's messages.
func (h ChatHandler) MarkRead(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	conversationID := c.Param("id")
	ids, err := h.Chat.MarkConversationRead(c.Request.Context(), p, conversationID)
	if err != nil {
		h.respondServiceError(c, err, "mark read", "conversation_id", conversationID, "user_id", p.ID)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"message_ids": ids})
}

// DeleteAllMessages purges a thread's history. Admin only.
func (h ChatHandler) DeleteAllMessages(c *gin.Context) {
	p, ok := requireRole(c, domainchat.RoleAdmin)
	if !ok {
		return
	}
	conversationID := c.Param("id")
	if err := h.Chat.DeleteAllMessages(c.Request.Context(), p, conversationID); err != nil {
		h.respondServiceError(c, err, "purge messages", "conversation_id", conversationID)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteMessage removes a single message. Admin only.
func (h ChatHandler) DeleteMessage(c *gin.Context) {
	p, ok := requireRole(c, domainchat.RoleAdmin)
	if !ok {
		return
	}
	messageID := c.Param("id")
	if err := h.Chat.DeleteMessage(c.Request.Context(), p, messageID); err != nil {
		h.respondServiceError(c, err, "delete message", "message_id", messageID)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h ChatHandler) respondServiceError(c *gin.Context, err error, action string, attrs ...any) {
	if h.Logger != nil {
		h.Logger.Error("chat call failed", append([]any{"action", action, "error", err}, attrs...)...)
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.NotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": st.Message()})
			return
		case codes.InvalidArgument:
			c.JSON(http.StatusBadRequest, gin.H{"error": st.Message()})
			return
		case codes.PermissionDenied:
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		case codes.Unauthenticated:
			c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
			return
		}
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func toConversationDTO(view chatsvc.ConversationView) dto.Conversation {
	conv := view.Conversation
	out := dto.Conversation{
		ID:                conv.ID,
		ClientID:          conv.ClientID,
		ListingID:         conv.ListingID,
		Status:            string(conv.Status),
		ClientUnreadCount: conv.ClientUnread,
		AdminUnreadCount:  conv.AdminUnread,
		LastMessageAt:     conv.LastMessageAt,
		CreatedAt:         conv.CreatedAt,
	}
	if view.Listing != nil {
		out.Listing = &dto.ListingSummary{
			ID:           view.Listing.ID,
			Title:        view.Listing.Title,
			City:         view.Listing.City,
			ThumbnailURL: view.Listing.ThumbnailURL,
		}
	}
	if view.Client != nil {
		out.Client = &dto.UserSummary{
			ID:    view.Client.ID,
			Name:  view.Client.Name,
			Email: view.Client.Email,
		}
	}
	return out
}

func toMessageDTO(m *domainchat.Message) dto.ChatMessage {
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

var _ ChatHTTP = (*ChatHandler)(nil)
