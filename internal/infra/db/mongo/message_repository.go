package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"homedesk/internal/domain/chat"
)

// MessageRepository stores the per-conversation message log. created_at is
// the authoritative ordering key.
type MessageRepository struct {
	col *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{col: db.Collection("support_messages")}
}

// EnsureIndexes creates the ordering and read-pass indexes.
func (r *MessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "sender_role", Value: 1}, {Key: "is_read", Value: 1}}},
	})
	return err
}

// Append persists a message.
func (r *MessageRepository) Append(ctx context.Context, msg *chat.Message) error {
	_, err := r.col.InsertOne(ctx, newMessageDocument(msg))
	return err
}

// ByID returns a message or chat.ErrMessageNotFound.
func (r *MessageRepository) ByID(ctx context.Context, id string) (*chat.Message, error) {
	var doc messageDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, chat.ErrMessageNotFound
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

// ListByConversation returns the full sequence ascending by creation time.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]*chat.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.col.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*chat.Message
	for cursor.Next(ctx) {
		var doc messageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toDomain())
	}
	return out, cursor.Err()
}

// MarkRead collects the unread messages sent by senderRole and flips them
// in one UpdateMany. The ID set is captured first so the caller can push
// it to the room; a concurrent pass simply finds an empty selection.
func (r *MessageRepository) MarkRead(ctx context.Context, conversationID string, senderRole chat.Role, at time.Time) ([]string, error) {
	filter := bson.M{
		"conversation_id": conversationID,
		"sender_role":     string(senderRole),
		"is_read":         false,
	}
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var ids []string
	for cursor.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			cursor.Close(ctx)
			return nil, err
		}
		ids = append(ids, doc.ID)
	}
	if err := cursor.Err(); err != nil {
		cursor.Close(ctx)
		return nil, err
	}
	cursor.Close(ctx)
	if len(ids) == 0 {
		return nil, nil
	}

	update := bson.M{"$set": bson.M{"is_read": true, "read_at": at.UnixMilli()}}
	if _, err := r.col.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}, "is_read": false}, update); err != nil {
		return nil, err
	}
	return ids, nil
}

// CountUnread counts unread messages sent by senderRole.
func (r *MessageRepository) CountUnread(ctx context.Context, conversationID string, senderRole chat.Role) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{
		"conversation_id": conversationID,
		"sender_role":     string(senderRole),
		"is_read":         false,
	})
}

// DeleteByConversation removes the whole log.
func (r *MessageRepository) DeleteByConversation(ctx context.Context, conversationID string) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"conversation_id": conversationID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Delete removes a single message or returns chat.ErrMessageNotFound.
func (r *MessageRepository) Delete(ctx context.Context, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return chat.ErrMessageNotFound
	}
	return nil
}

// NewestCreatedAt reports the creation time of the newest remaining message.
func (r *MessageRepository) NewestCreatedAt(ctx context.Context, conversationID string) (time.Time, bool, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var doc messageDocument
	err := r.col.FindOne(ctx, bson.M{"conversation_id": conversationID}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return timestampToTime(doc.CreatedAt), true, nil
}

type messageDocument struct {
	ID             string `bson:"_id"`
	ConversationID string `bson:"conversation_id"`
	SenderID       string `bson:"sender_id"`
	SenderRole     string `bson:"sender_role"`
	Content        string `bson:"content"`
	IsRead         bool   `bson:"is_read"`
	ReadAt         int64  `bson:"read_at,omitempty"`
	CreatedAt      int64  `bson:"created_at"`
}

func newMessageDocument(m *chat.Message) messageDocument {
	doc := messageDocument{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderRole:     string(m.SenderRole),
		Content:        m.Content,
		IsRead:         m.IsRead,
		CreatedAt:      m.CreatedAt.UnixMilli(),
	}
	if !m.ReadAt.IsZero() {
		doc.ReadAt = m.ReadAt.UnixMilli()
	}
	return doc
}

func (d messageDocument) toDomain() *chat.Message {
	msg := &chat.Message{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		SenderRole:     chat.Role(d.SenderRole),
		Content:        d.Content,
		IsRead:         d.IsRead,
		CreatedAt:      timestampToTime(d.CreatedAt),
	}
	if d.ReadAt != 0 {
		msg.ReadAt = timestampToTime(d.ReadAt)
	}
	return msg
}
