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

// ConversationRepository stores support threads. The unique compound index
// on (client_id, listing_id) enforces one thread per pair; the direct
// thread stores an empty listing_id, so the same index covers it.
type ConversationRepository struct {
	col *mongo.Collection
}

func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	return &ConversationRepository{col: db.Collection("support_conversations")}
}

// EnsureIndexes creates the uniqueness and list indexes.
func (r *ConversationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "client_id", Value: 1}, {Key: "listing_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "last_message_at", Value: -1}},
		},
	})
	return err
}

// GetOrCreate returns the unique thread for the pair, inserting when
// absent. A duplicate-key violation from a racing insert is recovered by
// re-fetching; the caller never sees the conflict.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, clientID, listingID string, now time.Time) (*chat.Conversation, bool, error) {
	filter := bson.M{"client_id": clientID, "listing_id": listingID}

	var doc conversationDocument
	err := r.col.FindOne(ctx, filter).Decode(&doc)
	if err == nil {
		return doc.toDomain(), false, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, err
	}

	conv := chat.NewConversation(clientID, listingID, now)
	if _, err := r.col.InsertOne(ctx, newConversationDocument(conv)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			var existing conversationDocument
			if err := r.col.FindOne(ctx, filter).Decode(&existing); err != nil {
				return nil, false, err
			}
			return existing.toDomain(), false, nil
		}
		return nil, false, err
	}
	return conv, true, nil
}

// ByID returns a thread or chat.ErrConversationNotFound.
func (r *ConversationRepository) ByID(ctx context.Context, id string) (*chat.Conversation, error) {
	var doc conversationDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, chat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

// ListActive returns all active threads, newest activity first.
func (r *ConversationRepository) ListActive(ctx context.Context) ([]*chat.Conversation, error) {
	return r.list(ctx, bson.M{"status": string(chat.StatusActive)})
}

// ListByClient returns one client's threads, newest activity first.
func (r *ConversationRepository) ListByClient(ctx context.Context, clientID string) ([]*chat.Conversation, error) {
	return r.list(ctx, bson.M{"client_id": clientID})
}

func (r *ConversationRepository) list(ctx context.Context, filter bson.M) ([]*chat.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}})
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*chat.Conversation
	for cursor.Next(ctx) {
		var doc conversationDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toDomain())
	}
	return out, cursor.Err()
}

// Touch applies the activity bump as one atomic update.
func (r *ConversationRepository) Touch(ctx context.Context, id string, at time.Time, recipient chat.Role) error {
	update := bson.M{
		"$set": bson.M{"last_message_at": at.UnixMilli()},
		"$inc": bson.M{unreadField(recipient): 1},
	}
	return r.updateOne(ctx, id, update)
}

// ResetUnread zeroes one role's counter.
func (r *ConversationRepository) ResetUnread(ctx context.Context, id string, role chat.Role) error {
	return r.updateOne(ctx, id, bson.M{"$set": bson.M{unreadField(role): 0}})
}

// SetUnread overwrites one role's counter.
func (r *ConversationRepository) SetUnread(ctx context.Context, id string, role chat.Role, count int64) error {
	return r.updateOne(ctx, id, bson.M{"$set": bson.M{unreadField(role): count}})
}

// SetLastMessageAt overwrites the activity timestamp.
func (r *ConversationRepository) SetLastMessageAt(ctx context.Context, id string, at time.Time) error {
	return r.updateOne(ctx, id, bson.M{"$set": bson.M{"last_message_at": at.UnixMilli()}})
}

// ResetThread zeroes both counters and rewinds last_message_at.
func (r *ConversationRepository) ResetThread(ctx context.Context, id string, lastMessageAt time.Time) error {
	return r.updateOne(ctx, id, bson.M{"$set": bson.M{
		"client_unread":   0,
		"admin_unread":    0,
		"last_message_at": lastMessageAt.UnixMilli(),
	}})
}

func (r *ConversationRepository) updateOne(ctx context.Context, id string, update bson.M) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return chat.ErrConversationNotFound
	}
	return nil
}

func unreadField(role chat.Role) string {
	if role == chat.RoleAdmin {
		return "admin_unread"
	}
	return "client_unread"
}

type conversationDocument struct {
	ID            string `bson:"_id"`
	ClientID      string `bson:"client_id"`
	ListingID     string `bson:"listing_id"`
	Status        string `bson:"status"`
	ClientUnread  int64  `bson:"client_unread"`
	AdminUnread   int64  `bson:"admin_unread"`
	LastMessageAt int64  `bson:"last_message_at"`
	CreatedAt     int64  `bson:"created_at"`
}

func newConversationDocument(c *chat.Conversation) conversationDocument {
	return conversationDocument{
		ID:            c.ID,
		ClientID:      c.ClientID,
		ListingID:     c.ListingID,
		Status:        string(c.Status),
		ClientUnread:  c.ClientUnread,
		AdminUnread:   c.AdminUnread,
		LastMessageAt: c.LastMessageAt.UnixMilli(),
		CreatedAt:     c.CreatedAt.UnixMilli(),
	}
}

func (d conversationDocument) toDomain() *chat.Conversation {
	return &chat.Conversation{
		ID:            d.ID,
		ClientID:      d.ClientID,
		ListingID:     d.ListingID,
		Status:        chat.ConversationStatus(d.Status),
		ClientUnread:  d.ClientUnread,
		AdminUnread:   d.AdminUnread,
		LastMessageAt: timestampToTime(d.LastMessageAt),
		CreatedAt:     timestampToTime(d.CreatedAt),
	}
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
