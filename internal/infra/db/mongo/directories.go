package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	chatsvc "homedesk/internal/app/services/chat"
)

// ListingDirectory reads the platform's listings collection. This service
// never writes it; listings CRUD lives elsewhere.
type ListingDirectory struct {
	col *mongo.Collection
}

func NewListingDirectory(db *mongo.Database) *ListingDirectory {
	return &ListingDirectory{col: db.Collection("listings")}
}

// Exists reports whether the listing is known.
func (d *ListingDirectory) Exists(ctx context.Context, id string) (bool, error) {
	count, err := d.col.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Summary returns display fields for a listing.
func (d *ListingDirectory) Summary(ctx context.Context, id string) (chatsvc.ListingSummary, bool, error) {
	var doc struct {
		ID           string `bson:"_id"`
		Title        string `bson:"title"`
		City         string `bson:"city"`
		ThumbnailURL string `bson:"thumbnail_url"`
	}
	if err := d.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return chatsvc.ListingSummary{}, false, nil
		}
		return chatsvc.ListingSummary{}, false, err
	}
	return chatsvc.ListingSummary{
		ID:           doc.ID,
		Title:        doc.Title,
		City:         doc.City,
		ThumbnailURL: doc.ThumbnailURL,
	}, true, nil
}

// UserDirectory reads the platform's users collection, read-only.
type UserDirectory struct {
	col *mongo.Collection
}

func NewUserDirectory(db *mongo.Database) *UserDirectory {
	return &UserDirectory{col: db.Collection("users")}
}

// Summary returns display fields for a user.
func (d *UserDirectory) Summary(ctx context.Context, id string) (chatsvc.UserSummary, bool, error) {
	var doc struct {
		ID    string `bson:"_id"`
		Name  string `bson:"name"`
		Email string `bson:"email"`
	}
	if err := d.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return chatsvc.UserSummary{}, false, nil
		}
		return chatsvc.UserSummary{}, false, err
	}
	return chatsvc.UserSummary{ID: doc.ID, Name: doc.Name, Email: doc.Email}, true, nil
}
