package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/locolive/pulse/internal/domain"
)

type notificationDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	RecipientID string             `bson:"recipient_id"`
	ActorID     string             `bson:"actor_id,omitempty"`
	Type        string             `bson:"type"`
	Message     string             `bson:"message"`
	ReferenceID string             `bson:"reference_id,omitempty"`
	IsRead      bool               `bson:"is_read"`
	CreatedAt   time.Time          `bson:"created_at"`
}

func (d *notificationDocument) toDomain() *domain.Notification {
	return &domain.Notification{
		ID:          d.ID.Hex(),
		RecipientID: d.RecipientID,
		ActorID:     d.ActorID,
		Type:        domain.NotificationType(d.Type),
		Message:     d.Message,
		ReferenceID: d.ReferenceID,
		IsRead:      d.IsRead,
		CreatedAt:   d.CreatedAt.UTC(),
	}
}

// MongoNotificationRepository implements domain.NotificationStore for MongoDB
type MongoNotificationRepository struct {
	collection *mongo.Collection
}

// NewMongoNotificationRepository creates a repository over the notifications collection
func NewMongoNotificationRepository(db *mongo.Database) *MongoNotificationRepository {
	return &MongoNotificationRepository{collection: db.Collection("notifications")}
}

// EnsureIndexes creates the indexes used by listing, counting and retention
func (r *MongoNotificationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "is_read", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
	})
	return domain.NewPersistenceError("ensure notification indexes", err)
}

// Insert stores a notification and assigns its ID
func (r *MongoNotificationRepository) Insert(ctx context.Context, n *domain.Notification) error {
	doc := notificationDocument{
		ID:          primitive.NewObjectID(),
		RecipientID: n.RecipientID,
		ActorID:     n.ActorID,
		Type:        string(n.Type),
		Message:     n.Message,
		ReferenceID: n.ReferenceID,
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	// Mongo stores milliseconds; keep the in-memory copy identical to the row.
	doc.CreatedAt = doc.CreatedAt.Truncate(time.Millisecond)

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return domain.NewPersistenceError("insert notification", err)
	}
	n.ID = doc.ID.Hex()
	n.CreatedAt = doc.CreatedAt
	return nil
}

// Get retrieves a notification by ID
func (r *MongoNotificationRepository) Get(ctx context.Context, id string) (*domain.Notification, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrNotificationNotFound
	}

	var doc notificationDocument
	err = r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotificationNotFound
		}
		return nil, domain.NewPersistenceError("get notification", err)
	}
	return doc.toDomain(), nil
}

// ListForUser retrieves a recipient's notifications newest first
func (r *MongoNotificationRepository) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Notification, error) {
	findOptions := options.Find().
		SetSkip(int64(offset)).
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{"recipient_id": userID}, findOptions)
	if err != nil {
		return nil, domain.NewPersistenceError("list notifications", err)
	}
	defer cursor.Close(ctx)

	var docs []notificationDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, domain.NewPersistenceError("list notifications", err)
	}

	notifications := make([]*domain.Notification, 0, len(docs))
	for i := range docs {
		notifications = append(notifications, docs[i].toDomain())
	}
	return notifications, nil
}

// CountUnread counts a recipient's unread notifications
func (r *MongoNotificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"recipient_id": userID, "is_read": false})
	if err != nil {
		return 0, domain.NewPersistenceError("count unread notifications", err)
	}
	return count, nil
}

// MarkRead flags one notification as read and returns the updated document
func (r *MongoNotificationRepository) MarkRead(ctx context.Context, id string) (*domain.Notification, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrNotificationNotFound
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc notificationDocument
	err = r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": objID},
		bson.M{"$set": bson.M{"is_read": true}},
		opts,
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotificationNotFound
		}
		return nil, domain.NewPersistenceError("mark notification read", err)
	}
	return doc.toDomain(), nil
}

// MarkAllRead flags every unread notification of a recipient as read
func (r *MongoNotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.collection.UpdateMany(ctx,
		bson.M{"recipient_id": userID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	if err != nil {
		return 0, domain.NewPersistenceError("mark all notifications read", err)
	}
	return res.ModifiedCount, nil
}

// DeleteOlderThan removes notifications created before cutoff
func (r *MongoNotificationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, domain.NewPersistenceError("delete old notifications", err)
	}
	return res.DeletedCount, nil
}
