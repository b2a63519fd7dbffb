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

type roomDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Name         string             `bson:"name,omitempty"`
	Kind         string             `bson:"kind"`
	Participants []string           `bson:"participants"`
	CreatedBy    string             `bson:"created_by"`
	CreatedAt    time.Time          `bson:"created_at"`
}

func (d *roomDocument) toDomain() *domain.Room {
	return &domain.Room{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Kind:         domain.RoomKind(d.Kind),
		Participants: d.Participants,
		CreatedBy:    d.CreatedBy,
		CreatedAt:    d.CreatedAt.UTC(),
	}
}

type messageDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	RoomID    string             `bson:"room_id"`
	SenderID  string             `bson:"sender_id"`
	Text      string             `bson:"text"`
	ReadBy    []string           `bson:"read_by"`
	CreatedAt time.Time          `bson:"created_at"`
}

func (d *messageDocument) toDomain() *domain.Message {
	return &domain.Message{
		ID:        d.ID.Hex(),
		RoomID:    d.RoomID,
		SenderID:  d.SenderID,
		Text:      d.Text,
		ReadBy:    d.ReadBy,
		CreatedAt: d.CreatedAt.UTC(),
	}
}

// MongoChatRepository implements domain.ChatRepository for MongoDB
type MongoChatRepository struct {
	rooms    *mongo.Collection
	messages *mongo.Collection
}

// NewMongoChatRepository creates a repository over the rooms and messages collections
func NewMongoChatRepository(db *mongo.Database) *MongoChatRepository {
	return &MongoChatRepository{
		rooms:    db.Collection("rooms"),
		messages: db.Collection("messages"),
	}
}

// EnsureIndexes creates membership and history indexes
func (r *MongoChatRepository) EnsureIndexes(ctx context.Context) error {
	if _, err := r.rooms.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "participants", Value: 1}},
	}); err != nil {
		return domain.NewPersistenceError("ensure room indexes", err)
	}
	_, err := r.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "_id", Value: -1}},
	})
	return domain.NewPersistenceError("ensure message indexes", err)
}

// CreateRoom stores a room and assigns its ID
func (r *MongoChatRepository) CreateRoom(ctx context.Context, room *domain.Room) error {
	doc := roomDocument{
		ID:           primitive.NewObjectID(),
		Name:         room.Name,
		Kind:         string(room.Kind),
		Participants: room.Participants,
		CreatedBy:    room.CreatedBy,
		CreatedAt:    room.CreatedAt,
	}
	if _, err := r.rooms.InsertOne(ctx, doc); err != nil {
		return domain.NewPersistenceError("insert room", err)
	}
	room.ID = doc.ID.Hex()
	return nil
}

// GetRoom retrieves a room by ID
func (r *MongoChatRepository) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	objID, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return nil, domain.ErrRoomNotFound
	}

	var doc roomDocument
	if err := r.rooms.FindOne(ctx, bson.M{"_id": objID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, domain.NewPersistenceError("get room", err)
	}
	return doc.toDomain(), nil
}

// ListRoomsForUser retrieves every room the user participates in
func (r *MongoChatRepository) ListRoomsForUser(ctx context.Context, userID string) ([]*domain.Room, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.rooms.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, domain.NewPersistenceError("list rooms", err)
	}
	defer cursor.Close(ctx)

	var docs []roomDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, domain.NewPersistenceError("list rooms", err)
	}

	rooms := make([]*domain.Room, 0, len(docs))
	for i := range docs {
		rooms = append(rooms, docs[i].toDomain())
	}
	return rooms, nil
}

// CreateMessage stores a chat message and assigns its ID
func (r *MongoChatRepository) CreateMessage(ctx context.Context, msg *domain.Message) error {
	doc := messageDocument{
		ID:        primitive.NewObjectID(),
		RoomID:    msg.RoomID,
		SenderID:  msg.SenderID,
		Text:      msg.Text,
		ReadBy:    []string{},
		CreatedAt: msg.CreatedAt.Truncate(time.Millisecond),
	}
	if _, err := r.messages.InsertOne(ctx, doc); err != nil {
		return domain.NewPersistenceError("insert message", err)
	}
	msg.ID = doc.ID.Hex()
	msg.CreatedAt = doc.CreatedAt
	return nil
}

// ListMessages retrieves a room's messages newest first. ObjectIDs are
// monotonic per process, so _id order follows insertion order.
func (r *MongoChatRepository) ListMessages(ctx context.Context, roomID string, limit, offset int) ([]*domain.Message, error) {
	findOptions := options.Find().
		SetSkip(int64(offset)).
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "_id", Value: -1}})

	cursor, err := r.messages.Find(ctx, bson.M{"room_id": roomID}, findOptions)
	if err != nil {
		return nil, domain.NewPersistenceError("list messages", err)
	}
	defer cursor.Close(ctx)

	var docs []messageDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, domain.NewPersistenceError("list messages", err)
	}

	messages := make([]*domain.Message, 0, len(docs))
	for i := range docs {
		messages = append(messages, docs[i].toDomain())
	}
	return messages, nil
}

// MarkMessagesRead adds the user to read_by on messages they did not send
func (r *MongoChatRepository) MarkMessagesRead(ctx context.Context, roomID, userID string) (int64, error) {
	res, err := r.messages.UpdateMany(ctx,
		bson.M{
			"room_id":   roomID,
			"sender_id": bson.M{"$ne": userID},
			"read_by":   bson.M{"$ne": userID},
		},
		bson.M{"$addToSet": bson.M{"read_by": userID}},
	)
	if err != nil {
		return 0, domain.NewPersistenceError("mark messages read", err)
	}
	return res.ModifiedCount, nil
}
