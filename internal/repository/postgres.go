package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/locolive/pulse/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS notifications (
	seq          BIGSERIAL PRIMARY KEY,
	id           UUID NOT NULL UNIQUE,
	recipient_id TEXT NOT NULL,
	actor_id     TEXT NOT NULL DEFAULT '',
	type         TEXT NOT NULL,
	message      TEXT NOT NULL,
	reference_id TEXT NOT NULL DEFAULT '',
	is_read      BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications (recipient_id, created_at DESC, seq DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications (created_at);

CREATE TABLE IF NOT EXISTS chat_rooms (
	id           UUID PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	kind         TEXT NOT NULL,
	participants TEXT[] NOT NULL,
	created_by   TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_rooms_participants ON chat_rooms USING GIN (participants);

CREATE TABLE IF NOT EXISTS chat_messages (
	seq        BIGSERIAL PRIMARY KEY,
	id         UUID NOT NULL UNIQUE,
	room_id    UUID NOT NULL REFERENCES chat_rooms (id) ON DELETE CASCADE,
	sender_id  TEXT NOT NULL,
	text       TEXT NOT NULL,
	read_by    TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_room ON chat_messages (room_id, seq DESC);
`

// PostgresRepository implements domain.NotificationStore and
// domain.ChatRepository using PostgreSQL
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var (
	_ domain.NotificationStore = (*PostgresRepository)(nil)
	_ domain.ChatRepository    = (*PostgresRepository)(nil)
)

// EnsureSchema creates the tables and indexes if they do not exist
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schema)
	return domain.NewPersistenceError("ensure schema", err)
}

// Ping checks the pool can reach the database
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Insert stores a notification and assigns its ID
func (r *PostgresRepository) Insert(ctx context.Context, n *domain.Notification) error {
	id := uuid.New()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	// Postgres keeps microseconds.
	createdAt := n.CreatedAt.Truncate(time.Microsecond)

	query := `
		INSERT INTO notifications (id, recipient_id, actor_id, type, message, reference_id, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		id,
		n.RecipientID,
		n.ActorID,
		string(n.Type),
		n.Message,
		n.ReferenceID,
		n.IsRead,
		createdAt,
	)
	if err != nil {
		return domain.NewPersistenceError("insert notification", err)
	}
	n.ID = id.String()
	n.CreatedAt = createdAt
	return nil
}

// Get retrieves a notification by ID
func (r *PostgresRepository) Get(ctx context.Context, id string) (*domain.Notification, error) {
	notificationID, err := uuid.Parse(id)
	if err != nil {
		return nil, domain.ErrNotificationNotFound
	}
	query := `
		SELECT id, recipient_id, actor_id, type, message, reference_id, is_read, created_at
		FROM notifications WHERE id = $1
	`
	return scanNotification(r.db.QueryRow(ctx, query, notificationID), "get notification")
}

// ListForUser retrieves a recipient's notifications newest first
func (r *PostgresRepository) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Notification, error) {
	query := `
		SELECT id, recipient_id, actor_id, type, message, reference_id, is_read, created_at
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, domain.NewPersistenceError("list notifications", err)
	}
	defer rows.Close()

	notifications := []*domain.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows, "list notifications")
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewPersistenceError("list notifications", err)
	}
	return notifications, nil
}

// CountUnread counts a recipient's unread notifications
func (r *PostgresRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND is_read = FALSE`
	var count int64
	if err := r.db.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, domain.NewPersistenceError("count unread notifications", err)
	}
	return count, nil
}

// MarkRead flags one notification as read and returns it
func (r *PostgresRepository) MarkRead(ctx context.Context, id string) (*domain.Notification, error) {
	notificationID, err := uuid.Parse(id)
	if err != nil {
		return nil, domain.ErrNotificationNotFound
	}
	query := `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1
		RETURNING id, recipient_id, actor_id, type, message, reference_id, is_read, created_at
	`
	return scanNotification(r.db.QueryRow(ctx, query, notificationID), "mark notification read")
}

// MarkAllRead flags every unread notification of a recipient as read
func (r *PostgresRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	query := `UPDATE notifications SET is_read = TRUE WHERE recipient_id = $1 AND is_read = FALSE`
	tag, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return 0, domain.NewPersistenceError("mark all notifications read", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteOlderThan removes notifications created before cutoff
func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, domain.NewPersistenceError("delete old notifications", err)
	}
	return tag.RowsAffected(), nil
}

// CreateRoom stores a room and assigns its ID
func (r *PostgresRepository) CreateRoom(ctx context.Context, room *domain.Room) error {
	id := uuid.New()
	query := `
		INSERT INTO chat_rooms (id, name, kind, participants, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		id,
		room.Name,
		string(room.Kind),
		room.Participants,
		room.CreatedBy,
		room.CreatedAt,
	)
	if err != nil {
		return domain.NewPersistenceError("insert room", err)
	}
	room.ID = id.String()
	return nil
}

// GetRoom retrieves a room by ID
func (r *PostgresRepository) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	id, err := uuid.Parse(roomID)
	if err != nil {
		return nil, domain.ErrRoomNotFound
	}
	query := `
		SELECT id, name, kind, participants, created_by, created_at
		FROM chat_rooms WHERE id = $1
	`
	return scanRoom(r.db.QueryRow(ctx, query, id))
}

// ListRoomsForUser retrieves every room the user participates in
func (r *PostgresRepository) ListRoomsForUser(ctx context.Context, userID string) ([]*domain.Room, error) {
	query := `
		SELECT id, name, kind, participants, created_by, created_at
		FROM chat_rooms
		WHERE $1 = ANY (participants)
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, domain.NewPersistenceError("list rooms", err)
	}
	defer rows.Close()

	rooms := []*domain.Room{}
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewPersistenceError("list rooms", err)
	}
	return rooms, nil
}

// CreateMessage stores a chat message and assigns its ID
func (r *PostgresRepository) CreateMessage(ctx context.Context, msg *domain.Message) error {
	roomID, err := uuid.Parse(msg.RoomID)
	if err != nil {
		return domain.ErrRoomNotFound
	}
	id := uuid.New()
	createdAt := msg.CreatedAt.Truncate(time.Microsecond)

	query := `
		INSERT INTO chat_messages (id, room_id, sender_id, text, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.Exec(ctx, query, id, roomID, msg.SenderID, msg.Text, createdAt); err != nil {
		return domain.NewPersistenceError("insert message", err)
	}
	msg.ID = id.String()
	msg.CreatedAt = createdAt
	return nil
}

// ListMessages retrieves a room's messages newest first
func (r *PostgresRepository) ListMessages(ctx context.Context, roomID string, limit, offset int) ([]*domain.Message, error) {
	id, err := uuid.Parse(roomID)
	if err != nil {
		return []*domain.Message{}, nil
	}
	query := `
		SELECT id, room_id, sender_id, text, read_by, created_at
		FROM chat_messages
		WHERE room_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, id, limit, offset)
	if err != nil {
		return nil, domain.NewPersistenceError("list messages", err)
	}
	defer rows.Close()

	messages := []*domain.Message{}
	for rows.Next() {
		var (
			m             domain.Message
			msgID, roomID uuid.UUID
		)
		if err := rows.Scan(&msgID, &roomID, &m.SenderID, &m.Text, &m.ReadBy, &m.CreatedAt); err != nil {
			return nil, domain.NewPersistenceError("list messages", err)
		}
		m.ID = msgID.String()
		m.RoomID = roomID.String()
		m.CreatedAt = m.CreatedAt.UTC()
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewPersistenceError("list messages", err)
	}
	return messages, nil
}

// MarkMessagesRead adds the user to read_by on messages they did not send
func (r *PostgresRepository) MarkMessagesRead(ctx context.Context, roomID, userID string) (int64, error) {
	id, err := uuid.Parse(roomID)
	if err != nil {
		return 0, domain.ErrRoomNotFound
	}
	query := `
		UPDATE chat_messages SET read_by = array_append(read_by, $2)
		WHERE room_id = $1 AND sender_id <> $2 AND NOT ($2 = ANY (read_by))
	`
	tag, err := r.db.Exec(ctx, query, id, userID)
	if err != nil {
		return 0, domain.NewPersistenceError("mark messages read", err)
	}
	return tag.RowsAffected(), nil
}

// Helper functions for scanning rows

func scanNotification(row pgx.Row, op string) (*domain.Notification, error) {
	var (
		n    domain.Notification
		id   uuid.UUID
		kind string
	)
	err := row.Scan(
		&id,
		&n.RecipientID,
		&n.ActorID,
		&kind,
		&n.Message,
		&n.ReferenceID,
		&n.IsRead,
		&n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotificationNotFound
		}
		return nil, domain.NewPersistenceError(op, err)
	}
	n.ID = id.String()
	n.Type = domain.NotificationType(kind)
	n.CreatedAt = n.CreatedAt.UTC()
	return &n, nil
}

func scanRoom(row pgx.Row) (*domain.Room, error) {
	var (
		room domain.Room
		id   uuid.UUID
		kind string
	)
	err := row.Scan(
		&id,
		&room.Name,
		&kind,
		&room.Participants,
		&room.CreatedBy,
		&room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, domain.NewPersistenceError("get room", err)
	}
	room.ID = id.String()
	room.Kind = domain.RoomKind(kind)
	room.CreatedAt = room.CreatedAt.UTC()
	return &room, nil
}
