package domain

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/locolive/pulse/pkg/validator"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 200
)

// CreateRoomParams describes a new room. The creator is always added to
// the participant set.
type CreateRoomParams struct {
	Name         string   `json:"name" validate:"max=100"`
	Kind         RoomKind `json:"kind" validate:"omitempty,oneof=direct group"`
	Participants []string `json:"participants" validate:"required,min=1,max=256,dive,required"`
}

// messageBody is validated before a message is stored. Text over the limit
// is rejected, never shortened.
type messageBody struct {
	Text string `json:"text" validate:"max=4000"`
}

type ChatService struct {
	repo   ChatRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewChatService(repo ChatRepository, logger *zap.Logger) *ChatService {
	return &ChatService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

func (s *ChatService) CreateRoom(ctx context.Context, creatorID string, params CreateRoomParams) (*Room, error) {
	if err := validator.Struct(params); err != nil {
		return nil, err
	}

	seen := map[string]struct{}{creatorID: {}}
	participants := []string{creatorID}
	for _, p := range params.Participants {
		p = strings.TrimSpace(p)
		if _, dup := seen[p]; dup || p == "" {
			continue
		}
		seen[p] = struct{}{}
		participants = append(participants, p)
	}
	if len(participants) < 2 {
		return nil, ErrInvalidRoom
	}

	kind := params.Kind
	if kind == "" {
		kind = RoomGroup
		if len(participants) == 2 {
			kind = RoomDirect
		}
	}
	if kind == RoomDirect && len(participants) != 2 {
		return nil, ErrInvalidRoom
	}

	room := &Room{
		Name:         strings.TrimSpace(params.Name),
		Kind:         kind,
		Participants: participants,
		CreatedBy:    creatorID,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateRoom(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *ChatService) GetUserRooms(ctx context.Context, userID string) ([]*Room, error) {
	return s.repo.ListRoomsForUser(ctx, userID)
}

// AuthorizeParticipant loads the room and checks membership. It always reads
// the current participant set, so callers must not cache the answer.
func (s *ChatService) AuthorizeParticipant(ctx context.Context, roomID, userID string) (*Room, error) {
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return room, nil
}

// SendMessage validates and persists a message. Broadcasting is left to the
// channel layer so it can happen strictly after the write.
func (s *ChatService) SendMessage(ctx context.Context, roomID, senderID, text string) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if err := validator.Struct(messageBody{Text: text}); err != nil {
		return nil, err
	}

	if _, err := s.AuthorizeParticipant(ctx, roomID, senderID); err != nil {
		return nil, err
	}

	msg := &Message{
		RoomID:    roomID,
		SenderID:  senderID,
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		s.logger.Error("failed to persist chat message",
			zap.String("room_id", roomID),
			zap.String("sender_id", senderID),
			zap.Error(err),
		)
		return nil, err
	}
	return msg, nil
}

func (s *ChatService) GetMessages(ctx context.Context, roomID, userID string, limit, offset int) ([]*Message, error) {
	if _, err := s.AuthorizeParticipant(ctx, roomID, userID); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListMessages(ctx, roomID, MessagePageSize(limit), offset)
}

// MessagePageSize returns the page size actually used for a requested limit.
func MessagePageSize(limit int) int {
	if limit <= 0 {
		return defaultMessageLimit
	}
	if limit > maxMessageLimit {
		return maxMessageLimit
	}
	return limit
}

func (s *ChatService) MarkRead(ctx context.Context, roomID, userID string) (int64, error) {
	if _, err := s.AuthorizeParticipant(ctx, roomID, userID); err != nil {
		return 0, err
	}
	return s.repo.MarkMessagesRead(ctx, roomID, userID)
}
