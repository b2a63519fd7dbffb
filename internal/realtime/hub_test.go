package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/locolive/pulse/internal/domain"
	"github.com/locolive/pulse/internal/repository"
)

type hubFixture struct {
	hub      *Hub
	registry *Registry
	repo     *repository.MemoryRepository
	room     *domain.Room
}

// newHubFixture creates a hub over a memory store with one room shared by
// alice, bob and carol.
func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	repo := repository.NewMemoryRepository()
	chat := domain.NewChatService(repo, zap.NewNop())
	registry := NewRegistry()

	room, err := chat.CreateRoom(context.Background(), "alice", domain.CreateRoomParams{
		Name:         "trip",
		Participants: []string{"bob", "carol"},
	})
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	return &hubFixture{
		hub:      NewHub(registry, chat, zap.NewNop()),
		registry: registry,
		repo:     repo,
		room:     room,
	}
}

func (f *hubFixture) connect(userID string) *Client {
	c := NewClient(context.Background(), userID, nil, 64)
	f.hub.Connect(c)
	return c
}

// drain returns every queued frame without blocking.
func drain(t *testing.T, c *Client) []WSEvent {
	t.Helper()
	var events []WSEvent
	for {
		select {
		case data, ok := <-c.Outbound():
			if !ok {
				return events
			}
			var ev WSEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				t.Fatalf("bad frame %q: %v", data, err)
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

func eventsOfType(events []WSEvent, typ string) []WSEvent {
	var out []WSEvent
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestHub_ConnectRegistersPresence(t *testing.T) {
	f := newHubFixture(t)
	c := f.connect("alice")

	if got, ok := f.registry.Lookup("alice"); !ok || got != c {
		t.Fatal("connected client is not the registered channel")
	}

	f.hub.Disconnect(c)
	if f.registry.IsOnline("alice") {
		t.Fatal("alice should be offline after disconnect")
	}
	// Second disconnect is a no-op.
	f.hub.Disconnect(c)
}

func TestHub_StaleDisconnectKeepsReplacement(t *testing.T) {
	f := newHubFixture(t)
	old := f.connect("alice")
	replacement := f.connect("alice")

	f.hub.Disconnect(old)

	if got, ok := f.registry.Lookup("alice"); !ok || got != replacement {
		t.Fatal("disconnect of the replaced socket evicted the new one")
	}
}

func TestHub_JoinRoomRequiresParticipant(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()

	mallory := f.connect("mallory")
	if err := f.hub.JoinRoom(ctx, mallory, f.room.ID); !errors.Is(err, domain.ErrNotParticipant) {
		t.Fatalf("JoinRoom by outsider = %v, want ErrNotParticipant", err)
	}
	if err := f.hub.JoinRoom(ctx, mallory, "missing"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("JoinRoom unknown room = %v, want ErrRoomNotFound", err)
	}

	bob := f.connect("bob")
	if err := f.hub.JoinRoom(ctx, bob, f.room.ID); err != nil {
		t.Fatalf("JoinRoom by participant: %v", err)
	}
	if n := f.hub.JoinedCount(f.room.ID); n != 1 {
		t.Fatalf("JoinedCount = %d, want 1", n)
	}
}

func TestHub_JoinRoomRechecksMembership(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()
	bob := f.connect("bob")

	if err := f.hub.JoinRoom(ctx, bob, f.room.ID); err != nil {
		t.Fatalf("first join: %v", err)
	}
	f.hub.LeaveRoom(bob, f.room.ID)

	if err := f.repo.SetParticipants(f.room.ID, []string{"alice", "carol"}); err != nil {
		t.Fatalf("SetParticipants: %v", err)
	}
	if err := f.hub.JoinRoom(ctx, bob, f.room.ID); !errors.Is(err, domain.ErrNotParticipant) {
		t.Fatalf("rejoin after removal = %v, want ErrNotParticipant", err)
	}
}

func TestHub_SendMessageReachesJoinedSocketsOnly(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()

	alice := f.connect("alice")
	bob := f.connect("bob")
	carol := f.connect("carol") // participant, never joins

	for _, c := range []*Client{alice, bob} {
		if err := f.hub.JoinRoom(ctx, c, f.room.ID); err != nil {
			t.Fatalf("JoinRoom(%s): %v", c.UserID, err)
		}
	}

	msg, err := f.hub.SendMessage(ctx, "alice", f.room.ID, "  hello  ")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.Text != "hello" {
		t.Fatalf("text = %q, want trimmed", msg.Text)
	}

	for _, c := range []*Client{alice, bob} {
		got := eventsOfType(drain(t, c), EventReceiveMessage)
		if len(got) != 1 {
			t.Fatalf("%s got %d receive_message events, want 1", c.UserID, len(got))
		}
		var payload ReceivedMessage
		if err := json.Unmarshal(got[0].Payload, &payload); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if payload.ID != msg.ID || payload.SenderID != "alice" || payload.RoomID != f.room.ID {
			t.Fatalf("unexpected payload %+v", payload)
		}
	}
	if got := drain(t, carol); len(got) != 0 {
		t.Fatalf("carol is not joined but got %d events", len(got))
	}
}

func TestHub_SendMessageRejections(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		sender string
		roomID string
		text   string
		want   error
	}{
		{"empty text", "alice", f.room.ID, "   ", domain.ErrEmptyMessage},
		{"outsider", "mallory", f.room.ID, "hi", domain.ErrNotParticipant},
		{"unknown room", "alice", "nope", "hi", domain.ErrRoomNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.hub.SendMessage(ctx, tt.sender, tt.roomID, tt.text); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	msgs, _ := f.repo.ListMessages(ctx, f.room.ID, 10, 0)
	if len(msgs) != 0 {
		t.Fatalf("rejected sends persisted %d messages", len(msgs))
	}
}

func TestHub_RoomLocksOnlyForAuthorizedRooms(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()

	lockCount := func() int {
		n := 0
		f.hub.roomLocks.Range(func(any, any) bool { n++; return true })
		return n
	}

	for i := 0; i < 50; i++ {
		_, _ = f.hub.SendMessage(ctx, "alice", fmt.Sprintf("made-up-%d", i), "hi")
	}
	_, _ = f.hub.SendMessage(ctx, "mallory", f.room.ID, "hi")
	if n := lockCount(); n != 0 {
		t.Fatalf("rejected sends created %d room locks, want 0", n)
	}

	if _, err := f.hub.SendMessage(ctx, "alice", f.room.ID, "hi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if n := lockCount(); n != 1 {
		t.Fatalf("room locks = %d, want 1", n)
	}
}

func TestHub_BroadcastOrderMatchesPersistence(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()

	observer := f.connect("carol")
	if err := f.hub.JoinRoom(ctx, observer, f.room.ID); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	const perSender = 10
	var wg sync.WaitGroup
	for _, sender := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(sender string) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				if _, err := f.hub.SendMessage(ctx, sender, f.room.ID, fmt.Sprintf("%s-%d", sender, i)); err != nil {
					t.Errorf("SendMessage: %v", err)
				}
			}
		}(sender)
	}
	wg.Wait()

	stored, err := f.repo.ListMessages(ctx, f.room.ID, 100, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	received := eventsOfType(drain(t, observer), EventReceiveMessage)
	if len(received) != len(stored) {
		t.Fatalf("received %d, stored %d", len(received), len(stored))
	}

	// stored is newest first.
	for i, ev := range received {
		var payload ReceivedMessage
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			t.Fatalf("payload: %v", err)
		}
		want := stored[len(stored)-1-i]
		if payload.ID != want.ID {
			t.Fatalf("broadcast #%d is %s, persisted #%d is %s", i, payload.ID, i, want.ID)
		}
	}
}

func TestHub_DisconnectLeavesRooms(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()

	bob := f.connect("bob")
	if err := f.hub.JoinRoom(ctx, bob, f.room.ID); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	f.hub.Disconnect(bob)

	if n := f.hub.JoinedCount(f.room.ID); n != 0 {
		t.Fatalf("JoinedCount after disconnect = %d, want 0", n)
	}
	if err := bob.Send(EventPong, nil); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("Send after disconnect = %v, want ErrChannelClosed", err)
	}
	if err := f.hub.JoinRoom(ctx, bob, f.room.ID); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("JoinRoom after disconnect = %v, want ErrChannelClosed", err)
	}
}

func TestHub_MarkReadBroadcasts(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()

	alice := f.connect("alice")
	if err := f.hub.JoinRoom(ctx, alice, f.room.ID); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := f.hub.SendMessage(ctx, "alice", f.room.ID, "ping"); err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
	}
	drain(t, alice)

	updated, err := f.hub.MarkRead(ctx, "bob", f.room.ID)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if updated != 3 {
		t.Fatalf("updated = %d, want 3", updated)
	}

	got := eventsOfType(drain(t, alice), EventMessagesRead)
	if len(got) != 1 {
		t.Fatalf("got %d messages_read events, want 1", len(got))
	}
	var payload messagesReadEvent
	if err := json.Unmarshal(got[0].Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.UserID != "bob" || payload.Updated != 3 {
		t.Fatalf("unexpected payload %+v", payload)
	}

	if _, err := f.hub.MarkRead(ctx, "mallory", f.room.ID); !errors.Is(err, domain.ErrNotParticipant) {
		t.Fatalf("MarkRead by outsider = %v, want ErrNotParticipant", err)
	}
}

func TestHub_HandleInbound(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		user     string
		frame    string
		wantType string
		wantCode string
	}{
		{"malformed", "bob", `{not json`, EventError, CodeBadRequest},
		{"unknown type", "bob", `{"type":"dance"}`, EventError, CodeBadRequest},
		{"ping", "bob", `{"type":"ping"}`, EventPong, ""},
		{"join missing room id", "bob", `{"type":"join_room","payload":{}}`, EventError, CodeBadRequest},
		{"join as participant", "bob", fmt.Sprintf(`{"type":"join_room","payload":{"roomId":%q}}`, f.room.ID), EventRoomJoined, ""},
		{"join as outsider", "mallory", fmt.Sprintf(`{"type":"join_room","payload":{"roomId":%q}}`, f.room.ID), EventError, CodeForbidden},
		{"join unknown room", "bob", `{"type":"join_room","payload":{"roomId":"nope"}}`, EventError, CodeNotFound},
		{"leave", "bob", fmt.Sprintf(`{"type":"leave_room","payload":{"roomId":%q}}`, f.room.ID), EventRoomLeft, ""},
		{"send empty", "bob", fmt.Sprintf(`{"type":"send_message","payload":{"roomId":%q,"text":" "}}`, f.room.ID), EventError, CodeValidation},
		{"send as outsider", "mallory", fmt.Sprintf(`{"type":"send_message","payload":{"roomId":%q,"text":"hi"}}`, f.room.ID), EventError, CodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := f.connect(tt.user)
			defer f.hub.Disconnect(c)

			f.hub.HandleInbound(ctx, c, []byte(tt.frame))

			events := drain(t, c)
			if len(events) != 1 {
				t.Fatalf("got %d replies, want 1", len(events))
			}
			if events[0].Type != tt.wantType {
				t.Fatalf("reply type = %q, want %q", events[0].Type, tt.wantType)
			}
			if tt.wantCode == "" {
				return
			}
			var payload ErrorEvent
			if err := json.Unmarshal(events[0].Payload, &payload); err != nil {
				t.Fatalf("error payload: %v", err)
			}
			if payload.Code != tt.wantCode {
				t.Fatalf("error code = %q, want %q", payload.Code, tt.wantCode)
			}
		})
	}
}

func TestClient_SendBufferFull(t *testing.T) {
	c := NewClient(context.Background(), "u1", nil, 1)
	if err := c.Send(EventPong, nil); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := c.Send(EventPong, nil); !errors.Is(err, ErrSendBufferFull) {
		t.Fatalf("second send = %v, want ErrSendBufferFull", err)
	}
}
