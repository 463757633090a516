package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"campus_live/internal/domain"
	apperrors "campus_live/pkg/errors"
	"campus_live/pkg/logger"
)

func newChatFixture(t *testing.T) (ChatService, *fakeMeetingRepo, *fakePresence, *fakeRateLimit) {
	t.Helper()

	meetingRepo := newFakeMeetingRepo()
	chatRepo := newFakeChatRepo()
	presence := newFakePresence()
	rateLimit := newFakeRateLimit(0)
	log := logger.New("error")

	svc := NewChatService(chatRepo, meetingRepo, presence, rateLimit, NewLogNotifier(log), log)
	return svc, meetingRepo, presence, rateLimit
}

func chatIdentity(name string) domain.Identity {
	return domain.Identity{
		UserID:      uuid.New(),
		TenantID:    uuid.New(),
		DisplayName: name,
		Role:        domain.RoleStudent,
	}
}

func TestSendMessageValidation(t *testing.T) {
	svc, _, _, _ := newChatFixture(t)
	ctx := context.Background()
	roomID := uuid.New()
	sender := chatIdentity("A")

	cases := []struct {
		name  string
		body  string
		scope domain.Scope
	}{
		{"empty body", "   ", domain.Scope{Kind: domain.ScopeAll}},
		{"oversized body", strings.Repeat("x", maxMessageLength+1), domain.Scope{Kind: domain.ScopeAll}},
		{"unknown scope", "hi", domain.Scope{Kind: "broadcast"}},
		{"private without recipient", "hi", domain.Scope{Kind: domain.ScopePrivate}},
		{"all with recipient", "hi", domain.Scope{Kind: domain.ScopeAll, To: ptrUUID(uuid.New())}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.SendMessage(ctx, roomID, sender, tc.body, tc.scope); !errors.Is(err, apperrors.ErrBadRequest) {
				t.Errorf("error = %v, want ErrBadRequest", err)
			}
		})
	}
}

func TestSendMessageScopeTargets(t *testing.T) {
	svc, meetingRepo, _, _ := newChatFixture(t)
	ctx := context.Background()
	roomID := uuid.New()

	sender := chatIdentity("sender")
	hostUser := uuid.New()
	plainUser := uuid.New()

	seed := []*domain.Participant{
		{ID: uuid.New(), MeetingID: roomID, UserID: sender.UserID, ConnectionStatus: domain.ConnectionStatusConnected},
		{ID: uuid.New(), MeetingID: roomID, UserID: hostUser, IsHost: true, ConnectionStatus: domain.ConnectionStatusConnected},
		{ID: uuid.New(), MeetingID: roomID, UserID: plainUser, ConnectionStatus: domain.ConnectionStatusConnected},
	}
	for _, p := range seed {
		if err := meetingRepo.CreateParticipant(ctx, p); err != nil {
			t.Fatalf("seed participant: %v", err)
		}
	}

	// all: пустой список целей = доставка всем
	result, err := svc.SendMessage(ctx, roomID, sender, "hello", domain.Scope{Kind: domain.ScopeAll})
	if err != nil {
		t.Fatalf("send all failed: %v", err)
	}
	if len(result.Targets) != 0 {
		t.Errorf("all-scope targets = %v, want empty", result.Targets)
	}

	// private: получатель и отправитель
	recipient := uuid.New()
	result, err = svc.SendMessage(ctx, roomID, sender, "psst", domain.Scope{Kind: domain.ScopePrivate, To: &recipient})
	if err != nil {
		t.Fatalf("send private failed: %v", err)
	}
	if !containsUUID(result.Targets, recipient) || !containsUUID(result.Targets, sender.UserID) {
		t.Errorf("private targets = %v, want recipient and sender", result.Targets)
	}
	if len(result.Targets) != 2 {
		t.Errorf("private targets size = %d, want 2", len(result.Targets))
	}

	// private самому себе запрещён
	self := sender.UserID
	if _, err := svc.SendMessage(ctx, roomID, sender, "echo", domain.Scope{Kind: domain.ScopePrivate, To: &self}); !errors.Is(err, apperrors.ErrBadRequest) {
		t.Errorf("self-private error = %v, want ErrBadRequest", err)
	}

	// host: ведущие плюс отправитель, рядовые участники не входят
	result, err = svc.SendMessage(ctx, roomID, sender, "question", domain.Scope{Kind: domain.ScopeHost})
	if err != nil {
		t.Fatalf("send host failed: %v", err)
	}
	if !containsUUID(result.Targets, hostUser) || !containsUUID(result.Targets, sender.UserID) {
		t.Errorf("host targets = %v, want host and sender", result.Targets)
	}
	if containsUUID(result.Targets, plainUser) {
		t.Errorf("host targets include plain participant: %v", result.Targets)
	}
}

func TestUnreadCountersForAbsentMembers(t *testing.T) {
	svc, _, presence, _ := newChatFixture(t)
	ctx := context.Background()
	roomID := uuid.New()

	sender := chatIdentity("sender")
	present := uuid.New()
	absent := uuid.New()

	// Все трое - участники комнаты, но absent сейчас не подключён
	for _, u := range []uuid.UUID{sender.UserID, present, absent} {
		_ = presence.AddRoomMember(ctx, roomID, u)
	}
	_ = presence.AddToRoom(ctx, roomID, sender.UserID)
	_ = presence.AddToRoom(ctx, roomID, present)

	if _, err := svc.SendMessage(ctx, roomID, sender, "hello", domain.Scope{Kind: domain.ScopeAll}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if _, err := svc.SendMessage(ctx, roomID, sender, "again", domain.Scope{Kind: domain.ScopeAll}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if n, _ := svc.UnreadCount(ctx, roomID, absent); n != 2 {
		t.Errorf("absent unread = %d, want 2", n)
	}
	if n, _ := svc.UnreadCount(ctx, roomID, present); n != 0 {
		t.Errorf("present unread = %d, want 0", n)
	}
	if n, _ := svc.UnreadCount(ctx, roomID, sender.UserID); n != 0 {
		t.Errorf("sender unread = %d, want 0", n)
	}

	// Просмотр обнуляет счётчик
	if err := svc.MarkSeen(ctx, roomID, absent); err != nil {
		t.Fatalf("mark seen failed: %v", err)
	}
	if n, _ := svc.UnreadCount(ctx, roomID, absent); n != 0 {
		t.Errorf("unread after seen = %d, want 0", n)
	}
}

func TestSendMessageRateLimited(t *testing.T) {
	svc, _, _, rateLimit := newChatFixture(t)
	rateLimit.limit = 2
	ctx := context.Background()
	roomID := uuid.New()
	sender := chatIdentity("spammer")

	for i := 0; i < 2; i++ {
		if _, err := svc.SendMessage(ctx, roomID, sender, "msg", domain.Scope{Kind: domain.ScopeAll}); err != nil {
			t.Fatalf("send %d failed: %v", i, err)
		}
	}

	if _, err := svc.SendMessage(ctx, roomID, sender, "msg", domain.Scope{Kind: domain.ScopeAll}); !errors.Is(err, apperrors.ErrCapacityExceeded) {
		t.Errorf("rate-limited send error = %v, want ErrCapacityExceeded", err)
	}
}

func TestEditAndDeletePermissions(t *testing.T) {
	svc, meetingRepo, _, _ := newChatFixture(t)
	ctx := context.Background()
	roomID := uuid.New()

	author := chatIdentity("author")
	moderator := chatIdentity("mod")
	moderator.TenantID = author.TenantID
	stranger := chatIdentity("stranger")

	_ = meetingRepo.CreateParticipant(ctx, &domain.Participant{
		ID: uuid.New(), MeetingID: roomID, UserID: moderator.UserID,
		IsModerator: true, ConnectionStatus: domain.ConnectionStatusConnected,
	})

	result, err := svc.SendMessage(ctx, roomID, author, "original", domain.Scope{Kind: domain.ScopeAll})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	msgID := result.Message.ID

	// Редактировать может только автор
	if _, err := svc.EditMessage(ctx, msgID, moderator.UserID, "hacked"); !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("moderator edit error = %v, want ErrForbidden", err)
	}
	edited, err := svc.EditMessage(ctx, msgID, author.UserID, "fixed")
	if err != nil {
		t.Fatalf("author edit failed: %v", err)
	}
	if edited.Body != "fixed" || edited.EditedAt == nil {
		t.Errorf("edited message = %+v, want body=fixed with edited_at", edited)
	}

	// Удалить может автор или модератор, но не посторонний
	if _, err := svc.DeleteMessage(ctx, msgID, stranger); !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("stranger delete error = %v, want ErrForbidden", err)
	}
	deleted, err := svc.DeleteMessage(ctx, msgID, moderator)
	if err != nil {
		t.Fatalf("moderator delete failed: %v", err)
	}
	if deleted.DeletedAt == nil || deleted.DeletedByUserID == nil || *deleted.DeletedByUserID != moderator.UserID {
		t.Errorf("deleted message = %+v, want deleted_by=%s", deleted, moderator.UserID)
	}

	// Удалённое сообщение больше не редактируется
	if _, err := svc.EditMessage(ctx, msgID, author.UserID, "too late"); !errors.Is(err, apperrors.ErrMessageNotFound) {
		t.Errorf("edit deleted error = %v, want ErrMessageNotFound", err)
	}
}

func TestHistoryHidesForeignPrivateMessages(t *testing.T) {
	svc, _, _, _ := newChatFixture(t)
	ctx := context.Background()
	roomID := uuid.New()

	alice := chatIdentity("alice")
	bob := chatIdentity("bob")
	carol := chatIdentity("carol")

	if _, err := svc.SendMessage(ctx, roomID, alice, "public", domain.Scope{Kind: domain.ScopeAll}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if _, err := svc.SendMessage(ctx, roomID, alice, "secret", domain.Scope{Kind: domain.ScopePrivate, To: &bob.UserID}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	for _, tc := range []struct {
		name string
		user uuid.UUID
		want int
	}{
		{"sender sees both", alice.UserID, 2},
		{"recipient sees both", bob.UserID, 2},
		{"bystander sees public only", carol.UserID, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			messages, err := svc.History(ctx, roomID, tc.user, 50)
			if err != nil {
				t.Fatalf("history failed: %v", err)
			}
			if len(messages) != tc.want {
				t.Errorf("visible messages = %d, want %d", len(messages), tc.want)
			}
		})
	}
}

func TestTypingMarkers(t *testing.T) {
	svc, _, presence, _ := newChatFixture(t)
	ctx := context.Background()
	roomID := uuid.New()
	userID := uuid.New()

	if err := svc.SetTyping(ctx, roomID, userID); err != nil {
		t.Fatalf("set typing failed: %v", err)
	}
	if typing, _ := presence.IsTyping(ctx, roomID, userID); !typing {
		t.Error("typing marker not set")
	}

	if err := svc.ClearTyping(ctx, roomID, userID); err != nil {
		t.Fatalf("clear typing failed: %v", err)
	}
	if typing, _ := presence.IsTyping(ctx, roomID, userID); typing {
		t.Error("typing marker not cleared")
	}
}

func TestReactIdempotent(t *testing.T) {
	svc, _, _, _ := newChatFixture(t)
	ctx := context.Background()
	roomID := uuid.New()
	sender := chatIdentity("A")

	result, err := svc.SendMessage(ctx, roomID, sender, "react to me", domain.Scope{Kind: domain.ScopeAll})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	userID := uuid.New()
	if _, _, err := svc.React(ctx, result.Message.ID, userID, "👍"); err != nil {
		t.Fatalf("react failed: %v", err)
	}
	// Повтор той же реакции не ошибка
	if _, msg, err := svc.React(ctx, result.Message.ID, userID, "👍"); err != nil {
		t.Fatalf("repeated react failed: %v", err)
	} else if msg.RoomID != roomID {
		t.Errorf("reaction message room = %s, want %s", msg.RoomID, roomID)
	}

	if _, _, err := svc.React(ctx, uuid.New(), userID, "👍"); !errors.Is(err, apperrors.ErrMessageNotFound) {
		t.Errorf("react to unknown message error = %v, want ErrMessageNotFound", err)
	}
}

func ptrUUID(id uuid.UUID) *uuid.UUID { return &id }

func containsUUID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
