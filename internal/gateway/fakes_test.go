package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"campus_live/internal/domain"
	"campus_live/internal/service"
)

// callLog фиксирует порядок обращений к зависимостям координатора
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

func (l *callLog) indexOf(call string) int {
	for i, c := range l.list() {
		if c == call {
			return i
		}
	}
	return -1
}

func (l *callLog) count(call string) int {
	n := 0
	for _, c := range l.list() {
		if c == call {
			n++
		}
	}
	return n
}

type fakeMeetingService struct {
	log *callLog
}

func (s *fakeMeetingService) Create(_ context.Context, _ domain.Identity, _ string, _ *string, _, _ *time.Time, _ int) (*domain.Meeting, error) {
	return nil, nil
}

func (s *fakeMeetingService) GetByID(_ context.Context, _ uuid.UUID) (*domain.Meeting, error) {
	return nil, nil
}

func (s *fakeMeetingService) List(_ context.Context, _ uuid.UUID, _, _ int) ([]*domain.Meeting, error) {
	return nil, nil
}

func (s *fakeMeetingService) Join(_ context.Context, _ uuid.UUID, _ domain.Identity) (*service.JoinResult, error) {
	return nil, nil
}

func (s *fakeMeetingService) Leave(_ context.Context, meetingID, userID uuid.UUID, _ string) (*domain.Participant, error) {
	s.log.add("meeting.leave %s", userID)
	return &domain.Participant{MeetingID: meetingID, UserID: userID}, nil
}

func (s *fakeMeetingService) End(_ context.Context, _ uuid.UUID, _ domain.Identity) (*service.EndResult, error) {
	return nil, nil
}

func (s *fakeMeetingService) Cancel(_ context.Context, _ uuid.UUID, _ domain.Identity) error {
	return nil
}

func (s *fakeMeetingService) UpdateMediaStatus(_ context.Context, _, _ uuid.UUID, _, _, _ *bool) (*domain.Participant, error) {
	return nil, nil
}

func (s *fakeMeetingService) ForceEndAbandoned(_ context.Context) int { return 0 }

type fakeChatService struct {
	log     *callLog
	targets []uuid.UUID // адресаты, которые вернёт SendMessage
}

func (s *fakeChatService) SendMessage(_ context.Context, roomID uuid.UUID, sender domain.Identity, body string, scope domain.Scope) (*service.SendResult, error) {
	s.log.add("chat.send %s", sender.UserID)
	return &service.SendResult{
		Message: &domain.ChatMessage{
			ID:           uuid.New(),
			RoomID:       roomID,
			SenderUserID: sender.UserID,
			SenderName:   sender.DisplayName,
			Body:         body,
			ScopeKind:    scope.Kind,
			CreatedAt:    time.Now(),
		},
		Targets: s.targets,
	}, nil
}

func (s *fakeChatService) History(_ context.Context, _, _ uuid.UUID, _ int) ([]*domain.ChatMessage, error) {
	return nil, nil
}

func (s *fakeChatService) EditMessage(_ context.Context, _, _ uuid.UUID, _ string) (*domain.ChatMessage, error) {
	return nil, nil
}

func (s *fakeChatService) DeleteMessage(_ context.Context, _ uuid.UUID, _ domain.Identity) (*domain.ChatMessage, error) {
	return nil, nil
}

func (s *fakeChatService) React(_ context.Context, _, _ uuid.UUID, _ string) (*domain.MessageReaction, *domain.ChatMessage, error) {
	return nil, nil, nil
}

func (s *fakeChatService) SetTyping(_ context.Context, _, _ uuid.UUID) error   { return nil }
func (s *fakeChatService) ClearTyping(_ context.Context, _, _ uuid.UUID) error { return nil }
func (s *fakeChatService) MarkSeen(_ context.Context, _, _ uuid.UUID) error    { return nil }
func (s *fakeChatService) UnreadCount(_ context.Context, _, _ uuid.UUID) (int64, error) {
	return 0, nil
}

type fakePresenceStore struct {
	log *callLog
}

func (p *fakePresenceStore) MarkOnline(_ context.Context, userID uuid.UUID) error {
	p.log.add("presence.mark_online %s", userID)
	return nil
}

func (p *fakePresenceStore) Refresh(_ context.Context, _ uuid.UUID) error { return nil }

func (p *fakePresenceStore) MarkOffline(_ context.Context, userID uuid.UUID) error {
	p.log.add("presence.mark_offline %s", userID)
	return nil
}

func (p *fakePresenceStore) IsOnline(_ context.Context, _ uuid.UUID) (bool, error) {
	return false, nil
}

func (p *fakePresenceStore) AddToRoom(_ context.Context, _, userID uuid.UUID) error {
	p.log.add("presence.add_to_room %s", userID)
	return nil
}

func (p *fakePresenceStore) RemoveFromRoom(_ context.Context, _, userID uuid.UUID) error {
	p.log.add("presence.remove_from_room %s", userID)
	return nil
}

func (p *fakePresenceStore) ListRoomOnline(_ context.Context, _ uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

func (p *fakePresenceStore) SetTyping(_ context.Context, _, _ uuid.UUID) error { return nil }

func (p *fakePresenceStore) ClearTyping(_ context.Context, _, userID uuid.UUID) error {
	p.log.add("presence.clear_typing %s", userID)
	return nil
}

func (p *fakePresenceStore) IsTyping(_ context.Context, _, _ uuid.UUID) (bool, error) {
	return false, nil
}

func (p *fakePresenceStore) IncrementUnread(_ context.Context, _, _ uuid.UUID) (int64, error) {
	return 0, nil
}

func (p *fakePresenceStore) ResetUnread(_ context.Context, _, _ uuid.UUID) error { return nil }

func (p *fakePresenceStore) GetUnread(_ context.Context, _, _ uuid.UUID) (int64, error) {
	return 0, nil
}

func (p *fakePresenceStore) AddRoomMember(_ context.Context, _, _ uuid.UUID) error { return nil }

func (p *fakePresenceStore) ListRoomMembers(_ context.Context, _ uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}
