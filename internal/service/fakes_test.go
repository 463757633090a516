package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"campus_live/internal/domain"
	apperrors "campus_live/pkg/errors"
)

// In-memory реализации репозиториев для сервисных тестов

type fakeMeetingRepo struct {
	mu           sync.Mutex
	meetings     map[uuid.UUID]*domain.Meeting
	participants map[uuid.UUID]map[uuid.UUID]*domain.Participant // meetingID -> userID -> row
}

func newFakeMeetingRepo() *fakeMeetingRepo {
	return &fakeMeetingRepo{
		meetings:     make(map[uuid.UUID]*domain.Meeting),
		participants: make(map[uuid.UUID]map[uuid.UUID]*domain.Participant),
	}
}

func (r *fakeMeetingRepo) Create(_ context.Context, meeting *domain.Meeting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *meeting
	r.meetings[meeting.ID] = &copied
	return nil
}

func (r *fakeMeetingRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Meeting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	meeting, ok := r.meetings[id]
	if !ok {
		return nil, apperrors.ErrMeetingNotFound
	}
	copied := *meeting
	return &copied, nil
}

func (r *fakeMeetingRepo) List(_ context.Context, tenantID uuid.UUID, limit, offset int) ([]*domain.Meeting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Meeting
	for _, m := range r.meetings {
		if m.TenantID == tenantID {
			copied := *m
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeMeetingRepo) Update(_ context.Context, meeting *domain.Meeting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.meetings[meeting.ID]; !ok {
		return apperrors.ErrMeetingNotFound
	}
	copied := *meeting
	r.meetings[meeting.ID] = &copied
	return nil
}

func (r *fakeMeetingRepo) CreateParticipant(_ context.Context, participant *domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.participants[participant.MeetingID] == nil {
		r.participants[participant.MeetingID] = make(map[uuid.UUID]*domain.Participant)
	}
	copied := *participant
	r.participants[participant.MeetingID][participant.UserID] = &copied
	return nil
}

func (r *fakeMeetingRepo) GetParticipant(_ context.Context, meetingID, userID uuid.UUID) (*domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[meetingID][userID]
	if !ok {
		return nil, apperrors.ErrParticipantNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *fakeMeetingRepo) GetParticipantsByMeeting(_ context.Context, meetingID uuid.UUID) ([]*domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Participant
	for _, p := range r.participants[meetingID] {
		copied := *p
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeMeetingRepo) GetConnectedParticipants(_ context.Context, meetingID uuid.UUID) ([]*domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Participant
	for _, p := range r.participants[meetingID] {
		if p.ConnectionStatus == domain.ConnectionStatusConnected {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeMeetingRepo) CountConnected(_ context.Context, meetingID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, p := range r.participants[meetingID] {
		if p.ConnectionStatus == domain.ConnectionStatusConnected {
			count++
		}
	}
	return count, nil
}

func (r *fakeMeetingRepo) CountDistinctParticipants(_ context.Context, meetingID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants[meetingID]), nil
}

func (r *fakeMeetingRepo) UpdateParticipant(_ context.Context, participant *domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[participant.MeetingID][participant.UserID]; !ok {
		return apperrors.ErrParticipantNotFound
	}
	copied := *participant
	r.participants[participant.MeetingID][participant.UserID] = &copied
	return nil
}

func (r *fakeMeetingRepo) ListLiveMeetings(_ context.Context) ([]*domain.Meeting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Meeting
	for _, m := range r.meetings {
		if m.Status == domain.MeetingStatusLive {
			copied := *m
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeChatRepo struct {
	mu        sync.Mutex
	messages  map[uuid.UUID]*domain.ChatMessage
	reactions []*domain.MessageReaction
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{messages: make(map[uuid.UUID]*domain.ChatMessage)}
}

func (r *fakeChatRepo) Create(_ context.Context, message *domain.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *message
	r.messages[message.ID] = &copied
	return nil
}

func (r *fakeChatRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok || m.DeletedAt != nil {
		return nil, apperrors.ErrMessageNotFound
	}
	copied := *m
	return &copied, nil
}

func (r *fakeChatRepo) ListByRoom(_ context.Context, roomID uuid.UUID, limit int) ([]*domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ChatMessage
	for _, m := range r.messages {
		if m.RoomID == roomID && m.DeletedAt == nil {
			copied := *m
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeChatRepo) MarkEdited(_ context.Context, id uuid.UUID, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok || m.DeletedAt != nil {
		return apperrors.ErrMessageNotFound
	}
	now := time.Now()
	m.Body = body
	m.EditedAt = &now
	return nil
}

func (r *fakeChatRepo) SoftDelete(_ context.Context, id uuid.UUID, deletedBy uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok || m.DeletedAt != nil {
		return apperrors.ErrMessageNotFound
	}
	now := time.Now()
	m.DeletedAt = &now
	m.DeletedByUserID = &deletedBy
	return nil
}

func (r *fakeChatRepo) CountByRoom(_ context.Context, roomID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, m := range r.messages {
		if m.RoomID == roomID {
			count++
		}
	}
	return count, nil
}

func (r *fakeChatRepo) AddReaction(_ context.Context, reaction *domain.MessageReaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.reactions {
		if existing.MessageID == reaction.MessageID && existing.UserID == reaction.UserID && existing.Emoji == reaction.Emoji {
			return nil
		}
	}
	copied := *reaction
	r.reactions = append(r.reactions, &copied)
	return nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
}

func newFakeAuditRepo() *fakeAuditRepo {
	return &fakeAuditRepo{}
}

func (r *fakeAuditRepo) CreateLog(_ context.Context, entry *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *entry
	copied.ID = int64(len(r.entries) + 1)
	r.entries = append(r.entries, &copied)
	return nil
}

func (r *fakeAuditRepo) ListByMeeting(_ context.Context, meetingID uuid.UUID) ([]*domain.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.AuditLog
	for _, e := range r.entries {
		if e.MeetingID != nil && *e.MeetingID == meetingID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) eventTypes(meetingID uuid.UUID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.entries {
		if e.MeetingID != nil && *e.MeetingID == meetingID {
			out = append(out, e.EventType)
		}
	}
	return out
}

type roomUser struct {
	room uuid.UUID
	user uuid.UUID
}

type fakePresence struct {
	mu      sync.Mutex
	online  map[uuid.UUID]bool
	inRoom  map[roomUser]bool
	typing  map[roomUser]bool
	unread  map[roomUser]int64
	members map[roomUser]bool
}

func newFakePresence() *fakePresence {
	return &fakePresence{
		online:  make(map[uuid.UUID]bool),
		inRoom:  make(map[roomUser]bool),
		typing:  make(map[roomUser]bool),
		unread:  make(map[roomUser]int64),
		members: make(map[roomUser]bool),
	}
}

func (p *fakePresence) MarkOnline(_ context.Context, userID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[userID] = true
	return nil
}

func (p *fakePresence) Refresh(ctx context.Context, userID uuid.UUID) error {
	return p.MarkOnline(ctx, userID)
}

func (p *fakePresence) MarkOffline(_ context.Context, userID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online, userID)
	return nil
}

func (p *fakePresence) IsOnline(_ context.Context, userID uuid.UUID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID], nil
}

func (p *fakePresence) AddToRoom(_ context.Context, roomID, userID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inRoom[roomUser{roomID, userID}] = true
	return nil
}

func (p *fakePresence) RemoveFromRoom(_ context.Context, roomID, userID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inRoom, roomUser{roomID, userID})
	return nil
}

func (p *fakePresence) ListRoomOnline(_ context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []uuid.UUID
	for key := range p.inRoom {
		if key.room == roomID {
			out = append(out, key.user)
		}
	}
	return out, nil
}

func (p *fakePresence) SetTyping(_ context.Context, roomID, userID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typing[roomUser{roomID, userID}] = true
	return nil
}

func (p *fakePresence) ClearTyping(_ context.Context, roomID, userID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.typing, roomUser{roomID, userID})
	return nil
}

func (p *fakePresence) IsTyping(_ context.Context, roomID, userID uuid.UUID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typing[roomUser{roomID, userID}], nil
}

func (p *fakePresence) IncrementUnread(_ context.Context, userID, roomID uuid.UUID) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unread[roomUser{roomID, userID}]++
	return p.unread[roomUser{roomID, userID}], nil
}

func (p *fakePresence) ResetUnread(_ context.Context, userID, roomID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.unread, roomUser{roomID, userID})
	return nil
}

func (p *fakePresence) GetUnread(_ context.Context, userID, roomID uuid.UUID) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unread[roomUser{roomID, userID}], nil
}

func (p *fakePresence) AddRoomMember(_ context.Context, roomID, userID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.members[roomUser{roomID, userID}] = true
	return nil
}

func (p *fakePresence) ListRoomMembers(_ context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []uuid.UUID
	for key := range p.members {
		if key.room == roomID {
			out = append(out, key.user)
		}
	}
	return out, nil
}

type fakeRateLimit struct {
	mu     sync.Mutex
	counts map[string]int64
	limit  int
}

func newFakeRateLimit(limit int) *fakeRateLimit {
	return &fakeRateLimit{counts: make(map[string]int64), limit: limit}
}

func (r *fakeRateLimit) CheckLimit(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limit > 0 {
		limit = r.limit
	}
	return r.counts[key] < int64(limit), nil
}

func (r *fakeRateLimit) Increment(_ context.Context, key string, _ time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[key]++
	return r.counts[key], nil
}

// fakeEngine фиксирует вызовы control-plane и умеет падать по требованию
type fakeEngine struct {
	mu             sync.Mutex
	ensureCalls    int
	closeCalls     int
	closedRooms    []string
	failEnsure     bool
	failTransports bool
}

func (e *fakeEngine) EnsureSession(_ context.Context, room string) (json.RawMessage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureCalls++
	if e.failEnsure {
		return nil, errors.New("engine unreachable")
	}
	return json.RawMessage(`{"codecs":["opus","vp8"]}`), nil
}

func (e *fakeEngine) CreateTransport(_ context.Context, room string, _ uuid.UUID, direction string) (json.RawMessage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failTransports {
		return nil, errors.New("engine unreachable")
	}
	return json.RawMessage(`{"transport_id":"t-1"}`), nil
}

func (e *fakeEngine) ConnectTransport(_ context.Context, _ string, _ json.RawMessage) error {
	return nil
}

func (e *fakeEngine) Produce(_ context.Context, _ string, _ uuid.UUID, _ string, _ json.RawMessage) (string, error) {
	return "producer-1", nil
}

func (e *fakeEngine) Consume(_ context.Context, _ string, _, _ uuid.UUID, _ string, _ json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{"consumer_id":"c-1"}`), nil
}

func (e *fakeEngine) CloseSession(_ context.Context, room string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeCalls++
	e.closedRooms = append(e.closedRooms, room)
	return nil
}
