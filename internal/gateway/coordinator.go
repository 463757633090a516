package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"campus_live/internal/config"
	"campus_live/internal/domain"
	"campus_live/internal/repository"
	"campus_live/internal/service"
	apperrors "campus_live/pkg/errors"
	"campus_live/pkg/logger"
)

const handlerTimeout = 10 * time.Second

type EventHandler func(ctx context.Context, conn *Connection, data json.RawMessage)

// Coordinator связывает соединения, присутствие, брокер и сервисы.
// Владеет жизненным циклом соединения от upgrade до очистки.
type Coordinator struct {
	registry  *Registry
	broker    Broker
	services  *service.Services
	presence  repository.PresenceStore
	cfg       *config.Config
	log       logger.Logger
	processID string

	handlers map[string]EventHandler

	mu   sync.Mutex
	subs map[uuid.UUID]func() // roomID -> отписка от брокера
}

func NewCoordinator(
	registry *Registry,
	broker Broker,
	services *service.Services,
	presence repository.PresenceStore,
	cfg *config.Config,
	log logger.Logger,
) *Coordinator {
	c := &Coordinator{
		registry:  registry,
		broker:    broker,
		services:  services,
		presence:  presence,
		cfg:       cfg,
		log:       log,
		processID: uuid.New().String(),
		handlers:  make(map[string]EventHandler),
		subs:      make(map[uuid.UUID]func()),
	}

	c.registerMeetingHandlers()
	c.registerChatHandlers()
	c.registerMediaHandlers()

	return c
}

// HandleConnection обслуживает соединение до разрыва. Вызывается из HTTP-хендлера
// после успешного upgrade.
func (c *Coordinator) HandleConnection(ws *websocket.Conn, identity domain.Identity) {
	conn := NewConnection(ws, identity, c.log)

	if evicted := c.registry.Register(conn); evicted != nil {
		evicted.SendError("conflict", "replaced by a newer connection")
		evicted.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	if err := c.presence.MarkOnline(ctx, identity.UserID); err != nil {
		c.log.Warn("Failed to mark user online", "user_id", identity.UserID, "error", err)
	}
	cancel()

	c.log.Info("Connection established", "conn_id", conn.ID, "user_id", identity.UserID)

	done := make(chan struct{})
	go conn.WritePump()
	go c.heartbeat(conn, done)

	conn.ReadPump(c.dispatch)

	close(done)
	c.disconnect(conn)
}

// heartbeat продлевает онлайн-маркер, пока соединение живо
func (c *Coordinator) heartbeat(conn *Connection, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.Presence.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
			if err := c.presence.Refresh(ctx, conn.Identity.UserID); err != nil {
				c.log.Warn("Failed to refresh presence", "user_id", conn.Identity.UserID, "error", err)
			}
			cancel()
		}
	}
}

func (c *Coordinator) dispatch(conn *Connection, msg *ClientMessage) {
	handler, ok := c.handlers[msg.Event]
	if !ok {
		conn.SendError("bad_request", "unknown event: "+msg.Event)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Handler panicked", "event", msg.Event, "conn_id", conn.ID, "panic", r)
			conn.SendError("internal_error", "internal error")
		}
	}()

	handler(ctx, conn, msg.Data)
}

// disconnect выполняет полную очистку после разрыва. Идемпотентен относительно
// вытеснения: если пользователь уже переподключился, очистка старого соединения
// не трогает ни присутствие, ни durable-состояние встреч — они принадлежат
// новому соединению.
func (c *Coordinator) disconnect(conn *Connection) {
	conn.Close()

	wasActive := c.registry.Unregister(conn)

	if wasActive {
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		for roomID, kind := range conn.Rooms() {
			c.leaveRoom(ctx, conn, roomID, kind, "disconnect")
		}

		if err := c.presence.MarkOffline(ctx, conn.Identity.UserID); err != nil {
			c.log.Warn("Failed to mark user offline", "user_id", conn.Identity.UserID, "error", err)
		}
	}

	c.log.Info("Connection closed", "conn_id", conn.ID, "user_id", conn.Identity.UserID)
}

// leaveRoom снимает соединение с комнаты. Сначала durable-состояние встречи,
// потом реестр и разделяемое присутствие, в конце оповещение остальных.
func (c *Coordinator) leaveRoom(ctx context.Context, conn *Connection, roomID uuid.UUID, kind, reason string) {
	conn.ForgetRoom(roomID)

	var participant *domain.Participant
	if kind == RoomKindMeeting {
		p, err := c.services.Meeting.Leave(ctx, roomID, conn.Identity.UserID, reason)
		if err != nil {
			c.log.Warn("Failed to record meeting leave", "meeting_id", roomID, "user_id", conn.Identity.UserID, "error", err)
		} else {
			participant = p
		}
	}

	emptied := c.registry.LeaveRoom(roomID, conn)
	if emptied {
		c.releaseRoom(roomID)
	}

	if err := c.presence.RemoveFromRoom(ctx, roomID, conn.Identity.UserID); err != nil {
		c.log.Warn("Failed to remove user from room presence", "room_id", roomID, "error", err)
	}
	if err := c.presence.ClearTyping(ctx, roomID, conn.Identity.UserID); err != nil {
		c.log.Warn("Failed to clear typing marker", "room_id", roomID, "error", err)
	}

	if participant != nil {
		c.broadcast(EventParticipantLeft, roomID, map[string]interface{}{
			"participant": participant,
			"reason":      reason,
		}, nil, nil)
	}
}

// ensureRoom подписывает процесс на конверты комнаты при первом локальном участнике
func (c *Coordinator) ensureRoom(roomID uuid.UUID, conn *Connection, kind string) {
	first := c.registry.JoinRoom(roomID, conn)
	conn.TrackRoom(roomID, kind)
	if !first {
		return
	}

	unsub, err := c.broker.Subscribe(roomID, c.onRemote)
	if err != nil {
		c.log.Warn("Failed to subscribe to room subject", "room_id", roomID, "error", err)
		return
	}

	// Вытеснение могло опустошить комнату в обход releaseRoom:
	// оставшуюся подписку снимаем перед заменой
	c.mu.Lock()
	stale := c.subs[roomID]
	c.subs[roomID] = unsub
	c.mu.Unlock()
	if stale != nil {
		stale()
	}
}

func (c *Coordinator) releaseRoom(roomID uuid.UUID) {
	c.mu.Lock()
	unsub, ok := c.subs[roomID]
	delete(c.subs, roomID)
	c.mu.Unlock()

	if ok {
		unsub()
	}
}

// onRemote доставляет конверт от брокера. Собственное эхо отбрасывается:
// локальная доставка уже произошла при публикации.
func (c *Coordinator) onRemote(env *Envelope) {
	if env.Origin == c.processID {
		return
	}
	c.deliverLocal(env)
}

func (c *Coordinator) deliverLocal(env *Envelope) {
	frame, err := json.Marshal(ServerMessage{Event: env.Event, Data: env.Payload})
	if err != nil {
		c.log.Error("Failed to marshal fan-out frame", "event", env.Event, "error", err)
		return
	}

	for _, conn := range c.registry.RoomConnections(env.RoomID) {
		if env.addressedTo(conn.Identity.UserID) {
			conn.SendRaw(frame)
		}
	}
}

// broadcast публикует событие в комнату: локальная доставка сразу,
// остальные процессы получают конверт через брокер.
func (c *Coordinator) broadcast(event string, roomID uuid.UUID, data interface{}, exclude *uuid.UUID, targets []uuid.UUID) {
	payload, err := json.Marshal(data)
	if err != nil {
		c.log.Error("Failed to marshal broadcast payload", "event", event, "error", err)
		return
	}

	env := &Envelope{
		Event:         event,
		RoomID:        roomID,
		Targets:       targets,
		ExcludeUserID: exclude,
		Origin:        c.processID,
		Payload:       payload,
		Timestamp:     time.Now(),
	}

	c.deliverLocal(env)

	if err := c.broker.Publish(env); err != nil {
		c.log.Warn("Failed to publish envelope", "event", event, "room_id", roomID, "error", err)
	}
}

func (c *Coordinator) replyError(conn *Connection, err error) {
	conn.SendError(apperrors.CodeFromError(err), err.Error())
}

// Shutdown закрывает все соединения и завершает брошенные live-встречи
func (c *Coordinator) Shutdown(ctx context.Context) {
	for _, conn := range c.registry.All() {
		conn.Close()
		c.disconnect(conn)
	}

	ended := c.services.Meeting.ForceEndAbandoned(ctx)
	if ended > 0 {
		c.log.Info("Force-ended abandoned meetings on shutdown", "count", ended)
	}

	c.broker.Close()
}
