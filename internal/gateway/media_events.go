package gateway

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"campus_live/internal/domain"
)

type createTransportRequest struct {
	MeetingID uuid.UUID `json:"meeting_id"`
	Direction string    `json:"direction"` // "send" | "recv"
}

type connectTransportRequest struct {
	MeetingID   uuid.UUID       `json:"meeting_id"`
	TransportID string          `json:"transport_id"`
	Params      json.RawMessage `json:"params"`
}

type produceRequest struct {
	MeetingID uuid.UUID       `json:"meeting_id"`
	Kind      string          `json:"kind"` // "audio" | "video" | "screen"
	Params    json.RawMessage `json:"params"`
}

type consumeRequest struct {
	MeetingID    uuid.UUID       `json:"meeting_id"`
	ProducerUser uuid.UUID       `json:"producer_user_id"`
	Kind         string          `json:"kind"`
	Capabilities json.RawMessage `json:"capabilities"`
}

func (c *Coordinator) registerMediaHandlers() {
	c.handlers[EventCreateTransport] = c.handleCreateTransport
	c.handlers[EventConnectTransport] = c.handleConnectTransport
	c.handlers[EventProduce] = c.handleProduce
	c.handlers[EventConsume] = c.handleConsume
}

// engineRoom проверяет, что пользователь действительно участник встречи,
// и возвращает имя комнаты движка
func (c *Coordinator) engineRoom(ctx context.Context, conn *Connection, meetingID uuid.UUID) (*domain.Meeting, bool) {
	meeting, err := c.services.Meeting.GetByID(ctx, meetingID)
	if err != nil {
		c.replyError(conn, err)
		return nil, false
	}
	if kind, ok := conn.Rooms()[meetingID]; !ok || kind != RoomKindMeeting {
		conn.SendError("forbidden", "not a participant of this meeting")
		return nil, false
	}
	return meeting, true
}

func (c *Coordinator) handleCreateTransport(ctx context.Context, conn *Connection, data json.RawMessage) {
	req := createTransportRequest{}
	if err := json.Unmarshal(data, &req); err != nil || req.MeetingID == uuid.Nil {
		conn.SendError("bad_request", "invalid transport request")
		return
	}
	if req.Direction != "send" && req.Direction != "recv" {
		conn.SendError("bad_request", "direction must be send or recv")
		return
	}

	meeting, ok := c.engineRoom(ctx, conn, req.MeetingID)
	if !ok {
		return
	}

	transport, err := c.services.Media.CreateTransport(ctx, meeting.EngineRoomName, conn.Identity.UserID, req.Direction)
	if err != nil {
		c.replyError(conn, err)
		return
	}

	conn.Send(EventTransportCreated, map[string]interface{}{
		"meeting_id": req.MeetingID,
		"direction":  req.Direction,
		"transport":  transport,
	})
}

func (c *Coordinator) handleConnectTransport(ctx context.Context, conn *Connection, data json.RawMessage) {
	req := connectTransportRequest{}
	if err := json.Unmarshal(data, &req); err != nil || req.TransportID == "" {
		conn.SendError("bad_request", "invalid connect request")
		return
	}

	if _, ok := c.engineRoom(ctx, conn, req.MeetingID); !ok {
		return
	}

	if err := c.services.Media.ConnectTransport(ctx, req.TransportID, req.Params); err != nil {
		c.replyError(conn, err)
		return
	}

	conn.Send(EventTransportConnected, map[string]interface{}{
		"transport_id": req.TransportID,
	})
}

func (c *Coordinator) handleProduce(ctx context.Context, conn *Connection, data json.RawMessage) {
	req := produceRequest{}
	if err := json.Unmarshal(data, &req); err != nil || req.MeetingID == uuid.Nil {
		conn.SendError("bad_request", "invalid produce request")
		return
	}

	meeting, ok := c.engineRoom(ctx, conn, req.MeetingID)
	if !ok {
		return
	}

	// Шаринг экрана требует права, проверка идёт через смену медиа-статуса
	if req.Kind == "screen" {
		if _, err := c.services.Meeting.UpdateMediaStatus(ctx, req.MeetingID, conn.Identity.UserID, nil, nil, boolPtr(true)); err != nil {
			c.replyError(conn, err)
			return
		}
	}

	producerID, err := c.services.Media.Produce(ctx, meeting.EngineRoomName, conn.Identity.UserID, req.Kind, req.Params)
	if err != nil {
		c.replyError(conn, err)
		return
	}

	conn.Send(EventProduced, map[string]interface{}{
		"producer_id": producerID,
		"kind":        req.Kind,
	})

	// Остальные участники узнают о новом потоке и могут начать consume
	userID := conn.Identity.UserID
	c.broadcast(EventNewProducer, req.MeetingID, map[string]interface{}{
		"producer_id":      producerID,
		"producer_user_id": userID,
		"kind":             req.Kind,
	}, &userID, nil)
}

func (c *Coordinator) handleConsume(ctx context.Context, conn *Connection, data json.RawMessage) {
	req := consumeRequest{}
	if err := json.Unmarshal(data, &req); err != nil || req.MeetingID == uuid.Nil {
		conn.SendError("bad_request", "invalid consume request")
		return
	}

	meeting, ok := c.engineRoom(ctx, conn, req.MeetingID)
	if !ok {
		return
	}

	result, err := c.services.Media.Consume(ctx, meeting.EngineRoomName, conn.Identity.UserID, req.ProducerUser, req.Kind, req.Capabilities)
	if err != nil {
		c.replyError(conn, err)
		return
	}

	conn.Send(EventConsumed, map[string]interface{}{
		"meeting_id": req.MeetingID,
		"consumer":   result,
	})
}

func boolPtr(v bool) *bool { return &v }
