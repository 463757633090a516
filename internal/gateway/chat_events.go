package gateway

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"campus_live/internal/domain"
)

type joinRoomRequest struct {
	RoomID uuid.UUID `json:"room_id"`
}

type sendMessageRequest struct {
	RoomID uuid.UUID    `json:"room_id"`
	Body   string       `json:"body"`
	Scope  domain.Scope `json:"scope"`
}

type historyRequest struct {
	RoomID uuid.UUID `json:"room_id"`
	Limit  int       `json:"limit"`
}

type typingRequest struct {
	RoomID uuid.UUID `json:"room_id"`
}

type editMessageRequest struct {
	MessageID uuid.UUID `json:"message_id"`
	Body      string    `json:"body"`
}

type deleteMessageRequest struct {
	MessageID uuid.UUID `json:"message_id"`
}

type reactMessageRequest struct {
	MessageID uuid.UUID `json:"message_id"`
	Emoji     string    `json:"emoji"`
}

func (c *Coordinator) registerChatHandlers() {
	c.handlers[EventJoinRoom] = c.handleJoinRoom
	c.handlers[EventLeaveRoom] = c.handleLeaveRoom
	c.handlers[EventSendMessage] = c.handleSendMessage
	c.handlers[EventHistory] = c.handleHistory
	c.handlers[EventTyping] = c.handleTyping
	c.handlers[EventStopTyping] = c.handleStopTyping
	c.handlers[EventMarkMessagesSeen] = c.handleMarkSeen
	c.handlers[EventEditMessage] = c.handleEditMessage
	c.handlers[EventDeleteMessage] = c.handleDeleteMessage
	c.handlers[EventReactMessage] = c.handleReactMessage
}

func (c *Coordinator) handleJoinRoom(ctx context.Context, conn *Connection, data json.RawMessage) {
	req := joinRoomRequest{}
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID == uuid.Nil {
		conn.SendError("bad_request", "invalid room request")
		return
	}

	c.ensureRoom(req.RoomID, conn, RoomKindChat)
	if err := c.presence.AddToRoom(ctx, req.RoomID, conn.Identity.UserID); err != nil {
		c.log.Warn("Failed to add user to room presence", "room_id", req.RoomID, "error", err)
	}
	if err := c.presence.AddRoomMember(ctx, req.RoomID, conn.Identity.UserID); err != nil {
		c.log.Warn("Failed to track room membership", "room_id", req.RoomID, "error", err)
	}

	online, err := c.presence.ListRoomOnline(ctx, req.RoomID)
	if err != nil {
		// Redis недоступен - отдаём хотя бы локальную картину
		c.log.Warn("Falling back to local presence", "room_id", req.RoomID, "error", err)
		online = c.registry.LocalRoomUsers(req.RoomID)
	}

	unread, err := c.services.Chat.UnreadCount(ctx, req.RoomID, conn.Identity.UserID)
	if err != nil {
		c.log.Warn("Failed to read unread counter", "room_id", req.RoomID, "error", err)
	}

	conn.Send(EventRoomJoined, map[string]interface{}{
		"room_id": req.RoomID,
		"online":  online,
		"unread":  unread,
	})
}

func (c *Coordinator) handleLeaveRoom(ctx context.Context, conn *Connection, data json.RawMessage) {
	req := joinRoomRequest{}
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID == uuid.Nil {
		conn.SendError("bad_request", "invalid room request")
		return
	}

	c.leaveRoom(ctx, conn, req.RoomID, RoomKindChat, "left")
}

func (c *Coordinator) handleSendMessage(ctx context.Context, conn *Connection, data json.RawMessage) {
	req := sendMessageRequest{}
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID == uuid.Nil {
		conn.SendError("bad_request", "invalid message request")
		return
	}
	if req.Scope.Kind == "" {
		req.Scope.Kind = domain.ScopeAll
	}

	result, err := c.services.Chat.SendMessage(ctx, req.RoomID, conn.Identity, req.Body, req.Scope)
	if err != nil {
		c.replyError(conn, err)
		return
	}

	// Отправитель получает эхо первым, напрямую; из fan-out он исключён
	payload := map[string]interface{}{"message": result.Message}
	conn.Send(EventNewMessage, payload)

	senderID := conn.Identity.UserID
	c.broadcast(EventNewMessage, req.RoomID, payload, &senderID, result.Targets)
}

func (c *Coordinator) handleHistory(ctx context.Context, conn *Connection, data json.RawMessage) {
	req := historyRequest{}
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID == uuid.Nil {
		conn.SendError("bad_request", "invalid history request")
		return
	}

	messages, err := c.services.Chat.History(ctx, req.RoomID, conn.Identity.UserID, req.Limit)
	if err != nil {
		c.replyError(conn, err)
		return
	}

	conn.Send(EventHistoryLoaded, map[string]interface{}{
		"room_id":  req.RoomID,
		"messages": messages,
	})
}

func (c *Coordinator) handleTyping(ctx context.Context, conn *Connection, data json.RawMessage) {
	req := typingRequest{}
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID == uuid.Nil {
		return
	}

	// Индикатор набора эфемерен: не ждём записи маркера
	go func() {
		bg, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()
		if err := c.services.Chat.SetTyping(bg, req.RoomID, conn.Identity.UserID); err != nil {
			c.log.Debug("Failed to set typing marker", "room_id", req.RoomID, "error", err)
		}
	}()

	userID := conn.Identity.UserID
	c.broadcast(EventUserTyping, req.RoomID, map[string]interface{}{
		"user_id":      userID,
		"display_name": conn.Identity.DisplayName,
	}, &userID, nil)
}

func (c *Coordinator) handleStopTyping(ctx context.Context, conn *Connection, data json.RawMessage) {
	req := typingRequest{}
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID == uuid.Nil {
		return
	}

	if err := c.services.Chat.ClearTyping(ctx, req.RoomID, conn.Identity.UserID); err != nil {
		c.log.Debug("Failed to clear typing marker", "room_id", req.RoomID, "error", err)
	}

	userID := conn.Identity.UserID
	c.broadcast(EventUserStoppedTyping, req.RoomID, map[string]interface{}{
		"user_id": userID,
	}, &userID, nil)
}

func (c *Coordinator) handleMarkSeen(ctx context.Context, conn *Connection, data json.RawMessage) {
	req := joinRoomRequest{}
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID == uuid.Nil {
		conn.SendError("bad_request", "invalid seen request")
		return
	}

	if err := c.services.Chat.MarkSeen(ctx, req.RoomID, conn.Identity.UserID); err != nil {
		c.replyError(conn, err)
		return
	}

	conn.Send(EventMessagesSeen, map[string]interface{}{
		"room_id": req.RoomID,
		"unread":  0,
	})
}

func (c *Coordinator) handleEditMessage(ctx context.Context, conn *Connection, data json.RawMessage) {
	req := editMessageRequest{}
	if err := json.Unmarshal(data, &req); err != nil || req.MessageID == uuid.Nil {
		conn.SendError("bad_request", "invalid edit request")
		return
	}

	message, err := c.services.Chat.EditMessage(ctx, req.MessageID, conn.Identity.UserID, req.Body)
	if err != nil {
		c.replyError(conn, err)
		return
	}

	c.broadcast(EventMessageEdited, message.RoomID, map[string]interface{}{
		"message": message,
	}, nil, nil)
}

func (c *Coordinator) handleDeleteMessage(ctx context.Context, conn *Connection, data json.RawMessage) {
	req := deleteMessageRequest{}
	if err := json.Unmarshal(data, &req); err != nil || req.MessageID == uuid.Nil {
		conn.SendError("bad_request", "invalid delete request")
		return
	}

	message, err := c.services.Chat.DeleteMessage(ctx, req.MessageID, conn.Identity)
	if err != nil {
		c.replyError(conn, err)
		return
	}

	c.broadcast(EventMessageDeleted, message.RoomID, map[string]interface{}{
		"message_id": message.ID,
		"deleted_by": conn.Identity.UserID,
	}, nil, nil)
}

func (c *Coordinator) handleReactMessage(ctx context.Context, conn *Connection, data json.RawMessage) {
	req := reactMessageRequest{}
	if err := json.Unmarshal(data, &req); err != nil || req.MessageID == uuid.Nil {
		conn.SendError("bad_request", "invalid reaction request")
		return
	}

	reaction, message, err := c.services.Chat.React(ctx, req.MessageID, conn.Identity.UserID, req.Emoji)
	if err != nil {
		c.replyError(conn, err)
		return
	}

	c.broadcast(EventMessageReaction, message.RoomID, map[string]interface{}{
		"reaction": reaction,
	}, nil, nil)
}
