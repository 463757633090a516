package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Входящие события
const (
	EventJoinMeeting      = "join-meeting"
	EventLeaveMeeting     = "leave-meeting"
	EventEndMeeting       = "end-meeting"
	EventMediaStatus      = "media-status"
	EventJoinRoom         = "join-room"
	EventLeaveRoom        = "leave-room"
	EventSendMessage      = "send-message"
	EventHistory          = "history"
	EventTyping           = "typing"
	EventStopTyping       = "stop-typing"
	EventMarkMessagesSeen = "mark-messages-seen"
	EventEditMessage      = "edit-message"
	EventDeleteMessage    = "delete-message"
	EventReactMessage     = "react-message"
	EventCreateTransport  = "create-transport"
	EventConnectTransport = "connect-transport"
	EventProduce          = "produce"
	EventConsume          = "consume"
)

// Исходящие события
const (
	EventJoined             = "joined"
	EventParticipantJoined  = "participant-joined"
	EventParticipantLeft    = "participant-left"
	EventMeetingEnded       = "meeting-ended"
	EventMediaStatusChanged = "media-status-changed"
	EventRoomJoined         = "room-joined"
	EventNewMessage         = "new-message"
	EventHistoryLoaded      = "history-loaded"
	EventUserTyping         = "user-typing"
	EventUserStoppedTyping  = "user-stopped-typing"
	EventMessagesSeen       = "messages-seen"
	EventMessageEdited      = "message-edited"
	EventMessageDeleted     = "message-deleted"
	EventMessageReaction    = "message-reaction"
	EventTransportCreated   = "transport-created"
	EventTransportConnected = "transport-connected"
	EventProduced           = "produced"
	EventNewProducer        = "new-producer"
	EventConsumed           = "consumed"
	EventError              = "error"
)

// ClientMessage - кадр от клиента: имя события плюс непрозрачные данные
type ClientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type ServerMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope - единица fan-out между процессами. Targets пуст - доставка всем
// в комнате; Origin позволяет процессу игнорировать собственное эхо от брокера.
type Envelope struct {
	Event         string          `json:"event"`
	RoomID        uuid.UUID       `json:"room_id"`
	Targets       []uuid.UUID     `json:"targets,omitempty"`
	ExcludeUserID *uuid.UUID      `json:"exclude_user_id,omitempty"`
	Origin        string          `json:"origin"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

func (e *Envelope) addressedTo(userID uuid.UUID) bool {
	if e.ExcludeUserID != nil && *e.ExcludeUserID == userID {
		return false
	}
	if len(e.Targets) == 0 {
		return true
	}
	for _, t := range e.Targets {
		if t == userID {
			return true
		}
	}
	return false
}
