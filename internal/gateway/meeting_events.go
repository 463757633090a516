package gateway

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

type joinMeetingRequest struct {
	MeetingID uuid.UUID `json:"meeting_id"`
}

type leaveMeetingRequest struct {
	MeetingID uuid.UUID `json:"meeting_id"`
	Reason    string    `json:"reason"`
}

type endMeetingRequest struct {
	MeetingID uuid.UUID `json:"meeting_id"`
}

type mediaStatusRequest struct {
	MeetingID     uuid.UUID `json:"meeting_id"`
	VideoEnabled  *bool     `json:"video_enabled,omitempty"`
	AudioEnabled  *bool     `json:"audio_enabled,omitempty"`
	ScreenSharing *bool     `json:"screen_sharing,omitempty"`
}

func (c *Coordinator) registerMeetingHandlers() {
	c.handlers[EventJoinMeeting] = c.handleJoinMeeting
	c.handlers[EventLeaveMeeting] = c.handleLeaveMeeting
	c.handlers[EventEndMeeting] = c.handleEndMeeting
	c.handlers[EventMediaStatus] = c.handleMediaStatus
}

func (c *Coordinator) handleJoinMeeting(ctx context.Context, conn *Connection, data json.RawMessage) {
	req := joinMeetingRequest{}
	if err := json.Unmarshal(data, &req); err != nil || req.MeetingID == uuid.Nil {
		conn.SendError("bad_request", "invalid join request")
		return
	}

	result, err := c.services.Meeting.Join(ctx, req.MeetingID, conn.Identity)
	if err != nil {
		c.replyError(conn, err)
		return
	}

	// Порядок: durable-состояние уже записано, теперь реестр и присутствие
	c.ensureRoom(req.MeetingID, conn, RoomKindMeeting)
	if err := c.presence.AddToRoom(ctx, req.MeetingID, conn.Identity.UserID); err != nil {
		c.log.Warn("Failed to add user to room presence", "meeting_id", req.MeetingID, "error", err)
	}
	if err := c.presence.AddRoomMember(ctx, req.MeetingID, conn.Identity.UserID); err != nil {
		c.log.Warn("Failed to track room membership", "meeting_id", req.MeetingID, "error", err)
	}

	conn.Send(EventJoined, result)

	userID := conn.Identity.UserID
	c.broadcast(EventParticipantJoined, req.MeetingID, map[string]interface{}{
		"participant": result.Participant,
	}, &userID, nil)
}

func (c *Coordinator) handleLeaveMeeting(ctx context.Context, conn *Connection, data json.RawMessage) {
	req := leaveMeetingRequest{}
	if err := json.Unmarshal(data, &req); err != nil || req.MeetingID == uuid.Nil {
		conn.SendError("bad_request", "invalid leave request")
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "left"
	}

	c.leaveRoom(ctx, conn, req.MeetingID, RoomKindMeeting, reason)
}

func (c *Coordinator) handleEndMeeting(ctx context.Context, conn *Connection, data json.RawMessage) {
	req := endMeetingRequest{}
	if err := json.Unmarshal(data, &req); err != nil || req.MeetingID == uuid.Nil {
		conn.SendError("bad_request", "invalid end request")
		return
	}

	result, err := c.services.Meeting.End(ctx, req.MeetingID, conn.Identity)
	if err != nil {
		c.replyError(conn, err)
		return
	}

	c.broadcast(EventMeetingEnded, req.MeetingID, result, nil, nil)
}

func (c *Coordinator) handleMediaStatus(ctx context.Context, conn *Connection, data json.RawMessage) {
	req := mediaStatusRequest{}
	if err := json.Unmarshal(data, &req); err != nil || req.MeetingID == uuid.Nil {
		conn.SendError("bad_request", "invalid media status request")
		return
	}

	participant, err := c.services.Meeting.UpdateMediaStatus(ctx, req.MeetingID, conn.Identity.UserID,
		req.VideoEnabled, req.AudioEnabled, req.ScreenSharing)
	if err != nil {
		c.replyError(conn, err)
		return
	}

	c.broadcast(EventMediaStatusChanged, req.MeetingID, map[string]interface{}{
		"participant": participant,
	}, nil, nil)
}
