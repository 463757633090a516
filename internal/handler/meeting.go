package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"campus_live/internal/domain"
	"campus_live/internal/service"
	apperrors "campus_live/pkg/errors"
	"campus_live/pkg/logger"
)

type MeetingHandler struct {
	meetingService service.MeetingService
	log            logger.Logger
}

func NewMeetingHandler(meetingService service.MeetingService, log logger.Logger) *MeetingHandler {
	return &MeetingHandler{
		meetingService: meetingService,
		log:            log,
	}
}

type CreateMeetingRequest struct {
	Title            string     `json:"title" binding:"required"`
	Description      *string    `json:"description"`
	ScheduledStartAt *time.Time `json:"scheduled_start_at"`
	ScheduledEndAt   *time.Time `json:"scheduled_end_at"`
	MaxParticipants  int        `json:"max_participants"`
}

func (h *MeetingHandler) Create(c *gin.Context) {
	identity := identityFromContext(c)
	if identity == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req CreateMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	meeting, err := h.meetingService.Create(c.Request.Context(), *identity,
		req.Title, req.Description, req.ScheduledStartAt, req.ScheduledEndAt, req.MaxParticipants)
	if err != nil {
		h.log.Warn("Failed to create meeting", "error", err)
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	h.log.Info("Meeting created", "meeting_id", meeting.ID, "created_by", identity.UserID)
	c.JSON(http.StatusCreated, meeting)
}

func (h *MeetingHandler) List(c *gin.Context) {
	identity := identityFromContext(c)
	if identity == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	meetings, err := h.meetingService.List(c.Request.Context(), identity.TenantID, limit, offset)
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"meetings": meetings})
}

func (h *MeetingHandler) Get(c *gin.Context) {
	identity := identityFromContext(c)
	if identity == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	meetingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid meeting id"})
		return
	}

	meeting, err := h.meetingService.GetByID(c.Request.Context(), meetingID)
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	// Встречи видны только внутри своего тенанта
	if meeting.TenantID != identity.TenantID {
		c.JSON(http.StatusNotFound, gin.H{"error": apperrors.ErrMeetingNotFound.Error()})
		return
	}

	c.JSON(http.StatusOK, meeting)
}

func (h *MeetingHandler) Cancel(c *gin.Context) {
	identity := identityFromContext(c)
	if identity == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	meetingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid meeting id"})
		return
	}

	if err := h.meetingService.Cancel(c.Request.Context(), meetingID, *identity); err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	h.log.Info("Meeting cancelled", "meeting_id", meetingID, "actor", identity.UserID)
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func identityFromContext(c *gin.Context) *domain.Identity {
	value, ok := c.Get("identity")
	if !ok {
		return nil
	}
	identity, ok := value.(*domain.Identity)
	if !ok {
		return nil
	}
	return identity
}
