package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"bizadmin-backend/internal/logging"
	"bizadmin-backend/internal/model"
	"bizadmin-backend/internal/notify"
	"bizadmin-backend/internal/repository"
	"bizadmin-backend/internal/transport/http/middleware"
	"bizadmin-backend/internal/transport/http/response"
)

const maxNotificationPage = 200

// naive scheduled_at values are read in the business time zone
const scheduleLayout = "2006-01-02 15:04:05"

type NotificationHandler struct {
	notifications *repository.NotificationRepository
	notifier      *notify.Service
	location      *time.Location
	logger        logrus.FieldLogger
}

type CreateNotificationRequest struct {
	Title       string `json:"title" binding:"required,max=255"`
	Message     string `json:"message" binding:"required"`
	Type        string `json:"type" binding:"required"`
	Channel     string `json:"channel"`
	ScheduledAt string `json:"scheduled_at"`
}

type BulkMarkReadRequest struct {
	NotificationIDs []uint `json:"notification_ids"`
	MarkAll         bool   `json:"mark_all"`
}

func NewNotificationHandler(notifications *repository.NotificationRepository, notifier *notify.Service, location *time.Location, logger logrus.FieldLogger) *NotificationHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	if location == nil {
		location = time.UTC
	}
	return &NotificationHandler{notifications: notifications, notifier: notifier, location: location, logger: logger}
}

func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid user context")
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxNotificationPage)
	}

	notifications, err := h.notifications.ListByRecipient(c.Request.Context(), userID, limit)
	if err != nil {
		logging.LogError(h.logger, "handler", "NotificationHandler.List", "list notifications", userID, err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list notifications failed")
		return
	}
	response.OK(c, notifications)
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid user context")
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	updated, err := h.notifications.MarkRead(c.Request.Context(), id, userID)
	if err != nil {
		logging.LogError(h.logger, "handler", "NotificationHandler.MarkRead", "mark read", id, err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "mark notification read failed")
		return
	}
	if !updated {
		response.Error(c, http.StatusNotFound, response.CodeNotFound, "notification not found")
		return
	}
	response.OK(c, gin.H{"id": id, "is_read": true})
}

// Create broadcasts an owner notification to the staff, now or at scheduled_at.
func (h *NotificationHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid user context")
		return
	}
	var req CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	scheduledAt, err := h.parseSchedule(req.ScheduledAt)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}

	result, err := h.notifier.Broadcast(c.Request.Context(), notify.BroadcastInput{
		Title:       req.Title,
		Message:     req.Message,
		Type:        model.NotificationType(req.Type),
		Channel:     model.NotificationChannel(req.Channel),
		ScheduledAt: scheduledAt,
		CreatedByID: userID,
	})
	if err != nil {
		h.writeNotifyError(c, err, "NotificationHandler.Create", userID)
		return
	}

	message := fmt.Sprintf("Notification sent to %d recipient(s)", result.Recipients)
	if result.Status == notify.BroadcastScheduled {
		message = fmt.Sprintf("Notification scheduled for %d recipient(s)", result.Recipients)
	}
	response.Created(c, message, gin.H{
		"status":           result.Status,
		"batch_id":         result.BatchID,
		"recipients_count": result.Recipients,
		"scheduled_at":     result.ScheduledAt,
		"notification":     result.Sample,
	})
}

func (h *NotificationHandler) CancelScheduled(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid user context")
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	cancelled, err := h.notifier.CancelScheduled(c.Request.Context(), id, userID)
	if err != nil {
		h.writeNotifyError(c, err, "NotificationHandler.CancelScheduled", id)
		return
	}
	response.OK(c, gin.H{
		"cancelled_count": cancelled,
		"message":         fmt.Sprintf("Successfully cancelled %d scheduled notification(s)", cancelled),
	})
}

// BulkMarkRead marks the caller's listed notifications, or all of them, as read.
func (h *NotificationHandler) BulkMarkRead(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid user context")
		return
	}
	var req BulkMarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	var (
		marked int64
		err    error
	)
	switch {
	case req.MarkAll:
		marked, err = h.notifications.MarkAllRead(c.Request.Context(), userID)
	case len(req.NotificationIDs) > 0:
		marked, err = h.notifications.MarkManyRead(c.Request.Context(), userID, req.NotificationIDs)
	default:
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "either notification_ids or mark_all must be provided")
		return
	}
	if err != nil {
		logging.LogError(h.logger, "handler", "NotificationHandler.BulkMarkRead", "mark read", userID, err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "mark notifications read failed")
		return
	}

	skipped := 0
	if !req.MarkAll {
		skipped = max(len(req.NotificationIDs)-int(marked), 0)
	}
	response.OK(c, gin.H{"marked_count": marked, "skipped_count": skipped})
}

func (h *NotificationHandler) parseSchedule(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if at, err := time.Parse(time.RFC3339, raw); err == nil {
		return &at, nil
	}
	at, err := time.ParseInLocation(scheduleLayout, raw, h.location)
	if err != nil {
		return nil, fmt.Errorf("scheduled_at must be RFC 3339 or %q", scheduleLayout)
	}
	return &at, nil
}

func (h *NotificationHandler) writeNotifyError(c *gin.Context, err error, funcName string, data any) {
	switch {
	case errors.Is(err, notify.ErrInvalidNotification):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, notify.ErrNotScheduled):
		response.Error(c, http.StatusBadRequest, response.CodeNotScheduled, err.Error())
	case errors.Is(err, notify.ErrOwnerOnly), errors.Is(err, notify.ErrNotCreator):
		response.Error(c, http.StatusForbidden, response.CodeForbidden, err.Error())
	case errors.Is(err, notify.ErrNotificationMissing):
		response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
	default:
		logging.LogError(h.logger, "handler", funcName, "notification request", data, err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "notification request failed")
	}
}
