package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pawtrol-app/pawtrol-api/internal/model"
	"github.com/pawtrol-app/pawtrol-api/internal/notification"
	"github.com/pawtrol-app/pawtrol-api/internal/repository"
	"github.com/rs/zerolog"
)

// cityFanoutLimit caps a single city-wide alert dispatch
const cityFanoutLimit = 10000

// NotificationHandler is the inbound surface for alert/adoption workflows
// and for the user-visible notification history
type NotificationHandler struct {
	dispatcher *notification.Dispatcher
	tokens     *repository.TokenRepository
	history    *repository.HistoryRepository
	log        zerolog.Logger
}

func NewNotificationHandler(
	dispatcher *notification.Dispatcher,
	tokens *repository.TokenRepository,
	history *repository.HistoryRepository,
	logger zerolog.Logger,
) *NotificationHandler {
	return &NotificationHandler{
		dispatcher: dispatcher,
		tokens:     tokens,
		history:    history,
		log:        logger,
	}
}

// Dispatch godoc
// @Summary Dispatch a push notification to users or a city
// @Description accepted may be lower than targeted; preference filtering and token invalidation are normal
// @Tags Notifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.DispatchRequest true "Dispatch request"
// @Success 200 {object} model.DispatchResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /notifications/dispatch [post]
func (h *NotificationHandler) Dispatch(c *gin.Context) {
	var req model.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	if len(req.UserIDs) == 0 && req.CityID == nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Either user_ids or city_id is required"})
		return
	}

	payload := notification.Payload{
		Title:     req.Title,
		Body:      req.Body,
		Type:      req.Type,
		Data:      req.Data,
		Sound:     req.Sound,
		Priority:  req.Priority,
		Badge:     req.Badge,
		ChannelID: req.ChannelID,
	}
	category := notification.Category(req.Category)

	var (
		result *notification.DispatchResult
		err    error
	)
	if req.CityID != nil {
		rows, lookupErr := h.tokens.ValidTokensForCity(*req.CityID, cityFanoutLimit)
		if lookupErr != nil {
			c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to resolve city tokens"})
			return
		}
		result, err = h.dispatcher.SendToTokens(c.Request.Context(), payload, rows, category)
	} else {
		result, err = h.dispatcher.SendToUsers(c.Request.Context(), payload, req.UserIDs, category)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Dispatch failed", Message: err.Error()})
		return
	}

	// Best-effort history copy for each reached user; a failed write is
	// logged and never fails the dispatch.
	for _, userID := range result.AcceptedUserIDs() {
		rec := model.NotificationRecord{
			UserID: userID,
			Title:  req.Title,
			Body:   req.Body,
			Type:   req.Type,
			Data:   req.Data,
		}
		if histErr := h.history.Write(&rec); histErr != nil {
			h.log.Warn().Err(histErr).Str("user_id", userID.String()).Msg("history write failed")
		}
	}

	c.JSON(http.StatusOK, model.DispatchResponse{
		Targeted: result.Targeted,
		Accepted: result.Accepted,
	})
}

// ListNotifications godoc
// @Summary List the current user's notification history
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {array} model.NotificationRecord
// @Router /notifications [get]
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)
	var req model.NotificationListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	if req.Limit <= 0 || req.Limit > 200 {
		req.Limit = 50
	}

	records, err := h.history.ListForUser(userID, req.Limit, req.Offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to load notifications"})
		return
	}

	c.JSON(http.StatusOK, records)
}

// MarkNotificationRead godoc
// @Summary Mark one notification as read
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Param id path string true "Notification ID"
// @Success 200 {object} model.SuccessResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /notifications/{id}/read [post]
func (h *NotificationHandler) MarkNotificationRead(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid notification id"})
		return
	}

	found, err := h.history.MarkRead(userID, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to update notification"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, model.ErrorResponse{Error: "Notification not found"})
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Notification marked as read"})
}
