package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pawtrol-app/pawtrol-api/internal/model"
	"github.com/pawtrol-app/pawtrol-api/internal/repository"
)

// DeviceHandler handles push token registration and preferences
type DeviceHandler struct {
	tokens *repository.TokenRepository
}

func NewDeviceHandler(tokens *repository.TokenRepository) *DeviceHandler {
	return &DeviceHandler{tokens: tokens}
}

// RegisterDevice godoc
// @Summary Register a device push token
// @Description Idempotent upsert; re-registering an invalidated token heals it
// @Tags Devices
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.RegisterDeviceRequest true "Register device request"
// @Success 200 {object} model.SuccessResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /devices [post]
func (h *DeviceHandler) RegisterDevice(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)
	var req model.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	if err := h.tokens.Upsert(userID, req.Token, model.Platform(req.Platform), req.AppVersion, req.DeviceID); err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to register device"})
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Device registered successfully"})
}

// UnregisterDevice godoc
// @Summary Remove a device push token
// @Tags Devices
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.UnregisterDeviceRequest true "Unregister device request"
// @Success 200 {object} model.SuccessResponse
// @Router /devices [delete]
func (h *DeviceHandler) UnregisterDevice(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)
	var req model.UnregisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	removed, err := h.tokens.Delete(userID, req.Token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to unregister device"})
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Device unregistered", Data: gin.H{"removed": removed}})
}

// UpdatePreferences godoc
// @Summary Update per-token notification preferences
// @Tags Devices
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.UpdatePreferencesRequest true "Update preferences request"
// @Success 200 {object} model.SuccessResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /devices/preferences [put]
func (h *DeviceHandler) UpdatePreferences(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)
	var req model.UpdatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	prefs := req.Preferences
	found, err := h.tokens.UpdatePreferences(userID, req.Token, &prefs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to update preferences"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, model.ErrorResponse{Error: "Device not registered"})
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Preferences updated"})
}
