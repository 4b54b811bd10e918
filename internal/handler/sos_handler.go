package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campus-nav-api/internal/dto"
	"campus-nav-api/internal/response"
	"campus-nav-api/internal/service"
)

type SOSHandler struct {
	sosService service.SOSService
	logger     *zap.Logger
}

func NewSOSHandler(sosService service.SOSService, logger *zap.Logger) *SOSHandler {
	return &SOSHandler{
		sosService: sosService,
		logger:     logger,
	}
}

// Enable activates an SOS session for the authenticated user
func (h *SOSHandler) Enable(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		response.SendError(c, http.StatusUnauthorized, response.ErrCodeUnauthorized, "Authentication required")
		return
	}

	var req dto.EnableSOSRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, "Invalid request body")
		return
	}

	resp, err := h.sosService.Enable(c.Request.Context(), userID, &req)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	response.SendSuccess(c, http.StatusCreated, resp)
}

// Disable cancels the authenticated user's SOS session
func (h *SOSHandler) Disable(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		response.SendError(c, http.StatusUnauthorized, response.ErrCodeUnauthorized, "Authentication required")
		return
	}

	if err := h.sosService.Disable(c.Request.Context(), userID); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	response.SendSuccess(c, http.StatusOK, gin.H{"isActive": false})
}

// GetMine returns the authenticated user's session. 404 means no active
// emergency, which drives the client's forced-navigation logic.
func (h *SOSHandler) GetMine(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		response.SendError(c, http.StatusUnauthorized, response.ErrCodeUnauthorized, "Authentication required")
		return
	}

	resp, err := h.sosService.Get(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	response.SendSuccess(c, http.StatusOK, resp)
}

// ListActive returns all open emergencies for the guard dashboard
func (h *SOSHandler) ListActive(c *gin.Context) {
	sessions, err := h.sosService.ListActive(c.Request.Context())
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	response.SendSuccess(c, http.StatusOK, sessions)
}

// GetAssigned returns the session assigned to the authenticated guard
func (h *SOSHandler) GetAssigned(c *gin.Context) {
	guardID := c.GetString("user_id")
	if guardID == "" {
		response.SendError(c, http.StatusUnauthorized, response.ErrCodeUnauthorized, "Authentication required")
		return
	}

	resp, err := h.sosService.GetAssignedTo(c.Request.Context(), guardID)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	response.SendSuccess(c, http.StatusOK, resp)
}
