package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campus-nav-api/internal/response"
	"campus-nav-api/internal/service"
)

type PresenceHandler struct {
	presenceService *service.PresenceService
	logger          *zap.Logger
}

func NewPresenceHandler(presenceService *service.PresenceService, logger *zap.Logger) *PresenceHandler {
	return &PresenceHandler{
		presenceService: presenceService,
		logger:          logger,
	}
}

// GetTrackable returns the classified list of entities currently shown on
// the map. Clients use it to bootstrap before the realtime stream attaches.
func (h *PresenceHandler) GetTrackable(c *gin.Context) {
	entities := h.presenceService.GetTrackable(c.Request.Context())
	response.SendSuccess(c, http.StatusOK, entities)
}

// GetEntity returns one entity's raw presence record
func (h *PresenceHandler) GetEntity(c *gin.Context) {
	entityID := c.Param("entityId")
	if entityID == "" {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, "Entity id is required")
		return
	}

	rec, err := h.presenceService.GetEntity(c.Request.Context(), entityID)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	response.SendSuccess(c, http.StatusOK, rec)
}
