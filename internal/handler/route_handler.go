package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campus-nav-api/internal/client"
	"campus-nav-api/internal/dto"
)

// RouteHandler proxies route and distance requests to the external
// routing provider. The request/response shapes are a fixed contract with
// map clients, so errors use a bare {error, details} body rather than the
// service envelope: 400 for malformed coordinates, 500 for upstream or
// configuration failures.
type RouteHandler struct {
	routing client.RoutingClient
	logger  *zap.Logger
}

func NewRouteHandler(routing client.RoutingClient, logger *zap.Logger) *RouteHandler {
	return &RouteHandler{
		routing: routing,
		logger:  logger,
	}
}

// Directions returns {routes:[{geometry, distance, duration}]} from the
// provider, passed through unchanged
func (h *RouteHandler) Directions(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	routes, err := h.routing.Directions(c.Request.Context(), req.Start.LatLng(), req.End.LatLng(), req.WaypointLatLngs())
	if err != nil {
		h.logger.Error("Directions request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to fetch route",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"routes": routes})
}

// Distance returns the routed distance in meters between start and end
func (h *RouteHandler) Distance(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	distance, err := h.routing.Distance(c.Request.Context(), req.Start.LatLng(), req.End.LatLng())
	if err != nil {
		h.logger.Error("Distance request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to fetch distance",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"distance": distance})
}

func (h *RouteHandler) bind(c *gin.Context) (*dto.RouteRequest, bool) {
	if h.routing == nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "routing provider not configured",
		})
		return nil, false
	}

	var req dto.RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return nil, false
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid coordinates",
			"details": err.Error(),
		})
		return nil, false
	}
	return &req, true
}
