package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"campus-nav-api/internal/client"
	"campus-nav-api/internal/config"
	"campus-nav-api/internal/guard"
	"campus-nav-api/internal/handler"
	"campus-nav-api/internal/metrics"
	"campus-nav-api/internal/middleware"
	"campus-nav-api/internal/presence"
	"campus-nav-api/internal/repository"
	"campus-nav-api/internal/service"
	"campus-nav-api/internal/store"
	"campus-nav-api/internal/ws"
)

func Setup(
	cfg *config.Config,
	db *gorm.DB,
	redisClient *redis.Client,
	presenceStore store.PresenceStore,
	tracker *presence.Tracker,
	m *metrics.Metrics,
	logger *zap.Logger,
) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(middleware.ParseOrigins(cfg.Server.CORSOrigins)))
	r.Use(middleware.Metrics(m))

	// Initialize clients
	var routingClient client.RoutingClient
	if cfg.Routing.BaseURL != "" {
		routingClient = client.NewRoutingClient(
			cfg.Routing.BaseURL, cfg.Routing.APIKey, cfg.Routing.Profile,
			cfg.Routing.Timeout, m)
	}
	roleClient := client.NewRoleClient(cfg.Services.UserServiceURL, cfg.Routing.Timeout)

	// Initialize repositories and services
	sosRepo := repository.NewSOSRepository(db)
	selector := guard.NewSelector(presenceStore, roleClient, routingClient, logger, guard.SelectorConfig{
		ActiveWindow: cfg.Presence.ActiveWindow,
		Metrics:      m,
	})
	sosService := service.NewSOSService(sosRepo, presenceStore, selector, m, logger)
	presenceService := service.NewPresenceService(presenceStore, tracker, m, logger)

	// Initialize validator
	validator := middleware.NewAuthServiceValidator(cfg.Auth.ServiceURL, cfg.Auth.SecretKey, logger)

	// Initialize WebSocket hub
	wsHub := ws.NewHub(presenceStore, tracker, validator, presence.PublisherConfig{
		HeartbeatInterval: cfg.Presence.HeartbeatInterval,
		WriteThrottle:     cfg.Presence.WriteThrottle,
	}, m, logger)

	// Initialize handlers
	sosHandler := handler.NewSOSHandler(sosService, logger)
	presenceHandler := handler.NewPresenceHandler(presenceService, logger)
	routeHandler := handler.NewRouteHandler(routingClient, logger)
	healthHandler := handler.NewHealthHandler(db, redisClient)

	// Health endpoints (no auth)
	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes with base path
	api := r.Group(cfg.Server.BasePath)
	{
		// Health under base path
		api.GET("/health", healthHandler.Health)
		api.GET("/ready", healthHandler.Ready)

		// WebSocket endpoint (token via query param)
		api.GET("/ws/presence", wsHub.HandlePresence)

		// Route proxy (no auth, mirrors the public map surface)
		api.POST("/routes/directions", routeHandler.Directions)
		api.POST("/routes/distance", routeHandler.Distance)

		// Authenticated routes
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(validator))
		{
			// SOS routes
			authenticated.POST("/sos", sosHandler.Enable)
			authenticated.DELETE("/sos", sosHandler.Disable)
			authenticated.GET("/sos/my", sosHandler.GetMine)
			authenticated.GET("/sos/active", sosHandler.ListActive)
			authenticated.GET("/sos/assigned", sosHandler.GetAssigned)

			// Presence routes
			authenticated.GET("/presence/trackable", presenceHandler.GetTrackable)
			authenticated.GET("/presence/:entityId", presenceHandler.GetEntity)
		}
	}

	return r
}
