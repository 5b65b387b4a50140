// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "fastbus-service/docs"
	"fastbus-service/internal/config"
	"fastbus-service/internal/discovery"
	"fastbus-service/internal/fast"
	"fastbus-service/internal/handler"
	"fastbus-service/internal/metrics"
	"fastbus-service/internal/middleware"
	"fastbus-service/internal/utils"
	"fastbus-service/internal/variables"
)

// Router holds all dependencies for routing
type Router struct {
	config    *config.Config
	logger    *zap.Logger
	platform  *fast.Platform
	variables *variables.Store
	metrics   *metrics.Registry
	websocket *handler.WebSocketHandler
}

// NewRouter creates a new router instance
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	platform *fast.Platform,
	store *variables.Store,
	registry *metrics.Registry,
	websocket *handler.WebSocketHandler,
) *Router {
	return &Router{
		config:    config,
		logger:    logger,
		platform:  platform,
		variables: store,
		metrics:   registry,
		websocket: websocket,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)
	r.addDocumentationRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger, "/metrics", "/ws/", "/swagger/"))

	router.Use(middleware.CORSMiddleware(&r.config.Server))

	r.logger.Debug("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.platform, r.config, r.logger)
	fastHandler := handler.NewFastHandler(r.platform, r.variables, r.logger)
	discoveryHandler := handler.NewDiscoveryHandler(r.newScannerManager(), r.logger)

	// Health check routes
	healthHandler.RegisterRoutes(router.Group(""))

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	fastHandler.RegisterRoutes(apiV1)
	discoveryHandler.RegisterRoutes(apiV1)
	apiV1.GET("/websocket/stats", func(c *gin.Context) {
		utils.SuccessResponse(c, http.StatusOK, "WebSocket statistics", r.websocket.GetConnectionStats())
	})

	// WebSocket routes
	r.websocket.RegisterRoutes(router.Group("/ws"))

	// Prometheus
	if r.metrics != nil {
		router.GET("/metrics", gin.WrapH(r.metrics.Handler()))
	}

	r.logger.Debug("All routes configured successfully")
}

// addDocumentationRoutes sets up documentation routes
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}

func (r *Router) newScannerManager() *discovery.ScannerManager {
	configured := make(map[string]string)
	if r.config.Fast.Net.Enabled() {
		configured[r.config.Fast.Net.Port] = "NET"
	}
	if r.config.Fast.Exp.Enabled() {
		configured[r.config.Fast.Exp.Port] = "EXP"
	}

	manager := discovery.NewScannerManager(configured, r.logger)
	manager.RegisterScanner(discovery.NewSerialScanner(r.logger))
	return manager
}
