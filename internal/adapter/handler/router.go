package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/johnquangdev/meeting-recorder/pkg/config"
)

// Router holds all handlers
type Router struct {
	cfg            *config.Config
	sessionHandler *Session
}

// NewRouter creates a new router with all handlers
func NewRouter(cfg *config.Config, sessionHandler *Session) *Router {
	return &Router{
		cfg:            cfg,
		sessionHandler: sessionHandler,
	}
}

// Setup configures all application routes
func (rt *Router) Setup(e *echo.Echo) {
	// Health check endpoint
	e.GET("/health", rt.healthCheck)

	// API v1 group
	v1 := e.Group("/v1")

	rt.setupSessionRoutes(v1)
	rt.setupRecordingRoutes(v1)
}

// setupSessionRoutes configures live session routes
func (rt *Router) setupSessionRoutes(g *echo.Group) {
	sessionGroup := g.Group("/sessions")

	if rt.sessionHandler != nil {
		sessionGroup.GET("", rt.sessionHandler.ListSessions)
		sessionGroup.POST("", rt.sessionHandler.StartSession)
		sessionGroup.GET("/:channel", rt.sessionHandler.GetSession)
		sessionGroup.DELETE("/:channel", rt.sessionHandler.StopSession)
	} else {
		sessionGroup.GET("", rt.notImplemented)
		sessionGroup.POST("", rt.notImplemented)
		sessionGroup.GET("/:channel", rt.notImplemented)
		sessionGroup.DELETE("/:channel", rt.notImplemented)
	}
}

// setupRecordingRoutes configures persisted recording routes
func (rt *Router) setupRecordingRoutes(g *echo.Group) {
	recordingGroup := g.Group("/recordings")

	if rt.sessionHandler != nil {
		recordingGroup.GET("", rt.sessionHandler.ListRecordings)
		recordingGroup.GET("/:id", rt.sessionHandler.GetRecording)
	} else {
		recordingGroup.GET("", rt.notImplemented)
		recordingGroup.GET("/:id", rt.notImplemented)
	}
}

// notImplemented returns 501 Not Implemented response
func (rt *Router) notImplemented(c echo.Context) error {
	return c.JSON(http.StatusNotImplemented, map[string]interface{}{
		"error":   "This endpoint is not yet implemented",
		"path":    c.Request().URL.Path,
		"method":  c.Request().Method,
		"message": "Please initialize the required handler in main.go",
	})
}

// healthCheck returns health status
func (rt *Router) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"environment": rt.cfg.Server.Environment,
	})
}
