// Package transport adapts the execution supervisor's core operations to
// HTTP long-poll endpoints and a WebSocket request/response channel.
package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/kandev/scripthost/internal/apperrors"
	"github.com/kandev/scripthost/internal/execsvc"
	"github.com/kandev/scripthost/internal/logger"
)

// Server wires the gin router and WebSocket upgrader over one Supervisor
// and one script directory.
type Server struct {
	scriptDir string
	sup       *execsvc.Supervisor
	log       *logger.Logger

	router   *gin.Engine
	upgrader websocket.Upgrader
}

// NewServer builds a Server ready to be handed to http.Server.
func NewServer(scriptDir string, sup *execsvc.Supervisor, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		scriptDir: scriptDir,
		sup:       sup,
		log:       log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.setupRoutes()

	return s
}

// Router exposes the configured handler for use with an http.Server.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/scripts/", s.handleListScripts)
	s.router.POST("/scripts/:basename", s.handleStartScript)

	s.router.GET("/running/", s.handleListRunning)
	s.router.GET("/running/ws", s.handleWebSocket)
	s.router.GET("/running/:id", s.handleGetRunning)
	s.router.DELETE("/running/:id", s.handleDeleteRunning)
	s.router.GET("/running/:id/output", s.handleGetOutput)
	s.router.GET("/running/:id/progress", s.handleGetProgress)
	s.router.GET("/running/:id/status", s.handleGetStatus)
	s.router.GET("/running/:id/return_code", s.handleGetReturnCode)
	s.router.GET("/running/:id/end_time", s.handleGetEndTime)
	s.router.POST("/running/:id/kill", s.handleKill)
}

// writeError renders an apperrors.AppError (or wraps a plain error as an
// internal one) using the status/body conventions the handlers share.
func writeError(c *gin.Context, err error) {
	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		appErr = apperrors.Internal("internal error", err)
	}
	c.JSON(appErr.HTTPStatus, gin.H{"error": appErr.Message})
}
