package apiserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/doorman/doorman/pkg/apiserver/handlers"
	"github.com/doorman/doorman/pkg/apiserver/middleware"
	"github.com/doorman/doorman/pkg/auth"
)

type Server struct {
	router   *gin.Engine
	history  handlers.SessionHistory
	progress handlers.ProgressReader
	events   handlers.EventSource
	tokens   *auth.TokenManager
	logger   *zap.Logger
}

// Any backend may be left nil; its routes then answer 503.
type Backends struct {
	History  handlers.SessionHistory
	Progress handlers.ProgressReader
	Events   handlers.EventSource
}

func NewServer(backends Backends, tokens *auth.TokenManager, logger *zap.Logger) *Server {
	s := &Server{
		history:  backends.History,
		progress: backends.Progress,
		events:   backends.Events,
		tokens:   tokens,
		logger:   logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		api.Use(middleware.Auth(s.tokens))

		sessionHandler := handlers.NewSessionHandler(s.history, s.progress, s.logger)
		api.GET("/sessions", middleware.RequireScope(auth.ScopeSessionsRead), sessionHandler.List)
		api.GET("/sessions/live", middleware.RequireScope(auth.ScopeProgressRead), sessionHandler.Live)
		api.GET("/sessions/:id", middleware.RequireScope(auth.ScopeSessionsRead), sessionHandler.Get)
		api.GET("/sessions/:id/progress", middleware.RequireScope(auth.ScopeProgressRead), sessionHandler.Progress)

		streamHandler := handlers.NewStreamHandler(s.events, s.logger)
		api.GET("/events", middleware.RequireScope(auth.ScopeProgressRead), streamHandler.Events)
	}

	s.router = r
}

func (s *Server) Router() *gin.Engine {
	return s.router
}
