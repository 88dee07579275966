package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/choraleia/threadwriter/pkg/db"
	"github.com/choraleia/threadwriter/pkg/event"
	"github.com/choraleia/threadwriter/pkg/handler"
	"github.com/choraleia/threadwriter/pkg/service"
	"github.com/choraleia/threadwriter/pkg/utils"
)

// Server is the HTTP API and WebSocket endpoint.
type Server struct {
	ginEngine *gin.Engine
	logger    *slog.Logger
	host      string
	port      int
}

// Services are the collaborators the routes are served by.
type Services struct {
	Documents *service.DocumentService
	Models    *service.ModelService
	Emitter   *event.Emitter
	Publisher event.Publisher
	Runs      *db.RunStore

	// PresetsFile is where provider presets are read from.
	PresetsFile string
}

func NewServer(host string, port int, svcs Services) *Server {
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())

	// CORS middleware: allow common localhost origins.
	ginEngine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			if strings.HasPrefix(origin, "http://localhost") ||
				strings.HasPrefix(origin, "http://127.0.0.1") ||
				strings.HasPrefix(origin, "https://localhost") ||
				strings.HasPrefix(origin, "https://127.0.0.1") {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
			} else {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	server := &Server{
		ginEngine: ginEngine,
		logger:    utils.GetLogger(),
		host:      host,
		port:      port,
	}
	server.SetupRoutes(svcs)
	return server
}

// Start listens and serves until ctx is done. It returns an error right away
// when the address cannot be bound.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	srv := &http.Server{Addr: addr, Handler: s.ginEngine}

	// Attempt to listen on port first; if occupied return error immediately
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	}
	s.logger.Info("Server listening", "addr", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	// Listen for context cancellation for graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	// Non-blocking: if startup fails immediately return error; otherwise return nil to let main continue
	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	default:
	}
	return nil
}

// Port returns the bound port.
func (s *Server) Port() int { return s.port }

func (s *Server) SetupRoutes(svcs Services) {
	s.ginEngine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Live change feed: document, receiving and prompt events
	s.ginEngine.GET("/ws/events", event.NewWSHandler(svcs.Emitter).Handle)

	apiGroup := s.ginEngine.Group("/api/v1")

	// Model configuration
	apiGroup.GET("/models", svcs.Models.GetModelList)
	apiGroup.GET("/models/available", svcs.Models.GetAvailableModels)
	apiGroup.POST("/models", svcs.Models.AddModel)
	apiGroup.PUT("/models/:id", svcs.Models.EditModel)
	apiGroup.DELETE("/models/:id", svcs.Models.DeleteModel)
	apiGroup.POST("/models/test", svcs.Models.TestModelConnection)
	apiGroup.GET("/models/provider-keys", svcs.Models.GetProviderApiKeys)
	handler.NewPresetsHandler(svcs.PresetsFile).RegisterRoutes(apiGroup)

	// Documents, threads and UI interactions
	handler.NewDocumentHandler(svcs.Documents, svcs.Models).RegisterRoutes(apiGroup)

	// Inbound stream events from external transports
	handler.NewStreamHandler(svcs.Publisher).WithRuns(svcs.Runs).RegisterRoutes(apiGroup)
}
