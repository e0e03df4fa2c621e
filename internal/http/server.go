package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/waifuvault/waifuvault-go/internal/app"
	"github.com/waifuvault/waifuvault-go/internal/config"
)

// Server is a local, in-memory WaifuVault service
type Server struct {
	container *app.Container
	config    *config.ServerConfig
	handler   *Handler
	store     *Store
	logger    *logrus.Logger
	router    *gin.Engine
	srv       *http.Server
}

// NewServer creates a new HTTP server
func NewServer(container *app.Container) (*Server, error) {
	cfg := container.Config

	retention, err := ParseExpiry(cfg.Server.DefaultRetention)
	if err != nil {
		return nil, fmt.Errorf("server.default_retention: %w", err)
	}

	// Set gin mode based on log level
	if cfg.Loglevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(container.Logger))

	store := NewStore(cfg.ServerURL(), retention)
	handler := NewHandler(store, &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}, container.Logger)

	router.Any("/rest/*path", handler.REST)
	router.GET("/f/*path", handler.Download)

	return &Server{
		container: container,
		config:    &cfg.Server,
		handler:   handler,
		store:     store,
		logger:    container.Logger,
		router:    router,
	}, nil
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("request")
	}
}

// Start starts the HTTP server with a background context.
func (s *Server) Start() error {
	return s.StartWithContext(context.Background())
}

// StartWithContext starts the HTTP server and shuts down gracefully when the context is canceled.
func (s *Server) StartWithContext(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.Port)
	s.logger.Infof("Starting WaifuVault server at http://%s/rest", addr)

	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// GetRouter returns the underlying gin router (useful for testing)
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Store returns the backing store.
func (s *Server) Store() *Store {
	return s.store
}
