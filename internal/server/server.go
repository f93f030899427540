// Package server exposes the listing endpoints and the health probes over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yuku/schemapool/internal/bootstrap"
	"github.com/yuku/schemapool/internal/connpool"
	"github.com/yuku/schemapool/internal/readiness"
	"github.com/yuku/schemapool/internal/repository"
	"go.uber.org/zap"
)

const welcome = "Welcome to schemapool, serving the user and address schemas."

// Lister is the read side of the service.
type Lister interface {
	ListUsers(ctx context.Context) ([]repository.User, error)
	ListAddresses(ctx context.Context) ([]repository.Address, error)
}

// Health reports readiness for the probes.
type Health interface {
	State() readiness.State
	Results() []bootstrap.Result
}

type schemaStatus struct {
	Schema string `json:"schema"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readyResponse struct {
	State   string         `json:"state"`
	Schemas []schemaStatus `json:"schemas"`
}

// NewRouter builds the gin engine. metrics may be nil.
func NewRouter(l Lister, h Health, metrics http.Handler, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, welcome)
	})
	r.GET("/users", func(c *gin.Context) {
		users, err := l.ListUsers(c.Request.Context())
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, users)
	})

	listAddresses := func(c *gin.Context) {
		addresses, err := l.ListAddresses(c.Request.Context())
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, addresses)
	}
	r.GET("/addresses", listAddresses)
	// Older clients know the address listing as /roles.
	r.GET("/roles", listAddresses)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		state := h.State()
		resp := readyResponse{State: state.String()}
		for _, res := range h.Results() {
			s := schemaStatus{Schema: res.Schema, Status: res.Status.String()}
			if res.Err != nil {
				s.Error = res.Err.Error()
			}
			resp.Schemas = append(resp.Schemas, s)
		}

		code := http.StatusOK
		if state != readiness.Ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, resp)
	})

	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}
	return r
}

func writeError(c *gin.Context, logger *zap.Logger, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, readiness.ErrNotReady) ||
		errors.Is(err, readiness.ErrDegraded) ||
		errors.Is(err, connpool.ErrPoolExhausted) ||
		errors.Is(err, connpool.ErrPoolClosed) {
		code = http.StatusServiceUnavailable
	}
	if code == http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

// Server runs the router until its context ends.
type Server struct {
	http   *http.Server
	logger *zap.Logger
}

// New returns a Server listening on addr.
func New(addr string, handler http.Handler, logger *zap.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}
