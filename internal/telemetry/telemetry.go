// Package telemetry builds the zap logger and the minimal gin status
// server both daemons expose, repurposing the teacher's
// server-go/internal/cloud/handlers.HealthCheck pattern (gin.H status
// payloads over a dedicated mux) as a process-supervision surface
// rather than a public dashboard.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewLogger builds the process logger: JSON in production-like
// environments, console-friendly in development. Both share the same
// field conventions the core uses everywhere (zap.String, zap.Int --
// never Sprintf on a per-metric path).
func NewLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// StatusProvider is implemented by whatever the status server is
// reporting on (the worker pool or the manager), kept decoupled from
// gin so neither internal/ensemble nor internal/manager needs to
// import it.
type StatusProvider interface {
	Status() gin.H
}

// Server is the shared /healthz + /status admin surface for both
// cmd/analyzer and cmd/metrics-manager.
type Server struct {
	httpServer *http.Server
}

// NewServer wires a gin engine in release mode with the two routes
// and binds it to addr without starting it.
func NewServer(addr string, provider StatusProvider, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	engine.GET("/status", func(c *gin.Context) {
		body := gin.H{"time": time.Now().UTC().Format(time.RFC3339)}
		if provider != nil {
			for k, v := range provider.Status() {
				body[k] = v
			}
		}
		c.JSON(http.StatusOK, body)
	})

	return &Server{httpServer: &http.Server{Addr: addr, Handler: engine}}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry: status server shutdown error", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		return err
	}
}
