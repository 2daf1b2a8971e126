package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/danmuck/emvtap/internal/observability"
)

const (
	serviceName     = "emvtap"
	version         = "0.1.0"
	shutdownTimeout = 5 * time.Second
)

// Server exposes metrics, health and the last cycle summary over HTTP.
type Server struct {
	addr     string
	appeared time.Time
	cycles   *CycleStore
	router   *gin.Engine
	log      zerolog.Logger
}

type Option func(*options)

type options struct {
	corsOrigins []string
}

// WithCORSOrigins allows browser GETs from origins. No origins leaves CORS
// disabled.
func WithCORSOrigins(origins ...string) Option {
	return func(o *options) {
		o.corsOrigins = append(o.corsOrigins, origins...)
	}
}

func New(addr string, cycles *CycleStore, logger zerolog.Logger, opts ...Option) *Server {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	s := &Server{
		addr:     addr,
		appeared: time.Now(),
		cycles:   cycles,
		router:   r,
		log:      logger.With().Str("component", "server").Logger(),
	}
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(s.log))
	r.Use(observability.RequestMetrics())
	if len(o.corsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: o.corsOrigins,
			AllowMethods: []string{http.MethodGet},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("http server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		s.log.Info().Msg("http server stopped")
		return nil
	}
}
