// Package admin exposes the session controller over a small local HTTP API.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/convoctl/internal/agent"
	"github.com/danmuck/convoctl/internal/auth"
	"github.com/danmuck/convoctl/internal/controlplane"
	"github.com/danmuck/convoctl/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Controller is the session surface driven by the API.
type Controller interface {
	Start(ctx context.Context)
	Stop(ctx context.Context)
	State() agent.State
}

// Lister reports sessions the remote side considers running.
type Lister interface {
	ListActive(ctx context.Context) (controlplane.Response, error)
}

type Config struct {
	Addr        string
	CorsOrigins []string
	Version     string
	// Lister enables GET /agents/running when set.
	Lister Lister
	// Auth guards the /agent and /agents routes when set.
	Auth            auth.Validator
	ShutdownTimeout time.Duration
	Logger          *zerolog.Logger
}

type Server struct {
	cfg     Config
	ctrl    Controller
	logger  zerolog.Logger
	router  *gin.Engine
	started time.Time

	// tracks Start/Stop calls detached from their requests
	inflight sync.WaitGroup
}

func NewServer(cfg Config, ctrl Controller) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	observability.RegisterMetrics()
	s := &Server{
		cfg:     cfg,
		ctrl:    ctrl,
		logger:  logger.With().Str("component", "admin").Logger(),
		started: time.Now(),
	}
	s.router = s.newRouter()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) newRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestID())
	r.Use(observability.RequestLogger(s.logger))
	r.Use(observability.RequestMetrics())
	if len(s.cfg.CorsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  s.cfg.CorsOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", observability.RequestIDHeader},
			ExposeHeaders: []string{observability.RequestIDHeader},
			MaxAge:        12 * time.Hour,
		}))
	}
	s.registerRoutes(r)
	return r
}

// Run serves until ctx is done, then drains in-flight requests and
// controller calls.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", strings.TrimSpace(s.cfg.Addr))
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("admin api listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn().Err(err).Msg("admin api shutdown")
	}
	s.Wait()
	s.logger.Info().Msg("admin api stopped")
	return nil
}

// Wait blocks until every accepted start/stop call has returned.
func (s *Server) Wait() {
	s.inflight.Wait()
}

func (s *Server) dispatch(ctx context.Context, op string, fn func(context.Context)) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.logger.Debug().Str("op", op).Msg("dispatching controller call")
		fn(ctx)
	}()
}
