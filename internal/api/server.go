// Package api serves council sessions over HTTP: SSE and WebSocket streams
// for live runs, plus read endpoints for stored sessions, templates, and the
// provider catalog.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hivecouncil/hivecouncil/internal/council"
	"github.com/hivecouncil/hivecouncil/internal/observability"
	"github.com/hivecouncil/hivecouncil/internal/orchestrator"
	"github.com/hivecouncil/hivecouncil/internal/provider"
	"github.com/hivecouncil/hivecouncil/internal/session"
)

// Version is reported by /health.
var Version = "dev"

// Store is the persistence the API reads and writes. *session.Store implements it.
type Store interface {
	orchestrator.Store
	orchestrator.ResponseReader
	GetSession(ctx context.Context, id string) (*session.Session, error)
	ListSessions(ctx context.Context, limit int) ([]session.Summary, error)
	DeleteSession(ctx context.Context, id string) (bool, error)
	SaveTemplate(ctx context.Context, t *session.CouncilTemplate) error
	ListTemplates(ctx context.Context) ([]session.CouncilTemplate, error)
	DeleteTemplate(ctx context.Context, id string) (bool, error)
}

// Options configures a Server.
type Options struct {
	Store       Store
	Engine      *orchestrator.Orchestrator
	Providers   *provider.Registry
	Defaults    council.Defaults
	CORSOrigins []string
	Logger      zerolog.Logger
}

// Server is the HiveCouncil HTTP API.
type Server struct {
	store     Store
	engine    *orchestrator.Orchestrator
	providers *provider.Registry
	defaults  council.Defaults
	origins   []string
	logger    zerolog.Logger
	runs      *runTable
	started   time.Time

	router   *gin.Engine
	listener net.Listener
	server   *http.Server
	base     context.Context
	stopRuns context.CancelFunc
}

// NewServer builds the router. Call Listen and Start to serve.
func NewServer(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	observability.RegisterMetrics()

	s := &Server{
		store:     opts.Store,
		engine:    opts.Engine,
		providers: opts.Providers,
		defaults:  opts.Defaults,
		origins:   opts.CORSOrigins,
		logger:    opts.Logger,
		runs:      newRunTable(),
		started:   time.Now(),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(opts.Logger))
	r.Use(observability.RequestMetricsMiddleware())
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: opts.CORSOrigins,
			AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	if err := r.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
		opts.Logger.Warn().Err(err).Msg("set trusted proxies")
	}

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	g := r.Group("/api")
	g.POST("/session/create", s.handleCreateSession)
	g.POST("/session/resume", s.handleResumeSession)
	g.GET("/session/ws", s.handleSessionSocket)
	g.GET("/sessions", s.handleListSessions)
	g.GET("/runs", s.handleListRuns)
	g.GET("/session/:id", s.handleGetSession)
	g.GET("/session/:id/responses", s.handleGetResponses)
	g.DELETE("/session/:id", s.handleDeleteSession)

	g.GET("/archetypes", s.handleArchetypes)
	g.GET("/templates", s.handleTemplates)
	g.GET("/providers", s.handleProviders)
	g.GET("/council-templates", s.handleListCouncilTemplates)
	g.POST("/council-templates", s.handleSaveCouncilTemplate)
	g.DELETE("/council-templates/:id", s.handleDeleteCouncilTemplate)

	s.router = r
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen binds addr. An empty addr binds a random localhost port.
func (s *Server) Listen(addr string) error {
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: binding listener: %w", err)
	}
	s.listener = ln
	s.base, s.stopRuns = context.WithCancel(context.Background())
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.base },
	}
	return nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start serves until Stop is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	if s.listener == nil {
		return errors.New("api: Start called before Listen")
	}
	s.logger.Info().Str("addr", s.Addr()).Msg("api listening")
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts down gracefully. Streaming runs see their request context
// cancelled and pause their sessions before the connections drain.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.stopRuns()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"service":     "hivecouncil",
		"version":     Version,
		"uptime":      time.Since(s.started).Round(time.Second).String(),
		"providers":   s.providers.Names(),
		"active_runs": s.runs.count(),
	})
}

// abortError writes a JSON error body.
func abortError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
