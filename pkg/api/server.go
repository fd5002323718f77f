package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/aisu-run/aisu-core/pkg/auth"
	"github.com/aisu-run/aisu-core/pkg/beta"
	"github.com/aisu-run/aisu-core/pkg/config"
	"github.com/aisu-run/aisu-core/pkg/fsservice"
	"github.com/aisu-run/aisu-core/pkg/log"
	"github.com/aisu-run/aisu-core/pkg/manager"
	"github.com/aisu-run/aisu-core/pkg/metrics"
	"github.com/aisu-run/aisu-core/pkg/ratelimit"
	"github.com/aisu-run/aisu-core/pkg/runtime"
)

// Server is the HTTP API server
type Server struct {
	cfg     *config.Config
	auth    *auth.Service
	beta    *beta.Service
	manager *manager.Manager
	fs      *fsservice.Service
	rt      runtime.Runtime
	limiter ratelimit.Limiter

	router *mux.Router
	http   *http.Server
	logger zerolog.Logger
}

// NewServer wires the API surface
func NewServer(
	cfg *config.Config,
	authSvc *auth.Service,
	betaSvc *beta.Service,
	mgr *manager.Manager,
	fs *fsservice.Service,
	rt runtime.Runtime,
	limiter ratelimit.Limiter,
) *Server {
	s := &Server{
		cfg:     cfg,
		auth:    authSvc,
		beta:    betaSvc,
		manager: mgr,
		fs:      fs,
		rt:      rt,
		limiter: limiter,
		router:  mux.NewRouter(),
		logger:  log.WithComponent("api"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.observe)

	// operational endpoints live outside the versioned API
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/health", metrics.HealthHandler()).Methods(http.MethodGet)
	s.router.HandleFunc("/readiness", metrics.ReadyHandler()).Methods(http.MethodGet)
	s.router.HandleFunc("/liveness", metrics.LivenessHandler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.Handle("/auth/register",
		s.rateLimited("register", s.cfg.RateLimit.RegisterLimit, http.HandlerFunc(s.handleRegister))).
		Methods(http.MethodPost)
	api.Handle("/auth/login",
		s.rateLimited("login", s.cfg.RateLimit.LoginLimit, http.HandlerFunc(s.handleLogin))).
		Methods(http.MethodPost)
	api.Handle("/auth/username-info",
		s.rateLimited("username-info", s.cfg.RateLimit.UsernameInfoLimit, http.HandlerFunc(s.handleUsernameInfo))).
		Methods(http.MethodGet)
	api.Handle("/auth/me", s.authenticated(s.handleMe)).Methods(http.MethodGet)

	api.Handle("/container/status", s.authenticated(s.handleContainerStatus)).Methods(http.MethodGet)
	api.Handle("/container/start", s.authenticated(s.handleContainerStart)).Methods(http.MethodPost)
	api.Handle("/container/stop", s.authenticated(s.handleContainerStop)).Methods(http.MethodPost)
	api.Handle("/container/restart", s.authenticated(s.handleContainerRestart)).Methods(http.MethodPost)
	api.Handle("/container/events", s.authenticated(s.handleContainerEvents)).Methods(http.MethodGet)
	api.Handle("/container/events/stream", s.authenticated(s.handleContainerEventStream)).Methods(http.MethodGet)

	api.Handle("/fs/tree", s.authenticated(s.handleGetTree)).Methods(http.MethodGet)
	api.Handle("/fs/node", s.authenticated(s.handleGetNode)).Methods(http.MethodGet)
	api.Handle("/fs/node", s.authenticated(s.handleCreateNode)).Methods(http.MethodPost)
	api.Handle("/fs/ls", s.authenticated(s.handleListDirectory)).Methods(http.MethodGet)
	api.Handle("/fs/rename", s.authenticated(s.handleRename)).Methods(http.MethodPatch)
	api.Handle("/fs/move", s.authenticated(s.handleMove)).Methods(http.MethodPost)
	api.Handle("/fs/copy", s.authenticated(s.handleCopy)).Methods(http.MethodPost)
	api.Handle("/fs/delete", s.authenticated(s.handleDelete)).Methods(http.MethodPost)
	api.Handle("/fs/bulk-delete", s.authenticated(s.handleBulkDelete)).Methods(http.MethodPost)
	api.Handle("/fs/bulk-move", s.authenticated(s.handleBulkMove)).Methods(http.MethodPost)
	api.Handle("/fs/trash", s.authenticated(s.handleListTrash)).Methods(http.MethodGet)
	api.Handle("/fs/restore", s.authenticated(s.handleRestore)).Methods(http.MethodPost)
	api.Handle("/fs/empty-trash", s.authenticated(s.handleEmptyTrash)).Methods(http.MethodPost)
	api.Handle("/fs/desktop-positions", s.authenticated(s.handleDesktopPositions)).Methods(http.MethodPatch)
	api.Handle("/fs/search", s.authenticated(s.handleSearch)).Methods(http.MethodGet)
	api.Handle("/fs/file", s.authenticated(s.handleReadFile)).Methods(http.MethodGet)
	api.Handle("/fs/file", s.authenticated(s.handleWriteFile)).Methods(http.MethodPut)

	api.Handle("/ws/terminal", s.terminalHandler()).Methods(http.MethodGet)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until the listener fails or Stop is called
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("API listening")
	metrics.RegisterComponent("api", true, "listening")

	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop drains in-flight requests and shuts the listener down
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
