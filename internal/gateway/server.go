// Package gateway serves the REST and WebSocket API and hosts the
// message processing pipeline.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/aide/internal/auth"
	"github.com/haasonsaas/aide/internal/autonomy"
	"github.com/haasonsaas/aide/internal/behavior"
	"github.com/haasonsaas/aide/internal/config"
	"github.com/haasonsaas/aide/internal/dispatch"
	"github.com/haasonsaas/aide/internal/learning"
	"github.com/haasonsaas/aide/internal/storage"
)

// Server is the HTTP/WS gateway.
type Server struct {
	config     *config.Config
	engine     *behavior.Engine
	processor  *Processor
	learner    *learning.Service
	gate       *autonomy.Gate
	messages   storage.MessageStore
	dispatcher *dispatch.Dispatcher
	jwt        *auth.JWTService
	logger     *slog.Logger

	httpServer   *http.Server
	httpListener net.Listener
}

// ServerDeps wires a Server.
type ServerDeps struct {
	Config     *config.Config
	Engine     *behavior.Engine
	Processor  *Processor
	Learner    *learning.Service
	Gate       *autonomy.Gate
	Messages   storage.MessageStore
	Dispatcher *dispatch.Dispatcher
	JWT        *auth.JWTService
	Logger     *slog.Logger
}

// NewServer creates the gateway.
func NewServer(deps ServerDeps) *Server {
	s := &Server{
		config:     deps.Config,
		engine:     deps.Engine,
		processor:  deps.Processor,
		learner:    deps.Learner,
		gate:       deps.Gate,
		messages:   deps.Messages,
		dispatcher: deps.Dispatcher,
		jwt:        deps.JWT,
		logger:     deps.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Handler builds the full route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /auth/token", s.handleAuthToken)

	protected := http.NewServeMux()
	protected.HandleFunc("GET /behaviors", s.handleListBehaviors)
	protected.HandleFunc("POST /behaviors/{name}/trigger", s.handleTriggerBehavior)
	protected.HandleFunc("POST /behaviors/context", s.handleUpdateContext)
	protected.HandleFunc("POST /behaviors/simulate-event", s.handleSimulateEvent)
	protected.HandleFunc("POST /messages/process", s.handleProcessMessage)
	protected.HandleFunc("GET /messages", s.handleListMessages)
	protected.HandleFunc("GET /messages/{id}", s.handleGetMessage)
	protected.HandleFunc("POST /learning/feedback", s.handleSubmitFeedback)
	protected.HandleFunc("GET /learning/trends", s.handleTrends)
	protected.HandleFunc("GET /autonomy", s.handleGetAutonomy)
	protected.HandleFunc("PUT /autonomy/{platform}", s.handleSetAutonomy)
	protected.Handle("GET /ws", s.newWSHandler())

	mux.Handle("/", auth.Middleware(s.jwt, s.logger)(protected))
	return mux
}

// Start begins serving until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.HTTPPort)

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.httpServer = server
	s.httpListener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("gateway listening", "addr", addr)
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.httpServer = nil
	s.httpListener = nil
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
