package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vitos/pivot_alert_bot/internal/domain"
	"github.com/vitos/pivot_alert_bot/internal/usecase"
	"go.uber.org/zap"
)

type Server struct {
	router  *http.ServeMux
	server  *http.Server
	repo    domain.AlertRepository
	monitor *usecase.Monitor
	logger  *zap.Logger
}

func NewServer(
	port int,
	repo domain.AlertRepository,
	monitor *usecase.Monitor,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:  http.NewServeMux(),
		repo:    repo,
		monitor: monitor,
		logger:  logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Health
	s.router.HandleFunc("GET /healthz", s.handleHealth)

	// Monitor snapshot
	s.router.HandleFunc("GET /status", s.handleStatus)

	// Recent alerts
	s.router.HandleFunc("GET /api/alerts", s.handleAlerts)
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
