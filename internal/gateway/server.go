package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skirmish-net/skirmish/internal/config"
	"github.com/skirmish-net/skirmish/internal/rules"
	"github.com/skirmish-net/skirmish/internal/shared"
	"github.com/skirmish-net/skirmish/internal/storage"
	"go.uber.org/zap"
)

const purgeInterval = time.Hour

// Server runs the websocket gateway and its HTTP endpoints.
type Server struct {
	cfg        *config.ServerConfig
	logger     *zap.Logger
	hub        *Hub
	validator  *shared.Validator
	violations *storage.ViolationLog
	db         *sql.DB
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	addr       net.Addr

	httpShutdown func(ctx context.Context) error
}

func NewServer(cfg *config.ServerConfig, validator *shared.Validator, r *rules.Rules, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if r == nil {
		defaults := rules.Defaults()
		r = &defaults
	}
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(ctx, validator, HubOptions{
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		HeartbeatInterval: time.Duration(cfg.Server.HeartbeatIntervalSec) * time.Second,
		HeartbeatTimeout:  cfg.Server.HeartbeatTimeoutCount,
		MaxViolations:     cfg.Server.MaxViolations,
		MaxMessageBytes:   cfg.Server.MaxMessageBytes,
		ProtocolVersion:   cfg.Protocol.Version,
		SchemaVersion:     cfg.Protocol.SchemaVersion,
		MaxRadius:         r.Movement.MaxRadius,
	}, logger)
	hub.SetMetrics(InitMetrics())

	return &Server{
		cfg:       cfg,
		logger:    logger,
		hub:       hub,
		validator: hub.validator,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetStorage enables the violation audit and session log. Call before Start.
func (s *Server) SetStorage(store *storage.Storage) {
	if store == nil {
		return
	}
	s.db = store.DB()
	s.violations = storage.NewViolationLog(s.db, s.logger)
	s.hub.SetViolationLog(s.violations)
	s.hub.SetSessionLog(storage.NewSessionLog(s.db, s.logger))
}

// Handler serves the websocket endpoint plus /healthz, /readyz and /metrics.
func (s *Server) Handler() http.Handler {
	health := NewHealthChecker(s.db, s.hub, s.validator)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, health.CheckLiveness(r.Context()))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, health.CheckReadiness(r.Context()))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET "+s.cfg.Server.WSPath, s.hub.ServeWS)
	return mux
}

func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("server is already running")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Server.Port))
	if err != nil {
		s.logger.Error("failed to bind to port", zap.Error(err))
		return fmt.Errorf("failed to bind to port %d: %w", s.cfg.Server.Port, err)
	}
	s.addr = listener.Addr()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run()
	}()

	s.wg.Add(1)
	go s.maintenanceLoop()

	httpSrv := &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()
	s.httpShutdown = httpSrv.Shutdown
	s.running = true

	s.logger.Info("gateway started",
		zap.String("addr", s.addr.String()),
		zap.String("ws_path", s.cfg.Server.WSPath),
		zap.String("protocol_version", shared.FormatProtocolVersion(s.cfg.Protocol.Version)),
		zap.String("schema_version", s.cfg.Protocol.SchemaVersion),
		zap.Int("max_violations", s.cfg.Server.MaxViolations),
	)
	return nil
}

// Stop shuts the HTTP server down, closes every peer and waits for the
// background goroutines to exit.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	shutdown := s.httpShutdown
	s.mu.Unlock()

	s.logger.Info("gateway shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := shutdown(shutdownCtx); err != nil {
		s.logger.Error("http shutdown error", zap.Error(err))
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("gateway shutdown complete")
	case <-shutdownCtx.Done():
		s.logger.Warn("gateway shutdown timeout exceeded")
	}
	return nil
}

// maintenanceLoop purges violation rows past the retention window.
func (s *Server) maintenanceLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	s.purgeViolations()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.purgeViolations()
		}
	}
}

func (s *Server) purgeViolations() {
	if s.violations == nil {
		return
	}
	n, err := s.violations.PurgeOlderThan(s.cfg.Database.RetentionDays)
	if err != nil {
		s.logger.Warn("failed to purge violations", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("purged old violations",
			zap.Int64("rows", n),
			zap.Int("retention_days", s.cfg.Database.RetentionDays),
		)
	}
}

func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Addr is the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func writeHealth(w http.ResponseWriter, result HealthCheckResult) {
	w.Header().Set("Content-Type", "application/json")
	if result.Status == HealthHealthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(result)
}
