package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"event-companion-sync/internal/config"
	"event-companion-sync/internal/infra/api"
	"event-companion-sync/internal/infra/api/apiv1"
	red "event-companion-sync/internal/infra/redis"
	"event-companion-sync/internal/usecase"
)

// HealthCheck reports whether one backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	cfg       *config.Config
	syncUC    usecase.SyncUseCase
	limiter   api.Limiter
	trigger   apiv1.Trigger
	schedules apiv1.ScheduleLister
	checks    map[string]HealthCheck
	log       *zerolog.Logger
	server    *http.Server
}

func NewServer(cfg *config.Config, syncUC usecase.SyncUseCase, logger *zerolog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		syncUC: syncUC,
		checks: map[string]HealthCheck{},
		log:    logger,
	}
}

// WithLimiter enables the per-client write limit from http.write_rate_limit.
func (s *Server) WithLimiter(l api.Limiter) *Server {
	s.limiter = l
	return s
}

// WithRunner exposes manual sync runs and the cron table.
func (s *Server) WithRunner(t apiv1.Trigger, l apiv1.ScheduleLister) *Server {
	s.trigger = t
	s.schedules = l
	return s
}

func (s *Server) WithHealthCheck(name string, fn HealthCheck) *Server {
	s.checks[name] = fn
	return s
}

// Handler builds the full route tree. Exposed for tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		api.TraceID(),
		api.Recover(s.log),
		api.RequestLog(s.log),
		api.Timeout(s.cfg.HTTP.RequestTimeout),
		api.WriteRateLimit(s.limiter, s.cfg.HTTP.WriteRateLimit, red.WriteKey, s.log),
	)
	r.Get("/health", s.handleHealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	v1 := apiv1.NewServer(s.syncUC, s.cfg.Sync.DefaultMaxRetries, s.log)
	if s.trigger != nil {
		v1.WithTrigger(s.trigger)
	}
	if s.schedules != nil {
		v1.WithSchedules(s.schedules)
	}
	apiv1.RegisterAPIV1(r, v1)
	return r
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.HTTP.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info().Int("port", s.cfg.HTTP.Port).Msg("sync API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var failing []string
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.log.Warn().Err(err).Str("dependency", name).Msg("health check failed")
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		sort.Strings(failing)
		api.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "failing": failing})
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
