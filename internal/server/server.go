// Package server exposes the policy loop over HTTP and runs it on a schedule.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-policy/internal/leads"
	"github.com/danielpatrickdp/adaptive-policy/internal/orchestrator"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
	"github.com/danielpatrickdp/adaptive-policy/internal/state"
)

// #region server

// LeadSource supplies the lead set when a run request carries none.
type LeadSource func() ([]policy.Lead, error)

// Server serializes runs over one store: at most one run is in flight.
type Server struct {
	echo   *echo.Echo
	orch   *orchestrator.Orchestrator
	store  state.Store
	leads  LeadSource
	logger *zap.Logger

	runMu sync.Mutex

	mu     sync.RWMutex
	latest *orchestrator.RunReport
}

// New wires the HTTP routes.
func New(orch *orchestrator.Orchestrator, store state.Store, source LeadSource, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:   e,
		orch:   orch,
		store:  store,
		leads:  source,
		logger: logger.Named("server"),
	}
	s.RegisterRoutes(e)
	return s
}

// RegisterRoutes adds the API routes to e.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", s.Health)
	e.GET("/v1/policy", s.GetPolicy)
	e.GET("/v1/history", s.GetHistory)
	e.POST("/v1/runs", s.CreateRun)
	e.GET("/v1/runs/latest", s.LatestRun)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("listening", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// #endregion server

// #region run

// RunOnce executes one full run. Concurrent callers wait their turn.
func (s *Server) RunOnce(ctx context.Context, batch []policy.Lead) (*orchestrator.RunReport, error) {
	if batch == nil {
		if s.leads == nil {
			return nil, errors.New("no leads supplied and no lead source configured")
		}
		var err error
		if batch, err = s.leads(); err != nil {
			return nil, err
		}
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	report, err := s.orch.Execute(ctx, s.store, batch)
	if err != nil {
		s.logger.Error("run failed", zap.Error(err))
		return nil, err
	}
	s.mu.Lock()
	s.latest = report
	s.mu.Unlock()
	return report, nil
}

// Latest returns the most recent successful run report, or nil.
func (s *Server) Latest() *orchestrator.RunReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// #endregion run

// #region handlers

// Health reports liveness and the orchestrator phase.
// GET /healthz
func (s *Server) Health(c echo.Context) error {
	phase, round := s.orch.Phase()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"phase":  phase,
		"round":  round,
	})
}

// GetPolicy returns the active policy memory without its history.
// GET /v1/policy
func (s *Server) GetPolicy(c echo.Context) error {
	mem, err := s.load(c)
	if err != nil || mem == nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs":            mem.Runs,
		"policy":          mem.Policy,
		"strategyStats":   mem.StrategyStats,
		"objectionPolicy": mem.ObjectionPolicy,
		"historySize":     len(mem.History),
	})
}

// GetHistory returns the newest history events, oldest first.
// GET /v1/history?limit=N
func (s *Server) GetHistory(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
		}
		limit = n
	}

	mem, err := s.load(c)
	if err != nil || mem == nil {
		return err
	}
	history := mem.History
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"total":  len(mem.History),
		"events": history,
	})
}

// RunRequest is the optional body of POST /v1/runs.
type RunRequest struct {
	Leads []leads.Record `json:"leads"`
}

// CreateRun executes a run synchronously and returns its report.
// POST /v1/runs
func (s *Server) CreateRun(c echo.Context) error {
	var req RunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	var batch []policy.Lead
	if len(req.Leads) > 0 {
		parsed, err := leads.ParseAll(req.Leads)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		batch = parsed
	}

	report, err := s.RunOnce(c.Request().Context(), batch)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, report)
}

// LatestRun returns the most recent report.
// GET /v1/runs/latest
func (s *Server) LatestRun(c echo.Context) error {
	r := s.Latest()
	if r == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no run yet"})
	}
	return c.JSON(http.StatusOK, r)
}

// load writes the error response itself and returns (nil, nil) when it did.
func (s *Server) load(c echo.Context) (*policy.Memory, error) {
	mem, err := s.store.Load(c.Request().Context())
	if errors.Is(err, state.ErrNoState) {
		return nil, c.JSON(http.StatusNotFound, map[string]string{"error": "no policy memory saved"})
	}
	if err != nil {
		s.logger.Error("load memory failed", zap.Error(err))
		return nil, c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load policy memory"})
	}
	return mem, nil
}

// #endregion handlers
