package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-policy/internal/config"
	"github.com/danielpatrickdp/adaptive-policy/internal/escalation"
	"github.com/danielpatrickdp/adaptive-policy/internal/evaluator"
	"github.com/danielpatrickdp/adaptive-policy/internal/leads"
	"github.com/danielpatrickdp/adaptive-policy/internal/orchestrator"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
	"github.com/danielpatrickdp/adaptive-policy/internal/state"
)

// #region store

func openStore(cfg config.Config) (state.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverFile:
		return state.NewFileStore(cfg.Store.Path), nil
	case config.DriverSQLite:
		s, err := state.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// storeLocation names where memory lives, for CLI output.
func storeLocation(store state.Store, cfg config.Config) string {
	if fs, ok := store.(*state.FileStore); ok {
		return fs.Path()
	}
	return cfg.Store.Path
}

// #endregion store

// #region leads

func loadLeads(path string) ([]policy.Lead, error) {
	if path == "" {
		return leads.Demo(), nil
	}
	return leads.Load(path)
}

// #endregion leads

// #region evaluator

// buildEvaluator returns the primary scorer wrapped in the rule fallback, and a
// func that releases the primary's connection.
func buildEvaluator(ctx context.Context, cfg config.Config, logger *zap.Logger) (evaluator.Evaluator, func(), error) {
	noop := func() {}
	var primary evaluator.Evaluator
	closer := noop

	switch cfg.Evaluator.Backend {
	case config.BackendRule:
		primary = evaluator.NewRuleEvaluator()
	case config.BackendGRPC:
		j, err := evaluator.NewGRPCJudge(cfg.Evaluator.GRPCAddr)
		if err != nil {
			return nil, noop, fmt.Errorf("judge %s: %w", cfg.Evaluator.GRPCAddr, err)
		}
		primary = j
		closer = func() { _ = j.Close() }
	case config.BackendGemini:
		g, err := evaluator.NewGeminiJudge(ctx, cfg.Evaluator.GeminiAPIKey, cfg.Evaluator.GeminiModel)
		if err != nil {
			return nil, noop, err
		}
		primary = g
	default:
		return nil, noop, fmt.Errorf("unknown evaluator backend %q", cfg.Evaluator.Backend)
	}

	logger.Info("evaluator ready",
		zap.String("backend", cfg.Evaluator.Backend),
		zap.Duration("timeout", cfg.Evaluator.Timeout))
	return evaluator.NewFallbackEvaluator(primary, cfg.Evaluator.Timeout, logger), closer, nil
}

// #endregion evaluator

// #region dispatcher

func buildDispatcher(cfg config.Config, logger *zap.Logger) escalation.Dispatcher {
	if cfg.Voice.Provider == config.ProviderHTTP {
		return escalation.NewHTTPDispatcher(escalation.HTTPConfig{
			Endpoint:   cfg.Voice.Endpoint,
			APIKey:     cfg.Voice.APIKey,
			FromNumber: cfg.Voice.FromNumber,
			Timeout:    cfg.Voice.Timeout,
		})
	}
	return escalation.NewDryRunDispatcher(logger)
}

// #endregion dispatcher

// #region orchestrator

func orchestratorConfig(cfg config.Config) orchestrator.Config {
	return orchestrator.Config{
		Rounds:              cfg.Rounds,
		WarmupRounds:        cfg.WarmupRounds,
		MinEscalationRound:  cfg.MinEscalationRound,
		ConversionThreshold: cfg.Escalation.ConversionThreshold,
		ParallelCandidates:  cfg.ParallelCandidates,
		Exploration:         cfg.Exploration,
	}
}

func buildOrchestrator(ctx context.Context, cfg config.Config, logger *zap.Logger) (*orchestrator.Orchestrator, func(), error) {
	ev, closeEval, err := buildEvaluator(ctx, cfg, logger)
	if err != nil {
		return nil, closeEval, err
	}
	orch := orchestrator.New(orchestratorConfig(cfg), ev, buildDispatcher(cfg, logger),
		orchestrator.WithLogger(logger))
	return orch, closeEval, nil
}

// #endregion orchestrator
