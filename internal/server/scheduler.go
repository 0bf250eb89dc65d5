package server

import (
	"context"
	"fmt"
	"sync"

	rcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler fires the policy loop on a cron expression. Standard five-field
// expressions and descriptors such as "@every 30m" are accepted.
type Scheduler struct {
	cron   *rcron.Cron
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewScheduler registers job under a cron expression. Overlapping fires are skipped.
func NewScheduler(spec string, job func(ctx context.Context) error, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   rcron.New(rcron.WithChain(rcron.SkipIfStillRunning(rcron.DiscardLogger))),
		logger: logger.Named("cron"),
		ctx:    ctx,
		cancel: cancel,
	}
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Info("scheduled run start", zap.String("spec", spec))
		if err := job(s.ctx); err != nil {
			s.logger.Error("scheduled run failed", zap.Error(err))
			return
		}
		s.logger.Info("scheduled run done")
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins firing in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels any running job and waits for it to return.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		s.cancel()
		<-s.cron.Stop().Done()
	})
}

// Schedule runs s.RunOnce with the configured lead source on expr.
func (s *Server) Schedule(expr string) (*Scheduler, error) {
	return NewScheduler(expr, func(ctx context.Context) error {
		_, err := s.RunOnce(ctx, nil)
		return err
	}, s.logger)
}
