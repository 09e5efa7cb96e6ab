package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SchedulerService runs periodic maintenance tasks on cron schedules.
type SchedulerService struct {
	cron    *cron.Cron
	logger  *zap.Logger
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSchedulerService builds a scheduler whose tasks are skipped while a previous run is still going.
func NewSchedulerService(logger *zap.Logger, timeout time.Duration) *SchedulerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	cl := cronLogger{logger: logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &SchedulerService{
		cron:    cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		logger:  logger,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds task under name. An empty spec leaves the task disabled.
func (s *SchedulerService) Register(name, spec string, task func(ctx context.Context) error) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		s.logger.Debug("scheduled task disabled", zap.String("task", name))
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()
		start := time.Now()
		if err := task(ctx); err != nil {
			s.logger.Error("scheduled task failed", zap.String("task", name), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
			return
		}
		s.logger.Info("scheduled task finished", zap.String("task", name), zap.Duration("elapsed", time.Since(start)))
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.logger.Info("scheduled task registered", zap.String("task", name), zap.String("spec", spec))
	return nil
}

// Entries reports how many tasks are registered.
func (s *SchedulerService) Entries() int {
	return len(s.cron.Entries())
}

// Start begins running registered tasks.
func (s *SchedulerService) Start() {
	s.cron.Start()
}

// Stop cancels running tasks and waits for them to return or ctx to expire.
func (s *SchedulerService) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

// cronLogger adapts zap to the cron.Logger interface.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
