// internal/matching/scheduler.go

package matching

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nexus-community/match-engine/internal/config"
)

// Scheduler runs the periodic maintenance jobs: warming the match cache
// for active listing owners and purging expired score rows.
type Scheduler struct {
	service Service
	cfg     *config.Config
	logger  *zap.Logger
	stop    chan struct{}
	done    chan struct{}
}

func NewScheduler(service Service, cfg *config.Config, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		service: service,
		cfg:     cfg,
		logger:  logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the maintenance loops. Call Stop to shut them down.
func (s *Scheduler) Start() {
	go s.run()
	s.logger.Info("matching scheduler started",
		zap.Bool("warmup_enabled", s.cfg.WarmupEnabled),
		zap.Duration("warmup_interval", s.cfg.WarmupInterval),
		zap.Duration("cleanup_interval", s.cfg.CleanupInterval))
}

// Stop signals the loops to exit and waits for the in-flight job to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
	s.logger.Info("matching scheduler stopped")
}

func (s *Scheduler) run() {
	defer close(s.done)

	warmup := time.NewTicker(s.cfg.WarmupInterval)
	defer warmup.Stop()
	cleanup := time.NewTicker(s.cfg.CleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-warmup.C:
			if s.cfg.WarmupEnabled {
				s.runWarmup()
			}
		case <-cleanup.C:
			s.runCleanup()
		}
	}
}

func (s *Scheduler) runWarmup() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WarmupInterval)
	defer cancel()

	processed, err := s.service.WarmCache(ctx, s.cfg.WarmupBatchSize)
	if err != nil {
		s.logger.Error("cache warmup run failed", zap.Error(err))
		return
	}
	s.logger.Info("cache warmup completed", zap.Int("users_processed", processed))
}

func (s *Scheduler) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := s.service.CleanupExpired(ctx)
	if err != nil {
		s.logger.Error("expired score cleanup failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Info("expired scores removed", zap.Int64("count", removed))
	}
}
