package service

import (
	"context"
	"sync"
	"time"

	"ecotrace-api/pkg/logger"

	"github.com/rs/zerolog"
)

// Sweeper removes scan records whose backing instance is gone.
type Sweeper interface {
	SweepAll(ctx context.Context) (SweepReport, error)
}

// SweepConfig holds configuration for the sweep scheduler.
type SweepConfig struct {
	// Interval is how often the sweep runs.
	// Default: 1 hour
	Interval time.Duration

	// InitialDelay postpones the first run after Start.
	// Default: 1 minute
	InitialDelay time.Duration

	// RunTimeout bounds a single sweep.
	// Default: 5 minutes
	RunTimeout time.Duration
}

// SweepScheduler runs the verification sweep periodically.
type SweepScheduler struct {
	sweeper   Sweeper
	config    SweepConfig
	log       zerolog.Logger
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
}

// NewSweepScheduler creates a new sweep scheduler.
func NewSweepScheduler(sweeper Sweeper, config SweepConfig) *SweepScheduler {
	if config.Interval == 0 {
		config.Interval = time.Hour
	}
	if config.InitialDelay == 0 {
		config.InitialDelay = time.Minute
	}
	if config.RunTimeout == 0 {
		config.RunTimeout = 5 * time.Minute
	}

	return &SweepScheduler{
		sweeper: sweeper,
		config:  config,
		log:     logger.Component("SweepScheduler"),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the sweep scheduler.
func (s *SweepScheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	s.log.Info().Dur("interval", s.config.Interval).Msg("started")

	go func() {
		select {
		case <-time.After(s.config.InitialDelay):
			s.runSweep()
		case <-s.stopCh:
		}
	}()

	go s.run()
}

// run is the main sweep loop.
func (s *SweepScheduler) run() {
	for {
		select {
		case <-s.ticker.C:
			s.runSweep()
		case <-s.stopCh:
			s.log.Info().Msg("stopped")
			return
		}
	}
}

// runSweep performs one sweep and logs its outcome.
func (s *SweepScheduler) runSweep() {
	report, err := s.RunNow()
	if err != nil {
		s.log.Error().Err(err).Msg("sweep failed")
		return
	}

	if report.Removed > 0 || report.Failed > 0 {
		s.log.Info().Int("consumers", report.Consumers).Int("removed", report.Removed).Int("failed", report.Failed).Msg("sweep finished")
	} else {
		s.log.Debug().Int("consumers", report.Consumers).Msg("no orphaned scan records")
	}
}

// Stop stops the sweep scheduler.
func (s *SweepScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}

// RunNow triggers an immediate sweep.
func (s *SweepScheduler) RunNow() (SweepReport, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.RunTimeout)
	defer cancel()

	return s.sweeper.SweepAll(ctx)
}
