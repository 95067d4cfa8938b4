package service

import (
	"time"

	"github.com/okian/globalboard/internal/domain/aggregate"
	"github.com/okian/globalboard/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets how many runs are normalized concurrently.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets how many normalization tasks may wait for a worker.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithSubmitBackoff sets the wait before re-submitting a task the queue refused.
func WithSubmitBackoff(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.submitBackoff = d
		}
	}
}

// WithMinUpdateInterval sets how long a stored player is protected from re-scoring.
func WithMinUpdateInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.minUpdateInterval = d
		}
	}
}

// WithUpdateLock sets the window of the in-flight guard.
func WithUpdateLock(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.updateLock = d
		}
	}
}

// WithBypassRestrictions disables the update interval and the in-flight guard.
func WithBypassRestrictions(bypass bool) Option {
	return func(s *Service) {
		s.bypass = bypass
	}
}

// WithMaxRunsPerPlayer refuses players with more personal bests than n. 0 means unlimited.
func WithMaxRunsPerPlayer(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxRuns = n
		}
	}
}

// WithAggregator replaces the aggregator used to turn runs into a score.
func WithAggregator(a *aggregate.Aggregator) Option {
	return func(s *Service) {
		if a != nil {
			s.aggregator = a
		}
	}
}

// WithClock sets the time source used for update timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
