package relay

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper runs Cleanup on a fixed interval until its context is cancelled
type Sweeper struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a sweeper; it does nothing until Run is called
func NewSweeper(service *Service, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		service:  service,
		interval: interval,
		logger:   logger.With(slog.String("component", "relay-sweeper")),
	}
}

// Run blocks, sweeping every interval, and returns when ctx is done
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("sweeper disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", slog.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.service.Cleanup()
		}
	}
}
