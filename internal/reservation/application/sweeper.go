package application

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper expires overdue holds on a fixed interval. This is the
// backpressure valve: abandoned checkouts give their units back without
// waiting for an explicit cancel.
type Sweeper struct {
	log      *slog.Logger
	svc      *Service
	interval time.Duration
}

func NewSweeper(log *slog.Logger, svc *Service, interval time.Duration) *Sweeper {
	return &Sweeper{log: log, svc: svc, interval: interval}
}

func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.log.Info("sweeper started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-t.C:
			ids, err := s.svc.ExpireOverdue(ctx)
			if err != nil {
				s.log.Error("sweep failed", "err", err)
				continue
			}
			if len(ids) > 0 {
				s.log.Info("sweep released expired holds", "count", len(ids))
			}
		}
	}
}
