package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reaper expires sessions whose browser went away.
type Reaper struct {
	log     *zap.Logger
	manager *Manager
	idle    time.Duration
	every   time.Duration
}

func NewReaper(log *zap.Logger, manager *Manager, idle, every time.Duration) *Reaper {
	if every <= 0 {
		every = time.Minute
	}
	return &Reaper{
		log:     log,
		manager: manager,
		idle:    idle,
		every:   every,
	}
}

// Start runs the reaper in a goroutine until ctx is done.
func (r *Reaper) Start(ctx context.Context) {
	r.log.Info("Starting session reaper...", zap.Duration("idle_timeout", r.idle))
	go func() {
		ticker := time.NewTicker(r.every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.runSweep()
			}
		}
	}()
}

func (r *Reaper) runSweep() {
	now := r.manager.Now()
	r.log.Debug("Running session sweep", zap.Time("now", now))

	expired, removed := r.manager.Sweep(now, r.idle)
	if expired > 0 || removed > 0 {
		r.log.Info("Swept sessions",
			zap.Int("expired", expired),
			zap.Int("removed", removed),
			zap.Int("remaining", r.manager.Len()),
		)
	}
}
