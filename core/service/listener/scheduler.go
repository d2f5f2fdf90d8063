package listener

import (
	"context"
	"sync"
	"time"

	"mailflow/core/domain"
	"mailflow/pkg/logger"
)

// schedulerTick bounds how late an interval can fire.
const schedulerTick = 30 * time.Second

// Scheduler fires scheduled_time listeners on their declared
// intervals. Each listener keeps its own clock; a freshly loaded
// listener waits one full interval before its first run.
type Scheduler struct {
	registry   *Registry
	dispatcher *Dispatcher
	log        *logger.Logger

	mu        sync.Mutex
	lastFired map[string]time.Time
}

func NewScheduler(registry *Registry, dispatcher *Dispatcher, log *logger.Logger) *Scheduler {
	return &Scheduler{
		registry:   registry,
		dispatcher: dispatcher,
		log:        log.WithComponent("scheduler"),
		lastFired:  make(map[string]time.Time),
	}
}

// Run blocks until ctx is done, firing due listeners on every tick.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(schedulerTick)
	defer ticker.Stop()

	s.log.Info("scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case now := <-ticker.C:
			s.fireDue(ctx, now)
		}
	}
}

func (s *Scheduler) fireDue(ctx context.Context, now time.Time) {
	for _, module := range s.registry.ModulesFor(domain.EventScheduledTime) {
		interval, err := time.ParseDuration(module.Config.Schedule)
		if err != nil || interval <= 0 {
			continue
		}

		s.mu.Lock()
		last, seen := s.lastFired[module.Config.ID]
		if !seen {
			// First sighting starts the interval instead of firing.
			s.lastFired[module.Config.ID] = now
			s.mu.Unlock()
			continue
		}
		due := now.Sub(last) >= interval
		if due {
			s.lastFired[module.Config.ID] = now
		}
		s.mu.Unlock()

		if due {
			s.log.WithField("listener_id", module.Config.ID).Debug("scheduled listener due")
			s.dispatcher.RunModule(ctx, module, domain.NewScheduledEvent())
		}
	}
}
