package bootstrap

import (
	"context"
	"sync"

	"mailflow/pkg/logger"
)

// Engine is the background half of the process: listener registry with
// hot reload, IDLE monitoring that feeds incremental sync, and the
// interval scheduler.
type Engine struct {
	deps   *Dependencies
	log    *logger.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEngine(deps *Dependencies) *Engine {
	return &Engine{
		deps: deps,
		log:  logger.Default().WithComponent("engine"),
	}
}

// Start brings the engine up. Rule files load first so listeners see
// the mail that IDLE detects immediately after; a failed initial load
// is fatal, a failed rule file is not.
func (e *Engine) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	if err := e.deps.Registry.LoadAll(); err != nil {
		cancel()
		return err
	}
	if err := e.deps.Registry.Watch(ctx); err != nil {
		cancel()
		return err
	}

	stats := e.deps.Registry.Stats()
	e.log.WithFields(map[string]any{
		"listeners": stats.Total, "enabled": stats.Enabled, "failed": len(stats.Failed),
	}).Info("listener registry loaded")

	// Catch up on mail that arrived while the process was down before
	// push monitoring takes over.
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if _, err := e.deps.SyncService.SyncNew(ctx); err != nil {
			e.log.WithError(err).Warn("startup catch-up sync failed")
			e.deps.RealtimeAdapter.PushError("catch-up sync failed: " + err.Error())
		}
	}()

	// New mail pushes run an incremental sync; the sync service emits
	// the events that reach listeners.
	err := e.deps.Mailbox.StartIdle("INBOX", func(count uint32) {
		if _, err := e.deps.SyncService.SyncRecent(ctx, count); err != nil {
			e.log.WithError(err).Error("incremental sync failed")
			e.deps.RealtimeAdapter.PushError("incremental sync failed: " + err.Error())
		}
	})
	if err != nil {
		e.log.WithError(err).Warn("IDLE not started, engine runs without push monitoring")
	}

	if e.deps.Config.SchedulerEnabled {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.deps.Scheduler.Run(ctx)
		}()
	}

	e.log.Info("engine started")
	return nil
}

// Stop shuts the engine down and waits for background work to finish.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.deps.Mailbox.StopIdle()
	e.wg.Wait()
	e.log.Info("engine stopped")
}
