package listener

import (
	"context"
	"fmt"

	"mailflow/core/domain"
	"mailflow/core/port/out"
	"mailflow/pkg/logger"
)

// Dispatcher fans one event out to every subscribed listener,
// sequentially and in stable order. One listener's panic or error is
// contained: it is logged, surfaced to realtime subscribers, and the
// remaining listeners still run.
type Dispatcher struct {
	registry *Registry
	contexts *ContextFactory
	realtime out.RealtimePort
	log      *logger.Logger
}

func NewDispatcher(registry *Registry, contexts *ContextFactory, realtime out.RealtimePort, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		contexts: contexts,
		realtime: realtime,
		log:      log.WithComponent("dispatcher"),
	}
}

// CheckEvent delivers an event to every enabled listener subscribed to
// its kind.
func (d *Dispatcher) CheckEvent(ctx context.Context, event *domain.Event) {
	modules := d.registry.ModulesFor(event.Kind)
	if len(modules) == 0 {
		return
	}

	d.log.WithFields(map[string]any{
		"kind": string(event.Kind), "listeners": len(modules),
	}).Debug("dispatching event")

	for _, module := range modules {
		d.RunModule(ctx, module, event)
	}
}

// RunModule executes one listener against one event with panic and
// error containment.
func (d *Dispatcher) RunModule(ctx context.Context, module *Module, event *domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("listener %s panicked: %v", module.Config.ID, r)
			d.log.WithField("listener_id", module.Config.ID).Error(msg)
			d.realtime.PushError(msg)
		}
	}()

	lctx := d.contexts.New(module.Config)
	if err := module.Handle(ctx, event, lctx); err != nil {
		d.log.WithError(err).WithField("listener_id", module.Config.ID).Error("listener failed")
		d.realtime.PushError(err.Error())
	}
}
