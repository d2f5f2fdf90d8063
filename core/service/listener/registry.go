package listener

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mailflow/core/domain"
	"mailflow/pkg/apperr"
	"mailflow/pkg/logger"
)

// reloadDebounce coalesces editor write bursts into one reload.
const reloadDebounce = 250 * time.Millisecond

// Registry owns the set of compiled listener modules loaded from a
// directory of rule files. Reloads build a fresh module set and swap it
// in atomically; a file that fails to compile is reported but never
// disturbs the modules that loaded cleanly.
type Registry struct {
	dir string
	log *logger.Logger

	mu      sync.RWMutex
	modules map[string]*Module
	failed  map[string]string

	onChange func([]*domain.ListenerConfig)

	watchOnce sync.Once
	watcher   *fsnotify.Watcher
}

func NewRegistry(dir string, log *logger.Logger) *Registry {
	return &Registry{
		dir:     dir,
		log:     log.WithComponent("registry"),
		modules: make(map[string]*Module),
		failed:  make(map[string]string),
	}
}

// OnChange registers the callback invoked with the full listener view
// after every successful reload.
func (r *Registry) OnChange(fn func([]*domain.ListenerConfig)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// LoadAll scans the directory and swaps in the resulting module set.
func (r *Registry) LoadAll() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return apperr.ConfigError("listeners dir: " + err.Error())
	}

	modules := make(map[string]*Module)
	failed := make(map[string]string)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isRuleFile(name) {
			continue
		}
		path := filepath.Join(r.dir, name)

		data, err := os.ReadFile(path)
		if err != nil {
			failed[name] = err.Error()
			r.log.WithError(err).WithField("file", name).Warn("rule file unreadable")
			continue
		}

		module, err := compileRule(path, name, data)
		if err != nil {
			failed[name] = err.Error()
			r.log.WithError(err).WithField("file", name).Warn("rule file rejected")
			continue
		}

		if prev, dup := modules[module.Config.ID]; dup {
			failed[name] = "duplicate id, first loaded from " + prev.Config.Source
			r.log.WithField("file", name).WithField("id", module.Config.ID).Warn("duplicate listener id skipped")
			continue
		}
		modules[module.Config.ID] = module
	}

	r.mu.Lock()
	r.modules = modules
	r.failed = failed
	onChange := r.onChange
	r.mu.Unlock()

	r.log.WithFields(map[string]any{
		"loaded": len(modules), "failed": len(failed),
	}).Info("listener registry loaded")

	if onChange != nil {
		onChange(r.All())
	}
	return nil
}

func isRuleFile(name string) bool {
	// Dotfiles and underscore-prefixed drafts are not rules.
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Get returns the module with the given id.
func (r *Registry) Get(id string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[id]
	return m, ok
}

// ModulesFor returns the enabled modules subscribed to kind, ordered by
// id so dispatch order is stable.
func (r *Registry) ModulesFor(kind domain.EventKind) []*Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Module
	for _, m := range r.modules {
		if m.Config.Enabled && m.Config.Event == kind {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Config.ID < out[j].Config.ID })
	return out
}

// All returns every loaded listener's config, enabled or not.
func (r *Registry) All() []*domain.ListenerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.ListenerConfig, 0, len(r.modules))
	for _, m := range r.modules {
		cfg := m.Config
		out = append(out, &cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Source returns the raw text of the rule file behind a listener.
func (r *Registry) Source(id string) (string, error) {
	module, ok := r.Get(id)
	if !ok {
		return "", apperr.NotFound("listener")
	}
	data, err := os.ReadFile(module.Path)
	if err != nil {
		return "", apperr.Internal("rule file unreadable: " + err.Error())
	}
	return string(data), nil
}

// Stats summarizes the registry for the API.
func (r *Registry) Stats() *domain.RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &domain.RegistryStats{
		Total:   len(r.modules),
		ByEvent: make(map[string]int),
	}
	for _, m := range r.modules {
		if m.Config.Enabled {
			stats.Enabled++
		} else {
			stats.Disabled++
		}
		stats.ByEvent[string(m.Config.Event)]++
	}
	for name := range r.failed {
		stats.Failed = append(stats.Failed, name)
	}
	sort.Strings(stats.Failed)
	return stats
}

// Watch starts directory monitoring and reloads the registry when rule
// files change. Events are debounced so a save producing several
// notifications reloads once.
func (r *Registry) Watch(ctx context.Context) error {
	var startErr error
	r.watchOnce.Do(func() {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			startErr = err
			return
		}
		if err := watcher.Add(r.dir); err != nil {
			watcher.Close()
			startErr = err
			return
		}
		r.watcher = watcher
		go r.watchLoop(ctx)
		r.log.WithField("dir", r.dir).Info("listener hot reload active")
	})
	return startErr
}

func (r *Registry) watchLoop(ctx context.Context) {
	defer r.watcher.Close()

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if !isRuleFile(filepath.Base(event.Name)) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				timerCh = timer.C
			} else {
				timer.Reset(reloadDebounce)
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.log.WithError(err).Warn("listener watcher error")

		case <-timerCh:
			timer = nil
			timerCh = nil
			if err := r.LoadAll(); err != nil {
				r.log.WithError(err).Error("listener reload failed")
			}
		}
	}
}
