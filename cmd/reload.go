package cmd

import (
	"context"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"

	"grimm.is/fwplan/internal/api"
	"grimm.is/fwplan/internal/config"
	"grimm.is/fwplan/internal/events"
	"grimm.is/fwplan/internal/logging"
	"grimm.is/fwplan/internal/metrics"
	"grimm.is/fwplan/internal/notification"
	"grimm.is/fwplan/internal/plan"
	"grimm.is/fwplan/internal/vyos"
)

// reloader re-reads the configuration file and swaps the API planner and
// notification channels.
// Router blocks are fixed at startup; a changed router list only logs a
// warning until the next restart.
type reloader struct {
	path     string
	routers  []string
	server   *api.Server
	notifier *notification.Dispatcher // optional
	hub      *events.Hub
	metrics  *metrics.Registry
	logger   *logging.Logger
}

func (r *reloader) reload() error {
	cfg, err := config.LoadFile(r.path)
	var p *plan.Planner
	if err == nil {
		p, err = plan.New(cfg, vyos.Platform, r.logger)
	}
	r.metrics.RecordConfigReload(err)
	if err != nil {
		r.logger.Error("configuration reload failed, keeping previous configuration", "path", r.path, "error", err)
		return err
	}

	if !slices.Equal(cfg.RouterNames(), r.routers) {
		r.logger.Warn("router list changed, restart to apply", "configured", cfg.RouterNames(), "running", r.routers)
	}
	r.server.SetPlanner(p)
	if r.notifier != nil {
		r.notifier.UpdateChannels(cfg.Notify)
	}
	r.hub.Publish(events.Event{
		Type:   events.EventConfigReloaded,
		Source: "serve",
		Data:   events.ConfigReloadData{Path: r.path, Routers: len(cfg.Routers)},
	})
	r.logger.Info("configuration reloaded", "path", r.path)
	return nil
}

// watch reloads after the file changes until ctx is done. The directory is
// watched because editors replace files rather than write them in place.
func (r *reloader) watch(ctx context.Context, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		return err
	}
	target := filepath.Clean(r.path)

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = true
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounce)
		case <-timer.C:
			if pending {
				pending = false
				r.reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("config watch error", "error", err)
		}
	}
}
