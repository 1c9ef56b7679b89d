package lifecycle

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/launcher/internal/domain/events"
	"github.com/GriffinCanCode/launcher/internal/infrastructure/logging"
	"github.com/GriffinCanCode/launcher/internal/infrastructure/store"
	"github.com/GriffinCanCode/launcher/internal/shared/id"
	"github.com/GriffinCanCode/launcher/internal/shared/types"
)

// DetachedPlaceholder is the sub-input placeholder of a standalone window
// when the plugin never set one
const DetachedPlaceholder = "Search..."

// Detach moves the active plugin at path into a standalone window. An empty
// path means the active plugin.
func (c *Controller) Detach(ctx context.Context, path string) error {
	return c.detach(ctx, path, "")
}

// detach moves the active plugin into a standalone window. A non-empty sid
// must be the active surface.
func (c *Controller) detach(ctx context.Context, path string, sid id.SurfaceID) error {
	c.mu.Lock()
	inst := c.active
	if inst == nil || inst.loading || (path != "" && inst.Path != path) || (sid != "" && !c.activeIs(sid)) {
		c.mu.Unlock()
		return fmt.Errorf("detach %q: %w", path, ErrNoActiveInstance)
	}
	path = inst.Path
	name, surface, sub := inst.Name, inst.Surface, inst.SubInput
	fallback := inst.CachedHeight
	if fallback <= 0 {
		fallback = c.defaultHeight
	}
	c.mu.Unlock()

	size := c.detachedSize(ctx, name, fallback)
	placeholder := sub.Placeholder
	if placeholder == "" {
		placeholder = DetachedPlaceholder
	}
	window, err := c.host.CreateStandaloneWindow(ctx, size, surface, types.WindowOptions{
		Title:             name,
		Logo:              inst.LogoURL,
		SearchQuery:       sub.Value,
		SearchPlaceholder: placeholder,
		SubInputVisible:   sub.Visible,
	})
	if err != nil {
		c.log.Warn("Failed to create detached window", logging.PluginPath(path), zap.Error(err))
		return fmt.Errorf("%w: %s: %v", ErrDetachFailed, name, err)
	}

	c.mu.Lock()
	if c.reg.get(path) != inst || c.active != inst {
		c.mu.Unlock()
		window.Close()
		return fmt.Errorf("%w: %s changed while its window was created", ErrDetachFailed, path)
	}

	fx := &effects{}
	c.notify(surface, ChannelPluginDetach, nil)
	c.host.Detach(surface)
	c.reg.remove(path)
	c.active = nil
	inst.release()

	rec := &detachedRecord{
		PluginPath:    path,
		PluginName:    name,
		Surface:       surface,
		Window:        window,
		Size:          size,
		SubInput:      sub,
		LogoURL:       inst.LogoURL,
		IsDevelopment: inst.IsDevelopment,
		Internal:      inst.Session != nil && inst.Session.Internal,
		Manifest:      inst.Manifest,
		Session:       inst.Session,
	}
	c.adoptWindowLocked(rec)

	fx.emit(events.NewPluginClosed(path))
	fx.emit(events.NewBackToSearch())
	fx.emit(events.NewPluginDetached(path, name, window.ID()))
	c.unlockAndFlush(fx)

	c.log.Info("Plugin detached", logging.PluginPath(path), zap.String("window_id", window.ID()))
	return nil
}

// CreateDetached opens the plugin at path directly in a standalone window.
// An existing window for the path is focused instead. The path is reserved
// while the instance is built, so a Kill in the meantime aborts the create.
func (c *Controller) CreateDetached(ctx context.Context, path, featureCode string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if rec := c.reg.getDetached(path); rec != nil {
		c.mu.Unlock()
		rec.Window.Focus()
		return nil
	}
	if c.reg.getPending(path) != nil {
		c.mu.Unlock()
		return nil
	}
	fx := &effects{}
	if inst := c.reg.get(path); inst != nil {
		if c.active == inst && !inst.loading {
			c.mu.Unlock()
			return c.Detach(ctx, path)
		}
		c.killLocked(path, "replaced", fx)
	}
	res := c.reg.reserve(path)
	c.unlockAndFlush(fx)

	inst, err := c.factory.build(ctx, path, c.hooks(), true)
	if err != nil {
		c.mu.Lock()
		c.reg.unreserve(res)
		c.mu.Unlock()
		return err
	}

	size := c.detachedSize(ctx, inst.Name, c.DefaultHeight())
	window, err := c.host.CreateStandaloneWindow(ctx, size, inst.Surface, types.WindowOptions{
		Title:             inst.Name,
		Logo:              inst.LogoURL,
		SearchPlaceholder: DetachedPlaceholder,
	})
	if err != nil {
		c.mu.Lock()
		c.reg.unreserve(res)
		c.mu.Unlock()
		inst.Surface.Close()
		return fmt.Errorf("%w: %s: %v", ErrDetachFailed, inst.Name, err)
	}

	c.mu.Lock()
	if !c.reg.unreserve(res) || c.closed {
		c.mu.Unlock()
		window.Close()
		inst.Surface.Close()
		c.metrics.RecordCreate("aborted")
		return fmt.Errorf("%s: %w", path, ErrCreateAborted)
	}

	fx = &effects{}
	rec := &detachedRecord{
		PluginPath:    path,
		PluginName:    inst.Name,
		Surface:       inst.Surface,
		Window:        window,
		Size:          size,
		SubInput:      types.SubInput{Placeholder: DetachedPlaceholder},
		LogoURL:       inst.LogoURL,
		IsDevelopment: inst.IsDevelopment,
		Internal:      inst.Session != nil && inst.Session.Internal,
		Manifest:      inst.Manifest,
		Session:       inst.Session,
	}
	c.adoptWindowLocked(rec)
	fx.emit(events.NewPluginDetached(path, inst.Name, window.ID()))
	c.unlockAndFlush(fx)

	launch := types.LaunchParam{Code: featureCode, Type: "text"}
	surface := inst.Surface
	err = surface.Load(inst.EntryURL, func() {
		c.spawn(func() { c.notify(surface, ChannelPluginEnter, launch) })
	})
	if err != nil {
		c.Kill(path)
		return fmt.Errorf("%w: load %s: %v", ErrSurfaceAllocation, inst.EntryURL, err)
	}
	return nil
}

// adoptWindowLocked indexes a detached record and persists its size on close
func (c *Controller) adoptWindowLocked(rec *detachedRecord) {
	c.reg.putDetached(rec)
	rec.Window.OnClosed(func(size types.Geometry) {
		c.spawn(func() { c.onDetachedClosed(rec, size) })
	})
}

func (c *Controller) onDetachedClosed(rec *detachedRecord, size types.Geometry) {
	if size.Width > 0 && size.Height > 0 {
		if err := store.SaveDetachedSize(context.WithoutCancel(c.ctx), c.store, rec.PluginName, size); err != nil {
			c.log.Warn("Failed to persist detached window size", logging.PluginName(rec.PluginName), zap.Error(err))
		}
	}

	c.mu.Lock()
	fx := &effects{}
	if c.reg.getDetached(rec.PluginPath) == rec {
		c.reg.removeDetached(rec.PluginPath)
	}
	c.unlockAndFlush(fx)

	c.bridge.CloseTarget(rec.Surface)
	rec.Surface.Close()
}

// detachedSize returns the stored size for name clamped to the minimum, or
// the default width with fallbackHeight
func (c *Controller) detachedSize(ctx context.Context, name string, fallbackHeight int) types.Geometry {
	size, found, err := store.DetachedSize(ctx, c.store, name)
	if err != nil {
		c.log.Warn("Failed to read detached window size", logging.PluginName(name), zap.Error(err))
	}
	if found {
		return types.Geometry{
			Width:  max(size.Width, c.cfg.MinDetachedWidth),
			Height: max(size.Height, c.cfg.MinDetachedHeight-c.cfg.TitlebarHeight),
		}
	}
	return types.Geometry{Width: c.cfg.DetachedWidth, Height: fallbackHeight}
}
