package lifecycle

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/launcher/internal/domain/events"
	"github.com/GriffinCanCode/launcher/internal/infrastructure/logging"
	"github.com/GriffinCanCode/launcher/internal/shared/id"
	"github.com/GriffinCanCode/launcher/internal/shared/types"
)

// HandleTermination cleans up after a surface's execution context died. It
// only acts when sid is still the surface registered for path, so repeated
// or stale signals are no-ops.
func (c *Controller) HandleTermination(path string, sid id.SurfaceID, term types.Termination) {
	c.mu.Lock()
	fx := &effects{}
	removed, name := false, ""

	for _, s := range c.windows.surfaces(path) {
		c.notify(s, ChannelPluginOut, pluginOut{Kill: true})
	}

	if inst := c.reg.get(path); inst != nil && inst.Surface != nil && inst.Surface.ID() == sid {
		removed, name = true, inst.Name
		c.reg.remove(path)
		inst.release()
		s := inst.Surface
		if c.active == inst {
			c.active = nil
			c.host.Detach(s)
			fx.emit(events.NewPluginClosed(path))
			fx.emit(events.NewBackToSearch())
		}
		fx.then(func() {
			c.bridge.CloseTarget(s)
			s.Close()
		})
	}

	if rec := c.reg.getDetached(path); rec != nil && rec.Surface.ID() == sid {
		removed, name = true, rec.PluginName
		c.reg.removeDetached(path)
		fx.then(func() {
			c.bridge.CloseTarget(rec.Surface)
			rec.Window.Close()
			rec.Surface.Close()
		})
	}

	if removed {
		c.metrics.RecordCrash()
		fx.emit(events.NewPluginCrashed(path, name, term.Reason, term.ExitCode))
		fx.then(func() { c.windows.closeByPlugin(path) })
	}
	c.unlockAndFlush(fx)

	if removed {
		c.log.Warn("Plugin surface terminated",
			logging.PluginPath(path),
			logging.PluginName(name),
			logging.SurfaceID(sid.String()),
			zap.String("reason", term.Reason),
			zap.Int("exit_code", term.ExitCode))
	}
}
