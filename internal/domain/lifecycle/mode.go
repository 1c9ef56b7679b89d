package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/launcher/internal/infrastructure/logging"
	"github.com/GriffinCanCode/launcher/internal/shared/types"
)

type modeQuery struct {
	FeatureCode string `json:"featureCode"`
}

type methodCall struct {
	FeatureCode string `json:"featureCode"`
	Action      any    `json:"action"`
}

// negotiate asks a ready instance how it wants to handle featureCode and
// either shows it or invokes it headlessly
func (c *Controller) negotiate(inst *instance, featureCode string, launch types.LaunchParam) {
	ctx := c.ctx
	select {
	case <-inst.ready:
	case <-ctx.Done():
		return
	}

	c.mu.Lock()
	live := c.reg.get(inst.Path) == inst && c.active == inst
	surface := inst.Surface
	c.mu.Unlock()
	if !live || surface == nil {
		return
	}

	mode := c.queryMode(ctx, surface, featureCode)

	c.mu.Lock()
	if c.reg.get(inst.Path) != inst || c.active != inst {
		c.mu.Unlock()
		c.metrics.RecordMode("discarded")
		c.log.Debug("Discarding mode for inactive plugin", logging.PluginPath(inst.Path))
		return
	}
	fx := &effects{}
	if mode == types.ModeHeadless {
		c.setHeightLocked(inst, 0, false)
	} else {
		height := inst.CachedHeight
		if height <= 0 {
			height = c.defaultHeight
		}
		c.setHeightLocked(inst, height, true)
		fx.then(surface.Focus)
	}
	declared := inst.Manifest.HasFeature(featureCode)
	c.unlockAndFlush(fx)

	c.metrics.RecordMode(string(mode))

	if mode != types.ModeHeadless {
		c.notify(surface, ChannelPluginEnter, launch)
		return
	}

	if !declared {
		c.log.Warn("Headless invocation of undeclared feature",
			logging.PluginPath(inst.Path),
			zap.String("feature_code", featureCode))
		return
	}
	if _, err := c.bridge.Call(ctx, surface, ChannelCallMethod, methodCall{FeatureCode: featureCode, Action: launch}, c.cfg.MethodTimeout); err != nil {
		c.log.Warn("Headless plugin method failed",
			logging.PluginPath(inst.Path),
			zap.String("feature_code", featureCode),
			zap.Error(err))
	}
}

// queryMode defaults to headed on timeout, error or any answer but "none"
func (c *Controller) queryMode(ctx context.Context, surface Surface, featureCode string) types.Mode {
	raw, err := c.bridge.Call(ctx, surface, ChannelPluginMode, modeQuery{FeatureCode: featureCode}, c.cfg.ModeTimeout)
	if err != nil {
		c.log.Debug("Mode query failed, assuming headed", logging.SurfaceID(surface.ID().String()), zap.Error(err))
		return types.ModeHeaded
	}
	var mode string
	if err := sonic.Unmarshal(raw, &mode); err == nil && types.Mode(mode) == types.ModeHeadless {
		return types.ModeHeadless
	}
	return types.ModeHeaded
}

// CallMethod invokes a declared feature on the plugin at path and returns
// its result
func (c *Controller) CallMethod(ctx context.Context, path, featureCode string, action json.RawMessage) (json.RawMessage, error) {
	c.mu.Lock()
	inst := c.reg.get(path)
	c.mu.Unlock()
	if inst == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrInstanceNotFound)
	}

	select {
	case <-inst.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.mu.Lock()
	if c.reg.get(path) != inst || inst.Surface == nil || inst.Surface.Destroyed() {
		c.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", path, ErrInstanceNotFound)
	}
	if !inst.Manifest.HasFeature(featureCode) {
		c.mu.Unlock()
		return nil, fmt.Errorf("%s on %s: %w", featureCode, inst.Name, ErrUndeclaredCapability)
	}
	surface := inst.Surface
	c.mu.Unlock()

	var act any
	if len(action) > 0 {
		act = action
	}
	return c.bridge.Call(ctx, surface, ChannelCallMethod, methodCall{FeatureCode: featureCode, Action: act}, c.cfg.MethodTimeout)
}
