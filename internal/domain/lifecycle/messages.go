package lifecycle

import (
	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/launcher/internal/domain/rpc"
	"github.com/GriffinCanCode/launcher/internal/infrastructure/logging"
	"github.com/GriffinCanCode/launcher/internal/shared/id"
	"github.com/GriffinCanCode/launcher/internal/shared/utils"
)

// Channels sent to plugin surfaces
const (
	ChannelPluginMode   = "get-plugin-mode"
	ChannelCallMethod   = "call-plugin-method"
	ChannelPluginEnter  = "on-plugin-enter"
	ChannelPluginOut    = "plugin-out"
	ChannelPluginDetach = "plugin-detach"
)

// Channels a plugin may send to the host
const (
	ChannelEscape     = "host.escape"
	ChannelDetach     = "host.detach"
	ChannelKill       = "host.kill"
	ChannelSetHeight  = "host.set-height"
	ChannelSubInput   = "host.sub-input"
	ChannelOpenWindow = "host.open-window"
)

type pluginOut struct {
	Kill bool `json:"kill"`
}

type heightRequest struct {
	Height int `json:"height"`
}

type subInputRequest struct {
	Placeholder *string `json:"placeholder"`
	Value       *string `json:"value"`
	Visible     *bool   `json:"visible"`
}

// handlePluginMessage serves a non-result message from a plugin surface
func (c *Controller) handlePluginMessage(path string, sid id.SurfaceID, msg rpc.Message) {
	log := c.log.With(logging.PluginPath(path), logging.Channel(msg.Channel))

	switch msg.Channel {
	case ChannelEscape:
		c.mu.Lock()
		fx := &effects{}
		if c.activeIs(sid) {
			c.escapeLocked(fx)
		}
		c.unlockAndFlush(fx)

	case ChannelKill:
		c.mu.Lock()
		fx := &effects{}
		if c.activeIs(sid) {
			c.killActiveLocked(fx)
		}
		c.unlockAndFlush(fx)

	case ChannelDetach:
		if err := c.detach(c.ctx, path, sid); err != nil {
			log.Warn("Plugin detach request failed", zap.Error(err))
		}

	case ChannelSetHeight:
		var req heightRequest
		if err := sonic.Unmarshal(msg.Payload, &req); err != nil {
			log.Debug("Bad height request", zap.Error(err))
			return
		}
		c.mu.Lock()
		if c.activeIs(sid) {
			c.setHeightLocked(c.active, req.Height, true)
		}
		c.mu.Unlock()

	case ChannelSubInput:
		var req subInputRequest
		if err := sonic.Unmarshal(msg.Payload, &req); err != nil {
			log.Debug("Bad sub-input request", zap.Error(err))
			return
		}
		c.mu.Lock()
		if inst := c.reg.bySurfaceID(sid); inst != nil {
			if req.Placeholder != nil {
				inst.SubInput.Placeholder = utils.SanitizeText(*req.Placeholder, utils.MaxSubInputLength)
			}
			if req.Value != nil {
				inst.SubInput.Value = utils.SanitizeText(*req.Value, utils.MaxSubInputLength)
			}
			if req.Visible != nil {
				inst.SubInput.Visible = *req.Visible
			}
		}
		c.mu.Unlock()

	case ChannelOpenWindow:
		var req WindowRequest
		if err := sonic.Unmarshal(msg.Payload, &req); err != nil {
			log.Debug("Bad window request", zap.Error(err))
			return
		}
		if _, err := c.OpenWindow(c.ctx, path, req); err != nil {
			log.Warn("Plugin window request failed", zap.Error(err))
		}

	default:
		log.Debug("Unhandled plugin message")
	}
}

func (c *Controller) activeIs(sid id.SurfaceID) bool {
	return c.active != nil && c.active.Surface != nil && c.active.Surface.ID() == sid
}
