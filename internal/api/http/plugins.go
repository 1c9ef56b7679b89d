package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/launcher/internal/domain/lifecycle"
	"github.com/GriffinCanCode/launcher/internal/infrastructure/logging"
	"github.com/GriffinCanCode/launcher/internal/shared/types"
	"github.com/GriffinCanCode/launcher/internal/shared/utils"
)

type createRequest struct {
	Path        string          `json:"path" binding:"required"`
	FeatureCode string          `json:"feature_code"`
	Type        string          `json:"type"`
	Label       string          `json:"label"`
	Payload     json.RawMessage `json:"payload"`
}

type pathRequest struct {
	Path string `json:"path" binding:"required"`
}

type detachRequest struct {
	Path string `json:"path"` // empty detaches the active plugin
}

type createDetachedRequest struct {
	Path        string `json:"path" binding:"required"`
	FeatureCode string `json:"feature_code"`
}

type callRequest struct {
	Path        string          `json:"path" binding:"required"`
	FeatureCode string          `json:"feature_code" binding:"required"`
	Action      json.RawMessage `json:"action"`
}

type messageRequest struct {
	Channel string          `json:"channel" binding:"required"`
	Payload json.RawMessage `json:"payload"`
}

type resizeRequest struct {
	Height      int  `json:"height" binding:"min=0"`
	UpdateCache bool `json:"update_cache"`
}

type boundsRequest struct {
	Width  int `json:"width" binding:"required,min=1"`
	Height int `json:"height" binding:"required,min=1"`
}

type subInputRequest struct {
	Path        string  `json:"path"`
	Placeholder *string `json:"placeholder"`
	Value       *string `json:"value"`
	Visible     *bool   `json:"visible"`
}

type heightRequest struct {
	Height int `json:"height" binding:"required"`
}

type suppressQuery struct {
	WithinMs int `form:"within_ms" binding:"required,min=1,max=60000"`
}

// Create opens or restores a plugin
func (h *Handlers) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := validateCreate(req); err != nil {
		badRequest(c, err)
		return
	}

	ctx, cancel := h.opContext(c)
	defer cancel()

	tags := map[string]string{"plugin_path": req.Path, "feature_code": req.FeatureCode}
	err := h.traced(ctx, "plugin.create", tags, func(ctx context.Context) error {
		return h.ctrl.Create(ctx, lifecycle.CreateRequest{
			Path:        req.Path,
			FeatureCode: req.FeatureCode,
			Type:        req.Type,
			Label:       req.Label,
			Payload:     req.Payload,
		})
	})
	if err != nil {
		h.log.Warn("Create failed", logging.PluginPath(req.Path), zap.Error(err))
		fail(c, err)
		return
	}
	ok(c, gin.H{"active_path": h.ctrl.ActivePath()})
}

func validateCreate(req createRequest) error {
	if err := utils.ValidatePluginPath(req.Path); err != nil {
		return err
	}
	if err := utils.ValidateFeatureCode(req.FeatureCode, false); err != nil {
		return err
	}
	if err := utils.ValidateString(req.Label, "label", 0, utils.MaxLabelLength, false); err != nil {
		return err
	}
	return utils.ValidatePayload(req.Payload)
}

// Hide sends the active plugin to the background
func (h *Handlers) Hide(c *gin.Context) {
	h.ctrl.Hide()
	ok(c, nil)
}

// Kill destroys the plugin at path
func (h *Handlers) Kill(c *gin.Context) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !h.ctrl.Kill(req.Path) {
		fail(c, lifecycle.ErrInstanceNotFound)
		return
	}
	ok(c, nil)
}

// KillAll destroys every plugin instance
func (h *Handlers) KillAll(c *gin.Context) {
	h.ctrl.KillAll()
	ok(c, nil)
}

// KillActive destroys the foreground plugin
func (h *Handlers) KillActive(c *gin.Context) {
	if !h.ctrl.KillActive() {
		fail(c, lifecycle.ErrNoActiveInstance)
		return
	}
	ok(c, nil)
}

// Detach moves a plugin into a standalone window
func (h *Handlers) Detach(c *gin.Context) {
	var req detachRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}

	ctx, cancel := h.opContext(c)
	defer cancel()
	if err := h.ctrl.Detach(ctx, req.Path); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

// CreateDetached opens a plugin directly in a standalone window
func (h *Handlers) CreateDetached(c *gin.Context) {
	var req createDetachedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := utils.ValidatePluginPath(req.Path); err != nil {
		badRequest(c, err)
		return
	}

	ctx, cancel := h.opContext(c)
	defer cancel()
	if err := h.ctrl.CreateDetached(ctx, req.Path, req.FeatureCode); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

// Call invokes a declared feature of a running plugin
func (h *Handlers) Call(c *gin.Context) {
	var req callRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := utils.ValidateFeatureCode(req.FeatureCode, true); err != nil {
		badRequest(c, err)
		return
	}
	if err := utils.ValidatePayload(req.Action); err != nil {
		badRequest(c, err)
		return
	}

	ctx, cancel := h.opContext(c)
	defer cancel()
	var result json.RawMessage
	tags := map[string]string{"plugin_path": req.Path, "feature_code": req.FeatureCode}
	err := h.traced(ctx, "plugin.call", tags, func(ctx context.Context) error {
		var err error
		result, err = h.ctrl.CallMethod(ctx, req.Path, req.FeatureCode, req.Action)
		return err
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, result)
}

// SendMessage delivers a one-way message to the foreground plugin
func (h *Handlers) SendMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := utils.ValidateChannel(req.Channel); err != nil {
		badRequest(c, err)
		return
	}
	if err := utils.ValidatePayload(req.Payload); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.ctrl.SendMessage(req.Channel, req.Payload); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

// SendInput forwards a synthetic input event to the foreground plugin
func (h *Handlers) SendInput(c *gin.Context) {
	var evt types.InputEvent
	if err := c.ShouldBindJSON(&evt); err != nil {
		badRequest(c, err)
		return
	}
	if evt.Type == "" {
		badRequest(c, errors.New("type is required"))
		return
	}
	if !h.ctrl.SendInputEvent(evt) {
		fail(c, lifecycle.ErrNoActiveInstance)
		return
	}
	ok(c, nil)
}

// Resize sets the foreground plugin's content height
func (h *Handlers) Resize(c *gin.Context) {
	var req resizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.ctrl.ResizeTo(req.Height, req.UpdateCache)
	ok(c, nil)
}

// UpdateBounds reflows the foreground plugin after a main window resize
func (h *Handlers) UpdateBounds(c *gin.Context) {
	var req boundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if h.host != nil {
		h.host.SetWidth(req.Width)
	}
	h.ctrl.UpdateBounds(req.Width, req.Height)
	ok(c, nil)
}

// SubInput updates the secondary search box state
func (h *Handlers) SubInput(c *gin.Context) {
	var req subInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	applied := true
	if req.Placeholder != nil {
		text := utils.SanitizeText(*req.Placeholder, utils.MaxSubInputLength)
		applied = h.ctrl.SetSubInputPlaceholder(text) && applied
	}
	if req.Value != nil {
		applied = h.ctrl.SetSubInputValue(truncate(*req.Value, utils.MaxSubInputLength)) && applied
	}
	if req.Visible != nil {
		path := req.Path
		if path == "" {
			path = h.ctrl.ActivePath()
		}
		applied = h.ctrl.SetSubInputVisible(path, *req.Visible) && applied
	}
	if !applied {
		fail(c, lifecycle.ErrNoActiveInstance)
		return
	}
	ok(c, nil)
}

// Escape hides the active plugin and returns to search
func (h *Handlers) Escape(c *gin.Context) {
	var req struct{}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}

	h.ctrl.HandleEscape()
	ok(c, nil)
}

// SuppressMainHide reports whether an escape happened within the window, in
// which case the main window should stay up on blur
func (h *Handlers) SuppressMainHide(c *gin.Context) {
	var q suppressQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	within := time.Duration(q.WithinMs) * time.Millisecond
	ok(c, gin.H{"suppress": h.ctrl.SuppressMainHide(within)})
}

// GetDefaultHeight reports the default plugin height
func (h *Handlers) GetDefaultHeight(c *gin.Context) {
	ok(c, gin.H{"height": h.ctrl.DefaultHeight()})
}

// SetDefaultHeight changes the default plugin height
func (h *Handlers) SetDefaultHeight(c *gin.Context) {
	var req heightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.ctrl.SetDefaultHeight(req.Height)
	ok(c, gin.H{"height": h.ctrl.DefaultHeight()})
}

// Running lists live plugin instances
func (h *Handlers) Running(c *gin.Context) {
	ok(c, h.ctrl.RunningInstances())
}

// Stats summarizes the registry
func (h *Handlers) Stats(c *gin.Context) {
	ok(c, h.ctrl.Stats())
}

// Installed lists plugin bundles under the configured root
func (h *Handlers) Installed(c *gin.Context) {
	if h.manifests == nil || h.pluginRoot == "" {
		ok(c, []interface{}{})
		return
	}
	found, err := h.manifests.Scan(h.pluginRoot)
	if err != nil {
		fail(c, err)
		return
	}

	type installed struct {
		Path     string   `json:"path"`
		Name     string   `json:"name"`
		Title    string   `json:"title"`
		Headless bool     `json:"headless"`
		Features []string `json:"features"`
	}
	out := make([]installed, 0, len(found))
	for _, m := range found {
		out = append(out, installed{
			Path:     m.Dir,
			Name:     m.Name,
			Title:    m.DisplayTitle(),
			Headless: m.Headless(),
			Features: m.FeatureCodes(),
		})
	}
	ok(c, out)
}

// Layout reports the host's current placement
func (h *Handlers) Layout(c *gin.Context) {
	if h.host == nil {
		fail(c, lifecycle.ErrClosed)
		return
	}
	ok(c, h.host.Layout())
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
