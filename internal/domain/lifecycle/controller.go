package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/launcher/internal/domain/events"
	"github.com/GriffinCanCode/launcher/internal/domain/rpc"
	"github.com/GriffinCanCode/launcher/internal/infrastructure/logging"
	"github.com/GriffinCanCode/launcher/internal/infrastructure/store"
	"github.com/GriffinCanCode/launcher/internal/shared/id"
	"github.com/GriffinCanCode/launcher/internal/shared/types"
)

// CreateRequest opens a plugin for one feature invocation
type CreateRequest struct {
	Path        string
	FeatureCode string
	Type        string // defaults to "text"
	Label       string
	Payload     json.RawMessage
}

func (r CreateRequest) launchParam() types.LaunchParam {
	kind := r.Type
	if kind == "" {
		kind = "text"
	}
	return types.LaunchParam{Code: r.FeatureCode, Type: kind, Label: r.Label, Payload: r.Payload}
}

// Controller owns every plugin instance: the main registry, the active
// pointer and the detached windows. One mutex guards all three; blocking work
// runs unlocked and re-validates entry identity afterwards.
type Controller struct {
	cfg     Config
	factory *factory
	host    WindowHost
	store   store.Store
	bridge  *rpc.Bridge
	events  events.Publisher
	metrics Recorder
	log     *zap.Logger
	windows *windowTracker
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	mu            sync.Mutex
	reg           *registry
	active        *instance
	defaultHeight int
	lastEscape    time.Time
	closed        bool
}

// effects collects work that must run after the lock is released
type effects struct {
	events []events.Event
	after  []func()
}

func (fx *effects) emit(e events.Event) { fx.events = append(fx.events, e) }
func (fx *effects) then(fn func())      { fx.after = append(fx.after, fn) }

// New creates a controller
func New(cfg Config, deps Deps) (*Controller, error) {
	switch {
	case deps.Manifests == nil:
		return nil, errors.New("lifecycle: manifest reader is required")
	case deps.Sessions == nil:
		return nil, errors.New("lifecycle: session provider is required")
	case deps.Host == nil:
		return nil, errors.New("lifecycle: window host is required")
	case deps.Store == nil:
		return nil, errors.New("lifecycle: store is required")
	}

	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Bridge == nil {
		deps.Bridge = rpc.NewBridge(log, nil)
	}
	if deps.Events == nil {
		deps.Events = nopPublisher{}
	}
	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}

	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		cfg: cfg,
		factory: &factory{
			manifests: deps.Manifests,
			sessions:  deps.Sessions,
			host:      deps.Host,
			store:     deps.Store,
			log:       log,
		},
		host:          deps.Host,
		store:         deps.Store,
		bridge:        deps.Bridge,
		events:        deps.Events,
		metrics:       deps.Metrics,
		log:           log,
		windows:       newWindowTracker(),
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
		reg:           newRegistry(),
		defaultHeight: cfg.DefaultHeight,
	}, nil
}

// unlockAndFlush releases the lock, then runs deferred work and publishes
func (c *Controller) unlockAndFlush(fx *effects) {
	registered, detached := c.reg.len(), len(c.reg.detached)
	c.mu.Unlock()

	c.metrics.SetInstances(registered, detached)
	for _, fn := range fx.after {
		fn()
	}
	for _, e := range fx.events {
		c.events.Publish(e)
	}
}

// spawn runs fn on a tracked goroutine
func (c *Controller) spawn(fn func()) {
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		fn()
	}()
}

// Wait blocks until background work (mode negotiation, kill-on-exit checks,
// callbacks) has finished
func (c *Controller) Wait() {
	c.tasks.Wait()
}

func (c *Controller) hooks() hooks {
	return hooks{
		message: func(path string, sid id.SurfaceID, msg rpc.Message) {
			if c.bridge.Deliver(msg) {
				return
			}
			c.spawn(func() { c.handlePluginMessage(path, sid, msg) })
		},
		terminated: func(path string, sid id.SurfaceID, term types.Termination) {
			c.spawn(func() { c.HandleTermination(path, sid, term) })
		},
		focus: func(_ string, s Surface) {
			c.host.SetFocusTarget(s)
		},
	}
}

// notify sends a best-effort one-way message
func (c *Controller) notify(s Surface, channel string, payload any) {
	if s == nil || s.Destroyed() {
		return
	}
	if err := c.bridge.Notify(s, channel, payload); err != nil {
		c.log.Debug("Notify failed", logging.Channel(channel), logging.SurfaceID(s.ID().String()), zap.Error(err))
	}
}

// ============================================================================
// Create
// ============================================================================

// Create shows the plugin at req.Path, building it on a cache miss. It
// returns once the surface has started loading.
func (c *Controller) Create(ctx context.Context, req CreateRequest) error {
	if req.Path == "" {
		return fmt.Errorf("create: empty path: %w", ErrInstanceNotFound)
	}
	launch := req.launchParam()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	fx := &effects{}

	if rec := c.reg.getDetached(req.Path); rec != nil {
		fx.then(rec.Window.Focus)
		c.unlockAndFlush(fx)
		c.metrics.RecordCreate("detached")
		return nil
	}
	if c.reg.getPending(req.Path) != nil {
		// its standalone window is still being built
		c.unlockAndFlush(fx)
		c.metrics.RecordCreate("detached")
		return nil
	}

	if inst := c.active; inst != nil && inst.Path == req.Path {
		inst.featureCode, inst.launch = req.FeatureCode, launch
		if inst.contentReady {
			c.spawn(func() { c.negotiate(inst, req.FeatureCode, launch) })
		}
		c.unlockAndFlush(fx)
		c.metrics.RecordCreate("reentry")
		return nil
	}

	c.hideLocked(fx)

	if inst := c.reg.get(req.Path); inst != nil {
		c.restoreLocked(inst, req, launch, fx)
		c.unlockAndFlush(fx)
		c.metrics.RecordCreate("cached")
		return nil
	}

	ph := newPlaceholder(req.Path)
	ph.featureCode, ph.launch = req.FeatureCode, launch
	c.reg.insert(ph)
	c.active = ph
	c.unlockAndFlush(fx)

	return c.buildInstance(ctx, ph, req.Label)
}

// restoreLocked makes a cached instance active again
func (c *Controller) restoreLocked(inst *instance, req CreateRequest, launch types.LaunchParam, fx *effects) {
	c.active = inst
	inst.featureCode, inst.launch = req.FeatureCode, launch
	if inst.loading {
		// buildInstance attaches and announces it once the surface exists
		return
	}

	c.host.Attach(inst.Surface)
	height := 0
	if !inst.Headless {
		height = inst.CachedHeight
		if height <= 0 {
			height = c.defaultHeight
		}
	}
	c.setHeightLocked(inst, height, false)
	fx.then(inst.Surface.Focus)
	fx.emit(c.openedEvent(inst, req.Label))

	if inst.contentReady {
		fx.emit(events.NewPluginLoaded(inst.Path, inst.Name))
		c.spawn(func() { c.negotiate(inst, req.FeatureCode, launch) })
	}
}

// buildInstance runs the factory for a placeholder and starts the load
func (c *Controller) buildInstance(ctx context.Context, ph *instance, label string) error {
	built, err := c.factory.build(ctx, ph.Path, c.hooks(), false)

	c.mu.Lock()
	fx := &effects{}
	if err != nil {
		if c.reg.get(ph.Path) == ph {
			c.reg.remove(ph.Path)
		}
		if c.active == ph {
			c.active = nil
		}
		ph.release()
		c.unlockAndFlush(fx)

		c.metrics.RecordCreate("failed")
		c.log.Warn("Failed to create plugin", logging.PluginPath(ph.Path), zap.Error(err))
		return err
	}

	if c.reg.get(ph.Path) != ph || c.closed {
		ph.release()
		c.unlockAndFlush(fx)

		built.Surface.Close()
		c.metrics.RecordCreate("aborted")
		return fmt.Errorf("%s: %w", ph.Path, ErrCreateAborted)
	}

	ph.adopt(built)
	c.reg.indexSurface(ph)
	if c.active == ph {
		sb := c.cfg.SearchBarHeight
		c.host.Attach(ph.Surface)
		c.host.SetBounds(ph.Surface, types.Rect{X: 0, Y: sb, Width: c.host.HostWidth(), Height: 0})
		c.host.ResizeHost(sb)
		fx.emit(c.openedEvent(ph, label))
	}
	surface, url := ph.Surface, ph.EntryURL
	c.unlockAndFlush(fx)

	c.log.Info("Plugin created",
		logging.PluginPath(ph.Path),
		logging.PluginName(ph.Name),
		zap.String("entry", url))

	if err := surface.Load(url, func() { c.spawn(func() { c.onReady(ph) }) }); err != nil {
		c.mu.Lock()
		fx := &effects{}
		if c.reg.get(ph.Path) == ph {
			c.killLocked(ph.Path, "load_failed", fx)
		}
		c.unlockAndFlush(fx)
		return fmt.Errorf("%w: load %s: %v", ErrSurfaceAllocation, url, err)
	}

	c.metrics.RecordCreate("created")
	return nil
}

// onReady runs once the instance's content finished loading
func (c *Controller) onReady(inst *instance) {
	c.mu.Lock()
	if c.reg.get(inst.Path) != inst {
		c.mu.Unlock()
		return
	}
	fx := &effects{}
	inst.contentReady = true
	inst.release()
	fx.emit(events.NewPluginLoaded(inst.Path, inst.Name))

	isActive := c.active == inst
	if isActive && !inst.Headless {
		c.setHeightLocked(inst, c.defaultHeight, true)
	}
	code, launch := inst.featureCode, inst.launch
	c.unlockAndFlush(fx)

	if isActive {
		c.negotiate(inst, code, launch)
	}
}

func (c *Controller) openedEvent(inst *instance, label string) events.Event {
	if label == "" {
		label = inst.Title
	}
	return events.NewPluginOpened(events.OpenedInfo{
		Path:                inst.Path,
		Name:                inst.Name,
		Title:               inst.Title,
		Logo:                inst.LogoURL,
		Label:               label,
		SubInputPlaceholder: inst.SubInput.Placeholder,
		SubInputVisible:     inst.SubInput.Visible,
	})
}

// ============================================================================
// Hide / Kill
// ============================================================================

// Hide removes the active plugin from the host area and keeps it cached
func (c *Controller) Hide() {
	c.mu.Lock()
	fx := &effects{}
	c.hideLocked(fx)
	c.unlockAndFlush(fx)
}

func (c *Controller) hideLocked(fx *effects) *instance {
	inst := c.active
	if inst == nil {
		return nil
	}
	c.active = nil
	if inst.Surface != nil {
		c.notify(inst.Surface, ChannelPluginOut, pluginOut{Kill: false})
		c.host.Detach(inst.Surface)
	}
	fx.emit(events.NewPluginClosed(inst.Path))
	c.spawn(func() { c.killOnExit(inst) })
	return inst
}

// killOnExit kills a hidden instance whose name is on the kill-on-exit list
func (c *Controller) killOnExit(inst *instance) {
	timer := time.NewTimer(c.cfg.KillGrace)
	select {
	case <-timer.C:
	case <-c.ctx.Done():
		timer.Stop()
		return
	}

	c.mu.Lock()
	name := inst.Name
	hidden := c.reg.get(inst.Path) == inst && c.active != inst
	c.mu.Unlock()
	if !hidden || name == "" {
		return
	}

	kill, err := store.KillOnExit(c.ctx, c.store, name)
	if err != nil {
		c.log.Warn("Failed to read kill-on-exit list", logging.PluginName(name), zap.Error(err))
		return
	}
	if !kill {
		return
	}

	c.mu.Lock()
	if c.reg.get(inst.Path) != inst || c.active == inst {
		c.mu.Unlock()
		return
	}
	fx := &effects{}
	c.killLocked(inst.Path, "exit", fx)
	c.unlockAndFlush(fx)
	c.log.Info("Killed plugin on exit", logging.PluginPath(inst.Path), logging.PluginName(name))
}

// Kill destroys the plugin at path wherever it lives. It reports false if
// nothing was running there.
func (c *Controller) Kill(path string) bool {
	c.mu.Lock()
	fx := &effects{}
	found := c.killLocked(path, "request", fx)
	c.unlockAndFlush(fx)
	return found
}

// KillAll destroys every registered and detached instance
func (c *Controller) KillAll() {
	c.mu.Lock()
	fx := &effects{}
	c.killAllLocked(fx)
	c.unlockAndFlush(fx)
}

func (c *Controller) killAllLocked(fx *effects) {
	for _, path := range c.reg.paths() {
		c.killLocked(path, "all", fx)
	}
	for _, path := range c.reg.detachedPaths() {
		c.killLocked(path, "all", fx)
	}
	for _, path := range c.reg.pendingPaths() {
		c.killLocked(path, "all", fx)
	}
	c.active = nil
}

// KillActive kills the foreground plugin and returns to search
func (c *Controller) KillActive() bool {
	c.mu.Lock()
	fx := &effects{}
	found := c.killActiveLocked(fx)
	c.unlockAndFlush(fx)
	return found
}

func (c *Controller) killActiveLocked(fx *effects) bool {
	if c.active == nil {
		return false
	}
	c.killLocked(c.active.Path, "active", fx)
	fx.emit(events.NewBackToSearch())
	fx.then(c.host.FocusHost)
	return true
}

func (c *Controller) killLocked(path, reason string, fx *effects) bool {
	found := false

	if inst := c.reg.remove(path); inst != nil {
		found = true
		inst.release()
		if s := inst.Surface; s != nil {
			c.notify(s, ChannelPluginOut, pluginOut{Kill: true})
			if c.active == inst {
				c.host.Detach(s)
			}
			fx.then(func() {
				c.bridge.CloseTarget(s)
				s.Close()
			})
		}
		if c.active == inst {
			c.active = nil
		}
	}

	if rec := c.reg.removeDetached(path); rec != nil {
		found = true
		c.notify(rec.Surface, ChannelPluginOut, pluginOut{Kill: true})
		fx.then(func() {
			rec.Window.Close()
			c.bridge.CloseTarget(rec.Surface)
			rec.Surface.Close()
		})
	}

	if c.reg.cancelPending(path) {
		found = true
	}

	if found {
		fx.then(func() { c.windows.closeByPlugin(path) })
		c.metrics.RecordKill(reason)
		c.log.Debug("Plugin killed", logging.PluginPath(path), zap.String("reason", reason))
	}
	return found
}

// ============================================================================
// Layout
// ============================================================================

// ResizeTo sets the active plugin's height below the search bar
func (c *Controller) ResizeTo(height int, updateCache bool) {
	c.mu.Lock()
	if inst := c.active; inst != nil && !inst.loading {
		c.setHeightLocked(inst, height, updateCache)
	}
	c.mu.Unlock()
}

func (c *Controller) setHeightLocked(inst *instance, height int, updateCache bool) {
	if inst.Surface == nil {
		return
	}
	if height < 0 {
		height = 0
	}
	sb := c.cfg.SearchBarHeight
	c.host.ResizeHost(height + sb)
	c.host.SetBounds(inst.Surface, types.Rect{X: 0, Y: sb, Width: c.host.HostWidth(), Height: height})
	if updateCache {
		inst.CachedHeight = height
	}
}

// UpdateBounds follows a main window resize
func (c *Controller) UpdateBounds(width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inst := c.active
	if inst == nil || inst.Surface == nil {
		return
	}
	sb := c.cfg.SearchBarHeight
	if view := height - sb; view > 0 {
		c.host.SetBounds(inst.Surface, types.Rect{X: 0, Y: sb, Width: width, Height: view})
		inst.CachedHeight = view
	}
}

// DefaultHeight returns the height used when nothing is cached
func (c *Controller) DefaultHeight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.defaultHeight
}

// SetDefaultHeight sets the default plugin height, floored at MinDefaultHeight
func (c *Controller) SetDefaultHeight(height int) {
	c.mu.Lock()
	c.defaultHeight = max(MinDefaultHeight, height)
	c.mu.Unlock()
}

// ============================================================================
// Sub-input
// ============================================================================

// SetSubInputPlaceholder updates the active plugin's sub-input placeholder
func (c *Controller) SetSubInputPlaceholder(text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return false
	}
	c.active.SubInput.Placeholder = text
	return true
}

// SetSubInputValue updates the active plugin's sub-input value
func (c *Controller) SetSubInputValue(text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return false
	}
	c.active.SubInput.Value = text
	return true
}

// SetSubInputVisible toggles the sub-input of the plugin at path
func (c *Controller) SetSubInputVisible(path string, visible bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst := c.reg.get(path)
	if inst == nil {
		return false
	}
	inst.SubInput.Visible = visible
	return true
}

// ============================================================================
// Input and messages
// ============================================================================

// SendInputEvent forwards a synthetic input event to the active surface
func (c *Controller) SendInputEvent(evt types.InputEvent) bool {
	c.mu.Lock()
	var s Surface
	if c.active != nil {
		s = c.active.Surface
	}
	c.mu.Unlock()

	if s == nil || s.Destroyed() {
		return false
	}
	if err := s.SendInputEvent(evt); err != nil {
		c.log.Debug("Input event rejected", logging.SurfaceID(s.ID().String()), zap.Error(err))
		return false
	}
	return true
}

// SendMessage delivers a one-way message to the active surface
func (c *Controller) SendMessage(channel string, payload any) error {
	c.mu.Lock()
	var s Surface
	if c.active != nil {
		s = c.active.Surface
	}
	c.mu.Unlock()

	if s == nil || s.Destroyed() {
		return ErrNoActiveInstance
	}
	return c.bridge.Notify(s, channel, payload)
}

// ============================================================================
// Escape handling
// ============================================================================

// HandleEscape hides the active plugin and returns to search
func (c *Controller) HandleEscape() {
	c.mu.Lock()
	fx := &effects{}
	c.escapeLocked(fx)
	c.unlockAndFlush(fx)
}

func (c *Controller) escapeLocked(fx *effects) {
	c.lastEscape = c.now()
	c.hideLocked(fx)
	fx.emit(events.NewBackToSearch())
	fx.then(c.host.FocusHost)
}

// SuppressMainHide reports whether an escape happened within the window, so a
// blur caused by it should not hide the main window
func (c *Controller) SuppressMainHide(within time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.lastEscape.IsZero() && c.now().Sub(c.lastEscape) < within
}

// ============================================================================
// Queries
// ============================================================================

// ActivePath returns the foreground plugin path, or ""
func (c *Controller) ActivePath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ""
	}
	return c.active.Path
}

// RunningInstances lists registered instances, then detached ones
func (c *Controller) RunningInstances() []types.RunningInstance {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]types.RunningInstance, 0, c.reg.len()+len(c.reg.detached)+len(c.reg.pending))
	for _, path := range c.reg.order {
		inst := c.reg.entries[path]
		out = append(out, types.RunningInstance{
			Path:    inst.Path,
			Name:    inst.Name,
			Active:  c.active == inst,
			Loading: inst.loading,
		})
	}
	for _, path := range c.reg.detachedOrder {
		rec := c.reg.detached[path]
		out = append(out, types.RunningInstance{Path: rec.PluginPath, Name: rec.PluginName, Detached: true})
	}
	for _, path := range c.reg.pendingOrder {
		out = append(out, types.RunningInstance{Path: path, Detached: true, Loading: true})
	}
	return out
}

// Stats summarizes the registry
func (c *Controller) Stats() types.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := types.Stats{Registered: c.reg.len(), Detached: len(c.reg.detached)}
	if c.active != nil {
		stats.ActivePath = c.active.Path
	}
	return stats
}

// IsDevelopmentMode reports whether the plugin owning sid runs its
// development entry. Plugin-opened windows inherit their owner's flag.
func (c *Controller) IsDevelopmentMode(sid id.SurfaceID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if inst := c.reg.bySurfaceID(sid); inst != nil {
		return inst.IsDevelopment
	}
	if rec := c.reg.detachedBySurfaceID(sid); rec != nil {
		return rec.IsDevelopment
	}
	if path, ok := c.windows.pluginFor(sid); ok {
		if inst := c.reg.get(path); inst != nil {
			return inst.IsDevelopment
		}
		if rec := c.reg.getDetached(path); rec != nil {
			return rec.IsDevelopment
		}
	}
	return false
}

// InfoBySurface identifies the plugin owning a main or detached surface
func (c *Controller) InfoBySurface(sid id.SurfaceID) (types.InstanceInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if inst := c.reg.bySurfaceID(sid); inst != nil {
		internal := inst.Session != nil && inst.Session.Internal
		return types.InstanceInfo{Name: inst.Name, Path: inst.Path, IsInternal: internal}, true
	}
	if rec := c.reg.detachedBySurfaceID(sid); rec != nil {
		return types.InstanceInfo{Name: rec.PluginName, Path: rec.PluginPath, IsInternal: rec.Internal}, true
	}
	return types.InstanceInfo{}, false
}

// NameBySurface returns the name of the main-registry plugin owning sid
func (c *Controller) NameBySurface(sid id.SurfaceID) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if inst := c.reg.bySurfaceID(sid); inst != nil {
		return inst.Name, true
	}
	return "", false
}

// SurfaceByName returns the surface of a registered plugin
func (c *Controller) SurfaceByName(name string) (Surface, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if inst := c.reg.byName(name); inst != nil {
		return inst.Surface, true
	}
	return nil, false
}

// ============================================================================
// Shutdown
// ============================================================================

// Close kills every instance and waits for background work
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	fx := &effects{}
	c.killAllLocked(fx)
	c.unlockAndFlush(fx)

	c.cancel()
	c.tasks.Wait()
}
