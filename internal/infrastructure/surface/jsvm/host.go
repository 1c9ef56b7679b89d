package jsvm

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/launcher/internal/domain/lifecycle"
	"github.com/GriffinCanCode/launcher/internal/domain/session"
	"github.com/GriffinCanCode/launcher/internal/shared/id"
	"github.com/GriffinCanCode/launcher/internal/shared/types"
)

// Host runs plugin surfaces as goja VMs and keeps the main window layout as
// plain bookkeeping. It draws nothing; Layout exposes what a renderer would
// show.
type Host struct {
	cfg Config
	log *zap.Logger

	mu          sync.Mutex
	width       int
	height      int
	surfaces    map[id.SurfaceID]*Surface
	attached    map[id.SurfaceID]struct{}
	bounds      map[id.SurfaceID]types.Rect
	windows     map[string]*Window
	focusTarget id.SurfaceID
	hostFocus   int
	closed      bool
}

// Layout is a snapshot of the main window and standalone windows
type Layout struct {
	Width       int             `json:"width"`
	Height      int             `json:"height"`
	FocusTarget string          `json:"focus_target,omitempty"`
	Attached    []SurfaceLayout `json:"attached"`
	Windows     []WindowInfo    `json:"windows"`
}

// SurfaceLayout is one surface shown in the main window
type SurfaceLayout struct {
	SurfaceID string     `json:"surface_id"`
	URL       string     `json:"url"`
	Bounds    types.Rect `json:"bounds"`
}

// WindowInfo describes a standalone window
type WindowInfo struct {
	ID        string              `json:"id"`
	SurfaceID string              `json:"surface_id"`
	Size      types.Geometry      `json:"size"`
	Options   types.WindowOptions `json:"options"`
}

var _ lifecycle.WindowHost = (*Host)(nil)

// NewHost creates a host with the given surface limits
func NewHost(cfg Config, log *zap.Logger) *Host {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Host{
		cfg:      cfg,
		log:      log,
		width:    cfg.HostWidth,
		surfaces: make(map[id.SurfaceID]*Surface),
		attached: make(map[id.SurfaceID]struct{}),
		bounds:   make(map[id.SurfaceID]types.Rect),
		windows:  make(map[string]*Window),
	}
}

// AllocateSurface starts a new VM bound to sess
func (h *Host) AllocateSurface(ctx context.Context, sess *session.Handle, preload string) (lifecycle.Surface, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	s, err := newSurface(h.cfg, sess, preload, h.log)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.surfaces[s.id] = s
	h.mu.Unlock()

	go func() {
		<-s.exited
		h.forget(s.id)
	}()
	return s, nil
}

func (h *Host) forget(sid id.SurfaceID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.surfaces, sid)
	delete(h.attached, sid)
	delete(h.bounds, sid)
	if h.focusTarget == sid {
		h.focusTarget = ""
	}
}

func (h *Host) Attach(s lifecycle.Surface) {
	h.mu.Lock()
	h.attached[s.ID()] = struct{}{}
	h.mu.Unlock()
}

func (h *Host) Detach(s lifecycle.Surface) {
	h.mu.Lock()
	delete(h.attached, s.ID())
	h.mu.Unlock()
}

func (h *Host) SetBounds(s lifecycle.Surface, bounds types.Rect) {
	h.mu.Lock()
	h.bounds[s.ID()] = bounds
	h.mu.Unlock()
}

// ResizeHost sets the main window height
func (h *Host) ResizeHost(height int) {
	h.mu.Lock()
	h.height = height
	h.mu.Unlock()
}

func (h *Host) HostWidth() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.width
}

// SetWidth records a main window width change
func (h *Host) SetWidth(width int) {
	if width <= 0 {
		return
	}
	h.mu.Lock()
	h.width = width
	h.mu.Unlock()
}

func (h *Host) FocusHost() {
	h.mu.Lock()
	h.focusTarget = ""
	h.hostFocus++
	h.mu.Unlock()
}

func (h *Host) SetFocusTarget(s lifecycle.Surface) {
	h.mu.Lock()
	h.focusTarget = s.ID()
	h.mu.Unlock()
}

// CreateStandaloneWindow wraps s in a window. s must come from this host.
func (h *Host) CreateStandaloneWindow(ctx context.Context, size types.Geometry, s lifecycle.Surface, opts types.WindowOptions) (lifecycle.Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	js, ok := s.(*Surface)
	if !ok {
		return nil, ErrNotJSVMSurface
	}
	if js.Destroyed() {
		return nil, ErrClosed
	}

	w := &Window{
		id:      uuid.NewString(),
		host:    h,
		surface: js,
		size:    size,
		opts:    opts,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	h.windows[w.id] = w
	h.log.Debug("Window created", zap.String("window_id", w.id), zap.String("title", opts.Title))
	return w, nil
}

func (h *Host) removeWindow(wid string) {
	h.mu.Lock()
	delete(h.windows, wid)
	h.mu.Unlock()
}

// Surface returns a live surface by ID
func (h *Host) Surface(sid id.SurfaceID) (*Surface, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.surfaces[sid]
	return s, ok
}

// Window returns an open window by ID
func (h *Host) Window(wid string) (*Window, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.windows[wid]
	return w, ok
}

// Layout snapshots the current placement
func (h *Host) Layout() Layout {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := Layout{
		Width:       h.width,
		Height:      h.height,
		FocusTarget: h.focusTarget.String(),
		Attached:    make([]SurfaceLayout, 0, len(h.attached)),
		Windows:     make([]WindowInfo, 0, len(h.windows)),
	}
	for sid := range h.attached {
		sl := SurfaceLayout{SurfaceID: sid.String(), Bounds: h.bounds[sid]}
		if s, ok := h.surfaces[sid]; ok {
			sl.URL = s.URL()
		}
		out.Attached = append(out.Attached, sl)
	}
	for _, w := range h.windows {
		out.Windows = append(out.Windows, w.info())
	}
	sort.Slice(out.Attached, func(i, j int) bool { return out.Attached[i].SurfaceID < out.Attached[j].SurfaceID })
	sort.Slice(out.Windows, func(i, j int) bool { return out.Windows[i].ID < out.Windows[j].ID })
	return out
}

// Close closes every window and surface. Window close handlers run.
func (h *Host) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	windows := make([]*Window, 0, len(h.windows))
	for _, w := range h.windows {
		windows = append(windows, w)
	}
	surfaces := make([]*Surface, 0, len(h.surfaces))
	for _, s := range h.surfaces {
		surfaces = append(surfaces, s)
	}
	h.mu.Unlock()

	for _, w := range windows {
		w.Close()
	}
	for _, s := range surfaces {
		s.Close()
	}
}
