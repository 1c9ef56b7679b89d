package jsvm

import (
	"sync"

	"github.com/GriffinCanCode/launcher/internal/domain/lifecycle"
	"github.com/GriffinCanCode/launcher/internal/shared/types"
)

// Window is a standalone window holding one surface
type Window struct {
	id      string
	host    *Host
	surface *Surface
	opts    types.WindowOptions

	mu       sync.Mutex
	size     types.Geometry
	closed   bool
	handlers []func(types.Geometry)
}

var _ lifecycle.Window = (*Window)(nil)

func (w *Window) ID() string                   { return w.id }
func (w *Window) Surface() lifecycle.Surface   { return w.surface }
func (w *Window) Options() types.WindowOptions { return w.opts }

// Focus focuses the window's surface
func (w *Window) Focus() {
	w.surface.Focus()
	w.host.SetFocusTarget(w.surface)
}

// Resize records a new content size, reported to close handlers
func (w *Window) Resize(size types.Geometry) {
	w.mu.Lock()
	if !w.closed && size.Width > 0 && size.Height > 0 {
		w.size = size
	}
	w.mu.Unlock()
}

func (w *Window) Size() types.Geometry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Close closes the window and runs close handlers. The surface is left to
// its owner.
func (w *Window) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	handlers := w.handlers
	w.handlers = nil
	size := w.size
	w.mu.Unlock()

	w.host.removeWindow(w.id)
	for _, fn := range handlers {
		fn(size)
	}
}

// OnClosed adds a close handler. On an already closed window it runs now.
func (w *Window) OnClosed(fn func(size types.Geometry)) {
	w.mu.Lock()
	if w.closed {
		size := w.size
		w.mu.Unlock()
		fn(size)
		return
	}
	w.handlers = append(w.handlers, fn)
	w.mu.Unlock()
}

func (w *Window) info() WindowInfo {
	return WindowInfo{
		ID:        w.id,
		SurfaceID: w.surface.id.String(),
		Size:      w.Size(),
		Options:   w.opts,
	}
}
