package lifecycle

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/launcher/internal/domain/manifest"
	"github.com/GriffinCanCode/launcher/internal/domain/rpc"
	"github.com/GriffinCanCode/launcher/internal/domain/session"
	"github.com/GriffinCanCode/launcher/internal/infrastructure/logging"
	"github.com/GriffinCanCode/launcher/internal/shared/id"
	"github.com/GriffinCanCode/launcher/internal/shared/paths"
	"github.com/GriffinCanCode/launcher/internal/shared/types"
	"github.com/GriffinCanCode/launcher/internal/shared/utils"
)

// WindowRequest is a plugin's request to open an extra window
type WindowRequest struct {
	Title  string `json:"title"`
	URL    string `json:"url"` // http(s) or a path inside the plugin bundle
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

const (
	defaultWindowWidth  = 800
	defaultWindowHeight = 600
)

// windowTracker remembers the windows each plugin opened. Its lock is a
// leaf: nothing is called while it is held.
type windowTracker struct {
	mu        sync.Mutex
	byPlugin  map[string][]Window
	bySurface map[id.SurfaceID]string
}

func newWindowTracker() *windowTracker {
	return &windowTracker{
		byPlugin:  make(map[string][]Window),
		bySurface: make(map[id.SurfaceID]string),
	}
}

func (t *windowTracker) track(path string, w Window) {
	t.mu.Lock()
	t.byPlugin[path] = append(t.byPlugin[path], w)
	if s := w.Surface(); s != nil {
		t.bySurface[s.ID()] = path
	}
	t.mu.Unlock()

	w.OnClosed(func(types.Geometry) { t.untrack(path, w) })
}

func (t *windowTracker) untrack(path string, w Window) {
	t.mu.Lock()
	defer t.mu.Unlock()

	list := t.byPlugin[path]
	for i, v := range list {
		if v == w {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(t.byPlugin, path)
	} else {
		t.byPlugin[path] = list
	}
	if s := w.Surface(); s != nil {
		delete(t.bySurface, s.ID())
	}
}

// closeByPlugin closes every window path opened and returns how many
func (t *windowTracker) closeByPlugin(path string) int {
	t.mu.Lock()
	list := t.byPlugin[path]
	delete(t.byPlugin, path)
	for _, w := range list {
		if s := w.Surface(); s != nil {
			delete(t.bySurface, s.ID())
		}
	}
	t.mu.Unlock()

	for _, w := range list {
		w.Close()
	}
	return len(list)
}

func (t *windowTracker) surfaces(path string) []Surface {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Surface, 0, len(t.byPlugin[path]))
	for _, w := range t.byPlugin[path] {
		if s := w.Surface(); s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (t *windowTracker) pluginFor(sid id.SurfaceID) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	path, ok := t.bySurface[sid]
	return path, ok
}

// TrackWindow records w as opened by the plugin at path
func (c *Controller) TrackWindow(path string, w Window) {
	c.windows.track(path, w)
}

// CloseByPlugin closes every window the plugin at path opened
func (c *Controller) CloseByPlugin(path string) int {
	return c.windows.closeByPlugin(path)
}

// OpenWindow opens an extra window for a running plugin. The window shares
// the plugin's session and closes with it.
func (c *Controller) OpenWindow(ctx context.Context, path string, req WindowRequest) (Window, error) {
	var (
		m    *manifest.Manifest
		sess *session.Handle
	)
	c.mu.Lock()
	if inst := c.reg.get(path); inst != nil && !inst.loading {
		m, sess = inst.Manifest, inst.Session
	} else if rec := c.reg.getDetached(path); rec != nil {
		m, sess = rec.Manifest, rec.Session
	}
	c.mu.Unlock()
	if m == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrInstanceNotFound)
	}

	url, err := windowURL(m, req.URL)
	if err != nil {
		return nil, err
	}

	surface, err := c.host.AllocateSurface(ctx, sess, m.PreloadPath())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSurfaceAllocation, err)
	}

	title := utils.SanitizeText(req.Title, utils.MaxLabelLength)
	if title == "" {
		title = m.DisplayTitle()
	}
	size := types.Geometry{Width: req.Width, Height: req.Height}
	if size.Width <= 0 {
		size.Width = defaultWindowWidth
	}
	if size.Height <= 0 {
		size.Height = defaultWindowHeight
	}

	window, err := c.host.CreateStandaloneWindow(ctx, size, surface, types.WindowOptions{Title: title})
	if err != nil {
		surface.Close()
		return nil, fmt.Errorf("%w: %v", ErrDetachFailed, err)
	}

	surface.OnMessage(func(msg rpc.Message) { c.bridge.Deliver(msg) })
	surface.OnTerminated(func(types.Termination) { window.Close() })
	surface.OnFocus(func() { c.host.SetFocusTarget(surface) })
	window.OnClosed(func(types.Geometry) {
		c.bridge.CloseTarget(surface)
		surface.Close()
	})

	c.mu.Lock()
	alive := c.reg.get(path) != nil || c.reg.getDetached(path) != nil
	if alive {
		c.windows.track(path, window)
	}
	c.mu.Unlock()
	if !alive {
		window.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrInstanceNotFound)
	}

	if err := surface.Load(url, nil); err != nil {
		window.Close()
		return nil, fmt.Errorf("%w: load %s: %v", ErrSurfaceAllocation, url, err)
	}
	c.log.Debug("Plugin window opened", logging.PluginPath(path), zap.String("window_id", window.ID()))
	return window, nil
}

// windowURL resolves a window target against the plugin bundle
func windowURL(m *manifest.Manifest, target string) (string, error) {
	if manifest.IsRemote(target) {
		return target, nil
	}
	if target == "" {
		return "", fmt.Errorf("window url is required")
	}
	full := filepath.Join(m.Dir, filepath.Clean(string(filepath.Separator)+target))
	if !paths.Within(m.Dir, full) {
		return "", fmt.Errorf("window url %q escapes the plugin bundle", target)
	}
	return manifest.FileURL(full), nil
}
