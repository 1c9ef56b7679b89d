package jsvm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/launcher/internal/domain/lifecycle"
	"github.com/GriffinCanCode/launcher/internal/domain/rpc"
	"github.com/GriffinCanCode/launcher/internal/shared/id"
	"github.com/GriffinCanCode/launcher/internal/shared/types"
)

type foreignSurface struct{ lifecycle.Surface }

func (foreignSurface) ID() id.SurfaceID       { return "surf_foreign" }
func (foreignSurface) Send(rpc.Message) error { return nil }
func (foreignSurface) Destroyed() bool        { return false }

func TestHostLayout(t *testing.T) {
	h := NewHost(Config{HostWidth: 640}, zap.NewNop())
	defer h.Close()

	s, err := h.AllocateSurface(context.Background(), nil, "")
	require.NoError(t, err)

	h.Attach(s)
	h.SetBounds(s, types.Rect{X: 0, Y: 59, Width: h.HostWidth(), Height: 300})
	h.ResizeHost(359)
	h.SetFocusTarget(s)

	layout := h.Layout()
	assert.Equal(t, 640, layout.Width)
	assert.Equal(t, 359, layout.Height)
	assert.Equal(t, s.ID().String(), layout.FocusTarget)
	require.Len(t, layout.Attached, 1)
	assert.Equal(t, types.Rect{X: 0, Y: 59, Width: 640, Height: 300}, layout.Attached[0].Bounds)

	h.Detach(s)
	h.FocusHost()
	layout = h.Layout()
	assert.Empty(t, layout.Attached)
	assert.Empty(t, layout.FocusTarget)

	h.SetWidth(1024)
	assert.Equal(t, 1024, h.HostWidth())
}

func TestHostForgetsClosedSurfaces(t *testing.T) {
	h := NewHost(Config{}, zap.NewNop())
	defer h.Close()

	s, err := h.AllocateSurface(context.Background(), nil, "")
	require.NoError(t, err)
	_, ok := h.Surface(s.ID())
	require.True(t, ok)

	s.Close()
	<-s.(*Surface).Exited()
	assert.Eventually(t, func() bool {
		_, ok := h.Surface(s.ID())
		return !ok
	}, wait, 5*time.Millisecond)
}

func TestStandaloneWindow(t *testing.T) {
	h := NewHost(Config{}, zap.NewNop())
	defer h.Close()

	s, err := h.AllocateSurface(context.Background(), nil, "")
	require.NoError(t, err)

	opts := types.WindowOptions{Title: "Notes", SearchPlaceholder: "Search..."}
	w, err := h.CreateStandaloneWindow(context.Background(), types.Geometry{Width: 800, Height: 500}, s, opts)
	require.NoError(t, err)

	win, ok := h.Window(w.ID())
	require.True(t, ok)
	assert.Equal(t, opts, win.Options())
	assert.Same(t, s, w.Surface())

	w.Focus()
	assert.Equal(t, s.ID().String(), h.Layout().FocusTarget)

	var sizes []types.Geometry
	w.OnClosed(func(size types.Geometry) { sizes = append(sizes, size) })
	w.OnClosed(func(size types.Geometry) { sizes = append(sizes, size) })
	win.Resize(types.Geometry{Width: 900, Height: 600})

	w.Close()
	w.Close()
	assert.Equal(t, []types.Geometry{{Width: 900, Height: 600}, {Width: 900, Height: 600}}, sizes)
	_, ok = h.Window(w.ID())
	assert.False(t, ok)
	assert.False(t, s.Destroyed(), "closing a window leaves its surface to the owner")

	// Handlers added after close run immediately
	w.OnClosed(func(size types.Geometry) { sizes = append(sizes, size) })
	assert.Len(t, sizes, 3)
}

func TestStandaloneWindowRejectsForeignSurface(t *testing.T) {
	h := NewHost(Config{}, zap.NewNop())
	defer h.Close()

	_, err := h.CreateStandaloneWindow(context.Background(), types.Geometry{Width: 1, Height: 1}, foreignSurface{}, types.WindowOptions{})
	assert.ErrorIs(t, err, ErrNotJSVMSurface)
}

func TestHostClose(t *testing.T) {
	h := NewHost(Config{}, zap.NewNop())

	s, err := h.AllocateSurface(context.Background(), nil, "")
	require.NoError(t, err)
	w, err := h.CreateStandaloneWindow(context.Background(), types.Geometry{Width: 800, Height: 500}, s, types.WindowOptions{})
	require.NoError(t, err)

	closed := false
	w.OnClosed(func(types.Geometry) { closed = true })

	h.Close()
	assert.True(t, closed)
	assert.True(t, s.Destroyed())

	_, err = h.AllocateSurface(context.Background(), nil, "")
	assert.ErrorIs(t, err, ErrClosed)
}
