package lifecycle

import (
	"context"

	"github.com/GriffinCanCode/launcher/internal/domain/manifest"
	"github.com/GriffinCanCode/launcher/internal/domain/rpc"
	"github.com/GriffinCanCode/launcher/internal/domain/session"
	"github.com/GriffinCanCode/launcher/internal/shared/id"
	"github.com/GriffinCanCode/launcher/internal/shared/types"
)

// ManifestReader loads a plugin bundle's manifest
type ManifestReader interface {
	Read(pluginPath string) (*manifest.Manifest, error)
}

// SessionProvider returns the partition for a plugin name
type SessionProvider interface {
	ForName(ctx context.Context, name string) (*session.Handle, error)
}

// Surface is an isolated execution context rendering one plugin.
//
// Methods must not block on the surface's own work and must not invoke the
// registered callbacks synchronously. The controller calls them while holding
// its lock.
type Surface interface {
	ID() id.SurfaceID
	// Load starts loading url; onReady, if non-nil, runs once when the
	// content is ready. Load is called without the controller lock, so
	// onReady may run before it returns.
	Load(url string, onReady func()) error
	Send(msg rpc.Message) error
	Focus()
	SendInputEvent(evt types.InputEvent) error
	Close()
	Destroyed() bool

	OnMessage(fn func(msg rpc.Message))
	OnTerminated(fn func(term types.Termination))
	OnFocus(fn func())
}

// Window is a standalone top-level window
type Window interface {
	ID() string
	Surface() Surface
	Focus()
	Close()
	// OnClosed adds a handler run once with the window's final content size
	OnClosed(fn func(size types.Geometry))
}

// WindowHost owns the main window's plugin area and creates standalone
// windows. Same non-blocking contract as Surface.
type WindowHost interface {
	AllocateSurface(ctx context.Context, sess *session.Handle, preload string) (Surface, error)
	Attach(s Surface)
	Detach(s Surface)
	SetBounds(s Surface, bounds types.Rect)
	ResizeHost(height int)
	HostWidth() int
	FocusHost()
	SetFocusTarget(s Surface)
	CreateStandaloneWindow(ctx context.Context, size types.Geometry, s Surface, opts types.WindowOptions) (Window, error)
}

// Recorder receives lifecycle metrics
type Recorder interface {
	RecordCreate(outcome string)
	RecordKill(reason string)
	RecordCrash()
	RecordMode(mode string)
	SetInstances(registered, detached int)
}

type nopRecorder struct{}

func (nopRecorder) RecordCreate(string)   {}
func (nopRecorder) RecordKill(string)     {}
func (nopRecorder) RecordCrash()          {}
func (nopRecorder) RecordMode(string)     {}
func (nopRecorder) SetInstances(int, int) {}
