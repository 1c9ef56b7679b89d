package lifecycle

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/launcher/internal/domain/rpc"
	"github.com/GriffinCanCode/launcher/internal/infrastructure/logging"
	"github.com/GriffinCanCode/launcher/internal/infrastructure/store"
	"github.com/GriffinCanCode/launcher/internal/shared/id"
	"github.com/GriffinCanCode/launcher/internal/shared/types"
)

// hooks receive surface callbacks with the plugin path captured
type hooks struct {
	message    func(path string, sid id.SurfaceID, msg rpc.Message)
	terminated func(path string, sid id.SurfaceID, term types.Termination)
	focus      func(path string, s Surface)
}

// factory builds a fully wired instance for a plugin path
type factory struct {
	manifests ManifestReader
	sessions  SessionProvider
	host      WindowHost
	store     store.Store
	log       *zap.Logger
}

// build reads the manifest, provisions the session and allocates a surface.
// The returned instance has not started loading.
func (f *factory) build(ctx context.Context, path string, h hooks, rejectHeadless bool) (*instance, error) {
	m, err := f.manifests.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if rejectHeadless && m.Headless() {
		return nil, fmt.Errorf("%s: %w", m.Name, ErrHeadlessNotDetachable)
	}

	isDev := false
	if entry, found, err := store.FindRegistered(ctx, f.store, path); err != nil {
		f.log.Warn("Failed to read registered plugins", logging.PluginPath(path), zap.Error(err))
	} else if found {
		isDev = entry.IsDevelopment
	}

	sess, err := f.sessions.ForName(ctx, m.Name)
	if err != nil {
		return nil, fmt.Errorf("session for %s: %w", m.Name, err)
	}

	surface, err := f.host.AllocateSurface(ctx, sess, m.PreloadPath())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSurfaceAllocation, m.Name, err)
	}

	sid := surface.ID()
	surface.OnMessage(func(msg rpc.Message) { h.message(path, sid, msg) })
	surface.OnTerminated(func(term types.Termination) { h.terminated(path, sid, term) })
	surface.OnFocus(func() { h.focus(path, surface) })

	f.log.Debug("Built plugin surface",
		logging.PluginPath(path),
		logging.PluginName(m.Name),
		logging.SurfaceID(sid.String()),
		zap.Bool("development", isDev),
		zap.Bool("headless", m.Headless()))

	return &instance{
		Path:          path,
		Name:          m.Name,
		Title:         m.DisplayTitle(),
		Surface:       surface,
		Manifest:      m,
		Session:       sess,
		SubInput:      types.DefaultSubInput(),
		IsDevelopment: isDev,
		LogoURL:       m.LogoURL(),
		Headless:      m.Headless(),
		EntryURL:      m.EntryURL(isDev),
	}, nil
}
