package lifecycle

import (
	"errors"

	"github.com/GriffinCanCode/launcher/internal/domain/manifest"
	"github.com/GriffinCanCode/launcher/internal/domain/rpc"
	"github.com/GriffinCanCode/launcher/internal/domain/session"
)

var (
	ErrManifestInvalid       = manifest.ErrInvalid
	ErrSessionSetupFailed    = session.ErrSetupFailed
	ErrRPCTimeout            = rpc.ErrTimeout
	ErrSurfaceAllocation     = errors.New("surface allocation failed")
	ErrNoActiveInstance      = errors.New("no active plugin instance")
	ErrInstanceNotFound      = errors.New("plugin instance not found")
	ErrDetachFailed          = errors.New("detach failed")
	ErrHeadlessNotDetachable = errors.New("headless plugins cannot open in a standalone window")
	ErrUndeclaredCapability  = errors.New("feature not declared by plugin")
	ErrCreateAborted         = errors.New("plugin was killed while it was being created")
	ErrClosed                = errors.New("controller is closed")
)
