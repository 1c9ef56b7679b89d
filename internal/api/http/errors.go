package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/launcher/internal/domain/lifecycle"
	"github.com/GriffinCanCode/launcher/internal/domain/rpc"
	"github.com/GriffinCanCode/launcher/internal/shared/types"
)

// Result codes carried in types.Result.Code
const (
	CodeBadRequest      = "bad_request"
	CodeManifestInvalid = "manifest_invalid"
	CodeSessionFailed   = "session_setup_failed"
	CodeSurfaceFailed   = "surface_allocation_failed"
	CodeNoActive        = "no_active_instance"
	CodeNotFound        = "instance_not_found"
	CodeDetachFailed    = "detach_failed"
	CodeHeadless        = "headless_not_detachable"
	CodeUndeclared      = "undeclared_capability"
	CodeTimeout         = "rpc_timeout"
	CodeAborted         = "create_aborted"
	CodePluginError     = "plugin_error"
	CodeUnavailable     = "unavailable"
	CodeInternal        = "internal"
)

// classify maps a lifecycle error to an HTTP status and result code
func classify(err error) (int, string) {
	var remote *rpc.RemoteError
	switch {
	case errors.Is(err, lifecycle.ErrManifestInvalid):
		return http.StatusUnprocessableEntity, CodeManifestInvalid
	case errors.Is(err, lifecycle.ErrSessionSetupFailed):
		return http.StatusInternalServerError, CodeSessionFailed
	case errors.Is(err, lifecycle.ErrSurfaceAllocation):
		return http.StatusInternalServerError, CodeSurfaceFailed
	case errors.Is(err, lifecycle.ErrNoActiveInstance):
		return http.StatusConflict, CodeNoActive
	case errors.Is(err, lifecycle.ErrInstanceNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, lifecycle.ErrHeadlessNotDetachable):
		return http.StatusConflict, CodeHeadless
	case errors.Is(err, lifecycle.ErrDetachFailed):
		return http.StatusInternalServerError, CodeDetachFailed
	case errors.Is(err, lifecycle.ErrUndeclaredCapability):
		return http.StatusBadRequest, CodeUndeclared
	case errors.Is(err, lifecycle.ErrRPCTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	case errors.Is(err, lifecycle.ErrCreateAborted):
		return http.StatusConflict, CodeAborted
	case errors.Is(err, lifecycle.ErrClosed):
		return http.StatusServiceUnavailable, CodeUnavailable
	case errors.As(err, &remote):
		return http.StatusBadGateway, CodePluginError
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, types.Result{Success: true, Data: data})
}

func fail(c *gin.Context, err error) {
	status, code := classify(err)
	c.JSON(status, types.Result{Success: false, Code: code, Error: err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, types.Result{Success: false, Code: CodeBadRequest, Error: err.Error()})
}
