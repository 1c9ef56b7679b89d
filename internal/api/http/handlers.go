package http

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/launcher/internal/domain/lifecycle"
	"github.com/GriffinCanCode/launcher/internal/domain/manifest"
	"github.com/GriffinCanCode/launcher/internal/infrastructure/surface/jsvm"
	"github.com/GriffinCanCode/launcher/internal/infrastructure/tracing"
)

// Handlers exposes the lifecycle controller over HTTP
type Handlers struct {
	ctrl       *lifecycle.Controller
	host       *jsvm.Host // optional, serves /layout
	manifests  *manifest.Loader
	pluginRoot string
	timeout    time.Duration
	tracer     *tracing.Tracer // optional
	log        *zap.Logger
}

// Options configures optional handler dependencies
type Options struct {
	Host       *jsvm.Host
	Manifests  *manifest.Loader
	PluginRoot string
	Tracer     *tracing.Tracer
	// Timeout bounds blocking operations (create, detach, call)
	Timeout time.Duration
}

// NewHandlers creates a new handler set
func NewHandlers(ctrl *lifecycle.Controller, opts Options, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	return &Handlers{
		ctrl:       ctrl,
		host:       opts.Host,
		manifests:  opts.Manifests,
		pluginRoot: opts.PluginRoot,
		timeout:    opts.Timeout,
		tracer:     opts.Tracer,
		log:        log,
	}
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	p := r.Group("/plugins")
	p.POST("/create", h.Create)
	p.POST("/hide", h.Hide)
	p.POST("/kill", h.Kill)
	p.POST("/kill-all", h.KillAll)
	p.POST("/kill-active", h.KillActive)
	p.POST("/detach", h.Detach)
	p.POST("/create-detached", h.CreateDetached)
	p.POST("/call", h.Call)
	p.POST("/message", h.SendMessage)
	p.POST("/input", h.SendInput)
	p.POST("/resize", h.Resize)
	p.POST("/bounds", h.UpdateBounds)
	p.POST("/sub-input", h.SubInput)
	p.POST("/escape", h.Escape)
	p.GET("/suppress-main-hide", h.SuppressMainHide)
	p.GET("/default-height", h.GetDefaultHeight)
	p.PUT("/default-height", h.SetDefaultHeight)
	p.GET("/running", h.Running)
	p.GET("/stats", h.Stats)
	p.GET("/installed", h.Installed)

	r.GET("/layout", h.Layout)
}

// Root handles health check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":  "online",
		"service": "launcher plugin host",
	})
}

// Health reports controller stats
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":  "healthy",
		"plugins": h.ctrl.Stats(),
	})
}

// opContext bounds a blocking operation by the request and the handler timeout
func (h *Handlers) opContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

// traced runs op under a child span of the request's trace
func (h *Handlers) traced(ctx context.Context, name string, tags map[string]string, op func(context.Context) error) error {
	if h.tracer == nil {
		return op(ctx)
	}
	span, ctx := h.tracer.StartSpan(ctx, name)
	for k, v := range tags {
		span.SetTag(k, v)
	}
	err := op(ctx)
	if err != nil {
		span.SetError(err)
	}
	span.Finish()
	h.tracer.Submit(span)
	return err
}
