package lifecycle

import (
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/launcher/internal/domain/events"
	"github.com/GriffinCanCode/launcher/internal/domain/rpc"
	"github.com/GriffinCanCode/launcher/internal/infrastructure/store"
)

// MinDefaultHeight is the floor applied by SetDefaultHeight
const MinDefaultHeight = 200

// Config holds layout constants and timeouts
type Config struct {
	SearchBarHeight   int
	DefaultHeight     int
	ModeTimeout       time.Duration
	MethodTimeout     time.Duration
	KillGrace         time.Duration
	DetachedWidth     int
	TitlebarHeight    int
	MinDetachedWidth  int
	MinDetachedHeight int
}

// DefaultConfig returns the launcher's stock layout
func DefaultConfig() Config {
	return Config{
		SearchBarHeight:   59,
		DefaultHeight:     541,
		ModeTimeout:       time.Second,
		MethodTimeout:     30 * time.Second,
		KillGrace:         200 * time.Millisecond,
		DetachedWidth:     800,
		TitlebarHeight:    40,
		MinDetachedWidth:  400,
		MinDetachedHeight: 300,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SearchBarHeight <= 0 {
		c.SearchBarHeight = def.SearchBarHeight
	}
	if c.DefaultHeight <= 0 {
		c.DefaultHeight = def.DefaultHeight
	}
	if c.ModeTimeout <= 0 {
		c.ModeTimeout = def.ModeTimeout
	}
	if c.MethodTimeout <= 0 {
		c.MethodTimeout = def.MethodTimeout
	}
	if c.KillGrace < 0 {
		c.KillGrace = 0
	}
	if c.DetachedWidth <= 0 {
		c.DetachedWidth = def.DetachedWidth
	}
	if c.TitlebarHeight < 0 {
		c.TitlebarHeight = 0
	}
	return c
}

// Deps are the collaborators a controller drives. Manifests, Sessions, Host
// and Store are required.
type Deps struct {
	Manifests ManifestReader
	Sessions  SessionProvider
	Host      WindowHost
	Store     store.Store
	Bridge    *rpc.Bridge
	Events    events.Publisher
	Metrics   Recorder
	Log       *zap.Logger
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) {}
