package jsvm

import (
	"errors"
	"time"
)

var (
	ErrClosed         = errors.New("surface is closed")
	ErrNotJSVMSurface = errors.New("surface was not allocated by this host")
)

// Termination reasons and exit codes reported to OnTerminated
const (
	ReasonCrashed      = "crashed"
	ReasonUnresponsive = "unresponsive"
	ReasonLoadFailed   = "load-failed"

	exitCrashed      = 1
	exitUnresponsive = 2
	exitLoadFailed   = 3
)

// Config defines surface configuration
type Config struct {
	ScriptTimeout    time.Duration // Longest a single job may run before the surface is killed
	MaxCallStackSize int           // JS call stack depth limit
	MaxScriptBytes   int64         // Largest entry or preload script accepted
	ConsoleLimit     int           // Console entries retained per surface
	HostWidth        int           // Initial main window width
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    // log, warn, error, info
	Message string    // Log message
	Time    time.Time // Timestamp
}

// DefaultConfig returns the stock surface limits
func DefaultConfig() Config {
	return Config{
		ScriptTimeout:    5 * time.Second,
		MaxCallStackSize: 1024,
		MaxScriptBytes:   8 << 20,
		ConsoleLimit:     200,
		HostWidth:        800,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ScriptTimeout <= 0 {
		c.ScriptTimeout = def.ScriptTimeout
	}
	if c.MaxCallStackSize <= 0 {
		c.MaxCallStackSize = def.MaxCallStackSize
	}
	if c.MaxScriptBytes <= 0 {
		c.MaxScriptBytes = def.MaxScriptBytes
	}
	if c.ConsoleLimit <= 0 {
		c.ConsoleLimit = def.ConsoleLimit
	}
	if c.HostWidth <= 0 {
		c.HostWidth = def.HostWidth
	}
	return c
}
