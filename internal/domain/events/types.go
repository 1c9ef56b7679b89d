package events

import "time"

// Event is implemented by everything published on the bus.
// Type names follow "category.action".
type Event interface {
	EventType() string
	Timestamp() time.Time
}

// Event type names
const (
	TypePluginOpened   = "plugin.opened"
	TypePluginLoaded   = "plugin.loaded"
	TypePluginClosed   = "plugin.closed"
	TypePluginCrashed  = "plugin.crashed"
	TypePluginDetached = "plugin.detached"
	TypeBackToSearch   = "ui.back-to-search"
)

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// PluginOpened is emitted when an instance becomes the foreground plugin
type PluginOpened struct {
	baseEvent
	Path                string `json:"path"`
	Name                string `json:"name"`
	Title               string `json:"title"`
	Logo                string `json:"logo,omitempty"`
	Label               string `json:"label,omitempty"`
	SubInputPlaceholder string `json:"sub_input_placeholder"`
	SubInputVisible     bool   `json:"sub_input_visible"`
}

// OpenedInfo carries the presentation fields of a PluginOpened event
type OpenedInfo struct {
	Path                string
	Name                string
	Title               string
	Logo                string
	Label               string
	SubInputPlaceholder string
	SubInputVisible     bool
}

func NewPluginOpened(info OpenedInfo) PluginOpened {
	return PluginOpened{
		baseEvent:           newBaseEvent(TypePluginOpened),
		Path:                info.Path,
		Name:                info.Name,
		Title:               info.Title,
		Logo:                info.Logo,
		Label:               info.Label,
		SubInputPlaceholder: info.SubInputPlaceholder,
		SubInputVisible:     info.SubInputVisible,
	}
}

// PluginLoaded is emitted once an instance's content is ready
type PluginLoaded struct {
	baseEvent
	Path string `json:"path"`
	Name string `json:"name"`
}

func NewPluginLoaded(path, name string) PluginLoaded {
	return PluginLoaded{baseEvent: newBaseEvent(TypePluginLoaded), Path: path, Name: name}
}

// PluginClosed is emitted when the foreground plugin leaves the main surface
type PluginClosed struct {
	baseEvent
	Path string `json:"path,omitempty"`
}

func NewPluginClosed(path string) PluginClosed {
	return PluginClosed{baseEvent: newBaseEvent(TypePluginClosed), Path: path}
}

// PluginCrashed is emitted when a plugin surface terminates unexpectedly
type PluginCrashed struct {
	baseEvent
	Path     string `json:"path"`
	Name     string `json:"name"`
	Reason   string `json:"reason"`
	ExitCode int    `json:"exit_code"`
}

func NewPluginCrashed(path, name, reason string, exitCode int) PluginCrashed {
	return PluginCrashed{
		baseEvent: newBaseEvent(TypePluginCrashed),
		Path:      path,
		Name:      name,
		Reason:    reason,
		ExitCode:  exitCode,
	}
}

// PluginDetached is emitted after an instance moved to a standalone window
type PluginDetached struct {
	baseEvent
	Path     string `json:"path"`
	Name     string `json:"name"`
	WindowID string `json:"window_id"`
}

func NewPluginDetached(path, name, windowID string) PluginDetached {
	return PluginDetached{baseEvent: newBaseEvent(TypePluginDetached), Path: path, Name: name, WindowID: windowID}
}

// BackToSearch asks the front-end to return focus to the search box
type BackToSearch struct {
	baseEvent
}

func NewBackToSearch() BackToSearch {
	return BackToSearch{baseEvent: newBaseEvent(TypeBackToSearch)}
}
