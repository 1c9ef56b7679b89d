package types

import "encoding/json"

// Mode is the interaction mode a plugin reports for a feature
type Mode string

const (
	ModeHeaded   Mode = "headed"
	ModeHeadless Mode = "none"
)

// Rect is a surface placement in host layout units
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Geometry is the size of a standalone window
type Geometry struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SubInput is the state of a plugin's secondary search box
type SubInput struct {
	Placeholder string `json:"placeholder"`
	Value       string `json:"value"`
	Visible     bool   `json:"visible"`
}

// DefaultSubInput returns the sub-input state of a freshly created instance
func DefaultSubInput() SubInput {
	return SubInput{Placeholder: "Search", Visible: false}
}

// LaunchParam is what a plugin receives when one of its features is invoked
type LaunchParam struct {
	Code    string          `json:"code"`
	Type    string          `json:"type"`
	Label   string          `json:"label,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Termination describes why a surface's execution context went away
type Termination struct {
	Reason   string `json:"reason"`
	ExitCode int    `json:"exit_code"`
}

// InputEvent is a synthetic keyboard or mouse event forwarded to a surface
type InputEvent struct {
	Type      string   `json:"type"` // keyDown, keyUp, mouseDown, mouseUp, mouseWheel, ...
	KeyCode   string   `json:"key_code,omitempty"`
	X         int      `json:"x,omitempty"`
	Y         int      `json:"y,omitempty"`
	DeltaX    int      `json:"delta_x,omitempty"`
	DeltaY    int      `json:"delta_y,omitempty"`
	Modifiers []string `json:"modifiers,omitempty"`
}

// WindowOptions carries presentation state into a standalone window
type WindowOptions struct {
	Title             string `json:"title"`
	Logo              string `json:"logo,omitempty"`
	SearchQuery       string `json:"search_query"`
	SearchPlaceholder string `json:"search_placeholder"`
	SubInputVisible   bool   `json:"sub_input_visible"`
	AutoFocusSubInput bool   `json:"auto_focus_sub_input"`
}

// InstanceInfo identifies the plugin that owns a surface
type InstanceInfo struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	IsInternal bool   `json:"is_internal"`
}

// RunningInstance is one row of the running-plugins listing
type RunningInstance struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Active   bool   `json:"active"`
	Detached bool   `json:"detached"`
	Loading  bool   `json:"loading,omitempty"`
}

// RegisteredPlugin is one entry of the persisted registered-plugins list
type RegisteredPlugin struct {
	Path          string `json:"path"`
	Name          string `json:"name"`
	IsDevelopment bool   `json:"isDevelopment"`
}

// Result is the tagged outcome returned across the public boundary
type Result struct {
	Success bool        `json:"success"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Stats summarizes the controller's registry
type Stats struct {
	Registered int    `json:"registered"`
	Detached   int    `json:"detached"`
	ActivePath string `json:"active_path,omitempty"`
}
