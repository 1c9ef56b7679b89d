package manifest

import (
	"net/url"
	"path/filepath"
	"strings"
)

// HeadlessEntryURL is loaded by surfaces of plugins that declare no entry
const HeadlessEntryURL = "launcher://headless"

// Manifest is the parsed plugin.json of one plugin bundle
type Manifest struct {
	Name        string       `json:"name" validate:"required,max=128"`
	Title       string       `json:"title,omitempty" validate:"max=256"`
	Version     string       `json:"version,omitempty"`
	Description string       `json:"description,omitempty"`
	Main        string       `json:"main,omitempty"`
	Preload     string       `json:"preload,omitempty"`
	Logo        string       `json:"logo,omitempty"`
	Development *Development `json:"development,omitempty"`
	Features    []Feature    `json:"features,omitempty" validate:"dive"`

	// Dir is the plugin path the manifest was read from
	Dir string `json:"-"`
}

// Development holds overrides applied to plugins registered as in development
type Development struct {
	Main string `json:"main,omitempty"`
}

// Feature is one invocable entry of a plugin
type Feature struct {
	Code    string `json:"code" validate:"required,max=128"`
	Explain string `json:"explain,omitempty"`
}

// Headless reports whether the plugin declares no renderable entry
func (m *Manifest) Headless() bool {
	return m.Main == ""
}

// DisplayTitle returns the title, falling back to the name
func (m *Manifest) DisplayTitle() string {
	if m.Title != "" {
		return m.Title
	}
	return m.Name
}

// FeatureCodes returns the declared capability table
func (m *Manifest) FeatureCodes() []string {
	codes := make([]string, 0, len(m.Features))
	for _, f := range m.Features {
		codes = append(codes, f.Code)
	}
	return codes
}

// HasFeature reports whether code is declared
func (m *Manifest) HasFeature(code string) bool {
	for _, f := range m.Features {
		if f.Code == code {
			return true
		}
	}
	return false
}

// EntryURL resolves what a surface should load:
//   - no main: the headless placeholder
//   - development override when the plugin is registered as in development
//   - http(s) main as is
//   - otherwise a file URL under the plugin directory
func (m *Manifest) EntryURL(isDevelopment bool) string {
	switch {
	case m.Headless():
		return HeadlessEntryURL
	case isDevelopment && m.Development != nil && m.Development.Main != "":
		return m.Development.Main
	case IsRemote(m.Main):
		return m.Main
	default:
		return FileURL(filepath.Join(m.Dir, m.Main))
	}
}

// PreloadPath returns the absolute preload script path, or "" when none
func (m *Manifest) PreloadPath() string {
	if m.Preload == "" {
		return ""
	}
	return filepath.Join(m.Dir, m.Preload)
}

// LogoURL returns a file URL for the logo, or "" when none
func (m *Manifest) LogoURL() string {
	if m.Logo == "" {
		return ""
	}
	return FileURL(filepath.Join(m.Dir, m.Logo))
}

// IsRemote reports whether entry is an http(s) URL
func IsRemote(entry string) bool {
	return strings.HasPrefix(entry, "http://") || strings.HasPrefix(entry, "https://")
}

// FileURL converts an absolute path to a file:// URL
func FileURL(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// PathFromFileURL returns the local path of a file:// URL
func PathFromFileURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "file" {
		return "", false
	}
	return filepath.FromSlash(u.Path), true
}
