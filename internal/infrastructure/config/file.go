package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors Config for the file overlay. Every field is optional;
// durations are Go duration strings ("1s", "200ms").
type fileConfig struct {
	Server *struct {
		Port *string `toml:"port" yaml:"port"`
		Host *string `toml:"host" yaml:"host"`
	} `toml:"server" yaml:"server"`
	Plugins *struct {
		Root            *string  `toml:"root" yaml:"root"`
		SearchBarHeight *int     `toml:"search_bar_height" yaml:"search_bar_height"`
		DefaultHeight   *int     `toml:"default_height" yaml:"default_height"`
		ModeTimeout     *string  `toml:"mode_timeout" yaml:"mode_timeout"`
		MethodTimeout   *string  `toml:"method_timeout" yaml:"method_timeout"`
		KillGrace       *string  `toml:"kill_grace" yaml:"kill_grace"`
		ScriptTimeout   *string  `toml:"script_timeout" yaml:"script_timeout"`
		DetachedWidth   *int     `toml:"detached_width" yaml:"detached_width"`
		TitlebarHeight  *int     `toml:"titlebar_height" yaml:"titlebar_height"`
		InternalNames   []string `toml:"internal" yaml:"internal"`
	} `toml:"plugins" yaml:"plugins"`
	Store *struct {
		Driver *string `toml:"driver" yaml:"driver"`
		Path   *string `toml:"path" yaml:"path"`
	} `toml:"store" yaml:"store"`
	Session *struct {
		Proxy   *string `toml:"proxy" yaml:"proxy"`
		Retries *int    `toml:"retries" yaml:"retries"`
	} `toml:"session" yaml:"session"`
	Logging *struct {
		Level       *string `toml:"level" yaml:"level"`
		Development *bool   `toml:"development" yaml:"development"`
	} `toml:"logging" yaml:"logging"`
}

// ApplyFile overlays the file at path onto c. Files ending in .yaml or .yml
// are read as YAML, everything else as TOML.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return c.ApplyYAML(data)
	default:
		return c.ApplyTOML(data)
	}
}

// ApplyTOML overlays TOML document data onto c.
func (c *Config) ApplyTOML(data []byte) error {
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return c.apply(fc)
}

// ApplyYAML overlays YAML document data onto c.
func (c *Config) ApplyYAML(data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return c.apply(fc)
}

func (c *Config) apply(fc fileConfig) error {
	if s := fc.Server; s != nil {
		setString(&c.Server.Port, s.Port)
		setString(&c.Server.Host, s.Host)
	}
	if p := fc.Plugins; p != nil {
		setString(&c.Plugins.Root, p.Root)
		setInt(&c.Plugins.SearchBarHeight, p.SearchBarHeight)
		setInt(&c.Plugins.DefaultHeight, p.DefaultHeight)
		setInt(&c.Plugins.DetachedWidth, p.DetachedWidth)
		setInt(&c.Plugins.TitlebarHeight, p.TitlebarHeight)
		if p.InternalNames != nil {
			c.Plugins.InternalNames = p.InternalNames
		}
		for _, d := range []struct {
			dst *time.Duration
			src *string
		}{
			{&c.Plugins.ModeTimeout, p.ModeTimeout},
			{&c.Plugins.MethodTimeout, p.MethodTimeout},
			{&c.Plugins.KillGrace, p.KillGrace},
			{&c.Plugins.ScriptTimeout, p.ScriptTimeout},
		} {
			if err := setDuration(d.dst, d.src); err != nil {
				return err
			}
		}
	}
	if s := fc.Store; s != nil {
		setString(&c.Store.Driver, s.Driver)
		setString(&c.Store.Path, s.Path)
	}
	if s := fc.Session; s != nil {
		setString(&c.Session.Proxy, s.Proxy)
		setInt(&c.Session.Retries, s.Retries)
	}
	if l := fc.Logging; l != nil {
		setString(&c.Logging.Level, l.Level)
		if l.Development != nil {
			c.Logging.Development = *l.Development
		}
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *string) error {
	if src == nil {
		return nil
	}
	d, err := time.ParseDuration(*src)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", *src, err)
	}
	*dst = d
	return nil
}
