package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/GriffinCanCode/launcher/internal/shared/types"
)

// RegisteredPlugins reads the registered-plugins list. Absent means empty.
func RegisteredPlugins(ctx context.Context, s Store) ([]types.RegisteredPlugin, error) {
	var plugins []types.RegisteredPlugin
	if _, err := s.Get(ctx, KeyPlugins, &plugins); err != nil {
		return nil, err
	}
	return plugins, nil
}

// FindRegistered returns the entry whose path matches
func FindRegistered(ctx context.Context, s Store, path string) (types.RegisteredPlugin, bool, error) {
	plugins, err := RegisteredPlugins(ctx, s)
	if err != nil {
		return types.RegisteredPlugin{}, false, err
	}
	for _, p := range plugins {
		if p.Path == path {
			return p, true, nil
		}
	}
	return types.RegisteredPlugin{}, false, nil
}

// RegisterPlugins appends entries whose path is not registered yet and
// returns how many were added. Existing entries keep their stored flags.
func RegisterPlugins(ctx context.Context, s Store, plugins []types.RegisteredPlugin) (int, error) {
	current, err := RegisteredPlugins(ctx, s)
	if err != nil {
		return 0, err
	}
	known := make(map[string]struct{}, len(current))
	for _, p := range current {
		known[p.Path] = struct{}{}
	}

	added := 0
	for _, p := range plugins {
		if _, ok := known[p.Path]; ok {
			continue
		}
		known[p.Path] = struct{}{}
		current = append(current, p)
		added++
	}
	if added == 0 {
		return 0, nil
	}
	if err := s.Put(ctx, KeyPlugins, current); err != nil {
		return 0, fmt.Errorf("register plugins: %w", err)
	}
	return added, nil
}

// KillOnExit reports whether name is in the kill-on-exit list
func KillOnExit(ctx context.Context, s Store, name string) (bool, error) {
	var names []string
	if _, err := s.Get(ctx, KeyKillOnExit, &names); err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// rawSize tolerates missing members in stored sizes
type rawSize struct {
	Width  *float64 `json:"width"`
	Height *float64 `json:"height"`
}

// DetachedSize reads the last standalone window size stored for name.
// Malformed or non-finite entries read as absent.
func DetachedSize(ctx context.Context, s Store, name string) (types.Geometry, bool, error) {
	var sizes map[string]json.RawMessage
	found, err := s.Get(ctx, KeyDetachedSizes, &sizes)
	if err != nil {
		if found {
			return types.Geometry{}, false, nil
		}
		return types.Geometry{}, false, err
	}

	entry, ok := sizes[name]
	if !ok {
		return types.Geometry{}, false, nil
	}
	var size rawSize
	if err := decode(entry, &size); err != nil || size.Width == nil || size.Height == nil {
		return types.Geometry{}, false, nil
	}
	w, h := *size.Width, *size.Height
	if math.IsNaN(w) || math.IsInf(w, 0) || math.IsNaN(h) || math.IsInf(h, 0) {
		return types.Geometry{}, false, nil
	}
	return types.Geometry{Width: int(math.Round(w)), Height: int(math.Round(h))}, true, nil
}

// SaveDetachedSize records the size for name, keeping other entries as stored
func SaveDetachedSize(ctx context.Context, s Store, name string, size types.Geometry) error {
	var sizes map[string]json.RawMessage
	if found, err := s.Get(ctx, KeyDetachedSizes, &sizes); err != nil && !found {
		return err
	}
	if sizes == nil {
		sizes = make(map[string]json.RawMessage)
	}

	raw, err := encode(size)
	if err != nil {
		return err
	}
	sizes[name] = raw
	if err := s.Put(ctx, KeyDetachedSizes, sizes); err != nil {
		return fmt.Errorf("save detached size for %s: %w", name, err)
	}
	return nil
}
