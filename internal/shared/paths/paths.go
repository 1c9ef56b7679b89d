// Package paths provides the launcher's on-disk layout.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// File and directory names under the data root and inside plugin bundles
const (
	ManifestFile   = "plugin.json"
	DatabaseFile   = "launcher.db"
	PartitionsDir  = "partitions"
	PartitionScope = "persist:"
)

// DefaultRoot returns the data root used when none is configured
func DefaultRoot() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "launcher")
	}
	return filepath.Join(os.TempDir(), "launcher")
}

// Layout resolves launcher paths relative to a data root
type Layout struct {
	Root string
}

// Database returns the persistent store location
func (l Layout) Database() string {
	return filepath.Join(l.Root, DatabaseFile)
}

// Partition returns the storage directory of a plugin's session partition
func (l Layout) Partition(name string) string {
	return filepath.Join(l.Root, PartitionsDir, name)
}

// Manifest returns the manifest location inside a plugin bundle
func Manifest(pluginPath string) string {
	return filepath.Join(pluginPath, ManifestFile)
}

// PartitionKey returns the persistent partition key for a plugin name
func PartitionKey(name string) string {
	return PartitionScope + name
}

// ValidatePartitionName checks that a plugin name is safe to use as a
// single directory component
func ValidatePartitionName(name string) error {
	if name == "" {
		return fmt.Errorf("partition name cannot be empty")
	}
	if filepath.IsAbs(name) {
		return fmt.Errorf("partition name cannot be an absolute path")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.Contains(name, "\x00") {
		return fmt.Errorf("partition name %q is not a single path component", name)
	}
	return nil
}

// Within reports whether target resolves inside base
func Within(base, target string) bool {
	rel, err := filepath.Rel(filepath.Clean(base), filepath.Clean(target))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
