package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"
	"github.com/charlievieth/fastwalk"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/launcher/internal/shared/paths"
	"github.com/GriffinCanCode/launcher/internal/shared/utils"
)

var ErrInvalid = errors.New("invalid plugin manifest")

// Loader reads and validates plugin manifests
type Loader struct {
	validate *validator.Validate
	log      *zap.Logger
}

// NewLoader creates a manifest loader
func NewLoader(log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
}

// Read loads <pluginPath>/plugin.json. Every failure wraps ErrInvalid.
func (l *Loader) Read(pluginPath string) (*Manifest, error) {
	file := paths.Manifest(pluginPath)
	info, err := os.Stat(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if info.Size() > utils.MaxJSONSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrInvalid, file, info.Size())
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return l.Parse(pluginPath, data)
}

// Parse decodes and validates manifest bytes for the plugin at pluginPath
func (l *Loader) Parse(pluginPath string, data []byte) (*Manifest, error) {
	var m Manifest
	if err := sonic.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, pluginPath, err)
	}
	if err := l.validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, pluginPath, err)
	}
	if err := paths.ValidatePartitionName(m.Name); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, pluginPath, err)
	}
	if err := checkFeatures(m.Features); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, pluginPath, err)
	}

	m.Dir = pluginPath
	for _, rel := range []string{m.Main, m.Preload, m.Logo} {
		if rel == "" || IsRemote(rel) {
			continue
		}
		if !paths.Within(pluginPath, filepath.Join(pluginPath, rel)) {
			return nil, fmt.Errorf("%w: %s: %q escapes the plugin directory", ErrInvalid, pluginPath, rel)
		}
	}
	return &m, nil
}

func checkFeatures(features []Feature) error {
	seen := make(map[string]struct{}, len(features))
	for _, f := range features {
		if err := utils.ValidateFeatureCode(f.Code, true); err != nil {
			return err
		}
		if _, dup := seen[f.Code]; dup {
			return fmt.Errorf("duplicate feature code %q", f.Code)
		}
		seen[f.Code] = struct{}{}
	}
	return nil
}

// MaxScanDepth is the deepest directory level Scan descends into
const MaxScanDepth = 2

// ScanIgnore holds doublestar patterns, relative to the scan root, of
// directories Scan never enters
var ScanIgnore = []string{"**/node_modules", "**/.*"}

// Scan loads every bundle under root. Bundles may sit directly under root
// or one group directory below it; a bundle nested inside another bundle is
// part of the outer one. Invalid bundles are logged and skipped.
func (l *Loader) Scan(root string) ([]*Manifest, error) {
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			l.log.Warn("plugin directory not found", zap.String("root", root))
			return nil, nil
		}
		return nil, err
	}

	var (
		mu   sync.Mutex
		dirs []string
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if scanIgnored(rel) || strings.Count(rel, "/")+1 > MaxScanDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == paths.ManifestFile && rel != paths.ManifestFile {
			mu.Lock()
			dirs = append(dirs, filepath.Dir(p))
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var loaded []*Manifest
	var failed int
	for _, dir := range outermost(dirs) {
		m, err := l.Read(dir)
		if err != nil {
			l.log.Warn("failed to load plugin", zap.String("plugin_path", dir), zap.Error(err))
			failed++
			continue
		}
		loaded = append(loaded, m)
	}

	sort.Slice(loaded, func(i, j int) bool { return loaded[i].Name < loaded[j].Name })
	l.log.Info("plugin scan complete",
		zap.String("root", root),
		zap.Int("loaded", len(loaded)),
		zap.Int("failed", failed))
	return loaded, nil
}

func scanIgnored(rel string) bool {
	for _, pattern := range ScanIgnore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// outermost drops directories that sit inside another listed directory
func outermost(dirs []string) []string {
	sort.Strings(dirs)
	var out []string
next:
	for _, dir := range dirs {
		for _, kept := range out {
			if paths.Within(kept, dir) {
				continue next
			}
		}
		out = append(out, dir)
	}
	return out
}
