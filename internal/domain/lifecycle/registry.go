package lifecycle

import (
	"sync"

	"github.com/GriffinCanCode/launcher/internal/domain/manifest"
	"github.com/GriffinCanCode/launcher/internal/domain/session"
	"github.com/GriffinCanCode/launcher/internal/shared/id"
	"github.com/GriffinCanCode/launcher/internal/shared/types"
)

// instance is one plugin cached in the main registry. A placeholder (loading
// set, no surface) is inserted before the factory runs.
type instance struct {
	Path          string
	Name          string
	Title         string
	Surface       Surface
	Manifest      *manifest.Manifest
	Session       *session.Handle
	CachedHeight  int
	SubInput      types.SubInput
	IsDevelopment bool
	LogoURL       string
	Headless      bool
	EntryURL      string

	loading      bool
	contentReady bool

	// latest invocation, consumed when the content becomes ready
	featureCode string
	launch      types.LaunchParam

	ready     chan struct{} // closed once content is ready or the instance is gone
	readyOnce sync.Once
}

func newPlaceholder(path string) *instance {
	return &instance{
		Path:     path,
		SubInput: types.DefaultSubInput(),
		loading:  true,
		ready:    make(chan struct{}),
	}
}

// adopt copies a factory result into the placeholder so pointers held by
// concurrent callers stay valid
func (i *instance) adopt(built *instance) {
	i.Name = built.Name
	i.Title = built.Title
	i.Surface = built.Surface
	i.Manifest = built.Manifest
	i.Session = built.Session
	i.IsDevelopment = built.IsDevelopment
	i.LogoURL = built.LogoURL
	i.Headless = built.Headless
	i.EntryURL = built.EntryURL
	i.loading = false
}

func (i *instance) release() {
	i.readyOnce.Do(func() { close(i.ready) })
}

// detachedRecord is an instance living in a standalone window
type detachedRecord struct {
	PluginPath    string
	PluginName    string
	Surface       Surface
	Window        Window
	Size          types.Geometry
	SubInput      types.SubInput
	LogoURL       string
	IsDevelopment bool
	Internal      bool
	Manifest      *manifest.Manifest
	Session       *session.Handle
}

// reservation holds a path while CreateDetached builds its instance
type reservation struct {
	path string
}

// registry holds the main instances keyed by path plus the detached index.
// Not safe for concurrent use; the controller lock guards it.
type registry struct {
	entries   map[string]*instance
	order     []string
	bySurface map[id.SurfaceID]string

	detached          map[string]*detachedRecord
	detachedOrder     []string
	detachedBySurface map[id.SurfaceID]string

	pending      map[string]*reservation
	pendingOrder []string
}

func newRegistry() *registry {
	return &registry{
		entries:           make(map[string]*instance),
		bySurface:         make(map[id.SurfaceID]string),
		detached:          make(map[string]*detachedRecord),
		detachedBySurface: make(map[id.SurfaceID]string),
		pending:           make(map[string]*reservation),
	}
}

func (r *registry) get(path string) *instance {
	return r.entries[path]
}

// insert adds inst; it reports false if the path is taken
func (r *registry) insert(inst *instance) bool {
	if _, ok := r.entries[inst.Path]; ok {
		return false
	}
	r.entries[inst.Path] = inst
	r.order = append(r.order, inst.Path)
	if inst.Surface != nil {
		r.bySurface[inst.Surface.ID()] = inst.Path
	}
	return true
}

// indexSurface records inst's surface once the factory attached one
func (r *registry) indexSurface(inst *instance) {
	if inst.Surface != nil {
		r.bySurface[inst.Surface.ID()] = inst.Path
	}
}

func (r *registry) remove(path string) *instance {
	inst, ok := r.entries[path]
	if !ok {
		return nil
	}
	delete(r.entries, path)
	r.order = removeString(r.order, path)
	if inst.Surface != nil {
		delete(r.bySurface, inst.Surface.ID())
	}
	return inst
}

func (r *registry) bySurfaceID(sid id.SurfaceID) *instance {
	if path, ok := r.bySurface[sid]; ok {
		return r.entries[path]
	}
	return nil
}

func (r *registry) byName(name string) *instance {
	for _, path := range r.order {
		if inst := r.entries[path]; inst.Name == name && !inst.loading {
			return inst
		}
	}
	return nil
}

func (r *registry) paths() []string {
	return append([]string(nil), r.order...)
}

func (r *registry) len() int {
	return len(r.entries)
}

func (r *registry) getDetached(path string) *detachedRecord {
	return r.detached[path]
}

func (r *registry) putDetached(rec *detachedRecord) {
	if _, ok := r.detached[rec.PluginPath]; !ok {
		r.detachedOrder = append(r.detachedOrder, rec.PluginPath)
	}
	r.detached[rec.PluginPath] = rec
	r.detachedBySurface[rec.Surface.ID()] = rec.PluginPath
}

func (r *registry) removeDetached(path string) *detachedRecord {
	rec, ok := r.detached[path]
	if !ok {
		return nil
	}
	delete(r.detached, path)
	delete(r.detachedBySurface, rec.Surface.ID())
	r.detachedOrder = removeString(r.detachedOrder, path)
	return rec
}

func (r *registry) detachedBySurfaceID(sid id.SurfaceID) *detachedRecord {
	if path, ok := r.detachedBySurface[sid]; ok {
		return r.detached[path]
	}
	return nil
}

func (r *registry) detachedPaths() []string {
	return append([]string(nil), r.detachedOrder...)
}

func (r *registry) getPending(path string) *reservation {
	return r.pending[path]
}

// reserve marks path as being built for a standalone window
func (r *registry) reserve(path string) *reservation {
	res := &reservation{path: path}
	r.pending[path] = res
	r.pendingOrder = append(r.pendingOrder, path)
	return res
}

// unreserve drops res and reports whether it still held its path
func (r *registry) unreserve(res *reservation) bool {
	if r.pending[res.path] != res {
		return false
	}
	r.cancelPending(res.path)
	return true
}

// cancelPending drops whatever reservation holds path
func (r *registry) cancelPending(path string) bool {
	if _, ok := r.pending[path]; !ok {
		return false
	}
	delete(r.pending, path)
	r.pendingOrder = removeString(r.pendingOrder, path)
	return true
}

func (r *registry) pendingPaths() []string {
	return append([]string(nil), r.pendingOrder...)
}

func removeString(list []string, s string) []string {
	for i, v := range list {
		if v == s {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}
