package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/GriffinCanCode/launcher/internal/domain/manifest"
	"github.com/GriffinCanCode/launcher/internal/domain/rpc"
	"github.com/GriffinCanCode/launcher/internal/domain/session"
	"github.com/GriffinCanCode/launcher/internal/shared/id"
	"github.com/GriffinCanCode/launcher/internal/shared/types"
)

// ============================================================================
// Manifests and sessions
// ============================================================================

type fakeManifests struct {
	mu    sync.Mutex
	byDir map[string]*manifest.Manifest
	gate  chan struct{} // when set, Read blocks until it is closed
	reads int
}

func newFakeManifests(ms ...*manifest.Manifest) *fakeManifests {
	f := &fakeManifests{byDir: make(map[string]*manifest.Manifest)}
	for _, m := range ms {
		f.byDir[m.Dir] = m
	}
	return f
}

func (f *fakeManifests) Read(path string) (*manifest.Manifest, error) {
	f.mu.Lock()
	gate := f.gate
	f.reads++
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byDir[path]
	if !ok {
		return nil, errors.Join(manifest.ErrInvalid, errors.New("no plugin.json"))
	}
	cp := *m
	return &cp, nil
}

func (f *fakeManifests) setGate(gate chan struct{}) {
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
}

func headed(name string) *manifest.Manifest {
	return &manifest.Manifest{
		Name:     name,
		Title:    "Plugin " + name,
		Main:     "index.html",
		Logo:     "logo.png",
		Dir:      "/plugins/" + name,
		Features: []manifest.Feature{{Code: name + ".open"}},
	}
}

func headless(name string) *manifest.Manifest {
	return &manifest.Manifest{
		Name:     name,
		Dir:      "/plugins/" + name,
		Features: []manifest.Feature{{Code: name + ".run"}},
	}
}

type fakeSessions struct {
	mu       sync.Mutex
	handles  map[string]*session.Handle
	fail     error
	internal map[string]bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		handles:  make(map[string]*session.Handle),
		internal: map[string]bool{"system": true},
	}
}

func (f *fakeSessions) ForName(ctx context.Context, name string) (*session.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	if h, ok := f.handles[name]; ok {
		return h, nil
	}
	h := &session.Handle{Name: name, Partition: "persist:" + name, Internal: f.internal[name]}
	f.handles[name] = h
	return h, nil
}

// ============================================================================
// Surfaces
// ============================================================================

type fakeSurface struct {
	id id.SurfaceID

	mu           sync.Mutex
	sent         []rpc.Message
	inputs       []types.InputEvent
	urls         []string
	focused      int
	destroyed    bool
	mode         string // answer to get-plugin-mode; "" never answers
	autoReady    bool
	onReady      func()
	onMessage    func(rpc.Message)
	onTerminated func(types.Termination)
	onFocus      func()
}

func (s *fakeSurface) ID() id.SurfaceID { return s.id }

func (s *fakeSurface) Load(url string, onReady func()) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return errors.New("surface destroyed")
	}
	s.urls = append(s.urls, url)
	s.onReady = onReady
	auto := s.autoReady
	s.mu.Unlock()

	if auto {
		s.ready()
	}
	return nil
}

// ready fires the pending load callback
func (s *fakeSurface) ready() {
	s.mu.Lock()
	fn := s.onReady
	s.onReady = nil
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *fakeSurface) Send(msg rpc.Message) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return errors.New("surface destroyed")
	}
	s.sent = append(s.sent, msg)
	mode := s.mode
	s.mu.Unlock()

	switch {
	case msg.Channel == ChannelPluginMode && mode != "":
		result, _ := json.Marshal(mode)
		go s.reply(msg.CorrelationID, rpc.Response{Success: true, Result: result})
	case msg.Channel == ChannelCallMethod && msg.CorrelationID != "":
		go s.reply(msg.CorrelationID, rpc.Response{Success: true, Result: json.RawMessage(`"done"`)})
	}
	return nil
}

func (s *fakeSurface) reply(cid string, resp rpc.Response) {
	payload, _ := json.Marshal(resp)
	s.emit(rpc.Message{Channel: rpc.ResultChannel(cid), Payload: payload})
}

// emit delivers a message from the plugin side
func (s *fakeSurface) emit(msg rpc.Message) {
	s.mu.Lock()
	fn := s.onMessage
	s.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

// terminate simulates the execution context dying
func (s *fakeSurface) terminate(reason string) {
	s.mu.Lock()
	fn := s.onTerminated
	s.mu.Unlock()
	if fn != nil {
		fn(types.Termination{Reason: reason, ExitCode: 1})
	}
}

func (s *fakeSurface) Focus() {
	s.mu.Lock()
	s.focused++
	s.mu.Unlock()
}

func (s *fakeSurface) SendInputEvent(evt types.InputEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return errors.New("surface destroyed")
	}
	s.inputs = append(s.inputs, evt)
	return nil
}

func (s *fakeSurface) Close() {
	s.mu.Lock()
	s.destroyed = true
	s.mu.Unlock()
}

func (s *fakeSurface) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

func (s *fakeSurface) OnMessage(fn func(rpc.Message)) {
	s.mu.Lock()
	s.onMessage = fn
	s.mu.Unlock()
}

func (s *fakeSurface) OnTerminated(fn func(types.Termination)) {
	s.mu.Lock()
	s.onTerminated = fn
	s.mu.Unlock()
}

func (s *fakeSurface) OnFocus(fn func()) {
	s.mu.Lock()
	s.onFocus = fn
	s.mu.Unlock()
}

// channels returns the channels sent so far
func (s *fakeSurface) channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, m := range s.sent {
		out[i] = m.Channel
	}
	return out
}

func (s *fakeSurface) lastSent(channel string) (rpc.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].Channel == channel {
			return s.sent[i], true
		}
	}
	return rpc.Message{}, false
}

func (s *fakeSurface) loadedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.urls...)
}

// ============================================================================
// Windows and host
// ============================================================================

type fakeWindow struct {
	id      string
	surface Surface
	size    types.Geometry
	opts    types.WindowOptions

	mu       sync.Mutex
	closed   bool
	focused  int
	handlers []func(types.Geometry)
}

func (w *fakeWindow) ID() string       { return w.id }
func (w *fakeWindow) Surface() Surface { return w.surface }

func (w *fakeWindow) Focus() {
	w.mu.Lock()
	w.focused++
	w.mu.Unlock()
}

func (w *fakeWindow) Close() {
	w.closeWithSize(w.size)
}

// closeWithSize simulates the user closing a resized window
func (w *fakeWindow) closeWithSize(size types.Geometry) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	handlers := w.handlers
	w.handlers = nil
	w.mu.Unlock()

	for _, fn := range handlers {
		fn(size)
	}
}

func (w *fakeWindow) OnClosed(fn func(types.Geometry)) {
	w.mu.Lock()
	w.handlers = append(w.handlers, fn)
	w.mu.Unlock()
}

func (w *fakeWindow) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

type fakeHost struct {
	mu          sync.Mutex
	width       int
	hostHeight  int
	hostFocus   int
	attached    map[id.SurfaceID]bool
	bounds      map[id.SurfaceID]types.Rect
	focusTarget id.SurfaceID
	surfaces    []*fakeSurface
	windows     []*fakeWindow
	allocErr    error
	windowErr   error
	mode        string
	autoReady   bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		width:     800,
		attached:  make(map[id.SurfaceID]bool),
		bounds:    make(map[id.SurfaceID]types.Rect),
		mode:      string(types.ModeHeaded),
		autoReady: true,
	}
}

func (h *fakeHost) AllocateSurface(ctx context.Context, sess *session.Handle, preload string) (Surface, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.allocErr != nil {
		return nil, h.allocErr
	}
	s := &fakeSurface{id: id.NewSurfaceID(), mode: h.mode, autoReady: h.autoReady}
	h.surfaces = append(h.surfaces, s)
	return s, nil
}

func (h *fakeHost) Attach(s Surface) {
	h.mu.Lock()
	h.attached[s.ID()] = true
	h.mu.Unlock()
}

func (h *fakeHost) Detach(s Surface) {
	h.mu.Lock()
	delete(h.attached, s.ID())
	h.mu.Unlock()
}

func (h *fakeHost) SetBounds(s Surface, bounds types.Rect) {
	h.mu.Lock()
	h.bounds[s.ID()] = bounds
	h.mu.Unlock()
}

func (h *fakeHost) ResizeHost(height int) {
	h.mu.Lock()
	h.hostHeight = height
	h.mu.Unlock()
}

func (h *fakeHost) HostWidth() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.width
}

func (h *fakeHost) FocusHost() {
	h.mu.Lock()
	h.hostFocus++
	h.mu.Unlock()
}

func (h *fakeHost) SetFocusTarget(s Surface) {
	h.mu.Lock()
	h.focusTarget = s.ID()
	h.mu.Unlock()
}

func (h *fakeHost) CreateStandaloneWindow(ctx context.Context, size types.Geometry, s Surface, opts types.WindowOptions) (Window, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.windowErr != nil {
		return nil, h.windowErr
	}
	w := &fakeWindow{id: id.NewWindowID().String(), surface: s, size: size, opts: opts}
	h.windows = append(h.windows, w)
	return w, nil
}

func (h *fakeHost) surface(i int) *fakeSurface {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.surfaces[i]
}

func (h *fakeHost) surfaceCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.surfaces)
}

func (h *fakeHost) window(i int) *fakeWindow {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.windows[i]
}

func (h *fakeHost) isAttached(s Surface) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attached[s.ID()]
}

func (h *fakeHost) boundsOf(s Surface) types.Rect {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bounds[s.ID()]
}

func (h *fakeHost) attachedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.attached)
}

func (h *fakeHost) height() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hostHeight
}

func (h *fakeHost) focusCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hostFocus
}

func (s *fakeSurface) focusCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focused
}

func (s *fakeSurface) inputCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inputs)
}

func (w *fakeWindow) focusCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.focused
}
