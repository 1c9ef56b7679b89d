package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/launcher/internal/domain/events"
	"github.com/GriffinCanCode/launcher/internal/domain/manifest"
	"github.com/GriffinCanCode/launcher/internal/domain/rpc"
	"github.com/GriffinCanCode/launcher/internal/domain/session"
	"github.com/GriffinCanCode/launcher/internal/infrastructure/store"
	"github.com/GriffinCanCode/launcher/internal/shared/types"
)

type fixture struct {
	c         *Controller
	host      *fakeHost
	manifests *fakeManifests
	sessions  *fakeSessions
	store     *store.Memory
	events    *events.Recorder
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ModeTimeout = 50 * time.Millisecond
	cfg.MethodTimeout = 200 * time.Millisecond
	cfg.KillGrace = 5 * time.Millisecond
	return cfg
}

func newFixture(t *testing.T, ms ...*manifest.Manifest) *fixture {
	t.Helper()

	f := &fixture{
		host:      newFakeHost(),
		manifests: newFakeManifests(ms...),
		sessions:  newFakeSessions(),
		store:     store.NewMemory(),
		events:    &events.Recorder{},
	}
	c, err := New(testConfig(), Deps{
		Manifests: f.manifests,
		Sessions:  f.sessions,
		Host:      f.host,
		Store:     f.store,
		Events:    f.events,
	})
	require.NoError(t, err)
	f.c = c
	t.Cleanup(c.Close)
	return f
}

func (f *fixture) create(t *testing.T, name, code string) {
	t.Helper()
	require.NoError(t, f.c.Create(context.Background(), CreateRequest{Path: "/plugins/" + name, FeatureCode: code}))
	f.c.Wait()
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(DefaultConfig(), Deps{})
	assert.Error(t, err)
}

func TestCreateHeadedPlugin(t *testing.T) {
	f := newFixture(t, headed("a"))
	f.create(t, "a", "a.open")

	assert.Equal(t, "/plugins/a", f.c.ActivePath())
	require.Equal(t, 1, f.host.surfaceCount())
	s := f.host.surface(0)

	assert.True(t, f.host.isAttached(s))
	assert.Equal(t, []string{"file:///plugins/a/index.html"}, s.loadedURLs())
	assert.Equal(t, types.Rect{X: 0, Y: 59, Width: 800, Height: 541}, f.host.boundsOf(s))
	assert.Equal(t, 600, f.host.height())
	assert.Equal(t, []string{events.TypePluginOpened, events.TypePluginLoaded}, f.events.Types())
	assert.Equal(t, []string{ChannelPluginMode, ChannelPluginEnter}, s.channels())
	assert.Equal(t, 1, s.focusCount())

	enter, ok := s.lastSent(ChannelPluginEnter)
	require.True(t, ok)
	var launch types.LaunchParam
	require.NoError(t, json.Unmarshal(enter.Payload, &launch))
	assert.Equal(t, "a.open", launch.Code)
	assert.Equal(t, "text", launch.Type)
}

func TestCreateHeadlessPlugin(t *testing.T) {
	f := newFixture(t, headless("b"))
	f.host.mode = string(types.ModeHeadless)
	f.create(t, "b", "b.run")

	s := f.host.surface(0)
	assert.Equal(t, []string{manifest.HeadlessEntryURL}, s.loadedURLs())
	assert.Equal(t, 0, f.host.boundsOf(s).Height)
	assert.Equal(t, 59, f.host.height())
	assert.Equal(t, []string{ChannelPluginMode, ChannelCallMethod}, s.channels())
	assert.Zero(t, f.c.reg.get("/plugins/b").CachedHeight)
	assert.Zero(t, s.focusCount())

	call, ok := s.lastSent(ChannelCallMethod)
	require.True(t, ok)
	var body struct {
		FeatureCode string            `json:"featureCode"`
		Action      types.LaunchParam `json:"action"`
	}
	require.NoError(t, json.Unmarshal(call.Payload, &body))
	assert.Equal(t, "b.run", body.FeatureCode)
	assert.Equal(t, "b.run", body.Action.Code)
}

func TestHeadlessUndeclaredFeatureIsNotCalled(t *testing.T) {
	f := newFixture(t, headless("b"))
	f.host.mode = string(types.ModeHeadless)
	f.create(t, "b", "b.unknown")

	assert.Equal(t, []string{ChannelPluginMode}, f.host.surface(0).channels())
}

func TestCreateCachedRestoresSameSurface(t *testing.T) {
	f := newFixture(t, headed("a"), headed("b"))
	f.create(t, "a", "a.open")
	f.c.ResizeTo(300, true)
	f.create(t, "b", "b.open")

	a, b := f.host.surface(0), f.host.surface(1)
	assert.False(t, f.host.isAttached(a))
	assert.True(t, f.host.isAttached(b))
	out, ok := a.lastSent(ChannelPluginOut)
	require.True(t, ok)
	assert.JSONEq(t, `{"kill":false}`, string(out.Payload))

	f.events.Reset()
	f.create(t, "a", "a.open")

	assert.Equal(t, 2, f.host.surfaceCount())
	assert.True(t, f.host.isAttached(a))
	assert.False(t, f.host.isAttached(b))
	assert.False(t, a.Destroyed())
	assert.Equal(t, 300, f.host.boundsOf(a).Height)
	assert.Equal(t, []string{events.TypePluginClosed, events.TypePluginOpened, events.TypePluginLoaded}, f.events.Types())
}

func TestCreateActivePathRenegotiates(t *testing.T) {
	f := newFixture(t, headed("a"))
	f.create(t, "a", "a.open")
	f.create(t, "a", "a.open")

	assert.Equal(t, 1, f.host.surfaceCount())
	queries := 0
	for _, ch := range f.host.surface(0).channels() {
		if ch == ChannelPluginMode {
			queries++
		}
	}
	assert.Equal(t, 2, queries)
	assert.Equal(t, []string{events.TypePluginOpened, events.TypePluginLoaded}, f.events.Types())
}

func TestConcurrentCreatesCoalesce(t *testing.T) {
	f := newFixture(t, headed("a"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.c.Create(context.Background(), CreateRequest{Path: "/plugins/a"}))
		}()
	}
	wg.Wait()
	f.c.Wait()

	assert.Equal(t, 1, f.host.surfaceCount())
	assert.Len(t, f.c.RunningInstances(), 1)
}

func TestModeDefaultsToHeadedOnTimeout(t *testing.T) {
	f := newFixture(t, headed("a"))
	f.host.mode = ""

	start := time.Now()
	f.create(t, "a", "a.open")

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	s := f.host.surface(0)
	assert.Equal(t, []string{ChannelPluginMode, ChannelPluginEnter}, s.channels())
	assert.Equal(t, 541, f.host.boundsOf(s).Height)
}

func TestCreateFailureLeavesRegistryUnchanged(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		setup func(f *fixture)
		want  error
	}{
		{"manifest", "/plugins/missing", func(*fixture) {}, ErrManifestInvalid},
		{"session", "/plugins/a", func(f *fixture) {
			f.sessions.fail = fmt.Errorf("%w: disk full", session.ErrSetupFailed)
		}, ErrSessionSetupFailed},
		{"surface", "/plugins/a", func(f *fixture) { f.host.allocErr = errors.New("no renderer") }, ErrSurfaceAllocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, headed("a"))
			tt.setup(f)

			err := f.c.Create(context.Background(), CreateRequest{Path: tt.path})
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, f.c.ActivePath())
			assert.Empty(t, f.c.RunningInstances())
			assert.Empty(t, f.events.Types())
		})
	}
}

func TestKillDuringCreateTearsDownResult(t *testing.T) {
	f := newFixture(t, headed("a"))
	gate := make(chan struct{})
	f.manifests.setGate(gate)

	errc := make(chan error, 1)
	go func() {
		errc <- f.c.Create(context.Background(), CreateRequest{Path: "/plugins/a"})
	}()

	require.Eventually(t, func() bool {
		running := f.c.RunningInstances()
		return len(running) == 1 && running[0].Loading && running[0].Active
	}, time.Second, 5*time.Millisecond)

	assert.True(t, f.c.Kill("/plugins/a"))
	assert.Empty(t, f.c.ActivePath())
	close(gate)

	assert.ErrorIs(t, <-errc, ErrCreateAborted)
	require.Equal(t, 1, f.host.surfaceCount())
	assert.True(t, f.host.surface(0).Destroyed())
	assert.Empty(t, f.c.RunningInstances())
	assert.Zero(t, f.host.attachedCount())
}

func TestKillDuringCreateDetachedTearsDownResult(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, headed("a"))
	gate := make(chan struct{})
	f.manifests.setGate(gate)

	errc := make(chan error, 1)
	go func() {
		errc <- f.c.CreateDetached(ctx, "/plugins/a", "a.open")
	}()

	require.Eventually(t, func() bool {
		running := f.c.RunningInstances()
		return len(running) == 1 && running[0].Loading && running[0].Detached
	}, time.Second, 5*time.Millisecond)

	// a second request for the same path joins the one in flight
	require.NoError(t, f.c.CreateDetached(ctx, "/plugins/a", "a.open"))
	require.NoError(t, f.c.Create(ctx, CreateRequest{Path: "/plugins/a"}))
	assert.Empty(t, f.c.ActivePath())

	assert.True(t, f.c.Kill("/plugins/a"))
	assert.Empty(t, f.c.RunningInstances())
	close(gate)

	assert.ErrorIs(t, <-errc, ErrCreateAborted)
	f.c.Wait()
	f.manifests.mu.Lock()
	reads := f.manifests.reads
	f.manifests.mu.Unlock()
	assert.Equal(t, 1, reads)

	require.Equal(t, 1, f.host.surfaceCount())
	assert.True(t, f.host.surface(0).Destroyed())
	assert.True(t, f.host.window(0).isClosed())
	assert.Empty(t, f.c.RunningInstances())
	assert.Empty(t, f.events.Types())
	assert.False(t, f.c.Kill("/plugins/a"))
}

func TestHideKillsListedPlugins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, headed("a"), headed("b"))
	require.NoError(t, f.store.Put(ctx, store.KeyKillOnExit, []string{"a"}))

	f.create(t, "a", "")
	f.create(t, "b", "")

	running := f.c.RunningInstances()
	require.Len(t, running, 1)
	assert.Equal(t, "/plugins/b", running[0].Path)
	assert.True(t, f.host.surface(0).Destroyed())

	f.c.Hide()
	f.c.Wait()
	running = f.c.RunningInstances()
	require.Len(t, running, 1)
	assert.False(t, running[0].Active)
	assert.False(t, f.host.surface(1).Destroyed())
}

func TestKill(t *testing.T) {
	f := newFixture(t, headed("a"), headed("b"))
	f.create(t, "a", "")
	f.create(t, "b", "")

	assert.False(t, f.c.Kill("/plugins/none"))
	assert.True(t, f.c.Kill("/plugins/b"))

	b := f.host.surface(1)
	assert.True(t, b.Destroyed())
	assert.False(t, f.host.isAttached(b))
	assert.Empty(t, f.c.ActivePath())
	out, ok := b.lastSent(ChannelPluginOut)
	require.True(t, ok)
	assert.JSONEq(t, `{"kill":true}`, string(out.Payload))
	assert.Len(t, f.c.RunningInstances(), 1)
	assert.False(t, f.c.Kill("/plugins/b"))

	f.c.KillAll()
	assert.Empty(t, f.c.RunningInstances())
	assert.True(t, f.host.surface(0).Destroyed())
}

func TestKillActive(t *testing.T) {
	f := newFixture(t, headed("a"))
	f.create(t, "a", "")
	f.events.Reset()

	assert.True(t, f.c.KillActive())
	assert.Equal(t, []string{events.TypeBackToSearch}, f.events.Types())
	assert.Equal(t, 1, f.host.focusCount())
	assert.Empty(t, f.c.RunningInstances())
	assert.False(t, f.c.KillActive())
}

func TestKillRemovesDetachedWindow(t *testing.T) {
	f := newFixture(t, headed("a"))
	f.create(t, "a", "")
	require.NoError(t, f.c.Detach(context.Background(), "/plugins/a"))

	assert.True(t, f.c.Kill("/plugins/a"))
	f.c.Wait()

	assert.True(t, f.host.window(0).isClosed())
	assert.True(t, f.host.surface(0).Destroyed())
	assert.Empty(t, f.c.RunningInstances())
	assert.False(t, f.c.Kill("/plugins/a"))
}

func TestLayout(t *testing.T) {
	f := newFixture(t, headed("a"))
	f.create(t, "a", "")
	s := f.host.surface(0)

	f.c.ResizeTo(300, true)
	assert.Equal(t, types.Rect{X: 0, Y: 59, Width: 800, Height: 300}, f.host.boundsOf(s))
	assert.Equal(t, 359, f.host.height())
	assert.Equal(t, 300, f.c.reg.get("/plugins/a").CachedHeight)

	f.c.UpdateBounds(1000, 459)
	assert.Equal(t, types.Rect{X: 0, Y: 59, Width: 1000, Height: 400}, f.host.boundsOf(s))
	assert.Equal(t, 400, f.c.reg.get("/plugins/a").CachedHeight)

	f.c.UpdateBounds(1000, 40)
	assert.Equal(t, 400, f.host.boundsOf(s).Height)

	f.c.SetDefaultHeight(100)
	assert.Equal(t, MinDefaultHeight, f.c.DefaultHeight())
	f.c.SetDefaultHeight(700)
	assert.Equal(t, 700, f.c.DefaultHeight())
}

func TestSubInput(t *testing.T) {
	f := newFixture(t, headed("a"), headed("b"))
	assert.False(t, f.c.SetSubInputPlaceholder("Find"))
	assert.False(t, f.c.SetSubInputValue("x"))

	f.create(t, "a", "")
	assert.True(t, f.c.SetSubInputPlaceholder("Find"))
	assert.True(t, f.c.SetSubInputVisible("/plugins/a", true))
	assert.False(t, f.c.SetSubInputVisible("/plugins/none", true))

	f.create(t, "b", "")
	f.events.Reset()
	f.create(t, "a", "")

	var opened events.PluginOpened
	for _, e := range f.events.Events() {
		if ev, ok := e.(events.PluginOpened); ok {
			opened = ev
		}
	}
	assert.Equal(t, "Find", opened.SubInputPlaceholder)
	assert.True(t, opened.SubInputVisible)
	assert.Equal(t, "file:///plugins/a/logo.png", opened.Logo)
}

func TestHandleEscape(t *testing.T) {
	f := newFixture(t, headed("a"))
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f.c.now = func() time.Time { return clock }

	assert.False(t, f.c.SuppressMainHide(100*time.Millisecond))
	f.create(t, "a", "")
	f.events.Reset()

	f.c.HandleEscape()
	f.c.Wait()

	assert.Empty(t, f.c.ActivePath())
	assert.Equal(t, []string{events.TypePluginClosed, events.TypeBackToSearch}, f.events.Types())
	assert.Equal(t, 1, f.host.focusCount())
	assert.True(t, f.c.SuppressMainHide(100*time.Millisecond))

	clock = clock.Add(150 * time.Millisecond)
	assert.False(t, f.c.SuppressMainHide(100*time.Millisecond))
}

func TestInputAndMessages(t *testing.T) {
	f := newFixture(t, headed("a"))
	assert.False(t, f.c.SendInputEvent(types.InputEvent{Type: "keyDown"}))
	assert.ErrorIs(t, f.c.SendMessage("custom-event", nil), ErrNoActiveInstance)

	f.create(t, "a", "")
	s := f.host.surface(0)

	assert.True(t, f.c.SendInputEvent(types.InputEvent{Type: "keyDown", KeyCode: "A"}))
	assert.Equal(t, 1, s.inputCount())

	require.NoError(t, f.c.SendMessage("custom-event", map[string]string{"k": "v"}))
	msg, ok := s.lastSent("custom-event")
	require.True(t, ok)
	assert.JSONEq(t, `{"k":"v"}`, string(msg.Payload))
}

func TestLookups(t *testing.T) {
	ctx := context.Background()
	dev := headed("a")
	dev.Development = &manifest.Development{Main: "http://localhost:5173"}
	f := newFixture(t, dev, headed("system"))
	require.NoError(t, f.store.Put(ctx, store.KeyPlugins, []types.RegisteredPlugin{
		{Path: "/plugins/a", Name: "a", IsDevelopment: true},
	}))

	f.create(t, "a", "")
	a := f.host.surface(0)
	assert.Equal(t, []string{"http://localhost:5173"}, a.loadedURLs())
	assert.True(t, f.c.IsDevelopmentMode(a.ID()))

	info, ok := f.c.InfoBySurface(a.ID())
	require.True(t, ok)
	assert.Equal(t, types.InstanceInfo{Name: "a", Path: "/plugins/a"}, info)
	name, ok := f.c.NameBySurface(a.ID())
	assert.True(t, ok)
	assert.Equal(t, "a", name)
	got, ok := f.c.SurfaceByName("a")
	require.True(t, ok)
	assert.Equal(t, a.ID(), got.ID())

	f.create(t, "system", "")
	sys := f.host.surface(1)
	info, ok = f.c.InfoBySurface(sys.ID())
	require.True(t, ok)
	assert.True(t, info.IsInternal)
	assert.False(t, f.c.IsDevelopmentMode(sys.ID()))

	_, ok = f.c.InfoBySurface("surf_unknown")
	assert.False(t, ok)

	f.create(t, "a", "")
	require.NoError(t, f.c.Detach(ctx, ""))
	info, ok = f.c.InfoBySurface(a.ID())
	require.True(t, ok)
	assert.Equal(t, "/plugins/a", info.Path)
	assert.True(t, f.c.IsDevelopmentMode(a.ID()))
	_, ok = f.c.NameBySurface(a.ID())
	assert.False(t, ok)
}

func TestCallMethod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, headless("b"))
	f.host.mode = string(types.ModeHeadless)
	f.create(t, "b", "")
	s := f.host.surface(0)

	_, err := f.c.CallMethod(ctx, "/plugins/x", "b.run", nil)
	assert.ErrorIs(t, err, ErrInstanceNotFound)

	before := len(s.channels())
	_, err = f.c.CallMethod(ctx, "/plugins/b", "b.other", nil)
	assert.ErrorIs(t, err, ErrUndeclaredCapability)
	assert.Len(t, s.channels(), before)

	res, err := f.c.CallMethod(ctx, "/plugins/b", "b.run", json.RawMessage(`{"x":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `"done"`, string(res))

	call, ok := s.lastSent(ChannelCallMethod)
	require.True(t, ok)
	assert.JSONEq(t, `{"featureCode":"b.run","action":{"x":1}}`, string(call.Payload))
}

func TestPluginRequests(t *testing.T) {
	f := newFixture(t, headed("a"))
	f.create(t, "a", "")
	s := f.host.surface(0)

	s.emit(rpc.Message{Channel: ChannelSetHeight, Payload: json.RawMessage(`{"height":320}`)})
	f.c.Wait()
	assert.Equal(t, 320, f.host.boundsOf(s).Height)

	s.emit(rpc.Message{Channel: ChannelSubInput, Payload: json.RawMessage(`{"placeholder":"<i>Filter</i>","visible":true}`)})
	f.c.Wait()
	assert.Equal(t, types.SubInput{Placeholder: "Filter", Visible: true}, f.c.reg.get("/plugins/a").SubInput)

	s.emit(rpc.Message{Channel: ChannelEscape})
	f.c.Wait()
	assert.Empty(t, f.c.ActivePath())

	f.create(t, "a", "")
	s.emit(rpc.Message{Channel: ChannelDetach})
	f.c.Wait()
	running := f.c.RunningInstances()
	require.Len(t, running, 1)
	assert.True(t, running[0].Detached)

	s.emit(rpc.Message{Channel: ChannelKill})
	f.c.Wait()
	assert.Len(t, f.c.RunningInstances(), 1, "kill requests only apply to the active plugin")
}

func TestCloseRejectsCreate(t *testing.T) {
	f := newFixture(t, headed("a"))
	f.create(t, "a", "")

	f.c.Close()
	assert.True(t, f.host.surface(0).Destroyed())
	assert.ErrorIs(t, f.c.Create(context.Background(), CreateRequest{Path: "/plugins/a"}), ErrClosed)
}
