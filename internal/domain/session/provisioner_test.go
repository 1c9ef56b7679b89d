package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/launcher/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/launcher/internal/shared/paths"
)

func newProvisioner(t *testing.T, opts Options) *Provisioner {
	t.Helper()
	if opts.Layout.Root == "" {
		opts.Layout = paths.Layout{Root: t.TempDir()}
	}
	p, err := NewProvisioner(opts, nil)
	require.NoError(t, err)
	return p
}

func TestForNameIsIdempotent(t *testing.T) {
	p := newProvisioner(t, Options{InternalNames: []string{"system"}})
	ctx := context.Background()

	var wg sync.WaitGroup
	handles := make([]*Handle, 16)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := p.ForName(ctx, "translate")
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}
	assert.Equal(t, "persist:translate", handles[0].Partition)
	assert.False(t, handles[0].Internal)
	assert.DirExists(t, handles[0].Dir)

	sys, err := p.ForName(ctx, "system")
	require.NoError(t, err)
	assert.True(t, sys.Internal)
	assert.Equal(t, []string{"system", "translate"}, p.Names())
}

func TestForNameRejectsUnsafeNames(t *testing.T) {
	p := newProvisioner(t, Options{})

	_, err := p.ForName(context.Background(), "../escape")
	assert.ErrorIs(t, err, ErrSetupFailed)

	_, err = p.ForName(context.Background(), "")
	assert.ErrorIs(t, err, ErrSetupFailed)
}

func TestForNameHonorsCancelledContext(t *testing.T) {
	p := newProvisioner(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ForName(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPartitionsDoNotShareCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			http.SetCookie(w, &http.Cookie{Name: "token", Value: "secret", Path: "/"})
			return
		}
		if c, err := r.Cookie("token"); err == nil {
			w.Write([]byte(c.Value))
			return
		}
		w.Write([]byte("anonymous"))
	}))
	defer srv.Close()

	p := newProvisioner(t, Options{})
	ctx := context.Background()
	a, err := p.ForName(ctx, "a")
	require.NoError(t, err)
	b, err := p.ForName(ctx, "b")
	require.NoError(t, err)

	_, err = a.Fetch(ctx, srv.URL+"/login")
	require.NoError(t, err)

	body, err := a.Fetch(ctx, srv.URL+"/whoami")
	require.NoError(t, err)
	assert.Equal(t, "secret", string(body))

	body, err = b.Fetch(ctx, srv.URL+"/whoami")
	require.NoError(t, err)
	assert.Equal(t, "anonymous", string(body))

	u, _ := url.Parse(srv.URL)
	assert.Len(t, a.Jar().Cookies(u), 1)
	assert.Empty(t, b.Jar().Cookies(u))
}

func TestFetchOpensBreakerPerOrigin(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := newProvisioner(t, Options{
		Retries: 0,
		Breaker: resilience.Settings{Failures: 2, Cooldown: time.Minute},
	})
	h, err := p.ForName(context.Background(), "remote")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := h.Fetch(context.Background(), srv.URL+"/index.js")
		require.Error(t, err)
	}

	_, err = h.Fetch(context.Background(), srv.URL+"/index.js")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, hits)

	u, _ := url.Parse(srv.URL)
	assert.Equal(t, resilience.StateOpen, h.Breakers()[u.Host])
}

func TestProxyIsApplied(t *testing.T) {
	var proxied bool
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxied = r.URL.Host == "plugin.invalid"
		w.Write([]byte("via proxy"))
	}))
	defer proxy.Close()

	p := newProvisioner(t, Options{Proxy: proxy.URL})
	h, err := p.ForName(context.Background(), "net")
	require.NoError(t, err)
	assert.Equal(t, proxy.URL, h.Proxy)

	body, err := h.Fetch(context.Background(), "http://plugin.invalid/app.js")
	require.NoError(t, err)
	assert.Equal(t, "via proxy", string(body))
	assert.True(t, proxied)
}

func TestNoRootSkipsStorageDir(t *testing.T) {
	p, err := NewProvisioner(Options{}, nil)
	require.NoError(t, err)

	h, err := p.ForName(context.Background(), "memory-only")
	require.NoError(t, err)
	assert.Empty(t, h.Dir)
	_, statErr := os.Stat("partitions")
	assert.True(t, os.IsNotExist(statErr))
}
