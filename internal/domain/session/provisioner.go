package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/GriffinCanCode/launcher/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/launcher/internal/shared/paths"
)

var ErrSetupFailed = errors.New("session setup failed")

// Options configures every partition the provisioner creates
type Options struct {
	Layout         paths.Layout
	Proxy          string // empty for direct connections
	RequestTimeout time.Duration
	Retries        int
	Breaker        resilience.Settings
	InternalNames  []string
	UserAgent      string
}

// Provisioner hands out one Handle per plugin name
type Provisioner struct {
	opts     Options
	internal map[string]struct{}
	log      *zap.Logger

	handles sync.Map // name -> *Handle
	mu      sync.Mutex
}

// NewProvisioner validates opts and creates a provisioner
func NewProvisioner(opts Options, log *zap.Logger) (*Provisioner, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "launcher-plugin/1.0"
	}
	if opts.Proxy != "" {
		if _, err := url.Parse(opts.Proxy); err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", opts.Proxy, err)
		}
	}

	internal := make(map[string]struct{}, len(opts.InternalNames))
	for _, name := range opts.InternalNames {
		internal[name] = struct{}{}
	}
	return &Provisioner{opts: opts, internal: internal, log: log}, nil
}

// ForName returns the partition for name, creating it on first use. Calls
// for the same name always return the same Handle.
func (p *Provisioner) ForName(ctx context.Context, name string) (*Handle, error) {
	if h, ok := p.handles.Load(name); ok {
		return h.(*Handle), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.handles.Load(name); ok {
		return h.(*Handle), nil
	}

	h, err := p.build(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSetupFailed, name, err)
	}
	p.handles.Store(name, h)

	p.log.Debug("session partition created",
		zap.String("plugin_name", name),
		zap.String("partition", h.Partition),
		zap.Bool("internal", h.Internal),
		zap.Bool("proxied", h.Proxy != ""))
	return h, nil
}

// Names lists provisioned partitions
func (p *Provisioner) Names() []string {
	var names []string
	p.handles.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// IsInternal reports whether name is a built-in plugin
func (p *Provisioner) IsInternal(name string) bool {
	_, ok := p.internal[name]
	return ok
}

func (p *Provisioner) build(name string) (*Handle, error) {
	if err := paths.ValidatePartitionName(name); err != nil {
		return nil, err
	}

	dir := ""
	if p.opts.Layout.Root != "" {
		dir = p.opts.Layout.Partition(name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = p.opts.Retries
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil

	if p.opts.Proxy != "" {
		proxyURL, err := url.Parse(p.opts.Proxy)
		if err != nil {
			return nil, err
		}
		if transport, ok := retryClient.HTTPClient.Transport.(*http.Transport); ok {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	client := resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(p.opts.RequestTimeout).
		SetCookieJar(jar).
		SetHeader("User-Agent", p.opts.UserAgent)

	return &Handle{
		Name:      name,
		Partition: paths.PartitionKey(name),
		Dir:       dir,
		Internal:  p.IsInternal(name),
		Proxy:     p.opts.Proxy,
		client:    client,
		jar:       jar,
		breakers:  resilience.NewSet(p.opts.Breaker),
	}, nil
}
