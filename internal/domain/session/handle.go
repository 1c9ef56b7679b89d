package session

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-resty/resty/v2"

	"github.com/GriffinCanCode/launcher/internal/infrastructure/resilience"
)

// Handle is one plugin's isolated network and storage partition
type Handle struct {
	Name      string
	Partition string // "persist:<name>"
	Dir       string // on-disk storage, empty when the provisioner has no root
	Internal  bool   // built-in plugin with access to host-only resources
	Proxy     string

	client   *resty.Client
	jar      http.CookieJar
	breakers *resilience.Set
}

// Jar returns the partition's cookie jar
func (h *Handle) Jar() http.CookieJar {
	return h.jar
}

// Client returns the partition's HTTP client
func (h *Handle) Client() *resty.Client {
	return h.client
}

// Fetch GETs rawURL through the partition. Each origin host has its own
// breaker so one dead origin does not slow every plugin request.
func (h *Handle) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	return resilience.Call(ctx, h.breakers.Get(u.Host), func(ctx context.Context) ([]byte, error) {
		resp, err := h.client.R().SetContext(ctx).Get(rawURL)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("GET %s: %s", rawURL, resp.Status())
		}
		return resp.Body(), nil
	})
}

// Breakers reports per-origin breaker states
func (h *Handle) Breakers() map[string]resilience.State {
	return h.breakers.States()
}
