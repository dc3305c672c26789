package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"

	"github.com/snpm-dev/snpm/pkg/config"
	"github.com/snpm-dev/snpm/pkg/snerr"
	"github.com/snpm-dev/snpm/pkg/sntypes"
)

// DepRequest is everything the Client needs to fetch one package's
// metadata: which protocol handles it, and the address that protocol
// cares about.
type DepRequest struct {
	Name     string
	Protocol sntypes.Protocol
	// Source is the protocol-specific address: a git remote (optionally
	// "#committish"-suffixed) for ProtocolGit, a local directory for
	// ProtocolFile. Unused for npm/jsr, which derive the address from
	// Name and Config.
}

// Client dispatches metadata fetches across the four protocols,
// memoizing in-flight and completed fetches per package name within a
// single resolve so the resolver's DFS traversal never issues the same
// HTTP request twice. Memoization lifetime is the Client's; callers
// construct one Client per resolve.
type Client struct {
	Config *config.Config
	Cache  *Cache
	HTTP   *http.Client

	mu      sync.Mutex
	inFlight map[string]*callOnce
}

type callOnce struct {
	done chan struct{}
	pkg  *sntypes.RegistryPackage
	err  error
}

// NewClient builds a Client using a retrying HTTP transport, the way
// the rest of the retrieval pack's CLIs (vercel-turborepo) build their
// outbound clients with hashicorp/go-retryablehttp rather than a bare
// http.Client, so that a flaky registry 5xx doesn't fail an entire
// install.
func NewClient(cfg *config.Config, cache *Cache) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil
	rc.HTTPClient.Timeout = defaultTimeout()
	if cfg.RequestTimeout > 0 {
		rc.HTTPClient.Timeout = cfg.RequestTimeout
	}
	return &Client{
		Config:   cfg,
		Cache:    cache,
		HTTP:     rc.StandardClient(),
		inFlight: make(map[string]*callOnce),
	}
}

// Fetch returns the RegistryPackage for req, using the in-memory
// single-flight map to coalesce concurrent requests for the same name
// within this Client's lifetime, and the on-disk Cache beneath that.
func (c *Client) Fetch(ctx context.Context, req DepRequest) (*sntypes.RegistryPackage, error) {
	key := string(req.Protocol) + ":" + req.Name
	c.mu.Lock()
	if call, ok := c.inFlight[key]; ok {
		c.mu.Unlock()
		<-call.done
		return call.pkg, call.err
	}
	call := &callOnce{done: make(chan struct{})}
	c.inFlight[key] = call
	c.mu.Unlock()

	call.pkg, call.err = c.fetchUncached(ctx, req)
	close(call.done)
	return call.pkg, call.err
}

func (c *Client) fetchUncached(ctx context.Context, req DepRequest) (*sntypes.RegistryPackage, error) {
	if c.Cache != nil {
		if cached := c.Cache.Load(cacheKey(req)); cached != nil {
			return cached, nil
		}
	}

	var pkg *sntypes.RegistryPackage
	var err error
	switch req.Protocol {
	case sntypes.ProtocolNpm, "":
		pkg, err = c.fetchNpm(ctx, req.Name)
	case sntypes.ProtocolJSR:
		pkg, err = c.fetchJSR(ctx, req.Name)
	case sntypes.ProtocolGit:
		pkg, err = c.fetchGit(req.Name, gitSource(req))
	case sntypes.ProtocolFile:
		pkg, err = c.fetchFile(req.Name, fileSource(req))
	default:
		return nil, fmt.Errorf("registry: unknown protocol %q", req.Protocol)
	}
	if err != nil {
		return nil, err
	}

	if c.Cache != nil {
		_ = c.Cache.Save(cacheKey(req), pkg)
	}
	return pkg, nil
}

func cacheKey(req DepRequest) string {
	if req.Protocol == sntypes.ProtocolNpm || req.Protocol == "" {
		return req.Name
	}
	return string(req.Protocol) + ":" + req.Name
}

// npmBase returns the registry base URL a name should be fetched from,
// honoring scoped-registry overrides.
func (c *Client) npmBase(name string) string {
	return strings.TrimRight(c.Config.RegistryBaseFor(name), "/")
}

func (c *Client) fetchNpm(ctx context.Context, name string) (*sntypes.RegistryPackage, error) {
	base := c.npmBase(name)
	reqURL := base + "/" + url.PathEscape(name)
	if strings.Contains(name, "/") {
		// scoped packages keep the slash un-escaped between scope and name
		reqURL = base + "/" + url.PathEscape(strings.SplitN(name, "/", 2)[0]) + "/" + url.PathEscape(strings.SplitN(name, "/", 2)[1])
	}
	return c.fetchJSON(ctx, reqURL, name)
}

func (c *Client) fetchJSR(ctx context.Context, name string) (*sntypes.RegistryPackage, error) {
	jsrName := jsrRewrite(name)
	base := c.Config.JSRRegistry
	if base == "" {
		base = "https://npm.jsr.io"
	}
	reqURL := strings.TrimRight(base, "/") + "/" + url.PathEscape(jsrName)
	return c.fetchJSON(ctx, reqURL, jsrName)
}

// jsrRewrite turns "@scope/pkg" into "@jsr/scope__pkg" and "pkg" into
// "@jsr/pkg", per spec.md §4.3.
func jsrRewrite(name string) string {
	if strings.HasPrefix(name, "@") {
		parts := strings.SplitN(strings.TrimPrefix(name, "@"), "/", 2)
		if len(parts) == 2 {
			return fmt.Sprintf("@jsr/%s__%s", parts[0], parts[1])
		}
	}
	return "@jsr/" + name
}

func (c *Client) fetchJSON(ctx context.Context, reqURL, name string) (*sntypes.RegistryPackage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &snerr.Http{URL: reqURL, Err: err}
	}
	httpReq.Header.Set("Accept", "application/vnd.npm.install-v1+json, application/json")

	if scheme, token, ok := authFor(c.Config, reqURL); ok {
		httpReq.Header.Set("Authorization", authHeaderValue(scheme, token))
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, &snerr.Http{URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &snerr.Http{URL: reqURL, Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	var doc rawRegistryPackage
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, &snerr.Http{URL: reqURL, Reason: "decode: " + err.Error(), Err: err}
	}
	pkg := doc.toRegistryPackage(name)
	return &pkg, nil
}

// defaultTimeout is the per-request HTTP timeout used when Config
// doesn't set one.
func defaultTimeout() time.Duration { return 30 * time.Second }
