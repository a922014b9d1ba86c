// Package bitbucket provides a read-only client for the Bitbucket Server
// REST API.
//
// The client covers the endpoints an export needs: server metadata, users
// and groups, projects, repositories, pull requests with their activity
// streams and diffs, commits, tags, branch permissions, access keys and
// attachments. Paginated collections are followed to the last page.
// Requests that fail in transport are retried with exponential backoff.
package bitbucket

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/steveyegge/bbs-exporter/internal/debug"
	"github.com/steveyegge/bbs-exporter/internal/telemetry"
	"github.com/steveyegge/bbs-exporter/internal/types"
)

// API configuration constants.
const (
	// DefaultPaginationLimit is the page size for ordinary collections.
	DefaultPaginationLimit = 250

	// DefaultGitPaginationLimit is the page size for commit listings.
	DefaultGitPaginationLimit = 5000

	// DefaultTimeout is the default time to wait for response headers.
	DefaultTimeout = 5 * time.Minute

	// RetryInterval is the base delay between retries.
	RetryInterval = 50 * time.Millisecond

	// MaxPages bounds pagination against a server that never reports the
	// last page.
	MaxPages = 100000

	commitCacheSize = 4096
	userCacheSize   = 1024

	maxResponseSize = 512 * 1024 * 1024
)

// API selects one of the Bitbucket Server REST roots.
type API string

// REST roots.
const (
	APINone           API = ""
	APICore           API = "core"
	APIBranch         API = "branch"
	APIPlugin         API = "plugin"
	APIRefRestriction API = "ref_restriction"
	APISSH            API = "ssh"
)

var apiPaths = map[API][]string{
	APICore:           {"rest", "api", "1.0"},
	APIBranch:         {"rest", "branch-utils", "1.0"},
	APIPlugin:         {"rest", "plugins", "1.0"},
	APIRefRestriction: {"rest", "branch-permissions", "2.0"},
	APISSH:            {"rest", "keys", "1.0"},
}

// Options configures a Client.
type Options struct {
	BaseURL  string
	Username string
	Password string
	Token    string

	// ReadTimeout bounds the wait for response headers; OpenTimeout bounds
	// connection setup. Zero means the defaults.
	ReadTimeout time.Duration
	OpenTimeout time.Duration

	// Retries is the number of times a request is retried after a
	// transport failure. Zero disables retries.
	Retries int

	PaginationLimit    int
	GitPaginationLimit int

	// SkipTLSVerify disables certificate verification.
	SkipTLSVerify bool

	// DataSince stops time-ordered listings once they reach older items.
	DataSince time.Time

	// HTTPClient overrides the client built from the options above.
	HTTPClient *http.Client

	// OnRequest, if set, is called before every request attempt.
	OnRequest func(method, url string)
}

// Client provides methods to interact with the Bitbucket Server REST API.
type Client struct {
	baseURL string
	opts    Options
	http    *http.Client

	commits *lru.Cache[string, *types.Commit]
	users   *lru.Cache[string, *types.User]

	authMu   sync.Mutex
	authUser string
}

// NewClient validates opts and creates a client.
func NewClient(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &InvalidBaseURLError{URL: opts.BaseURL}
	}
	if opts.Token == "" && (opts.Username == "" || opts.Password == "") {
		return nil, ErrMissingCredentials
	}

	if opts.PaginationLimit <= 0 {
		opts.PaginationLimit = DefaultPaginationLimit
	}
	if opts.GitPaginationLimit <= 0 {
		opts.GitPaginationLimit = DefaultGitPaginationLimit
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(opts)
	}

	commits, err := lru.New[string, *types.Commit](commitCacheSize)
	if err != nil {
		return nil, err
	}
	users, err := lru.New[string, *types.User](userCacheSize)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		opts:    opts,
		http:    httpClient,
		commits: commits,
		users:   users,
	}, nil
}

func newHTTPClient(opts Options) *http.Client {
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = DefaultTimeout
	}
	openTimeout := opts.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: openTimeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = openTimeout
	transport.ResponseHeaderTimeout = readTimeout
	if opts.SkipTLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- opt-in via --ssl-verify=false
	}
	return &http.Client{Transport: transport}
}

// BaseURL returns the server root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Secret returns the token when token authentication is used, otherwise
// the password.
func (c *Client) Secret() string {
	if c.opts.Token != "" {
		return c.opts.Token
	}
	return c.opts.Password
}

// TokenAuthenticated reports whether requests carry a bearer token.
func (c *Client) TokenAuthenticated() bool { return c.opts.Token != "" }

// Authorization returns the value of the Authorization header the client
// sends.
func (c *Client) Authorization() string {
	if c.opts.Token != "" {
		return "Bearer " + c.opts.Token
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.opts.Username+":"+c.opts.Password))
}

// encodeURL builds base/api-root/path-segments?query. Each path segment is
// escaped on its own so that a "/" inside a segment stays part of it. A
// single empty segment yields a trailing slash.
func (c *Client) encodeURL(api API, path []string, query url.Values) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	for _, seg := range apiPaths[api] {
		b.WriteByte('/')
		b.WriteString(seg)
	}
	for _, seg := range path {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(seg))
	}
	if len(query) > 0 {
		b.WriteByte('?')
		b.WriteString(query.Encode())
	}
	return b.String()
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", c.Authorization())
	req.Header.Set("Accept", "application/json")
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) newBackoff(ctx context.Context) backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = RetryInterval
	bo.RandomizationFactor = 0.5
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.opts.Retries)), ctx)
}

// do sends one request, retrying transport failures. The caller owns the
// returned response body. Non-2xx responses become *APIError.
func (c *Client) do(ctx context.Context, method, urlStr string) (*http.Response, error) {
	var resp *http.Response
	var transportErr error
	attempts := 0

	op := func() error {
		attempts++
		req, err := http.NewRequestWithContext(ctx, method, urlStr, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		c.authorize(req)
		if c.opts.OnRequest != nil {
			c.opts.OnRequest(method, urlStr)
		}

		reqCtx, done := telemetry.StartRequest(ctx, method, urlStr)
		req = req.WithContext(reqCtx)

		r, err := c.http.Do(req)
		if err != nil {
			done(0, err)
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			// Connection, TLS and timeout failures are all retried.
			debug.Printf("retrying %s %s after attempt %d: %v\n", method, urlStr, attempts, err)
			transportErr = err
			return err
		}

		if r.StatusCode < 200 || r.StatusCode >= 300 {
			apiErr := &APIError{Status: r.StatusCode, Method: method, URL: urlStr}
			body, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
			_ = r.Body.Close()
			var payload struct {
				Errors []ServerError `json:"errors"`
			}
			if json.Unmarshal(body, &payload) == nil {
				apiErr.Errors = payload.Errors
			}
			done(r.StatusCode, apiErr)
			return backoff.Permanent(apiErr)
		}

		done(r.StatusCode, nil)
		resp = r
		return nil
	}

	err := backoff.Retry(op, c.newBackoff(ctx))
	if err == nil {
		return resp, nil
	}
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return nil, apiErr
	case ctx.Err() != nil || transportErr == nil || !errors.Is(err, transportErr):
		return nil, fmt.Errorf("%s %s: %w", method, urlStr, err)
	case isTimeout(err):
		return nil, &TimeoutError{Retries: c.opts.Retries, URL: urlStr, Err: err}
	default:
		return nil, &TransportError{Method: method, URL: urlStr, Retries: c.opts.Retries, Err: err}
	}
}

// getJSON GETs a single resource into out and returns the response headers.
func (c *Client) getJSON(ctx context.Context, api API, path []string, query url.Values, out any) (http.Header, error) {
	urlStr := c.encodeURL(api, path, query)
	resp, err := c.do(ctx, http.MethodGet, urlStr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", urlStr, err)
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, fmt.Errorf("failed to parse response from %s: %w", urlStr, err)
		}
	}
	return resp.Header, nil
}

// head sends a HEAD request and returns the response headers.
func (c *Client) head(ctx context.Context, api API, path []string) (http.Header, error) {
	resp, err := c.do(ctx, http.MethodHead, c.encodeURL(api, path, nil))
	if err != nil {
		return nil, err
	}
	_ = resp.Body.Close()
	return resp.Header, nil
}

// download GETs a raw resource. The caller closes the body.
func (c *Client) download(ctx context.Context, api API, path []string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodGet, c.encodeURL(api, path, nil))
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
