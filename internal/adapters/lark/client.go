// Package lark wraps the Lark/Feishu Open API SDK with the calls the bot
// needs: messaging, Bitable fill records, approvals, chat members and
// time-off calendar entries.
package lark

import (
	"context"
	"strings"
	"sync"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"golang.org/x/sync/singleflight"

	"github.com/okian/larkgate/pkg/logger"
	"github.com/okian/larkgate/pkg/metrics"
)

const (
	DefaultBaseURL = "https://open.feishu.cn"
	defaultTimeout = 10 * time.Second
	defaultPage    = 500
)

// Client is a Lark app identity plus a cached tenant access token.
type Client struct {
	raw       *lark.Client
	appID     string
	appSecret string
	baseURL   string
	timeout   time.Duration
	logger    logger.Logger
	now       func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	refresh     singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another Open API host.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the time source used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a client for one app.
func New(appID, appSecret string, opts ...Option) *Client {
	c := &Client{
		appID:     appID,
		appSecret: appSecret,
		baseURL:   DefaultBaseURL,
		timeout:   defaultTimeout,
		logger:    logger.Get().Named("lark"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.raw = lark.NewClient(appID, appSecret,
		lark.WithOpenBaseUrl(c.baseURL),
		lark.WithReqTimeout(c.timeout),
		lark.WithEnableTokenCache(false),
	)
	return c
}

// AppID returns the app the client acts as.
func (c *Client) AppID() string { return c.appID }

// Raw exposes the SDK client.
func (c *Client) Raw() *lark.Client { return c.raw }

// observe records one API call in metrics.
func (c *Client) observe(op string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		metrics.RecordErrorByComponent("lark", op)
	}
	metrics.RecordLarkCall(op, outcome, float64(time.Since(started).Milliseconds()))
}

// auth returns the request option carrying the cached tenant token.
func (c *Client) auth(ctx context.Context) (larkcore.RequestOptionFunc, error) {
	tok, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return larkcore.WithTenantAccessToken(tok), nil
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Pool hands out one Client per app id so that token caches are shared
// between webhook deliveries that carry the same credentials.
type Pool struct {
	mu      sync.Mutex
	clients map[string]*Client
	opts    []Option
}

// NewPool creates a pool whose clients are built with opts.
func NewPool(opts ...Option) *Pool {
	return &Pool{clients: make(map[string]*Client), opts: opts}
}

// Get returns the client for appID, creating it on first use. A changed
// secret replaces the cached client.
func (p *Pool) Get(appID, appSecret string) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[appID]; ok && c.appSecret == appSecret {
		return c
	}
	c := New(appID, appSecret, p.opts...)
	p.clients[appID] = c
	return c
}

// Put registers an existing client, typically the statically configured one.
func (p *Pool) Put(c *Client) {
	p.mu.Lock()
	p.clients[c.appID] = c
	p.mu.Unlock()
}
