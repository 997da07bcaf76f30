// Package holiday resolves public holidays through the timor.tech calendar
// API, falling back to a weekend check whenever the API cannot answer.
package holiday

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/okian/larkgate/internal/domain/types"
	"github.com/okian/larkgate/pkg/logger"
	"github.com/okian/larkgate/pkg/metrics"
)

const (
	DefaultBaseURL   = "https://timor.tech"
	DefaultTimeout   = 5 * time.Second
	DefaultCacheSize = 512
)

// Day types reported by the API. Workday and make-up workday are not holidays.
const (
	dayWorkday = 0
	dayWeekend = 1
	dayHoliday = 2
)

var errBadResponse = errors.New("holiday api: unexpected response")

type infoResponse struct {
	Code int `json:"code"`
	Type struct {
		Type int    `json:"type"`
		Name string `json:"name"`
	} `json:"type"`
}

// Calendar answers IsHoliday with per-date caching of successful lookups.
type Calendar struct {
	baseURL string
	client  *http.Client
	cache   *lru.Cache[string, bool]
	logger  logger.Logger
}

// Option configures a Calendar.
type Option func(*Calendar)

// WithBaseURL points the calendar at another API host.
func WithBaseURL(u string) Option {
	return func(c *Calendar) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Calendar) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Calendar) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithCacheSize bounds the number of cached dates.
func WithCacheSize(n int) Option {
	return func(c *Calendar) {
		if n > 0 {
			c.cache, _ = lru.New[string, bool](n)
		}
	}
}

// New creates a Calendar.
func New(opts ...Option) *Calendar {
	cache, _ := lru.New[string, bool](DefaultCacheSize)
	c := &Calendar{
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
		cache:   cache,
		logger:  logger.Get().Named("holiday"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsHoliday reports whether date is a weekend or public holiday. Failed
// lookups are not cached.
func (c *Calendar) IsHoliday(ctx context.Context, date time.Time) bool {
	key := date.Format(types.DateLayout)
	if v, ok := c.cache.Get(key); ok {
		metrics.RecordHolidayLookup("cache")
		return v
	}

	holiday, err := c.lookup(ctx, key)
	if err != nil {
		metrics.RecordHolidayLookup("fallback")
		c.logger.Warn(ctx, "holiday lookup failed, using weekend check",
			logger.String("date", key), logger.Error(err))
		return types.IsWeekend(date)
	}
	metrics.RecordHolidayLookup("api")
	c.cache.Add(key, holiday)
	return holiday
}

func (c *Calendar) lookup(ctx context.Context, date string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/holiday/info/%s", c.baseURL, date), nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: status %d", errBadResponse, resp.StatusCode)
	}
	var body infoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("%w: %w", errBadResponse, err)
	}
	if body.Code != 0 {
		return false, fmt.Errorf("%w: code %d", errBadResponse, body.Code)
	}
	switch body.Type.Type {
	case dayWeekend, dayHoliday:
		return true, nil
	default:
		return false, nil
	}
}
