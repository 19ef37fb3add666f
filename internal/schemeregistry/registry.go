// Package schemeregistry resolves per-scheme accrual rates from an external
// scheme registry service, caching successful lookups for the lifetime of the
// process.
//
// Lookups never fail: when no registry is configured, or a fetch times out or
// returns something unusable, the default rate of 0.02 is used for that scheme
// and nothing is cached, so a later request can still pick up the real rate.
//
// Scheme ids are matched case-insensitively. Entries never expire; scheme
// rates are assumed static while the process runs.
package schemeregistry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"pension-calculation-engine/internal/metrics"
	"pension-calculation-engine/internal/mutations"
)

// DefaultTimeout bounds a single registry request.
const DefaultTimeout = 2 * time.Second

// maxBatchFetches caps concurrent registry requests issued by one batch.
const maxBatchFetches = 16

var tracer = otel.Tracer("pension-engine/schemeregistry")

var errNoRate = errors.New("schemeregistry: response has no accrual_rate")

type schemeResponse struct {
	SchemeID    string              `json:"scheme_id"`
	AccrualRate decimal.NullDecimal `json:"accrual_rate"`
}

// Cache is a concurrency-safe accrual rate cache in front of the registry.
type Cache struct {
	baseURL string
	timeout time.Duration
	client  *fasthttp.Client
	logger  *slog.Logger
	limiter *rate.Limiter // nil means unlimited

	rates sync.Map // folded scheme id -> decimal.Decimal
	group singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

func WithTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithRateLimit caps outbound registry requests per second. Zero or less
// leaves requests unlimited.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Cache) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

func WithClient(client *fasthttp.Client) Option {
	return func(c *Cache) { c.client = client }
}

// New returns a cache backed by the registry at baseURL. An empty baseURL
// disables network lookups entirely.
func New(baseURL string, opts ...Option) *Cache {
	c := &Cache{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL != "" && c.client == nil {
		c.client = &fasthttp.Client{
			Name:                "pension-engine",
			MaxConnsPerHost:     100,
			MaxIdleConnDuration: 90 * time.Second,
			ReadTimeout:         c.timeout,
			WriteTimeout:        c.timeout,
		}
	}
	return c
}

// Enabled reports whether a registry is configured.
func (c *Cache) Enabled() bool {
	return c.baseURL != ""
}

// AccrualRate returns the rate for a single scheme.
func (c *Cache) AccrualRate(ctx context.Context, schemeID string) decimal.Decimal {
	return c.AccrualRates(ctx, []string{schemeID})[schemeID]
}

// AccrualRates returns a rate for every requested scheme id. Uncached ids are
// fetched concurrently, one request per id.
func (c *Cache) AccrualRates(ctx context.Context, schemeIDs []string) map[string]decimal.Decimal {
	result := make(map[string]decimal.Decimal, len(schemeIDs))

	if !c.Enabled() {
		for _, id := range schemeIDs {
			result[id] = mutations.DefaultAccrualRate
		}
		metrics.RateLookupsTotal.WithLabelValues(metrics.RateDefault).Add(float64(len(result)))
		return result
	}

	var toFetch []string
	pending := make(map[string]bool)
	for _, id := range schemeIDs {
		if _, seen := result[id]; seen {
			continue
		}
		key := cacheKey(id)
		if cached, ok := c.rates.Load(key); ok {
			result[id] = cached.(decimal.Decimal)
			metrics.RateLookupsTotal.WithLabelValues(metrics.RateHit).Inc()
			continue
		}
		// Placeholder; overwritten with the fetched rate below.
		result[id] = mutations.DefaultAccrualRate
		if !pending[key] {
			pending[key] = true
			toFetch = append(toFetch, id)
		}
	}

	if len(toFetch) == 0 {
		return result
	}

	fetched := make(map[string]decimal.Decimal, len(toFetch))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxBatchFetches)
	for _, id := range toFetch {
		g.Go(func() error {
			r := c.lookup(gctx, id)
			mu.Lock()
			fetched[cacheKey(id)] = r
			mu.Unlock()
			return nil
		})
	}
	// Lookups fall back instead of failing, so Wait has nothing to report.
	_ = g.Wait()

	for id := range result {
		if r, ok := fetched[cacheKey(id)]; ok {
			result[id] = r
		}
	}
	return result
}

// cacheKey folds scheme ids so "scheme-a" and "SCHEME-A" share one entry.
func cacheKey(schemeID string) string {
	return strings.ToUpper(schemeID)
}

// lookup fetches one rate, collapsing concurrent misses for the same id.
//
// The shared fetch runs detached from any single caller and is bounded by the
// cache timeout alone. Each caller waits only as long as its own context
// allows and falls back by itself.
func (c *Cache) lookup(ctx context.Context, schemeID string) decimal.Decimal {
	if err := ctx.Err(); err != nil {
		return c.fallback(schemeID, err)
	}

	key := cacheKey(schemeID)
	ch := c.group.DoChan(key, func() (any, error) {
		if cached, ok := c.rates.Load(key); ok {
			return cached, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		fetched, err := c.fetch(fetchCtx, schemeID)
		if err != nil {
			return nil, err
		}
		c.rates.Store(key, fetched)
		return fetched, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return c.fallback(schemeID, res.Err)
		}
		metrics.RateLookupsTotal.WithLabelValues(metrics.RateFetched).Inc()
		return res.Val.(decimal.Decimal)
	case <-ctx.Done():
		return c.fallback(schemeID, ctx.Err())
	}
}

func (c *Cache) fallback(schemeID string, err error) decimal.Decimal {
	c.logger.Debug("accrual rate lookup failed, using default",
		"scheme_id", schemeID, "error", err)
	metrics.RateLookupsTotal.WithLabelValues(metrics.RateFallback).Inc()
	return mutations.DefaultAccrualRate
}

func (c *Cache) fetch(ctx context.Context, schemeID string) (decimal.Decimal, error) {
	_, span := tracer.Start(ctx, "schemeregistry.fetch")
	defer span.End()
	span.SetAttributes(attribute.String("scheme.id", schemeID))

	r, err := c.do(ctx, schemeID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return r, err
}

func (c *Cache) do(ctx context.Context, schemeID string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if c.limiter != nil {
		waitCtx, cancel := context.WithDeadline(ctx, deadline)
		err := c.limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			return decimal.Zero, fmt.Errorf("schemeregistry: rate limited %s: %w", schemeID, err)
		}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + "/schemes/" + url.PathEscape(schemeID))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")

	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return decimal.Zero, fmt.Errorf("schemeregistry: get %s: %w", schemeID, err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return decimal.Zero, fmt.Errorf("schemeregistry: get %s: status %d", schemeID, code)
	}

	var sr schemeResponse
	if err := json.Unmarshal(resp.Body(), &sr); err != nil {
		return decimal.Zero, fmt.Errorf("schemeregistry: decode %s: %w", schemeID, err)
	}
	if !sr.AccrualRate.Valid {
		return decimal.Zero, errNoRate
	}
	return sr.AccrualRate.Decimal, nil
}
