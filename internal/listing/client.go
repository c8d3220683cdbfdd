// Package listing talks to the RapidAPI Zillow endpoints and turns their
// loosely shaped records into the canonical property types.
package listing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"arvscout/config"
	"arvscout/internal/cache"
	"arvscout/internal/models"
)

// Cache endpoint names. The fallback comps search is cached apart from the
// regular property search.
const (
	EndpointSearch       = "propertyExtendedSearch"
	EndpointDetails      = "property"
	EndpointComps        = "comps"
	EndpointFallbackSold = "propertyExtendedSearch_sold"

	compsCount = 25
)

var compListKeys = []string{"comparables", "comp", "results", "props", "comps"}

type Options struct {
	// BaseURL overrides https://{Host}; tests point it at an httptest server.
	BaseURL    string
	Host       string
	APIKey     string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

type Client struct {
	http      *resty.Client
	apiKey    string
	responses *cache.ResponseCache
	limiter   *cache.RateLimiter
	logger    *logrus.Logger
}

func NewClient(opts Options, responses *cache.ResponseCache, limiter *cache.RateLimiter, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://" + opts.Host
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = time.Second
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(opts.Timeout).
		SetHeader("x-rapidapi-host", opts.Host).
		SetHeader("x-rapidapi-key", opts.APIKey).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(8 * opts.RetryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})

	return &Client{
		http:      httpClient,
		apiKey:    opts.APIKey,
		responses: responses,
		limiter:   limiter,
		logger:    logger,
	}
}

// get performs one upstream call, consuming one unit of the daily quota.
func (c *Client) get(ctx context.Context, path string, params map[string]any) (map[string]any, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(queryStrings(params)).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("listings API %s request failed: %w", path, err)
	}
	if resp.IsError() {
		return nil, &HTTPError{Path: path, StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	var payload map[string]any
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, invalid(path+" response", "body is not a JSON object: %v", err)
	}
	return payload, nil
}

// cached serves (endpoint, params) from the api namespace when possible and
// otherwise runs fetch and stores its result. The rate limiter is only
// consulted inside fetch, so hits never spend quota.
func cached[T any](ctx context.Context, c *Client, endpoint string, params map[string]any, fetch func() (T, error)) (T, error) {
	var out T
	payload, hit, err := c.responses.Get(ctx, endpoint, params)
	if err != nil {
		c.logger.WithError(err).WithField("endpoint", endpoint).Warn("Cache read failed, calling upstream")
	} else if hit {
		if err := json.Unmarshal(payload, &out); err != nil {
			return out, &DataValidationError{Op: "cached " + endpoint, Err: err}
		}
		return out, nil
	}

	out, err = fetch()
	if err != nil {
		return out, err
	}
	if err := c.responses.Put(ctx, endpoint, params, out); err != nil {
		c.logger.WithError(err).WithField("endpoint", endpoint).Warn("Cache write failed")
	}
	return out, nil
}

func (c *Client) cacheStatus() string {
	if c.responses.Enabled() {
		return "enabled"
	}
	return "disabled"
}

// SearchProperties returns one page of listings for geo.
func (c *Client) SearchProperties(ctx context.Context, geo string, page int, cfg *config.AppConfig) (*models.SearchResult, error) {
	params := BuildSearchParams(geo, page, cfg.Filters, cfg.APIMapping)

	res, err := cached(ctx, c, EndpointSearch, params, func() (*models.SearchResult, error) {
		payload, err := c.get(ctx, "/propertyExtendedSearch", params)
		if err != nil {
			return nil, err
		}
		results, err := recordList(EndpointSearch, payload, "results", "props")
		if err != nil {
			return nil, err
		}
		out := &models.SearchResult{Results: results}
		if total, ok := payload["totalResultCount"].(float64); ok {
			n := int(total)
			out.TotalResultCount = &n
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"endpoint": EndpointSearch,
		"geo":      geo,
		"page":     page,
		"results":  len(res.Results),
		"cache":    c.cacheStatus(),
	}).Info("Used endpoint")
	return res, nil
}

// GetPropertyDetails returns the details record for zpid with any
// property/data wrapper removed.
func (c *Client) GetPropertyDetails(ctx context.Context, zpid string) (models.RawRecord, error) {
	params := map[string]any{"zpid": zpid}

	details, err := cached(ctx, c, EndpointDetails, params, func() (models.RawRecord, error) {
		payload, err := c.get(ctx, "/property", params)
		if err != nil {
			return nil, err
		}
		return unwrapDetails(payload)
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"endpoint": EndpointDetails,
		"zpid":     zpid,
		"cache":    c.cacheStatus(),
	}).Info("Used endpoint")
	return details, nil
}

func unwrapDetails(payload map[string]any) (models.RawRecord, error) {
	var details any = payload
	for _, wrapper := range []string{"property", "data"} {
		if inner, ok := payload[wrapper]; ok && inner != nil {
			details = inner
			break
		}
	}
	obj, ok := details.(map[string]any)
	if !ok {
		return nil, invalid("property details", "expected an object, got %T", details)
	}
	if inner, ok := obj["property"].(map[string]any); ok {
		obj = inner
	}
	return models.RawRecord(obj), nil
}

// GetPropertyComps returns comparable sales for zpid. The comps endpoint is
// tried first; when it fails, recently sold listings around the subject are
// searched instead, widening the window once if too few come back.
func (c *Client) GetPropertyComps(ctx context.Context, zpid string, subject models.SubjectProperty, cfg *config.AppConfig) (*models.CompsResult, error) {
	params := map[string]any{"zpid": zpid, "count": compsCount}

	res, err := cached(ctx, c, EndpointComps, params, func() (*models.CompsResult, error) {
		payload, err := c.get(ctx, "/comps", params)
		if err != nil {
			return nil, err
		}
		comps, err := recordList(EndpointComps, payload, compListKeys...)
		if err != nil {
			return nil, err
		}
		return &models.CompsResult{Comps: comps}, nil
	})
	if err == nil {
		c.logger.WithFields(logrus.Fields{
			"endpoint": EndpointComps,
			"zpid":     zpid,
			"comps":    len(res.Comps),
			"cache":    c.cacheStatus(),
		}).Info("Used endpoint")
		return res, nil
	}
	if isFatal(ctx, err) {
		return nil, err
	}

	c.logger.WithError(err).WithField("zpid", zpid).Info("Comps endpoint unavailable, attempting fallback")
	return c.recentlySoldComps(ctx, subject, cfg)
}

func (c *Client) recentlySoldComps(ctx context.Context, subject models.SubjectProperty, cfg *config.AppConfig) (*models.CompsResult, error) {
	arv := cfg.ArvConfig
	params := map[string]any{
		"status":         "RecentlySold",
		"radius":         arv.CompRadiusMi,
		"soldInLast":     arv.CompWindowMonths,
		"sort":           "days",
		"isRecentlySold": true,
	}
	if subject.Latitude != nil {
		params["latitude"] = *subject.Latitude
	}
	if subject.Longitude != nil {
		params["longitude"] = *subject.Longitude
	}
	if len(cfg.Filters.HomeTypes) > 0 {
		params["home_type"] = cfg.APIMapping.HomeType(cfg.Filters.HomeTypes)
	}

	res, err := cached(ctx, c, EndpointFallbackSold, params, func() (*models.CompsResult, error) {
		payload, err := c.get(ctx, "/propertyExtendedSearch", params)
		if err != nil {
			return nil, err
		}
		comps, err := recordList(EndpointFallbackSold, payload, "results", "props")
		if err != nil {
			return nil, err
		}

		ext := arv.ExtendWindowIfInsufficient
		if len(comps) >= arv.MinComps || ext <= arv.CompWindowMonths {
			return &models.CompsResult{Comps: comps}, nil
		}

		extended := make(map[string]any, len(params))
		for k, v := range params {
			extended[k] = v
		}
		extended["soldInLast"] = ext

		payload, err = c.get(ctx, "/propertyExtendedSearch", extended)
		if err != nil {
			if isFatal(ctx, err) {
				return nil, err
			}
			c.logger.WithError(err).Debug("Extended window fetch failed")
			return &models.CompsResult{Comps: comps}, nil
		}
		more, err := recordList(EndpointFallbackSold, payload, "results", "props")
		if err == nil && len(more) > len(comps) {
			c.logger.WithFields(logrus.Fields{
				"window_months": ext,
				"comps":         len(more),
			}).Info("Extended comps window due to insufficiency")
			comps = more
		}
		return &models.CompsResult{Comps: comps}, nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"endpoint": EndpointFallbackSold,
		"comps":    len(res.Comps),
		"cache":    c.cacheStatus(),
	}).Info("Used fallback: recently sold search")
	return res, nil
}

// isFatal reports errors that must stop the run instead of triggering a fallback.
func isFatal(ctx context.Context, err error) bool {
	return errors.Is(err, cache.ErrRateLimitExceeded) || errors.Is(err, ErrMissingAPIKey) || ctx.Err() != nil
}

// recordList extracts the first non-empty list found under keys. A missing
// list is an empty result; a list of non-objects is a validation error.
func recordList(op string, payload map[string]any, keys ...string) ([]models.RawRecord, error) {
	for _, k := range keys {
		v, ok := payload[k]
		if !ok || v == nil {
			continue
		}
		items, ok := v.([]any)
		if !ok {
			return nil, invalid(op, "%q is %T, expected a list", k, v)
		}
		if len(items) == 0 {
			continue
		}
		out := make([]models.RawRecord, 0, len(items))
		for i, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, invalid(op, "%s[%d] is %T, expected an object", k, i, item)
			}
			out = append(out, models.RawRecord(obj))
		}
		return out, nil
	}
	return []models.RawRecord{}, nil
}

// BuildSearchParams translates run filters into propertyExtendedSearch query
// parameters. Unset filters are omitted.
func BuildSearchParams(geo string, page int, f config.Filters, m config.APIMapping) map[string]any {
	params := map[string]any{
		"location": geo,
		"page":     page,
	}
	if len(f.Status) > 0 {
		params["status_type"] = m.Status(f.Status)
	}
	if len(f.HomeTypes) > 0 {
		params["home_type"] = m.HomeType(f.HomeTypes)
	}

	setInt := func(name string, v *int) {
		if v != nil {
			params[m.Param(name)] = *v
		}
	}
	setFloat := func(name string, v *float64) {
		if v == nil {
			return
		}
		key := m.Param(name)
		if strings.Contains(key, "Price") {
			params[key] = int64(math.Trunc(*v))
			return
		}
		params[key] = *v
	}

	setFloat("price_min", f.PriceMin)
	setFloat("price_max", f.PriceMax)
	setInt("beds_min", f.BedsMin)
	setInt("baths_min", f.BathsMin)
	setInt("min_sqft", f.MinSqft)
	setInt("min_lot_sqft", f.MinLotSqft)
	setInt("year_built_min", f.YearBuiltMin)
	setInt("max_dom", f.MaxDOM)
	setFloat("hoa_max", f.HOAMax)

	if f.MaxDOM != nil && *f.MaxDOM != 0 {
		params["sort"] = "days"
	}
	return params
}

func queryStrings(params map[string]any) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if v == nil {
			continue
		}
		out[k] = stringify(v)
	}
	return out
}
