package listing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arvscout/config"
	"arvscout/internal/cache"
	"arvscout/internal/models"
)

type upstream struct {
	mu    sync.Mutex
	calls map[string]int
	seen  []*http.Request
}

func newUpstream(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *upstream) {
	t.Helper()
	u := &upstream{calls: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.calls[r.URL.Path]++
		u.seen = append(u.seen, r.Clone(context.Background()))
		u.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, u
}

func (u *upstream) count(path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls[path]
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func testClient(t *testing.T, baseURL string, apiCache bool, limit int) (*Client, cache.Store) {
	t.Helper()
	store := cache.NewMemoryStore()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	rc := cache.NewResponseCache(store, cache.NamespaceAPI, apiCache, time.Hour, nil, logger)
	rl := cache.NewRateLimiter(store, limit, nil, logger)
	c := NewClient(Options{
		BaseURL:    baseURL,
		Host:       "zillow.test",
		APIKey:     "secret",
		Timeout:    2 * time.Second,
		RetryCount: 2,
		RetryWait:  time.Millisecond,
	}, rc, rl, logger)
	return c, store
}

func TestFirstPresent(t *testing.T) {
	raw := models.RawRecord{"price": nil, "listPrice": "", "soldPrice": "250,000", "sale_price": 1}

	v, ok := FirstPresent(raw, "price", "listPrice", "soldPrice", "sale_price")
	require.True(t, ok)
	assert.Equal(t, "250,000", v)

	_, ok = FirstPresent(raw, "missing", "price")
	assert.False(t, ok)
}

func TestNormalizeSubject(t *testing.T) {
	raw := models.RawRecord{
		"zpid":        float64(12345),
		"listPrice":   "199,900",
		"beds":        3.0,
		"bathrooms":   "2.5",
		"living_area": json.Number("1500"),
		"lotSize":     "not a number",
		"lotArea":     6000,
		"home_type":   "SINGLE_FAMILY",
		"yearBuilt":   "1987",
		"latitude":    33.1,
	}

	s := NormalizeSubject(raw)
	assert.Equal(t, "12345", s.ZPID)
	require.NotNil(t, s.ListPrice)
	assert.Equal(t, 199900.0, *s.ListPrice)
	assert.Equal(t, 3.0, *s.Beds)
	assert.Equal(t, 2.5, *s.Baths)
	assert.Equal(t, 1500.0, *s.Sqft)
	assert.Equal(t, 6000.0, *s.LotSqft, "unparsable synonym falls through to the next one")
	assert.Equal(t, "SINGLE_FAMILY", s.HomeType)
	assert.Equal(t, 1987, *s.YearBuilt)
	assert.Equal(t, 33.1, *s.Latitude)
	assert.Nil(t, s.Longitude)
}

func TestNormalizeComp(t *testing.T) {
	c := NormalizeComp(models.RawRecord{"soldPrice": 300000, "sqft": 1500, "homeType": "CONDO"})
	require.NotNil(t, c.Price)
	assert.Equal(t, 300000.0, *c.Price)
	assert.Equal(t, 1500.0, *c.Sqft)
	assert.Equal(t, "CONDO", c.HomeType)
	assert.Nil(t, c.Beds)

	comps := NormalizeComps([]models.RawRecord{{"price": 1}, {"sale_price": 2}})
	require.Len(t, comps, 2)
	assert.Equal(t, 2.0, *comps[1].Price)
}

func TestNormalizeListing_PrefersDetails(t *testing.T) {
	details := models.RawRecord{
		"zpid": "9",
		"address": map[string]any{
			"streetAddress": "1 Main St",
			"city":          "Austin",
			"state":         "TX",
			"zipcode":       "78701",
		},
		"homeStatus":   "FOR_SALE",
		"daysOnZillow": 12.0,
		"hoaFee":       nil,
	}
	summary := models.RawRecord{
		"zpid":      "9",
		"detailUrl": "https://example.test/9",
		"hoa":       "45",
		"latitude":  30.27,
		"longitude": -97.74,
	}

	l := NormalizeListing(details, summary)
	assert.Equal(t, "9", l.ZPID)
	assert.Equal(t, "1 Main St", l.Address)
	assert.Equal(t, "Austin", l.City)
	assert.Equal(t, "TX", l.State)
	assert.Equal(t, "78701", l.Zipcode)
	assert.Equal(t, "https://example.test/9", l.URL)
	assert.Equal(t, "FOR_SALE", l.Status)
	require.NotNil(t, l.DOM)
	assert.Equal(t, 12, *l.DOM)
	require.NotNil(t, l.HOA)
	assert.Equal(t, 45.0, *l.HOA)
	assert.Equal(t, -97.74, *l.Longitude)
}

func TestMergeSubject(t *testing.T) {
	s := MergeSubject(models.RawRecord{"livingArea": 1400}, models.RawRecord{"zpid": "7", "price": 150000, "livingArea": 9999})
	assert.Equal(t, "7", s.ZPID)
	assert.Equal(t, 150000.0, *s.ListPrice)
	assert.Equal(t, 1400.0, *s.Sqft)
}

func TestBuildSearchParams(t *testing.T) {
	priceMin, hoa := 100000.7, 150.5
	beds, dom := 3, 30
	f := config.Filters{
		Status:    []string{"FOR_SALE"},
		HomeTypes: []string{"SINGLE_FAMILY", "CONDO"},
		PriceMin:  &priceMin,
		BedsMin:   &beds,
		MaxDOM:    &dom,
		HOAMax:    &hoa,
	}

	p := BuildSearchParams("Austin, TX", 2, f, config.DefaultAPIMapping())
	assert.Equal(t, map[string]any{
		"location":     "Austin, TX",
		"page":         2,
		"status_type":  "ForSale",
		"home_type":    "SingleFamily,Condo",
		"minPrice":     int64(100000),
		"beds":         3,
		"daysOnMarket": 30,
		"maxHOA":       150.5,
		"sort":         "days",
	}, p)

	p = BuildSearchParams("Austin, TX", 1, config.Filters{}, config.DefaultAPIMapping())
	assert.Equal(t, map[string]any{"location": "Austin, TX", "page": 1}, p)
}

func TestSearchProperties_CachesAndSendsHeaders(t *testing.T) {
	srv, up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"props":            []any{map[string]any{"zpid": "1"}, map[string]any{"zpid": "2"}},
			"totalResultCount": 2,
		})
	})
	c, store := testClient(t, srv.URL, true, 10)
	cfg := config.DefaultAppConfig()
	ctx := context.Background()

	res, err := c.SearchProperties(ctx, "Austin, TX", 1, cfg)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	require.NotNil(t, res.TotalResultCount)
	assert.Equal(t, 2, *res.TotalResultCount)

	res, err = c.SearchProperties(ctx, "Austin, TX", 1, cfg)
	require.NoError(t, err)
	assert.Len(t, res.Results, 2)
	assert.Equal(t, 1, up.count("/propertyExtendedSearch"), "second call is a cache hit")

	used, err := store.Count(ctx, time.Now().UTC().Format(cache.DayLayout))
	require.NoError(t, err)
	assert.Equal(t, 1, used, "cache hits do not spend quota")

	req := up.seen[0]
	assert.Equal(t, "secret", req.Header.Get("x-rapidapi-key"))
	assert.Equal(t, "zillow.test", req.Header.Get("x-rapidapi-host"))
	assert.Equal(t, "Austin, TX", req.URL.Query().Get("location"))
	assert.Equal(t, "ForSale", req.URL.Query().Get("status_type"))
}

func TestSearchProperties_RateLimited(t *testing.T) {
	srv, up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"results": []any{}})
	})
	c, _ := testClient(t, srv.URL, false, 1)
	cfg := config.DefaultAppConfig()
	ctx := context.Background()

	_, err := c.SearchProperties(ctx, "Austin, TX", 1, cfg)
	require.NoError(t, err)
	_, err = c.SearchProperties(ctx, "Austin, TX", 2, cfg)
	assert.ErrorIs(t, err, cache.ErrRateLimitExceeded)
	assert.Equal(t, 1, up.count("/propertyExtendedSearch"))
}

func TestSearchProperties_ValidationError(t *testing.T) {
	srv, _ := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"results": "nope"})
	})
	c, _ := testClient(t, srv.URL, false, 10)

	_, err := c.SearchProperties(context.Background(), "x", 1, config.DefaultAppConfig())
	var dve *DataValidationError
	assert.ErrorAs(t, err, &dve)
}

func TestClient_MissingAPIKey(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://127.0.0.1:1"}, nil, nil, nil)
	_, err := c.GetPropertyDetails(context.Background(), "1")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestGetPropertyDetails_UnwrapsAndRetries(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	srv, _ := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, map[string]any{"data": map[string]any{"property": map[string]any{"zpid": "5", "livingArea": 1200}}})
	})
	c, _ := testClient(t, srv.URL, false, 10)

	details, err := c.GetPropertyDetails(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, "5", details["zpid"])
	assert.Equal(t, 1200.0, details["livingArea"])
	assert.Equal(t, 2, attempts)
}

func TestGetPropertyDetails_HTTPError(t *testing.T) {
	srv, _ := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	c, _ := testClient(t, srv.URL, false, 10)

	_, err := c.GetPropertyDetails(context.Background(), "5")
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusNotFound, he.StatusCode)
}

func TestGetPropertyComps_Primary(t *testing.T) {
	srv, up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "25", r.URL.Query().Get("count"))
		writeJSON(w, map[string]any{"comparables": []any{map[string]any{"price": 1, "livingArea": 1}}})
	})
	c, _ := testClient(t, srv.URL, false, 10)

	res, err := c.GetPropertyComps(context.Background(), "5", models.SubjectProperty{}, config.DefaultAppConfig())
	require.NoError(t, err)
	assert.Len(t, res.Comps, 1)
	assert.Equal(t, 0, up.count("/propertyExtendedSearch"))
}

func TestGetPropertyComps_FallbackExtendsWindow(t *testing.T) {
	srv, up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/comps":
			w.WriteHeader(http.StatusNotFound)
		case "/propertyExtendedSearch":
			assert.Equal(t, "RecentlySold", r.URL.Query().Get("status"))
			assert.Equal(t, "30.5", r.URL.Query().Get("latitude"))
			assert.Equal(t, "SingleFamily", r.URL.Query().Get("home_type"))
			if r.URL.Query().Get("soldInLast") == "6" {
				writeJSON(w, map[string]any{"results": []any{map[string]any{"price": 1}}})
				return
			}
			writeJSON(w, map[string]any{"results": []any{
				map[string]any{"price": 1}, map[string]any{"price": 2}, map[string]any{"price": 3},
			}})
		}
	})
	c, _ := testClient(t, srv.URL, true, 10)
	lat, lon := 30.5, -97.7
	subject := models.SubjectProperty{Latitude: &lat, Longitude: &lon}
	cfg := config.DefaultAppConfig()

	res, err := c.GetPropertyComps(context.Background(), "5", subject, cfg)
	require.NoError(t, err)
	assert.Len(t, res.Comps, 3)
	assert.Equal(t, 2, up.count("/propertyExtendedSearch"))

	// the fallback outcome is cached; only the failing primary is retried
	res, err = c.GetPropertyComps(context.Background(), "5", subject, cfg)
	require.NoError(t, err)
	assert.Len(t, res.Comps, 3)
	assert.Equal(t, 2, up.count("/propertyExtendedSearch"))
}

func TestGetPropertyComps_RateLimitSkipsFallback(t *testing.T) {
	srv, up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"results": []any{}})
	})
	c, _ := testClient(t, srv.URL, false, 0)

	_, err := c.GetPropertyComps(context.Background(), "5", models.SubjectProperty{}, config.DefaultAppConfig())
	assert.ErrorIs(t, err, cache.ErrRateLimitExceeded)
	assert.Equal(t, 0, up.count("/comps"))
	assert.Equal(t, 0, up.count("/propertyExtendedSearch"))
}
