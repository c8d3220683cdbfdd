package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"arvscout/config"
	"arvscout/internal/cache"
	"arvscout/internal/models"
	"arvscout/internal/queue"
)

// MockLister is a mock implementation of Lister
type MockLister struct {
	mock.Mock
}

func (m *MockLister) SearchProperties(ctx context.Context, geo string, page int, cfg *config.AppConfig) (*models.SearchResult, error) {
	args := m.Called(ctx, geo, page, cfg)
	res, _ := args.Get(0).(*models.SearchResult)
	return res, args.Error(1)
}

func (m *MockLister) GetPropertyDetails(ctx context.Context, zpid string) (models.RawRecord, error) {
	args := m.Called(ctx, zpid)
	res, _ := args.Get(0).(models.RawRecord)
	return res, args.Error(1)
}

func (m *MockLister) GetPropertyComps(ctx context.Context, zpid string, subject models.SubjectProperty, cfg *config.AppConfig) (*models.CompsResult, error) {
	args := m.Called(ctx, zpid, subject, cfg)
	res, _ := args.Get(0).(*models.CompsResult)
	return res, args.Error(1)
}

type collector struct {
	q    *queue.RowQueue
	rows []models.ValuationRow
}

func newCollector() *collector {
	c := &collector{q: queue.NewRowQueue(10, logrus.New())}
	c.q.Subscribe(func(rows []models.ValuationRow) error {
		c.rows = append(c.rows, rows...)
		return nil
	})
	c.q.Start()
	return c
}

func (c *collector) finish(t *testing.T) []models.ValuationRow {
	t.Helper()
	require.NoError(t, c.q.Close())
	require.NoError(t, c.q.Wait())
	return c.rows
}

func threeComps() *models.CompsResult {
	return &models.CompsResult{Comps: []models.RawRecord{
		{"price": 100000, "livingArea": 1000},
		{"price": 100000, "livingArea": 1000},
		{"soldPrice": 100000, "sqft": 1000},
	}}
}

func testConfig(geos ...string) *config.AppConfig {
	cfg := config.DefaultAppConfig()
	cfg.Filters.Geos = geos
	cfg.Filters.PageCap = 3
	return cfg
}

func envConfig(workers int) *config.Config {
	cfg := &config.Config{}
	cfg.BatchProcessing.ProcessorCount = workers
	return cfg
}

func TestNewBatchProcessor(t *testing.T) {
	lister := &MockLister{}
	q := queue.NewRowQueue(10, logrus.New())
	cfg := envConfig(2)
	logger := logrus.New()

	processor := NewBatchProcessor(lister, q, cfg, logger)

	assert.NotNil(t, processor)
	assert.Equal(t, lister, processor.lister)
	assert.Equal(t, q, processor.queue)
	assert.Equal(t, cfg, processor.config)
	assert.Equal(t, logger, processor.logger)
	assert.Equal(t, 2, processor.workers())

	assert.Equal(t, 1, NewBatchProcessor(lister, q, nil, nil).workers())
}

func TestBatchProcessor_Run(t *testing.T) {
	cfg := testConfig("Austin, TX")
	lister := &MockLister{}

	lister.On("SearchProperties", mock.Anything, "Austin, TX", 1, cfg).Return(&models.SearchResult{Results: []models.RawRecord{
		{"zpid": "1", "price": 100000, "livingArea": 1100, "address": "1 Main St"},
		{"zpid": "2", "price": 150000},
		{"address": "no id"},
	}}, nil).Once()
	lister.On("SearchProperties", mock.Anything, "Austin, TX", 2, cfg).Return(&models.SearchResult{}, nil).Once()

	lister.On("GetPropertyDetails", mock.Anything, "1").Return(models.RawRecord{"zpid": "1", "city": "Austin"}, nil)
	lister.On("GetPropertyDetails", mock.Anything, "2").Return(nil, errors.New("boom"))
	lister.On("GetPropertyComps", mock.Anything, "1", mock.Anything, cfg).Return(threeComps(), nil)
	lister.On("GetPropertyComps", mock.Anything, "2", mock.Anything, cfg).Return(nil, errors.New("no comps"))

	col := newCollector()
	sum, err := NewBatchProcessor(lister, col.q, envConfig(2), nil).Run(context.Background(), cfg)
	require.NoError(t, err)
	rows := col.finish(t)

	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, 2, sum.Rows)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 0, sum.Screened)
	assert.False(t, sum.RateLimited)

	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, "1", first.Listing.ZPID)
	assert.Equal(t, "1 Main St", first.Listing.Address)
	assert.Equal(t, "Austin", first.Listing.City)
	require.NotNil(t, first.Valuation)
	assert.InDelta(t, 110000.0, first.Valuation.Estimate.ArvValue, 1e-6)
	assert.Equal(t, 3, first.Valuation.Estimate.CompCount)
	assert.InDelta(t, 100000.0/110000.0, first.Valuation.DealRatio, 1e-9)
	assert.Nil(t, first.Valuation.Profit)
	assert.Equal(t, "Austin, TX", first.SearchGeo)
	assert.Equal(t, 1, first.Page)
	assert.Equal(t, 0.75, first.CompRadiusMi)
	assert.Equal(t, 6, first.CompWindowMonths)
	assert.False(t, first.Timestamp.IsZero())
	assert.Empty(t, first.Note)

	second := rows[1]
	assert.Equal(t, "2", second.Listing.ZPID)
	assert.Nil(t, second.Valuation)
	assert.Equal(t, "subject is missing sqft; cannot compute ARV", second.Note)
	require.NotNil(t, second.Subject.ListPrice)
	assert.Equal(t, 150000.0, *second.Subject.ListPrice)

	lister.AssertExpectations(t)
}

func TestBatchProcessor_DealScreen(t *testing.T) {
	cfg := testConfig("Austin, TX")
	cfg.Filters.PageCap = 1
	limit := 0.5
	cfg.DealScreen = &config.DealScreen{MaxListToArvPct: &limit}

	lister := &MockLister{}
	lister.On("SearchProperties", mock.Anything, "Austin, TX", 1, cfg).Return(&models.SearchResult{Results: []models.RawRecord{
		{"zpid": "1", "price": 100000, "livingArea": 1100},
		{"zpid": "2", "price": 40000, "livingArea": 1100},
	}}, nil)
	lister.On("GetPropertyDetails", mock.Anything, mock.Anything).Return(models.RawRecord{}, nil)
	lister.On("GetPropertyComps", mock.Anything, mock.Anything, mock.Anything, cfg).Return(threeComps(), nil)

	col := newCollector()
	sum, err := NewBatchProcessor(lister, col.q, envConfig(1), nil).Run(context.Background(), cfg)
	require.NoError(t, err)
	rows := col.finish(t)

	assert.Equal(t, 1, sum.Screened)
	require.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0].Listing.ZPID)
}

func TestBatchProcessor_RateLimitAborts(t *testing.T) {
	cfg := testConfig("Austin, TX", "Dallas, TX")
	lister := &MockLister{}
	lister.On("SearchProperties", mock.Anything, "Austin, TX", 1, cfg).Return(&models.SearchResult{Results: []models.RawRecord{
		{"zpid": "1", "price": 100000, "livingArea": 1100},
	}}, nil)
	lister.On("GetPropertyDetails", mock.Anything, "1").Return(models.RawRecord{}, nil)
	lister.On("GetPropertyComps", mock.Anything, "1", mock.Anything, cfg).Return(nil, cache.ErrRateLimitExceeded)

	col := newCollector()
	sum, err := NewBatchProcessor(lister, col.q, envConfig(1), nil).Run(context.Background(), cfg)
	rows := col.finish(t)

	assert.ErrorIs(t, err, cache.ErrRateLimitExceeded)
	assert.True(t, sum.RateLimited)
	assert.Equal(t, 0, sum.Rows)
	assert.Empty(t, rows)
	lister.AssertNotCalled(t, "SearchProperties", mock.Anything, "Dallas, TX", mock.Anything, mock.Anything)
}

func TestBatchProcessor_SearchErrorMovesToNextGeo(t *testing.T) {
	cfg := testConfig("Nowhere", "Austin, TX")
	cfg.Filters.PageCap = 1
	lister := &MockLister{}
	lister.On("SearchProperties", mock.Anything, "Nowhere", 1, cfg).Return(nil, errors.New("status 500"))
	lister.On("SearchProperties", mock.Anything, "Austin, TX", 1, cfg).Return(&models.SearchResult{}, nil)

	col := newCollector()
	sum, err := NewBatchProcessor(lister, col.q, envConfig(1), nil).Run(context.Background(), cfg)
	require.NoError(t, err)
	col.finish(t)

	assert.Equal(t, 0, sum.Rows)
	lister.AssertExpectations(t)
}

func TestBatchProcessor_CancelledContext(t *testing.T) {
	cfg := testConfig("Austin, TX")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	col := newCollector()
	_, err := NewBatchProcessor(&MockLister{}, col.q, envConfig(1), nil).Run(ctx, cfg)
	col.finish(t)
	assert.ErrorIs(t, err, context.Canceled)
}
