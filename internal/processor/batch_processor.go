package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"arvscout/config"
	"arvscout/internal/cache"
	"arvscout/internal/geometry"
	"arvscout/internal/listing"
	"arvscout/internal/models"
	"arvscout/internal/queue"
	"arvscout/internal/valuation"
)

// Lister is the subset of the listings client the processor needs.
type Lister interface {
	SearchProperties(ctx context.Context, geo string, page int, cfg *config.AppConfig) (*models.SearchResult, error)
	GetPropertyDetails(ctx context.Context, zpid string) (models.RawRecord, error)
	GetPropertyComps(ctx context.Context, zpid string, subject models.SubjectProperty, cfg *config.AppConfig) (*models.CompsResult, error)
}

// Summary describes one completed or aborted run.
type Summary struct {
	RunID       string    `json:"run_id"`
	Rows        int       `json:"rows"`
	Skipped     int       `json:"skipped"`
	Screened    int       `json:"screened"`
	RateLimited bool      `json:"rate_limited"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// BatchProcessor searches every configured geo page by page, values each
// listing and pushes the resulting rows to the queue.
type BatchProcessor struct {
	lister Lister
	queue  *queue.RowQueue
	config *config.Config
	logger *logrus.Logger
	now    func() time.Time
}

// NewBatchProcessor creates a new batch processor instance
func NewBatchProcessor(lister Lister, queue *queue.RowQueue, config *config.Config, logger *logrus.Logger) *BatchProcessor {
	if logger == nil {
		logger = logrus.New()
	}
	return &BatchProcessor{
		lister: lister,
		queue:  queue,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the clock used for row timestamps and the summary.
func (p *BatchProcessor) WithClock(now func() time.Time) *BatchProcessor {
	if now != nil {
		p.now = now
	}
	return p
}

func (p *BatchProcessor) workers() int {
	if p.config == nil || p.config.BatchProcessing.ProcessorCount < 1 {
		return 1
	}
	return p.config.BatchProcessing.ProcessorCount
}

// Run executes one full search-and-value pass. When the daily upstream quota
// runs out the run stops, the summary is marked RateLimited and
// cache.ErrRateLimitExceeded is returned alongside it.
func (p *BatchProcessor) Run(ctx context.Context, cfg *config.AppConfig) (*Summary, error) {
	sum := &Summary{RunID: uuid.NewString(), StartedAt: p.now().UTC()}
	log := p.logger.WithField("run_id", sum.RunID)

	pageCap := cfg.Filters.PageCap
	if pageCap < 1 {
		pageCap = 1
	}

	err := p.run(ctx, cfg, sum, pageCap, log)
	sum.FinishedAt = p.now().UTC()
	if errors.Is(err, cache.ErrRateLimitExceeded) {
		sum.RateLimited = true
		log.Warn("Run stopped: daily upstream request limit reached")
	}

	log.WithFields(logrus.Fields{
		"rows":     sum.Rows,
		"skipped":  sum.Skipped,
		"screened": sum.Screened,
	}).Info("Run finished")
	return sum, err
}

func (p *BatchProcessor) run(ctx context.Context, cfg *config.AppConfig, sum *Summary, pageCap int, log *logrus.Entry) error {
	for _, geo := range cfg.Filters.Geos {
		log.WithField("geo", geo).Info("Searching")

		for page := 1; page <= pageCap; page++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			res, err := p.lister.SearchProperties(ctx, geo, page, cfg)
			if err != nil {
				if fatal(ctx, err) {
					return err
				}
				log.WithError(err).WithFields(logrus.Fields{"geo": geo, "page": page}).Error("Search failed")
				break
			}

			log.WithFields(logrus.Fields{
				"geo":     geo,
				"page":    page,
				"results": len(res.Results),
			}).Info("Found properties")
			if len(res.Results) == 0 {
				break
			}

			if err := p.processPage(ctx, cfg, geo, page, res.Results, sum); err != nil {
				return err
			}
		}
	}
	return nil
}

// processPage values one search page with up to ProcessorCount workers and
// pushes the surviving rows, in search order, as one batch.
func (p *BatchProcessor) processPage(ctx context.Context, cfg *config.AppConfig, geo string, page int, props []models.RawRecord, sum *Summary) error {
	rows := make([]*models.ValuationRow, len(props))
	ts := p.now().UTC()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for i, raw := range props {
		g.Go(func() error {
			row, err := p.valueProperty(gctx, cfg, raw)
			if err != nil {
				return err
			}
			if row != nil {
				row.SearchGeo = geo
				row.Page = page
				row.Timestamp = ts
			}
			rows[i] = row
			return nil
		})
	}
	waitErr := g.Wait()

	batch := make([]models.ValuationRow, 0, len(rows))
	for i, row := range rows {
		if row == nil {
			if waitErr == nil {
				p.logger.WithField("index", i).Debug("Skipping result without zpid")
				sum.Skipped++
			}
			continue
		}
		if screenedOut(cfg, row) {
			p.logger.WithFields(logrus.Fields{
				"zpid":            row.Listing.ZPID,
				"list_to_arv_pct": row.Valuation.DealRatio,
			}).Debug("Filtered out by deal screen")
			sum.Screened++
			continue
		}
		batch = append(batch, *row)
	}

	// Rows finished before an abort are still written.
	if len(batch) > 0 {
		if err := p.queue.Push(ctx, batch); err != nil {
			return fmt.Errorf("failed to queue rows: %w", err)
		}
		sum.Rows += len(batch)
	}
	return waitErr
}

// valueProperty builds the output row for one search result. A nil row means
// the result had no zpid. Only run-ending errors are returned; everything else
// becomes the row's note.
func (p *BatchProcessor) valueProperty(ctx context.Context, cfg *config.AppConfig, summary models.RawRecord) (*models.ValuationRow, error) {
	zpid := listing.ZPID(summary)
	if zpid == "" {
		return nil, nil
	}
	log := p.logger.WithField("zpid", zpid)

	details, err := p.lister.GetPropertyDetails(ctx, zpid)
	if err != nil {
		if fatal(ctx, err) {
			return nil, err
		}
		log.WithError(err).Warn("Details failed")
		details = nil
	}

	subject := listing.MergeSubject(details, summary)
	subject.ZPID = zpid

	var comps []models.ComparableSale
	res, err := p.lister.GetPropertyComps(ctx, zpid, subject, cfg)
	if err != nil {
		if fatal(ctx, err) {
			return nil, err
		}
		log.WithError(err).Warn("Comps failed")
	} else {
		comps = listing.NormalizeComps(res.Comps)
	}

	comps, dropped := geometry.ScreenByRadius(subject, comps, cfg.ArvConfig.CompRadiusMi)
	if dropped > 0 {
		log.WithField("dropped", dropped).Debug("Dropped comps outside radius")
	}

	row := &models.ValuationRow{
		Listing:          listing.NormalizeListing(details, summary),
		Subject:          subject,
		CompRadiusMi:     cfg.ArvConfig.CompRadiusMi,
		CompWindowMonths: cfg.ArvConfig.CompWindowMonths,
	}
	if row.Listing.ZPID == "" {
		row.Listing.ZPID = zpid
	}

	v, err := valuation.EstimateARVAndProfit(subject, comps, cfg.ArvConfig, cfg.ProfitConfig)
	if err != nil {
		log.WithError(err).Info("Valuation skipped")
		row.Note = err.Error()
		return row, nil
	}
	row.Valuation = v
	return row, nil
}

func screenedOut(cfg *config.AppConfig, row *models.ValuationRow) bool {
	if cfg.DealScreen == nil || cfg.DealScreen.MaxListToArvPct == nil || row.Valuation == nil {
		return false
	}
	return row.Valuation.DealRatio > *cfg.DealScreen.MaxListToArvPct
}

func fatal(ctx context.Context, err error) bool {
	return errors.Is(err, cache.ErrRateLimitExceeded) || errors.Is(err, listing.ErrMissingAPIKey) || ctx.Err() != nil
}
