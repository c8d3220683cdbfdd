package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"arvscout/internal/processor"
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("a run is already in progress")

// RunFunc performs one batch run.
type RunFunc func(ctx context.Context) (*processor.Summary, error)

// Result records the outcome of the most recent run.
type Result struct {
	Summary    *processor.Summary `json:"summary,omitempty"`
	Error      string             `json:"error,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// Scheduler runs batch jobs on a cron schedule or on demand. At most one run
// executes at a time.
type Scheduler struct {
	cron    *cron.Cron
	run     RunFunc
	logger  *logrus.Logger
	baseCtx context.Context

	running sync.Mutex
	wg      sync.WaitGroup

	mu   sync.RWMutex
	last *Result
}

// NewScheduler creates a scheduler. Jobs receive baseCtx.
func NewScheduler(run RunFunc, logger *logrus.Logger, baseCtx context.Context) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	cl := cron.PrintfLogger(logger)
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		run:     run,
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Schedule registers a run for every tick of the standard five-field cron spec.
func (s *Scheduler) Schedule(spec string) (cron.EntryID, error) {
	return s.cron.AddFunc(spec, func() {
		if _, err := s.RunNow(s.baseCtx); errors.Is(err, ErrRunInProgress) {
			s.logger.Warn("Skipping scheduled run: previous run still active")
		}
	})
}

// RunNow executes a run synchronously. It fails fast with ErrRunInProgress
// instead of queueing behind an active run.
func (s *Scheduler) RunNow(ctx context.Context) (*processor.Summary, error) {
	if !s.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.running.Unlock()
	return s.execute(ctx)
}

// Trigger starts a run in the background.
func (s *Scheduler) Trigger() error {
	if !s.running.TryLock() {
		return ErrRunInProgress
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Unlock()
		s.execute(s.baseCtx)
	}()
	return nil
}

func (s *Scheduler) execute(ctx context.Context) (*processor.Summary, error) {
	res := &Result{StartedAt: time.Now().UTC()}
	s.logger.Info("Starting batch run")

	sum, err := s.run(ctx)
	res.Summary = sum
	res.FinishedAt = time.Now().UTC()
	if err != nil {
		res.Error = err.Error()
		s.logger.WithError(err).Error("Batch run failed")
	} else {
		s.logger.WithField("duration", res.FinishedAt.Sub(res.StartedAt)).Info("Batch run completed")
	}

	s.mu.Lock()
	s.last = res
	s.mu.Unlock()
	return sum, err
}

// Last returns the most recent run result, or nil before the first run.
func (s *Scheduler) Last() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Start begins firing scheduled entries.
func (s *Scheduler) Start() {
	s.logger.Info("Scheduler started")
	s.cron.Start()
}

// Stop stops the cron and waits for any active run to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}
