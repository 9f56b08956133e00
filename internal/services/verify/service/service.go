// Package service provides the batch verification service implementation
package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"skillproof/internal/adapters/fetch"
	"skillproof/internal/modkit/repokit"
	"skillproof/internal/platform/logger"
	"skillproof/internal/services/verify/domain"
	"skillproof/internal/services/verify/repo"
)

// Config for the verification service
type Config struct {
	// Workers is the pool size, default 10
	Workers int
	// FlushEvery commits accumulated verdicts after this many completions,
	// default 50
	FlushEvery int
	// Retries is how many extra times a unit re-runs its whole
	// fetch-extract cycle after a transient outcome, on top of the fetch
	// layer's own per-request attempts. Default 2
	Retries int
	// JitterMin/JitterMax bound the random delay before each unit's
	// network call, defaults 100ms-500ms
	JitterMin time.Duration
	JitterMax time.Duration
	// CacheSize bounds the run-scoped URL result cache
	CacheSize int
	// UseBrowser drives Skills Boost pages through a headless session so
	// client-side injected issuance dates are present
	UseBrowser bool
	// HTTPTimeout bounds each plain HTTP request
	HTTPTimeout time.Duration
	// BrowserTimeout bounds each browser page load
	BrowserTimeout time.Duration
}

func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = 10
	}
	if c.FlushEvery <= 0 {
		c.FlushEvery = 50
	}
	if c.Retries < 0 {
		c.Retries = 0
	} else if c.Retries == 0 {
		c.Retries = 2
	}
	if c.JitterMin <= 0 {
		c.JitterMin = 100 * time.Millisecond
	}
	if c.JitterMax <= c.JitterMin {
		c.JitterMax = c.JitterMin + 400*time.Millisecond
	}
}

// sleep is a seam for tests
var sleep = time.Sleep

// Service implements domain.RunnerPort
type Service struct {
	db     repokit.TxRunner
	binder repokit.Binder[repo.Storage]
	cfg    Config

	// newFetcher builds one fetcher per worker identity. The orchestrator
	// owns each instance for the worker's lifetime and closes it when the
	// batch ends; workers never share sessions
	newFetcher func() (fetch.Fetcher, error)
}

// New constructs the verification service
func New(db repokit.TxRunner, binder repokit.Binder[repo.Storage], cfg Config) *Service {
	cfg.defaults()
	s := &Service{db: db, binder: binder, cfg: cfg}
	s.newFetcher = s.defaultFetcher
	return s
}

func (s *Service) defaultFetcher() (fetch.Fetcher, error) {
	httpf := fetch.NewHTTP(fetch.HTTPConfig{Timeout: s.cfg.HTTPTimeout})
	if !s.cfg.UseBrowser {
		return httpf, nil
	}
	b, err := fetch.NewBrowser(fetch.BrowserConfig{PageTimeout: s.cfg.BrowserTimeout}, httpf)
	if err != nil {
		// a missing browser degrades to plain HTTP instead of failing the run
		logger.Get().Warn().Err(err).Msg("browser session unavailable, falling back to http")
		return httpf, nil
	}
	return b, nil
}

// Run implements domain.RunnerPort
func (s *Service) Run(ctx context.Context, opts domain.RunOpts) (domain.Summary, error) {
	if opts.Workers <= 0 {
		opts.Workers = s.cfg.Workers
	}

	sum := domain.Summary{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	ctx = logger.WithRun(ctx, sum.RunID)
	log := logger.C(ctx)

	if opts.Profiles {
		targets, err := s.binder.Bind(s.db).FetchPendingProfiles(ctx, opts.Limit, opts.Force)
		if err != nil {
			return sum, err
		}
		log.Info().Int("targets", len(targets)).Int("workers", opts.Workers).Msg("verifying profiles")
		s.runEntity(ctx, targets, opts, &sum)
	}
	if opts.Badges {
		targets, err := s.binder.Bind(s.db).FetchPendingBadges(ctx, opts.Limit, opts.Force)
		if err != nil {
			return sum, err
		}
		log.Info().Int("targets", len(targets)).Int("workers", opts.Workers).Msg("verifying badges")
		s.runEntity(ctx, targets, opts, &sum)
	}

	sum.FinishedAt = time.Now().UTC()
	if err := s.binder.Bind(s.db).RecordRun(ctx, sum); err != nil {
		log.Error().Err(err).Msg("failed to record verification run")
		sum.AddError("record run: " + err.Error())
	}

	log.Info().
		Int("profiles_verified", sum.ProfilesVerified).
		Int("profiles_failed", sum.ProfilesFailed).
		Int("badges_verified", sum.BadgesVerified).
		Int("badges_failed", sum.BadgesFailed).
		Int("badges_pending", sum.BadgesPending).
		Int("errors", sum.TotalErrors).
		Msg("verification run complete")
	return sum, nil
}

// runEntity fans one entity's targets across the worker pool, collecting
// results as they complete and flushing to storage at a fixed cadence
func (s *Service) runEntity(ctx context.Context, targets []domain.Target, opts domain.RunOpts, sum *domain.Summary) {
	if len(targets) == 0 {
		return
	}
	log := logger.C(ctx)

	// callers must not submit duplicate targets within one batch
	seen := make(map[string]bool, len(targets))
	queue := make([]domain.Target, 0, len(targets))
	for _, t := range targets {
		if seen[t.Key()] {
			continue
		}
		seen[t.Key()] = true
		queue = append(queue, t)
	}

	cache := newResultCache(s.cfg.CacheSize)
	tasks := make(chan domain.Target)
	results := make(chan domain.Result, opts.Workers)

	var wg sync.WaitGroup
	started := 0
	for w := 0; w < opts.Workers; w++ {
		f, err := s.newFetcher()
		if err != nil {
			log.Error().Err(err).Int("worker", w).Msg("worker fetcher unavailable")
			sum.AddError("worker fetcher: " + err.Error())
			continue
		}
		started++
		wg.Add(1)
		go func(f fetch.Fetcher) {
			defer wg.Done()
			defer f.Close()
			for t := range tasks {
				results <- s.verifyOne(ctx, f, t, cache, opts.Force)
			}
		}(f)
	}
	if started == 0 {
		// nobody to drain the task channel; feeding would block forever
		log.Error().Int("targets", len(queue)).Msg("no workers available, batch abandoned")
		return
	}

	go func() {
		for _, t := range queue {
			tasks <- t
		}
		close(tasks)
		wg.Wait()
		close(results)
	}()

	buf := make([]domain.Result, 0, s.cfg.FlushEvery)
	completed := 0
	for r := range results {
		completed++
		if r.Skipped {
			sum.SkippedValid++
			continue
		}
		sum.Tally(r)
		buf = append(buf, r)
		if len(buf) >= s.cfg.FlushEvery {
			s.flush(ctx, buf, opts.Force, sum)
			buf = buf[:0]
		}
		if completed%10 == 0 {
			log.Debug().Int("completed", completed).Int("total", len(queue)).Msg("progress")
		}
	}
	if len(buf) > 0 {
		s.flush(ctx, buf, opts.Force, sum)
	}
}

// flush commits one window of verdicts atomically. A failed commit rolls
// back only its window; the batch continues
func (s *Service) flush(ctx context.Context, rs []domain.Result, force bool, sum *domain.Summary) {
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		return s.binder.Bind(q).UpsertVerdicts(ctx, rs, force)
	})
	if err != nil {
		logger.C(ctx).Error().Err(err).Int("window", len(rs)).Msg("verdict flush failed")
		sum.AddError(fmt.Sprintf("flush of %d verdicts: %v", len(rs), err))
	}
}

// verifyOne runs one unit with jitter, the run-scoped cache, and a panic
// boundary. A panicking unit becomes a pending verdict, never a dead batch
func (s *Service) verifyOne(
	ctx context.Context,
	f fetch.Fetcher,
	t domain.Target,
	cache *resultCache,
	force bool,
) (res domain.Result) {
	res = domain.Result{Target: t}
	defer func() {
		if r := recover(); r != nil {
			logger.C(ctx).Error().Any("panic", r).Str("email", t.Email).Msg("verification unit panicked")
			res.Verdict = pending(fmt.Sprintf("verification error: %v", r))
		}
	}()

	// protection re-check close to the write. The stored valid verdict is
	// authoritative for non-forced passes even if the pending query raced
	if !force {
		if valid, err := s.binder.Bind(s.db).IsCurrentlyValid(ctx, t); err == nil && valid {
			res.Skipped = true
			return res
		}
	}

	if v, ok := cache.get(t.ClaimedURL); ok {
		res.Verdict = v
		return res
	}

	// spread the request burst
	sleep(s.cfg.JitterMin + rand.N(s.cfg.JitterMax-s.cfg.JitterMin))

	v, retry := decide(ctx, f, t)
	// a transient outcome earns the whole cycle a bounded re-run; terminal
	// verdicts and structural failures never loop
	for extra := 0; retry && extra < s.cfg.Retries; extra++ {
		sleep(s.cfg.JitterMin + rand.N(s.cfg.JitterMax-s.cfg.JitterMin))
		v, retry = decide(ctx, f, t)
	}
	cache.put(t.ClaimedURL, v)
	res.Verdict = v
	return res
}

// MarkMissing implements domain.RunnerPort
func (s *Service) MarkMissing(ctx context.Context) (int64, error) {
	n, err := s.binder.Bind(s.db).MarkMissingBadges(ctx)
	if err != nil {
		return 0, err
	}
	logger.C(ctx).Info().Int64("rows", n).Msg("marked missing badge links invalid")
	return n, nil
}

// LastRun implements domain.RunnerPort
func (s *Service) LastRun(ctx context.Context) (domain.Summary, error) {
	return s.binder.Bind(s.db).LastRun(ctx)
}
