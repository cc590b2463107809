// Package batch researches several seeds concurrently, isolating each seed's failure.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/keyword-agent/internal/types"
)

// DefaultConcurrency bounds how many seeds are researched at once
const DefaultConcurrency = 5

// Researcher runs one research request
type Researcher interface {
	Research(ctx context.Context, req types.ResearchRequest) (*types.ResearchResult, error)
}

// Recorder receives batch telemetry
type Recorder interface {
	SeedFinished(failed bool)
}

// Runner fans a batch out over a Researcher
type Runner struct {
	researcher  Researcher
	concurrency int
	seedTimeout time.Duration
	recorder    Recorder
	logger      logrus.FieldLogger
}

// Option configures a Runner
type Option func(*Runner)

// WithConcurrency bounds parallel seeds
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithSeedTimeout bounds each seed's research; zero means no extra bound
func WithSeedTimeout(d time.Duration) Option {
	return func(r *Runner) { r.seedTimeout = d }
}

// WithRecorder sets the telemetry recorder
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Runner) { r.logger = l }
}

// New creates a Runner
func New(researcher Researcher, opts ...Option) *Runner {
	r := &Runner{
		researcher:  researcher,
		concurrency: DefaultConcurrency,
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run researches every distinct seed and returns one entry per seed. A seed
// that fails for any reason gets an error record; its siblings are unaffected.
func (r *Runner) Run(ctx context.Context, req types.BatchRequest) types.BatchResult {
	seeds := req.UniqueSeeds()
	result := make(types.BatchResult, len(seeds))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, seed := range seeds {
		g.Go(func() error {
			entry := r.runSeed(ctx, seed, req.RequestFor(seed))
			if r.recorder != nil {
				r.recorder.SeedFinished(entry.Failed())
			}
			mu.Lock()
			result[seed] = entry
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	r.logger.WithFields(logrus.Fields{
		"seeds":     len(seeds),
		"succeeded": result.Succeeded(),
		"keywords":  result.TotalKeywords(),
	}).Info("batch research complete")
	return result
}

func (r *Runner) runSeed(ctx context.Context, seed string, req types.ResearchRequest) (entry types.BatchEntry) {
	log := r.logger.WithField("seed", seed)
	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("panic", rec).Error("seed research panicked")
			entry = types.BatchEntry{Err: types.NewSeedError(seed, fmt.Errorf("internal error: %v", rec))}
		}
	}()

	if r.seedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.seedTimeout)
		defer cancel()
	}

	res, err := r.researcher.Research(ctx, req)
	if err != nil {
		log.WithError(err).Warn("seed research failed")
		return types.BatchEntry{Err: types.NewSeedError(seed, err)}
	}
	return types.BatchEntry{Result: res}
}
