// Package research runs a single keyword research request through
// validation, caching, generation, measurement, scoring and ranking.
package research

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/keyword-agent/internal/cache"
	"github.com/jonathan/keyword-agent/internal/generation"
	"github.com/jonathan/keyword-agent/internal/metrics"
	"github.com/jonathan/keyword-agent/internal/types"
)

// DefaultConcurrency bounds parallel candidate measurement
const DefaultConcurrency = 10

// Generator produces keyword candidates for a seed
type Generator interface {
	Generate(ctx context.Context, seed string, count int, questions, longTail bool) (*generation.Generation, error)
}

// Classifier assigns an intent to a phrase
type Classifier interface {
	Classify(text string) types.Intent
}

// Measurer attaches metrics to a candidate
type Measurer interface {
	Measure(ctx context.Context, candidate types.KeywordCandidate, intent types.Intent, country string) (*metrics.Measurement, error)
}

// Scorer turns a measured candidate into a scored keyword
type Scorer interface {
	Apply(candidate types.KeywordCandidate, m types.KeywordMetrics) types.ScoredKeyword
}

// Recorder receives research telemetry
type Recorder interface {
	CacheLookup(hit bool)
	CacheError(op string)
	Generated(source types.GenerationSource, candidates int)
	CandidatesDropped(n int)
	ResearchFinished(stage Stage, elapsed time.Duration, keywords int)
}

// ProgressEvent reports a stage transition
type ProgressEvent struct {
	RequestID string `json:"request_id"`
	Stage     Stage  `json:"stage"`
	Message   string `json:"message"`
}

// ProgressCallback is called on every stage transition
type ProgressCallback func(event ProgressEvent)

type progressKey struct{}

// WithProgress attaches a progress callback to ctx for one research run
func WithProgress(ctx context.Context, fn ProgressCallback) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// Orchestrator runs research requests. It is safe for concurrent use.
type Orchestrator struct {
	generator   Generator
	classifier  Classifier
	measurer    Measurer
	scorer      Scorer
	cache       cache.Cache
	recorder    Recorder
	logger      logrus.FieldLogger
	concurrency int
	now         func() time.Time
	newID       func() string
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithCache enables result caching
func WithCache(c cache.Cache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithRecorder sets the telemetry recorder
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithConcurrency bounds parallel candidate measurement
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator from its components
func New(g Generator, c Classifier, m Measurer, s Scorer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		generator:   g,
		classifier:  c,
		measurer:    m,
		scorer:      s,
		recorder:    nopRecorder{},
		logger:      logrus.StandardLogger(),
		concurrency: DefaultConcurrency,
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run carries the state of one research request
type run struct {
	req      types.ResearchRequest
	id       string
	started  time.Time
	log      logrus.FieldLogger
	progress ProgressCallback
	apiCalls atomic.Int64
}

func (r *run) enter(stage Stage, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.log.WithField("stage", stage).Debug(msg)
	if r.progress != nil {
		r.progress(ProgressEvent{RequestID: r.id, Stage: stage, Message: msg})
	}
}

// measured is one candidate that survived measurement
type measured struct {
	candidate   types.KeywordCandidate
	measurement *metrics.Measurement
}

// Research runs req to completion. Validation failures return a
// *types.ValidationError; every later failure is a *StageError.
func (o *Orchestrator) Research(ctx context.Context, req types.ResearchRequest) (*types.ResearchResult, error) {
	r := &run{req: req, id: o.newID(), started: o.now()}
	r.log = o.logger.WithField("request_id", r.id)
	if fn, ok := ctx.Value(progressKey{}).(ProgressCallback); ok {
		r.progress = fn
	}

	result, stage, err := o.execute(ctx, r)
	elapsed := o.now().Sub(r.started)
	if err != nil {
		o.recorder.ResearchFinished(stage, elapsed, 0)
		r.enter(StageFailed, "%v", err)
		r.log.WithError(err).WithField("stage", stage).Warn("keyword research failed")
		return nil, err
	}
	o.recorder.ResearchFinished(StageDone, elapsed, result.TotalKeywords)
	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run) (*types.ResearchResult, Stage, error) {
	r.req.Normalize()
	r.enter(StageValidating, "validating request for %q", r.req.SeedKeyword)
	if err := r.req.Validate(); err != nil {
		return nil, StageValidating, err
	}
	r.log = r.log.WithFields(logrus.Fields{"seed": r.req.SeedKeyword, "country": r.req.Country})

	key := cache.Key(r.req)
	if o.cache != nil {
		r.enter(StageCacheCheck, "checking cache")
		if cached := o.lookup(ctx, r, key); cached != nil {
			// the key folds seed case; echo the caller's spelling
			cached.SeedKeyword = r.req.SeedKeyword
			r.enter(StageDone, "served %d keywords from cache", cached.TotalKeywords)
			return cached, StageDone, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, StageGenerating, &StageError{Stage: StageGenerating, Cause: err}
	}
	r.enter(StageGenerating, "generating up to %d keywords", r.req.MaxKeywords)
	gen, err := o.generator.Generate(ctx, r.req.SeedKeyword, r.req.MaxKeywords, r.req.IncludeQuestions, r.req.IncludeLongTail)
	if err != nil {
		return nil, StageGenerating, &StageError{Stage: StageGenerating, Cause: err}
	}
	if len(gen.Candidates) == 0 {
		return nil, StageGenerating, &StageError{Stage: StageGenerating, Cause: ErrNoCandidates}
	}
	r.apiCalls.Add(int64(gen.APICalls))
	o.recorder.Generated(gen.Source, len(gen.Candidates))

	r.enter(StageMeasuring, "measuring %d candidates", len(gen.Candidates))
	survivors, err := o.measure(ctx, r, gen.Candidates)
	if err != nil {
		return nil, StageMeasuring, &StageError{Stage: StageMeasuring, Cause: err}
	}
	dropped := len(gen.Candidates) - len(survivors)
	if dropped > 0 {
		o.recorder.CandidatesDropped(dropped)
	}
	if len(survivors) == 0 {
		return nil, StageMeasuring, &StageError{Stage: StageMeasuring, Cause: ErrNoKeywords}
	}

	if err := ctx.Err(); err != nil {
		return nil, StageScoring, &StageError{Stage: StageScoring, Cause: err}
	}
	r.enter(StageScoring, "scoring %d keywords", len(survivors))
	scored := make([]types.ScoredKeyword, len(survivors))
	providerMeasured := 0
	for i, s := range survivors {
		scored[i] = o.scorer.Apply(s.candidate, s.measurement.Metrics)
		if s.measurement.Source == metrics.SourceProvider {
			providerMeasured++
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, StageFinalizing, &StageError{Stage: StageFinalizing, Cause: err}
	}
	r.enter(StageFinalizing, "ranking %d keywords", len(scored))
	keywords := Rank(scored, r.req.MaxKeywords)
	result := &types.ResearchResult{
		SeedKeyword:    r.req.SeedKeyword,
		Country:        r.req.Country,
		TotalKeywords:  len(keywords),
		Keywords:       keywords,
		ProcessingTime: o.now().Sub(r.started),
		Timestamp:      o.now().UTC(),
		Metadata: types.ResearchMetadata{
			RequestID:            r.id,
			APICalls:             int(r.apiCalls.Load()),
			RawKeywordsGenerated: len(gen.Candidates),
			FiltersApplied:       appliedFilters(gen.Source),
			GenerationSource:     gen.Source,
			ProviderMeasured:     providerMeasured,
			Synthesized:          len(survivors) - providerMeasured,
			DroppedCandidates:    dropped,
		},
	}

	// a run that outlived its deadline is never cached
	if err := ctx.Err(); err != nil {
		return nil, StageFinalizing, &StageError{Stage: StageFinalizing, Cause: err}
	}
	if o.cache != nil {
		if err := o.cache.Put(ctx, key, result); err != nil {
			o.recorder.CacheError("put")
			r.log.WithError(err).Warn("failed to cache research result")
		}
	}

	r.enter(StageDone, "ranked %d keywords", result.TotalKeywords)
	r.log.WithFields(logrus.Fields{
		"keywords":  result.TotalKeywords,
		"api_calls": result.Metadata.APICalls,
		"source":    gen.Source,
		"dropped":   dropped,
		"elapsed":   result.ProcessingTime.String(),
	}).Info("keyword research complete")
	return result, StageDone, nil
}

// lookup returns a cached result, treating backend errors as a miss
func (o *Orchestrator) lookup(ctx context.Context, r *run, key string) *types.ResearchResult {
	cached, ok, err := o.cache.Get(ctx, key)
	if err != nil {
		o.recorder.CacheError("get")
		r.log.WithError(&cache.UnavailableError{Op: "get", Cause: err}).Warn("cache lookup failed, continuing without cache")
		o.recorder.CacheLookup(false)
		return nil
	}
	o.recorder.CacheLookup(ok)
	if !ok {
		return nil
	}
	return cached
}

// measure classifies and measures candidates in parallel. Individual
// failures drop the candidate; survivors keep generation order.
func (o *Orchestrator) measure(ctx context.Context, r *run, candidates []types.KeywordCandidate) ([]measured, error) {
	results := make([]*metrics.Measurement, len(candidates))

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, candidate := range candidates {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			m, err := o.measureOne(ctx, candidate, r.req.Country)
			if err != nil {
				r.log.WithError(err).WithField("keyword", candidate.Text).Debug("dropping candidate")
				return nil
			}
			if m != nil {
				r.apiCalls.Add(int64(m.APICalls))
			}
			results[i] = m
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	survivors := make([]measured, 0, len(candidates))
	for i, m := range results {
		if m != nil {
			survivors = append(survivors, measured{candidate: candidates[i], measurement: m})
		}
	}
	return survivors, nil
}

func (o *Orchestrator) measureOne(ctx context.Context, candidate types.KeywordCandidate, country string) (m *metrics.Measurement, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic measuring %q: %v\n%s", candidate.Text, rec, debug.Stack())
		}
	}()
	intent := o.classifier.Classify(candidate.Text)
	return o.measurer.Measure(ctx, candidate, intent, country)
}

func appliedFilters(source types.GenerationSource) []string {
	filters := []string{"normalize", "dedupe", "opportunity_score", "max_keywords"}
	if source != types.SourceFallback {
		filters = append([]string{"phrase_rules"}, filters...)
	}
	return filters
}

// nopRecorder discards telemetry
type nopRecorder struct{}

func (nopRecorder) CacheLookup(bool)                           {}
func (nopRecorder) CacheError(string)                          {}
func (nopRecorder) Generated(types.GenerationSource, int)      {}
func (nopRecorder) CandidatesDropped(int)                      {}
func (nopRecorder) ResearchFinished(Stage, time.Duration, int) {}
