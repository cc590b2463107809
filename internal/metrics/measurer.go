package metrics

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/keyword-agent/internal/retry"
	"github.com/jonathan/keyword-agent/internal/types"
)

// Source records where a measurement came from
type Source string

const (
	// SourceProvider means at least one field came from the provider
	SourceProvider Source = "provider"
	// SourceSynthesized means every field came from the synthesis model
	SourceSynthesized Source = "synthesized"
)

// Measurement is the metrics for one candidate plus how they were obtained
type Measurement struct {
	Metrics  types.KeywordMetrics
	Source   Source
	APICalls int
}

// Synthesizer measures candidates through an optional provider and falls back
// to the synthesis model when the provider is absent or fails
type Synthesizer struct {
	provider Provider
	policy   retry.Policy
	logger   logrus.FieldLogger
}

// SynthesizerOption configures a Synthesizer
type SynthesizerOption func(*Synthesizer)

// WithProvider sets the metrics provider
func WithProvider(p Provider) SynthesizerOption {
	return func(s *Synthesizer) { s.provider = p }
}

// WithPolicy sets the retry policy for provider calls
func WithPolicy(p retry.Policy) SynthesizerOption {
	return func(s *Synthesizer) { s.policy = p }
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) SynthesizerOption {
	return func(s *Synthesizer) { s.logger = l }
}

// NewSynthesizer creates a Synthesizer. Without a provider every candidate is synthesized.
func NewSynthesizer(opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{
		policy: retry.DefaultPolicy(),
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Measure returns metrics for candidate within bounds. Provider failures are
// absorbed; only a cancelled or expired ctx is returned as an error.
func (s *Synthesizer) Measure(ctx context.Context, candidate types.KeywordCandidate, intent types.Intent, country string) (*Measurement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	baseline := Synthesize(candidate.Text, candidate.WordCount, intent, country)
	if s.provider == nil {
		return &Measurement{Metrics: baseline, Source: SourceSynthesized}, nil
	}

	var measured *ProviderMetrics
	attempts, err := s.policy.Do(ctx, func(ctx context.Context) error {
		m, err := s.provider.Lookup(ctx, candidate.Text, country)
		if err != nil {
			return err
		}
		measured = m
		return nil
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"keyword":  candidate.Text,
			"provider": s.provider.Name(),
		}).Debug("provider lookup failed, using synthesized metrics")
		return &Measurement{Metrics: baseline, Source: SourceSynthesized, APICalls: attempts}, nil
	}
	if measured.Empty() {
		return &Measurement{Metrics: baseline, Source: SourceSynthesized, APICalls: attempts}, nil
	}

	return &Measurement{Metrics: Merge(baseline, measured), Source: SourceProvider, APICalls: attempts}, nil
}

// Merge lays measured fields over baseline and clamps the result. Invalid
// measured values keep the baseline. Difficulty follows the merged competition.
func Merge(baseline types.KeywordMetrics, measured *ProviderMetrics) types.KeywordMetrics {
	merged := baseline
	if measured == nil {
		return merged
	}
	if measured.SearchVolume != nil && *measured.SearchVolume >= 0 {
		merged.SearchVolume = min(*measured.SearchVolume, MaxVolume)
	}
	if c := measured.CompetitionScore; c != nil && !math.IsNaN(*c) && !math.IsInf(*c, 0) {
		merged.CompetitionScore = round(clamp(*c, 0, 1), 2)
		merged.Difficulty = Difficulty(merged.CompetitionScore)
	}
	if cpc := measured.CPC; cpc != nil && !math.IsNaN(*cpc) && !math.IsInf(*cpc, 0) && *cpc >= 0 {
		merged.CPCEstimate = round(math.Min(*cpc, MaxCPC), 2)
	}
	return merged
}
