// Package generation produces keyword candidates for a seed phrase, from the
// generative service when it is available and from a template table otherwise.
package generation

import (
	"context"
	"errors"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/keyword-agent/internal/llm"
	"github.com/jonathan/keyword-agent/internal/prompts"
	"github.com/jonathan/keyword-agent/internal/retry"
	"github.com/jonathan/keyword-agent/internal/types"
)

const promptFile = "keywords.json"

// oversample is how many phrases are requested per wanted keyword
const oversample = 2

// ErrInvalidCount is returned when fewer than one keyword is requested
var ErrInvalidCount = errors.New("keyword count must be positive")

// Generation is the outcome of one generation run
type Generation struct {
	Candidates []types.KeywordCandidate
	// APICalls counts every attempt sent to the generative service
	APICalls int
	Source   types.GenerationSource
}

// Generator produces keyword candidates for a seed
type Generator struct {
	client    llm.Client
	tier      llm.ModelTier
	policy    retry.Policy
	templates []TemplateGroup
	logger    logrus.FieldLogger
}

// Option configures a Generator
type Option func(*Generator)

// WithPolicy sets the retry policy used for service calls
func WithPolicy(p retry.Policy) Option {
	return func(g *Generator) { g.policy = p }
}

// WithTier selects the model tier used for generation
func WithTier(tier llm.ModelTier) Option {
	return func(g *Generator) { g.tier = tier }
}

// WithTemplates replaces the fallback template table
func WithTemplates(groups []TemplateGroup) Option {
	return func(g *Generator) { g.templates = groups }
}

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(g *Generator) { g.logger = logger }
}

// New creates a Generator. A nil client runs in template-only mode.
func New(client llm.Client, opts ...Option) *Generator {
	g := &Generator{
		client:    client,
		tier:      llm.TierLite,
		policy:    retry.DefaultPolicy(),
		templates: DefaultTemplates,
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns candidates for seed in generation order. Service failures
// of any kind fall back to the template table; only a cancelled or expired
// ctx is reported as an error.
func (g *Generator) Generate(ctx context.Context, seed string, count int, questions, longTail bool) (*Generation, error) {
	if count < 1 {
		return nil, ErrInvalidCount
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target := count * oversample
	log := g.logger.WithField("seed", seed)

	if g.client == nil {
		log.Debug("no keyword service configured, using templates")
		return g.fallback(seed, target, questions, longTail, 0), nil
	}

	phrases, attempts, err := g.request(ctx, seed, target, questions, longTail)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		log.WithError(err).Warn("keyword service unavailable, using template fallback")
		return g.fallback(seed, target, questions, longTail, attempts), nil
	}

	gen := &Generation{APICalls: attempts, Source: types.SourceGenerated}
	seen := make(map[string]bool, len(phrases))
	for _, phrase := range phrases {
		candidate, ok := types.NewCandidate(phrase, types.OriginGenerated)
		if !ok || seen[candidate.Text] {
			continue
		}
		seen[candidate.Text] = true
		gen.Candidates = append(gen.Candidates, candidate)
		if len(gen.Candidates) >= target {
			break
		}
	}

	if len(gen.Candidates) < count {
		added := 0
		for _, candidate := range Expand(g.templates, seed, questions, longTail, 0) {
			if len(gen.Candidates) >= count {
				break
			}
			if seen[candidate.Text] {
				continue
			}
			seen[candidate.Text] = true
			gen.Candidates = append(gen.Candidates, candidate)
			added++
		}
		if added > 0 {
			gen.Source = types.SourceMixed
			log.WithField("added", added).Info("topped up generated keywords from templates")
		}
	}

	return gen, nil
}

// request sends the prompt through the retry policy and parses the reply
func (g *Generator) request(ctx context.Context, seed string, target int, questions, longTail bool) ([]string, int, error) {
	prompt, err := buildPrompt(seed, target, questions, longTail)
	if err != nil {
		return nil, 0, err
	}

	var response string
	attempts, err := g.policy.Do(ctx, func(ctx context.Context) error {
		text, err := g.client.GenerateJSON(ctx, prompt, g.tier)
		if err != nil {
			return err
		}
		response = text
		return nil
	})
	if err != nil {
		return nil, attempts, &ServiceError{Message: "failed to generate keywords", Attempts: attempts, Cause: err}
	}

	phrases, err := ParseSuggestions(response)
	if err != nil {
		return nil, attempts, err
	}
	return phrases, attempts, nil
}

func (g *Generator) fallback(seed string, target int, questions, longTail bool, attempts int) *Generation {
	return &Generation{
		Candidates: Expand(g.templates, seed, questions, longTail, target),
		APICalls:   attempts,
		Source:     types.SourceFallback,
	}
}

// buildPrompt renders the generation prompt with the optional instruction blocks
func buildPrompt(seed string, target int, questions, longTail bool) (string, error) {
	data := map[string]string{
		"Seed":                 seed,
		"TargetCount":          strconv.Itoa(target),
		"QuestionInstructions": "",
		"LongTailInstructions": "",
	}
	if questions {
		block, err := prompts.Get(promptFile, "question-instructions")
		if err != nil {
			return "", err
		}
		data["QuestionInstructions"] = block
	}
	if longTail {
		block, err := prompts.Get(promptFile, "long-tail-instructions")
		if err != nil {
			return "", err
		}
		data["LongTailInstructions"] = block
	}
	return prompts.Render(promptFile, "generate-keywords", data)
}
