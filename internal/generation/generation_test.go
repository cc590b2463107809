package generation

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/keyword-agent/internal/llm"
	"github.com/jonathan/keyword-agent/internal/retry"
	"github.com/jonathan/keyword-agent/internal/types"
)

// MockLLMClient implements llm.Client for testing
type MockLLMClient struct {
	GenerateContentFunc func(ctx context.Context, prompt string, tier llm.ModelTier) (string, error)
	GenerateJSONFunc    func(ctx context.Context, prompt string, tier llm.ModelTier) (string, error)
	GetModelFunc        func(tier llm.ModelTier) string
	CloseFunc           func() error
}

func (m *MockLLMClient) GenerateContent(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	if m.GenerateContentFunc != nil {
		return m.GenerateContentFunc(ctx, prompt, tier)
	}
	return "", nil
}

func (m *MockLLMClient) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	if m.GenerateJSONFunc != nil {
		return m.GenerateJSONFunc(ctx, prompt, tier)
	}
	return `["mock keyword"]`, nil
}

func (m *MockLLMClient) GetModel(tier llm.ModelTier) string {
	if m.GetModelFunc != nil {
		return m.GetModelFunc(tier)
	}
	return "mock-model"
}

func (m *MockLLMClient) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fastPolicy retries without waiting
func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Microsecond, MaxDelay: time.Microsecond, AttemptTimeout: time.Second}
}

func newTestGenerator(client llm.Client) *Generator {
	return New(client, WithPolicy(fastPolicy()), WithLogger(quietLogger()))
}

func texts(candidates []types.KeywordCandidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Text
	}
	return out
}

func TestGenerate_FallbackWhenServiceDown(t *testing.T) {
	client := &MockLLMClient{
		GenerateJSONFunc: func(context.Context, string, llm.ModelTier) (string, error) {
			return "", retry.Transient(errors.New("503 service unavailable"))
		},
	}

	gen, err := newTestGenerator(client).Generate(context.Background(), "coffee", 10, false, false)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(gen.Candidates), 10)
	assert.Equal(t, types.SourceFallback, gen.Source)
	assert.Equal(t, 3, gen.APICalls)
	for _, c := range gen.Candidates {
		assert.Equal(t, types.OriginFallbackTemplate, c.Origin)
		assert.Contains(t, c.Text, "coffee")
	}
}

func TestGenerate_NilClientUsesTemplates(t *testing.T) {
	gen, err := newTestGenerator(nil).Generate(context.Background(), "Coffee", 10, true, true)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(gen.Candidates), 10)
	assert.Equal(t, 0, gen.APICalls)
	assert.Equal(t, "coffee", gen.Candidates[0].Text)
}

func TestGenerate_FallbackCoversLargestRequest(t *testing.T) {
	gen, err := newTestGenerator(nil).Generate(context.Background(), "coffee", types.MaxKeywords, false, false)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(gen.Candidates), types.MaxKeywords)
}

func TestGenerate_ParsesServiceOutput(t *testing.T) {
	var prompt string
	client := &MockLLMClient{
		GenerateJSONFunc: func(_ context.Context, p string, tier llm.ModelTier) (string, error) {
			prompt = p
			assert.Equal(t, llm.TierLite, tier)
			return "```json\n[\"Best Coffee Beans\", \"coffee grinder reviews\", \"how to brew coffee\"]\n```", nil
		},
	}

	gen, err := newTestGenerator(client).Generate(context.Background(), "coffee", 2, true, false)

	require.NoError(t, err)
	assert.Equal(t, types.SourceGenerated, gen.Source)
	assert.Equal(t, 1, gen.APICalls)
	assert.Equal(t, []string{"best coffee beans", "coffee grinder reviews", "how to brew coffee"}, texts(gen.Candidates))
	assert.Contains(t, prompt, `"coffee"`)
	assert.Contains(t, prompt, "Generate 4 ")
	assert.Contains(t, prompt, "Question-based keywords")
	assert.NotContains(t, prompt, "Long-tail variations")
	assert.NotContains(t, prompt, "{{.")
}

func TestGenerate_TopsUpShortServiceOutput(t *testing.T) {
	client := &MockLLMClient{
		GenerateJSONFunc: func(context.Context, string, llm.ModelTier) (string, error) {
			return `["coffee beans online", "best coffee"]`, nil
		},
	}

	gen, err := newTestGenerator(client).Generate(context.Background(), "coffee", 10, false, false)

	require.NoError(t, err)
	assert.Equal(t, types.SourceMixed, gen.Source)
	require.Len(t, gen.Candidates, 10)
	assert.Equal(t, types.OriginGenerated, gen.Candidates[0].Origin)
	assert.Equal(t, types.OriginGenerated, gen.Candidates[1].Origin)
	assert.Equal(t, types.OriginFallbackTemplate, gen.Candidates[2].Origin)

	seen := map[string]bool{}
	for _, text := range texts(gen.Candidates) {
		assert.False(t, seen[text], "duplicate %q", text)
		seen[text] = true
	}
}

func TestGenerate_UnparsableOutputFallsBack(t *testing.T) {
	calls := 0
	client := &MockLLMClient{
		GenerateJSONFunc: func(context.Context, string, llm.ModelTier) (string, error) {
			calls++
			return `{"error": "nothing"}`, nil
		},
	}

	gen, err := newTestGenerator(client).Generate(context.Background(), "coffee", 5, false, false)

	require.NoError(t, err)
	assert.Equal(t, 1, calls, "parse failures are not retried")
	assert.Equal(t, types.SourceFallback, gen.Source)
	assert.Equal(t, 1, gen.APICalls)
}

func TestGenerate_PermanentErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := &MockLLMClient{
		GenerateJSONFunc: func(context.Context, string, llm.ModelTier) (string, error) {
			calls.Add(1)
			return "", errors.New("invalid api key")
		},
	}

	gen, err := newTestGenerator(client).Generate(context.Background(), "coffee", 5, false, false)

	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, types.SourceFallback, gen.Source)
}

func TestGenerate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestGenerator(&MockLLMClient{}).Generate(ctx, "coffee", 5, false, false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerate_InvalidCount(t *testing.T) {
	_, err := newTestGenerator(nil).Generate(context.Background(), "coffee", 0, false, false)
	assert.ErrorIs(t, err, ErrInvalidCount)
}

func TestExpand_FlagsGateGroups(t *testing.T) {
	plain := texts(Expand(DefaultTemplates, "coffee", false, false, 0))
	full := texts(Expand(DefaultTemplates, "coffee", true, true, 0))

	assert.NotContains(t, plain, "how to coffee")
	assert.NotContains(t, plain, "coffee for beginners")
	assert.Contains(t, full, "how to coffee")
	assert.Contains(t, full, "coffee for beginners")
	assert.Greater(t, len(full), len(plain))
}

func TestExpand_Limit(t *testing.T) {
	got := Expand(DefaultTemplates, "coffee", true, true, 7)
	assert.Len(t, got, 7)
}

func TestExpand_CustomTable(t *testing.T) {
	groups := []TemplateGroup{
		{Category: "a", Templates: []string{"{seed} one", "{seed} one", "two {seed}"}},
		{Category: "q", Requires: RequireQuestions, Templates: []string{"why {seed}"}},
	}

	assert.Equal(t, []string{"tea one", "two tea"}, texts(Expand(groups, "  TEA ", false, false, 0)))
	assert.Equal(t, []string{"tea one", "two tea", "why tea"}, texts(Expand(groups, "tea", true, false, 0)))
	assert.Empty(t, Expand(groups, "   ", true, true, 0))
}

func TestParseSuggestions(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected []string
		wantErr  bool
	}{
		{
			name:     "json array",
			raw:      `["Coffee Beans", "coffee  grinder"]`,
			expected: []string{"coffee beans", "coffee grinder"},
		},
		{
			name:     "keywords object",
			raw:      `{"keywords": ["best coffee", "best coffee", "coffee & tea"]}`,
			expected: []string{"best coffee", "coffee & tea"},
		},
		{
			name:     "preamble and fences",
			raw:      "Here you go:\n```json\n[\"what is coffee?\"]\n```",
			expected: []string{"what is coffee?"},
		},
		{
			name:     "non strings and bad entries skipped",
			raw:      `["ok phrase", 12, null, "ab", "<script>", "` + strings.Repeat("x", 81) + `"]`,
			expected: []string{"ok phrase"},
		},
		{
			name:     "line wise text",
			raw:      "1. coffee beans\n2) best coffee\n- \"coffee maker\",\n* decaf coffee\n\n",
			expected: []string{"coffee beans", "best coffee", "coffee maker", "decaf coffee"},
		},
		{
			name:     "list containing brackets",
			raw:      "Here are keyword ideas:\n1. best coffee beans\n2. coffee grinder [manual]\n3. cold brew coffee\n",
			expected: []string{"best coffee beans", "cold brew coffee"},
		},
		{
			name:     "list with braces in preamble",
			raw:      "Ideas for {coffee} below\n- coffee subscription\n- coffee near me }",
			expected: []string{"coffee subscription"},
		},
		{name: "empty", raw: "   ", wantErr: true},
		{name: "malformed json", raw: `["coffee beans", `, wantErr: true},
		{name: "wrong shape", raw: `{"phrases": ["coffee"]}`, wantErr: true},
		{name: "nothing usable", raw: `["a", "!!"]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSuggestions(tt.raw)
			if tt.wantErr {
				var parseErr *ParseError
				require.True(t, errors.As(err, &parseErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestServiceError_Unwrap(t *testing.T) {
	cause := errors.New("quota")
	err := &ServiceError{Message: "failed", Attempts: 3, Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "3 attempts")
}
