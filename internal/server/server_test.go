package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/keyword-agent/internal/batch"
	"github.com/jonathan/keyword-agent/internal/export"
	"github.com/jonathan/keyword-agent/internal/generation"
	"github.com/jonathan/keyword-agent/internal/intent"
	"github.com/jonathan/keyword-agent/internal/metrics"
	"github.com/jonathan/keyword-agent/internal/research"
	"github.com/jonathan/keyword-agent/internal/scoring"
	"github.com/jonathan/keyword-agent/internal/server/ratelimit"
	"github.com/jonathan/keyword-agent/internal/types"
)

// mockResearcher records requests and returns canned results
type mockResearcher struct {
	ResearchFunc func(ctx context.Context, req types.ResearchRequest) (*types.ResearchResult, error)
	requests     []types.ResearchRequest
}

func (m *mockResearcher) Research(ctx context.Context, req types.ResearchRequest) (*types.ResearchResult, error) {
	m.requests = append(m.requests, req)
	if m.ResearchFunc != nil {
		return m.ResearchFunc(ctx, req)
	}
	return sampleResult(req.SeedKeyword), nil
}

type mockBatcher struct {
	RunFunc  func(ctx context.Context, req types.BatchRequest) types.BatchResult
	requests []types.BatchRequest
}

func (m *mockBatcher) Run(ctx context.Context, req types.BatchRequest) types.BatchResult {
	m.requests = append(m.requests, req)
	if m.RunFunc != nil {
		return m.RunFunc(ctx, req)
	}
	out := types.BatchResult{}
	for _, seed := range req.UniqueSeeds() {
		out[seed] = types.BatchEntry{Result: sampleResult(seed)}
	}
	return out
}

func sampleResult(seed string) *types.ResearchResult {
	c, _ := types.NewCandidate("best "+seed, types.OriginFallbackTemplate)
	return &types.ResearchResult{
		SeedKeyword:   seed,
		Country:       "US",
		TotalKeywords: 1,
		Keywords: []types.ScoredKeyword{{
			KeywordCandidate: c,
			KeywordMetrics: types.KeywordMetrics{
				SearchVolume: 900, CompetitionScore: 0.4, Difficulty: 35, CPCEstimate: 1.1, Intent: types.IntentCommercial,
			},
			OpportunityScore:   64.2,
			RankingProbability: 0.48,
		}},
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Metadata: types.ResearchMetadata{
			RequestID:        "req-1",
			FiltersApplied:   []string{"normalize"},
			GenerationSource: types.SourceFallback,
		},
	}
}

func quietLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func newTestServer(r Researcher, b Batcher, cfg Config, opts ...Option) *Server {
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return New(cfg, r, b, opts...)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(&mockResearcher{}, &mockBatcher{}, Config{LLMEnabled: true})

	w := do(t, s.Handler(), http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.True(t, resp.AgentInitialized)
	assert.True(t, resp.LLMEnabled)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestResearch_AppliesDefaults(t *testing.T) {
	r := &mockResearcher{}
	s := newTestServer(r, &mockBatcher{}, Config{})

	w := do(t, s.Handler(), http.MethodPost, "/api/research", `{"seed_keyword": "coffee"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Len(t, r.requests, 1)
	assert.Equal(t, types.ResearchRequest{
		SeedKeyword:      "coffee",
		MaxKeywords:      types.DefaultMaxKeywords,
		Country:          "US",
		IncludeQuestions: true,
		IncludeLongTail:  true,
	}, r.requests[0])

	var result types.ResearchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "coffee", result.SeedKeyword)
	assert.Len(t, result.Keywords, 1)
}

func TestResearch_ExplicitFieldsWin(t *testing.T) {
	r := &mockResearcher{}
	s := newTestServer(r, &mockBatcher{}, Config{})

	body := `{"seed_keyword": "tea", "max_keywords": 5, "country": "gb", "include_questions": false, "include_long_tail": false}`
	w := do(t, s.Handler(), http.MethodPost, "/api/research", body)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, r.requests, 1)
	assert.Equal(t, 5, r.requests[0].MaxKeywords)
	assert.Equal(t, "gb", r.requests[0].Country, "normalization is the orchestrator's job")
	assert.False(t, r.requests[0].IncludeQuestions)
	assert.False(t, r.requests[0].IncludeLongTail)
}

func TestResearch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantField  string
		wantStage  string
	}{
		{
			name:       "validation",
			err:        &types.ValidationError{Field: "max_keywords", Message: "too many"},
			wantStatus: http.StatusBadRequest,
			wantField:  "max_keywords",
		},
		{
			name:       "deadline",
			err:        &research.StageError{Stage: research.StageMeasuring, Cause: context.DeadlineExceeded},
			wantStatus: http.StatusGatewayTimeout,
			wantStage:  "measuring",
		},
		{
			name:       "stage failure",
			err:        &research.StageError{Stage: research.StageGenerating, Cause: research.ErrNoCandidates},
			wantStatus: http.StatusInternalServerError,
			wantStage:  "generating",
		},
		{
			name:       "unknown",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &mockResearcher{ResearchFunc: func(context.Context, types.ResearchRequest) (*types.ResearchResult, error) {
				return nil, tt.err
			}}
			s := newTestServer(r, &mockBatcher{}, Config{})

			w := do(t, s.Handler(), http.MethodPost, "/api/research", `{"seed_keyword": "x"}`)
			assert.Equal(t, tt.wantStatus, w.Code)

			var body ErrorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.err.Error(), body.Error)
			assert.Equal(t, tt.wantField, body.Field)
			assert.Equal(t, tt.wantStage, body.Stage)
		})
	}
}

func TestResearch_InvalidBody(t *testing.T) {
	r := &mockResearcher{}
	s := newTestServer(r, &mockBatcher{}, Config{})

	w := do(t, s.Handler(), http.MethodPost, "/api/research", `{"seed_keyword": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
	assert.Empty(t, r.requests)
}

func TestResearch_AppliesRequestTimeout(t *testing.T) {
	r := &mockResearcher{ResearchFunc: func(ctx context.Context, _ types.ResearchRequest) (*types.ResearchResult, error) {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
		return sampleResult("x"), nil
	}}
	s := newTestServer(r, &mockBatcher{}, Config{RequestTimeout: time.Minute})

	w := do(t, s.Handler(), http.MethodPost, "/api/research", `{"seed_keyword": "x"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBatchResearch_AppliesRequestTimeout(t *testing.T) {
	b := &mockBatcher{RunFunc: func(ctx context.Context, req types.BatchRequest) types.BatchResult {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
		return types.BatchResult{"coffee": {Result: sampleResult("coffee")}}
	}}
	s := newTestServer(&mockResearcher{}, b, Config{RequestTimeout: time.Minute})

	w := do(t, s.Handler(), http.MethodPost, "/api/batch-research", `{"seed_keywords": ["coffee"]}`)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, b.requests, 1)
}

func TestBatchResearch_DeadlineKeepsPartialResults(t *testing.T) {
	b := &mockBatcher{RunFunc: func(ctx context.Context, req types.BatchRequest) types.BatchResult {
		<-ctx.Done()
		return types.BatchResult{
			"coffee": {Result: sampleResult("coffee")},
			"tea":    {Err: types.NewSeedError("tea", ctx.Err())},
		}
	}}
	s := newTestServer(&mockResearcher{}, b, Config{RequestTimeout: 20 * time.Millisecond})

	w := do(t, s.Handler(), http.MethodPost, "/api/batch-research", `{"seed_keywords": ["coffee", "tea"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotContains(t, resp["coffee"], "error")
	assert.Contains(t, resp["tea"], "error")
}

func TestResearch_MethodNotAllowed(t *testing.T) {
	s := newTestServer(&mockResearcher{}, &mockBatcher{}, Config{})
	w := do(t, s.Handler(), http.MethodGet, "/api/research", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestBatchResearch(t *testing.T) {
	b := &mockBatcher{}
	s := newTestServer(&mockResearcher{}, b, Config{})

	w := do(t, s.Handler(), http.MethodPost, "/api/batch-research", `{"seed_keywords": ["coffee", "tea"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Len(t, b.requests, 1)
	assert.Equal(t, types.DefaultBatchKeywords, b.requests[0].MaxKeywords)
	assert.Equal(t, "US", b.requests[0].Country)

	var resp map[string]types.ResearchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp, 2)
	assert.Equal(t, "tea", resp["tea"].SeedKeyword)
}

func TestBatchResearch_Validation(t *testing.T) {
	s := newTestServer(&mockResearcher{}, &mockBatcher{}, Config{})

	w := do(t, s.Handler(), http.MethodPost, "/api/batch-research", `{"seed_keywords": []}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "seed_keywords")

	seeds := make([]string, MaxBatchSeeds+1)
	for i := range seeds {
		seeds[i] = fmt.Sprintf("seed %d", i)
	}
	data, err := json.Marshal(map[string]any{"seed_keywords": seeds})
	require.NoError(t, err)
	w = do(t, s.Handler(), http.MethodPost, "/api/batch-research", string(data))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportCSV(t *testing.T) {
	s := newTestServer(&mockResearcher{}, &mockBatcher{}, Config{})

	w := do(t, s.Handler(), http.MethodPost, "/api/export/csv", `{"seed_keyword": "digital marketing"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="keywords_digital_marketing.csv"`, w.Header().Get("Content-Disposition"))

	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, export.Headers, records[0])
	assert.Equal(t, "best digital marketing", records[1][0])
}

func TestExportJSON(t *testing.T) {
	s := newTestServer(&mockResearcher{}, &mockBatcher{}, Config{})

	w := do(t, s.Handler(), http.MethodPost, "/api/export/json", `{"seed_keyword": "coffee"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "keywords_coffee.json")
}

func TestExport_UnknownFormat(t *testing.T) {
	r := &mockResearcher{}
	s := newTestServer(r, &mockBatcher{}, Config{})

	w := do(t, s.Handler(), http.MethodPost, "/api/export/xml", `{"seed_keyword": "coffee"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, r.requests)
}

func TestMetricsEndpoint(t *testing.T) {
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "keyword_agent_research_total 3\n")
	})
	s := newTestServer(&mockResearcher{}, &mockBatcher{}, Config{}, WithMetricsHandler(metricsHandler))

	w := do(t, s.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "keyword_agent_research_total 3")

	without := newTestServer(&mockResearcher{}, &mockBatcher{}, Config{})
	assert.Equal(t, http.StatusNotFound, do(t, without.Handler(), http.MethodGet, "/metrics", "").Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(&mockResearcher{}, &mockBatcher{}, Config{CORSOrigin: "https://app.example.com"})

	w := do(t, s.Handler(), http.MethodOptions, "/api/research", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	cfg := Config{RateLimit: &ratelimit.Config{
		Enabled:         true,
		DefaultLimit:    1000,
		DefaultWindow:   time.Minute,
		EndpointConfigs: []ratelimit.EndpointConfig{{Path: "/api/research", Method: "POST", Limit: 2, Window: time.Hour, Burst: 2}},
	}}
	s := newTestServer(&mockResearcher{}, &mockBatcher{}, cfg)
	defer s.rateLimiter.Stop()

	for i := 0; i < 2; i++ {
		w := do(t, s.Handler(), http.MethodPost, "/api/research", `{"seed_keyword": "x"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := do(t, s.Handler(), http.MethodPost, "/api/research", `{"seed_keyword": "x"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")

	assert.Equal(t, http.StatusOK, do(t, s.Handler(), http.MethodGet, "/api/health", "").Code)
}

func TestRequestLogging(t *testing.T) {
	logger, hook := test.NewNullLogger()
	s := New(Config{}, &mockResearcher{}, &mockBatcher{}, WithLogger(logger))

	do(t, s.Handler(), http.MethodPost, "/api/research", `{"seed_keyword": `)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "request completed", entry.Message)
	assert.Equal(t, http.StatusBadRequest, entry.Data["status"])
	assert.Equal(t, "/api/research", entry.Data["path"])
}

// newEngineServer wires the real research stack with templates only
func newEngineServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := quietLogger()
	orchestrator := research.New(
		generation.New(nil, generation.WithLogger(logger)),
		intent.Default(),
		metrics.NewSynthesizer(metrics.WithLogger(logger)),
		scoring.New(),
		research.WithLogger(logger),
	)
	runner := batch.New(orchestrator, batch.WithLogger(logger))
	srv := httptest.NewServer(newTestServer(orchestrator, runner, Config{}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestResearch_EndToEnd(t *testing.T) {
	srv := newEngineServer(t)

	resp, err := http.Post(srv.URL+"/api/research", "application/json",
		bytes.NewBufferString(`{"seed_keyword": "digital marketing", "max_keywords": 25}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result types.ResearchResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 25, result.TotalKeywords)
	assert.Len(t, result.Keywords, 25)
	for i := 1; i < len(result.Keywords); i++ {
		assert.GreaterOrEqual(t, result.Keywords[i-1].OpportunityScore, result.Keywords[i].OpportunityScore)
	}
}

func TestBatchResearch_EndToEnd(t *testing.T) {
	srv := newEngineServer(t)

	resp, err := http.Post(srv.URL+"/api/batch-research", "application/json",
		bytes.NewBufferString(`{"seed_keywords": ["coffee", "   ", "tea"], "max_keywords_each": 5}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body, 3)
	assert.EqualValues(t, 5, body["coffee"]["total_keywords"])
	assert.EqualValues(t, 5, body["tea"]["total_keywords"])
	assert.Contains(t, body[""]["error"], "seed keyword is required")
	assert.Empty(t, body[""]["keywords"])
}

func TestResearchStream_EndToEnd(t *testing.T) {
	srv := newEngineServer(t)

	resp, err := http.Post(srv.URL+"/api/research/stream", "application/json",
		bytes.NewBufferString(`{"seed_keyword": "coffee", "max_keywords": 10}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []string
	data := map[string]string{}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var current string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current = strings.TrimPrefix(line, "event: ")
			events = append(events, current)
		case strings.HasPrefix(line, "data: "):
			data[current] = strings.TrimPrefix(line, "data: ")
		}
	}
	require.NoError(t, scanner.Err())

	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, "stage", events[0])
	assert.Equal(t, "result", events[len(events)-2])
	assert.Equal(t, "complete", events[len(events)-1])

	var result types.ResearchResult
	require.NoError(t, json.Unmarshal([]byte(data["result"]), &result))
	assert.Equal(t, 10, result.TotalKeywords)
	assert.Contains(t, data["complete"], result.Metadata.RequestID)
}

func TestResearchStream_ValidationBeforeStreaming(t *testing.T) {
	srv := newEngineServer(t)

	resp, err := http.Post(srv.URL+"/api/research/stream", "application/json",
		bytes.NewBufferString(`{"seed_keyword": "coffee", "max_keywords": 500}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	// the orchestrator rejects the request after headers were sent, so the
	// failure arrives as an error event
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "event: error")
	assert.Contains(t, string(body), "max_keywords")
}
