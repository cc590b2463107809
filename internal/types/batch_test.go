package types

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchRequestUniqueSeeds(t *testing.T) {
	b := BatchRequest{Seeds: []string{" coffee", "tea", "coffee ", "", "tea", " "}}
	assert.Equal(t, []string{"coffee", "tea", ""}, b.UniqueSeeds())
}

func TestBatchRequestRequestFor(t *testing.T) {
	b := BatchRequest{MaxKeywords: 15, Country: "CA", IncludeQuestions: true}
	req := b.RequestFor("coffee")

	assert.Equal(t, ResearchRequest{
		SeedKeyword:      "coffee",
		MaxKeywords:      15,
		Country:          "CA",
		IncludeQuestions: true,
	}, req)
}

func TestBatchEntry_ErrorRecordJSON(t *testing.T) {
	entry := BatchEntry{Err: NewSeedError("b", errors.New("boom"))}

	data, err := json.Marshal(entry)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "boom", decoded["error"])
	assert.Equal(t, "b", decoded["seed_keyword"])
	assert.Equal(t, 0.0, decoded["total_keywords"])
	assert.Equal(t, []any{}, decoded["keywords"])
	assert.True(t, entry.Failed())
	assert.Empty(t, entry.Keywords())
}

func TestBatchEntry_ResultJSON(t *testing.T) {
	entry := BatchEntry{Result: &ResearchResult{SeedKeyword: "a", TotalKeywords: 1,
		Keywords: []ScoredKeyword{{KeywordCandidate: KeywordCandidate{Text: "a guide"}}}}}

	data, err := json.Marshal(entry)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "a", decoded["seed_keyword"])
	assert.NotContains(t, decoded, "error")
	assert.False(t, entry.Failed())
	assert.Len(t, entry.Keywords(), 1)
}

func TestBatchResultCounters(t *testing.T) {
	result := BatchResult{
		"a": {Result: &ResearchResult{TotalKeywords: 3}},
		"b": {Err: NewSeedError("b", errors.New("failed"))},
		"c": {Result: &ResearchResult{TotalKeywords: 2}},
	}

	assert.Equal(t, 2, result.Succeeded())
	assert.Equal(t, 5, result.TotalKeywords())
}
