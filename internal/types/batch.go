package types

import (
	"encoding/json"
	"strings"
)

// DefaultBatchKeywords mirrors the batch form default for keywords per seed
const DefaultBatchKeywords = 25

// BatchRequest fans one set of research parameters out across several seeds
type BatchRequest struct {
	Seeds            []string `json:"seed_keywords"`
	MaxKeywords      int      `json:"max_keywords_each"`
	Country          string   `json:"country"`
	IncludeQuestions bool     `json:"include_questions"`
	IncludeLongTail  bool     `json:"include_long_tail"`
}

// RequestFor builds the per-seed research request sharing the batch parameters
func (b BatchRequest) RequestFor(seed string) ResearchRequest {
	return ResearchRequest{
		SeedKeyword:      seed,
		MaxKeywords:      b.MaxKeywords,
		Country:          b.Country,
		IncludeQuestions: b.IncludeQuestions,
		IncludeLongTail:  b.IncludeLongTail,
	}
}

// UniqueSeeds trims the seeds and drops repeats, keeping first-seen order
func (b BatchRequest) UniqueSeeds() []string {
	seen := make(map[string]bool, len(b.Seeds))
	seeds := make([]string, 0, len(b.Seeds))
	for _, s := range b.Seeds {
		s = strings.TrimSpace(s)
		if seen[s] {
			continue
		}
		seen[s] = true
		seeds = append(seeds, s)
	}
	return seeds
}

// SeedError is the error record stored for a seed whose research failed
type SeedError struct {
	Error         string          `json:"error"`
	SeedKeyword   string          `json:"seed_keyword"`
	TotalKeywords int             `json:"total_keywords"`
	Keywords      []ScoredKeyword `json:"keywords"`
}

// NewSeedError builds the error record for a failed seed
func NewSeedError(seed string, err error) *SeedError {
	return &SeedError{
		Error:       err.Error(),
		SeedKeyword: seed,
		Keywords:    []ScoredKeyword{},
	}
}

// BatchEntry holds either a result or an error record for one seed
type BatchEntry struct {
	Result *ResearchResult
	Err    *SeedError
}

// Failed reports whether the seed produced an error record
func (e BatchEntry) Failed() bool {
	return e.Err != nil
}

// Keywords returns the scored keywords, empty for failed seeds
func (e BatchEntry) Keywords() []ScoredKeyword {
	if e.Result != nil {
		return e.Result.Keywords
	}
	return []ScoredKeyword{}
}

// MarshalJSON renders the result or the error record, never both
func (e BatchEntry) MarshalJSON() ([]byte, error) {
	if e.Err != nil {
		return json.Marshal(e.Err)
	}
	return json.Marshal(e.Result)
}

// BatchResult maps each seed to its outcome
type BatchResult map[string]BatchEntry

// Succeeded counts the seeds that produced a result
func (b BatchResult) Succeeded() int {
	n := 0
	for _, e := range b {
		if !e.Failed() {
			n++
		}
	}
	return n
}

// TotalKeywords sums the keyword counts across successful seeds
func (b BatchResult) TotalKeywords() int {
	n := 0
	for _, e := range b {
		if e.Result != nil {
			n += e.Result.TotalKeywords
		}
	}
	return n
}
