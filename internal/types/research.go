package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Request bounds
const (
	MinKeywords = 1
	MaxKeywords = 100
	// DefaultMaxKeywords mirrors the web form default
	DefaultMaxKeywords = 50
	// DefaultCountry is used when a request leaves the country empty
	DefaultCountry = "US"
)

// SupportedCountries returns the ISO country codes the engine accepts
func SupportedCountries() []string {
	return []string{"US", "GB", "CA", "AU", "IN"}
}

// ResearchRequest describes one keyword research run for a seed phrase
type ResearchRequest struct {
	SeedKeyword      string `json:"seed_keyword" validate:"required,max=200"`
	MaxKeywords      int    `json:"max_keywords" validate:"min=1,max=100"`
	Country          string `json:"country" validate:"required,oneof=US GB CA AU IN"`
	IncludeQuestions bool   `json:"include_questions"`
	IncludeLongTail  bool   `json:"include_long_tail"`
}

// Normalize trims the seed and upper-cases the country code in place
func (r *ResearchRequest) Normalize() {
	r.SeedKeyword = strings.TrimSpace(r.SeedKeyword)
	r.Country = strings.ToUpper(strings.TrimSpace(r.Country))
}

// Validate validates the ResearchRequest using the validator.
// Call Normalize first; whitespace-only seeds are rejected either way.
func (r *ResearchRequest) Validate() error {
	if strings.TrimSpace(r.SeedKeyword) == "" {
		return &ValidationError{Field: "seed_keyword", Message: "seed keyword is required"}
	}
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return toValidationError(err)
	}
	return nil
}

// ValidationError indicates a malformed research request
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// toValidationError converts the first validator failure into a ValidationError
func toValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return &ValidationError{Message: err.Error()}
	}

	fe := validationErrors[0]
	switch fe.StructField() {
	case "SeedKeyword":
		if fe.Tag() == "max" {
			return &ValidationError{Field: "seed_keyword", Message: "seed keyword must be at most 200 characters"}
		}
		return &ValidationError{Field: "seed_keyword", Message: "seed keyword is required"}
	case "MaxKeywords":
		return &ValidationError{
			Field:   "max_keywords",
			Message: fmt.Sprintf("max keywords must be between %d and %d", MinKeywords, MaxKeywords),
		}
	case "Country":
		return &ValidationError{
			Field:   "country",
			Message: fmt.Sprintf("country must be one of %s", strings.Join(SupportedCountries(), ", ")),
		}
	default:
		return &ValidationError{Field: fe.Field(), Message: fe.Tag()}
	}
}

// GenerationSource summarizes where a result's candidates came from
type GenerationSource string

const (
	// SourceGenerated means every candidate came from the generative service
	SourceGenerated GenerationSource = "generated"
	// SourceFallback means every candidate came from the template table
	SourceFallback GenerationSource = "fallback-template"
	// SourceMixed means service output was topped up from the template table
	SourceMixed GenerationSource = "mixed"
)

// ResearchMetadata records how a result was produced
type ResearchMetadata struct {
	RequestID            string           `json:"request_id"`
	APICalls             int              `json:"api_calls"`
	RawKeywordsGenerated int              `json:"raw_keywords_generated"`
	FiltersApplied       []string         `json:"filters_applied"`
	GenerationSource     GenerationSource `json:"generation_source"`
	ProviderMeasured     int              `json:"provider_measured"`
	Synthesized          int              `json:"synthesized"`
	DroppedCandidates    int              `json:"dropped_candidates"`
}

// ResearchResult is the ranked outcome of one research request
type ResearchResult struct {
	SeedKeyword    string           `json:"seed_keyword"`
	Country        string           `json:"country"`
	TotalKeywords  int              `json:"total_keywords"`
	Keywords       []ScoredKeyword  `json:"keywords"`
	ProcessingTime time.Duration    `json:"processing_time"`
	Timestamp      time.Time        `json:"timestamp"`
	Metadata       ResearchMetadata `json:"metadata"`
}

// Clone returns a deep copy so cached results cannot be mutated through callers
func (r *ResearchResult) Clone() *ResearchResult {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Keywords != nil {
		clone.Keywords = make([]ScoredKeyword, len(r.Keywords))
		copy(clone.Keywords, r.Keywords)
	}
	if r.Metadata.FiltersApplied != nil {
		clone.Metadata.FiltersApplied = make([]string, len(r.Metadata.FiltersApplied))
		copy(clone.Metadata.FiltersApplied, r.Metadata.FiltersApplied)
	}
	return &clone
}
