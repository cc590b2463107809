package metrics

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// totalResultsScale is the result count log10 that maps to full competition
const totalResultsScale = 10.0

// SearchProvider estimates competition from the number of indexed results
// reported by the Google Custom Search JSON API. Volume and cost per click
// are left to synthesis.
type SearchProvider struct {
	service  *customsearch.Service
	engineID string
}

// NewSearchProvider creates a Custom Search backed provider for engine cx
func NewSearchProvider(ctx context.Context, apiKey, cx string, opts ...option.ClientOption) (*SearchProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("search API key is required")
	}
	if cx == "" {
		return nil, fmt.Errorf("search engine ID is required")
	}

	clientOpts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := customsearch.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create custom search service: %w", err)
	}
	return &SearchProvider{service: service, engineID: cx}, nil
}

// Name identifies the provider in logs and errors
func (p *SearchProvider) Name() string {
	return "custom search provider"
}

// Lookup runs one search restricted to the country and converts the
// total result count into a competition score
func (p *SearchProvider) Lookup(ctx context.Context, text, country string) (*ProviderMetrics, error) {
	search, err := p.service.Cse.List().
		Cx(p.engineID).
		Q(text).
		Gl(strings.ToLower(country)).
		Num(1).
		Context(ctx).
		Do()
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Message: "search request failed", Cause: err}
	}
	if search.SearchInformation == nil || search.SearchInformation.TotalResults == "" {
		return &ProviderMetrics{}, nil
	}

	total, err := strconv.ParseInt(search.SearchInformation.TotalResults, 10, 64)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Message: "invalid total results", Cause: err}
	}
	competition := CompetitionFromResults(total)
	return &ProviderMetrics{CompetitionScore: &competition}, nil
}

// CompetitionFromResults log-scales an indexed result count into the competition range
func CompetitionFromResults(total int64) float64 {
	if total <= 0 {
		return MinCompetition
	}
	return round(clamp(math.Log10(float64(total)+1)/totalResultsScale, MinCompetition, MaxCompetition), 2)
}
