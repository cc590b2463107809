package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ProviderMetrics holds whatever a provider measured. Nil fields were not
// measured and are filled from the synthesized baseline.
type ProviderMetrics struct {
	SearchVolume     *int     `json:"search_volume,omitempty"`
	CompetitionScore *float64 `json:"competition_score,omitempty"`
	CPC              *float64 `json:"cpc,omitempty"`
}

// Empty reports whether no field was measured
func (m *ProviderMetrics) Empty() bool {
	return m == nil || (m.SearchVolume == nil && m.CompetitionScore == nil && m.CPC == nil)
}

// Provider looks up measured metrics for a phrase
type Provider interface {
	Lookup(ctx context.Context, text, country string) (*ProviderMetrics, error)
	Name() string
}

// StatusError is returned when a provider answers with a non-2xx status
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s returned status %d", e.Provider, e.StatusCode)
}

// HTTPStatus exposes the status code for retry classification
func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}

// ProviderError represents a provider call that failed before a status was received
type ProviderError struct {
	Provider string
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// DefaultProviderTimeout bounds one HTTP provider request
const DefaultProviderTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is kept
const maxErrorBody = 512

// HTTPProvider queries a JSON metrics endpoint:
// GET {BaseURL}?keyword=...&country=... returning
// {"search_volume": 1200, "competition_score": 0.4, "cpc": 1.25}.
type HTTPProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPProvider creates a provider for baseURL
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: DefaultProviderTimeout},
	}
}

// Name identifies the provider in logs and errors
func (p *HTTPProvider) Name() string {
	return "http metrics provider"
}

// Lookup fetches metrics for one phrase
func (p *HTTPProvider) Lookup(ctx context.Context, text, country string) (*ProviderMetrics, error) {
	endpoint, err := url.Parse(p.BaseURL)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, &ProviderError{Provider: p.Name(), Message: "invalid base URL", Cause: err}
	}
	query := endpoint.Query()
	query.Set("keyword", text)
	query.Set("country", strings.ToUpper(country))
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Accept", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Provider: p.Name(), StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var metrics ProviderMetrics
	if err := json.NewDecoder(resp.Body).Decode(&metrics); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Message: "failed to decode response", Cause: err}
	}
	return &metrics, nil
}
