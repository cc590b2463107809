// Package cache stores research results keyed by their normalized request.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/keyword-agent/internal/types"
)

// DefaultTTL is how long a result stays fresh
const DefaultTTL = 6 * time.Hour

// Cache stores research results. Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the result for key; the bool is false on a miss or expiry
	Get(ctx context.Context, key string) (*types.ResearchResult, bool, error)
	// Put stores a result under key
	Put(ctx context.Context, key string, result *types.ResearchResult) error
}

// Entry is one stored result
type Entry struct {
	Key       string
	Result    *types.ResearchResult
	CreatedAt time.Time
	ExpiresAt time.Time

	seq uint64
}

// Expired reports whether the entry is stale at now
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// UnavailableError wraps a backend failure; callers treat it as a miss
type UnavailableError struct {
	Op    string
	Cause error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("cache unavailable during %s: %v", e.Op, e.Cause)
}

func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

// Key derives the cache key for a request. Requests that differ only in
// seed case, surrounding whitespace or country case share a key.
func Key(req types.ResearchRequest) string {
	canonical := fmt.Sprintf("%s|%d|%s|%t|%t",
		strings.ToLower(strings.TrimSpace(req.SeedKeyword)),
		req.MaxKeywords,
		strings.ToUpper(strings.TrimSpace(req.Country)),
		req.IncludeQuestions,
		req.IncludeLongTail,
	)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
