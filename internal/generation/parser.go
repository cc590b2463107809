package generation

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/keyword-agent/internal/llm"
	"github.com/jonathan/keyword-agent/internal/schemas"
	"github.com/jonathan/keyword-agent/internal/types"
)

// Phrase length bounds, in characters after normalization
const (
	MinPhraseLength = 3
	MaxPhraseLength = 80
)

var (
	phrasePattern = regexp.MustCompile(`^[\p{L}\p{N} '\-&?]+$`)
	// list markers such as "-", "*", "•", "1.", "2)"
	listMarker = regexp.MustCompile(`^(?:[-*•]+|\d+[.)])\s*`)
)

// ParseSuggestions extracts keyword phrases from a raw service response.
// It accepts a JSON array of strings, an object with a "keywords" array,
// or plain text with one phrase per line. Entries that are not strings or
// fail the phrase rules are skipped. Text whose embedded JSON fragment does
// not parse is read line by line instead. A ParseError is returned when
// nothing survives.
func ParseSuggestions(raw string) ([]string, error) {
	cleaned := llm.CleanJSONBlock(raw)
	if cleaned == "" {
		return nil, &ParseError{Message: "empty response"}
	}

	if !strings.HasPrefix(cleaned, "[") && !strings.HasPrefix(cleaned, "{") {
		return acceptAll(splitLines(cleaned))
	}

	entries, err := parseJSON(cleaned)
	if err != nil {
		if phrases, lineErr := acceptAll(splitLines(raw)); lineErr == nil {
			return phrases, nil
		}
		return nil, err
	}
	return acceptAll(entries)
}

func splitLines(text string) []any {
	lines := strings.Split(text, "\n")
	entries := make([]any, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, stripListMarker(line))
	}
	return entries
}

// acceptAll keeps the usable, distinct phrases in order
func acceptAll(entries []any) ([]string, error) {
	phrases := make([]string, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		text, ok := entry.(string)
		if !ok {
			continue
		}
		phrase, ok := acceptPhrase(text)
		if !ok || seen[phrase] {
			continue
		}
		seen[phrase] = true
		phrases = append(phrases, phrase)
	}

	if len(phrases) == 0 {
		return nil, &ParseError{Message: "no usable keyword phrases in response"}
	}
	return phrases, nil
}

func parseJSON(content string) ([]any, error) {
	if err := schemas.Validate(schemas.KeywordSuggestions, content); err != nil {
		return nil, &ParseError{Message: "unexpected response shape", Cause: err}
	}

	if strings.HasPrefix(content, "[") {
		var entries []any
		if err := json.Unmarshal([]byte(content), &entries); err != nil {
			return nil, &ParseError{Message: "failed to parse JSON array", Cause: err}
		}
		return entries, nil
	}

	var wrapper struct {
		Keywords []any `json:"keywords"`
	}
	if err := json.Unmarshal([]byte(content), &wrapper); err != nil {
		return nil, &ParseError{Message: "failed to parse JSON object", Cause: err}
	}
	return wrapper.Keywords, nil
}

func stripListMarker(line string) string {
	line = strings.TrimSpace(line)
	line = listMarker.ReplaceAllString(line, "")
	line = strings.TrimRight(line, ",;")
	return strings.Trim(line, `"'`)
}

// acceptPhrase normalizes text and reports whether it is a usable keyword phrase
func acceptPhrase(text string) (string, bool) {
	phrase := types.NormalizeKeyword(text)
	length := utf8.RuneCountInString(phrase)
	if length < MinPhraseLength || length > MaxPhraseLength {
		return "", false
	}
	if !phrasePattern.MatchString(phrase) {
		return "", false
	}
	return phrase, true
}
