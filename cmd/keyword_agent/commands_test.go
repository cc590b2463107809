package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/keyword-agent/internal/config"
	"github.com/jonathan/keyword-agent/internal/export"
	"github.com/jonathan/keyword-agent/internal/types"
)

// runCLI executes the root command in-process with credentials cleared so
// every run uses template generation and synthesized metrics.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	for _, key := range []string{
		config.EnvGeminiAPIKey, config.EnvMetricsProviderURL, config.EnvMetricsProviderKey,
		config.EnvSearchAPIKey, config.EnvSearchCX,
	} {
		t.Setenv(key, "")
	}

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestResearchCommand_JSON(t *testing.T) {
	out, _, err := runCLI(t, "research", "coffee", "--format", "json", "-m", "10")
	require.NoError(t, err)

	var result types.ResearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "coffee", result.SeedKeyword)
	assert.Equal(t, "US", result.Country)
	assert.NotEmpty(t, result.Keywords)
	assert.LessOrEqual(t, len(result.Keywords), 10)
	assert.Equal(t, types.SourceFallback, result.Metadata.GenerationSource)
}

func TestResearchCommand_MultiWordSeedFromArgs(t *testing.T) {
	out, _, err := runCLI(t, "research", "cold", "brew", "--format", "json", "-m", "5")
	require.NoError(t, err)

	var result types.ResearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "cold brew", result.SeedKeyword)
}

func TestResearchCommand_CSV(t *testing.T) {
	out, _, err := runCLI(t, "research", "coffee", "--format", "csv", "-m", "5", "-c", "gb")
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, export.Headers, records[0])
	assert.LessOrEqual(t, len(records)-1, 5)
}

func TestResearchCommand_Table(t *testing.T) {
	out, _, err := runCLI(t, "research", "coffee", "-m", "5")
	require.NoError(t, err)

	assert.Contains(t, out, "Results for 'coffee'")
	assert.Contains(t, out, " 1. ")
	assert.Contains(t, out, "Score:")
}

func TestResearchCommand_VerboseSummary(t *testing.T) {
	out, _, err := runCLI(t, "research", "coffee", "-m", "5", "-v")
	require.NoError(t, err)

	assert.Contains(t, out, `RESULTS FOR "coffee"`)
}

func TestResearchCommand_OutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coffee.csv")
	out, _, err := runCLI(t, "research", "coffee", "--format", "csv", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported to "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Keyword,"))
}

func TestResearchCommand_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "missing seed", args: []string{"research"}, wantErr: "requires at least 1 arg"},
		{name: "max too large", args: []string{"research", "coffee", "-m", "500"}, wantErr: "max_keywords"},
		{name: "unsupported country", args: []string{"research", "coffee", "-c", "FR"}, wantErr: "country"},
		{name: "unknown format", args: []string{"research", "coffee", "--format", "xml"}, wantErr: "xml"},
		{name: "unknown provider", args: []string{"research", "coffee", "--metrics-provider", "magic"}, wantErr: "unknown metrics provider"},
		{name: "require llm without key", args: []string{"research", "coffee", "--require-llm"}, wantErr: "require_llm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runCLI(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResearchCommand_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"require_llm": true}`), 0o644))

	_, _, err := runCLI(t, "--config", path, "research", "coffee")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "require_llm")
}

func TestResearchCommand_FlagOverridesConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"require_llm": true, "metrics_provider": "none"}`), 0o644))

	out, _, err := runCLI(t, "--config", path, "--require-llm=false", "research", "coffee", "--format", "json", "-m", "3")
	require.NoError(t, err)
	assert.Contains(t, out, `"seed_keyword": "coffee"`)
}

func TestResearchCommand_MissingConfigFile(t *testing.T) {
	_, _, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "missing.json"), "research", "coffee")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestBatchCommand_Summary(t *testing.T) {
	out, _, err := runCLI(t, "batch", "coffee", "--seeds", "tea, cocoa", "-m", "5")
	require.NoError(t, err)

	assert.Contains(t, out, "BATCH RESULTS")
	assert.Contains(t, out, "[+] coffee:")
	assert.Contains(t, out, "[+] tea:")
	assert.Contains(t, out, "[+] cocoa:")
	assert.Contains(t, out, "3 of 3 seeds succeeded")
}

func TestBatchCommand_JSONWithFailingSeed(t *testing.T) {
	seedsFile := filepath.Join(t.TempDir(), "seeds.txt")
	require.NoError(t, os.WriteFile(seedsFile, []byte("coffee\n# comment\n\n"+strings.Repeat("x", 250)+"\n"), 0o644))

	out, _, err := runCLI(t, "batch", "--file", seedsFile, "--format", "json", "-m", "5")
	require.NoError(t, err)

	var batch map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &batch))
	require.Len(t, batch, 2)
	assert.NotContains(t, batch["coffee"], "error")
	failed := batch[strings.Repeat("x", 250)]
	assert.Contains(t, failed, "error")
	assert.EqualValues(t, 0, failed["total_keywords"])
}

func TestBatchCommand_Errors(t *testing.T) {
	_, _, err := runCLI(t, "batch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one seed")

	_, _, err = runCLI(t, "batch", "coffee", "--format", "csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported batch format")

	_, _, err = runCLI(t, "batch", "--file", filepath.Join(t.TempDir(), "none.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open seeds file")
}

func TestCollectSeeds(t *testing.T) {
	seeds, err := collectSeeds([]string{"coffee"}, " tea ,, cocoa ", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"coffee", "tea", "cocoa"}, seeds)
}

func TestServeCommand_InvalidConfig(t *testing.T) {
	_, _, err := runCLI(t, "serve", "--metrics-provider", "http")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics_provider_url")
}
