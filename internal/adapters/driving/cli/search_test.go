package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/greds/internal/core/domain"
)

func TestSearchCmd_Use(t *testing.T) {
	assert.Equal(t, "search [query]", searchCmd.Use)
}

func TestSearchCmd_Short(t *testing.T) {
	assert.Equal(t, "Search indexed chunks", searchCmd.Short)
}

func TestSearchCmd_Long(t *testing.T) {
	assert.Contains(t, searchCmd.Long, "hybrid search")
	assert.Contains(t, searchCmd.Long, "BM25")
	assert.Contains(t, searchCmd.Long, "semantic")
}

func TestSearchCmd_RequiresExactlyOneArg(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute("search")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestSearchCmd_HasLimitFlag(t *testing.T) {
	flag := searchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "limit flag should exist")
	assert.Equal(t, "n", flag.Shorthand)
	assert.Equal(t, "10", flag.DefValue)
}

func TestSearchCmd_ExecutesWithQuery(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("search", "bees dance")

	require.NoError(t, err)
	assert.Contains(t, out, "Results:")
	assert.Contains(t, out, "paper:v1:0")
	assert.Contains(t, out, "0.95")
	assert.Contains(t, out, "bees dance")
	assert.Equal(t, "bees dance", ts.search.lastText)
	assert.Equal(t, 10, ts.search.lastOpts.Limit)
	assert.Nil(t, ts.search.lastOpts.SemanticWeight)
	assert.Nil(t, ts.search.lastOpts.LexicalWeight)
}

func TestSearchCmd_ExecutesWithShortLimitFlag(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute("search", "-n", "3", "bees")

	require.NoError(t, err)
	assert.Equal(t, 3, ts.search.lastOpts.Limit)
}

func TestSearchCmd_WeightOverrides(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute("search", "--semantic-weight", "0", "--lexical-weight", "1", "bees")

	require.NoError(t, err)
	require.NotNil(t, ts.search.lastOpts.SemanticWeight)
	require.NotNil(t, ts.search.lastOpts.LexicalWeight)
	assert.InDelta(t, 0.0, *ts.search.lastOpts.SemanticWeight, 1e-9)
	assert.InDelta(t, 1.0, *ts.search.lastOpts.LexicalWeight, 1e-9)
}

func TestSearchCmd_JSONOutput(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("search", "--json", "bees")

	require.NoError(t, err)
	var results []searchResultJSON
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "paper:v1:0", results[0].ID)
	assert.Equal(t, "bees dance to share food sources", results[0].Text)
}

func TestSearchCmd_ServiceNotConfigured(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	searchService = nil

	_, err := execute("search", "test")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "search service not configured")
}

func TestSearchCmd_ServiceError(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	searchService = &mockSearchServiceError{}

	_, err := execute("search", "test")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "search failed")
}

func TestOutputSearchJSON_EmptyResults(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)

	err := outputSearchJSON(rootCmd, []domain.SearchResult{})

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "[]")
}

func TestOutputSearchTable_EmptyResults(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)

	err := outputSearchTable(rootCmd, []domain.SearchResult{})

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "No results found")
}

func TestOutputSearchTable_WithoutHighlights(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)

	results := []domain.SearchResult{
		{
			Chunk:    domain.Chunk{ID: "paper:v1:4"},
			Score:    0.75,
			Semantic: 0.5,
			Lexical:  1,
		},
	}

	err := outputSearchTable(rootCmd, results)

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "paper:v1:4")
	assert.Contains(t, buf.String(), "(0.75; sem 0.50, lex 1.00)")
}
