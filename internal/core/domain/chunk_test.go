package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkingParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  ChunkingParams
		wantErr bool
	}{
		{"defaults", DefaultChunkingParams(), false},
		{"no overlap", ChunkingParams{Size: 10, OverlapRatio: 0}, false},
		{"high overlap", ChunkingParams{Size: 10, OverlapRatio: 0.95}, false},
		{"zero size", ChunkingParams{Size: 0, OverlapRatio: 0.2}, true},
		{"negative size", ChunkingParams{Size: -5, OverlapRatio: 0.2}, true},
		{"ratio of one", ChunkingParams{Size: 10, OverlapRatio: 1}, true},
		{"negative ratio", ChunkingParams{Size: 10, OverlapRatio: -0.1}, true},
		{"NaN ratio", ChunkingParams{Size: 10, OverlapRatio: math.NaN()}, true},
		{"unknown strategy", ChunkingParams{Size: 10, Strategy: "sentences"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidChunkingParams)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestChunkingParams_OverlapTokens(t *testing.T) {
	assert.Equal(t, 204, DefaultChunkingParams().OverlapTokens())
	assert.Equal(t, 29, ChunkingParams{Size: 100, OverlapRatio: 0.29}.OverlapTokens())
	assert.Equal(t, 0, ChunkingParams{Size: 3, OverlapRatio: 0.2}.OverlapTokens())
	assert.Equal(t, 820, DefaultChunkingParams().Step())
}

func TestChunkingParams_Fingerprint(t *testing.T) {
	a := ChunkingParams{Size: 100, OverlapRatio: 0.2, Seed: 42}
	b := ChunkingParams{Size: 100, OverlapRatio: 0.25, Seed: 42}

	assert.Equal(t, "fixed_tokens_with_overlap/size=100/overlap=0.2/seed=42", a.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestContentHash(t *testing.T) {
	id := RetrievalID{Slug: "w", Version: "1", ChunkIndex: 0}
	params := DefaultChunkingParams()

	h1 := ContentHash(id, params, "some text")
	h2 := ContentHash(id, params, "some text")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	other := params
	other.Size = 512
	assert.NotEqual(t, h1, ContentHash(id, other, "some text"), "params change must change the hash")

	v2 := RetrievalID{Slug: "w", Version: "2", ChunkIndex: 0}
	assert.NotEqual(t, h1, ContentHash(v2, params, "some text"))
}

func TestValidateChunkSet(t *testing.T) {
	good := []Chunk{
		{ID: "w:1:0", WorkID: "w1", Index: 0, ContentHash: "a"},
		{ID: "w:1:1", WorkID: "w1", Index: 1, ContentHash: "b"},
	}
	assert.NoError(t, ValidateChunkSet("w1", good))
	assert.NoError(t, ValidateChunkSet("w1", nil))

	gap := []Chunk{
		{ID: "w:1:0", WorkID: "w1", Index: 0, ContentHash: "a"},
		{ID: "w:1:2", WorkID: "w1", Index: 2, ContentHash: "b"},
	}
	assert.ErrorIs(t, ValidateChunkSet("w1", gap), ErrInvalidInput)

	dup := []Chunk{
		{ID: "w:1:0", WorkID: "w1", Index: 0, ContentHash: "a"},
		{ID: "w:1:1", WorkID: "w1", Index: 1, ContentHash: "a"},
	}
	assert.ErrorIs(t, ValidateChunkSet("w1", dup), ErrAlreadyExists)

	assert.ErrorIs(t, ValidateChunkSet("other", good), ErrInvalidInput)
}
