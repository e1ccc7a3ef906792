package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	require.NoError(t, s.Validate())

	assert.Equal(t, 1024, s.Chunking.Size)
	assert.InDelta(t, 0.2, s.Chunking.OverlapRatio, 1e-9)
	assert.Equal(t, int64(42), s.Chunking.Seed)
	assert.InDelta(t, 0.7, s.Retrieval.SemanticWeight, 1e-9)
	assert.InDelta(t, 0.3, s.Retrieval.LexicalWeight, 1e-9)
	assert.Equal(t, 20, s.Retrieval.TopK)
	assert.Equal(t, 3, s.Retrieval.CandidateMultiplier)
	assert.InDelta(t, 0.80, s.Verifier.Pass, 1e-9)
	assert.InDelta(t, 0.75, s.Verifier.Partial, 1e-9)
	assert.Equal(t, 384, s.Embedding.ResolvedDimensions())
	assert.Equal(t, DefaultTopCitationCap, s.Session.TopCitationCap)
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		target error
	}{
		{"bad thresholds", func(s *Settings) { s.Verifier = Thresholds{Pass: 0.8, Partial: 0.85} }, ErrInvalidThresholdConfig},
		{"bad chunking", func(s *Settings) { s.Chunking.Size = 0 }, ErrInvalidChunkingParams},
		{"negative weight", func(s *Settings) { s.Retrieval.LexicalWeight = -1 }, ErrInvalidInput},
		{"unknown provider", func(s *Settings) { s.Embedding.Provider = "acme" }, ErrInvalidInput},
		{"unknown model dims", func(s *Settings) {
			s.Embedding.Model = "unknown"
			s.Embedding.Dimensions = 0
		}, ErrInvalidInput},
		{"s3 without bucket", func(s *Settings) {
			s.Audit.Sink = AuditSinkS3
			s.Audit.Bucket = ""
		}, ErrInvalidInput},
		{"unknown backend", func(s *Settings) { s.Storage.Backend = "postgres" }, ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			assert.ErrorIs(t, s.Validate(), tt.target)
		})
	}
}

func TestAIProvider(t *testing.T) {
	assert.True(t, AIProviderHashing.IsValid())
	assert.True(t, AIProviderHashing.IsLocal())
	assert.True(t, AIProviderOpenAI.RequiresAPIKey())
	assert.False(t, AIProvider("acme").IsValid())
	assert.Equal(t, unknownDescription, AIProvider("acme").Description())

	for _, p := range AllEmbeddingProviders() {
		assert.True(t, p.IsValid())
		assert.NotEmpty(t, DefaultEmbeddingModels()[p])
	}
}

func TestEmbeddingSettings_IsConfigured(t *testing.T) {
	assert.True(t, EmbeddingSettings{Provider: AIProviderOllama}.IsConfigured())
	assert.False(t, EmbeddingSettings{Provider: AIProviderOpenAI}.IsConfigured())
	assert.True(t, EmbeddingSettings{Provider: AIProviderOpenAI, APIKey: "k"}.IsConfigured())
}
