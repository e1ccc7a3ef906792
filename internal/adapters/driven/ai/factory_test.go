package ai

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/greds/internal/adapters/driven/embedding/cache"
	"github.com/custodia-labs/greds/internal/adapters/driven/embedding/hashing"
	"github.com/custodia-labs/greds/internal/adapters/driven/embedding/throttle"
	"github.com/custodia-labs/greds/internal/core/domain"
)

func TestCreateEmbeddingService(t *testing.T) {
	tests := []struct {
		name        string
		settings    *domain.EmbeddingSettings
		wantNil     bool
		wantErr     bool
		errContains string
	}{
		{
			name:     "nil settings returns nil",
			settings: nil,
			wantNil:  true,
		},
		{
			name:     "unconfigured settings returns nil",
			settings: &domain.EmbeddingSettings{},
			wantNil:  true,
		},
		{
			name: "hashing provider creates service",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderHashing,
				Model:    "hashing-v1",
			},
		},
		{
			name: "ollama provider creates service",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOllama,
				BaseURL:  "http://localhost:11434",
				Model:    "nomic-embed-text",
			},
		},
		{
			name: "openai provider creates service",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOpenAI,
				APIKey:   "test-key",
				Model:    "text-embedding-3-small",
			},
		},
		{
			name: "openai without key is not configured",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOpenAI,
				Model:    "text-embedding-3-small",
			},
			wantNil: true,
		},
		{
			name: "openai with unknown model dimensions returns error",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOpenAI,
				APIKey:   "test-key",
				Model:    "custom-model",
			},
			wantNil:     true,
			wantErr:     true,
			errContains: "unknown dimensions",
		},
		{
			name: "unknown provider returns nil",
			settings: &domain.EmbeddingSettings{
				Provider: "unknown",
				APIKey:   "test-key",
			},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateEmbeddingService(tt.settings)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			} else {
				require.NoError(t, err)
			}

			if tt.wantNil {
				assert.Nil(t, svc)
				return
			}
			require.NotNil(t, svc)
			defer svc.Close()
		})
	}
}

func TestCreateEmbeddingService_Dimensions(t *testing.T) {
	svc, err := CreateEmbeddingService(&domain.EmbeddingSettings{
		Provider:   domain.AIProviderHashing,
		Model:      "hashing-v1",
		Dimensions: 64,
	})
	require.NoError(t, err)
	assert.Equal(t, 64, svc.Dimensions())

	svc, err = CreateEmbeddingService(&domain.EmbeddingSettings{
		Provider: domain.AIProviderOllama,
		Model:    "nomic-embed-text",
	})
	require.NoError(t, err)
	assert.Equal(t, 768, svc.Dimensions())
}

func TestCreateOllamaEmbedding_UnknownModel(t *testing.T) {
	svc := createOllamaEmbedding(&domain.EmbeddingSettings{
		Provider: domain.AIProviderOllama,
		Model:    "custom-model-unknown",
	})
	require.NotNil(t, svc)
	defer svc.Close()
	assert.Positive(t, svc.Dimensions())
}

func TestDecorate(t *testing.T) {
	t.Run("nil service", func(t *testing.T) {
		assert.Nil(t, Decorate(nil, &domain.EmbeddingSettings{CacheSize: 10}))
	})

	t.Run("hashing is left undecorated", func(t *testing.T) {
		inner := hashing.NewEmbeddingService(8)
		got := Decorate(inner, &domain.EmbeddingSettings{
			Provider:          domain.AIProviderHashing,
			CacheSize:         10,
			RequestsPerSecond: 5,
		})
		assert.Same(t, inner, got)
	})

	t.Run("remote provider gets cache and limiter", func(t *testing.T) {
		inner := hashing.NewEmbeddingService(8)
		got := Decorate(inner, &domain.EmbeddingSettings{
			Provider:          domain.AIProviderOpenAI,
			CacheSize:         10,
			RequestsPerSecond: 5,
		})
		_, ok := got.(*cache.EmbeddingService)
		assert.True(t, ok)
		assert.Equal(t, inner.ModelName(), got.ModelName())
	})

	t.Run("limiter only", func(t *testing.T) {
		got := Decorate(hashing.NewEmbeddingService(8), &domain.EmbeddingSettings{
			Provider:          domain.AIProviderOpenAI,
			RequestsPerSecond: 5,
		})
		_, ok := got.(*throttle.EmbeddingService)
		assert.True(t, ok)
	})
}

func TestValidateEmbeddingConfig(t *testing.T) {
	t.Run("nil settings", func(t *testing.T) {
		assert.NoError(t, ValidateEmbeddingConfig(nil))
	})

	t.Run("hashing always validates", func(t *testing.T) {
		assert.NoError(t, ValidateEmbeddingConfig(&domain.EmbeddingSettings{
			Provider: domain.AIProviderHashing,
			Model:    "hashing-v1",
		}))
	})

	t.Run("reachable ollama", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/tags", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		assert.NoError(t, ValidateEmbeddingConfig(&domain.EmbeddingSettings{
			Provider: domain.AIProviderOllama,
			BaseURL:  srv.URL,
			Model:    "all-minilm",
		}))
	})

	t.Run("unreachable ollama", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		assert.Error(t, ValidateEmbeddingConfig(&domain.EmbeddingSettings{
			Provider: domain.AIProviderOllama,
			BaseURL:  srv.URL,
			Model:    "all-minilm",
		}))
	})
}

func TestCreateAndValidateEmbeddingService(t *testing.T) {
	t.Run("unconfigured returns nil", func(t *testing.T) {
		svc, err := CreateAndValidateEmbeddingService(&domain.EmbeddingSettings{})
		require.NoError(t, err)
		assert.Nil(t, svc)
	})

	t.Run("unreachable wraps sentinel", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		svc, err := CreateAndValidateEmbeddingService(&domain.EmbeddingSettings{
			Provider: domain.AIProviderOllama,
			BaseURL:  srv.URL,
			Model:    "all-minilm",
		})
		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
		assert.Nil(t, svc)
	})

	t.Run("hashing", func(t *testing.T) {
		svc, err := CreateAndValidateEmbeddingService(&domain.EmbeddingSettings{
			Provider:   domain.AIProviderHashing,
			Model:      "hashing-v1",
			Dimensions: 32,
		})
		require.NoError(t, err)
		require.NotNil(t, svc)
		assert.Equal(t, 32, svc.Dimensions())
		assert.NoError(t, svc.Close())
	})
}
