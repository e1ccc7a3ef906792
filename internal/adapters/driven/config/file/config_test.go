package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/greds/internal/core/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	settings, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	want := domain.DefaultSettings()
	assert.Equal(t, want.Chunking, settings.Chunking)
	assert.Equal(t, want.Retrieval, settings.Retrieval)
	assert.Equal(t, want.Verifier, settings.Verifier)
	assert.Equal(t, want.Retry, settings.Retry)
	assert.Equal(t, want.Embedding.CacheTTL, settings.Embedding.CacheTTL)
}

func TestLoad_TOMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, "config.toml", `
verbose = true

[chunking]
size = 256
overlap_ratio = 0.1

[retrieval]
semantic_weight = 0.5
lexical_weight = 0.5

[verifier]
pass = 0.9
partial = 0.6

[retry]
initial_backoff_ms = 250
`)

	settings, err := Load(path)
	require.NoError(t, err)

	assert.True(t, settings.Verbose)
	assert.Equal(t, 256, settings.Chunking.Size)
	assert.InDelta(t, 0.1, settings.Chunking.OverlapRatio, 1e-9)
	assert.Equal(t, int64(42), settings.Chunking.Seed, "unset keys keep defaults")
	assert.Equal(t, domain.ChunkingStrategyFixedTokens, settings.Chunking.Strategy)
	assert.InDelta(t, 0.5, settings.Retrieval.SemanticWeight, 1e-9)
	assert.Equal(t, 20, settings.Retrieval.TopK)
	assert.Equal(t, domain.Thresholds{Pass: 0.9, Partial: 0.6}, settings.Verifier)
	assert.Equal(t, 250*time.Millisecond, settings.Retry.InitialBackoff)
	assert.Equal(t, domain.DefaultRetryPolicy().MaxBackoff, settings.Retry.MaxBackoff)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
storage:
  backend: memory
audit:
  sink: file
  dir: /tmp/greds-audit
session:
  top_citation_cap: 5
`)

	settings, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, domain.StorageMemory, settings.Storage.Backend)
	assert.Equal(t, domain.AuditSinkFile, settings.Audit.Sink)
	assert.Equal(t, "/tmp/greds-audit", settings.Audit.Dir)
	assert.Equal(t, 5, settings.Session.TopCitationCap)
}

func TestLoad_APIKeyFromEnvironment(t *testing.T) {
	t.Setenv("GREDS_TEST_KEY", "sk-test")
	path := writeFile(t, "config.toml", `
[embedding]
provider = "openai"
api_key_env = "GREDS_TEST_KEY"
`)

	settings, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", settings.Embedding.APIKey)
	assert.Equal(t, "text-embedding-3-small", settings.Embedding.Model)
	assert.Equal(t, 1536, settings.Embedding.Dimensions)
	assert.True(t, settings.Embedding.IsConfigured())
}

func TestLoad_ExplicitModelKept(t *testing.T) {
	path := writeFile(t, "config.toml", `
[embedding]
provider = "ollama"
model = "nomic-embed-text"
dimensions = 0
`)

	settings, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", settings.Embedding.Model)
	assert.Equal(t, 768, settings.Embedding.Dimensions)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr error
	}{
		{
			name:    "thresholds inverted",
			file:    "config.toml",
			content: "[verifier]\npass = 0.80\npartial = 0.85\n",
			wantErr: domain.ErrInvalidThresholdConfig,
		},
		{
			name:    "pass threshold nan",
			file:    "config.toml",
			content: "[verifier]\npass = nan\npartial = 0.5\n",
			wantErr: domain.ErrInvalidThresholdConfig,
		},
		{
			name:    "chunk size zero",
			file:    "config.toml",
			content: "[chunking]\nsize = 0\n",
			wantErr: domain.ErrInvalidChunkingParams,
		},
		{
			name:    "unknown provider",
			file:    "config.yml",
			content: "embedding:\n  provider: cohere\n",
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "negative weight",
			file:    "config.toml",
			content: "[retrieval]\nlexical_weight = -1.0\n",
			wantErr: domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	_, err := Load(writeFile(t, "config.toml", "[chunking\nsize = "))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "config.yaml", "storage: [unterminated"))
	assert.Error(t, err)
}

func TestLoad_DefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".greds", "config.toml"), path)

	settings, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings().Retrieval, settings.Retrieval)
}

func TestSave_RoundTrip(t *testing.T) {
	for _, name := range []string{"config.toml", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)

			want := domain.DefaultSettings()
			want.Chunking.Size = 512
			want.Retrieval.TopK = 7
			want.Embedding.CacheTTL = 90 * time.Second
			want.Audit.Sink = domain.AuditSinkNone
			require.NoError(t, Save(path, want))

			got, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, want.Chunking, got.Chunking)
			assert.Equal(t, want.Retrieval, got.Retrieval)
			assert.Equal(t, want.Embedding.CacheTTL, got.Embedding.CacheTTL)
			assert.Equal(t, want.Audit.Sink, got.Audit.Sink)
		})
	}
}

func TestSave_Permissions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "greds")
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, Save(path, domain.DefaultSettings()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	dirInfo, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())
}

func TestSave_OmitsAPIKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	settings := domain.DefaultSettings()
	settings.Embedding.APIKey = "sk-secret"
	require.NoError(t, Save(path, settings))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret")
	assert.Contains(t, string(data), "api_key_env")
}

func TestConfigStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	store, err := NewConfigStore(path)
	require.NoError(t, err)
	assert.Equal(t, path, store.Path())

	settings, err := store.Load()
	require.NoError(t, err)
	settings.Retrieval.TopK = 3
	require.NoError(t, store.Save(settings))

	reloaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.Retrieval.TopK)
}
