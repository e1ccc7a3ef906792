package domain

import (
	"fmt"
	"math"
	"time"
)

const unknownDescription = "Unknown"

// AIProvider identifies an embedding service provider.
type AIProvider string

// Available AI providers.
const (
	// AIProviderHashing is the built-in offline feature-hashing embedder.
	AIProviderHashing AIProvider = "hashing"

	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderHashing, AIProviderOllama, AIProviderOpenAI:
		return true
	default:
		return false
	}
}

// AllEmbeddingProviders returns every provider that can embed text.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{AIProviderHashing, AIProviderOllama, AIProviderOpenAI}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama || p == AIProviderHashing
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderHashing:
		return "Hashing (offline, deterministic)"
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	default:
		return unknownDescription
	}
}

// StorageBackend selects the persistence adapter.
type StorageBackend string

// Available storage backends.
const (
	StorageSQLite StorageBackend = "sqlite"
	StorageMemory StorageBackend = "memory"
)

// AuditSinkKind selects where audit events are written.
type AuditSinkKind string

// Available audit sinks.
const (
	AuditSinkNone  AuditSinkKind = "none"
	AuditSinkStore AuditSinkKind = "store"
	AuditSinkFile  AuditSinkKind = "file"
	AuditSinkS3    AuditSinkKind = "s3"
)

// RetrievalSettings configures the hybrid ranker.
type RetrievalSettings struct {
	// SemanticWeight scales normalised vector scores.
	SemanticWeight float64

	// LexicalWeight scales normalised lexical scores.
	LexicalWeight float64

	// TopK is the default result count.
	TopK int

	// CandidateMultiplier sets the per-index candidate count to TopK times this.
	CandidateMultiplier int
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// Dimensions is the vector size. Zero uses the known size for Model.
	Dimensions int

	// BaseURL is the API endpoint (for Ollama and OpenAI-compatible servers).
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// BatchSize is the number of texts embedded per provider call.
	BatchSize int

	// CacheSize is the in-process LRU capacity. Zero disables the cache.
	CacheSize int

	// CacheTTL expires cached vectors.
	CacheTTL time.Duration

	// RedisAddr enables a shared Redis vector cache when set.
	RedisAddr string

	// RequestsPerSecond throttles provider calls. Zero disables throttling.
	RequestsPerSecond float64
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// ResolvedDimensions returns Dimensions, or the known size of Model.
func (e EmbeddingSettings) ResolvedDimensions() int {
	if e.Dimensions > 0 {
		return e.Dimensions
	}
	return EmbeddingDimensions()[e.Model]
}

// SessionSettings configures the session state manager.
type SessionSettings struct {
	// TopCitationCap bounds the citations kept per session.
	TopCitationCap int
}

// StorageSettings configures persistence.
type StorageSettings struct {
	// Backend selects sqlite or memory.
	Backend StorageBackend

	// DataDir holds the sqlite database.
	DataDir string
}

// AuditSettings configures the audit trail.
type AuditSettings struct {
	// Sink selects where events are written.
	Sink AuditSinkKind

	// Dir is the local directory for the file sink.
	Dir string

	// Bucket is the S3 bucket for the s3 sink.
	Bucket string

	// Prefix is prepended to S3 object keys.
	Prefix string

	// Region is the S3 region.
	Region string

	// Endpoint overrides the S3 endpoint (MinIO and other compatible stores).
	Endpoint string

	// AccessKeyID and SecretAccessKey are static credentials. Empty uses the default chain.
	AccessKeyID     string
	SecretAccessKey string
}

// RetryPolicy bounds exponential backoff for retryable index failures.
type RetryPolicy struct {
	// MaxAttempts includes the first attempt.
	MaxAttempts int

	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration

	// Multiplier grows the wait after each attempt.
	Multiplier float64
}

// DefaultRetryPolicy returns a policy of four attempts from 100ms up to 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    4,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2,
	}
}

// Settings holds all configuration. It is passed explicitly to constructors.
type Settings struct {
	Chunking  ChunkingParams
	Retrieval RetrievalSettings
	Verifier  Thresholds
	Embedding EmbeddingSettings
	Session   SessionSettings
	Storage   StorageSettings
	Audit     AuditSettings
	Retry     RetryPolicy

	// Verbose enables debug logging.
	Verbose bool
}

// DefaultSettings returns settings with sensible defaults.
// The offline hashing embedder is used until a provider is configured.
func DefaultSettings() Settings {
	return Settings{
		Chunking: DefaultChunkingParams(),
		Retrieval: RetrievalSettings{
			SemanticWeight:      0.7,
			LexicalWeight:       0.3,
			TopK:                20,
			CandidateMultiplier: 3,
		},
		Verifier: DefaultThresholds(),
		Embedding: EmbeddingSettings{
			Provider:   AIProviderHashing,
			Model:      DefaultEmbeddingModels()[AIProviderHashing],
			Dimensions: 384,
			BatchSize:  32,
			CacheSize:  4096,
			CacheTTL:   time.Hour,
		},
		Session: SessionSettings{
			TopCitationCap: DefaultTopCitationCap,
		},
		Storage: StorageSettings{
			Backend: StorageSQLite,
		},
		Audit: AuditSettings{
			Sink:   AuditSinkStore,
			Bucket: "greds-audit-logs",
			Prefix: "audit",
		},
		Retry: DefaultRetryPolicy(),
	}
}

// Validate checks every section of the settings.
func (s Settings) Validate() error {
	if err := s.Chunking.Validate(); err != nil {
		return err
	}
	if err := s.Verifier.Validate(); err != nil {
		return err
	}
	if math.IsNaN(s.Retrieval.SemanticWeight) || math.IsNaN(s.Retrieval.LexicalWeight) ||
		s.Retrieval.SemanticWeight < 0 || s.Retrieval.LexicalWeight < 0 {
		return fmt.Errorf("%w: retrieval weights must be non-negative", ErrInvalidInput)
	}
	if s.Retrieval.TopK <= 0 || s.Retrieval.CandidateMultiplier <= 0 {
		return fmt.Errorf("%w: top_k and candidate_multiplier must be positive", ErrInvalidInput)
	}
	if !s.Embedding.Provider.IsValid() {
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidInput, s.Embedding.Provider)
	}
	if s.Embedding.ResolvedDimensions() <= 0 {
		return fmt.Errorf("%w: unknown dimensions for embedding model %q", ErrInvalidInput, s.Embedding.Model)
	}
	if s.Session.TopCitationCap <= 0 {
		return fmt.Errorf("%w: top_citation_cap must be positive", ErrInvalidInput)
	}
	switch s.Storage.Backend {
	case StorageSQLite, StorageMemory:
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidInput, s.Storage.Backend)
	}
	switch s.Audit.Sink {
	case AuditSinkNone, AuditSinkStore, AuditSinkFile, AuditSinkS3:
	default:
		return fmt.Errorf("%w: unknown audit sink %q", ErrInvalidInput, s.Audit.Sink)
	}
	if s.Audit.Sink == AuditSinkS3 && s.Audit.Bucket == "" {
		return fmt.Errorf("%w: audit bucket is required for the s3 sink", ErrInvalidInput)
	}
	if s.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("%w: retry max_attempts must be positive", ErrInvalidInput)
	}
	return nil
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderHashing: "hashing-v1",
		AIProviderOllama:  "all-minilm",
		AIProviderOpenAI:  "text-embedding-3-small",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Built-in
		"hashing-v1": 384,
		// Sentence-transformers / Ollama models
		"all-MiniLM-L6-v2":  384,
		"all-minilm":        384,
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}
