package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/greds/internal/core/domain"
	"github.com/custodia-labs/greds/internal/core/ports/driven"
)

const (
	// ConfigDir is the directory under the user's home holding greds state.
	ConfigDir = ".greds"

	// ConfigFile is the default settings file name.
	ConfigFile = "config.toml"

	// DefaultAPIKeyEnv names the environment variable holding the provider API key.
	DefaultAPIKeyEnv = "OPENAI_API_KEY"
)

// document is the on-disk layout of the settings file.
type document struct {
	Verbose   bool             `toml:"verbose" yaml:"verbose"`
	Chunking  chunkingSection  `toml:"chunking" yaml:"chunking"`
	Retrieval retrievalSection `toml:"retrieval" yaml:"retrieval"`
	Verifier  verifierSection  `toml:"verifier" yaml:"verifier"`
	Embedding embeddingSection `toml:"embedding" yaml:"embedding"`
	Session   sessionSection   `toml:"session" yaml:"session"`
	Storage   storageSection   `toml:"storage" yaml:"storage"`
	Audit     auditSection     `toml:"audit" yaml:"audit"`
	Retry     retrySection     `toml:"retry" yaml:"retry"`
}

type chunkingSection struct {
	Size         int     `toml:"size" yaml:"size"`
	OverlapRatio float64 `toml:"overlap_ratio" yaml:"overlap_ratio"`
	Seed         int64   `toml:"seed" yaml:"seed"`
}

type retrievalSection struct {
	SemanticWeight      float64 `toml:"semantic_weight" yaml:"semantic_weight"`
	LexicalWeight       float64 `toml:"lexical_weight" yaml:"lexical_weight"`
	TopK                int     `toml:"top_k" yaml:"top_k"`
	CandidateMultiplier int     `toml:"candidate_multiplier" yaml:"candidate_multiplier"`
}

type verifierSection struct {
	Pass    float64 `toml:"pass" yaml:"pass"`
	Partial float64 `toml:"partial" yaml:"partial"`
}

type embeddingSection struct {
	Provider          string`toml:"provider" yaml:"provider"`
	Model             string`toml:"model" yaml:"model"`
	Dimensions        int     `toml:"dimensions" yaml:"dimensions"`
	BaseURL           string  `toml:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKeyEnv         string  `toml:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	BatchSize         int     `toml:"batch_size" yaml:"batch_size"`
	CacheSize         int     `toml:"cache_size" yaml:"cache_size"`
	CacheTTLMS        int64   `toml:"cache_ttl_ms" yaml:"cache_ttl_ms"`
	RedisAddr         string  `toml:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RequestsPerSecond float64 `toml:"requests_per_second" yaml:"requests_per_second"`
}

type sessionSection struct {
	TopCitationCap int `toml:"top_citation_cap" yaml:"top_citation_cap"`
}

type storageSection struct {
	Backend string `toml:"backend" yaml:"backend"`
	DataDir string `toml:"data_dir,omitempty" yaml:"data_dir,omitempty"`
}

type auditSection struct {
	Sink     string `toml:"sink" yaml:"sink"`
	Dir      string `toml:"dir,omitempty" yaml:"dir,omitempty"`
	Bucket   string `toml:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix   string `toml:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region   string `toml:"region,omitempty" yaml:"region,omitempty"`
	Endpoint string `toml:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

type retrySection struct {
	MaxAttempts      int     `toml:"max_attempts" yaml:"max_attempts"`
	InitialBackoffMS int64   `toml:"initial_backoff_ms" yaml:"initial_backoff_ms"`
	MaxBackoffMS     int64   `toml:"max_backoff_ms" yaml:"max_backoff_ms"`
	Multiplier       float64 `toml:"multiplier" yaml:"multiplier"`
}

// DefaultPath returns ~/.greds/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

// Load reads settings from path over the defaults and validates them.
// An empty path uses DefaultPath. A missing file yields the defaults.
// The embedding API key is read from the environment variable named by
// api_key_env, falling back to OPENAI_API_KEY.
func Load(path string) (domain.Settings, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return domain.Settings{}, err
		}
		path = p
	}

	doc := fromSettings(domain.DefaultSettings())

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return domain.Settings{}, fmt.Errorf("reading config: %w", err)
	default:
		if err := unmarshal(path, data, &doc); err != nil {
			return domain.Settings{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	settings := doc.toSettings()
	defaults := domain.DefaultSettings().Embedding
	if e := &settings.Embedding; e.Provider != defaults.Provider && e.Model == defaults.Model {
		// A provider switch without a model picks that provider's default model.
		e.Model = domain.DefaultEmbeddingModels()[e.Provider]
		if e.Dimensions == defaults.Dimensions {
			e.Dimensions = 0
		}
	}
	if settings.Embedding.Dimensions == 0 {
		settings.Embedding.Dimensions = settings.Embedding.ResolvedDimensions()
	}
	if err := settings.Validate(); err != nil {
		return domain.Settings{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return settings, nil
}

// Save writes settings to path with restricted permissions.
// Secrets are not written; the API key stays in the environment.
func Save(path string, settings domain.Settings) error {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := marshal(path, fromSettings(settings))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func unmarshal(path string, data []byte, doc *document) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, doc)
	}
	return toml.Unmarshal(data, doc)
}

func marshal(path string, doc document) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(doc)
	}
	return toml.Marshal(doc)
}

func fromSettings(s domain.Settings) document {
	return document{
		Verbose: s.Verbose,
		Chunking: chunkingSection{
			Size:         s.Chunking.Size,
			OverlapRatio: s.Chunking.OverlapRatio,
			Seed:         s.Chunking.Seed,
		},
		Retrieval: retrievalSection{
			SemanticWeight:      s.Retrieval.SemanticWeight,
			LexicalWeight:       s.Retrieval.LexicalWeight,
			TopK:                s.Retrieval.TopK,
			CandidateMultiplier: s.Retrieval.CandidateMultiplier,
		},
		Verifier: verifierSection{
			Pass:    s.Verifier.Pass,
			Partial: s.Verifier.Partial,
		},
		Embedding: embeddingSection{
			Provider:          s.Embedding.Provider.String(),
			Model:             s.Embedding.Model,
			Dimensions:        s.Embedding.Dimensions,
			BaseURL:           s.Embedding.BaseURL,
			APIKeyEnv:         DefaultAPIKeyEnv,
			BatchSize:         s.Embedding.BatchSize,
			CacheSize:         s.Embedding.CacheSize,
			CacheTTLMS:        s.Embedding.CacheTTL.Milliseconds(),
			RedisAddr:         s.Embedding.RedisAddr,
			RequestsPerSecond: s.Embedding.RequestsPerSecond,
		},
		Session: sessionSection{
			TopCitationCap: s.Session.TopCitationCap,
		},
		Storage: storageSection{
			Backend: string(s.Storage.Backend),
			DataDir: s.Storage.DataDir,
		},
		Audit: auditSection{
			Sink:     string(s.Audit.Sink),
			Dir:      s.Audit.Dir,
			Bucket:   s.Audit.Bucket,
			Prefix:   s.Audit.Prefix,
			Region:   s.Audit.Region,
			Endpoint: s.Audit.Endpoint,
		},
		Retry: retrySection{
			MaxAttempts:      s.Retry.MaxAttempts,
			InitialBackoffMS: s.Retry.InitialBackoff.Milliseconds(),
			MaxBackoffMS:     s.Retry.MaxBackoff.Milliseconds(),
			Multiplier:       s.Retry.Multiplier,
		},
	}
}

func (d document) toSettings() domain.Settings {
	keyEnv := d.Embedding.APIKeyEnv
	if keyEnv == "" {
		keyEnv = DefaultAPIKeyEnv
	}

	return domain.Settings{
		Verbose: d.Verbose,
		Chunking: domain.ChunkingParams{
			Size:         d.Chunking.Size,
			OverlapRatio: d.Chunking.OverlapRatio,
			Seed:         d.Chunking.Seed,
			Strategy:     domain.ChunkingStrategyFixedTokens,
		},
		Retrieval: domain.RetrievalSettings{
			SemanticWeight:      d.Retrieval.SemanticWeight,
			LexicalWeight:       d.Retrieval.LexicalWeight,
			TopK:                d.Retrieval.TopK,
			CandidateMultiplier: d.Retrieval.CandidateMultiplier,
		},
		Verifier: domain.Thresholds{
			Pass:    d.Verifier.Pass,
			Partial: d.Verifier.Partial,
		},
		Embedding: domain.EmbeddingSettings{
			Provider:          domain.AIProvider(d.Embedding.Provider),
			Model:             d.Embedding.Model,
			Dimensions:        d.Embedding.Dimensions,
			BaseURL:           d.Embedding.BaseURL,
			APIKey:            os.Getenv(keyEnv),
			BatchSize:         d.Embedding.BatchSize,
			CacheSize:         d.Embedding.CacheSize,
			CacheTTL:          time.Duration(d.Embedding.CacheTTLMS) * time.Millisecond,
			RedisAddr:         d.Embedding.RedisAddr,
			RequestsPerSecond: d.Embedding.RequestsPerSecond,
		},
		Session: domain.SessionSettings{
			TopCitationCap: d.Session.TopCitationCap,
		},
		Storage: domain.StorageSettings{
			Backend: domain.StorageBackend(d.Storage.Backend),
			DataDir: d.Storage.DataDir,
		},
		Audit: domain.AuditSettings{
			Sink:            domain.AuditSinkKind(d.Audit.Sink),
			Dir:             d.Audit.Dir,
			Bucket:          d.Audit.Bucket,
			Prefix:          d.Audit.Prefix,
			Region:          d.Audit.Region,
			Endpoint:        d.Audit.Endpoint,
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		},
		Retry: domain.RetryPolicy{
			MaxAttempts:    d.Retry.MaxAttempts,
			InitialBackoff: time.Duration(d.Retry.InitialBackoffMS) * time.Millisecond,
			MaxBackoff:     time.Duration(d.Retry.MaxBackoffMS) * time.Millisecond,
			Multiplier:     d.Retry.Multiplier,
		},
	}
}

// Ensure ConfigStore implements the interface.
var _ driven.ConfigStore = (*ConfigStore)(nil)

// ConfigStore loads and saves settings at a fixed path.
type ConfigStore struct {
	path string
}

// NewConfigStore creates a store for path. An empty path uses DefaultPath.
func NewConfigStore(path string) (*ConfigStore, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &ConfigStore{path: path}, nil
}

// Load reads settings from the store's path.
func (s *ConfigStore) Load() (domain.Settings, error) {
	return Load(s.path)
}

// Save writes settings to the store's path.
func (s *ConfigStore) Save(settings domain.Settings) error {
	return Save(s.path, settings)
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.path
}
