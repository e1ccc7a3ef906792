// Package app wires settings to adapters and core services.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/greds/internal/adapters/driven/ai"
	"github.com/custodia-labs/greds/internal/adapters/driven/audit"
	"github.com/custodia-labs/greds/internal/adapters/driven/index/lexical"
	"github.com/custodia-labs/greds/internal/adapters/driven/index/vector"
	"github.com/custodia-labs/greds/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/greds/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/greds/internal/core/domain"
	"github.com/custodia-labs/greds/internal/core/ports/driven"
	"github.com/custodia-labs/greds/internal/core/services"
	"github.com/custodia-labs/greds/internal/logger"
	"github.com/custodia-labs/greds/internal/postprocessors"
)

// App holds the adapters and services built from one set of settings.
type App struct {
	Settings domain.Settings

	Store    driven.Store
	Embedder driven.EmbeddingService
	Vector   driven.VectorIndex
	Lexical  driven.LexicalIndex
	Audit    driven.AuditSink

	Ingest        *services.IngestService
	Search        *services.SearchService
	Verifier      *services.VerifierService
	Session       *services.SessionService
	AuditLog      *services.AuditService
	SettingsStore *services.SettingsService

	// Degraded is set when the embedding provider could not be reached
	// and the app runs lexical only.
	Degraded bool
}

// Option configures App construction.
type Option func(*options)

type options struct {
	embedder    driven.EmbeddingService
	configStore driven.ConfigStore
	skipReindex bool
}

// WithEmbeddingService uses svc instead of building one from settings.
func WithEmbeddingService(svc driven.EmbeddingService) Option {
	return func(o *options) { o.embedder = svc }
}

// WithConfigStore exposes the settings service backed by store.
func WithConfigStore(store driven.ConfigStore) Option {
	return func(o *options) { o.configStore = store }
}

// WithoutReindex skips rebuilding the indexes from the store.
func WithoutReindex() Option {
	return func(o *options) { o.skipReindex = true }
}

// New builds an App from settings. The indexes are rebuilt from the store
// before New returns.
func New(ctx context.Context, settings domain.Settings, opts ...Option) (*App, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{Settings: settings}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	store, err := newStore(settings.Storage)
	if err != nil {
		return nil, err
	}
	a.Store = store

	a.Embedder = o.embedder
	if a.Embedder == nil {
		a.Embedder, err = ai.CreateAndValidateEmbeddingService(&settings.Embedding)
		if err != nil {
			logger.Warn("embedding disabled, falling back to lexical search: %v", err)
			a.Embedder = nil
			a.Degraded = true
		}
	}

	dims := settings.Embedding.ResolvedDimensions()
	if a.Embedder != nil {
		dims = a.Embedder.Dimensions()
	}
	vec, err := vector.New(dims)
	if err != nil {
		return nil, err
	}
	a.Vector = vec
	a.Lexical = lexical.New()

	a.Audit, err = newAuditSink(ctx, settings, store)
	if err != nil {
		return nil, err
	}

	chunkers := postprocessors.NewDefaultRegistry(settings.Chunking)
	a.Ingest = services.NewIngestService(store, store, chunkers, a.Embedder, a.Vector, a.Lexical, settings)
	a.Search = services.NewSearchService(a.Vector, a.Lexical, a.Embedder, store, settings.Retrieval, settings.Retry)
	a.Session = services.NewSessionService(store, store, settings.Session)
	a.AuditLog = services.NewAuditService(store)
	a.Verifier, err = services.NewVerifierService(store, store, a.Embedder, settings.Verifier)
	if err != nil {
		return nil, err
	}
	if o.configStore != nil {
		a.SettingsStore = services.NewSettingsService(o.configStore)
	}

	a.Ingest.SetAuditSink(a.Audit)
	a.Search.SetAuditSink(a.Audit)
	a.Session.SetAuditSink(a.Audit)
	a.Verifier.SetAuditSink(a.Audit)

	if !o.skipReindex {
		n, err := a.Ingest.Reindex(ctx)
		if err != nil {
			return nil, fmt.Errorf("rebuilding indexes: %w", err)
		}
		logger.Debug("reindexed %d chunks", n)
	}

	ok = true
	return a, nil
}

// Close releases every adapter. It is safe to call on a partially built App.
func (a *App) Close() error {
	var errs []error
	if a.Audit != nil {
		errs = append(errs, a.Audit.Close())
	}
	if a.Vector != nil {
		errs = append(errs, a.Vector.Close())
	}
	if a.Lexical != nil {
		errs = append(errs, a.Lexical.Close())
	}
	if a.Embedder != nil {
		errs = append(errs, a.Embedder.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}

func newStore(settings domain.StorageSettings) (driven.Store, error) {
	switch settings.Backend {
	case domain.StorageMemory:
		return memory.NewStore(), nil
	default:
		store, err := sqlite.NewStore(settings.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		return store, nil
	}
}

// newAuditSink builds the configured sink. The store also receives every
// event unless auditing is disabled. The store is closed by App, not the sink.
func newAuditSink(ctx context.Context, settings domain.Settings, store driven.Store) (driven.AuditSink, error) {
	cfg := settings.Audit
	if cfg.Sink == domain.AuditSinkNone {
		return audit.NopSink{}, nil
	}

	sinks := []driven.AuditSink{storeSink{store}}
	switch cfg.Sink {
	case domain.AuditSinkFile:
		dir := cfg.Dir
		if dir == "" {
			dir = filepath.Join(dataDir(settings.Storage), "audit")
		}
		fs, err := audit.NewFileSink(dir)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fs)
	case domain.AuditSinkS3:
		s3, err := audit.NewS3Sink(ctx, audit.S3Config{
			Bucket:          cfg.Bucket,
			Prefix:          cfg.Prefix,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s3)
	}
	return audit.NewMultiSink(sinks...), nil
}

func dataDir(settings domain.StorageSettings) string {
	if settings.DataDir != "" {
		return settings.DataDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".greds", "data")
	}
	return filepath.Join(home, ".greds", "data")
}

// storeSink records through the store without owning it.
type storeSink struct {
	store driven.Store
}

func (s storeSink) Record(ctx context.Context, event domain.AuditEvent) error {
	return s.store.Record(ctx, event)
}

func (storeSink) Close() error { return nil }
