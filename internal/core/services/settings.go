package services

import (
	"fmt"

	"github.com/custodia-labs/greds/internal/core/domain"
	"github.com/custodia-labs/greds/internal/core/ports/driven"
	"github.com/custodia-labs/greds/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (domain.Settings, error) {
	return s.configStore.Load()
}

// Save validates and persists application settings.
func (s *SettingsService) Save(settings domain.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	return s.configStore.Save(settings)
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.Settings {
	return domain.DefaultSettings()
}

// SetEmbeddingProvider configures the embedding provider.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model string) error {
	if !provider.IsValid() {
		return fmt.Errorf("%w: unknown embedding provider %q", domain.ErrInvalidInput, provider)
	}
	return s.update(func(settings *domain.Settings) {
		if model == "" {
			model = domain.DefaultEmbeddingModels()[provider]
		}
		settings.Embedding.Provider = provider
		settings.Embedding.Model = model
		settings.Embedding.Dimensions = domain.EmbeddingDimensions()[model]
	})
}

// SetWeights updates the fusion weights.
func (s *SettingsService) SetWeights(semantic, lexical float64) error {
	return s.update(func(settings *domain.Settings) {
		settings.Retrieval.SemanticWeight = semantic
		settings.Retrieval.LexicalWeight = lexical
	})
}

// SetThresholds updates the verifier thresholds.
func (s *SettingsService) SetThresholds(pass, partial float64) error {
	return s.update(func(settings *domain.Settings) {
		settings.Verifier = domain.Thresholds{Pass: pass, Partial: partial}
	})
}

// Path returns where settings are stored.
func (s *SettingsService) Path() string {
	return s.configStore.Path()
}

// update loads settings, applies fn and saves the result if it validates.
func (s *SettingsService) update(fn func(*domain.Settings)) error {
	settings, err := s.configStore.Load()
	if err != nil {
		return err
	}
	fn(&settings)
	return s.Save(settings)
}
