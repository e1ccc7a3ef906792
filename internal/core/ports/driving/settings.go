package driving

import "github.com/custodia-labs/greds/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get retrieves current application settings.
	Get() (domain.Settings, error)

	// Save validates and persists application settings.
	Save(settings domain.Settings) error

	// GetDefaults returns default settings.
	GetDefaults() domain.Settings

	// SetEmbeddingProvider configures the embedding provider.
	// An empty model selects the provider's default model.
	SetEmbeddingProvider(provider domain.AIProvider, model string) error

	// SetWeights updates the semantic and lexical fusion weights.
	SetWeights(semantic, lexical float64) error

	// SetThresholds updates the verifier pass and partial thresholds.
	SetThresholds(pass, partial float64) error

	// Path returns where settings are stored.
	Path() string
}
