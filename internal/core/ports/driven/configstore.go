package driven

import "github.com/custodia-labs/greds/internal/core/domain"

// ConfigStore provides access to persisted settings.
// Implementations handle the file format and fill unset values with defaults.
type ConfigStore interface {
	// Load reads and validates settings. A missing file yields the defaults.
	Load() (domain.Settings, error)

	// Save persists settings.
	Save(settings domain.Settings) error

	// Path returns the configuration file path.
	Path() string
}
