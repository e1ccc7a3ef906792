// Package cli provides the greds command-line interface.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/greds/internal/core/ports/driving"
	"github.com/custodia-labs/greds/internal/logger"
)

// version is set at build time.
var version = "dev"

// Services configured by SetServices or the bootstrap hook.
var (
	ingestService   driving.IngestService
	searchService   driving.SearchService
	verifierService driving.VerifierService
	sessionService  driving.SessionService
	settingsService driving.SettingsService
	auditService    driving.AuditService
)

var (
	configPath string
	verbose    bool
)

// bootstrapAnnotation marks how much of the application a command needs.
const bootstrapAnnotation = "bootstrap"

// Bootstrap levels.
const (
	bootstrapNone     = "none"
	bootstrapSettings = "settings"
)

// Services groups the driving ports used by commands.
type Services struct {
	Ingest   driving.IngestService
	Search   driving.SearchService
	Verifier driving.VerifierService
	Session  driving.SessionService
	Settings driving.SettingsService
	Audit    driving.AuditService
}

// BootstrapOptions is passed to the bootstrap hook once flags are parsed.
type BootstrapOptions struct {
	// ConfigPath is the --config flag value. Empty means the default path.
	ConfigPath string

	// SettingsOnly is set for commands that only read or write settings.
	SettingsOnly bool
}

// Bootstrap builds services for a command. The returned cleanup may be nil.
type Bootstrap func(ctx context.Context, opts BootstrapOptions) (Services, func() error, error)

var (
	bootstrap Bootstrap
	cleanup   func() error
)

var rootCmd = &cobra.Command{
	Use:   "greds",
	Short: "Hybrid retrieval and citation verification",
	Long: `greds indexes works as overlapping text chunks, answers queries by fusing
semantic and lexical rankings, and verifies that claims are supported by the
chunks they cite.

Accepted claims accumulate in sessions that can be checkpointed and later
rehydrated into a minimal context.`,
	SilenceUsage:      true,
	PersistentPreRunE: runBootstrap,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.greds/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// SetServices sets the services used by commands directly, bypassing the bootstrap hook.
func SetServices(s Services) {
	ingestService = s.Ingest
	searchService = s.Search
	verifierService = s.Verifier
	sessionService = s.Session
	settingsService = s.Settings
	auditService = s.Audit
}

// SetBootstrap sets the hook building services after flags are parsed.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// Execute runs the root command and releases bootstrapped services.
func Execute(ctx context.Context) error {
	defer func() {
		if cleanup != nil {
			if err := cleanup(); err != nil {
				logger.Warn("closing services: %v", err)
			}
			cleanup = nil
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

func runBootstrap(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)

	level := bootstrapLevel(cmd)
	if bootstrap == nil || level == bootstrapNone {
		return nil
	}

	svc, closeFn, err := bootstrap(cmd.Context(), BootstrapOptions{
		ConfigPath:   configPath,
		SettingsOnly: level == bootstrapSettings,
	})
	if err != nil {
		return fmt.Errorf("initialising: %w", err)
	}
	SetServices(svc)
	cleanup = closeFn
	return nil
}

// bootstrapLevel returns the nearest bootstrap annotation on cmd or its parents.
// Cobra's help and completion commands need nothing.
func bootstrapLevel(cmd *cobra.Command) string {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return bootstrapNone
		}
		if level, ok := c.Annotations[bootstrapAnnotation]; ok {
			return level
		}
	}
	return ""
}
