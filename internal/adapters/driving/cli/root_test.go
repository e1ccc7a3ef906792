package cli

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Use(t *testing.T) {
	assert.Equal(t, "greds", rootCmd.Use)
	assert.True(t, rootCmd.SilenceUsage)
}

func TestRootCmd_HasPersistentFlags(t *testing.T) {
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	flag := rootCmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, flag)
	assert.Equal(t, "v", flag.Shorthand)
}

func TestRootCmd_RegistersCommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"ingest", "search", "verify", "session", "settings", "work", "mcp", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestBootstrapLevel(t *testing.T) {
	assert.Equal(t, bootstrapNone, bootstrapLevel(versionCmd))
	assert.Equal(t, bootstrapSettings, bootstrapLevel(settingsCmd))
	assert.Equal(t, bootstrapSettings, bootstrapLevel(settingsWeightsCmd))
	assert.Empty(t, bootstrapLevel(searchCmd))
	assert.Empty(t, bootstrapLevel(sessionRehydrateCmd))
}

func TestRunBootstrap(t *testing.T) {
	t.Run("full bootstrap installs services and cleanup", func(t *testing.T) {
		_, restore := setupTestServices()
		defer restore()

		search := &mockSearchService{}
		var got BootstrapOptions
		closed := false
		SetBootstrap(func(_ context.Context, opts BootstrapOptions) (Services, func() error, error) {
			got = opts
			return Services{Search: search}, func() error {
				closed = true
				return nil
			}, nil
		})
		defer SetBootstrap(nil)

		rootCmd.SetArgs([]string{"--config", "/tmp/greds.toml", "search", "bees"})
		defer rootCmd.SetArgs(nil)
		require.NoError(t, Execute(context.Background()))

		assert.Equal(t, "/tmp/greds.toml", got.ConfigPath)
		assert.False(t, got.SettingsOnly)
		assert.Equal(t, "bees", search.lastText)
		assert.True(t, closed)
		assert.Nil(t, cleanup)
	})

	t.Run("settings commands bootstrap settings only", func(t *testing.T) {
		_, restore := setupTestServices()
		defer restore()

		settings := newMockSettingsService()
		var got BootstrapOptions
		SetBootstrap(func(_ context.Context, opts BootstrapOptions) (Services, func() error, error) {
			got = opts
			return Services{Settings: settings}, nil, nil
		})
		defer SetBootstrap(nil)

		_, err := execute("settings", "weights", "0.5", "0.5")
		require.NoError(t, err)
		assert.True(t, got.SettingsOnly)
		assert.InDelta(t, 0.5, settings.settings.Retrieval.SemanticWeight, 1e-9)
	})

	t.Run("bootstrap error aborts the command", func(t *testing.T) {
		ts, restore := setupTestServices()
		defer restore()

		SetBootstrap(func(context.Context, BootstrapOptions) (Services, func() error, error) {
			return Services{}, nil, errors.New("config unreadable")
		})
		defer SetBootstrap(nil)

		_, err := execute("search", "bees")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "initialising: config unreadable")
		assert.Empty(t, ts.search.lastText)
	})
}

func TestSetServices(t *testing.T) {
	_, restore := setupTestServices()
	defer restore()

	SetServices(Services{})

	assert.Nil(t, ingestService)
	assert.Nil(t, searchService)
	assert.Nil(t, verifierService)
	assert.Nil(t, sessionService)
	assert.Nil(t, settingsService)
	assert.Nil(t, auditService)
}

func TestMCPServeCmd(t *testing.T) {
	flag := mcpServeCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "p", flag.Shorthand)

	_, restore := setupTestServices()
	defer restore()
	searchService = nil

	_, err := execute("mcp", "serve")
	assert.ErrorContains(t, err, "search service is required")
}
