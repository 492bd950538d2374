// Package app_test contains unit tests for the app package.
package app_test

import (
	"context"
	"testing"

	"github.com/JakeFAU/crawlkit/internal/app"
	"github.com/JakeFAU/crawlkit/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// defaultConfig returns the default configuration with the status server
// disabled so tests never bind a port.
func defaultConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Server.Enabled = false
	return cfg
}

func TestNew_Success(t *testing.T) {
	cfg := defaultConfig(t)

	a, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, a)
	defer a.Close()

	assert.NotNil(t, a.Logger())
	assert.NotNil(t, a.Engine())
}

func TestNew_ConfigErrors(t *testing.T) {
	testCases := []struct {
		name          string
		configSetup   func(cfg *config.Config)
		expectedError string
	}{
		{
			name: "unknown pipeline provider",
			configSetup: func(cfg *config.Config) {
				cfg.Pipeline.Provider = "carrier-pigeon"
			},
			expectedError: "unknown pipeline provider: carrier-pigeon",
		},
		{
			name: "unknown fetch client",
			configSetup: func(cfg *config.Config) {
				cfg.Fetch.Client = "fax"
			},
			expectedError: "unknown fetch client: fax",
		},
		{
			name: "pubsub pipeline missing project and topic",
			configSetup: func(cfg *config.Config) {
				cfg.Pipeline.Provider = "pubsub"
				cfg.Pipeline.PubSub.ProjectID = ""
				cfg.Pipeline.PubSub.TopicID = ""
			},
			expectedError: "pubsub project_id and topic_id are required",
		},
		{
			name: "no user agents",
			configSetup: func(cfg *config.Config) {
				cfg.Identity.UserAgents = nil
			},
			expectedError: "identity pool",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tc.configSetup(&cfg)

			a, err := app.New(context.Background(), cfg)
			require.Error(t, err)
			assert.Nil(t, a)
			assert.Contains(t, err.Error(), tc.expectedError)
		})
	}
}
