package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_PATH", "WORKSPACES_ROOT", "BACKEND_BIND", "MAX_CONCURRENT_AGENTS",
		"TASK_TIMEOUT_SEC", "SESSION_TIMEOUT_SEC", "WATCHDOG_MAX", "DEPLOYMENT_MODE",
		"PROVIDER_API_KEY", "SUBSCRIBER_QUEUE_SIZE", "GRACE_MS", "MAX_DISCOVERY_QUESTIONS",
	} {
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxConcurrentAgents)
	assert.Equal(t, 1000, cfg.WatchdogMax)
	assert.Equal(t, DeploymentSelfHosted, cfg.DeploymentMode)
	assert.True(t, cfg.AllowsLocalPath())
}

func TestLoadHostedForbidsLocalPath(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Setenv("DEPLOYMENT_MODE", "hosted"))
	defer os.Unsetenv("DEPLOYMENT_MODE")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.AllowsLocalPath())
}

func TestLoadRejectsInvalidDeploymentMode(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Setenv("DEPLOYMENT_MODE", "bogus"))
	defer os.Unsetenv("DEPLOYMENT_MODE")

	_, err := Load()
	assert.Error(t, err)
}
