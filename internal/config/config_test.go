package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawinfra/clawrouter/internal/router"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 18800, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.True(t, cfg.Ledger.Enabled)
	assert.True(t, cfg.Routing.LLMClassifier)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, 18800, cfg.Server.Port)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "cfg.json", `{
		"server": {"port": 9999, "logLevel": "debug"},
		"modelOverrides": {"SIMPLE": "gpt-4o-mini"},
		"routing": {"confidenceThreshold": 0.7, "llmClassifier": true}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, "gpt-4o-mini", cfg.ModelOverrides["SIMPLE"])
	assert.Equal(t, 0.7, cfg.Routing.ConfidenceThreshold)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "cfg.yaml", `
server:
  port: 8181
  logLevel: warn
routing:
  llmClassifier: false
  weights:
    code_presence: 2.0
ledger:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Server.LogLevel)
	assert.False(t, cfg.Routing.LLMClassifier)
	assert.False(t, cfg.Ledger.Enabled)
	assert.Equal(t, 2.0, cfg.Routing.Weights["code_presence"])
}

func TestLoadRejectsBadPort(t *testing.T) {
	path := writeFile(t, "cfg.json", `{"server": {"port": -1}}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadBoundaryCount(t *testing.T) {
	path := writeFile(t, "cfg.json", `{"server":{"port":18800},"routing":{"boundaries":[0.5, 1.5]}}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	path := writeFile(t, "cfg.json", `{"server":{"port":18800,"logLevel":"loud"}}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestScoringConfigAppliesOverrides(t *testing.T) {
	cfg := Default()
	cfg.Routing.Weights = map[string]float64{"code_presence": 3.0}
	cfg.Routing.Boundaries = []float64{0.4, 1.4, 2.4}
	cfg.Routing.ConfidenceThreshold = 0.65

	sc, err := cfg.ScoringConfig()
	require.NoError(t, err)
	assert.Equal(t, 3.0, sc.Weights[router.DimCodePresence])
	assert.Equal(t, [3]float64{0.4, 1.4, 2.4}, sc.Boundaries)
	assert.Equal(t, 0.65, sc.ConfidenceThreshold)

	// Untouched fields keep their defaults.
	assert.Equal(t, 1.5, sc.Weights[router.DimReasoningMarkers])
}

func TestScoringConfigRejectsBadBoundaries(t *testing.T) {
	cfg := Default()
	cfg.Routing.Boundaries = []float64{2.5, 1.5, 0.5}

	_, err := cfg.ScoringConfig()
	assert.Error(t, err)
}
