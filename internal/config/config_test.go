package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"local", "preview", "production", "staging"}, cfg.StageNames())
	assert.True(t, cfg.Stages["production"].Production)
	assert.Equal(t, 10, cfg.UserExport.Workers)
	assert.Len(t, cfg.BadWords.Keys, 10)
}

func TestFromYAMLMergesOverDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
stages:
  sandbox:
    api_url: https://api.sandbox.example
    token_env: SANDBOX_TOKEN
user_export:
  workers: 4
logging:
  level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, "https://api.sandbox.example", cfg.Stages["sandbox"].APIURL)
	assert.Contains(t, cfg.Stages, "preview")
	assert.Equal(t, 4, cfg.UserExport.Workers)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Len(t, cfg.BadWords.Keys, 10)
}

func TestFromYAMLKeepsBuiltInStageFields(t *testing.T) {
	cfg, err := FromYAML([]byte(`
stages:
  production:
    api_url: https://api.mirror.example
`))
	require.NoError(t, err)
	prod := cfg.Stages["production"]
	assert.Equal(t, "https://api.mirror.example", prod.APIURL)
	assert.Equal(t, "DM_DATA_API_TOKEN_PRODUCTION", prod.TokenEnv)
	assert.True(t, prod.Production)

	cfg, err = FromYAML([]byte(`
stages:
  staging:
    production: true
`))
	require.NoError(t, err)
	assert.True(t, cfg.Stages["staging"].Production)
	assert.Equal(t, "https://api.staging.marketplace.team", cfg.Stages["staging"].APIURL)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"bad url":      "stages:\n  x:\n    api_url: not-a-url\n",
		"empty url":    "stages:\n  x:\n    token_env: X\n",
		"bad workers":  "user_export:\n  workers: -1\n",
		"bad level":    "logging:\n  level: loud\n",
		"invalid yaml": "stages: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Default().StageNames(), cfg.StageNames())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "dmscripts.yml"), []byte("user_export:\n  workers: 2\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.UserExport.Workers)
}
