package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const definiteSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "status": {"enum": ["complete"]},
    "offerServicesYourselves": {"enum": [true]},
    "contacts": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    }
  },
  "required": ["status", "offerServicesYourselves"]
}`

func TestCheckReportsFirstLeafPath(t *testing.T) {
	v, err := Compile("definite", []byte(definiteSchema))
	require.NoError(t, err)

	violation, err := v.Check(map[string]any{
		"status":                  "complete",
		"offerServicesYourselves": false,
	})
	require.NoError(t, err)
	require.NotNil(t, violation)
	assert.Equal(t, "offerServicesYourselves", violation.Path)
	assert.NotEmpty(t, violation.Message)

	violation, err = v.Check(map[string]any{
		"status":                  "complete",
		"offerServicesYourselves": true,
		"contacts":                []any{"a", ""},
	})
	require.NoError(t, err)
	require.NotNil(t, violation)
	assert.Equal(t, "contacts/1", violation.Path)
}

func TestCheckMissingRequired(t *testing.T) {
	v, err := Compile("definite", []byte(definiteSchema))
	require.NoError(t, err)

	violation, err := v.Check(map[string]any{"status": "complete"})
	require.NoError(t, err)
	require.NotNil(t, violation)
	assert.Equal(t, "", violation.Path)
	assert.Contains(t, violation.Message, "offerServicesYourselves")
}

func TestPassesLogsAtConfiguredLevel(t *testing.T) {
	v, err := Compile("declaration_definite_pass_schema", []byte(definiteSchema))
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	assert.True(t, v.Passes(logger, zapcore.InfoLevel, map[string]any{
		"status":                  "complete",
		"offerServicesYourselves": true,
	}))
	assert.Equal(t, 0, logs.Len())

	assert.False(t, v.Passes(logger, zapcore.WarnLevel, map[string]any{
		"status":                  "started",
		"offerServicesYourselves": true,
	}))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Contains(t, entry.Message, "Failed declaration_definite_pass_schema @ status:")
}

func TestPassesBelowLoggerLevelStillFails(t *testing.T) {
	v, err := Compile("definite", []byte(definiteSchema))
	require.NoError(t, err)

	core, logs := observer.New(zapcore.InfoLevel)
	assert.False(t, v.Passes(zap.New(core), zapcore.DebugLevel, map[string]any{}))
	assert.Equal(t, 0, logs.Len())
}

func TestLoadNamesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "g-cloud-12-discretionary.json")
	require.NoError(t, os.WriteFile(path, []byte(definiteSchema), 0o644))

	v, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "g-cloud-12-discretionary", v.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"), "")
	assert.Error(t, err)
}

func TestCompileRejectsInvalidSchema(t *testing.T) {
	_, err := Compile("broken", []byte(`{"type": 12}`))
	assert.Error(t, err)
}
