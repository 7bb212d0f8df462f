package schema

import (
	"testing"

	"github.com/grovetools/conductor/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorAcceptsValidConfig(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	err = v.ValidateFile([]byte(`
scanner:
  root: /srv/repos
  max_depth: 2
  skip_patterns: [node_modules]
recovery:
  interval: 5m
extensions:
  anything:
    goes: here
`), config.FormatYAML)
	assert.NoError(t, err)
}

func TestValidatorRejectsUnknownKeys(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	err = v.ValidateFile([]byte("scaner:\n  root: /srv\n"), config.FormatYAML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation failed")
}

func TestValidatorRejectsWrongTypes(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	err = v.ValidateFile([]byte("[scanner]\nconcurrency = \"many\"\n"), config.FormatTOML)
	assert.Error(t, err)
}
