package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "lumen.log")
	logger, closer, err := New(Options{Level: "debug", Format: "json", File: path})
	require.NoError(t, err)

	logger.Debug().Str("component", "test").Msg("hello")
	require.NoError(t, closer.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), `"component":"test"`)
	assert.Contains(t, string(contents), `"app":"lumen"`)
	assert.Contains(t, string(contents), `"message":"hello"`)
}

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	t.Parallel()

	logger, closer, err := New(Options{Level: "chatty"})
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

func TestNewFailsOnUnwritableFile(t *testing.T) {
	t.Parallel()

	_, _, err := New(Options{File: filepath.Join(t.TempDir(), "missing", "dir", "lumen.log")})
	assert.Error(t, err)
}
