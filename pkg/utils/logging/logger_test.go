package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_WritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	logger, err := InitLogger("test", Options{Dir: dir, Console: &console})
	require.NoError(t, err)

	logger.Debug("debug only in file")
	logger.Warn("shown on console")
	require.NoError(t, logger.Sync())

	files, err := filepath.Glob(filepath.Join(dir, "test_*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"debug only in file"`)
	assert.Contains(t, string(data), `"env":"test"`)

	assert.Contains(t, console.String(), "shown on console")
	assert.NotContains(t, console.String(), "debug only in file")
}

func TestInitLogger_Verbose(t *testing.T) {
	var console bytes.Buffer

	logger, err := InitLogger("", Options{Dir: t.TempDir(), Console: &console, Verbose: true})
	require.NoError(t, err)

	logger.Debug("breadcrumb")
	assert.Contains(t, console.String(), "breadcrumb")
}
