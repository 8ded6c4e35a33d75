package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("warn", "json", &buf)

	logger.Info("dropped")
	logger.Warn("kept", "module", "amd")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "kept", record["msg"])
	assert.Equal(t, "amd", record["module"])
	assert.NotContains(t, record, "source")

	buf.Reset()
	newLogger("bogus", "text", &buf).Debug("dropped")
	assert.Empty(t, buf.String(), "unknown levels fall back to info")

	t.Run("debug records carry their source", func(t *testing.T) {
		var buf bytes.Buffer
		newLogger("debug", "json", &buf).Debug("traced")

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "DEBUG", record["level"])
		source, ok := record["source"].(map[string]any)
		require.True(t, ok)
		assert.Contains(t, source["file"], "logger_test.go")
	})
}
