package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New("debug", FormatJSON, &buf)
	logger.Debug().Str("alert_id", "A1").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "A1", entry["alert_id"])
	assert.Equal(t, "hello", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := New("warn", FormatJSON, &buf)
	logger.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestNew_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New("loud", FormatJSON, &buf)
	logger.Debug().Msg("dropped")
	logger.Info().Msg("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger := New("info", FormatConsole, &buf)
	logger.Info().Msg("pretty")
	assert.Contains(t, buf.String(), "pretty")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestValidFormat(t *testing.T) {
	assert.True(t, ValidFormat("json"))
	assert.True(t, ValidFormat("console"))
	assert.True(t, ValidFormat(""))
	assert.False(t, ValidFormat("xml"))
}
